// Package pipeline sequences the staged inference calls for one session.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Stage identifies one step of the question-answering pipeline.
type Stage string

const (
	StageTranscribe Stage = "transcribe"
	StageAnalyze    Stage = "analyze"
	StageSynthesize Stage = "synthesize"
	StagePlayback   Stage = "playback"
)

// StageError tags a failure with the pipeline stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Fail wraps an error with its originating stage.
func Fail(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}

// FailedStage extracts the stage tag from an error chain.
func FailedStage(err error) (Stage, bool) {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage, true
	}
	return "", false
}

// API is the remote inference contract the executor sequences.
type API interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
	Analyze(ctx context.Context, imagePath string, prompt string) (string, error)
	Synthesize(ctx context.Context, text string, outPath string) error
}

// StageObserver receives per-stage timing for metrics. Nil-safe via noop.
type StageObserver interface {
	ObserveStage(stage Stage, duration time.Duration, failed bool)
}

type noopObserver struct{}

func (noopObserver) ObserveStage(Stage, time.Duration, bool) {}

// Result is the pipeline output: the progressive stage artifacts plus the
// synthesized response ready for playback.
type Result struct {
	Transcript   string
	Answer       string
	SpokenText   string
	ResponsePath string
}

// Executor runs the three inference stages strictly in order, one attempt
// each, short-circuiting on the first failure. It never retries and never
// continues past a failed stage.
type Executor struct {
	api          API
	responsesDir string
	logger       *slog.Logger
	observer     StageObserver
}

// NewExecutor builds an executor writing response artifacts into responsesDir.
func NewExecutor(api API, responsesDir string, logger *slog.Logger, observer StageObserver) *Executor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if observer == nil {
		observer = noopObserver{}
	}
	return &Executor{
		api:          api,
		responsesDir: responsesDir,
		logger:       logger,
		observer:     observer,
	}
}

// Run executes transcribe, analyze, and synthesize against the session
// artifacts. Errors carry the failing stage tag; later stages are never
// invoked after a failure.
func (e *Executor) Run(ctx context.Context, audioPath string, imagePath string) (Result, error) {
	var result Result

	transcript, err := e.timed(StageTranscribe, func() (string, error) {
		return e.api.Transcribe(ctx, audioPath)
	})
	if err != nil {
		return result, Fail(StageTranscribe, err)
	}
	if strings.TrimSpace(transcript) == "" {
		return result, Fail(StageTranscribe, fmt.Errorf("empty transcript"))
	}
	result.Transcript = transcript
	e.logger.Info("question transcribed", "transcript_length", len(transcript))

	answer, err := e.timed(StageAnalyze, func() (string, error) {
		return e.api.Analyze(ctx, imagePath, transcript)
	})
	if err != nil {
		return result, Fail(StageAnalyze, err)
	}
	if strings.TrimSpace(answer) == "" {
		return result, Fail(StageAnalyze, fmt.Errorf("empty analysis result"))
	}
	result.Answer = answer
	result.SpokenText = ComposeAnswer(answer)
	e.logger.Info("image analyzed", "answer_length", len(answer))

	responsePath := filepath.Join(e.responsesDir, fmt.Sprintf("response_%s.wav", time.Now().Format("20060102_150405.000")))
	_, err = e.timed(StageSynthesize, func() (string, error) {
		return responsePath, e.api.Synthesize(ctx, result.SpokenText, responsePath)
	})
	if err != nil {
		// A failed synthesis may have written part of the file already.
		if removeErr := os.Remove(responsePath); removeErr != nil && !os.IsNotExist(removeErr) {
			e.logger.Warn("remove partial response failed", "path", responsePath, "error", removeErr)
		}
		return result, Fail(StageSynthesize, err)
	}
	result.ResponsePath = responsePath
	e.logger.Info("response synthesized", "path", responsePath)

	return result, nil
}

// timed runs one stage and reports its duration to the observer.
func (e *Executor) timed(stage Stage, fn func() (string, error)) (string, error) {
	started := time.Now()
	value, err := fn()
	e.observer.ObserveStage(stage, time.Since(started), err != nil)
	return value, err
}

// ComposeAnswer frames the analysis result as the spoken response.
func ComposeAnswer(analysis string) string {
	return "Based on your question and the image analysis: " + strings.TrimSpace(analysis)
}
