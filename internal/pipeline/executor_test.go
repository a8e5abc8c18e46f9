package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	transcript      string
	transcribeErr   error
	answer          string
	analyzeErr      error
	synthesizeErr   error
	synthesizeBytes []byte

	transcribeCalls int
	analyzeCalls    int
	synthesizeCalls int

	gotAudioPath string
	gotImagePath string
	gotPrompt    string
	gotText      string
	gotOutPath   string
}

func (f *fakeAPI) Transcribe(_ context.Context, audioPath string) (string, error) {
	f.transcribeCalls++
	f.gotAudioPath = audioPath
	return f.transcript, f.transcribeErr
}

func (f *fakeAPI) Analyze(_ context.Context, imagePath string, prompt string) (string, error) {
	f.analyzeCalls++
	f.gotImagePath = imagePath
	f.gotPrompt = prompt
	return f.answer, f.analyzeErr
}

func (f *fakeAPI) Synthesize(_ context.Context, text string, outPath string) error {
	f.synthesizeCalls++
	f.gotText = text
	f.gotOutPath = outPath
	if len(f.synthesizeBytes) > 0 {
		if err := os.WriteFile(outPath, f.synthesizeBytes, 0o600); err != nil {
			return err
		}
	}
	return f.synthesizeErr
}

type recordingObserver struct {
	stages []Stage
	failed []bool
}

func (r *recordingObserver) ObserveStage(stage Stage, _ time.Duration, failed bool) {
	r.stages = append(r.stages, stage)
	r.failed = append(r.failed, failed)
}

func TestExecutorRunsStagesInOrder(t *testing.T) {
	api := &fakeAPI{transcript: "what is in front of me", answer: "a red door"}
	observer := &recordingObserver{}
	executor := NewExecutor(api, t.TempDir(), nil, observer)

	result, err := executor.Run(context.Background(), "/tmp/q.wav", "/tmp/scene.jpg")
	require.NoError(t, err)

	assert.Equal(t, "what is in front of me", result.Transcript)
	assert.Equal(t, "a red door", result.Answer)
	assert.Equal(t, "Based on your question and the image analysis: a red door", result.SpokenText)
	assert.NotEmpty(t, result.ResponsePath)
	assert.True(t, strings.HasSuffix(result.ResponsePath, ".wav"))

	assert.Equal(t, "/tmp/q.wav", api.gotAudioPath)
	assert.Equal(t, "/tmp/scene.jpg", api.gotImagePath)
	assert.Equal(t, "what is in front of me", api.gotPrompt)
	assert.Equal(t, result.SpokenText, api.gotText)
	assert.Equal(t, result.ResponsePath, api.gotOutPath)

	assert.Equal(t, []Stage{StageTranscribe, StageAnalyze, StageSynthesize}, observer.stages)
	assert.Equal(t, []bool{false, false, false}, observer.failed)
}

func TestExecutorTranscribeFailureShortCircuits(t *testing.T) {
	api := &fakeAPI{transcribeErr: errors.New("upstream 500")}
	executor := NewExecutor(api, t.TempDir(), nil, nil)

	_, err := executor.Run(context.Background(), "/tmp/q.wav", "/tmp/scene.jpg")
	require.Error(t, err)

	stage, ok := FailedStage(err)
	require.True(t, ok)
	assert.Equal(t, StageTranscribe, stage)

	assert.Equal(t, 1, api.transcribeCalls)
	assert.Zero(t, api.analyzeCalls)
	assert.Zero(t, api.synthesizeCalls)
}

func TestExecutorEmptyTranscriptFails(t *testing.T) {
	api := &fakeAPI{transcript: "   "}
	executor := NewExecutor(api, t.TempDir(), nil, nil)

	_, err := executor.Run(context.Background(), "/tmp/q.wav", "/tmp/scene.jpg")
	require.Error(t, err)

	stage, ok := FailedStage(err)
	require.True(t, ok)
	assert.Equal(t, StageTranscribe, stage)
	assert.Zero(t, api.analyzeCalls)
}

func TestExecutorAnalyzeFailureSkipsSynthesis(t *testing.T) {
	api := &fakeAPI{transcript: "describe this", analyzeErr: errors.New("timeout")}
	observer := &recordingObserver{}
	executor := NewExecutor(api, t.TempDir(), nil, observer)

	result, err := executor.Run(context.Background(), "/tmp/q.wav", "/tmp/scene.jpg")
	require.Error(t, err)

	stage, ok := FailedStage(err)
	require.True(t, ok)
	assert.Equal(t, StageAnalyze, stage)

	assert.Equal(t, "describe this", result.Transcript)
	assert.Empty(t, result.Answer)
	assert.Zero(t, api.synthesizeCalls)
	assert.Equal(t, []bool{false, true}, observer.failed)
}

func TestExecutorSynthesizeFailure(t *testing.T) {
	api := &fakeAPI{transcript: "read the sign", answer: "exit ahead", synthesizeErr: errors.New("no audio bytes")}
	executor := NewExecutor(api, t.TempDir(), nil, nil)

	result, err := executor.Run(context.Background(), "/tmp/q.wav", "/tmp/scene.jpg")
	require.Error(t, err)

	stage, ok := FailedStage(err)
	require.True(t, ok)
	assert.Equal(t, StageSynthesize, stage)

	assert.Equal(t, "exit ahead", result.Answer)
	assert.Empty(t, result.ResponsePath)
}

func TestExecutorSynthesizeFailureRemovesPartialFile(t *testing.T) {
	responsesDir := t.TempDir()
	api := &fakeAPI{
		transcript:      "read the sign",
		answer:          "exit ahead",
		synthesizeErr:   errors.New("stream cut short"),
		synthesizeBytes: []byte("RIFFtrunc"),
	}
	executor := NewExecutor(api, responsesDir, nil, nil)

	_, err := executor.Run(context.Background(), "/tmp/q.wav", "/tmp/scene.jpg")
	require.Error(t, err)

	_, statErr := os.Stat(api.gotOutPath)
	assert.True(t, os.IsNotExist(statErr), "partial response should be removed")

	entries, readErr := os.ReadDir(responsesDir)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestExecutorNoRetries(t *testing.T) {
	api := &fakeAPI{transcript: "hello", analyzeErr: errors.New("flaky")}
	executor := NewExecutor(api, t.TempDir(), nil, nil)

	_, err := executor.Run(context.Background(), "/tmp/q.wav", "/tmp/scene.jpg")
	require.Error(t, err)

	assert.Equal(t, 1, api.transcribeCalls)
	assert.Equal(t, 1, api.analyzeCalls)
}

func TestFailedStage(t *testing.T) {
	wrapped := fmt.Errorf("session aborted: %w", Fail(StagePlayback, errors.New("device busy")))

	stage, ok := FailedStage(wrapped)
	require.True(t, ok)
	assert.Equal(t, StagePlayback, stage)

	_, ok = FailedStage(errors.New("plain"))
	assert.False(t, ok)
}

func TestComposeAnswer(t *testing.T) {
	assert.Equal(t,
		"Based on your question and the image analysis: a bus stop",
		ComposeAnswer("  a bus stop \n"))
}
