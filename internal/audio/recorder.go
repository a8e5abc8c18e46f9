package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hoanghero125/visaid/internal/config"
)

var (
	// ErrAlreadyRecording rejects a second Start while a capture is active.
	ErrAlreadyRecording = errors.New("recording already in progress")
	// ErrNoAudio indicates a stop with zero captured frames.
	ErrNoAudio = errors.New("no audio captured")
	// ErrNotRecording rejects Stop without an active capture.
	ErrNotRecording = errors.New("no recording in progress")
)

// Artifact is the flushed WAV output of one recording phase.
type Artifact struct {
	Path     string
	Bytes    int64
	Device   string
	Duration time.Duration
}

// Recorder owns the microphone for the lifetime of one recording phase.
// It accumulates PCM chunks on a dedicated goroutine and flushes them into
// a WAV artifact on Stop. A Recorder serves one capture at a time.
type Recorder struct {
	cfg    config.AudioConfig
	dir    string
	logger *slog.Logger

	// openStream is swapped in tests to capture without Pulse hardware.
	openStream func(context.Context, config.AudioConfig) (Stream, error)

	mu     sync.Mutex
	active *activeCapture
}

type activeCapture struct {
	stream    Stream
	startedAt time.Time

	done chan struct{}
	// buf is owned by the drain goroutine until done is closed.
	buf []byte
}

// NewRecorder builds a recorder flushing artifacts into dir.
func NewRecorder(cfg config.AudioConfig, dir string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Recorder{
		cfg:        cfg,
		dir:        dir,
		logger:     logger,
		openStream: OpenStream,
	}
}

// Active reports whether a capture is in flight.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// Start opens the input device and begins accumulating frames. It returns
// as soon as the capture loop is running.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return ErrAlreadyRecording
	}

	stream, err := r.openStream(ctx, r.cfg)
	if err != nil {
		return fmt.Errorf("open capture stream: %w", err)
	}

	capture := &activeCapture{
		stream:    stream,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	r.active = capture

	go func() {
		defer close(capture.done)
		for chunk := range stream.Chunks() {
			capture.buf = append(capture.buf, chunk...)
		}
	}()

	r.logger.Info("recording started", "device", stream.Device(), "sample_rate", r.cfg.SampleRate, "channels", r.cfg.Channels)
	return nil
}

// Stop ends the capture, joins the drain goroutine with a bounded timeout,
// closes the device, and serializes the buffer into a WAV artifact. The
// partial buffer is flushed even when the device failed mid-capture, but a
// capture error is still reported so no artifact is sent downstream.
func (r *Recorder) Stop(ctx context.Context) (Artifact, error) {
	r.mu.Lock()
	capture := r.active
	r.active = nil
	r.mu.Unlock()

	if capture == nil {
		return Artifact{}, ErrNotRecording
	}

	if err := capture.stream.Stop(); err != nil {
		r.logger.Warn("capture stream stop failed", "error", err.Error())
	}

	stopTimeout := time.Duration(r.cfg.StopTimeoutMS) * time.Millisecond
	select {
	case <-capture.done:
	case <-time.After(stopTimeout):
		return Artifact{}, fmt.Errorf("capture loop did not finish within %s", stopTimeout)
	case <-ctx.Done():
		return Artifact{}, ctx.Err()
	}

	duration := time.Since(capture.startedAt)
	deviceErr := capture.stream.Err()

	if len(capture.buf) == 0 {
		if deviceErr != nil {
			return Artifact{}, fmt.Errorf("capture device failed: %w", deviceErr)
		}
		return Artifact{}, ErrNoAudio
	}

	path, err := r.flush(capture.buf)
	if err != nil {
		return Artifact{}, err
	}

	artifact := Artifact{
		Path:     path,
		Bytes:    int64(len(capture.buf)),
		Device:   capture.stream.Device(),
		Duration: duration,
	}

	if deviceErr != nil {
		// The partial artifact stays on disk for diagnostics.
		return artifact, fmt.Errorf("capture device failed mid-stream: %w", deviceErr)
	}

	r.logger.Info("recording saved", "path", path, "bytes", artifact.Bytes, "duration_ms", duration.Milliseconds())
	return artifact, nil
}

// Abort stops an in-flight capture and discards the buffer. Used on process
// shutdown; close failures are logged, never escalated.
func (r *Recorder) Abort() {
	r.mu.Lock()
	capture := r.active
	r.active = nil
	r.mu.Unlock()

	if capture == nil {
		return
	}
	if err := capture.stream.Stop(); err != nil {
		r.logger.Warn("capture stream stop failed during abort", "error", err.Error())
	}
	select {
	case <-capture.done:
	case <-time.After(time.Duration(r.cfg.StopTimeoutMS) * time.Millisecond):
		r.logger.Warn("capture loop did not finish during abort")
	}
	r.logger.Info("recording aborted", "discarded_bytes", len(capture.buf))
}

// flush serializes PCM into a timestamped WAV artifact under the recordings dir.
func (r *Recorder) flush(pcm []byte) (string, error) {
	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		return "", fmt.Errorf("create recordings dir: %w", err)
	}

	name := fmt.Sprintf("audio_%s.wav", time.Now().Format("20060102_150405.000"))
	path := filepath.Join(r.dir, name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("create recording %q: %w", path, err)
	}
	defer file.Close()

	if err := EncodeWAV(file, pcm, r.cfg.SampleRate, r.cfg.Channels); err != nil {
		return "", fmt.Errorf("write recording %q: %w", path, err)
	}
	return path, nil
}
