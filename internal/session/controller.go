// Package session coordinates the press-to-answer lifecycle from button edge
// to spoken response.
package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/hoanghero125/visaid/internal/audio"
	"github.com/hoanghero125/visaid/internal/button"
	"github.com/hoanghero125/visaid/internal/config"
	"github.com/hoanghero125/visaid/internal/fsm"
	"github.com/hoanghero125/visaid/internal/indicator"
	"github.com/hoanghero125/visaid/internal/ipc"
	"github.com/hoanghero125/visaid/internal/pipeline"
)

// Recorder is the session-facing subset of audio capture behavior.
type Recorder interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (audio.Artifact, error)
	Abort()
}

// Camera captures one still image per session.
type Camera interface {
	CaptureStill(ctx context.Context) (string, error)
}

// Pipeline turns the session artifacts into a playable response.
type Pipeline interface {
	Run(ctx context.Context, audioPath string, imagePath string) (pipeline.Result, error)
}

// Player speaks the synthesized response.
type Player interface {
	Play(ctx context.Context, path string) error
}

// Injector feeds a synthetic press into the button path.
type Injector interface {
	Inject() bool
}

// Meter receives per-session outcome metrics. Nil-safe via noop.
type Meter interface {
	RecordSession(outcome string, duration time.Duration)
}

type noopMeter struct{}

func (noopMeter) RecordSession(string, time.Duration) {}

// Controller owns the FSM and serializes all session side effects. One
// goroutine runs the press loop; presses arriving while a session is in
// flight are dropped at the button monitor.
type Controller struct {
	cfg      config.Config
	logger   *slog.Logger
	recorder Recorder
	camera   Camera
	pipeline Pipeline
	player   Player
	lights   indicator.Controller
	injector Injector
	meter    Meter

	presses <-chan button.Press

	mu    sync.RWMutex
	state fsm.State

	startedAt time.Time

	// sleep is swapped in tests to skip the error lockout window.
	sleep func(ctx context.Context, d time.Duration)
}

// NewController wires the session collaborators. Nil lights, injector, and
// meter degrade to noops.
func NewController(
	cfg config.Config,
	logger *slog.Logger,
	recorder Recorder,
	camera Camera,
	pipe Pipeline,
	player Player,
	lights indicator.Controller,
	injector Injector,
	meter Meter,
	presses <-chan button.Press,
) *Controller {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if lights == nil {
		lights = indicator.Noop{}
	}
	if meter == nil {
		meter = noopMeter{}
	}
	return &Controller{
		cfg:      cfg,
		logger:   logger,
		recorder: recorder,
		camera:   camera,
		pipeline: pipe,
		player:   player,
		lights:   lights,
		injector: injector,
		meter:    meter,
		presses:  presses,
		state:    fsm.StateIdle,
		sleep:    sleepCtx,
	}
}

// State returns the current FSM state snapshot.
func (c *Controller) State() fsm.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// transition applies one FSM event to the controller state.
func (c *Controller) transition(event fsm.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := fsm.Transition(c.state, event)
	if err != nil {
		return err
	}
	c.state = next
	return nil
}

// Run consumes button presses until ctx is canceled. A press while idle
// starts recording; a press while recording stops it and drives the session
// through capture, inference, and playback before the loop blocks on the
// next press.
func (c *Controller) Run(ctx context.Context) error {
	c.lights.ShowIdle()
	defer c.lights.Off()

	for {
		select {
		case <-ctx.Done():
			c.abortActive()
			return nil
		case press := <-c.presses:
			c.handlePress(ctx, press)
		}
	}
}

// handlePress dispatches on the current state. Any state other than idle or
// recording means a session is mid-flight and the press is discarded.
func (c *Controller) handlePress(ctx context.Context, press button.Press) {
	switch c.State() {
	case fsm.StateIdle:
		c.startRecording(ctx, press)
	case fsm.StateRecording:
		c.completeSession(ctx)
	default:
		c.logger.Debug("press ignored", "state", string(c.State()), "synthetic", press.Synthetic)
	}
}

// startRecording opens the microphone and lights the recording state.
func (c *Controller) startRecording(ctx context.Context, press button.Press) {
	if err := c.transition(fsm.EventPressStart); err != nil {
		c.logger.Warn("press rejected", "error", err.Error())
		return
	}

	c.startedAt = time.Now()
	c.logger.Info("session started", "synthetic", press.Synthetic)

	if err := c.recorder.Start(ctx); err != nil {
		c.fail(ctx, "record", err)
		return
	}
	c.lights.ShowRecording()
}

// completeSession runs the stop-to-spoken sequence. Each step that fails
// routes through the error state; later steps never run after a failure.
func (c *Controller) completeSession(ctx context.Context) {
	if err := c.transition(fsm.EventPressStop); err != nil {
		c.logger.Warn("stop rejected", "error", err.Error())
		return
	}
	c.lights.ShowCapturing()

	recording, err := c.recorder.Stop(ctx)
	if err != nil {
		c.fail(ctx, "record", err)
		return
	}
	c.logger.Info("question recorded",
		"path", recording.Path,
		"bytes", recording.Bytes,
		"duration_ms", recording.Duration.Milliseconds(),
		"device", recording.Device)

	imagePath, err := c.camera.CaptureStill(ctx)
	if err != nil {
		c.cleanupArtifacts(recording.Path)
		c.fail(ctx, "capture", err)
		return
	}
	c.logger.Info("scene captured", "path", imagePath)

	if err := c.transition(fsm.EventCaptured); err != nil {
		c.fail(ctx, "capture", err)
		return
	}
	c.lights.ShowProcessing()

	result, err := c.pipeline.Run(ctx, recording.Path, imagePath)
	if err != nil {
		stage := "process"
		if s, ok := pipeline.FailedStage(err); ok {
			stage = string(s)
		}
		c.cleanupArtifacts(recording.Path, imagePath)
		c.fail(ctx, stage, err)
		return
	}

	if err := c.transition(fsm.EventAnswered); err != nil {
		c.fail(ctx, "process", err)
		return
	}
	c.lights.ShowSpeaking()

	if err := c.player.Play(ctx, result.ResponsePath); err != nil {
		c.cleanupArtifacts(recording.Path, imagePath, result.ResponsePath)
		c.fail(ctx, string(pipeline.StagePlayback), err)
		return
	}

	if err := c.transition(fsm.EventSpoken); err != nil {
		c.fail(ctx, "process", err)
		return
	}

	c.cleanupArtifacts(recording.Path, imagePath, result.ResponsePath)
	elapsed := time.Since(c.startedAt)
	c.meter.RecordSession("completed", elapsed)
	c.logger.Info("session completed",
		"transcript_length", len(result.Transcript),
		"answer_length", len(result.Answer),
		"duration_ms", elapsed.Milliseconds())
	c.lights.ShowIdle()
}

// fail routes the session through the error state, holds the error signal
// for the configured window, and returns to idle. Presses arriving inside
// the window are dropped by the button monitor because the loop is blocked
// here.
func (c *Controller) fail(ctx context.Context, stage string, err error) {
	c.logger.Error("session failed", "stage", stage, "error", err.Error())
	c.meter.RecordSession("failed", time.Since(c.startedAt))

	if txErr := c.transition(fsm.EventFail); txErr != nil {
		c.logger.Warn("error transition rejected", "error", txErr.Error())
	}
	c.lights.ShowError()

	window := time.Duration(c.cfg.LED.ErrorTimeoutMS) * time.Millisecond
	if window > 0 {
		c.sleep(ctx, window)
	}

	if txErr := c.transition(fsm.EventReset); txErr != nil {
		c.logger.Warn("reset transition rejected", "error", txErr.Error())
	}
	c.lights.ShowIdle()
}

// abortActive discards an in-flight recording during shutdown.
func (c *Controller) abortActive() {
	if c.State() != fsm.StateRecording {
		return
	}
	c.recorder.Abort()
	_ = c.transition(fsm.EventFail)
	_ = c.transition(fsm.EventReset)
	c.logger.Info("recording aborted on shutdown")
}

// cleanupArtifacts removes session files unless retention is configured.
func (c *Controller) cleanupArtifacts(paths ...string) {
	if c.cfg.Storage.KeepArtifacts {
		return
	}
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			c.logger.Debug("artifact cleanup failed", "path", path, "error", err.Error())
		}
	}
}

// Handle serves control-socket commands against the running session loop.
func (c *Controller) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case "status":
		return ipc.Response{OK: true, State: string(c.State()), Message: "status"}
	case "press":
		return c.requestPress()
	default:
		return ipc.Response{OK: false, State: string(c.State()), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

// requestPress injects a synthetic press when the loop can accept one.
func (c *Controller) requestPress() ipc.Response {
	state := c.State()
	if state != fsm.StateIdle && state != fsm.StateRecording {
		return ipc.Response{OK: false, State: string(state), Error: fmt.Sprintf("cannot press from state %s", state)}
	}
	if c.injector == nil {
		return ipc.Response{OK: false, State: string(state), Error: "button monitor unavailable"}
	}
	if !c.injector.Inject() {
		return ipc.Response{OK: false, State: string(state), Error: "session loop busy"}
	}
	return ipc.Response{OK: true, State: string(state), Message: "press injected"}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
