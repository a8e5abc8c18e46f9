package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoanghero125/visaid/internal/audio"
	"github.com/hoanghero125/visaid/internal/button"
	"github.com/hoanghero125/visaid/internal/config"
	"github.com/hoanghero125/visaid/internal/fsm"
	"github.com/hoanghero125/visaid/internal/ipc"
	"github.com/hoanghero125/visaid/internal/pipeline"
)

type fakeRecorder struct {
	startErr error
	stopErr  error
	artifact audio.Artifact

	startCalls int
	stopCalls  int
	abortCalls int
}

func (f *fakeRecorder) Start(context.Context) error { f.startCalls++; return f.startErr }
func (f *fakeRecorder) Stop(context.Context) (audio.Artifact, error) {
	f.stopCalls++
	return f.artifact, f.stopErr
}
func (f *fakeRecorder) Abort() { f.abortCalls++ }

type fakeCamera struct {
	path  string
	err   error
	calls int
}

func (f *fakeCamera) CaptureStill(context.Context) (string, error) {
	f.calls++
	return f.path, f.err
}

type fakePipeline struct {
	result pipeline.Result
	err    error

	calls    int
	gotAudio string
	gotImage string
}

func (f *fakePipeline) Run(_ context.Context, audioPath string, imagePath string) (pipeline.Result, error) {
	f.calls++
	f.gotAudio = audioPath
	f.gotImage = imagePath
	return f.result, f.err
}

type fakePlayer struct {
	err     error
	calls   int
	gotPath string
}

func (f *fakePlayer) Play(_ context.Context, path string) error {
	f.calls++
	f.gotPath = path
	return f.err
}

type fakeLights struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeLights) record(event string) {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
}

func (f *fakeLights) ShowIdle()       { f.record("idle") }
func (f *fakeLights) ShowRecording()  { f.record("recording") }
func (f *fakeLights) ShowCapturing()  { f.record("capturing") }
func (f *fakeLights) ShowProcessing() { f.record("processing") }
func (f *fakeLights) ShowSpeaking()   { f.record("speaking") }
func (f *fakeLights) ShowError()      { f.record("error") }
func (f *fakeLights) Off()            { f.record("off") }

type fakeInjector struct {
	ok    bool
	calls int
}

func (f *fakeInjector) Inject() bool { f.calls++; return f.ok }

type fakeMeter struct {
	outcomes []string
}

func (f *fakeMeter) RecordSession(outcome string, _ time.Duration) {
	f.outcomes = append(f.outcomes, outcome)
}

type harness struct {
	controller *Controller
	recorder   *fakeRecorder
	camera     *fakeCamera
	pipeline   *fakePipeline
	player     *fakePlayer
	lights     *fakeLights
	meter      *fakeMeter
	presses    chan button.Press

	audioPath    string
	imagePath    string
	responsePath string
}

func newHarness(t *testing.T, keepArtifacts bool) *harness {
	t.Helper()
	dir := t.TempDir()

	h := &harness{
		recorder: &fakeRecorder{},
		camera:   &fakeCamera{},
		pipeline: &fakePipeline{},
		player:   &fakePlayer{},
		lights:   &fakeLights{},
		meter:    &fakeMeter{},
		presses:  make(chan button.Press),
	}

	h.audioPath = filepath.Join(dir, "audio.wav")
	h.imagePath = filepath.Join(dir, "still.jpg")
	h.responsePath = filepath.Join(dir, "response.wav")
	for _, path := range []string{h.audioPath, h.imagePath, h.responsePath} {
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	}

	h.recorder.artifact = audio.Artifact{Path: h.audioPath, Bytes: 16384, Device: "mic", Duration: time.Second}
	h.camera.path = h.imagePath
	h.pipeline.result = pipeline.Result{
		Transcript:   "what is this",
		Answer:       "a chair",
		SpokenText:   "Based on your question and the image analysis: a chair",
		ResponsePath: h.responsePath,
	}

	cfg := config.Default()
	cfg.Storage.KeepArtifacts = keepArtifacts
	cfg.LED.ErrorTimeoutMS = 2000

	h.controller = NewController(cfg, nil, h.recorder, h.camera, h.pipeline, h.player, h.lights, nil, h.meter, h.presses)
	h.controller.sleep = func(context.Context, time.Duration) {}
	return h
}

func press() button.Press {
	return button.Press{At: time.Now()}
}

func TestSessionHappyPath(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	h.controller.handlePress(ctx, press())
	assert.Equal(t, fsm.StateRecording, h.controller.State())
	assert.Equal(t, 1, h.recorder.startCalls)

	h.controller.handlePress(ctx, press())
	assert.Equal(t, fsm.StateIdle, h.controller.State())

	assert.Equal(t, 1, h.recorder.stopCalls)
	assert.Equal(t, 1, h.camera.calls)
	assert.Equal(t, 1, h.pipeline.calls)
	assert.Equal(t, h.audioPath, h.pipeline.gotAudio)
	assert.Equal(t, h.imagePath, h.pipeline.gotImage)
	assert.Equal(t, 1, h.player.calls)
	assert.Equal(t, h.responsePath, h.player.gotPath)

	assert.Equal(t, []string{"recording", "capturing", "processing", "speaking", "idle"}, h.lights.events)
	assert.Equal(t, []string{"completed"}, h.meter.outcomes)
}

func TestSessionRemovesArtifactsWhenRetentionDisabled(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	h.controller.handlePress(ctx, press())
	h.controller.handlePress(ctx, press())

	for _, path := range []string{h.audioPath, h.imagePath, h.responsePath} {
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err), "expected %s removed", path)
	}
}

func TestSessionKeepsArtifactsWhenRetentionEnabled(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	h.controller.handlePress(ctx, press())
	h.controller.handlePress(ctx, press())

	for _, path := range []string{h.audioPath, h.imagePath, h.responsePath} {
		_, err := os.Stat(path)
		assert.NoError(t, err, "expected %s retained", path)
	}
}

func TestSessionRecorderStartFailure(t *testing.T) {
	h := newHarness(t, false)
	h.recorder.startErr = errors.New("no source")

	h.controller.handlePress(context.Background(), press())

	assert.Equal(t, fsm.StateIdle, h.controller.State())
	assert.Zero(t, h.camera.calls)
	assert.Zero(t, h.pipeline.calls)
	assert.Equal(t, []string{"error", "idle"}, h.lights.events)
	assert.Equal(t, []string{"failed"}, h.meter.outcomes)
}

func TestSessionStopFailureSkipsCapture(t *testing.T) {
	h := newHarness(t, false)
	h.recorder.stopErr = audio.ErrNoAudio
	ctx := context.Background()

	h.controller.handlePress(ctx, press())
	h.controller.handlePress(ctx, press())

	assert.Equal(t, fsm.StateIdle, h.controller.State())
	assert.Zero(t, h.camera.calls)
	assert.Zero(t, h.pipeline.calls)
	assert.Equal(t, []string{"failed"}, h.meter.outcomes)
}

func TestSessionCaptureFailureSkipsPipeline(t *testing.T) {
	h := newHarness(t, false)
	h.camera.err = errors.New("camera tool exited 1")
	ctx := context.Background()

	h.controller.handlePress(ctx, press())
	h.controller.handlePress(ctx, press())

	assert.Equal(t, fsm.StateIdle, h.controller.State())
	assert.Zero(t, h.pipeline.calls)
	assert.Zero(t, h.player.calls)
}

func TestSessionPipelineFailureSkipsPlayback(t *testing.T) {
	h := newHarness(t, false)
	h.pipeline.err = pipeline.Fail(pipeline.StageAnalyze, errors.New("upstream 500"))
	ctx := context.Background()

	h.controller.handlePress(ctx, press())
	h.controller.handlePress(ctx, press())

	assert.Equal(t, fsm.StateIdle, h.controller.State())
	assert.Zero(t, h.player.calls)
	assert.Contains(t, h.lights.events, "error")
}

func TestSessionPlaybackFailure(t *testing.T) {
	h := newHarness(t, false)
	h.player.err = errors.New("device busy")
	ctx := context.Background()

	h.controller.handlePress(ctx, press())
	h.controller.handlePress(ctx, press())

	assert.Equal(t, fsm.StateIdle, h.controller.State())
	assert.Equal(t, []string{"failed"}, h.meter.outcomes)
}

func TestSessionErrorWindowBlocksLoop(t *testing.T) {
	h := newHarness(t, false)
	h.recorder.startErr = errors.New("no source")

	var slept time.Duration
	h.controller.sleep = func(_ context.Context, d time.Duration) { slept = d }

	h.controller.handlePress(context.Background(), press())

	assert.Equal(t, 2*time.Second, slept)
	assert.Equal(t, fsm.StateIdle, h.controller.State())
}

func TestSessionPressIgnoredWhileBusy(t *testing.T) {
	h := newHarness(t, false)
	h.controller.state = fsm.StateProcessing

	h.controller.handlePress(context.Background(), press())

	assert.Zero(t, h.recorder.startCalls)
	assert.Zero(t, h.recorder.stopCalls)
	assert.Equal(t, fsm.StateProcessing, h.controller.State())
}

func TestRunAbortsRecordingOnShutdown(t *testing.T) {
	h := newHarness(t, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.controller.Run(ctx) }()

	h.presses <- press()
	require.Eventually(t, func() bool {
		return h.controller.State() == fsm.StateRecording
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not exit after cancel")
	}

	assert.Equal(t, 1, h.recorder.abortCalls)
	assert.Equal(t, fsm.StateIdle, h.controller.State())
}

func TestHandleStatus(t *testing.T) {
	h := newHarness(t, false)

	resp := h.controller.Handle(context.Background(), ipc.Request{Command: "status"})
	assert.True(t, resp.OK)
	assert.Equal(t, string(fsm.StateIdle), resp.State)
}

func TestHandlePress(t *testing.T) {
	h := newHarness(t, false)
	injector := &fakeInjector{ok: true}
	h.controller.injector = injector

	resp := h.controller.Handle(context.Background(), ipc.Request{Command: "press"})
	assert.True(t, resp.OK)
	assert.Equal(t, 1, injector.calls)
}

func TestHandlePressRejectedWhileBusy(t *testing.T) {
	h := newHarness(t, false)
	injector := &fakeInjector{ok: true}
	h.controller.injector = injector
	h.controller.state = fsm.StateSpeaking

	resp := h.controller.Handle(context.Background(), ipc.Request{Command: "press"})
	assert.False(t, resp.OK)
	assert.Zero(t, injector.calls)
}

func TestHandlePressDroppedWhenLoopBusy(t *testing.T) {
	h := newHarness(t, false)
	h.controller.injector = &fakeInjector{ok: false}

	resp := h.controller.Handle(context.Background(), ipc.Request{Command: "press"})
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "busy")
}

func TestHandleUnknownCommand(t *testing.T) {
	h := newHarness(t, false)

	resp := h.controller.Handle(context.Background(), ipc.Request{Command: "reboot"})
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "unknown command")
}
