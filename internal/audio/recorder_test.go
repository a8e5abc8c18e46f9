package audio

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hoanghero125/visaid/internal/config"
)

func testAudioConfig() config.AudioConfig {
	return config.AudioConfig{
		Input:         "default",
		SampleRate:    16000,
		Channels:      1,
		ChunkFrames:   512,
		StopTimeoutMS: 2000,
	}
}

// fakeStream feeds scripted chunks and honors the Stream contract: Chunks
// closes exactly once after Stop.
type fakeStream struct {
	chunks  chan []byte
	stopped chan struct{}
	devErr  error
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		chunks:  make(chan []byte, 64),
		stopped: make(chan struct{}),
	}
}

func (f *fakeStream) feed(chunk []byte) { f.chunks <- chunk }

func (f *fakeStream) Chunks() <-chan []byte { return f.chunks }

func (f *fakeStream) Stop() error {
	select {
	case <-f.stopped:
	default:
		close(f.stopped)
		close(f.chunks)
	}
	return nil
}

func (f *fakeStream) Err() error { return f.devErr }

func (f *fakeStream) Device() string { return "fake mic" }

func newTestRecorder(t *testing.T, stream *fakeStream) *Recorder {
	t.Helper()
	r := NewRecorder(testAudioConfig(), t.TempDir(), nil)
	r.openStream = func(context.Context, config.AudioConfig) (Stream, error) {
		return stream, nil
	}
	return r
}

func TestRecorderStopFlushesExactPayload(t *testing.T) {
	stream := newFakeStream()
	r := newTestRecorder(t, stream)

	require.NoError(t, r.Start(context.Background()))
	require.True(t, r.Active())

	// 16 chunks of 1024 bytes at 16-bit/16kHz/mono: payload must be 16384.
	chunk := bytes.Repeat([]byte{0x01, 0x02}, 512)
	for i := 0; i < 16; i++ {
		stream.feed(chunk)
	}

	artifact, err := r.Stop(context.Background())
	require.NoError(t, err)
	require.False(t, r.Active())
	require.Equal(t, int64(16384), artifact.Bytes)
	require.Equal(t, "fake mic", artifact.Device)

	file, err := os.Open(artifact.Path)
	require.NoError(t, err)
	defer file.Close()

	info, payload, err := DecodeWAV(file)
	require.NoError(t, err)
	require.Equal(t, 16000, info.SampleRate)
	require.Equal(t, 1, info.Channels)
	require.Equal(t, 16384, info.DataBytes)
	require.Len(t, payload, 16384)
}

func TestRecorderStopZeroFramesErrors(t *testing.T) {
	stream := newFakeStream()
	r := newTestRecorder(t, stream)

	require.NoError(t, r.Start(context.Background()))
	_, err := r.Stop(context.Background())
	require.ErrorIs(t, err, ErrNoAudio)
}

func TestRecorderStopWithoutStartErrors(t *testing.T) {
	r := newTestRecorder(t, newFakeStream())
	_, err := r.Stop(context.Background())
	require.ErrorIs(t, err, ErrNotRecording)
}

func TestRecorderSecondStartRejected(t *testing.T) {
	stream := newFakeStream()
	r := newTestRecorder(t, stream)

	require.NoError(t, r.Start(context.Background()))
	err := r.Start(context.Background())
	require.ErrorIs(t, err, ErrAlreadyRecording)

	stream.feed([]byte{1, 2, 3, 4})
	_, err = r.Stop(context.Background())
	require.NoError(t, err)
}

func TestRecorderDeviceErrorFlushesPartialButReportsFailure(t *testing.T) {
	stream := newFakeStream()
	stream.devErr = errors.New("device unplugged")
	r := newTestRecorder(t, stream)

	require.NoError(t, r.Start(context.Background()))
	stream.feed([]byte{1, 2, 3, 4})

	artifact, err := r.Stop(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "device unplugged")

	// The partial artifact is still flushed for diagnostics.
	require.NotEmpty(t, artifact.Path)
	_, statErr := os.Stat(artifact.Path)
	require.NoError(t, statErr)
}

func TestRecorderStartFailurePropagates(t *testing.T) {
	r := NewRecorder(testAudioConfig(), t.TempDir(), nil)
	r.openStream = func(context.Context, config.AudioConfig) (Stream, error) {
		return nil, errors.New("no pulse server")
	}

	err := r.Start(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "no pulse server")
	require.False(t, r.Active())
}

func TestRecorderAbortDiscardsBuffer(t *testing.T) {
	stream := newFakeStream()
	r := newTestRecorder(t, stream)

	require.NoError(t, r.Start(context.Background()))
	stream.feed([]byte{1, 2, 3, 4})

	r.Abort()
	require.False(t, r.Active())

	_, err := r.Stop(context.Background())
	require.ErrorIs(t, err, ErrNotRecording)
}
