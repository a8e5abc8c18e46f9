// Package audio handles microphone capture streams and WAV artifacts.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"

	"github.com/hoanghero125/visaid/internal/config"
)

// Device describes one Pulse input source surfaced to visaid.
type Device struct {
	ID          string
	Description string
	Default     bool
	Available   bool
	Muted       bool
}

// ListDevices returns available Pulse input sources with default/availability
// metadata.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("visaid"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}
	defaultID := defaultSource.ID()

	var sourceInfos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &sourceInfos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	devices := make([]Device, 0, len(sourceInfos))
	for _, source := range sourceInfos {
		if source == nil {
			continue
		}
		devices = append(devices, Device{
			ID:          source.SourceName,
			Description: source.Device,
			Default:     source.SourceName == defaultID,
			Available:   sourceUsable(source),
			Muted:       source.Mute,
		})
	}
	return devices, nil
}

// SelectDevice resolves the configured input term against live devices,
// falling back to the default source when the term is empty or "default".
func SelectDevice(ctx context.Context, input string) (Device, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Device{}, err
	}
	return selectFromList(devices, input)
}

func selectFromList(devices []Device, input string) (Device, error) {
	if len(devices) == 0 {
		return Device{}, errors.New("no audio input devices found")
	}

	input = strings.TrimSpace(strings.ToLower(input))
	if input != "" && input != "default" {
		for _, dev := range devices {
			id := strings.ToLower(dev.ID)
			desc := strings.ToLower(dev.Description)
			if strings.Contains(id, input) || strings.Contains(desc, input) {
				if !dev.Available {
					return Device{}, fmt.Errorf("audio input %q is unavailable", dev.ID)
				}
				if dev.Muted {
					return Device{}, fmt.Errorf("audio input %q is muted", dev.ID)
				}
				return dev, nil
			}
		}
		return Device{}, fmt.Errorf("audio.input %q did not match any device", input)
	}

	for _, dev := range devices {
		if dev.Default {
			if dev.Muted {
				return Device{}, fmt.Errorf("default audio source %q is muted", dev.ID)
			}
			return dev, nil
		}
	}
	return Device{}, errors.New("default audio source is unavailable")
}

// Stream is the chunked PCM source the recorder drains.
type Stream interface {
	// Chunks yields captured PCM as byte slices; closed once on Stop.
	Chunks() <-chan []byte
	// Stop halts capture, flushes residual PCM, and closes Chunks.
	Stop() error
	// Err reports a device failure observed during capture, if any.
	Err() error
	// Device describes the source for logs and diagnostics.
	Device() string
}

// pulseStream captures fixed-size PCM chunks from one Pulse source.
type pulseStream struct {
	device     Device
	chunkBytes int

	client *pulse.Client
	stream *pulse.RecordStream

	chunks chan []byte
	stopCh chan struct{}

	mu      sync.Mutex
	pending []byte
	stopped bool

	inflight sync.WaitGroup
	bytes    atomic.Int64
}

// OpenStream connects to Pulse and starts a record stream with the
// configured format. The returned stream is already capturing.
func OpenStream(ctx context.Context, cfg config.AudioConfig) (Stream, error) {
	selected, err := SelectDevice(ctx, cfg.Input)
	if err != nil && strings.TrimSpace(cfg.Fallback) != "" && cfg.Fallback != cfg.Input {
		selected, err = SelectDevice(ctx, cfg.Fallback)
	}
	if err != nil {
		return nil, err
	}

	client, err := pulse.NewClient(
		pulse.ClientApplicationName("visaid"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}

	source, err := client.SourceByID(selected.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", selected.ID, err)
	}

	chunkBytes := cfg.ChunkFrames * cfg.Channels * 2
	s := &pulseStream{
		device:     selected,
		chunkBytes: chunkBytes,
		client:     client,
		chunks:     make(chan []byte, 128),
		stopCh:     make(chan struct{}),
	}

	opts := []pulse.RecordOption{
		pulse.RecordSource(source),
		pulse.RecordSampleRate(cfg.SampleRate),
		pulse.RecordBufferFragmentSize(uint32(chunkBytes)),
		pulse.RecordMediaName("visaid question"),
	}
	if cfg.Channels == 2 {
		opts = append(opts, pulse.RecordStereo)
	} else {
		opts = append(opts, pulse.RecordMono)
	}

	writer := pulse.NewWriter(writerFunc(s.onPCM), pulseproto.FormatInt16LE)
	stream, err := client.NewRecord(writer, opts...)
	if err != nil {
		_ = s.Stop()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}

	s.stream = stream
	stream.Start()
	return s, nil
}

func (s *pulseStream) Chunks() <-chan []byte {
	return s.chunks
}

func (s *pulseStream) Device() string {
	description := strings.TrimSpace(s.device.Description)
	if description == "" {
		return s.device.ID
	}
	return fmt.Sprintf("%s (%s)", description, s.device.ID)
}

func (s *pulseStream) Err() error {
	if s.stream == nil {
		return nil
	}
	return s.stream.Error()
}

// Stop halts the stream, flushes residual PCM, and closes Chunks exactly once.
func (s *pulseStream) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	close(s.stopCh)
	s.mu.Unlock()

	if s.stream != nil {
		s.stream.Stop()
		s.stream.Close()
	}
	if s.client != nil {
		s.client.Close()
	}

	s.inflight.Wait()

	s.mu.Lock()
	pending := append([]byte(nil), s.pending...)
	s.pending = nil
	s.mu.Unlock()

	if len(pending) > 0 {
		select {
		case s.chunks <- pending:
		default:
		}
	}

	close(s.chunks)
	return nil
}

// onPCM receives raw Pulse frames and emits chunkBytes-sized slices.
func (s *pulseStream) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	select {
	case <-s.stopCh:
		return 0, io.EOF
	default:
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return 0, io.EOF
	}
	// Guard Add under the same mutex as s.stopped to avoid Add/Wait races.
	s.inflight.Add(1)

	s.pending = append(s.pending, buffer...)
	chunks := make([][]byte, 0, len(s.pending)/s.chunkBytes)
	for len(s.pending) >= s.chunkBytes {
		chunk := make([]byte, s.chunkBytes)
		copy(chunk, s.pending[:s.chunkBytes])
		s.pending = s.pending[s.chunkBytes:]
		chunks = append(chunks, chunk)
	}
	s.mu.Unlock()
	defer s.inflight.Done()

	s.bytes.Add(int64(len(buffer)))

	for _, chunk := range chunks {
		select {
		case <-s.stopCh:
			return 0, io.EOF
		case s.chunks <- chunk:
		}
	}

	return len(buffer), nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}

// sourceUsable maps Pulse source port availability to a simple boolean.
func sourceUsable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	if len(source.Ports) == 0 {
		return true
	}
	for _, port := range source.Ports {
		if port.Name != source.ActivePortName {
			continue
		}
		// PulseAudio values: unknown=0, no=1, yes=2.
		return port.Available == 0 || port.Available == 2
	}
	return true
}
