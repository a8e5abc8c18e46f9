// Package playback plays WAV artifacts through the device speaker.
package playback

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/jfreymuth/pulse"

	"github.com/hoanghero125/visaid/internal/audio"
	"github.com/hoanghero125/visaid/internal/config"
)

// runCommand is swapped in tests to avoid invoking the real playback tool.
var runCommand = func(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w (%s)", name, err, string(output))
	}
	return nil
}

// Player plays WAV files, blocking until playback completes. The configured
// tool (aplay) is the primary path; when it is missing or fails, playback
// falls back to a direct Pulse stream decoded from the artifact.
type Player struct {
	cfg    config.PlaybackConfig
	logger *slog.Logger

	mu          sync.Mutex
	useFallback bool
}

// NewPlayer builds a player from playback config.
func NewPlayer(cfg config.PlaybackConfig, logger *slog.Logger) *Player {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Player{cfg: cfg, logger: logger}
}

// Play plays one WAV file to completion. The speaker is owned exclusively
// for the duration of the call.
func (p *Player) Play(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("audio file not found: %w", err)
	}

	p.mu.Lock()
	useFallback := p.useFallback
	p.mu.Unlock()

	if !useFallback {
		err := p.playWithTool(ctx, path)
		if err == nil {
			return nil
		}
		p.logger.Warn("playback tool failed; switching to pulse fallback", "tool", p.cfg.Tool, "error", err.Error())
		p.mu.Lock()
		p.useFallback = true
		p.mu.Unlock()
	}

	return p.playWithPulse(path)
}

// playWithTool shells out to the configured ALSA player and waits for it.
func (p *Player) playWithTool(ctx context.Context, path string) error {
	runCtx, cancel := context.WithTimeout(ctx, time.Duration(p.cfg.TimeoutMS)*time.Millisecond)
	defer cancel()

	if err := runCommand(runCtx, p.cfg.Tool, path); err != nil {
		return fmt.Errorf("play %q: %w", path, err)
	}
	return nil
}

// playWithPulse decodes the WAV artifact and streams its PCM to Pulse.
func (p *Player) playWithPulse(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open audio file: %w", err)
	}
	defer file.Close()

	info, payload, err := audio.DecodeWAV(file)
	if err != nil {
		return fmt.Errorf("decode %q: %w", path, err)
	}

	samples := make([]int16, len(payload)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(payload[2*i:]))
	}

	client, err := pulse.NewClient(
		pulse.ClientApplicationName("visaid"),
		pulse.ClientApplicationIconName("audio-speakers"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	cursor := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if cursor >= len(samples) {
			return 0, pulse.EndOfData
		}
		n := copy(buf, samples[cursor:])
		cursor += n
		if cursor >= len(samples) {
			return n, pulse.EndOfData
		}
		return n, nil
	})

	opts := []pulse.PlaybackOption{
		pulse.PlaybackSampleRate(info.SampleRate),
		pulse.PlaybackMediaName("visaid answer"),
	}
	if info.Channels == 2 {
		opts = append(opts, pulse.PlaybackStereo)
	} else {
		opts = append(opts, pulse.PlaybackMono)
	}

	stream, err := client.NewPlayback(reader, opts...)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play stream: %w", err)
	}
	return nil
}
