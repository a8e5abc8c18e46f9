package indicator

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/hoanghero125/visaid/internal/config"
)

// mode is the animation the render loop is currently playing.
type mode int

const (
	modeOff mode = iota
	modeIdle
	modeRecording
	modeCapturing
	modeProcessing
	modeSpeaking
	modeError
)

var (
	colorGreen  = Color{G: 255}
	colorRed    = Color{R: 255}
	colorYellow = Color{R: 255, G: 255}
	colorCyan   = Color{G: 255, B: 255}
	colorBlue   = Color{B: 255}
)

const renderInterval = 50 * time.Millisecond

// Lights animates session state on an APA102 strip. State setters only flip
// the active mode; a single render goroutine owns the SPI device.
type Lights struct {
	cfg    config.LEDConfig
	strip  Strip
	logger *slog.Logger

	mu   sync.Mutex
	mode mode
	tick int
}

// NewLights wraps an opened strip with the state animator.
func NewLights(cfg config.LEDConfig, strip Strip, logger *slog.Logger) *Lights {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Lights{cfg: cfg, strip: strip, logger: logger}
}

func (l *Lights) ShowIdle()       { l.setMode(modeIdle) }
func (l *Lights) ShowRecording()  { l.setMode(modeRecording) }
func (l *Lights) ShowCapturing()  { l.setMode(modeCapturing) }
func (l *Lights) ShowProcessing() { l.setMode(modeProcessing) }
func (l *Lights) ShowSpeaking()   { l.setMode(modeSpeaking) }
func (l *Lights) ShowError()      { l.setMode(modeError) }
func (l *Lights) Off()            { l.setMode(modeOff) }

// Run owns the strip until ctx is canceled, then blanks and closes it.
func (l *Lights) Run(ctx context.Context) error {
	ticker := time.NewTicker(renderInterval)
	defer ticker.Stop()

	l.render()
	for {
		select {
		case <-ctx.Done():
			if err := l.strip.Close(); err != nil {
				l.logger.Debug("led strip close failed", "error", err.Error())
			}
			return nil
		case <-ticker.C:
			l.render()
		}
	}
}

// setMode switches animations and restarts their phase.
func (l *Lights) setMode(next mode) {
	l.mu.Lock()
	if l.mode != next {
		l.mode = next
		l.tick = 0
	}
	l.mu.Unlock()
}

// render draws the current animation frame.
func (l *Lights) render() {
	l.mu.Lock()
	current := l.mode
	tick := l.tick
	l.tick++
	l.mu.Unlock()

	frame, brightness := animationFrame(current, tick, l.cfg.Count, uint8(l.cfg.Brightness))
	if err := l.strip.Render(frame, brightness); err != nil {
		l.logger.Debug("led render failed", "error", err.Error())
	}
}

// animationFrame computes one frame of the given mode. Solid states fill the
// strip with one color; processing walks a single lit pixel, speaking pulses
// brightness, and error blinks at roughly 2 Hz.
func animationFrame(current mode, tick int, count int, brightness uint8) ([]Color, uint8) {
	frame := make([]Color, count)

	switch current {
	case modeIdle:
		fill(frame, colorGreen)
	case modeRecording:
		fill(frame, colorRed)
	case modeCapturing:
		fill(frame, colorYellow)
	case modeProcessing:
		if count > 0 {
			frame[tick%count] = colorCyan
		}
	case modeSpeaking:
		fill(frame, colorBlue)
		brightness = pulseLevel(tick, brightness)
	case modeError:
		if tick%10 < 5 {
			fill(frame, colorRed)
		}
	case modeOff:
	}

	return frame, brightness
}

func fill(frame []Color, c Color) {
	for i := range frame {
		frame[i] = c
	}
}

// pulseLevel ramps brightness up and then down over a 20-tick cycle,
// bottoming out at 1 so the strip never goes fully dark mid-pulse.
func pulseLevel(tick int, peak uint8) uint8 {
	if peak == 0 {
		return 0
	}
	phase := tick % 20
	if phase >= 10 {
		phase = 20 - phase
	}
	level := uint8((int(peak)*phase + 9) / 10)
	if level < 1 {
		level = 1
	}
	if level > peak {
		level = peak
	}
	return level
}
