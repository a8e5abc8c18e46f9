// Package button turns a noisy GPIO input line into a clean press-event stream.
package button

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hoanghero125/visaid/internal/config"
)

// Line is a point-in-time view of the physical button input.
type Line interface {
	Pressed() (bool, error)
	Close() error
}

// Press is one validated physical activation.
type Press struct {
	At        time.Time
	Synthetic bool
}

// Monitor samples a Line at a fixed interval and emits one press event per
// physical activation. Further edges inside the debounce window are
// suppressed and do not re-anchor the window.
type Monitor struct {
	logger *slog.Logger
	line   Line

	pollInterval time.Duration
	debounce     time.Duration

	presses chan Press
	dropped atomic.Int64

	// sampling state, touched only from the Run goroutine (and tests).
	lastPressed    bool
	windowAnchor   time.Time
	heldSince      time.Time
	stuckWarned    bool
	readErrorCount int
}

// stuckHoldThreshold is how long the line may stay active before the monitor
// reports a likely wiring or hardware fault.
const stuckHoldThreshold = 10 * time.Second

// NewMonitor builds a monitor over an already-opened line. A nil line means
// the button hardware is absent: the monitor reports unavailable and never
// emits events.
func NewMonitor(cfg config.ButtonConfig, line Line, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Monitor{
		logger:       logger,
		line:         line,
		pollInterval: time.Duration(cfg.PollIntervalMS) * time.Millisecond,
		debounce:     time.Duration(cfg.DebounceMS) * time.Millisecond,
		presses:      make(chan Press),
	}
}

// Available reports whether button hardware is present.
func (m *Monitor) Available() bool {
	return m.line != nil
}

// Presses returns the validated press event stream. Delivery is lossy on
// purpose: events nobody is ready to consume are dropped, never queued.
func (m *Monitor) Presses() <-chan Press {
	return m.presses
}

// Dropped reports how many press events were discarded because the consumer
// was busy.
func (m *Monitor) Dropped() int64 {
	return m.dropped.Load()
}

// IsPressed reads the raw line level for diagnostics. It is independent of
// the event stream and applies no debouncing.
func (m *Monitor) IsPressed() bool {
	if m.line == nil {
		return false
	}
	pressed, err := m.line.Pressed()
	if err != nil {
		m.logger.Debug("button line read failed", "error", err.Error())
		return false
	}
	return pressed
}

// Inject offers a synthetic press to the consumer, subject to the same
// drop-when-busy delivery as physical presses. It bypasses debouncing since
// it does not originate from an electrical edge.
func (m *Monitor) Inject() bool {
	return m.deliver(Press{At: time.Now(), Synthetic: true})
}

// Run polls the line until the context ends. It returns immediately when the
// hardware is absent; the caller keeps running in degraded mode.
func (m *Monitor) Run(ctx context.Context) error {
	if m.line == nil {
		m.logger.Warn("button line unavailable; running without button control")
		return nil
	}
	defer func() {
		if err := m.line.Close(); err != nil {
			m.logger.Debug("button line close failed", "error", err.Error())
		}
	}()

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			pressed, err := m.line.Pressed()
			if err != nil {
				m.readErrorCount++
				if m.readErrorCount == 1 || m.readErrorCount%1000 == 0 {
					m.logger.Warn("button line read failed", "error", err.Error(), "count", m.readErrorCount)
				}
				continue
			}
			if m.observe(now, pressed) {
				m.deliver(Press{At: now})
			}
		}
	}
}

// observe feeds one sample into the debounce state machine and reports
// whether a press event must be emitted. The debounce window is anchored at
// the first accepted press; suppressed edges do not extend it.
func (m *Monitor) observe(now time.Time, pressed bool) bool {
	wasPressed := m.lastPressed
	m.lastPressed = pressed

	if !pressed {
		m.heldSince = time.Time{}
		m.stuckWarned = false
		return false
	}
	if wasPressed {
		if m.heldSince.IsZero() {
			m.heldSince = now
		}
		if !m.stuckWarned && now.Sub(m.heldSince) >= stuckHoldThreshold {
			m.stuckWarned = true
			m.logger.Warn("button line held active beyond threshold; possible wiring fault",
				"held_for", now.Sub(m.heldSince).String())
		}
		return false
	}
	m.heldSince = now
	m.stuckWarned = false
	if !m.windowAnchor.IsZero() && now.Sub(m.windowAnchor) < m.debounce {
		return false
	}
	m.windowAnchor = now
	return true
}

// deliver hands a press to the consumer without blocking. A press the
// session is not ready for is dropped, keeping the busy-guard explicit.
func (m *Monitor) deliver(press Press) bool {
	select {
	case m.presses <- press:
		return true
	default:
		m.dropped.Add(1)
		m.logger.Debug("press dropped; session busy", "synthetic", press.Synthetic)
		return false
	}
}
