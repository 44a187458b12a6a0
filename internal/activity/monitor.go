package activity

import (
	"context"
	"strings"
	"sync"
	"time"

	"wallpanel"
	"wallpanel/internal/config"
	"wallpanel/internal/logger"
	"wallpanel/internal/render"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Input sources. Movement-type sources are throttled; discrete interactions
// (touch, key, click) always register.
const (
	SourceTouch       = "touch"
	SourceKey         = "key"
	SourceClick       = "click"
	SourceMotion      = "motion"       // PIR sensor
	SourcePointerMove = "pointer_move" // mouse/trackpad movement
)

// SlideshowStarter is the one capability the monitor needs from the
// slideshow: it is never paused, only guaranteed to run when the display
// goes into deep idle.
type SlideshowStarter interface {
	EnsureRunning()
}

// Monitor classifies idle time against time-of-day thresholds, drives the
// dimming overlay and fans pause/resume out to registered consumers.
//
// Mode transitions are atomic: the lock is held across a transition and its
// pause/resume fanout. Consumer callbacks therefore must return promptly and
// must not call back into the monitor.
//
// The slideshow is deliberately not part of the consumer registry; it is
// attached via SetSlideshow and force-started instead of paused.
type Monitor struct {
	clock    clockwork.Clock
	renderer render.Renderer
	log      *logger.Logger
	cfg      config.Inactivity

	mu           sync.Mutex
	state        wallpanel.ActivityState
	consumers    map[string]wallpanel.Consumer
	slideshow    SlideshowStarter
	lastMovement time.Time
	dimming      bool
}

// NewMonitor builds a monitor. A nil renderer disables dimming but leaves
// input tracking fully functional; the degradation is reported via
// DimmingEnabled.
func NewMonitor(cfg config.Inactivity, clock clockwork.Clock, renderer render.Renderer, log *logger.Logger) *Monitor {
	m := &Monitor{
		clock:     clock,
		renderer:  renderer,
		log:       log,
		cfg:       cfg,
		consumers: make(map[string]wallpanel.Consumer),
		dimming:   renderer != nil,
		state: wallpanel.ActivityState{
			Mode:             wallpanel.ModeActive,
			LastActivityAt:   clock.Now(),
			BrightnessFactor: 1,
		},
	}
	if !m.dimming && log != nil {
		log.Warnw("overlay_surface_unavailable", "effect", "dimming disabled")
	}
	return m
}

// DimmingEnabled reports whether the overlay surface was acquired.
func (m *Monitor) DimmingEnabled() bool {
	return m.dimming
}

// SetSlideshow attaches the slideshow pipeline for deep-idle force starts.
func (m *Monitor) SetSlideshow(s SlideshowStarter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slideshow = s
}

// Register adds a consumer and returns its registration handle.
func (m *Monitor) Register(name string, c wallpanel.Consumer) string {
	handle := name + "/" + uuid.NewString()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consumers[handle] = c
	return handle
}

// Deregister removes a consumer by handle. Unknown handles are ignored.
func (m *Monitor) Deregister(handle string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.consumers, handle)
}

// State returns a copy of the current activity state.
func (m *Monitor) State() wallpanel.ActivityState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// RecordActivity registers one input occurrence. Movement sources are
// throttled to one accepted event per throttle window; the return value
// reports whether the event was accepted. Any accepted event restores
// Active mode immediately.
//
// The transition and its side effects (overlay write, resume fanout) happen
// under the monitor lock, so a wake serializes behind any in-flight tick
// transition instead of interleaving with it.
func (m *Monitor) RecordActivity(source string) bool {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if isMovementSource(source) {
		if now.Sub(m.lastMovement) < m.cfg.MovementThrottle() {
			return false
		}
		m.lastMovement = now
	}

	wasLong := m.state.LongInactive
	wasInactive := m.state.Mode != wallpanel.ModeActive

	m.state.LastActivityAt = now
	m.state.LastSource = source
	m.state.Mode = wallpanel.ModeActive
	m.state.LongInactive = false
	m.state.BrightnessFactor = 1

	if wasInactive {
		m.applyOverlay(1)
		if m.log != nil {
			m.log.Infow("display_woken", "source", source, "was_long_inactive", wasLong)
		}
	}
	if wasLong {
		for _, c := range m.consumers {
			c.Resume()
		}
	}
	return true
}

// Run evaluates idle state on a periodic tick until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) {
	t := m.clock.NewTicker(m.cfg.Tick())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.Chan():
			m.evaluate(now)
		}
	}
}

// evaluate is one tick of the inactivity state machine. The lock is held
// across the transition and its pause fanout; an activity event arriving
// mid-transition waits until the whole transition has landed.
func (m *Monitor) evaluate(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elapsed := now.Sub(m.state.LastActivityAt)
	night := m.isNight(now)

	timeout := m.cfg.DayTimeout()
	if night {
		timeout = m.cfg.NightTimeout()
	}

	if m.state.Mode == wallpanel.ModeActive && elapsed > timeout {
		if night {
			m.state.Mode = wallpanel.ModeNightInactive
			m.state.BrightnessFactor = m.cfg.NightBrightness
		} else {
			m.state.Mode = wallpanel.ModeDayInactive
			m.state.BrightnessFactor = m.cfg.DayBrightness
		}
		m.applyOverlay(m.state.BrightnessFactor)
		if m.log != nil {
			m.log.Infow("inactivity_mode_entered", "mode", m.state.Mode, "elapsed", elapsed.String())
		}
	}

	// Deep idle needs the full day timeout to have elapsed, and is only
	// reachable once a (night or day) inactive mode already holds.
	if night && m.state.Mode != wallpanel.ModeActive && !m.state.LongInactive && elapsed > m.cfg.DayTimeout() {
		m.state.LongInactive = true
		if m.log != nil {
			m.log.Infow("long_inactivity_entered", "paused_consumers", len(m.consumers))
		}
		for _, c := range m.consumers {
			c.Pause()
		}
		if m.slideshow != nil {
			m.slideshow.EnsureRunning()
		}
	}
}

// applyOverlay renders overlay opacity = 1 - brightness factor.
func (m *Monitor) applyOverlay(factor float64) {
	if !m.dimming {
		return
	}
	m.renderer.SetOverlayOpacity(1 - factor)
}

// isNight reports whether now falls in the [start, end) night window,
// which normally wraps midnight.
func (m *Monitor) isNight(now time.Time) bool {
	hour := now.Hour()
	start, end := m.cfg.NightStartHour, m.cfg.NightEndHour
	if start == end {
		return false
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

func isMovementSource(source string) bool {
	return source == SourceMotion || strings.HasSuffix(source, "_move")
}
