package syncpoll

import (
	"context"
	"sync"
	"time"

	"wallpanel"
	"wallpanel/internal/config"
	"wallpanel/internal/logger"

	"github.com/jonboulle/clockwork"
)

// Phase is the poller's escalation stage.
type Phase string

const (
	// PhaseFastPoll is the aggressive initial cadence while a backend
	// refresh task is expected to finish shortly.
	PhaseFastPoll Phase = "FAST_POLL"
	// PhaseSlowPoll is the steady-state cadence.
	PhaseSlowPoll Phase = "SLOW_POLL"
	// PhaseErrorBackoff means the backend could not be reached; polling
	// stays halted until the consumer is explicitly resumed.
	PhaseErrorBackoff Phase = "ERROR_BACKOFF"
)

// forceRefreshFactor: a force refresh is due when more than this many slow
// intervals have elapsed since the previous one.
const forceRefreshFactor = 2

// Backend is the slice of the backend client the poller needs.
type Backend interface {
	CheckUpdates(ctx context.Context, periodKey string) (wallpanel.UpdateStatus, error)
	ForceRefresh(ctx context.Context, periodKey string) error
}

// PeriodKeyFunc derives the feed's period key for a poll at the given time
// (e.g. "calendar-2026-08" for the month currently on screen).
type PeriodKeyFunc func(now time.Time) string

// StaticKey returns a PeriodKeyFunc for feeds with a fixed key.
func StaticKey(key string) PeriodKeyFunc {
	return func(time.Time) string { return key }
}

// MonthlyKey returns a PeriodKeyFunc producing "<prefix>-YYYY-MM".
func MonthlyKey(prefix string) PeriodKeyFunc {
	return func(now time.Time) string {
		return prefix + "-" + now.Format("2006-01")
	}
}

// Snapshot is a read-only view of the poller's bookkeeping.
type Snapshot struct {
	Feed               string
	Phase              Phase
	Paused             bool
	ReloadPending      bool
	LastForceRefreshAt time.Time
}

// Poller repeatedly asks the backend whether a feed's refresh task has
// completed, escalating through fast polling, slow polling and error
// backoff. One instance per data feed.
//
// Poller implements wallpanel.Consumer: Pause tears down all timers,
// Resume builds a fresh fast-poll session from scratch.
type Poller struct {
	feed      string
	periodKey PeriodKeyFunc
	backend   Backend
	clock     clockwork.Clock
	log       *logger.Logger
	cfg       config.Sync

	// reload is invoked (at most once per debounce window) when fresh data
	// should be shown; the host performs the full content reload and calls
	// ReloadDone when it has.
	reload func()
	// degraded is invoked when the backend becomes unreachable and the
	// display keeps showing cached data. Optional.
	degraded func(err error)

	mu               sync.Mutex
	baseCtx          context.Context
	cancel           context.CancelFunc
	phase            Phase
	paused           bool
	reloadPending    bool
	hasData          bool
	lastForceRefresh time.Time
}

// Option tweaks optional poller behavior.
type Option func(*Poller)

// WithDegradedSignal installs the cached-data callback.
func WithDegradedSignal(fn func(err error)) Option {
	return func(p *Poller) { p.degraded = fn }
}

// WithInitialData marks the feed as already having renderable content, so
// the first "complete" response only reloads when changes are reported.
func WithInitialData() Option {
	return func(p *Poller) { p.hasData = true }
}

// NewPoller builds a poller for one feed. It is inert until Start.
func NewPoller(feed string, key PeriodKeyFunc, b Backend, clock clockwork.Clock,
	cfg config.Sync, reload func(), log *logger.Logger, opts ...Option) *Poller {
	p := &Poller{
		feed:      feed,
		periodKey: key,
		backend:   b,
		clock:     clock,
		log:       log,
		cfg:       cfg,
		reload:    reload,
		phase:     PhaseFastPoll,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start begins the first fast-poll session. ctx is retained as the parent
// for every later session (Resume reuses it). No-op if already running.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	p.baseCtx = ctx
	if p.cancel != nil || p.paused {
		p.mu.Unlock()
		return
	}
	sctx := p.beginSessionLocked()
	p.mu.Unlock()

	go p.run(sctx)
}

// Pause implements wallpanel.Consumer. It tears down the poll timer and the
// watchdog. Phase bookkeeping beyond the paused mark is discarded with the
// session. Idempotent.
func (p *Poller) Pause() {
	p.mu.Lock()
	if p.paused {
		p.mu.Unlock()
		return
	}
	p.paused = true
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if p.log != nil {
		p.log.Infow("poller_paused", "feed", p.feed)
	}
}

// Resume implements wallpanel.Consumer. A fresh fast-poll session is built
// from scratch; nothing of the previous session's phase or watchdog
// survives the pause boundary. Also the only way out of ERROR_BACKOFF.
// Idempotent while a session is running.
func (p *Poller) Resume() {
	p.mu.Lock()
	p.paused = false
	if p.cancel != nil || p.baseCtx == nil {
		p.mu.Unlock()
		return
	}
	sctx := p.beginSessionLocked()
	p.mu.Unlock()

	if p.log != nil {
		p.log.Infow("poller_resumed", "feed", p.feed)
	}
	go p.run(sctx)
}

// ReloadDone clears the reload debounce; the host calls it once the content
// reload actually happened.
func (p *Poller) ReloadDone() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reloadPending = false
}

// Snapshot returns the current bookkeeping for diagnostics and tests.
func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		Feed:               p.feed,
		Phase:              p.phase,
		Paused:             p.paused,
		ReloadPending:      p.reloadPending,
		LastForceRefreshAt: p.lastForceRefresh,
	}
}

// beginSessionLocked resets phase state and allocates the session context.
func (p *Poller) beginSessionLocked() context.Context {
	sctx, cancel := context.WithCancel(p.baseCtx)
	p.cancel = cancel
	p.phase = PhaseFastPoll
	return sctx
}

// run is one poll session: a fast ticker, a watchdog, and an immediate
// first query. It exits when the session context is canceled (pause,
// network failure, shutdown).
func (p *Poller) run(ctx context.Context) {
	tick := p.clock.NewTicker(p.cfg.FastInterval())
	defer tick.Stop()
	watchdog := p.clock.NewTimer(p.cfg.WatchdogWindow())
	defer watchdog.Stop()

	p.pollOnce(ctx, tick, watchdog)
	for {
		select {
		case <-ctx.Done():
			return
		case <-watchdog.Chan():
			p.onWatchdog(tick)
		case <-tick.Chan():
			p.pollOnce(ctx, tick, watchdog)
		}
	}
}

// pollOnce performs one cadence step: an optional due force refresh, then a
// status query, then the phase transition for the reported status.
func (p *Poller) pollOnce(ctx context.Context, tick clockwork.Ticker, watchdog clockwork.Timer) {
	now := p.clock.Now()
	key := p.periodKey(now)

	p.mu.Lock()
	phase := p.phase
	pending := p.reloadPending
	forceDue := phase == PhaseSlowPoll && now.Sub(p.lastForceRefresh) > forceRefreshFactor*p.cfg.SlowInterval()
	p.mu.Unlock()

	// A reload is already on its way to the host; querying again before the
	// navigation happens only risks duplicate triggers.
	if pending {
		return
	}

	if forceDue {
		if err := p.backend.ForceRefresh(ctx, key); err != nil {
			p.failSession(err)
			return
		}
		p.mu.Lock()
		p.lastForceRefresh = now
		p.mu.Unlock()
		if p.log != nil {
			p.log.Infow("force_refresh_sent", "feed", p.feed, "period_key", key)
		}
	}

	status, err := p.backend.CheckUpdates(ctx, key)
	if err != nil {
		p.failSession(err)
		return
	}
	p.handleStatus(status, tick, watchdog)
}

// handleStatus applies the transition rules for a backend-reported status.
func (p *Poller) handleStatus(status wallpanel.UpdateStatus, tick clockwork.Ticker, watchdog clockwork.Timer) {
	switch status.Status {
	case wallpanel.TaskRunning:
		// Stay in the current phase; the existing cadence retries.

	case wallpanel.TaskComplete:
		p.mu.Lock()
		if p.phase == PhaseFastPoll {
			watchdog.Stop()
			tick.Reset(p.cfg.SlowInterval())
			p.phase = PhaseSlowPoll
			// A completed task is as fresh as a forced one.
			p.lastForceRefresh = p.clock.Now()
		}
		shouldReload := status.Changed || !p.hasData
		p.hasData = true
		p.mu.Unlock()

		if shouldReload {
			p.triggerReload("task_complete")
		}

	case wallpanel.TaskError:
		// Resolved-but-failed: leave the fast loop so a stuck task cannot
		// keep us hammering, keep current data, let the slow cadence retry.
		p.mu.Lock()
		if p.phase == PhaseFastPoll {
			watchdog.Stop()
			tick.Reset(p.cfg.SlowInterval())
			p.phase = PhaseSlowPoll
			p.lastForceRefresh = p.clock.Now()
		}
		p.mu.Unlock()
		if p.log != nil {
			p.log.Warnw("refresh_task_failed", "feed", p.feed)
		}
	}
}

// onWatchdog fires when no terminal status arrived within the fast-poll
// window: force a hard content refresh and drop to the slow cadence.
func (p *Poller) onWatchdog(tick clockwork.Ticker) {
	p.mu.Lock()
	if p.phase != PhaseFastPoll {
		p.mu.Unlock()
		return
	}
	tick.Reset(p.cfg.SlowInterval())
	p.phase = PhaseSlowPoll
	p.lastForceRefresh = p.clock.Now()
	p.mu.Unlock()

	if p.log != nil {
		p.log.Warnw("watchdog_expired", "feed", p.feed, "window", p.cfg.WatchdogWindow().String())
	}
	p.triggerReload("watchdog")
}

// triggerReload fires the reload callback unless a reload is already
// pending. The debounce holds until the host calls ReloadDone.
func (p *Poller) triggerReload(reason string) {
	p.mu.Lock()
	if p.reloadPending {
		p.mu.Unlock()
		return
	}
	p.reloadPending = true
	p.mu.Unlock()

	if p.log != nil {
		p.log.Infow("reload_triggered", "feed", p.feed, "reason", reason)
	}
	if p.reload != nil {
		p.reload()
	}
}

// failSession halts the cadence after a network-level (or undecodable
// response) failure. The poller stays in ERROR_BACKOFF, showing cached
// data, until the consumer is explicitly resumed; it never self-heals by
// re-polling an unreachable backend.
func (p *Poller) failSession(err error) {
	p.mu.Lock()
	p.phase = PhaseErrorBackoff
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if p.log != nil {
		p.log.Errorw("poll_degraded_to_cached_data", "feed", p.feed, "err", err)
	}
	if p.degraded != nil {
		p.degraded(err)
	}
}
