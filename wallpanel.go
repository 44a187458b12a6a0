package wallpanel

import "time"

// Mode classifies the display's presence state.
type Mode string

const (
	ModeActive        Mode = "ACTIVE"
	ModeDayInactive   Mode = "DAY_INACTIVE"
	ModeNightInactive Mode = "NIGHT_INACTIVE"
)

// ActivityState is the current snapshot of presence tracking.
// Mutated only by the activity monitor; everyone else reads copies.
type ActivityState struct {
	Mode             Mode      `json:"mode"`                  // ACTIVE | DAY_INACTIVE | NIGHT_INACTIVE
	LongInactive     bool      `json:"long_inactive"`         // deep idle, consumers paused
	LastActivityAt   time.Time `json:"last_activity_at"`      // wall-clock time of the last accepted input
	BrightnessFactor float64   `json:"brightness_factor"`     // in [0,1]; 1 means no dimming
	LastSource       string    `json:"last_source,omitempty"` // diagnostics only
}

// Consumer is the pause/resume capability any data-driven widget exposes.
// Pause and Resume must be idempotent: repeated calls are no-ops. Both are
// invoked with the activity monitor's lock held, so they must return
// promptly and must not call back into the monitor.
type Consumer interface {
	Pause()
	Resume()
}

// Feed refresh task status values reported by the backend.
const (
	TaskRunning  = "running"
	TaskComplete = "complete"
	TaskError    = "error"
)

// UpdateStatus is the backend's answer to a check-updates poll.
type UpdateStatus struct {
	Status  string `json:"status"` // running | complete | error
	Changed bool   `json:"changed"`
}

// ActivityEvent is a single input occurrence forwarded to the monitor.
type ActivityEvent struct {
	Source     string    `json:"source"` // e.g. touch, key, pointer, motion
	OccurredAt time.Time `json:"occurred_at"`
}
