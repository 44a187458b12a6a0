package render

import "time"

// Slot identifies one of the two slideshow presentation surfaces.
type Slot int

const (
	SlotA Slot = iota
	SlotB
)

// Renderer is the rendering port every visual effect goes through.
// The production implementation pushes commands to connected display shells
// over a WebSocket (see Hub); tests plug in recording doubles.
//
// Opacity updates must replace the previous value atomically and the shell
// animates them over the declared fade duration, never as an instant jump.
type Renderer interface {
	// SetOverlayOpacity drives the dimming overlay. 0 removes it.
	SetOverlayOpacity(opacity float64)

	// SetFadeDuration declares the transition time shells apply to
	// subsequent opacity changes.
	SetFadeDuration(d time.Duration)

	// AttachSurfaces creates the two slideshow surfaces. Calling it while
	// surfaces exist is an error; Detach first.
	AttachSurfaces() error

	// DetachSurfaces destroys both surfaces and their image references.
	// Safe to call when nothing is attached.
	DetachSurfaces()

	// SetSurfaceImage assigns (or clears, with "") a surface's image URL.
	SetSurfaceImage(slot Slot, url string)

	// SetSurfaceOpacity fades a surface toward the given opacity.
	SetSurfaceOpacity(slot Slot, opacity float64)
}

// Command is one render instruction pushed to display shells.
type Command struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Command types understood by the display shell.
const (
	CmdOverlay        = "overlay"
	CmdFadeDuration   = "fade_duration"
	CmdAttachSurfaces = "surfaces_attach"
	CmdDetachSurfaces = "surfaces_detach"
	CmdSurfaceImage   = "surface_image"
	CmdSurfaceOpacity = "surface_opacity"
	CmdReload         = "reload"   // perform a full content reload
	CmdDegraded       = "degraded" // show the "using cached data" toast
)

// Command payloads.
type (
	OverlayData struct {
		Opacity float64 `json:"opacity"`
	}
	FadeDurationData struct {
		DurationMillis int64 `json:"duration_ms"`
	}
	SurfaceImageData struct {
		Slot Slot   `json:"slot"`
		URL  string `json:"url"`
	}
	SurfaceOpacityData struct {
		Slot    Slot    `json:"slot"`
		Opacity float64 `json:"opacity"`
	}
	FeedData struct {
		Feed string `json:"feed"`
	}
)
