package render

import (
	"errors"
	"sync"
	"time"

	"wallpanel/internal/logger"
)

// sendBuffer is the per-shell outbound queue depth. Render commands are tiny
// and bursty (a fade is three commands); a slow shell that falls further
// behind than this starts losing frames rather than blocking the core.
const sendBuffer = 32

var errSurfacesAttached = errors.New("surfaces already attached")

// surfaceState mirrors what a shell should currently display.
type surfaceState struct {
	URL     string
	Opacity float64
}

// Hub implements Renderer by broadcasting commands to every connected
// display shell. It keeps the last-known visual state so a shell that
// (re)connects mid-session is brought up to date before receiving live
// commands.
type Hub struct {
	mu    sync.Mutex
	log   *logger.Logger
	conns map[string]chan Command

	overlay  float64
	fade     time.Duration
	attached bool
	surfaces [2]surfaceState
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:   log,
		conns: make(map[string]chan Command),
	}
}

// Join registers a display shell and returns its outbound command stream.
// The current visual state is replayed onto the stream first.
func (h *Hub) Join(sessionID string) <-chan Command {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Command, sendBuffer)
	for _, cmd := range h.snapshotLocked() {
		ch <- cmd
	}
	h.conns[sessionID] = ch
	return ch
}

// Leave deregisters a shell. Idempotent.
func (h *Hub) Leave(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.conns[sessionID]; ok {
		delete(h.conns, sessionID)
		close(ch)
	}
}

// ShellCount reports connected display shells (diagnostics).
func (h *Hub) ShellCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// snapshotLocked builds the command sequence reproducing current state.
func (h *Hub) snapshotLocked() []Command {
	cmds := []Command{
		{Type: CmdFadeDuration, Data: FadeDurationData{DurationMillis: h.fade.Milliseconds()}},
		{Type: CmdOverlay, Data: OverlayData{Opacity: h.overlay}},
	}
	if h.attached {
		cmds = append(cmds, Command{Type: CmdAttachSurfaces})
		for slot, s := range h.surfaces {
			cmds = append(cmds,
				Command{Type: CmdSurfaceImage, Data: SurfaceImageData{Slot: Slot(slot), URL: s.URL}},
				Command{Type: CmdSurfaceOpacity, Data: SurfaceOpacityData{Slot: Slot(slot), Opacity: s.Opacity}},
			)
		}
	}
	return cmds
}

// broadcastLocked fans out one command, dropping it for shells whose queue
// is full. The snapshot replay on reconnect repairs any lost state.
func (h *Hub) broadcastLocked(cmd Command) {
	for id, ch := range h.conns {
		select {
		case ch <- cmd:
		default:
			if h.log != nil {
				h.log.Warnw("render_shell_lagging", "session", id, "cmd", cmd.Type)
			}
		}
	}
}

// NotifyReload tells shells to perform a full content reload for a feed.
// Not part of the Renderer port; it is the host side of the pollers'
// reload trigger.
func (h *Hub) NotifyReload(feed string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastLocked(Command{Type: CmdReload, Data: FeedData{Feed: feed}})
}

// NotifyDegraded surfaces the "using cached data" toast for a feed.
func (h *Hub) NotifyDegraded(feed string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastLocked(Command{Type: CmdDegraded, Data: FeedData{Feed: feed}})
}

// --- Renderer implementation ---

func (h *Hub) SetOverlayOpacity(opacity float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.overlay = opacity
	h.broadcastLocked(Command{Type: CmdOverlay, Data: OverlayData{Opacity: opacity}})
}

func (h *Hub) SetFadeDuration(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fade = d
	h.broadcastLocked(Command{Type: CmdFadeDuration, Data: FadeDurationData{DurationMillis: d.Milliseconds()}})
}

func (h *Hub) AttachSurfaces() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.attached {
		return errSurfacesAttached
	}
	h.attached = true
	h.surfaces = [2]surfaceState{}
	h.broadcastLocked(Command{Type: CmdAttachSurfaces})
	return nil
}

func (h *Hub) DetachSurfaces() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.attached {
		return
	}
	h.attached = false
	h.surfaces = [2]surfaceState{}
	h.broadcastLocked(Command{Type: CmdDetachSurfaces})
}

func (h *Hub) SetSurfaceImage(slot Slot, url string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.attached {
		return
	}
	h.surfaces[slot].URL = url
	h.broadcastLocked(Command{Type: CmdSurfaceImage, Data: SurfaceImageData{Slot: slot, URL: url}})
}

func (h *Hub) SetSurfaceOpacity(slot Slot, opacity float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.attached {
		return
	}
	h.surfaces[slot].Opacity = opacity
	h.broadcastLocked(Command{Type: CmdSurfaceOpacity, Data: SurfaceOpacityData{Slot: slot, Opacity: opacity}})
}
