package render

import (
	"testing"
	"time"
)

func drain(ch <-chan Command) []Command {
	var out []Command
	for {
		select {
		case cmd, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, cmd)
		default:
			return out
		}
	}
}

func TestHub_JoinReplaysState(t *testing.T) {
	h := NewHub(nil)
	h.SetFadeDuration(time.Second)
	h.SetOverlayOpacity(0.4)
	if err := h.AttachSurfaces(); err != nil {
		t.Fatalf("attach: %v", err)
	}
	h.SetSurfaceImage(SlotA, "/photos/a.jpg")
	h.SetSurfaceOpacity(SlotA, 1)

	// A shell connecting now receives the full state before live commands.
	cmds := drain(h.Join("late-shell"))

	wantTypes := []string{
		CmdFadeDuration, CmdOverlay, CmdAttachSurfaces,
		CmdSurfaceImage, CmdSurfaceOpacity, // slot A
		CmdSurfaceImage, CmdSurfaceOpacity, // slot B
	}
	if len(cmds) != len(wantTypes) {
		t.Fatalf("replay length: want %d, got %d (%v)", len(wantTypes), len(cmds), cmds)
	}
	for i, want := range wantTypes {
		if cmds[i].Type != want {
			t.Errorf("replay[%d]: want %s, got %s", i, want, cmds[i].Type)
		}
	}
	if data := cmds[1].Data.(OverlayData); data.Opacity != 0.4 {
		t.Errorf("replayed overlay: want 0.4, got %v", data.Opacity)
	}
	if data := cmds[3].Data.(SurfaceImageData); data.Slot != SlotA || data.URL != "/photos/a.jpg" {
		t.Errorf("replayed image: got %+v", data)
	}
}

func TestHub_BroadcastReachesAllShells(t *testing.T) {
	h := NewHub(nil)
	a := h.Join("shell-a")
	b := h.Join("shell-b")
	drain(a)
	drain(b)

	h.SetOverlayOpacity(0.8)
	h.NotifyReload("calendar")
	h.NotifyDegraded("tasks")

	for name, ch := range map[string]<-chan Command{"shell-a": a, "shell-b": b} {
		got := drain(ch)
		if len(got) != 3 {
			t.Fatalf("%s: want 3 commands, got %d", name, len(got))
		}
		if got[0].Type != CmdOverlay || got[1].Type != CmdReload || got[2].Type != CmdDegraded {
			t.Errorf("%s: unexpected sequence %v", name, got)
		}
		if data := got[1].Data.(FeedData); data.Feed != "calendar" {
			t.Errorf("%s: reload feed: got %q", name, data.Feed)
		}
	}
}

func TestHub_LeaveClosesStreamIdempotently(t *testing.T) {
	h := NewHub(nil)
	ch := h.Join("shell")
	drain(ch)

	h.Leave("shell")
	h.Leave("shell") // second leave is a no-op

	if _, ok := <-ch; ok {
		t.Fatalf("stream must be closed after leave")
	}
	if got := h.ShellCount(); got != 0 {
		t.Errorf("shell count: want 0, got %d", got)
	}

	// Commands after leave do not panic and reach nobody.
	h.SetOverlayOpacity(0.5)
}

func TestHub_SlowShellDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub(nil)
	ch := h.Join("stalled-shell")
	drain(ch)

	// Overfill the queue; the hub must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < sendBuffer+10; i++ {
			h.SetOverlayOpacity(float64(i%2) / 2)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("broadcast blocked on a stalled shell")
	}
	if got := len(drain(ch)); got != sendBuffer {
		t.Errorf("queued commands: want %d, got %d", sendBuffer, got)
	}
}

func TestHub_AttachGuards(t *testing.T) {
	h := NewHub(nil)

	// Surface writes before attach are ignored.
	h.SetSurfaceImage(SlotA, "/photos/early.jpg")
	ch := h.Join("shell")
	replay := drain(ch)
	for _, cmd := range replay {
		if cmd.Type == CmdSurfaceImage {
			t.Fatalf("surface state leaked before attach: %v", cmd)
		}
	}

	if err := h.AttachSurfaces(); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := h.AttachSurfaces(); err == nil {
		t.Fatalf("double attach must fail")
	}

	// Detach clears surface state; a fresh attach starts blank.
	h.SetSurfaceImage(SlotB, "/photos/b.jpg")
	h.DetachSurfaces()
	h.DetachSurfaces() // idempotent
	if err := h.AttachSurfaces(); err != nil {
		t.Fatalf("re-attach: %v", err)
	}

	drain(ch)
	fresh := drain(h.Join("fresh-shell"))
	for _, cmd := range fresh {
		if data, ok := cmd.Data.(SurfaceImageData); ok && data.URL != "" {
			t.Errorf("stale surface image survived detach: %+v", data)
		}
	}
}
