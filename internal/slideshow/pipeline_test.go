package slideshow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wallpanel/internal/config"
	"wallpanel/internal/render"

	"github.com/jonboulle/clockwork"
)

func testSlideshowConfig() config.Slideshow {
	return config.Slideshow{
		DwellSeconds:        3600, // keep the background loop quiet in tests
		FadeMillis:          1,
		FadeGapMillis:       1,
		PrefetchLeadSeconds: 5,
		MaxDuplicateRetries: 5,
	}
}

// scriptedSource replays asset URLs; the last one repeats.
type scriptedSource struct {
	mu    sync.Mutex
	urls  []string
	err   error
	calls int
}

func (s *scriptedSource) RandomAsset(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	i := s.calls
	if i >= len(s.urls) {
		i = len(s.urls) - 1
	}
	s.calls++
	return s.urls[i], nil
}

func (s *scriptedSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// stubFetcher records decode requests and can be told to fail.
type stubFetcher struct {
	mu      sync.Mutex
	err     error
	decoded []string
}

func (f *stubFetcher) FetchDecoded(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.decoded = append(f.decoded, url)
	return nil
}

// surfaceRecorder is a Renderer double tracking surface lifecycle and the
// order of image/opacity writes.
type surfaceRecorder struct {
	mu       sync.Mutex
	attached bool
	attaches int
	detaches int
	images   map[render.Slot]string
	shown    []string // URLs in the order they were revealed (opacity -> 1)
	ops      []string
}

func newSurfaceRecorder() *surfaceRecorder {
	return &surfaceRecorder{images: make(map[render.Slot]string)}
}

func (r *surfaceRecorder) SetOverlayOpacity(float64)     {}
func (r *surfaceRecorder) SetFadeDuration(time.Duration) {}

func (r *surfaceRecorder) AttachSurfaces() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.attached {
		return errors.New("surfaces already attached")
	}
	r.attached = true
	r.attaches++
	return nil
}

func (r *surfaceRecorder) DetachSurfaces() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.attached {
		r.attached = false
		r.detaches++
	}
}

func (r *surfaceRecorder) SetSurfaceImage(slot render.Slot, url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.images[slot] = url
	r.ops = append(r.ops, "image")
}

func (r *surfaceRecorder) SetSurfaceOpacity(slot render.Slot, opacity float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if opacity == 1 {
		r.shown = append(r.shown, r.images[slot])
	}
	r.ops = append(r.ops, "opacity")
}

func (r *surfaceRecorder) shownSequence() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.shown))
	copy(out, r.shown)
	return out
}

func (r *surfaceRecorder) surfaceCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.attached {
		return 2
	}
	return 0
}

func newTestPipeline(src AssetSource, f ImageFetcher, r render.Renderer) *Pipeline {
	return NewPipeline(testSlideshowConfig(), clockwork.NewRealClock(), src, f, r, nil)
}

func TestPipeline_DuplicateAvoidance(t *testing.T) {
	// Backend hands out A, then A again, then B. The second cycle must
	// retry past the duplicate and reveal B, never A twice in a row.
	src := &scriptedSource{urls: []string{"A", "A", "B"}}
	rec := newSurfaceRecorder()
	p := newTestPipeline(src, &stubFetcher{}, rec)
	ctx := context.Background()

	p.advance(ctx)
	p.advance(ctx)

	want := []string{"A", "B"}
	got := rec.shownSequence()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("visible sequence: want %v, got %v", want, got)
	}
	// Three source calls: A, duplicate A, B.
	if src.callCount() != 3 {
		t.Errorf("source calls: want 3, got %d", src.callCount())
	}
}

func TestPipeline_DuplicateRetriesExhaustedAcceptsDuplicate(t *testing.T) {
	src := &scriptedSource{urls: []string{"A"}}
	rec := newSurfaceRecorder()
	p := newTestPipeline(src, &stubFetcher{}, rec)
	ctx := context.Background()

	p.advance(ctx)
	calls := src.callCount()
	p.advance(ctx)

	// Bounded retries, then the duplicate is accepted rather than stalling.
	if got := src.callCount() - calls; got != testSlideshowConfig().MaxDuplicateRetries {
		t.Errorf("retry attempts: want %d, got %d", testSlideshowConfig().MaxDuplicateRetries, got)
	}
	got := rec.shownSequence()
	if len(got) != 2 || got[1] != "A" {
		t.Fatalf("exhausted retries must still show the duplicate, got %v", got)
	}
}

func TestPipeline_DecodeBeforeReveal(t *testing.T) {
	src := &scriptedSource{urls: []string{"A"}}
	fetcher := &stubFetcher{}
	rec := newSurfaceRecorder()
	p := newTestPipeline(src, fetcher, rec)

	p.advance(context.Background())

	if len(fetcher.decoded) != 1 || fetcher.decoded[0] != "A" {
		t.Fatalf("image must be decoded exactly once before reveal, got %v", fetcher.decoded)
	}
	// No surface op may precede the decode: the first recorded op happens
	// after FetchDecoded returned, so a decode failure would leave ops empty
	// (verified separately below).
	if len(rec.ops) == 0 {
		t.Fatalf("expected surface operations after a successful decode")
	}
}

func TestPipeline_FailedCycleKeepsCurrentImage(t *testing.T) {
	src := &scriptedSource{urls: []string{"A", "B"}}
	fetcher := &stubFetcher{}
	rec := newSurfaceRecorder()
	p := newTestPipeline(src, fetcher, rec)
	ctx := context.Background()

	p.advance(ctx)

	// Next cycle's decode fails: the cycle is skipped, A stays visible.
	fetcher.err = errors.New("decode failed")
	p.advance(ctx)

	got := rec.shownSequence()
	if len(got) != 1 || got[0] != "A" {
		t.Fatalf("failed cycle must keep the current image, got %v", got)
	}
}

func TestPipeline_PrefetchSkipsFetchOnNextCycle(t *testing.T) {
	src := &scriptedSource{urls: []string{"A", "B"}}
	rec := newSurfaceRecorder()
	p := newTestPipeline(src, &stubFetcher{}, rec)
	ctx := context.Background()

	p.advance(ctx) // shows A

	p.prefetch(ctx)
	calls := src.callCount()

	// The prefetched image carries the next cycle without a new fetch.
	p.advance(ctx)
	if src.callCount() != calls {
		t.Errorf("cycle with a decoded pending image must not fetch, calls %d -> %d",
			calls, src.callCount())
	}
	got := rec.shownSequence()
	if len(got) != 2 || got[1] != "B" {
		t.Fatalf("visible sequence: want [A B], got %v", got)
	}

	// The pending image is consumed, not reused.
	if p.takePending() != "" {
		t.Errorf("pending image must be consumed by the cycle")
	}
}

func TestPipeline_StopThenStartDoesNotLeakSurfaces(t *testing.T) {
	src := &scriptedSource{urls: []string{"A"}}
	rec := newSurfaceRecorder()
	p := newTestPipeline(src, &stubFetcher{}, rec)
	ctx := context.Background()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	p.Stop()
	p.Stop() // idempotent

	if err := p.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer p.Stop()

	if got := rec.surfaceCount(); got != 2 {
		t.Fatalf("surfaces after re-init: want exactly 2, got %d", got)
	}
	if rec.attaches != 2 || rec.detaches != 1 {
		t.Errorf("attach/detach: want 2/1, got %d/%d", rec.attaches, rec.detaches)
	}
}

func TestPipeline_EnsureRunningForceStarts(t *testing.T) {
	src := &scriptedSource{urls: []string{"A"}}
	rec := newSurfaceRecorder()
	p := newTestPipeline(src, &stubFetcher{}, rec)
	ctx := context.Background()

	// Not started yet and no retained context: nothing happens.
	p.EnsureRunning()
	if p.Running() {
		t.Fatalf("EnsureRunning before any Start must be a no-op")
	}

	if err := p.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	p.Stop()

	p.EnsureRunning()
	defer p.Stop()
	if !p.Running() {
		t.Fatalf("EnsureRunning after Stop must restart the pipeline")
	}
}
