package slideshow

import (
	"context"
	"sync"
	"time"

	"wallpanel/internal/config"
	"wallpanel/internal/logger"
	"wallpanel/internal/render"

	"github.com/jonboulle/clockwork"
)

// AssetSource supplies the next image reference to display.
// The backend client satisfies it.
type AssetSource interface {
	RandomAsset(ctx context.Context) (string, error)
}

// pendingImage is the one prefetched-but-not-yet-shown image.
type pendingImage struct {
	url     string
	decoded bool
}

// Pipeline cycles the full-bleed background image through two alternating
// surfaces with prefetching, duplicate avoidance and a two-step fade.
//
// The two surfaces animate opacity sequentially (fade out, short gap, fade
// in) rather than simultaneously; animating both at once fights the shell's
// compositor.
type Pipeline struct {
	clock    clockwork.Clock
	log      *logger.Logger
	cfg      config.Slideshow
	source   AssetSource
	fetcher  ImageFetcher
	renderer render.Renderer

	mu      sync.Mutex
	baseCtx context.Context
	cancel  context.CancelFunc
	running bool
	visible render.Slot // slot currently at opacity 1
	current string      // URL on the visible slot
	pending *pendingImage
}

func NewPipeline(cfg config.Slideshow, clock clockwork.Clock, source AssetSource,
	fetcher ImageFetcher, renderer render.Renderer, log *logger.Logger) *Pipeline {
	return &Pipeline{
		clock:    clock,
		log:      log,
		cfg:      cfg,
		source:   source,
		fetcher:  fetcher,
		renderer: renderer,
		visible:  render.SlotA,
	}
}

// Start attaches the two surfaces and begins the dwell cycle. ctx is
// retained for later restarts via EnsureRunning. Failure to acquire the
// surfaces disables the slideshow without affecting anything else.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	p.baseCtx = ctx
	if p.running {
		p.mu.Unlock()
		return nil
	}
	if err := p.renderer.AttachSurfaces(); err != nil {
		p.mu.Unlock()
		return err
	}
	p.renderer.SetFadeDuration(p.cfg.Fade())
	sctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.visible = render.SlotA
	p.current = ""
	p.pending = nil
	p.mu.Unlock()

	go p.run(sctx)
	return nil
}

// Stop cancels the dwell and prefetch timers, clears both surfaces' image
// references and detaches them. Idempotent; a later Start rebuilds
// everything, so repeated deep-idle enter/exit cycles do not leak surfaces.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.cancel = nil
	p.pending = nil
	p.current = ""
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.renderer.SetSurfaceImage(render.SlotA, "")
	p.renderer.SetSurfaceImage(render.SlotB, "")
	p.renderer.DetachSurfaces()
	if p.log != nil {
		p.log.Infow("slideshow_stopped")
	}
}

// EnsureRunning force-starts the pipeline if it is not already cycling.
// Called by the activity monitor when the display enters deep idle.
func (p *Pipeline) EnsureRunning() {
	p.mu.Lock()
	running, ctx := p.running, p.baseCtx
	p.mu.Unlock()
	if running || ctx == nil {
		return
	}
	if err := p.Start(ctx); err != nil && p.log != nil {
		p.log.Errorw("slideshow_force_start_failed", "err", err)
	}
}

// Running reports whether the cycle is active.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// run shows a first image immediately, then advances every dwell interval,
// prefetching the following image a fixed lead before each next cycle.
func (p *Pipeline) run(ctx context.Context) {
	p.advance(ctx)

	tick := p.clock.NewTicker(p.cfg.Dwell())
	defer tick.Stop()
	prefetch := p.clock.NewTimer(p.cfg.Dwell() - p.cfg.PrefetchLead())
	defer prefetch.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-prefetch.Chan():
			p.prefetch(ctx)
		case <-tick.Chan():
			p.advance(ctx)
			prefetch.Reset(p.cfg.Dwell() - p.cfg.PrefetchLead())
		}
	}
}

// advance is one transition cycle. A decoded pending image lets it skip
// straight to the transition; otherwise it fetches and decodes inline. Any
// failure skips the cycle and keeps the current image; the interval timer
// is unaffected.
func (p *Pipeline) advance(ctx context.Context) {
	next := p.takePending()
	if next == "" {
		url, err := p.fetchNext(ctx)
		if err != nil {
			if p.log != nil {
				p.log.Warnw("slideshow_cycle_skipped", "err", err)
			}
			return
		}
		next = url
	}
	p.transition(ctx, next)
}

// prefetch asynchronously prepares the next cycle's image. On failure the
// next cycle simply falls back to a synchronous fetch.
func (p *Pipeline) prefetch(ctx context.Context) {
	p.mu.Lock()
	if p.pending != nil {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	url, err := p.fetchNext(ctx)
	if err != nil {
		if p.log != nil {
			p.log.Debugw("slideshow_prefetch_failed", "err", err)
		}
		return
	}

	p.mu.Lock()
	p.pending = &pendingImage{url: url, decoded: true}
	p.mu.Unlock()
}

// takePending consumes the prefetched image if it is ready.
func (p *Pipeline) takePending() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil || !p.pending.decoded {
		return ""
	}
	url := p.pending.url
	p.pending = nil
	return url
}

// fetchNext picks a candidate reference, retrying a bounded number of times
// when the candidate matches the image already on screen, then confirms it
// decodes. On exhausting the retries the duplicate is accepted rather than
// stalling the cycle.
func (p *Pipeline) fetchNext(ctx context.Context) (string, error) {
	p.mu.Lock()
	current := p.current
	p.mu.Unlock()

	var url string
	for attempt := 0; attempt < p.cfg.MaxDuplicateRetries; attempt++ {
		candidate, err := p.source.RandomAsset(ctx)
		if err != nil {
			return "", err
		}
		url = candidate
		if url != current {
			break
		}
	}

	if err := p.fetcher.FetchDecoded(ctx, url); err != nil {
		return "", err
	}
	return url, nil
}

// transition runs the two-step fade: stage the new image on the hidden
// surface at opacity 0, fade the visible surface out, wait a short gap,
// fade the new surface in, then clear the old surface and swap roles.
func (p *Pipeline) transition(ctx context.Context, url string) {
	p.mu.Lock()
	visible := p.visible
	p.mu.Unlock()

	hidden := otherSlot(visible)

	p.renderer.SetSurfaceImage(hidden, url)
	p.renderer.SetSurfaceOpacity(hidden, 0)

	p.renderer.SetSurfaceOpacity(visible, 0)
	if !p.sleep(ctx, p.cfg.FadeGap()) {
		return
	}
	p.renderer.SetSurfaceOpacity(hidden, 1)
	if !p.sleep(ctx, p.cfg.Fade()) {
		return
	}
	p.renderer.SetSurfaceImage(visible, "")

	p.mu.Lock()
	p.visible = hidden
	p.current = url
	p.mu.Unlock()
}

// sleep waits d on the injected clock, returning false if the session was
// canceled meanwhile.
func (p *Pipeline) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-p.clock.After(d):
		return true
	}
}

func otherSlot(s render.Slot) render.Slot {
	if s == render.SlotA {
		return render.SlotB
	}
	return render.SlotA
}
