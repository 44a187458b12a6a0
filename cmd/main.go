package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wallpanel/internal/activity"
	"wallpanel/internal/auth"
	"wallpanel/internal/backend"
	"wallpanel/internal/config"
	"wallpanel/internal/handlers"
	"wallpanel/internal/logger"
	"wallpanel/internal/render"
	"wallpanel/internal/server"
	"wallpanel/internal/slideshow"
	"wallpanel/internal/syncpoll"

	"github.com/jonboulle/clockwork"
)

const remoteConfigTries = 5

func main() {
	// load config.yml first; the log level comes from it
	cfg, err := config.Load()
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}
	log := logger.Get(cfg.LogLevel)

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewRealClock()
	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout(), nil)

	// merge backend-served tunables over the local config; local values
	// stand when the backend is not up yet
	if remote, err := client.RemoteConfigWithRetry(ctx, remoteConfigTries); err != nil {
		log.Warnw("remote config unavailable; using local values", "err", err)
	} else {
		cfg.Merge(remote)
	}

	// wire dependencies
	hub := render.NewHub(log)
	monitor := activity.NewMonitor(cfg.Inactivity, clock, hub, log)

	fetcher := slideshow.NewHTTPFetcher(cfg.Backend.Timeout())
	show := slideshow.NewPipeline(cfg.Slideshow, clock, client, fetcher, hub, log)
	monitor.SetSlideshow(show)

	pollers := buildPollers(cfg.Sync, client, clock, hub, log)
	for name, p := range pollers {
		monitor.Register(name, p)
	}

	pairing := auth.NewPairingService(cfg.Auth, clock)
	apiHandler := handlers.NewHandler(pairing, monitor, hub, log)
	apiHandler.OnShellConnected(func() {
		// a shell (re)connecting means any pending content reload landed
		for _, p := range pollers {
			p.ReloadDone()
		}
	})

	// start background components
	go monitor.Run(ctx)
	for _, p := range pollers {
		p.Start(ctx)
	}
	if err := show.Start(ctx); err != nil {
		log.Warnw("slideshow disabled", "err", err)
	}

	// start HTTP server
	srv := &server.Server{}
	go func() {
		if err := srv.Run(cfg.Port, apiHandler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()

	waitForShutdown(cancel, srv, show, log)
}

// buildPollers creates one sync poller per data feed. The calendar feed
// keys its refresh tasks by the month on screen; the task list uses a
// fixed key.
func buildPollers(cfg config.Sync, client *backend.Client, clock clockwork.Clock,
	hub *render.Hub, log *logger.Logger) map[string]*syncpoll.Poller {
	feeds := map[string]syncpoll.PeriodKeyFunc{
		"calendar": syncpoll.MonthlyKey("calendar"),
		"tasks":    syncpoll.StaticKey("tasks"),
	}

	pollers := make(map[string]*syncpoll.Poller, len(feeds))
	for name, key := range feeds {
		feed := name
		pollers[feed] = syncpoll.NewPoller(feed, key, client, clock, cfg,
			func() { hub.NotifyReload(feed) },
			log,
			syncpoll.WithDegradedSignal(func(error) { hub.NotifyDegraded(feed) }),
		)
	}
	return pollers
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, show *slideshow.Pipeline, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down...")

	// stop background goroutines and release the display surfaces
	show.Stop()
	cancel()

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}
}
