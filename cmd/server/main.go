package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/gongo/emacs-realtime-markdown-viewer/internal/adapter/httpserver"
	"github.com/gongo/emacs-realtime-markdown-viewer/internal/adapter/metrics"
	"github.com/gongo/emacs-realtime-markdown-viewer/internal/app"
	"github.com/gongo/emacs-realtime-markdown-viewer/internal/broadcast"
	"github.com/gongo/emacs-realtime-markdown-viewer/internal/platform/config"
	"github.com/gongo/emacs-realtime-markdown-viewer/internal/platform/logging"
	"github.com/gongo/emacs-realtime-markdown-viewer/internal/platform/version"
	"github.com/gongo/emacs-realtime-markdown-viewer/internal/render"
	"github.com/jonboulle/clockwork"
)

const shutdownReason = "server shutting down"

func runGracefulShutdown(cfg *config.Config, srv *httpserver.Server, relay *app.Service, stopWatch context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		relay.Shutdown(shutdownReason)
		stopWatch()

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// setupRenderer loads render options from cfg.RenderConfig, if set, and keeps
// them in sync with the file. The returned health check fails once the
// watcher has stopped on an error.
func setupRenderer(ctx context.Context, cfg *config.Config, m *metrics.RenderMetrics) (*render.Renderer, httpserver.HealthCheck) {
	opts := render.DefaultOptions()
	if cfg.RenderConfig != "" {
		loaded, err := render.LoadOptions(cfg.RenderConfig)
		if err != nil {
			slog.Error("Failed to load render options", "path", cfg.RenderConfig, "error", err)
			os.Exit(1)
		}
		opts = loaded
	}

	renderer := render.NewRenderer(opts, m)

	var watchErr atomic.Pointer[error]
	if cfg.RenderConfig != "" {
		go func() {
			if err := render.WatchRenderer(ctx, cfg.RenderConfig, renderer); err != nil {
				slog.Error("Render options watcher stopped", "error", err)
				watchErr.Store(&err)
			}
		}()
	}

	check := httpserver.HealthCheck{
		Name: "renderer",
		Check: func(context.Context) error {
			if errp := watchErr.Load(); errp != nil {
				return *errp
			}
			return renderer.Check()
		},
	}
	return renderer, check
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Get().String())

	reg := metrics.NewRegistry()
	relayMetrics := metrics.NewRelayMetrics(reg)
	renderMetrics := metrics.NewRenderMetrics(reg)

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	renderer, rendererCheck := setupRenderer(watchCtx, cfg, renderMetrics)

	registry := broadcast.NewRegistry(relayMetrics)
	broadcaster := broadcast.NewBroadcaster(registry, clock, relayMetrics)
	relay := app.NewService(renderer, registry, broadcaster, relayMetrics)

	srv, err := httpserver.NewServer(cfg, relay, registry, clock, reg, relayMetrics, []httpserver.HealthCheck{rendererCheck})
	if err != nil {
		slog.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	done := runGracefulShutdown(cfg, srv, relay, stopWatch)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
