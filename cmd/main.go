package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "smart_bottle/docs"
	"smart_bottle/internal/config"
	"smart_bottle/internal/display"
	"smart_bottle/internal/handlers"
	"smart_bottle/internal/logger"
	"smart_bottle/internal/server"
	"smart_bottle/internal/service"
	"smart_bottle/internal/store"
	"smart_bottle/internal/store/backend"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// load configs/config.yml + BOTTLE_* env
	cfg, err := config.Load()
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}

	// init logger
	log := logger.Init(logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	defer func() { _ = log.Sync() }()

	// a missing store is not fatal: the dashboard shows "Not initialized"
	st := openStore(cfg, log)
	if st != nil {
		defer func() {
			if cerr := st.Close(); cerr != nil {
				log.Errorw("failed to close store", "err", cerr)
			}
		}()
	}

	// wire dependencies
	board := display.NewBoard(display.View{})
	deps := service.Deps{
		Store:   st,
		Display: board,
		Log:     log,
		Paths:   service.Paths{Telemetry: cfg.Paths.Telemetry, Control: cfg.Paths.Control},
		Slider:  service.Slider{Min: cfg.Slider.Min, Max: cfg.Slider.Max, Initial: cfg.Slider.Initial},
	}

	var simPoll time.Duration
	if cfg.Simulator.Enabled {
		simPoll = cfg.Simulator.ControlPoll
	}
	services := service.NewService(deps, board, simPoll)
	services.Render(nil)
	services.Sync(cfg.Slider.Initial)
	apiHandler := handlers.NewHandler(services, log)

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go services.Telemetry.Run(ctx)
	if services.Simulator != nil {
		log.Infow("simulator enabled", "tick", cfg.Simulator.Tick, "control_poll", cfg.Simulator.ControlPoll)
		go services.Simulator.Run(ctx, cfg.Simulator.Tick)
	}

	// start HTTP server
	srv := server.New(cfg.Port, apiHandler.InitRoutes())
	runHTTPServer(srv, log)

	// graceful shutdown
	waitForShutdown(cancel, srv, log)
}

// openStore builds the configured backend, or returns nil and logs why.
func openStore(cfg *config.Config, log *logger.Logger) store.Store {
	st, err := backend.Open(cfg.Store)
	if err != nil {
		log.Errorw("store init failed", "driver", cfg.Store.Driver, "err", err)
		return nil
	}
	log.Infow("store ready", "driver", cfg.Store.Driver)
	return st
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, log *logger.Logger) {
	go func() {
		log.Infow("http server listening", "addr", srv.Addr())
		if err := srv.Run(); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// stop background goroutines
	cancel()

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}
}
