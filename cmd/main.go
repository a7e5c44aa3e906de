package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"oilfox_bridge/internal/bridge"
	"oilfox_bridge/internal/config"
	"oilfox_bridge/internal/handlers"
	"oilfox_bridge/internal/logger"
	"oilfox_bridge/internal/metrics"
	"oilfox_bridge/internal/repository"
	"oilfox_bridge/internal/repository/db"
	"oilfox_bridge/internal/scheduler"
	"oilfox_bridge/internal/server"
	"oilfox_bridge/internal/service"
)

const (
	configPath  = "configs/config.yml"
	envFile     = ".env"
	initTimeout = 30 * time.Second
	stopTimeout = 10 * time.Second
)

func main() {
	// load configs/config.yml, .env and OILFOX_* overrides
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}

	// init logger
	log := logger.Get(cfg.Log.Level)

	// open DB
	conn, err := openDB(cfg, log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	sched, err := scheduler.New(log)
	if err != nil {
		log.Fatalw("failed to start scheduler", "err", err)
	}

	// wire dependencies
	repos := repository.NewRepository(conn)
	br := bridge.New(cfg.Bridge.ID, sched, log)
	m := metrics.New()
	br.AddObserver(m)
	if _, err := br.RegisterListener(m); err != nil {
		log.Fatalw("failed to register metrics", "err", err)
	}

	orch := service.NewOrchestrator(br, repos, cfg.Discovery.AutoApprove, log)
	if err := orch.Start(context.Background()); err != nil {
		log.Fatalw("failed to start orchestrator", "err", err)
	}
	services := service.NewService(repos, orch, service.AuthOptions{
		SigningKey: cfg.Auth.SigningKey,
		TokenTTL:   cfg.Auth.TokenTTL,
	})
	apiHandler := handlers.NewHandler(services, log, handlers.Options{
		Metrics:        m.Handler(),
		StreamInterval: cfg.Stream.Interval,
	})

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, cfg.Port, apiHandler, log)

	// an unusable bridge section leaves the bridge offline; the API stays up
	initializeBridge(br, cfg.Bridge.ToBridge(), log)

	// graceful shutdown
	waitForShutdown(srv, br, orch, sched, log)
}

// openDB initializes the SQLite database using configuration.
func openDB(cfg *config.Config, log *logger.Logger) (*sql.DB, error) {
	log.Infow("opening sqlite", "path", cfg.DB.Path)
	return db.InitDB(cfg.DB.Path)
}

func initializeBridge(br *bridge.Bridge, cfg bridge.Config, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := br.Initialize(ctx, cfg); err != nil {
		log.Errorw("bridge_initialize_failed", "bridge", br.ID(), "err", err)
		return
	}
	log.Infow("bridge_initialized", "bridge", br.ID(), "status", br.Status().Status)
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		log.Infow("http_listening", "port", port)
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(srv *server.Server, br *bridge.Bridge, orch *service.Orchestrator, sched *scheduler.Scheduler, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down...")

	// stop polling; a cycle in progress completes
	if err := br.Dispose(); err != nil {
		log.Errorw("bridge_dispose_failed", "err", err)
	}
	orch.Stop()
	if err := sched.Shutdown(); err != nil {
		log.Errorw("scheduler_shutdown_failed", "err", err)
	}

	// allow in-flight requests to complete
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}
	_ = log.Sync()
}
