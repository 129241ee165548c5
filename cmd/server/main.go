/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the commission engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env + environment), apply flag overrides
  2. Initialize logger and metrics
  3. Open the store (SQLite by default, PostgreSQL via DATABASE_DRIVER)
  4. Wire the local engine, the remote evaluator with local fallback and
     the payroll service
  5. Start the payroll scheduler when enabled
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      Database DSN or SQLite path (overrides DATABASE_DSN)
           Use ":memory:" for an in-memory SQLite database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  ./server -db="./data/commission.db"
  DATABASE_DRIVER=postgres DATABASE_DSN="postgres://..." ./server
  REMOTE_EVALUATOR_URL=http://evaluator:9000 ./server -port=3000

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/commission-engine/api"
	"github.com/warp/commission-engine/config"
	"github.com/warp/commission-engine/observability/logger"
	"github.com/warp/commission-engine/observability/metrics"
	"github.com/warp/commission-engine/payroll"
	"github.com/warp/commission-engine/remote"
	"github.com/warp/commission-engine/simulation"
	"github.com/warp/commission-engine/store/sqlite"
)

func main() {
	cfg := config.Load()

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dsn := flag.String("db", cfg.DatabaseDSN, "Database DSN or SQLite path")
	flag.Parse()
	cfg.Port = *port
	cfg.DatabaseDSN = *dsn

	log, err := logger.New(logger.Config{
		ServiceName: cfg.AppName,
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	m := metrics.New(metrics.Config{ServiceName: cfg.AppName, Environment: cfg.Environment})

	store, err := sqlite.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()
	log.Info("database ready", zap.String("driver", cfg.DatabaseDriver))

	local := simulation.NewLocal(store, log.Named("evaluation"), m)
	client := remote.New(cfg.RemoteEvaluatorURL, cfg.RemoteEvaluatorTimeout)
	if client.Configured() {
		log.Info("remote evaluator configured", zap.String("url", cfg.RemoteEvaluatorURL))
	}
	fallback := &simulation.Fallback{
		Remote:  client,
		Local:   local,
		Logger:  log.Named("simulation"),
		Metrics: m,
	}
	runner := &payroll.Service{
		Repo:      store,
		Runs:      store,
		Evaluator: local,
		Workers:   cfg.PayrollWorkers,
		Logger:    log.Named("payroll"),
		Metrics:   m,
	}

	handler := api.NewHandler(store, local, fallback, runner, log)
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:         log.Named("http"),
		Metrics:        m,
	})

	scheduler := api.NewPayrollScheduler(store, runner, log)
	scheduler.Enabled = cfg.PayrollSchedulerEnabled
	scheduler.CheckInterval = cfg.PayrollSchedulerInterval
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.Int("port", cfg.Port), zap.String("env", cfg.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	log.Info("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}
