// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/Shivanand-hulikatti/activity-registration/internal/clock"
	"github.com/Shivanand-hulikatti/activity-registration/internal/config"
	"github.com/Shivanand-hulikatti/activity-registration/internal/database"
	"github.com/Shivanand-hulikatti/activity-registration/internal/handler"
	"github.com/Shivanand-hulikatti/activity-registration/internal/logger"
	"github.com/Shivanand-hulikatti/activity-registration/internal/metrics"
	"github.com/Shivanand-hulikatti/activity-registration/internal/notify"
	"github.com/Shivanand-hulikatti/activity-registration/internal/repository"
	"github.com/Shivanand-hulikatti/activity-registration/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := logger.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Open the store ─────────────────────────────────────────────────
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// ── 2. Metrics and notifications ─────────────────────────────────────
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	notifier, dispatcher := newNotifier(cfg, m, log)

	// ── 3. Wire up layers ────────────────────────────────────────────────
	clk := clock.System{}
	activities := service.NewActivityService(store, clk, log)
	registrations := service.NewRegistrationService(store, notifier, clk, log)
	h := handler.NewActivityHandler(activities, registrations, log)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      handler.NewRouter(h, m, reg, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ── 4. Run until SIGINT or SIGTERM ───────────────────────────────────
	// The dispatcher gets its own context so it keeps draining while the
	// server finishes in-flight requests.
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	defer stopDispatch()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Run(dispatchCtx)
	})
	g.Go(func() error {
		log.Info("server listening", "addr", srv.Addr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		stopDispatch()
		if err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}

// newNotifier counts every notification synchronously in m and queues it on
// the returned dispatcher for logging and email. The caller runs the dispatcher.
func newNotifier(cfg config.Config, m *metrics.Metrics, log *slog.Logger) (notify.Notifier, *notify.Dispatcher) {
	sinks := notify.Fanout{notify.NewLogNotifier(log)}
	if cfg.EmailEnabled() {
		sinks = append(sinks, notify.NewEmailNotifier(notify.NewResendSender(cfg.ResendAPIKey, cfg.MailFrom), log))
		log.Info("email notifications enabled", "from", cfg.MailFrom)
	}
	dispatcher := notify.NewDispatcher(sinks, cfg.NotifyQueueSize, log)
	return notify.Fanout{m, dispatcher}, dispatcher
}

// openStore selects the persistence backend named by cfg.StoreDriver.
func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (service.ActivityStore, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := database.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return nil, nil, fmt.Errorf("database: %w", err)
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info("connected to PostgreSQL", "host", cfg.Database.Host, "db", cfg.Database.DBName)
		return repository.NewPostgresStore(pool), pool.Close, nil

	case config.DriverSQLite:
		db, err := database.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		log.Info("opened SQLite database", "path", cfg.SQLitePath)
		return repository.NewSQLiteStore(db), func() { _ = db.Close() }, nil

	default:
		log.Info("using in-memory store")
		return repository.NewMemoryStore(), func() {}, nil
	}
}
