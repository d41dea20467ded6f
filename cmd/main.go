package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/opsboard/pulse/internal/adapters/http/api"
	"github.com/opsboard/pulse/internal/adapters/http/swagger"
	"github.com/opsboard/pulse/internal/adapters/redisstore"
	"github.com/opsboard/pulse/internal/adapters/sqlstore"
	service "github.com/opsboard/pulse/internal/app"
	"github.com/opsboard/pulse/internal/config"
	"github.com/opsboard/pulse/pkg/logger"
	"github.com/opsboard/pulse/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 15 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	serviceMetricsInterval = 5 * time.Second
	dialTimeout            = 5 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The logger is not configured yet.
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(logger.Format(cfg.LogFormat))); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(context.Background(), "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	metrics.GetRegistry().MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "pulse exited", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

// run serves the API until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	svc, cleanup, err := buildService(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, cfg, svc, log),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		updateServiceMetrics(gctx, svc)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(context.Background(), "shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := svc.Stop(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		log.Info(shutdownCtx, "server stopped")
		return errors.Join(errs...)
	})
	return g.Wait()
}

// newMux registers the docs and business routes.
func newMux(ctx context.Context, cfg *config.Config, svc *service.Service, log logger.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc,
		api.WithLogger(log.Named("api")),
		api.WithMaxLeaderboardLimit(cfg.MaxLeaderboardLimit),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	).Register(ctx, mux)
	return mux
}

// buildService selects the storage collaborators named by cfg. The returned
// cleanup closes whatever was opened.
func buildService(ctx context.Context, cfg *config.Config, log logger.Logger) (*service.Service, func(), error) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warn(context.Background(), "close failed", logger.Error(err))
			}
		}
	}

	opts := []service.Option{
		service.WithLogger(log.Named("service")),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithDebounce(cfg.Debounce()),
		service.WithSaveTimeout(cfg.SaveTimeout()),
		service.WithSessionIdleTTL(cfg.SessionIdleTTL()),
		service.WithLateGraceDays(cfg.LateGraceDays),
		service.WithClampRange(cfg.ClampMin, cfg.ClampMax),
		service.WithWeights(cfg.Weights),
	}

	if cfg.StorageDriver != config.DriverMemory {
		db, err := sqlstore.Open(ctx, cfg.StorageDriver, cfg.StorageDSN, sqlstore.WithLogger(log.Named("sqlstore")))
		if err != nil {
			return nil, cleanup, fmt.Errorf("open storage: %w", err)
		}
		closers = append(closers, db.Close)
		opts = append(opts,
			service.WithSubmissionStore(db.Submissions()),
			service.WithMetricStore(db.Metrics()),
			service.WithDraftPersistence(db.Drafts()),
		)
	}

	if cfg.DraftBackend == config.DraftBackendRedis {
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		client, err := redisstore.Dial(dialCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		cancel()
		if err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("open redis drafts: %w", err)
		}
		closers = append(closers, client.Close)
		opts = append(opts, service.WithDraftPersistence(redisstore.New(client)))
	}

	log.Info(ctx, "storage selected",
		logger.String("driver", cfg.StorageDriver),
		logger.String("drafts", cfg.DraftBackend),
	)
	return service.New(opts...), cleanup, nil
}

// updateServiceMetrics refreshes queue and worker gauges until ctx ends.
func updateServiceMetrics(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// GetStats updates the gauges as a side effect.
			_ = svc.GetStats()
		}
	}
}
