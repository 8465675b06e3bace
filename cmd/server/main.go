package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/File-Sharing-BondBridg/Document-Service/internal/api"
	"github.com/File-Sharing-BondBridg/Document-Service/internal/api/handlers"
	"github.com/File-Sharing-BondBridg/Document-Service/internal/configuration"
	"github.com/File-Sharing-BondBridg/Document-Service/internal/ingest"
	"github.com/File-Sharing-BondBridg/Document-Service/internal/services"
	"github.com/File-Sharing-BondBridg/Document-Service/internal/storage"
	"github.com/gin-gonic/gin"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

func main() {
	cfg := configuration.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if cfg.Tracing.AgentHost != "" {
		tracer.Start(
			tracer.WithService(cfg.Tracing.Service),
			tracer.WithAgentAddr(net.JoinHostPort(cfg.Tracing.AgentHost, "8126")),
		)
		defer tracer.Stop()
	}

	engine, cleanup, err := setup(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           engine,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server listening", "port", cfg.Server.Port, "backend", cfg.Storage.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	logger.Info("shutting down gracefully")

	// The ledger is flushed on every mutation, so draining requests is enough.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}
	logger.Info("server stopped")
}

// setup wires every component from cfg. Optional dependencies that cannot be
// reached are logged and skipped; only local storage failures are fatal.
func setup(ctx context.Context, cfg *configuration.Config, logger *slog.Logger) (*gin.Engine, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	checks := make(map[string]handlers.Checker)

	ledger := storage.NewLedger(cfg.Storage.LedgerPath, logger)
	if err := ledger.Load(); err != nil {
		if !errors.Is(err, storage.ErrLedgerCorruption) {
			return nil, cleanup, err
		}
		logger.Error("ledger is corrupt, listing disabled until it is repaired", "error", err)
	}

	if cfg.DatabaseURL != "" {
		mirror, err := storage.ConnectPostgres(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Warn("ledger mirror disabled", "error", err)
		} else {
			ledger.SetMirror(mirror)
			checks["postgres"] = mirror
			closers = append(closers, func() { mirror.Close() })
			closers = append(closers, ledger.Close)
		}
	}

	localOpts := []storage.LocalOption{storage.WithTargetTTL(cfg.Storage.TargetTTL)}
	if cfg.Redis.Addr != "" {
		registry, err := services.NewRedisTargetRegistry(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("redis unavailable, upload targets kept in memory", "error", err)
		} else {
			localOpts = append(localOpts, storage.WithTargetRegistry(registry))
			checks["redis"] = registry
			closers = append(closers, func() { registry.Close() })
		}
	}
	if cfg.CLAMAVURL != "" {
		scanner := services.NewClamAVScanner(cfg.CLAMAVURL, logger)
		localOpts = append(localOpts, storage.WithScanner(scanner))
		checks["clamav"] = scanner
	}

	local, err := storage.NewLocalBackend(cfg.Storage.Root, ledger, logger, localOpts...)
	if err != nil {
		return nil, cleanup, err
	}

	routerOpts := []storage.RouterOption{
		storage.WithGuard(ingest.NewGuard(cfg.Ingest.MaxUploadBytes)),
		storage.WithMaxConcurrentUploads(cfg.Ingest.MaxConcurrentUploads),
	}

	strategy := storage.StrategyLocal
	if cfg.RemoteFirst() {
		strategy = storage.StrategyRemoteFirst

		provider, err := newProvider(ctx, cfg, logger)
		if err != nil {
			logger.Warn("remote provider unavailable at startup, uploads fall back to local storage", "error", err)
			checks[cfg.Storage.Backend] = startupFailure{err: err}
		} else if c, ok := provider.(handlers.Checker); ok {
			checks[provider.Name()] = c
		}

		remote := storage.NewRemoteBackend(provider, storage.RemoteConfig{
			Policy: storage.AccessPolicy{
				Owner:      cfg.Remote.Owner,
				Visibility: cfg.Remote.Visibility,
			},
			Timeout:   cfg.Remote.Timeout,
			URLExpiry: cfg.Remote.URLExpiry,
		}, logger)
		routerOpts = append(routerOpts, storage.WithRemote(remote))
	}

	if cfg.NATSURL != "" {
		publisher, err := services.ConnectNATS(cfg.NATSURL, logger)
		if err != nil {
			logger.Warn("event publishing disabled", "error", err)
		} else {
			routerOpts = append(routerOpts, storage.WithNotifier(publisher))
			checks["nats"] = publisher
			closers = append(closers, publisher.Close)
		}
	}

	router := storage.NewRouter(strategy, local, logger, routerOpts...)

	h := handlers.New(router, logger)
	for name, c := range checks {
		h.AddCheck(name, c)
	}

	engine := gin.Default()
	opts := api.Options{
		RateLimit: api.RateLimit{RPS: cfg.RateLimit.RPS, Burst: cfg.RateLimit.Burst},
	}
	if cfg.Tracing.AgentHost != "" {
		opts.TraceService = cfg.Tracing.Service
	}
	api.RegisterRoutes(engine, h, opts)

	logger.Info("storage configured", "strategy", strategy.String(), "root", cfg.Storage.Root, "ledger", cfg.Storage.LedgerPath)
	return engine, cleanup, nil
}

// startupFailure keeps a dependency that could not be wired visible in the
// health report.
type startupFailure struct {
	err error
}

func (f startupFailure) CheckConnection(context.Context) error {
	return fmt.Errorf("not connected since startup: %w", f.err)
}

// newProvider returns nil with an error when the configured store can't be
// reached; the caller must not wrap a nil provider in the interface.
func newProvider(ctx context.Context, cfg *configuration.Config, logger *slog.Logger) (storage.Provider, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Remote.Timeout)
	defer cancel()

	switch cfg.Storage.Backend {
	case configuration.BackendMinIO:
		p, err := services.NewMinioProvider(ctx, services.MinioConfig{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.BucketName,
			UseSSL:    cfg.MinIO.UseSSL,
		}, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	case configuration.BackendS3:
		p, err := services.NewS3Provider(ctx, services.S3Config{
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
		}, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
