package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"corpsite.org/internal/audit"
	"corpsite.org/internal/auth"
	"corpsite.org/internal/config"
	"corpsite.org/internal/httpapi"
	"corpsite.org/internal/monitor"
	"corpsite.org/internal/obs"
	"corpsite.org/internal/revocation"
	"corpsite.org/internal/store/memory"
	"corpsite.org/internal/store/pg"
	"corpsite.org/internal/stream"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := obs.NewLogger(cfg.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("api stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := obs.NewCollectors()
	if err := obs.RegisterBuildInfo(metrics.Registry(), version, commit); err != nil {
		return fmt.Errorf("register build info: %w", err)
	}

	users, closeUsers, err := openUserStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeUsers()

	revStore, closeRev := openRevocationStore(ctx, cfg, log)
	defer closeRev()

	tokens, err := auth.NewTokenService(cfg.JWT.Secret,
		auth.WithIssuer(cfg.JWT.Issuer),
		auth.WithAudience(cfg.JWT.Audience),
		auth.WithAccessTTL(cfg.JWT.AccessTTL),
		auth.WithRefreshTTL(cfg.JWT.RefreshTTL),
	)
	if err != nil {
		return err
	}
	authSvc, err := auth.NewService(users, tokens,
		revocation.NewGuard(revStore, log.Named("revocation"), metrics),
		auth.WithLogger(log.Named("auth")),
	)
	if err != nil {
		return err
	}
	adminSvc, err := auth.NewAdminService(users)
	if err != nil {
		return err
	}

	agg := monitor.NewAggregator(
		monitor.WithLogger(log.Named("monitor")),
		monitor.WithObserver(metrics),
	)
	samplerDone := agg.StartSampler(ctx, cfg.Monitor.SampleInterval)
	evaluator := monitor.NewEvaluator(agg, monitor.DefaultThresholds())
	events := stream.NewHub[monitor.HealthReport](0)
	pumpDone := events.Pump(ctx, cfg.Monitor.SampleInterval, evaluator.Evaluate)

	trusted, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		return err
	}
	api := httpapi.New(httpapi.Deps{
		Auth:    authSvc,
		Admin:   adminSvc,
		Monitor: agg,
		Health:  evaluator,
		Metrics: metrics,
		Audit:   audit.New(log),
		Ready:   httpapi.ReadinessCheck{Users: users, Revocations: revStore},
		Log:     log.Named("http"),
		Events:  events,
	}, httpapi.Options{
		Version:         version,
		Production:      cfg.IsProduction(),
		AllowQueryToken: cfg.QueryTokenAllowed(),
		MaxBodyBytes:    cfg.HTTPServer.MaxBodyBytes,
		RateBurst:       cfg.RateLimit.Burst,
		RatePerSecond:   cfg.RateLimit.PerSecond,
		AllowedOrigins:  cfg.HTTPServer.AllowedOrigins,
		TrustedProxies:  trusted,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPServer.Address,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.HTTPServer.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTPServer.ReadTimeout,
		WriteTimeout:      cfg.HTTPServer.WriteTimeout,
		IdleTimeout:       cfg.HTTPServer.IdleTimeout,
	}
	// Event streams never go idle, so Shutdown would wait on them until its deadline.
	srv.RegisterOnShutdown(api.CloseStreams)

	grpcSrv := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, httpapi.NewHealthGRPCServer(evaluator))
	lis, err := net.Listen("tcp", cfg.GRPC.Address)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("http server started", zap.String("addr", srv.Addr), zap.String("version", version), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()
	go func() {
		log.Info("grpc server started", zap.String("addr", lis.Addr().String()))
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case runErr = <-errCh:
		log.Error("server failed", zap.Error(runErr))
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	grpcSrv.GracefulStop()
	<-samplerDone
	<-pumpDone
	log.Info("stopped")
	return runErr
}

func openUserStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (auth.UserStore, func(), error) {
	if cfg.DB.DSN != "" {
		store, err := pg.Open(cfg.DB.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			// Authentication degrades to token claims while the database is down.
			log.Warn("postgres not reachable at startup", zap.Error(err))
		}
		log.Info("user store: postgres")
		return store, func() { _ = store.Close() }, nil
	}

	store := memory.New()
	log.Info("user store: in-memory")
	if cfg.Env == config.EnvLocal {
		if err := seedAdmin(ctx, store, cfg.Bootstrap); err != nil {
			return nil, nil, err
		}
		log.Info("seeded local administrator", zap.String("username", cfg.Bootstrap.AdminUsername))
	}
	return store, func() {}, nil
}

func seedAdmin(ctx context.Context, store auth.UserStore, b config.Bootstrap) error {
	hash, err := auth.HashPassword(b.AdminPassword)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	err = store.Create(ctx, &auth.User{
		Username:     b.AdminUsername,
		Email:        b.AdminEmail,
		PasswordHash: hash,
		Role:         auth.RoleAdmin,
		Status:       auth.StatusActive,
	})
	if err != nil && !errors.Is(err, auth.ErrConflict) {
		return fmt.Errorf("seed admin: %w", err)
	}
	return nil
}

func openRevocationStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (revocation.Store, func()) {
	if cfg.Redis.Addr != "" {
		store := revocation.DialRedis(revocation.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Timeout:  cfg.Redis.Timeout,
		})
		pingCtx, cancel := context.WithTimeout(ctx, cfg.Redis.Timeout)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			log.Warn("redis not reachable at startup, revocation is best effort", zap.Error(err))
		}
		log.Info("revocation store: redis", zap.String("addr", cfg.Redis.Addr))
		return store, func() { _ = store.Close() }
	}

	store := revocation.NewMemoryStore()
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := store.Purge(); n > 0 {
					log.Debug("purged expired revocations", zap.Int("count", n))
				}
			}
		}
	}()
	log.Info("revocation store: in-memory")
	return store, func() {}
}
