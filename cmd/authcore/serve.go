// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/internal/auth/postgres"
	"github.com/holomush/authcore/internal/auth/redisstore"
	"github.com/holomush/authcore/internal/config"
	"github.com/holomush/authcore/internal/logging"
	"github.com/holomush/authcore/internal/observability"
	"github.com/holomush/authcore/internal/store"
	"github.com/holomush/authcore/internal/web"
	"github.com/holomush/authcore/pkg/errutil"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP authentication service",
		Long: `Start the HTTP service exposing registration, login, sessions and
password reset, plus metrics and health probes on a separate address.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := config.ResolvePath(configFile)
			if err != nil {
				return err
			}
			cfg, err := config.Load(path, cmd.Flags())
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	config.RegisterFlags(cmd.Flags())

	return cmd
}

// runServeWithDeps starts the service with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.StoreFactory == nil {
		deps.StoreFactory = newCredentialStore
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServerWithLogger(addr, ready, logger)
		}
	}

	logger := logging.SetDefault(logging.Options{
		Service: "authcore",
		Version: version,
		Format:  cfg.LogFormat,
		Level:   cfg.LogLevel,
		Writer:  deps.LogWriter,
	})

	logger.Info("starting authcore",
		"http_addr", cfg.HTTPAddr,
		"store", cfg.Store,
		"hasher", cfg.Hasher)

	hasher, err := auth.NewHasher(cfg.Hasher, cfg.BcryptCost)
	if err != nil {
		return err
	}

	credentials, cleanup, err := deps.StoreFactory(ctx, cfg, logger)
	if err != nil {
		return oops.Code("STORE_OPEN_FAILED").With("store", cfg.Store).Wrap(err)
	}
	defer cleanup()

	svc, err := auth.NewServiceWithLogger(credentials, hasher, logger)
	if err != nil {
		return err
	}
	basic, err := auth.NewBasicExtractor(credentials, hasher)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var ready atomic.Bool
	var requestMetrics web.RequestRecorder

	var obsServer ObservabilityServer
	if cfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr, ready.Load, logger)
		svc.WithMetrics(obsServer.Metrics())
		requestMetrics = obsServer.Metrics()

		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, logger, obsErrChan, "observability")
	}

	webServer, err := web.NewServer(svc, basic, web.Options{
		Addr:          cfg.HTTPAddr,
		CookieName:    cfg.CookieName,
		ExcludedPaths: cfg.ExcludedPaths,
		Logger:        logger,
		Metrics:       requestMetrics,
	})
	if err != nil {
		stopServer(logger, obsServer)
		return err
	}
	webErrChan, err := webServer.Start()
	if err != nil {
		stopServer(logger, obsServer)
		return oops.Code("WEB_START_FAILED").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, logger, webErrChan, "web")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	ready.Store(true)
	cmd.Println("authcore listening on", webServer.Addr())
	logger.Info("authcore ready", "http_addr", webServer.Addr())
	if deps.OnReady != nil {
		deps.OnReady(webServer.Addr())
	}

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	ready.Store(false)
	stopServer(logger, webServer)
	stopServer(logger, obsServer)

	logger.Info("shutdown complete")
	return nil
}

type stoppable interface {
	Stop(ctx context.Context) error
}

func stopServer(logger *slog.Logger, s stoppable) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		errutil.LogWarn(ctx, logger, "error stopping server", err)
	}
}

// monitorServerErrors cancels ctx when a server reports a serve error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger, errCh <-chan error, name string) {
	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			errutil.LogError(ctx, logger, "server failed", err, "server", name)
			cancel()
		}
	case <-ctx.Done():
	}
}

// newCredentialStore opens the backend selected by cfg.Store.
func newCredentialStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (auth.CredentialStore, func(), error) {
	switch cfg.Store {
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", cfg.RedisAddr).Wrap(err)
		}
		cleanup := func() {
			if err := client.Close(); err != nil {
				logger.Warn("error closing redis client", "error", err)
			}
		}
		return redisstore.New(client, cfg.RedisPrefix), cleanup, nil
	default:
		pool, err := store.Connect(ctx, cfg.DatabaseURL, store.ConnectOptions{Logger: logger})
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewIdentityRepository(pool), pool.Close, nil
	}
}
