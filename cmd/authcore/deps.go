// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/holomush/authcore/internal/auth"
	"github.com/holomush/authcore/internal/config"
	"github.com/holomush/authcore/internal/observability"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// StoreFactory opens the configured credential store. The returned
	// cleanup func releases it.
	// Default: newCredentialStore
	StoreFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (auth.CredentialStore, func(), error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServerWithLogger
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer

	// LogWriter receives structured logs.
	// Default: os.Stderr
	LogWriter io.Writer

	// OnReady is called with the HTTP address once every server is listening.
	OnReady func(addr string)
}

// ObservabilityServer is the subset of *observability.Server used by serve.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}
