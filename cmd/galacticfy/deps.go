// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Galacticfy Contributors

package main

import (
	"context"
	"os"
	"time"

	"github.com/galacticfy/galacticfy/internal/access"
	"github.com/galacticfy/galacticfy/internal/access/postgres"
	"github.com/galacticfy/galacticfy/internal/config"
	"github.com/galacticfy/galacticfy/internal/observability"
	"github.com/galacticfy/galacticfy/internal/store"
)

// Deps contains injectable dependencies shared by every subcommand.
// All fields with nil values will use their default implementations.
type Deps struct {
	// OpenRepository connects to the permission store and returns a release func.
	// Default: PostgreSQL through store.Connect.
	OpenRepository func(ctx context.Context, cfg *config.Config) (access.Repository, func(), error)

	// MigratorFactory opens a schema migrator.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// Getenv reads environment variables.
	// Default: os.Getenv
	Getenv func(string) string

	// Clock is the engine's time source.
	// Default: time.Now
	Clock func() time.Time
}

// Migrator wraps the methods the migrate command uses from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Version() (uint, bool, error)
	Force(version int) error
	Status() (store.Status, error)
	Close() error
}

// ObservabilityServer wraps the methods serve uses from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.OpenRepository == nil {
		out.OpenRepository = openPostgres
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, ready)
		}
	}
	if out.Getenv == nil {
		out.Getenv = os.Getenv
	}
	if out.Clock == nil {
		out.Clock = time.Now
	}
	return &out
}

func openPostgres(ctx context.Context, cfg *config.Config) (access.Repository, func(), error) {
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	opts := store.DefaultConnectOptions
	opts.Retries = cfg.ConnectRetries
	pool, err := store.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		return nil, nil, err
	}
	return postgres.New(pool), pool.Close, nil
}
