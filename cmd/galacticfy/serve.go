// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Galacticfy Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/galacticfy/galacticfy/pkg/errutil"
)

// serveConfig holds configuration for the serve command.
type serveConfig struct {
	reloadInterval time.Duration
}

func (c *cli) newServeCmd() *cobra.Command {
	cfg := &serveConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load the permission engine and serve metrics and health probes",
		Long: `Loads roles, grants and inheritance from the database, then serves
/metrics, /healthz/liveness and /healthz/readiness until interrupted.
With --reload-interval the engine re-reads the database periodically so
changes made by other instances become visible.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runServe(cmd, cfg)
		},
	}

	cmd.Flags().DurationVar(&cfg.reloadInterval, "reload-interval", 0, "periodic reload interval (0 = disabled)")
	return cmd
}

func (c *cli) runServe(cmd *cobra.Command, sc *serveConfig) error {
	if sc.reloadInterval < 0 {
		return oops.In("cli").Code("CONFIG_INVALID").Errorf("reload-interval cannot be negative, got %s", sc.reloadInterval)
	}
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return err
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, release, err := c.openEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer release()

	slog.InfoContext(ctx, "permission engine loaded",
		"roles", len(engine.Roles()),
		"default_role", engine.DefaultRole())

	var obs ObservabilityServer
	if cfg.MetricsAddr != "" {
		obs = c.deps.ObservabilityServerFactory(cfg.MetricsAddr, engine.Ready)
		obsErrs, err := obs.Start()
		if err != nil {
			return oops.In("cli").With("operation", "start observability server").Wrap(err)
		}
		obs.Metrics().Info.WithLabelValues(version).Set(1)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := obs.Stop(shutdownCtx); err != nil {
				slog.Warn("error stopping observability server", "error", err)
			}
		}()
		go func() {
			for err := range obsErrs {
				errutil.LogErrorContext(ctx, slog.Default(), "observability server failed", err)
				stop()
			}
		}()
	}

	var reload <-chan time.Time
	if sc.reloadInterval > 0 {
		ticker := time.NewTicker(sc.reloadInterval)
		defer ticker.Stop()
		reload = ticker.C
	}

	cmd.Println("Permission service started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("shutting down")
			return nil
		case <-reload:
			err := engine.Reload(ctx)
			if obs != nil {
				obs.Metrics().RecordReload(err)
			}
			if err != nil {
				errutil.LogErrorContext(ctx, slog.Default(), "engine reload failed, keeping previous state", err)
			}
		}
	}
}
