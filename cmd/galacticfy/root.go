// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Galacticfy Contributors

package main

import (
	"context"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/galacticfy/galacticfy/internal/access"
	"github.com/galacticfy/galacticfy/internal/config"
	"github.com/galacticfy/galacticfy/internal/logging"
	"github.com/galacticfy/galacticfy/internal/xdg"
)

const serviceName = "galacticfy"

// cli carries state shared by the subcommands of one root command.
type cli struct {
	deps       *Deps
	configFile string
}

// NewRootCmd creates the root command for the galacticfy CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmdWithDeps(nil)
}

func newRootCmdWithDeps(deps *Deps) *cobra.Command {
	c := &cli{deps: deps.withDefaults()}

	cmd := &cobra.Command{
		Use:   serviceName,
		Short: "Galacticfy - role-based permissions for a game network proxy",
		Long: `Galacticfy manages roles, permission grants, role inheritance and
per-player role assignments for a game network proxy and its backend servers.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&c.configFile, "config", "", "config file path (default: $XDG_CONFIG_HOME/galacticfy/config.yaml)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(c.newMigrateCmd())
	cmd.AddCommand(c.newSeedCmd())
	cmd.AddCommand(c.newValidateSeedsCmd())
	cmd.AddCommand(c.newRoleCmd())
	cmd.AddCommand(c.newUserCmd())
	cmd.AddCommand(c.newCheckCmd())
	cmd.AddCommand(c.newServeCmd())

	return cmd
}

// loadConfig resolves the configuration for cmd and installs the default logger.
// Without --config the XDG config file is used when present.
func (c *cli) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := c.configFile
	if path == "" {
		found, err := xdg.FindConfigFile(c.deps.Getenv)
		if err != nil {
			return nil, oops.In("cli").Code("CONFIG_LOAD_FAILED").Wrap(err)
		}
		path = found
	}
	cfg, err := config.Load(path, cmd.Flags(), c.deps.Getenv)
	if err != nil {
		return nil, err
	}
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	logging.SetDefault(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.LogFormat,
		Level:   level,
		Writer:  cmd.ErrOrStderr(),
	})
	return cfg, nil
}

// openEngine connects to the store and loads a permission engine. The
// returned func releases the connection.
func (c *cli) openEngine(ctx context.Context, cfg *config.Config) (*access.Engine, func(), error) {
	repo, release, err := c.deps.OpenRepository(ctx, cfg)
	if err != nil {
		return nil, nil, oops.In("cli").Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}

	engine, err := access.NewEngine(repo,
		access.WithDefaultRole(cfg.DefaultRole),
		access.WithAssignmentCacheSize(cfg.AssignmentCacheSize),
		access.WithClock(c.deps.Clock),
	)
	if err != nil {
		release()
		return nil, nil, err
	}
	if err := engine.Load(ctx); err != nil {
		release()
		return nil, nil, oops.In("cli").With("operation", "load permission engine").Wrap(err)
	}
	return engine, release, nil
}

// withEngine loads configuration and the engine, then runs fn.
func (c *cli) withEngine(cmd *cobra.Command, fn func(ctx context.Context, engine *access.Engine) error) error {
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	engine, release, err := c.openEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx, engine)
}
