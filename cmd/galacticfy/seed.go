// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Galacticfy Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/galacticfy/galacticfy/internal/access/seed"
)

func (c *cli) newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed [roles-file]",
		Short: "Apply a roles file to the permission store",
		Long: `Creates the roles, grants and inheritance edges declared in a roles file.
Existing roles get their metadata updated; nothing missing from the file is removed.
This command is idempotent. Without an argument the configured seed_file is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}
			path := cfg.SeedFile
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return oops.In("cli").Code("CONFIG_INVALID").Errorf("a roles file argument or seed_file is required")
			}

			f, err := seed.Load(path)
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

			res, err := seed.Apply(ctx, engine, f)
			if err != nil {
				return oops.In("cli").Code("SEED_FAILED").With("path", path).Wrap(err)
			}
			printSeedResult(cmd, path, res)
			return nil
		},
	}
}

func printSeedResult(cmd *cobra.Command, path string, res seed.Result) {
	if !res.Changed() {
		cmd.Printf("%s: already applied, nothing to do\n", path)
		return
	}
	cmd.Printf("%s: %d roles created, %d updated, %d grants added, %d inheritance edges added\n",
		path, res.RolesCreated, res.RolesUpdated, res.GrantsAdded, res.EdgesAdded)
}

func (c *cli) newValidateSeedsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-seeds [roles-file...]",
		Short: "Validate roles files without touching the database",
		Long: `Checks roles files against the roles file schema, the supported
version range and their inheritance references.
Does NOT require a database connection.
Exits with code 0 on success, non-zero on failure.

Useful in CI pipelines to catch roles file errors early:
  galacticfy validate-seeds roles.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}
			paths := args
			if len(paths) == 0 && cfg.SeedFile != "" {
				paths = []string{cfg.SeedFile}
			}
			if len(paths) == 0 {
				return oops.In("cli").Code("CONFIG_INVALID").Errorf("a roles file argument or seed_file is required")
			}
			return validateSeeds(cmd, paths)
		},
	}
}

func validateSeeds(cmd *cobra.Command, paths []string) error {
	failed := 0
	for _, path := range paths {
		f, err := seed.Load(path)
		if err != nil {
			failed++
			slog.Error("roles file validation failed", "path", path, "error", err)
			cmd.PrintErrf("%s: %v\n", path, err)
			continue
		}
		grants := 0
		for _, r := range f.Roles {
			grants += len(r.Permissions)
		}
		cmd.Printf("%s: ok (%d roles, %d grants)\n", path, len(f.Roles), grants)
	}

	if failed > 0 {
		return oops.In("cli").Code("SEED_INVALID").Errorf("validation failed: %d of %d roles files invalid", failed, len(paths))
	}
	return nil
}
