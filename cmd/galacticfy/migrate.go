// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Galacticfy Contributors

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/galacticfy/galacticfy/internal/store"
)

func (c *cli) newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the permission schema",
		Long: `Apply, roll back or inspect the embedded PostgreSQL migrations.
Running migrate without a subcommand applies every pending migration.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withMigrator(cmd, func(m Migrator) error { return migrateUp(cmd, m) })
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withMigrator(cmd, func(m Migrator) error { return migrateUp(cmd, m) })
		},
	})

	var confirm bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration, dropping all permission data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirm {
				return oops.In("cli").Code("CONFIRMATION_REQUIRED").Errorf("down drops every role and assignment; pass --yes to confirm")
			}
			return c.withMigrator(cmd, func(m Migrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				cmd.Println("All migrations rolled back")
				return nil
			})
		},
	}
	down.Flags().BoolVar(&confirm, "yes", false, "confirm dropping the schema")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:     "version",
		Aliases: []string{"status"},
		Short:   "Show the applied and pending migrations",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withMigrator(cmd, func(m Migrator) error { return migrateStatus(cmd, m) })
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Mark a version as applied to recover from a dirty schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return c.withMigrator(cmd, func(m Migrator) error {
				if err := m.Force(v); err != nil {
					return err
				}
				cmd.Printf("Schema version forced to %d\n", v)
				return nil
			})
		},
	})

	return cmd
}

func (c *cli) withMigrator(cmd *cobra.Command, fn func(Migrator) error) error {
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return oops.In("cli").Code("CONFIG_INVALID").Errorf("database_url or DATABASE_URL is required")
	}

	m, err := c.deps.MigratorFactory(cfg.DatabaseURL)
	if err != nil {
		return oops.In("cli").With("operation", "open migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			cmd.PrintErrf("warning: closing migrator: %v\n", closeErr)
		}
	}()
	return fn(m)
}

func migrateUp(cmd *cobra.Command, m Migrator) error {
	before, _, err := m.Version()
	if err != nil {
		return err
	}
	cmd.Println("Running migrations...")
	if err := m.Up(); err != nil {
		return err
	}
	after, _, err := m.Version()
	if err != nil {
		return err
	}
	if after == before {
		cmd.Printf("Schema already at version %d\n", after)
		return nil
	}
	cmd.Printf("Migrated from version %d to %d\n", before, after)
	return nil
}

func migrateStatus(cmd *cobra.Command, m Migrator) error {
	st, err := m.Status()
	if err != nil {
		return err
	}

	state := "clean"
	if st.Dirty {
		state = "dirty"
	}
	cmd.Printf("Version: %d (%s)\n", st.Version, state)
	for _, v := range st.Applied {
		cmd.Printf("  applied  %s\n", migrationLabel(v))
	}
	for _, v := range st.Pending {
		cmd.Printf("  pending  %s\n", migrationLabel(v))
	}
	return nil
}

func migrationLabel(v uint) string {
	name, err := store.MigrationName(v)
	if err != nil || name == "" {
		return fmt.Sprintf("%06d", v)
	}
	return name
}

// parseForceVersion parses the force target strictly.
func parseForceVersion(s string) (int, error) {
	s = strings.TrimSpace(s)
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, oops.In("cli").Code("INVALID_VERSION").With("input", s).Wrapf(err, "version must be an integer")
	}
	if v < 0 {
		return 0, oops.In("cli").Code("INVALID_VERSION").With("input", s).Errorf("version must be non-negative, got %d", v)
	}
	return v, nil
}
