// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Galacticfy Contributors

package main

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/galacticfy/galacticfy/internal/access"
)

// resolvePlayer accepts a principal id or a last known player name.
func resolvePlayer(ctx context.Context, e *access.Engine, arg string) (uuid.UUID, error) {
	if id, err := uuid.Parse(arg); err == nil {
		return id, nil
	}
	return e.FindPrincipal(ctx, arg)
}

// knownName returns the stored display name of principal, or fallback.
func knownName(ctx context.Context, e *access.Engine, principal uuid.UUID, fallback string) (string, error) {
	a, found, err := e.Assignment(ctx, principal)
	if err != nil {
		return "", err
	}
	if found && a.Name != "" {
		return a.Name, nil
	}
	return fallback, nil
}

// userView is the JSON form of a player's role.
type userView struct {
	Principal string     `json:"principal"`
	Name      string     `json:"name,omitempty"`
	Role      string     `json:"role"`
	Assigned  bool       `json:"assigned"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (c *cli) newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage player role assignments",
	}
	cmd.AddCommand(c.newUserAssignCmd())
	cmd.AddCommand(c.newUserInfoCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "lookup <name>",
		Short: "Resolve a last known player name to a principal id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd, func(ctx context.Context, e *access.Engine) error {
				id, err := e.FindPrincipal(ctx, args[0])
				if err != nil {
					return err
				}
				cmd.Println(id.String())
				return nil
			})
		},
	})
	return cmd
}

func (c *cli) newUserAssignCmd() *cobra.Command {
	var (
		duration time.Duration
		name     string
	)

	cmd := &cobra.Command{
		Use:   "assign <player> <role>",
		Short: "Assign a role to a player, permanently or for --duration",
		Long: `Assigns a role to a player given by principal id or last known name.
With --duration the player returns to the default role once it runs out.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd, func(ctx context.Context, e *access.Engine) error {
				principal, err := resolvePlayer(ctx, e, args[0])
				if err != nil {
					return err
				}
				display := strings.TrimSpace(name)
				if display == "" {
					fallback := args[0]
					if _, parseErr := uuid.Parse(args[0]); parseErr == nil {
						fallback = ""
					}
					if display, err = knownName(ctx, e, principal, fallback); err != nil {
						return err
					}
				}

				roleName := access.NormalizeRoleName(args[1])
				if duration != 0 {
					if err := e.AssignFor(ctx, principal, display, roleName, duration); err != nil {
						return err
					}
					cmd.Printf("Assigned %s to %s for %s\n", roleName, playerLabel(principal, display), duration)
					return nil
				}
				if err := e.Assign(ctx, principal, display, roleName, nil); err != nil {
					return err
				}
				cmd.Printf("Assigned %s to %s\n", roleName, playerLabel(principal, display))
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 0, "make the assignment temporary (e.g., 30m, 24h)")
	cmd.Flags().StringVar(&name, "name", "", "player display name to record")
	return cmd
}

func (c *cli) newUserInfoCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "info <player>",
		Short: "Show a player's active role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd, func(ctx context.Context, e *access.Engine) error {
				principal, err := resolvePlayer(ctx, e, args[0])
				if err != nil {
					return err
				}
				a, found, err := e.Assignment(ctx, principal)
				if err != nil {
					return err
				}
				role, err := e.ActiveRole(ctx, principal)
				if err != nil {
					return err
				}

				view := userView{
					Principal: principal.String(),
					Name:      a.Name,
					Role:      role.Name,
					Assigned:  found,
					ExpiresAt: a.ExpiresAt,
				}
				if jsonOutput {
					return writeJSON(cmd.OutOrStdout(), view)
				}

				cmd.Printf("Player:  %s\n", playerLabel(principal, view.Name))
				switch {
				case !found:
					cmd.Printf("Role:    %s (default, never assigned)\n", role.Name)
				case view.ExpiresAt != nil:
					cmd.Printf("Role:    %s (expires %s)\n", role.Name, view.ExpiresAt.UTC().Format(time.RFC3339))
				default:
					cmd.Printf("Role:    %s (permanent)\n", role.Name)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func playerLabel(principal uuid.UUID, name string) string {
	if name == "" {
		return principal.String()
	}
	return name + " (" + principal.String() + ")"
}
