// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Galacticfy Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/galacticfy/galacticfy/internal/access"
)

// roleView is the JSON form of a role.
type roleView struct {
	ID                int64    `json:"id"`
	Name              string   `json:"name"`
	DisplayName       string   `json:"display_name"`
	Color             string   `json:"color,omitempty"`
	Prefix            string   `json:"prefix,omitempty"`
	Suffix            string   `json:"suffix,omitempty"`
	Staff             bool     `json:"staff"`
	MaintenanceBypass bool     `json:"maintenance_bypass"`
	JoinPriority      int      `json:"join_priority"`
	Grants            []string `json:"grants,omitempty"`
	Parents           []string `json:"parents,omitempty"`
	Effective         int      `json:"effective_grants,omitempty"`
}

func newRoleView(r access.Role) roleView {
	return roleView{
		ID:                r.ID,
		Name:              r.Name,
		DisplayName:       r.DisplayName,
		Color:             r.Color,
		Prefix:            r.Prefix,
		Suffix:            r.Suffix,
		Staff:             r.Staff,
		MaintenanceBypass: r.MaintenanceBypass,
		JoinPriority:      r.JoinPriority,
	}
}

func formatGrant(g access.Grant) string {
	if g.Scope == access.ScopeGlobal {
		return g.Node
	}
	return g.Node + "@" + g.Scope
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	//nolint:wrapcheck // output error is reported as-is
	return enc.Encode(v)
}

func (c *cli) newRoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Manage roles, their grants and inheritance",
	}

	cmd.AddCommand(c.newRoleCreateCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <role>",
		Short: "Delete a role with its grants and inheritance edges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd, func(ctx context.Context, e *access.Engine) error {
				if err := e.DeleteRole(ctx, args[0]); err != nil {
					return err
				}
				cmd.Printf("Deleted role %s\n", access.NormalizeRoleName(args[0]))
				return nil
			})
		},
	})
	cmd.AddCommand(c.newRoleListCmd())
	cmd.AddCommand(c.newRoleInfoCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "grant <role> <node> [scope]",
		Short: "Grant a permission node, optionally limited to PROXY or one server",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope := access.ScopeGlobal
			if len(args) == 3 {
				scope = args[2]
			}
			return c.withEngine(cmd, func(ctx context.Context, e *access.Engine) error {
				if err := e.Grant(ctx, args[0], args[1], scope); err != nil {
					return err
				}
				g := access.Grant{Node: access.NormalizeNode(args[1]), Scope: access.NormalizeScope(scope)}
				cmd.Printf("Granted %s to %s\n", formatGrant(g), access.NormalizeRoleName(args[0]))
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "revoke <role> <node>",
		Short: "Revoke a permission node under every scope",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd, func(ctx context.Context, e *access.Engine) error {
				if err := e.Revoke(ctx, args[0], args[1]); err != nil {
					return err
				}
				cmd.Printf("Revoked %s from %s\n", access.NormalizeNode(args[1]), access.NormalizeRoleName(args[0]))
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "inherit <role> <parent>",
		Short: "Make a role inherit every grant of parent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd, func(ctx context.Context, e *access.Engine) error {
				if err := e.AddParent(ctx, args[0], args[1]); err != nil {
					return err
				}
				cmd.Printf("%s now inherits from %s\n", access.NormalizeRoleName(args[0]), access.NormalizeRoleName(args[1]))
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "uninherit <role> <parent>",
		Short: "Remove an inheritance edge",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd, func(ctx context.Context, e *access.Engine) error {
				if err := e.RemoveParent(ctx, args[0], args[1]); err != nil {
					return err
				}
				cmd.Printf("%s no longer inherits from %s\n", access.NormalizeRoleName(args[0]), access.NormalizeRoleName(args[1]))
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "prefix <role> <prefix>",
		Short: "Set a role's chat prefix (\"\" clears it)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd, func(ctx context.Context, e *access.Engine) error {
				if err := e.UpdatePrefix(ctx, args[0], args[1]); err != nil {
					return err
				}
				cmd.Printf("Prefix of %s set to %q\n", access.NormalizeRoleName(args[0]), args[1])
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "suffix <role> <suffix>",
		Short: "Set a role's chat suffix (\"\" clears it)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd, func(ctx context.Context, e *access.Engine) error {
				if err := e.UpdateSuffix(ctx, args[0], args[1]); err != nil {
					return err
				}
				cmd.Printf("Suffix of %s set to %q\n", access.NormalizeRoleName(args[0]), args[1])
				return nil
			})
		},
	})

	return cmd
}

func (c *cli) newRoleCreateCmd() *cobra.Command {
	var spec access.RoleSpec

	cmd := &cobra.Command{
		Use:   "create <role>",
		Short: "Create a role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec.Name = args[0]
			return c.withEngine(cmd, func(ctx context.Context, e *access.Engine) error {
				role, err := e.CreateRole(ctx, spec)
				if err != nil {
					return err
				}
				cmd.Printf("Created role %s (id %d)\n", role.Name, role.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&spec.DisplayName, "display-name", "", "display name (default: the role name)")
	cmd.Flags().StringVar(&spec.Color, "color", "", "display color")
	cmd.Flags().StringVar(&spec.Prefix, "prefix", "", "chat prefix")
	cmd.Flags().StringVar(&spec.Suffix, "suffix", "", "chat suffix")
	cmd.Flags().BoolVar(&spec.Staff, "staff", false, "mark as a staff role")
	cmd.Flags().BoolVar(&spec.MaintenanceBypass, "maintenance-bypass", false, "allow joining during maintenance")
	cmd.Flags().IntVar(&spec.JoinPriority, "priority", 0, "join priority, higher sorts first")

	return cmd
}

func (c *cli) newRoleListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List roles by join priority",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withEngine(cmd, func(_ context.Context, e *access.Engine) error {
				roles := e.Roles()
				if jsonOutput {
					views := make([]roleView, 0, len(roles))
					for _, r := range roles {
						views = append(views, newRoleView(r))
					}
					return writeJSON(cmd.OutOrStdout(), views)
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tDISPLAY\tPRIORITY\tSTAFF\tPREFIX")
				for _, r := range roles {
					fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%q\n", r.Name, r.DisplayName, r.JoinPriority, r.Staff, r.Prefix)
				}
				//nolint:wrapcheck // output error is reported as-is
				return w.Flush()
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output roles as JSON")
	return cmd
}

func (c *cli) newRoleInfoCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "info <role>",
		Short: "Show a role with its grants and parents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd, func(_ context.Context, e *access.Engine) error {
				view, err := describeRole(e, args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd.OutOrStdout(), view)
				}
				printRole(cmd, view)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output the role as JSON")
	return cmd
}

func describeRole(e *access.Engine, name string) (roleView, error) {
	grants, err := e.Grants(name)
	if err != nil {
		return roleView{}, err
	}
	role, _ := e.RoleByName(name)
	view := newRoleView(role)
	for _, g := range grants {
		view.Grants = append(view.Grants, formatGrant(g))
	}

	parents, err := e.Parents(role.Name)
	if err != nil {
		return roleView{}, err
	}
	for _, p := range parents {
		view.Parents = append(view.Parents, p.Name)
	}

	set, err := e.EffectivePermissions(role.Name)
	if err != nil {
		return roleView{}, err
	}
	view.Effective = set.Len()
	return view, nil
}

func printRole(cmd *cobra.Command, v roleView) {
	cmd.Printf("Role:        %s (id %d)\n", v.Name, v.ID)
	cmd.Printf("Display:     %s\n", v.DisplayName)
	if v.Color != "" {
		cmd.Printf("Color:       %s\n", v.Color)
	}
	cmd.Printf("Prefix:      %q\n", v.Prefix)
	cmd.Printf("Suffix:      %q\n", v.Suffix)
	cmd.Printf("Priority:    %d\n", v.JoinPriority)
	cmd.Printf("Staff:       %t\n", v.Staff)
	cmd.Printf("Maintenance: %t\n", v.MaintenanceBypass)
	cmd.Printf("Parents:     %s\n", orNone(v.Parents))
	cmd.Printf("Grants:      %s\n", orNone(v.Grants))
	cmd.Printf("Effective:   %d grants\n", v.Effective)
}

func orNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}
