// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Galacticfy Contributors

package main

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/galacticfy/galacticfy/internal/access"
)

// consoleArg names the console on the command line.
const consoleArg = "console"

func (c *cli) newCheckCmd() *cobra.Command {
	var (
		server   string
		exitCode bool
	)

	cmd := &cobra.Command{
		Use:   "check <player> <node>",
		Short: "Decide one permission check",
		Long: `Prints whether a player holds a permission node, evaluated the way the
proxy does: on the proxy itself when --server is empty, or on a backend server.
The player may be a principal id, a last known name, or "console".`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd, func(ctx context.Context, e *access.Engine) error {
				principal := uuid.Nil
				if !strings.EqualFold(args[0], consoleArg) {
					var err error
					if principal, err = resolvePlayer(ctx, e, args[0]); err != nil {
						return err
					}
				}

				allowed := e.Check(ctx, principal, args[1], server)
				where := "proxy"
				if server != "" {
					where = "server " + server
				}
				verdict := "denied"
				if allowed {
					verdict = "allowed"
				}
				cmd.Printf("%s: %s on %s\n", verdict, access.NormalizeNode(args[1]), where)

				if !allowed && exitCode {
					return oops.In("cli").Code("PERMISSION_DENIED").
						With("node", access.NormalizeNode(args[1])).
						Errorf("permission denied")
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "backend server the player is on (empty = proxy)")
	cmd.Flags().BoolVar(&exitCode, "exit-code", false, "exit non-zero when the check is denied")
	return cmd
}
