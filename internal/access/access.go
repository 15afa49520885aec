// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Galacticfy Contributors

// Package access resolves role-based permissions for the Galacticfy proxy.
//
// A principal holds exactly one role at a time (or the default role). Roles
// inherit from other roles, and every grant is scoped:
//   - "GLOBAL": applies everywhere
//   - "PROXY": applies only while the principal is not on a backend server
//   - any other string: applies on the backend server of that name
//
// Permission nodes are lowercase dot-segmented strings. A node of "*" grants
// everything; a node ending in ".*" grants every node below its prefix.
package access

import (
	"context"

	"github.com/google/uuid"
)

// Checker answers permission questions for the host's authorization hook.
type Checker interface {
	// Check returns true if principal holds node on server. uuid.Nil stands
	// for the operator console and is always allowed. Errors deny.
	Check(ctx context.Context, principal uuid.UUID, node, server string) bool
}

// Subject is the caller of an authorization decision. It is either Console
// or Player.
type Subject interface {
	subject()
}

// Console is the operator console. It bypasses every check.
type Console struct{}

func (Console) subject() {}

// Player is a principal connected through the proxy. Server is the backend
// the player is attached to, or empty while on the proxy only.
type Player struct {
	ID     uuid.UUID
	Server string
}

func (Player) subject() {}

// Authorize dispatches on the subject kind and returns the decision.
func Authorize(ctx context.Context, c Checker, s Subject, node string) bool {
	switch s := s.(type) {
	case Console:
		return true
	case Player:
		if s.ID == uuid.Nil {
			return false
		}
		return c.Check(ctx, s.ID, node, s.Server)
	default:
		return false
	}
}
