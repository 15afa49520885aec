// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Galacticfy Contributors

package access

import (
	"context"

	"github.com/google/uuid"
)

// RoleRepository persists roles. DeleteRole must also remove the role's
// grants and every inheritance edge naming it, in one atomic step.
type RoleRepository interface {
	ListRoles(ctx context.Context) ([]Role, error)
	// CreateRole inserts role and sets role.ID. A duplicate name returns a
	// CodeRoleExists error.
	CreateRole(ctx context.Context, role *Role) error
	UpdateRole(ctx context.Context, role *Role) error
	DeleteRole(ctx context.Context, id int64) error
}

// GrantRepository persists role grants.
type GrantRepository interface {
	ListGrants(ctx context.Context) ([]RoleGrant, error)
	// AddGrant is a no-op when the grant already exists.
	AddGrant(ctx context.Context, roleID int64, g Grant) error
	// RemoveGrants deletes node under every scope and returns the number removed.
	RemoveGrants(ctx context.Context, roleID int64, node string) (int64, error)
}

// InheritanceRepository persists inheritance edges.
type InheritanceRepository interface {
	ListEdges(ctx context.Context) ([]Edge, error)
	AddEdge(ctx context.Context, e Edge) error
	RemoveEdge(ctx context.Context, e Edge) (bool, error)
}

// AssignmentRepository persists per-principal role assignments.
type AssignmentRepository interface {
	// GetAssignment returns an error wrapping ErrNotFound when the principal has no row.
	GetAssignment(ctx context.Context, principal uuid.UUID) (*Assignment, error)
	// SaveAssignment inserts or replaces the principal's row.
	SaveAssignment(ctx context.Context, a *Assignment) error
	// FindPrincipalByName matches the last known name case-insensitively.
	FindPrincipalByName(ctx context.Context, name string) (uuid.UUID, error)
}

// Repository is the full persistence collaborator of the Engine.
type Repository interface {
	RoleRepository
	GrantRepository
	InheritanceRepository
	AssignmentRepository
}
