// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Galacticfy Contributors

// Package postgres implements access.Repository on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/galacticfy/galacticfy/internal/access"
)

// poolIface is the subset of pgxpool.Pool the store needs. pgxmock satisfies it.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists roles, grants, inheritance edges and assignments.
type Store struct {
	pool poolIface
}

// New creates a Store backed by pool.
func New(pool poolIface) *Store {
	return &Store{pool: pool}
}

var _ access.Repository = (*Store)(nil)

const roleColumns = `id, name, display_name, color, prefix, suffix, staff, maintenance_bypass, join_priority`

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// ListRoles implements access.RoleRepository.
func (s *Store) ListRoles(ctx context.Context) ([]access.Role, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY id`)
	if err != nil {
		return nil, oops.In("postgres").With("operation", "list roles").Wrap(err)
	}
	defer rows.Close()

	var roles []access.Role
	for rows.Next() {
		var r access.Role
		if err := rows.Scan(&r.ID, &r.Name, &r.DisplayName, &r.Color, &r.Prefix, &r.Suffix,
			&r.Staff, &r.MaintenanceBypass, &r.JoinPriority); err != nil {
			return nil, oops.In("postgres").With("operation", "scan role row").Wrap(err)
		}
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.In("postgres").With("operation", "iterate roles").Wrap(err)
	}
	return roles, nil
}

// CreateRole implements access.RoleRepository.
func (s *Store) CreateRole(ctx context.Context, role *access.Role) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO roles (name, display_name, color, prefix, suffix, staff, maintenance_bypass, join_priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, role.Name, role.DisplayName, role.Color, role.Prefix, role.Suffix,
		role.Staff, role.MaintenanceBypass, role.JoinPriority).Scan(&role.ID)
	if pgErrorCode(err) == pgerrcode.UniqueViolation {
		return oops.In("postgres").Code(access.CodeRoleExists).With("role", role.Name).Wrap(err)
	}
	if err != nil {
		return oops.In("postgres").With("operation", "create role").With("role", role.Name).Wrap(err)
	}
	return nil
}

// UpdateRole implements access.RoleRepository.
func (s *Store) UpdateRole(ctx context.Context, role *access.Role) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE roles
		SET display_name = $2, color = $3, prefix = $4, suffix = $5,
		    staff = $6, maintenance_bypass = $7, join_priority = $8
		WHERE id = $1
	`, role.ID, role.DisplayName, role.Color, role.Prefix, role.Suffix,
		role.Staff, role.MaintenanceBypass, role.JoinPriority)
	if err != nil {
		return oops.In("postgres").With("operation", "update role").With("role_id", role.ID).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.In("postgres").With("role_id", role.ID).Wrap(access.ErrNotFound)
	}
	return nil
}

// DeleteRole implements access.RoleRepository. Grants and edges go with the
// role through ON DELETE CASCADE in the same statement.
func (s *Store) DeleteRole(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return oops.In("postgres").With("operation", "delete role").With("role_id", id).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.In("postgres").With("role_id", id).Wrap(access.ErrNotFound)
	}
	return nil
}

// ListGrants implements access.GrantRepository.
func (s *Store) ListGrants(ctx context.Context) ([]access.RoleGrant, error) {
	rows, err := s.pool.Query(ctx, `SELECT role_id, node, scope FROM role_permissions`)
	if err != nil {
		return nil, oops.In("postgres").With("operation", "list grants").Wrap(err)
	}
	defer rows.Close()

	var grants []access.RoleGrant
	for rows.Next() {
		var g access.RoleGrant
		if err := rows.Scan(&g.RoleID, &g.Node, &g.Scope); err != nil {
			return nil, oops.In("postgres").With("operation", "scan grant row").Wrap(err)
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.In("postgres").With("operation", "iterate grants").Wrap(err)
	}
	return grants, nil
}

// AddGrant implements access.GrantRepository.
func (s *Store) AddGrant(ctx context.Context, roleID int64, g access.Grant) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO role_permissions (role_id, node, scope)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, roleID, g.Node, g.Scope)
	if pgErrorCode(err) == pgerrcode.ForeignKeyViolation {
		return oops.In("postgres").With("role_id", roleID).Wrap(access.ErrNotFound)
	}
	if err != nil {
		return oops.In("postgres").
			With("operation", "add grant").
			With("role_id", roleID).
			With("node", g.Node).
			Wrap(err)
	}
	return nil
}

// RemoveGrants implements access.GrantRepository.
func (s *Store) RemoveGrants(ctx context.Context, roleID int64, node string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM role_permissions WHERE role_id = $1 AND node = $2`, roleID, node)
	if err != nil {
		return 0, oops.In("postgres").
			With("operation", "remove grants").
			With("role_id", roleID).
			With("node", node).
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

// ListEdges implements access.InheritanceRepository.
func (s *Store) ListEdges(ctx context.Context) ([]access.Edge, error) {
	rows, err := s.pool.Query(ctx, `SELECT role_id, parent_id FROM role_inheritance`)
	if err != nil {
		return nil, oops.In("postgres").With("operation", "list edges").Wrap(err)
	}
	defer rows.Close()

	var edges []access.Edge
	for rows.Next() {
		var e access.Edge
		if err := rows.Scan(&e.RoleID, &e.ParentID); err != nil {
			return nil, oops.In("postgres").With("operation", "scan edge row").Wrap(err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.In("postgres").With("operation", "iterate edges").Wrap(err)
	}
	return edges, nil
}

// AddEdge implements access.InheritanceRepository.
func (s *Store) AddEdge(ctx context.Context, e access.Edge) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO role_inheritance (role_id, parent_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, e.RoleID, e.ParentID)
	if pgErrorCode(err) == pgerrcode.ForeignKeyViolation {
		return oops.In("postgres").With("role_id", e.RoleID).With("parent_id", e.ParentID).Wrap(access.ErrNotFound)
	}
	if err != nil {
		return oops.In("postgres").
			With("operation", "add edge").
			With("role_id", e.RoleID).
			With("parent_id", e.ParentID).
			Wrap(err)
	}
	return nil
}

// RemoveEdge implements access.InheritanceRepository.
func (s *Store) RemoveEdge(ctx context.Context, e access.Edge) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM role_inheritance WHERE role_id = $1 AND parent_id = $2`, e.RoleID, e.ParentID)
	if err != nil {
		return false, oops.In("postgres").
			With("operation", "remove edge").
			With("role_id", e.RoleID).
			With("parent_id", e.ParentID).
			Wrap(err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetAssignment implements access.AssignmentRepository.
func (s *Store) GetAssignment(ctx context.Context, principal uuid.UUID) (*access.Assignment, error) {
	var (
		a         access.Assignment
		id        string
		expiresAt *time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT principal_id::text, name, role_id, expires_at
		FROM user_roles
		WHERE principal_id = $1
	`, principal.String()).Scan(&id, &a.Name, &a.RoleID, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.In("postgres").With("principal", principal.String()).Wrap(access.ErrNotFound)
	}
	if err != nil {
		return nil, oops.In("postgres").With("operation", "get assignment").With("principal", principal.String()).Wrap(err)
	}

	a.PrincipalID, err = uuid.Parse(id)
	if err != nil {
		return nil, oops.In("postgres").With("operation", "parse principal id").With("value", id).Wrap(err)
	}
	a.ExpiresAt = expiresAt
	return &a, nil
}

// SaveAssignment implements access.AssignmentRepository.
func (s *Store) SaveAssignment(ctx context.Context, a *access.Assignment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_roles (principal_id, name, role_id, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (principal_id) DO UPDATE
		SET name = EXCLUDED.name,
		    role_id = EXCLUDED.role_id,
		    expires_at = EXCLUDED.expires_at,
		    updated_at = now()
	`, a.PrincipalID.String(), a.Name, a.RoleID, a.ExpiresAt)
	if err != nil {
		return oops.In("postgres").
			With("operation", "save assignment").
			With("principal", a.PrincipalID.String()).
			With("role_id", a.RoleID).
			Wrap(err)
	}
	return nil
}

// FindPrincipalByName implements access.AssignmentRepository. When several
// principals share a name the earliest assigned wins.
func (s *Store) FindPrincipalByName(ctx context.Context, name string) (uuid.UUID, error) {
	var id string
	err := s.pool.QueryRow(ctx, `
		SELECT principal_id::text
		FROM user_roles
		WHERE LOWER(name) = LOWER($1)
		ORDER BY created_at, principal_id
		LIMIT 1
	`, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, oops.In("postgres").With("name", name).Wrap(access.ErrNotFound)
	}
	if err != nil {
		return uuid.Nil, oops.In("postgres").With("operation", "find principal").With("name", name).Wrap(err)
	}

	principal, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, oops.In("postgres").With("operation", "parse principal id").With("value", id).Wrap(err)
	}
	return principal, nil
}
