// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Galacticfy Contributors

package seed

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"github.com/galacticfy/galacticfy/internal/access"
)

// Engine is the part of access.Engine Apply needs.
type Engine interface {
	DefaultRole() string
	RoleByName(name string) (access.Role, bool)
	CreateRole(ctx context.Context, spec access.RoleSpec) (access.Role, error)
	UpdateRole(ctx context.Context, name string, spec access.RoleSpec) (access.Role, error)
	Grants(roleName string) ([]access.Grant, error)
	Grant(ctx context.Context, roleName, node, scope string) error
	Parents(roleName string) ([]access.Role, error)
	AddParent(ctx context.Context, roleName, parentName string) error
}

var _ Engine = (*access.Engine)(nil)

// Result counts the changes Apply made.
type Result struct {
	RolesCreated int
	RolesUpdated int
	GrantsAdded  int
	EdgesAdded   int
}

// Changed reports whether Apply wrote anything.
func (r Result) Changed() bool {
	return r.RolesCreated+r.RolesUpdated+r.GrantsAdded+r.EdgesAdded > 0
}

// Apply brings the engine in line with f. It only adds: roles, grants and
// edges missing from the engine are created and role metadata is
// overwritten, but nothing absent from f is removed. Applying the same file
// twice changes nothing the second time.
func Apply(ctx context.Context, engine Engine, f *File) (Result, error) {
	var res Result

	if f.DefaultRole != "" {
		if want := access.NormalizeRoleName(f.DefaultRole); want != engine.DefaultRole() {
			return res, oops.In("seed").Code(CodeInvalid).
				With("file_default_role", want).
				With("engine_default_role", engine.DefaultRole()).
				Errorf("roles file declares default role %q but the engine uses %q", want, engine.DefaultRole())
		}
	}

	// Roles first so grants and edges can reference roles declared later.
	for _, def := range f.Roles {
		spec := def.Spec()
		existing, ok := engine.RoleByName(def.Name)
		if !ok {
			if _, err := engine.CreateRole(ctx, spec); err != nil {
				return res, oops.In("seed").With("role", def.Name).Wrap(err)
			}
			res.RolesCreated++
			continue
		}
		if sameMetadata(existing, spec) {
			continue
		}
		if _, err := engine.UpdateRole(ctx, def.Name, spec); err != nil {
			return res, oops.In("seed").With("role", def.Name).Wrap(err)
		}
		res.RolesUpdated++
	}

	for _, def := range f.Roles {
		added, err := applyGrants(ctx, engine, def)
		res.GrantsAdded += added
		if err != nil {
			return res, err
		}
	}

	for _, def := range f.Roles {
		added, err := applyParents(ctx, engine, def)
		res.EdgesAdded += added
		if err != nil {
			return res, err
		}
	}

	slog.InfoContext(ctx, "roles file applied",
		"roles_created", res.RolesCreated,
		"roles_updated", res.RolesUpdated,
		"grants_added", res.GrantsAdded,
		"edges_added", res.EdgesAdded)
	return res, nil
}

func sameMetadata(r access.Role, spec access.RoleSpec) bool {
	want := r
	want.DisplayName = spec.DisplayName
	if want.DisplayName == "" {
		want.DisplayName = r.Name
	}
	want.Color = spec.Color
	want.Prefix = spec.Prefix
	want.Suffix = spec.Suffix
	want.Staff = spec.Staff
	want.MaintenanceBypass = spec.MaintenanceBypass
	want.JoinPriority = spec.JoinPriority
	return want == r
}

func applyGrants(ctx context.Context, engine Engine, def RoleDef) (int, error) {
	current, err := engine.Grants(def.Name)
	if err != nil {
		return 0, oops.In("seed").With("role", def.Name).Wrap(err)
	}
	have := make(map[access.Grant]bool, len(current))
	for _, g := range current {
		have[g] = true
	}

	added := 0
	for _, p := range def.Permissions {
		g := access.Grant{Node: access.NormalizeNode(p.Node), Scope: access.NormalizeScope(p.Scope)}
		if have[g] {
			continue
		}
		if err := engine.Grant(ctx, def.Name, g.Node, g.Scope); err != nil {
			return added, oops.In("seed").With("role", def.Name).With("node", g.Node).Wrap(err)
		}
		have[g] = true
		added++
	}
	return added, nil
}

func applyParents(ctx context.Context, engine Engine, def RoleDef) (int, error) {
	current, err := engine.Parents(def.Name)
	if err != nil {
		return 0, oops.In("seed").With("role", def.Name).Wrap(err)
	}
	have := make(map[string]bool, len(current))
	for _, p := range current {
		have[p.Name] = true
	}

	added := 0
	for _, parent := range def.Inherits {
		parent = access.NormalizeRoleName(parent)
		if have[parent] {
			continue
		}
		if err := engine.AddParent(ctx, def.Name, parent); err != nil {
			return added, oops.In("seed").With("role", def.Name).With("parent", parent).Wrap(err)
		}
		have[parent] = true
		added++
	}
	return added, nil
}
