// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Galacticfy Contributors

package access

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// Default engine configuration values.
const (
	DefaultRoleName            = "default"
	DefaultAssignmentCacheSize = 10_000
)

// Option configures an Engine.
type Option func(*engineConfig)

type engineConfig struct {
	defaultRole string
	cacheSize   int
	clock       func() time.Time
}

// WithDefaultRole sets the name of the role held by principals without an
// assignment. The role is created on Load if missing.
func WithDefaultRole(name string) Option {
	return func(c *engineConfig) {
		c.defaultRole = NormalizeRoleName(name)
	}
}

// WithAssignmentCacheSize bounds the number of cached principal assignments.
func WithAssignmentCacheSize(n int) Option {
	return func(c *engineConfig) {
		c.cacheSize = n
	}
}

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(c *engineConfig) {
		c.clock = now
	}
}

// Engine is the permission resolution engine. All methods are safe for
// concurrent use.
//
// Reads share mu; administrative mutations hold it exclusively for the
// persistence write and the cache update together, so a checker never
// observes half of a cascade. Reload holds it exclusively for the whole
// snapshot read.
//
// Resolving an active role reads the assignment repository under the read
// lock, and an expiry reset writes through under it too. A slow repository
// therefore delays writers, and a waiting writer delays new checks.
type Engine struct {
	repo Repository
	cfg  engineConfig

	mu          sync.RWMutex
	roles       *roleTable
	grants      *grantIndex
	graph       *inheritanceGraph
	effective   *effectiveResolver
	assignments *assignmentCache

	loaded atomic.Bool
}

var _ Checker = (*Engine)(nil)

// NewEngine creates an Engine over repo. Call Load before serving checks.
func NewEngine(repo Repository, opts ...Option) (*Engine, error) {
	if repo == nil {
		return nil, oops.In("access").Code(CodeInvalidInput).Errorf("repository cannot be nil")
	}
	cfg := engineConfig{
		defaultRole: DefaultRoleName,
		cacheSize:   DefaultAssignmentCacheSize,
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.defaultRole == "" {
		return nil, oops.In("access").Code(CodeInvalidInput).Errorf("default role name cannot be empty")
	}

	assignments, err := newAssignmentCache(repo, cfg.cacheSize)
	if err != nil {
		return nil, err
	}

	grants := newGrantIndex()
	graph := newInheritanceGraph()
	return &Engine{
		repo:        repo,
		cfg:         cfg,
		roles:       newRoleTable(),
		grants:      grants,
		graph:       graph,
		effective:   newEffectiveResolver(grants, graph),
		assignments: assignments,
	}, nil
}

// Load reads all roles, grants and edges and makes sure the default role exists.
func (e *Engine) Load(ctx context.Context) error {
	if err := e.Reload(ctx); err != nil {
		return err
	}
	if err := e.EnsureDefaultRole(ctx); err != nil {
		return err
	}
	e.loaded.Store(true)
	return nil
}

// Ready reports whether Load has completed.
func (e *Engine) Ready() bool {
	return e.loaded.Load()
}

// DefaultRole returns the configured default role name.
func (e *Engine) DefaultRole() string {
	return e.cfg.defaultRole
}

// Reload replaces the in-memory roles, grants and edges with the repository's
// contents and drops every cached closure and assignment. On failure the
// previous state stays in place. The exclusive lock covers the reads as well
// as the swap, so a mutation cannot commit between them and be overwritten.
func (e *Engine) Reload(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	roles, err := e.repo.ListRoles(ctx)
	if err != nil {
		recordPersistenceFailure("list_roles")
		return oops.In("access").Code(CodePersistence).With("operation", "list roles").Wrap(err)
	}
	grants, err := e.repo.ListGrants(ctx)
	if err != nil {
		recordPersistenceFailure("list_grants")
		return oops.In("access").Code(CodePersistence).With("operation", "list grants").Wrap(err)
	}
	edges, err := e.repo.ListEdges(ctx)
	if err != nil {
		recordPersistenceFailure("list_edges")
		return oops.In("access").Code(CodePersistence).With("operation", "list edges").Wrap(err)
	}

	e.roles.replaceAll(roles)
	e.grants.replaceAll(grants)
	e.graph.replaceAll(edges)
	e.effective.invalidate()
	e.assignments.purge()

	slog.InfoContext(ctx, "permission data loaded",
		"roles", len(roles),
		"grants", len(grants),
		"edges", len(edges))
	return nil
}

// EnsureDefaultRole creates the default role if it does not exist yet.
func (e *Engine) EnsureDefaultRole(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.roles.lookup(e.cfg.defaultRole); ok {
		return nil
	}
	_, err := e.createRole(ctx, RoleSpec{Name: e.cfg.defaultRole})
	if IsAlreadyExists(err) {
		// Created by another process since our last load.
		return e.reloadRoleLocked(ctx, e.cfg.defaultRole)
	}
	return err
}

func (e *Engine) reloadRoleLocked(ctx context.Context, name string) error {
	roles, err := e.repo.ListRoles(ctx)
	if err != nil {
		recordPersistenceFailure("list_roles")
		return oops.In("access").Code(CodePersistence).With("operation", "list roles").Wrap(err)
	}
	for _, r := range roles {
		if r.Name == name {
			e.roles.put(r)
			e.effective.invalidate()
			return nil
		}
	}
	return roleNotFound(name)
}

// CreateRole creates a role. The name is lowercased before the uniqueness check.
func (e *Engine) CreateRole(ctx context.Context, spec RoleSpec) (Role, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.createRole(ctx, spec)
}

func (e *Engine) createRole(ctx context.Context, spec RoleSpec) (Role, error) {
	name := NormalizeRoleName(spec.Name)
	if name == "" {
		return Role{}, invalidInput("role name cannot be empty")
	}
	if strings.ContainsAny(name, " \t\n") {
		return Role{}, invalidInput("role name %q cannot contain whitespace", name)
	}
	if _, ok := e.roles.lookup(name); ok {
		return Role{}, oops.In("access").Code(CodeRoleExists).With("role", name).Errorf("role already exists")
	}

	role := Role{Name: name}
	spec.apply(&role)
	if err := e.repo.CreateRole(ctx, &role); err != nil {
		if IsAlreadyExists(err) {
			return Role{}, err
		}
		recordPersistenceFailure("create_role")
		return Role{}, oops.In("access").Code(CodePersistence).With("operation", "create role").With("role", name).Wrap(err)
	}

	e.roles.put(role)
	e.effective.invalidate()
	slog.InfoContext(ctx, "role created", "role", role.Name, "id", role.ID)
	return role, nil
}

// DeleteRole deletes a role together with its grants and every inheritance
// edge naming it. The default role cannot be deleted.
func (e *Engine) DeleteRole(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	role, ok := e.roles.lookup(name)
	if !ok {
		return roleNotFound(NormalizeRoleName(name))
	}
	if role.Name == e.cfg.defaultRole {
		return invalidInput("the default role %q cannot be deleted", role.Name)
	}

	if err := e.repo.DeleteRole(ctx, role.ID); err != nil {
		if IsNotFound(err) {
			return err
		}
		recordPersistenceFailure("delete_role")
		return oops.In("access").Code(CodePersistence).With("operation", "delete role").With("role", role.Name).Wrap(err)
	}

	e.roles.remove(role.ID)
	e.grants.purge(role.ID)
	e.graph.purge(role.ID)
	e.effective.invalidate()
	slog.InfoContext(ctx, "role deleted", "role", role.Name, "id", role.ID)
	return nil
}

// UpdateRole replaces every metadata field of a role. Name and ID are kept.
func (e *Engine) UpdateRole(ctx context.Context, name string, spec RoleSpec) (Role, error) {
	return e.updateRole(ctx, name, func(r *Role) {
		spec.apply(r)
	})
}

// UpdatePrefix replaces a role's chat prefix.
func (e *Engine) UpdatePrefix(ctx context.Context, name, prefix string) error {
	_, err := e.updateRole(ctx, name, func(r *Role) { r.Prefix = prefix })
	return err
}

// UpdateSuffix replaces a role's chat suffix.
func (e *Engine) UpdateSuffix(ctx context.Context, name, suffix string) error {
	_, err := e.updateRole(ctx, name, func(r *Role) { r.Suffix = suffix })
	return err
}

func (e *Engine) updateRole(ctx context.Context, name string, mutate func(*Role)) (Role, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	role, ok := e.roles.lookup(name)
	if !ok {
		return Role{}, roleNotFound(NormalizeRoleName(name))
	}
	updated := role
	mutate(&updated)

	if err := e.repo.UpdateRole(ctx, &updated); err != nil {
		if IsNotFound(err) {
			return Role{}, err
		}
		recordPersistenceFailure("update_role")
		return Role{}, oops.In("access").Code(CodePersistence).With("operation", "update role").With("role", role.Name).Wrap(err)
	}

	e.roles.put(updated)
	e.effective.invalidate()
	return updated, nil
}

// RoleByName looks a role up case-insensitively.
func (e *Engine) RoleByName(name string) (Role, bool) {
	return e.roles.lookup(name)
}

// RoleByID looks a role up by id.
func (e *Engine) RoleByID(id int64) (Role, bool) {
	return e.roles.get(id)
}

// Roles returns every role ordered by join priority descending, then name.
func (e *Engine) Roles() []Role {
	return e.roles.list()
}

// RoleNames returns every role name ordered by join priority descending, then name.
func (e *Engine) RoleNames() []string {
	return e.roles.names()
}

// StaffRoles returns the roles flagged as staff, in priority order.
func (e *Engine) StaffRoles() []Role {
	var staff []Role
	for _, r := range e.roles.list() {
		if r.Staff {
			staff = append(staff, r)
		}
	}
	return staff
}

// Grant grants node to a role under scope. A blank scope means ScopeGlobal.
// Granting an existing (node, scope) pair succeeds without writing.
func (e *Engine) Grant(ctx context.Context, roleName, node, scope string) error {
	node = NormalizeNode(node)
	scope = NormalizeScope(scope)
	if node == "" {
		return invalidInput("permission node cannot be empty")
	}
	if strings.ContainsAny(node, " \t\n") {
		return invalidInput("permission node %q cannot contain whitespace", node)
	}
	if strings.ContainsAny(scope, " \t\n") {
		return invalidInput("scope %q cannot contain whitespace", scope)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	role, ok := e.roles.lookup(roleName)
	if !ok {
		return roleNotFound(NormalizeRoleName(roleName))
	}
	g := Grant{Node: node, Scope: scope}
	if e.grants.has(role.ID, g) {
		return nil
	}

	if err := e.repo.AddGrant(ctx, role.ID, g); err != nil {
		recordPersistenceFailure("add_grant")
		return oops.In("access").Code(CodePersistence).
			With("operation", "add grant").
			With("role", role.Name).
			With("node", node).
			With("scope", scope).
			Wrap(err)
	}

	e.grants.add(role.ID, g)
	e.effective.invalidate()
	return nil
}

// Revoke removes node from a role under every scope it was granted in.
func (e *Engine) Revoke(ctx context.Context, roleName, node string) error {
	node = NormalizeNode(node)
	if node == "" {
		return invalidInput("permission node cannot be empty")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	role, ok := e.roles.lookup(roleName)
	if !ok {
		return roleNotFound(NormalizeRoleName(roleName))
	}
	if !e.grants.hasNode(role.ID, node) {
		return oops.In("access").Code(CodeGrantNotFound).
			With("role", role.Name).
			With("node", node).
			Errorf("permission not granted")
	}

	if _, err := e.repo.RemoveGrants(ctx, role.ID, node); err != nil {
		recordPersistenceFailure("remove_grants")
		return oops.In("access").Code(CodePersistence).
			With("operation", "remove grants").
			With("role", role.Name).
			With("node", node).
			Wrap(err)
	}

	e.grants.removeNode(role.ID, node)
	e.effective.invalidate()
	return nil
}

// Grants returns the grants declared directly on a role.
func (e *Engine) Grants(roleName string) ([]Grant, error) {
	role, ok := e.roles.lookup(roleName)
	if !ok {
		return nil, roleNotFound(NormalizeRoleName(roleName))
	}
	return e.grants.list(role.ID), nil
}

// AddParent makes roleName inherit from parentName. Cycles are accepted;
// self-inheritance is not.
func (e *Engine) AddParent(ctx context.Context, roleName, parentName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	edge, err := e.edgeFor(roleName, parentName)
	if err != nil {
		return err
	}
	if e.graph.has(edge) {
		return nil
	}

	if err := e.repo.AddEdge(ctx, edge); err != nil {
		recordPersistenceFailure("add_edge")
		return oops.In("access").Code(CodePersistence).
			With("operation", "add edge").
			With("role", NormalizeRoleName(roleName)).
			With("parent", NormalizeRoleName(parentName)).
			Wrap(err)
	}

	e.graph.add(edge)
	e.effective.invalidate()
	return nil
}

// RemoveParent removes an inheritance edge. Removing an edge that does not
// exist returns a CodeEdgeNotFound error and changes nothing.
func (e *Engine) RemoveParent(ctx context.Context, roleName, parentName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	edge, err := e.edgeFor(roleName, parentName)
	if err != nil {
		return err
	}
	if !e.graph.has(edge) {
		return oops.In("access").Code(CodeEdgeNotFound).
			With("role", NormalizeRoleName(roleName)).
			With("parent", NormalizeRoleName(parentName)).
			Errorf("role does not inherit from parent")
	}

	if _, err := e.repo.RemoveEdge(ctx, edge); err != nil {
		recordPersistenceFailure("remove_edge")
		return oops.In("access").Code(CodePersistence).
			With("operation", "remove edge").
			With("role", NormalizeRoleName(roleName)).
			With("parent", NormalizeRoleName(parentName)).
			Wrap(err)
	}

	e.graph.remove(edge)
	e.effective.invalidate()
	return nil
}

func (e *Engine) edgeFor(roleName, parentName string) (Edge, error) {
	role, ok := e.roles.lookup(roleName)
	if !ok {
		return Edge{}, roleNotFound(NormalizeRoleName(roleName))
	}
	parent, ok := e.roles.lookup(parentName)
	if !ok {
		return Edge{}, roleNotFound(NormalizeRoleName(parentName))
	}
	if role.ID == parent.ID {
		return Edge{}, invalidInput("role %q cannot inherit from itself", role.Name)
	}
	return Edge{RoleID: role.ID, ParentID: parent.ID}, nil
}

// Parents returns the roles roleName inherits from directly.
func (e *Engine) Parents(roleName string) ([]Role, error) {
	role, ok := e.roles.lookup(roleName)
	if !ok {
		return nil, roleNotFound(NormalizeRoleName(roleName))
	}
	ids := e.graph.parentsOf(role.ID)
	parents := make([]Role, 0, len(ids))
	for _, id := range ids {
		if p, ok := e.roles.get(id); ok {
			parents = append(parents, p)
		}
	}
	return parents, nil
}

// EffectivePermissions returns the memoized closure of a role's grants.
func (e *Engine) EffectivePermissions(roleName string) (*PermissionSet, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	role, ok := e.roles.lookup(roleName)
	if !ok {
		return nil, roleNotFound(NormalizeRoleName(roleName))
	}
	return e.effective.resolve(role.ID), nil
}

// ActiveRole returns the role principal holds now, applying lazy expiry.
func (e *Engine) ActiveRole(ctx context.Context, principal uuid.UUID) (Role, error) {
	return e.ActiveRoleAt(ctx, principal, e.cfg.clock())
}

// ActiveRoleAt returns the role principal holds at now. An expired
// assignment is reset to the default role and the reset is persisted.
// A principal without an assignment, or whose role no longer exists, holds
// the default role.
func (e *Engine) ActiveRoleAt(ctx context.Context, principal uuid.UUID, now time.Time) (Role, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.activeRoleAt(ctx, principal, now)
}

func (e *Engine) activeRoleAt(ctx context.Context, principal uuid.UUID, now time.Time) (Role, error) {
	def, ok := e.roles.lookup(e.cfg.defaultRole)
	if !ok {
		return Role{}, oops.In("access").Code(CodeNotLoaded).
			With("default_role", e.cfg.defaultRole).
			Errorf("default role is not loaded")
	}

	a, found, err := e.assignments.lookup(ctx, principal, now, def.ID)
	if err != nil {
		return Role{}, err
	}
	if !found {
		return def, nil
	}
	role, ok := e.roles.get(a.RoleID)
	if !ok {
		return def, nil
	}
	return role, nil
}

// Assignment returns principal's stored assignment after lazy expiry. found
// is false when the principal has never been assigned a role.
func (e *Engine) Assignment(ctx context.Context, principal uuid.UUID) (a Assignment, found bool, err error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	def, ok := e.roles.lookup(e.cfg.defaultRole)
	if !ok {
		return Assignment{}, false, oops.In("access").Code(CodeNotLoaded).Errorf("default role is not loaded")
	}
	return e.assignments.lookup(ctx, principal, e.cfg.clock(), def.ID)
}

// Assign gives principal roleName until expiresAt, or permanently when
// expiresAt is nil. name is the principal's current display name.
func (e *Engine) Assign(ctx context.Context, principal uuid.UUID, name, roleName string, expiresAt *time.Time) error {
	if principal == uuid.Nil {
		return invalidInput("principal id cannot be empty")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	role, ok := e.roles.lookup(roleName)
	if !ok {
		return roleNotFound(NormalizeRoleName(roleName))
	}

	var expiry *time.Time
	if expiresAt != nil {
		t := *expiresAt
		expiry = &t
	}
	return e.assignments.save(ctx, Assignment{
		PrincipalID: principal,
		Name:        name,
		RoleID:      role.ID,
		ExpiresAt:   expiry,
	})
}

// AssignDefault moves principal back to the default role permanently.
func (e *Engine) AssignDefault(ctx context.Context, principal uuid.UUID, name string) error {
	return e.Assign(ctx, principal, name, e.cfg.defaultRole, nil)
}

// AssignFor gives principal roleName for d, starting now.
func (e *Engine) AssignFor(ctx context.Context, principal uuid.UUID, name, roleName string, d time.Duration) error {
	if d <= 0 {
		return invalidInput("duration must be positive, got %s", d)
	}
	expiresAt := e.cfg.clock().Add(d)
	return e.Assign(ctx, principal, name, roleName, &expiresAt)
}

// FindPrincipal resolves a last known display name to a principal id, for
// acting on players who are offline.
func (e *Engine) FindPrincipal(ctx context.Context, name string) (uuid.UUID, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return uuid.Nil, invalidInput("name cannot be empty")
	}
	id, err := e.repo.FindPrincipalByName(ctx, name)
	if IsNotFound(err) {
		return uuid.Nil, oops.In("access").Code(CodePrincipalNotFound).With("name", name).Wrap(err)
	}
	if err != nil {
		recordPersistenceFailure("find_principal")
		return uuid.Nil, oops.In("access").Code(CodePersistence).With("operation", "find principal").With("name", name).Wrap(err)
	}
	return id, nil
}

// Check implements Checker.
func (e *Engine) Check(ctx context.Context, principal uuid.UUID, node, server string) bool {
	start := time.Now()
	allowed := e.check(ctx, principal, node, server)
	recordCheck(time.Since(start), allowed)
	return allowed
}

func (e *Engine) check(ctx context.Context, principal uuid.UUID, node, server string) bool {
	if principal == uuid.Nil {
		return true
	}
	if strings.TrimSpace(node) == "" {
		return true
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	role, err := e.activeRoleAt(ctx, principal, e.cfg.clock())
	if err != nil {
		slog.WarnContext(ctx, "permission check denied: role unavailable",
			"principal", principal.String(),
			"node", node,
			"error", err)
		return false
	}

	set := e.effective.resolve(role.ID)
	if set.Len() == 0 {
		return false
	}
	return set.Allows(node, server)
}

// Authorize answers for a Console or Player subject.
func (e *Engine) Authorize(ctx context.Context, s Subject, node string) bool {
	return Authorize(ctx, e, s, node)
}

// CanBypassMaintenance reports whether principal's active role may join
// while the network is in maintenance. The console always may.
func (e *Engine) CanBypassMaintenance(ctx context.Context, principal uuid.UUID) bool {
	if principal == uuid.Nil {
		return true
	}
	role, err := e.ActiveRole(ctx, principal)
	if err != nil {
		slog.WarnContext(ctx, "maintenance bypass denied: role unavailable",
			"principal", principal.String(),
			"error", err)
		return false
	}
	return role.MaintenanceBypass
}
