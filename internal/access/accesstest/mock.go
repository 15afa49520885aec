// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Galacticfy Contributors

// Package accesstest provides test helpers for access control.
package accesstest

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/galacticfy/galacticfy/internal/access"
)

// AllowAll is a Checker that allows everything.
type AllowAll struct{}

// Check always returns true.
func (AllowAll) Check(_ context.Context, _ uuid.UUID, _, _ string) bool {
	return true
}

// DenyAll is a Checker that denies everything.
type DenyAll struct{}

// Check always returns false.
func (DenyAll) Check(_ context.Context, _ uuid.UUID, _, _ string) bool {
	return false
}

// Operation names accepted by MemoryStore.SetFailure and MemoryStore.Calls.
const (
	OpListRoles      = "ListRoles"
	OpCreateRole     = "CreateRole"
	OpUpdateRole     = "UpdateRole"
	OpDeleteRole     = "DeleteRole"
	OpListGrants     = "ListGrants"
	OpAddGrant       = "AddGrant"
	OpRemoveGrants   = "RemoveGrants"
	OpListEdges      = "ListEdges"
	OpAddEdge        = "AddEdge"
	OpRemoveEdge     = "RemoveEdge"
	OpGetAssignment  = "GetAssignment"
	OpSaveAssignment = "SaveAssignment"
	OpFindPrincipal  = "FindPrincipalByName"
)

// MemoryStore is an in-memory access.Repository with the same semantics as
// the PostgreSQL store: unique role names, cascading role deletes and
// idempotent grant inserts. Failures can be injected per operation.
type MemoryStore struct {
	mu          sync.Mutex
	nextID      int64
	roles       map[int64]access.Role
	grants      map[int64][]access.Grant
	edges       []access.Edge
	assignments map[uuid.UUID]access.Assignment
	order       []uuid.UUID
	failures    map[string]error
	calls       map[string]int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		roles:       make(map[int64]access.Role),
		grants:      make(map[int64][]access.Grant),
		assignments: make(map[uuid.UUID]access.Assignment),
		failures:    make(map[string]error),
		calls:       make(map[string]int),
	}
}

// SetFailure makes every subsequent call to op return err. A nil err clears it.
func (s *MemoryStore) SetFailure(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// Calls returns how many times op has been invoked, including failed calls.
func (s *MemoryStore) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// ResetCalls zeroes every call counter.
func (s *MemoryStore) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = make(map[string]int)
}

// PutAssignment stores a row directly, bypassing failure injection.
func (s *MemoryStore) PutAssignment(a access.Assignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putAssignment(a)
}

// StoredAssignment returns the persisted row for principal.
func (s *MemoryStore) StoredAssignment(principal uuid.UUID) (access.Assignment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[principal]
	return a, ok
}

// enter records a call and returns the injected failure, if any. Callers hold mu.
func (s *MemoryStore) enter(op string) error {
	s.calls[op]++
	return s.failures[op]
}

// ListRoles implements access.RoleRepository.
func (s *MemoryStore) ListRoles(_ context.Context) ([]access.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpListRoles); err != nil {
		return nil, err
	}
	roles := make([]access.Role, 0, len(s.roles))
	for _, r := range s.roles {
		roles = append(roles, r)
	}
	slices.SortFunc(roles, func(a, b access.Role) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return roles, nil
}

// CreateRole implements access.RoleRepository.
func (s *MemoryStore) CreateRole(_ context.Context, role *access.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpCreateRole); err != nil {
		return err
	}
	for _, r := range s.roles {
		if r.Name == role.Name {
			return oops.In("accesstest").Code(access.CodeRoleExists).With("role", role.Name).Errorf("role already exists")
		}
	}
	s.nextID++
	role.ID = s.nextID
	s.roles[role.ID] = *role
	return nil
}

// UpdateRole implements access.RoleRepository.
func (s *MemoryStore) UpdateRole(_ context.Context, role *access.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpUpdateRole); err != nil {
		return err
	}
	if _, ok := s.roles[role.ID]; !ok {
		return oops.In("accesstest").With("role_id", role.ID).Wrap(access.ErrNotFound)
	}
	s.roles[role.ID] = *role
	return nil
}

// DeleteRole implements access.RoleRepository.
func (s *MemoryStore) DeleteRole(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpDeleteRole); err != nil {
		return err
	}
	if _, ok := s.roles[id]; !ok {
		return oops.In("accesstest").With("role_id", id).Wrap(access.ErrNotFound)
	}
	delete(s.roles, id)
	delete(s.grants, id)
	s.edges = slices.DeleteFunc(s.edges, func(e access.Edge) bool {
		return e.RoleID == id || e.ParentID == id
	})
	return nil
}

// ListGrants implements access.GrantRepository.
func (s *MemoryStore) ListGrants(_ context.Context) ([]access.RoleGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpListGrants); err != nil {
		return nil, err
	}
	var out []access.RoleGrant
	for roleID, grants := range s.grants {
		for _, g := range grants {
			out = append(out, access.RoleGrant{RoleID: roleID, Grant: g})
		}
	}
	return out, nil
}

// AddGrant implements access.GrantRepository.
func (s *MemoryStore) AddGrant(_ context.Context, roleID int64, g access.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpAddGrant); err != nil {
		return err
	}
	if _, ok := s.roles[roleID]; !ok {
		return oops.In("accesstest").With("role_id", roleID).Wrap(access.ErrNotFound)
	}
	if slices.Contains(s.grants[roleID], g) {
		return nil
	}
	s.grants[roleID] = append(s.grants[roleID], g)
	return nil
}

// RemoveGrants implements access.GrantRepository.
func (s *MemoryStore) RemoveGrants(_ context.Context, roleID int64, node string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpRemoveGrants); err != nil {
		return 0, err
	}
	before := len(s.grants[roleID])
	s.grants[roleID] = slices.DeleteFunc(s.grants[roleID], func(g access.Grant) bool {
		return g.Node == node
	})
	return int64(before - len(s.grants[roleID])), nil
}

// ListEdges implements access.InheritanceRepository.
func (s *MemoryStore) ListEdges(_ context.Context) ([]access.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpListEdges); err != nil {
		return nil, err
	}
	return slices.Clone(s.edges), nil
}

// AddEdge implements access.InheritanceRepository.
func (s *MemoryStore) AddEdge(_ context.Context, e access.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpAddEdge); err != nil {
		return err
	}
	if slices.Contains(s.edges, e) {
		return nil
	}
	s.edges = append(s.edges, e)
	return nil
}

// RemoveEdge implements access.InheritanceRepository.
func (s *MemoryStore) RemoveEdge(_ context.Context, e access.Edge) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpRemoveEdge); err != nil {
		return false, err
	}
	i := slices.Index(s.edges, e)
	if i < 0 {
		return false, nil
	}
	s.edges = slices.Delete(s.edges, i, i+1)
	return true, nil
}

// GetAssignment implements access.AssignmentRepository.
func (s *MemoryStore) GetAssignment(_ context.Context, principal uuid.UUID) (*access.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpGetAssignment); err != nil {
		return nil, err
	}
	a, ok := s.assignments[principal]
	if !ok {
		return nil, oops.In("accesstest").With("principal", principal.String()).Wrap(access.ErrNotFound)
	}
	return &a, nil
}

// SaveAssignment implements access.AssignmentRepository.
func (s *MemoryStore) SaveAssignment(_ context.Context, a *access.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpSaveAssignment); err != nil {
		return err
	}
	s.putAssignment(*a)
	return nil
}

func (s *MemoryStore) putAssignment(a access.Assignment) {
	if a.ExpiresAt != nil {
		t := *a.ExpiresAt
		a.ExpiresAt = &t
	}
	if _, ok := s.assignments[a.PrincipalID]; !ok {
		s.order = append(s.order, a.PrincipalID)
	}
	s.assignments[a.PrincipalID] = a
}

// FindPrincipalByName implements access.AssignmentRepository. The first
// principal stored under a matching name wins.
func (s *MemoryStore) FindPrincipalByName(_ context.Context, name string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpFindPrincipal); err != nil {
		return uuid.Nil, err
	}
	for _, id := range s.order {
		if strings.EqualFold(s.assignments[id].Name, name) {
			return id, nil
		}
	}
	return uuid.Nil, oops.In("accesstest").With("name", name).Wrap(access.ErrNotFound)
}

var (
	_ access.Checker    = AllowAll{}
	_ access.Checker    = DenyAll{}
	_ access.Repository = (*MemoryStore)(nil)
)
