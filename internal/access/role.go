// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Galacticfy Contributors

package access

import (
	"cmp"
	"slices"
	"strings"
	"sync"
)

// Role is a named bundle of permission grants plus presentation metadata.
// Name is stored lowercase and is unique; ID is assigned by the repository.
type Role struct {
	ID                int64
	Name              string
	DisplayName       string
	Color             string
	Prefix            string
	Suffix            string
	Staff             bool
	MaintenanceBypass bool
	JoinPriority      int
}

// RoleSpec carries the administrator-supplied fields for creating or
// replacing a role.
type RoleSpec struct {
	Name              string
	DisplayName       string
	Color             string
	Prefix            string
	Suffix            string
	Staff             bool
	MaintenanceBypass bool
	JoinPriority      int
}

// NormalizeRoleName returns the lookup form of a role name.
func NormalizeRoleName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (s RoleSpec) apply(r *Role) {
	r.DisplayName = s.DisplayName
	if r.DisplayName == "" {
		r.DisplayName = r.Name
	}
	r.Color = s.Color
	r.Prefix = s.Prefix
	r.Suffix = s.Suffix
	r.Staff = s.Staff
	r.MaintenanceBypass = s.MaintenanceBypass
	r.JoinPriority = s.JoinPriority
}

// compareRoles orders by join priority descending, then name ascending.
func compareRoles(a, b Role) int {
	if c := cmp.Compare(b.JoinPriority, a.JoinPriority); c != 0 {
		return c
	}
	return strings.Compare(a.Name, b.Name)
}

// roleTable is the in-memory view of the roles table, indexed both ways.
type roleTable struct {
	mu     sync.RWMutex
	byName map[string]Role
	byID   map[int64]Role
}

func newRoleTable() *roleTable {
	return &roleTable{
		byName: make(map[string]Role),
		byID:   make(map[int64]Role),
	}
}

func (t *roleTable) replaceAll(roles []Role) {
	byName := make(map[string]Role, len(roles))
	byID := make(map[int64]Role, len(roles))
	for _, r := range roles {
		byName[r.Name] = r
		byID[r.ID] = r
	}

	t.mu.Lock()
	t.byName = byName
	t.byID = byID
	t.mu.Unlock()
}

func (t *roleTable) lookup(name string) (Role, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.byName[NormalizeRoleName(name)]
	return r, ok
}

func (t *roleTable) get(id int64) (Role, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.byID[id]
	return r, ok
}

func (t *roleTable) put(r Role) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byName[r.Name] = r
	t.byID[r.ID] = r
}

func (t *roleTable) remove(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.byID[id]; ok {
		delete(t.byName, r.Name)
		delete(t.byID, id)
	}
}

// list returns every role ordered by join priority descending, name ascending.
func (t *roleTable) list() []Role {
	t.mu.RLock()
	roles := make([]Role, 0, len(t.byID))
	for _, r := range t.byID {
		roles = append(roles, r)
	}
	t.mu.RUnlock()

	slices.SortFunc(roles, compareRoles)
	return roles
}

func (t *roleTable) names() []string {
	roles := t.list()
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.Name
	}
	return names
}
