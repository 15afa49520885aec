// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Galacticfy Contributors

package access

import (
	"slices"
	"strings"
	"sync"
)

// Reserved scopes. Any other scope string names a backend server.
const (
	// ScopeGlobal applies on the proxy and on every backend server.
	ScopeGlobal = "GLOBAL"
	// ScopeProxy applies only while the caller is not attached to a backend.
	ScopeProxy = "PROXY"
)

// Grant is a permission node granted to a role under a scope.
type Grant struct {
	Node  string
	Scope string
}

// RoleGrant is a Grant together with the role that declares it.
type RoleGrant struct {
	RoleID int64
	Grant
}

// NormalizeNode lowercases and trims a permission node.
func NormalizeNode(node string) string {
	return strings.ToLower(strings.TrimSpace(node))
}

// NormalizeScope maps blank scopes to ScopeGlobal and canonicalizes the
// reserved scope names. Server names keep their original spelling.
func NormalizeScope(scope string) string {
	scope = strings.TrimSpace(scope)
	switch {
	case scope == "", strings.EqualFold(scope, ScopeGlobal):
		return ScopeGlobal
	case strings.EqualFold(scope, ScopeProxy):
		return ScopeProxy
	default:
		return scope
	}
}

func compareGrants(a, b Grant) int {
	if c := strings.Compare(a.Scope, b.Scope); c != 0 {
		return c
	}
	return strings.Compare(a.Node, b.Node)
}

// grantIndex holds the grants declared directly on each role.
type grantIndex struct {
	mu     sync.RWMutex
	byRole map[int64]map[Grant]struct{}
}

func newGrantIndex() *grantIndex {
	return &grantIndex{byRole: make(map[int64]map[Grant]struct{})}
}

func (x *grantIndex) replaceAll(grants []RoleGrant) {
	byRole := make(map[int64]map[Grant]struct{})
	for _, g := range grants {
		set, ok := byRole[g.RoleID]
		if !ok {
			set = make(map[Grant]struct{})
			byRole[g.RoleID] = set
		}
		set[g.Grant] = struct{}{}
	}

	x.mu.Lock()
	x.byRole = byRole
	x.mu.Unlock()
}

func (x *grantIndex) has(roleID int64, g Grant) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.byRole[roleID][g]
	return ok
}

func (x *grantIndex) hasNode(roleID int64, node string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	for g := range x.byRole[roleID] {
		if g.Node == node {
			return true
		}
	}
	return false
}

func (x *grantIndex) add(roleID int64, g Grant) {
	x.mu.Lock()
	defer x.mu.Unlock()
	set, ok := x.byRole[roleID]
	if !ok {
		set = make(map[Grant]struct{})
		x.byRole[roleID] = set
	}
	set[g] = struct{}{}
}

// removeNode drops the node under every scope and returns how many grants went away.
func (x *grantIndex) removeNode(roleID int64, node string) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	removed := 0
	for g := range x.byRole[roleID] {
		if g.Node == node {
			delete(x.byRole[roleID], g)
			removed++
		}
	}
	return removed
}

func (x *grantIndex) purge(roleID int64) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.byRole, roleID)
}

func (x *grantIndex) list(roleID int64) []Grant {
	x.mu.RLock()
	grants := make([]Grant, 0, len(x.byRole[roleID]))
	for g := range x.byRole[roleID] {
		grants = append(grants, g)
	}
	x.mu.RUnlock()

	slices.SortFunc(grants, compareGrants)
	return grants
}
