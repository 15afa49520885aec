// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Galacticfy Contributors

package access

import (
	"slices"
	"sync"
)

// PermissionSet is the effective permission set of a role: its own grants
// plus those of every ancestor. It is immutable and safe for concurrent use.
type PermissionSet struct {
	roleID int64
	grants []compiledGrant
}

func newPermissionSet(roleID int64, grants map[Grant]struct{}) *PermissionSet {
	sorted := make([]Grant, 0, len(grants))
	for g := range grants {
		sorted = append(sorted, g)
	}
	slices.SortFunc(sorted, compareGrants)

	compiled := make([]compiledGrant, len(sorted))
	for i, g := range sorted {
		compiled[i] = compileGrant(g)
	}
	return &PermissionSet{roleID: roleID, grants: compiled}
}

// RoleID returns the role the set was resolved for.
func (p *PermissionSet) RoleID() int64 { return p.roleID }

// Len returns the number of distinct grants.
func (p *PermissionSet) Len() int { return len(p.grants) }

// Grants returns a copy of the grants ordered by scope, then node.
func (p *PermissionSet) Grants() []Grant {
	out := make([]Grant, len(p.grants))
	for i, cg := range p.grants {
		out[i] = cg.Grant
	}
	return out
}

// Allows reports whether any grant matches both the caller's server and the node.
// A blank server means the caller is on the proxy with no backend attached.
func (p *PermissionSet) Allows(node, server string) bool {
	node = NormalizeNode(node)
	server = normalizeServer(server)
	for _, cg := range p.grants {
		if !cg.matchesScope(server) {
			continue
		}
		if cg.matchesNode(node) {
			return true
		}
	}
	return false
}

// effectiveResolver memoizes the transitive closure of grants per role id.
// The memo is cleared wholesale by invalidate; generation keeps a closure
// computed across an invalidation from being stored afterwards.
type effectiveResolver struct {
	grants *grantIndex
	graph  *inheritanceGraph

	mu         sync.RWMutex
	cache      map[int64]*PermissionSet
	generation uint64
}

func newEffectiveResolver(grants *grantIndex, graph *inheritanceGraph) *effectiveResolver {
	return &effectiveResolver{
		grants: grants,
		graph:  graph,
		cache:  make(map[int64]*PermissionSet),
	}
}

func (r *effectiveResolver) resolve(roleID int64) *PermissionSet {
	r.mu.RLock()
	ps, ok := r.cache[roleID]
	gen := r.generation
	r.mu.RUnlock()
	if ok {
		recordEffectiveLookup(true)
		return ps
	}
	recordEffectiveLookup(false)

	acc := make(map[Grant]struct{})
	r.collect(roleID, make(map[int64]struct{}), acc)
	ps = newPermissionSet(roleID, acc)

	r.mu.Lock()
	if r.generation == gen {
		r.cache[roleID] = ps
	}
	r.mu.Unlock()
	return ps
}

// collect walks parents depth-first. Each role contributes at most once per
// call, which terminates cycles and skips repeated diamond ancestors.
func (r *effectiveResolver) collect(roleID int64, visited map[int64]struct{}, acc map[Grant]struct{}) {
	if _, seen := visited[roleID]; seen {
		return
	}
	visited[roleID] = struct{}{}

	for _, g := range r.grants.list(roleID) {
		acc[g] = struct{}{}
	}
	for _, parent := range r.graph.parentsOf(roleID) {
		r.collect(parent, visited, acc)
	}
}

func (r *effectiveResolver) invalidate() {
	r.mu.Lock()
	clear(r.cache)
	r.generation++
	r.mu.Unlock()
}

func (r *effectiveResolver) cached(roleID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.cache[roleID]
	return ok
}
