// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Galacticfy Contributors

package access

import (
	"slices"
	"sync"
)

// Edge records that RoleID inherits every effective grant of ParentID.
type Edge struct {
	RoleID   int64
	ParentID int64
}

// inheritanceGraph maps each role to its direct parents. Cycles are allowed
// here; the resolver terminates on them.
type inheritanceGraph struct {
	mu      sync.RWMutex
	parents map[int64]map[int64]struct{}
}

func newInheritanceGraph() *inheritanceGraph {
	return &inheritanceGraph{parents: make(map[int64]map[int64]struct{})}
}

func (g *inheritanceGraph) replaceAll(edges []Edge) {
	parents := make(map[int64]map[int64]struct{})
	for _, e := range edges {
		set, ok := parents[e.RoleID]
		if !ok {
			set = make(map[int64]struct{})
			parents[e.RoleID] = set
		}
		set[e.ParentID] = struct{}{}
	}

	g.mu.Lock()
	g.parents = parents
	g.mu.Unlock()
}

func (g *inheritanceGraph) has(e Edge) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.parents[e.RoleID][e.ParentID]
	return ok
}

func (g *inheritanceGraph) add(e Edge) {
	g.mu.Lock()
	defer g.mu.Unlock()
	set, ok := g.parents[e.RoleID]
	if !ok {
		set = make(map[int64]struct{})
		g.parents[e.RoleID] = set
	}
	set[e.ParentID] = struct{}{}
}

func (g *inheritanceGraph) remove(e Edge) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.parents[e.RoleID], e.ParentID)
	if len(g.parents[e.RoleID]) == 0 {
		delete(g.parents, e.RoleID)
	}
}

// purge removes every edge that mentions id, as child or as parent.
func (g *inheritanceGraph) purge(id int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.parents, id)
	for child, set := range g.parents {
		delete(set, id)
		if len(set) == 0 {
			delete(g.parents, child)
		}
	}
}

func (g *inheritanceGraph) parentsOf(id int64) []int64 {
	g.mu.RLock()
	ids := make([]int64, 0, len(g.parents[id]))
	for p := range g.parents[id] {
		ids = append(ids, p)
	}
	g.mu.RUnlock()

	slices.Sort(ids)
	return ids
}
