// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Galacticfy Contributors

package access

import (
	"log/slog"
	"strings"

	"github.com/gobwas/glob"
)

// Wildcard forms:
//   - "*" matches every node
//   - "a.b.*" matches "a.b.c" and "a.b.c.d" but not "a.b" itself
//
// Trailing wildcards compile to a gobwas/glob super-asterisk with '.' as the
// separator, so "a.b.*" becomes "a.b.**".

// compiledGrant is a grant with its node matcher prepared.
type compiledGrant struct {
	Grant
	all     bool
	matcher glob.Glob // nil for exact nodes
}

// prefixMatcher stands in for a glob that failed to compile.
type prefixMatcher string

func (p prefixMatcher) Match(s string) bool {
	return strings.HasPrefix(s, string(p))
}

func compileGrant(g Grant) compiledGrant {
	cg := compiledGrant{Grant: g}
	switch {
	case g.Node == "*":
		cg.all = true
	case strings.HasSuffix(g.Node, ".*"):
		prefix := strings.TrimSuffix(g.Node, "*")
		m, err := glob.Compile(glob.QuoteMeta(prefix)+"**", '.')
		if err != nil {
			slog.Warn("falling back to prefix match for wildcard node",
				"node", g.Node,
				"error", err)
			cg.matcher = prefixMatcher(prefix)
		} else {
			cg.matcher = m
		}
	}
	return cg
}

// matchesNode reports whether the grant's node covers the lowercased node.
func (cg compiledGrant) matchesNode(node string) bool {
	switch {
	case cg.all:
		return true
	case cg.Node == node:
		return true
	case cg.matcher != nil:
		return cg.matcher.Match(node)
	default:
		return false
	}
}

// matchesScope applies the scope rules for a caller on server. The server
// is already normalized, so ScopeProxy means "no backend attached".
func (cg compiledGrant) matchesScope(server string) bool {
	switch cg.Scope {
	case ScopeGlobal:
		return true
	case ScopeProxy:
		return server == ScopeProxy
	default:
		return strings.EqualFold(cg.Scope, server)
	}
}

// normalizeServer maps a blank server to ScopeProxy.
func normalizeServer(server string) string {
	server = strings.TrimSpace(server)
	if server == "" || strings.EqualFold(server, ScopeProxy) {
		return ScopeProxy
	}
	return server
}
