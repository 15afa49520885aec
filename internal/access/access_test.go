// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Galacticfy Contributors

package access_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/galacticfy/galacticfy/internal/access"
	"github.com/galacticfy/galacticfy/internal/access/accesstest"
)

// recordingChecker remembers the last call it answered.
type recordingChecker struct {
	principal uuid.UUID
	node      string
	server    string
	calls     int
}

func (r *recordingChecker) Check(_ context.Context, principal uuid.UUID, node, server string) bool {
	r.principal, r.node, r.server = principal, node, server
	r.calls++
	return true
}

func TestAuthorize(t *testing.T) {
	ctx := context.Background()
	player := uuid.New()

	tests := []struct {
		name    string
		checker access.Checker
		subject access.Subject
		want    bool
	}{
		{"console bypasses deny", accesstest.DenyAll{}, access.Console{}, true},
		{"player delegated allow", accesstest.AllowAll{}, access.Player{ID: player}, true},
		{"player delegated deny", accesstest.DenyAll{}, access.Player{ID: player, Server: "Lobby-1"}, false},
		{"player without id", accesstest.AllowAll{}, access.Player{}, false},
		{"nil subject", accesstest.AllowAll{}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, access.Authorize(ctx, tt.checker, tt.subject, "galacticfy.fly"))
		})
	}
}

func TestAuthorize_PassesServerThrough(t *testing.T) {
	rc := &recordingChecker{}
	player := uuid.New()

	access.Authorize(context.Background(), rc, access.Player{ID: player, Server: "Survival"}, "galacticfy.build")

	assert.Equal(t, 1, rc.calls)
	assert.Equal(t, player, rc.principal)
	assert.Equal(t, "galacticfy.build", rc.node)
	assert.Equal(t, "Survival", rc.server)
}

func TestAuthorize_ConsoleNeverCallsChecker(t *testing.T) {
	rc := &recordingChecker{}
	access.Authorize(context.Background(), rc, access.Console{}, "galacticfy.shutdown")
	assert.Zero(t, rc.calls)
}

func TestEngine_Authorize(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	mustCreate(t, eng, "vip")
	assert.NoError(t, eng.Grant(ctx, "vip", "galacticfy.fly", "Lobby-1"))
	player := uuid.New()
	assert.NoError(t, eng.Assign(ctx, player, "Alex", "vip", nil))

	assert.True(t, eng.Authorize(ctx, access.Console{}, "galacticfy.fly"))
	assert.True(t, eng.Authorize(ctx, access.Player{ID: player, Server: "Lobby-1"}, "galacticfy.fly"))
	assert.False(t, eng.Authorize(ctx, access.Player{ID: player}, "galacticfy.fly"))
}
