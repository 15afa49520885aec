// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Galacticfy Contributors

package seed_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galacticfy/galacticfy/internal/access"
	"github.com/galacticfy/galacticfy/internal/access/accesstest"
	"github.com/galacticfy/galacticfy/internal/access/seed"
	"github.com/galacticfy/galacticfy/pkg/errutil"
)

const rolesFile = `
version: "1.0.0"
default_role: default
roles:
  - name: default
    display_name: Default
    color: GRAY
    prefix: "&7"
    permissions:
      - node: galacticfy.chat
  - name: vip
    prefix: "[VIP] "
    join_priority: 10
    permissions:
      - node: fly.*
        scope: survival
      - node: galacticfy.server.lobby
        scope: PROXY
    inherits: [default]
  - name: Admin
    staff: true
    maintenance_bypass: true
    join_priority: 100
    permissions:
      - node: "*"
    inherits: [vip]
`

func TestParse_ValidFile(t *testing.T) {
	f, err := seed.Parse([]byte(rolesFile))
	require.NoError(t, err)

	assert.Equal(t, "1.0.0", f.Version)
	require.Len(t, f.Roles, 3)
	assert.Equal(t, "vip", f.Roles[1].Name)
	assert.Equal(t, []string{"default"}, f.Roles[1].Inherits)
	assert.Equal(t, seed.Permission{Node: "fly.*", Scope: "survival"}, f.Roles[1].Permissions[0])
	assert.True(t, f.Roles[2].MaintenanceBypass)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		code string
	}{
		{"empty", "  \n", seed.CodeEmpty},
		{"not yaml", "roles: [", seed.CodeSchemaInvalid},
		{"missing version", "roles: []\n", seed.CodeSchemaInvalid},
		{"missing roles", "version: \"1.0.0\"\n", seed.CodeSchemaInvalid},
		{"unknown key", "version: \"1.0.0\"\nroles: []\nextra: 1\n", seed.CodeSchemaInvalid},
		{"numeric version", "version: 1.0\nroles: []\n", seed.CodeSchemaInvalid},
		{"role without name", "version: \"1.0.0\"\nroles:\n  - prefix: x\n", seed.CodeSchemaInvalid},
		{"role name with space", "version: \"1.0.0\"\nroles:\n  - name: new player\n", seed.CodeSchemaInvalid},
		{"node with space", "version: \"1.0.0\"\nroles:\n  - name: a\n    permissions:\n      - node: a b\n", seed.CodeSchemaInvalid},
		{"non semver version", "version: \"one\"\nroles: []\n", seed.CodeUnsupported},
		{"major version 2", "version: \"2.0.0\"\nroles: []\n", seed.CodeUnsupported},
		{"duplicate role", "version: \"1.0.0\"\nroles:\n  - name: vip\n  - name: VIP\n", seed.CodeInvalid},
		{"self inheritance", "version: \"1.0.0\"\nroles:\n  - name: vip\n    inherits: [vip]\n", seed.CodeInvalid},
		{"unknown parent", "version: \"1.0.0\"\nroles:\n  - name: vip\n    inherits: [ghost]\n", seed.CodeInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := seed.Parse([]byte(tt.yaml))
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.code)
		})
	}
}

func TestParse_AcceptsMinorVersions(t *testing.T) {
	_, err := seed.Parse([]byte("version: \"1.4.2\"\nroles: []\n"))
	assert.NoError(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(rolesFile), 0o600))

	f, err := seed.Load(path)
	require.NoError(t, err)
	assert.Len(t, f.Roles, 3)

	_, err = seed.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	errutil.AssertErrorContext(t, err, "path", filepath.Join(filepath.Dir(path), "absent.yaml"))
}

func TestGenerateSchema(t *testing.T) {
	data, err := seed.GenerateSchema()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))
	assert.Equal(t, seed.SchemaID, schema["$id"])
	assert.Equal(t, []any{"version", "roles"}, schema["required"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "default_role")
	assert.Contains(t, props, "roles")
}

func newEngine(t *testing.T) (*access.Engine, *accesstest.MemoryStore) {
	t.Helper()
	store := accesstest.NewMemoryStore()
	engine, err := access.NewEngine(store)
	require.NoError(t, err)
	require.NoError(t, engine.Load(context.Background()))
	return engine, store
}

func TestApply_CreatesRolesGrantsAndEdges(t *testing.T) {
	ctx := context.Background()
	engine, _ := newEngine(t)
	f, err := seed.Parse([]byte(rolesFile))
	require.NoError(t, err)

	res, err := seed.Apply(ctx, engine, f)
	require.NoError(t, err)

	// default exists after Load, so only its metadata changes.
	assert.Equal(t, seed.Result{RolesCreated: 2, RolesUpdated: 1, GrantsAdded: 4, EdgesAdded: 2}, res)

	def, ok := engine.RoleByName("default")
	require.True(t, ok)
	assert.Equal(t, "Default", def.DisplayName)
	assert.Equal(t, "&7", def.Prefix)

	admin, ok := engine.RoleByName("admin")
	require.True(t, ok)
	assert.True(t, admin.Staff)

	set, err := engine.EffectivePermissions("admin")
	require.NoError(t, err)
	assert.True(t, set.Allows("anything.at.all", "creative"))

	vip, err := engine.EffectivePermissions("vip")
	require.NoError(t, err)
	assert.True(t, vip.Allows("fly.toggle", "Survival"))
	assert.False(t, vip.Allows("fly.toggle", "creative"))
	assert.True(t, vip.Allows("galacticfy.server.lobby", ""))
	assert.False(t, vip.Allows("galacticfy.server.lobby", "survival"))
	assert.True(t, vip.Allows("galacticfy.chat", "creative"))
}

func TestApply_Idempotent(t *testing.T) {
	ctx := context.Background()
	engine, store := newEngine(t)
	f, err := seed.Parse([]byte(rolesFile))
	require.NoError(t, err)

	_, err = seed.Apply(ctx, engine, f)
	require.NoError(t, err)
	store.ResetCalls()

	res, err := seed.Apply(ctx, engine, f)
	require.NoError(t, err)
	assert.False(t, res.Changed())
	assert.Zero(t, store.Calls(accesstest.OpCreateRole))
	assert.Zero(t, store.Calls(accesstest.OpUpdateRole))
	assert.Zero(t, store.Calls(accesstest.OpAddGrant))
	assert.Zero(t, store.Calls(accesstest.OpAddEdge))
}

func TestApply_KeepsGrantsMissingFromFile(t *testing.T) {
	ctx := context.Background()
	engine, _ := newEngine(t)
	_, err := engine.CreateRole(ctx, access.RoleSpec{Name: "vip"})
	require.NoError(t, err)
	require.NoError(t, engine.Grant(ctx, "vip", "manual.node", ""))

	f, err := seed.Parse([]byte(rolesFile))
	require.NoError(t, err)
	_, err = seed.Apply(ctx, engine, f)
	require.NoError(t, err)

	set, err := engine.EffectivePermissions("vip")
	require.NoError(t, err)
	assert.True(t, set.Allows("manual.node", "survival"))
}

func TestApply_DefaultRoleMismatch(t *testing.T) {
	engine, _ := newEngine(t)
	f, err := seed.Parse([]byte("version: \"1.0.0\"\ndefault_role: member\nroles:\n  - name: member\n"))
	require.NoError(t, err)

	_, err = seed.Apply(context.Background(), engine, f)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, seed.CodeInvalid)
	_, ok := engine.RoleByName("member")
	assert.False(t, ok)
}

func TestApply_PersistenceFailure(t *testing.T) {
	engine, store := newEngine(t)
	store.SetFailure(accesstest.OpAddGrant, errors.New("connection reset"))

	f, err := seed.Parse([]byte(rolesFile))
	require.NoError(t, err)

	res, err := seed.Apply(context.Background(), engine, f)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, access.CodePersistence)
	assert.Equal(t, 2, res.RolesCreated)
	assert.Zero(t, res.GrantsAdded)
}
