// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Galacticfy Contributors

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galacticfy/galacticfy/internal/access/accesstest"
	"github.com/galacticfy/galacticfy/pkg/errutil"
)

const testRolesFile = `
version: "1.0.0"
default_role: default
roles:
  - name: default
    permissions:
      - node: galacticfy.chat
  - name: vip
    join_priority: 10
    permissions:
      - node: fly.*
        scope: survival
    inherits: [default]
`

func writeRolesFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestSeed_AppliesRolesFile(t *testing.T) {
	repo := accesstest.NewMemoryStore()
	deps := memoryDeps(repo)
	path := writeRolesFile(t, "roles.yaml", testRolesFile)

	out := mustRun(t, deps, "seed", path)
	assert.Contains(t, out, "1 roles created")
	assert.Contains(t, out, "2 grants added")
	assert.Contains(t, out, "1 inheritance edges added")

	out = mustRun(t, deps, "seed", path)
	assert.Contains(t, out, "already applied, nothing to do")

	out = mustRun(t, deps, "role", "info", "vip")
	assert.Contains(t, out, "fly.*@survival")
}

func TestSeed_UsesConfiguredSeedFile(t *testing.T) {
	deps := memoryDeps(accesstest.NewMemoryStore())
	path := writeRolesFile(t, "roles.yaml", testRolesFile)

	out := mustRun(t, deps, "seed", "--seed-file", path)
	assert.Contains(t, out, path+": ")
}

func TestSeed_RequiresFile(t *testing.T) {
	_, _, err := runCLI(t, memoryDeps(accesstest.NewMemoryStore()), "seed")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestSeed_DefaultRoleMismatch(t *testing.T) {
	repo := accesstest.NewMemoryStore()
	path := writeRolesFile(t, "roles.yaml", testRolesFile)

	_, _, err := runCLI(t, memoryDeps(repo), "seed", path, "--default-role", "member")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "SEED_INVALID")
}

func TestValidateSeeds(t *testing.T) {
	good := writeRolesFile(t, "good.yaml", testRolesFile)
	bad := writeRolesFile(t, "bad.yaml", `
version: "2.0.0"
roles:
  - name: vip
`)
	orphan := writeRolesFile(t, "orphan.yaml", `
version: "1.0.0"
roles:
  - name: vip
    inherits: [ghost]
`)

	t.Run("valid file", func(t *testing.T) {
		out := mustRun(t, &Deps{}, "validate-seeds", good)
		assert.Equal(t, good+": ok (2 roles, 2 grants)\n", out)
	})

	t.Run("reports every invalid file", func(t *testing.T) {
		out, stderr, err := runCLI(t, &Deps{}, "validate-seeds", good, bad, orphan)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "SEED_INVALID")
		assert.Contains(t, err.Error(), "2 of 3")
		assert.Contains(t, out, good+": ok")
		assert.Contains(t, stderr, bad+":")
		assert.Contains(t, stderr, orphan+":")
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := runCLI(t, &Deps{}, "validate-seeds", filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})

	t.Run("no arguments and no seed_file", func(t *testing.T) {
		_, _, err := runCLI(t, &Deps{Getenv: func(string) string { return "" }}, "validate-seeds")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	})
}
