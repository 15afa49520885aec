// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Galacticfy Contributors

// Package seed loads declarative roles files and applies them to the
// permission engine.
package seed

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/galacticfy/galacticfy/internal/access"
)

// SupportedVersions is the constraint a roles file version must satisfy.
const SupportedVersions = "^1.0"

// Error codes returned by Parse and Validate.
const (
	CodeEmpty         = "SEED_EMPTY"
	CodeSchemaInvalid = "SEED_SCHEMA_INVALID"
	CodeInvalid       = "SEED_INVALID"
	CodeUnsupported   = "SEED_VERSION_UNSUPPORTED"
)

// File is a roles file.
type File struct {
	Version     string    `yaml:"version" jsonschema:"required,minLength=1,description=Roles file format version (semver)"`
	DefaultRole string    `yaml:"default_role,omitempty" jsonschema:"description=Role applied to principals without an assignment"`
	Roles       []RoleDef `yaml:"roles" jsonschema:"required"`
}

// RoleDef declares one role.
type RoleDef struct {
	Name              string       `yaml:"name" jsonschema:"required,minLength=1,maxLength=64,pattern=^[A-Za-z0-9_.-]+$"`
	DisplayName       string       `yaml:"display_name,omitempty"`
	Color             string       `yaml:"color,omitempty"`
	Prefix            string       `yaml:"prefix,omitempty"`
	Suffix            string       `yaml:"suffix,omitempty"`
	Staff             bool         `yaml:"staff,omitempty"`
	MaintenanceBypass bool         `yaml:"maintenance_bypass,omitempty"`
	JoinPriority      int          `yaml:"join_priority,omitempty"`
	Permissions       []Permission `yaml:"permissions,omitempty"`
	Inherits          []string     `yaml:"inherits,omitempty"`
}

// Permission is one grant of a role.
type Permission struct {
	Node  string `yaml:"node" jsonschema:"required,minLength=1,pattern=^[^ ]+$"`
	Scope string `yaml:"scope,omitempty" jsonschema:"description=GLOBAL (default) or PROXY or a backend server name"`
}

// Spec converts the definition to the engine's role spec.
func (d RoleDef) Spec() access.RoleSpec {
	return access.RoleSpec{
		Name:              d.Name,
		DisplayName:       d.DisplayName,
		Color:             d.Color,
		Prefix:            d.Prefix,
		Suffix:            d.Suffix,
		Staff:             d.Staff,
		MaintenanceBypass: d.MaintenanceBypass,
		JoinPriority:      d.JoinPriority,
	}
}

// Load reads and parses the roles file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, oops.In("seed").With("path", path).Wrap(err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, oops.In("seed").With("path", path).Wrap(err)
	}
	return f, nil
}

// Parse validates data against the roles file schema, decodes it and checks
// the cross-references the schema cannot express.
func Parse(data []byte) (*File, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, oops.In("seed").Code(CodeEmpty).Errorf("roles file is empty")
	}
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}

	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, oops.In("seed").Code(CodeInvalid).Wrapf(err, "invalid YAML")
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func invalid(format string, args ...any) error {
	return oops.In("seed").Code(CodeInvalid).Errorf(format, args...)
}

// Validate checks the version constraint, duplicate roles and inheritance
// references.
func (f *File) Validate() error {
	version, err := semver.StrictNewVersion(f.Version)
	if err != nil {
		return oops.In("seed").Code(CodeUnsupported).With("version", f.Version).Wrapf(err, "version is not semver")
	}
	constraint, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return oops.In("seed").Wrap(err)
	}
	if !constraint.Check(version) {
		return oops.In("seed").Code(CodeUnsupported).
			With("version", f.Version).
			Errorf("version %s does not satisfy %s", f.Version, SupportedVersions)
	}

	names := make(map[string]bool, len(f.Roles))
	for _, r := range f.Roles {
		name := access.NormalizeRoleName(r.Name)
		if name == "" {
			return invalid("role name cannot be empty")
		}
		if names[name] {
			return oops.In("seed").Code(CodeInvalid).With("role", name).Errorf("role %q is declared twice", name)
		}
		names[name] = true

		for _, p := range r.Permissions {
			if access.NormalizeNode(p.Node) == "" || strings.ContainsAny(p.Node, " \t\n") {
				return oops.In("seed").Code(CodeInvalid).With("role", name).Errorf("invalid permission node %q", p.Node)
			}
		}
	}

	for _, r := range f.Roles {
		name := access.NormalizeRoleName(r.Name)
		for _, parent := range r.Inherits {
			parent = access.NormalizeRoleName(parent)
			if parent == name {
				return oops.In("seed").Code(CodeInvalid).With("role", name).Errorf("role %q cannot inherit from itself", name)
			}
			if !names[parent] {
				return oops.In("seed").Code(CodeInvalid).
					With("role", name).
					With("parent", parent).
					Errorf("role %q inherits from undeclared role %q", name, parent)
			}
		}
	}
	return nil
}
