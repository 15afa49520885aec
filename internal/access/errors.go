// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Galacticfy Contributors

package access

import (
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is wrapped by repositories when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Error codes attached to oops errors returned by the engine and its repositories.
const (
	CodeRoleNotFound      = "ROLE_NOT_FOUND"
	CodeRoleExists        = "ROLE_EXISTS"
	CodeGrantNotFound     = "GRANT_NOT_FOUND"
	CodeEdgeNotFound      = "EDGE_NOT_FOUND"
	CodePrincipalNotFound = "PRINCIPAL_NOT_FOUND"
	CodeInvalidInput      = "INVALID_INPUT"
	CodePersistence       = "PERSISTENCE_FAILED"
	CodeNotLoaded         = "ENGINE_NOT_LOADED"
)

// IsNotFound reports whether err means a role, grant, edge or principal does not exist.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return true
	}
	switch errorCode(err) {
	case CodeRoleNotFound, CodeGrantNotFound, CodeEdgeNotFound, CodePrincipalNotFound:
		return true
	}
	return false
}

// IsAlreadyExists reports whether err is a duplicate role name.
func IsAlreadyExists(err error) bool {
	return errorCode(err) == CodeRoleExists
}

// IsInvalidInput reports whether err was a rejected argument.
func IsInvalidInput(err error) bool {
	return errorCode(err) == CodeInvalidInput
}

func errorCode(err error) any {
	if err == nil {
		return nil
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}
	return oopsErr.Code()
}

func invalidInput(format string, args ...any) error {
	return oops.In("access").Code(CodeInvalidInput).Errorf(format, args...)
}

func roleNotFound(name string) error {
	return oops.In("access").Code(CodeRoleNotFound).With("role", name).Errorf("role not found")
}
