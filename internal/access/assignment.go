// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Galacticfy Contributors

package access

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/samber/oops"
)

// Assignment is the role a principal holds. A nil ExpiresAt is permanent.
type Assignment struct {
	PrincipalID uuid.UUID
	Name        string
	RoleID      int64
	ExpiresAt   *time.Time
}

// ExpiredAt reports whether a temporary assignment has run out at now.
func (a Assignment) ExpiredAt(now time.Time) bool {
	return a.ExpiresAt != nil && !a.ExpiresAt.After(now)
}

// Permanent reports whether the assignment never expires.
func (a Assignment) Permanent() bool {
	return a.ExpiresAt == nil
}

// assignmentCache fronts the AssignmentRepository with a bounded LRU.
// Expiry is evaluated on every read; an expired assignment is reset to the
// default role and the reset is written through to the repository.
type assignmentCache struct {
	repo  AssignmentRepository
	cache *lru.Cache[uuid.UUID, Assignment]
}

func newAssignmentCache(repo AssignmentRepository, size int) (*assignmentCache, error) {
	cache, err := lru.New[uuid.UUID, Assignment](size)
	if err != nil {
		return nil, oops.In("access").Code(CodeInvalidInput).With("size", size).Wrap(err)
	}
	return &assignmentCache{repo: repo, cache: cache}, nil
}

// lookup returns the principal's live assignment. found is false when no
// row exists, in which case the caller applies the default role.
func (c *assignmentCache) lookup(ctx context.Context, principal uuid.UUID, now time.Time, defaultRoleID int64) (Assignment, bool, error) {
	if a, ok := c.cache.Get(principal); ok {
		if a.ExpiredAt(now) {
			return c.reset(ctx, a, defaultRoleID), true, nil
		}
		return a, true, nil
	}

	stored, err := c.repo.GetAssignment(ctx, principal)
	if IsNotFound(err) {
		return Assignment{}, false, nil
	}
	if err != nil {
		recordPersistenceFailure("get_assignment")
		return Assignment{}, false, oops.In("access").
			Code(CodePersistence).
			With("operation", "get assignment").
			With("principal", principal.String()).
			Wrap(err)
	}

	a := *stored
	if a.ExpiredAt(now) {
		return c.reset(ctx, a, defaultRoleID), true, nil
	}
	c.cache.Add(principal, a)
	return a, true, nil
}

// reset moves an expired assignment back to the default role. Concurrent
// readers may both perform the write; the end state is the same.
func (c *assignmentCache) reset(ctx context.Context, expired Assignment, defaultRoleID int64) Assignment {
	updated := expired
	updated.RoleID = defaultRoleID
	updated.ExpiresAt = nil
	recordExpiryReset()

	if err := c.repo.SaveAssignment(ctx, &updated); err != nil {
		recordPersistenceFailure("reset_assignment")
		c.cache.Remove(expired.PrincipalID)
		slog.WarnContext(ctx, "failed to persist expired role reset",
			"principal", expired.PrincipalID.String(),
			"expired_role_id", expired.RoleID,
			"error", err)
		return updated
	}

	c.cache.Add(updated.PrincipalID, updated)
	slog.DebugContext(ctx, "temporary role expired",
		"principal", expired.PrincipalID.String(),
		"expired_role_id", expired.RoleID,
		"expired_at", expired.ExpiresAt)
	return updated
}

// save writes a through to the repository and only then caches it.
func (c *assignmentCache) save(ctx context.Context, a Assignment) error {
	if err := c.repo.SaveAssignment(ctx, &a); err != nil {
		recordPersistenceFailure("save_assignment")
		return oops.In("access").
			Code(CodePersistence).
			With("operation", "save assignment").
			With("principal", a.PrincipalID.String()).
			Wrap(err)
	}
	c.cache.Add(a.PrincipalID, a)
	return nil
}

func (c *assignmentCache) purge() {
	c.cache.Purge()
}

func (c *assignmentCache) cached(principal uuid.UUID) (Assignment, bool) {
	return c.cache.Peek(principal)
}
