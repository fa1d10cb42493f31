// Package remote talks to the row-oriented backend the planner syncs with.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/weekly-planner/internal/model"
)

// Backend is the remote item table, filtered by owner.
type Backend interface {
	// Pull returns the owner's items modified strictly after since,
	// tombstones included.
	Pull(ctx context.Context, ownerID string, since time.Time) ([]model.Item, error)

	// Push upserts items by uuid. A stored row is only replaced by a copy
	// modified at or after it.
	Push(ctx context.Context, ownerID string, items []model.Item) error
}

// AuthError indicates that the backend rejected the access token.
type AuthError struct {
	Backend string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Backend, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// remoteErr tags err as a backend failure.
func remoteErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", model.ErrRemote, op, err)
}

// withOwner stamps ownerID on items that do not carry an owner yet.
func withOwner(items []model.Item, ownerID string) []model.Item {
	out := make([]model.Item, len(items))
	for i, it := range items {
		it = it.Clone()
		if it.OwnerID == nil && ownerID != "" {
			owner := ownerID
			it.OwnerID = &owner
		}
		out[i] = it
	}
	return out
}
