package entitlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Matcher resolves provider user identifiers to internal users.
type Matcher struct {
	users UserStore
}

// NewMatcher creates a Matcher backed by users.
func NewMatcher(users UserStore) *Matcher {
	return &Matcher{users: users}
}

// Match tries each non-empty candidate in order: first through the stored
// external id mapping, then by treating the candidate itself as the internal
// primary key (unlinked accounts whose app user id is the user id).
func (m *Matcher) Match(ctx context.Context, candidates ...string) (uuid.UUID, bool, error) {
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if _, dup := seen[candidate]; dup {
			continue
		}
		seen[candidate] = struct{}{}

		userID, err := m.users.FindByExternalID(ctx, candidate)
		switch {
		case err == nil:
			return userID, true, nil
		case !errors.Is(err, ErrUserNotFound):
			return uuid.Nil, false, fmt.Errorf("find user by external id: %w", err)
		}

		id, err := uuid.Parse(candidate)
		if err != nil {
			continue
		}
		exists, err := m.users.Exists(ctx, id)
		if err != nil {
			return uuid.Nil, false, fmt.Errorf("check user exists: %w", err)
		}
		if exists {
			return id, true, nil
		}
	}

	return uuid.Nil, false, nil
}
