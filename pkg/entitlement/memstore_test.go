package entitlement_test

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/paywall/pkg/entitlement"
)

// memUsers is an in-memory UserStore that counts subscription writes.
type memUsers struct {
	mu       sync.Mutex
	states   map[uuid.UUID]entitlement.SubscriptionState
	external map[string]uuid.UUID
	writes   int
	failGet  error
	failSet  error
	// conflicts forces the next N updates to report a version conflict.
	conflicts int
}

func newMemUsers() *memUsers {
	return &memUsers{
		states:   make(map[uuid.UUID]entitlement.SubscriptionState),
		external: make(map[string]uuid.UUID),
	}
}

func (m *memUsers) add(state entitlement.SubscriptionState) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state.UserID == uuid.Nil {
		state.UserID = uuid.New()
	}
	if state.Plan == "" {
		state.Plan = entitlement.PlanFree
	}
	if state.Status == "" {
		state.Status = entitlement.StatusActive
	}
	m.states[state.UserID] = state
	if state.ExternalUserID != "" {
		m.external[state.ExternalUserID] = state.UserID
	}
	return state.UserID
}

func (m *memUsers) state(id uuid.UUID) entitlement.SubscriptionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[id]
}

func (m *memUsers) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *memUsers) FindByExternalID(_ context.Context, externalID string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.external[externalID]; ok {
		return id, nil
	}
	return uuid.Nil, entitlement.ErrUserNotFound
}

func (m *memUsers) Exists(_ context.Context, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.states[userID]
	return ok, nil
}

func (m *memUsers) GetSubscription(_ context.Context, userID uuid.UUID) (entitlement.SubscriptionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return entitlement.SubscriptionState{}, m.failGet
	}
	s, ok := m.states[userID]
	if !ok {
		return entitlement.SubscriptionState{}, entitlement.ErrUserNotFound
	}
	return s, nil
}

func (m *memUsers) UpdateSubscription(_ context.Context, userID uuid.UUID, current, next entitlement.SubscriptionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet != nil {
		return m.failSet
	}
	if m.conflicts > 0 {
		m.conflicts--
		return entitlement.ErrConcurrentUpdate
	}
	stored, ok := m.states[userID]
	if !ok {
		return entitlement.ErrUserNotFound
	}
	if stored.Version != current.Version {
		return entitlement.ErrConcurrentUpdate
	}
	next.UserID = userID
	next.Version = stored.Version + 1
	m.states[userID] = next
	m.writes++
	return nil
}

// memLedger is an in-memory Ledger. RecordAndApply writes through users while
// holding the ledger lock, which makes the claim and the write atomic.
type memLedger struct {
	mu        sync.Mutex
	users     *memUsers
	events    map[string]entitlement.WebhookEvent
	failGet   error
	failWrite error
}

func newMemLedger(users *memUsers) *memLedger {
	return &memLedger{users: users, events: make(map[string]entitlement.WebhookEvent)}
}

func (l *memLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func (l *memLedger) Get(_ context.Context, eventID string) (*entitlement.WebhookEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failGet != nil {
		return nil, l.failGet
	}
	e, ok := l.events[eventID]
	if !ok {
		return nil, entitlement.ErrEventNotFound
	}
	return &e, nil
}

func (l *memLedger) Record(_ context.Context, event *entitlement.WebhookEvent) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failWrite != nil {
		return false, l.failWrite
	}
	if _, ok := l.events[event.EventID]; ok {
		return false, nil
	}
	l.events[event.EventID] = *event
	return true, nil
}

func (l *memLedger) RecordAndApply(ctx context.Context, event *entitlement.WebhookEvent, current, next entitlement.SubscriptionState) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failWrite != nil {
		return false, l.failWrite
	}
	if _, ok := l.events[event.EventID]; ok {
		return false, nil
	}
	if err := l.users.UpdateSubscription(ctx, *event.ResolvedUserID, current, next); err != nil {
		return false, err
	}
	l.events[event.EventID] = *event
	return true, nil
}

func (l *memLedger) ListUnmatched(_ context.Context, since time.Time, limit int) ([]entitlement.WebhookEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []entitlement.WebhookEvent
	for _, e := range l.events {
		if e.ResolvedUserID == nil && !e.ReceivedAt.Before(since) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b entitlement.WebhookEvent) int {
		return b.ReceivedAt.Compare(a.ReceivedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
