package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/paywall/pkg/logger"
)

// Resolver applies billing provider webhook events to user subscription state.
// It is stateless; at-most-once application relies on the ledger claiming the
// event id in the same transaction as the state write.
type Resolver struct {
	normalizer *Normalizer
	matcher    *Matcher
	users      UserStore
	ledger     Ledger
	opts       *options
}

// NewResolver creates a Resolver.
// Panics if a required dependency is nil to fail fast during initialization.
func NewResolver(types *EventTypes, users UserStore, ledger Ledger, opts ...Option) *Resolver {
	if users == nil {
		panic("entitlement: UserStore is required")
	}
	if ledger == nil {
		panic("entitlement: Ledger is required")
	}

	o := applyOptions(opts)
	return &Resolver{
		normalizer: NewNormalizer(types, o.now),
		matcher:    NewMatcher(users),
		users:      users,
		ledger:     ledger,
		opts:       o,
	}
}

// Handle processes one raw webhook delivery.
// A returned error means the body was malformed (ErrMalformedEvent) or a write
// failed; both duplicates and unmatched users are successful outcomes.
func (r *Resolver) Handle(ctx context.Context, body []byte) (Result, error) {
	event, err := r.normalizer.Normalize(body)
	if err != nil {
		return Result{}, err
	}

	log := r.opts.logger.With(
		logger.EventID(event.EventID),
		logger.EventType(event.EventType),
		slog.String("classification", string(event.Classification)),
	)

	seen, err := r.ledger.Get(ctx, event.EventID)
	switch {
	case err == nil:
		log.DebugContext(ctx, "Webhook event already processed")
		r.opts.observer.WebhookProcessed(event.Classification, OutcomeDuplicate)
		return Result{ProcessedNewly: false, UserID: seen.ResolvedUserID}, nil
	case !errors.Is(err, ErrEventNotFound):
		r.opts.observer.WebhookProcessed(event.Classification, OutcomeFailed)
		return Result{}, errors.Join(ErrStorage, fmt.Errorf("lookup webhook event: %w", err))
	}

	userID, found, err := r.matcher.Match(ctx, event.ExternalUserID, event.OriginalExternalUserID)
	if err != nil {
		r.opts.observer.WebhookProcessed(event.Classification, OutcomeFailed)
		return Result{}, errors.Join(ErrStorage, err)
	}

	if !found {
		inserted, err := r.record(ctx, event)
		if err != nil {
			return Result{}, err
		}
		if !inserted {
			r.opts.observer.WebhookProcessed(event.Classification, OutcomeDuplicate)
			return Result{ProcessedNewly: false}, nil
		}
		log.WarnContext(ctx, "Webhook event user not found",
			slog.String("external_user_id", event.ExternalUserID),
			slog.String("original_external_user_id", event.OriginalExternalUserID),
		)
		r.opts.observer.WebhookProcessed(event.Classification, OutcomeUnmatched)
		return Result{ProcessedNewly: true, Error: userNotFoundMessage}, nil
	}

	log = log.With(logger.UserID(userID))
	event.ResolvedUserID = &userID

	// The ledger row and the state write commit together: a failed write
	// leaves the event unclaimed, so the provider's redelivery re-drives it.
	inserted, err := recordTransition(ctx, r.users, r.ledger, event, r.opts.updateAttempts,
		func(current SubscriptionState) (SubscriptionState, bool) {
			return ApplyEvent(current, event, r.opts.now())
		})
	if err != nil {
		log.ErrorContext(ctx, "Failed to apply webhook event", logger.Error(err))
		r.opts.observer.WebhookProcessed(event.Classification, OutcomeFailed)
		return Result{}, err
	}
	if !inserted {
		log.DebugContext(ctx, "Webhook event recorded by a concurrent delivery")
		r.opts.observer.WebhookProcessed(event.Classification, OutcomeDuplicate)
		return Result{ProcessedNewly: false, UserID: &userID}, nil
	}
	r.archive(ctx, event)

	if event.Classification == ClassOther {
		log.InfoContext(ctx, "Webhook event recorded without state change")
		r.opts.observer.WebhookProcessed(event.Classification, OutcomeIgnored)
	} else {
		log.InfoContext(ctx, "Webhook event applied")
		r.opts.observer.WebhookProcessed(event.Classification, OutcomeApplied)
	}

	return Result{ProcessedNewly: true, UserID: &userID}, nil
}

// record appends an unmatched event to the ledger and archives it when new.
func (r *Resolver) record(ctx context.Context, event *WebhookEvent) (bool, error) {
	inserted, err := r.ledger.Record(ctx, event)
	if err != nil {
		r.opts.observer.WebhookProcessed(event.Classification, OutcomeFailed)
		return false, errors.Join(ErrStorage, fmt.Errorf("record webhook event: %w", err))
	}
	if inserted {
		r.archive(ctx, event)
	}
	return inserted, nil
}

// archive stores the raw payload; failures are logged and never fail the delivery.
func (r *Resolver) archive(ctx context.Context, event *WebhookEvent) {
	if r.opts.archive == nil {
		return
	}
	if err := r.opts.archive.Archive(ctx, event); err != nil {
		r.opts.logger.WarnContext(ctx, "Failed to archive raw webhook payload",
			logger.EventID(event.EventID), logger.Error(err))
	}
}

// Unmatched lists recorded events that could not be linked to a user.
func (r *Resolver) Unmatched(ctx context.Context, since time.Time, limit int) ([]WebhookEvent, error) {
	return r.ledger.ListUnmatched(ctx, since, limit)
}
