package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/paywall/handler"
	"github.com/dmitrymomot/paywall/pkg/entitlement"
	"github.com/dmitrymomot/paywall/pkg/logger"
	"github.com/dmitrymomot/paywall/pkg/quota"
)

type quotaHandler struct {
	ledger *quota.Ledger
	users  entitlement.UserStore
	log    *slog.Logger
}

type quotaResponse struct {
	Feature   quota.Feature    `json:"feature"`
	Plan      entitlement.Plan `json:"plan"`
	Allowed   bool             `json:"allowed"`
	Unlimited bool             `json:"unlimited"`
	Used      int64            `json:"used"`
	Limit     int64            `json:"limit"`
	Remaining int64            `json:"remaining"`
	ResetsAt  time.Time        `json:"resets_at"`
}

// status reports the caller's allowance for a feature; an exhausted quota
// answers 429 so clients can show the upgrade prompt.
func (h *quotaHandler) status(r *http.Request) handler.Response {
	ctx := r.Context()
	id := identityFrom(ctx)
	feature := quota.Feature(chi.URLParam(r, "feature"))

	state, err := h.users.GetSubscription(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, entitlement.ErrUserNotFound) {
			return handler.Error(handler.ErrNotFound.WithMessage("user not found"))
		}
		h.log.ErrorContext(ctx, "Failed to load subscription", logger.UserID(id.UserID), logger.Error(err))
		return handler.Error(handler.ErrInternal)
	}

	d, err := h.ledger.Check(ctx, id.UserID, id.TenantID, state.Plan, feature)
	if err != nil {
		if errors.Is(err, quota.ErrUnknownLimit) {
			return handler.Error(handler.ErrNotFound.WithMessage("unknown feature"))
		}
		h.log.ErrorContext(ctx, "Failed to check quota",
			logger.UserID(id.UserID), logger.Feature(string(feature)), logger.Error(err))
		return handler.Error(handler.ErrInternal)
	}

	if !d.Allowed {
		exceeded := handler.HTTPError{
			Code:    http.StatusTooManyRequests,
			Key:     "quota_exceeded",
			Message: "monthly quota exhausted",
		}
		resp := handler.ErrorWithDetails(exceeded, map[string]any{
			"feature":   feature,
			"used":      d.Used,
			"limit":     d.Limit,
			"resets_at": d.ResetsAt,
		})
		retry := max(int64(time.Until(d.ResetsAt).Seconds()), 1)
		return handler.WithHeader(resp, "Retry-After", strconv.FormatInt(retry, 10))
	}

	return handler.OK(quotaResponse{
		Feature:   feature,
		Plan:      state.Plan,
		Allowed:   d.Allowed,
		Unlimited: d.Unlimited,
		Used:      d.Used,
		Limit:     d.Limit,
		Remaining: d.Remaining(),
		ResetsAt:  d.ResetsAt,
	})
}
