package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/paywall/handler"
	"github.com/dmitrymomot/paywall/pkg/entitlement"
	"github.com/dmitrymomot/paywall/pkg/logger"
)

type syncHandler struct {
	reconciler *entitlement.Reconciler
	limit      int64
	log        *slog.Logger
}

type syncRequest struct {
	CustomerInfo *entitlement.CustomerInfo `json:"customerInfo"`
}

type syncResponse struct {
	Plan      entitlement.Plan   `json:"plan"`
	Status    entitlement.Status `json:"status"`
	ExpiresAt *time.Time         `json:"expiresAt"`
	Signal    string             `json:"signal,omitempty"`
}

func (h *syncHandler) handle(r *http.Request) handler.Response {
	id := identityFrom(r.Context())

	var req syncRequest
	if err := handler.DecodeJSON(r, h.limit, &req); err != nil {
		if errors.Is(err, handler.ErrInvalidJSON) {
			return handler.Error(handler.ErrUnprocessableEntity.WithMessage("malformed customer info"))
		}
		return handler.Error(err)
	}

	res, err := h.reconciler.Reconcile(r.Context(), id.UserID, req.CustomerInfo)
	switch {
	case err == nil:
	case errors.Is(err, entitlement.ErrMalformedCustomerInfo):
		return handler.Error(handler.ErrUnprocessableEntity.WithMessage("malformed customer info"))
	case errors.Is(err, entitlement.ErrUserNotFound):
		return handler.Error(handler.ErrNotFound.WithMessage("user not found"))
	default:
		h.log.ErrorContext(r.Context(), "Failed to sync subscription",
			logger.UserID(id.UserID), logger.Error(err))
		return handler.Error(handler.ErrInternal)
	}

	return handler.OK(syncResponse{
		Plan:      res.Plan,
		Status:    res.Status,
		ExpiresAt: res.ExpiresAt,
		Signal:    string(res.Signal),
	})
}
