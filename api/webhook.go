package api

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrymomot/paywall/handler"
	"github.com/dmitrymomot/paywall/pkg/entitlement"
	"github.com/dmitrymomot/paywall/pkg/logger"
)

const malformedEventMessage = "malformed webhook event"

type webhookHandler struct {
	resolver *entitlement.Resolver
	secret   string
	limit    int64
	log      *slog.Logger
}

type webhookResponse struct {
	Received  bool       `json:"received"`
	Processed bool       `json:"processed"`
	UserID    *uuid.UUID `json:"user_id"`
	Error     string     `json:"error,omitempty"`
}

// handle acknowledges duplicates, unmatched users and malformed bodies with
// 200 so the provider stops redelivering; only storage failures ask for a retry.
func (h *webhookHandler) handle(r *http.Request) handler.Response {
	if !h.authorized(r) {
		return handler.Error(handler.ErrUnauthorized)
	}

	body, err := handler.ReadBody(r, h.limit)
	if err != nil {
		return handler.Error(err)
	}

	res, err := h.resolver.Handle(r.Context(), body)
	switch {
	case err == nil:
	case errors.Is(err, entitlement.ErrMalformedEvent):
		// acknowledged: redelivering the same body can never succeed
		h.log.WarnContext(r.Context(), "Ignored malformed webhook", logger.Error(err))
		return handler.OK(webhookResponse{Received: true, Error: malformedEventMessage})
	default:
		h.log.ErrorContext(r.Context(), "Failed to process webhook", logger.Error(err))
		return handler.Error(handler.ErrInternal)
	}

	return handler.OK(webhookResponse{
		Received:  true,
		Processed: res.ProcessedNewly,
		UserID:    res.UserID,
		Error:     res.Error,
	})
}

// authorized accepts the configured secret either raw or as a bearer token.
func (h *webhookHandler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return true
	}
	got := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(got, "Bearer "); ok {
		got = token
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) == 1
}
