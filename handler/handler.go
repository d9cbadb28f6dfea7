package handler

import (
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/paywall/pkg/logger"
)

// Response renders itself to an http.ResponseWriter.
type Response interface {
	Render(w http.ResponseWriter, r *http.Request) error
}

// Func handles a request and returns the response to render.
type Func func(r *http.Request) Response

// Wrap adapts h to http.HandlerFunc. A nil response renders 500; render
// failures are logged since the status line may already be written.
func Wrap(log *slog.Logger, h Func) http.HandlerFunc {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		resp := h(r)
		if resp == nil {
			resp = Error(ErrInternal)
		}
		if err := resp.Render(w, r); err != nil {
			log.ErrorContext(r.Context(), "Failed to render response",
				slog.String("path", r.URL.Path), logger.Error(err))
		}
	}
}
