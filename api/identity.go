package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/dmitrymomot/paywall/handler"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID   uuid.UUID
	TenantID uuid.UUID // uuid.Nil outside multi-tenant deployments
}

// IdentityFunc authenticates a request. Authentication itself is owned by an
// upstream collaborator; ok=false yields 401.
type IdentityFunc func(r *http.Request) (Identity, bool)

// Headers set by an authenticating gateway in front of the service.
const (
	UserIDHeader   = "X-User-ID"
	TenantIDHeader = "X-Tenant-ID"
)

// HeaderIdentity trusts UserIDHeader and TenantIDHeader. Use it only behind a
// gateway that strips these headers from client requests.
func HeaderIdentity() IdentityFunc {
	return func(r *http.Request) (Identity, bool) {
		userID, err := uuid.Parse(r.Header.Get(UserIDHeader))
		if err != nil || userID == uuid.Nil {
			return Identity{}, false
		}
		id := Identity{UserID: userID}
		if v := r.Header.Get(TenantIDHeader); v != "" {
			tenantID, err := uuid.Parse(v)
			if err != nil {
				return Identity{}, false
			}
			id.TenantID = tenantID
		}
		return id, true
	}
}

type identityKey struct{}

func identityFrom(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey{}).(Identity)
	return id
}

func requireIdentity(fn IdentityFunc, log *slog.Logger) func(http.Handler) http.Handler {
	unauthorized := handler.Wrap(log, func(*http.Request) handler.Response {
		return handler.Error(handler.ErrUnauthorized)
	})
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := fn(r)
			if !ok {
				unauthorized(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
		})
	}
}
