package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/paywall/api"
	"github.com/dmitrymomot/paywall/pkg/entitlement"
	"github.com/dmitrymomot/paywall/pkg/httpserver"
	"github.com/dmitrymomot/paywall/pkg/metrics"
	"github.com/dmitrymomot/paywall/pkg/quota"
	dbsqlite "github.com/dmitrymomot/paywall/pkg/sqlite"
	"github.com/dmitrymomot/paywall/store/sqlite"
)

const webhookSecret = "whsec-test"

type testAPI struct {
	handler http.Handler
	store   *sqlite.Store
	quota   *quota.Ledger
}

func newTestAPI(t *testing.T, ready ...httpserver.Check) *testAPI {
	t.Helper()
	ctx := context.Background()

	db, err := dbsqlite.Open(ctx, dbsqlite.Config{Path: dbsqlite.MemoryPath})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := sqlite.New(db)
	ledger, err := quota.NewLedger(ctx, quota.NewInMemSource(quota.Limits{
		entitlement.PlanFree:    {"photo": 2},
		entitlement.PlanPremium: {"photo": quota.Unlimited},
	}), sqlite.NewQuotaStore(db))
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	collectors := metrics.New(reg)

	h := api.NewRouter(api.Deps{
		Resolver: entitlement.NewResolver(nil, store, store, entitlement.WithObserver(collectors)),
		Reconciler: entitlement.NewReconciler(store, entitlement.SignalConfig{
			EntitlementID: "premium",
			ProductIDs:    []string{"premium_monthly"},
		}, entitlement.WithObserver(collectors)),
		Quota:          ledger,
		Users:          store,
		Identity:       api.HeaderIdentity(),
		WebhookSecret:  webhookSecret,
		MaxBodyBytes:   4096,
		Metrics:        collectors,
		MetricsHandler: metrics.Handler(reg),
		ReadyChecks:    ready,
	})
	return &testAPI{handler: h, store: store, quota: ledger}
}

func (a *testAPI) createUser(t *testing.T, external string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, a.store.CreateUser(context.Background(), entitlement.SubscriptionState{
		UserID:         id,
		ExternalUserID: external,
	}))
	return id
}

func (a *testAPI) do(t *testing.T, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func webhook(t *testing.T, id, eventType, appUserID string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"api_version": "1.0",
		"event": map[string]any{
			"id":          id,
			"type":        eventType,
			"app_user_id": appUserID,
			"product_id":  "premium_monthly",
			"store":       "APP_STORE",
			"environment": "PRODUCTION",
		},
	})
	require.NoError(t, err)
	return body
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

type webhookResult struct {
	Received  bool       `json:"received"`
	Processed bool       `json:"processed"`
	UserID    *uuid.UUID `json:"user_id"`
	Error     string     `json:"error"`
}

type errorResult struct {
	Error struct {
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func TestWebhook(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t)
	auth := map[string]string{"Authorization": "Bearer " + webhookSecret}
	userID := a.createUser(t, "rc-user")

	t.Run("applies activation once", func(t *testing.T) {
		body := webhook(t, "evt-1", "INITIAL_PURCHASE", "rc-user")

		rec := a.do(t, http.MethodPost, "/webhooks/billing", body, auth)
		require.Equal(t, http.StatusOK, rec.Code)
		res := decode[webhookResult](t, rec)
		assert.True(t, res.Received)
		assert.True(t, res.Processed)
		require.NotNil(t, res.UserID)
		assert.Equal(t, userID, *res.UserID)

		state, err := a.store.GetSubscription(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, entitlement.PlanPremium, state.Plan)

		rec = a.do(t, http.MethodPost, "/webhooks/billing", body, auth)
		require.Equal(t, http.StatusOK, rec.Code)
		res = decode[webhookResult](t, rec)
		assert.False(t, res.Processed, "redelivery is acknowledged without reprocessing")
	})

	t.Run("unmatched user is acknowledged", func(t *testing.T) {
		rec := a.do(t, http.MethodPost, "/webhooks/billing", webhook(t, "evt-2", "RENEWAL", "ghost"), auth)
		require.Equal(t, http.StatusOK, rec.Code)
		res := decode[webhookResult](t, rec)
		assert.True(t, res.Processed)
		assert.Nil(t, res.UserID)
		assert.Equal(t, "user not found", res.Error)
	})

	t.Run("raw secret header", func(t *testing.T) {
		rec := a.do(t, http.MethodPost, "/webhooks/billing", webhook(t, "evt-3", "TEST", "rc-user"),
			map[string]string{"Authorization": webhookSecret})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("bad secret", func(t *testing.T) {
		rec := a.do(t, http.MethodPost, "/webhooks/billing", webhook(t, "evt-4", "RENEWAL", "rc-user"),
			map[string]string{"Authorization": "Bearer wrong"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed body is acknowledged without processing", func(t *testing.T) {
		for name, body := range map[string][]byte{
			"truncated json":   []byte(`{"event":`),
			"missing event id": []byte(`{"event":{"type":"RENEWAL"}}`),
		} {
			rec := a.do(t, http.MethodPost, "/webhooks/billing", body, auth)
			require.Equal(t, http.StatusOK, rec.Code, name)
			res := decode[webhookResult](t, rec)
			assert.True(t, res.Received, name)
			assert.False(t, res.Processed, name)
			assert.Nil(t, res.UserID, name)
			assert.Equal(t, "malformed webhook event", res.Error, name)
		}
	})

	t.Run("body too large", func(t *testing.T) {
		body := []byte(`{"pad":"` + strings.Repeat("x", 5000) + `"}`)
		rec := a.do(t, http.MethodPost, "/webhooks/billing", body, auth)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestSubscriptionSync(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t)
	userID := a.createUser(t, "")
	headers := map[string]string{api.UserIDHeader: userID.String()}

	t.Run("premium entitlement", func(t *testing.T) {
		body := []byte(`{"customerInfo":{
			"originalAppUserId":"rc-sync",
			"entitlements":{"active":{"premium":{
				"identifier":"premium","isActive":true,"willRenew":true,
				"productIdentifier":"premium_monthly","store":"APP_STORE",
				"expirationDate":"2030-01-01T00:00:00Z"}}},
			"activeSubscriptions":["premium_monthly"]}}`)

		rec := a.do(t, http.MethodPost, "/v1/subscription/sync", body, headers)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res struct {
			Plan      string `json:"plan"`
			Status    string `json:"status"`
			ExpiresAt string `json:"expiresAt"`
			Signal    string `json:"signal"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
		assert.Equal(t, "premium", res.Plan)
		assert.Equal(t, "active", res.Status)
		assert.Equal(t, "2030-01-01T00:00:00Z", res.ExpiresAt)
		assert.Equal(t, string(entitlement.SignalConfiguredEntitlement), res.Signal)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		rec := a.do(t, http.MethodPost, "/v1/subscription/sync", []byte(`{"customerInfo":{}}`), nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed payload", func(t *testing.T) {
		for name, body := range map[string]string{
			"not json":         `{"customerInfo":`,
			"missing info":     `{}`,
			"wrong field type": `{"customerInfo":{"activeSubscriptions":"premium_monthly"}}`,
		} {
			rec := a.do(t, http.MethodPost, "/v1/subscription/sync", []byte(body), headers)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, name)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		rec := a.do(t, http.MethodPost, "/v1/subscription/sync", []byte(`{"customerInfo":{}}`),
			map[string]string{api.UserIDHeader: uuid.NewString()})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestQuotaStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := newTestAPI(t)
	userID := a.createUser(t, "")
	headers := map[string]string{api.UserIDHeader: userID.String()}

	rec := a.do(t, http.MethodGet, "/v1/quota/photo", nil, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		Allowed   bool  `json:"allowed"`
		Used      int64 `json:"used"`
		Limit     int64 `json:"limit"`
		Remaining int64 `json:"remaining"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.True(t, status.Allowed)
	assert.Equal(t, int64(2), status.Limit)
	assert.Equal(t, int64(2), status.Remaining)

	require.NoError(t, a.quota.Increment(ctx, userID, uuid.Nil, "photo"))
	require.NoError(t, a.quota.Increment(ctx, userID, uuid.Nil, "photo"))

	rec = a.do(t, http.MethodGet, "/v1/quota/photo", nil, headers)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	exceeded := decode[errorResult](t, rec)
	assert.Equal(t, "quota_exceeded", exceeded.Error.Code)
	assert.Equal(t, float64(2), exceeded.Error.Details["used"])
	assert.Equal(t, float64(2), exceeded.Error.Details["limit"])
	assert.NotEmpty(t, exceeded.Error.Details["resets_at"])

	t.Run("tenant counters are separate", func(t *testing.T) {
		h := map[string]string{api.UserIDHeader: userID.String(), api.TenantIDHeader: uuid.NewString()}
		rec := a.do(t, http.MethodGet, "/v1/quota/photo", nil, h)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unknown feature", func(t *testing.T) {
		rec := a.do(t, http.MethodGet, "/v1/quota/video", nil, headers)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid tenant header", func(t *testing.T) {
		h := map[string]string{api.UserIDHeader: userID.String(), api.TenantIDHeader: "acme"}
		rec := a.do(t, http.MethodGet, "/v1/quota/photo", nil, h)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	failing := httpserver.Check{Name: "db", Fn: func(context.Context) error { return errors.New("down") }}
	a := newTestAPI(t, failing)

	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/health/live", nil, nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, a.do(t, http.MethodGet, "/health/ready", nil, nil).Code)

	rec := a.do(t, http.MethodGet, "/health/live", nil, map[string]string{"X-Request-ID": "req-1"})
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))

	rec = a.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "paywall_http_requests_total")

	rec = a.do(t, http.MethodGet, "/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[errorResult](t, rec).Error.Code)
}

func TestNewRouter_PanicsWithoutDeps(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { api.NewRouter(api.Deps{}) })
}
