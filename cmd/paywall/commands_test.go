package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/paywall/pkg/entitlement"
	"github.com/dmitrymomot/paywall/pkg/sqlite"
	storesqlite "github.com/dmitrymomot/paywall/store/sqlite"
)

func useSQLite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "paywall.db")
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", path)
	t.Setenv("LOG_LEVEL", "error")
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := loadConfig(filepath.Join(t.TempDir(), "none.env"))
		require.NoError(t, err)
		assert.Equal(t, driverPostgres, cfg.StoreDriver)
		assert.Equal(t, driverPostgres, cfg.QuotaStore)
		assert.Equal(t, "premium", cfg.Billing.EntitlementID)
	})

	t.Run("redis quota with sqlite", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "sqlite")
		t.Setenv("QUOTA_STORE", "redis")
		t.Setenv("BILLING_PRODUCT_IDS", "premium_monthly,premium_yearly")
		cfg, err := loadConfig(filepath.Join(t.TempDir(), "none.env"))
		require.NoError(t, err)
		assert.Equal(t, driverRedis, cfg.QuotaStore)
		assert.Equal(t, []string{"premium_monthly", "premium_yearly"}, cfg.Billing.SignalConfig().ProductIDs)
	})

	t.Run("rejects unknown drivers", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "mysql")
		_, err := loadConfig(filepath.Join(t.TempDir(), "none.env"))
		assert.Error(t, err)
	})

	t.Run("rejects mismatched quota store", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "sqlite")
		t.Setenv("QUOTA_STORE", "postgres")
		_, err := loadConfig(filepath.Join(t.TempDir(), "none.env"))
		assert.Error(t, err)
	})
}

func TestBillingConfig_EventTypes(t *testing.T) {
	t.Parallel()

	types, err := BillingConfig{}.EventTypes()
	require.NoError(t, err)
	assert.Equal(t, entitlement.ClassActivation, types.Classify("INITIAL_PURCHASE"))

	types, err = BillingConfig{
		ActivationEvents:   []string{"PURCHASED"},
		DeactivationEvents: []string{"ENDED"},
	}.EventTypes()
	require.NoError(t, err)
	assert.Equal(t, entitlement.ClassActivation, types.Classify("PURCHASED"))
	assert.Equal(t, entitlement.ClassOther, types.Classify("INITIAL_PURCHASE"))

	_, err = BillingConfig{
		ActivationEvents:   []string{"RENEWAL"},
		DeactivationEvents: []string{"RENEWAL"},
	}.EventTypes()
	assert.ErrorIs(t, err, entitlement.ErrInvalidEventTypes)
}

func TestCommands_SQLite(t *testing.T) {
	path := useSQLite(t)
	ctx := context.Background()

	_, err := run(t, "migrate")
	require.NoError(t, err)

	db, err := sqlite.Open(ctx, sqlite.Config{Path: path})
	require.NoError(t, err)
	userID := uuid.New()
	require.NoError(t, storesqlite.New(db).CreateUser(ctx, entitlement.SubscriptionState{UserID: userID}))
	require.NoError(t, db.Close())

	out, err := run(t, "users", "set-plan", userID.String(), "unlimited")
	require.NoError(t, err)
	assert.Contains(t, out, "unlimited")

	_, err = run(t, "users", "set-plan", userID.String(), "gold")
	assert.ErrorIs(t, err, entitlement.ErrInvalidPlan)

	_, err = run(t, "users", "set-plan", uuid.NewString(), "premium")
	assert.ErrorIs(t, err, entitlement.ErrUserNotFound)

	out, err = run(t, "events", "unmatched", "--limit", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "EVENT ID")
}
