package quota_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/paywall/pkg/entitlement"
	"github.com/dmitrymomot/paywall/pkg/quota"
)

func TestParseYAML(t *testing.T) {
	t.Parallel()

	limits, err := quota.ParseYAML(strings.NewReader(`
free:
  photo: 10
  ocr: 5
premium:
  photo: 300
  ocr: -1
`))
	require.NoError(t, err)
	assert.Equal(t, int64(10), limits[entitlement.PlanFree]["photo"])
	assert.Equal(t, int64(5), limits[entitlement.PlanFree]["ocr"])
	assert.Equal(t, quota.Unlimited, limits[entitlement.PlanPremium]["ocr"])

	t.Run("empty document", func(t *testing.T) {
		t.Parallel()
		limits, err := quota.ParseYAML(strings.NewReader(""))
		require.NoError(t, err)
		assert.Empty(t, limits)
	})

	t.Run("wrong shape", func(t *testing.T) {
		t.Parallel()
		_, err := quota.ParseYAML(strings.NewReader("free: [1, 2]"))
		assert.ErrorIs(t, err, quota.ErrInvalidLimits)
	})
}

func TestYAMLSource(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "limits.yaml")
	require.NoError(t, os.WriteFile(path, []byte("free:\n  photo: 3\n"), 0o600))

	ledger, err := quota.NewLedger(ctx, quota.NewYAMLSource(path), quota.NewMemoryStore())
	require.NoError(t, err)
	limit, err := ledger.Limit(entitlement.PlanFree, "photo")
	require.NoError(t, err)
	assert.Equal(t, int64(3), limit)

	_, err = quota.NewLedger(ctx, quota.NewYAMLSource(filepath.Join(t.TempDir(), "missing.yaml")), quota.NewMemoryStore())
	assert.ErrorIs(t, err, quota.ErrFailedToLoadLimits)
}

func TestInMemSource_ReturnsCopy(t *testing.T) {
	t.Parallel()

	src := quota.NewInMemSource(quota.Limits{entitlement.PlanFree: {"photo": 10}})
	first, err := src.Load(context.Background())
	require.NoError(t, err)
	first[entitlement.PlanFree]["photo"] = 999

	second, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10), second[entitlement.PlanFree]["photo"])
}

func TestNewLedger_ValidatesLimits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		limits quota.Limits
	}{
		{"unknown plan", quota.Limits{"gold": {"photo": 1}}},
		{"negative limit", quota.Limits{entitlement.PlanFree: {"photo": -5}}},
		{"empty feature", quota.Limits{entitlement.PlanFree: {"": 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := quota.NewLedger(context.Background(), quota.NewInMemSource(tt.limits), quota.NewMemoryStore())
			assert.ErrorIs(t, err, quota.ErrInvalidLimits)
		})
	}
}
