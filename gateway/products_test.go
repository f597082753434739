package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierBaseUnits(t *testing.T) {
	tests := []struct {
		tierID   string
		decimals uint8
		want     string
	}{
		{"tier_0_01", 18, "10000000000000000"},
		{"tier_0_1", 18, "100000000000000000"},
		{"tier_1_0", 18, "1000000000000000000"},
		{"tier_0_01", 6, "10000"},
		{"tier_0_01", 2, "1"},
		{"tier_1_0", 0, "1"},
	}

	for _, tt := range tests {
		t.Run(tt.tierID, func(t *testing.T) {
			tier, ok := tierByID(tt.tierID)
			require.True(t, ok)
			amount, err := tierBaseUnits(tier, tt.decimals)
			require.NoError(t, err)
			assert.Equal(t, tt.want, amount.String())
		})
	}
}

func TestTierBaseUnitsRejectsCoarseDecimals(t *testing.T) {
	tier, ok := tierByID("tier_0_01")
	require.True(t, ok)

	_, err := tierBaseUnits(tier, 1)
	assert.Error(t, err)

	_, err = tierBaseUnits(tier, 0)
	assert.Error(t, err)
}

func TestTierByIDUnknown(t *testing.T) {
	_, ok := tierByID("tier_10_0")
	assert.False(t, ok)
}

func TestBuiltinProducts(t *testing.T) {
	cfg := testConfig()
	products := builtinProducts(cfg)
	require.Len(t, products, 2)

	weather := products["weather"]
	require.NotNil(t, weather)
	assert.Equal(t, "/api/weather", weather.Path)
	assert.Equal(t, weatherPrice, weather.Requirements.Amount)
	assert.Equal(t, cfg.PayTo, weather.Requirements.PayTo)
	assert.Equal(t, cfg.Asset, weather.Requirements.Asset)
	assert.Equal(t, "permit2", weather.Requirements.Extra["assetTransferMethod"])
	assert.Equal(t, "1", weather.Requirements.Extra["version"])

	premium := products["premium-content"]
	require.NotNil(t, premium)
	assert.Equal(t, premiumContentPrice, premium.Requirements.Amount)
}

func TestCatalogEntryCustomFields(t *testing.T) {
	product := &Product{
		ID:           "custom_abc",
		Name:         "TKN access",
		Description:  "desc",
		Requirements: testConfig().newRequirements("100"),
		Creator:      testCreator,
		TierID:       "tier_0_1",
		CreatedAt:    100,
		ExpiresAt:    200,
	}

	entry := catalogEntry(product, "https://gw.example/api/custom/custom_abc")
	assert.Equal(t, testCreator, entry["creator"])
	assert.Equal(t, "tier_0_1", entry["tierId"])
	assert.Equal(t, int64(200), entry["expiresAt"])

	builtin := catalogEntry(&Product{ID: "weather"}, "https://gw.example/api/weather")
	assert.NotContains(t, builtin, "creator")
}
