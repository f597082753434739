package gateway

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("FACILITATOR_URL", "https://facilitator.example/")
	t.Setenv("SERVER_WALLET", "0x70997970c51812dc3a010c7d01b50e0d17dc79c8")
	t.Setenv("BBT_TOKEN", "0x5fbdb2315678afecb367f032d93f642f64180aa3")
	t.Setenv("RPC_URL", "https://node.etherlink.example")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://facilitator.example", cfg.FacilitatorURL)
	assert.Equal(t, "eip155:42793", cfg.Network)
	assert.Equal(t, "42793", cfg.ChainID.String())
	assert.Equal(t, "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", cfg.PayTo)
	assert.Equal(t, "0x5FbDB2315678afecb367f032d93F642f64180aa3", cfg.Asset)
	assert.Equal(t, "0xB6FD384A0626BfeF85f3dBaf5223Dd964684B09E", cfg.TransferProxy)
	assert.Equal(t, 60, cfg.MaxTimeoutSeconds)
	assert.Equal(t, DefaultMaxHeaderBytes, cfg.MaxPaymentHeaderBytes)
	assert.Equal(t, 6*time.Second, cfg.DeadlineSkew)
	assert.True(t, cfg.CustomProducts.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.CustomProducts.TTL)
	assert.Equal(t, 5, cfg.CustomProducts.MaxPerCreator)
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("NETWORK", "eip155:1")
	t.Setenv("MAX_TIMEOUT_SECONDS", "120")
	t.Setenv("CUSTOM_PRODUCTS_ENABLED", "false")
	t.Setenv("CUSTOM_PRODUCT_TTL_SECONDS", "3600")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "1", cfg.ChainID.String())
	assert.Equal(t, 120, cfg.MaxTimeoutSeconds)
	assert.False(t, cfg.CustomProducts.Enabled)
	assert.Equal(t, time.Hour, cfg.CustomProducts.TTL)
}

func TestLoadConfigDerivesPayToFromKey(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SERVER_WALLET", "")

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	t.Setenv("STORE_PRIVATE_KEY", "0x"+hex.EncodeToString(crypto.FromECDSA(key)))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey).Hex(), cfg.PayTo)
}

func TestLoadConfigRejections(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing facilitator", map[string]string{"FACILITATOR_URL": ""}},
		{"non-http facilitator", map[string]string{"FACILITATOR_URL": "ftp://x"}},
		{"bad network", map[string]string{"NETWORK": "etherlink"}},
		{"bad wallet", map[string]string{"SERVER_WALLET": "0x123"}},
		{"bad token", map[string]string{"BBT_TOKEN": "not-an-address"}},
		{"bad proxy", map[string]string{"X402_EXACT_PERMIT2_PROXY_ADDRESS": "0xzz"}},
		{"non-numeric timeout", map[string]string{"MAX_TIMEOUT_SECONDS": "soon"}},
		{"zero timeout", map[string]string{"MAX_TIMEOUT_SECONDS": "0"}},
		{"missing rpc with custom products", map[string]string{"RPC_URL": ""}},
		{"zero creator quota", map[string]string{"CUSTOM_PRODUCT_MAX_PER_CREATOR": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			for key, value := range tt.env {
				t.Setenv(key, value)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}
