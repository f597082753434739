package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bubbletez/x402-gateway/types"
)

const testTxHash = "0xab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12"

func settleArgs() (types.PaymentPayload, types.PaymentRequirements) {
	payload := types.PaymentPayload{
		X402Version: types.X402Version,
		Accepted:    map[string]interface{}{"scheme": "exact"},
		Payload:     map[string]interface{}{"signature": "0xabc"},
	}
	return payload, testConfig().newRequirements("10000000000000000")
}

func newFacilitator(url string) *FacilitatorClient {
	return NewFacilitatorClient(url, 2*time.Second, 1024)
}

func TestSettleSuccess(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/settle", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "transactionId": testTxHash})
	}))
	defer server.Close()

	payload, requirements := settleArgs()
	outcome, perr := newFacilitator(server.URL).Settle(context.Background(), payload, requirements)
	require.Nil(t, perr)
	assert.Equal(t, testTxHash, outcome.TransactionID)

	assert.Equal(t, float64(types.X402Version), gotBody["x402Version"])
	assert.Contains(t, gotBody, "paymentPayload")
	assert.Contains(t, gotBody, "paymentRequirements")
}

func TestSettleNon200IsPaymentFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{"error": "insufficient allowance"})
	}))
	defer server.Close()

	payload, requirements := settleArgs()
	_, perr := newFacilitator(server.URL).Settle(context.Background(), payload, requirements)
	require.NotNil(t, perr)
	assert.Equal(t, http.StatusPaymentRequired, perr.Status)
	assert.Equal(t, ErrCodeSettlementFailed, perr.Code)
	assert.Contains(t, perr.Details, "facilitator")
}

func TestSettleMalformedBodyIsPaymentFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	payload, requirements := settleArgs()
	_, perr := newFacilitator(server.URL).Settle(context.Background(), payload, requirements)
	require.NotNil(t, perr)
	assert.Equal(t, http.StatusPaymentRequired, perr.Status)
	assert.Equal(t, ErrCodeSettlementFailed, perr.Code)
}

func TestSettleOversizedResponseIsGatewayFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pad":"` + strings.Repeat("x", 4096) + `"}`))
	}))
	defer server.Close()

	payload, requirements := settleArgs()
	_, perr := newFacilitator(server.URL).Settle(context.Background(), payload, requirements)
	require.NotNil(t, perr)
	assert.Equal(t, http.StatusBadGateway, perr.Status)
	assert.Equal(t, ErrCodeFacilitatorFailure, perr.Code)
}

func TestSettleUnreachableFacilitator(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	payload, requirements := settleArgs()
	_, perr := newFacilitator(server.URL).Settle(context.Background(), payload, requirements)
	require.NotNil(t, perr)
	assert.Equal(t, http.StatusBadGateway, perr.Status)
	assert.Equal(t, ErrCodeFacilitatorFailure, perr.Code)
}

func TestExtractTransactionID(t *testing.T) {
	tests := []struct {
		name     string
		response map[string]interface{}
		want     string
	}{
		{"explicit field", map[string]interface{}{"transactionId": testTxHash}, testTxHash},
		{"nested transaction hash", map[string]interface{}{"transaction": map[string]interface{}{"hash": testTxHash}}, testTxHash},
		{"bare transaction string", map[string]interface{}{"transaction": testTxHash}, testTxHash},
		{"explicit field wins", map[string]interface{}{
			"transactionId": testTxHash,
			"transaction":   map[string]interface{}{"hash": "0x" + strings.Repeat("1", 64)},
		}, testTxHash},
		{"short hash ignored", map[string]interface{}{"transactionId": "0x123"}, ""},
		{"non-hex hash ignored", map[string]interface{}{"transactionId": "0x" + strings.Repeat("z", 64)}, ""},
		{"numeric value ignored", map[string]interface{}{"transactionId": 42}, ""},
		{"no candidates", map[string]interface{}{"success": true}, ""},
		{"malformed explicit falls through to nested", map[string]interface{}{
			"transactionId": "0x123",
			"transaction":   map[string]interface{}{"hash": testTxHash},
		}, testTxHash},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractTransactionID(tt.response))
		})
	}
}
