package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/bubbletez/x402-gateway/types"
)

// txHashPattern is the only shape accepted as a transaction id from the
// facilitator. Anything else is discarded rather than forwarded to clients.
var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// FacilitatorClient settles validated payments against the external
// facilitator service. The gateway never retries a settlement: the
// authorization nonce is single-use and a blind retry could double-spend.
type FacilitatorClient struct {
	baseURL          string
	httpClient       *http.Client
	maxResponseBytes int64
}

func NewFacilitatorClient(baseURL string, timeout time.Duration, maxResponseBytes int64) *FacilitatorClient {
	return &FacilitatorClient{
		baseURL:          baseURL,
		httpClient:       &http.Client{Timeout: timeout},
		maxResponseBytes: maxResponseBytes,
	}
}

// SettleOutcome is a successful settlement: the extracted transaction id
// (possibly empty if the facilitator reported none) and the raw response.
type SettleOutcome struct {
	TransactionID string
	Response      map[string]interface{}
}

// Settle submits a validated payment for on-chain execution. Transport
// failures and oversized responses map to 502, facilitator-reported
// failures to 402.
func (c *FacilitatorClient) Settle(ctx context.Context, payload types.PaymentPayload, requirements types.PaymentRequirements) (*SettleOutcome, *PaymentError) {
	body, err := json.Marshal(map[string]interface{}{
		"x402Version":         types.X402Version,
		"paymentPayload":      payload,
		"paymentRequirements": requirements,
	})
	if err != nil {
		return nil, &PaymentError{Status: http.StatusInternalServerError, Code: ErrCodeInternal, Message: "failed to encode settle request"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/settle", bytes.NewReader(body))
	if err != nil {
		return nil, &PaymentError{Status: http.StatusInternalServerError, Code: ErrCodeInternal, Message: "failed to build settle request"}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, badGateway(ErrCodeFacilitatorFailure, fmt.Sprintf("facilitator unreachable: %v", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes+1))
	if err != nil {
		return nil, badGateway(ErrCodeFacilitatorFailure, "failed to read facilitator response")
	}
	if int64(len(raw)) > c.maxResponseBytes {
		return nil, badGateway(ErrCodeFacilitatorFailure, "facilitator response exceeds size limit")
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded == nil {
		return nil, paymentRequired(ErrCodeSettlementFailed, fmt.Sprintf("settlement failed: facilitator returned status %d with a malformed body", resp.StatusCode))
	}

	if resp.StatusCode != http.StatusOK {
		perr := paymentRequired(ErrCodeSettlementFailed, fmt.Sprintf("settlement failed: facilitator returned status %d", resp.StatusCode))
		return nil, perr.withDetails(map[string]interface{}{"facilitator": decoded})
	}

	return &SettleOutcome{TransactionID: extractTransactionID(decoded), Response: decoded}, nil
}

// extractTransactionID pulls the settlement transaction hash out of the
// facilitator response. Tries the explicit transactionId field, then a
// nested transaction object's hash, then a bare hash string; each candidate
// must be a well-formed 32-byte hex hash or it is ignored.
func extractTransactionID(response map[string]interface{}) string {
	if id, ok := response["transactionId"].(string); ok && txHashPattern.MatchString(id) {
		return id
	}
	switch tx := response["transaction"].(type) {
	case map[string]interface{}:
		if hash, ok := tx["hash"].(string); ok && txHashPattern.MatchString(hash) {
			return hash
		}
	case string:
		if txHashPattern.MatchString(tx) {
			return tx
		}
	}
	return ""
}
