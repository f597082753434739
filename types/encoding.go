package types

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// EncodePaymentRequired converts a PaymentRequired challenge to the
// base64-encoded JSON form carried in the Payment-Required header.
func EncodePaymentRequired(required PaymentRequired) (string, error) {
	requiredJSON, err := json.Marshal(required)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment required: %w", err)
	}
	return base64.StdEncoding.EncodeToString(requiredJSON), nil
}

// DecodePaymentRequired converts a base64-encoded JSON string back to a
// PaymentRequired challenge.
func DecodePaymentRequired(encoded string) (PaymentRequired, error) {
	var required PaymentRequired

	decoded, err := base64.StdEncoding.Strict().DecodeString(encoded)
	if err != nil {
		return required, fmt.Errorf("failed to decode base64: %w", err)
	}

	if err := json.Unmarshal(decoded, &required); err != nil {
		return required, fmt.Errorf("failed to unmarshal payment required: %w", err)
	}

	return required, nil
}

// EncodePaymentPayload converts a PaymentPayload to the base64-encoded JSON
// form carried in the Payment-Signature header.
func EncodePaymentPayload(payload PaymentPayload) (string, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(payloadJSON), nil
}

// DecodePaymentPayload converts a base64-encoded JSON string back to a
// PaymentPayload. Decoding is strict: non-canonical base64 is rejected.
func DecodePaymentPayload(encoded string) (PaymentPayload, error) {
	var payload PaymentPayload

	decoded, err := base64.StdEncoding.Strict().DecodeString(encoded)
	if err != nil {
		return payload, fmt.Errorf("failed to decode base64: %w", err)
	}

	if err := json.Unmarshal(decoded, &payload); err != nil {
		return payload, fmt.Errorf("failed to unmarshal payment payload: %w", err)
	}

	return payload, nil
}

// EncodeSettleResult converts a SettleResult to the base64-encoded JSON
// form carried in the X-Payment-Response header.
func EncodeSettleResult(result SettleResult) (string, error) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to marshal settle result: %w", err)
	}
	return base64.StdEncoding.EncodeToString(resultJSON), nil
}

// DecodeSettleResult converts a base64-encoded JSON string back to a
// SettleResult.
func DecodeSettleResult(encoded string) (SettleResult, error) {
	var result SettleResult

	decoded, err := base64.StdEncoding.Strict().DecodeString(encoded)
	if err != nil {
		return result, fmt.Errorf("failed to decode base64: %w", err)
	}

	if err := json.Unmarshal(decoded, &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal settle result: %w", err)
	}

	return result, nil
}
