// Package types defines the x402 v2 wire model exchanged between clients,
// the resource gateway, and the settlement facilitator.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// X402Version is the protocol version this gateway speaks.
const X402Version = 2

// HTTP header names used by the challenge/response flow.
// Header lookups are case-insensitive per RFC 9110.
const (
	PaymentSignatureHeader = "Payment-Signature"
	PaymentRequiredHeader  = "Payment-Required"
	PaymentResponseHeader  = "X-Payment-Response"
	GasPayerHeader         = "X-Gas-Payer"
)

// SchemeExact is the only payment scheme supported by this gateway.
const SchemeExact = "exact"

// PaymentRequirements describes one acceptable payment for a resource.
// Instances are built once per resource and never mutated afterwards.
type PaymentRequirements struct {
	Scheme            string                 `json:"scheme"`
	Network           string                 `json:"network"`
	Amount            string                 `json:"amount"`
	PayTo             string                 `json:"payTo"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds"`
	Asset             string                 `json:"asset"`
	Extra             map[string]interface{} `json:"extra,omitempty"`
}

// ResourceInfo describes the resource being paywalled.
type ResourceInfo struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// PaymentRequired is the 402 challenge envelope carried base64-encoded in
// the Payment-Required response header.
type PaymentRequired struct {
	X402Version int                   `json:"x402Version"`
	Accepts     []PaymentRequirements `json:"accepts"`
	Resource    *ResourceInfo         `json:"resource,omitempty"`
	Error       string                `json:"error,omitempty"`
}

// PaymentPayload is the authorization envelope carried base64-encoded in
// the Payment-Signature request header.
//
// Accepted and Payload are kept as raw maps: the validation pipeline
// compares the accepted terms field-by-field against the offered
// requirements rather than trusting a typed decode, and the payload shape
// depends on the transfer mechanism.
type PaymentPayload struct {
	X402Version int                    `json:"x402Version"`
	Accepted    map[string]interface{} `json:"accepted"`
	Resource    *ResourceInfo          `json:"resource,omitempty"`
	Payload     map[string]interface{} `json:"payload"`
}

// SettleResult is the settlement receipt carried base64-encoded in the
// X-Payment-Response header of a paid 200 response.
type SettleResult struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transactionId,omitempty"`
	GasPayer      string `json:"gasPayer,omitempty"`
	Network       string `json:"network"`
	ExplorerURL   string `json:"explorerUrl,omitempty"`
	ResourceID    string `json:"resourceId,omitempty"`
}

// criticalKeys are the settlement-critical requirement fields. A client may
// echo extra non-critical fields, but these must match the offer exactly.
var criticalKeys = []string{"scheme", "network", "amount", "payTo", "maxTimeoutSeconds", "asset"}

// RequirementsMatch reports whether the requirement a client claims to have
// accepted matches the requirement the server offered. Every critical field
// is compared by string equality and the extra object must be equal as a
// whole; a partial or reordered match is not a match.
func RequirementsMatch(accepted map[string]interface{}, offered PaymentRequirements) bool {
	if accepted == nil {
		return false
	}

	offeredFields := map[string]string{
		"scheme":            offered.Scheme,
		"network":           offered.Network,
		"amount":            offered.Amount,
		"payTo":             offered.PayTo,
		"maxTimeoutSeconds": strconv.Itoa(offered.MaxTimeoutSeconds),
		"asset":             offered.Asset,
	}
	for _, key := range criticalKeys {
		if stringify(accepted[key]) != offeredFields[key] {
			return false
		}
	}

	return jsonEqual(accepted["extra"], offered.Extra)
}

// stringify renders a decoded JSON scalar the way the matching rules expect:
// numbers without an exponent, everything else via the default formatting.
func stringify(v interface{}) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	default:
		return fmt.Sprint(value)
	}
}

// jsonEqual compares two values by their canonical JSON encoding. Map keys
// are sorted by encoding/json, so the comparison is order-insensitive for
// objects while staying exact for values.
func jsonEqual(a, b interface{}) bool {
	aJSON, errA := json.Marshal(a)
	bJSON, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	if bytes.Equal(aJSON, bJSON) {
		return true
	}
	// A missing extra and an explicit empty object are not the same offer.
	return false
}

// SameAddress compares two hex addresses case-insensitively.
func SameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}
