package gateway

import (
	"fmt"
	"net/http"
)

// PaymentError is a terminal pipeline or control-plane failure with a
// machine-readable code and the HTTP status it maps to.
type PaymentError struct {
	Status  int                    `json:"-"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes returned by the validation pipeline and the custom-product
// control plane.
const (
	ErrCodeInvalidHeader        = "invalid_payment_header"
	ErrCodeRequirementsMismatch = "requirements_mismatch"
	ErrCodeInvalidPayload       = "invalid_payment_payload"
	ErrCodeRecipientMismatch    = "recipient_mismatch"
	ErrCodeInvalidSpender       = "invalid_spender"
	ErrCodeInvalidAuthorization = "invalid_authorization"
	ErrCodeDeadlineTooFar       = "deadline_exceeds_timeout"
	ErrCodeInvalidSignature     = "invalid_signature"
	ErrCodeAmountMismatch       = "amount_mismatch"
	ErrCodeAssetMismatch        = "asset_mismatch"
	ErrCodeUnsupportedGasPayer  = "unsupported_gas_payer"
	ErrCodeSettlementFailed     = "settlement_failed"
	ErrCodeFacilitatorFailure   = "facilitator_unavailable"

	ErrCodeInvalidRequest    = "invalid_request"
	ErrCodeUnauthenticated   = "signature_creator_mismatch"
	ErrCodeNonceReplay       = "nonce_already_used"
	ErrCodeRateLimited       = "create_rate_limited"
	ErrCodeQuotaExceeded     = "product_quota_exceeded"
	ErrCodeInvalidToken      = "invalid_token_contract"
	ErrCodeTokenRPCFailure   = "token_metadata_unavailable"
	ErrCodeNotFound          = "not_found"
	ErrCodeFeatureDisabled   = "feature_disabled"
	ErrCodeInternal          = "internal_error"
)

func badRequest(code, message string) *PaymentError {
	return &PaymentError{Status: http.StatusBadRequest, Code: code, Message: message}
}

func paymentRequired(code, message string) *PaymentError {
	return &PaymentError{Status: http.StatusPaymentRequired, Code: code, Message: message}
}

func tooManyRequests(code, message string) *PaymentError {
	return &PaymentError{Status: http.StatusTooManyRequests, Code: code, Message: message}
}

func badGateway(code, message string) *PaymentError {
	return &PaymentError{Status: http.StatusBadGateway, Code: code, Message: message}
}

func (e *PaymentError) withDetails(details map[string]interface{}) *PaymentError {
	e.Details = details
	return e
}
