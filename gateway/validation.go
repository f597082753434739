package gateway

import (
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/bubbletez/x402-gateway/permit2"
	"github.com/bubbletez/x402-gateway/types"
)

// settlementTerms is the validated output of the pipeline, ready to hand to
// the facilitator.
type settlementTerms struct {
	Payload      types.PaymentPayload
	Transfer     *permit2.SignedTransfer
	GasPayer     string
	requirements types.PaymentRequirements
}

// paymentContext carries state across pipeline checks. Checks run in a
// fixed order and the first failure is terminal.
type paymentContext struct {
	cfg          *Config
	requirements types.PaymentRequirements
	header       string
	gasPayerRaw  string
	now          time.Time

	payload  types.PaymentPayload
	transfer *permit2.SignedTransfer
	message  permit2.TransferMessage
	gasPayer string
}

type paymentCheck struct {
	name string
	run  func(*paymentContext) *PaymentError
}

// paymentChecks is the full pipeline. Structural failures (the request is
// not a well-formed payment) return 400; failures of the offered terms
// return 402. Ordering is part of the contract: a client must learn the
// earliest applicable failure.
var paymentChecks = []paymentCheck{
	{"header_size", checkHeaderSize},
	{"decode", checkDecode},
	{"accepted_requirements", checkAcceptedRequirements},
	{"payload_shape", checkPayloadShape},
	{"recipient", checkRecipient},
	{"spender", checkSpender},
	{"authorization_values", checkAuthorizationValues},
	{"deadline_window", checkDeadlineWindow},
	{"signature_format", checkSignatureFormat},
	{"amount", checkAmount},
	{"asset", checkAsset},
	{"gas_payer", checkGasPayer},
}

// validatePayment runs a Payment-Signature header through every check
// against the requirement offered for the product.
func validatePayment(cfg *Config, requirements types.PaymentRequirements, header, gasPayerHeader string, now time.Time) (*settlementTerms, *PaymentError) {
	pc := &paymentContext{
		cfg:          cfg,
		requirements: requirements,
		header:       header,
		gasPayerRaw:  gasPayerHeader,
		now:          now,
	}
	for _, check := range paymentChecks {
		if perr := check.run(pc); perr != nil {
			return nil, perr
		}
	}
	return &settlementTerms{
		Payload:      pc.payload,
		Transfer:     pc.transfer,
		GasPayer:     pc.gasPayer,
		requirements: requirements,
	}, nil
}

func checkHeaderSize(pc *paymentContext) *PaymentError {
	if len(pc.header) > pc.cfg.MaxPaymentHeaderBytes {
		return badRequest(ErrCodeInvalidHeader,
			fmt.Sprintf("payment header exceeds %d bytes", pc.cfg.MaxPaymentHeaderBytes))
	}
	return nil
}

func checkDecode(pc *paymentContext) *PaymentError {
	payload, err := types.DecodePaymentPayload(pc.header)
	if err != nil {
		return badRequest(ErrCodeInvalidHeader, "payment header is not valid base64-encoded JSON")
	}
	if payload.X402Version != types.X402Version {
		return badRequest(ErrCodeInvalidHeader,
			fmt.Sprintf("unsupported x402 version %d", payload.X402Version))
	}
	pc.payload = payload
	return nil
}

func checkAcceptedRequirements(pc *paymentContext) *PaymentError {
	if pc.payload.Accepted == nil {
		return badRequest(ErrCodeInvalidPayload, "payment payload is missing the accepted requirements")
	}
	if !types.RequirementsMatch(pc.payload.Accepted, pc.requirements) {
		return paymentRequired(ErrCodeRequirementsMismatch,
			"accepted payment requirements do not match the offered requirements")
	}
	return nil
}

func checkPayloadShape(pc *paymentContext) *PaymentError {
	if pc.payload.Payload == nil {
		return badRequest(ErrCodeInvalidPayload, "payment payload is missing the payload object")
	}
	transfer, err := permit2.SignedTransferFromMap(pc.payload.Payload)
	if err != nil {
		return badRequest(ErrCodeInvalidPayload, err.Error())
	}
	pc.transfer = transfer
	return nil
}

func checkRecipient(pc *paymentContext) *PaymentError {
	if !types.SameAddress(pc.transfer.Authorization.Witness.To, pc.requirements.PayTo) {
		return paymentRequired(ErrCodeRecipientMismatch,
			"witness recipient does not match the payment recipient")
	}
	return nil
}

func checkSpender(pc *paymentContext) *PaymentError {
	if !types.SameAddress(pc.transfer.Authorization.Spender, pc.cfg.TransferProxy) {
		return paymentRequired(ErrCodeInvalidSpender,
			"authorization spender is not the supported transfer proxy")
	}
	return nil
}

// checkAuthorizationValues parses the numeric fields, validates bounds, and
// rewrites the addresses to checksummed form so downstream consumers see
// canonical values.
func checkAuthorizationValues(pc *paymentContext) *PaymentError {
	auth := &pc.transfer.Authorization

	for _, field := range []struct {
		name  string
		value *string
	}{
		{"permit2Authorization.from", &auth.From},
		{"permit2Authorization.spender", &auth.Spender},
		{"permit2Authorization.permitted.token", &auth.Permitted.Token},
		{"permit2Authorization.witness.to", &auth.Witness.To},
	} {
		normalized, err := permit2.NormalizeAddress(*field.value, field.name)
		if err != nil {
			return badRequest(ErrCodeInvalidAuthorization, err.Error())
		}
		*field.value = normalized
	}

	message, err := auth.Message()
	if err != nil {
		return badRequest(ErrCodeInvalidAuthorization, err.Error())
	}
	if message.Deadline.Sign() <= 0 {
		return badRequest(ErrCodeInvalidAuthorization, "deadline must be positive")
	}
	if message.ValidAfter.Cmp(message.Deadline) > 0 {
		return badRequest(ErrCodeInvalidAuthorization, "validAfter is after the deadline")
	}
	pc.message = message
	return nil
}

// checkDeadlineWindow bounds the deadline by the offered maxTimeoutSeconds
// plus a small clock-skew allowance. Expired deadlines are left to the
// facilitator and the chain, which reject them authoritatively.
func checkDeadlineWindow(pc *paymentContext) *PaymentError {
	limit := new(big.Int).SetInt64(
		pc.now.Unix() + int64(pc.requirements.MaxTimeoutSeconds) + int64(pc.cfg.DeadlineSkew/time.Second))
	if pc.message.Deadline.Cmp(limit) > 0 {
		return badRequest(ErrCodeDeadlineTooFar,
			fmt.Sprintf("deadline exceeds maxTimeoutSeconds (%d)", pc.requirements.MaxTimeoutSeconds))
	}
	return nil
}

func checkSignatureFormat(pc *paymentContext) *PaymentError {
	if !strings.HasPrefix(pc.transfer.Signature, "0x") {
		return badRequest(ErrCodeInvalidSignature, "signature must be 0x-prefixed hex")
	}
	return nil
}

// checkAmount requires exact equality in base units. Overpayment is as
// invalid as underpayment; the signed amount is what settles.
func checkAmount(pc *paymentContext) *PaymentError {
	required, ok := new(big.Int).SetString(pc.requirements.Amount, 10)
	if !ok {
		return &PaymentError{Status: http.StatusInternalServerError, Code: ErrCodeInternal, Message: "offered amount is malformed"}
	}
	if pc.message.Amount.Cmp(required) != 0 {
		return paymentRequired(ErrCodeAmountMismatch,
			fmt.Sprintf("authorized amount %s does not equal required amount %s", pc.message.Amount, required))
	}
	return nil
}

func checkAsset(pc *paymentContext) *PaymentError {
	if !types.SameAddress(pc.transfer.Authorization.Permitted.Token, pc.requirements.Asset) {
		return paymentRequired(ErrCodeAssetMismatch,
			"authorized token does not match the required asset")
	}
	return nil
}

// checkGasPayer accepts only facilitator-sponsored settlement. The header
// is optional; "auto" delegates the choice and resolves to the facilitator.
func checkGasPayer(pc *paymentContext) *PaymentError {
	mode := strings.ToLower(strings.TrimSpace(pc.gasPayerRaw))
	switch mode {
	case "", "auto", "facilitator":
		pc.gasPayer = "facilitator"
		return nil
	default:
		return paymentRequired(ErrCodeUnsupportedGasPayer,
			fmt.Sprintf("unsupported gas payer mode %q", mode))
	}
}
