// Package permit2 implements the witness-transfer authorization model used
// by the exact payment scheme: the EIP-712 digest for Permit2's
// PermitWitnessTransferFrom, the wire types clients submit, and the
// EIP-191 signing scheme gating custom-product creation.
package permit2

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// TokenPermissions is the permitted token and amount of an authorization.
type TokenPermissions struct {
	Token  string `json:"token"`  // Token contract address (hex)
	Amount string `json:"amount"` // Amount in smallest unit as decimal string
}

// Witness is the application-level data bound into the signature and
// verified on-chain by the transfer proxy. The upper time bound lives in
// the authorization's deadline, not here.
type Witness struct {
	To         string `json:"to"`         // Final recipient of funds (hex)
	ValidAfter string `json:"validAfter"` // Unix timestamp (decimal string); invalid before this
	Extra      string `json:"extra"`      // Opaque bytes (hex, "0x" when empty)
}

// Authorization maps to the PermitWitnessTransferFrom struct signed by the
// owner. Created once per payment attempt and consumed exactly once.
type Authorization struct {
	From      string           `json:"from"`      // Signer/owner address (hex)
	Permitted TokenPermissions `json:"permitted"` // Token and amount permitted
	Spender   string           `json:"spender"`   // Must be the configured transfer proxy
	Nonce     string           `json:"nonce"`     // uint256 as decimal string, signer-chosen, used once
	Deadline  string           `json:"deadline"`  // Unix timestamp as decimal string
	Witness   Witness          `json:"witness"`   // Witness data verified by the proxy
}

// SignedTransfer is the complete payment payload a client submits: the
// authorization plus the 65-byte EIP-712 signature over its digest.
type SignedTransfer struct {
	Signature     string        `json:"signature"`
	Authorization Authorization `json:"permit2Authorization"`
}

// ToMap converts a SignedTransfer to a map for embedding in a payment
// payload envelope.
func (s *SignedTransfer) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"signature": s.Signature,
		"permit2Authorization": map[string]interface{}{
			"from": s.Authorization.From,
			"permitted": map[string]interface{}{
				"token":  s.Authorization.Permitted.Token,
				"amount": s.Authorization.Permitted.Amount,
			},
			"spender":  s.Authorization.Spender,
			"nonce":    s.Authorization.Nonce,
			"deadline": s.Authorization.Deadline,
			"witness": map[string]interface{}{
				"to":         s.Authorization.Witness.To,
				"validAfter": s.Authorization.Witness.ValidAfter,
				"extra":      s.Authorization.Witness.Extra,
			},
		},
	}
}

// SignedTransferFromMap extracts a SignedTransfer from a decoded payment
// payload. Returns an error naming the first missing or mistyped field;
// structural absence is distinct from a terms failure.
func SignedTransferFromMap(data map[string]interface{}) (*SignedTransfer, error) {
	transfer := &SignedTransfer{}

	sig, ok := data["signature"].(string)
	if !ok || sig == "" {
		return nil, fmt.Errorf("missing or invalid signature field")
	}
	transfer.Signature = sig

	auth, ok := data["permit2Authorization"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("missing or invalid permit2Authorization field")
	}

	stringField := func(m map[string]interface{}, key, path string) (string, error) {
		value, ok := m[key].(string)
		if !ok || value == "" {
			return "", fmt.Errorf("missing or invalid %s field", path)
		}
		return value, nil
	}

	var err error
	if transfer.Authorization.From, err = stringField(auth, "from", "permit2Authorization.from"); err != nil {
		return nil, err
	}
	if transfer.Authorization.Spender, err = stringField(auth, "spender", "permit2Authorization.spender"); err != nil {
		return nil, err
	}
	if transfer.Authorization.Nonce, err = stringField(auth, "nonce", "permit2Authorization.nonce"); err != nil {
		return nil, err
	}
	if transfer.Authorization.Deadline, err = stringField(auth, "deadline", "permit2Authorization.deadline"); err != nil {
		return nil, err
	}

	permitted, ok := auth["permitted"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("missing or invalid permit2Authorization.permitted field")
	}
	if transfer.Authorization.Permitted.Token, err = stringField(permitted, "token", "permit2Authorization.permitted.token"); err != nil {
		return nil, err
	}
	if transfer.Authorization.Permitted.Amount, err = stringField(permitted, "amount", "permit2Authorization.permitted.amount"); err != nil {
		return nil, err
	}

	witness, ok := auth["witness"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("missing or invalid permit2Authorization.witness field")
	}
	if transfer.Authorization.Witness.To, err = stringField(witness, "to", "permit2Authorization.witness.to"); err != nil {
		return nil, err
	}
	if transfer.Authorization.Witness.ValidAfter, err = stringField(witness, "validAfter", "permit2Authorization.witness.validAfter"); err != nil {
		return nil, err
	}
	if extra, ok := witness["extra"].(string); ok {
		transfer.Authorization.Witness.Extra = extra
	} else {
		return nil, fmt.Errorf("missing or invalid permit2Authorization.witness.extra field")
	}

	return transfer, nil
}

// TransferMessage is the numeric form of an Authorization, ready for
// digest construction. All integers are validated non-negative.
type TransferMessage struct {
	Token      common.Address
	Amount     *big.Int
	Spender    common.Address
	Nonce      *big.Int
	Deadline   *big.Int
	To         common.Address
	ValidAfter *big.Int
	Extra      []byte
}

// Message parses the authorization's decimal strings and hex fields into a
// TransferMessage. It enforces structural soundness only; business checks
// (spender identity, recipient, time window) belong to the caller.
func (a Authorization) Message() (TransferMessage, error) {
	var msg TransferMessage

	for _, field := range []struct {
		name  string
		value string
	}{
		{"permitted.token", a.Permitted.Token},
		{"spender", a.Spender},
		{"witness.to", a.Witness.To},
	} {
		if !common.IsHexAddress(field.value) {
			return msg, fmt.Errorf("invalid %s address: %q", field.name, field.value)
		}
	}
	msg.Token = common.HexToAddress(a.Permitted.Token)
	msg.Spender = common.HexToAddress(a.Spender)
	msg.To = common.HexToAddress(a.Witness.To)

	parseUint := func(name, value string) (*big.Int, error) {
		parsed, ok := new(big.Int).SetString(value, 10)
		if !ok || parsed.Sign() < 0 {
			return nil, fmt.Errorf("invalid %s: %q", name, value)
		}
		return parsed, nil
	}

	var err error
	if msg.Amount, err = parseUint("permitted.amount", a.Permitted.Amount); err != nil {
		return msg, err
	}
	if msg.Nonce, err = parseUint("nonce", a.Nonce); err != nil {
		return msg, err
	}
	if msg.Deadline, err = parseUint("deadline", a.Deadline); err != nil {
		return msg, err
	}
	if msg.ValidAfter, err = parseUint("witness.validAfter", a.Witness.ValidAfter); err != nil {
		return msg, err
	}

	if msg.Extra, err = hexutil.Decode(a.Witness.Extra); err != nil {
		return msg, fmt.Errorf("invalid witness extra: %w", err)
	}

	return msg, nil
}
