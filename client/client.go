// Package client builds and signs exact-scheme x402 payment payloads for a
// locally held EOA key. It implements the payer side of the flow: decode a
// 402 challenge, sign a Permit2 witness-transfer authorization for the
// offered terms, and encode the retry header.
package client

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/bubbletez/x402-gateway/permit2"
	"github.com/bubbletez/x402-gateway/types"
)

// Signer holds the payer's key.
type Signer struct {
	key     *ecdsa.PrivateKey
	address string
}

// NewSigner parses a hex-encoded private key, with or without 0x prefix.
func NewSigner(hexKey string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey).Hex()}, nil
}

// NewSignerFromKey wraps an already-parsed key.
func NewSignerFromKey(key *ecdsa.PrivateKey) *Signer {
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey).Hex()}
}

// Address returns the payer's checksummed address.
func (s *Signer) Address() string { return s.address }

// validAfterGrace backdates validAfter so a payment is usable immediately
// even across modest clock skew between payer and verifier.
const validAfterGrace = 600 * time.Second

// NewPayment accepts the first offered requirement of a 402 challenge and
// returns the signed payment payload for the retry. The spender must be the
// transfer proxy the gateway advertises, and the chain id must match the
// requirement's network.
func NewPayment(signer *Signer, challenge types.PaymentRequired, chainID *big.Int, spender string, now time.Time) (types.PaymentPayload, error) {
	if len(challenge.Accepts) == 0 {
		return types.PaymentPayload{}, fmt.Errorf("challenge offers no payment requirements")
	}
	requirement := challenge.Accepts[0]

	nonce, err := newNonce()
	if err != nil {
		return types.PaymentPayload{}, err
	}

	validAfter := now.Add(-validAfterGrace).Unix()
	if validAfter < 0 {
		validAfter = 0
	}
	deadline := now.Unix() + int64(requirement.MaxTimeoutSeconds)

	authorization := permit2.Authorization{
		From: signer.address,
		Permitted: permit2.TokenPermissions{
			Token:  requirement.Asset,
			Amount: requirement.Amount,
		},
		Spender:  spender,
		Nonce:    nonce.String(),
		Deadline: fmt.Sprintf("%d", deadline),
		Witness: permit2.Witness{
			To:         requirement.PayTo,
			ValidAfter: fmt.Sprintf("%d", validAfter),
			Extra:      "0x",
		},
	}

	digest, err := permit2.TypedDataDigest(chainID, authorization)
	if err != nil {
		return types.PaymentPayload{}, fmt.Errorf("failed to compute signing digest: %w", err)
	}
	signature, err := permit2.SignDigest(digest, signer.key)
	if err != nil {
		return types.PaymentPayload{}, err
	}

	transfer := permit2.SignedTransfer{Signature: signature, Authorization: authorization}
	accepted, err := requirementsToMap(requirement)
	if err != nil {
		return types.PaymentPayload{}, err
	}

	return types.PaymentPayload{
		X402Version: types.X402Version,
		Accepted:    accepted,
		Resource:    challenge.Resource,
		Payload:     transfer.ToMap(),
	}, nil
}

// newNonce draws a random 256-bit Permit2 nonce. Permit2 nonces are
// unordered; randomness makes collisions negligible without coordination.
func newNonce() (*big.Int, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nil, fmt.Errorf("failed to draw nonce: %w", err)
	}
	return new(big.Int).SetBytes(buf[:]), nil
}

// requirementsToMap round-trips a requirement through JSON so the accepted
// terms echo the offer field-for-field.
func requirementsToMap(requirement types.PaymentRequirements) (map[string]interface{}, error) {
	encoded, err := json.Marshal(requirement)
	if err != nil {
		return nil, fmt.Errorf("failed to encode requirement: %w", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode requirement: %w", err)
	}
	return decoded, nil
}
