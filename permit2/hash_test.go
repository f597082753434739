package permit2

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testChainID = big.NewInt(42793)

func testAuthorization() Authorization {
	return Authorization{
		From: "0x9965507D1a55bcC2695C58ba16FB37d819B0A4dc",
		Permitted: TokenPermissions{
			Token:  "0x5FbDB2315678afecb367f032d93F642f64180aa3",
			Amount: "10000000000000000",
		},
		Spender:  DefaultTransferProxyAddress,
		Nonce:    "123456789",
		Deadline: "1767225600",
		Witness: Witness{
			To:         "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
			ValidAfter: "1767220000",
			Extra:      "0x",
		},
	}
}

func TestAuthorizationDigestDeterministic(t *testing.T) {
	first, err := AuthorizationDigest(testChainID, testAuthorization())
	require.NoError(t, err)
	second, err := AuthorizationDigest(testChainID, testAuthorization())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// The manual keccak construction and go-ethereum's typed-data path must
// produce the same digest, or a signature produced by one side would never
// verify on the other.
func TestManualAndTypedDataDigestsAgree(t *testing.T) {
	auth := testAuthorization()

	manual, err := AuthorizationDigest(testChainID, auth)
	require.NoError(t, err)
	typed, err := TypedDataDigest(testChainID, auth)
	require.NoError(t, err)

	assert.Equal(t, manual, typed)
}

func TestManualAndTypedDataDigestsAgreeWithExtra(t *testing.T) {
	auth := testAuthorization()
	auth.Witness.Extra = "0xdeadbeef"

	manual, err := AuthorizationDigest(testChainID, auth)
	require.NoError(t, err)
	typed, err := TypedDataDigest(testChainID, auth)
	require.NoError(t, err)

	assert.Equal(t, manual, typed)
}

func TestAuthorizationDigestFieldSensitivity(t *testing.T) {
	base, err := AuthorizationDigest(testChainID, testAuthorization())
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(a *Authorization)
	}{
		{"amount", func(a *Authorization) { a.Permitted.Amount = "10000000000000001" }},
		{"token", func(a *Authorization) { a.Permitted.Token = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8" }},
		{"spender", func(a *Authorization) { a.Spender = "0x9965507D1a55bcC2695C58ba16FB37d819B0A4dc" }},
		{"nonce", func(a *Authorization) { a.Nonce = "123456790" }},
		{"deadline", func(a *Authorization) { a.Deadline = "1767225601" }},
		{"witness to", func(a *Authorization) { a.Witness.To = "0x5FbDB2315678afecb367f032d93F642f64180aa3" }},
		{"witness validAfter", func(a *Authorization) { a.Witness.ValidAfter = "1767220001" }},
		{"witness extra", func(a *Authorization) { a.Witness.Extra = "0x01" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := testAuthorization()
			tt.mutate(&auth)
			digest, err := AuthorizationDigest(testChainID, auth)
			require.NoError(t, err)
			assert.NotEqual(t, base, digest)
		})
	}
}

func TestAuthorizationDigestChainSensitivity(t *testing.T) {
	etherlink, err := AuthorizationDigest(big.NewInt(42793), testAuthorization())
	require.NoError(t, err)
	mainnet, err := AuthorizationDigest(big.NewInt(1), testAuthorization())
	require.NoError(t, err)
	assert.NotEqual(t, etherlink, mainnet)
}

// The outer type string appends dependent types alphabetically. A digest
// built with the reversed ordering must not collide with the canonical one.
func TestOuterTypeHashOrdering(t *testing.T) {
	reversed := crypto.Keccak256([]byte(
		permitWitnessTransferFromType + witnessType + tokenPermissionsType,
	))
	assert.NotEqual(t, permitWitnessTypeHash, reversed)
}

func TestSignDigestRecoversSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	digest, err := AuthorizationDigest(testChainID, testAuthorization())
	require.NoError(t, err)

	signature, err := SignDigest(digest, key)
	require.NoError(t, err)

	sigBytes, err := hexutil.Decode(signature)
	require.NoError(t, err)
	require.Len(t, sigBytes, crypto.SignatureLength)
	require.GreaterOrEqual(t, sigBytes[crypto.RecoveryIDOffset], byte(27))
	sigBytes[crypto.RecoveryIDOffset] -= 27

	pubKey, err := crypto.SigToPub(digest[:], sigBytes)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), crypto.PubkeyToAddress(*pubKey))
}

func TestAuthorizationMessageRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(a *Authorization)
	}{
		{"bad token address", func(a *Authorization) { a.Permitted.Token = "0x123" }},
		{"negative amount", func(a *Authorization) { a.Permitted.Amount = "-1" }},
		{"non-numeric nonce", func(a *Authorization) { a.Nonce = "0xdead" }},
		{"non-numeric deadline", func(a *Authorization) { a.Deadline = "soon" }},
		{"bad extra hex", func(a *Authorization) { a.Witness.Extra = "zz" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := testAuthorization()
			tt.mutate(&auth)
			_, err := auth.Message()
			assert.Error(t, err)
		})
	}
}

func TestSignedTransferMapRoundTrip(t *testing.T) {
	transfer := &SignedTransfer{
		Signature:     "0xababab",
		Authorization: testAuthorization(),
	}

	decoded, err := SignedTransferFromMap(transfer.ToMap())
	require.NoError(t, err)
	assert.Equal(t, transfer, decoded)
}

func TestSignedTransferFromMapMissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m map[string]interface{})
	}{
		{"no signature", func(m map[string]interface{}) { delete(m, "signature") }},
		{"no authorization", func(m map[string]interface{}) { delete(m, "permit2Authorization") }},
		{"no witness", func(m map[string]interface{}) {
			delete(m["permit2Authorization"].(map[string]interface{}), "witness")
		}},
		{"no witness to", func(m map[string]interface{}) {
			auth := m["permit2Authorization"].(map[string]interface{})
			delete(auth["witness"].(map[string]interface{}), "to")
		}},
		{"no permitted amount", func(m map[string]interface{}) {
			auth := m["permit2Authorization"].(map[string]interface{})
			delete(auth["permitted"].(map[string]interface{}), "amount")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transfer := &SignedTransfer{Signature: "0xababab", Authorization: testAuthorization()}
			m := transfer.ToMap()
			tt.mutate(m)
			_, err := SignedTransferFromMap(m)
			assert.Error(t, err)
		})
	}
}
