package client

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bubbletez/x402-gateway/permit2"
	"github.com/bubbletez/x402-gateway/types"
)

func testChallenge() types.PaymentRequired {
	return types.PaymentRequired{
		X402Version: types.X402Version,
		Accepts: []types.PaymentRequirements{{
			Scheme:            types.SchemeExact,
			Network:           "eip155:42793",
			Amount:            "10000000000000000",
			PayTo:             "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
			MaxTimeoutSeconds: 60,
			Asset:             "0x5FbDB2315678afecb367f032d93F642f64180aa3",
			Extra:             map[string]interface{}{"assetTransferMethod": "permit2", "name": "BBT"},
		}},
		Resource: &types.ResourceInfo{URL: "https://gw.example/api/weather"},
	}
}

func TestNewSignerParsesKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hexKey := hexutil.Encode(crypto.FromECDSA(key))

	signer, err := NewSigner(hexKey)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey).Hex(), signer.Address())

	_, err = NewSigner("not-a-key")
	assert.Error(t, err)
}

func TestNewPaymentMatchesOffer(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := NewSignerFromKey(key)
	challenge := testChallenge()
	now := time.Unix(1_700_000_000, 0)

	payload, err := NewPayment(signer, challenge, big.NewInt(42793), permit2.DefaultTransferProxyAddress, now)
	require.NoError(t, err)

	assert.Equal(t, types.X402Version, payload.X402Version)
	assert.True(t, types.RequirementsMatch(payload.Accepted, challenge.Accepts[0]))
	assert.Equal(t, challenge.Resource, payload.Resource)

	transfer, err := permit2.SignedTransferFromMap(payload.Payload)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), transfer.Authorization.From)
	assert.Equal(t, challenge.Accepts[0].Amount, transfer.Authorization.Permitted.Amount)
	assert.Equal(t, challenge.Accepts[0].PayTo, transfer.Authorization.Witness.To)
	assert.Equal(t, permit2.DefaultTransferProxyAddress, transfer.Authorization.Spender)
	assert.Equal(t, "1699999400", transfer.Authorization.Witness.ValidAfter)
	assert.Equal(t, "1700000060", transfer.Authorization.Deadline)
}

func TestNewPaymentSignatureRecovers(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := NewSignerFromKey(key)
	chainID := big.NewInt(42793)

	payload, err := NewPayment(signer, testChallenge(), chainID, permit2.DefaultTransferProxyAddress, time.Now())
	require.NoError(t, err)

	transfer, err := permit2.SignedTransferFromMap(payload.Payload)
	require.NoError(t, err)

	digest, err := permit2.AuthorizationDigest(chainID, transfer.Authorization)
	require.NoError(t, err)

	sig, err := hexutil.Decode(transfer.Signature)
	require.NoError(t, err)
	require.Len(t, sig, crypto.SignatureLength)
	sig[crypto.RecoveryIDOffset] -= 27

	pubKey, err := crypto.SigToPub(digest[:], sig)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey).Hex(), crypto.PubkeyToAddress(*pubKey).Hex())
}

func TestNewPaymentDistinctNonces(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := NewSignerFromKey(key)

	first, err := NewPayment(signer, testChallenge(), big.NewInt(42793), permit2.DefaultTransferProxyAddress, time.Now())
	require.NoError(t, err)
	second, err := NewPayment(signer, testChallenge(), big.NewInt(42793), permit2.DefaultTransferProxyAddress, time.Now())
	require.NoError(t, err)

	firstTransfer, err := permit2.SignedTransferFromMap(first.Payload)
	require.NoError(t, err)
	secondTransfer, err := permit2.SignedTransferFromMap(second.Payload)
	require.NoError(t, err)
	assert.NotEqual(t, firstTransfer.Authorization.Nonce, secondTransfer.Authorization.Nonce)
}

func TestNewPaymentEmptyChallenge(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	_, err = NewPayment(NewSignerFromKey(key), types.PaymentRequired{X402Version: 2}, big.NewInt(42793), permit2.DefaultTransferProxyAddress, time.Now())
	assert.Error(t, err)
}
