package permit2

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// creationMessagePrefix heads the canonical custom-product creation
// message. Changing it invalidates every outstanding creation signature.
const creationMessagePrefix = "BBT x402 Custom Product Creation"

// CreationMessage builds the canonical human-readable message a creator
// signs to mint a custom product. The tuple order is fixed; signer and
// verifier must reconstruct the exact same text.
func CreationMessage(chainID int64, creator, token, tierID, nonce string, issuedAt, expiresAt int64) string {
	return fmt.Sprintf(
		"%s\nchainId:%d\ncreator:%s\ntoken:%s\ntierId:%s\nnonce:%s\nissuedAt:%d\nexpiresAt:%d",
		creationMessagePrefix, chainID, creator, token, tierID, nonce, issuedAt, expiresAt,
	)
}

// RecoverSigner recovers the address that produced an EIP-191
// personal-sign signature over message. The signature is the usual
// 65-byte r||s||v form with v in {0,1,27,28}.
func RecoverSigner(message, signature string) (common.Address, error) {
	sigBytes, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(sigBytes) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length: %d", len(sigBytes))
	}

	// crypto.SigToPub expects the recovery id in the 0/1 range.
	sig := make([]byte, crypto.SignatureLength)
	copy(sig, sigBytes)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pubKey, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("signature recovery failed: %w", err)
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}

// SignMessage produces an EIP-191 personal-sign signature over message
// with v in the 27/28 wallet convention. Counterpart to RecoverSigner,
// used by clients and tests.
func SignMessage(message string, key *ecdsa.PrivateKey) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		return "", fmt.Errorf("failed to sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// SignDigest signs a 32-byte typed-data digest, returning the 65-byte
// signature with v in the 27/28 convention used by Permit2.
func SignDigest(digest [32]byte, key *ecdsa.PrivateKey) (string, error) {
	sig, err := crypto.Sign(digest[:], key)
	if err != nil {
		return "", fmt.Errorf("failed to sign digest: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}
