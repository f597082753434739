package permit2

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// typedDataTypes are the EIP-712 type descriptors for
// PermitWitnessTransferFrom. Field order must match the on-chain Permit2
// contract.
var typedDataTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"PermitWitnessTransferFrom": {
		{Name: "permitted", Type: "TokenPermissions"},
		{Name: "spender", Type: "address"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
		{Name: "witness", Type: "Witness"},
	},
	"TokenPermissions": {
		{Name: "token", Type: "address"},
		{Name: "amount", Type: "uint256"},
	},
	"Witness": {
		{Name: "to", Type: "address"},
		{Name: "validAfter", Type: "uint256"},
		{Name: "extra", Type: "bytes"},
	},
}

// TypedData builds the full EIP-712 typed-data description of an
// authorization, as a wallet or independent verifier would consume it.
func TypedData(chainID *big.Int, authorization Authorization) (apitypes.TypedData, error) {
	extraBytes, err := hexutil.Decode(authorization.Witness.Extra)
	if err != nil {
		return apitypes.TypedData{}, fmt.Errorf("invalid witness extra: %w", err)
	}

	return apitypes.TypedData{
		Types:       typedDataTypes,
		PrimaryType: "PermitWitnessTransferFrom",
		Domain: apitypes.TypedDataDomain{
			Name:              DomainName,
			ChainId:           (*math.HexOrDecimal256)(chainID),
			VerifyingContract: Permit2Address,
		},
		Message: apitypes.TypedDataMessage{
			"permitted": map[string]interface{}{
				"token":  common.HexToAddress(authorization.Permitted.Token).Hex(),
				"amount": authorization.Permitted.Amount,
			},
			"spender":  common.HexToAddress(authorization.Spender).Hex(),
			"nonce":    authorization.Nonce,
			"deadline": authorization.Deadline,
			"witness": map[string]interface{}{
				"to":         common.HexToAddress(authorization.Witness.To).Hex(),
				"validAfter": authorization.Witness.ValidAfter,
				"extra":      extraBytes,
			},
		},
	}, nil
}

// TypedDataDigest computes the signing digest through go-ethereum's
// typed-data implementation. It must agree byte-for-byte with
// AuthorizationDigest; the two paths exist so signer and verifier never
// depend on a single encoding.
func TypedDataDigest(chainID *big.Int, authorization Authorization) ([32]byte, error) {
	typedData, err := TypedData(chainID, authorization)
	if err != nil {
		return [32]byte{}, err
	}

	structHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return [32]byte{}, fmt.Errorf("failed to hash struct: %w", err)
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return [32]byte{}, fmt.Errorf("failed to hash domain: %w", err)
	}

	raw := []byte{0x19, 0x01}
	raw = append(raw, domainSeparator...)
	raw = append(raw, structHash...)

	var digest [32]byte
	copy(digest[:], crypto.Keccak256(raw))
	return digest, nil
}
