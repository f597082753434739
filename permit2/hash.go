package permit2

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	eip712DomainTypeHash     = crypto.Keccak256([]byte(eip712DomainType))
	tokenPermissionsTypeHash = crypto.Keccak256([]byte(tokenPermissionsType))
	witnessTypeHash          = crypto.Keccak256([]byte(witnessType))

	// Primary type followed by its dependent definitions, TokenPermissions
	// before Witness (alphabetical).
	permitWitnessTypeHash = crypto.Keccak256([]byte(
		permitWitnessTransferFromType + tokenPermissionsType + witnessType,
	))
)

// DomainSeparator computes the Permit2 EIP-712 domain separator for a
// chain. The verifying contract is the canonical Permit2 deployment;
// the domain has a name and chain id but no version.
func DomainSeparator(chainID *big.Int) [32]byte {
	return DomainSeparatorFor(chainID, common.HexToAddress(Permit2Address))
}

// DomainSeparatorFor computes the domain separator against an explicit
// verifying contract. Retrieved once per deployment and treated as a
// constant thereafter.
func DomainSeparatorFor(chainID *big.Int, verifyingContract common.Address) [32]byte {
	encoded := encodeWords(
		eip712DomainTypeHash,
		crypto.Keccak256([]byte(DomainName)),
		uint256Word(chainID),
		addressWord(verifyingContract),
	)
	var separator [32]byte
	copy(separator[:], crypto.Keccak256(encoded))
	return separator
}

// StructHash computes the hash of the PermitWitnessTransferFrom struct:
// the outer type hash folded over the TokenPermissions hash, spender,
// nonce, deadline, and the Witness hash. The witness extra bytes are
// hashed before being folded in, so arbitrary-length extras never affect
// the fixed-size outer encoding.
func StructHash(msg TransferMessage) [32]byte {
	permittedHash := crypto.Keccak256(encodeWords(
		tokenPermissionsTypeHash,
		addressWord(msg.Token),
		uint256Word(msg.Amount),
	))

	witnessHash := crypto.Keccak256(encodeWords(
		witnessTypeHash,
		addressWord(msg.To),
		uint256Word(msg.ValidAfter),
		crypto.Keccak256(msg.Extra),
	))

	var structHash [32]byte
	copy(structHash[:], crypto.Keccak256(encodeWords(
		permitWitnessTypeHash,
		permittedHash,
		addressWord(msg.Spender),
		uint256Word(msg.Nonce),
		uint256Word(msg.Deadline),
		witnessHash,
	)))
	return structHash
}

// Digest computes the final 32-byte signing digest:
// keccak256("\x19\x01" || domainSeparator || structHash).
func Digest(domainSeparator [32]byte, msg TransferMessage) [32]byte {
	structHash := StructHash(msg)

	raw := make([]byte, 0, 2+32+32)
	raw = append(raw, 0x19, 0x01)
	raw = append(raw, domainSeparator[:]...)
	raw = append(raw, structHash[:]...)

	var digest [32]byte
	copy(digest[:], crypto.Keccak256(raw))
	return digest
}

// AuthorizationDigest parses an authorization and computes its signing
// digest for the given chain.
func AuthorizationDigest(chainID *big.Int, authorization Authorization) ([32]byte, error) {
	msg, err := authorization.Message()
	if err != nil {
		return [32]byte{}, err
	}
	return Digest(DomainSeparator(chainID), msg), nil
}

// encodeWords concatenates 32-byte words the way abi.encode does for a
// sequence of static values.
func encodeWords(words ...[]byte) []byte {
	encoded := make([]byte, 0, len(words)*32)
	for _, word := range words {
		encoded = append(encoded, word...)
	}
	return encoded
}

func addressWord(address common.Address) []byte {
	return common.LeftPadBytes(address.Bytes(), 32)
}

func uint256Word(value *big.Int) []byte {
	return common.LeftPadBytes(value.Bytes(), 32)
}
