package permit2

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// NormalizeAddress returns the EIP-55 checksummed form of a hex address,
// accepting any input casing. Malformed addresses are rejected outright.
func NormalizeAddress(raw, fieldName string) (string, error) {
	if !common.IsHexAddress(raw) {
		return "", fmt.Errorf("invalid %s: %q is not a hex address", fieldName, raw)
	}
	return common.HexToAddress(raw).Hex(), nil
}

// StrictChecksumAddress requires the input to already carry a valid EIP-55
// checksum. Used on control-plane inputs where the caller is expected to
// submit canonical addresses.
func StrictChecksumAddress(raw, fieldName string) (string, error) {
	checksummed, err := NormalizeAddress(raw, fieldName)
	if err != nil {
		return "", err
	}
	if raw != checksummed {
		return "", fmt.Errorf("invalid %s: must be an EIP-55 checksum address", fieldName)
	}
	return checksummed, nil
}
