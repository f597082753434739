package permit2

const (
	// Permit2Address is the canonical Uniswap Permit2 contract address.
	// Same address on all EVM chains via CREATE2 deployment.
	Permit2Address = "0x000000000022D473030F116dDEE9F6B43aC78BA3"

	// DefaultTransferProxyAddress is the witness-transfer proxy deployed on
	// Etherlink. It is the only spender accepted by the exact scheme; the
	// proxy enforces on-chain that funds can only move to witness.to.
	DefaultTransferProxyAddress = "0xB6FD384A0626BfeF85f3dBaf5223Dd964684B09E"

	// AssetTransferMethod is the transfer-method hint advertised to clients
	// in the requirement's extra object.
	AssetTransferMethod = "permit2"

	// DomainName is the EIP-712 domain name used by the Permit2 contract.
	// The Permit2 domain carries no version field.
	DomainName = "Permit2"
)

// EIP-712 type definitions for PermitWitnessTransferFrom. The outer type
// string appends its dependent type definitions in alphabetical order
// (TokenPermissions before Witness); this ordering is part of the hashing
// standard and changing it produces an incompatible digest.
const (
	eip712DomainType = "EIP712Domain(string name,uint256 chainId,address verifyingContract)"

	tokenPermissionsType = "TokenPermissions(address token,uint256 amount)"

	witnessType = "Witness(address to,uint256 validAfter,bytes extra)"

	permitWitnessTransferFromType = "PermitWitnessTransferFrom(" +
		"TokenPermissions permitted,address spender,uint256 nonce,uint256 deadline,Witness witness)"
)
