package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrRPCUnavailable marks a transport-level failure talking to the chain
// RPC, as opposed to a token that is simply not a valid ERC-20.
var ErrRPCUnavailable = errors.New("chain rpc unavailable")

const erc20MetadataABI = `[
	{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"name":"symbol","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]}
]`

// TokenMetadata is what the gateway needs to know about a creator's token:
// enough to price tiers in base units and label the catalog entry.
type TokenMetadata struct {
	Decimals uint8
	Symbol   string
}

// TokenMetadataReader reads ERC-20 metadata for custom-product tokens.
// Implementations must distinguish transport failures (wrapped
// ErrRPCUnavailable) from tokens that are not valid ERC-20 contracts.
type TokenMetadataReader interface {
	TokenMetadata(ctx context.Context, token common.Address) (TokenMetadata, error)
}

type rpcTokenReader struct {
	client *ethclient.Client
	abi    abi.ABI
}

// NewTokenMetadataReader dials the chain RPC used to vet custom-product
// tokens.
func NewTokenMetadataReader(rpcURL string) (TokenMetadataReader, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc %s: %w", rpcURL, err)
	}
	parsed, err := abi.JSON(strings.NewReader(erc20MetadataABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse erc20 abi: %w", err)
	}
	return &rpcTokenReader{client: client, abi: parsed}, nil
}

func (r *rpcTokenReader) TokenMetadata(ctx context.Context, token common.Address) (TokenMetadata, error) {
	code, err := r.client.CodeAt(ctx, token, nil)
	if err != nil {
		return TokenMetadata{}, fmt.Errorf("%w: eth_getCode failed: %v", ErrRPCUnavailable, err)
	}
	if len(code) == 0 {
		return TokenMetadata{}, fmt.Errorf("no contract code at %s", token.Hex())
	}

	decimals, err := r.readDecimals(ctx, token)
	if err != nil {
		return TokenMetadata{}, err
	}
	return TokenMetadata{Decimals: decimals, Symbol: r.readSymbol(ctx, token)}, nil
}

func (r *rpcTokenReader) readDecimals(ctx context.Context, token common.Address) (uint8, error) {
	ret, err := r.call(ctx, token, "decimals")
	if err != nil || len(ret) == 0 {
		return 0, fmt.Errorf("token %s does not expose decimals()", token.Hex())
	}
	values, err := r.abi.Unpack("decimals", ret)
	if err != nil || len(values) != 1 {
		return 0, fmt.Errorf("token %s returned malformed decimals()", token.Hex())
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("token %s returned malformed decimals()", token.Hex())
	}
	return decimals, nil
}

// readSymbol is best-effort: tokens returning bytes32 symbols or nothing at
// all still get a usable label.
func (r *rpcTokenReader) readSymbol(ctx context.Context, token common.Address) string {
	ret, err := r.call(ctx, token, "symbol")
	if err != nil || len(ret) == 0 {
		return "ERC20"
	}
	if values, err := r.abi.Unpack("symbol", ret); err == nil && len(values) == 1 {
		if symbol, ok := values[0].(string); ok {
			return sanitizeSymbol(symbol)
		}
	}
	if len(ret) == 32 {
		return sanitizeSymbol(string(bytes.TrimRight(ret, "\x00")))
	}
	return "ERC20"
}

func (r *rpcTokenReader) call(ctx context.Context, token common.Address, method string) ([]byte, error) {
	data, err := r.abi.Pack(method)
	if err != nil {
		return nil, err
	}
	return r.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
}

// sanitizeSymbol keeps symbols printable and bounded before they reach the
// catalog.
func sanitizeSymbol(symbol string) string {
	var b strings.Builder
	for _, r := range symbol {
		if r >= 0x20 && r < 0x7f {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return "ERC20"
	}
	if len(cleaned) > 32 {
		cleaned = cleaned[:32]
	}
	return cleaned
}
