package gateway

import (
	"fmt"
	"math/big"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/bubbletez/x402-gateway/permit2"
)

// Defaults applied when the corresponding environment variable is unset.
const (
	DefaultListenAddr          = ":8000"
	DefaultNetwork             = "eip155:42793"
	DefaultMaxTimeoutSeconds   = 60
	DefaultDeadlineSkewSeconds = 6
	DefaultMaxHeaderBytes      = 16384
	DefaultMaxSettleRespBytes  = 65536
	DefaultSettleTimeout       = 120 * time.Second
	DefaultCreateBodyBytes     = 8192
)

// Custom-product defaults.
const (
	DefaultCustomProductTTL       = 24 * time.Hour
	DefaultMaxProductsPerCreator  = 5
	DefaultMaxProductsGlobal      = 500
	DefaultCreateMaxPerIPPerHour  = 30
	DefaultCreateSignatureMaxAge  = 300 * time.Second
	DefaultCreateClockSkew        = 60 * time.Second
)

var networkPattern = regexp.MustCompile(`^eip155:(\d+)$`)

// CustomProductConfig controls the creator-facing custom product feature.
type CustomProductConfig struct {
	Enabled          bool
	TTL              time.Duration
	MaxPerCreator    int
	MaxGlobal        int
	CreateMaxPerIP   int
	CreateRateWindow time.Duration
	SignatureMaxAge  time.Duration
	ClockSkew        time.Duration
}

// Config is the fully resolved gateway configuration. Built once at startup
// by LoadConfig and treated as read-only afterwards.
type Config struct {
	ListenAddr     string
	Stage          string
	LogLevel       string
	FacilitatorURL string
	PublicBaseURL  string
	RPCURL         string

	// Payment terms shared by every requirement this gateway offers.
	Network           string
	ChainID           *big.Int
	PayTo             string
	Asset             string
	AssetName         string
	TransferProxy     string
	MaxTimeoutSeconds int
	ExplorerTxBaseURL string

	// Hard input bounds.
	MaxPaymentHeaderBytes  int
	MaxSettleResponseBytes int64
	MaxCreateBodyBytes     int64
	DeadlineSkew           time.Duration
	SettleTimeout          time.Duration

	CustomProducts CustomProductConfig
}

// LoadConfig reads the gateway configuration from the environment and
// validates it. Invalid addresses, malformed network identifiers, and
// out-of-range bounds are hard errors; the process should not come up on a
// config it would reject at request time.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ListenAddr:             envString("LISTEN_ADDR", DefaultListenAddr),
		Stage:                  envString("STAGE", "dev"),
		LogLevel:               envString("LOG_LEVEL", "info"),
		FacilitatorURL:         strings.TrimRight(os.Getenv("FACILITATOR_URL"), "/"),
		PublicBaseURL:          strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),
		RPCURL:                 os.Getenv("RPC_URL"),
		Network:                envString("NETWORK", DefaultNetwork),
		Asset:                  os.Getenv("BBT_TOKEN"),
		AssetName:              envString("ASSET_NAME", "BBT"),
		ExplorerTxBaseURL:      strings.TrimRight(envString("EXPLORER_TX_BASE_URL", "https://explorer.etherlink.com/tx"), "/"),
		MaxTimeoutSeconds:      DefaultMaxTimeoutSeconds,
		MaxPaymentHeaderBytes:  DefaultMaxHeaderBytes,
		MaxSettleResponseBytes: DefaultMaxSettleRespBytes,
		MaxCreateBodyBytes:     DefaultCreateBodyBytes,
		DeadlineSkew:           DefaultDeadlineSkewSeconds * time.Second,
		SettleTimeout:          DefaultSettleTimeout,
	}

	var err error
	if cfg.MaxTimeoutSeconds, err = envInt("MAX_TIMEOUT_SECONDS", cfg.MaxTimeoutSeconds); err != nil {
		return nil, err
	}
	if cfg.MaxPaymentHeaderBytes, err = envInt("MAX_PAYMENT_SIGNATURE_B64_BYTES", cfg.MaxPaymentHeaderBytes); err != nil {
		return nil, err
	}
	maxSettle, err := envInt("MAX_SETTLE_RESPONSE_BYTES", int(cfg.MaxSettleResponseBytes))
	if err != nil {
		return nil, err
	}
	cfg.MaxSettleResponseBytes = int64(maxSettle)
	if cfg.DeadlineSkew, err = envSeconds("DEADLINE_SKEW_SECONDS", cfg.DeadlineSkew); err != nil {
		return nil, err
	}
	if cfg.SettleTimeout, err = envSeconds("SETTLE_TIMEOUT_SECONDS", cfg.SettleTimeout); err != nil {
		return nil, err
	}

	if cfg.FacilitatorURL == "" {
		return nil, fmt.Errorf("FACILITATOR_URL is required")
	}
	if !strings.HasPrefix(cfg.FacilitatorURL, "http://") && !strings.HasPrefix(cfg.FacilitatorURL, "https://") {
		return nil, fmt.Errorf("FACILITATOR_URL must be an http(s) URL, got %q", cfg.FacilitatorURL)
	}

	match := networkPattern.FindStringSubmatch(cfg.Network)
	if match == nil {
		return nil, fmt.Errorf("NETWORK must match eip155:<chainId>, got %q", cfg.Network)
	}
	chainID, ok := new(big.Int).SetString(match[1], 10)
	if !ok || chainID.Sign() <= 0 {
		return nil, fmt.Errorf("invalid chain id in NETWORK %q", cfg.Network)
	}
	cfg.ChainID = chainID

	payTo, err := resolvePayTo()
	if err != nil {
		return nil, err
	}
	cfg.PayTo = payTo

	if cfg.Asset == "" {
		return nil, fmt.Errorf("BBT_TOKEN is required")
	}
	if cfg.Asset, err = permit2.NormalizeAddress(cfg.Asset, "BBT_TOKEN"); err != nil {
		return nil, err
	}

	proxy := envString("X402_EXACT_PERMIT2_PROXY_ADDRESS", permit2.DefaultTransferProxyAddress)
	if cfg.TransferProxy, err = permit2.NormalizeAddress(proxy, "X402_EXACT_PERMIT2_PROXY_ADDRESS"); err != nil {
		return nil, err
	}

	if cfg.MaxTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("MAX_TIMEOUT_SECONDS must be positive")
	}
	if cfg.MaxPaymentHeaderBytes <= 0 || cfg.MaxSettleResponseBytes <= 0 {
		return nil, fmt.Errorf("payload size bounds must be positive")
	}
	if cfg.DeadlineSkew < 0 {
		return nil, fmt.Errorf("DEADLINE_SKEW_SECONDS must not be negative")
	}

	if cfg.CustomProducts, err = loadCustomProductConfig(); err != nil {
		return nil, err
	}
	if cfg.CustomProducts.Enabled && cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC_URL is required when custom products are enabled")
	}

	return cfg, nil
}

// resolvePayTo determines the settlement recipient: an explicit wallet
// address, or the address derived from the store's private key when only
// that is configured.
func resolvePayTo() (string, error) {
	for _, name := range []string{"SERVER_WALLET", "STORE_ADDRESS"} {
		if raw := os.Getenv(name); raw != "" {
			return permit2.NormalizeAddress(raw, name)
		}
	}
	if rawKey := os.Getenv("STORE_PRIVATE_KEY"); rawKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(rawKey, "0x"))
		if err != nil {
			return "", fmt.Errorf("invalid STORE_PRIVATE_KEY: %w", err)
		}
		return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
	}
	return "", fmt.Errorf("one of SERVER_WALLET, STORE_ADDRESS or STORE_PRIVATE_KEY is required")
}

func loadCustomProductConfig() (CustomProductConfig, error) {
	cfg := CustomProductConfig{
		TTL:              DefaultCustomProductTTL,
		MaxPerCreator:    DefaultMaxProductsPerCreator,
		MaxGlobal:        DefaultMaxProductsGlobal,
		CreateMaxPerIP:   DefaultCreateMaxPerIPPerHour,
		CreateRateWindow: time.Hour,
		SignatureMaxAge:  DefaultCreateSignatureMaxAge,
		ClockSkew:        DefaultCreateClockSkew,
	}

	enabled, err := envBool("CUSTOM_PRODUCTS_ENABLED", true)
	if err != nil {
		return cfg, err
	}
	cfg.Enabled = enabled

	if cfg.TTL, err = envSeconds("CUSTOM_PRODUCT_TTL_SECONDS", cfg.TTL); err != nil {
		return cfg, err
	}
	if cfg.MaxPerCreator, err = envInt("CUSTOM_PRODUCT_MAX_PER_CREATOR", cfg.MaxPerCreator); err != nil {
		return cfg, err
	}
	if cfg.MaxGlobal, err = envInt("CUSTOM_PRODUCT_MAX_GLOBAL", cfg.MaxGlobal); err != nil {
		return cfg, err
	}
	if cfg.CreateMaxPerIP, err = envInt("CUSTOM_PRODUCT_CREATE_MAX_PER_IP_PER_HOUR", cfg.CreateMaxPerIP); err != nil {
		return cfg, err
	}
	if cfg.SignatureMaxAge, err = envSeconds("CUSTOM_PRODUCT_SIGNATURE_MAX_AGE_SECONDS", cfg.SignatureMaxAge); err != nil {
		return cfg, err
	}

	if cfg.Enabled {
		if cfg.TTL <= 0 || cfg.MaxPerCreator <= 0 || cfg.MaxGlobal <= 0 || cfg.CreateMaxPerIP <= 0 {
			return cfg, fmt.Errorf("custom product limits must be positive")
		}
		if cfg.SignatureMaxAge <= 0 {
			return cfg, fmt.Errorf("CUSTOM_PRODUCT_SIGNATURE_MAX_AGE_SECONDS must be positive")
		}
	}
	return cfg, nil
}

func envString(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", name, raw)
	}
	return value, nil
}

func envSeconds(name string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer of seconds, got %q", name, raw)
	}
	return time.Duration(value) * time.Second, nil
}

func envBool(name string, fallback bool) (bool, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", name, raw)
	}
	return value, nil
}
