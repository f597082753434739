package gateway

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/bubbletez/x402-gateway/permit2"
	"github.com/bubbletez/x402-gateway/types"
)

// Product is a paywalled resource: its payment terms and the JSON body
// delivered once payment settles. Built-in products live for the process
// lifetime; custom products carry a creator and an expiry.
type Product struct {
	ID           string
	Name         string
	Path         string
	Description  string
	Requirements types.PaymentRequirements
	Response     map[string]interface{}

	// Custom-product fields, zero for built-ins.
	Creator   string
	TierID    string
	CreatedAt int64
	ExpiresAt int64
}

// Built-in product prices in BBT base units (18 decimals).
var (
	weatherPrice        = "10000000000000000"  // 0.01 BBT
	premiumContentPrice = "50000000000000000"  // 0.05 BBT
)

// newRequirements builds the single exact-scheme requirement this gateway
// offers for a given amount. Terms other than the amount are fixed by
// configuration.
func (c *Config) newRequirements(amount string) types.PaymentRequirements {
	return types.PaymentRequirements{
		Scheme:            types.SchemeExact,
		Network:           c.Network,
		Amount:            amount,
		PayTo:             c.PayTo,
		MaxTimeoutSeconds: c.MaxTimeoutSeconds,
		Asset:             c.Asset,
		Extra: map[string]interface{}{
			"assetTransferMethod": permit2.AssetTransferMethod,
			"name":                c.AssetName,
			"version":             "1",
		},
	}
}

// builtinProducts is the static catalog.
func builtinProducts(cfg *Config) map[string]*Product {
	weather := &Product{
		ID:           "weather",
		Name:         "Weather Report",
		Path:         "/api/weather",
		Description:  "Current weather conditions, paid per request",
		Requirements: cfg.newRequirements(weatherPrice),
		Response: map[string]interface{}{
			"location":   "San Francisco",
			"conditions": "Foggy",
			"tempC":      14,
			"windKph":    19,
		},
	}
	premium := &Product{
		ID:           "premium-content",
		Name:         "Premium Content",
		Path:         "/api/premium-content",
		Description:  "Premium article content, paid per request",
		Requirements: cfg.newRequirements(premiumContentPrice),
		Response: map[string]interface{}{
			"title":   "The Economics of Machine-to-Machine Payments",
			"content": "Autonomous agents negotiating and settling micropayments per request removes the subscription model's coarse granularity...",
			"author":  "BBT Research",
		},
	}
	return map[string]*Product{weather.ID: weather, premium.ID: premium}
}

// Tier is a fixed price point offered for custom products. Amounts are in
// display units of the creator's token and scaled by its decimals.
type Tier struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Amount string `json:"amount"`
}

var customProductTiers = []Tier{
	{ID: "tier_0_01", Label: "0.01", Amount: "0.01"},
	{ID: "tier_0_1", Label: "0.1", Amount: "0.1"},
	{ID: "tier_1_0", Label: "1.0", Amount: "1.0"},
}

func tierByID(id string) (Tier, bool) {
	for _, tier := range customProductTiers {
		if tier.ID == id {
			return tier, true
		}
	}
	return Tier{}, false
}

// tierBaseUnits converts a tier's decimal display amount into an exact
// integer amount of token base units. Tokens with fewer decimals than the
// tier's fractional digits cannot represent the price and are rejected
// rather than rounded.
func tierBaseUnits(tier Tier, decimals uint8) (*big.Int, error) {
	whole, frac, _ := strings.Cut(tier.Amount, ".")
	if int(decimals) < len(frac) {
		return nil, fmt.Errorf("token decimals (%d) cannot represent tier amount %s", decimals, tier.Amount)
	}

	mantissa, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("malformed tier amount %q", tier.Amount)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(int(decimals)-len(frac))), nil)

	amount := new(big.Int).Mul(mantissa, scale)
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("tier amount %s scales to a non-positive value", tier.Amount)
	}
	return amount, nil
}

// catalogEntry renders a product for the public catalog and for the
// create-product response.
func catalogEntry(product *Product, resourceURL string) map[string]interface{} {
	entry := map[string]interface{}{
		"id":          product.ID,
		"name":        product.Name,
		"description": product.Description,
		"url":         resourceURL,
		"price": map[string]interface{}{
			"amount": product.Requirements.Amount,
			"asset":  product.Requirements.Asset,
		},
	}
	if product.Creator != "" {
		entry["creator"] = product.Creator
		entry["tierId"] = product.TierID
		entry["createdAt"] = product.CreatedAt
		entry["expiresAt"] = product.ExpiresAt
	}
	return entry
}
