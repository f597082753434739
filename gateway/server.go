package gateway

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bubbletez/x402-gateway/permit2"
	"github.com/bubbletez/x402-gateway/types"
)

// Server is the HTTP resource gateway: a static catalog of paywalled
// resources, a creator-facing control plane for custom products, and the
// x402 challenge/settle flow in front of every paid route.
type Server struct {
	cfg         *Config
	log         *zap.Logger
	facilitator *FacilitatorClient
	tokens      TokenMetadataReader
	products    map[string]*Product
	custom      *CustomStore
	engine      *gin.Engine
	clock       func() time.Time
}

func NewServer(cfg *Config, log *zap.Logger, facilitator *FacilitatorClient, tokens TokenMetadataReader) *Server {
	s := &Server{
		cfg:         cfg,
		log:         log,
		facilitator: facilitator,
		tokens:      tokens,
		products:    builtinProducts(cfg),
		custom:      NewCustomStore(cfg.CustomProducts, time.Now),
		clock:       time.Now,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/", s.handleRoot)
	engine.GET("/config", s.handleConfig)
	engine.GET("/api/catalog", s.handleCatalog)
	engine.POST("/api/catalog/custom-token", s.handleCreateCustomProduct)
	engine.GET("/api/weather", s.paidHandler("weather"))
	engine.GET("/api/premium-content", s.paidHandler("premium-content"))
	engine.GET("/api/custom/:productId", s.handleCustomProduct)

	s.engine = engine
	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until the listener fails.
func (s *Server) Run() error { return s.engine.Run(s.cfg.ListenAddr) }

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":     "x402-gateway",
		"x402Version": types.X402Version,
		"network":     s.cfg.Network,
		"endpoints":   []string{"/config", "/api/catalog", "/api/weather", "/api/premium-content"},
	})
}

// handleConfig exposes the public payment terms. Secrets and internal
// bounds stay out of here.
func (s *Server) handleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"x402Version":       types.X402Version,
		"network":           s.cfg.Network,
		"chainId":           s.cfg.ChainID.String(),
		"payTo":             s.cfg.PayTo,
		"asset":             s.cfg.Asset,
		"assetName":         s.cfg.AssetName,
		"transferProxy":     s.cfg.TransferProxy,
		"permit2":           permit2.Permit2Address,
		"maxTimeoutSeconds": s.cfg.MaxTimeoutSeconds,
		"products": gin.H{
			"weather":         weatherPrice,
			"premium-content": premiumContentPrice,
		},
		"customProducts": gin.H{
			"enabled":       s.cfg.CustomProducts.Enabled,
			"tiers":         customProductTiers,
			"ttlSeconds":    int64(s.cfg.CustomProducts.TTL / time.Second),
			"maxPerCreator": s.cfg.CustomProducts.MaxPerCreator,
			"maxGlobal":     s.cfg.CustomProducts.MaxGlobal,
			"activeCount":   s.custom.Count(),
		},
	})
}

func (s *Server) handleCatalog(c *gin.Context) {
	entries := make([]map[string]interface{}, 0, len(s.products))
	for _, id := range []string{"weather", "premium-content"} {
		product := s.products[id]
		entries = append(entries, catalogEntry(product, s.resourceURL(c, product.Path)))
	}

	// Custom products are listed per creator only, never in the open catalog.
	if rawCreator := c.Query("creator"); rawCreator != "" && s.cfg.CustomProducts.Enabled {
		creator, err := permit2.StrictChecksumAddress(rawCreator, "creator")
		if err != nil {
			s.renderError(c, badRequest(ErrCodeInvalidRequest, err.Error()))
			return
		}
		for _, product := range s.custom.ListByCreator(creator) {
			entries = append(entries, catalogEntry(product, s.resourceURL(c, product.Path)))
		}
	}
	c.JSON(http.StatusOK, gin.H{"products": entries})
}

func (s *Server) paidHandler(productID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.servePaidProduct(c, s.products[productID])
	}
}

func (s *Server) handleCustomProduct(c *gin.Context) {
	if !s.cfg.CustomProducts.Enabled {
		s.renderError(c, &PaymentError{Status: http.StatusNotFound, Code: ErrCodeNotFound, Message: "custom products are disabled"})
		return
	}
	product := s.custom.Get(c.Param("productId"))
	if product == nil {
		s.renderError(c, &PaymentError{Status: http.StatusNotFound, Code: ErrCodeNotFound, Message: "unknown or expired product"})
		return
	}
	s.servePaidProduct(c, product)
}

// servePaidProduct runs the x402 flow for one product: challenge when no
// payment is attached, validate then settle when it is. A rejected payment
// gets a bare error body, not a fresh challenge; the client restarts the
// flow from an unchallenged request.
func (s *Server) servePaidProduct(c *gin.Context, product *Product) {
	header := c.GetHeader(types.PaymentSignatureHeader)
	if header == "" {
		s.renderChallenge(c, product)
		return
	}

	terms, perr := validatePayment(s.cfg, product.Requirements, header, c.GetHeader(types.GasPayerHeader), s.clock())
	if perr != nil {
		s.log.Info("payment rejected",
			zap.String("product", product.ID),
			zap.String("code", perr.Code),
			zap.Int("status", perr.Status),
			zap.Int("header_bytes", len(header)))
		s.renderError(c, perr)
		return
	}

	outcome, perr := s.facilitator.Settle(c.Request.Context(), terms.Payload, terms.Requirements())
	if perr != nil {
		s.log.Warn("settlement failed",
			zap.String("product", product.ID),
			zap.String("code", perr.Code),
			zap.Int("status", perr.Status))
		s.renderError(c, perr)
		return
	}

	receipt := types.SettleResult{
		Success:       true,
		TransactionID: outcome.TransactionID,
		GasPayer:      terms.GasPayer,
		Network:       s.cfg.Network,
		ResourceID:    product.ID,
	}
	if outcome.TransactionID != "" {
		receipt.ExplorerURL = s.cfg.ExplorerTxBaseURL + "/" + outcome.TransactionID
	}
	if encoded, err := types.EncodeSettleResult(receipt); err == nil {
		c.Header(types.PaymentResponseHeader, encoded)
	}

	s.log.Info("payment settled",
		zap.String("product", product.ID),
		zap.String("transaction_id", outcome.TransactionID),
		zap.String("payer", terms.Transfer.Authorization.From))

	body := gin.H{}
	for key, value := range product.Response {
		body[key] = value
	}
	body["resourceId"] = product.ID
	body["paymentSettled"] = true
	if outcome.TransactionID != "" {
		body["transactionId"] = outcome.TransactionID
		body["explorerUrl"] = receipt.ExplorerURL
	}
	c.JSON(http.StatusOK, body)
}

// Requirements rebuilds the offered requirement the terms were validated
// against, for forwarding to the facilitator.
func (t *settlementTerms) Requirements() types.PaymentRequirements {
	return t.requirements
}

// renderChallenge answers an unchallenged request with 402 and the
// Payment-Required header describing how to pay for the product.
func (s *Server) renderChallenge(c *gin.Context, product *Product) {
	challenge := types.PaymentRequired{
		X402Version: types.X402Version,
		Accepts:     []types.PaymentRequirements{product.Requirements},
		Resource: &types.ResourceInfo{
			URL:         s.resourceURL(c, product.Path),
			Description: product.Description,
			MimeType:    "application/json",
		},
	}
	encoded, err := types.EncodePaymentRequired(challenge)
	if err != nil {
		s.renderError(c, &PaymentError{Status: http.StatusInternalServerError, Code: ErrCodeInternal, Message: "failed to encode challenge"})
		return
	}
	c.Header(types.PaymentRequiredHeader, encoded)
	c.JSON(http.StatusPaymentRequired, gin.H{
		"error":   "Payment Required",
		"message": "Payment required: attach a Payment-Signature header",
	})
}

func (s *Server) renderError(c *gin.Context, perr *PaymentError) {
	body := gin.H{"error": perr.Message, "code": perr.Code}
	if len(perr.Details) > 0 {
		body["details"] = perr.Details
	}
	c.JSON(perr.Status, body)
}

// resourceURL builds the absolute URL of a product path, preferring the
// configured public base URL over reverse-proxy forwarding headers.
func (s *Server) resourceURL(c *gin.Context, path string) string {
	if s.cfg.PublicBaseURL != "" {
		return s.cfg.PublicBaseURL + path
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if forwarded := c.GetHeader("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	host := c.Request.Host
	if forwarded := c.GetHeader("X-Forwarded-Host"); forwarded != "" {
		host = forwarded
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, path)
}

// handleCreateCustomProduct registers a creator-defined product. Every
// check runs in a fixed order; the rate limit counts the attempt before
// anything else so failed requests still burn budget.
func (s *Server) handleCreateCustomProduct(c *gin.Context) {
	if !s.cfg.CustomProducts.Enabled {
		s.renderError(c, &PaymentError{Status: http.StatusNotFound, Code: ErrCodeFeatureDisabled, Message: "custom products are disabled"})
		return
	}
	if perr := s.custom.RecordCreateAttempt(c.ClientIP()); perr != nil {
		s.renderError(c, perr)
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, s.cfg.MaxCreateBodyBytes))
	if err != nil {
		s.renderError(c, badRequest(ErrCodeInvalidRequest, "failed to read request body"))
		return
	}
	req, perr := parseCreateRequest(body)
	if perr != nil {
		s.renderError(c, perr)
		return
	}

	tier, ok := tierByID(req.TierID)
	if !ok {
		s.renderError(c, badRequest(ErrCodeInvalidRequest, fmt.Sprintf("unknown tierId %q", req.TierID)))
		return
	}

	nonce := strings.TrimSpace(req.Nonce)
	if nonce == "" {
		s.renderError(c, badRequest(ErrCodeInvalidRequest, "nonce must not be blank"))
		return
	}

	if req.ChainID != s.cfg.ChainID.Int64() {
		s.renderError(c, badRequest(ErrCodeInvalidRequest,
			fmt.Sprintf("chainId %d does not match the gateway chain %s", req.ChainID, s.cfg.ChainID)))
		return
	}

	now := s.clock().Unix()
	skew := int64(s.cfg.CustomProducts.ClockSkew / time.Second)
	maxAge := int64(s.cfg.CustomProducts.SignatureMaxAge / time.Second)
	if req.IssuedAt <= 0 || req.ExpiresAt <= 0 || req.ExpiresAt <= req.IssuedAt {
		s.renderError(c, badRequest(ErrCodeInvalidRequest, "issuedAt and expiresAt must form a positive window"))
		return
	}
	if req.ExpiresAt-req.IssuedAt > maxAge {
		s.renderError(c, badRequest(ErrCodeInvalidRequest,
			fmt.Sprintf("signature validity window exceeds %d seconds", maxAge)))
		return
	}
	if req.IssuedAt > now+skew {
		s.renderError(c, badRequest(ErrCodeInvalidRequest, "issuedAt is in the future"))
		return
	}
	if req.ExpiresAt < now {
		s.renderError(c, badRequest(ErrCodeInvalidRequest, "creation signature has expired"))
		return
	}

	creator, err := permit2.StrictChecksumAddress(req.Creator, "creator")
	if err != nil {
		s.renderError(c, badRequest(ErrCodeInvalidRequest, err.Error()))
		return
	}
	token, err := permit2.StrictChecksumAddress(req.Token, "token")
	if err != nil {
		s.renderError(c, badRequest(ErrCodeInvalidRequest, err.Error()))
		return
	}

	message := permit2.CreationMessage(req.ChainID, creator, token, tier.ID, nonce, req.IssuedAt, req.ExpiresAt)
	recovered, err := permit2.RecoverSigner(message, req.Signature)
	if err != nil {
		s.renderError(c, badRequest(ErrCodeInvalidRequest, err.Error()))
		return
	}
	if !types.SameAddress(recovered.Hex(), creator) {
		s.renderError(c, &PaymentError{Status: http.StatusUnauthorized, Code: ErrCodeUnauthenticated,
			Message: "signature was not produced by the creator address"})
		return
	}

	if perr := s.custom.Precheck(creator, nonce); perr != nil {
		s.renderError(c, perr)
		return
	}

	meta, err := s.tokens.TokenMetadata(c.Request.Context(), common.HexToAddress(token))
	if err != nil {
		if errors.Is(err, ErrRPCUnavailable) {
			s.log.Warn("token metadata lookup failed", zap.String("token", token), zap.Error(err))
			s.renderError(c, badGateway(ErrCodeTokenRPCFailure, "could not verify token contract, try again later"))
			return
		}
		s.renderError(c, badRequest(ErrCodeInvalidToken, err.Error()))
		return
	}

	amount, err := tierBaseUnits(tier, meta.Decimals)
	if err != nil {
		s.renderError(c, badRequest(ErrCodeInvalidToken, err.Error()))
		return
	}

	productID := "custom_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	createdAt := now
	expiresAt := now + int64(s.cfg.CustomProducts.TTL/time.Second)

	requirements := s.cfg.newRequirements(amount.String())
	requirements.Asset = token
	requirements.Extra["name"] = meta.Symbol
	requirements.Extra["decimals"] = meta.Decimals

	product := &Product{
		ID:           productID,
		Name:         fmt.Sprintf("%s access (%s %s)", meta.Symbol, tier.Label, meta.Symbol),
		Path:         "/api/custom/" + productID,
		Description:  fmt.Sprintf("Creator-defined resource priced at %s %s per request", tier.Label, meta.Symbol),
		Requirements: requirements,
		Response: map[string]interface{}{
			"message": "Access granted",
			"token":   token,
			"symbol":  meta.Symbol,
		},
		Creator:   creator,
		TierID:    tier.ID,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}

	if perr := s.custom.Commit(product, nonce, req.ExpiresAt); perr != nil {
		s.renderError(c, perr)
		return
	}

	s.log.Info("custom product created",
		zap.String("product", productID),
		zap.String("creator", creator),
		zap.String("token", token),
		zap.String("tier", tier.ID))

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"product": catalogEntry(product, s.resourceURL(c, product.Path)),
	})
}
