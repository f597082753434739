package gateway

import (
	"encoding/json"

	"github.com/xeipuuv/gojsonschema"
)

// CreateCustomProductRequest is the body of POST /api/catalog/custom-token.
// The signature covers every field except itself; see permit2.CreationMessage
// for the exact signed text.
type CreateCustomProductRequest struct {
	Creator   string `json:"creator"`
	Token     string `json:"token"`
	TierID    string `json:"tierId"`
	Nonce     string `json:"nonce"`
	ChainID   int64  `json:"chainId"`
	IssuedAt  int64  `json:"issuedAt"`
	ExpiresAt int64  `json:"expiresAt"`
	Signature string `json:"signature"`
}

const createRequestSchema = `{
	"type": "object",
	"required": ["creator", "token", "tierId", "nonce", "chainId", "issuedAt", "expiresAt", "signature"],
	"properties": {
		"creator":   {"type": "string", "minLength": 1},
		"token":     {"type": "string", "minLength": 1},
		"tierId":    {"type": "string", "minLength": 1},
		"nonce":     {"type": "string", "minLength": 1, "maxLength": 256},
		"chainId":   {"type": "integer"},
		"issuedAt":  {"type": "integer"},
		"expiresAt": {"type": "integer"},
		"signature": {"type": "string", "pattern": "^0x[0-9a-fA-F]+$"}
	}
}`

var createRequestSchemaLoader = gojsonschema.NewStringLoader(createRequestSchema)

// parseCreateRequest validates the raw body against the schema and decodes
// it. Schema violations report the first offending field.
func parseCreateRequest(body []byte) (*CreateCustomProductRequest, *PaymentError) {
	result, err := gojsonschema.Validate(createRequestSchemaLoader, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, badRequest(ErrCodeInvalidRequest, "request body is not valid JSON")
	}
	if !result.Valid() {
		message := "invalid request body"
		if errs := result.Errors(); len(errs) > 0 {
			message = errs[0].String()
		}
		return nil, badRequest(ErrCodeInvalidRequest, message)
	}

	var req CreateCustomProductRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, badRequest(ErrCodeInvalidRequest, "request body does not decode")
	}
	return &req, nil
}
