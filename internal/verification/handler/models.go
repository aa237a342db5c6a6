package handler

import (
	"strings"

	"magbot/internal/access"
	"magbot/pkg/domain"
	dErrors "magbot/pkg/domain-errors"
)

type initializeRequest struct {
	Admin domain.Account `json:"admin"`
}

type mintRequest struct {
	Account domain.Account `json:"account"`
	Data    string         `json:"data"`
}

type baseURIRequest struct {
	URI string `json:"uri"`
}

// Validate trims surrounding whitespace. Emptiness is a registry rule and is
// left to the service.
func (r *baseURIRequest) Validate() error {
	r.URI = strings.TrimSpace(r.URI)
	return nil
}

type transferRequest struct {
	From    domain.Account `json:"from"`
	To      domain.Account `json:"to"`
	TokenID uint64         `json:"token_id"`
}

func (r *transferRequest) Validate() error {
	if r.TokenID == 0 {
		return dErrors.New(dErrors.CodeValidation, "token_id is required")
	}
	return nil
}

// roleRequest names the member to grant or revoke. For renounce it is the
// confirmation and must equal the caller.
type roleRequest struct {
	Account domain.Account `json:"account"`
}

type stateResponse struct {
	Instance    domain.Account `json:"instance"`
	NextTokenID uint64         `json:"next_token_id"`
}

type mintResponse struct {
	TokenID uint64         `json:"token_id"`
	Account domain.Account `json:"account"`
}

type baseURIResponse struct {
	BaseURI string `json:"base_uri"`
}

type tokenResponse struct {
	TokenID      uint64         `json:"token_id"`
	Owner        domain.Account `json:"owner"`
	Verification string         `json:"verification"`
	TokenURI     string         `json:"token_uri"`
}

type accountResponse struct {
	Account      domain.Account `json:"account"`
	TokenID      uint64         `json:"token_id"`
	Verification string         `json:"verification,omitempty"`
	Verified     bool           `json:"verified"`
	Balance      uint64         `json:"balance"`
}

type roleResponse struct {
	Role      access.Role    `json:"role"`
	AdminRole access.Role    `json:"admin_role"`
	Account   domain.Account `json:"account"`
	HasRole   bool           `json:"has_role"`
}

type interfaceResponse struct {
	InterfaceID string `json:"interface_id"`
	Supported   bool   `json:"supported"`
}
