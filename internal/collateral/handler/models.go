package handler

import (
	"strings"

	"magbot/internal/access"
	"magbot/pkg/domain"
	dErrors "magbot/pkg/domain-errors"
)

type initializeRequest struct {
	Admin domain.Account `json:"admin"`
	SBT   domain.Account `json:"sbt"`
}

type mintRequest struct {
	Account domain.Account `json:"account"`
}

type baseURIRequest struct {
	URI string `json:"uri"`
}

func (r *baseURIRequest) Validate() error {
	r.URI = strings.TrimSpace(r.URI)
	return nil
}

type sbtRequest struct {
	SBT domain.Account `json:"sbt"`
}

type transferRequest struct {
	From         domain.Account `json:"from"`
	To           domain.Account `json:"to"`
	CollateralID uint64         `json:"collateral_id"`
}

func (r *transferRequest) Validate() error {
	if r.CollateralID == 0 {
		return dErrors.New(dErrors.CodeValidation, "collateral_id is required")
	}
	return nil
}

// approveRequest sets the single-token approval. The zero account clears it.
type approveRequest struct {
	Approved     domain.Account `json:"approved"`
	CollateralID uint64         `json:"collateral_id"`
}

func (r *approveRequest) Validate() error {
	if r.CollateralID == 0 {
		return dErrors.New(dErrors.CodeValidation, "collateral_id is required")
	}
	return nil
}

type approvalForAllRequest struct {
	Operator domain.Account `json:"operator"`
	Approved bool           `json:"approved"`
}

type roleRequest struct {
	Account domain.Account `json:"account"`
}

type stateResponse struct {
	Instance         domain.Account `json:"instance"`
	SBT              domain.Account `json:"sbt"`
	NextCollateralID uint64         `json:"next_collateral_id"`
}

type mintResponse struct {
	CollateralID uint64         `json:"collateral_id"`
	Account      domain.Account `json:"account"`
}

type baseURIResponse struct {
	BaseURI string `json:"base_uri"`
}

type sbtResponse struct {
	SBT domain.Account `json:"sbt"`
}

type pausedResponse struct {
	Paused bool `json:"paused"`
}

type tokenResponse struct {
	CollateralID uint64         `json:"collateral_id"`
	Owner        domain.Account `json:"owner"`
	SBTTokenID   uint64         `json:"sbt_token_id"`
	Approved     domain.Account `json:"approved"`
	TokenURI     string         `json:"token_uri"`
}

type bySBTResponse struct {
	SBTTokenID   uint64 `json:"sbt_token_id"`
	CollateralID uint64 `json:"collateral_id"`
}

type accountResponse struct {
	Account domain.Account `json:"account"`
	Balance uint64         `json:"balance"`
}

type operatorResponse struct {
	Owner    domain.Account `json:"owner"`
	Operator domain.Account `json:"operator"`
	Approved bool           `json:"approved"`
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
