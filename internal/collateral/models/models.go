package models

import (
	"time"

	"magbot/internal/pause"
	"magbot/pkg/domain"
)

// State is the persisted per-instance record of a collateral registry.
// SBTRegistry points at the verification registry instance that gates mint.
type State struct {
	Instance         domain.Account
	SBTRegistry      domain.Account
	BaseURI          string
	NextCollateralID domain.CollateralID
	Pause            pause.Gate
	InitializedAt    time.Time
}

// NewState returns the record written by a successful initialize.
func NewState(instance, sbtRegistry domain.Account, now time.Time) *State {
	return &State{
		Instance:         instance,
		SBTRegistry:      sbtRegistry,
		NextCollateralID: 1,
		InitializedAt:    now,
	}
}

// Token is one collateral token. SBTTokenID is the credential that
// authorized the mint; it is keyed by value and never revalidated.
type Token struct {
	ID         domain.CollateralID
	Owner      domain.Account
	SBTTokenID domain.TokenID
	// Approved may move this token on the owner's behalf. Cleared on transfer.
	Approved domain.Account
	MintedAt time.Time
}
