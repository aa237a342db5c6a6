package models

import (
	"time"

	"magbot/pkg/domain"
)

// State is the persisted per-instance record. Its existence is the
// initialized flag: an instance without a State has never been initialized.
type State struct {
	Instance      domain.Account
	BaseURI       string
	NextTokenID   domain.TokenID
	InitializedAt time.Time
}

// NewState returns the record written by a successful initialize.
func NewState(instance domain.Account, now time.Time) *State {
	return &State{Instance: instance, NextTokenID: 1, InitializedAt: now}
}

// Token is one issued credential. Account and Verification are each unique
// within an instance.
type Token struct {
	ID           domain.TokenID
	Account      domain.Account
	Verification string
	MintedAt     time.Time
}
