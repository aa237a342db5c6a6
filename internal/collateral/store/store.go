// Package store declares the persistence contract of the collateral
// registry.
package store

import (
	"context"

	"magbot/internal/access"
	"magbot/internal/collateral/models"
	"magbot/pkg/domain"
)

// Reader serves committed state. Lookups that miss return
// sentinel.ErrNotFound.
type Reader interface {
	access.Store
	State(ctx context.Context, instance domain.Account) (*models.State, error)
	Token(ctx context.Context, instance domain.Account, id domain.CollateralID) (*models.Token, error)
	TokenBySBT(ctx context.Context, instance domain.Account, sbt domain.TokenID) (*models.Token, error)
	BalanceOf(ctx context.Context, instance, owner domain.Account) (uint64, error)
	IsApprovedForAll(ctx context.Context, instance, owner, operator domain.Account) (bool, error)
}

// Tx is the view of one instance inside a registry transaction.
type Tx interface {
	Reader
	access.Writer
	// CreateState fails with sentinel.ErrConflict if the instance already
	// has a state record.
	CreateState(ctx context.Context, state *models.State) error
	SaveState(ctx context.Context, state *models.State) error
	// InsertToken fails with sentinel.ErrConflict if the id or the linked
	// credential is already bound.
	InsertToken(ctx context.Context, instance domain.Account, token *models.Token) error
	// SaveToken persists owner and approval changes of an existing token.
	SaveToken(ctx context.Context, instance domain.Account, token *models.Token) error
	SetApprovalForAll(ctx context.Context, instance, owner, operator domain.Account, approved bool) error
}

// Store is a collateral registry backend.
type Store interface {
	Reader
	RunInTx(ctx context.Context, instance domain.Account, fn func(ctx context.Context, tx Tx) error) error
}
