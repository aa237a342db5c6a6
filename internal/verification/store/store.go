// Package store declares the persistence contract of the verification
// registry. Implementations live in the memory and postgres subpackages.
package store

import (
	"context"

	"magbot/internal/access"
	"magbot/internal/verification/models"
	"magbot/pkg/domain"
)

// Reader serves committed state. Lookups that miss return
// sentinel.ErrNotFound.
type Reader interface {
	access.Store
	State(ctx context.Context, instance domain.Account) (*models.State, error)
	Token(ctx context.Context, instance domain.Account, id domain.TokenID) (*models.Token, error)
	TokenByAccount(ctx context.Context, instance, account domain.Account) (*models.Token, error)
	TokenByVerification(ctx context.Context, instance domain.Account, datum string) (*models.Token, error)
	BalanceOf(ctx context.Context, instance, account domain.Account) (uint64, error)
}

// Tx is the view of one instance inside a registry transaction. Reads see
// the transaction's own writes.
type Tx interface {
	Reader
	access.Writer
	// CreateState fails with sentinel.ErrConflict if the instance already
	// has a state record.
	CreateState(ctx context.Context, state *models.State) error
	SaveState(ctx context.Context, state *models.State) error
	// InsertToken fails with sentinel.ErrConflict if the id, account or
	// verification is already bound.
	InsertToken(ctx context.Context, instance domain.Account, token *models.Token) error
}

// Store is a verification registry backend.
type Store interface {
	Reader
	// RunInTx runs fn with exclusive write access to instance. Writes
	// become visible only if fn returns nil.
	RunInTx(ctx context.Context, instance domain.Account, fn func(ctx context.Context, tx Tx) error) error
}
