// Package resolver answers the collateral registry's one question about the
// linked verification registry: which credential does an account hold.
package resolver

import (
	"context"
	"errors"
	"fmt"

	verificationstore "magbot/internal/verification/store"
	"magbot/pkg/domain"
	"magbot/pkg/platform/sentinel"
)

// Verification reads credential bindings straight from the verification
// store. With the postgres backends it joins the collateral transaction
// carried by ctx.
type Verification struct {
	reader verificationstore.Reader
}

func NewVerification(reader verificationstore.Reader) *Verification {
	return &Verification{reader: reader}
}

// TokenByAccount returns the credential account holds in registry, or 0. A
// registry that was never initialized holds no credentials.
func (v *Verification) TokenByAccount(ctx context.Context, registry, account domain.Account) (domain.TokenID, error) {
	tok, err := v.reader.TokenByAccount(ctx, registry, account)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("resolve credential: %w", err)
	}
	return tok.ID, nil
}
