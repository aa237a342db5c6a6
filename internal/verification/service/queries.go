package service

import (
	"context"
	"errors"

	"magbot/internal/registry"
	"magbot/internal/verification/models"
	"magbot/pkg/domain"
	"magbot/pkg/platform/sentinel"
)

// State returns the committed instance record.
func (s *Service) State(ctx context.Context, instance domain.Account) (*models.State, error) {
	state, err := registry.RequireInitialized(s.store.State(ctx, instance))
	if err != nil {
		return nil, registry.Internal(err, "failed to load registry state")
	}
	return state, nil
}

func (s *Service) NextTokenID(ctx context.Context, instance domain.Account) (domain.TokenID, error) {
	state, err := s.State(ctx, instance)
	if err != nil {
		return 0, err
	}
	return state.NextTokenID, nil
}

func (s *Service) BaseURI(ctx context.Context, instance domain.Account) (string, error) {
	state, err := s.State(ctx, instance)
	if err != nil {
		return "", err
	}
	return state.BaseURI, nil
}

// TokenURI renders the base URI followed by the decimal id. The token must
// exist.
func (s *Service) TokenURI(ctx context.Context, instance domain.Account, id domain.TokenID) (string, error) {
	state, err := s.State(ctx, instance)
	if err != nil {
		return "", err
	}
	if _, err := s.token(ctx, instance, id); err != nil {
		return "", err
	}
	return registry.TokenURI(state.BaseURI, uint64(id)), nil
}

// TokenByAccount returns the credential held by account, or 0.
func (s *Service) TokenByAccount(ctx context.Context, instance, account domain.Account) (domain.TokenID, error) {
	tok, err := s.lookup(ctx, instance, func() (*models.Token, error) {
		return s.store.TokenByAccount(ctx, instance, account)
	})
	if err != nil || tok == nil {
		return 0, err
	}
	return tok.ID, nil
}

// TokenByVerification returns the credential bound to datum, or 0.
func (s *Service) TokenByVerification(ctx context.Context, instance domain.Account, datum string) (domain.TokenID, error) {
	tok, err := s.lookup(ctx, instance, func() (*models.Token, error) {
		return s.store.TokenByVerification(ctx, instance, datum)
	})
	if err != nil || tok == nil {
		return 0, err
	}
	return tok.ID, nil
}

// VerificationByToken returns the datum bound to id, or "".
func (s *Service) VerificationByToken(ctx context.Context, instance domain.Account, id domain.TokenID) (string, error) {
	tok, err := s.lookup(ctx, instance, func() (*models.Token, error) {
		return s.store.Token(ctx, instance, id)
	})
	if err != nil || tok == nil {
		return "", err
	}
	return tok.Verification, nil
}

// VerificationByAccount fails with UnknownAccountError when account holds no
// credential.
func (s *Service) VerificationByAccount(ctx context.Context, instance, account domain.Account) (string, error) {
	tok, err := s.lookup(ctx, instance, func() (*models.Token, error) {
		return s.store.TokenByAccount(ctx, instance, account)
	})
	if err != nil {
		return "", err
	}
	if tok == nil {
		return "", &models.UnknownAccountError{Account: account}
	}
	return tok.Verification, nil
}

// AccountByVerification fails with ErrUnknownVerification when no credential
// carries datum.
func (s *Service) AccountByVerification(ctx context.Context, instance domain.Account, datum string) (domain.Account, error) {
	tok, err := s.lookup(ctx, instance, func() (*models.Token, error) {
		return s.store.TokenByVerification(ctx, instance, datum)
	})
	if err != nil {
		return domain.ZeroAccount, err
	}
	if tok == nil {
		return domain.ZeroAccount, models.ErrUnknownVerification
	}
	return tok.Account, nil
}

// Verified reports whether account holds a credential.
func (s *Service) Verified(ctx context.Context, instance, account domain.Account) (bool, error) {
	id, err := s.TokenByAccount(ctx, instance, account)
	if err != nil {
		return false, err
	}
	return !id.IsNil(), nil
}

func (s *Service) OwnerOf(ctx context.Context, instance domain.Account, id domain.TokenID) (domain.Account, error) {
	if _, err := s.State(ctx, instance); err != nil {
		return domain.ZeroAccount, err
	}
	tok, err := s.token(ctx, instance, id)
	if err != nil {
		return domain.ZeroAccount, err
	}
	return tok.Account, nil
}

func (s *Service) BalanceOf(ctx context.Context, instance, account domain.Account) (uint64, error) {
	if account.IsZero() {
		return 0, registry.ErrZeroAddress
	}
	if _, err := s.State(ctx, instance); err != nil {
		return 0, err
	}
	n, err := s.store.BalanceOf(ctx, instance, account)
	if err != nil {
		return 0, registry.Internal(err, "failed to count credentials")
	}
	return n, nil
}

func (s *Service) Metadata() registry.Metadata {
	return registry.VerificationMetadata
}

func (s *Service) SupportsInterface(id registry.InterfaceID) bool {
	return registry.SupportsInterface(id)
}

// lookup runs a keyed read on an initialized instance and turns a miss into
// a nil token.
func (s *Service) lookup(ctx context.Context, instance domain.Account, read func() (*models.Token, error)) (*models.Token, error) {
	if _, err := s.State(ctx, instance); err != nil {
		return nil, err
	}
	tok, err := read()
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, registry.Internal(err, "failed to load credential")
	}
	return tok, nil
}

// token loads id with ERC721 read semantics: a miss is NonexistentTokenError.
func (s *Service) token(ctx context.Context, instance domain.Account, id domain.TokenID) (*models.Token, error) {
	tok, err := s.store.Token(ctx, instance, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, &registry.NonexistentTokenError{TokenID: uint64(id)}
		}
		return nil, registry.Internal(err, "failed to load credential")
	}
	return tok, nil
}
