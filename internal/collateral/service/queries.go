package service

import (
	"context"
	"errors"

	"magbot/internal/collateral/models"
	"magbot/internal/registry"
	"magbot/pkg/domain"
	"magbot/pkg/platform/sentinel"
)

func (s *Service) State(ctx context.Context, instance domain.Account) (*models.State, error) {
	state, err := registry.RequireInitialized(s.store.State(ctx, instance))
	if err != nil {
		return nil, registry.Internal(err, "failed to load registry state")
	}
	return state, nil
}

func (s *Service) NextCollateralID(ctx context.Context, instance domain.Account) (domain.CollateralID, error) {
	state, err := s.State(ctx, instance)
	if err != nil {
		return 0, err
	}
	return state.NextCollateralID, nil
}

// SBT returns the linked verification registry.
func (s *Service) SBT(ctx context.Context, instance domain.Account) (domain.Account, error) {
	state, err := s.State(ctx, instance)
	if err != nil {
		return domain.ZeroAccount, err
	}
	return state.SBTRegistry, nil
}

func (s *Service) Paused(ctx context.Context, instance domain.Account) (bool, error) {
	state, err := s.State(ctx, instance)
	if err != nil {
		return false, err
	}
	return state.Pause.Paused, nil
}

func (s *Service) BaseURI(ctx context.Context, instance domain.Account) (string, error) {
	state, err := s.State(ctx, instance)
	if err != nil {
		return "", err
	}
	return state.BaseURI, nil
}

func (s *Service) TokenURI(ctx context.Context, instance domain.Account, id domain.CollateralID) (string, error) {
	state, err := s.State(ctx, instance)
	if err != nil {
		return "", err
	}
	if _, err := s.token(ctx, instance, id); err != nil {
		return "", err
	}
	return registry.TokenURI(state.BaseURI, uint64(id)), nil
}

// CollateralBySBT returns the collateral token backed by credential sbt, or 0.
func (s *Service) CollateralBySBT(ctx context.Context, instance domain.Account, sbt domain.TokenID) (domain.CollateralID, error) {
	if _, err := s.State(ctx, instance); err != nil {
		return 0, err
	}
	tok, err := s.store.TokenBySBT(ctx, instance, sbt)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return 0, nil
		}
		return 0, registry.Internal(err, "failed to load collateral")
	}
	return tok.ID, nil
}

// SBTByCollateral returns the credential backing id, or 0.
func (s *Service) SBTByCollateral(ctx context.Context, instance domain.Account, id domain.CollateralID) (domain.TokenID, error) {
	if _, err := s.State(ctx, instance); err != nil {
		return 0, err
	}
	tok, err := s.store.Token(ctx, instance, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return 0, nil
		}
		return 0, registry.Internal(err, "failed to load collateral")
	}
	return tok.SBTTokenID, nil
}

func (s *Service) OwnerOf(ctx context.Context, instance domain.Account, id domain.CollateralID) (domain.Account, error) {
	if _, err := s.State(ctx, instance); err != nil {
		return domain.ZeroAccount, err
	}
	tok, err := s.token(ctx, instance, id)
	if err != nil {
		return domain.ZeroAccount, err
	}
	return tok.Owner, nil
}

func (s *Service) BalanceOf(ctx context.Context, instance, owner domain.Account) (uint64, error) {
	if owner.IsZero() {
		return 0, registry.ErrZeroAddress
	}
	if _, err := s.State(ctx, instance); err != nil {
		return 0, err
	}
	n, err := s.store.BalanceOf(ctx, instance, owner)
	if err != nil {
		return 0, registry.Internal(err, "failed to count collateral")
	}
	return n, nil
}

func (s *Service) Metadata() registry.Metadata {
	return registry.CollateralMetadata
}

func (s *Service) SupportsInterface(id registry.InterfaceID) bool {
	return registry.SupportsInterface(id)
}

func (s *Service) token(ctx context.Context, instance domain.Account, id domain.CollateralID) (*models.Token, error) {
	tok, err := txToken(ctx, s.store, instance, id)
	if err != nil {
		return nil, registry.Internal(err, "failed to load collateral")
	}
	return tok, nil
}
