package service

import (
	"context"
	"errors"

	"magbot/internal/access"
	"magbot/internal/collateral/models"
	"magbot/internal/collateral/store"
	"magbot/internal/registry"
	"magbot/pkg/domain"
	audit "magbot/pkg/platform/audit"
	"magbot/pkg/platform/sentinel"
	"magbot/pkg/requestcontext"
)

// Initialize creates the instance state linked to sbtRegistry and grants
// DefaultAdmin to admin. It succeeds at most once per instance.
func (s *Service) Initialize(ctx context.Context, instance, admin, sbtRegistry domain.Account) (err error) {
	ctx, done := s.Instrument(ctx, "initialize", instance)
	defer done(&err)

	if instance.IsZero() {
		return registry.ErrZeroAddress
	}
	err = s.store.RunInTx(ctx, instance, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.State(ctx, instance); err == nil {
			return registry.ErrAlreadyInitialized
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}
		if admin.IsZero() || sbtRegistry.IsZero() {
			return registry.ErrZeroAddress
		}
		if err := tx.CreateState(ctx, models.NewState(instance, sbtRegistry, requestcontext.Now(ctx))); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return registry.ErrAlreadyInitialized
			}
			return err
		}
		if _, err := s.Guard.Bootstrap(ctx, tx, instance, access.DefaultAdminRole, admin); err != nil {
			return err
		}
		if err := s.LogAudit(ctx, instance, audit.EventInitialized,
			"admin", admin.String()); err != nil {
			return err
		}
		if err := s.LogAudit(ctx, instance, audit.EventRoleGranted,
			"role", access.DefaultAdminRole.String(),
			"account", admin.String()); err != nil {
			return err
		}
		return s.LogAudit(ctx, instance, audit.EventSBTSet, "sbt", sbtRegistry.String())
	})
	return registry.Internal(err, "failed to initialize registry")
}

// Mint issues the next collateral token to account, backed by the
// credential account holds in the linked registry. Mint is not gated by
// pause.
func (s *Service) Mint(ctx context.Context, instance, caller, account domain.Account) (_ domain.CollateralID, err error) {
	ctx, done := s.Instrument(ctx, "mint", instance)
	defer done(&err)
	ctx = requestcontext.WithCaller(ctx, caller)

	var minted domain.CollateralID
	err = s.store.RunInTx(ctx, instance, func(ctx context.Context, tx store.Tx) error {
		if err := s.Guard.RequireRole(ctx, tx, instance, access.BackendRole, caller); err != nil {
			return err
		}
		state, err := registry.RequireInitialized(tx.State(ctx, instance))
		if err != nil {
			return err
		}
		if account.IsZero() {
			return registry.ErrZeroAddress
		}
		credential, err := s.credentials.TokenByAccount(ctx, state.SBTRegistry, account)
		if err != nil {
			return registry.Internal(err, "failed to resolve credential")
		}
		if credential.IsNil() {
			return &models.AccountHasNotSBTError{Account: account}
		}
		if existing, err := tx.TokenBySBT(ctx, instance, credential); err == nil {
			return &models.AccountHasCollateralError{Account: account, CollateralID: existing.ID}
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}

		token := &models.Token{
			ID:         state.NextCollateralID,
			Owner:      account,
			SBTTokenID: credential,
			MintedAt:   requestcontext.Now(ctx),
		}
		if err := tx.InsertToken(ctx, instance, token); err != nil {
			return err
		}
		state.NextCollateralID++
		if err := tx.SaveState(ctx, state); err != nil {
			return err
		}

		if err := s.LogAudit(ctx, instance, audit.EventTransfer,
			"from", domain.ZeroAccount.String(),
			"to", account.String(),
			"token_id", token.ID.String()); err != nil {
			return err
		}
		if err := s.LogAudit(ctx, instance, audit.EventCollateralMinted,
			"account", account.String(),
			"token_id", token.ID.String(),
			"sbt_token_id", credential.String()); err != nil {
			return err
		}
		minted = token.ID
		return nil
	})
	if err != nil {
		s.Rejected(ctx, instance, audit.EventMintRejected, err, "account", account.String())
		return 0, registry.Internal(err, "failed to mint collateral")
	}
	if s.Metrics != nil {
		s.Metrics.IncrementMinted(registryName)
	}
	return minted, nil
}

// SetSBT re-points the registry at another verification registry. Tokens
// minted earlier keep their credential link unchecked.
func (s *Service) SetSBT(ctx context.Context, instance, caller, sbtRegistry domain.Account) (err error) {
	ctx, done := s.Instrument(ctx, "set_sbt", instance)
	defer done(&err)
	ctx = requestcontext.WithCaller(ctx, caller)

	err = s.store.RunInTx(ctx, instance, func(ctx context.Context, tx store.Tx) error {
		if err := s.Guard.RequireRole(ctx, tx, instance, access.DefaultAdminRole, caller); err != nil {
			return err
		}
		state, err := registry.RequireInitialized(tx.State(ctx, instance))
		if err != nil {
			return err
		}
		if sbtRegistry.IsZero() {
			return registry.ErrZeroAddress
		}
		state.SBTRegistry = sbtRegistry
		if err := tx.SaveState(ctx, state); err != nil {
			return err
		}
		return s.LogAudit(ctx, instance, audit.EventSBTSet, "sbt", sbtRegistry.String())
	})
	if err != nil {
		s.Rejected(ctx, instance, "", err)
	}
	return registry.Internal(err, "failed to set linked registry")
}

func (s *Service) SetBaseURI(ctx context.Context, instance, caller domain.Account, uri string) (err error) {
	ctx, done := s.Instrument(ctx, "set_base_uri", instance)
	defer done(&err)
	ctx = requestcontext.WithCaller(ctx, caller)

	err = s.store.RunInTx(ctx, instance, func(ctx context.Context, tx store.Tx) error {
		if err := s.Guard.RequireRole(ctx, tx, instance, access.DefaultAdminRole, caller); err != nil {
			return err
		}
		state, err := registry.RequireInitialized(tx.State(ctx, instance))
		if err != nil {
			return err
		}
		if uri == "" {
			return registry.ErrEmptyURI
		}
		state.BaseURI = uri
		if err := tx.SaveState(ctx, state); err != nil {
			return err
		}
		return s.LogAudit(ctx, instance, audit.EventBaseURISet, "uri", uri)
	})
	if err != nil {
		s.Rejected(ctx, instance, "", err)
	}
	return registry.Internal(err, "failed to set base uri")
}

// Pause closes the transfer path.
func (s *Service) Pause(ctx context.Context, instance, caller domain.Account) error {
	return s.setPaused(ctx, instance, caller, true)
}

// Unpause reopens the transfer path.
func (s *Service) Unpause(ctx context.Context, instance, caller domain.Account) error {
	return s.setPaused(ctx, instance, caller, false)
}

func (s *Service) setPaused(ctx context.Context, instance, caller domain.Account, paused bool) (err error) {
	op, event := "unpause", audit.EventUnpaused
	if paused {
		op, event = "pause", audit.EventPaused
	}
	ctx, done := s.Instrument(ctx, op, instance)
	defer done(&err)
	ctx = requestcontext.WithCaller(ctx, caller)

	err = s.store.RunInTx(ctx, instance, func(ctx context.Context, tx store.Tx) error {
		if err := s.Guard.RequireRole(ctx, tx, instance, access.PauserRole, caller); err != nil {
			return err
		}
		state, err := registry.RequireInitialized(tx.State(ctx, instance))
		if err != nil {
			return err
		}
		if paused {
			state.Pause, err = state.Pause.Pause()
		} else {
			state.Pause, err = state.Pause.Unpause()
		}
		if err != nil {
			return err
		}
		if err := tx.SaveState(ctx, state); err != nil {
			return err
		}
		return s.LogAudit(ctx, instance, event, "account", caller.String())
	})
	if err != nil {
		s.Rejected(ctx, instance, "", err)
		return registry.Internal(err, "failed to switch pause state")
	}
	if s.Metrics != nil {
		s.Metrics.SetPaused(instance.String(), paused)
	}
	return nil
}
