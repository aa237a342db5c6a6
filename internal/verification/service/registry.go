package service

import (
	"context"
	"errors"

	"magbot/internal/access"
	"magbot/internal/registry"
	"magbot/internal/verification/models"
	"magbot/internal/verification/store"
	"magbot/pkg/domain"
	audit "magbot/pkg/platform/audit"
	"magbot/pkg/platform/sentinel"
	"magbot/pkg/requestcontext"
)

// Initialize creates the instance state and grants DefaultAdmin to admin.
// It succeeds at most once per instance whatever the arguments.
func (s *Service) Initialize(ctx context.Context, instance, admin domain.Account) (err error) {
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
		if admin.IsZero() {
			return registry.ErrZeroAddress
		}
		if err := tx.CreateState(ctx, models.NewState(instance, requestcontext.Now(ctx))); err != nil {
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
		return s.LogAudit(ctx, instance, audit.EventRoleGranted,
			"role", access.DefaultAdminRole.String(),
			"account", admin.String())
	})
	return registry.Internal(err, "failed to initialize registry")
}

// Mint issues the next credential to account, bound to datum. Authorization
// is checked before any input or invariant.
func (s *Service) Mint(ctx context.Context, instance, caller, account domain.Account, datum string) (_ domain.TokenID, err error) {
	ctx, done := s.Instrument(ctx, "mint", instance)
	defer done(&err)
	ctx = requestcontext.WithCaller(ctx, caller)

	var minted domain.TokenID
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
		if datum == "" {
			return models.ErrEmptyData
		}
		if existing, err := tx.TokenByAccount(ctx, instance, account); err == nil {
			return &models.AlreadyVerifiedError{Account: account, TokenID: existing.ID}
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}
		if existing, err := tx.TokenByVerification(ctx, instance, datum); err == nil {
			return &models.DataAlreadySetForError{TokenID: existing.ID}
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}

		token := &models.Token{
			ID:           state.NextTokenID,
			Account:      account,
			Verification: datum,
			MintedAt:     requestcontext.Now(ctx),
		}
		if err := tx.InsertToken(ctx, instance, token); err != nil {
			return err
		}
		state.NextTokenID++
		if err := tx.SaveState(ctx, state); err != nil {
			return err
		}

		if err := s.LogAudit(ctx, instance, audit.EventTransfer,
			"from", domain.ZeroAccount.String(),
			"to", account.String(),
			"token_id", token.ID.String()); err != nil {
			return err
		}
		if err := s.LogAudit(ctx, instance, audit.EventSBTMinted,
			"account", account.String(),
			"token_id", token.ID.String()); err != nil {
			return err
		}
		minted = token.ID
		return nil
	})
	if err != nil {
		s.Rejected(ctx, instance, audit.EventMintRejected, err, "account", account.String())
		return 0, registry.Internal(err, "failed to mint credential")
	}
	if s.Metrics != nil {
		s.Metrics.IncrementMinted(registryName)
	}
	return minted, nil
}

// SetBaseURI replaces the token URI prefix.
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
			return models.ErrEmptyURI
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

// Transfer always fails: credentials are soulbound for every caller and
// role.
func (s *Service) Transfer(ctx context.Context, instance, caller, from, to domain.Account, id domain.TokenID) (err error) {
	ctx, done := s.Instrument(ctx, "transfer", instance)
	defer done(&err)
	ctx = requestcontext.WithCaller(ctx, caller)

	err = registry.ErrNonTransferable
	s.Rejected(ctx, instance, audit.EventTransferRejected, err,
		"from", from.String(),
		"to", to.String(),
		"token_id", id.String())
	return err
}
