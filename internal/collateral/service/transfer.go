package service

import (
	"context"
	"errors"
	"strconv"

	"magbot/internal/collateral/models"
	"magbot/internal/collateral/store"
	"magbot/internal/registry"
	"magbot/pkg/domain"
	audit "magbot/pkg/platform/audit"
	"magbot/pkg/platform/sentinel"
	"magbot/pkg/requestcontext"
)

// TransferFrom moves id from from to to on behalf of caller. The caller
// must be the owner, the approved account of the token or an operator of
// the owner. Fails with pause.ErrPaused while the registry is paused.
func (s *Service) TransferFrom(ctx context.Context, instance, caller, from, to domain.Account, id domain.CollateralID) (err error) {
	ctx, done := s.Instrument(ctx, "transfer", instance)
	defer done(&err)
	ctx = requestcontext.WithCaller(ctx, caller)

	err = s.store.RunInTx(ctx, instance, func(ctx context.Context, tx store.Tx) error {
		state, err := registry.RequireInitialized(tx.State(ctx, instance))
		if err != nil {
			return err
		}
		if to.IsZero() {
			return registry.ErrInvalidReceiver
		}
		if err := state.Pause.WhenNotPaused(); err != nil {
			return err
		}
		tok, err := txToken(ctx, tx, instance, id)
		if err != nil {
			return err
		}
		authorized, err := isAuthorized(ctx, tx, instance, tok, caller)
		if err != nil {
			return err
		}
		if !authorized {
			return &registry.InsufficientApprovalError{Operator: caller, TokenID: uint64(id)}
		}
		if tok.Owner != from {
			return &registry.IncorrectOwnerError{Sender: from, TokenID: uint64(id), Owner: tok.Owner}
		}

		tok.Owner = to
		tok.Approved = domain.ZeroAccount
		if err := tx.SaveToken(ctx, instance, tok); err != nil {
			return err
		}
		return s.LogAudit(ctx, instance, audit.EventTransfer,
			"from", from.String(),
			"to", to.String(),
			"token_id", id.String())
	})
	if err != nil {
		s.Rejected(ctx, instance, audit.EventTransferRejected, err,
			"from", from.String(),
			"to", to.String(),
			"token_id", id.String())
	}
	return registry.Internal(err, "failed to transfer collateral")
}

// Approve lets approved move id once. Only the owner or one of its
// operators may approve; the zero account clears the approval. Approvals
// stay open while paused, only the transfer itself is gated.
func (s *Service) Approve(ctx context.Context, instance, caller, approved domain.Account, id domain.CollateralID) (err error) {
	ctx, done := s.Instrument(ctx, "approve", instance)
	defer done(&err)
	ctx = requestcontext.WithCaller(ctx, caller)

	err = s.store.RunInTx(ctx, instance, func(ctx context.Context, tx store.Tx) error {
		if _, err := registry.RequireInitialized(tx.State(ctx, instance)); err != nil {
			return err
		}
		tok, err := txToken(ctx, tx, instance, id)
		if err != nil {
			return err
		}
		if caller != tok.Owner {
			operator, err := tx.IsApprovedForAll(ctx, instance, tok.Owner, caller)
			if err != nil {
				return err
			}
			if !operator {
				return &registry.InvalidApproverError{Approver: caller}
			}
		}
		tok.Approved = approved
		if err := tx.SaveToken(ctx, instance, tok); err != nil {
			return err
		}
		return s.LogAudit(ctx, instance, audit.EventApproval,
			"owner", tok.Owner.String(),
			"approved", approved.String(),
			"token_id", id.String())
	})
	return registry.Internal(err, "failed to approve")
}

// SetApprovalForAll grants or withdraws operator rights over every token
// the caller owns.
func (s *Service) SetApprovalForAll(ctx context.Context, instance, caller, operator domain.Account, approved bool) (err error) {
	ctx, done := s.Instrument(ctx, "set_approval_for_all", instance)
	defer done(&err)
	ctx = requestcontext.WithCaller(ctx, caller)

	err = s.store.RunInTx(ctx, instance, func(ctx context.Context, tx store.Tx) error {
		if _, err := registry.RequireInitialized(tx.State(ctx, instance)); err != nil {
			return err
		}
		if operator.IsZero() {
			return registry.ErrInvalidOperator
		}
		if err := tx.SetApprovalForAll(ctx, instance, caller, operator, approved); err != nil {
			return err
		}
		return s.LogAudit(ctx, instance, audit.EventApprovalForAll,
			"owner", caller.String(),
			"operator", operator.String(),
			"approved", strconv.FormatBool(approved))
	})
	return registry.Internal(err, "failed to set operator approval")
}

// GetApproved returns the single-token approval of id, or the zero account.
func (s *Service) GetApproved(ctx context.Context, instance domain.Account, id domain.CollateralID) (domain.Account, error) {
	if _, err := s.State(ctx, instance); err != nil {
		return domain.ZeroAccount, err
	}
	tok, err := s.token(ctx, instance, id)
	if err != nil {
		return domain.ZeroAccount, err
	}
	return tok.Approved, nil
}

func (s *Service) IsApprovedForAll(ctx context.Context, instance, owner, operator domain.Account) (bool, error) {
	if _, err := s.State(ctx, instance); err != nil {
		return false, err
	}
	ok, err := s.store.IsApprovedForAll(ctx, instance, owner, operator)
	if err != nil {
		return false, registry.Internal(err, "failed to check operator approval")
	}
	return ok, nil
}

func isAuthorized(ctx context.Context, r store.Reader, instance domain.Account, tok *models.Token, spender domain.Account) (bool, error) {
	if spender.IsZero() {
		return false, nil
	}
	if spender == tok.Owner || spender == tok.Approved {
		return true, nil
	}
	return r.IsApprovedForAll(ctx, instance, tok.Owner, spender)
}

func txToken(ctx context.Context, r store.Reader, instance domain.Account, id domain.CollateralID) (*models.Token, error) {
	tok, err := r.Token(ctx, instance, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, &registry.NonexistentTokenError{TokenID: uint64(id)}
		}
		return nil, err
	}
	return tok, nil
}
