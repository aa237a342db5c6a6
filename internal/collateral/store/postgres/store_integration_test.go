//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"magbot/internal/collateral/models"
	"magbot/internal/collateral/store"
	"magbot/internal/collateral/store/postgres"
	"magbot/pkg/domain"
	"magbot/pkg/platform/sentinel"
	"magbot/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg       *containers.PostgresContainer
	store    *postgres.PostgresStore
	instance domain.Account
	sbt      domain.Account
	alice    domain.Account
	bob      domain.Account
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.store = postgres.New(s.pg.DB)
	s.instance = domain.MustParseAccount("0x00000000000000000000000000000000000000cc")
	s.sbt = domain.MustParseAccount("0x00000000000000000000000000000000000000aa")
	s.alice = domain.MustParseAccount("0x00000000000000000000000000000000000a11ce")
	s.bob = domain.MustParseAccount("0x0000000000000000000000000000000000000b0b")
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.pg.Reset(ctx))
	err := s.store.RunInTx(ctx, s.instance, func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateState(ctx, models.NewState(s.instance, s.sbt, time.Now())); err != nil {
			return err
		}
		return tx.InsertToken(ctx, s.instance, &models.Token{ID: 1, Owner: s.alice, SBTTokenID: 3, MintedAt: time.Now()})
	})
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) TestStateRoundTrip() {
	ctx := context.Background()
	state, err := s.store.State(ctx, s.instance)
	s.Require().NoError(err)
	s.Equal(s.sbt, state.SBTRegistry)
	s.Equal(domain.CollateralID(1), state.NextCollateralID)
	s.False(state.Pause.Paused)

	err = s.store.RunInTx(ctx, s.instance, func(ctx context.Context, tx store.Tx) error {
		state.Pause.Paused = true
		state.NextCollateralID = 2
		return tx.SaveState(ctx, state)
	})
	s.Require().NoError(err)

	state, err = s.store.State(ctx, s.instance)
	s.Require().NoError(err)
	s.True(state.Pause.Paused)
	s.Equal(domain.CollateralID(2), state.NextCollateralID)
}

func (s *PostgresStoreSuite) TestCredentialLinkIsUnique() {
	err := s.store.RunInTx(context.Background(), s.instance, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertToken(ctx, s.instance, &models.Token{ID: 2, Owner: s.bob, SBTTokenID: 3, MintedAt: time.Now()})
	})
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestApprovalsAndTransfer() {
	ctx := context.Background()
	err := s.store.RunInTx(ctx, s.instance, func(ctx context.Context, tx store.Tx) error {
		tok, err := tx.Token(ctx, s.instance, 1)
		if err != nil {
			return err
		}
		tok.Approved = s.bob
		if err := tx.SaveToken(ctx, s.instance, tok); err != nil {
			return err
		}
		return tx.SetApprovalForAll(ctx, s.instance, s.alice, s.bob, true)
	})
	s.Require().NoError(err)

	tok, err := s.store.TokenBySBT(ctx, s.instance, 3)
	s.Require().NoError(err)
	s.Equal(s.bob, tok.Approved)
	ok, err := s.store.IsApprovedForAll(ctx, s.instance, s.alice, s.bob)
	s.Require().NoError(err)
	s.True(ok)

	err = s.store.RunInTx(ctx, s.instance, func(ctx context.Context, tx store.Tx) error {
		tok.Owner = s.bob
		tok.Approved = domain.ZeroAccount
		if err := tx.SaveToken(ctx, s.instance, tok); err != nil {
			return err
		}
		return tx.SetApprovalForAll(ctx, s.instance, s.alice, s.bob, false)
	})
	s.Require().NoError(err)

	tok, err = s.store.Token(ctx, s.instance, 1)
	s.Require().NoError(err)
	s.True(tok.Approved.IsZero())
	n, err := s.store.BalanceOf(ctx, s.instance, s.bob)
	s.Require().NoError(err)
	s.Equal(uint64(1), n)
	ok, err = s.store.IsApprovedForAll(ctx, s.instance, s.alice, s.bob)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *PostgresStoreSuite) TestRollback() {
	ctx := context.Background()
	boom := errors.New("boom")
	err := s.store.RunInTx(ctx, s.instance, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertToken(ctx, s.instance, &models.Token{ID: 2, Owner: s.bob, SBTTokenID: 4, MintedAt: time.Now()}); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)
	_, err = s.store.Token(ctx, s.instance, 2)
	s.ErrorIs(err, sentinel.ErrNotFound)
}
