package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"magbot/internal/collateral/models"
	"magbot/internal/collateral/store"
	"magbot/pkg/domain"
	"magbot/pkg/platform/sentinel"
)

var (
	instance = domain.MustParseAccount("0x00000000000000000000000000000000000000aa")
	sbt      = domain.MustParseAccount("0x00000000000000000000000000000000000000bb")
	alice    = domain.MustParseAccount("0x00000000000000000000000000000000000a11ce")
	bob      = domain.MustParseAccount("0x0000000000000000000000000000000000000b0b")
)

func seeded(t *testing.T) *InMemoryStore {
	t.Helper()
	s := New()
	err := s.RunInTx(context.Background(), instance, func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateState(ctx, models.NewState(instance, sbt, time.Now())); err != nil {
			return err
		}
		return tx.InsertToken(ctx, instance, &models.Token{ID: 1, Owner: alice, SBTTokenID: 7})
	})
	require.NoError(t, err)
	return s
}

func TestRunInTx(t *testing.T) {
	ctx := context.Background()

	t.Run("credential links are unique", func(t *testing.T) {
		s := seeded(t)
		err := s.RunInTx(ctx, instance, func(ctx context.Context, tx store.Tx) error {
			return tx.InsertToken(ctx, instance, &models.Token{ID: 2, Owner: bob, SBTTokenID: 7})
		})
		assert.ErrorIs(t, err, sentinel.ErrConflict)

		tok, err := s.TokenBySBT(ctx, instance, 7)
		require.NoError(t, err)
		assert.Equal(t, domain.CollateralID(1), tok.ID)
	})

	t.Run("transfer moves balances on commit", func(t *testing.T) {
		s := seeded(t)
		err := s.RunInTx(ctx, instance, func(ctx context.Context, tx store.Tx) error {
			tok, err := tx.Token(ctx, instance, 1)
			require.NoError(t, err)
			tok.Owner = bob
			require.NoError(t, tx.SaveToken(ctx, instance, tok))

			n, err := tx.BalanceOf(ctx, instance, bob)
			require.NoError(t, err)
			assert.Equal(t, uint64(1), n, "transaction sees its own transfer")
			n, err = s.BalanceOf(ctx, instance, bob)
			require.NoError(t, err)
			assert.Zero(t, n, "store does not")
			return nil
		})
		require.NoError(t, err)

		for account, want := range map[domain.Account]uint64{alice: 0, bob: 1} {
			n, err := s.BalanceOf(ctx, instance, account)
			require.NoError(t, err)
			assert.Equal(t, want, n)
		}
	})

	t.Run("rollback discards token and operator changes", func(t *testing.T) {
		s := seeded(t)
		boom := errors.New("boom")
		err := s.RunInTx(ctx, instance, func(ctx context.Context, tx store.Tx) error {
			tok, err := tx.Token(ctx, instance, 1)
			require.NoError(t, err)
			tok.Approved = bob
			require.NoError(t, tx.SaveToken(ctx, instance, tok))
			require.NoError(t, tx.SetApprovalForAll(ctx, instance, alice, bob, true))

			ok, err := tx.IsApprovedForAll(ctx, instance, alice, bob)
			require.NoError(t, err)
			assert.True(t, ok)
			return boom
		})
		assert.ErrorIs(t, err, boom)

		tok, err := s.Token(ctx, instance, 1)
		require.NoError(t, err)
		assert.True(t, tok.Approved.IsZero())
		ok, err := s.IsApprovedForAll(ctx, instance, alice, bob)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("operator approval can be withdrawn", func(t *testing.T) {
		s := seeded(t)
		set := func(approved bool) {
			err := s.RunInTx(ctx, instance, func(ctx context.Context, tx store.Tx) error {
				return tx.SetApprovalForAll(ctx, instance, alice, bob, approved)
			})
			require.NoError(t, err)
		}
		set(true)
		ok, err := s.IsApprovedForAll(ctx, instance, alice, bob)
		require.NoError(t, err)
		assert.True(t, ok)

		set(false)
		ok, err = s.IsApprovedForAll(ctx, instance, alice, bob)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unknown tokens miss", func(t *testing.T) {
		s := seeded(t)
		_, err := s.Token(ctx, instance, 9)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		_, err = s.TokenBySBT(ctx, sbt, 7)
		assert.ErrorIs(t, err, sentinel.ErrNotFound, "other instances are isolated")
	})

	t.Run("saving an unknown token fails", func(t *testing.T) {
		s := seeded(t)
		err := s.RunInTx(ctx, instance, func(ctx context.Context, tx store.Tx) error {
			return tx.SaveToken(ctx, instance, &models.Token{ID: 9, Owner: bob})
		})
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}
