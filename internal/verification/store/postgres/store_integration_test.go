//go:build integration

package postgres_test

import (
	"context"
	"crypto/rand"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"magbot/internal/access"
	"magbot/internal/verification/models"
	"magbot/internal/verification/service"
	"magbot/internal/verification/store"
	"magbot/internal/verification/store/postgres"
	"magbot/pkg/domain"
	"magbot/pkg/platform/sentinel"
	"magbot/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg       *containers.PostgresContainer
	store    *postgres.PostgresStore
	instance domain.Account
	alice    domain.Account
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.store = postgres.New(s.pg.DB)
	s.instance = domain.MustParseAccount("0x00000000000000000000000000000000000000aa")
	s.alice = domain.MustParseAccount("0x00000000000000000000000000000000000a11ce")
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.Reset(context.Background()))
}

func (s *PostgresStoreSuite) TestRollbackLeavesNoTrace() {
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.store.RunInTx(ctx, s.instance, func(ctx context.Context, tx store.Tx) error {
		s.Require().NoError(tx.CreateState(ctx, models.NewState(s.instance, time.Now())))
		s.Require().NoError(tx.InsertToken(ctx, s.instance, &models.Token{
			ID: 1, Account: s.alice, Verification: "d1", MintedAt: time.Now(),
		}))
		s.Require().NoError(tx.AddRoleMember(ctx, s.instance, access.BackendRole, s.alice))
		return boom
	})
	s.ErrorIs(err, boom)

	_, err = s.store.State(ctx, s.instance)
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.TokenByAccount(ctx, s.instance, s.alice)
	s.ErrorIs(err, sentinel.ErrNotFound)
	has, err := s.store.HasRole(ctx, s.instance, access.BackendRole, s.alice)
	s.Require().NoError(err)
	s.False(has)
}

func (s *PostgresStoreSuite) TestUniqueConstraintsMapToConflict() {
	ctx := context.Background()
	err := s.store.RunInTx(ctx, s.instance, func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateState(ctx, models.NewState(s.instance, time.Now())); err != nil {
			return err
		}
		return tx.InsertToken(ctx, s.instance, &models.Token{ID: 1, Account: s.alice, Verification: "d1", MintedAt: time.Now()})
	})
	s.Require().NoError(err)

	err = s.store.RunInTx(ctx, s.instance, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertToken(ctx, s.instance, &models.Token{
			ID: 2, Account: domain.MustParseAccount("0x0000000000000000000000000000000000000b0b"), Verification: "d1", MintedAt: time.Now(),
		})
	})
	s.ErrorIs(err, sentinel.ErrConflict)

	err = s.store.RunInTx(ctx, s.instance, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateState(ctx, models.NewState(s.instance, time.Now()))
	})
	s.ErrorIs(err, sentinel.ErrConflict)
}

// TestOpaqueData mints data that is not valid text or too long for a btree
// index entry; both must round-trip and stay unique.
func (s *PostgresStoreSuite) TestOpaqueData() {
	ctx := context.Background()
	admin := domain.MustParseAccount("0x0000000000000000000000000000000000000a01")
	bob := domain.MustParseAccount("0x0000000000000000000000000000000000000b0b")
	svc := service.New(s.store)
	s.Require().NoError(svc.Initialize(ctx, s.instance, admin))
	s.Require().NoError(svc.GrantRole(ctx, s.instance, admin, access.BackendRole, admin))

	random := make([]byte, 4096)
	_, err := rand.Read(random)
	s.Require().NoError(err)

	cases := map[string]struct {
		account domain.Account
		datum   string
	}{
		"NUL bytes":    {account: s.alice, datum: "kyc\x00passport\x00"},
		"4 KiB random": {account: bob, datum: string(random)},
	}
	for name, tc := range cases {
		s.Run(name, func() {
			id, err := svc.Mint(ctx, s.instance, admin, tc.account, tc.datum)
			s.Require().NoError(err)

			got, err := svc.VerificationByToken(ctx, s.instance, id)
			s.Require().NoError(err)
			s.Equal(tc.datum, got)

			byData, err := svc.TokenByVerification(ctx, s.instance, tc.datum)
			s.Require().NoError(err)
			s.Equal(id, byData)

			var dup domain.Account
			dup[0], dup[19] = 0xdd, byte(len(name))
			_, err = svc.Mint(ctx, s.instance, admin, dup, tc.datum)
			var already *models.DataAlreadySetForError
			s.ErrorAs(err, &already)
		})
	}
}

// TestConcurrentMintsAreSerialized runs the service against the database:
// the instance row lock must hand out distinct, gap-free ids.
func (s *PostgresStoreSuite) TestConcurrentMintsAreSerialized() {
	ctx := context.Background()
	admin := domain.MustParseAccount("0x0000000000000000000000000000000000000a01")
	svc := service.New(s.store)
	s.Require().NoError(svc.Initialize(ctx, s.instance, admin))
	s.Require().NoError(svc.GrantRole(ctx, s.instance, admin, access.BackendRole, admin))

	const n = 10
	ids := make(chan domain.TokenID, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var account domain.Account
			account[19] = byte(i + 1)
			account[0] = 0xcc
			id, err := svc.Mint(ctx, s.instance, admin, account, "datum-"+string(rune('a'+i)))
			if err == nil {
				ids <- id
			}
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := map[domain.TokenID]bool{}
	for id := range ids {
		s.False(seen[id], "id %d handed out twice", id)
		seen[id] = true
	}
	s.Len(seen, n)
	next, err := svc.NextTokenID(ctx, s.instance)
	s.Require().NoError(err)
	s.Equal(domain.TokenID(n+1), next)
}
