package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"magbot/internal/access"
	"magbot/internal/platform/postgres"
	"magbot/internal/verification/models"
	"magbot/internal/verification/store"
	"magbot/pkg/domain"
	"magbot/pkg/platform/sentinel"
	txcontext "magbot/pkg/platform/tx"
)

const registryKind = "verification"

// PostgresStore persists verification registry instances. Every method runs
// on the transaction carried by ctx when there is one.
type PostgresStore struct {
	db *sql.DB
}

var _ store.Store = (*PostgresStore)(nil)

func New(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// RunInTx locks the instance row, so operations on one instance are totally
// ordered. Initialization races resolve on the primary key instead.
func (s *PostgresStore) RunInTx(ctx context.Context, instance domain.Account, fn func(ctx context.Context, tx store.Tx) error) error {
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		var locked []byte
		err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx,
			`SELECT address FROM verification_instances WHERE address = $1 FOR UPDATE`,
			instance.Bytes(),
		).Scan(&locked)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("lock instance: %w", err)
		}
		return fn(ctx, s)
	})
}

func (s *PostgresStore) State(ctx context.Context, instance domain.Account) (*models.State, error) {
	var st models.State
	var next int64
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx, `
		SELECT base_uri, next_token_id, initialized_at
		FROM verification_instances
		WHERE address = $1
	`, instance.Bytes()).Scan(&st.BaseURI, &next, &st.InitializedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("load verification state: %w", err)
	}
	st.Instance = instance
	st.NextTokenID = domain.TokenID(next)
	return &st, nil
}

func (s *PostgresStore) CreateState(ctx context.Context, state *models.State) error {
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO verification_instances (address, base_uri, next_token_id, initialized_at)
		VALUES ($1, $2, $3, $4)
	`, state.Instance.Bytes(), state.BaseURI, int64(state.NextTokenID), state.InitializedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create verification state: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveState(ctx context.Context, state *models.State) error {
	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		UPDATE verification_instances
		SET base_uri = $2, next_token_id = $3
		WHERE address = $1
	`, state.Instance.Bytes(), state.BaseURI, int64(state.NextTokenID))
	if err != nil {
		return fmt.Errorf("save verification state: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// InsertToken stores the datum as raw bytes. Uniqueness is enforced on its
// Keccak digest, so any non-empty byte string fits regardless of content or
// length.
func (s *PostgresStore) InsertToken(ctx context.Context, instance domain.Account, token *models.Token) error {
	datum := []byte(token.Verification)
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO verification_tokens (instance, token_id, account, verification, verification_hash, minted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, instance.Bytes(), int64(token.ID), token.Account.Bytes(), datum, domain.Keccak256(datum), token.MintedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) Token(ctx context.Context, instance domain.Account, id domain.TokenID) (*models.Token, error) {
	return s.queryToken(ctx, `
		SELECT token_id, account, verification, minted_at
		FROM verification_tokens
		WHERE instance = $1 AND token_id = $2
	`, instance.Bytes(), int64(id))
}

func (s *PostgresStore) TokenByAccount(ctx context.Context, instance, account domain.Account) (*models.Token, error) {
	return s.queryToken(ctx, `
		SELECT token_id, account, verification, minted_at
		FROM verification_tokens
		WHERE instance = $1 AND account = $2
	`, instance.Bytes(), account.Bytes())
}

func (s *PostgresStore) TokenByVerification(ctx context.Context, instance domain.Account, datum string) (*models.Token, error) {
	return s.queryToken(ctx, `
		SELECT token_id, account, verification, minted_at
		FROM verification_tokens
		WHERE instance = $1 AND verification_hash = $2
	`, instance.Bytes(), domain.Keccak256([]byte(datum)))
}

func (s *PostgresStore) BalanceOf(ctx context.Context, instance, account domain.Account) (uint64, error) {
	var n int64
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx, `
		SELECT count(*) FROM verification_tokens WHERE instance = $1 AND account = $2
	`, instance.Bytes(), account.Bytes()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count verification tokens: %w", err)
	}
	return uint64(n), nil
}

func (s *PostgresStore) HasRole(ctx context.Context, instance domain.Account, role access.Role, account domain.Account) (bool, error) {
	var exists bool
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM role_members
			WHERE registry = $1 AND instance = $2 AND role = $3 AND account = $4
		)
	`, registryKind, instance.Bytes(), role[:], account.Bytes()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check role membership: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) AddRoleMember(ctx context.Context, instance domain.Account, role access.Role, account domain.Account) error {
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO role_members (registry, instance, role, account)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING
	`, registryKind, instance.Bytes(), role[:], account.Bytes())
	if err != nil {
		return fmt.Errorf("add role member: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveRoleMember(ctx context.Context, instance domain.Account, role access.Role, account domain.Account) error {
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		DELETE FROM role_members
		WHERE registry = $1 AND instance = $2 AND role = $3 AND account = $4
	`, registryKind, instance.Bytes(), role[:], account.Bytes())
	if err != nil {
		return fmt.Errorf("remove role member: %w", err)
	}
	return nil
}

func (s *PostgresStore) queryToken(ctx context.Context, query string, args ...any) (*models.Token, error) {
	var (
		tok     models.Token
		id      int64
		account []byte
		datum   []byte
	)
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx, query, args...).
		Scan(&id, &account, &datum, &tok.MintedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("load verification token: %w", err)
	}
	tok.ID = domain.TokenID(id)
	tok.Account = domain.AccountFromBytes(account)
	tok.Verification = string(datum)
	return &tok, nil
}
