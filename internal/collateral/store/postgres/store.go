package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"magbot/internal/access"
	"magbot/internal/collateral/models"
	"magbot/internal/collateral/store"
	"magbot/internal/platform/postgres"
	"magbot/pkg/domain"
	"magbot/pkg/platform/sentinel"
	txcontext "magbot/pkg/platform/tx"
)

const registryKind = "collateral"

// PostgresStore persists collateral registry instances.
type PostgresStore struct {
	db *sql.DB
}

var _ store.Store = (*PostgresStore)(nil)

func New(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// RunInTx locks the instance row for the duration of fn.
func (s *PostgresStore) RunInTx(ctx context.Context, instance domain.Account, fn func(ctx context.Context, tx store.Tx) error) error {
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		var locked []byte
		err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx,
			`SELECT address FROM collateral_instances WHERE address = $1 FOR UPDATE`,
			instance.Bytes(),
		).Scan(&locked)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("lock instance: %w", err)
		}
		return fn(ctx, s)
	})
}

func (s *PostgresStore) State(ctx context.Context, instance domain.Account) (*models.State, error) {
	var (
		st   models.State
		sbt  []byte
		next int64
	)
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx, `
		SELECT sbt_registry, base_uri, next_collateral_id, paused, initialized_at
		FROM collateral_instances
		WHERE address = $1
	`, instance.Bytes()).Scan(&sbt, &st.BaseURI, &next, &st.Pause.Paused, &st.InitializedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("load collateral state: %w", err)
	}
	st.Instance = instance
	st.SBTRegistry = domain.AccountFromBytes(sbt)
	st.NextCollateralID = domain.CollateralID(next)
	return &st, nil
}

func (s *PostgresStore) CreateState(ctx context.Context, state *models.State) error {
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO collateral_instances (address, sbt_registry, base_uri, next_collateral_id, paused, initialized_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, state.Instance.Bytes(), state.SBTRegistry.Bytes(), state.BaseURI,
		int64(state.NextCollateralID), state.Pause.Paused, state.InitializedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create collateral state: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveState(ctx context.Context, state *models.State) error {
	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		UPDATE collateral_instances
		SET sbt_registry = $2, base_uri = $3, next_collateral_id = $4, paused = $5
		WHERE address = $1
	`, state.Instance.Bytes(), state.SBTRegistry.Bytes(), state.BaseURI,
		int64(state.NextCollateralID), state.Pause.Paused)
	if err != nil {
		return fmt.Errorf("save collateral state: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) InsertToken(ctx context.Context, instance domain.Account, token *models.Token) error {
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO collateral_tokens (instance, collateral_id, owner, sbt_token_id, approved, minted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, instance.Bytes(), int64(token.ID), token.Owner.Bytes(), int64(token.SBTTokenID),
		nullableAccount(token.Approved), token.MintedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert collateral token: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveToken(ctx context.Context, instance domain.Account, token *models.Token) error {
	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		UPDATE collateral_tokens
		SET owner = $3, approved = $4
		WHERE instance = $1 AND collateral_id = $2
	`, instance.Bytes(), int64(token.ID), token.Owner.Bytes(), nullableAccount(token.Approved))
	if err != nil {
		return fmt.Errorf("save collateral token: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Token(ctx context.Context, instance domain.Account, id domain.CollateralID) (*models.Token, error) {
	return s.queryToken(ctx, `
		SELECT collateral_id, owner, sbt_token_id, approved, minted_at
		FROM collateral_tokens
		WHERE instance = $1 AND collateral_id = $2
	`, instance.Bytes(), int64(id))
}

func (s *PostgresStore) TokenBySBT(ctx context.Context, instance domain.Account, sbt domain.TokenID) (*models.Token, error) {
	return s.queryToken(ctx, `
		SELECT collateral_id, owner, sbt_token_id, approved, minted_at
		FROM collateral_tokens
		WHERE instance = $1 AND sbt_token_id = $2
	`, instance.Bytes(), int64(sbt))
}

func (s *PostgresStore) BalanceOf(ctx context.Context, instance, owner domain.Account) (uint64, error) {
	var n int64
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx, `
		SELECT count(*) FROM collateral_tokens WHERE instance = $1 AND owner = $2
	`, instance.Bytes(), owner.Bytes()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count collateral tokens: %w", err)
	}
	return uint64(n), nil
}

func (s *PostgresStore) IsApprovedForAll(ctx context.Context, instance, owner, operator domain.Account) (bool, error) {
	var exists bool
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM collateral_operators
			WHERE instance = $1 AND owner = $2 AND operator = $3
		)
	`, instance.Bytes(), owner.Bytes(), operator.Bytes()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check operator approval: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) SetApprovalForAll(ctx context.Context, instance, owner, operator domain.Account, approved bool) error {
	query := `
		DELETE FROM collateral_operators
		WHERE instance = $1 AND owner = $2 AND operator = $3
	`
	if approved {
		query = `
			INSERT INTO collateral_operators (instance, owner, operator)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING
		`
	}
	if _, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, query,
		instance.Bytes(), owner.Bytes(), operator.Bytes()); err != nil {
		return fmt.Errorf("set operator approval: %w", err)
	}
	return nil
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
		tok      models.Token
		id, sbt  int64
		owner    []byte
		approved []byte
	)
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx, query, args...).
		Scan(&id, &owner, &sbt, &approved, &tok.MintedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("load collateral token: %w", err)
	}
	tok.ID = domain.CollateralID(id)
	tok.Owner = domain.AccountFromBytes(owner)
	tok.SBTTokenID = domain.TokenID(sbt)
	if approved != nil {
		tok.Approved = domain.AccountFromBytes(approved)
	}
	return &tok, nil
}

func nullableAccount(a domain.Account) []byte {
	if a.IsZero() {
		return nil
	}
	return a.Bytes()
}
