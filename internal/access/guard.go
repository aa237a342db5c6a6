package access

import (
	"context"

	"magbot/pkg/domain"
)

// Store answers membership queries for one registry's instances.
type Store interface {
	HasRole(ctx context.Context, instance domain.Account, role Role, account domain.Account) (bool, error)
}

// Writer is a Store that can change membership. Registry transactions
// implement it so role changes commit or roll back with the rest of the
// operation.
type Writer interface {
	Store
	AddRoleMember(ctx context.Context, instance domain.Account, role Role, account domain.Account) error
	RemoveRoleMember(ctx context.Context, instance domain.Account, role Role, account domain.Account) error
}

// Guard authorizes mutating calls against a role table.
type Guard struct {
	table Table
}

func NewGuard(table Table) *Guard {
	return &Guard{table: table}
}

// AdminOf returns the role that administers role.
func (g *Guard) AdminOf(role Role) Role {
	return g.table.AdminOf(role)
}

// RequireRole fails with *UnauthorizedError unless caller holds role.
func (g *Guard) RequireRole(ctx context.Context, store Store, instance domain.Account, role Role, caller domain.Account) error {
	ok, err := store.HasRole(ctx, instance, role, caller)
	if err != nil {
		return err
	}
	if !ok {
		return &UnauthorizedError{Account: caller, Role: role}
	}
	return nil
}

// Grant adds account to role on behalf of caller, who must hold the role's
// admin. Granting an existing member changes nothing and reports false.
func (g *Guard) Grant(ctx context.Context, store Writer, instance, caller domain.Account, role Role, account domain.Account) (bool, error) {
	if err := g.RequireRole(ctx, store, instance, g.AdminOf(role), caller); err != nil {
		return false, err
	}
	return g.Bootstrap(ctx, store, instance, role, account)
}

// Revoke removes account from role on behalf of caller, who must hold the
// role's admin. Revoking a non-member reports false.
func (g *Guard) Revoke(ctx context.Context, store Writer, instance, caller domain.Account, role Role, account domain.Account) (bool, error) {
	if err := g.RequireRole(ctx, store, instance, g.AdminOf(role), caller); err != nil {
		return false, err
	}
	return revoke(ctx, store, instance, role, account)
}

// Renounce drops the caller's own membership. confirmation must repeat the
// caller's account.
func (g *Guard) Renounce(ctx context.Context, store Writer, instance, caller domain.Account, role Role, confirmation domain.Account) (bool, error) {
	if confirmation != caller {
		return false, ErrBadConfirmation
	}
	return revoke(ctx, store, instance, role, caller)
}

// Bootstrap grants without an authorization check. Only initialization
// calls it, to seed the first admin.
func (g *Guard) Bootstrap(ctx context.Context, store Writer, instance domain.Account, role Role, account domain.Account) (bool, error) {
	has, err := store.HasRole(ctx, instance, role, account)
	if err != nil || has {
		return false, err
	}
	if err := store.AddRoleMember(ctx, instance, role, account); err != nil {
		return false, err
	}
	return true, nil
}

func revoke(ctx context.Context, store Writer, instance domain.Account, role Role, account domain.Account) (bool, error) {
	has, err := store.HasRole(ctx, instance, role, account)
	if err != nil || !has {
		return false, err
	}
	if err := store.RemoveRoleMember(ctx, instance, role, account); err != nil {
		return false, err
	}
	return true, nil
}
