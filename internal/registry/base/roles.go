package base

import (
	"context"

	"magbot/internal/access"
	"magbot/internal/registry"
	"magbot/pkg/domain"
	audit "magbot/pkg/platform/audit"
	"magbot/pkg/requestcontext"
)

// GrantRole adds account to role. The caller must hold the role's admin.
// Granting an existing member emits nothing.
func (r *Registry) GrantRole(ctx context.Context, instance, caller domain.Account, role access.Role, account domain.Account) (err error) {
	ctx, done := r.Instrument(ctx, "grant_role", instance)
	defer done(&err)
	ctx = requestcontext.WithCaller(ctx, caller)

	err = r.run(ctx, instance, func(ctx context.Context, w access.Writer) error {
		changed, err := r.Guard.Grant(ctx, w, instance, caller, role, account)
		if err != nil || !changed {
			return err
		}
		return r.LogAudit(ctx, instance, audit.EventRoleGranted,
			"role", role.String(),
			"account", account.String())
	})
	if err != nil {
		r.Rejected(ctx, instance, "", err)
	}
	return registry.Internal(err, "failed to grant role")
}

// RevokeRole removes account from role. The caller must hold the role's
// admin. Revoking a non-member emits nothing.
func (r *Registry) RevokeRole(ctx context.Context, instance, caller domain.Account, role access.Role, account domain.Account) (err error) {
	ctx, done := r.Instrument(ctx, "revoke_role", instance)
	defer done(&err)
	ctx = requestcontext.WithCaller(ctx, caller)

	err = r.run(ctx, instance, func(ctx context.Context, w access.Writer) error {
		changed, err := r.Guard.Revoke(ctx, w, instance, caller, role, account)
		if err != nil || !changed {
			return err
		}
		return r.LogAudit(ctx, instance, audit.EventRoleRevoked,
			"role", role.String(),
			"account", account.String())
	})
	if err != nil {
		r.Rejected(ctx, instance, "", err)
	}
	return registry.Internal(err, "failed to revoke role")
}

// RenounceRole drops the caller's own membership. confirmation must equal
// caller.
func (r *Registry) RenounceRole(ctx context.Context, instance, caller domain.Account, role access.Role, confirmation domain.Account) (err error) {
	ctx, done := r.Instrument(ctx, "renounce_role", instance)
	defer done(&err)
	ctx = requestcontext.WithCaller(ctx, caller)

	err = r.run(ctx, instance, func(ctx context.Context, w access.Writer) error {
		changed, err := r.Guard.Renounce(ctx, w, instance, caller, role, confirmation)
		if err != nil || !changed {
			return err
		}
		return r.LogAudit(ctx, instance, audit.EventRoleRevoked,
			"role", role.String(),
			"account", caller.String())
	})
	return registry.Internal(err, "failed to renounce role")
}

func (r *Registry) HasRole(ctx context.Context, instance domain.Account, role access.Role, account domain.Account) (bool, error) {
	ok, err := r.members.HasRole(ctx, instance, role, account)
	if err != nil {
		return false, registry.Internal(err, "failed to check role")
	}
	return ok, nil
}

func (r *Registry) GetRoleAdmin(role access.Role) access.Role {
	return r.Guard.AdminOf(role)
}
