// Package deployment derives registry instance addresses, initializes both
// registries in order and records the result in a per-chain address book.
package deployment

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"magbot/internal/registry"
	"magbot/pkg/domain"
)

const addressSalt = "magbot-deployment"

// VerificationInitializer initializes a verification registry instance.
type VerificationInitializer interface {
	Initialize(ctx context.Context, instance, admin domain.Account) error
}

// CollateralInitializer initializes a collateral registry instance linked
// to a verification registry.
type CollateralInitializer interface {
	Initialize(ctx context.Context, instance, admin, sbtRegistry domain.Account) error
}

// Result lists the instances a deployment ended up with.
type Result struct {
	ChainID      uint64
	Verification domain.Account
	Collateral   domain.Account
	// Created is false when both instances were already recorded.
	Created bool
}

type Deployer struct {
	book         *AddressBook
	verification VerificationInitializer
	collateral   CollateralInitializer
	logger       *slog.Logger
}

type Option func(*Deployer)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Deployer) {
		d.logger = logger
	}
}

func NewDeployer(book *AddressBook, verification VerificationInitializer, collateral CollateralInitializer, opts ...Option) *Deployer {
	d := &Deployer{
		book:         book,
		verification: verification,
		collateral:   collateral,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// InstanceAddress derives the instance address for key on chainID as
// deployed by deployer. The derivation is stable so re-running a deployment
// against a fresh book lands on the same instances.
func InstanceAddress(key string, chainID uint64, deployer domain.Account) domain.Account {
	var chain [8]byte
	binary.BigEndian.PutUint64(chain[:], chainID)
	sum := domain.Keccak256([]byte(addressSalt), []byte(key), chain[:], deployer.Bytes())
	return domain.AccountFromBytes(sum[12:])
}

// Deploy initializes the verification registry, then the collateral registry
// linked to it, with deployer as default admin of both. Entries already in
// the book are reused and instances that are already initialized are left
// untouched, so the call is safe to repeat.
func (d *Deployer) Deploy(ctx context.Context, deployer domain.Account) (*Result, error) {
	if deployer.IsZero() {
		return nil, registry.ErrZeroAddress
	}
	res := &Result{ChainID: d.book.ChainID()}

	sbt, created, err := d.ensure(ctx, KeyVerification, deployer, func(instance domain.Account) error {
		return d.verification.Initialize(ctx, instance, deployer)
	})
	if err != nil {
		return nil, err
	}
	res.Verification = sbt
	res.Created = created

	collateral, created, err := d.ensure(ctx, KeyCollateral, deployer, func(instance domain.Account) error {
		return d.collateral.Initialize(ctx, instance, deployer, sbt)
	})
	if err != nil {
		return nil, err
	}
	res.Collateral = collateral
	res.Created = res.Created || created

	d.logger.InfoContext(ctx, "deployment complete",
		"chain_id", res.ChainID,
		"verification", res.Verification.String(),
		"collateral", res.Collateral.String(),
		"created", res.Created,
	)
	return res, nil
}

func (d *Deployer) ensure(ctx context.Context, key string, deployer domain.Account, initialize func(domain.Account) error) (domain.Account, bool, error) {
	instance, err := d.book.Lookup(key)
	switch {
	case err == nil:
		d.logger.InfoContext(ctx, "reusing recorded instance", "key", key, "instance", instance.String())
		return instance, false, nil
	case errors.Is(err, ErrNotDeployed):
		instance = InstanceAddress(key, d.book.ChainID(), deployer)
	default:
		return domain.ZeroAccount, false, err
	}

	created := true
	if err := initialize(instance); err != nil {
		if !errors.Is(err, registry.ErrAlreadyInitialized) {
			return domain.ZeroAccount, false, fmt.Errorf("initialize %s: %w", key, err)
		}
		created = false
		d.logger.WarnContext(ctx, "instance already initialized, recording it", "key", key, "instance", instance.String())
	}
	if err := d.book.Record(key, instance); err != nil {
		return domain.ZeroAccount, false, err
	}
	d.logger.InfoContext(ctx, "instance deployed", "key", key, "instance", instance.String())
	return instance, created, nil
}
