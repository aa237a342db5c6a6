package models

import (
	"fmt"

	"magbot/pkg/domain"
	dErrors "magbot/pkg/domain-errors"
)

// AccountHasNotSBTError is returned when minting for an account that holds no
// credential in the linked verification registry.
type AccountHasNotSBTError struct {
	Account domain.Account
}

func (e *AccountHasNotSBTError) Error() string {
	return fmt.Sprintf("account %s holds no credential", e.Account)
}
func (e *AccountHasNotSBTError) ErrorCode() dErrors.Code { return dErrors.CodeInvariantViolation }
func (e *AccountHasNotSBTError) Reason() string          { return "AccountHasNotSBT" }

// AccountHasCollateralError is returned when the account's credential is
// already linked to a collateral token.
type AccountHasCollateralError struct {
	Account      domain.Account
	CollateralID domain.CollateralID
}

func (e *AccountHasCollateralError) Error() string {
	return fmt.Sprintf("account %s already has collateral %d", e.Account, e.CollateralID)
}
func (e *AccountHasCollateralError) ErrorCode() dErrors.Code { return dErrors.CodeConflict }
func (e *AccountHasCollateralError) Reason() string          { return "AccountHasCollateral" }
