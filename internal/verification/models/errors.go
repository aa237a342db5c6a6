package models

import (
	"fmt"

	"magbot/internal/registry"
	"magbot/pkg/domain"
	dErrors "magbot/pkg/domain-errors"
)

var (
	ErrEmptyData           = registry.NewError(dErrors.CodeValidation, "verification data must not be empty", "EmptyData")
	ErrEmptyURI            = registry.ErrEmptyURI
	ErrUnknownVerification = registry.NewError(dErrors.CodeNotFound, "no account holds this verification", "UnknownVerification")
)

// AlreadyVerifiedError is returned when minting for an account that already
// holds a credential.
type AlreadyVerifiedError struct {
	Account domain.Account
	TokenID domain.TokenID
}

func (e *AlreadyVerifiedError) Error() string {
	return fmt.Sprintf("account %s already verified with token %d", e.Account, e.TokenID)
}
func (e *AlreadyVerifiedError) ErrorCode() dErrors.Code { return dErrors.CodeConflict }
func (e *AlreadyVerifiedError) Reason() string          { return "AlreadyVerified" }

// DataAlreadySetForError is returned when the verification datum is already
// bound to another token.
type DataAlreadySetForError struct {
	TokenID domain.TokenID
}

func (e *DataAlreadySetForError) Error() string {
	return fmt.Sprintf("verification data already set for token %d", e.TokenID)
}
func (e *DataAlreadySetForError) ErrorCode() dErrors.Code { return dErrors.CodeConflict }
func (e *DataAlreadySetForError) Reason() string          { return "DataAlreadySetFor" }

// UnknownAccountError is returned by lookups for an account without a
// credential.
type UnknownAccountError struct {
	Account domain.Account
}

func (e *UnknownAccountError) Error() string {
	return fmt.Sprintf("account %s holds no credential", e.Account)
}
func (e *UnknownAccountError) ErrorCode() dErrors.Code { return dErrors.CodeNotFound }
func (e *UnknownAccountError) Reason() string          { return "UnknownAccount" }
