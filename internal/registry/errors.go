package registry

import (
	"context"
	"errors"
	"fmt"

	"magbot/pkg/domain"
	dErrors "magbot/pkg/domain-errors"
	"magbot/pkg/platform/sentinel"
)

// Error is a registry failure carrying a stable reason name clients can
// switch on, independent of the human-readable message.
type Error struct {
	code   dErrors.Code
	msg    string
	reason string
}

// NewError declares a registry sentinel error.
func NewError(code dErrors.Code, msg, reason string) *Error {
	return &Error{code: code, msg: msg, reason: reason}
}

func (e *Error) Error() string           { return e.msg }
func (e *Error) ErrorCode() dErrors.Code { return e.code }
func (e *Error) Reason() string          { return e.reason }

var (
	ErrZeroAddress        = NewError(dErrors.CodeValidation, "address must not be zero", "ZeroAddress")
	ErrAlreadyInitialized = NewError(dErrors.CodeConflict, "registry already initialized", "InvalidInitialization")
	ErrNotInitialized     = NewError(dErrors.CodeNotFound, "registry not initialized", "NotInitialized")
	ErrEmptyURI           = NewError(dErrors.CodeValidation, "base uri must not be empty", "EmptyURI")
	ErrNonTransferable    = NewError(dErrors.CodeInvariantViolation, "token is not transferable", "NonTransferable")
	ErrInvalidReceiver    = NewError(dErrors.CodeValidation, "receiver must not be zero", "ERC721InvalidReceiver")
	ErrInvalidOperator    = NewError(dErrors.CodeValidation, "invalid operator", "ERC721InvalidOperator")
)

// NonexistentTokenError is returned by reads of an unminted id.
type NonexistentTokenError struct {
	TokenID uint64
}

func (e *NonexistentTokenError) Error() string {
	return fmt.Sprintf("token %d does not exist", e.TokenID)
}
func (e *NonexistentTokenError) ErrorCode() dErrors.Code { return dErrors.CodeNotFound }
func (e *NonexistentTokenError) Reason() string          { return "ERC721NonexistentToken" }

// IncorrectOwnerError is returned when a transfer names the wrong owner.
type IncorrectOwnerError struct {
	Sender  domain.Account
	TokenID uint64
	Owner   domain.Account
}

func (e *IncorrectOwnerError) Error() string {
	return fmt.Sprintf("token %d is owned by %s, not %s", e.TokenID, e.Owner, e.Sender)
}
func (e *IncorrectOwnerError) ErrorCode() dErrors.Code { return dErrors.CodeInvariantViolation }
func (e *IncorrectOwnerError) Reason() string          { return "ERC721IncorrectOwner" }

// InsufficientApprovalError is returned when the operator may not move the token.
type InsufficientApprovalError struct {
	Operator domain.Account
	TokenID  uint64
}

func (e *InsufficientApprovalError) Error() string {
	return fmt.Sprintf("%s is not approved for token %d", e.Operator, e.TokenID)
}
func (e *InsufficientApprovalError) ErrorCode() dErrors.Code { return dErrors.CodeInvariantViolation }
func (e *InsufficientApprovalError) Reason() string          { return "ERC721InsufficientApproval" }

// InvalidApproverError is returned when a caller approves a token it neither
// owns nor operates.
type InvalidApproverError struct {
	Approver domain.Account
}

func (e *InvalidApproverError) Error() string {
	return fmt.Sprintf("%s may not approve this token", e.Approver)
}
func (e *InvalidApproverError) ErrorCode() dErrors.Code { return dErrors.CodeInvariantViolation }
func (e *InvalidApproverError) Reason() string          { return "ERC721InvalidApprover" }

// Internal classifies an unexpected failure. Errors that already carry a
// code pass through unchanged; deadlines map to timeout.
func Internal(err error, msg string) error {
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	var coder dErrors.Coder
	if errors.As(err, &de) || errors.As(err, &coder) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

// RequireInitialized maps a missing state record to ErrNotInitialized. Wrap
// a store's State call with it.
func RequireInitialized[T any](state T, err error) (T, error) {
	if errors.Is(err, sentinel.ErrNotFound) {
		var zero T
		return zero, ErrNotInitialized
	}
	return state, err
}
