package access

import (
	"errors"
	"fmt"

	"magbot/pkg/domain"
	dErrors "magbot/pkg/domain-errors"
)

var (
	// ErrUnauthorized matches every UnauthorizedError via errors.Is.
	ErrUnauthorized = errors.New("unauthorized account")

	// ErrBadConfirmation is returned when a renounce names someone other than the caller.
	ErrBadConfirmation = &dErrors.Error{Code: dErrors.CodeValidation, Message: "renounce confirmation must equal the caller"}
)

// UnauthorizedError reports the account that lacked a role.
type UnauthorizedError struct {
	Account domain.Account
	Role    Role
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("account %s is missing role %s", e.Account, e.Role)
}

func (e *UnauthorizedError) ErrorCode() dErrors.Code { return dErrors.CodeForbidden }

func (e *UnauthorizedError) Reason() string { return "AccessControlUnauthorizedAccount" }

func (e *UnauthorizedError) Is(target error) bool { return target == ErrUnauthorized }
