package testutil

import (
	"errors"
	"net/http"

	"magbot/pkg/domain"
	authmw "magbot/pkg/platform/middleware/auth"
)

// AccountTokenValidator accepts any bearer token that is itself an account
// and uses it as the subject. It lets handler tests authenticate without
// signing JWTs.
type AccountTokenValidator struct{}

func (AccountTokenValidator) ValidateToken(token string) (*authmw.JWTClaims, error) {
	if _, err := domain.ParseAccount(token); err != nil {
		return nil, errors.New("token is not an account")
	}
	return &authmw.JWTClaims{Subject: token, Client: "test"}, nil
}

// BearerAs authenticates req as account under AccountTokenValidator.
func BearerAs(req *http.Request, account domain.Account) *http.Request {
	req.Header.Set("Authorization", "Bearer "+account.String())
	return req
}
