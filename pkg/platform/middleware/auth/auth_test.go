package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"magbot/pkg/domain"
	"magbot/pkg/requestcontext"
)

type stubValidator struct {
	claims *JWTClaims
	err    error
}

func (s stubValidator) ValidateToken(string) (*JWTClaims, error) {
	return s.claims, s.err
}

type RequireAuthSuite struct {
	suite.Suite
	logger *slog.Logger
}

func TestRequireAuthSuite(t *testing.T) {
	suite.Run(t, new(RequireAuthSuite))
}

func (s *RequireAuthSuite) SetupTest() {
	s.logger = slog.New(slog.DiscardHandler)
}

func (s *RequireAuthSuite) serve(v JWTValidator, header string) (*httptest.ResponseRecorder, domain.Account) {
	var seen domain.Account
	h := RequireAuth(v, s.logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.Caller(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodPost, "/v1/sbt/x/mint", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr, seen
}

func (s *RequireAuthSuite) TestRequireAuth() {
	account := domain.MustParseAccount("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")

	s.Run("valid token sets caller", func() {
		rr, seen := s.serve(stubValidator{claims: &JWTClaims{Subject: account.String()}}, "Bearer tok")
		s.Equal(http.StatusNoContent, rr.Code)
		s.Equal(account, seen)
	})

	s.Run("missing header", func() {
		rr, _ := s.serve(stubValidator{}, "")
		s.Equal(http.StatusUnauthorized, rr.Code)
		assert.Contains(s.T(), rr.Body.String(), `"error":"unauthorized"`)
	})

	s.Run("wrong scheme", func() {
		rr, _ := s.serve(stubValidator{}, "Basic abc")
		s.Equal(http.StatusUnauthorized, rr.Code)
	})

	s.Run("invalid token", func() {
		rr, _ := s.serve(stubValidator{err: errors.New("bad signature")}, "Bearer tok")
		s.Equal(http.StatusUnauthorized, rr.Code)
	})

	s.Run("subject is not an account", func() {
		rr, _ := s.serve(stubValidator{claims: &JWTClaims{Subject: "user-123"}}, "Bearer tok")
		s.Equal(http.StatusUnauthorized, rr.Code)
	})

	s.Run("zero account subject", func() {
		rr, _ := s.serve(stubValidator{claims: &JWTClaims{Subject: domain.ZeroAccount.String()}}, "Bearer tok")
		s.Equal(http.StatusUnauthorized, rr.Code)
	})
}
