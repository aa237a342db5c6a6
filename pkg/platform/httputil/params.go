package httputil

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"magbot/pkg/domain"
	dErrors "magbot/pkg/domain-errors"
)

// AccountParam parses the named chi URL parameter as an account.
func AccountParam(r *http.Request, name string) (domain.Account, error) {
	return domain.ParseAccount(chi.URLParam(r, name))
}

// Uint64Param parses the named chi URL parameter as a decimal id.
func Uint64Param(r *http.Request, name string) (uint64, error) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, name+" must be a decimal integer")
	}
	return v, nil
}
