package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"magbot/internal/access"
	"magbot/internal/registry"
	"magbot/pkg/domain"
	dErrors "magbot/pkg/domain-errors"
	"magbot/pkg/platform/httputil"
	"magbot/pkg/platform/middleware/auth"
	"magbot/pkg/requestcontext"
)

// Service is the verification registry surface exposed over HTTP.
type Service interface {
	Initialize(ctx context.Context, instance, admin domain.Account) error
	Mint(ctx context.Context, instance, caller, account domain.Account, datum string) (domain.TokenID, error)
	SetBaseURI(ctx context.Context, instance, caller domain.Account, uri string) error
	Transfer(ctx context.Context, instance, caller, from, to domain.Account, id domain.TokenID) error

	GrantRole(ctx context.Context, instance, caller domain.Account, role access.Role, account domain.Account) error
	RevokeRole(ctx context.Context, instance, caller domain.Account, role access.Role, account domain.Account) error
	RenounceRole(ctx context.Context, instance, caller domain.Account, role access.Role, confirmation domain.Account) error
	HasRole(ctx context.Context, instance domain.Account, role access.Role, account domain.Account) (bool, error)
	GetRoleAdmin(role access.Role) access.Role

	NextTokenID(ctx context.Context, instance domain.Account) (domain.TokenID, error)
	BaseURI(ctx context.Context, instance domain.Account) (string, error)
	TokenURI(ctx context.Context, instance domain.Account, id domain.TokenID) (string, error)
	OwnerOf(ctx context.Context, instance domain.Account, id domain.TokenID) (domain.Account, error)
	VerificationByToken(ctx context.Context, instance domain.Account, id domain.TokenID) (string, error)
	TokenByAccount(ctx context.Context, instance, account domain.Account) (domain.TokenID, error)
	VerificationByAccount(ctx context.Context, instance, account domain.Account) (string, error)
	AccountByVerification(ctx context.Context, instance domain.Account, datum string) (domain.Account, error)
	BalanceOf(ctx context.Context, instance, account domain.Account) (uint64, error)
	Metadata() registry.Metadata
	SupportsInterface(id registry.InterfaceID) bool
}

// Handler serves /v1/sbt/{instance}.
type Handler struct {
	logger       *slog.Logger
	service      Service
	jwtValidator auth.JWTValidator
}

func New(service Service, logger *slog.Logger, jwtValidator auth.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		service:      service,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the verification routes. Reads are public; every mutating
// route authenticates the caller.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1/sbt/{instance}", func(r chi.Router) {
		r.Get("/metadata", h.handleMetadata)
		r.Get("/base-uri", h.handleGetBaseURI)
		r.Get("/next-token-id", h.handleNextTokenID)
		r.Get("/tokens/{id}", h.handleGetToken)
		r.Get("/accounts/{account}", h.handleGetAccount)
		r.Get("/verifications", h.handleGetVerification)
		r.Get("/interfaces/{id}", h.handleSupportsInterface)
		r.Get("/roles/{role}/{account}", h.handleHasRole)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(h.jwtValidator, h.logger))
			r.Post("/initialize", h.handleInitialize)
			r.Post("/mint", h.handleMint)
			r.Put("/base-uri", h.handleSetBaseURI)
			r.Post("/transfer", h.handleTransfer)
			r.Post("/roles/{role}/grant", h.handleGrantRole)
			r.Post("/roles/{role}/revoke", h.handleRevokeRole)
			r.Post("/roles/{role}/renounce", h.handleRenounceRole)
		})
	})
}

func (h *Handler) handleInitialize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instance, ok := h.instance(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[initializeRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := h.service.Initialize(ctx, instance, req.Admin); err != nil {
		h.fail(ctx, w, "initialize", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, stateResponse{Instance: instance, NextTokenID: 1})
}

func (h *Handler) handleMint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instance, ok := h.instance(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[mintRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	id, err := h.service.Mint(ctx, instance, requestcontext.Caller(ctx), req.Account, req.Data)
	if err != nil {
		h.fail(ctx, w, "mint", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, mintResponse{TokenID: uint64(id), Account: req.Account})
}

func (h *Handler) handleSetBaseURI(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instance, ok := h.instance(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[baseURIRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := h.service.SetBaseURI(ctx, instance, requestcontext.Caller(ctx), req.URI); err != nil {
		h.fail(ctx, w, "set base uri", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instance, ok := h.instance(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[transferRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	err := h.service.Transfer(ctx, instance, requestcontext.Caller(ctx), req.From, req.To, domain.TokenID(req.TokenID))
	if err != nil {
		h.fail(ctx, w, "transfer", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGrantRole(w http.ResponseWriter, r *http.Request) {
	h.changeRole(w, r, "grant role", h.service.GrantRole)
}

func (h *Handler) handleRevokeRole(w http.ResponseWriter, r *http.Request) {
	h.changeRole(w, r, "revoke role", h.service.RevokeRole)
}

func (h *Handler) handleRenounceRole(w http.ResponseWriter, r *http.Request) {
	h.changeRole(w, r, "renounce role", h.service.RenounceRole)
}

type roleChange func(ctx context.Context, instance, caller domain.Account, role access.Role, account domain.Account) error

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request, op string, change roleChange) {
	ctx := r.Context()
	instance, ok := h.instance(w, r)
	if !ok {
		return
	}
	role, err := access.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[roleRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := change(ctx, instance, requestcontext.Caller(ctx), role, req.Account); err != nil {
		h.fail(ctx, w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHasRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instance, ok := h.instance(w, r)
	if !ok {
		return
	}
	role, err := access.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	account, err := httputil.AccountParam(r, "account")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	has, err := h.service.HasRole(ctx, instance, role, account)
	if err != nil {
		h.fail(ctx, w, "has role", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, roleResponse{
		Role:      role,
		AdminRole: h.service.GetRoleAdmin(role),
		Account:   account,
		HasRole:   has,
	})
}

func (h *Handler) handleMetadata(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.service.Metadata())
}

func (h *Handler) handleGetBaseURI(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instance, ok := h.instance(w, r)
	if !ok {
		return
	}
	uri, err := h.service.BaseURI(ctx, instance)
	if err != nil {
		h.fail(ctx, w, "base uri", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, baseURIResponse{BaseURI: uri})
}

func (h *Handler) handleNextTokenID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instance, ok := h.instance(w, r)
	if !ok {
		return
	}
	next, err := h.service.NextTokenID(ctx, instance)
	if err != nil {
		h.fail(ctx, w, "next token id", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stateResponse{Instance: instance, NextTokenID: uint64(next)})
}

func (h *Handler) handleGetToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instance, ok := h.instance(w, r)
	if !ok {
		return
	}
	raw, err := httputil.Uint64Param(r, "id")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	id := domain.TokenID(raw)
	owner, err := h.service.OwnerOf(ctx, instance, id)
	if err != nil {
		h.fail(ctx, w, "owner of", err)
		return
	}
	datum, err := h.service.VerificationByToken(ctx, instance, id)
	if err != nil {
		h.fail(ctx, w, "verification by token", err)
		return
	}
	uri, err := h.service.TokenURI(ctx, instance, id)
	if err != nil {
		h.fail(ctx, w, "token uri", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tokenResponse{
		TokenID:      raw,
		Owner:        owner,
		Verification: datum,
		TokenURI:     uri,
	})
}

// handleGetAccount answers for any account; a miss reports token_id 0 and
// verified false rather than 404.
func (h *Handler) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instance, ok := h.instance(w, r)
	if !ok {
		return
	}
	account, err := httputil.AccountParam(r, "account")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	id, err := h.service.TokenByAccount(ctx, instance, account)
	if err != nil {
		h.fail(ctx, w, "token by account", err)
		return
	}
	balance, err := h.service.BalanceOf(ctx, instance, account)
	if err != nil {
		h.fail(ctx, w, "balance of", err)
		return
	}
	resp := accountResponse{
		Account:  account,
		TokenID:  uint64(id),
		Verified: !id.IsNil(),
		Balance:  balance,
	}
	if resp.Verified {
		resp.Verification, err = h.service.VerificationByAccount(ctx, instance, account)
		if err != nil {
			h.fail(ctx, w, "verification by account", err)
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// handleGetVerification resolves ?data= to its holder. Unknown data is 404.
func (h *Handler) handleGetVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instance, ok := h.instance(w, r)
	if !ok {
		return
	}
	datum := r.URL.Query().Get("data")
	if datum == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "data query parameter is required"))
		return
	}
	account, err := h.service.AccountByVerification(ctx, instance, datum)
	if err != nil {
		h.fail(ctx, w, "account by verification", err)
		return
	}
	id, err := h.service.TokenByAccount(ctx, instance, account)
	if err != nil {
		h.fail(ctx, w, "token by account", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, accountResponse{
		Account:      account,
		TokenID:      uint64(id),
		Verification: datum,
		Verified:     true,
		Balance:      1,
	})
}

func (h *Handler) handleSupportsInterface(w http.ResponseWriter, r *http.Request) {
	id, err := registry.ParseInterfaceID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, interfaceResponse{
		InterfaceID: id.String(),
		Supported:   h.service.SupportsInterface(id),
	})
}

func (h *Handler) instance(w http.ResponseWriter, r *http.Request) (domain.Account, bool) {
	instance, err := httputil.AccountParam(r, "instance")
	if err != nil {
		httputil.WriteError(w, err)
		return domain.ZeroAccount, false
	}
	return instance, true
}

// fail logs at a level matching the outcome and writes the error response.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if code := dErrors.GetCode(err); code == dErrors.CodeInternal || code == dErrors.CodeTimeout {
		h.logger.ErrorContext(ctx, "verification registry "+op+" failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	} else {
		h.logger.WarnContext(ctx, "verification registry "+op+" rejected",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}
