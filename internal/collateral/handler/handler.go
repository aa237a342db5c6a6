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

// Service is the collateral registry surface exposed over HTTP.
type Service interface {
	Initialize(ctx context.Context, instance, admin, sbtRegistry domain.Account) error
	Mint(ctx context.Context, instance, caller, account domain.Account) (domain.CollateralID, error)
	SetSBT(ctx context.Context, instance, caller, sbtRegistry domain.Account) error
	SetBaseURI(ctx context.Context, instance, caller domain.Account, uri string) error
	Pause(ctx context.Context, instance, caller domain.Account) error
	Unpause(ctx context.Context, instance, caller domain.Account) error

	TransferFrom(ctx context.Context, instance, caller, from, to domain.Account, id domain.CollateralID) error
	Approve(ctx context.Context, instance, caller, approved domain.Account, id domain.CollateralID) error
	SetApprovalForAll(ctx context.Context, instance, caller, operator domain.Account, approved bool) error
	GetApproved(ctx context.Context, instance domain.Account, id domain.CollateralID) (domain.Account, error)
	IsApprovedForAll(ctx context.Context, instance, owner, operator domain.Account) (bool, error)

	GrantRole(ctx context.Context, instance, caller domain.Account, role access.Role, account domain.Account) error
	RevokeRole(ctx context.Context, instance, caller domain.Account, role access.Role, account domain.Account) error
	RenounceRole(ctx context.Context, instance, caller domain.Account, role access.Role, confirmation domain.Account) error
	HasRole(ctx context.Context, instance domain.Account, role access.Role, account domain.Account) (bool, error)
	GetRoleAdmin(role access.Role) access.Role

	NextCollateralID(ctx context.Context, instance domain.Account) (domain.CollateralID, error)
	SBT(ctx context.Context, instance domain.Account) (domain.Account, error)
	Paused(ctx context.Context, instance domain.Account) (bool, error)
	BaseURI(ctx context.Context, instance domain.Account) (string, error)
	TokenURI(ctx context.Context, instance domain.Account, id domain.CollateralID) (string, error)
	OwnerOf(ctx context.Context, instance domain.Account, id domain.CollateralID) (domain.Account, error)
	SBTByCollateral(ctx context.Context, instance domain.Account, id domain.CollateralID) (domain.TokenID, error)
	CollateralBySBT(ctx context.Context, instance domain.Account, sbt domain.TokenID) (domain.CollateralID, error)
	BalanceOf(ctx context.Context, instance, owner domain.Account) (uint64, error)
	Metadata() registry.Metadata
	SupportsInterface(id registry.InterfaceID) bool
}

// Handler serves /v1/collateral/{instance}.
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

func (h *Handler) Register(r chi.Router) {
	r.Route("/v1/collateral/{instance}", func(r chi.Router) {
		r.Get("/metadata", h.handleMetadata)
		r.Get("/sbt", h.handleGetSBT)
		r.Get("/paused", h.handlePaused)
		r.Get("/base-uri", h.handleGetBaseURI)
		r.Get("/next-collateral-id", h.handleNextCollateralID)
		r.Get("/tokens/{id}", h.handleGetToken)
		r.Get("/by-sbt/{tokenID}", h.handleBySBT)
		r.Get("/accounts/{account}", h.handleGetAccount)
		r.Get("/operators/{owner}/{operator}", h.handleIsApprovedForAll)
		r.Get("/interfaces/{id}", h.handleSupportsInterface)
		r.Get("/roles/{role}/{account}", h.handleHasRole)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(h.jwtValidator, h.logger))
			r.Post("/initialize", h.handleInitialize)
			r.Post("/mint", h.handleMint)
			r.Put("/base-uri", h.handleSetBaseURI)
			r.Put("/sbt", h.handleSetSBT)
			r.Post("/pause", h.handlePause)
			r.Post("/unpause", h.handleUnpause)
			r.Post("/transfer", h.handleTransfer)
			r.Post("/approve", h.handleApprove)
			r.Post("/approval-for-all", h.handleApprovalForAll)
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
	if err := h.service.Initialize(ctx, instance, req.Admin, req.SBT); err != nil {
		h.fail(ctx, w, "initialize", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, stateResponse{Instance: instance, SBT: req.SBT, NextCollateralID: 1})
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
	id, err := h.service.Mint(ctx, instance, requestcontext.Caller(ctx), req.Account)
	if err != nil {
		h.fail(ctx, w, "mint", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, mintResponse{CollateralID: uint64(id), Account: req.Account})
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

func (h *Handler) handleSetSBT(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instance, ok := h.instance(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[sbtRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := h.service.SetSBT(ctx, instance, requestcontext.Caller(ctx), req.SBT); err != nil {
		h.fail(ctx, w, "set sbt", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	h.switchPause(w, r, "pause", h.service.Pause)
}

func (h *Handler) handleUnpause(w http.ResponseWriter, r *http.Request) {
	h.switchPause(w, r, "unpause", h.service.Unpause)
}

func (h *Handler) switchPause(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, instance, caller domain.Account) error) {
	ctx := r.Context()
	instance, ok := h.instance(w, r)
	if !ok {
		return
	}
	if err := fn(ctx, instance, requestcontext.Caller(ctx)); err != nil {
		h.fail(ctx, w, op, err)
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
	err := h.service.TransferFrom(ctx, instance, requestcontext.Caller(ctx), req.From, req.To, domain.CollateralID(req.CollateralID))
	if err != nil {
		h.fail(ctx, w, "transfer", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instance, ok := h.instance(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[approveRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	err := h.service.Approve(ctx, instance, requestcontext.Caller(ctx), req.Approved, domain.CollateralID(req.CollateralID))
	if err != nil {
		h.fail(ctx, w, "approve", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleApprovalForAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instance, ok := h.instance(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[approvalForAllRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := h.service.SetApprovalForAll(ctx, instance, requestcontext.Caller(ctx), req.Operator, req.Approved); err != nil {
		h.fail(ctx, w, "set approval for all", err)
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

func (h *Handler) handleGetSBT(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instance, ok := h.instance(w, r)
	if !ok {
		return
	}
	sbt, err := h.service.SBT(ctx, instance)
	if err != nil {
		h.fail(ctx, w, "sbt", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sbtResponse{SBT: sbt})
}

func (h *Handler) handlePaused(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instance, ok := h.instance(w, r)
	if !ok {
		return
	}
	paused, err := h.service.Paused(ctx, instance)
	if err != nil {
		h.fail(ctx, w, "paused", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pausedResponse{Paused: paused})
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

func (h *Handler) handleNextCollateralID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instance, ok := h.instance(w, r)
	if !ok {
		return
	}
	next, err := h.service.NextCollateralID(ctx, instance)
	if err != nil {
		h.fail(ctx, w, "next collateral id", err)
		return
	}
	sbt, err := h.service.SBT(ctx, instance)
	if err != nil {
		h.fail(ctx, w, "sbt", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stateResponse{Instance: instance, SBT: sbt, NextCollateralID: uint64(next)})
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
	id := domain.CollateralID(raw)
	owner, err := h.service.OwnerOf(ctx, instance, id)
	if err != nil {
		h.fail(ctx, w, "owner of", err)
		return
	}
	sbt, err := h.service.SBTByCollateral(ctx, instance, id)
	if err != nil {
		h.fail(ctx, w, "sbt by collateral", err)
		return
	}
	approved, err := h.service.GetApproved(ctx, instance, id)
	if err != nil {
		h.fail(ctx, w, "get approved", err)
		return
	}
	uri, err := h.service.TokenURI(ctx, instance, id)
	if err != nil {
		h.fail(ctx, w, "token uri", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tokenResponse{
		CollateralID: raw,
		Owner:        owner,
		SBTTokenID:   uint64(sbt),
		Approved:     approved,
		TokenURI:     uri,
	})
}

// handleBySBT reports collateral_id 0 when the credential backs no token.
func (h *Handler) handleBySBT(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instance, ok := h.instance(w, r)
	if !ok {
		return
	}
	raw, err := httputil.Uint64Param(r, "tokenID")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	id, err := h.service.CollateralBySBT(ctx, instance, domain.TokenID(raw))
	if err != nil {
		h.fail(ctx, w, "collateral by sbt", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, bySBTResponse{SBTTokenID: raw, CollateralID: uint64(id)})
}

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
	balance, err := h.service.BalanceOf(ctx, instance, account)
	if err != nil {
		h.fail(ctx, w, "balance of", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, accountResponse{Account: account, Balance: balance})
}

func (h *Handler) handleIsApprovedForAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instance, ok := h.instance(w, r)
	if !ok {
		return
	}
	owner, err := httputil.AccountParam(r, "owner")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	operator, err := httputil.AccountParam(r, "operator")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	approved, err := h.service.IsApprovedForAll(ctx, instance, owner, operator)
	if err != nil {
		h.fail(ctx, w, "is approved for all", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, operatorResponse{Owner: owner, Operator: operator, Approved: approved})
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

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if code := dErrors.GetCode(err); code == dErrors.CodeInternal || code == dErrors.CodeTimeout {
		h.logger.ErrorContext(ctx, "collateral registry "+op+" failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	} else {
		h.logger.WarnContext(ctx, "collateral registry "+op+" rejected",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}
