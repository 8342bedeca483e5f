package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/helpdesk/api/transport"
	"github.com/fastygo/helpdesk/pkg/httpcontext"
	authUC "github.com/fastygo/helpdesk/usecase/auth"
)

type AuthHandler struct {
	baseHandler
	uc *authUC.UseCase
}

func NewAuthHandler(uc *authUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary Open a session for a user
// @Tags auth
// @Router /login [post]
func (h *AuthHandler) Login(ctx *fasthttp.RequestCtx) {
	var req transport.LoginRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	result, err := h.uc.Login(stdCtx, req.Email)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, result)
}

// @Summary Extend the current session
// @Tags auth
// @Router /refresh [post]
func (h *AuthHandler) Refresh(ctx *fasthttp.RequestCtx) {
	if _, ok := h.identity(ctx); !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	result, err := h.uc.RefreshSession(stdCtx, httpcontext.SessionID(ctx))
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, result)
}

// @Summary Revoke the current session
// @Tags auth
// @Router /logout [post]
func (h *AuthHandler) Logout(ctx *fasthttp.RequestCtx) {
	if _, ok := h.identity(ctx); !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.uc.RevokeSession(stdCtx, httpcontext.SessionID(ctx)); err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, map[string]string{"message": "logged out"})
}
