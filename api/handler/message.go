package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/helpdesk/api/transport"
	"github.com/fastygo/helpdesk/domain"
	"github.com/fastygo/helpdesk/pkg/httpcontext"
	"github.com/fastygo/helpdesk/usecase/routing"
	"github.com/fastygo/helpdesk/usecase/tenant"
)

type MessageHandler struct {
	baseHandler
	engine  *routing.Engine
	tenants *tenant.UseCase
}

func NewMessageHandler(engine *routing.Engine, tenants *tenant.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{
		baseHandler: newBaseHandler(adapter, logger),
		engine:      engine,
		tenants:     tenants,
	}
}

// @Summary Route an inbound customer message
// @Tags messages
// @Router /messages [post]
func (h *MessageHandler) Route(ctx *fasthttp.RequestCtx) {
	var req transport.InboundMessageRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	result, err := h.engine.RouteInboundMessage(stdCtx, routing.InboundMessage{
		BusinessID: req.BusinessID,
		Content:    req.Content,
		Sender:     domain.Sender(req.Sender),
	})
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, result)
}

// @Summary List business ids
// @Tags messages
// @Router /business [get]
func (h *MessageHandler) ListBusinesses(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	businesses, err := h.tenants.ListBusinesses(stdCtx)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	out := make([]transport.BusinessRef, 0, len(businesses))
	for _, b := range businesses {
		out = append(out, transport.BusinessRef{ID: b.ID})
	}
	h.respondSuccess(ctx, http.StatusOK, out)
}
