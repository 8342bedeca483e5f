package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/helpdesk/api/transport"
	"github.com/fastygo/helpdesk/pkg/httpcontext"
	"github.com/fastygo/helpdesk/usecase/access"
)

// AgentHandler serves the department-scoped chat views.
type AgentHandler struct {
	baseHandler
	access *access.Service
}

func NewAgentHandler(svc *access.Service, adapter *httpcontext.Adapter, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{
		baseHandler: newBaseHandler(adapter, logger),
		access:      svc,
	}
}

// @Summary List chats of the agent's department
// @Tags agent
// @Router /agent/chats [get]
func (h *AgentHandler) ListChats(ctx *fasthttp.RequestCtx) {
	id, ok := h.identity(ctx)
	if !ok {
		return
	}
	page := pageFromQuery(ctx)

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	chats, err := h.access.ListChats(stdCtx, id, access.Page{Limit: page.Limit, Offset: page.Offset})
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	page.Count = len(chats)
	h.respondPage(ctx, chats, page)
}

// @Summary Fetch a chat
// @Tags agent
// @Router /agent/chats/{id} [get]
func (h *AgentHandler) GetChat(ctx *fasthttp.RequestCtx) {
	id, ok := h.identity(ctx)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	chat, err := h.access.GetChat(stdCtx, id, pathParam(ctx, "id"))
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, chat)
}

// @Summary Reply to a chat
// @Tags agent
// @Router /agent/chats/{id}/messages [post]
func (h *AgentHandler) Reply(ctx *fasthttp.RequestCtx) {
	id, ok := h.identity(ctx)
	if !ok {
		return
	}
	var req transport.ReplyRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	msg, err := h.access.Reply(stdCtx, id, pathParam(ctx, "id"), req.Content)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, msg)
}

// @Summary Close a chat
// @Tags agent
// @Router /agent/chats/{id}/close [patch]
func (h *AgentHandler) Close(ctx *fasthttp.RequestCtx) {
	id, ok := h.identity(ctx)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	conv, err := h.access.Close(stdCtx, id, pathParam(ctx, "id"))
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, transport.CloseResponse{
		Message:      "conversation closed",
		Conversation: conv,
	})
}
