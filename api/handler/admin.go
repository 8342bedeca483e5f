package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/helpdesk/api/transport"
	"github.com/fastygo/helpdesk/pkg/httpcontext"
	"github.com/fastygo/helpdesk/usecase/access"
)

// AdminHandler serves the business-wide views available to admins.
type AdminHandler struct {
	baseHandler
	access *access.Service
}

func NewAdminHandler(svc *access.Service, adapter *httpcontext.Adapter, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		baseHandler: newBaseHandler(adapter, logger),
		access:      svc,
	}
}

// @Summary List conversations of the admin's business
// @Tags admin
// @Router /admin/conversations [get]
func (h *AdminHandler) ListConversations(ctx *fasthttp.RequestCtx) {
	id, ok := h.identity(ctx)
	if !ok {
		return
	}
	page := pageFromQuery(ctx)

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	conversations, err := h.access.ListConversations(stdCtx, id, access.Page{Limit: page.Limit, Offset: page.Offset})
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	page.Count = len(conversations)
	h.respondPage(ctx, conversations, page)
}

// @Summary Fetch a conversation with its messages
// @Tags admin
// @Router /admin/conversations/{id} [get]
func (h *AdminHandler) GetConversation(ctx *fasthttp.RequestCtx) {
	id, ok := h.identity(ctx)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	conv, err := h.access.GetConversation(stdCtx, id, pathParam(ctx, "id"))
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, conv)
}

// @Summary Move a conversation to another department
// @Tags admin
// @Router /admin/conversations/{id}/reassign [patch]
func (h *AdminHandler) Reassign(ctx *fasthttp.RequestCtx) {
	id, ok := h.identity(ctx)
	if !ok {
		return
	}
	var req transport.ReassignRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	conv, err := h.access.Reassign(stdCtx, id, pathParam(ctx, "id"), req.DepartmentID)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, conv)
}

// @Summary List agents of the admin's business
// @Tags admin
// @Router /admin/agents [get]
func (h *AdminHandler) ListAgents(ctx *fasthttp.RequestCtx) {
	id, ok := h.identity(ctx)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	agents, err := h.access.ListAgents(stdCtx, id)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, agents)
}

// @Summary List departments with conversation counts
// @Tags admin
// @Router /admin/departments [get]
func (h *AdminHandler) ListDepartments(ctx *fasthttp.RequestCtx) {
	id, ok := h.identity(ctx)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	departments, err := h.access.ListDepartments(stdCtx, id)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, departments)
}
