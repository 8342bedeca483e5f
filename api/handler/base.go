package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/helpdesk/api/transport"
	"github.com/fastygo/helpdesk/domain"
	"github.com/fastygo/helpdesk/pkg/httpcontext"
	"github.com/fastygo/helpdesk/repository"
)

const (
	defaultPageSize = 50
	internalMessage = "internal server error"
)

type baseHandler struct {
	adapter *httpcontext.Adapter
	logger  *zap.Logger
}

func newBaseHandler(adapter *httpcontext.Adapter, logger *zap.Logger) baseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return baseHandler{adapter: adapter, logger: logger}
}

func (h baseHandler) requestContext(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	if h.adapter != nil {
		return h.adapter.Attach(ctx)
	}
	return context.WithCancel(context.Background())
}

func (h baseHandler) respondJSON(ctx *fasthttp.RequestCtx, status int, payload transport.Envelope) {
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	body, _ := json.Marshal(payload)
	ctx.SetBody(body)
}

func (h baseHandler) respondSuccess(ctx *fasthttp.RequestCtx, status int, data interface{}) {
	h.respondJSON(ctx, status, transport.NewSuccess(data, nil))
}

func (h baseHandler) respondPage(ctx *fasthttp.RequestCtx, data interface{}, page transport.Page) {
	h.respondJSON(ctx, http.StatusOK, transport.NewSuccess(data, page))
}

func (h baseHandler) respondInvalid(ctx *fasthttp.RequestCtx, message string) {
	h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), message, nil))
}

// respondError maps err onto the envelope. Internal failures are logged in
// full and reported to the client without detail.
func (h baseHandler) respondError(ctx *fasthttp.RequestCtx, err error) {
	status, code := mapError(err)
	message := internalMessage

	var dErr *domain.Error
	if status < http.StatusInternalServerError || code == string(domain.ErrCodeConfigurationMissing) {
		if errors.As(err, &dErr) {
			message = dErr.Message
		}
	}

	if status >= http.StatusInternalServerError {
		logger := h.logger.With(
			zap.String("request_id", httpcontext.RequestID(ctx)),
			zap.String("method", string(ctx.Method())),
			zap.String("path", string(ctx.Path())),
		)
		if code == string(domain.ErrCodeConfigurationMissing) {
			logger.Error("operator configuration missing", zap.Error(err))
		} else {
			logger.Error("request failed", zap.Error(err))
		}
	}
	h.respondJSON(ctx, status, transport.NewError(code, message, nil))
}

// identity returns the authenticated caller or answers 401.
func (h baseHandler) identity(ctx *fasthttp.RequestCtx) (domain.Identity, bool) {
	id, ok := httpcontext.Identity(ctx)
	if !ok || id.UserID == "" {
		h.respondJSON(ctx, http.StatusUnauthorized, transport.NewError(string(domain.ErrCodeUnauthorized), "unauthorized", nil))
		return domain.Identity{}, false
	}
	return id, true
}

func (h baseHandler) decode(ctx *fasthttp.RequestCtx, dst interface{}) bool {
	if err := json.Unmarshal(ctx.PostBody(), dst); err != nil {
		h.respondInvalid(ctx, "invalid payload")
		return false
	}
	return true
}

func mapError(err error) (int, string) {
	switch {
	case domain.IsDomainError(err, domain.ErrCodeUnauthorized):
		return http.StatusUnauthorized, string(domain.ErrCodeUnauthorized)
	case domain.IsDomainError(err, domain.ErrCodeForbidden):
		return http.StatusForbidden, string(domain.ErrCodeForbidden)
	case domain.IsDomainError(err, domain.ErrCodeInvalid):
		return http.StatusBadRequest, string(domain.ErrCodeInvalid)
	case domain.IsDomainError(err, domain.ErrCodeNotFound):
		return http.StatusNotFound, string(domain.ErrCodeNotFound)
	case domain.IsDomainError(err, domain.ErrCodeConflict):
		return http.StatusConflict, string(domain.ErrCodeConflict)
	case domain.IsDomainError(err, domain.ErrCodeConfigurationMissing):
		return http.StatusInternalServerError, string(domain.ErrCodeConfigurationMissing)
	default:
		return http.StatusInternalServerError, string(domain.ErrCodeInternal)
	}
}

func pageFromQuery(ctx *fasthttp.RequestCtx) transport.Page {
	page := transport.Page{
		Limit:  parseInt(string(ctx.QueryArgs().Peek("limit")), defaultPageSize),
		Offset: parseInt(string(ctx.QueryArgs().Peek("offset")), 0),
	}
	if page.Limit <= 0 {
		page.Limit = defaultPageSize
	}
	page.Limit = repository.ClampPageSize(page.Limit)
	if page.Offset < 0 {
		page.Offset = 0
	}
	return page
}

func pathParam(ctx *fasthttp.RequestCtx, name string) string {
	value, _ := ctx.UserValue(name).(string)
	return value
}

func parseInt(value string, fallback int) int {
	if v, err := strconv.Atoi(value); err == nil {
		return v
	}
	return fallback
}
