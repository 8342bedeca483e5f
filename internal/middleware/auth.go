package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/helpdesk/api/transport"
	"github.com/fastygo/helpdesk/domain"
	"github.com/fastygo/helpdesk/pkg/httpcontext"
)

type Middleware func(fasthttp.RequestHandler) fasthttp.RequestHandler

// Authenticator resolves a bearer token to the caller's identity and session.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Identity, string, error)
}

// Authenticate rejects requests without a valid bearer token and attaches the
// resolved identity to the request otherwise.
func Authenticate(auth Authenticator, timeout time.Duration, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			tokenString := extractToken(ctx)
			if tokenString == "" {
				reject(ctx, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "unauthorized")
				return
			}

			stdCtx, cancel := context.WithTimeout(context.Background(), timeout)
			id, sessionID, err := auth.Authenticate(stdCtx, tokenString)
			cancel()
			if err != nil {
				if domain.IsDomainError(err, domain.ErrCodeUnauthorized) {
					logger.Debug("rejected bearer token", zap.String("request_id", httpcontext.RequestID(ctx)))
					reject(ctx, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "unauthorized")
					return
				}
				logger.Error("authentication failed",
					zap.String("request_id", httpcontext.RequestID(ctx)),
					zap.Error(err),
				)
				reject(ctx, http.StatusInternalServerError, domain.ErrCodeInternal, "internal server error")
				return
			}

			httpcontext.SetIdentity(ctx, id, sessionID)
			next(ctx)
		}
	}
}

// RequireRole lets through only callers with the given role. It must run
// after Authenticate.
func RequireRole(role domain.Role) Middleware {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			id, ok := httpcontext.Identity(ctx)
			if !ok {
				reject(ctx, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "unauthorized")
				return
			}
			if id.Role != role {
				reject(ctx, http.StatusForbidden, domain.ErrCodeForbidden, "forbidden")
				return
			}
			next(ctx)
		}
	}
}

// Chain applies middlewares so the first one listed runs first.
func Chain(h fasthttp.RequestHandler, mws ...Middleware) fasthttp.RequestHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func reject(ctx *fasthttp.RequestCtx, status int, code domain.ErrorCode, message string) {
	body, _ := json.Marshal(transport.NewError(string(code), message, nil))
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(body)
}

func extractToken(ctx *fasthttp.RequestCtx) string {
	header := strings.TrimSpace(string(ctx.Request.Header.Peek("Authorization")))
	if header == "" {
		return ""
	}
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}
