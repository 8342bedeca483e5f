package httpcontext

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/fastygo/helpdesk/domain"
	appLogger "github.com/fastygo/helpdesk/pkg/logger"
)

// Key represents a context value key exported for reuse.
type Key string

const (
	KeyRemoteAddr Key = "remote_addr"
	KeyUserAgent  Key = "user_agent"
	KeyIdentity   Key = "identity"
	KeySessionID  Key = "session_id"
)

const requestIDHeader = "X-Request-ID"

// Adapter converts fasthttp.RequestCtx into a stdlib context with deadlines and metadata.
type Adapter struct {
	timeout time.Duration
}

// NewAdapter constructs a new Adapter using the provided timeout.
func NewAdapter(timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Adapter{
		timeout: timeout,
	}
}

// Attach creates a request-scoped context bounded by the adapter timeout and
// carrying the request id, caller identity and client metadata.
func (a *Adapter) Attach(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	stdCtx, cancel := context.WithTimeout(context.Background(), a.timeout)

	reqID := RequestID(ctx)
	stdCtx = appLogger.ContextWithRequestID(stdCtx, reqID)

	if remoteAddr := ctx.RemoteAddr(); remoteAddr != nil {
		stdCtx = context.WithValue(stdCtx, KeyRemoteAddr, remoteAddr.String())
	}
	if ua := string(ctx.Request.Header.UserAgent()); ua != "" {
		stdCtx = context.WithValue(stdCtx, KeyUserAgent, ua)
	}
	if id, ok := Identity(ctx); ok {
		stdCtx = context.WithValue(stdCtx, KeyIdentity, id)
	}

	return stdCtx, cancel
}

// RequestID returns the request id, assigning one and echoing it in the
// response header on first use.
func RequestID(ctx *fasthttp.RequestCtx) string {
	if ctx == nil {
		return uuid.NewString()
	}
	if existing, ok := ctx.UserValue(requestIDHeader).(string); ok && existing != "" {
		return existing
	}
	reqID := strings.TrimSpace(string(ctx.Request.Header.Peek(requestIDHeader)))
	if reqID == "" {
		reqID = uuid.NewString()
	}
	ctx.SetUserValue(requestIDHeader, reqID)
	ctx.Response.Header.Set(requestIDHeader, reqID)
	return reqID
}

// SetIdentity stores the authenticated caller on the request.
func SetIdentity(ctx *fasthttp.RequestCtx, id domain.Identity, sessionID string) {
	ctx.SetUserValue(string(KeyIdentity), id)
	ctx.SetUserValue(string(KeySessionID), sessionID)
}

// Identity returns the caller attached by the auth middleware.
func Identity(ctx *fasthttp.RequestCtx) (domain.Identity, bool) {
	id, ok := ctx.UserValue(string(KeyIdentity)).(domain.Identity)
	return id, ok
}

// SessionID returns the session behind the caller's token.
func SessionID(ctx *fasthttp.RequestCtx) string {
	sid, _ := ctx.UserValue(string(KeySessionID)).(string)
	return sid
}

// IdentityFromContext reads the caller from a context produced by Attach.
func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(KeyIdentity).(domain.Identity)
	return id, ok
}
