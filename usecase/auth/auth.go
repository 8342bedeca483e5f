package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fastygo/helpdesk/domain"
	"github.com/fastygo/helpdesk/repository"
)

// LoginResult is returned to the client after a successful login.
type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *domain.User `json:"user"`
}

type UseCase struct {
	users      repository.UserRepository
	sessions   repository.SessionRepository
	tokens     *TokenIssuer
	sessionTTL time.Duration
	logger     *zap.Logger
}

func New(users repository.UserRepository, sessions repository.SessionRepository, tokens *TokenIssuer, sessionTTL time.Duration, logger *zap.Logger) *UseCase {
	if sessionTTL <= 0 {
		sessionTTL = 12 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		users:      users,
		sessions:   sessions,
		tokens:     tokens,
		sessionTTL: sessionTTL,
		logger:     logger,
	}
}

// Login looks the user up by email and opens a session. There is no
// password: this is a placeholder credential scheme in front of the
// identity-based scoping.
func (uc *UseCase) Login(ctx context.Context, email string) (*LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, domain.Invalidf("email is required")
	}

	user, err := uc.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, domain.Storage("load user", err)
	}

	session, err := uc.CreateSession(ctx, user.ID, uc.sessionTTL)
	if err != nil {
		return nil, err
	}

	token, err := uc.tokens.Issue(user.ID, session.ID, session.ExpiresAt)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeInternal, "issue token", err)
	}

	uc.logger.Info("user logged in", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return &LoginResult{Token: token, ExpiresAt: session.ExpiresAt, User: user}, nil
}

// Authenticate verifies a bearer token and resolves it to the caller's
// identity. Every failure is reported as domain.ErrUnauthorized.
func (uc *UseCase) Authenticate(ctx context.Context, token string) (domain.Identity, string, error) {
	claims, err := uc.tokens.Parse(token)
	if err != nil {
		uc.logger.Debug("rejected token", zap.Error(err))
		return domain.Identity{}, "", domain.ErrUnauthorized
	}

	session, err := uc.GetSession(ctx, claims.SessionID)
	if err != nil {
		if domain.IsDomainError(err, domain.ErrCodeNotFound) {
			return domain.Identity{}, "", domain.ErrUnauthorized
		}
		return domain.Identity{}, "", domain.Storage("load session", err)
	}
	if session.UserID != claims.UserID {
		return domain.Identity{}, "", domain.ErrUnauthorized
	}

	user, err := uc.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.Identity{}, "", domain.ErrUnauthorized
		}
		return domain.Identity{}, "", domain.Storage("load user", err)
	}
	return user.Identity(), session.ID, nil
}

func (uc *UseCase) CreateSession(ctx context.Context, userID string, ttl time.Duration) (*domain.Session, error) {
	now := time.Now()
	session := &domain.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	if err := uc.sessions.Save(ctx, session); err != nil {
		return nil, domain.Storage("save session", err)
	}
	return session, nil
}

func (uc *UseCase) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := uc.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.IsExpired(time.Now()) {
		_ = uc.sessions.Delete(ctx, sessionID)
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// RefreshSession extends a live session and returns a token carrying the
// new expiry.
func (uc *UseCase) RefreshSession(ctx context.Context, sessionID string) (*LoginResult, error) {
	session, err := uc.GetSession(ctx, sessionID)
	if err != nil {
		if domain.IsDomainError(err, domain.ErrCodeNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, domain.Storage("load session", err)
	}
	if err := uc.sessions.Extend(ctx, sessionID, int(uc.sessionTTL.Seconds())); err != nil {
		return nil, domain.Storage("extend session", err)
	}
	session.ExpiresAt = time.Now().Add(uc.sessionTTL)

	user, err := uc.users.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, domain.Storage("load user", err)
	}
	token, err := uc.tokens.Issue(user.ID, session.ID, session.ExpiresAt)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeInternal, "issue token", err)
	}
	return &LoginResult{Token: token, ExpiresAt: session.ExpiresAt, User: user}, nil
}

// RevokeSession ends a session; its tokens stop authenticating immediately.
func (uc *UseCase) RevokeSession(ctx context.Context, sessionID string) error {
	if err := uc.sessions.Delete(ctx, sessionID); err != nil {
		return domain.Storage("revoke session", err)
	}
	return nil
}
