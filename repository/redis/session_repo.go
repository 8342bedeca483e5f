package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/fastygo/helpdesk/domain"
	"github.com/fastygo/helpdesk/repository"
)

const sessionPrefix = "helpdesk:session:"

type sessionRepository struct {
	client redislib.UniversalClient
	ttl    time.Duration
}

// NewSessionRepository creates a Redis-backed session repository. Keys expire
// with the session so revocation and expiry need no sweeper.
func NewSessionRepository(client redislib.UniversalClient, ttl time.Duration) repository.SessionRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &sessionRepository{client: client, ttl: ttl}
}

func (r *sessionRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	raw, err := r.client.Get(ctx, sessionPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}

	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) Save(ctx context.Context, session *domain.Session) error {
	if session == nil || session.ID == "" {
		return domain.ErrInvalidPayload
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	if !session.ExpiresAt.After(session.CreatedAt) {
		session.ExpiresAt = session.CreatedAt.Add(r.ttl)
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return domain.ErrSessionNotFound
	}
	return r.client.Set(ctx, sessionPrefix+session.ID, payload, ttl).Err()
}

func (r *sessionRepository) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, sessionPrefix+id).Err()
}

func (r *sessionRepository) Extend(ctx context.Context, id string, ttlSeconds int) error {
	duration := time.Duration(ttlSeconds) * time.Second
	if duration <= 0 {
		duration = r.ttl
	}
	session, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	// the payload carries ExpiresAt, so rewrite it rather than only bumping the key TTL
	session.ExpiresAt = time.Now().Add(duration)
	return r.Save(ctx, session)
}
