package memory

import (
	"context"
	"sync"
	"time"

	"github.com/fastygo/helpdesk/domain"
	"github.com/fastygo/helpdesk/repository"
)

type sessionRepository struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
	ttl      time.Duration
}

// NewSessionRepository returns an in-process SessionRepository with the same
// expiry semantics as the Redis implementation.
func NewSessionRepository(ttl time.Duration) repository.SessionRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &sessionRepository{sessions: make(map[string]domain.Session), ttl: ttl}
}

func (r *sessionRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.IsExpired(time.Now()) {
		delete(r.sessions, id)
		return nil, domain.ErrSessionNotFound
	}
	return &s, nil
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
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = *session
	return nil
}

func (r *sessionRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r *sessionRepository) Extend(ctx context.Context, id string, ttlSeconds int) error {
	duration := time.Duration(ttlSeconds) * time.Second
	if duration <= 0 {
		duration = r.ttl
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	s.ExpiresAt = time.Now().Add(duration)
	r.sessions[id] = s
	return nil
}
