// Package memory keeps every repository in process. It backs the test suite
// and STORAGE_BACKEND=memory for local runs.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fastygo/helpdesk/domain"
	"github.com/fastygo/helpdesk/repository"
)

// Store implements the business, department, user, conversation and message
// repositories over maps guarded by one mutex.
type Store struct {
	mu            sync.RWMutex
	businesses    map[string]domain.Business
	departments   map[string]domain.Department
	users         map[string]domain.User
	conversations map[string]domain.Conversation
	messages      map[string][]domain.Message
	seq           int64
	last          time.Time
	now           func() time.Time
}

func NewStore() *Store {
	return &Store{
		businesses:    make(map[string]domain.Business),
		departments:   make(map[string]domain.Department),
		users:         make(map[string]domain.User),
		conversations: make(map[string]domain.Conversation),
		messages:      make(map[string][]domain.Message),
		now:           time.Now,
	}
}

func (s *Store) Businesses() repository.BusinessRepository         { return businessRepo{s} }
func (s *Store) Departments() repository.DepartmentRepository     { return departmentRepo{s} }
func (s *Store) Users() repository.UserRepository                 { return userRepo{s} }
func (s *Store) Conversations() repository.ConversationRepository { return conversationRepo{s} }
func (s *Store) Messages() repository.MessageRepository           { return messageRepo{s} }

// tick returns a strictly increasing timestamp. Callers hold the write lock.
func (s *Store) tick() time.Time {
	t := s.now()
	if !t.After(s.last) {
		t = s.last.Add(time.Nanosecond)
	}
	s.last = t
	return t
}

func (s *Store) nextSeq() int64 {
	s.seq++
	return s.seq
}

type businessRepo struct{ s *Store }

func (r businessRepo) GetByID(ctx context.Context, id string) (*domain.Business, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.businesses[id]
	if !ok {
		return nil, domain.ErrBusinessNotFound
	}
	return &b, nil
}

func (r businessRepo) List(ctx context.Context) ([]domain.Business, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.Business, 0, len(r.s.businesses))
	for _, b := range r.s.businesses {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r businessRepo) Create(ctx context.Context, b *domain.Business) error {
	if b == nil || strings.TrimSpace(b.Name) == "" {
		return domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = r.s.tick()
	}
	r.s.businesses[b.ID] = *b
	return nil
}

type departmentRepo struct{ s *Store }

func (r departmentRepo) GetByID(ctx context.Context, id string) (*domain.Department, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	d, ok := r.s.departments[id]
	if !ok {
		return nil, domain.ErrDepartmentNotFound
	}
	return &d, nil
}

func (r departmentRepo) FindByName(ctx context.Context, businessID, name string) (*domain.Department, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, d := range r.s.departments {
		if d.BusinessID == businessID && d.Name == name {
			d := d
			return &d, nil
		}
	}
	return nil, domain.ErrDepartmentNotFound
}

func (r departmentRepo) List(ctx context.Context, businessID string) ([]domain.DepartmentSummary, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	counts := make(map[string]int)
	for _, c := range r.s.conversations {
		if c.DepartmentID != "" {
			counts[c.DepartmentID]++
		}
	}
	var out []domain.DepartmentSummary
	for _, d := range r.s.departments {
		if d.BusinessID != businessID {
			continue
		}
		out = append(out, domain.DepartmentSummary{Department: d, ConversationCount: counts[d.ID]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r departmentRepo) Create(ctx context.Context, d *domain.Department) error {
	if d == nil || d.BusinessID == "" || strings.TrimSpace(d.Name) == "" {
		return domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.businesses[d.BusinessID]; !ok {
		return domain.ErrBusinessNotFound
	}
	for _, existing := range r.s.departments {
		if existing.BusinessID == d.BusinessID && existing.Name == d.Name {
			return domain.NewError(domain.ErrCodeConflict, "department already exists")
		}
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = r.s.tick()
	}
	r.s.departments[d.ID] = *d
	return nil
}

type userRepo struct{ s *Store }

func (r userRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (r userRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, email) {
			u := u
			return &u, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r userRepo) List(ctx context.Context, filter repository.UserFilter) ([]domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.User
	for _, u := range r.s.users {
		if filter.BusinessID != "" && u.BusinessID != filter.BusinessID {
			continue
		}
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (r userRepo) Create(ctx context.Context, u *domain.User) error {
	if u == nil || u.Email == "" || !u.Role.Valid() || u.BusinessID == "" {
		return domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return domain.NewError(domain.ErrCodeConflict, "email already registered")
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = r.s.tick()
	}
	r.s.users[u.ID] = *u
	return nil
}

type conversationRepo struct{ s *Store }

func (r conversationRepo) FindActive(ctx context.Context, businessID string) (*domain.Conversation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.findActiveLocked(businessID)
}

func (r conversationRepo) findActiveLocked(businessID string) (*domain.Conversation, error) {
	var found *domain.Conversation
	for _, c := range r.s.conversations {
		if c.BusinessID != businessID || !c.IsActive() {
			continue
		}
		if found == nil || c.CreatedAt.After(found.CreatedAt) {
			c := c
			found = &c
		}
	}
	if found == nil {
		return nil, domain.ErrConversationNotFound
	}
	return r.withDepartment(*found), nil
}

func (r conversationRepo) FindOrCreateActive(ctx context.Context, businessID string) (*domain.Conversation, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if conv, err := r.findActiveLocked(businessID); err == nil {
		return conv, false, nil
	}
	conv := &domain.Conversation{BusinessID: businessID, Status: domain.StatusOpen}
	if err := r.createLocked(conv); err != nil {
		return nil, false, err
	}
	return conv, true, nil
}

func (r conversationRepo) Create(ctx context.Context, conv *domain.Conversation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.createLocked(conv)
}

func (r conversationRepo) createLocked(conv *domain.Conversation) error {
	if conv == nil || conv.BusinessID == "" {
		return domain.ErrInvalidPayload
	}
	if conv.Status == "" {
		conv.Status = domain.StatusOpen
	}
	if !conv.Status.Valid() {
		return domain.ErrInvalidPayload
	}
	if _, ok := r.s.businesses[conv.BusinessID]; !ok {
		return domain.ErrBusinessNotFound
	}
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	now := r.s.tick()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now
	stored := *conv
	stored.Messages = nil
	stored.DepartmentName = ""
	r.s.conversations[conv.ID] = stored
	return nil
}

func (r conversationRepo) Update(ctx context.Context, id string, update repository.ConversationUpdate) (*domain.Conversation, error) {
	if update.Status != nil && (!update.Status.Valid() || *update.Status == domain.StatusOpen) {
		return nil, domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conversations[id]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	if c.IsClosed() {
		return nil, domain.ErrConversationClosed
	}
	if update.Status != nil {
		c.Status = *update.Status
	}
	if update.DepartmentID != nil && (update.IfDepartmentID == nil || c.DepartmentID == *update.IfDepartmentID) {
		c.DepartmentID = *update.DepartmentID
	}
	c.UpdatedAt = r.s.tick()
	r.s.conversations[id] = c
	return r.withDepartment(c), nil
}

func (r conversationRepo) List(ctx context.Context, filter repository.ConversationFilter) ([]domain.Conversation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Conversation
	for _, c := range r.s.conversations {
		c := c
		if filter.Matches(&c) {
			out = append(out, *r.withDepartment(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if limit := repository.ClampPageSize(filter.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r conversationRepo) Find(ctx context.Context, id string, filter repository.ConversationFilter) (*domain.Conversation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.conversations[id]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	filter.ID = id
	if !filter.Matches(&c) {
		return nil, domain.ErrConversationNotFound
	}
	return r.withDepartment(c), nil
}

// withDepartment must be called with the store lock held.
func (r conversationRepo) withDepartment(c domain.Conversation) *domain.Conversation {
	if d, ok := r.s.departments[c.DepartmentID]; ok {
		c.DepartmentName = d.Name
	}
	return &c
}

type messageRepo struct{ s *Store }

func (r messageRepo) Create(ctx context.Context, msg *domain.Message) error {
	if msg == nil || msg.ConversationID == "" || strings.TrimSpace(msg.Content) == "" || !msg.Sender.Valid() {
		return domain.ErrInvalidPayload
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.conversations[msg.ConversationID]; !ok {
		return domain.ErrConversationNotFound
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Seq = r.s.nextSeq()
	msg.CreatedAt = r.s.tick()
	r.s.messages[msg.ConversationID] = append(r.s.messages[msg.ConversationID], *msg)
	return nil
}

func (r messageRepo) ListByConversation(ctx context.Context, conversationID string) ([]domain.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	msgs := r.s.messages[conversationID]
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}
