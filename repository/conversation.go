package repository

import (
	"context"

	"github.com/fastygo/helpdesk/domain"
)

// MaxPageSize caps every conversation listing.
const MaxPageSize = 100

// ClampPageSize maps a requested page size onto (0, MaxPageSize]. Zero or
// negative means a full page.
func ClampPageSize(limit int) int {
	if limit <= 0 || limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// ConversationFilter is the scoping predicate applied to conversation reads.
// Empty fields are not constrained; ID pins a single record.
type ConversationFilter struct {
	ID           string
	BusinessID   string
	DepartmentID string
	Status       domain.ConversationStatus
	Limit        int
	Offset       int
}

// Matches evaluates the predicate in memory.
func (f ConversationFilter) Matches(c *domain.Conversation) bool {
	if c == nil {
		return false
	}
	if f.ID != "" && c.ID != f.ID {
		return false
	}
	if f.BusinessID != "" && c.BusinessID != f.BusinessID {
		return false
	}
	if f.DepartmentID != "" && c.DepartmentID != f.DepartmentID {
		return false
	}
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	return true
}

// ConversationUpdate lists the mutable fields; nil leaves a field untouched.
type ConversationUpdate struct {
	Status       *domain.ConversationStatus
	DepartmentID *string
	// IfDepartmentID guards DepartmentID: when set, the department is written
	// only if the current one equals it ("" for unassigned). Status still
	// applies either way.
	IfDepartmentID *string
}

type ConversationRepository interface {
	// FindActive returns the most recent open or in-progress conversation of
	// the business, or domain.ErrConversationNotFound.
	FindActive(ctx context.Context, businessID string) (*domain.Conversation, error)
	// FindOrCreateActive atomically reuses the active conversation or creates a
	// new open one. created reports which happened.
	FindOrCreateActive(ctx context.Context, businessID string) (conv *domain.Conversation, created bool, err error)
	Create(ctx context.Context, conv *domain.Conversation) error
	// Update never touches a closed conversation: it returns
	// domain.ErrConversationClosed instead. Setting status back to open is
	// rejected with domain.ErrInvalidPayload.
	Update(ctx context.Context, id string, update ConversationUpdate) (*domain.Conversation, error)
	List(ctx context.Context, filter ConversationFilter) ([]domain.Conversation, error)
	// Find returns domain.ErrConversationNotFound when no record with id
	// satisfies filter.
	Find(ctx context.Context, id string, filter ConversationFilter) (*domain.Conversation, error)
}

type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	// ListByConversation returns messages in creation order.
	ListByConversation(ctx context.Context, conversationID string) ([]domain.Message, error)
}
