package domain

import "time"

type ConversationStatus string

const (
	StatusOpen       ConversationStatus = "open"
	StatusInProgress ConversationStatus = "in_progress"
	StatusClosed     ConversationStatus = "closed"
)

func (s ConversationStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusClosed:
		return true
	}
	return false
}

func (s ConversationStatus) rank() int {
	switch s {
	case StatusOpen:
		return 0
	case StatusInProgress:
		return 1
	case StatusClosed:
		return 2
	}
	return -1
}

// CanTransition reports whether moving from s to next keeps the lifecycle
// monotonic. Staying in the same non-closed state is allowed.
func (s ConversationStatus) CanTransition(next ConversationStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s == StatusClosed {
		return next == StatusClosed
	}
	return next.rank() >= s.rank()
}

// Conversation is a thread of messages between a customer and a business.
type Conversation struct {
	ID             string             `json:"id"`
	BusinessID     string             `json:"businessId"`
	DepartmentID   string             `json:"departmentId,omitempty"`
	DepartmentName string             `json:"department,omitempty"`
	Status         ConversationStatus `json:"status"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
	Messages       []Message          `json:"messages,omitempty"`
}

func (c *Conversation) IsClosed() bool {
	return c != nil && c.Status == StatusClosed
}

// IsActive reports whether the conversation can still receive routed messages.
func (c *Conversation) IsActive() bool {
	return c != nil && (c.Status == StatusOpen || c.Status == StatusInProgress)
}

type Sender string

const (
	SenderCustomer Sender = "customer"
	SenderAgent    Sender = "agent"
)

func (s Sender) Valid() bool {
	return s == SenderCustomer || s == SenderAgent
}

// Message is an immutable entry in a conversation. Seq is assigned by the
// store and breaks ties between messages created in the same instant.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Sender         Sender    `json:"sender"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
	Seq            int64     `json:"-"`
}
