package buffer

import (
	"time"

	"github.com/google/uuid"
)

const (
	PriorityHigh   = 1
	PriorityNormal = 3
	PriorityLow    = 5
)

// Item is a conversation transition that could not be written to primary
// storage and waits for replay.
type Item struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	DepartmentID   string    `json:"department_id,omitempty"`
	// PreviousDepartmentID, when set, guards DepartmentID on replay.
	PreviousDepartmentID *string `json:"previous_department_id,omitempty"`
	Status         string    `json:"status,omitempty"`
	Priority       int       `json:"priority"`
	Retries        int       `json:"retries"`
	LastError      string    `json:"last_error,omitempty"`
	Timestamp      time.Time `json:"timestamp"`

	bucketKey []byte
}

func (i *Item) normalize() {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.Priority < PriorityHigh || i.Priority > PriorityLow {
		i.Priority = PriorityNormal
	}
	if i.Timestamp.IsZero() {
		i.Timestamp = time.Now()
	}
}
