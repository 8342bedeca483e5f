package usecase

import (
	"context"

	"github.com/fastygo/helpdesk/domain"
)

// Transition is a conversation state change that primary storage could not
// accept and that must be replayed later.
type Transition struct {
	ConversationID string
	DepartmentID   string
	// PreviousDepartmentID is the department the conversation had when the
	// transition was decided. A replay moves the department only while it is
	// still this one, so a later reassignment wins.
	PreviousDepartmentID string
	Status               domain.ConversationStatus
}

// TransitionOutcome reports what the buffer did with a transition.
type TransitionOutcome int

const (
	// TransitionApplied means the store accepted the transition right away.
	TransitionApplied TransitionOutcome = iota + 1
	// TransitionEnqueued means the transition is stored for a later replay.
	TransitionEnqueued
	// TransitionDropped means the transition can never apply, e.g. the
	// conversation was closed in the meantime. Nothing was stored.
	TransitionDropped
)

func (o TransitionOutcome) String() string {
	switch o {
	case TransitionApplied:
		return "applied"
	case TransitionEnqueued:
		return "enqueued"
	case TransitionDropped:
		return "dropped"
	}
	return "unknown"
}

// TransitionBuffer abstracts the recovery buffer so use cases stay storage-agnostic.
type TransitionBuffer interface {
	BufferTransition(ctx context.Context, transition Transition) (TransitionOutcome, error)
}
