package services

import (
	"context"

	"github.com/fastygo/helpdesk/domain"
	"github.com/fastygo/helpdesk/internal/infrastructure/buffer"
	"github.com/fastygo/helpdesk/usecase"
)

// BufferBridge adapts the processor to the use-case facing port.
type BufferBridge struct {
	processor *BufferProcessor
}

func NewBufferBridge(processor *BufferProcessor) *BufferBridge {
	return &BufferBridge{processor: processor}
}

func (b *BufferBridge) BufferTransition(ctx context.Context, t usecase.Transition) (usecase.TransitionOutcome, error) {
	if b.processor == nil || t.ConversationID == "" {
		return 0, domain.ErrInvalidPayload
	}
	priority := buffer.PriorityNormal
	if t.Status == domain.StatusClosed {
		priority = buffer.PriorityHigh
	}
	previous := t.PreviousDepartmentID
	return b.processor.BufferTransition(ctx, buffer.Item{
		ConversationID: t.ConversationID,
		DepartmentID:         t.DepartmentID,
		PreviousDepartmentID: &previous,
		Status:               string(t.Status),
		Priority:             priority,
	})
}

var _ usecase.TransitionBuffer = (*BufferBridge)(nil)
