package routing

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/fastygo/helpdesk/domain"
	appLogger "github.com/fastygo/helpdesk/pkg/logger"
	"github.com/fastygo/helpdesk/repository"
	"github.com/fastygo/helpdesk/usecase"
	"github.com/fastygo/helpdesk/usecase/classify"
)

// Policy decides which conversation an inbound message joins.
type Policy string

const (
	// PolicyReuseActive appends to the business's open or in-progress
	// conversation, creating one only when none exists.
	PolicyReuseActive Policy = "reuse_active"
	// PolicyAlwaysCreate opens a new conversation for every inbound message.
	PolicyAlwaysCreate Policy = "always_create"
)

func (p Policy) Valid() bool {
	return p == PolicyReuseActive || p == PolicyAlwaysCreate
}

// Classifier picks a department for a message within a business.
type Classifier interface {
	Classify(ctx context.Context, businessID, text string) (classify.Decision, error)
}

type InboundMessage struct {
	BusinessID string
	Content    string
	Sender     domain.Sender
}

type Result struct {
	ConversationID string `json:"conversationId"`
	RoutedTo       string `json:"routedTo"`
	DepartmentID   string `json:"departmentId"`
	Fallback       bool   `json:"fallback"`
	Created        bool   `json:"created"`
	// Buffered is set when the department assignment is waiting in the
	// recovery buffer instead of being stored.
	Buffered bool `json:"buffered,omitempty"`
}

type Engine struct {
	businesses    repository.BusinessRepository
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	classifier    Classifier
	buffer        usecase.TransitionBuffer
	policy        Policy
	logger        *zap.Logger
}

// New wires the engine. buffer may be nil, in which case a failed status
// update is returned to the caller.
func New(
	businesses repository.BusinessRepository,
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	classifier Classifier,
	buffer usecase.TransitionBuffer,
	policy Policy,
	logger *zap.Logger,
) *Engine {
	if !policy.Valid() {
		policy = PolicyReuseActive
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		businesses:    businesses,
		conversations: conversations,
		messages:      messages,
		classifier:    classifier,
		buffer:        buffer,
		policy:        policy,
		logger:        logger,
	}
}

// RouteInboundMessage stores a customer message, classifies it and moves
// its conversation to the chosen department.
func (e *Engine) RouteInboundMessage(ctx context.Context, in InboundMessage) (*Result, error) {
	sender, err := validate(in)
	if err != nil {
		return nil, err
	}

	if _, err := e.businesses.GetByID(ctx, in.BusinessID); err != nil {
		return nil, domain.Storage("load business", err)
	}

	logger := appLogger.WithRequestID(ctx, e.logger).With(zap.String("business_id", in.BusinessID))

	conv, created, err := e.resolveConversation(ctx, in.BusinessID)
	if err != nil {
		return nil, domain.Storage("resolve conversation", err)
	}
	logger = logger.With(zap.String("conversation_id", conv.ID))

	msg := &domain.Message{
		ConversationID: conv.ID,
		Sender:         sender,
		Content:        in.Content,
	}
	if err := e.messages.Create(ctx, msg); err != nil {
		return nil, domain.Storage("store message", err)
	}

	decision, err := e.classifier.Classify(ctx, in.BusinessID, in.Content)
	if err != nil {
		logger.Error("classification unavailable", zap.Error(err))
		return nil, err
	}

	result := &Result{
		ConversationID: conv.ID,
		RoutedTo:       decision.DepartmentName,
		DepartmentID:   decision.DepartmentID,
		Fallback:       decision.Fallback,
		Created:        created,
	}

	buffered, err := e.assign(ctx, logger, conv, decision.DepartmentID)
	if err != nil {
		return nil, err
	}
	result.Buffered = buffered

	logger.Info("message routed",
		zap.String("department", result.RoutedTo),
		zap.Bool("fallback", result.Fallback),
		zap.Bool("created", created),
		zap.Bool("buffered", buffered),
	)
	return result, nil
}

func validate(in InboundMessage) (domain.Sender, error) {
	if strings.TrimSpace(in.BusinessID) == "" {
		return "", domain.Invalidf("businessId is required")
	}
	if strings.TrimSpace(in.Content) == "" {
		return "", domain.ErrEmptyContent
	}
	sender := in.Sender
	if sender == "" {
		sender = domain.SenderCustomer
	}
	if !sender.Valid() {
		return "", domain.Invalidf("unknown sender %q", in.Sender)
	}
	return sender, nil
}

func (e *Engine) resolveConversation(ctx context.Context, businessID string) (*domain.Conversation, bool, error) {
	if e.policy == PolicyAlwaysCreate {
		conv := &domain.Conversation{BusinessID: businessID, Status: domain.StatusOpen}
		if err := e.conversations.Create(ctx, conv); err != nil {
			return nil, false, err
		}
		return conv, true, nil
	}
	return e.conversations.FindOrCreateActive(ctx, businessID)
}

// assign sets the department and moves the conversation to in_progress.
// A conversation closed in the meantime is left as it is.
func (e *Engine) assign(ctx context.Context, logger *zap.Logger, conv *domain.Conversation, departmentID string) (bool, error) {
	status := domain.StatusInProgress
	_, err := e.conversations.Update(ctx, conv.ID, repository.ConversationUpdate{
		Status:       &status,
		DepartmentID: &departmentID,
	})
	if err == nil {
		return false, nil
	}

	if errors.Is(err, domain.ErrConversationClosed) {
		logger.Warn("conversation closed before assignment, leaving untouched")
		return false, nil
	}

	var dErr *domain.Error
	if errors.As(err, &dErr) || e.buffer == nil {
		return false, domain.Storage("assign department", err)
	}

	transition := usecase.Transition{
		ConversationID:       conv.ID,
		DepartmentID:         departmentID,
		PreviousDepartmentID: conv.DepartmentID,
		Status:               status,
	}
	outcome, bufErr := e.buffer.BufferTransition(ctx, transition)
	if bufErr != nil {
		logger.Error("failed to buffer conversation transition", zap.Error(bufErr))
		return false, domain.Storage("assign department", err)
	}
	switch outcome {
	case usecase.TransitionEnqueued:
		logger.Warn("conversation transition buffered due to repository error", zap.Error(err))
		return true, nil
	case usecase.TransitionDropped:
		logger.Warn("conversation transition dropped, conversation changed meanwhile", zap.Error(err))
	default:
		logger.Info("conversation transition applied on retry", zap.Stringer("outcome", outcome))
	}
	return false, nil
}
