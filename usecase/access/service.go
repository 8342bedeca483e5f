package access

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/fastygo/helpdesk/domain"
	appLogger "github.com/fastygo/helpdesk/pkg/logger"
	"github.com/fastygo/helpdesk/repository"
)

// UnassignedDepartment is shown for conversations not yet routed.
const UnassignedDepartment = "Unknown"

type Page struct {
	Limit  int
	Offset int
}

// Service exposes role-scoped reads and mutations over conversations. Every
// method takes the resolved caller identity and never trusts ids from the
// request beyond what the scope allows.
type Service struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	departments   repository.DepartmentRepository
	users         repository.UserRepository
	logger        *zap.Logger
}

func New(
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	departments repository.DepartmentRepository,
	users repository.UserRepository,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		conversations: conversations,
		messages:      messages,
		departments:   departments,
		users:         users,
		logger:        logger,
	}
}

func requireRole(id domain.Identity, role domain.Role) error {
	if id.UserID == "" {
		return domain.ErrUnauthorized
	}
	if id.Role != role {
		return domain.ErrForbidden
	}
	return nil
}

// ListConversations returns the admin's business conversations, newest first.
func (s *Service) ListConversations(ctx context.Context, id domain.Identity, page Page) ([]domain.Conversation, error) {
	if err := requireRole(id, domain.RoleAdmin); err != nil {
		return nil, err
	}
	convs, err := s.list(ctx, id, page, false)
	if err != nil {
		return nil, err
	}
	for i := range convs {
		if convs[i].DepartmentName == "" {
			convs[i].DepartmentName = UnassignedDepartment
		}
	}
	return convs, nil
}

// GetConversation returns one conversation of the admin's business with its
// messages in order.
func (s *Service) GetConversation(ctx context.Context, id domain.Identity, conversationID string) (*domain.Conversation, error) {
	if err := requireRole(id, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.fetch(ctx, id, conversationID, true)
}

// Reassign moves a conversation of the admin's business to another
// department of the same business.
func (s *Service) Reassign(ctx context.Context, id domain.Identity, conversationID, departmentID string) (*domain.Conversation, error) {
	if err := requireRole(id, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if strings.TrimSpace(departmentID) == "" {
		return nil, domain.Invalidf("departmentId is required")
	}

	current, err := s.fetch(ctx, id, conversationID, false)
	if err != nil {
		return nil, err
	}
	if current.IsClosed() {
		return nil, domain.ErrConversationClosed
	}

	dept, err := s.departments.GetByID(ctx, departmentID)
	if err != nil {
		if errors.Is(err, domain.ErrDepartmentNotFound) {
			return nil, domain.Invalidf("department %q does not exist in this business", departmentID)
		}
		return nil, domain.Storage("load department", err)
	}
	if dept.BusinessID != id.BusinessID {
		return nil, domain.Invalidf("department %q does not exist in this business", departmentID)
	}

	updated, err := s.conversations.Update(ctx, current.ID, repository.ConversationUpdate{DepartmentID: &dept.ID})
	if err != nil {
		return nil, domain.Storage("reassign conversation", err)
	}

	appLogger.WithRequestID(ctx, s.logger).Info("conversation reassigned",
		zap.String("conversation_id", updated.ID),
		zap.String("from", current.DepartmentID),
		zap.String("to", dept.ID),
		zap.String("by", id.UserID),
	)
	return updated, nil
}

// ListAgents returns the agents working for the admin's business.
func (s *Service) ListAgents(ctx context.Context, id domain.Identity) ([]domain.User, error) {
	if err := requireRole(id, domain.RoleAdmin); err != nil {
		return nil, err
	}
	users, err := s.users.List(ctx, repository.UserFilter{BusinessID: id.BusinessID, Role: domain.RoleAgent})
	return users, domain.Storage("list agents", err)
}

// ListDepartments returns the admin's departments with conversation counts.
func (s *Service) ListDepartments(ctx context.Context, id domain.Identity) ([]domain.DepartmentSummary, error) {
	if err := requireRole(id, domain.RoleAdmin); err != nil {
		return nil, err
	}
	depts, err := s.departments.List(ctx, id.BusinessID)
	return depts, domain.Storage("list departments", err)
}

// ListChats returns the agent's department conversations with messages,
// newest first.
func (s *Service) ListChats(ctx context.Context, id domain.Identity, page Page) ([]domain.Conversation, error) {
	if err := requireRole(id, domain.RoleAgent); err != nil {
		return nil, err
	}
	return s.list(ctx, id, page, true)
}

// GetChat returns one conversation of the agent's department.
func (s *Service) GetChat(ctx context.Context, id domain.Identity, conversationID string) (*domain.Conversation, error) {
	if err := requireRole(id, domain.RoleAgent); err != nil {
		return nil, err
	}
	return s.fetch(ctx, id, conversationID, true)
}

// Reply appends an agent message to a conversation in the agent's scope.
func (s *Service) Reply(ctx context.Context, id domain.Identity, conversationID, content string) (*domain.Message, error) {
	if err := requireRole(id, domain.RoleAgent); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, domain.ErrEmptyContent
	}

	conv, err := s.fetch(ctx, id, conversationID, false)
	if err != nil {
		return nil, err
	}
	if conv.IsClosed() {
		return nil, domain.ErrConversationClosed
	}

	msg := &domain.Message{
		ConversationID: conv.ID,
		Sender:         domain.SenderAgent,
		Content:        content,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, domain.Storage("store reply", err)
	}
	return msg, nil
}

// Close marks a conversation of the agent's department as closed. Closing
// an already closed conversation returns it unchanged.
func (s *Service) Close(ctx context.Context, id domain.Identity, conversationID string) (*domain.Conversation, error) {
	if err := requireRole(id, domain.RoleAgent); err != nil {
		return nil, err
	}

	conv, err := s.fetch(ctx, id, conversationID, false)
	if err != nil {
		return nil, err
	}
	if conv.IsClosed() {
		return conv, nil
	}

	closed := domain.StatusClosed
	updated, err := s.conversations.Update(ctx, conv.ID, repository.ConversationUpdate{Status: &closed})
	if errors.Is(err, domain.ErrConversationClosed) {
		// lost a race with another close
		return s.fetch(ctx, id, conversationID, false)
	}
	if err != nil {
		return nil, domain.Storage("close conversation", err)
	}

	appLogger.WithRequestID(ctx, s.logger).Info("conversation closed",
		zap.String("conversation_id", updated.ID),
		zap.String("by", id.UserID),
	)
	return updated, nil
}

func (s *Service) list(ctx context.Context, id domain.Identity, page Page, withMessages bool) ([]domain.Conversation, error) {
	filter, ok := ListScope(id)
	if !ok {
		return []domain.Conversation{}, nil
	}
	filter.Limit = page.Limit
	filter.Offset = page.Offset

	convs, err := s.conversations.List(ctx, filter)
	if err != nil {
		return nil, domain.Storage("list conversations", err)
	}
	if convs == nil {
		convs = []domain.Conversation{}
	}
	if !withMessages {
		return convs, nil
	}
	for i := range convs {
		msgs, err := s.messages.ListByConversation(ctx, convs[i].ID)
		if err != nil {
			return nil, domain.Storage("list messages", err)
		}
		convs[i].Messages = msgs
	}
	return convs, nil
}

func (s *Service) fetch(ctx context.Context, id domain.Identity, conversationID string, withMessages bool) (*domain.Conversation, error) {
	filter, ok := FetchScope(id)
	if !ok || strings.TrimSpace(conversationID) == "" {
		return nil, domain.ErrNotFoundOrForbidden
	}

	conv, err := s.conversations.Find(ctx, conversationID, filter)
	if err != nil {
		if errors.Is(err, domain.ErrConversationNotFound) {
			return nil, domain.ErrNotFoundOrForbidden
		}
		return nil, domain.Storage("find conversation", err)
	}
	if !withMessages {
		return conv, nil
	}

	msgs, err := s.messages.ListByConversation(ctx, conv.ID)
	if err != nil {
		return nil, domain.Storage("list messages", err)
	}
	conv.Messages = msgs
	return conv, nil
}
