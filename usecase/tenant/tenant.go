package tenant

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fastygo/helpdesk/domain"
	"github.com/fastygo/helpdesk/repository"
)

// DefaultDepartments is the department set of a freshly seeded business.
var DefaultDepartments = []string{"Sales", "Support", "Billing", domain.DefaultFallbackDepartment}

type SeedRequest struct {
	BusinessName string
	Departments  []string
	// EmailDomain is used for the generated admin and agent accounts.
	EmailDomain        string
	FallbackDepartment string
	WithConversations  bool
}

type SeedResult struct {
	Business      domain.Business     `json:"business"`
	Departments   []domain.Department `json:"departments"`
	Admin         domain.User         `json:"admin"`
	Agents        []domain.User       `json:"agents"`
	Conversations []string            `json:"conversations"`
}

type UseCase struct {
	businesses    repository.BusinessRepository
	departments   repository.DepartmentRepository
	users         repository.UserRepository
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	logger        *zap.Logger
}

func New(
	businesses repository.BusinessRepository,
	departments repository.DepartmentRepository,
	users repository.UserRepository,
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	logger *zap.Logger,
) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		businesses:    businesses,
		departments:   departments,
		users:         users,
		conversations: conversations,
		messages:      messages,
		logger:        logger,
	}
}

// ListBusinesses returns every business, oldest first.
func (uc *UseCase) ListBusinesses(ctx context.Context) ([]domain.Business, error) {
	out, err := uc.businesses.List(ctx)
	if err != nil {
		return nil, domain.Storage("list businesses", err)
	}
	if out == nil {
		out = []domain.Business{}
	}
	return out, nil
}

// Seed creates a demo business with one admin, one agent per department
// and, optionally, one open conversation per department. The fallback
// department is always present so routing works out of the box.
func (uc *UseCase) Seed(ctx context.Context, req SeedRequest) (*SeedResult, error) {
	req = normalize(req)

	business := domain.Business{Name: req.BusinessName}
	if err := uc.businesses.Create(ctx, &business); err != nil {
		return nil, domain.Storage("create business", err)
	}
	logger := uc.logger.With(zap.String("business_id", business.ID))
	result := &SeedResult{Business: business}

	for _, name := range req.Departments {
		dept := domain.Department{BusinessID: business.ID, Name: name}
		if err := uc.departments.Create(ctx, &dept); err != nil {
			return nil, domain.Storage(fmt.Sprintf("create department %s", name), err)
		}
		result.Departments = append(result.Departments, dept)
	}

	admin := domain.User{
		BusinessID: business.ID,
		Name:       "Admin User",
		Email:      "admin@" + req.EmailDomain,
		Role:       domain.RoleAdmin,
	}
	if err := uc.users.Create(ctx, &admin); err != nil {
		return nil, domain.Storage("create admin", err)
	}
	result.Admin = admin

	for _, dept := range result.Departments {
		agent := domain.User{
			BusinessID:   business.ID,
			DepartmentID: dept.ID,
			Name:         dept.Name + " Agent",
			Email:        emailLocalPart(dept.Name) + "@" + req.EmailDomain,
			Role:         domain.RoleAgent,
		}
		if err := uc.users.Create(ctx, &agent); err != nil {
			return nil, domain.Storage(fmt.Sprintf("create agent %s", agent.Email), err)
		}
		result.Agents = append(result.Agents, agent)
	}

	if req.WithConversations {
		for _, dept := range result.Departments {
			id, err := uc.seedConversation(ctx, business.ID, dept)
			if err != nil {
				return nil, err
			}
			result.Conversations = append(result.Conversations, id)
		}
	}

	logger.Info("tenant seeded",
		zap.String("business", business.Name),
		zap.Int("departments", len(result.Departments)),
		zap.Int("agents", len(result.Agents)),
		zap.Int("conversations", len(result.Conversations)),
	)
	return result, nil
}

func (uc *UseCase) seedConversation(ctx context.Context, businessID string, dept domain.Department) (string, error) {
	conv := domain.Conversation{BusinessID: businessID, DepartmentID: dept.ID, Status: domain.StatusOpen}
	if err := uc.conversations.Create(ctx, &conv); err != nil {
		return "", domain.Storage("create conversation", err)
	}

	lines := []domain.Message{
		{Sender: domain.SenderCustomer, Content: fmt.Sprintf("Hello, I need help with %s", strings.ToLower(dept.Name))},
		{Sender: domain.SenderAgent, Content: fmt.Sprintf("Hi! This is the %s team. How can I assist you?", dept.Name)},
	}
	for i := range lines {
		lines[i].ConversationID = conv.ID
		if err := uc.messages.Create(ctx, &lines[i]); err != nil {
			return "", domain.Storage("create message", err)
		}
	}
	return conv.ID, nil
}

func normalize(req SeedRequest) SeedRequest {
	if strings.TrimSpace(req.BusinessName) == "" {
		req.BusinessName = "Demo Business"
	}
	if strings.TrimSpace(req.EmailDomain) == "" {
		req.EmailDomain = "demo.com"
	}
	if strings.TrimSpace(req.FallbackDepartment) == "" {
		req.FallbackDepartment = domain.DefaultFallbackDepartment
	}
	if len(req.Departments) == 0 {
		req.Departments = DefaultDepartments
	}

	seen := make(map[string]bool)
	var names []string
	for _, name := range append(append([]string(nil), req.Departments...), req.FallbackDepartment) {
		name = strings.TrimSpace(name)
		if name == "" || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true
		names = append(names, name)
	}
	req.Departments = names
	return req
}

func emailLocalPart(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", ".")
}
