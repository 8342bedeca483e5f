package repository

import (
	"context"

	"github.com/fastygo/helpdesk/domain"
)

type UserFilter struct {
	BusinessID string
	Role       domain.Role
}

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	List(ctx context.Context, filter UserFilter) ([]domain.User, error)
	Create(ctx context.Context, user *domain.User) error
}
