package repository

import (
	"context"

	"github.com/fastygo/helpdesk/domain"
)

type BusinessRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Business, error)
	List(ctx context.Context) ([]domain.Business, error)
	Create(ctx context.Context, business *domain.Business) error
}

type DepartmentRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Department, error)
	// FindByName returns domain.ErrDepartmentNotFound when the business has no
	// department with that exact name.
	FindByName(ctx context.Context, businessID, name string) (*domain.Department, error)
	List(ctx context.Context, businessID string) ([]domain.DepartmentSummary, error)
	Create(ctx context.Context, department *domain.Department) error
}
