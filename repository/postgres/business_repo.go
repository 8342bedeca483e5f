package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/helpdesk/domain"
	"github.com/fastygo/helpdesk/repository"
)

type businessRepository struct {
	pool *pgxpool.Pool
}

// NewBusinessRepository returns a Postgres-backed BusinessRepository.
func NewBusinessRepository(pool *pgxpool.Pool) repository.BusinessRepository {
	return &businessRepository{pool: pool}
}

func (r *businessRepository) GetByID(ctx context.Context, id string) (*domain.Business, error) {
	var b domain.Business
	err := r.pool.QueryRow(ctx, `SELECT id, name, created_at FROM businesses WHERE id = $1`, id).
		Scan(&b.ID, &b.Name, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBusinessNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *businessRepository) List(ctx context.Context) ([]domain.Business, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, created_at FROM businesses ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Business
	for rows.Next() {
		var b domain.Business
		if err := rows.Scan(&b.ID, &b.Name, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *businessRepository) Create(ctx context.Context, b *domain.Business) error {
	if b == nil || b.Name == "" {
		return domain.ErrInvalidPayload
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO businesses (id, name, created_at) VALUES ($1, $2, COALESCE($3, NOW())) RETURNING created_at`,
		b.ID, b.Name, nullTime(b.CreatedAt),
	).Scan(&b.CreatedAt)
}

type departmentRepository struct {
	pool *pgxpool.Pool
}

// NewDepartmentRepository returns a Postgres-backed DepartmentRepository.
func NewDepartmentRepository(pool *pgxpool.Pool) repository.DepartmentRepository {
	return &departmentRepository{pool: pool}
}

func (r *departmentRepository) GetByID(ctx context.Context, id string) (*domain.Department, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, business_id, name, created_at FROM departments WHERE id = $1`, id)
	return scanDepartment(row)
}

func (r *departmentRepository) FindByName(ctx context.Context, businessID, name string) (*domain.Department, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, business_id, name, created_at FROM departments WHERE business_id = $1 AND name = $2`,
		businessID, name)
	return scanDepartment(row)
}

func (r *departmentRepository) List(ctx context.Context, businessID string) ([]domain.DepartmentSummary, error) {
	const query = `
	SELECT d.id, d.business_id, d.name, d.created_at, COUNT(c.id)
	FROM departments d
	LEFT JOIN conversations c ON c.department_id = d.id
	WHERE d.business_id = $1
	GROUP BY d.id, d.business_id, d.name, d.created_at
	ORDER BY d.name
	`
	rows, err := r.pool.Query(ctx, query, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DepartmentSummary
	for rows.Next() {
		var s domain.DepartmentSummary
		if err := rows.Scan(&s.ID, &s.BusinessID, &s.Name, &s.CreatedAt, &s.ConversationCount); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *departmentRepository) Create(ctx context.Context, d *domain.Department) error {
	if d == nil || d.BusinessID == "" || d.Name == "" {
		return domain.ErrInvalidPayload
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO departments (id, business_id, name, created_at) VALUES ($1, $2, $3, COALESCE($4, NOW())) RETURNING created_at`,
		d.ID, d.BusinessID, d.Name, nullTime(d.CreatedAt),
	).Scan(&d.CreatedAt)
	if isUniqueViolation(err) {
		return domain.NewError(domain.ErrCodeConflict, "department already exists")
	}
	return err
}

func scanDepartment(row rowScanner) (*domain.Department, error) {
	var d domain.Department
	if err := row.Scan(&d.ID, &d.BusinessID, &d.Name, &d.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDepartmentNotFound
		}
		return nil, err
	}
	return &d, nil
}
