package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/helpdesk/domain"
	"github.com/fastygo/helpdesk/repository"
)

const uniqueViolation = "23505"

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository instantiates a Postgres-backed user repository.
func NewUserRepository(pool *pgxpool.Pool) repository.UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `id, business_id, department_id, name, email, role, created_at`

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, strings.TrimSpace(email))
	return scanUser(row)
}

func (r *userRepository) List(ctx context.Context, filter repository.UserFilter) ([]domain.User, error) {
	const query = `
	SELECT ` + userColumns + `
	FROM users
	WHERE ($1 = '' OR business_id = $1)
	  AND ($2 = '' OR role = $2)
	ORDER BY email
	`
	rows, err := r.pool.Query(ctx, query, filter.BusinessID, string(filter.Role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	if user == nil || user.Email == "" || !user.Role.Valid() || user.BusinessID == "" {
		return domain.ErrInvalidPayload
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	const query = `
	INSERT INTO users (id, business_id, department_id, name, email, role, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))
	RETURNING created_at
	`
	err := r.pool.QueryRow(ctx, query,
		user.ID,
		user.BusinessID,
		nullString(user.DepartmentID),
		user.Name,
		user.Email,
		string(user.Role),
		nullTime(user.CreatedAt),
	).Scan(&user.CreatedAt)
	if isUniqueViolation(err) {
		return domain.NewError(domain.ErrCodeConflict, "email already registered")
	}
	return err
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		user       domain.User
		department *string
		role       string
	)
	if err := row.Scan(&user.ID, &user.BusinessID, &department, &user.Name, &user.Email, &role, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	user.DepartmentID = derefString(department)
	user.Role = domain.Role(role)
	return &user, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
