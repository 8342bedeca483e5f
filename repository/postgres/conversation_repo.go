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

type conversationRepository struct {
	pool *pgxpool.Pool
}

// NewConversationRepository returns a Postgres-backed ConversationRepository.
func NewConversationRepository(pool *pgxpool.Pool) repository.ConversationRepository {
	return &conversationRepository{pool: pool}
}

const conversationSelect = `
	SELECT c.id, c.business_id, c.department_id, COALESCE(d.name, ''), c.status, c.created_at, c.updated_at
	FROM conversations c
	LEFT JOIN departments d ON d.id = c.department_id
`

const activeQuery = conversationSelect + `
	WHERE c.business_id = $1 AND c.status IN ('open', 'in_progress')
	ORDER BY c.created_at DESC
	LIMIT 1
`

func (r *conversationRepository) FindActive(ctx context.Context, businessID string) (*domain.Conversation, error) {
	return scanConversation(r.pool.QueryRow(ctx, activeQuery, businessID))
}

// FindOrCreateActive serialises callers per business with a transaction
// scoped advisory lock so two concurrent inbound messages cannot both create
// an active conversation.
func (r *conversationRepository) FindOrCreateActive(ctx context.Context, businessID string) (*domain.Conversation, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, businessID); err != nil {
		return nil, false, err
	}

	conv, err := scanConversation(tx.QueryRow(ctx, activeQuery, businessID))
	switch {
	case err == nil:
		if err := tx.Commit(ctx); err != nil {
			return nil, false, err
		}
		return conv, false, nil
	case !errors.Is(err, domain.ErrConversationNotFound):
		return nil, false, err
	}

	conv = &domain.Conversation{BusinessID: businessID, Status: domain.StatusOpen}
	if err := insertConversation(ctx, tx, conv); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return conv, true, nil
}

func (r *conversationRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	return insertConversation(ctx, r.pool, conv)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertConversation(ctx context.Context, q queryRower, conv *domain.Conversation) error {
	if conv == nil || conv.BusinessID == "" {
		return domain.ErrInvalidPayload
	}
	if conv.Status == "" {
		conv.Status = domain.StatusOpen
	}
	if !conv.Status.Valid() {
		return domain.ErrInvalidPayload
	}
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}

	const query = `
	INSERT INTO conversations (id, business_id, department_id, status, created_at, updated_at)
	VALUES ($1, $2, $3, $4, COALESCE($5, NOW()), NOW())
	RETURNING created_at, updated_at
	`
	return q.QueryRow(ctx, query,
		conv.ID,
		conv.BusinessID,
		nullString(conv.DepartmentID),
		string(conv.Status),
		nullTime(conv.CreatedAt),
	).Scan(&conv.CreatedAt, &conv.UpdatedAt)
}

func (r *conversationRepository) Update(ctx context.Context, id string, update repository.ConversationUpdate) (*domain.Conversation, error) {
	var status, department, expected interface{}
	if update.Status != nil {
		if !update.Status.Valid() || *update.Status == domain.StatusOpen {
			return nil, domain.ErrInvalidPayload
		}
		status = string(*update.Status)
	}
	if update.DepartmentID != nil {
		department = *update.DepartmentID
	}
	if update.IfDepartmentID != nil {
		expected = *update.IfDepartmentID
	}

	const query = `
	UPDATE conversations
	SET status = COALESCE($2, status),
		department_id = CASE
			WHEN $4::text IS NULL OR COALESCE(department_id, '') = $4::text THEN COALESCE($3, department_id)
			ELSE department_id
		END,
		updated_at = NOW()
	WHERE id = $1 AND status <> 'closed'
	RETURNING id
	`
	var updatedID string
	if err := r.pool.QueryRow(ctx, query, id, status, department, expected).Scan(&updatedID); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		current, findErr := r.Find(ctx, id, repository.ConversationFilter{})
		if findErr != nil {
			return nil, findErr
		}
		if current.IsClosed() {
			return nil, domain.ErrConversationClosed
		}
		return nil, domain.ErrConversationNotFound
	}
	return r.Find(ctx, updatedID, repository.ConversationFilter{})
}

func (r *conversationRepository) List(ctx context.Context, filter repository.ConversationFilter) ([]domain.Conversation, error) {
	const query = conversationSelect + `
	WHERE ($1 = '' OR c.id = $1)
	  AND ($2 = '' OR c.business_id = $2)
	  AND ($3 = '' OR c.department_id = $3)
	  AND ($4 = '' OR c.status = $4)
	ORDER BY c.created_at DESC
	LIMIT $5 OFFSET $6
	`
	rows, err := r.pool.Query(ctx, query,
		filter.ID,
		filter.BusinessID,
		filter.DepartmentID,
		string(filter.Status),
		repository.ClampPageSize(filter.Limit),
		filter.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *conv)
	}
	return out, rows.Err()
}

func (r *conversationRepository) Find(ctx context.Context, id string, filter repository.ConversationFilter) (*domain.Conversation, error) {
	const query = conversationSelect + `
	WHERE c.id = $1
	  AND ($2 = '' OR c.business_id = $2)
	  AND ($3 = '' OR c.department_id = $3)
	  AND ($4 = '' OR c.status = $4)
	`
	row := r.pool.QueryRow(ctx, query, id, filter.BusinessID, filter.DepartmentID, string(filter.Status))
	return scanConversation(row)
}

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	var (
		conv       domain.Conversation
		department *string
		status     string
	)
	if err := row.Scan(
		&conv.ID,
		&conv.BusinessID,
		&department,
		&conv.DepartmentName,
		&status,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, err
	}
	conv.DepartmentID = derefString(department)
	conv.Status = domain.ConversationStatus(status)
	return &conv, nil
}
