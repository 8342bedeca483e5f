package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/helpdesk/domain"
	"github.com/fastygo/helpdesk/repository"
)

const foreignKeyViolation = "23503"

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository returns a Postgres-backed MessageRepository.
func NewMessageRepository(pool *pgxpool.Pool) repository.MessageRepository {
	return &messageRepository{pool: pool}
}

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	if msg == nil || msg.ConversationID == "" || strings.TrimSpace(msg.Content) == "" || !msg.Sender.Valid() {
		return domain.ErrInvalidPayload
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	const query = `
	INSERT INTO messages (id, conversation_id, sender, content)
	VALUES ($1, $2, $3, $4)
	RETURNING seq, created_at
	`
	err := r.pool.QueryRow(ctx, query, msg.ID, msg.ConversationID, string(msg.Sender), msg.Content).
		Scan(&msg.Seq, &msg.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return domain.ErrConversationNotFound
	}
	return err
}

func (r *messageRepository) ListByConversation(ctx context.Context, conversationID string) ([]domain.Message, error) {
	const query = `
	SELECT id, conversation_id, sender, content, created_at, seq
	FROM messages
	WHERE conversation_id = $1
	ORDER BY created_at ASC, seq ASC
	`
	rows, err := r.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var (
			msg    domain.Message
			sender string
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &sender, &msg.Content, &msg.CreatedAt, &msg.Seq); err != nil {
			return nil, err
		}
		msg.Sender = domain.Sender(sender)
		out = append(out, msg)
	}
	return out, rows.Err()
}
