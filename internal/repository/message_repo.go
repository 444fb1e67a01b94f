package repository

import (
	"context"

	"github.com/Boredooms/HireNexa-sub002/internal/models"
	"github.com/jackc/pgx/v5"
)

const messageColumns = `id, match_id, sender_id, sender_name, body, kind, is_read, created_at`

type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

type CreateMessageInput struct {
	ID         string
	MatchID    string
	SenderID   string
	SenderName string
	Body       string
	Kind       string
}

func (r *MessageRepository) Create(ctx context.Context, input CreateMessageInput) (*models.Message, error) {
	query := `
		INSERT INTO messages (id, match_id, sender_id, sender_name, body, kind, is_read)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)
		RETURNING ` + messageColumns

	return scanMessage(r.db.QueryRow(
		ctx,
		query,
		input.ID,
		input.MatchID,
		input.SenderID,
		input.SenderName,
		input.Body,
		input.Kind,
	))
}

// ListByMatch returns the full history of a match, oldest first.
func (r *MessageRepository) ListByMatch(ctx context.Context, matchID string) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE match_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, matchID)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

func (r *MessageRepository) ListPage(
	ctx context.Context,
	matchID string,
	limit int,
	offset int,
) ([]models.Message, int, error) {
	totalQuery := `
		SELECT COUNT(*)
		FROM messages
		WHERE match_id = $1
	`

	var total int
	if err := r.db.QueryRow(ctx, totalQuery, matchID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE match_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, matchID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	messages, err := collectMessages(rows)
	if err != nil {
		return nil, 0, err
	}

	return messages, total, nil
}

func (r *MessageRepository) MarkMessagesRead(
	ctx context.Context,
	messageIDs []string,
	readerID string,
) error {
	if len(messageIDs) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `
		UPDATE messages
		SET is_read = TRUE
		WHERE id = ANY($1)
		  AND sender_id <> $2
		  AND is_read = FALSE
	`, messageIDs, readerID)
	return err
}

func (r *MessageRepository) MarkMatchRead(
	ctx context.Context,
	matchID string,
	readerID string,
) error {
	_, err := r.db.Exec(ctx, `
		UPDATE messages
		SET is_read = TRUE
		WHERE match_id = $1
		  AND sender_id <> $2
		  AND is_read = FALSE
	`, matchID, readerID)
	return err
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var message models.Message
	err := row.Scan(
		&message.ID,
		&message.MatchID,
		&message.SenderID,
		&message.SenderName,
		&message.Body,
		&message.Kind,
		&message.IsRead,
		&message.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func collectMessages(rows pgx.Rows) ([]models.Message, error) {
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *message)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}
