package repository

import (
	"context"
	"database/sql"

	"github.com/Boredooms/HireNexa-sub002/internal/models"
)

type MatchRepository struct {
	db DBTX
}

func NewMatchRepository(db DBTX) *MatchRepository {
	return &MatchRepository{db: db}
}

func (r *MatchRepository) GetByIDForParticipant(
	ctx context.Context,
	matchID string,
	participantID string,
) (*models.Match, error) {
	query := `
		SELECT id, user_a_id, user_b_id, created_at, updated_at
		FROM matches
		WHERE id = $1 AND (user_a_id = $2 OR user_b_id = $2)
	`

	var match models.Match
	err := r.db.QueryRow(ctx, query, matchID, participantID).Scan(
		&match.ID,
		&match.UserAID,
		&match.UserBID,
		&match.CreatedAt,
		&match.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &match, nil
}

func (r *MatchRepository) ListForParticipant(
	ctx context.Context,
	participantID string,
) ([]models.MatchSummary, error) {
	query := `
		SELECT
			m.id,
			m.user_a_id,
			m.user_b_id,
			m.created_at,
			m.updated_at,
			lm.id,
			lm.match_id,
			lm.sender_id,
			lm.sender_name,
			lm.body,
			lm.kind,
			lm.is_read,
			lm.created_at,
			COALESCE(uc.unread_count, 0)
		FROM matches m
		LEFT JOIN LATERAL (
			SELECT id, match_id, sender_id, sender_name, body, kind, is_read, created_at
			FROM messages
			WHERE match_id = m.id
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		) lm ON TRUE
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS unread_count
			FROM messages
			WHERE match_id = m.id
			  AND sender_id <> $1
			  AND is_read = FALSE
		) uc ON TRUE
		WHERE m.user_a_id = $1 OR m.user_b_id = $1
		ORDER BY COALESCE(lm.created_at, m.updated_at, m.created_at) DESC, m.id DESC
	`

	rows, err := r.db.Query(ctx, query, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]models.MatchSummary, 0)
	for rows.Next() {
		var summary models.MatchSummary
		var messageID sql.NullString
		var messageMatchID sql.NullString
		var messageSenderID sql.NullString
		var messageSenderName sql.NullString
		var messageBody sql.NullString
		var messageKind sql.NullString
		var messageIsRead sql.NullBool
		var messageCreatedAt sql.NullTime

		if err := rows.Scan(
			&summary.ID,
			&summary.UserAID,
			&summary.UserBID,
			&summary.CreatedAt,
			&summary.UpdatedAt,
			&messageID,
			&messageMatchID,
			&messageSenderID,
			&messageSenderName,
			&messageBody,
			&messageKind,
			&messageIsRead,
			&messageCreatedAt,
			&summary.UnreadCount,
		); err != nil {
			return nil, err
		}

		if messageID.Valid {
			summary.LastMessage = &models.Message{
				ID:         messageID.String,
				MatchID:    messageMatchID.String,
				SenderID:   messageSenderID.String,
				SenderName: messageSenderName.String,
				Body:       messageBody.String,
				Kind:       messageKind.String,
				IsRead:     messageIsRead.Bool,
				CreatedAt:  messageCreatedAt.Time,
			}
		}

		summaries = append(summaries, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}

func (r *MatchRepository) Touch(ctx context.Context, matchID string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE matches
		SET updated_at = NOW()
		WHERE id = $1
	`, matchID)
	return err
}
