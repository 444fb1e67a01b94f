package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Boredooms/HireNexa-sub002/internal/livesync"
	"github.com/Boredooms/HireNexa-sub002/internal/models"
	"github.com/Boredooms/HireNexa-sub002/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Accepted messages must also fit a change notification once encoded;
// see fitsChangeNotification.
const (
	MaxMessageBodyBytes = 4000
	MaxSenderNameLength = 120
)

type txStarter interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type matchReader interface {
	GetByIDForParticipant(ctx context.Context, matchID string, participantID string) (*models.Match, error)
	ListForParticipant(ctx context.Context, participantID string) ([]models.MatchSummary, error)
}

type broadcaster interface {
	Broadcast(ctx context.Context, channel, event string, payload any) error
}

type ChatService struct {
	db          txStarter
	matchRepo   matchReader
	broadcaster broadcaster
	logger      *zap.Logger
}

type ChatDelivery struct {
	Match       *models.Match
	Message     *models.Message
	RecipientID string
}

type SendMessageInput struct {
	MatchID    string
	Body       string
	Kind       string
	SenderName string
}

func NewChatService(
	db txStarter,
	matchRepo matchReader,
	broadcaster broadcaster,
	logger *zap.Logger,
) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		db:          db,
		matchRepo:   matchRepo,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

func (s *ChatService) ListMatches(ctx context.Context, actorID string) ([]models.MatchSummary, error) {
	if actorID == "" {
		return nil, ErrForbidden
	}
	return s.matchRepo.ListForParticipant(ctx, actorID)
}

// AuthorizeMatch returns the match if actorID takes part in it.
func (s *ChatService) AuthorizeMatch(ctx context.Context, actorID, matchID string) (*models.Match, error) {
	if actorID == "" {
		return nil, ErrForbidden
	}
	if strings.TrimSpace(matchID) == "" {
		return nil, ErrInvalidInput
	}

	match, err := s.matchRepo.GetByIDForParticipant(ctx, matchID, actorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load match: %w", err)
	}
	return match, nil
}

// ListMessages returns one page of history, newest first, and marks the
// returned messages from the other participant as read.
func (s *ChatService) ListMessages(
	ctx context.Context,
	actorID string,
	matchID string,
	page int,
	limit int,
) ([]models.Message, int, error) {
	if page <= 0 || limit <= 0 {
		return nil, 0, ErrInvalidInput
	}
	if _, err := s.AuthorizeMatch(ctx, actorID, matchID); err != nil {
		return nil, 0, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txMessageRepo := repository.NewMessageRepository(tx)

	messages, total, err := txMessageRepo.ListPage(ctx, matchID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}

	messageIDs := make([]string, 0, len(messages))
	for _, message := range messages {
		messageIDs = append(messageIDs, message.ID)
	}

	if err := txMessageRepo.MarkMessagesRead(ctx, messageIDs, actorID); err != nil {
		return nil, 0, err
	}

	for i := range messages {
		if messages[i].SenderID != actorID {
			messages[i].IsRead = true
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, err
	}

	return messages, total, nil
}

// MarkRead flags every message of the match not sent by actorID as read.
func (s *ChatService) MarkRead(ctx context.Context, actorID, matchID string) error {
	if _, err := s.AuthorizeMatch(ctx, actorID, matchID); err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := repository.NewMessageRepository(tx).MarkMatchRead(ctx, matchID, actorID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SendMessage persists a message. Delivery to live views happens through
// the change feed, not here.
func (s *ChatService) SendMessage(
	ctx context.Context,
	actorID string,
	input SendMessageInput,
) (*ChatDelivery, error) {
	normalized, err := normalizeMessageInput(input)
	if err != nil {
		return nil, err
	}

	match, err := s.AuthorizeMatch(ctx, actorID, normalized.MatchID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrForbidden
		}
		return nil, err
	}

	row := models.Message{
		ID:         uuid.NewString(),
		MatchID:    match.ID,
		SenderID:   actorID,
		SenderName: normalized.SenderName,
		Body:       normalized.Body,
		Kind:       normalized.Kind,
		CreatedAt:  time.Now().UTC(),
	}
	if !fitsChangeNotification(row) {
		return nil, ErrInvalidInput
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txMessageRepo := repository.NewMessageRepository(tx)
	txMatchRepo := repository.NewMatchRepository(tx)

	message, err := txMessageRepo.Create(ctx, repository.CreateMessageInput{
		ID:         row.ID,
		MatchID:    row.MatchID,
		SenderID:   row.SenderID,
		SenderName: row.SenderName,
		Body:       row.Body,
		Kind:       row.Kind,
	})
	if err != nil {
		s.logger.Error("message insert failed", zap.String("match_id", match.ID), zap.Error(err))
		return nil, fmt.Errorf("insert message: %w", err)
	}

	if err := txMatchRepo.Touch(ctx, match.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &ChatDelivery{
		Match:       match,
		Message:     message,
		RecipientID: match.Counterpart(actorID),
	}, nil
}

// AnnounceTyping broadcasts a typing signal to the other participant.
// It is best-effort and never retried.
func (s *ChatService) AnnounceTyping(ctx context.Context, actorID, matchID string, isTyping bool) error {
	if _, err := s.AuthorizeMatch(ctx, actorID, matchID); err != nil {
		return err
	}

	signal := models.TypingSignal{MatchID: matchID, UserID: actorID, IsTyping: isTyping}
	if err := s.broadcaster.Broadcast(ctx, livesync.TypingChannel(matchID), livesync.TypingEvent, signal); err != nil {
		s.logger.Warn("typing broadcast failed", zap.String("match_id", matchID), zap.Error(err))
		return fmt.Errorf("broadcast typing: %w", err)
	}
	return nil
}

func normalizeMessageInput(input SendMessageInput) (SendMessageInput, error) {
	input.MatchID = strings.TrimSpace(input.MatchID)
	if input.MatchID == "" {
		return input, ErrInvalidInput
	}

	input.Body = strings.TrimSpace(input.Body)
	if input.Body == "" || len(input.Body) > MaxMessageBodyBytes {
		return input, ErrInvalidInput
	}

	input.Kind = strings.ToLower(strings.TrimSpace(input.Kind))
	switch input.Kind {
	case "":
		input.Kind = models.MessageKindText
	case models.MessageKindText, models.MessageKindProposal:
	default:
		return input, ErrInvalidKind
	}

	input.SenderName = strings.TrimSpace(input.SenderName)
	if len([]rune(input.SenderName)) > MaxSenderNameLength {
		return input, ErrInvalidInput
	}

	return input, nil
}

func FormatChatTimestamp(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339)
}
