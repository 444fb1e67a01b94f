package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/Boredooms/HireNexa-sub002/internal/livesync"
	"github.com/Boredooms/HireNexa-sub002/internal/models"
	"github.com/jackc/pgx/v5"
)

type stubMatchReader struct {
	match     *models.Match
	err       error
	summaries []models.MatchSummary
	lookups   int
	lastActor string
	lastMatch string
}

func (r *stubMatchReader) GetByIDForParticipant(_ context.Context, matchID string, participantID string) (*models.Match, error) {
	r.lookups++
	r.lastMatch = matchID
	r.lastActor = participantID
	if r.err != nil {
		return nil, r.err
	}
	return r.match, nil
}

func (r *stubMatchReader) ListForParticipant(_ context.Context, participantID string) ([]models.MatchSummary, error) {
	r.lastActor = participantID
	return r.summaries, r.err
}

type stubBroadcaster struct {
	channel string
	event   string
	payload any
	err     error
}

func (b *stubBroadcaster) Broadcast(_ context.Context, channel, event string, payload any) error {
	b.channel = channel
	b.event = event
	b.payload = payload
	return b.err
}

type failingTxStarter struct {
	calls int
}

func (s *failingTxStarter) Begin(_ context.Context) (pgx.Tx, error) {
	s.calls++
	return nil, errors.New("begin should not be reached")
}

func TestChatServiceSendMessageValidatesBeforeTouchingStorage(t *testing.T) {
	tests := []struct {
		name  string
		input SendMessageInput
		want  error
	}{
		{name: "blank body", input: SendMessageInput{MatchID: "m1", Body: "   "}, want: ErrInvalidInput},
		{name: "missing match", input: SendMessageInput{MatchID: " ", Body: "hi"}, want: ErrInvalidInput},
		{name: "unknown kind", input: SendMessageInput{MatchID: "m1", Body: "hi", Kind: "invoice"}, want: ErrInvalidKind},
		{name: "body too large", input: SendMessageInput{MatchID: "m1", Body: strings.Repeat("x", MaxMessageBodyBytes+1)}, want: ErrInvalidInput},
		{name: "sender name too long", input: SendMessageInput{MatchID: "m1", Body: "hi", SenderName: strings.Repeat("n", MaxSenderNameLength+1)}, want: ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches := &stubMatchReader{match: &models.Match{ID: "m1", UserAID: "alice", UserBID: "bob"}}
			db := &failingTxStarter{}
			service := NewChatService(db, matches, &stubBroadcaster{}, nil)

			_, err := service.SendMessage(context.Background(), "alice", tt.input)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if matches.lookups != 0 || db.calls != 0 {
				t.Fatalf("invalid input must not reach storage")
			}
		})
	}
}

func TestChatServiceSendMessageRejectsNonParticipant(t *testing.T) {
	db := &failingTxStarter{}
	service := NewChatService(db, &stubMatchReader{err: pgx.ErrNoRows}, &stubBroadcaster{}, nil)

	_, err := service.SendMessage(context.Background(), "mallory", SendMessageInput{MatchID: "m1", Body: "hi"})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if db.calls != 0 {
		t.Fatalf("transaction must not start for a non-participant")
	}
}

func TestNormalizeMessageInputDefaultsKind(t *testing.T) {
	input, err := normalizeMessageInput(SendMessageInput{MatchID: " m1 ", Body: " hello ", Kind: " Proposal ", SenderName: " Ada "})
	if err != nil {
		t.Fatalf("normalizeMessageInput: %v", err)
	}
	if input.MatchID != "m1" || input.Body != "hello" || input.Kind != models.MessageKindProposal || input.SenderName != "Ada" {
		t.Fatalf("unexpected normalized input: %+v", input)
	}

	input, err = normalizeMessageInput(SendMessageInput{MatchID: "m1", Body: "hello"})
	if err != nil {
		t.Fatalf("normalizeMessageInput: %v", err)
	}
	if input.Kind != models.MessageKindText {
		t.Fatalf("expected default text kind, got %q", input.Kind)
	}
}

func TestChatServiceAnnounceTypingBroadcastsSignal(t *testing.T) {
	broadcaster := &stubBroadcaster{}
	service := NewChatService(&failingTxStarter{}, &stubMatchReader{match: &models.Match{ID: "m1", UserAID: "alice", UserBID: "bob"}}, broadcaster, nil)

	if err := service.AnnounceTyping(context.Background(), "alice", "m1", true); err != nil {
		t.Fatalf("AnnounceTyping: %v", err)
	}

	if broadcaster.channel != livesync.TypingChannel("m1") || broadcaster.event != livesync.TypingEvent {
		t.Fatalf("unexpected channel/event: %q %q", broadcaster.channel, broadcaster.event)
	}
	raw, _ := json.Marshal(broadcaster.payload)
	var signal models.TypingSignal
	if err := json.Unmarshal(raw, &signal); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if signal != (models.TypingSignal{MatchID: "m1", UserID: "alice", IsTyping: true}) {
		t.Fatalf("unexpected signal: %+v", signal)
	}
}

func TestChatServiceAnnounceTypingReturnsBroadcastError(t *testing.T) {
	broadcaster := &stubBroadcaster{err: errors.New("transport down")}
	service := NewChatService(&failingTxStarter{}, &stubMatchReader{match: &models.Match{ID: "m1", UserAID: "alice", UserBID: "bob"}}, broadcaster, nil)

	if err := service.AnnounceTyping(context.Background(), "alice", "m1", false); err == nil {
		t.Fatalf("expected broadcast error")
	}
}

func TestChatServiceAuthorizeMatchMapsMissingRow(t *testing.T) {
	service := NewChatService(&failingTxStarter{}, &stubMatchReader{err: pgx.ErrNoRows}, &stubBroadcaster{}, nil)

	if _, err := service.AuthorizeMatch(context.Background(), "alice", "m1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := service.AuthorizeMatch(context.Background(), "", "m1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for anonymous caller, got %v", err)
	}
}

func TestChatServiceListMessagesRejectsBadPaging(t *testing.T) {
	matches := &stubMatchReader{match: &models.Match{ID: "m1"}}
	service := NewChatService(&failingTxStarter{}, matches, &stubBroadcaster{}, nil)

	if _, _, err := service.ListMessages(context.Background(), "alice", "m1", 0, 20); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if matches.lookups != 0 {
		t.Fatalf("paging validation must run before the match lookup")
	}
}
