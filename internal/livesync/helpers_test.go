package livesync

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/Boredooms/HireNexa-sub002/internal/models"
	"github.com/Boredooms/HireNexa-sub002/internal/realtime"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, what string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func connectedMemory(t *testing.T) *realtime.Memory {
	t.Helper()

	client := realtime.NewMemory()
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return client
}

func publishInsert(t *testing.T, client realtime.Client, message models.Message) {
	t.Helper()

	record, err := json.Marshal(message)
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	if err := client.PublishChange(context.Background(), realtime.ChangeEvent{
		Table:  MessagesTable,
		Type:   realtime.EventInsert,
		Record: record,
	}); err != nil {
		t.Fatalf("PublishChange: %v", err)
	}
}

func chatMessage(id, matchID string, minute int) models.Message {
	return models.Message{
		ID:         id,
		MatchID:    matchID,
		SenderID:   "sender-" + id,
		SenderName: "Sender " + id,
		Body:       "body " + id,
		Kind:       models.MessageKindText,
		CreatedAt:  time.Date(2026, 3, 1, 9, minute, 0, 0, time.UTC),
	}
}

func messageIDs(messages []models.Message) []string {
	ids := make([]string, 0, len(messages))
	for _, message := range messages {
		ids = append(ids, message.ID)
	}
	return ids
}

type fakeMessageStore struct {
	mu       sync.Mutex
	messages map[string][]models.Message
	err      error
	gate     chan struct{}
	calls    chan string
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{
		messages: make(map[string][]models.Message),
		calls:    make(chan string, 32),
	}
}

func (s *fakeMessageStore) set(matchID string, messages ...models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[matchID] = append([]models.Message(nil), messages...)
}

func (s *fakeMessageStore) ListByMatch(ctx context.Context, matchID string) ([]models.Message, error) {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()

	select {
	case s.calls <- matchID:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]models.Message(nil), s.messages[matchID]...), nil
}
