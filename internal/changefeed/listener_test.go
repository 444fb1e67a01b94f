package changefeed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Boredooms/HireNexa-sub002/internal/realtime"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func TestDecodeTriggerPayload(t *testing.T) {
	event, err := Decode(`{
		"table": "messages",
		"type": "INSERT",
		"commit_timestamp": "2026-03-01T09:00:00.123456+00:00",
		"record": {"id": "m1", "match_id": "x", "body": "hi"},
		"old_record": null
	}`)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if event.Table != "messages" || event.Type != realtime.EventInsert {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.CommitTimestamp.Year() != 2026 {
		t.Fatalf("unexpected commit timestamp %s", event.CommitTimestamp)
	}
	if !(realtime.Filter{Table: "messages", Event: realtime.EventInsert, Column: "match_id", Value: "x"}).Matches(event) {
		t.Fatalf("expected decoded event to match its own filter")
	}
}

func TestDecodeRejectsMalformedPayloads(t *testing.T) {
	for _, payload := range []string{
		`not json`,
		`{"type":"INSERT"}`,
		`{"table":"messages","type":"TRUNCATE"}`,
	} {
		if _, err := Decode(payload); !errors.Is(err, ErrMalformedPayload) {
			t.Fatalf("payload %q: expected ErrMalformedPayload, got %v", payload, err)
		}
	}
}

type recordingPublisher struct {
	events chan realtime.ChangeEvent
	err    error
}

func (p *recordingPublisher) PublishChange(_ context.Context, event realtime.ChangeEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events <- event
	return nil
}

func TestHandleSkipsBadPayloadAndSurvivesPublishErrors(t *testing.T) {
	publisher := &recordingPublisher{events: make(chan realtime.ChangeEvent, 1), err: errors.New("broker down")}
	listener := NewListener(nil, Channel, publisher, zap.NewNop())

	listener.handle(context.Background(), `garbage`)
	listener.handle(context.Background(), `{"table":"assignments","type":"UPDATE","record":{"id":"a"}}`)

	publisher.err = nil
	listener.handle(context.Background(), `{"table":"assignments","type":"DELETE","old_record":{"id":"a"}}`)

	select {
	case event := <-publisher.events:
		if event.Type != realtime.EventDelete {
			t.Fatalf("unexpected event %+v", event)
		}
	default:
		t.Fatalf("expected one published event")
	}
}

func TestWaitForRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := waitForRetry(ctx, 10); err == nil {
		t.Fatalf("expected cancellation error")
	}
}

func TestRunRequestsResyncAfterRelisten(t *testing.T) {
	publisher := &recordingPublisher{events: make(chan realtime.ChangeEvent, 1)}
	listener := NewListener(nil, Channel, publisher, zap.NewNop())

	resyncs := make(chan struct{}, 4)
	listener.OnRelisten(func() { resyncs <- struct{}{} })

	sessions := 0
	listener.session = func(context.Context) (int, error) {
		sessions++
		listener.markListening()
		return 1, errors.New("connection reset")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		listener.Run(ctx)
	}()

	select {
	case <-resyncs:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a resync request after the second LISTEN")
	}
	cancel()
	<-done

	if sessions < 2 {
		t.Fatalf("expected at least two sessions, got %d", sessions)
	}
	if got := len(resyncs); got != sessions-2 {
		t.Fatalf("expected one resync per re-established LISTEN, got %d extra for %d sessions", got, sessions)
	}
}

func TestFirstListenDoesNotRequestResync(t *testing.T) {
	listener := NewListener(nil, Channel, &recordingPublisher{}, zap.NewNop())

	calls := 0
	listener.OnRelisten(func() { calls++ })
	listener.markListening()
	if calls != 0 {
		t.Fatalf("first LISTEN must not request a resync")
	}

	listener.markListening()
	if calls != 1 {
		t.Fatalf("expected one resync request, got %d", calls)
	}
}

func TestListenerPublishesInsertedRows(t *testing.T) {
	_ = godotenv.Load(filepath.Join("..", "..", ".env"))
	dbURL := os.Getenv("DB_URL")
	if dbURL == "" {
		t.Skip("skipping integration test: DB_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Skipf("skipping integration test: %v", err)
	}
	defer pool.Close()

	publisher := &recordingPublisher{events: make(chan realtime.ChangeEvent, 8)}
	listener := NewListener(pool, Channel, publisher, zap.NewNop())

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go listener.Run(runCtx)

	// LISTEN is issued asynchronously; give it a moment before inserting.
	time.Sleep(300 * time.Millisecond)

	matchID := uuid.NewString()
	userA, userB := uuid.NewString(), uuid.NewString()
	if _, err := pool.Exec(ctx, `INSERT INTO matches (id, user_a_id, user_b_id) VALUES ($1, $2, $3)`, matchID, userA, userB); err != nil {
		t.Fatalf("insert match: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM matches WHERE id = $1`, matchID)
	})
	if _, err := pool.Exec(ctx, `INSERT INTO messages (match_id, sender_id, body) VALUES ($1, $2, 'hello')`, matchID, userA); err != nil {
		t.Fatalf("insert message: %v", err)
	}

	filter := realtime.Filter{Table: "messages", Event: realtime.EventInsert, Column: "match_id", Value: matchID}
	for {
		select {
		case event := <-publisher.events:
			if filter.Matches(event) {
				return
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for message change event")
		}
	}
}

func TestListenerReceivesKeysForOversizedRows(t *testing.T) {
	_ = godotenv.Load(filepath.Join("..", "..", ".env"))
	dbURL := os.Getenv("DB_URL")
	if dbURL == "" {
		t.Skip("skipping integration test: DB_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Skipf("skipping integration test: %v", err)
	}
	defer pool.Close()

	publisher := &recordingPublisher{events: make(chan realtime.ChangeEvent, 8)}
	listener := NewListener(pool, Channel, publisher, zap.NewNop())

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go listener.Run(runCtx)

	time.Sleep(300 * time.Millisecond)

	matchID := uuid.NewString()
	userA, userB := uuid.NewString(), uuid.NewString()
	if _, err := pool.Exec(ctx, `INSERT INTO matches (id, user_a_id, user_b_id) VALUES ($1, $2, $3)`, matchID, userA, userB); err != nil {
		t.Fatalf("insert match: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM matches WHERE id = $1`, matchID)
	})

	body := strings.Repeat(`"`, 5000)
	if _, err := pool.Exec(ctx, `INSERT INTO messages (match_id, sender_id, body) VALUES ($1, $2, $3)`, matchID, userA, body); err != nil {
		t.Fatalf("oversized row must still be written: %v", err)
	}

	filter := realtime.Filter{Table: "messages", Event: realtime.EventInsert, Column: "match_id", Value: matchID}
	for {
		select {
		case event := <-publisher.events:
			if !filter.Matches(event) {
				continue
			}
			if !event.Partial {
				t.Fatalf("expected a partial event for an oversized row")
			}
			var row struct {
				ID   string `json:"id"`
				Body string `json:"body"`
			}
			if err := event.Decode(&row); err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if row.ID == "" || row.Body != "" {
				t.Fatalf("expected keys only, got %+v", row)
			}
			return
		case <-ctx.Done():
			t.Fatalf("timed out waiting for message change event")
		}
	}
}
