// Package realtime is the publish/subscribe layer the live views sit on.
//
// Two kinds of traffic flow through a Client: row-change events emitted
// by the database (see the changefeed package) and ephemeral broadcasts
// such as typing signals. Drivers exist for NATS, Redis and an
// in-process fan-out used for single-node runs and tests.
package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
	EventAll    EventType = "*"
)

var (
	ErrNotConnected  = errors.New("realtime: client not connected")
	ErrInvalidFilter = errors.New("realtime: invalid filter")
	ErrUnknownDriver = errors.New("realtime: unknown driver")
)

// ChangeEvent mirrors the payload written by the notify_row_change trigger.
type ChangeEvent struct {
	Table           string          `json:"table"`
	Type            EventType       `json:"type"`
	Record          json.RawMessage `json:"record,omitempty"`
	OldRecord       json.RawMessage `json:"old_record,omitempty"`
	CommitTimestamp time.Time       `json:"commit_timestamp"`
	// Partial rows carry only their keys because the full row did not fit
	// in a notification. Subscribers re-read them from the store.
	Partial bool `json:"partial,omitempty"`
}

// Row returns the new row, or the old row for deletes.
func (e ChangeEvent) Row() json.RawMessage {
	if len(e.Record) > 0 && !bytes.Equal(e.Record, []byte("null")) {
		return e.Record
	}
	return e.OldRecord
}

func (e ChangeEvent) Decode(dst any) error {
	row := e.Row()
	if len(row) == 0 {
		return fmt.Errorf("decode %s event on %s: empty row", e.Type, e.Table)
	}
	if err := json.Unmarshal(row, dst); err != nil {
		return fmt.Errorf("decode %s event on %s: %w", e.Type, e.Table, err)
	}
	return nil
}

// Filter scopes a change subscription to one table, one event kind (or
// EventAll) and optionally rows whose Column equals Value.
type Filter struct {
	Table  string
	Event  EventType
	Column string
	Value  string
}

func (f Filter) Validate() error {
	if f.Table == "" {
		return fmt.Errorf("%w: table is required", ErrInvalidFilter)
	}
	switch f.Event {
	case EventInsert, EventUpdate, EventDelete, EventAll:
	default:
		return fmt.Errorf("%w: unsupported event %q", ErrInvalidFilter, f.Event)
	}
	if (f.Column == "") != (f.Value == "") {
		return fmt.Errorf("%w: column and value go together", ErrInvalidFilter)
	}
	return nil
}

func (f Filter) Matches(event ChangeEvent) bool {
	if event.Table != f.Table {
		return false
	}
	if f.Event != EventAll && event.Type != f.Event {
		return false
	}
	if f.Column == "" {
		return true
	}

	value, ok := event.columnValue(f.Column)
	return ok && value == f.Value
}

func (e ChangeEvent) columnValue(column string) (string, bool) {
	decoder := json.NewDecoder(bytes.NewReader(e.Row()))
	decoder.UseNumber()
	var row map[string]any
	if err := decoder.Decode(&row); err != nil {
		return "", false
	}
	value, ok := row[column]
	if !ok || value == nil {
		return "", false
	}
	return fmt.Sprint(value), true
}

type BroadcastMessage struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type Subscription interface {
	Unsubscribe() error
}

type ChangeHandler func(ChangeEvent)

type BroadcastHandler func(BroadcastMessage)

// Client is owned by the composition root: Connect before first use,
// Close on shutdown. Handlers run on a driver goroutine and must not block.
type Client interface {
	Connect(ctx context.Context) error
	Close() error
	PublishChange(ctx context.Context, event ChangeEvent) error
	SubscribeChanges(ctx context.Context, filter Filter, handler ChangeHandler) (Subscription, error)
	Broadcast(ctx context.Context, channel, event string, payload any) error
	OnBroadcast(ctx context.Context, channel, event string, handler BroadcastHandler) (Subscription, error)
	// OnReconnect registers fn to run after the transport recovers from a
	// disconnect. The returned func removes it.
	OnReconnect(fn func()) func()
	// NotifyReconnect runs the reconnect listeners. The change source calls
	// it after recovering from a gap in which events may have been lost.
	NotifyReconnect()
}

type Options struct {
	Driver     string
	NatsURL    string
	NatsStream string
	RedisURL   string
	Logger     *zap.Logger
}

func New(opts Options) (Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	switch opts.Driver {
	case "", "memory":
		return NewMemory(), nil
	case "nats":
		return NewNATS(NATSOptions{URL: opts.NatsURL, Stream: opts.NatsStream, Logger: logger}), nil
	case "redis":
		return NewRedis(RedisOptions{URL: opts.RedisURL, Logger: logger}), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}
}

// subscription releases its resources exactly once.
type subscription struct {
	once    sync.Once
	release func() error
	err     error
}

func newSubscription(release func() error) *subscription {
	return &subscription{release: release}
}

func (s *subscription) Unsubscribe() error {
	s.once.Do(func() {
		s.err = s.release()
	})
	return s.err
}

type reconnectListeners struct {
	mu   sync.Mutex
	next int
	fns  map[int]func()
}

func (l *reconnectListeners) add(fn func()) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fns == nil {
		l.fns = make(map[int]func())
	}
	id := l.next
	l.next++
	l.fns[id] = fn

	return func() {
		l.mu.Lock()
		delete(l.fns, id)
		l.mu.Unlock()
	}
}

func (l *reconnectListeners) fire() {
	l.mu.Lock()
	ids := make([]int, 0, len(l.fns))
	for id := range l.fns {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, l.fns[id])
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func encodePayload(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case json.RawMessage:
		return v, nil
	case []byte:
		return v, nil
	default:
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode broadcast payload: %w", err)
		}
		return encoded, nil
	}
}
