// Package livesync keeps in-memory views of server state current by
// combining one bulk read with a realtime subscription.
//
// Every component owns a single consumer goroutine. Subscription
// callbacks only enqueue; all state mutation happens on the consumer,
// and readers take copies under a read lock.
package livesync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Boredooms/HireNexa-sub002/internal/models"
	"github.com/Boredooms/HireNexa-sub002/internal/realtime"
	"go.uber.org/zap"
)

type Status string

const (
	StatusIdle         Status = "idle"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

const (
	MessagesTable = "messages"

	eventBuffer = 256
	loadTimeout = 10 * time.Second
)

type MessageStore interface {
	ListByMatch(ctx context.Context, matchID string) ([]models.Message, error)
}

type feedEventKind int

const (
	feedInserted feedEventKind = iota
	feedSnapshot
	feedResyncRequested
	feedResync
)

type feedEvent struct {
	kind     feedEventKind
	message  models.Message
	snapshot []models.Message
	err      error
}

type feedSession struct {
	matchID         string
	events          chan feedEvent
	sub             realtime.Subscription
	removeReconnect func()
	ctx             context.Context
	cancel          context.CancelFunc
	done            chan struct{}
}

func (s *feedSession) enqueue(event feedEvent) {
	select {
	case s.events <- event:
	case <-s.ctx.Done():
	}
}

// MessageFeed is the live, append-only message sequence of one match.
//
// It subscribes to inserts before issuing the history read and
// de-duplicates by message id, so a row inserted while the read is in
// flight shows up exactly once.
type MessageFeed struct {
	client realtime.Client
	store  MessageStore
	logger *zap.Logger

	mu       sync.RWMutex
	matchID  string
	messages []models.Message
	loading  bool
	status   Status

	updates chan struct{}

	lifecycle sync.Mutex
	session   *feedSession
}

func NewMessageFeed(client realtime.Client, store MessageStore, logger *zap.Logger) *MessageFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageFeed{
		client:   client,
		store:    store,
		logger:   logger,
		messages: make([]models.Message, 0),
		status:   StatusIdle,
		updates:  make(chan struct{}, 1),
	}
}

// Open switches the feed to matchID. Any previous subscription is
// released before the new one is created.
func (f *MessageFeed) Open(ctx context.Context, matchID string) error {
	if matchID == "" {
		return fmt.Errorf("open message feed: empty match id")
	}

	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()

	if err := f.closeSessionLocked(); err != nil {
		f.logger.Warn("release previous message subscription", zap.Error(err))
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	session := &feedSession{
		matchID: matchID,
		events:  make(chan feedEvent, eventBuffer),
		ctx:     sessionCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	f.mu.Lock()
	f.matchID = matchID
	f.messages = make([]models.Message, 0)
	f.loading = true
	f.status = StatusIdle
	f.mu.Unlock()
	f.notify()

	go f.consume(session)
	f.session = session

	sub, subErr := f.client.SubscribeChanges(ctx, realtime.Filter{
		Table:  MessagesTable,
		Event:  realtime.EventInsert,
		Column: "match_id",
		Value:  matchID,
	}, func(event realtime.ChangeEvent) {
		if event.Partial {
			session.enqueue(feedEvent{kind: feedResyncRequested})
			return
		}
		var message models.Message
		if err := event.Decode(&message); err != nil {
			f.logger.Warn("dropping undecodable message event", zap.String("match_id", matchID), zap.Error(err))
			return
		}
		session.enqueue(feedEvent{kind: feedInserted, message: message})
	})

	go f.load(session, feedSnapshot)

	if subErr != nil {
		f.setStatus(StatusDisconnected)
		f.logger.Error("message subscription failed", zap.String("match_id", matchID), zap.Error(subErr))
		return fmt.Errorf("subscribe to match %s: %w", matchID, subErr)
	}

	session.sub = sub
	session.removeReconnect = f.client.OnReconnect(func() {
		session.enqueue(feedEvent{kind: feedResyncRequested})
	})
	f.setStatus(StatusConnected)
	return nil
}

// Close releases the subscription exactly once. The last sequence stays
// readable.
func (f *MessageFeed) Close() error {
	f.lifecycle.Lock()
	defer f.lifecycle.Unlock()

	err := f.closeSessionLocked()
	f.setStatus(StatusIdle)
	return err
}

func (f *MessageFeed) closeSessionLocked() error {
	session := f.session
	if session == nil {
		return nil
	}
	f.session = nil

	if session.removeReconnect != nil {
		session.removeReconnect()
	}
	var err error
	if session.sub != nil {
		err = session.sub.Unsubscribe()
	}
	session.cancel()
	<-session.done
	return err
}

func (f *MessageFeed) MatchID() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.matchID
}

// Messages returns a copy of the current sequence.
func (f *MessageFeed) Messages() []models.Message {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]models.Message, len(f.messages))
	copy(out, f.messages)
	return out
}

func (f *MessageFeed) Loading() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.loading
}

func (f *MessageFeed) Status() Status {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.status
}

// Updates receives a value whenever the sequence, loading flag or status
// may have changed. Signals coalesce.
func (f *MessageFeed) Updates() <-chan struct{} {
	return f.updates
}

func (f *MessageFeed) notify() {
	select {
	case f.updates <- struct{}{}:
	default:
	}
}

func (f *MessageFeed) setStatus(status Status) {
	f.mu.Lock()
	changed := f.status != status
	f.status = status
	f.mu.Unlock()
	if changed {
		f.notify()
	}
}

func (f *MessageFeed) load(session *feedSession, kind feedEventKind) {
	ctx, cancel := context.WithTimeout(session.ctx, loadTimeout)
	defer cancel()

	messages, err := f.store.ListByMatch(ctx, session.matchID)
	session.enqueue(feedEvent{kind: kind, snapshot: messages, err: err})
}

// consume is the only writer of f.messages while the session is open.
func (f *MessageFeed) consume(session *feedSession) {
	defer close(session.done)

	seen := make(map[string]struct{})
	pending := make([]models.Message, 0)
	loaded := false
	resyncAfterLoad := false

	for {
		select {
		case <-session.ctx.Done():
			return
		case event := <-session.events:
			switch event.kind {
			case feedInserted:
				if _, ok := seen[event.message.ID]; ok {
					f.logger.Debug("duplicate message suppressed", zap.String("message_id", event.message.ID))
					continue
				}
				seen[event.message.ID] = struct{}{}
				if !loaded {
					pending = append(pending, event.message)
					continue
				}
				f.appendMessages(event.message)

			case feedSnapshot:
				loaded = true
				if event.err != nil {
					f.logger.Error("initial message load failed",
						zap.String("match_id", session.matchID),
						zap.Error(event.err),
					)
				}

				inSnapshot := make(map[string]struct{}, len(event.snapshot))
				merged := make([]models.Message, 0, len(event.snapshot)+len(pending))
				for _, message := range event.snapshot {
					if _, ok := inSnapshot[message.ID]; ok {
						continue
					}
					inSnapshot[message.ID] = struct{}{}
					seen[message.ID] = struct{}{}
					merged = append(merged, message)
				}
				for _, message := range pending {
					if _, ok := inSnapshot[message.ID]; ok {
						continue
					}
					merged = append(merged, message)
				}
				pending = nil

				f.mu.Lock()
				f.messages = merged
				f.loading = false
				f.mu.Unlock()
				f.notify()

				if resyncAfterLoad {
					resyncAfterLoad = false
					go f.load(session, feedResync)
				}

			case feedResyncRequested:
				// The snapshot read may have started before the row
				// committed, so a request during loading is replayed after it.
				if !loaded {
					resyncAfterLoad = true
					continue
				}
				go f.load(session, feedResync)

			case feedResync:
				if event.err != nil {
					f.logger.Warn("message resync failed", zap.String("match_id", session.matchID), zap.Error(event.err))
					continue
				}
				missing := make([]models.Message, 0)
				for _, message := range event.snapshot {
					if _, ok := seen[message.ID]; ok {
						continue
					}
					seen[message.ID] = struct{}{}
					missing = append(missing, message)
				}
				if len(missing) > 0 {
					f.logger.Info("resync recovered messages",
						zap.String("match_id", session.matchID),
						zap.Int("count", len(missing)),
					)
					f.appendMessages(missing...)
				}
			}
		}
	}
}

func (f *MessageFeed) appendMessages(messages ...models.Message) {
	f.mu.Lock()
	f.messages = append(f.messages, messages...)
	f.mu.Unlock()
	f.notify()
}
