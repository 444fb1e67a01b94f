// Package changefeed turns Postgres NOTIFY payloads written by the
// notify_row_change trigger into realtime change events.
package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Boredooms/HireNexa-sub002/internal/realtime"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	baseRetryDelay = 200 * time.Millisecond
	maxRetryDelay  = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Channel is the NOTIFY channel the notify_row_change triggers in
// migrations/ write to.
const Channel = "hirenexa_changes"

var ErrMalformedPayload = errors.New("changefeed: malformed payload")

type publisher interface {
	PublishChange(ctx context.Context, event realtime.ChangeEvent) error
}

type Listener struct {
	pool      *pgxpool.Pool
	channel   string
	publisher publisher
	logger    *zap.Logger

	session    func(ctx context.Context) (int, error)
	onRelisten func()
	listened   bool
}

func NewListener(pool *pgxpool.Pool, channel string, publisher publisher, logger *zap.Logger) *Listener {
	l := &Listener{
		pool:      pool,
		channel:   channel,
		publisher: publisher,
		logger:    logger,
	}
	l.session = l.listen
	return l
}

// OnRelisten registers fn to run each time LISTEN is re-established after
// a lost connection. Notifications sent in between are gone, so fn should
// make subscribers re-read. Call it before Run.
func (l *Listener) OnRelisten(fn func()) {
	l.onRelisten = fn
}

// Run listens until ctx is cancelled, re-establishing the LISTEN
// connection with capped exponential backoff.
func (l *Listener) Run(ctx context.Context) {
	attempt := 0
	for {
		received, err := l.session(ctx)
		if ctx.Err() != nil {
			l.logger.Info("changefeed listener stopped", zap.String("channel", l.channel))
			return
		}
		if received > 0 {
			attempt = 0
		}

		l.logger.Warn("changefeed listener lost connection, retrying",
			zap.String("channel", l.channel),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		if err := waitForRetry(ctx, attempt); err != nil {
			return
		}
		attempt++
	}
}

func (l *Listener) listen(ctx context.Context) (int, error) {
	pooled, err := l.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire listen connection: %w", err)
	}
	// The connection carries LISTEN state, so it never goes back to the pool.
	conn := pooled.Hijack()
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return 0, fmt.Errorf("listen on %s: %w", l.channel, err)
	}
	l.logger.Info("changefeed listening", zap.String("channel", l.channel))
	l.markListening()

	received := 0
	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return received, fmt.Errorf("wait for notification: %w", err)
		}
		received++
		l.handle(ctx, notification.Payload)
	}
}

func (l *Listener) markListening() {
	relisten := l.listened
	l.listened = true
	if relisten && l.onRelisten != nil {
		l.logger.Info("changefeed re-established, requesting resync", zap.String("channel", l.channel))
		l.onRelisten()
	}
}

func (l *Listener) handle(ctx context.Context, payload string) {
	event, err := Decode(payload)
	if err != nil {
		l.logger.Warn("dropping change notification", zap.Error(err))
		return
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := l.publisher.PublishChange(publishCtx, event); err != nil {
		l.logger.Error("failed to publish change",
			zap.String("table", event.Table),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
		return
	}
	l.logger.Debug("change published",
		zap.String("table", event.Table),
		zap.String("type", string(event.Type)),
	)
}

// Decode parses one trigger payload.
func Decode(payload string) (realtime.ChangeEvent, error) {
	var event realtime.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return realtime.ChangeEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if event.Table == "" {
		return realtime.ChangeEvent{}, fmt.Errorf("%w: missing table", ErrMalformedPayload)
	}
	switch event.Type {
	case realtime.EventInsert, realtime.EventUpdate, realtime.EventDelete:
	default:
		return realtime.ChangeEvent{}, fmt.Errorf("%w: unsupported type %q", ErrMalformedPayload, event.Type)
	}
	if event.CommitTimestamp.IsZero() {
		event.CommitTimestamp = time.Now().UTC()
	}
	return event, nil
}

func waitForRetry(ctx context.Context, attempt int) error {
	delay := baseRetryDelay
	for i := 0; i < attempt && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
