package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RedisOptions struct {
	URL    string
	Logger *zap.Logger
}

// Redis maps both change events and broadcasts onto Redis pub/sub.
// Nothing is retained, so a subscriber only sees events published while
// it is attached.
type Redis struct {
	opts      RedisOptions
	logger    *zap.Logger
	reconnect reconnectListeners

	mu  sync.RWMutex
	rdb *redis.Client
}

func NewRedis(opts RedisOptions) *Redis {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{opts: opts, logger: logger}
}

func (r *Redis) Connect(ctx context.Context) error {
	options, err := redis.ParseURL(r.opts.URL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(options)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("ping redis: %w", err)
	}

	r.mu.Lock()
	r.rdb = rdb
	r.mu.Unlock()
	return nil
}

func (r *Redis) Close() error {
	r.mu.Lock()
	rdb := r.rdb
	r.rdb = nil
	r.mu.Unlock()

	if rdb == nil {
		return nil
	}
	return rdb.Close()
}

func (r *Redis) client() (*redis.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.rdb == nil {
		return nil, ErrNotConnected
	}
	return r.rdb, nil
}

func (r *Redis) PublishChange(ctx context.Context, event ChangeEvent) error {
	rdb, err := r.client()
	if err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}

	channel := changeSubject(event)
	if err := rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish change to channel '%s': %w", channel, err)
	}
	return nil
}

func (r *Redis) SubscribeChanges(ctx context.Context, filter Filter, handler ChangeHandler) (Subscription, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	rdb, err := r.client()
	if err != nil {
		return nil, err
	}

	channel := changeSubscribeSubject(filter)
	var pubsub *redis.PubSub
	if strings.Contains(channel, "*") {
		pubsub = rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = rdb.Subscribe(ctx, channel)
	}

	return r.consume(ctx, pubsub, channel, func(msg *redis.Message) {
		var event ChangeEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			r.logger.Warn("dropping undecodable change event",
				zap.String("channel", msg.Channel),
				zap.Error(err),
			)
			return
		}
		if filter.Matches(event) {
			handler(event)
		}
	})
}

func (r *Redis) Broadcast(ctx context.Context, channel, event string, payload any) error {
	rdb, err := r.client()
	if err != nil {
		return err
	}

	data, err := encodePayload(payload)
	if err != nil {
		return err
	}

	subject := broadcastSubject(channel, event)
	if err := rdb.Publish(ctx, subject, data).Err(); err != nil {
		return fmt.Errorf("failed to broadcast on channel '%s': %w", subject, err)
	}
	return nil
}

func (r *Redis) OnBroadcast(ctx context.Context, channel, event string, handler BroadcastHandler) (Subscription, error) {
	if channel == "" || event == "" {
		return nil, fmt.Errorf("%w: channel and event are required", ErrInvalidFilter)
	}
	rdb, err := r.client()
	if err != nil {
		return nil, err
	}

	subject := broadcastSubject(channel, event)
	return r.consume(ctx, rdb.Subscribe(ctx, subject), subject, func(msg *redis.Message) {
		handler(BroadcastMessage{Channel: channel, Event: event, Payload: json.RawMessage(msg.Payload)})
	})
}

// OnReconnect listeners only fire through NotifyReconnect: go-redis
// re-subscribes internally without exposing a hook.
func (r *Redis) OnReconnect(fn func()) func() {
	return r.reconnect.add(fn)
}

func (r *Redis) NotifyReconnect() {
	r.reconnect.fire()
}

// consume waits for the subscription to be confirmed, then pumps messages
// on a goroutine. Unsubscribe returns after the pump has exited.
func (r *Redis) consume(
	ctx context.Context,
	pubsub *redis.PubSub,
	channel string,
	deliver func(*redis.Message),
) (Subscription, error) {
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to channel '%s': %w", channel, err)
	}

	done := make(chan struct{})
	messages := pubsub.Channel()
	go func() {
		defer close(done)
		for msg := range messages {
			deliver(msg)
		}
	}()

	return newSubscription(func() error {
		err := pubsub.Close()
		<-done
		return err
	}), nil
}
