package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

type NATSOptions struct {
	URL    string
	Stream string
	// MaxAge bounds how long change events stay in the stream.
	MaxAge time.Duration
	Logger *zap.Logger
}

// NATS carries row changes on a JetStream stream, read through ordered
// ephemeral consumers, and broadcasts on plain core subjects.
type NATS struct {
	opts      NATSOptions
	logger    *zap.Logger
	reconnect reconnectListeners

	mu sync.RWMutex
	nc *nats.Conn
	js jetstream.JetStream
}

func NewNATS(opts NATSOptions) *NATS {
	if opts.URL == "" {
		opts.URL = nats.DefaultURL
	}
	if opts.Stream == "" {
		opts.Stream = "ROW_CHANGES"
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = time.Hour
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NATS{opts: opts, logger: logger}
}

func (n *NATS) Connect(ctx context.Context) error {
	nc, err := nats.Connect(
		n.opts.URL,
		nats.Name("hirenexa-realtime"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			n.logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			n.logger.Info("nats reconnected", zap.String("url", conn.ConnectedUrl()))
			n.reconnect.fire()
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create jetstream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	stream, err := js.Stream(ctx, n.opts.Stream)
	if err != nil {
		n.logger.Info("change stream not found, creating", zap.String("stream", n.opts.Stream))
		stream, err = js.CreateStream(ctx, jetstream.StreamConfig{
			Name:        n.opts.Stream,
			Description: "Row change events",
			Subjects:    changeStreamSubjects(),
			MaxAge:      n.opts.MaxAge,
			Storage:     jetstream.FileStorage,
		})
		if err != nil {
			nc.Close()
			return fmt.Errorf("failed to create stream '%s': %w", n.opts.Stream, err)
		}
	}
	n.logger.Info("using change stream", zap.String("stream", stream.CachedInfo().Config.Name))

	n.mu.Lock()
	n.nc = nc
	n.js = js
	n.mu.Unlock()
	return nil
}

func (n *NATS) Close() error {
	n.mu.Lock()
	nc := n.nc
	n.nc = nil
	n.js = nil
	n.mu.Unlock()

	if nc != nil {
		nc.Close()
	}
	return nil
}

func (n *NATS) conn() (*nats.Conn, jetstream.JetStream, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.nc == nil {
		return nil, nil, ErrNotConnected
	}
	return n.nc, n.js, nil
}

func (n *NATS) PublishChange(ctx context.Context, event ChangeEvent) error {
	_, js, err := n.conn()
	if err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}

	subject := changeSubject(event)
	if _, err := js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish change to subject '%s': %w", subject, err)
	}
	return nil
}

func (n *NATS) SubscribeChanges(ctx context.Context, filter Filter, handler ChangeHandler) (Subscription, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	_, js, err := n.conn()
	if err != nil {
		return nil, err
	}

	subject := changeSubscribeSubject(filter)
	consumer, err := js.OrderedConsumer(ctx, n.opts.Stream, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{subject},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer for subject '%s': %w", subject, err)
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		var event ChangeEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			n.logger.Warn("dropping undecodable change event",
				zap.String("subject", msg.Subject()),
				zap.Error(err),
			)
			return
		}
		if filter.Matches(event) {
			handler(event)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming from subject '%s': %w", subject, err)
	}

	n.logger.Debug("subscribed to changes", zap.String("subject", subject), zap.String("column", filter.Column))
	return newSubscription(func() error {
		consumeCtx.Stop()
		return nil
	}), nil
}

func (n *NATS) Broadcast(_ context.Context, channel, event string, payload any) error {
	nc, _, err := n.conn()
	if err != nil {
		return err
	}

	data, err := encodePayload(payload)
	if err != nil {
		return err
	}

	subject := broadcastSubject(channel, event)
	if err := nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to broadcast on subject '%s': %w", subject, err)
	}
	return nil
}

func (n *NATS) OnBroadcast(_ context.Context, channel, event string, handler BroadcastHandler) (Subscription, error) {
	if channel == "" || event == "" {
		return nil, fmt.Errorf("%w: channel and event are required", ErrInvalidFilter)
	}
	nc, _, err := n.conn()
	if err != nil {
		return nil, err
	}

	subject := broadcastSubject(channel, event)
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		handler(BroadcastMessage{Channel: channel, Event: event, Payload: json.RawMessage(msg.Data)})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to subject '%s': %w", subject, err)
	}
	if err := nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("failed to flush subscription '%s': %w", subject, err)
	}

	return newSubscription(sub.Unsubscribe), nil
}

func (n *NATS) OnReconnect(fn func()) func() {
	return n.reconnect.add(fn)
}

func (n *NATS) NotifyReconnect() {
	n.reconnect.fire()
}
