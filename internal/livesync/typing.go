package livesync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Boredooms/HireNexa-sub002/internal/models"
	"github.com/Boredooms/HireNexa-sub002/internal/realtime"
	"go.uber.org/zap"
)

const (
	TypingEvent          = "typing"
	DefaultTypingTimeout = 3 * time.Second
)

func TypingChannel(matchID string) string {
	return "typing:" + matchID
}

// TypingPresence tracks whether the other participant of a match is
// typing. A remote "typing" indication expires after the timeout unless
// refreshed; each refresh re-arms a single timer. An explicit stop
// signal clears it at once.
type TypingPresence struct {
	client  realtime.Client
	logger  *zap.Logger
	matchID string
	userID  string
	timeout time.Duration

	mu     sync.RWMutex
	local  bool
	remote bool

	updates chan struct{}
	signals chan models.TypingSignal

	sub       realtime.Subscription
	started   bool
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func NewTypingPresence(
	client realtime.Client,
	logger *zap.Logger,
	matchID string,
	userID string,
	timeout time.Duration,
) *TypingPresence {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &TypingPresence{
		client:  client,
		logger:  logger,
		matchID: matchID,
		userID:  userID,
		timeout: timeout,
		updates: make(chan struct{}, 1),
		signals: make(chan models.TypingSignal, eventBuffer),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

func (p *TypingPresence) Start(ctx context.Context) error {
	p.started = true
	go p.run()

	sub, err := p.client.OnBroadcast(ctx, TypingChannel(p.matchID), TypingEvent, p.onBroadcast)
	if err != nil {
		p.logger.Error("typing subscription failed", zap.String("match_id", p.matchID), zap.Error(err))
		return fmt.Errorf("subscribe to typing for match %s: %w", p.matchID, err)
	}
	p.sub = sub
	return nil
}

// Announce records the local typing state and broadcasts it. Delivery is
// best effort.
func (p *TypingPresence) Announce(ctx context.Context, isTyping bool) error {
	p.mu.Lock()
	p.local = isTyping
	p.mu.Unlock()

	err := p.client.Broadcast(ctx, TypingChannel(p.matchID), TypingEvent, models.TypingSignal{
		MatchID:  p.matchID,
		UserID:   p.userID,
		IsTyping: isTyping,
	})
	if err != nil {
		p.logger.Warn("typing broadcast failed",
			zap.String("match_id", p.matchID),
			zap.String("user_id", p.userID),
			zap.Error(err),
		)
		return fmt.Errorf("broadcast typing: %w", err)
	}
	return nil
}

func (p *TypingPresence) LocalTyping() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.local
}

func (p *TypingPresence) RemoteTyping() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.remote
}

func (p *TypingPresence) Updates() <-chan struct{} {
	return p.updates
}

func (p *TypingPresence) Close() error {
	p.closeOnce.Do(func() {
		if p.sub != nil {
			p.closeErr = p.sub.Unsubscribe()
		}
		p.cancel()
		if p.started {
			<-p.done
		}
	})
	return p.closeErr
}

func (p *TypingPresence) onBroadcast(msg realtime.BroadcastMessage) {
	var signal models.TypingSignal
	if err := json.Unmarshal(msg.Payload, &signal); err != nil {
		p.logger.Debug("dropping malformed typing signal", zap.Error(err))
		return
	}
	if signal.UserID == "" || signal.UserID == p.userID {
		return
	}
	if signal.MatchID != "" && signal.MatchID != p.matchID {
		return
	}

	select {
	case p.signals <- signal:
	case <-p.ctx.Done():
	}
}

func (p *TypingPresence) run() {
	defer close(p.done)

	var timer *time.Timer
	var expiry <-chan time.Time

	stopTimer := func() {
		if timer != nil && !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		expiry = nil
	}

	for {
		select {
		case <-p.ctx.Done():
			stopTimer()
			return
		case signal := <-p.signals:
			if !signal.IsTyping {
				stopTimer()
				p.setRemote(false)
				continue
			}
			stopTimer()
			if timer == nil {
				timer = time.NewTimer(p.timeout)
			} else {
				timer.Reset(p.timeout)
			}
			expiry = timer.C
			p.setRemote(true)
		case <-expiry:
			expiry = nil
			p.setRemote(false)
		}
	}
}

func (p *TypingPresence) setRemote(typing bool) {
	p.mu.Lock()
	changed := p.remote != typing
	p.remote = typing
	p.mu.Unlock()

	if changed {
		select {
		case p.updates <- struct{}{}:
		default:
		}
	}
}
