package livesync

import (
	"context"
	"fmt"
	"sync"

	"github.com/Boredooms/HireNexa-sub002/internal/realtime"
	"go.uber.org/zap"
)

type Loader[T any] func(ctx context.Context) ([]T, error)

// ListFeed mirrors a small table. Any change event triggers a full
// re-read instead of an incremental patch; events that arrive while a
// read is running collapse into one follow-up read.
type ListFeed[T any] struct {
	client realtime.Client
	filter realtime.Filter
	load   Loader[T]
	logger *zap.Logger

	mu      sync.RWMutex
	items   []T
	loading bool
	status  Status
	reads   int

	updates chan struct{}
	refresh chan struct{}

	sub             realtime.Subscription
	removeReconnect func()
	started         bool
	ctx             context.Context
	cancel          context.CancelFunc
	done            chan struct{}
	closeOnce       sync.Once
	closeErr        error
}

func NewListFeed[T any](client realtime.Client, filter realtime.Filter, load Loader[T], logger *zap.Logger) *ListFeed[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &ListFeed[T]{
		client:  client,
		filter:  filter,
		load:    load,
		logger:  logger,
		items:   make([]T, 0),
		loading: true,
		status:  StatusIdle,
		updates: make(chan struct{}, 1),
		refresh: make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Start subscribes and schedules the first read. A subscription failure
// is returned, but the initial read still happens.
func (l *ListFeed[T]) Start(ctx context.Context) error {
	l.started = true
	go l.run()

	sub, err := l.client.SubscribeChanges(ctx, l.filter, func(realtime.ChangeEvent) {
		l.Refresh()
	})
	l.Refresh()

	if err != nil {
		l.setStatus(StatusDisconnected)
		l.logger.Error("list subscription failed", zap.String("table", l.filter.Table), zap.Error(err))
		return fmt.Errorf("subscribe to %s changes: %w", l.filter.Table, err)
	}

	l.sub = sub
	l.removeReconnect = l.client.OnReconnect(l.Refresh)
	l.setStatus(StatusConnected)
	return nil
}

// Refresh schedules a re-read; it never blocks.
func (l *ListFeed[T]) Refresh() {
	select {
	case l.refresh <- struct{}{}:
	default:
	}
}

func (l *ListFeed[T]) Items() []T {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]T, len(l.items))
	copy(out, l.items)
	return out
}

func (l *ListFeed[T]) Loading() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loading
}

func (l *ListFeed[T]) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

// Reads reports how many bulk reads have completed.
func (l *ListFeed[T]) Reads() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.reads
}

func (l *ListFeed[T]) Updates() <-chan struct{} {
	return l.updates
}

func (l *ListFeed[T]) Close() error {
	l.closeOnce.Do(func() {
		if l.removeReconnect != nil {
			l.removeReconnect()
		}
		if l.sub != nil {
			l.closeErr = l.sub.Unsubscribe()
		}
		l.cancel()
		if l.started {
			<-l.done
		}
	})
	return l.closeErr
}

func (l *ListFeed[T]) run() {
	defer close(l.done)

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-l.refresh:
			l.reload()
		}
	}
}

func (l *ListFeed[T]) reload() {
	ctx, cancel := context.WithTimeout(l.ctx, loadTimeout)
	defer cancel()

	items, err := l.load(ctx)

	l.mu.Lock()
	l.reads++
	l.loading = false
	if err == nil {
		if items == nil {
			items = make([]T, 0)
		}
		l.items = items
	}
	l.mu.Unlock()

	if err != nil {
		l.logger.Error("list reload failed", zap.String("table", l.filter.Table), zap.Error(err))
	}
	l.notify()
}

func (l *ListFeed[T]) setStatus(status Status) {
	l.mu.Lock()
	l.status = status
	l.mu.Unlock()
	l.notify()
}

func (l *ListFeed[T]) notify() {
	select {
	case l.updates <- struct{}{}:
	default:
	}
}
