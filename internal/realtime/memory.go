package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Memory fans events out inside the process. Delivery is synchronous on
// the publishing goroutine, in subscription order, which makes it usable
// as a deterministic fake in tests.
type Memory struct {
	mu         sync.RWMutex
	connected  bool
	nextID     uint64
	changes    map[uint64]memoryChangeSub
	broadcasts map[uint64]memoryBroadcastSub
	reconnect  reconnectListeners
}

type memoryChangeSub struct {
	filter  Filter
	handler ChangeHandler
}

type memoryBroadcastSub struct {
	channel string
	event   string
	handler BroadcastHandler
}

func NewMemory() *Memory {
	return &Memory{
		changes:    make(map[uint64]memoryChangeSub),
		broadcasts: make(map[uint64]memoryBroadcastSub),
	}
}

func (m *Memory) Connect(_ context.Context) error {
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connected = false
	m.changes = make(map[uint64]memoryChangeSub)
	m.broadcasts = make(map[uint64]memoryBroadcastSub)
	return nil
}

func (m *Memory) PublishChange(_ context.Context, event ChangeEvent) error {
	m.mu.RLock()
	if !m.connected {
		m.mu.RUnlock()
		return ErrNotConnected
	}
	ids := sortedKeys(m.changes)
	handlers := make([]ChangeHandler, 0, len(ids))
	for _, id := range ids {
		sub := m.changes[id]
		if sub.filter.Matches(event) {
			handlers = append(handlers, sub.handler)
		}
	}
	m.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
	return nil
}

func (m *Memory) SubscribeChanges(_ context.Context, filter Filter, handler ChangeHandler) (Subscription, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil, ErrNotConnected
	}
	id := m.nextID
	m.nextID++
	m.changes[id] = memoryChangeSub{filter: filter, handler: handler}

	return newSubscription(func() error {
		m.mu.Lock()
		delete(m.changes, id)
		m.mu.Unlock()
		return nil
	}), nil
}

func (m *Memory) Broadcast(_ context.Context, channel, event string, payload any) error {
	data, err := encodePayload(payload)
	if err != nil {
		return err
	}

	m.mu.RLock()
	if !m.connected {
		m.mu.RUnlock()
		return ErrNotConnected
	}
	ids := sortedKeys(m.broadcasts)
	handlers := make([]BroadcastHandler, 0, len(ids))
	for _, id := range ids {
		sub := m.broadcasts[id]
		if sub.channel == channel && sub.event == event {
			handlers = append(handlers, sub.handler)
		}
	}
	m.mu.RUnlock()

	message := BroadcastMessage{Channel: channel, Event: event, Payload: json.RawMessage(data)}
	for _, handler := range handlers {
		handler(message)
	}
	return nil
}

func (m *Memory) OnBroadcast(_ context.Context, channel, event string, handler BroadcastHandler) (Subscription, error) {
	if channel == "" || event == "" {
		return nil, fmt.Errorf("%w: channel and event are required", ErrInvalidFilter)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil, ErrNotConnected
	}
	id := m.nextID
	m.nextID++
	m.broadcasts[id] = memoryBroadcastSub{channel: channel, event: event, handler: handler}

	return newSubscription(func() error {
		m.mu.Lock()
		delete(m.broadcasts, id)
		m.mu.Unlock()
		return nil
	}), nil
}

func (m *Memory) OnReconnect(fn func()) func() {
	return m.reconnect.add(fn)
}

func (m *Memory) NotifyReconnect() {
	m.reconnect.fire()
}

// ActiveSubscriptions counts live change and broadcast subscriptions.
func (m *Memory) ActiveSubscriptions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.changes) + len(m.broadcasts)
}

func sortedKeys[V any](in map[uint64]V) []uint64 {
	keys := make([]uint64, 0, len(in))
	for key := range in {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
