package chatws

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Session is a live browser connection tracked by the Hub.
type Session interface {
	UserID() string
	Shutdown()
}

// Hub is the registry of live sessions. Registration is serialized on
// the Run goroutine; Stop shuts every session down.
type Hub struct {
	sessions   map[string]map[Session]struct{}
	register   chan Session
	unregister chan Session
	stop       chan struct{}
	stopped    chan struct{}
	stopOnce   sync.Once
	count      atomic.Int64
	logger     *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		sessions:   make(map[string]map[Session]struct{}),
		register:   make(chan Session),
		unregister: make(chan Session),
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
		logger:     logger,
	}
}

func (h *Hub) Run() {
	defer close(h.stopped)

	for {
		select {
		case session := <-h.register:
			set, ok := h.sessions[session.UserID()]
			if !ok {
				set = make(map[Session]struct{})
				h.sessions[session.UserID()] = set
			}
			set[session] = struct{}{}
			h.count.Add(1)
		case session := <-h.unregister:
			set, ok := h.sessions[session.UserID()]
			if !ok {
				continue
			}
			if _, exists := set[session]; exists {
				delete(set, session)
				h.count.Add(-1)
			}
			if len(set) == 0 {
				delete(h.sessions, session.UserID())
			}
		case <-h.stop:
			for _, set := range h.sessions {
				for session := range set {
					session.Shutdown()
				}
			}
			h.logger.Info("websocket hub stopped", zap.Int64("sessions", h.count.Load()))
			h.sessions = make(map[string]map[Session]struct{})
			h.count.Store(0)
			return
		}
	}
}

// Register adds a session. After Stop the session is shut down instead.
func (h *Hub) Register(session Session) {
	select {
	case h.register <- session:
	case <-h.stopped:
		session.Shutdown()
	}
}

func (h *Hub) Unregister(session Session) {
	select {
	case h.unregister <- session:
	case <-h.stopped:
	}
}

// Stop shuts down all sessions and waits for Run to return.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
	<-h.stopped
}

// Count reports the number of registered sessions.
func (h *Hub) Count() int {
	return int(h.count.Load())
}
