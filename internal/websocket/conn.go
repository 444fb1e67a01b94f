package chatws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/Boredooms/HireNexa-sub002/internal/services"
	websocket "github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxFrameSize = 16 * 1024
	sendBuffer   = 64
)

// Conn is the part of *websocket.Conn a session needs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// pump owns the outbound side of a connection. Frames are queued on a
// bounded buffer; a client that cannot keep up is disconnected.
type pump struct {
	conn      Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	logger    *zap.Logger
}

func newPump(conn Conn, logger *zap.Logger) *pump {
	return &pump{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (p *pump) enqueue(frame any) {
	payload, err := json.Marshal(frame)
	if err != nil {
		p.logger.Error("encode websocket frame", zap.Error(err))
		return
	}

	select {
	case <-p.done:
	case p.send <- payload:
	default:
		p.logger.Warn("websocket client too slow, disconnecting")
		p.shutdown()
	}
}

func (p *pump) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.shutdown()
	}()

	for {
		select {
		case <-p.done:
			return
		case payload := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// prepareRead applies the read limit and keepalive deadline.
func (p *pump) prepareRead() {
	p.conn.SetReadLimit(maxFrameSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

func (p *pump) shutdown() {
	p.closeOnce.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}

func (p *pump) sendError(message string) {
	p.enqueue(errorFrame{Type: FrameError, Error: message, Timestamp: now()})
}

func errorText(err error) string {
	switch {
	case errors.Is(err, services.ErrForbidden):
		return "forbidden"
	case errors.Is(err, services.ErrInvalidKind):
		return "invalid message kind"
	case errors.Is(err, services.ErrInvalidInput):
		return "invalid request"
	case errors.Is(err, services.ErrNotFound):
		return "match not found"
	default:
		return "failed to process request"
	}
}

func now() string {
	return services.FormatChatTimestamp(time.Now())
}
