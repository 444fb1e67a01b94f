package chatws

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/Boredooms/HireNexa-sub002/internal/livesync"
	"github.com/Boredooms/HireNexa-sub002/internal/models"
	"github.com/Boredooms/HireNexa-sub002/internal/realtime"
	"github.com/Boredooms/HireNexa-sub002/internal/services"
	"go.uber.org/zap"
)

type chatService interface {
	AuthorizeMatch(ctx context.Context, actorID, matchID string) (*models.Match, error)
	SendMessage(ctx context.Context, actorID string, input services.SendMessageInput) (*services.ChatDelivery, error)
}

type ChatDeps struct {
	Client        realtime.Client
	Store         livesync.MessageStore
	Chat          chatService
	TypingTimeout time.Duration
	Logger        *zap.Logger
}

// ChatSession is one browser tab looking at one match at a time. It
// owns a MessageFeed and a TypingPresence and forwards their changes as
// frames.
type ChatSession struct {
	*pump
	hub      *Hub
	deps     ChatDeps
	userID   string
	userName string
	logger   *zap.Logger

	feed     *livesync.MessageFeed
	presence *livesync.TypingPresence
	matchID  string

	stopWatch func()
}

func NewChatSession(hub *Hub, conn Conn, userID, userName string, deps ChatDeps) *ChatSession {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("user_id", userID))

	return &ChatSession{
		pump:     newPump(conn, logger),
		hub:      hub,
		deps:     deps,
		userID:   userID,
		userName: userName,
		logger:   logger,
		feed:     livesync.NewMessageFeed(deps.Client, deps.Store, logger),
	}
}

func (s *ChatSession) UserID() string {
	return s.userID
}

func (s *ChatSession) Shutdown() {
	s.shutdown()
}

// Serve runs the session until the connection closes. matchID may be
// empty; the client then picks a match with a switch_match frame.
func (s *ChatSession) Serve(ctx context.Context, matchID string) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.hub.Register(s)
	defer s.hub.Unregister(s)

	go s.writeLoop()
	defer s.teardown()

	if matchID != "" {
		s.switchMatch(ctx, matchID)
	}
	s.readLoop(ctx)
}

func (s *ChatSession) readLoop(ctx context.Context) {
	s.prepareRead()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			s.sendError("invalid message payload")
			continue
		}

		switch frame.Type {
		case FrameMessage:
			s.sendMessage(ctx, frame)
		case FrameTyping:
			if s.presence == nil {
				s.sendError("no match selected")
				continue
			}
			if err := s.presence.Announce(ctx, frame.IsTyping); err != nil {
				s.sendError("typing signal not delivered")
			}
		case FrameSwitchMatch:
			s.switchMatch(ctx, strings.TrimSpace(frame.MatchID))
		default:
			s.sendError("unsupported message type")
		}
	}
}

// sendMessage persists the message. The sender sees it through its own
// feed once the insert is published, like every other participant.
func (s *ChatSession) sendMessage(ctx context.Context, frame inboundFrame) {
	if s.matchID == "" {
		s.sendError("no match selected")
		return
	}

	senderName := strings.TrimSpace(frame.SenderName)
	if senderName == "" {
		senderName = s.userName
	}

	_, err := s.deps.Chat.SendMessage(ctx, s.userID, services.SendMessageInput{
		MatchID:    s.matchID,
		Body:       frame.Body,
		Kind:       frame.Kind,
		SenderName: senderName,
	})
	if err != nil {
		s.logger.Warn("websocket send failed", zap.String("match_id", s.matchID), zap.Error(err))
		s.sendError(errorText(err))
	}
}

func (s *ChatSession) switchMatch(ctx context.Context, matchID string) {
	if matchID == "" {
		s.sendError(errorText(services.ErrInvalidInput))
		return
	}
	if matchID == s.matchID {
		return
	}
	if _, err := s.deps.Chat.AuthorizeMatch(ctx, s.userID, matchID); err != nil {
		s.sendError(errorText(err))
		return
	}

	s.stopWatching()
	if s.presence != nil {
		_ = s.presence.Close()
		s.presence = nil
	}

	s.matchID = matchID
	if err := s.feed.Open(ctx, matchID); err != nil {
		s.logger.Warn("message feed degraded", zap.String("match_id", matchID), zap.Error(err))
	}

	presence := livesync.NewTypingPresence(s.deps.Client, s.logger, matchID, s.userID, s.deps.TypingTimeout)
	if err := presence.Start(ctx); err != nil {
		s.logger.Warn("typing presence unavailable", zap.String("match_id", matchID), zap.Error(err))
	}
	s.presence = presence

	s.watch(matchID, presence)
}

// watch forwards feed and presence changes for one match until
// stopWatching is called.
func (s *ChatSession) watch(matchID string, presence *livesync.TypingPresence) {
	watchCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.stopWatch = func() {
		cancel()
		<-done
	}

	go func() {
		defer close(done)

		var (
			historySent bool
			sent        int
			lastStatus  livesync.Status
			lastTyping  bool
		)

		flushFeed := func() {
			if status := s.feed.Status(); status != lastStatus {
				lastStatus = status
				s.enqueue(statusFrame{Type: FrameStatus, MatchID: matchID, Status: string(status)})
			}
			if s.feed.MatchID() != matchID || s.feed.Loading() {
				return
			}

			messages := s.feed.Messages()
			if !historySent {
				historySent = true
				sent = len(messages)
				s.enqueue(historyFrame{Type: FrameHistory, MatchID: matchID, Messages: messages})
				return
			}
			if sent > len(messages) {
				sent = len(messages)
			}
			for _, message := range messages[sent:] {
				s.enqueue(messageFrame{Type: FrameMessage, MatchID: matchID, Message: message})
			}
			sent = len(messages)
		}

		flushTyping := func() {
			if typing := presence.RemoteTyping(); typing != lastTyping {
				lastTyping = typing
				s.enqueue(typingFrame{Type: FrameTyping, MatchID: matchID, IsTyping: typing})
			}
		}

		flushFeed()
		for {
			select {
			case <-watchCtx.Done():
				return
			case <-s.done:
				return
			case <-s.feed.Updates():
				flushFeed()
			case <-presence.Updates():
				flushTyping()
			}
		}
	}()
}

func (s *ChatSession) stopWatching() {
	if s.stopWatch != nil {
		s.stopWatch()
		s.stopWatch = nil
	}
}

func (s *ChatSession) teardown() {
	s.stopWatching()
	if s.presence != nil {
		_ = s.presence.Close()
	}
	if err := s.feed.Close(); err != nil {
		s.logger.Warn("release message subscription", zap.Error(err))
	}
	s.shutdown()
}
