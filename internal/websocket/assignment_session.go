package chatws

import (
	"context"
	"encoding/json"

	"github.com/Boredooms/HireNexa-sub002/internal/livesync"
	"github.com/Boredooms/HireNexa-sub002/internal/models"
	"github.com/Boredooms/HireNexa-sub002/internal/realtime"
	"go.uber.org/zap"
)

const AssignmentsTable = "assignments"

var assignmentFilter = realtime.Filter{Table: AssignmentsTable, Event: realtime.EventAll}

// AssignmentSession streams the active assignment list to one browser
// connection.
type AssignmentSession struct {
	*pump
	hub    *Hub
	userID string
	feed   *livesync.ListFeed[models.Assignment]
	logger *zap.Logger
}

func NewAssignmentSession(
	hub *Hub,
	conn Conn,
	userID string,
	client realtime.Client,
	load livesync.Loader[models.Assignment],
	logger *zap.Logger,
) *AssignmentSession {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("user_id", userID))

	return &AssignmentSession{
		pump:   newPump(conn, logger),
		hub:    hub,
		userID: userID,
		feed:   livesync.NewListFeed(client, assignmentFilter, load, logger),
		logger: logger,
	}
}

func (s *AssignmentSession) UserID() string {
	return s.userID
}

func (s *AssignmentSession) Shutdown() {
	s.shutdown()
}

func (s *AssignmentSession) Serve(ctx context.Context) {
	s.hub.Register(s)
	defer s.hub.Unregister(s)

	go s.writeLoop()

	if err := s.feed.Start(ctx); err != nil {
		s.logger.Warn("assignment feed degraded", zap.Error(err))
	}

	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		s.watch()
	}()

	s.readLoop()

	s.shutdown()
	<-watchDone
	if err := s.feed.Close(); err != nil {
		s.logger.Warn("release assignment subscription", zap.Error(err))
	}
}

func (s *AssignmentSession) readLoop() {
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
		if frame.Type != FrameRefresh {
			s.sendError("unsupported message type")
			continue
		}
		s.feed.Refresh()
	}
}

func (s *AssignmentSession) watch() {
	var lastStatus livesync.Status

	flush := func() {
		if status := s.feed.Status(); status != lastStatus {
			lastStatus = status
			s.enqueue(statusFrame{Type: FrameStatus, Status: string(status)})
		}
		if s.feed.Loading() {
			return
		}
		s.enqueue(assignmentsFrame{Type: FrameAssignments, Assignments: s.feed.Items()})
	}

	flush()
	for {
		select {
		case <-s.done:
			return
		case <-s.feed.Updates():
			flush()
		}
	}
}
