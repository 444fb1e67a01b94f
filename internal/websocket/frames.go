package chatws

import "github.com/Boredooms/HireNexa-sub002/internal/models"

// Inbound frame types.
const (
	FrameMessage     = "message"
	FrameTyping      = "typing"
	FrameSwitchMatch = "switch_match"
	FrameRefresh     = "refresh"
)

// Outbound frame types.
const (
	FrameHistory     = "history"
	FrameAssignments = "assignments"
	FrameStatus      = "status"
	FrameError       = "error"
)

type inboundFrame struct {
	Type       string `json:"type"`
	MatchID    string `json:"match_id"`
	Body       string `json:"body"`
	Kind       string `json:"kind"`
	SenderName string `json:"sender_name"`
	IsTyping   bool   `json:"is_typing"`
}

type historyFrame struct {
	Type     string           `json:"type"`
	MatchID  string           `json:"match_id"`
	Messages []models.Message `json:"messages"`
}

type messageFrame struct {
	Type    string         `json:"type"`
	MatchID string         `json:"match_id"`
	Message models.Message `json:"message"`
}

type typingFrame struct {
	Type     string `json:"type"`
	MatchID  string `json:"match_id"`
	IsTyping bool   `json:"is_typing"`
}

type assignmentsFrame struct {
	Type        string              `json:"type"`
	Assignments []models.Assignment `json:"assignments"`
}

type statusFrame struct {
	Type    string `json:"type"`
	MatchID string `json:"match_id,omitempty"`
	Status  string `json:"status"`
}

type errorFrame struct {
	Type      string `json:"type"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}
