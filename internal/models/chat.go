package models

import "time"

const (
	MessageKindText     = "text"
	MessageKindProposal = "proposal"
)

// Match is a two-party conversation. Rows are created elsewhere in
// HireNexa; this service only reads them.
type Match struct {
	ID        string    `json:"id"`
	UserAID   string    `json:"user_a_id"`
	UserBID   string    `json:"user_b_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Counterpart returns the other participant, or "" if userID is not one.
func (m *Match) Counterpart(userID string) string {
	switch userID {
	case m.UserAID:
		return m.UserBID
	case m.UserBID:
		return m.UserAID
	default:
		return ""
	}
}

type Message struct {
	ID         string    `json:"id"`
	MatchID    string    `json:"match_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Body       string    `json:"body"`
	Kind       string    `json:"kind"`
	IsRead     bool      `json:"is_read"`
	CreatedAt  time.Time `json:"created_at"`
}

type MatchSummary struct {
	Match
	LastMessage *Message `json:"last_message,omitempty"`
	UnreadCount int      `json:"unread_count"`
}

// TypingSignal is the ephemeral broadcast payload; it is never stored.
type TypingSignal struct {
	MatchID  string `json:"match_id"`
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}
