package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Boredooms/HireNexa-sub002/internal/models"
	"github.com/Boredooms/HireNexa-sub002/internal/realtime"
	"github.com/google/uuid"
)

func encodedNotification(t *testing.T, table string, row any) []byte {
	t.Helper()

	record, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("marshal row: %v", err)
	}
	envelope, err := json.Marshal(realtime.ChangeEvent{
		Table:           table,
		Type:            realtime.EventUpdate,
		Record:          record,
		CommitTimestamp: time.Date(2026, 3, 1, 9, 0, 0, 123456000, time.UTC),
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return envelope
}

func TestLargestAcceptedMessageFitsChangeNotification(t *testing.T) {
	for _, char := range []string{"x", `"`, `\`, "\u0001", "é", "<"} {
		senderName := strings.Repeat(char, MaxSenderNameLength)
		body := strings.Repeat(char, MaxMessageBodyBytes/len(char))

		for {
			input, err := normalizeMessageInput(SendMessageInput{MatchID: uuid.NewString(), Body: body, SenderName: senderName})
			if err != nil {
				t.Fatalf("char %q: normalizeMessageInput: %v", char, err)
			}
			row := models.Message{
				ID:         uuid.NewString(),
				MatchID:    input.MatchID,
				SenderID:   uuid.NewString(),
				SenderName: input.SenderName,
				Body:       input.Body,
				Kind:       input.Kind,
				CreatedAt:  time.Now().UTC(),
			}
			if !fitsChangeNotification(row) {
				body = body[:len(body)-len(char)]
				continue
			}

			if size := len(encodedNotification(t, "messages", row)); size >= notifyPayloadLimit-64 {
				t.Fatalf("char %q: accepted message encodes to %d bytes", char, size)
			}
			break
		}
	}
}

func TestChatServiceSendMessageRejectsBodyThatOverflowsNotification(t *testing.T) {
	matches := &stubMatchReader{match: &models.Match{ID: "m1", UserAID: "alice", UserBID: "bob"}}
	db := &failingTxStarter{}
	service := NewChatService(db, matches, &stubBroadcaster{}, nil)

	_, err := service.SendMessage(context.Background(), "alice", SendMessageInput{
		MatchID: "m1",
		Body:    strings.Repeat(`"`, MaxMessageBodyBytes),
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if db.calls != 0 {
		t.Fatalf("oversized row must not reach the database")
	}
}

func TestLargestAcceptedAssignmentFitsChangeNotification(t *testing.T) {
	skills := make([]string, 0, MaxAssignmentSkills)
	for i := 0; i < MaxAssignmentSkills; i++ {
		skills = append(skills, strings.Repeat(`"`, MaxSkillLength-2)+string(rune('a'+i))+"z")
	}

	description := strings.Repeat(`"`, MaxAssignmentDescriptionLength)
	for {
		repo := &stubAssignmentRepo{createResult: &models.Assignment{ID: "a1"}}
		service := NewAssignmentService(repo, nil)
		budget := 9999999999.99

		_, err := service.Create(context.Background(), uuid.NewString(), RoleRecruiter, CreateAssignmentInput{
			Title:       strings.Repeat(`\`, MaxAssignmentTitleLength),
			Description: description,
			Skills:      skills,
			Budget:      &budget,
		})
		if errors.Is(err, ErrInvalidInput) {
			description = description[:len(description)-100]
			continue
		}
		if err != nil {
			t.Fatalf("Create: %v", err)
		}

		closed := models.Assignment{
			ID:          uuid.NewString(),
			Title:       repo.lastCreate.Title,
			Description: repo.lastCreate.Description,
			Skills:      repo.lastCreate.Skills,
			Budget:      repo.lastCreate.Budget,
			Status:      models.AssignmentStatusClosed,
			CreatedBy:   repo.lastCreate.CreatedBy,
			CreatedAt:   time.Now().UTC(),
			UpdatedAt:   time.Now().UTC(),
		}
		if size := len(encodedNotification(t, "assignments", closed)); size >= notifyPayloadLimit-64 {
			t.Fatalf("closing the largest accepted assignment encodes to %d bytes", size)
		}
		return
	}
}

func TestAssignmentServiceCreateRejectsOverflowingRows(t *testing.T) {
	tests := []struct {
		name  string
		input CreateAssignmentInput
	}{
		{
			name:  "skill too long",
			input: CreateAssignmentInput{Title: "Design", Skills: []string{strings.Repeat("s", MaxSkillLength+1)}},
		},
		{
			name:  "escaped description",
			input: CreateAssignmentInput{Title: "Design", Description: strings.Repeat("\u0001", MaxAssignmentDescriptionLength)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &stubAssignmentRepo{}
			service := NewAssignmentService(repo, nil)

			if _, err := service.Create(context.Background(), "recruiter-1", RoleRecruiter, tt.input); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			if repo.lastCreate.ID != "" {
				t.Fatalf("repository must not be called")
			}
		})
	}
}
