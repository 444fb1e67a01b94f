package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Boredooms/HireNexa-sub002/internal/models"
	"github.com/Boredooms/HireNexa-sub002/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const (
	MaxAssignmentTitleLength       = 200
	MaxAssignmentDescriptionLength = 2000
	MaxAssignmentSkills            = 20
	MaxSkillLength                 = 50
)

type assignmentStore interface {
	Create(ctx context.Context, input repository.CreateAssignmentInput) (*models.Assignment, error)
	GetByID(ctx context.Context, id string) (*models.Assignment, error)
	ListActive(ctx context.Context) ([]models.Assignment, error)
	UpdateStatus(ctx context.Context, id string, status string) (*models.Assignment, error)
}

type AssignmentService struct {
	repo   assignmentStore
	logger *zap.Logger
}

type CreateAssignmentInput struct {
	Title       string
	Description string
	Skills      []string
	Budget      *float64
}

func NewAssignmentService(repo assignmentStore, logger *zap.Logger) *AssignmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{repo: repo, logger: logger}
}

// ListActive returns open assignments, newest first. It also serves as
// the loader of the live assignment feed.
func (s *AssignmentService) ListActive(ctx context.Context) ([]models.Assignment, error) {
	return s.repo.ListActive(ctx)
}

func (s *AssignmentService) Create(
	ctx context.Context,
	actorID string,
	role string,
	input CreateAssignmentInput,
) (*models.Assignment, error) {
	if actorID == "" || role != RoleRecruiter {
		return nil, ErrForbidden
	}

	title := strings.TrimSpace(input.Title)
	if title == "" || len([]rune(title)) > MaxAssignmentTitleLength {
		return nil, ErrInvalidInput
	}
	description := strings.TrimSpace(input.Description)
	if len(description) > MaxAssignmentDescriptionLength {
		return nil, ErrInvalidInput
	}
	if input.Budget != nil && *input.Budget < 0 {
		return nil, ErrInvalidInput
	}
	skills, err := normalizeSkills(input.Skills)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	row := models.Assignment{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Skills:      skills,
		Budget:      input.Budget,
		Status:      models.AssignmentStatusActive,
		CreatedBy:   actorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	// Closing rewrites only the status, which keeps the same length.
	if !fitsChangeNotification(row) {
		return nil, ErrInvalidInput
	}

	assignment, err := s.repo.Create(ctx, repository.CreateAssignmentInput{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description,
		Skills:      row.Skills,
		Budget:      row.Budget,
		CreatedBy:   row.CreatedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("insert assignment: %w", err)
	}

	s.logger.Info("assignment created", zap.String("assignment_id", assignment.ID), zap.String("created_by", actorID))
	return assignment, nil
}

// Close marks an assignment closed. Only its creator may close it;
// closing a closed assignment is a no-op.
func (s *AssignmentService) Close(ctx context.Context, actorID string, assignmentID string) (*models.Assignment, error) {
	if actorID == "" {
		return nil, ErrForbidden
	}
	assignmentID = strings.TrimSpace(assignmentID)
	if assignmentID == "" {
		return nil, ErrInvalidInput
	}

	assignment, err := s.repo.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if assignment.CreatedBy != actorID {
		return nil, ErrForbidden
	}
	if assignment.Status == models.AssignmentStatusClosed {
		return assignment, nil
	}

	closed, err := s.repo.UpdateStatus(ctx, assignmentID, models.AssignmentStatusClosed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("close assignment: %w", err)
	}
	return closed, nil
}

func normalizeSkills(skills []string) ([]string, error) {
	seen := make(map[string]struct{}, len(skills))
	out := make([]string, 0, len(skills))
	for _, skill := range skills {
		skill = strings.ToLower(strings.TrimSpace(skill))
		if skill == "" {
			continue
		}
		if len([]rune(skill)) > MaxSkillLength {
			return nil, ErrInvalidInput
		}
		if _, ok := seen[skill]; ok {
			continue
		}
		seen[skill] = struct{}{}
		out = append(out, skill)
	}
	if len(out) > MaxAssignmentSkills {
		return nil, ErrInvalidInput
	}
	return out, nil
}
