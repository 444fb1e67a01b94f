package repository

import (
	"context"

	"github.com/Boredooms/HireNexa-sub002/internal/models"
	"github.com/jackc/pgx/v5"
)

const assignmentColumns = `id, title, description, skills, budget::float8, status, created_by, created_at, updated_at`

type AssignmentRepository struct {
	db DBTX
}

func NewAssignmentRepository(db DBTX) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

type CreateAssignmentInput struct {
	ID          string
	Title       string
	Description string
	Skills      []string
	Budget      *float64
	CreatedBy   string
}

func (r *AssignmentRepository) Create(ctx context.Context, input CreateAssignmentInput) (*models.Assignment, error) {
	skills := input.Skills
	if skills == nil {
		skills = []string{}
	}

	query := `
		INSERT INTO assignments (id, title, description, skills, budget, status, created_by)
		VALUES ($1, $2, $3, $4, $5, 'active', $6)
		RETURNING ` + assignmentColumns

	return scanAssignment(r.db.QueryRow(
		ctx,
		query,
		input.ID,
		input.Title,
		input.Description,
		skills,
		input.Budget,
		input.CreatedBy,
	))
}

func (r *AssignmentRepository) GetByID(ctx context.Context, id string) (*models.Assignment, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM assignments
		WHERE id = $1
	`
	return scanAssignment(r.db.QueryRow(ctx, query, id))
}

// ListActive returns open assignments, newest first.
func (r *AssignmentRepository) ListActive(ctx context.Context) ([]models.Assignment, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM assignments
		WHERE status = 'active'
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assignments := make([]models.Assignment, 0)
	for rows.Next() {
		assignment, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, *assignment)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assignments, nil
}

func (r *AssignmentRepository) UpdateStatus(ctx context.Context, id string, status string) (*models.Assignment, error) {
	query := `
		UPDATE assignments
		SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + assignmentColumns
	return scanAssignment(r.db.QueryRow(ctx, query, id, status))
}

func scanAssignment(row pgx.Row) (*models.Assignment, error) {
	var assignment models.Assignment
	err := row.Scan(
		&assignment.ID,
		&assignment.Title,
		&assignment.Description,
		&assignment.Skills,
		&assignment.Budget,
		&assignment.Status,
		&assignment.CreatedBy,
		&assignment.CreatedAt,
		&assignment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}
