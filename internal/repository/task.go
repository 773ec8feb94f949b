package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/animagen/animagen/internal/model"
)

// Common errors for task repository operations.
var (
	ErrTaskNotFound          = errors.New("task not found")
	ErrTaskExists            = errors.New("task already exists")
	ErrRefinedPromptNotFound = errors.New("refined prompt not found")
	ErrInvalidCursor         = errors.New("invalid pagination cursor")
	// ErrTaskFinished is returned when updating a task that is already
	// completed or failed.
	ErrTaskFinished = errors.New("task already finished")
)

// PaginationCursor represents decoded cursor for pagination.
type PaginationCursor struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

const taskColumns = `id, status, progress, message, prompt, style, quality, duration,
	background_color, include_audio, COALESCE(callback_url, ''), COALESCE(file_path, ''),
	COALESCE(file_url, ''), COALESCE(error_message, ''), created_at, updated_at, completed_at`

// CreateTask inserts a new task.
func (r *Repository) CreateTask(ctx context.Context, task *model.Task) error {
	query := `
		INSERT INTO animation_tasks (id, status, progress, message, prompt, style, quality, duration,
			background_color, include_audio, callback_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12, $13)
	`

	_, err := r.pool.Exec(ctx, query,
		task.ID,
		task.Status,
		task.Progress,
		task.Message,
		task.Request.Prompt,
		task.Request.Style,
		task.Request.Quality,
		task.Request.Duration,
		task.Request.BackgroundColor,
		task.Request.IncludeAudio,
		task.Request.CallbackURL,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrTaskExists
		}
		return fmt.Errorf("failed to create task: %w", err)
	}

	return nil
}

// GetTask retrieves a task by ID.
func (r *Repository) GetTask(ctx context.Context, id string) (*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM animation_tasks WHERE id = $1`

	task, err := scanTask(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return task, nil
}

// UpdateTaskState persists the mutable state of a task. Rows that are
// already completed or failed are left alone and ErrTaskFinished is returned.
func (r *Repository) UpdateTaskState(ctx context.Context, task *model.Task) error {
	query := `
		UPDATE animation_tasks
		SET status = $2, progress = $3, message = $4,
			file_path = NULLIF($5, ''), file_url = NULLIF($6, ''), error_message = NULLIF($7, ''),
			updated_at = $8, completed_at = $9
		WHERE id = $1 AND status NOT IN ('completed', 'failed')
	`

	result, err := r.pool.Exec(ctx, query,
		task.ID,
		task.Status,
		task.Progress,
		task.Message,
		task.FilePath,
		task.FileURL,
		task.ErrorMessage,
		task.UpdatedAt,
		task.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	if result.RowsAffected() == 0 {
		var exists bool
		err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM animation_tasks WHERE id = $1)`, task.ID).Scan(&exists)
		switch {
		case err != nil:
			return fmt.Errorf("failed to check task: %w", err)
		case exists:
			return ErrTaskFinished
		default:
			return ErrTaskNotFound
		}
	}

	return nil
}

// SaveRefinedPrompt stores the generated prompt and scene code for a task.
// Saving again for the same task replaces the previous row.
func (r *Repository) SaveRefinedPrompt(ctx context.Context, taskID string, rp *model.RefinedPrompt) error {
	query := `
		INSERT INTO refined_prompts (task_id, original_prompt, refined_prompt, manim_code, explanation,
			estimated_duration, key_elements)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (task_id) DO UPDATE SET
			refined_prompt = EXCLUDED.refined_prompt,
			manim_code = EXCLUDED.manim_code,
			explanation = EXCLUDED.explanation,
			estimated_duration = EXCLUDED.estimated_duration,
			key_elements = EXCLUDED.key_elements,
			created_at = NOW()
	`

	keyElements := rp.KeyElements
	if keyElements == nil {
		keyElements = []string{}
	}

	_, err := r.pool.Exec(ctx, query,
		taskID,
		rp.OriginalPrompt,
		rp.RefinedPrompt,
		rp.ManimCode,
		rp.Explanation,
		rp.EstimatedDuration,
		pq.Array(keyElements),
	)
	if err != nil {
		return fmt.Errorf("failed to save refined prompt: %w", err)
	}

	return nil
}

// GetRefinedPrompt returns the refined prompt for a task.
func (r *Repository) GetRefinedPrompt(ctx context.Context, taskID string) (*model.RefinedPrompt, error) {
	query := `
		SELECT original_prompt, refined_prompt, manim_code, explanation, estimated_duration, key_elements
		FROM refined_prompts
		WHERE task_id = $1
	`

	var rp model.RefinedPrompt
	err := r.pool.QueryRow(ctx, query, taskID).Scan(
		&rp.OriginalPrompt,
		&rp.RefinedPrompt,
		&rp.ManimCode,
		&rp.Explanation,
		&rp.EstimatedDuration,
		pq.Array(&rp.KeyElements),
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRefinedPromptNotFound
		}
		return nil, fmt.Errorf("failed to get refined prompt: %w", err)
	}

	return &rp, nil
}

// ListTasks returns tasks newest first using keyset pagination.
func (r *Repository) ListTasks(ctx context.Context, cursor string, limit int) ([]*model.Task, string, error) {
	var cursorData *PaginationCursor
	if cursor != "" {
		var err error
		cursorData, err = decodeCursor(cursor)
		if err != nil {
			return nil, "", ErrInvalidCursor
		}
	}

	query := `SELECT ` + taskColumns + ` FROM animation_tasks`
	args := []any{}
	argIndex := 1

	if cursorData != nil {
		query += fmt.Sprintf(" WHERE (created_at, id) < ($%d, $%d)", argIndex, argIndex+1)
		args = append(args, cursorData.CreatedAt, cursorData.ID)
		argIndex += 2
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", argIndex)
	args = append(args, limit+1) // Fetch one extra to determine hasMore

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, "", fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("error iterating tasks: %w", err)
	}

	var nextCursor string
	if len(tasks) > limit {
		tasks = tasks[:limit]
		last := tasks[len(tasks)-1]
		nextCursor = encodeCursor(&PaginationCursor{
			ID:        last.ID,
			CreatedAt: last.CreatedAt,
		})
	}

	return tasks, nextCursor, nil
}

// CountTasks returns the total number of stored tasks.
func (r *Repository) CountTasks(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM animation_tasks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return n, nil
}

// DeleteTasksCreatedBefore removes tasks older than cutoff along with their
// refined prompts and events. Returns the deleted IDs.
func (r *Repository) DeleteTasksCreatedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, `DELETE FROM animation_tasks WHERE created_at < $1 RETURNING id`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to delete tasks: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan deleted task id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deleted tasks: %w", err)
	}

	return ids, nil
}

// scanTask scans a single row into a Task model.
func scanTask(row pgx.Row) (*model.Task, error) {
	var task model.Task
	err := row.Scan(
		&task.ID,
		&task.Status,
		&task.Progress,
		&task.Message,
		&task.Request.Prompt,
		&task.Request.Style,
		&task.Request.Quality,
		&task.Request.Duration,
		&task.Request.BackgroundColor,
		&task.Request.IncludeAudio,
		&task.Request.CallbackURL,
		&task.FilePath,
		&task.FileURL,
		&task.ErrorMessage,
		&task.CreatedAt,
		&task.UpdatedAt,
		&task.CompletedAt,
	)
	return &task, err
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation.
func isUniqueViolation(err error) bool {
	// PostgreSQL error code 23505 is unique_violation
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(msg, "unique")
}

// encodeCursor encodes pagination cursor to base64.
func encodeCursor(cursor *PaginationCursor) string {
	data, _ := json.Marshal(cursor)
	return base64.URLEncoding.EncodeToString(data)
}

// decodeCursor decodes base64 pagination cursor.
func decodeCursor(s string) (*PaginationCursor, error) {
	data, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}

	var cursor PaginationCursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, err
	}

	return &cursor, nil
}
