package repository

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/animagen/animagen/internal/model"
)

// InsertTaskEvent records a status change. ID is assigned when empty.
func (r *Repository) InsertTaskEvent(ctx context.Context, event *model.TaskEvent) error {
	if event.ID == "" {
		event.ID = ulid.Make().String()
	}

	query := `
		INSERT INTO task_events (id, task_id, status, progress, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query,
		event.ID,
		event.TaskID,
		event.Status,
		event.Progress,
		event.Message,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task event: %w", err)
	}

	return nil
}

// ListTaskEvents returns the events of a task in the order they were recorded.
func (r *Repository) ListTaskEvents(ctx context.Context, taskID string) ([]*model.TaskEvent, error) {
	query := `
		SELECT id, task_id, status, progress, message, created_at
		FROM task_events
		WHERE task_id = $1
		ORDER BY id ASC
	`

	rows, err := r.pool.Query(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list task events: %w", err)
	}
	defer rows.Close()

	events := make([]*model.TaskEvent, 0)
	for rows.Next() {
		var e model.TaskEvent
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Status, &e.Progress, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task event: %w", err)
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task events: %w", err)
	}

	return events, nil
}
