package store

import (
	"context"
	"fmt"

	"github.com/hazyhaar/copydesk/idgen"
)

var newTaskID = idgen.Prefixed("tsk_", idgen.Default)

// LogTask appends one structured status line. Every entry carries the
// run id minted at batch start; a logical run is delimited by that id,
// never by matching message text.
func (s *Store) LogTask(ctx context.Context, entry *TaskEntry) error {
	if entry.ID == "" {
		entry.ID = newTaskID()
	}
	now := nowMilli()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO task_log (task_id, run_id, task_type, ref_id, status, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.RunID, entry.TaskType, entry.RefID, entry.Status, entry.Message, now)
	if err != nil {
		return fmt.Errorf("store: log task: %w", err)
	}
	entry.CreatedAt = fromMilli(now)
	return nil
}

// TasksByRun returns one run's entries in insertion order.
func (s *Store) TasksByRun(ctx context.Context, runID string) ([]TaskEntry, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT task_id, run_id, task_type, ref_id, status, message, created_at
		FROM task_log WHERE run_id = ? ORDER BY created_at ASC, task_id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: tasks by run: %w", err)
	}
	defer rows.Close()

	var out []TaskEntry
	for rows.Next() {
		var e TaskEntry
		var created int64
		if err := rows.Scan(&e.ID, &e.RunID, &e.TaskType, &e.RefID, &e.Status, &e.Message, &created); err != nil {
			return nil, fmt.Errorf("store: tasks by run: %w", err)
		}
		e.CreatedAt = fromMilli(created)
		out = append(out, e)
	}
	return out, rows.Err()
}
