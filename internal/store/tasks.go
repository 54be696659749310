package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ribotflowdeveloper-hub/ribotflow-sub002/internal/models"
)

func (s *Store) tasksInRange(ctx context.Context, teamID string, start, end time.Time) ([]models.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.team_id, t.title, t.due_date, t.assigned_to, t.is_completed, c.name, t.created_at
		FROM tasks t
		LEFT JOIN contacts c ON c.id = t.contact_id
		WHERE t.team_id = $1 AND t.due_date BETWEEN $2 AND $3
		ORDER BY t.due_date
	`, teamID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		var t models.Task
		var dueDate sql.NullTime
		var assignedTo, contactName sql.NullString
		if err := rows.Scan(&t.ID, &t.TeamID, &t.Title, &dueDate, &assignedTo, &t.IsCompleted, &contactName, &t.CreatedAt); err != nil {
			return nil, err
		}
		if dueDate.Valid {
			t.DueDate = &dueDate.Time
		}
		if assignedTo.Valid {
			t.AssignedTo = &assignedTo.String
		}
		if contactName.Valid {
			t.ContactName = &contactName.String
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateTaskDate moves a task to a new due date.
func (s *Store) UpdateTaskDate(ctx context.Context, teamID, taskID string, due time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET due_date = $1
		WHERE id = $2 AND team_id = $3
	`, due, taskID, teamID)
	if err != nil {
		return fmt.Errorf("update task date: %w", err)
	}
	return requireOneRow(result, "task", taskID)
}

// UpdateTaskAssignment persists one step of the assignment/completion cycle.
func (s *Store) UpdateTaskAssignment(ctx context.Context, teamID, taskID string, assignedTo *string, completed bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET assigned_to = $1, is_completed = $2
		WHERE id = $3 AND team_id = $4
	`, assignedTo, completed, taskID, teamID)
	if err != nil {
		return fmt.Errorf("update task assignment: %w", err)
	}
	return requireOneRow(result, "task", taskID)
}

func requireOneRow(result sql.Result, kind, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s not found", kind, id)
	}
	return nil
}
