package state

import (
	"database/sql"
	"fmt"
	"time"
)

// AttemptStatus is the outcome of one recovery attempt.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSucceeded  AttemptStatus = "succeeded"
	AttemptFailed     AttemptStatus = "failed"
)

// RecoveryAttempt is one persisted run of a recovery strategy.
type RecoveryAttempt struct {
	ID           string        `json:"id"`
	SessionID    string        `json:"session_id"`
	ErrorType    string        `json:"error_type"`
	Strategy     string        `json:"strategy"`
	Status       AttemptStatus `json:"status"`
	CheckpointID string        `json:"checkpoint_id,omitempty"`
	Message      string        `json:"message,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
}

// StrategyCounts aggregates attempts for one strategy.
type StrategyCounts struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// RecordAttempt inserts an attempt or updates it if the ID already exists.
func (db *DB) RecordAttempt(a RecoveryAttempt) error {
	_, err := db.Exec(`
		INSERT INTO recovery_attempts (id, session_id, error_type, strategy, status, checkpoint_id, message, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			checkpoint_id = excluded.checkpoint_id,
			message = excluded.message,
			completed_at = excluded.completed_at
	`, a.ID, a.SessionID, a.ErrorType, a.Strategy, string(a.Status), a.CheckpointID, a.Message,
		formatTime(a.StartedAt), nullableTime(a.CompletedAt))
	if err != nil {
		return fmt.Errorf("record recovery attempt: %w", err)
	}
	return nil
}

// GetAttempt returns the attempt with the given ID, or nil if none exists.
func (db *DB) GetAttempt(id string) (*RecoveryAttempt, error) {
	row := db.QueryRow(`
		SELECT id, session_id, error_type, strategy, status, checkpoint_id, message, started_at, completed_at
		FROM recovery_attempts WHERE id = ?
	`, id)

	a, err := scanAttempt(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get recovery attempt: %w", err)
	}
	return a, nil
}

// ListAttempts returns attempts oldest first. An empty sessionID lists all sessions.
func (db *DB) ListAttempts(sessionID string) ([]RecoveryAttempt, error) {
	query := `
		SELECT id, session_id, error_type, strategy, status, checkpoint_id, message, started_at, completed_at
		FROM recovery_attempts`
	var args []any
	if sessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY started_at"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recovery attempts: %w", err)
	}
	defer rows.Close()

	var out []RecoveryAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recovery attempt: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// AttemptCounts returns per-strategy totals across all sessions.
func (db *DB) AttemptCounts() (map[string]StrategyCounts, error) {
	rows, err := db.Query(`
		SELECT strategy, status, COUNT(*) FROM recovery_attempts GROUP BY strategy, status
	`)
	if err != nil {
		return nil, fmt.Errorf("count recovery attempts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]StrategyCounts)
	for rows.Next() {
		var strategy, status string
		var n int
		if err := rows.Scan(&strategy, &status, &n); err != nil {
			return nil, fmt.Errorf("scan attempt count: %w", err)
		}
		c := counts[strategy]
		c.Total += n
		switch AttemptStatus(status) {
		case AttemptSucceeded:
			c.Succeeded += n
		case AttemptFailed:
			c.Failed += n
		}
		counts[strategy] = c
	}
	return counts, rows.Err()
}

// PurgeAttempts deletes attempts started before now-olderThan and returns
// the number removed.
func (db *DB) PurgeAttempts(olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))
	result, err := db.Exec("DELETE FROM recovery_attempts WHERE started_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge recovery attempts: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (*RecoveryAttempt, error) {
	var a RecoveryAttempt
	var status, startedAt string
	var checkpointID, message, completedAt sql.NullString
	if err := row.Scan(&a.ID, &a.SessionID, &a.ErrorType, &a.Strategy, &status,
		&checkpointID, &message, &startedAt, &completedAt); err != nil {
		return nil, err
	}
	a.Status = AttemptStatus(status)
	a.CheckpointID = checkpointID.String
	a.Message = message.String
	a.StartedAt, _ = parseTime(startedAt)
	a.CompletedAt = parseNullableTime(completedAt)
	return &a, nil
}
