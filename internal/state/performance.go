package state

import (
	"database/sql"
	"fmt"
	"time"
)

// AgentPerformance is the running track record of one agent.
type AgentPerformance struct {
	AgentID         string `json:"agent_id"`
	TotalTasks      int    `json:"total_tasks"`
	SuccessfulTasks int    `json:"successful_tasks"`
	// AvgCompletionSeconds is an exponential moving average.
	AvgCompletionSeconds float64   `json:"avg_completion_seconds"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// SuccessRate returns SuccessfulTasks/TotalTasks, or 0 with no history.
func (p AgentPerformance) SuccessRate() float64 {
	if p.TotalTasks == 0 {
		return 0
	}
	return float64(p.SuccessfulTasks) / float64(p.TotalTasks)
}

// SaveAgentPerformance inserts or replaces an agent's record.
func (db *DB) SaveAgentPerformance(p AgentPerformance) error {
	_, err := db.Exec(`
		INSERT INTO agent_performance (agent_id, total_tasks, successful_tasks, avg_completion_seconds, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET
			total_tasks = excluded.total_tasks,
			successful_tasks = excluded.successful_tasks,
			avg_completion_seconds = excluded.avg_completion_seconds,
			updated_at = excluded.updated_at
	`, p.AgentID, p.TotalTasks, p.SuccessfulTasks, p.AvgCompletionSeconds, formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save agent performance: %w", err)
	}
	return nil
}

// GetAgentPerformance returns the record for agentID, or nil if none exists.
func (db *DB) GetAgentPerformance(agentID string) (*AgentPerformance, error) {
	row := db.QueryRow(`
		SELECT agent_id, total_tasks, successful_tasks, avg_completion_seconds, updated_at
		FROM agent_performance WHERE agent_id = ?
	`, agentID)

	var p AgentPerformance
	var updatedAt string
	err := row.Scan(&p.AgentID, &p.TotalTasks, &p.SuccessfulTasks, &p.AvgCompletionSeconds, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get agent performance: %w", err)
	}
	p.UpdatedAt, _ = parseTime(updatedAt)
	return &p, nil
}

// ListAgentPerformance returns every stored record ordered by agent ID.
func (db *DB) ListAgentPerformance() ([]AgentPerformance, error) {
	rows, err := db.Query(`
		SELECT agent_id, total_tasks, successful_tasks, avg_completion_seconds, updated_at
		FROM agent_performance ORDER BY agent_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list agent performance: %w", err)
	}
	defer rows.Close()

	var out []AgentPerformance
	for rows.Next() {
		var p AgentPerformance
		var updatedAt string
		if err := rows.Scan(&p.AgentID, &p.TotalTasks, &p.SuccessfulTasks, &p.AvgCompletionSeconds, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan agent performance: %w", err)
		}
		p.UpdatedAt, _ = parseTime(updatedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}
