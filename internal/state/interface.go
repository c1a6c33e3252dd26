package state

import "io"

// PerformanceStore persists per-agent success history.
type PerformanceStore interface {
	SaveAgentPerformance(p AgentPerformance) error
	GetAgentPerformance(agentID string) (*AgentPerformance, error)
	ListAgentPerformance() ([]AgentPerformance, error)
}

// AttemptStore persists the recovery attempt log.
type AttemptStore interface {
	RecordAttempt(a RecoveryAttempt) error
	GetAttempt(id string) (*RecoveryAttempt, error)
	ListAttempts(sessionID string) ([]RecoveryAttempt, error)
	AttemptCounts() (map[string]StrategyCounts, error)
}

// Store is the full persistence surface backed by DB.
type Store interface {
	io.Closer
	Migrate() error
	PerformanceStore
	AttemptStore
}

var (
	_ Store            = (*DB)(nil)
	_ PerformanceStore = (*DB)(nil)
	_ AttemptStore     = (*DB)(nil)
)
