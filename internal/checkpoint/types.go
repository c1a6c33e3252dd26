// Package checkpoint snapshots session state at risky or periodic points
// and restores it during recovery.
package checkpoint

import (
	"time"
)

// FormatVersion is written into every checkpoint document.
const FormatVersion = "1.0"

// supportedVersions lists the document versions Restore accepts.
var supportedVersions = map[string]bool{FormatVersion: true}

// Type says why a checkpoint was taken.
type Type string

const (
	TypeAuto         Type = "auto"
	TypeError        Type = "error"
	TypeManual       Type = "manual"
	TypeWorkflow     Type = "workflow"
	TypeAgentHandoff Type = "agent_handoff"
	TypeRecovery     Type = "recovery"
)

// Trigger is the condition that prompted an automatic checkpoint.
type Trigger string

const (
	TriggerNone           Trigger = ""
	TriggerTimeInterval   Trigger = "time_interval"
	TriggerMessageCount   Trigger = "message_count"
	TriggerAgentChange    Trigger = "agent_change"
	TriggerWorkflowStage  Trigger = "workflow_stage"
	TriggerErrorThreshold Trigger = "error_threshold"
	TriggerToolUsage      Trigger = "tool_usage"
)

// Risk is a three-level assessment of the operation being checkpointed.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// Metadata describes one checkpoint.
type Metadata struct {
	ID               string         `json:"checkpoint_id"`
	Type             Type           `json:"checkpoint_type"`
	Trigger          Trigger        `json:"trigger,omitempty"`
	SessionID        string         `json:"session_id"`
	CreatedAt        time.Time      `json:"created_at"`
	Description      string         `json:"description"`
	ContextSize      int            `json:"context_size"`
	MessageCount     int            `json:"message_count"`
	ActiveAgents     []string       `json:"active_agents"`
	WorkflowStage    string         `json:"workflow_stage,omitempty"`
	RiskAssessment   Risk           `json:"risk_assessment"`
	RecoveryMetadata map[string]any `json:"recovery_metadata,omitempty"`
}

// Operation describes the work around a checkpoint decision. All fields
// are optional.
type Operation struct {
	Tool       string
	Text       string
	FilePath   string
	ErrorCount int
	// Metadata is copied into the checkpoint's recovery metadata.
	Metadata map[string]any
}

// Config holds checkpoint policy.
type Config struct {
	Interval         time.Duration
	MessageThreshold int
	MaxPerSession    int
	Retention        time.Duration
	ErrorThreshold   int
}

// DefaultConfig returns the standard policy.
func DefaultConfig() Config {
	return Config{
		Interval:         300 * time.Second,
		MessageThreshold: 20,
		MaxPerSession:    50,
		Retention:        7 * 24 * time.Hour,
		ErrorThreshold:   3,
	}
}

// Stats summarizes stored checkpoints.
type Stats struct {
	Total      int            `json:"total"`
	TotalBytes int64          `json:"total_bytes"`
	BySession  map[string]int `json:"by_session"`
	ByType     map[Type]int   `json:"by_type"`
	Oldest     time.Time      `json:"oldest"`
	Newest     time.Time      `json:"newest"`
}
