// Package limits recognizes rate, token, network and other operational
// failures and recommends how to recover from them.
package limits

import (
	"fmt"
	"time"
)

// ErrorType is one entry of the closed error taxonomy.
type ErrorType string

const (
	ErrorRateLimit      ErrorType = "RATE_LIMIT_EXCEEDED"
	ErrorTokenLimit     ErrorType = "TOKEN_LIMIT_EXCEEDED"
	ErrorNetworkTimeout ErrorType = "NETWORK_TIMEOUT"
	ErrorAPIQuota       ErrorType = "API_QUOTA_EXHAUSTED"
	ErrorAuthentication ErrorType = "AUTHENTICATION_ERROR"
	ErrorMCPServer      ErrorType = "MCP_SERVER_ERROR"
	ErrorAgentFailure   ErrorType = "AGENT_FAILURE"
	ErrorMemory         ErrorType = "MEMORY_ERROR"
)

// Severity is an ordinal impact level.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalText encodes the severity as its string tag.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a string tag.
func (s *Severity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "low":
		*s = SeverityLow
	case "medium":
		*s = SeverityMedium
	case "high":
		*s = SeverityHigh
	case "critical":
		*s = SeverityCritical
	default:
		return fmt.Errorf("unknown severity %q", string(b))
	}
	return nil
}

// Strategy is one of the six recovery responses.
type Strategy string

const (
	StrategyWaitAndRetry        Strategy = "wait_and_retry"
	StrategyTruncateContext     Strategy = "truncate_context"
	StrategyCheckpointAndRetry  Strategy = "checkpoint_and_retry"
	StrategyEscalateToHuman     Strategy = "escalate_to_human"
	StrategyAgentHandoff        Strategy = "agent_handoff"
	StrategyGracefulDegradation Strategy = "graceful_degradation"
)

// Valid returns true if s is one of the six known strategies.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyWaitAndRetry, StrategyTruncateContext, StrategyCheckpointAndRetry,
		StrategyEscalateToHuman, StrategyAgentHandoff, StrategyGracefulDegradation:
		return true
	}
	return false
}

// ErrorPattern describes how to recognize one error type and what to do about it.
type ErrorPattern struct {
	Type      ErrorType
	Keywords  []string
	Regexes   []string
	HTTPCodes []int

	Severity Severity
	Strategy Strategy

	MaxRetries        int
	BaseDelay         time.Duration
	BackoffMultiplier float64
	MaxWait           time.Duration

	// PreserveContext reports whether the conversation should survive recovery intact.
	PreserveContext bool
}

// Attempt is one recovery attempt made against an error.
type Attempt struct {
	Strategy  Strategy  `json:"strategy"`
	Succeeded bool      `json:"succeeded"`
	At        time.Time `json:"at"`
	Note      string    `json:"note,omitempty"`
}

// ErrorContext records one observed failure and the detector's verdict on it.
type ErrorContext struct {
	Timestamp           time.Time `json:"timestamp"`
	ErrorType           ErrorType `json:"error_type"`
	Message             string    `json:"message"`
	StackTrace          string    `json:"stack_trace,omitempty"`
	HTTPCode            int       `json:"http_code,omitempty"`
	AgentID             string    `json:"agent_id,omitempty"`
	WorkflowStage       string    `json:"workflow_stage,omitempty"`
	RequestID           string    `json:"request_id,omitempty"`
	RetryCount          int       `json:"retry_count"`
	RecoveryAttempts    []Attempt `json:"recovery_attempts"`
	Severity            Severity  `json:"severity"`
	RecommendedStrategy Strategy  `json:"recommended_strategy"`
	Confidence          float64   `json:"confidence"`
	// MaxContextSize is the serialized context size, in bytes, that the
	// failing request must fit under. Zero when the error states no limit.
	MaxContextSize int `json:"max_context_size,omitempty"`
}

// RecordAttempt appends an attempt to the error's recovery log.
func (e *ErrorContext) RecordAttempt(s Strategy, succeeded bool, note string) {
	e.RecoveryAttempts = append(e.RecoveryAttempts, Attempt{
		Strategy:  s,
		Succeeded: succeeded,
		At:        time.Now().UTC(),
		Note:      note,
	})
}

// Clone returns a deep copy.
func (e *ErrorContext) Clone() *ErrorContext {
	if e == nil {
		return nil
	}
	c := *e
	c.RecoveryAttempts = append([]Attempt(nil), e.RecoveryAttempts...)
	return &c
}

// Input is a raw failure handed to the detector.
type Input struct {
	Message       string
	HTTPCode      int
	StackTrace    string
	AgentID       string
	WorkflowStage string
	RequestID     string
}
