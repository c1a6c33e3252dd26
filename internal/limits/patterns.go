package limits

import "time"

// baseDelay is the first retry delay for every built-in pattern; backoff
// grows it by the pattern's multiplier.
const baseDelay = time.Second

// DefaultPatterns returns the built-in taxonomy in evaluation order.
// Keywords are matched case-insensitively as substrings; regexes are
// compiled case-insensitive. On equal scores the earlier pattern wins.
func DefaultPatterns() []ErrorPattern {
	return []ErrorPattern{
		{
			Type:              ErrorRateLimit,
			Keywords:          []string{"rate limit", "rate_limit_exceeded", "too many requests", "quota exceeded"},
			Regexes:           []string{`rate\s*limit`, `429\s*error`, `quota.*exceeded`},
			HTTPCodes:         []int{429},
			Severity:          SeverityMedium,
			Strategy:          StrategyWaitAndRetry,
			MaxRetries:        5,
			BaseDelay:         baseDelay,
			BackoffMultiplier: 2.0,
			MaxWait:           600 * time.Second,
			PreserveContext:   true,
		},
		{
			Type:              ErrorTokenLimit,
			Keywords:          []string{"token limit", "context_length_exceeded", "max_tokens", "context too long"},
			Regexes:           []string{`token.*limit`, `context.*length`, `max.*tokens`},
			HTTPCodes:         []int{400},
			Severity:          SeverityHigh,
			Strategy:          StrategyTruncateContext,
			MaxRetries:        3,
			BaseDelay:         baseDelay,
			BackoffMultiplier: 1.0,
			MaxWait:           60 * time.Second,
			PreserveContext:   true,
		},
		{
			Type:              ErrorNetworkTimeout,
			Keywords:          []string{"timeout", "connection timeout", "read timeout", "network error"},
			Regexes:           []string{`timeout`, `connection.*error`, `network.*error`},
			HTTPCodes:         []int{408, 504, 502, 503},
			Severity:          SeverityMedium,
			Strategy:          StrategyCheckpointAndRetry,
			MaxRetries:        3,
			BaseDelay:         baseDelay,
			BackoffMultiplier: 1.5,
			MaxWait:           120 * time.Second,
			PreserveContext:   true,
		},
		{
			Type:              ErrorAPIQuota,
			Keywords:          []string{"quota exhausted", "api quota", "daily limit", "monthly limit"},
			Regexes:           []string{`quota.*exhausted`, `daily.*limit`, `monthly.*limit`},
			HTTPCodes:         []int{402, 429},
			Severity:          SeverityCritical,
			Strategy:          StrategyEscalateToHuman,
			MaxRetries:        0,
			BaseDelay:         baseDelay,
			BackoffMultiplier: 1.0,
			MaxWait:           0,
			PreserveContext:   true,
		},
		{
			Type:              ErrorAuthentication,
			Keywords:          []string{"authentication failed", "invalid token", "unauthorized", "auth error"},
			Regexes:           []string{`auth.*error`, `unauthorized`, `invalid.*token`},
			HTTPCodes:         []int{401, 403},
			Severity:          SeverityCritical,
			Strategy:          StrategyEscalateToHuman,
			MaxRetries:        1,
			BaseDelay:         baseDelay,
			BackoffMultiplier: 1.0,
			MaxWait:           10 * time.Second,
			PreserveContext:   true,
		},
		{
			Type:              ErrorMCPServer,
			Keywords:          []string{"mcp server", "server error", "mcp connection", "protocol error"},
			Regexes:           []string{`mcp.*error`, `server.*error`, `protocol.*error`},
			HTTPCodes:         []int{500, 502, 503},
			Severity:          SeverityHigh,
			Strategy:          StrategyGracefulDegradation,
			MaxRetries:        3,
			BaseDelay:         baseDelay,
			BackoffMultiplier: 2.0,
			MaxWait:           180 * time.Second,
			PreserveContext:   true,
		},
		{
			Type:              ErrorAgentFailure,
			Keywords:          []string{"agent failed", "agent error", "task failed", "execution error"},
			Regexes:           []string{`agent.*failed`, `task.*failed`, `execution.*error`},
			Severity:          SeverityHigh,
			Strategy:          StrategyAgentHandoff,
			MaxRetries:        2,
			BaseDelay:         baseDelay,
			BackoffMultiplier: 1.0,
			MaxWait:           60 * time.Second,
			PreserveContext:   true,
		},
		{
			Type:              ErrorMemory,
			Keywords:          []string{"out of memory", "memory error", "allocation failed"},
			Regexes:           []string{`memory.*error`, `out.*of.*memory`, `allocation.*failed`},
			Severity:          SeverityCritical,
			Strategy:          StrategyCheckpointAndRetry,
			MaxRetries:        2,
			BaseDelay:         baseDelay,
			BackoffMultiplier: 1.0,
			MaxWait:           30 * time.Second,
			PreserveContext:   false,
		},
	}
}
