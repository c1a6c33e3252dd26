package limits

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
)

func TestDetect_RateLimitWithStatus(t *testing.T) {
	d := NewDetector()
	ec := d.Detect(Input{Message: "Rate limit exceeded. Please try again later.", HTTPCode: 429})
	if ec == nil {
		t.Fatal("expected rate limit to be recognized")
	}
	if ec.ErrorType != ErrorRateLimit {
		t.Errorf("ErrorType = %s, want %s", ec.ErrorType, ErrorRateLimit)
	}
	if ec.RecommendedStrategy != StrategyWaitAndRetry {
		t.Errorf("RecommendedStrategy = %s, want %s", ec.RecommendedStrategy, StrategyWaitAndRetry)
	}
	if ec.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want capped at 1.0", ec.Confidence)
	}

	for retry := 0; retry < 5; retry++ {
		ec.RetryCount = retry
		if !d.ShouldRetry(ec) {
			t.Errorf("ShouldRetry at retry %d = false, want true", retry)
		}
	}
	ec.RetryCount = 5
	if d.ShouldRetry(ec) {
		t.Error("ShouldRetry at retry 5 = true, want false")
	}
}

func TestDetect_Taxonomy(t *testing.T) {
	tests := []struct {
		name     string
		in       Input
		want     ErrorType
		strategy Strategy
		severity Severity
	}{
		{
			name:     "rate limit message only",
			in:       Input{Message: "Rate limit exceeded: too many requests (quota exceeded)"},
			want:     ErrorRateLimit,
			strategy: StrategyWaitAndRetry,
			severity: SeverityMedium,
		},
		{
			name:     "token limit",
			in:       Input{Message: "input exceeds token limit: maximum context length is 200000 tokens"},
			want:     ErrorTokenLimit,
			strategy: StrategyTruncateContext,
			severity: SeverityHigh,
		},
		{
			name:     "network timeout",
			in:       Input{Message: "network error: connection timeout while reading response"},
			want:     ErrorNetworkTimeout,
			strategy: StrategyCheckpointAndRetry,
			severity: SeverityMedium,
		},
		{
			name:     "gateway status",
			in:       Input{Message: "upstream unavailable", HTTPCode: 503},
			want:     ErrorNetworkTimeout,
			strategy: StrategyCheckpointAndRetry,
			severity: SeverityMedium,
		},
		{
			name:     "quota",
			in:       Input{Message: "API quota exhausted: daily limit reached"},
			want:     ErrorAPIQuota,
			strategy: StrategyEscalateToHuman,
			severity: SeverityCritical,
		},
		{
			name:     "authentication",
			in:       Input{Message: "auth error: invalid token (unauthorized)"},
			want:     ErrorAuthentication,
			strategy: StrategyEscalateToHuman,
			severity: SeverityCritical,
		},
		{
			name:     "mcp server",
			in:       Input{Message: "MCP server error: protocol error on mcp connection"},
			want:     ErrorMCPServer,
			strategy: StrategyGracefulDegradation,
			severity: SeverityHigh,
		},
		{
			name:     "agent failure",
			in:       Input{Message: "agent failed: task failed with execution error", AgentID: "python-pro"},
			want:     ErrorAgentFailure,
			strategy: StrategyAgentHandoff,
			severity: SeverityHigh,
		},
		{
			name:     "memory",
			in:       Input{Message: "fatal error: runtime: out of memory (memory error)"},
			want:     ErrorMemory,
			strategy: StrategyCheckpointAndRetry,
			severity: SeverityCritical,
		},
		{
			name:     "stack trace contributes",
			in:       Input{Message: "worker exited", StackTrace: "goroutine 1 [running]:\nruntime: out of memory: allocation failed"},
			want:     ErrorMemory,
			strategy: StrategyCheckpointAndRetry,
			severity: SeverityCritical,
		},
	}

	d := NewDetector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ec := d.Detect(tt.in)
			if ec == nil {
				t.Fatal("expected error to be recognized")
			}
			if ec.ErrorType != tt.want {
				t.Errorf("ErrorType = %s, want %s", ec.ErrorType, tt.want)
			}
			if ec.RecommendedStrategy != tt.strategy {
				t.Errorf("RecommendedStrategy = %s, want %s", ec.RecommendedStrategy, tt.strategy)
			}
			if ec.Severity != tt.severity {
				t.Errorf("Severity = %s, want %s", ec.Severity, tt.severity)
			}
			if ec.Confidence < MatchThreshold || ec.Confidence > 1 {
				t.Errorf("Confidence = %v, want in [%v, 1]", ec.Confidence, MatchThreshold)
			}
			if ec.AgentID != tt.in.AgentID {
				t.Errorf("AgentID = %q, want %q", ec.AgentID, tt.in.AgentID)
			}
		})
	}
}

func TestDetect_CriticalErrorsNeverLoop(t *testing.T) {
	d := NewDetector()
	for _, p := range DefaultPatterns() {
		if p.Severity != SeverityCritical {
			continue
		}
		if p.Strategy != StrategyEscalateToHuman && p.MaxRetries > 2 {
			t.Errorf("%s: critical error with %d retries and strategy %s", p.Type, p.MaxRetries, p.Strategy)
		}
		ec := &ErrorContext{ErrorType: p.Type, RetryCount: p.MaxRetries}
		if d.ShouldRetry(ec) {
			t.Errorf("%s: ShouldRetry after budget spent", p.Type)
		}
	}
}

func TestDetect_Unrecognized(t *testing.T) {
	d := NewDetector()
	if ec := d.Detect(Input{Message: "everything is fine"}); ec != nil {
		t.Errorf("expected nil, got %+v", ec)
	}
	if ec := d.Detect(Input{Message: "", HTTPCode: 418}); ec != nil {
		t.Errorf("expected nil for unknown status, got %+v", ec)
	}

	stats := d.Stats()
	if stats.Total != 2 || stats.Unrecognized != 2 {
		t.Errorf("Stats = %+v, want 2 total, 2 unrecognized", stats)
	}
	if d.ShouldRetry(nil) {
		t.Error("ShouldRetry(nil) = true")
	}
}

func TestDetect_TokenLimitStatesMaxContext(t *testing.T) {
	d := NewDetector()
	ec := d.Detect(Input{Message: "input exceeds token limit: maximum context length is 200000 tokens"})
	if ec == nil {
		t.Fatal("expected token limit to be recognized")
	}
	if ec.MaxContextSize != 200000*bytesPerToken {
		t.Errorf("MaxContextSize = %d, want %d", ec.MaxContextSize, 200000*bytesPerToken)
	}
}

func TestNewDetector_SkipsInvalidRegex(t *testing.T) {
	d := NewDetector(WithPatterns([]ErrorPattern{{
		Type:       ErrorAgentFailure,
		Keywords:   []string{"worker died"},
		Regexes:    []string{`(unclosed`, `worker`},
		Strategy:   StrategyAgentHandoff,
		MaxRetries: 1,
	}}))

	ec := d.Detect(Input{Message: "the worker died unexpectedly"})
	if ec == nil {
		t.Fatal("expected detection with remaining regex and keyword")
	}
	if ec.ErrorType != ErrorAgentFailure {
		t.Errorf("ErrorType = %s, want %s", ec.ErrorType, ErrorAgentFailure)
	}
}

func TestBackoffDelay(t *testing.T) {
	d := NewDetector()

	tests := []struct {
		errType ErrorType
		retry   int
		want    time.Duration
	}{
		{ErrorRateLimit, 0, time.Second},
		{ErrorRateLimit, 1, 2 * time.Second},
		{ErrorRateLimit, 4, 16 * time.Second},
		{ErrorRateLimit, 9, 512 * time.Second},
		{ErrorRateLimit, 10, 600 * time.Second},
		{ErrorNetworkTimeout, 0, time.Second},
		{ErrorNetworkTimeout, 2, 2250 * time.Millisecond},
		{ErrorNetworkTimeout, 20, 120 * time.Second},
		{ErrorTokenLimit, 3, time.Second},
		{ErrorType("UNKNOWN"), 1, 0},
	}
	for _, tt := range tests {
		got := d.BackoffDelay(&ErrorContext{ErrorType: tt.errType, RetryCount: tt.retry})
		if got != tt.want {
			t.Errorf("BackoffDelay(%s, %d) = %v, want %v", tt.errType, tt.retry, got, tt.want)
		}
	}
}

func TestDetectError_AnthropicError(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "https://api.anthropic.com/v1/messages", nil)
	resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{}}
	resp.Header.Set("request-id", "req_123")
	apiErr := &anthropic.Error{StatusCode: http.StatusTooManyRequests, Request: req, Response: resp}

	d := NewDetector()
	ec := d.DetectError(fmt.Errorf("send message: %w", apiErr), Input{AgentID: "python-pro"})
	if ec == nil {
		t.Fatal("expected detection")
	}
	if ec.ErrorType != ErrorRateLimit {
		t.Errorf("ErrorType = %s, want %s", ec.ErrorType, ErrorRateLimit)
	}
	if ec.HTTPCode != 429 {
		t.Errorf("HTTPCode = %d, want 429", ec.HTTPCode)
	}
	if ec.RequestID != "req_123" {
		t.Errorf("RequestID = %q, want req_123", ec.RequestID)
	}
	if ec.AgentID != "python-pro" {
		t.Errorf("AgentID = %q, want python-pro", ec.AgentID)
	}
}

func TestDetectError_DeadlineExceeded(t *testing.T) {
	d := NewDetector()
	ec := d.DetectError(context.DeadlineExceeded, Input{})
	if ec == nil || ec.ErrorType != ErrorNetworkTimeout {
		t.Fatalf("DetectError(deadline) = %+v, want NETWORK_TIMEOUT", ec)
	}
	if ec.HTTPCode != http.StatusRequestTimeout {
		t.Errorf("HTTPCode = %d, want 408", ec.HTTPCode)
	}
	if d.DetectError(nil, Input{}) != nil {
		t.Error("DetectError(nil) should be nil")
	}
}

func TestSeverityText(t *testing.T) {
	for _, s := range []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical} {
		b, err := s.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText: %v", err)
		}
		var got Severity
		if err := got.UnmarshalText(b); err != nil {
			t.Fatalf("UnmarshalText(%s): %v", b, err)
		}
		if got != s {
			t.Errorf("round trip %s = %s", s, got)
		}
	}
	var s Severity
	if err := s.UnmarshalText([]byte("apocalyptic")); err == nil {
		t.Error("expected error for unknown severity")
	}
	if SeverityLow >= SeverityCritical {
		t.Error("severity must be ordered")
	}
}

func TestDefaultPatterns_Table(t *testing.T) {
	tests := []struct {
		errType  ErrorType
		severity Severity
		strategy Strategy
		retries  int
		codes    []int
		maxWait  time.Duration
	}{
		{ErrorRateLimit, SeverityMedium, StrategyWaitAndRetry, 5, []int{429}, 600 * time.Second},
		{ErrorTokenLimit, SeverityHigh, StrategyTruncateContext, 3, []int{400}, 60 * time.Second},
		{ErrorNetworkTimeout, SeverityMedium, StrategyCheckpointAndRetry, 3, []int{408, 504, 502, 503}, 120 * time.Second},
		{ErrorAPIQuota, SeverityCritical, StrategyEscalateToHuman, 0, []int{402, 429}, 0},
		{ErrorAuthentication, SeverityCritical, StrategyEscalateToHuman, 1, []int{401, 403}, 10 * time.Second},
		{ErrorMCPServer, SeverityHigh, StrategyGracefulDegradation, 3, []int{500, 502, 503}, 180 * time.Second},
		{ErrorAgentFailure, SeverityHigh, StrategyAgentHandoff, 2, nil, 60 * time.Second},
		{ErrorMemory, SeverityCritical, StrategyCheckpointAndRetry, 2, nil, 30 * time.Second},
	}
	patterns := DefaultPatterns()
	if len(patterns) != len(tests) {
		t.Fatalf("len(DefaultPatterns()) = %d, want %d", len(patterns), len(tests))
	}
	for i, tt := range tests {
		p := patterns[i]
		t.Run(string(tt.errType), func(t *testing.T) {
			if p.Type != tt.errType {
				t.Fatalf("pattern %d = %s, want %s", i, p.Type, tt.errType)
			}
			if p.Severity != tt.severity || p.Strategy != tt.strategy || p.MaxRetries != tt.retries {
				t.Errorf("got (%s, %s, %d), want (%s, %s, %d)",
					p.Severity, p.Strategy, p.MaxRetries, tt.severity, tt.strategy, tt.retries)
			}
			if fmt.Sprint(p.HTTPCodes) != fmt.Sprint(tt.codes) {
				t.Errorf("HTTPCodes = %v, want %v", p.HTTPCodes, tt.codes)
			}
			if p.MaxWait != tt.maxWait {
				t.Errorf("MaxWait = %v, want %v", p.MaxWait, tt.maxWait)
			}
		})
	}
}

func TestDetect_SharedStatusGoesToEarlierPattern(t *testing.T) {
	d := NewDetector()
	tests := []struct {
		code int
		want ErrorType
	}{
		{429, ErrorRateLimit},
		{503, ErrorNetworkTimeout},
		{500, ErrorMCPServer},
		{400, ErrorTokenLimit},
	}
	for _, tt := range tests {
		ec := d.Detect(Input{Message: "request rejected", HTTPCode: tt.code})
		if ec == nil || ec.ErrorType != tt.want {
			t.Errorf("Detect(code %d) = %+v, want %s", tt.code, ec, tt.want)
		}
	}
}

func TestAddPattern(t *testing.T) {
	d := NewDetector()
	d.AddPattern(ErrorPattern{
		Type:       "DISK_FULL",
		Keywords:   []string{"no space left"},
		Regexes:    []string{`no space`},
		Severity:   SeverityHigh,
		Strategy:   StrategyCheckpointAndRetry,
		MaxRetries: 1,
	})
	ec := d.Detect(Input{Message: "write /tmp/x: no space left on device"})
	if ec == nil || ec.ErrorType != "DISK_FULL" {
		t.Fatalf("Detect = %+v, want DISK_FULL", ec)
	}

	d.AddPattern(ErrorPattern{Type: ErrorAuthentication, Keywords: []string{"key revoked"}, Strategy: StrategyEscalateToHuman})
	p, ok := d.Pattern(ErrorAuthentication)
	if !ok || len(p.Keywords) != 1 || p.Keywords[0] != "key revoked" {
		t.Errorf("Pattern(auth) = %+v, want the replacement", p)
	}
}

func TestExportImportPatterns(t *testing.T) {
	src := NewDetector()
	empty, err := src.ExportPatterns()
	if err != nil {
		t.Fatal(err)
	}
	if string(empty) != "{}" {
		t.Errorf("export without custom patterns = %s, want {}", empty)
	}

	src.AddPattern(ErrorPattern{
		Type:              "DISK_FULL",
		Keywords:          []string{"no space left"},
		Regexes:           []string{`no space`},
		HTTPCodes:         []int{507},
		Severity:          SeverityHigh,
		Strategy:          StrategyCheckpointAndRetry,
		MaxRetries:        2,
		BackoffMultiplier: 1.5,
		MaxWait:           90 * time.Second,
		PreserveContext:   true,
	})
	data, err := src.ExportPatterns()
	if err != nil {
		t.Fatal(err)
	}

	dst := NewDetector()
	if err := dst.ImportPatterns(data); err != nil {
		t.Fatalf("ImportPatterns: %v", err)
	}
	p, ok := dst.Pattern("DISK_FULL")
	if !ok {
		t.Fatal("imported pattern missing")
	}
	if p.Severity != SeverityHigh || p.Strategy != StrategyCheckpointAndRetry || p.MaxRetries != 2 ||
		p.MaxWait != 90*time.Second || p.BackoffMultiplier != 1.5 || !p.PreserveContext {
		t.Errorf("imported pattern = %+v", p)
	}
	if ec := dst.Detect(Input{Message: "no space left", HTTPCode: 507}); ec == nil || ec.ErrorType != "DISK_FULL" {
		t.Errorf("Detect with imported pattern = %+v", ec)
	}
}

func TestImportPatterns_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad json", `{`},
		{"unknown strategy", `{"X":{"error_type":"X","recovery_strategy":"pray","severity":"low"}}`},
		{"unknown severity", `{"X":{"error_type":"X","recovery_strategy":"agent_handoff","severity":"dire"}}`},
		{"missing type", `{"X":{"recovery_strategy":"agent_handoff","severity":"low"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDetector()
			if err := d.ImportPatterns([]byte(tt.data)); err == nil {
				t.Error("expected error")
			}
			if _, ok := d.Pattern("X"); ok {
				t.Error("invalid import registered a pattern")
			}
		})
	}
}
