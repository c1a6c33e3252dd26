package telemetry

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRecordBeforeInitIsNoop(t *testing.T) {
	// Instruments may be nil here; none of these may panic.
	ctx := context.Background()
	RecordRecovery(ctx, "wait_and_retry", "succeeded", time.Second)
	RecordDetection(ctx, "")
	RecordCheckpoint(ctx, "auto")
	RecordSelection(ctx, "minimal_team", 1)
}

func TestMetricsEndpoint(t *testing.T) {
	ctx := context.Background()
	handler, err := InitMeterProvider(ctx, "crew-test")
	if err != nil {
		t.Fatalf("InitMeterProvider: %v", err)
	}
	if err := InitMetrics(ctx); err != nil {
		t.Fatalf("InitMetrics: %v", err)
	}
	if err := InitMetrics(ctx); err != nil {
		t.Fatalf("second InitMetrics: %v", err)
	}

	RecordRecovery(ctx, "truncate_context", "succeeded", 20*time.Millisecond)
	RecordDetection(ctx, "RATE_LIMIT_EXCEEDED")
	RecordDetection(ctx, "")
	RecordCheckpoint(ctx, "recovery")
	RecordSelection(ctx, "full_team", 4)
	SessionStarted()
	SessionStarted()
	SessionStopped()
	SessionStopped()
	SessionStopped()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, name := range []string{
		"crew_recovery_attempts",
		"crew_errors_detected",
		"crew_checkpoints_created",
		"crew_team_selections",
		"crew_active_sessions",
	} {
		if !strings.Contains(out, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
	if !strings.Contains(out, `error_type="unrecognized"`) {
		t.Error("unrecognized detections not labeled")
	}
}
