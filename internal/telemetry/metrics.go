package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

var (
	initOnce           sync.Once
	initErr            error
	recoveryCounter    metric.Int64Counter
	recoveryDuration   metric.Float64Histogram
	detectionCounter   metric.Int64Counter
	checkpointCounter  metric.Int64Counter
	selectionCounter   metric.Int64Counter
	teamSizeHistogram  metric.Int64Histogram
	activeSessionGauge metric.Int64ObservableGauge
	activeSessions     int64
	activeSessionsMu   sync.Mutex
)

// InitMetrics creates the instruments. Only the first call does any work.
// Call after InitMeterProvider; until then every Record function is a no-op.
func InitMetrics(ctx context.Context) error {
	initOnce.Do(func() {
		initErr = initInstruments()
	})
	return initErr
}

func initInstruments() error {
	m := Meter()
	var err error
	recoveryCounter, err = m.Int64Counter("crew_recovery_attempts_total",
		metric.WithDescription("Recovery attempts by strategy and outcome"))
	if err != nil {
		return err
	}
	recoveryDuration, err = m.Float64Histogram("crew_recovery_duration_seconds",
		metric.WithDescription("Time spent in a recovery strategy"))
	if err != nil {
		return err
	}
	detectionCounter, err = m.Int64Counter("crew_errors_detected_total",
		metric.WithDescription("Errors handed to the limit detector by resolved type"))
	if err != nil {
		return err
	}
	checkpointCounter, err = m.Int64Counter("crew_checkpoints_created_total",
		metric.WithDescription("Checkpoints created by type"))
	if err != nil {
		return err
	}
	selectionCounter, err = m.Int64Counter("crew_team_selections_total",
		metric.WithDescription("Team selections by strategy"))
	if err != nil {
		return err
	}
	teamSizeHistogram, err = m.Int64Histogram("crew_team_size",
		metric.WithDescription("Agents per selected team"))
	if err != nil {
		return err
	}
	activeSessionGauge, err = m.Int64ObservableGauge("crew_active_sessions",
		metric.WithDescription("Sessions currently managed by a coordinator"))
	if err != nil {
		return err
	}
	_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		activeSessionsMu.Lock()
		n := activeSessions
		activeSessionsMu.Unlock()
		o.ObserveInt64(activeSessionGauge, n)
		return nil
	}, activeSessionGauge)
	return err
}

// RecordRecovery records one recovery attempt.
func RecordRecovery(ctx context.Context, strategy, status string, d time.Duration) {
	if recoveryCounter != nil {
		recoveryCounter.Add(ctx, 1, metric.WithAttributes(AttrStrategy.String(strategy), AttrStatus.String(status)))
	}
	if recoveryDuration != nil {
		recoveryDuration.Record(ctx, d.Seconds(), metric.WithAttributes(AttrStrategy.String(strategy)))
	}
}

// RecordDetection records a detector verdict. Unrecognized errors use "unrecognized".
func RecordDetection(ctx context.Context, errorType string) {
	if detectionCounter == nil {
		return
	}
	if errorType == "" {
		errorType = "unrecognized"
	}
	detectionCounter.Add(ctx, 1, metric.WithAttributes(AttrErrorType.String(errorType)))
}

// RecordCheckpoint records a created checkpoint.
func RecordCheckpoint(ctx context.Context, checkpointType string) {
	if checkpointCounter != nil {
		checkpointCounter.Add(ctx, 1, metric.WithAttributes(AttrType.String(checkpointType)))
	}
}

// RecordSelection records a team selection and its size.
func RecordSelection(ctx context.Context, strategy string, teamSize int) {
	if selectionCounter != nil {
		selectionCounter.Add(ctx, 1, metric.WithAttributes(AttrSelection.String(strategy)))
	}
	if teamSizeHistogram != nil {
		teamSizeHistogram.Record(ctx, int64(teamSize), metric.WithAttributes(AttrSelection.String(strategy)))
	}
}

// SessionStarted increments the active session gauge.
func SessionStarted() {
	activeSessionsMu.Lock()
	activeSessions++
	activeSessionsMu.Unlock()
}

// SessionStopped decrements the active session gauge, never below zero.
func SessionStopped() {
	activeSessionsMu.Lock()
	activeSessions--
	if activeSessions < 0 {
		activeSessions = 0
	}
	activeSessionsMu.Unlock()
}
