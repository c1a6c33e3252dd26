package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func tempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

// setupTestDB creates a migrated temporary database.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenAndMigrate(tempDBPath(t))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func TestOpen_CreatesParentDirectories(t *testing.T) {
	nested := filepath.Join(t.TempDir(), "a", "b", "c")
	path := filepath.Join(nested, "test.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
	if _, err := os.Stat(nested); os.IsNotExist(err) {
		t.Errorf("parent directories not created: %s", nested)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	if _, err := Open("/proc/nonexistent/test.db"); err == nil {
		t.Error("expected error opening db at invalid path")
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db, err := Open(tempDBPath(t))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	for i := 0; i < 3; i++ {
		if err := db.Migrate(); err != nil {
			t.Fatalf("Migrate (iteration %d) failed: %v", i, err)
		}
	}

	var version int
	if err := db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		t.Fatalf("failed to get schema version: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("schema version = %d, want %d", version, len(migrations))
	}

	for _, table := range []string{"agent_performance", "recovery_attempts"} {
		var count int
		row := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table)
		if err := row.Scan(&count); err != nil {
			t.Errorf("failed to check table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("table %s does not exist", table)
		}
	}
}

func TestDefaultDBPath(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg-test")
	if got, want := DefaultDBPath(), "/tmp/xdg-test/crew/crew.db"; got != want {
		t.Errorf("DefaultDBPath() = %q, want %q", got, want)
	}
}

func TestFormatAndParseTime(t *testing.T) {
	now := time.Date(2025, 3, 4, 5, 6, 7, 891, time.UTC)
	got, err := parseTime(formatTime(now))
	if err != nil {
		t.Fatalf("parseTime: %v", err)
	}
	if !got.Equal(now) {
		t.Errorf("round trip = %v, want %v", got, now)
	}
}

func TestAgentPerformance(t *testing.T) {
	db := setupTestDB(t)

	got, err := db.GetAgentPerformance("debugger")
	if err != nil {
		t.Fatalf("GetAgentPerformance: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for unknown agent, got %+v", got)
	}

	p := AgentPerformance{AgentID: "debugger", TotalTasks: 4, SuccessfulTasks: 3, AvgCompletionSeconds: 12.5, UpdatedAt: time.Now()}
	if err := db.SaveAgentPerformance(p); err != nil {
		t.Fatalf("SaveAgentPerformance: %v", err)
	}
	p.TotalTasks = 5
	p.SuccessfulTasks = 4
	if err := db.SaveAgentPerformance(p); err != nil {
		t.Fatalf("SaveAgentPerformance (update): %v", err)
	}
	if err := db.SaveAgentPerformance(AgentPerformance{AgentID: "code-reviewer", TotalTasks: 1, UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("SaveAgentPerformance: %v", err)
	}

	got, err = db.GetAgentPerformance("debugger")
	if err != nil || got == nil {
		t.Fatalf("GetAgentPerformance = %v, %v", got, err)
	}
	if got.TotalTasks != 5 || got.SuccessRate() != 0.8 {
		t.Errorf("got %+v (rate %v), want 5 tasks at 0.8", got, got.SuccessRate())
	}

	all, err := db.ListAgentPerformance()
	if err != nil {
		t.Fatalf("ListAgentPerformance: %v", err)
	}
	if len(all) != 2 || all[0].AgentID != "code-reviewer" {
		t.Errorf("ListAgentPerformance = %+v, want 2 ordered by id", all)
	}
}

func TestRecoveryAttempts(t *testing.T) {
	db := setupTestDB(t)
	start := time.Now().Add(-time.Minute)

	attempts := []RecoveryAttempt{
		{ID: "a1", SessionID: "s1", ErrorType: "RATE_LIMIT_EXCEEDED", Strategy: "wait_and_retry", Status: AttemptInProgress, StartedAt: start},
		{ID: "a2", SessionID: "s1", ErrorType: "TOKEN_LIMIT_EXCEEDED", Strategy: "truncate_context", Status: AttemptFailed, StartedAt: start.Add(time.Second)},
		{ID: "a3", SessionID: "s2", ErrorType: "RATE_LIMIT_EXCEEDED", Strategy: "wait_and_retry", Status: AttemptSucceeded, StartedAt: start.Add(2 * time.Second)},
	}
	for _, a := range attempts {
		if err := db.RecordAttempt(a); err != nil {
			t.Fatalf("RecordAttempt(%s): %v", a.ID, err)
		}
	}

	done := time.Now()
	attempts[0].Status = AttemptSucceeded
	attempts[0].CheckpointID = "cp_1"
	attempts[0].CompletedAt = &done
	if err := db.RecordAttempt(attempts[0]); err != nil {
		t.Fatalf("RecordAttempt (update): %v", err)
	}

	got, err := db.GetAttempt("a1")
	if err != nil || got == nil {
		t.Fatalf("GetAttempt = %v, %v", got, err)
	}
	if got.Status != AttemptSucceeded || got.CheckpointID != "cp_1" || got.CompletedAt == nil {
		t.Errorf("update not persisted: %+v", got)
	}
	if missing, _ := db.GetAttempt("nope"); missing != nil {
		t.Error("expected nil for unknown attempt")
	}

	s1, err := db.ListAttempts("s1")
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(s1) != 2 || s1[0].ID != "a1" || s1[1].ID != "a2" {
		t.Errorf("ListAttempts(s1) = %+v", s1)
	}
	all, _ := db.ListAttempts("")
	if len(all) != 3 {
		t.Errorf("ListAttempts(\"\") returned %d, want 3", len(all))
	}

	counts, err := db.AttemptCounts()
	if err != nil {
		t.Fatalf("AttemptCounts: %v", err)
	}
	if c := counts["wait_and_retry"]; c.Total != 2 || c.Succeeded != 2 {
		t.Errorf("wait_and_retry counts = %+v", c)
	}
	if c := counts["truncate_context"]; c.Total != 1 || c.Failed != 1 {
		t.Errorf("truncate_context counts = %+v", c)
	}

	n, err := db.PurgeAttempts(0)
	if err != nil {
		t.Fatalf("PurgeAttempts: %v", err)
	}
	if n != 3 {
		t.Errorf("PurgeAttempts removed %d, want 3", n)
	}
}
