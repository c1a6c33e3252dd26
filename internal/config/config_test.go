package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Session.AutosaveInterval != 30*time.Second {
		t.Errorf("expected autosave interval 30s, got %v", cfg.Session.AutosaveInterval)
	}

	if cfg.Checkpoint.Interval != 5*time.Minute {
		t.Errorf("expected checkpoint interval 5m, got %v", cfg.Checkpoint.Interval)
	}

	if cfg.Checkpoint.MessageThreshold != 20 {
		t.Errorf("expected message threshold 20, got %d", cfg.Checkpoint.MessageThreshold)
	}

	if cfg.Checkpoint.MaxPerSession != 50 {
		t.Errorf("expected max per session 50, got %d", cfg.Checkpoint.MaxPerSession)
	}

	if cfg.Checkpoint.Retention != 7*24*time.Hour {
		t.Errorf("expected checkpoint retention 7d, got %v", cfg.Checkpoint.Retention)
	}

	if cfg.Recovery.KeepMessages != 10 || cfg.Recovery.MaxAgentContexts != 3 {
		t.Errorf("unexpected recovery defaults: %+v", cfg.Recovery)
	}

	if cfg.Selection.DefaultStrategy != "specialized_team" {
		t.Errorf("expected default strategy specialized_team, got %q", cfg.Selection.DefaultStrategy)
	}
}

func TestLoadFromPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
storage:
  data_dir: ` + tmpDir + `
session:
  autosave_interval: 10s
checkpoint:
  interval: 2m
  message_threshold: 5
  max_per_session: 8
recovery:
  keep_messages: 6
  jitter: 0.1
selection:
  default_strategy: minimal_team
catalog:
  path: ` + filepath.Join(tmpDir, "agents.yaml") + `
  watch: true
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Session.AutosaveInterval != 10*time.Second {
		t.Errorf("expected autosave 10s, got %v", cfg.Session.AutosaveInterval)
	}

	if cfg.Checkpoint.Interval != 2*time.Minute {
		t.Errorf("expected checkpoint interval 2m, got %v", cfg.Checkpoint.Interval)
	}

	if cfg.Checkpoint.MessageThreshold != 5 || cfg.Checkpoint.MaxPerSession != 8 {
		t.Errorf("unexpected checkpoint config: %+v", cfg.Checkpoint)
	}

	// Keys absent from the file keep their defaults.
	if cfg.Checkpoint.ErrorThreshold != 3 {
		t.Errorf("expected error threshold default 3, got %d", cfg.Checkpoint.ErrorThreshold)
	}

	if cfg.Recovery.KeepMessages != 6 || cfg.Recovery.MaxAgentContexts != 3 || cfg.Recovery.Jitter != 0.1 {
		t.Errorf("unexpected recovery config: %+v", cfg.Recovery)
	}

	if cfg.Selection.DefaultStrategy != "minimal_team" {
		t.Errorf("expected minimal_team, got %q", cfg.Selection.DefaultStrategy)
	}

	if !cfg.Catalog.Watch {
		t.Error("expected catalog.watch to be true")
	}

	if cfg.Storage.SessionsDir != filepath.Join(tmpDir, "sessions") {
		t.Errorf("sessions dir = %q", cfg.Storage.SessionsDir)
	}

	if cfg.Storage.DBPath != filepath.Join(tmpDir, "crew.db") {
		t.Errorf("db path = %q", cfg.Storage.DBPath)
	}
}

func TestLoadFromPath_EnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("checkpoint:\n  interval: 2m\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("CREW_CHECKPOINT_INTERVAL", "45s")
	t.Setenv("CREW_RECOVERY_KEEP_MESSAGES", "4")

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Checkpoint.Interval != 45*time.Second {
		t.Errorf("expected env interval 45s, got %v", cfg.Checkpoint.Interval)
	}

	if cfg.Recovery.KeepMessages != 4 {
		t.Errorf("expected env keep_messages 4, got %d", cfg.Recovery.KeepMessages)
	}
}

func TestLoadFromPath_Missing(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestResolve(t *testing.T) {
	t.Setenv("CREW_TEST_ROOT", "/srv/crew")

	cfg := Default()
	cfg.Storage.DataDir = "${CREW_TEST_ROOT}"
	cfg.Storage.CheckpointsDir = "/mnt/cp"
	cfg.Resolve()

	if cfg.Storage.DataDir != "/srv/crew" {
		t.Errorf("data dir = %q", cfg.Storage.DataDir)
	}
	if cfg.Storage.SessionsDir != "/srv/crew/sessions" {
		t.Errorf("sessions dir = %q", cfg.Storage.SessionsDir)
	}
	if cfg.Storage.CheckpointsDir != "/mnt/cp" {
		t.Errorf("explicit checkpoints dir overwritten: %q", cfg.Storage.CheckpointsDir)
	}
}

func TestGetUserConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	dir := getUserConfigDir()
	expected := "/custom/config/crew"
	if dir != expected {
		t.Errorf("expected %q, got %q", expected, dir)
	}
}

func TestGetDataDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")

	if dir := getDataDir(); dir != "/custom/data/crew" {
		t.Errorf("expected /custom/data/crew, got %q", dir)
	}
}

func TestFindProjectConfig(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	projectPath := filepath.Join(root, ".crew.yaml")
	if err := os.WriteFile(projectPath, []byte("recovery:\n  keep_messages: 7\n"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Chdir(nested)

	got, err := filepath.EvalSymlinks(GetProjectConfigPath())
	if err != nil {
		t.Fatalf("project config not found: %v", err)
	}
	want, _ := filepath.EvalSymlinks(projectPath)
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Recovery.KeepMessages != 7 {
		t.Errorf("project override not applied: keep_messages = %d", cfg.Recovery.KeepMessages)
	}
}
