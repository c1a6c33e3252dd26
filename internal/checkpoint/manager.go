package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ShayCichocki/crew/internal/limits"
	"github.com/ShayCichocki/crew/internal/session"
)

const fileExt = ".json"

var (
	// ErrUnsupportedVersion is returned when a checkpoint document has an unknown format version.
	ErrUnsupportedVersion = errors.New("unsupported checkpoint format version")
	// ErrNoSession is returned when Create is given no session.
	ErrNoSession = errors.New("no session to checkpoint")
)

type document struct {
	Metadata      Metadata        `json:"metadata"`
	SessionState  json.RawMessage `json:"session_state"`
	FormatVersion string          `json:"format_version"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Manager stores checkpoints as one JSON document per id.
// It is safe for concurrent use.
type Manager struct {
	dir string
	cfg Config
	now func() time.Time

	mu           sync.Mutex
	lastCreated  time.Time
	lastAuto     time.Time
	messageCount int
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager rooted at dir, creating it if needed.
// Zero config fields take their defaults.
func NewManager(dir string, cfg Config, opts ...Option) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoints dir: %w", err)
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MessageThreshold <= 0 {
		cfg.MessageThreshold = def.MessageThreshold
	}
	if cfg.MaxPerSession <= 0 {
		cfg.MaxPerSession = def.MaxPerSession
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	if cfg.ErrorThreshold <= 0 {
		cfg.ErrorThreshold = def.ErrorThreshold
	}

	m := &Manager{dir: dir, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	m.lastAuto = m.now()
	return m, nil
}

// Config returns the effective policy.
func (m *Manager) Config() Config {
	return m.cfg
}

// RecordMessages advances the message counter used by the message-count trigger.
func (m *Manager) RecordMessages(n int) {
	m.mu.Lock()
	m.messageCount += n
	m.mu.Unlock()
}

// ShouldCheckpoint evaluates a trigger against the current counters and op.
func (m *Manager) ShouldCheckpoint(trigger Trigger, op *Operation) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch trigger {
	case TriggerTimeInterval:
		return m.now().Sub(m.lastAuto) >= m.cfg.Interval
	case TriggerMessageCount:
		return m.messageCount >= m.cfg.MessageThreshold
	case TriggerAgentChange, TriggerWorkflowStage:
		return true
	case TriggerErrorThreshold:
		return op != nil && op.ErrorCount >= m.cfg.ErrorThreshold
	case TriggerToolUsage:
		return op != nil && (IsHighRiskTool(op.Tool) || hasHighRiskKeyword(op.Text))
	default:
		return false
	}
}

// Create snapshots s and returns the new checkpoint id. Automatic
// checkpoints reset the interval and message counters. Older checkpoints
// beyond the per-session cap are pruned afterwards.
func (m *Manager) Create(s *session.State, typ Type, trigger Trigger, description string, op *Operation) (string, error) {
	if s == nil {
		return "", ErrNoSession
	}

	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal session %s: %w", s.ID, err)
	}

	m.mu.Lock()
	created := m.now().UTC()
	if !created.After(m.lastCreated) {
		created = m.lastCreated.Add(time.Nanosecond)
	}
	m.lastCreated = created
	if typ == TypeAuto {
		m.lastAuto = created
		m.messageCount = 0
	}
	m.mu.Unlock()

	meta := Metadata{
		ID:             newID(s.ID, created, description),
		Type:           typ,
		Trigger:        trigger,
		SessionID:      s.ID,
		CreatedAt:      created,
		Description:    description,
		ContextSize:    len(data),
		MessageCount:   len(s.Messages),
		ActiveAgents:   s.ActiveAgents(),
		RiskAssessment: AssessRisk(op),
	}
	if s.Workflow != nil {
		meta.WorkflowStage = s.Workflow.CurrentStage
	}
	if op != nil && len(op.Metadata) > 0 {
		meta.RecoveryMetadata = make(map[string]any, len(op.Metadata))
		for k, v := range op.Metadata {
			meta.RecoveryMetadata[k] = v
		}
	}

	out, err := json.MarshalIndent(document{
		Metadata:      meta,
		SessionState:  data,
		FormatVersion: FormatVersion,
		CreatedAt:     created,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := session.WriteAtomic(m.path(meta.ID), out); err != nil {
		return "", fmt.Errorf("write checkpoint %s: %w", meta.ID, err)
	}

	if _, err := m.prune(s.ID); err != nil {
		log.Printf("[checkpoint] prune %s: %v", s.ID, err)
	}
	return meta.ID, nil
}

// newID builds cp_<session>_<unix nanos>_<hash8>.
func newID(sessionID string, created time.Time, description string) string {
	nanos := strconv.FormatInt(created.UnixNano(), 10)
	sum := sha256.Sum256([]byte(sessionID + "|" + nanos + "|" + description))
	return "cp_" + sessionID + "_" + nanos + "_" + hex.EncodeToString(sum[:])[:8]
}

// Restore loads the session state stored in a checkpoint. Returns
// (nil, nil) if the checkpoint does not exist.
func (m *Manager) Restore(id string) (*session.State, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(m.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %s: %w", id, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", id, err)
	}
	if !supportedVersions[doc.FormatVersion] {
		return nil, fmt.Errorf("checkpoint %s version %q: %w", id, doc.FormatVersion, ErrUnsupportedVersion)
	}
	s, err := session.Parse(doc.SessionState)
	if err != nil {
		return nil, fmt.Errorf("decode checkpoint %s session: %w", id, err)
	}
	return s, nil
}

// Get returns the metadata of one checkpoint, or (nil, nil) if missing.
func (m *Manager) Get(id string) (*Metadata, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(m.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %s: %w", id, err)
	}
	meta, err := readMetadata(data)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", id, err)
	}
	return meta, nil
}

// List returns checkpoint metadata newest first. An empty sessionID lists
// every session. Unreadable documents are logged and skipped.
func (m *Manager) List(sessionID string) ([]Metadata, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read checkpoints dir: %w", err)
	}

	var out []Metadata
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "cp_") || !strings.HasSuffix(name, fileExt) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.dir, name))
		if err != nil {
			log.Printf("[checkpoint] skipping %s: %v", name, err)
			continue
		}
		meta, err := readMetadata(data)
		if err != nil {
			log.Printf("[checkpoint] skipping %s: %v", name, err)
			continue
		}
		if sessionID != "" && meta.SessionID != sessionID {
			continue
		}
		out = append(out, *meta)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// readMetadata decodes only the metadata object of a checkpoint document.
func readMetadata(data []byte) (*Metadata, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("invalid json")
	}
	raw := gjson.GetBytes(data, "metadata")
	if !raw.IsObject() {
		return nil, errors.New("missing metadata")
	}
	var meta Metadata
	if err := json.Unmarshal([]byte(raw.Raw), &meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &meta, nil
}

// Delete removes a checkpoint and reports whether it existed.
func (m *Manager) Delete(id string) (bool, error) {
	if err := validateID(id); err != nil {
		return false, err
	}
	err := os.Remove(m.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete checkpoint %s: %w", id, err)
	}
	return true, nil
}

// prune deletes the oldest checkpoints of a session beyond MaxPerSession.
func (m *Manager) prune(sessionID string) (int, error) {
	list, err := m.List(sessionID)
	if err != nil {
		return 0, err
	}
	if len(list) <= m.cfg.MaxPerSession {
		return 0, nil
	}
	removed := 0
	for _, meta := range list[m.cfg.MaxPerSession:] {
		ok, err := m.Delete(meta.ID)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	if removed > 0 {
		log.Printf("[checkpoint] pruned %d checkpoints for session %s", removed, sessionID)
	}
	return removed, nil
}

// CleanupExpired deletes checkpoints older than the retention window.
func (m *Manager) CleanupExpired() (int, error) {
	list, err := m.List("")
	if err != nil {
		return 0, err
	}
	cutoff := m.now().Add(-m.cfg.Retention)
	removed := 0
	for _, meta := range list {
		if !meta.CreatedAt.Before(cutoff) {
			continue
		}
		ok, err := m.Delete(meta.ID)
		if err != nil {
			log.Printf("[checkpoint] cleanup %s: %v", meta.ID, err)
			continue
		}
		if ok {
			removed++
		}
	}
	if removed > 0 {
		log.Printf("[checkpoint] removed %d expired checkpoints", removed)
	}
	return removed, nil
}

// FindRecoveryCheckpoint picks the best checkpoint of a session for ec.
// active is the set of agents active when the error happened. Returns
// (nil, nil) when the session has no suitable checkpoint.
func (m *Manager) FindRecoveryCheckpoint(sessionID string, ec *limits.ErrorContext, active []string) (*Metadata, error) {
	list, err := m.List(sessionID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	if ec == nil {
		return &list[0], nil
	}

	switch ec.RecommendedStrategy {
	case limits.StrategyTruncateContext:
		if ec.MaxContextSize <= 0 {
			return &list[0], nil
		}
		for i := range list {
			if list[i].ContextSize < ec.MaxContextSize {
				return &list[i], nil
			}
		}
		return nil, nil
	case limits.StrategyCheckpointAndRetry:
		for i := range list {
			if list[i].CreatedAt.Before(ec.Timestamp) {
				return &list[i], nil
			}
		}
		return nil, nil
	case limits.StrategyAgentHandoff:
		busy := make(map[string]bool, len(active))
		for _, a := range active {
			busy[a] = true
		}
		for i := range list {
			overlap := false
			for _, a := range list[i].ActiveAgents {
				if busy[a] {
					overlap = true
					break
				}
			}
			if !overlap {
				return &list[i], nil
			}
		}
		return &list[0], nil
	default:
		return &list[0], nil
	}
}

// Stats summarizes every stored checkpoint.
func (m *Manager) Stats() (Stats, error) {
	list, err := m.List("")
	if err != nil {
		return Stats{}, err
	}
	st := Stats{
		Total:     len(list),
		BySession: make(map[string]int),
		ByType:    make(map[Type]int),
	}
	for _, meta := range list {
		st.BySession[meta.SessionID]++
		st.ByType[meta.Type]++
		if info, err := os.Stat(m.path(meta.ID)); err == nil {
			st.TotalBytes += info.Size()
		}
	}
	if len(list) > 0 {
		st.Newest = list[0].CreatedAt
		st.Oldest = list[len(list)-1].CreatedAt
	}
	return st, nil
}

func (m *Manager) path(id string) string {
	return filepath.Join(m.dir, id+fileExt)
}

func validateID(id string) error {
	if !strings.HasPrefix(id, "cp_") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid checkpoint id %q", id)
	}
	return nil
}
