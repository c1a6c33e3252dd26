package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ShayCichocki/crew/internal/limits"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// FormatVersion is written into every session file.
const FormatVersion = "1.0"

const fileExt = ".json"

// ErrNoSession is returned when an operation needs a current session and there is none.
var ErrNoSession = errors.New("no current session")

// ErrInvalidID is returned for ids that cannot name a file.
var ErrInvalidID = errors.New("invalid session id")

// Summary describes a stored session without decoding it fully.
type Summary struct {
	ID           string    `json:"session_id"`
	Status       Status    `json:"status"`
	MessageCount int       `json:"message_count"`
	AgentCount   int       `json:"agent_count"`
	ErrorCount   int       `json:"error_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	SavedAt      time.Time `json:"saved_at"`
	Checksum     string    `json:"checksum"`
}

type fileFormat struct {
	FormatVersion string          `json:"format_version"`
	SavedAt       time.Time       `json:"saved_at"`
	Checksum      string          `json:"checksum"`
	SessionData   json.RawMessage `json:"session_data"`
}

// Manager stores sessions as one JSON file per id and tracks the current one.
type Manager struct {
	dir string

	mu      sync.Mutex
	current *State
}

// NewManager creates a manager rooted at dir, creating it if needed.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	return &Manager{dir: dir}, nil
}

// Dir returns the storage directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Current returns the current session, or nil.
func (m *Manager) Current() *State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// SetCurrent makes s the current session.
func (m *Manager) SetCurrent(s *State) {
	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
}

// Create starts a new session, saves it and makes it current.
// An empty id gets a generated one.
func (m *Manager) Create(id string) (*State, error) {
	if id == "" {
		id = uuid.New().String()
	}
	if err := validateID(id); err != nil {
		return nil, err
	}
	s := NewState(id)
	if err := m.Save(s); err != nil {
		return nil, err
	}
	m.SetCurrent(s)
	return s, nil
}

// Save writes s to disk. A nil s saves the current session.
func (m *Manager) Save(s *State) error {
	if s == nil {
		s = m.Current()
		if s == nil {
			return ErrNoSession
		}
	}
	if err := validateID(s.ID); err != nil {
		return err
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", s.ID, err)
	}
	sum, err := ChecksumJSON(data)
	if err != nil {
		return fmt.Errorf("checksum session %s: %w", s.ID, err)
	}
	out, err := json.MarshalIndent(fileFormat{
		FormatVersion: FormatVersion,
		SavedAt:       time.Now().UTC(),
		Checksum:      sum,
		SessionData:   data,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session file %s: %w", s.ID, err)
	}
	if err := WriteAtomic(m.path(s.ID), out); err != nil {
		return fmt.Errorf("write session %s: %w", s.ID, err)
	}
	return nil
}

// Load reads a session and makes it current. Returns (nil, nil) if the
// session does not exist. A checksum mismatch is logged and the data is
// still returned.
func (m *Manager) Load(id string) (*State, error) {
	s, err := m.read(id)
	if err != nil || s == nil {
		return nil, err
	}
	m.SetCurrent(s)
	return s, nil
}

func (m *Manager) read(id string) (*State, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(m.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", id, err)
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	if len(f.SessionData) == 0 {
		return nil, fmt.Errorf("decode session %s: missing session_data", id)
	}
	if sum, err := ChecksumJSON(f.SessionData); err != nil || sum != f.Checksum {
		log.Printf("[session] checksum mismatch for %s; loading anyway", id)
	}

	s, err := Parse(f.SessionData)
	if err != nil {
		return nil, fmt.Errorf("decode session %s data: %w", id, err)
	}
	return s, nil
}

// Parse decodes a serialized State, filling in missing containers.
func Parse(data []byte) (*State, error) {
	s := &State{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}
	fillDefaults(s)
	return s, nil
}

// List returns summaries of all stored sessions, most recently updated first.
// Unreadable files are logged and skipped.
func (m *Manager) List() ([]Summary, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read sessions dir: %w", err)
	}

	var out []Summary
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.dir, e.Name()))
		if err != nil {
			log.Printf("[session] skipping %s: %v", e.Name(), err)
			continue
		}
		if !gjson.ValidBytes(data) {
			log.Printf("[session] skipping %s: invalid json", e.Name())
			continue
		}
		out = append(out, summarize(data))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func summarize(data []byte) Summary {
	r := gjson.ParseBytes(data)
	sd := r.Get("session_data")
	return Summary{
		ID:           sd.Get("session_id").String(),
		Status:       Status(sd.Get("status").String()),
		MessageCount: int(sd.Get("conversation_history.#").Int()),
		AgentCount:   len(sd.Get("agent_contexts").Map()),
		ErrorCount:   int(sd.Get("error_history.#").Int()),
		CreatedAt:    sd.Get("created_at").Time(),
		UpdatedAt:    sd.Get("updated_at").Time(),
		SavedAt:      r.Get("saved_at").Time(),
		Checksum:     r.Get("checksum").String(),
	}
}

// Delete removes a stored session. It reports whether a file was removed.
// Deleting the current session clears it.
func (m *Manager) Delete(id string) (bool, error) {
	if err := validateID(id); err != nil {
		return false, err
	}
	err := os.Remove(m.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete session %s: %w", id, err)
	}
	m.mu.Lock()
	if m.current != nil && m.current.ID == id {
		m.current = nil
	}
	m.mu.Unlock()
	return true, nil
}

// Suspend marks a session suspended and saves it. An empty id means the
// current session.
func (m *Manager) Suspend(id string) (*State, error) {
	s, err := m.resolve(id)
	if err != nil {
		return nil, err
	}
	s.SetStatus(StatusSuspended)
	if err := m.Save(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Resume loads a session, marks it active, saves it and makes it current.
// Returns (nil, nil) if the session does not exist.
func (m *Manager) Resume(id string) (*State, error) {
	s, err := m.Load(id)
	if err != nil || s == nil {
		return nil, err
	}
	s.SetStatus(StatusActive)
	if err := m.Save(s); err != nil {
		return nil, err
	}
	return s, nil
}

func (m *Manager) resolve(id string) (*State, error) {
	if id == "" {
		if s := m.Current(); s != nil {
			return s, nil
		}
		return nil, ErrNoSession
	}
	if s := m.Current(); s != nil && s.ID == id {
		return s, nil
	}
	s, err := m.read(id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("session %s: %w", id, os.ErrNotExist)
	}
	return s, nil
}

// ConversationSummary returns the last n messages of session id, or of
// the current session when id is empty.
func (m *Manager) ConversationSummary(id string, n int) ([]Message, error) {
	s, err := m.resolve(id)
	if err != nil {
		return nil, err
	}
	return s.ConversationSummary(n), nil
}

// Statistics summarizes the stored sessions.
type Statistics struct {
	Total         int       `json:"total_sessions"`
	Active        int       `json:"active_sessions"`
	Suspended     int       `json:"suspended_sessions"`
	Completed     int       `json:"completed_sessions"`
	Oldest        time.Time `json:"oldest_session,omitzero"`
	Newest        time.Time `json:"newest_session,omitzero"`
	TotalMessages int       `json:"total_messages"`
	TotalAgents   int       `json:"total_agents"`
	StorageBytes  int64     `json:"total_storage_bytes"`
}

// Statistics counts stored sessions by status and sums their size on disk.
func (m *Manager) Statistics() (Statistics, error) {
	summaries, err := m.List()
	if err != nil {
		return Statistics{}, err
	}
	var st Statistics
	for _, sum := range summaries {
		st.Total++
		switch sum.Status {
		case StatusActive:
			st.Active++
		case StatusSuspended:
			st.Suspended++
		case StatusCompleted:
			st.Completed++
		}
		if st.Oldest.IsZero() || sum.CreatedAt.Before(st.Oldest) {
			st.Oldest = sum.CreatedAt
		}
		if sum.CreatedAt.After(st.Newest) {
			st.Newest = sum.CreatedAt
		}
		st.TotalMessages += sum.MessageCount
		st.TotalAgents += sum.AgentCount
	}

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return Statistics{}, fmt.Errorf("read sessions dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		st.StorageBytes += info.Size()
	}
	return st, nil
}

// CleanupOld deletes sessions not updated within maxAge. The current
// session is never removed. Returns the number deleted.
func (m *Manager) CleanupOld(maxAge time.Duration) (int, error) {
	summaries, err := m.List()
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	current := m.Current()

	removed := 0
	for _, s := range summaries {
		if s.ID == "" || s.UpdatedAt.After(cutoff) {
			continue
		}
		if current != nil && current.ID == s.ID {
			continue
		}
		ok, err := m.Delete(s.ID)
		if err != nil {
			log.Printf("[session] cleanup %s: %v", s.ID, err)
			continue
		}
		if ok {
			removed++
		}
	}
	if removed > 0 {
		log.Printf("[session] removed %d sessions older than %s", removed, maxAge)
	}
	return removed, nil
}

// RunAutosave calls save every interval until ctx is done. Failures are
// logged and the loop continues. It returns nil on cancellation.
func (m *Manager) RunAutosave(ctx context.Context, interval time.Duration, save func() error) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := save(); err != nil && !errors.Is(err, ErrNoSession) {
				log.Printf("[session] autosave failed: %v", err)
			}
		}
	}
}

func (m *Manager) path(id string) string {
	return filepath.Join(m.dir, id+fileExt)
}

func validateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// fillDefaults replaces missing containers in decoded data.
func fillDefaults(s *State) {
	if s.Messages == nil {
		s.Messages = []Message{}
	}
	if s.AgentContexts == nil {
		s.AgentContexts = map[string]*AgentContext{}
	}
	if s.MCPState == nil {
		s.MCPState = map[string]any{}
	}
	if s.Preferences == nil {
		s.Preferences = map[string]any{}
	}
	if s.Errors == nil {
		s.Errors = []limits.ErrorContext{}
	}
	if s.Status == "" {
		s.Status = StatusActive
	}
}

// WriteAtomic writes data to path through a temp file and rename.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
