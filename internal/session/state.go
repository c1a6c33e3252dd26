// Package session holds the durable conversation and agent state of an
// orchestration run and persists it to disk.
package session

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/ShayCichocki/crew/internal/limits"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusActive     Status = "active"
	StatusSuspended  Status = "suspended"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRecovering Status = "recovering"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of the conversation history.
type Message struct {
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	AgentID   string            `json:"agent_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AgentContext is the per-agent working state within a session.
type AgentContext struct {
	AgentID     string         `json:"agent_id"`
	CurrentTask string         `json:"current_task"`
	Progress    map[string]any `json:"progress"`
	MemoryState map[string]any `json:"memory_state"`
	MCPState    map[string]any `json:"mcp_state"`
	Artifacts   []string       `json:"artifacts"`
	LastActive  time.Time      `json:"last_active"`
}

// NewAgentContext returns an empty context for agentID.
func NewAgentContext(agentID string) *AgentContext {
	return &AgentContext{
		AgentID:     agentID,
		Progress:    map[string]any{},
		MemoryState: map[string]any{},
		MCPState:    map[string]any{},
		Artifacts:   []string{},
		LastActive:  time.Now().UTC(),
	}
}

// WorkflowState tracks progress through a workflow plan.
type WorkflowState struct {
	CurrentStage    string                         `json:"current_stage"`
	CompletedStages []string                       `json:"completed_stages"`
	StageResults    map[string]any                 `json:"stage_results"`
	StageErrors     map[string]limits.ErrorContext `json:"stage_errors"`
	TotalStages     int                            `json:"total_stages"`
	StartedAt       time.Time                      `json:"started_at"`
}

// NewWorkflowState returns an empty workflow state for a plan of totalStages.
func NewWorkflowState(totalStages int) *WorkflowState {
	return &WorkflowState{
		CompletedStages: []string{},
		StageResults:    map[string]any{},
		StageErrors:     map[string]limits.ErrorContext{},
		TotalStages:     totalStages,
		StartedAt:       time.Now().UTC(),
	}
}

// State is the durable unit of a run. Mutating methods refresh UpdatedAt.
// A State is not safe for concurrent mutation; callers serialize access.
type State struct {
	ID            string                   `json:"session_id"`
	Status        Status                   `json:"status"`
	Messages      []Message                `json:"conversation_history"`
	AgentContexts map[string]*AgentContext `json:"agent_contexts"`
	Workflow      *WorkflowState           `json:"workflow_state,omitempty"`
	MCPState      map[string]any           `json:"mcp_state"`
	Preferences   map[string]any           `json:"user_preferences"`
	Errors        []limits.ErrorContext    `json:"error_history"`
	CreatedAt     time.Time                `json:"created_at"`
	UpdatedAt     time.Time                `json:"updated_at"`
}

// NewState returns an active session with empty containers.
func NewState(id string) *State {
	now := time.Now().UTC()
	return &State{
		ID:            id,
		Status:        StatusActive,
		Messages:      []Message{},
		AgentContexts: map[string]*AgentContext{},
		MCPState:      map[string]any{},
		Preferences:   map[string]any{},
		Errors:        []limits.ErrorContext{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (s *State) touch() {
	s.UpdatedAt = time.Now().UTC()
}

// AddMessage appends a message to the conversation history.
func (s *State) AddMessage(role, content, agentID string) Message {
	m := Message{
		Role:      role,
		Content:   content,
		AgentID:   agentID,
		Timestamp: time.Now().UTC(),
	}
	s.Messages = append(s.Messages, m)
	s.touch()
	return m
}

// AppendMessage appends a fully formed message.
func (s *State) AppendMessage(m Message) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	s.Messages = append(s.Messages, m)
	s.touch()
}

// UpdateAgentContext applies update to the agent's context, creating it
// on first use, and marks the agent active now.
func (s *State) UpdateAgentContext(agentID string, update func(*AgentContext)) *AgentContext {
	if s.AgentContexts == nil {
		s.AgentContexts = map[string]*AgentContext{}
	}
	ac, ok := s.AgentContexts[agentID]
	if !ok {
		ac = NewAgentContext(agentID)
		s.AgentContexts[agentID] = ac
	}
	if update != nil {
		update(ac)
	}
	ac.LastActive = time.Now().UTC()
	s.touch()
	return ac
}

// SetAgentContext replaces an agent's context wholesale.
func (s *State) SetAgentContext(ac *AgentContext) {
	if s.AgentContexts == nil {
		s.AgentContexts = map[string]*AgentContext{}
	}
	s.AgentContexts[ac.AgentID] = ac
	s.touch()
}

// RemoveAgentContext drops an agent's context.
func (s *State) RemoveAgentContext(agentID string) {
	delete(s.AgentContexts, agentID)
	s.touch()
}

// AddError appends to the error history.
func (s *State) AddError(ec limits.ErrorContext) {
	s.Errors = append(s.Errors, ec)
	s.touch()
}

// SetStatus changes the lifecycle status.
func (s *State) SetStatus(st Status) {
	s.Status = st
	s.touch()
}

// SetPreference records a user preference.
func (s *State) SetPreference(key string, value any) {
	if s.Preferences == nil {
		s.Preferences = map[string]any{}
	}
	s.Preferences[key] = value
	s.touch()
}

// ConversationSummary returns the last n messages, or all of them when
// there are fewer. The slice shares no memory with s.
func (s *State) ConversationSummary(n int) []Message {
	if n <= 0 || len(s.Messages) == 0 {
		return []Message{}
	}
	start := max(0, len(s.Messages)-n)
	return append([]Message(nil), s.Messages[start:]...)
}

// ActiveAgents returns the ids of agents with a context, sorted.
func (s *State) ActiveAgents() []string {
	ids := make([]string, 0, len(s.AgentContexts))
	for id := range s.AgentContexts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RecentAgents returns agent ids ordered by LastActive, newest first.
func (s *State) RecentAgents() []string {
	ids := s.ActiveAgents()
	sort.SliceStable(ids, func(i, j int) bool {
		return s.AgentContexts[ids[i]].LastActive.After(s.AgentContexts[ids[j]].LastActive)
	})
	return ids
}

// Clone returns a deep copy made through the record codec.
func (s *State) Clone() (*State, error) {
	data, err := Encode(s)
	if err != nil {
		return nil, err
	}
	r, err := Decode(data)
	if err != nil {
		return nil, err
	}
	c, ok := r.(*State)
	if !ok {
		return nil, fmt.Errorf("clone session: decoded %s", r.Kind())
	}
	return c, nil
}

// Checksum returns the SHA-256 hex digest of the canonical JSON form.
func (s *State) Checksum() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}
	return ChecksumJSON(data)
}

// ChecksumJSON hashes the canonical form of raw JSON.
func ChecksumJSON(data []byte) (string, error) {
	canon, err := Canonicalize(data)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// Canonicalize re-encodes JSON with object keys sorted at every level.
// Numbers keep their original text.
func Canonicalize(data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode canonical json: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Size returns the length of the serialized session in bytes.
func (s *State) Size() int {
	data, err := json.Marshal(s)
	if err != nil {
		return 0
	}
	return len(data)
}
