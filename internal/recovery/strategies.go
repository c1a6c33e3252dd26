package recovery

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/ShayCichocki/crew/internal/checkpoint"
	"github.com/ShayCichocki/crew/internal/limits"
	"github.com/ShayCichocki/crew/internal/session"
)

// Metadata keys on synthetic messages.
const (
	MetaSynthetic = "synthetic"
	MetaKind      = "kind"
	MetaRemoved   = "removed"

	KindTruncationMarker = "truncation_marker"
	KindRestored         = "checkpoint_restored"
	KindEscalation       = "escalation"
	KindHandoff          = "agent_handoff"
	KindDegradation      = "degradation"
)

// PrefDegradation is the preference key holding the degradation settings.
const PrefDegradation = "degradation_mode"

// DefaultAlternatives maps an agent to the agents that can take over its
// work. Agents without an entry hand off to FallbackAgent.
func DefaultAlternatives() map[string][]string {
	return map[string][]string{
		"python-pro":          {"python-dev", "debugger", "code-reviewer"},
		"frontend-developer":  {"react-dev", "typescript-pro", "ui-engineer"},
		"data-analyst":        {"data-scientist", "research-analyst", "data-researcher"},
		"architect-reviewer":  {"code-reviewer", "test-automator", "qa-expert"},
		"deployment-engineer": {"devops-engineer", "fintech-engineer", "tooling-engineer"},
	}
}

func synthetic(kind string) map[string]string {
	return map[string]string{MetaSynthetic: "true", MetaKind: kind}
}

// IsTruncationMarker reports whether m was inserted by context truncation.
func IsTruncationMarker(m session.Message) bool {
	return m.Metadata[MetaKind] == KindTruncationMarker
}

func (h *Handler) waitAndRetry(ctx context.Context, s *session.State, ec *limits.ErrorContext) (*session.State, error) {
	if !h.detector.ShouldRetry(ec) {
		return nil, fmt.Errorf("%w after %d retries", ErrRetriesExhausted, ec.RetryCount)
	}
	delay := jitter(h.detector.BackoffDelay(ec), h.cfg.Jitter)
	log.Printf("[recovery] %s: waiting %s before retry %d", ec.ErrorType, delay, ec.RetryCount+1)
	if err := h.sleep(ctx, delay); err != nil {
		return nil, err
	}
	ec.RetryCount++
	return s, nil
}

func (h *Handler) truncateContext(s *session.State, ec *limits.ErrorContext) (*session.State, string, error) {
	cpID, err := h.checkpoints.Create(s, checkpoint.TypeRecovery, checkpoint.TriggerNone,
		"before context truncation", &checkpoint.Operation{Metadata: map[string]any{"error_type": string(ec.ErrorType)}})
	if err != nil {
		log.Printf("[recovery] checkpoint before truncation failed for %s: %v", s.ID, err)
	}

	var system, rest []session.Message
	for _, m := range s.Messages {
		switch {
		case IsTruncationMarker(m):
		case m.Role == session.RoleSystem:
			system = append(system, m)
		default:
			rest = append(rest, m)
		}
	}

	if len(rest) > h.cfg.KeepMessages {
		removed := len(rest) - h.cfg.KeepMessages
		kept := make([]session.Message, 0, len(system)+1+h.cfg.KeepMessages)
		kept = append(kept, system...)
		marker := synthetic(KindTruncationMarker)
		marker[MetaRemoved] = strconv.Itoa(removed)
		kept = append(kept, session.Message{
			Role:      session.RoleSystem,
			Content:   fmt.Sprintf("[%d earlier messages removed to fit the context window]", removed),
			Timestamp: time.Now().UTC(),
			Metadata:  marker,
		})
		kept = append(kept, rest[removed:]...)
		s.Messages = kept
	}

	recent := s.RecentAgents()
	if len(recent) > h.cfg.MaxAgentContexts {
		for _, id := range recent[h.cfg.MaxAgentContexts:] {
			s.RemoveAgentContext(id)
		}
	}

	if err := h.sessions.Save(s); err != nil {
		return nil, cpID, fmt.Errorf("save truncated session: %w", err)
	}
	return s, cpID, nil
}

func (h *Handler) checkpointAndRetry(s *session.State, ec *limits.ErrorContext) (*session.State, string, error) {
	meta, err := h.checkpoints.FindRecoveryCheckpoint(s.ID, ec, s.ActiveAgents())
	if err != nil {
		return nil, "", fmt.Errorf("find checkpoint: %w", err)
	}
	if meta == nil {
		return nil, "", ErrNoCheckpoint
	}
	restored, err := h.checkpoints.Restore(meta.ID)
	if err != nil {
		return nil, meta.ID, fmt.Errorf("restore checkpoint: %w", err)
	}
	if restored == nil {
		return nil, meta.ID, ErrNoCheckpoint
	}

	restored.AddError(*ec.Clone())
	restored.AppendMessage(session.Message{
		Role:     session.RoleSystem,
		Content:  fmt.Sprintf("Session restored from checkpoint %s after %s: %s", meta.ID, ec.ErrorType, ec.Message),
		Metadata: synthetic(KindRestored),
	})
	if err := h.sessions.Save(restored); err != nil {
		return nil, meta.ID, fmt.Errorf("save restored session: %w", err)
	}
	return restored, meta.ID, nil
}

func (h *Handler) escalate(s *session.State, ec *limits.ErrorContext) error {
	s.AppendMessage(session.Message{
		Role: session.RoleSystem,
		Content: fmt.Sprintf("Recovery needs operator action. %s (%s severity): %s. Recommended action: %s",
			ec.ErrorType, ec.Severity, ec.Message, humanAction(ec.ErrorType)),
		Metadata: synthetic(KindEscalation),
	})
	s.SetStatus(session.StatusSuspended)
	if err := h.sessions.Save(s); err != nil {
		log.Printf("[recovery] save escalated session %s: %v", s.ID, err)
	}
	return ErrEscalated
}

func humanAction(t limits.ErrorType) string {
	switch t {
	case limits.ErrorAPIQuota:
		return "add credits or raise the API quota, then resume the session"
	case limits.ErrorAuthentication:
		return "check the API key and its permissions, then resume the session"
	default:
		return "inspect the error and resume the session manually"
	}
}

func (h *Handler) agentHandoff(s *session.State, ec *limits.ErrorContext) (*session.State, string, error) {
	failing := ec.AgentID
	target := h.pickAlternative(s, failing)
	if target == "" {
		return nil, "", fmt.Errorf("%w for %q", ErrNoAlternativeAgent, failing)
	}

	cpID, err := h.checkpoints.Create(s, checkpoint.TypeAgentHandoff, checkpoint.TriggerAgentChange,
		fmt.Sprintf("handoff %s -> %s", failing, target), &checkpoint.Operation{
			Metadata: map[string]any{"from_agent": failing, "to_agent": target},
		})
	if err != nil {
		log.Printf("[recovery] checkpoint before handoff failed for %s: %v", s.ID, err)
	}

	next := session.NewAgentContext(target)
	if prev, ok := s.AgentContexts[failing]; ok {
		next.CurrentTask = prev.CurrentTask
		for k, v := range prev.Progress {
			next.Progress[k] = v
		}
		for k, v := range prev.MemoryState {
			next.MemoryState[k] = v
		}
		s.RemoveAgentContext(failing)
	}
	s.SetAgentContext(next)
	s.AppendMessage(session.Message{
		Role:     session.RoleSystem,
		Content:  fmt.Sprintf("Work handed off from %s to %s after %s", failing, target, ec.ErrorType),
		AgentID:  target,
		Metadata: synthetic(KindHandoff),
	})

	if err := h.sessions.Save(s); err != nil {
		return nil, cpID, fmt.Errorf("save session after handoff: %w", err)
	}
	return s, cpID, nil
}

// pickAlternative returns the first free alternative for failing, then
// the fallback agent, or "" when neither is free.
func (h *Handler) pickAlternative(s *session.State, failing string) string {
	busy := func(id string) bool {
		_, active := s.AgentContexts[id]
		return active || id == failing
	}
	for _, alt := range h.alternatives[failing] {
		if !busy(alt) {
			return alt
		}
	}
	if !busy(FallbackAgent) {
		return FallbackAgent
	}
	return ""
}

func (h *Handler) gracefulDegradation(s *session.State, ec *limits.ErrorContext) (*session.State, error) {
	s.SetPreference(PrefDegradation, map[string]any{
		"disable_mcp":       true,
		"disable_parallel":  true,
		"reduce_agents":     true,
		"simplify_workflow": true,
		"reason":            string(ec.ErrorType),
	})
	s.AppendMessage(session.Message{
		Role:     session.RoleSystem,
		Content:  fmt.Sprintf("Running in degraded mode after %s: MCP integration and parallel execution disabled", ec.ErrorType),
		Metadata: synthetic(KindDegradation),
	})
	if err := h.sessions.Save(s); err != nil {
		log.Printf("[recovery] save degraded session %s: %v", s.ID, err)
	}
	return s, nil
}
