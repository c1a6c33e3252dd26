// Package recovery applies one of six recovery strategies to a session
// after the limit detector has classified an error.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/crew/internal/checkpoint"
	"github.com/ShayCichocki/crew/internal/limits"
	"github.com/ShayCichocki/crew/internal/session"
	"github.com/ShayCichocki/crew/internal/state"
	"github.com/ShayCichocki/crew/internal/telemetry"
)

var (
	// ErrRetriesExhausted is returned when an error has no retry budget left.
	ErrRetriesExhausted = errors.New("retry budget exhausted")
	// ErrEscalated is returned when recovery needs an operator. The session is suspended.
	ErrEscalated = errors.New("escalated to human")
	// ErrNoAlternativeAgent is returned when a handoff finds no free agent.
	ErrNoAlternativeAgent = errors.New("no alternative agent available")
	// ErrNoCheckpoint is returned when no checkpoint suits the error.
	ErrNoCheckpoint = errors.New("no suitable checkpoint")
	// ErrUnknownStrategy is returned for strategies outside the closed set.
	ErrUnknownStrategy = errors.New("unknown recovery strategy")
)

// FallbackAgent takes over when the alternatives table has nothing free.
const FallbackAgent = "debugger"

// Config holds recovery tuning.
type Config struct {
	// KeepMessages is how many non-system messages survive truncation.
	KeepMessages int
	// MaxAgentContexts caps agent contexts after truncation.
	MaxAgentContexts int
	// Jitter is the fractional spread applied to backoff delays.
	Jitter float64
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{KeepMessages: 10, MaxAgentContexts: 3, Jitter: 0.2}
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Handler runs recovery strategies. It is safe for concurrent use across
// different sessions.
type Handler struct {
	detector     *limits.Detector
	sessions     *session.Manager
	checkpoints  *checkpoint.Manager
	store        state.AttemptStore
	cfg          Config
	sleep        Sleeper
	alternatives map[string][]string

	mu       sync.Mutex
	custom   map[limits.Strategy]Func
	counts   map[limits.Strategy]state.StrategyCounts
	attempts []state.RecoveryAttempt
}

// Func is a recovery routine for one strategy. It returns the session to
// continue with, which may be s itself.
type Func func(ctx context.Context, s *session.State, ec *limits.ErrorContext) (*session.State, error)

// Option configures a Handler.
type Option func(*Handler)

// WithAttemptStore persists every attempt.
func WithAttemptStore(store state.AttemptStore) Option {
	return func(h *Handler) { h.store = store }
}

// WithConfig overrides the tuning. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(h *Handler) {
		if cfg.KeepMessages > 0 {
			h.cfg.KeepMessages = cfg.KeepMessages
		}
		if cfg.MaxAgentContexts > 0 {
			h.cfg.MaxAgentContexts = cfg.MaxAgentContexts
		}
		if cfg.Jitter > 0 {
			h.cfg.Jitter = cfg.Jitter
		}
	}
}

// WithSleeper replaces the backoff wait.
func WithSleeper(s Sleeper) Option {
	return func(h *Handler) { h.sleep = s }
}

// WithAlternatives replaces the agent handoff table.
func WithAlternatives(alts map[string][]string) Option {
	return func(h *Handler) { h.alternatives = alts }
}

// WithCustomRecovery runs fn instead of the built-in routine for strategy.
func WithCustomRecovery(strategy limits.Strategy, fn Func) Option {
	return func(h *Handler) {
		if err := h.RegisterCustomRecovery(strategy, fn); err != nil {
			log.Printf("[recovery] %v", err)
		}
	}
}

// New creates a Handler.
func New(detector *limits.Detector, sessions *session.Manager, checkpoints *checkpoint.Manager, opts ...Option) *Handler {
	h := &Handler{
		detector:     detector,
		sessions:     sessions,
		checkpoints:  checkpoints,
		cfg:          DefaultConfig(),
		sleep:        sleepContext,
		alternatives: DefaultAlternatives(),
		counts:       make(map[limits.Strategy]state.StrategyCounts),
		custom:       make(map[limits.Strategy]Func),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Recover applies ec's recommended strategy to s. On success the returned
// session is active and may differ from s. On failure the session is
// marked failed, or suspended for escalation and cancellation, and no
// session is returned.
func (h *Handler) Recover(ctx context.Context, s *session.State, ec *limits.ErrorContext) (*session.State, error) {
	if s == nil {
		return nil, session.ErrNoSession
	}
	if ec == nil {
		return nil, errors.New("recover: nil error context")
	}

	strategy := ec.RecommendedStrategy
	attempt := state.RecoveryAttempt{
		ID:        uuid.New().String(),
		SessionID: s.ID,
		ErrorType: string(ec.ErrorType),
		Strategy:  string(strategy),
		Status:    state.AttemptInProgress,
		StartedAt: time.Now().UTC(),
	}
	h.persist(attempt)

	s.AddError(*ec.Clone())
	s.SetStatus(session.StatusRecovering)

	var (
		out  *session.State
		cpID string
		err  error
	)
	switch custom := h.customFor(strategy); {
	case custom != nil:
		out, err = custom(ctx, s, ec)
		if err == nil && out == nil {
			err = fmt.Errorf("custom %s recovery returned no session", strategy)
		}
	case strategy == limits.StrategyWaitAndRetry:
		out, err = h.waitAndRetry(ctx, s, ec)
	case strategy == limits.StrategyTruncateContext:
		out, cpID, err = h.truncateContext(s, ec)
	case strategy == limits.StrategyCheckpointAndRetry:
		out, cpID, err = h.checkpointAndRetry(s, ec)
	case strategy == limits.StrategyEscalateToHuman:
		err = h.escalate(s, ec)
	case strategy == limits.StrategyAgentHandoff:
		out, cpID, err = h.agentHandoff(s, ec)
	case strategy == limits.StrategyGracefulDegradation:
		out, err = h.gracefulDegradation(s, ec)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}

	completed := time.Now().UTC()
	attempt.CompletedAt = &completed
	attempt.CheckpointID = cpID

	if err != nil {
		attempt.Status = state.AttemptFailed
		attempt.Message = err.Error()
		switch {
		case errors.Is(err, ErrEscalated), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			s.SetStatus(session.StatusSuspended)
		default:
			s.SetStatus(session.StatusFailed)
		}
		if saveErr := h.sessions.Save(s); saveErr != nil {
			log.Printf("[recovery] save session %s after failed %s: %v", s.ID, strategy, saveErr)
		}
		out = nil
	} else {
		attempt.Status = state.AttemptSucceeded
		out.SetStatus(session.StatusActive)
	}
	ec.RecordAttempt(strategy, err == nil, attempt.Message)

	h.persist(attempt)
	h.count(strategy, err == nil)
	telemetry.RecordRecovery(ctx, string(strategy), string(attempt.Status), completed.Sub(attempt.StartedAt))

	if err != nil {
		return nil, fmt.Errorf("%s for %s: %w", strategy, ec.ErrorType, err)
	}
	return out, nil
}

// RegisterCustomRecovery replaces the built-in routine for strategy.
// A nil fn restores the built-in one.
func (h *Handler) RegisterCustomRecovery(strategy limits.Strategy, fn Func) error {
	if !strategy.Valid() {
		return fmt.Errorf("register custom recovery: %w: %q", ErrUnknownStrategy, strategy)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if fn == nil {
		delete(h.custom, strategy)
		return nil
	}
	h.custom[strategy] = fn
	log.Printf("[recovery] registered custom recovery for %s", strategy)
	return nil
}

func (h *Handler) customFor(strategy limits.Strategy) Func {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.custom[strategy]
}

func (h *Handler) persist(a state.RecoveryAttempt) {
	h.mu.Lock()
	replaced := false
	for i := range h.attempts {
		if h.attempts[i].ID == a.ID {
			h.attempts[i] = a
			replaced = true
			break
		}
	}
	if !replaced {
		h.attempts = append(h.attempts, a)
	}
	h.mu.Unlock()

	if h.store == nil {
		return
	}
	if err := h.store.RecordAttempt(a); err != nil {
		log.Printf("[recovery] persist attempt %s: %v", a.ID, err)
	}
}

func (h *Handler) count(s limits.Strategy, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := h.counts[s]
	c.Total++
	if ok {
		c.Succeeded++
	} else {
		c.Failed++
	}
	h.counts[s] = c
}

// Counts returns per-strategy attempt totals since the handler was created.
func (h *Handler) Counts() map[limits.Strategy]state.StrategyCounts {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[limits.Strategy]state.StrategyCounts, len(h.counts))
	for k, v := range h.counts {
		out[k] = v
	}
	return out
}

// Attempts returns the in-memory attempt log, oldest first.
func (h *Handler) Attempts() []state.RecoveryAttempt {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]state.RecoveryAttempt(nil), h.attempts...)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// jitter spreads d uniformly within ±fraction.
func jitter(d time.Duration, fraction float64) time.Duration {
	if d <= 0 || fraction <= 0 {
		return d
	}
	return time.Duration(float64(d) * (1 + fraction*(2*rand.Float64()-1)))
}
