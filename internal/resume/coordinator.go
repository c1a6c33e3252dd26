// Package resume ties session persistence, checkpointing and error
// recovery into one lifecycle around a running session.
package resume

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/crew/internal/checkpoint"
	"github.com/ShayCichocki/crew/internal/limits"
	"github.com/ShayCichocki/crew/internal/logging"
	"github.com/ShayCichocki/crew/internal/recovery"
	"github.com/ShayCichocki/crew/internal/session"
	"github.com/ShayCichocki/crew/internal/telemetry"
)

var (
	// ErrUnrecognizedError is returned when no taxonomy pattern matches an error.
	ErrUnrecognizedError = errors.New("unrecognized error")
	// ErrNotStarted is returned when the coordinator has no running session.
	ErrNotStarted = errors.New("coordinator not started")
	// ErrAlreadyStarted is returned by Start while a session is running.
	ErrAlreadyStarted = errors.New("coordinator already started")
)

// Config holds the background loop intervals.
type Config struct {
	// AutosaveInterval is how often the running session is saved.
	AutosaveInterval time.Duration
	// CheckpointPoll is how often the time-interval trigger is evaluated.
	CheckpointPoll time.Duration
	// SessionRetention is the age after which idle sessions are deleted.
	SessionRetention time.Duration
	// SweepInterval is how often retention is enforced.
	SweepInterval time.Duration
}

// DefaultConfig returns the standard intervals.
func DefaultConfig() Config {
	return Config{
		AutosaveInterval: 30 * time.Second,
		CheckpointPoll:   30 * time.Second,
		SessionRetention: 720 * time.Hour,
		SweepInterval:    time.Hour,
	}
}

// Operation is one unit of work reported by the host running the plan.
// All fields are optional.
type Operation struct {
	// Messages are appended to the conversation history.
	Messages []session.Message
	// AgentID is the agent doing the work; a new agent fires the agent-change trigger.
	AgentID string
	// Task is recorded as the agent's current task.
	Task string
	// Stage is the workflow stage the work belongs to; entering a new
	// stage fires the workflow-stage trigger.
	Stage string
	// Tool, Text and FilePath describe the operation for risk assessment.
	Tool     string
	Text     string
	FilePath string
}

// Status is a snapshot of the coordinator.
type Status struct {
	Running       bool                 `json:"running"`
	SessionID     string               `json:"session_id,omitempty"`
	SessionStatus session.Status       `json:"session_status,omitempty"`
	Messages      int                  `json:"messages"`
	ActiveAgents  []string             `json:"active_agents"`
	ErrorsHandled int                  `json:"errors_handled"`
	Recovered     int                  `json:"recovered"`
	Failed        int                  `json:"failed"`
	Unrecognized  int                  `json:"unrecognized"`
	Checkpoints   int                  `json:"checkpoints"`
	LastError     *limits.ErrorContext `json:"last_error,omitempty"`
}

// Coordinator owns the running session. All session mutation goes
// through it, so the background loops and callers never race.
type Coordinator struct {
	sessions    *session.Manager
	checkpoints *checkpoint.Manager
	detector    *limits.Detector
	recovery    *recovery.Handler
	cfg         Config
	logger      *logging.DebugLogger

	mu      sync.Mutex
	current *session.State
	cancel  context.CancelFunc
	group   *errgroup.Group
	stats   Status
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithConfig overrides the loop intervals. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(c *Coordinator) {
		if cfg.AutosaveInterval > 0 {
			c.cfg.AutosaveInterval = cfg.AutosaveInterval
		}
		if cfg.CheckpointPoll > 0 {
			c.cfg.CheckpointPoll = cfg.CheckpointPoll
		}
		if cfg.SessionRetention > 0 {
			c.cfg.SessionRetention = cfg.SessionRetention
		}
		if cfg.SweepInterval > 0 {
			c.cfg.SweepInterval = cfg.SweepInterval
		}
	}
}

// WithLogger sets the debug logger.
func WithLogger(l *logging.DebugLogger) Option {
	return func(c *Coordinator) { c.logger = l.With("resume") }
}

// New creates a Coordinator over the given services.
func New(sessions *session.Manager, checkpoints *checkpoint.Manager, detector *limits.Detector, handler *recovery.Handler, opts ...Option) *Coordinator {
	c := &Coordinator{
		sessions:    sessions,
		checkpoints: checkpoints,
		detector:    detector,
		recovery:    handler,
		cfg:         DefaultConfig(),
		logger:      logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start loads sessionID, or creates it when missing, marks it active and
// launches the background loops. An empty id creates a new session.
// The loops stop when ctx is done or Stop is called.
func (c *Coordinator) Start(ctx context.Context, sessionID string) (*session.State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.group != nil {
		return nil, ErrAlreadyStarted
	}

	var s *session.State
	if sessionID != "" {
		loaded, err := c.sessions.Load(sessionID)
		if err != nil {
			return nil, fmt.Errorf("load session: %w", err)
		}
		s = loaded
	}
	if s == nil {
		created, err := c.sessions.Create(sessionID)
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		s = created
		c.logger.Log("created session %s", s.ID)
	} else if s.Status != session.StatusActive {
		c.logger.Log("resuming session %s from %s", s.ID, s.Status)
		s.SetStatus(session.StatusActive)
		if err := c.sessions.Save(s); err != nil {
			return nil, fmt.Errorf("save resumed session: %w", err)
		}
	}
	c.sessions.SetCurrent(s)
	c.current = s
	c.stats = Status{}

	loopCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(loopCtx)
	g.Go(func() error {
		return c.sessions.RunAutosave(gctx, c.cfg.AutosaveInterval, c.saveCurrent)
	})
	g.Go(func() error {
		return c.runIntervalCheckpoints(gctx)
	})
	g.Go(func() error {
		return c.runRetention(gctx)
	})
	c.cancel = cancel
	c.group = g

	telemetry.SessionStarted()
	c.logger.Log("started session %s", s.ID)
	return s, nil
}

// Stop halts the background loops, waits for them and saves the session.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	if c.group == nil {
		c.mu.Unlock()
		return ErrNotStarted
	}
	cancel, g := c.cancel, c.group
	c.mu.Unlock()

	cancel()
	loopErr := g.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.group = nil
	c.cancel = nil
	telemetry.SessionStopped()

	if c.current == nil {
		return loopErr
	}
	id := c.current.ID
	if err := c.sessions.Save(c.current); err != nil {
		return fmt.Errorf("save session on stop: %w", err)
	}
	c.logger.Log("stopped session %s", id)
	return loopErr
}

// Current returns the running session, or nil.
func (c *Coordinator) Current() *session.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// HandleOperation records op against the running session and takes an
// automatic checkpoint when a trigger fires. It returns the checkpoint id,
// or "" when none was taken.
func (c *Coordinator) HandleOperation(ctx context.Context, op Operation) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.current
	if s == nil || c.group == nil {
		return "", ErrNotStarted
	}

	for _, m := range op.Messages {
		s.AppendMessage(m)
	}
	c.checkpoints.RecordMessages(len(op.Messages))

	newAgent := false
	if op.AgentID != "" {
		_, known := s.AgentContexts[op.AgentID]
		newAgent = !known
		s.UpdateAgentContext(op.AgentID, func(ac *session.AgentContext) {
			if op.Task != "" {
				ac.CurrentTask = op.Task
			}
		})
	}

	newStage := false
	if op.Stage != "" {
		if s.Workflow == nil {
			s.Workflow = session.NewWorkflowState(0)
		}
		if s.Workflow.CurrentStage != op.Stage {
			if prev := s.Workflow.CurrentStage; prev != "" {
				s.Workflow.CompletedStages = append(s.Workflow.CompletedStages, prev)
			}
			s.Workflow.CurrentStage = op.Stage
			newStage = true
		}
	}

	cpOp := &checkpoint.Operation{Tool: op.Tool, Text: op.Text, FilePath: op.FilePath}
	var (
		typ     checkpoint.Type
		trigger checkpoint.Trigger
	)
	switch {
	case c.checkpoints.ShouldCheckpoint(checkpoint.TriggerToolUsage, cpOp):
		typ, trigger = checkpoint.TypeAuto, checkpoint.TriggerToolUsage
	case newAgent && c.checkpoints.ShouldCheckpoint(checkpoint.TriggerAgentChange, cpOp):
		typ, trigger = checkpoint.TypeAuto, checkpoint.TriggerAgentChange
	case newStage && c.checkpoints.ShouldCheckpoint(checkpoint.TriggerWorkflowStage, cpOp):
		typ, trigger = checkpoint.TypeWorkflow, checkpoint.TriggerWorkflowStage
	case c.checkpoints.ShouldCheckpoint(checkpoint.TriggerMessageCount, cpOp):
		typ, trigger = checkpoint.TypeAuto, checkpoint.TriggerMessageCount
	default:
		return "", nil
	}

	return c.checkpoint(ctx, s, typ, trigger, describe(trigger, op), cpOp)
}

func describe(trigger checkpoint.Trigger, op Operation) string {
	switch trigger {
	case checkpoint.TriggerToolUsage:
		return fmt.Sprintf("before %s %s", op.Tool, op.FilePath)
	case checkpoint.TriggerAgentChange:
		return "agent " + op.AgentID + " joined"
	case checkpoint.TriggerWorkflowStage:
		return "entering stage " + op.Stage
	default:
		return string(trigger)
	}
}

// checkpoint creates a checkpoint of s. Callers hold c.mu.
func (c *Coordinator) checkpoint(ctx context.Context, s *session.State, typ checkpoint.Type, trigger checkpoint.Trigger, desc string, op *checkpoint.Operation) (string, error) {
	id, err := c.checkpoints.Create(s, typ, trigger, desc, op)
	if err != nil {
		return "", fmt.Errorf("create %s checkpoint: %w", trigger, err)
	}
	c.stats.Checkpoints++
	telemetry.RecordCheckpoint(ctx, string(typ))
	c.logger.Log("checkpoint %s (%s): %s", id, trigger, desc)
	return id, nil
}

// HandleError detects in against the taxonomy and runs recovery on the
// running session. On success the recovered session becomes current.
// Unrecognized errors return ErrUnrecognizedError and leave the session
// untouched.
func (c *Coordinator) HandleError(ctx context.Context, in limits.Input) (*session.State, error) {
	return c.handle(ctx, func() *limits.ErrorContext { return c.detector.Detect(in) }, in)
}

// HandleErr is HandleError for a Go error. in supplies optional context
// such as the agent id; its message is replaced by err's text.
func (c *Coordinator) HandleErr(ctx context.Context, err error, in limits.Input) (*session.State, error) {
	if err == nil {
		return c.Current(), nil
	}
	in.Message = err.Error()
	return c.handle(ctx, func() *limits.ErrorContext { return c.detector.DetectError(err, in) }, in)
}

func (c *Coordinator) handle(ctx context.Context, detect func() *limits.ErrorContext, in limits.Input) (*session.State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.current
	if s == nil || c.group == nil {
		return nil, ErrNotStarted
	}

	ec := detect()
	if ec == nil {
		telemetry.RecordDetection(ctx, "")
		c.stats.Unrecognized++
		c.logger.Log("unrecognized error: %s", in.Message)
		return nil, fmt.Errorf("%w: %s", ErrUnrecognizedError, in.Message)
	}
	telemetry.RecordDetection(ctx, string(ec.ErrorType))
	if ec.WorkflowStage == "" && s.Workflow != nil {
		ec.WorkflowStage = s.Workflow.CurrentStage
	}
	c.stats.ErrorsHandled++
	c.stats.LastError = ec.Clone()
	c.logger.Log("detected %s (confidence %.2f), strategy %s", ec.ErrorType, ec.Confidence, ec.RecommendedStrategy)

	op := &checkpoint.Operation{
		ErrorCount: len(s.Errors) + 1,
		Metadata:   map[string]any{"error_type": string(ec.ErrorType)},
	}
	if c.checkpoints.ShouldCheckpoint(checkpoint.TriggerErrorThreshold, op) {
		if _, err := c.checkpoint(ctx, s, checkpoint.TypeError, checkpoint.TriggerErrorThreshold,
			fmt.Sprintf("error threshold reached at %d errors", op.ErrorCount), op); err != nil {
			log.Printf("[resume] %v", err)
		}
	}

	recovered, err := c.recovery.Recover(ctx, s, ec)
	if err != nil {
		c.stats.Failed++
		c.logger.Log("recovery failed: %v", err)
		return nil, err
	}
	c.stats.Recovered++
	if recovered != s {
		c.current = recovered
		c.sessions.SetCurrent(recovered)
	}
	c.logger.Log("recovered session %s via %s", recovered.ID, ec.RecommendedStrategy)
	return recovered, nil
}

// Status returns a snapshot of the coordinator and its session.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.stats
	st.Running = c.group != nil
	if st.LastError != nil {
		st.LastError = st.LastError.Clone()
	}
	if s := c.current; s != nil {
		st.SessionID = s.ID
		st.SessionStatus = s.Status
		st.Messages = len(s.Messages)
		st.ActiveAgents = s.ActiveAgents()
	}
	return st
}

func (c *Coordinator) saveCurrent() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return session.ErrNoSession
	}
	return c.sessions.Save(c.current)
}

func (c *Coordinator) runIntervalCheckpoints(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.CheckpointPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !c.checkpoints.ShouldCheckpoint(checkpoint.TriggerTimeInterval, nil) {
				continue
			}
			c.mu.Lock()
			if s := c.current; s != nil {
				if _, err := c.checkpoint(ctx, s, checkpoint.TypeAuto, checkpoint.TriggerTimeInterval, "periodic checkpoint", nil); err != nil {
					log.Printf("[resume] %v", err)
				}
			}
			c.mu.Unlock()
		}
	}
}

func (c *Coordinator) runRetention(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n, err := c.checkpoints.CleanupExpired(); err != nil {
				log.Printf("[resume] checkpoint retention: %v", err)
			} else if n > 0 {
				c.logger.Log("expired %d checkpoints", n)
			}
			if n, err := c.sessions.CleanupOld(c.cfg.SessionRetention); err != nil {
				log.Printf("[resume] session retention: %v", err)
			} else if n > 0 {
				c.logger.Log("removed %d old sessions", n)
			}
		}
	}
}
