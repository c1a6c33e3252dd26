package selector

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ShayCichocki/crew/internal/capability"
	"github.com/ShayCichocki/crew/internal/classify"
	"github.com/ShayCichocki/crew/internal/state"
)

const (
	// emaAlpha weights the newest completion time in the moving average.
	emaAlpha = 0.3

	minimalThreshold   = 0.4
	redundantThreshold = 0.5
	fullThreshold      = 0.3
	maxFullPrimary     = 5
	maxFullSupport     = 5
)

// baseTime is the relative effort of a single agent per complexity level.
var baseTime = map[classify.Complexity]float64{
	classify.ComplexityTrivial:     0.2,
	classify.ComplexitySimple:      0.5,
	classify.ComplexityModerate:    1.0,
	classify.ComplexityComplex:     2.0,
	classify.ComplexityVeryComplex: 3.0,
}

// Selector scores agents and builds teams. It is safe for concurrent use.
type Selector struct {
	classifier *classify.Classifier
	matrix     *capability.Matrix
	store      state.PerformanceStore

	mu   sync.RWMutex
	perf map[string]Performance
}

// Option configures a Selector.
type Option func(*Selector)

// WithPerformanceStore persists performance updates and seeds the tracker
// from previously stored history.
func WithPerformanceStore(store state.PerformanceStore) Option {
	return func(s *Selector) { s.store = store }
}

// New creates a Selector over the given classifier and capability matrix.
func New(classifier *classify.Classifier, matrix *capability.Matrix, opts ...Option) *Selector {
	s := &Selector{
		classifier: classifier,
		matrix:     matrix,
		perf:       make(map[string]Performance),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store != nil {
		records, err := s.store.ListAgentPerformance()
		if err != nil {
			log.Printf("[selector] failed to load agent performance: %v", err)
		}
		for _, r := range records {
			s.perf[r.AgentID] = Performance{
				TotalTasks:           r.TotalTasks,
				SuccessfulTasks:      r.SuccessfulTasks,
				AvgCompletionSeconds: r.AvgCompletionSeconds,
			}
		}
	}
	return s
}

// Select classifies the task text and assembles a team with the given strategy.
func (s *Selector) Select(text string, strategy Strategy, ctx *classify.Context) TeamComposition {
	return s.SelectForFeatures(s.classifier.Classify(text, ctx), strategy)
}

// SelectForFeatures assembles a team for already classified features.
// It never fails; with no usable agents it returns an empty team.
func (s *Selector) SelectForFeatures(f classify.TaskFeatures, strategy Strategy) TeamComposition {
	scores := s.ScoreAgents(f)
	if len(scores) == 0 {
		return emptyTeam("no agents available in the capability catalog")
	}

	agents := make(map[string]capability.AgentCapability, len(scores))
	for _, a := range s.matrix.All() {
		agents[a.ID] = a
	}
	b := &builder{f: f, scores: scores, agents: agents}

	var team TeamComposition
	switch strategy {
	case StrategyBestMatch:
		team = b.bestMatch()
	case StrategyMinimal:
		team = b.minimal()
	case StrategyRedundant:
		team = b.redundant()
	case StrategyFull:
		team = b.full()
	default:
		team = b.specialized()
	}
	if team.TotalAgents > 0 && team.Reasoning == "" {
		team.Reasoning = describe(strategy, f, team)
	}
	return team
}

// ScoreAgents scores every catalog agent against f, highest final score first.
func (s *Selector) ScoreAgents(f classify.TaskFeatures) []AgentScore {
	agents := s.matrix.All()
	scores := make([]AgentScore, 0, len(agents))

	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range agents {
		a := &agents[i]
		score := AgentScore{
			AgentID:    a.ID,
			MatchScore: a.MatchesTask(f),
			Confidence: f.Confidence,
		}
		for _, c := range f.Categories {
			if a.HasPrimary(c) {
				score.Reasons = append(score.Reasons, "primary specialty: "+string(c))
			}
		}

		if p, ok := s.perf[a.ID]; ok && p.TotalTasks > 0 {
			switch rate := p.SuccessRate(); {
			case rate > 0.95:
				score.MatchScore *= 1.1
				score.Reasons = append(score.Reasons, fmt.Sprintf("strong track record (%.0f%%)", rate*100))
			case rate < 0.8:
				score.MatchScore *= 0.9
				score.Penalties = append(score.Penalties, fmt.Sprintf("weak track record (%.0f%%)", rate*100))
			}
		}
		// MatchesTask already weighs complexity fit; overflow is penalized again here.
		if f.Complexity > a.MaxComplexity {
			score.MatchScore *= 0.5
			score.Penalties = append(score.Penalties, fmt.Sprintf("task is %s, agent max is %s", f.Complexity, a.MaxComplexity))
		}
		if score.MatchScore > 1.0 {
			score.MatchScore = 1.0
		}
		score.FinalScore = score.MatchScore * score.Confidence
		scores = append(scores, score)
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].FinalScore > scores[j].FinalScore
	})
	return scores
}

// UpdateAgentPerformance records one task outcome. A non-positive
// completion time updates only the success counters.
func (s *Selector) UpdateAgentPerformance(agentID string, success bool, completion time.Duration) error {
	s.mu.Lock()
	p := s.perf[agentID]
	p.TotalTasks++
	if success {
		p.SuccessfulTasks++
	}
	if completion > 0 {
		secs := completion.Seconds()
		if p.AvgCompletionSeconds == 0 {
			p.AvgCompletionSeconds = secs
		} else {
			p.AvgCompletionSeconds = emaAlpha*secs + (1-emaAlpha)*p.AvgCompletionSeconds
		}
	}
	s.perf[agentID] = p
	s.mu.Unlock()

	if s.store == nil {
		return nil
	}
	err := s.store.SaveAgentPerformance(state.AgentPerformance{
		AgentID:              agentID,
		TotalTasks:           p.TotalTasks,
		SuccessfulTasks:      p.SuccessfulTasks,
		AvgCompletionSeconds: p.AvgCompletionSeconds,
		UpdatedAt:            time.Now(),
	})
	if err != nil {
		return fmt.Errorf("persist performance for %s: %w", agentID, err)
	}
	return nil
}

// Performance returns the tracked history for an agent.
func (s *Selector) Performance(agentID string) (Performance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.perf[agentID]
	return p, ok
}

// EstimateTime returns the relative duration for a team of n agents on a
// task of complexity c. Teams above five agents get slower again.
func EstimateTime(c classify.Complexity, n int) float64 {
	if n <= 0 {
		return 0
	}
	base, ok := baseTime[c]
	if !ok {
		base = baseTime[classify.ComplexityModerate]
	}

	var factor float64
	switch {
	case n == 1:
		factor = 1.0
	case n == 2:
		factor = 0.7
	case n == 3:
		factor = 0.6
	case n <= 5:
		factor = 0.5
	default:
		factor = 0.6
	}
	return base * factor
}

func sizeSuggestion(n int) string {
	switch {
	case n <= 0:
		return SuggestNone
	case n == 1:
		return SuggestSingleAgent
	case n <= 3:
		return SuggestSequential
	default:
		return SuggestParallel
	}
}

func emptyTeam(reason string) TeamComposition {
	return TeamComposition{
		PrimaryAgents:      []string{},
		SupportAgents:      []string{},
		ReviewAgents:       []string{},
		Reasoning:          reason,
		WorkflowSuggestion: SuggestNone,
	}
}

func describe(strategy Strategy, f classify.TaskFeatures, team TeamComposition) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("%s selected %d agent(s) for a %s %s task",
		strategy, team.TotalAgents, f.Complexity, f.PrimaryCategory()))
	if len(team.PrimaryAgents) > 0 {
		parts = append(parts, "primary: "+strings.Join(team.PrimaryAgents, ", "))
	}
	if len(team.SupportAgents) > 0 {
		parts = append(parts, "support: "+strings.Join(team.SupportAgents, ", "))
	}
	if len(team.ReviewAgents) > 0 {
		parts = append(parts, "review: "+strings.Join(team.ReviewAgents, ", "))
	}
	return strings.Join(parts, "; ")
}
