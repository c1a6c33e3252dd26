// Package selector scores catalog agents against a classified task and
// assembles them into a team using one of five strategies.
package selector

import (
	"fmt"
	"strings"
)

// Strategy selects how a team is assembled from scored agents.
type Strategy string

const (
	StrategyBestMatch   Strategy = "best_match"
	StrategySpecialized Strategy = "specialized_team"
	StrategyMinimal     Strategy = "minimal_team"
	StrategyRedundant   Strategy = "redundant_team"
	StrategyFull        Strategy = "full_team"
)

// Strategies lists every strategy in declaration order.
var Strategies = []Strategy{
	StrategyBestMatch,
	StrategySpecialized,
	StrategyMinimal,
	StrategyRedundant,
	StrategyFull,
}

// ParseStrategy converts a tag like "minimal_team" or "minimal" to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, st := range Strategies {
		if s == string(st) || s+"_team" == string(st) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown selection strategy %q", s)
}

// Workflow suggestion tags emitted with a team.
const (
	SuggestSingleAgent = "single-agent"
	SuggestSequential  = "sequential-collaboration"
	SuggestParallel    = "parallel-collaboration"
	SuggestRedundant   = "parallel-redundant"
	SuggestOrchestrate = "team-orchestration"
	SuggestNone        = "none"
)

// AgentScore is the result of scoring one agent for one task.
type AgentScore struct {
	AgentID    string   `json:"agent_id"`
	MatchScore float64  `json:"match_score"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons,omitempty"`
	Penalties  []string `json:"penalties,omitempty"`
	// FinalScore is MatchScore × Confidence.
	FinalScore float64 `json:"final_score"`
}

// TeamComposition is the output of one selection call.
type TeamComposition struct {
	PrimaryAgents      []string `json:"primary_agents"`
	SupportAgents      []string `json:"support_agents"`
	ReviewAgents       []string `json:"review_agents"`
	TotalAgents        int      `json:"total_agents"`
	EstimatedTime      float64  `json:"estimated_time"`
	Confidence         float64  `json:"confidence"`
	Reasoning          string   `json:"reasoning"`
	WorkflowSuggestion string   `json:"workflow_suggestion"`
}

// AllAgents returns primary, support and review agents in that order,
// without duplicates.
func (t TeamComposition) AllAgents() []string {
	seen := make(map[string]bool)
	var all []string
	for _, group := range [][]string{t.PrimaryAgents, t.SupportAgents, t.ReviewAgents} {
		for _, id := range group {
			if !seen[id] {
				seen[id] = true
				all = append(all, id)
			}
		}
	}
	return all
}

// Empty reports whether the team has no agents.
func (t TeamComposition) Empty() bool {
	return t.TotalAgents == 0
}

// Performance is the tracked history for one agent.
type Performance struct {
	TotalTasks      int
	SuccessfulTasks int
	// AvgCompletionSeconds is an exponential moving average (alpha 0.3).
	AvgCompletionSeconds float64
}

// SuccessRate returns successful/total, or 0 without history.
func (p Performance) SuccessRate() float64 {
	if p.TotalTasks == 0 {
		return 0
	}
	return float64(p.SuccessfulTasks) / float64(p.TotalTasks)
}
