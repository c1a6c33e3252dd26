// Package capability holds the agent catalog and the scoring function that
// measures how well an agent fits a classified task.
package capability

import (
	"github.com/ShayCichocki/crew/internal/classify"
)

// Score weights for MatchesTask. They sum to 1.0.
const (
	weightCategory   = 0.40
	weightLanguage   = 0.25
	weightFramework  = 0.15
	weightComplexity = 0.10
	weightSpecial    = 0.10
)

// AgentCapability describes one agent profile in the catalog.
// Entries are immutable once registered in a Matrix, except WorksWellWith,
// which the Matrix derives when the catalog is installed.
type AgentCapability struct {
	ID                  string               `yaml:"id" json:"id"`
	Description         string               `yaml:"description" json:"description"`
	PrimaryCategories   []classify.Category  `yaml:"primary_categories" json:"primary_categories"`
	SecondaryCategories []classify.Category  `yaml:"secondary_categories,omitempty" json:"secondary_categories,omitempty"`
	Languages           []classify.Language  `yaml:"languages,omitempty" json:"languages,omitempty"`
	Frameworks          []classify.Framework `yaml:"frameworks,omitempty" json:"frameworks,omitempty"`

	MaxComplexity       classify.Complexity `yaml:"max_complexity" json:"max_complexity"`
	PreferredComplexity classify.Complexity `yaml:"preferred_complexity" json:"preferred_complexity"`

	CanTest      bool `yaml:"can_test" json:"can_test"`
	CanReview    bool `yaml:"can_review" json:"can_review"`
	CanDeploy    bool `yaml:"can_deploy" json:"can_deploy"`
	CanDocument  bool `yaml:"can_document" json:"can_document"`
	CanRefactor  bool `yaml:"can_refactor" json:"can_refactor"`
	CanDebug     bool `yaml:"can_debug" json:"can_debug"`
	CanResearch  bool `yaml:"can_research" json:"can_research"`
	CanArchitect bool `yaml:"can_architect" json:"can_architect"`

	// MCPServers names the tool servers the agent expects to be attached.
	MCPServers []string `yaml:"mcp_servers,omitempty" json:"mcp_servers,omitempty"`

	// SuccessRate is the declared baseline success rate in [0,1].
	SuccessRate float64 `yaml:"success_rate" json:"success_rate"`
	// TimeMultiplier scales completion time relative to an average agent.
	TimeMultiplier float64 `yaml:"time_multiplier" json:"time_multiplier"`

	WorksWellWith []string `yaml:"works_well_with,omitempty" json:"works_well_with,omitempty"`
	ConflictsWith []string `yaml:"conflicts_with,omitempty" json:"conflicts_with,omitempty"`
}

// HasPrimary reports whether c is one of the agent's primary categories.
func (a AgentCapability) HasPrimary(c classify.Category) bool {
	for _, p := range a.PrimaryCategories {
		if p == c {
			return true
		}
	}
	return false
}

// HasSecondary reports whether c is one of the agent's secondary categories.
func (a AgentCapability) HasSecondary(c classify.Category) bool {
	for _, s := range a.SecondaryCategories {
		if s == c {
			return true
		}
	}
	return false
}

// MatchesTask returns a score in [0,1] for how well the agent fits the task.
// The result depends only on a and f.
func (a *AgentCapability) MatchesTask(f classify.TaskFeatures) float64 {
	score := weightCategory*a.categoryScore(f.Categories) +
		weightLanguage*overlapScore(a.Languages, f.Languages) +
		weightFramework*overlapScore(a.Frameworks, f.Frameworks) +
		weightComplexity*a.complexityScore(f.Complexity) +
		weightSpecial*a.specialScore(f)
	return clamp01(score)
}

func (a *AgentCapability) categoryScore(categories []classify.Category) float64 {
	if len(categories) == 0 {
		return 0
	}
	var total float64
	for _, c := range categories {
		switch {
		case a.HasPrimary(c):
			total += 1.0
		case a.HasSecondary(c):
			total += 0.5
		}
	}
	return total / float64(len(categories))
}

// overlapScore is |agent ∩ task| / |task|. An agent that declares nothing
// fits only a task that asks for nothing.
func overlapScore[T comparable](agent, task []T) float64 {
	if len(task) == 0 {
		if len(agent) == 0 {
			return 1.0
		}
		return 0
	}
	have := make(map[T]bool, len(agent))
	for _, v := range agent {
		have[v] = true
	}
	seen := make(map[T]bool, len(task))
	matched := 0
	for _, v := range task {
		if seen[v] {
			continue
		}
		seen[v] = true
		if have[v] {
			matched++
		}
	}
	return float64(matched) / float64(len(seen))
}

// complexityScore is 0 above the agent's max. In range it is 1.0 at the
// preferred level and loses 0.2 per step of distance, floored at 0.5.
func (a *AgentCapability) complexityScore(c classify.Complexity) float64 {
	if c > a.MaxComplexity {
		return 0
	}
	d := int(c) - int(a.PreferredComplexity)
	if d < 0 {
		d = -d
	}
	return max(0.5, 1.0-0.2*float64(d))
}

func (a *AgentCapability) specialScore(f classify.TaskFeatures) float64 {
	score := 1.0
	if f.RequiresTesting && !a.CanTest {
		score -= 0.2
	}
	if f.RequiresReview && !a.CanReview {
		score -= 0.2
	}
	if f.RequiresDeployment && !a.CanDeploy {
		score -= 0.2
	}
	if f.IsBugFix && !a.CanDebug {
		score -= 0.2
	}
	if f.IsRefactor && !a.CanRefactor {
		score -= 0.2
	}
	return score
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
