package selector

import (
	"fmt"
	"math"

	"github.com/ShayCichocki/crew/internal/capability"
	"github.com/ShayCichocki/crew/internal/classify"
)

// builder holds the inputs shared by every strategy for one selection call.
// scores is sorted by FinalScore, highest first.
type builder struct {
	f      classify.TaskFeatures
	scores []AgentScore
	agents map[string]capability.AgentCapability
}

func (b *builder) agent(id string) capability.AgentCapability {
	return b.agents[id]
}

func (b *builder) finalScore(id string) float64 {
	for _, s := range b.scores {
		if s.AgentID == id {
			return s.FinalScore
		}
	}
	return 0
}

func (b *builder) meanScore(ids []string) float64 {
	if len(ids) == 0 {
		return 0
	}
	var total float64
	for _, id := range ids {
		total += b.finalScore(id)
	}
	return total / float64(len(ids))
}

func (b *builder) finish(team TeamComposition) TeamComposition {
	if team.PrimaryAgents == nil {
		team.PrimaryAgents = []string{}
	}
	if team.SupportAgents == nil {
		team.SupportAgents = []string{}
	}
	if team.ReviewAgents == nil {
		team.ReviewAgents = []string{}
	}
	team.TotalAgents = len(team.AllAgents())
	return team
}

// bestMatch takes the top agent, plus a lower-ranked reviewer when review is required.
func (b *builder) bestMatch() TeamComposition {
	top := b.scores[0]
	team := TeamComposition{PrimaryAgents: []string{top.AgentID}}

	if b.f.RequiresReview {
		for _, s := range b.scores[1:] {
			if b.agent(s.AgentID).CanReview {
				team.ReviewAgents = []string{s.AgentID}
				break
			}
		}
	}

	team = b.finish(team)
	team.Confidence = top.FinalScore
	team.EstimatedTime = EstimateTime(b.f.Complexity, team.TotalAgents)
	team.WorkflowSuggestion = sizeSuggestion(team.TotalAgents)
	return team
}

// specialized picks one specialist per top category, then adds one unused
// agent for each required capability: testing, documentation, deployment
// and review. A requirement adds an agent even when a primary already has
// the capability.
func (b *builder) specialized() TeamComposition {
	used := make(map[string]bool)
	var team TeamComposition

	for _, cat := range b.f.TopCategories(3) {
		for _, s := range b.scores {
			if used[s.AgentID] {
				continue
			}
			if b.agent(s.AgentID).HasPrimary(cat) {
				team.PrimaryAgents = append(team.PrimaryAgents, s.AgentID)
				used[s.AgentID] = true
				break
			}
		}
	}
	if len(team.PrimaryAgents) == 0 {
		top := b.scores[0].AgentID
		team.PrimaryAgents = []string{top}
		used[top] = true
	}

	type requirement struct {
		needed bool
		has    func(capability.AgentCapability) bool
		review bool
	}
	requirements := []requirement{
		{b.f.RequiresTesting, func(a capability.AgentCapability) bool { return a.CanTest }, false},
		{b.f.RequiresDocumentation, func(a capability.AgentCapability) bool { return a.CanDocument }, false},
		{b.f.RequiresDeployment, func(a capability.AgentCapability) bool { return a.CanDeploy }, false},
		{b.f.RequiresReview, func(a capability.AgentCapability) bool { return a.CanReview }, true},
	}
	for _, req := range requirements {
		if !req.needed {
			continue
		}
		for _, s := range b.scores {
			if used[s.AgentID] || !req.has(b.agent(s.AgentID)) {
				continue
			}
			used[s.AgentID] = true
			if req.review {
				team.ReviewAgents = append(team.ReviewAgents, s.AgentID)
			} else {
				team.SupportAgents = append(team.SupportAgents, s.AgentID)
			}
			break
		}
	}

	team = b.finish(team)
	team.Confidence = b.meanScore(team.AllAgents())
	team.EstimatedTime = EstimateTime(b.f.Complexity, team.TotalAgents)
	team.WorkflowSuggestion = sizeSuggestion(team.TotalAgents)
	return team
}

// minimal picks the single agent with the widest coverage among those
// scoring at least minimalThreshold. The team has zero or one member.
func (b *builder) minimal() TeamComposition {
	bestID := ""
	bestCoverage := math.Inf(-1)

	for _, s := range b.scores {
		if s.FinalScore < minimalThreshold {
			continue
		}
		a := b.agent(s.AgentID)
		coverage := 0.0
		for _, c := range b.f.Categories {
			switch {
			case a.HasPrimary(c):
				coverage += 1.0
			case a.HasSecondary(c):
				coverage += 0.5
			}
		}
		if b.f.RequiresTesting && a.CanTest {
			coverage++
		}
		if b.f.RequiresReview && a.CanReview {
			coverage++
		}
		if b.f.RequiresDeployment && a.CanDeploy {
			coverage++
		}
		// Strict comparison keeps the higher-ranked agent on ties.
		if coverage > bestCoverage {
			bestCoverage = coverage
			bestID = s.AgentID
		}
	}

	if bestID == "" {
		return emptyTeam(fmt.Sprintf("no agent reached the minimal-team threshold of %.1f", minimalThreshold))
	}

	team := b.finish(TeamComposition{PrimaryAgents: []string{bestID}})
	team.Confidence = b.finalScore(bestID)
	team.EstimatedTime = EstimateTime(b.f.Complexity, 1)
	team.WorkflowSuggestion = SuggestSingleAgent
	return team
}

// redundant runs up to two strong specialists per top-2 category side by side.
func (b *builder) redundant() TeamComposition {
	seen := make(map[string]bool)
	var primary []string

	for _, cat := range b.f.TopCategories(2) {
		picked := 0
		for _, s := range b.scores {
			if picked == 2 {
				break
			}
			if seen[s.AgentID] || s.FinalScore < redundantThreshold {
				continue
			}
			if b.agent(s.AgentID).HasPrimary(cat) {
				primary = append(primary, s.AgentID)
				seen[s.AgentID] = true
				picked++
			}
		}
	}
	if len(primary) == 0 {
		top := b.scores[0].AgentID
		primary = []string{top}
		seen[top] = true
	}

	team := TeamComposition{PrimaryAgents: primary}
	if b.f.RequiresReview {
		for _, s := range b.scores {
			if !seen[s.AgentID] && b.agent(s.AgentID).CanReview {
				team.ReviewAgents = []string{s.AgentID}
				break
			}
		}
	}

	team = b.finish(team)
	team.Confidence = math.Min(b.scores[0].FinalScore*1.2, 0.95)
	team.EstimatedTime = EstimateTime(b.f.Complexity, team.TotalAgents) * 0.8
	team.WorkflowSuggestion = SuggestRedundant
	return team
}

// full takes every agent scoring at least fullThreshold and sorts them into
// roles by primary-category match.
func (b *builder) full() TeamComposition {
	var team TeamComposition

	for _, s := range b.scores {
		if s.FinalScore < fullThreshold {
			break
		}
		a := b.agent(s.AgentID)
		matches := false
		for _, c := range b.f.Categories {
			if a.HasPrimary(c) {
				matches = true
				break
			}
		}

		// Primary matches past the cap spill into support without a limit;
		// only non-matching agents are held to maxFullSupport.
		switch {
		case matches && len(team.PrimaryAgents) < maxFullPrimary:
			team.PrimaryAgents = append(team.PrimaryAgents, s.AgentID)
		case matches:
			team.SupportAgents = append(team.SupportAgents, s.AgentID)
		case a.CanReview && b.f.RequiresReview:
			team.ReviewAgents = append(team.ReviewAgents, s.AgentID)
		case len(team.SupportAgents) < maxFullSupport:
			team.SupportAgents = append(team.SupportAgents, s.AgentID)
		}
	}

	if len(team.PrimaryAgents)+len(team.SupportAgents)+len(team.ReviewAgents) == 0 {
		return emptyTeam(fmt.Sprintf("no agent reached the full-team threshold of %.1f", fullThreshold))
	}

	team = b.finish(team)
	team.Confidence = b.meanScore(team.AllAgents())
	team.EstimatedTime = EstimateTime(b.f.Complexity, team.TotalAgents) * 1.5
	team.WorkflowSuggestion = SuggestOrchestrate
	return team
}
