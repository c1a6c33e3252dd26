// Package workflow turns a selected team into an ordered, acyclic plan of
// execution stages.
package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ShayCichocki/crew/internal/classify"
	"github.com/ShayCichocki/crew/internal/graph"
	"github.com/ShayCichocki/crew/internal/selector"
)

// stageTimeout is the per-stage timeout in seconds for each complexity level.
var stageTimeout = map[classify.Complexity]int{
	classify.ComplexityTrivial:     60,
	classify.ComplexitySimple:      300,
	classify.ComplexityModerate:    600,
	classify.ComplexityComplex:     1800,
	classify.ComplexityVeryComplex: 3600,
}

// Stage is one step of a plan. Agents in a parallel stage run concurrently
// and join before any dependent stage starts.
type Stage struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Agents         []string `json:"agents"`
	Parallel       bool     `json:"parallel"`
	TimeoutSeconds int      `json:"timeout,omitempty"`
	Dependencies   []string `json:"dependencies"`
	Outputs        []string `json:"outputs"`
}

// NodeID implements graph.Node.
func (s Stage) NodeID() string { return s.ID }

// NodeDependencies implements graph.Node.
func (s Stage) NodeDependencies() []string { return s.Dependencies }

// Workflow is an ordered list of stages; every dependency names an earlier stage.
type Workflow struct {
	WorkflowType string  `json:"workflow_type"`
	Stages       []Stage `json:"stages"`
	TotalAgents  int     `json:"total_agents"`
	// EstimatedTime is the team estimate discounted by parallelism.
	EstimatedTime float64 `json:"estimated_time"`
	// ParallelizationFactor is parallel stages / all stages.
	ParallelizationFactor float64 `json:"parallelization_factor"`
}

// plan accumulates stages, chaining each one off the previous stage.
type plan struct {
	timeout int
	stages  []Stage
}

func (p *plan) add(id, name string, agents []string, parallel bool, outputs ...string) {
	deps := []string{}
	if n := len(p.stages); n > 0 {
		deps = append(deps, p.stages[n-1].ID)
	}
	p.stages = append(p.stages, Stage{
		ID:             id,
		Name:           name,
		Agents:         append([]string(nil), agents...),
		Parallel:       parallel,
		TimeoutSeconds: p.timeout,
		Dependencies:   deps,
		Outputs:        outputs,
	})
}

// Optimize builds a workflow for team. The shape follows the team's
// workflow suggestion; unknown suggestions fall back to a sequential chain.
func Optimize(team selector.TeamComposition, f classify.TaskFeatures) Workflow {
	if team.TotalAgents == 0 || team.WorkflowSuggestion == selector.SuggestNone {
		return Workflow{WorkflowType: selector.SuggestNone, Stages: []Stage{}}
	}

	timeout, ok := stageTimeout[f.Complexity]
	if !ok {
		timeout = stageTimeout[classify.ComplexityModerate]
	}
	p := &plan{timeout: timeout}

	shape := team.WorkflowSuggestion
	// discount scales with the parallelization factor; flat, when set,
	// replaces it with a fixed multiplier.
	var discount, flat float64
	switch shape {
	case selector.SuggestSingleAgent:
		singleAgent(p, team)
	case selector.SuggestParallel:
		parallelCollaboration(p, team)
		discount = 0.3
	case selector.SuggestRedundant:
		parallelRedundant(p, team)
		flat = 0.8
	case selector.SuggestOrchestrate:
		teamOrchestration(p, team, f)
		discount = 0.25
	case selector.SuggestSequential:
		sequential(p, team)
	default:
		shape = selector.SuggestSequential
		sequential(p, team)
	}

	wf := Workflow{
		WorkflowType: shape,
		Stages:       p.stages,
		TotalAgents:  team.TotalAgents,
	}
	if len(wf.Stages) > 0 {
		parallel := 0
		for _, s := range wf.Stages {
			if s.Parallel {
				parallel++
			}
		}
		wf.ParallelizationFactor = float64(parallel) / float64(len(wf.Stages))
	}
	if flat > 0 {
		wf.EstimatedTime = team.EstimatedTime * flat
	} else {
		wf.EstimatedTime = team.EstimatedTime * (1 - discount*wf.ParallelizationFactor)
	}
	return wf
}

func workers(team selector.TeamComposition) []string {
	var out []string
	seen := make(map[string]bool)
	for _, id := range append(append([]string(nil), team.PrimaryAgents...), team.SupportAgents...) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		out = team.AllAgents()
	}
	return out
}

func addReview(p *plan, team selector.TeamComposition) {
	if len(team.ReviewAgents) > 0 {
		p.add("review", "Review", team.ReviewAgents, len(team.ReviewAgents) > 1, "review_report")
	}
}

func singleAgent(p *plan, team selector.TeamComposition) {
	p.add("execute", "Execute task", workers(team), false, "implementation")
	addReview(p, team)
}

func sequential(p *plan, team selector.TeamComposition) {
	for i, id := range workers(team) {
		p.add(fmt.Sprintf("step_%d", i+1), fmt.Sprintf("Step %d: %s", i+1, id), []string{id}, false,
			fmt.Sprintf("step_%d_output", i+1))
	}
	addReview(p, team)
}

func parallelCollaboration(p *plan, team selector.TeamComposition) {
	all := workers(team)
	p.add("parallel_execution", "Parallel execution", all, len(all) > 1, "partial_results")
	p.add("integration", "Integrate results", all[:1], false, "integrated_result")
	addReview(p, team)
}

// parallelRedundant runs every primary on the same task, has the lead
// validate the candidates, then lets a reviewer (or the lead) pick one.
func parallelRedundant(p *plan, team selector.TeamComposition) {
	primary := team.PrimaryAgents
	if len(primary) == 0 {
		primary = workers(team)
	}
	lead := primary[:1]
	p.add("redundant_execute", "Redundant parallel execution", primary, true, "candidate_solutions")
	p.add("validate", "Validate results", lead, false, "validation_report")
	selectors := team.ReviewAgents
	if len(selectors) == 0 {
		selectors = lead
	}
	p.add("select", "Select best result", selectors, false, "final_result")
}

func teamOrchestration(p *plan, team selector.TeamComposition, f classify.TaskFeatures) {
	all := team.AllAgents()
	primary := team.PrimaryAgents
	if len(primary) == 0 {
		primary = workers(team)
	}
	lead := primary[:1]

	if f.IsResearch {
		p.add("research", "Research", prefer(all, lead, "research", "analyst"), false, "research_findings")
	}
	if f.Complexity >= classify.ComplexityComplex {
		p.add("design", "Design", prefer(all, lead, "architect", "design"), false, "design_spec")
	}

	parallel := len(primary) > 1
	p.add("implementation", "Implementation", primary, parallel, "implementation")
	if parallel {
		p.add("integration", "Integration", lead, false, "integrated_build")
	}

	if f.RequiresTesting {
		p.add("testing", "Testing", prefer(all, lead, "test", "qa"), false, "test_report")
	}
	if f.RequiresDocumentation {
		p.add("documentation", "Documentation", prefer(all, lead, "doc", "writer"), false, "documentation")
	}
	addReview(p, team)
	if f.RequiresDeployment {
		p.add("deployment", "Deployment", prefer(all, lead, "deploy", "devops"), false, "deployment_record")
	}
}

// prefer returns agents whose ID contains any of the hints, or fallback.
func prefer(agents, fallback []string, hints ...string) []string {
	var out []string
	for _, id := range agents {
		for _, h := range hints {
			if strings.Contains(id, h) {
				out = append(out, id)
				break
			}
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

// ErrForwardDependency indicates a stage depends on itself or a later stage.
var ErrForwardDependency = errors.New("stage depends on a later or unknown stage")

// Validate checks that stage IDs are unique, each dependency names an
// earlier stage, and the stage graph is acyclic.
func Validate(wf Workflow) error {
	earlier := make(map[string]bool, len(wf.Stages))
	for _, s := range wf.Stages {
		if earlier[s.ID] {
			return fmt.Errorf("duplicate stage %s", s.ID)
		}
		for _, dep := range s.Dependencies {
			if !earlier[dep] {
				return fmt.Errorf("stage %s -> %s: %w", s.ID, dep, ErrForwardDependency)
			}
		}
		earlier[s.ID] = true
	}
	if _, err := graph.Build(wf.Stages); err != nil {
		return fmt.Errorf("build stage graph: %w", err)
	}
	return nil
}

// Order returns stage IDs in a valid execution order.
func Order(wf Workflow) ([]string, error) {
	g, err := graph.Build(wf.Stages)
	if err != nil {
		return nil, fmt.Errorf("build stage graph: %w", err)
	}
	return g.TopologicalSort()
}

// ReadyStages returns the stages that can start once the completed stages
// are done. An execution host fans out over the result and joins before
// calling again.
func ReadyStages(wf Workflow, completed []string) ([]Stage, error) {
	g, err := graph.Build(wf.Stages)
	if err != nil {
		return nil, fmt.Errorf("build stage graph: %w", err)
	}
	for _, id := range completed {
		g.MarkComplete(id)
	}

	byID := make(map[string]Stage, len(wf.Stages))
	for _, s := range wf.Stages {
		byID[s.ID] = s
	}
	var ready []Stage
	for _, id := range g.Ready() {
		ready = append(ready, byID[id])
	}
	return ready, nil
}
