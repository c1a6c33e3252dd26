package workflow

import (
	"errors"
	"math"
	"testing"

	"github.com/ShayCichocki/crew/internal/capability"
	"github.com/ShayCichocki/crew/internal/classify"
	"github.com/ShayCichocki/crew/internal/selector"
)

func TestOptimize_AllStrategiesProduceValidPlans(t *testing.T) {
	c := classify.NewClassifier()
	s := selector.New(c, capability.NewDefaultMatrix())

	tasks := []string{
		"Fix a typo in the README",
		"Deploy the application to AWS using Docker containers and Kubernetes",
		"Research and redesign the entire payment architecture from scratch, with tests and docs",
		"Implement a REST API in Go with PostgreSQL and unit tests, then review it",
	}
	for _, task := range tasks {
		f := c.Classify(task, nil)
		for _, strategy := range selector.Strategies {
			team := s.SelectForFeatures(f, strategy)
			wf := Optimize(team, f)
			if err := Validate(wf); err != nil {
				t.Errorf("%q/%s: invalid workflow: %v", task, strategy, err)
			}
			if _, err := Order(wf); err != nil {
				t.Errorf("%q/%s: Order: %v", task, strategy, err)
			}
			if wf.ParallelizationFactor < 0 || wf.ParallelizationFactor > 1 {
				t.Errorf("%q/%s: parallelization factor %v", task, strategy, wf.ParallelizationFactor)
			}
			if team.TotalAgents > 0 && len(wf.Stages) == 0 {
				t.Errorf("%q/%s: non-empty team produced no stages", task, strategy)
			}
		}
	}
}

func TestOptimize_EmptyTeam(t *testing.T) {
	wf := Optimize(selector.TeamComposition{WorkflowSuggestion: selector.SuggestNone}, classify.TaskFeatures{})
	if len(wf.Stages) != 0 || wf.WorkflowType != selector.SuggestNone {
		t.Errorf("empty team workflow = %+v", wf)
	}
}

func TestOptimize_Shapes(t *testing.T) {
	f := classify.TaskFeatures{Complexity: classify.ComplexityModerate}

	tests := []struct {
		name       string
		team       selector.TeamComposition
		wantType   string
		wantStages []string
		wantPF     float64
	}{
		{
			name: "single agent",
			team: team(selector.SuggestSingleAgent, []string{"a"}, nil, nil),
			wantType: selector.SuggestSingleAgent, wantStages: []string{"execute"}, wantPF: 0,
		},
		{
			name: "single agent with reviewer",
			team: team(selector.SuggestSingleAgent, []string{"a"}, nil, []string{"r"}),
			wantType: selector.SuggestSingleAgent, wantStages: []string{"execute", "review"}, wantPF: 0,
		},
		{
			name: "sequential",
			team: team(selector.SuggestSequential, []string{"a"}, []string{"b", "c"}, nil),
			wantType: selector.SuggestSequential, wantStages: []string{"step_1", "step_2", "step_3"}, wantPF: 0,
		},
		{
			name: "parallel",
			team: team(selector.SuggestParallel, []string{"a", "b"}, []string{"c", "d"}, []string{"r"}),
			wantType: selector.SuggestParallel, wantStages: []string{"parallel_execution", "integration", "review"}, wantPF: 1.0 / 3,
		},
		{
			name: "redundant",
			team: team(selector.SuggestRedundant, []string{"a", "b"}, nil, nil),
			wantType: selector.SuggestRedundant, wantStages: []string{"redundant_execute", "validate", "select"}, wantPF: 1.0 / 3,
		},
		{
			name: "unknown tag falls back to sequential",
			team: team("mystery", []string{"a", "b"}, nil, nil),
			wantType: selector.SuggestSequential, wantStages: []string{"step_1", "step_2"}, wantPF: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := Optimize(tt.team, f)
			if wf.WorkflowType != tt.wantType {
				t.Errorf("WorkflowType = %q, want %q", wf.WorkflowType, tt.wantType)
			}
			if got := stageIDs(wf); !equal(got, tt.wantStages) {
				t.Errorf("stages = %v, want %v", got, tt.wantStages)
			}
			if math.Abs(wf.ParallelizationFactor-tt.wantPF) > 1e-9 {
				t.Errorf("ParallelizationFactor = %v, want %v", wf.ParallelizationFactor, tt.wantPF)
			}
			for _, s := range wf.Stages {
				if s.TimeoutSeconds != 600 {
					t.Errorf("stage %s timeout = %d, want 600", s.ID, s.TimeoutSeconds)
				}
			}
		})
	}
}

func TestOptimize_TeamOrchestration(t *testing.T) {
	f := classify.TaskFeatures{
		Complexity:            classify.ComplexityVeryComplex,
		IsResearch:            true,
		RequiresTesting:       true,
		RequiresDocumentation: true,
		RequiresDeployment:    true,
	}
	tm := team(selector.SuggestOrchestrate,
		[]string{"backend-developer", "frontend-developer"},
		[]string{"test-engineer", "documentation-writer", "deployment-engineer", "system-architect", "research-analyst"},
		[]string{"code-reviewer"})
	tm.EstimatedTime = 2.0

	wf := Optimize(tm, f)
	want := []string{"research", "design", "implementation", "integration", "testing", "documentation", "review", "deployment"}
	if got := stageIDs(wf); !equal(got, want) {
		t.Fatalf("stages = %v, want %v", got, want)
	}

	byID := make(map[string]Stage)
	for _, s := range wf.Stages {
		byID[s.ID] = s
	}
	checks := map[string]string{
		"research":      "research-analyst",
		"design":        "system-architect",
		"testing":       "test-engineer",
		"documentation": "documentation-writer",
		"deployment":    "deployment-engineer",
		"review":        "code-reviewer",
	}
	for stage, agent := range checks {
		if !contains(byID[stage].Agents, agent) {
			t.Errorf("stage %s agents = %v, want to include %s", stage, byID[stage].Agents, agent)
		}
	}
	if !byID["implementation"].Parallel {
		t.Error("implementation with two primaries should be parallel")
	}
	if byID["implementation"].TimeoutSeconds != 3600 {
		t.Errorf("timeout = %d, want 3600", byID["implementation"].TimeoutSeconds)
	}

	pf := 1.0 / 8
	if math.Abs(wf.EstimatedTime-2.0*(1-0.25*pf)) > 1e-9 {
		t.Errorf("EstimatedTime = %v, want %v", wf.EstimatedTime, 2.0*(1-0.25*pf))
	}
}

func TestOptimize_ParallelRedundant(t *testing.T) {
	f := classify.TaskFeatures{Complexity: classify.ComplexityModerate}

	tm := team(selector.SuggestRedundant, []string{"a", "b"}, nil, []string{"r"})
	tm.EstimatedTime = 2.0
	wf := Optimize(tm, f)

	if math.Abs(wf.EstimatedTime-1.6) > 1e-9 {
		t.Errorf("EstimatedTime = %v, want flat 0.8 x 2.0", wf.EstimatedTime)
	}
	if !wf.Stages[0].Parallel {
		t.Error("redundant_execute should be parallel")
	}
	if got := wf.Stages[1].Agents; !equal(got, []string{"a"}) {
		t.Errorf("validate agents = %v, want [a]", got)
	}
	if got := wf.Stages[2].Agents; !equal(got, []string{"r"}) {
		t.Errorf("select agents = %v, want the reviewer", got)
	}

	// without reviewers the lead selects, and a lone primary still runs in
	// a parallel stage
	solo := Optimize(team(selector.SuggestRedundant, []string{"a"}, nil, nil), f)
	if !solo.Stages[0].Parallel {
		t.Error("redundant_execute should be parallel with one primary")
	}
	if got := solo.Stages[2].Agents; !equal(got, []string{"a"}) {
		t.Errorf("select agents = %v, want [a]", got)
	}
}

func TestOptimize_OrchestrationMinimalFeatures(t *testing.T) {
	tm := team(selector.SuggestOrchestrate, []string{"a"}, nil, nil)
	wf := Optimize(tm, classify.TaskFeatures{Complexity: classify.ComplexitySimple})
	if got := stageIDs(wf); !equal(got, []string{"implementation"}) {
		t.Errorf("stages = %v, want [implementation]", got)
	}
}

func TestValidate_RejectsForwardDependencies(t *testing.T) {
	wf := Workflow{Stages: []Stage{
		{ID: "a", Dependencies: []string{"b"}},
		{ID: "b"},
	}}
	if err := Validate(wf); !errors.Is(err, ErrForwardDependency) {
		t.Errorf("Validate = %v, want ErrForwardDependency", err)
	}

	dup := Workflow{Stages: []Stage{{ID: "a"}, {ID: "a"}}}
	if err := Validate(dup); err == nil {
		t.Error("expected duplicate stage error")
	}
}

func TestReadyStages(t *testing.T) {
	tm := team(selector.SuggestParallel, []string{"a", "b"}, nil, []string{"r"})
	wf := Optimize(tm, classify.TaskFeatures{Complexity: classify.ComplexitySimple})

	steps := []struct {
		completed []string
		want      []string
	}{
		{nil, []string{"parallel_execution"}},
		{[]string{"parallel_execution"}, []string{"integration"}},
		{[]string{"parallel_execution", "integration"}, []string{"review"}},
		{[]string{"parallel_execution", "integration", "review"}, nil},
	}
	for _, s := range steps {
		ready, err := ReadyStages(wf, s.completed)
		if err != nil {
			t.Fatalf("ReadyStages: %v", err)
		}
		var ids []string
		for _, st := range ready {
			ids = append(ids, st.ID)
		}
		if !equal(ids, s.want) {
			t.Errorf("completed %v: ready = %v, want %v", s.completed, ids, s.want)
		}
	}
}

func team(suggestion string, primary, support, review []string) selector.TeamComposition {
	t := selector.TeamComposition{
		PrimaryAgents:      primary,
		SupportAgents:      support,
		ReviewAgents:       review,
		WorkflowSuggestion: suggestion,
		EstimatedTime:      1.0,
	}
	t.TotalAgents = len(t.AllAgents())
	return t
}

func stageIDs(wf Workflow) []string {
	var ids []string
	for _, s := range wf.Stages {
		ids = append(ids, s.ID)
	}
	return ids
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
