package selector

import (
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/crew/internal/capability"
	"github.com/ShayCichocki/crew/internal/classify"
	"github.com/ShayCichocki/crew/internal/state"
)

func newTestSelector(t *testing.T, opts ...Option) *Selector {
	t.Helper()
	return New(classify.NewClassifier(), capability.NewDefaultMatrix(), opts...)
}

var sampleTasks = []string{
	"Fix a typo in the README",
	"Deploy the application to AWS using Docker containers and Kubernetes",
	"Implement a REST API in Go with PostgreSQL and write unit tests",
	"Redesign the entire system architecture from scratch for scalability",
	"Investigate and compare message queue libraries",
	"Review the pull request for security vulnerabilities",
	"",
	"xyzzy",
}

func TestSelect_MinimalTeamForTypoFix(t *testing.T) {
	s := newTestSelector(t)
	team := s.Select("Fix a typo in the README", StrategyMinimal, nil)

	if team.TotalAgents != 1 {
		t.Fatalf("TotalAgents = %d, want 1 (team %+v)", team.TotalAgents, team)
	}
	if team.WorkflowSuggestion != SuggestSingleAgent {
		t.Errorf("WorkflowSuggestion = %q, want %q", team.WorkflowSuggestion, SuggestSingleAgent)
	}
}

func TestSelect_MinimalTeamSizeBounded(t *testing.T) {
	s := newTestSelector(t)
	for _, task := range sampleTasks {
		team := s.Select(task, StrategyMinimal, nil)
		if team.TotalAgents != 0 && team.TotalAgents != 1 {
			t.Errorf("Select(%q, minimal) TotalAgents = %d, want 0 or 1", task, team.TotalAgents)
		}
	}
}

func TestSelect_FullTeamRespectsThreshold(t *testing.T) {
	s := newTestSelector(t)
	c := classify.NewClassifier()

	for _, task := range sampleTasks {
		f := c.Classify(task, nil)
		finals := make(map[string]float64)
		for _, sc := range s.ScoreAgents(f) {
			finals[sc.AgentID] = sc.FinalScore
		}

		team := s.SelectForFeatures(f, StrategyFull)
		for _, id := range team.AllAgents() {
			if finals[id] < fullThreshold {
				t.Errorf("task %q: full team includes %s with final score %v", task, id, finals[id])
			}
		}
		if len(team.PrimaryAgents) > maxFullPrimary {
			t.Errorf("task %q: primary cap exceeded: %+v", task, team)
		}
	}
}

func TestSelect_TotalAgentsMatchesAllAgents(t *testing.T) {
	s := newTestSelector(t)
	for _, task := range sampleTasks {
		for _, strategy := range Strategies {
			team := s.Select(task, strategy, nil)
			if team.TotalAgents != len(team.AllAgents()) {
				t.Errorf("Select(%q, %s): TotalAgents = %d, len(AllAgents) = %d",
					task, strategy, team.TotalAgents, len(team.AllAgents()))
			}
			if team.Confidence < 0 || team.Confidence > 1 {
				t.Errorf("Select(%q, %s): confidence %v out of range", task, strategy, team.Confidence)
			}
		}
	}
}

func TestSelect_NonRedundantStrategiesNeverRepeatAgents(t *testing.T) {
	s := newTestSelector(t)
	for _, task := range sampleTasks {
		for _, strategy := range []Strategy{StrategyBestMatch, StrategySpecialized, StrategyMinimal} {
			team := s.Select(task, strategy, nil)
			n := len(team.PrimaryAgents) + len(team.SupportAgents) + len(team.ReviewAgents)
			if n != team.TotalAgents {
				t.Errorf("Select(%q, %s) repeats an agent across roles: %+v", task, strategy, team)
			}
		}
	}
}

func TestSelect_EmptyCatalog(t *testing.T) {
	s := New(classify.NewClassifier(), capability.NewMatrix(nil))
	for _, strategy := range Strategies {
		team := s.Select("Implement a feature", strategy, nil)
		if team.TotalAgents != 0 {
			t.Errorf("%s: TotalAgents = %d, want 0", strategy, team.TotalAgents)
		}
		if team.WorkflowSuggestion != SuggestNone {
			t.Errorf("%s: WorkflowSuggestion = %q, want none", strategy, team.WorkflowSuggestion)
		}
		if team.Reasoning == "" {
			t.Errorf("%s: expected an explanatory reasoning", strategy)
		}
	}
}

func TestSelect_BestMatchAddsReviewer(t *testing.T) {
	s := newTestSelector(t)
	f := classify.NewClassifier().Classify("Review and refactor the billing module", nil)
	if !f.RequiresReview {
		t.Fatal("fixture should require review")
	}

	team := s.SelectForFeatures(f, StrategyBestMatch)
	if len(team.PrimaryAgents) != 1 {
		t.Fatalf("PrimaryAgents = %v, want exactly one", team.PrimaryAgents)
	}
	if len(team.ReviewAgents) != 1 {
		t.Fatalf("ReviewAgents = %v, want one reviewer", team.ReviewAgents)
	}
	reviewer, _ := capability.NewDefaultMatrix().Get(team.ReviewAgents[0])
	if !reviewer.CanReview {
		t.Errorf("reviewer %s cannot review", reviewer.ID)
	}
}

func TestSelect_SpecializedCoversDeployment(t *testing.T) {
	s := newTestSelector(t)
	team := s.Select("Deploy the application to AWS using Docker containers and Kubernetes", StrategySpecialized, nil)

	m := capability.NewDefaultMatrix()
	canDeploy := false
	for _, id := range team.AllAgents() {
		if a, _ := m.Get(id); a.CanDeploy {
			canDeploy = true
		}
	}
	if !canDeploy {
		t.Errorf("specialized team %v has no agent that can deploy", team.AllAgents())
	}
	if team.WorkflowSuggestion == SuggestNone {
		t.Errorf("unexpected empty suggestion for team %+v", team)
	}
}

func TestSelect_SpecializedAddsSupportEvenWhenPrimaryCovers(t *testing.T) {
	s := newTestSelector(t)
	team := s.Select("Implement a new user signup endpoint in Go", StrategySpecialized, nil)

	if len(team.SupportAgents) != 2 {
		t.Fatalf("SupportAgents = %v, want a tester and a documenter", team.SupportAgents)
	}
	m := capability.NewDefaultMatrix()
	tester, _ := m.Get(team.SupportAgents[0])
	writer, _ := m.Get(team.SupportAgents[1])
	if !tester.CanTest || !writer.CanDocument {
		t.Errorf("support = %v (test %v, document %v)", team.SupportAgents, tester.CanTest, writer.CanDocument)
	}
	for _, id := range team.SupportAgents {
		for _, p := range team.PrimaryAgents {
			if id == p {
				t.Errorf("%s is both primary and support", id)
			}
		}
	}
}

func TestSelect_FullTeamRolesByPrimaryCategory(t *testing.T) {
	var agents []capability.AgentCapability
	for i := 1; i <= 12; i++ {
		agents = append(agents, capability.AgentCapability{
			ID:                  fmt.Sprintf("p%02d", i),
			PrimaryCategories:   []classify.Category{classify.CategoryTesting},
			MaxComplexity:       classify.ComplexityVeryComplex,
			PreferredComplexity: classify.ComplexitySimple,
			CanReview:           true,
		})
	}
	agents = append(agents,
		capability.AgentCapability{
			ID:                  "secondary",
			SecondaryCategories: []classify.Category{classify.CategoryTesting},
			MaxComplexity:       classify.ComplexityVeryComplex,
			PreferredComplexity: classify.ComplexitySimple,
			CanReview:           true,
		},
		capability.AgentCapability{
			ID:                  "helper",
			MaxComplexity:       classify.ComplexityVeryComplex,
			PreferredComplexity: classify.ComplexitySimple,
		},
	)
	s := New(classify.NewClassifier(), capability.NewMatrix(agents))

	f := classify.TaskFeatures{
		Categories:     []classify.Category{classify.CategoryTesting},
		Complexity:     classify.ComplexitySimple,
		RequiresReview: true,
		Confidence:     1,
	}
	team := s.SelectForFeatures(f, StrategyFull)

	wantPrimary := []string{"p01", "p02", "p03", "p04", "p05"}
	wantSupport := []string{"p06", "p07", "p08", "p09", "p10", "p11", "p12"}
	if fmt.Sprint(team.PrimaryAgents) != fmt.Sprint(wantPrimary) {
		t.Errorf("PrimaryAgents = %v, want %v", team.PrimaryAgents, wantPrimary)
	}
	// overflow primaries are not held to the support cap; helper is
	if fmt.Sprint(team.SupportAgents) != fmt.Sprint(wantSupport) {
		t.Errorf("SupportAgents = %v, want %v", team.SupportAgents, wantSupport)
	}
	// a secondary-only match is not a primary candidate
	if len(team.ReviewAgents) != 1 || team.ReviewAgents[0] != "secondary" {
		t.Errorf("ReviewAgents = %v, want [secondary]", team.ReviewAgents)
	}
}

func TestSelect_RedundantConfidenceCapped(t *testing.T) {
	s := newTestSelector(t)
	for _, task := range sampleTasks {
		team := s.Select(task, StrategyRedundant, nil)
		if team.Confidence > 0.95 {
			t.Errorf("Select(%q, redundant) confidence = %v, want <= 0.95", task, team.Confidence)
		}
		if team.TotalAgents > 0 && team.WorkflowSuggestion != SuggestRedundant {
			t.Errorf("Select(%q, redundant) suggestion = %q", task, team.WorkflowSuggestion)
		}
	}
}

func TestScoreAgents_ComplexityOverflowPenalizedTwice(t *testing.T) {
	m := capability.NewMatrix([]capability.AgentCapability{{
		ID:                  "junior",
		PrimaryCategories:   []classify.Category{classify.CategoryDevelopment},
		MaxComplexity:       classify.ComplexitySimple,
		PreferredComplexity: classify.ComplexitySimple,
		CanTest:             true,
		CanReview:           true,
	}})
	s := New(classify.NewClassifier(), m)

	f := classify.TaskFeatures{
		Categories: []classify.Category{classify.CategoryDevelopment},
		Complexity: classify.ComplexityComplex,
		Confidence: 0.6,
	}
	agent, _ := m.Get("junior")
	match := agent.MatchesTask(f)

	scores := s.ScoreAgents(f)
	if len(scores) != 1 {
		t.Fatalf("len(scores) = %d, want 1", len(scores))
	}
	want := match * 0.5 * 0.6
	if math.Abs(scores[0].FinalScore-want) > 1e-9 {
		t.Errorf("FinalScore = %v, want %v", scores[0].FinalScore, want)
	}
	if len(scores[0].Penalties) == 0 {
		t.Error("expected a complexity penalty to be recorded")
	}
}

func TestScoreAgents_SortedDescending(t *testing.T) {
	s := newTestSelector(t)
	f := classify.NewClassifier().Classify("Build a React frontend with TypeScript", nil)
	scores := s.ScoreAgents(f)
	for i := 1; i < len(scores); i++ {
		if scores[i-1].FinalScore < scores[i].FinalScore {
			t.Fatalf("scores not sorted at %d: %v < %v", i, scores[i-1].FinalScore, scores[i].FinalScore)
		}
	}
}

func TestUpdateAgentPerformance(t *testing.T) {
	s := newTestSelector(t)

	if err := s.UpdateAgentPerformance("debugger", true, 10*time.Second); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateAgentPerformance("debugger", false, 20*time.Second); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateAgentPerformance("debugger", true, 0); err != nil {
		t.Fatal(err)
	}

	p, ok := s.Performance("debugger")
	if !ok {
		t.Fatal("expected tracked performance")
	}
	if p.TotalTasks != 3 || p.SuccessfulTasks != 2 {
		t.Errorf("counts = %d/%d, want 2/3", p.SuccessfulTasks, p.TotalTasks)
	}
	// first sample seeds the average, second blends at alpha 0.3
	if want := 0.3*20 + 0.7*10; math.Abs(p.AvgCompletionSeconds-want) > 1e-9 {
		t.Errorf("AvgCompletionSeconds = %v, want %v", p.AvgCompletionSeconds, want)
	}
}

func TestUpdateAgentPerformance_AffectsScore(t *testing.T) {
	s := newTestSelector(t)
	f := classify.NewClassifier().Classify("Fix the crash in the login handler", nil)

	before := scoreOf(s.ScoreAgents(f), "debugger")
	for i := 0; i < 5; i++ {
		if err := s.UpdateAgentPerformance("debugger", false, 0); err != nil {
			t.Fatal(err)
		}
	}
	after := scoreOf(s.ScoreAgents(f), "debugger")

	if math.Abs(after.MatchScore-before.MatchScore*0.9) > 1e-9 {
		t.Errorf("MatchScore after failures = %v, want %v", after.MatchScore, before.MatchScore*0.9)
	}
}

func TestPerformancePersistence(t *testing.T) {
	db, err := state.OpenAndMigrate(filepath.Join(t.TempDir(), "crew.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	s := newTestSelector(t, WithPerformanceStore(db))
	if err := s.UpdateAgentPerformance("code-reviewer", true, 5*time.Second); err != nil {
		t.Fatalf("UpdateAgentPerformance: %v", err)
	}

	reloaded := newTestSelector(t, WithPerformanceStore(db))
	p, ok := reloaded.Performance("code-reviewer")
	if !ok || p.TotalTasks != 1 || p.SuccessfulTasks != 1 || p.AvgCompletionSeconds != 5 {
		t.Errorf("reloaded performance = %+v, %v", p, ok)
	}
}

func TestEstimateTime(t *testing.T) {
	tests := []struct {
		c    classify.Complexity
		n    int
		want float64
	}{
		{classify.ComplexityTrivial, 1, 0.2},
		{classify.ComplexityModerate, 2, 0.7},
		{classify.ComplexityComplex, 3, 1.2},
		{classify.ComplexityVeryComplex, 5, 1.5},
		{classify.ComplexityModerate, 6, 0.6},
		{classify.ComplexityModerate, 0, 0},
	}
	for _, tt := range tests {
		if got := EstimateTime(tt.c, tt.n); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("EstimateTime(%s, %d) = %v, want %v", tt.c, tt.n, got, tt.want)
		}
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{"minimal_team", StrategyMinimal, false},
		{"minimal", StrategyMinimal, false},
		{"BEST_MATCH", StrategyBestMatch, false},
		{" full ", StrategyFull, false},
		{"bogus", "", true},
	}
	for _, tt := range tests {
		got, err := ParseStrategy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseStrategy(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestAllAgentsDedup(t *testing.T) {
	team := TeamComposition{
		PrimaryAgents: []string{"a", "b"},
		SupportAgents: []string{"b", "c"},
		ReviewAgents:  []string{"a", "d"},
	}
	got := team.AllAgents()
	want := []string{"a", "b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("AllAgents = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("AllAgents = %v, want %v", got, want)
		}
	}
}

func scoreOf(scores []AgentScore, id string) AgentScore {
	for _, s := range scores {
		if s.AgentID == id {
			return s
		}
	}
	return AgentScore{}
}
