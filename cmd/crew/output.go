package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"github.com/ShayCichocki/crew/internal/classify"
	"github.com/ShayCichocki/crew/internal/selector"
	"github.com/ShayCichocki/crew/internal/session"
	"github.com/ShayCichocki/crew/internal/workflow"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(14)

	stageStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)

	parallelStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("42")).
			Padding(0, 1)

	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printStatus(w io.Writer, symbol, message string, attr color.Attribute) {
	c := color.New(attr)
	fmt.Fprintf(w, "%s %s\n", c.Sprint(symbol), message)
}

func field(w io.Writer, label string, value any) {
	fmt.Fprintf(w, "%s %v\n", labelStyle.Render(label), value)
}

func joinOr(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	return strings.Join(items, ", ")
}

func renderFeatures(w io.Writer, f classify.TaskFeatures) {
	fmt.Fprintln(w, headerStyle.Render("Task features"))
	cats := make([]string, len(f.Categories))
	for i, c := range f.Categories {
		cats[i] = string(c)
	}
	langs := make([]string, len(f.Languages))
	for i, l := range f.Languages {
		langs[i] = string(l)
	}
	fws := make([]string, len(f.Frameworks))
	for i, fw := range f.Frameworks {
		fws[i] = string(fw)
	}
	field(w, "Categories", joinOr(cats, "-"))
	field(w, "Complexity", f.Complexity)
	field(w, "Languages", joinOr(langs, "-"))
	field(w, "Frameworks", joinOr(fws, "-"))
	field(w, "Keywords", joinOr(f.Keywords, "-"))
	field(w, "Est. files", f.EstimatedFiles)
	field(w, "Confidence", fmt.Sprintf("%.2f", f.Confidence))

	var flags []string
	for _, fl := range []struct {
		on   bool
		name string
	}{
		{f.RequiresTesting, "testing"},
		{f.RequiresReview, "review"},
		{f.RequiresDeployment, "deployment"},
		{f.RequiresDocumentation, "documentation"},
		{f.IsBugFix, "bug-fix"},
		{f.IsNewFeature, "new-feature"},
		{f.IsRefactor, "refactor"},
		{f.IsResearch, "research"},
		{f.HasDatabase, "database"},
		{f.HasAPI, "api"},
		{f.HasUI, "ui"},
		{f.SecurityImplications, "security"},
	} {
		if fl.on {
			flags = append(flags, fl.name)
		}
	}
	field(w, "Flags", joinOr(flags, "-"))
}

func renderTeam(w io.Writer, strategy selector.Strategy, team selector.TeamComposition) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Team (%s)", strategy)))
	if team.Empty() {
		printStatus(w, "!", "no agents matched this task", color.FgYellow)
		return
	}
	field(w, "Primary", color.GreenString(joinOr(team.PrimaryAgents, "-")))
	field(w, "Support", joinOr(team.SupportAgents, "-"))
	field(w, "Review", color.CyanString(joinOr(team.ReviewAgents, "-")))
	field(w, "Agents", team.TotalAgents)
	field(w, "Est. time", fmt.Sprintf("%.1fh", team.EstimatedTime))
	field(w, "Confidence", fmt.Sprintf("%.2f", team.Confidence))
	field(w, "Workflow", team.WorkflowSuggestion)
	fmt.Fprintln(w, dimStyle.Render(team.Reasoning))
}

// renderPlan draws one box per stage, side by side in execution order.
func renderPlan(w io.Writer, wf workflow.Workflow) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Workflow (%s)", wf.WorkflowType)))
	if len(wf.Stages) == 0 {
		printStatus(w, "!", "empty plan", color.FgYellow)
		return
	}

	boxes := make([]string, 0, len(wf.Stages)*2)
	for i, st := range wf.Stages {
		style := stageStyle
		mode := "sequential"
		if st.Parallel {
			style = parallelStyle
			mode = "parallel"
		}
		body := fmt.Sprintf("%s\n%s\n%s", st.Name, dimStyle.Render(mode), strings.Join(st.Agents, "\n"))
		boxes = append(boxes, style.Render(body))
		if i < len(wf.Stages)-1 {
			boxes = append(boxes, " → ")
		}
	}
	fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Center, boxes...))
	field(w, "Stages", len(wf.Stages))
	field(w, "Agents", wf.TotalAgents)
	field(w, "Est. time", fmt.Sprintf("%.1fh", wf.EstimatedTime))
	field(w, "Parallel", fmt.Sprintf("%.0f%%", wf.ParallelizationFactor*100))
}

func statusColor(s session.Status) color.Attribute {
	switch s {
	case session.StatusActive, session.StatusCompleted:
		return color.FgGreen
	case session.StatusSuspended, session.StatusRecovering:
		return color.FgYellow
	default:
		return color.FgRed
	}
}

// formatAge renders a duration since t in short form.
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
