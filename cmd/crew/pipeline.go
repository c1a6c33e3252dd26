package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/crew/internal/classify"
	"github.com/ShayCichocki/crew/internal/selector"
	"github.com/ShayCichocki/crew/internal/telemetry"
	"github.com/ShayCichocki/crew/internal/workflow"
)

var (
	taskFiles    []string
	teamStrategy string
)

var classifyCmd = &cobra.Command{
	Use:   "classify <task>",
	Short: "Extract structured features from a task description",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runClassify,
}

var teamCmd = &cobra.Command{
	Use:   "team <task>",
	Short: "Select a team of agents for a task",
	Long: `Classify the task and assemble a team with one of the selection strategies:

  best_match        the single best agent, plus a reviewer when needed
  specialized_team  one agent per major category (default)
  minimal_team      the fewest agents that clear the score bar
  redundant_team    two agents per category for cross-checking
  full_team         every agent above the score threshold, capped`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTeam,
}

var planCmd = &cobra.Command{
	Use:   "plan <task>",
	Short: "Select a team and lay it out as a staged workflow",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPlan,
}

func init() {
	for _, cmd := range []*cobra.Command{classifyCmd, teamCmd, planCmd} {
		cmd.Flags().StringSliceVarP(&taskFiles, "file", "f", nil, "File the task touches (repeatable)")
	}
	for _, cmd := range []*cobra.Command{teamCmd, planCmd} {
		cmd.Flags().StringVarP(&teamStrategy, "strategy", "s", "", "Selection strategy (default from config)")
	}
}

func taskText(args []string) string {
	return strings.Join(args, " ")
}

func taskContext() *classify.Context {
	if len(taskFiles) == 0 {
		return nil
	}
	return &classify.Context{Files: taskFiles}
}

func runClassify(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	f := a.classifier.Classify(taskText(args), taskContext())
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), f)
	}
	renderFeatures(cmd.OutOrStdout(), f)
	return nil
}

// selectTeam classifies the task and selects a team with the requested
// or configured strategy.
func selectTeam(a *app, args []string) (classify.TaskFeatures, selector.Strategy, selector.TeamComposition, error) {
	strategy := a.defaultStrategy()
	if teamStrategy != "" {
		st, err := selector.ParseStrategy(teamStrategy)
		if err != nil {
			return classify.TaskFeatures{}, "", selector.TeamComposition{}, err
		}
		strategy = st
	}

	sel := a.buildSelector()
	f := a.classifier.Classify(taskText(args), taskContext())
	team := sel.SelectForFeatures(f, strategy)
	telemetry.RecordSelection(context.Background(), string(strategy), team.TotalAgents)
	a.logger.Log("selected %d agents with %s", team.TotalAgents, strategy)
	return f, strategy, team, nil
}

func runTeam(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	_, strategy, team, err := selectTeam(a, args)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), team)
	}
	renderTeam(cmd.OutOrStdout(), strategy, team)
	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	f, strategy, team, err := selectTeam(a, args)
	if err != nil {
		return err
	}
	wf := workflow.Optimize(team, f)
	if err := workflow.Validate(wf); err != nil {
		return fmt.Errorf("invalid plan: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), struct {
			Features classify.TaskFeatures    `json:"features"`
			Team     selector.TeamComposition `json:"team"`
			Workflow workflow.Workflow        `json:"workflow"`
		}{f, team, wf})
	}
	out := cmd.OutOrStdout()
	renderTeam(out, strategy, team)
	fmt.Fprintln(out)
	renderPlan(out, wf)
	return nil
}
