package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/crew/internal/limits"
)

var (
	detectCode  int
	detectStack string
	detectAgent string
	detectStage string
)

var detectCmd = &cobra.Command{
	Use:   "detect <error message>",
	Short: "Classify an error message against the recovery taxonomy",
	Example: `  crew detect "429 Too Many Requests" --code 429
  crew detect "token limit: maximum context length is 200000 tokens" --code 400`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDetect,
}

func init() {
	detectCmd.Flags().IntVar(&detectCode, "code", 0, "HTTP status code of the failed request")
	detectCmd.Flags().StringVar(&detectStack, "stack", "", "Stack trace text")
	detectCmd.Flags().StringVar(&detectAgent, "agent", "", "Agent that raised the error")
	detectCmd.Flags().StringVar(&detectStage, "stage", "", "Workflow stage the error happened in")
}

func runDetect(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ec := a.detector.Detect(limits.Input{
		Message:       strings.Join(args, " "),
		HTTPCode:      detectCode,
		StackTrace:    detectStack,
		AgentID:       detectAgent,
		WorkflowStage: detectStage,
	})

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, ec)
	}
	if ec == nil {
		printStatus(out, "?", "no error pattern matched", color.FgYellow)
		return nil
	}

	fmt.Fprintln(out, headerStyle.Render("Detected error"))
	field(out, "Type", ec.ErrorType)
	field(out, "Severity", ec.Severity)
	field(out, "Strategy", color.CyanString(string(ec.RecommendedStrategy)))
	field(out, "Confidence", fmt.Sprintf("%.2f", ec.Confidence))
	if ec.MaxContextSize > 0 {
		field(out, "Max context", fmt.Sprintf("%d bytes", ec.MaxContextSize))
	}
	if a.detector.ShouldRetry(ec) {
		field(out, "First retry", a.detector.BackoffDelay(ec))
	} else {
		field(out, "Retry", "no")
	}
	return nil
}
