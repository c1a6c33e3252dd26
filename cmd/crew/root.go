package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/crew/internal/config"
)

var (
	configPath string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "crew",
	Short: "Agent team selection and session recovery",
	Long: `crew turns a free-text task into a classified feature set, picks a team
of specialist agents for it, and lays the team out as a staged workflow.

It also keeps agent sessions durable: sessions are saved to disk,
checkpointed at risky moments, and recovered automatically when rate
limits, token limits, network failures or agent crashes interrupt them.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: XDG config plus .crew.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print machine-readable JSON")

	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(teamCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(checkpointCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads --config when given, otherwise the layered defaults.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}
