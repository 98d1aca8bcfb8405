package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sreforge/debate-engine/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sreforge",
	Short: "sreforge runs the SRE root-cause debate engine",
	Long: `sreforge orchestrates a multi-agent debate over an incident's logs,
domain knowledge, and code to produce a verified, evidence-backed root
cause, driving the session through asset mapping, analysis, critique,
judgment, verification, and report phases.`,
}

// Execute adds all child commands to the root command and runs it. It
// is called by main.main and only needs to happen once.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML); defaults baked in if omitted")
	rootCmd.AddCommand(newServeCmd())
}

func loadConfig() (config.EngineConfig, error) {
	return config.Load(cfgFile)
}
