package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:     "nodeagent",
	Short:   "Image processing worker node",
	Long:    "nodeagent runs image pipelines dispatched by the orchestrator and reports its liveness through heartbeats.",
	Version: version,
}

func main() {
	_ = godotenv.Load()
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
