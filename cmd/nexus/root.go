package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "nexus",
	Short: "Nexus - capability-routing gateway for LLM inference fleets",
	Long: `Nexus is an OpenAI-compatible gateway that routes chat, embeddings,
audio and image requests to dynamically registered downstream servers.

Servers register at runtime with a capability list and are selected by a
least-connections policy; a background sweeper probes their health. Chat
completions can be augmented with MCP tool calls and hybrid retrieval.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.toml", "config file path")
}
