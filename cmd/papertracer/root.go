// Package main provides the entry point for the PaperTracer CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for PaperTracer.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "papertracer",
		Short: "Citation tree crawler for academic search results",
		Long: `PaperTracer builds citation trees from academic search results.
Starting from a paper or a cited-by listing it follows "cited by" links
recursively, sorting citing papers by citation count and bounding depth
and fan-out.

When the source blocks requests, PaperTracer escalates through
mitigation tiers: header and proxy rotation, a headless browser, and
optionally a visible browser where a human solves the challenge.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewSessionCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
