package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "npadraft",
		Short: "NPA draft builder",
		Long: `npadraft serves the New Product Approval draft builder API.

It edits drafts generated from NPA templates, keeps review comments and the
governance agent conversation, autosaves every draft into Postgres and a
per-draft git history, and exports drafts to PDF or DOCX.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newProgressCmd(),
		newTokenCmd(),
	)
	return rootCmd
}
