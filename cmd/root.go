// Package cmd wires the CLI commands: serve, migrate and version.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "lumen",
	Short: "Lumen - conversational assistant backend",
	Long: `Lumen is the backend for a conversational programming assistant.
It stores chat sessions in PostgreSQL, generates replies with Gemini via
Genkit, and exposes a JSON API with Google sign-in.

Running lumen without a subcommand starts the HTTP server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, args)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
