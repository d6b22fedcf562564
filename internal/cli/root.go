// Package cli builds the gateway's cobra command tree: "serve" starts
// the HTTP server, "version" prints the build version.
package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

// NewRootCmd builds the root command. Bare invocation (no subcommand)
// behaves as "serve".
func NewRootCmd(v string) *cobra.Command {
	version = v

	root := &cobra.Command{
		Use:   "codex-gateway",
		Short: "Codex cloud gateway",
		Long:  "Codex cloud gateway fronts a single coding-agent subprocess over HTTP, JSON-RPC, and WebSocket.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the gateway version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Println("codex-gateway", version)
			return nil
		},
	}
}
