// Command codex-gateway runs the cloud gateway that fronts a coding
// agent subprocess over HTTP, JSON-RPC, and WebSocket.
package main

import (
	"os"

	"github.com/willy3087/codex-gateway/internal/cli"
)

var version = "dev"

func main() {
	root := cli.NewRootCmd(version)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
