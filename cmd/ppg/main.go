// ppg orchestrates parallel command-line coding agents across git worktrees.
package main

import (
	"os"

	"github.com/xcawolfe-amzn/ppg/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
