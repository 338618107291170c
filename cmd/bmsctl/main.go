// Command bmsctl runs and operates the control-plane process: its serve
// subcommand launches the orchestrator, and enqueue/inspect/migrate give an
// operator direct access to the job queue without a running server.
//
// Exit codes: 0 success, 1 runtime error, 2 usage error, 130 interrupted
// (SIGINT/SIGTERM during serve).
package main

import (
	"fmt"
	"os"

	"github.com/automatacontrols/bms-core/cmd/bmsctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		if code := cmd.ExitCodeFor(err); code == 130 {
			os.Exit(code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cmd.ExitCodeFor(err))
	}
}
