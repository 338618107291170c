package cmd

import (
	"errors"

	"github.com/spf13/cobra"
)

// Version information, set by build.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "bmsctl",
	Short: "Building management control-plane server and operator CLI",
	Long: `bmsctl runs the control evaluation queue, the per-site scheduler,
and the lead-lag coordinator, and gives an operator direct access to the
job queue.

Commands:
  serve    run the control-plane server until interrupted
  enqueue  submit a process-equipment job directly
  inspect  print a job's current state
  migrate  apply pending job-queue schema migrations
`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(enqueueCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(migrateCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// usageError marks an error that should exit 2 (bad invocation) rather
// than 1 (runtime failure), per the CLI's documented exit codes.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func newUsageError(err error) error { return usageError{err: err} }

// ExitCodeFor maps a command error to its process exit code: 2 for a
// usage error, 130 for an interrupt, 1 for anything else.
func ExitCodeFor(err error) int {
	var ue usageError
	if errors.As(err, &ue) {
		return 2
	}
	if errors.Is(err, errInterrupted) {
		return 130
	}
	return 1
}
