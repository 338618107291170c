package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/automatacontrols/bms-core/internal/queue"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <job-id>",
	Short: "Print a job's current state",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	jobID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return newUsageError(fmt.Errorf("invalid job id %q: %w", args[0], err))
	}

	q, closeFn, err := openQueue(cmd.Context())
	if err != nil {
		return fmt.Errorf("connect to queue: %w", err)
	}
	defer closeFn()

	job, err := q.Inspect(cmd.Context(), jobID)
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			return fmt.Errorf("job %d not found", jobID)
		}
		return fmt.Errorf("inspect job %d: %w", jobID, err)
	}

	out, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
