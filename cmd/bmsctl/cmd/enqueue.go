package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/automatacontrols/bms-core/internal/config"
	"github.com/automatacontrols/bms-core/internal/postgres"
	"github.com/automatacontrols/bms-core/internal/queue"
)

var enqueuePriority string

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <site-id> <equipment-id>",
	Short: "Submit a process-equipment job directly",
	Args:  cobra.ExactArgs(2),
	RunE:  runEnqueue,
}

func init() {
	enqueueCmd.Flags().StringVar(&enqueuePriority, "priority", "normal", "normal or emergency")
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	siteID, equipmentID := args[0], args[1]

	priority := queue.PriorityNormal
	switch enqueuePriority {
	case "normal":
		priority = queue.PriorityNormal
	case "emergency":
		priority = queue.PriorityEmergency
	default:
		return newUsageError(fmt.Errorf("invalid --priority %q: must be normal or emergency", enqueuePriority))
	}

	q, closeFn, err := openQueue(cmd.Context())
	if err != nil {
		return fmt.Errorf("connect to queue: %w", err)
	}
	defer closeFn()

	id, err := q.Enqueue(cmd.Context(), queue.EnqueueRequest{
		Kind:        queue.KindProcessEquipment,
		SiteID:      siteID,
		EquipmentID: equipmentID,
		Payload:     map[string]string{"site_id": siteID, "equipment_id": equipmentID},
		Priority:    priority,
	})
	if err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}

	fmt.Printf("enqueued job %d for %s/%s\n", id, siteID, equipmentID)
	return nil
}

// openQueue connects to the job queue using the same config and env-var
// resolution serve uses, so ad hoc CLI use always targets the same
// backend the running server would.
func openQueue(ctx context.Context) (*queue.Queue, func(), error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	pgCfg, err := postgres.ParseURL(cfg.Queue.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse queue url: %w", err)
	}

	pool := postgres.NewPostgresPool(pgCfg, nil)
	if err := pool.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("connect queue database: %w", err)
	}

	return queue.New(pool), func() { _ = pool.Disconnect(ctx) }, nil
}
