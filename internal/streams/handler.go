package streams

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jimdaga/capacity-planner/internal/trackersync"
)

// Applier reconciles remote events for one user.
type Applier interface {
	Apply(ctx context.Context, userID uint, events []trackersync.Event) (*trackersync.Report, error)
}

// HandleTrackerCompletion returns a handler that reconciles each completion
// into the owner's plan tasks. Only persistence failures are returned, so
// unmatched or invalid events are acknowledged.
func HandleTrackerCompletion(applier Applier) func(context.Context, TrackerCompletion) error {
	return func(ctx context.Context, c TrackerCompletion) error {
		ev := trackersync.Event{
			Provider:   c.Provider,
			ExternalID: c.ExternalID,
			Status:     trackersync.Status(c.Status),
			OccurredAt: c.OccurredAt,
		}

		report, err := applier.Apply(ctx, c.UserID, []trackersync.Event{ev})
		if err != nil {
			return fmt.Errorf("failed to reconcile %s: %w", c.ExternalID, err)
		}

		if len(report.Outcomes) == 1 {
			o := report.Outcomes[0]
			slog.Info("Tracker completion reconciled",
				"user_id", c.UserID,
				"external_id", c.ExternalID,
				"action", o.Action,
				"task_id", o.TaskID,
			)
		}
		return nil
	}
}
