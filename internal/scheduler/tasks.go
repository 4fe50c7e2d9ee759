package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/healingspace/healingspace/internal/database"
)

// Task names as used in the scheduler configuration.
const (
	TaskDeliverScheduled = "deliver_scheduled"
	TaskSQLMaintenance   = "sql_maintenance"
)

// TaskFunc is the signature of every scheduled task. The context is
// cancelled on shutdown.
type TaskFunc func(ctx context.Context) error

// ScheduledDeliverer releases scheduled messages that have come due.
type ScheduledDeliverer interface {
	DeliverDue(ctx context.Context) (int, error)
}

// TaskDeps contains the dependencies of the scheduled tasks.
type TaskDeps struct {
	Logger    *slog.Logger
	Store     database.Store
	Messaging ScheduledDeliverer
}

// RegisterAllTasks returns every task keyed by its configuration name.
func RegisterAllTasks(deps TaskDeps) map[string]TaskFunc {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	tasks := map[string]TaskFunc{
		TaskDeliverScheduled: newDeliverScheduledTask(deps),
		TaskSQLMaintenance:   newSQLMaintenanceTask(deps),
	}
	deps.Logger.Info("Initialized scheduled tasks", "count", len(tasks))
	return tasks
}

func newDeliverScheduledTask(deps TaskDeps) TaskFunc {
	log := deps.Logger.With("task", TaskDeliverScheduled)

	return func(ctx context.Context) error {
		delivered, err := deps.Messaging.DeliverDue(ctx)
		if delivered > 0 {
			log.InfoContext(ctx, "Delivered scheduled messages", "count", delivered)
		}
		if err != nil {
			return fmt.Errorf("scheduled delivery failed: %w", err)
		}
		return nil
	}
}

func newSQLMaintenanceTask(deps TaskDeps) TaskFunc {
	log := deps.Logger.With("task", TaskSQLMaintenance)

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting scheduled SQL maintenance task")
		startTime := time.Now()

		err := deps.Store.RunSQLMaintenance(ctx)
		duration := time.Since(startTime)
		if err != nil {
			log.ErrorContext(ctx, "SQL maintenance task failed", "error", err, "duration", duration)
			return fmt.Errorf("sql maintenance failed: %w", err)
		}

		log.InfoContext(ctx, "Scheduled SQL maintenance task completed successfully", "duration", duration)
		return nil
	}
}
