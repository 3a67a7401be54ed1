package tasks

import (
	"context"
	"fmt"
	"log/slog"
)

type SyncDueTask struct {
	Task
	syncer Syncer
}

func NewSyncDueTask(reason string, syncer Syncer) *SyncDueTask {
	return &SyncDueTask{
		Task:   NewTask(TaskTypeSyncDue, reason),
		syncer: syncer,
	}
}

func (t *SyncDueTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	report, err := t.syncer.SyncDue(ctx)
	if err != nil {
		return fmt.Errorf("failed to sync due feeds: %w", err)
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"reason", t.Reason,
		"duration", t.GetDuration(),
		"due", report.Due,
		"synced", report.Synced,
		"failed", report.Failed)

	return nil
}
