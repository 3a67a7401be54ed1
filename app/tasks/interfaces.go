package tasks

import (
	"context"

	"github.com/lysyi3m/rss-stash/app/database"
	"github.com/lysyi3m/rss-stash/app/syncer"
)

// TaskSchedulerInterface is what the HTTP surface and main use to drive
// background work: lifecycle, direct enqueueing, sync triggers and messages
// from foreground clients.
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
	Trigger(tag string) error
	HandleMessage(msg Message) error
}

type Syncer interface {
	SyncDue(ctx context.Context) (*syncer.Report, error)
}

type SnapshotStore interface {
	PutSnapshot(ctx context.Context, feeds any) error
}

type FeedRegistrar interface {
	RegisterFeed(ctx context.Context, url, name string) (*database.Feed, bool, error)
}
