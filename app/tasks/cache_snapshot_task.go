package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// snapshotSequencer orders snapshot writes by push order. A push never
// overwrites a snapshot from a later push.
type snapshotSequencer struct {
	mu      sync.Mutex
	issued  uint64
	written uint64
}

func (s *snapshotSequencer) next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	return s.issued
}

// write runs fn unless a later push was already written. It reports whether
// fn ran.
func (s *snapshotSequencer) write(seq uint64, fn func() error) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.written {
		return false, nil
	}
	if err := fn(); err != nil {
		return true, err
	}
	s.written = seq
	return true, nil
}

// CacheSnapshotTask stores the feeds snapshot pushed by a foreground client.
// It is not retried: a retry would race newer pushes.
type CacheSnapshotTask struct {
	Task
	feeds     any
	snapshots SnapshotStore
	sequencer *snapshotSequencer
	seq       uint64
}

func NewCacheSnapshotTask(feeds any, snapshots SnapshotStore, sequencer *snapshotSequencer) *CacheSnapshotTask {
	task := &CacheSnapshotTask{
		Task:      NewTask(TaskTypeCacheSnapshot, "message"),
		feeds:     feeds,
		snapshots: snapshots,
		sequencer: sequencer,
		seq:       sequencer.next(),
	}
	task.MaxRetries = 0
	return task
}

func (t *CacheSnapshotTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	written, err := t.sequencer.write(t.seq, func() error {
		return t.snapshots.PutSnapshot(ctx, t.feeds)
	})
	if err != nil {
		return fmt.Errorf("failed to cache feeds snapshot: %w", err)
	}
	if !written {
		slog.Debug("Dropped stale feeds snapshot", "task_id", t.ID, "seq", t.seq)
		return nil
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"duration", t.GetDuration())

	return nil
}
