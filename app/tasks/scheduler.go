package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/rss-stash/app/feed"
)

const (
	SyncTag = "sync-news-feeds"

	MessageCacheFeeds = "CACHE_FEEDS"
	MessageSyncFeeds  = "SYNC_FEEDS"
)

var (
	ErrUnknownTag     = errors.New("unknown sync tag")
	ErrUnknownMessage = errors.New("unknown message type")
	ErrQueueFull      = errors.New("task queue is full")
)

// Message is a request posted by a foreground client
type Message struct {
	Type  string `json:"type" binding:"required"`
	Feeds any    `json:"feeds,omitempty"`
}

type Options struct {
	Interval       time.Duration
	WorkerCount    int
	QueueSize      int
	TaskTimeout    time.Duration
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

var _ TaskSchedulerInterface = (*Scheduler)(nil)

type Scheduler struct {
	syncer        Syncer
	snapshots     SnapshotStore
	registrar     FeedRegistrar
	subscriptions []feed.Subscription
	interval      time.Duration
	workerCount   int
	taskTimeout   time.Duration
	retryBase     time.Duration
	retryMax      time.Duration
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	taskQueue     chan TaskInterface
	snapshotSeq   snapshotSequencer
}

func NewScheduler(syncer Syncer, snapshots SnapshotStore, registrar FeedRegistrar, subscriptions []feed.Subscription, opts Options) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.WorkerCount <= 0 {
		opts.WorkerCount = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 300
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 5 * time.Minute
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = time.Second
	}
	if opts.RetryMaxDelay <= 0 {
		opts.RetryMaxDelay = 30 * time.Second
	}

	return &Scheduler{
		syncer:        syncer,
		snapshots:     snapshots,
		registrar:     registrar,
		subscriptions: subscriptions,
		interval:      opts.Interval,
		workerCount:   opts.WorkerCount,
		taskTimeout:   opts.TaskTimeout,
		retryBase:     opts.RetryBaseDelay,
		retryMax:      opts.RetryMaxDelay,
		ctx:           ctx,
		cancel:        cancel,
		taskQueue:     make(chan TaskInterface, opts.QueueSize),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runStartupTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueSync("tick")
			}
		}
	}()
}

// Stop cancels running tasks and waits for workers and pending retries.
// Tasks enqueued afterwards are rejected.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}

	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Trigger handles a background-sync request identified by tag
func (s *Scheduler) Trigger(tag string) error {
	if tag != SyncTag {
		return fmt.Errorf("%w: %q", ErrUnknownTag, tag)
	}
	return s.EnqueueTask(NewSyncDueTask("trigger", s.syncer))
}

// HandleMessage dispatches a foreground client message
func (s *Scheduler) HandleMessage(msg Message) error {
	switch msg.Type {
	case MessageCacheFeeds:
		return s.EnqueueTask(NewCacheSnapshotTask(msg.Feeds, s.snapshots, &s.snapshotSeq))
	case MessageSyncFeeds:
		return s.EnqueueTask(NewSyncDueTask("message", s.syncer))
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
}

// runStartupTasks seeds subscriptions before the first sync so seeded
// feeds are already due when it runs.
func (s *Scheduler) runStartupTasks() {
	if len(s.subscriptions) > 0 && s.registrar != nil {
		s.executeTask(-1, NewSeedSubscriptionsTask(s.subscriptions, s.registrar))
	} else {
		slog.Debug("No subscriptions to seed")
	}

	s.enqueueSync("startup")
}

func (s *Scheduler) enqueueSync(reason string) {
	if err := s.EnqueueTask(NewSyncDueTask(reason, s.syncer)); err != nil {
		slog.Warn("Failed to enqueue SyncDueTask", "reason", reason, "error", err)
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, s.taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		return
	}

	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

	if s.ctx.Err() != nil {
		return
	}

	if !task.CanRetry() {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		return
	}

	task.IncrementRetryCount()
	retryDelay := s.retryDelay(task.GetRetryCount())

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "reason", task.GetReason(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(retryDelay)
		defer timer.Stop()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
			return
		case <-timer.C:
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
			}
		}
	}()
}

// retryDelay doubles from the base delay per attempt, capped at the max
func (s *Scheduler) retryDelay(attempt int) time.Duration {
	delay := s.retryBase
	for i := 1; i < attempt && delay < s.retryMax; i++ {
		delay *= 2
	}
	if delay > s.retryMax {
		delay = s.retryMax
	}
	return delay
}
