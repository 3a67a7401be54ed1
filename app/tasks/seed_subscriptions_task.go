package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/rss-stash/app/feed"
)

// SeedSubscriptionsTask registers the enabled subscriptions from the feeds
// directory as never-synced feeds. Feeds already in the store are untouched.
type SeedSubscriptionsTask struct {
	Task
	subscriptions []feed.Subscription
	registrar     FeedRegistrar
}

func NewSeedSubscriptionsTask(subscriptions []feed.Subscription, registrar FeedRegistrar) *SeedSubscriptionsTask {
	return &SeedSubscriptionsTask{
		Task:          NewTask(TaskTypeSeedSubscriptions, "startup"),
		subscriptions: subscriptions,
		registrar:     registrar,
	}
}

func (t *SeedSubscriptionsTask) Execute(ctx context.Context) error {
	created := 0
	for _, sub := range t.subscriptions {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !sub.IsEnabled() {
			slog.Debug("Subscription disabled, skipping", "feed", sub.Name)
			continue
		}

		f, isNew, err := t.registrar.RegisterFeed(ctx, sub.URL, sub.DisplayName())
		if err != nil {
			return fmt.Errorf("failed to register subscription %s: %w", sub.Name, err)
		}
		if isNew {
			created++
			slog.Debug("Subscription registered", "feed", sub.Name, "feed_id", f.ID)
		}
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"duration", t.GetDuration(),
		"subscriptions", len(t.subscriptions),
		"registered", created)

	return nil
}
