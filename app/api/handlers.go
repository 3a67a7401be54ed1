package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/rss-stash/app/database"
	"github.com/lysyi3m/rss-stash/app/feed"
	"github.com/lysyi3m/rss-stash/app/freshness"
	"github.com/lysyi3m/rss-stash/app/network"
	"github.com/lysyi3m/rss-stash/app/tasks"
)

func NewHandler(store FeedStore, subscriber Subscriber, cacheBridge CacheBridge,
	scheduler tasks.TaskSchedulerInterface, events EventSource,
	window time.Duration, version string) *Handler {
	return &Handler{
		store:      store,
		subscriber: subscriber,
		bridge:     cacheBridge,
		scheduler:  scheduler,
		events:     events,
		generator:  feed.NewGenerator(version),
		window:     window,
		version:    version,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	ctx := c.Request.Context()

	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   h.version,
	}

	if feedCount, err := h.store.CountFeeds(ctx); err == nil {
		health["feeds"] = feedCount
	}
	if articleCount, err := h.store.CountArticles(ctx); err == nil {
		health["articles"] = articleCount
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) ListFeeds(c *gin.Context) {
	feeds, err := h.store.ListFeeds(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "list_feeds", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	now := time.Now()
	views := make([]FeedView, 0, len(feeds))
	for _, f := range feeds {
		views = append(views, FeedView{Feed: f, Stale: freshness.IsStaleAt(f.LastUpdated, h.window, now)})
	}

	c.JSON(http.StatusOK, gin.H{
		"feeds": views,
		"total": len(views),
	})
}

func (h *Handler) CreateFeed(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	f, stored, err := h.subscriber.Subscribe(c.Request.Context(), req.URL, req.Name)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, gin.H{"feed": f, "articles": stored})
	case errors.Is(err, network.ErrFetchFailed) && f != nil:
		slog.Warn("Feed registered for background sync", "url", req.URL, "error", err)
		c.JSON(http.StatusAccepted, gin.H{"feed": f, "pending": true, "error": err.Error()})
	case errors.Is(err, database.ErrInvalidFeed):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid feed", "details": err.Error()})
	default:
		slog.Error("Failed to subscribe", "url", req.URL, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to subscribe", "details": err.Error()})
	}
}

func (h *Handler) DeleteFeed(c *gin.Context) {
	id := c.Param("id")

	if err := h.store.DeleteFeed(c.Request.Context(), id); err != nil {
		slog.Error("Database error", "operation", "delete_feed", "feed_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) ListFeedArticles(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if _, err := h.store.GetFeed(ctx, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
			return
		}
		slog.Error("Database error", "operation", "get_feed", "feed_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	articles, err := h.store.ListArticlesByFeed(ctx, id)
	if err != nil {
		slog.Error("Database error", "operation", "list_feed_articles", "feed_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.Header("X-Feed-Items", strconv.Itoa(len(articles)))
	c.JSON(http.StatusOK, gin.H{"articles": articles, "total": len(articles)})
}

// GetFeedRSS renders the stored copy of a feed as RSS 2.0
func (h *Handler) GetFeedRSS(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	f, err := h.store.GetFeed(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
			return
		}
		slog.Error("Database error", "operation", "get_feed", "feed_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	articles, err := h.store.ListArticlesByFeed(ctx, id)
	if err != nil {
		slog.Error("Database error", "operation", "list_feed_articles", "feed_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	selfLink := scheme + "://" + c.Request.Host + c.Request.URL.Path

	rss, err := h.generator.Run(*f, articles, selfLink)
	if err != nil {
		slog.Error("Failed to generate RSS", "feed_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate RSS"})
		return
	}

	c.Header("X-Feed-Items", strconv.Itoa(len(articles)))
	c.Data(http.StatusOK, "application/rss+xml; charset=utf-8", []byte(rss))
}

func (h *Handler) ListArticles(c *gin.Context) {
	articles, err := h.store.ListAllArticles(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "list_articles", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"articles": articles, "total": len(articles)})
}

func (h *Handler) TriggerSync(c *gin.Context) {
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	if err := h.scheduler.Trigger(req.Tag); err != nil {
		h.enqueueError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"success": true, "tag": req.Tag})
}

func (h *Handler) PostMessage(c *gin.Context) {
	var msg tasks.Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	if err := h.scheduler.HandleMessage(msg); err != nil {
		h.enqueueError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"success": true, "type": msg.Type})
}

func (h *Handler) enqueueError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, tasks.ErrUnknownTag), errors.Is(err, tasks.ErrUnknownMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, tasks.ErrQueueFull):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		slog.Error("Error enqueueing task", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue task", "details": err.Error()})
	}
}

func (h *Handler) GetSnapshot(c *gin.Context) {
	data, err := h.bridge.Snapshot(c.Request.Context())
	if err != nil {
		if errors.Is(err, database.ErrCacheMiss) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No snapshot cached"})
			return
		}
		slog.Error("Cache error", "operation", "snapshot", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Cache error"})
		return
	}

	c.Data(http.StatusOK, "application/json", data)
}

// StreamEvents relays hub events to the client as Server-Sent Events
func (h *Handler) StreamEvents(c *gin.Context) {
	events, cancel := h.events.Subscribe()
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(event.Type, event)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// ServeBridge answers every request no route matched from the response cache bridge
func (h *Handler) ServeBridge(c *gin.Context) {
	result, err := h.bridge.Serve(c.Request.Context(), c.Request)
	if err != nil {
		slog.Warn("Bridge request failed", "method", c.Request.Method, "url", c.Request.URL.String(), "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, network.ErrFetchFailed) {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": "Upstream unavailable"})
		return
	}

	c.Set(cacheStatusKey, string(result.Source))

	for key, values := range result.Header {
		switch http.CanonicalHeaderKey(key) {
		case "Content-Length", "Transfer-Encoding", "Connection":
			continue
		}
		for _, value := range values {
			c.Writer.Header().Add(key, value)
		}
	}
	c.Header("X-Cache-Status", string(result.Source))
	c.Header("X-Cache-Strategy", result.Strategy.String())

	contentType := result.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	c.Data(result.StatusCode, contentType, result.Body)
}
