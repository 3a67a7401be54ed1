package api

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/rss-stash/app/bridge"
	"github.com/lysyi3m/rss-stash/app/database"
	"github.com/lysyi3m/rss-stash/app/network"
	"github.com/lysyi3m/rss-stash/app/notify"
	"github.com/lysyi3m/rss-stash/app/tasks"
)

type stubFetcher struct {
	routes map[string]*network.Response
}

func (f *stubFetcher) Fetch(ctx context.Context, url string) (*network.Response, error) {
	if resp, ok := f.routes[url]; ok {
		return resp, nil
	}
	return nil, fmt.Errorf("dial %s: %w", url, network.ErrFetchFailed)
}

func (f *stubFetcher) Do(ctx context.Context, req *http.Request) (*network.Response, error) {
	return f.Fetch(ctx, req.URL.String())
}

type stubSubscriber struct {
	store *database.Store
	fail  bool
}

func (s *stubSubscriber) Subscribe(ctx context.Context, url, name string) (*database.Feed, int, error) {
	if s.fail {
		f, _, err := s.store.RegisterFeed(ctx, url, name)
		if err != nil {
			return nil, 0, err
		}
		return f, 0, fmt.Errorf("dial %s: %w", url, network.ErrFetchFailed)
	}
	f := &database.Feed{URL: url, Name: name}
	if _, err := s.store.UpsertFeed(ctx, f); err != nil {
		return nil, 0, err
	}
	return f, 0, nil
}

type testServer struct {
	engine     *gin.Engine
	store      *database.Store
	bridge     *bridge.Bridge
	fetcher    *stubFetcher
	subscriber *stubSubscriber
	hub        *notify.Hub
}

func newTestServer(t *testing.T, apiKey string) *testServer {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := database.NewStore(db)
	fetcher := &stubFetcher{routes: map[string]*network.Response{}}
	b, err := bridge.New(database.NewResponseCacheRepository(db), fetcher, bridge.Options{Origin: "http://localhost:3000"})
	if err != nil {
		t.Fatalf("Failed to create bridge: %v", err)
	}

	hub := notify.NewHub(4)
	subscriber := &stubSubscriber{store: store}
	scheduler := tasks.NewScheduler(nil, b, store, nil, tasks.Options{QueueSize: 10})

	handler := NewHandler(store, subscriber, b, scheduler, hub, time.Hour, "test")

	return &testServer{
		engine:     NewServer(handler, apiKey),
		store:      store,
		bridge:     b,
		fetcher:    fetcher,
		subscriber: subscriber,
		hub:        hub,
	}
}

func (s *testServer) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"feeds":0`) {
		t.Errorf("Expected feed count in health, got: %s", w.Body.String())
	}
}

func TestListFeedsReportsStaleness(t *testing.T) {
	s := newTestServer(t, "")
	ctx := context.Background()

	if _, _, err := s.store.RegisterFeed(ctx, "https://never.example.com/rss", "never"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.store.UpsertFeed(ctx, &database.Feed{URL: "https://fresh.example.com/rss", Name: "fresh"}); err != nil {
		t.Fatal(err)
	}

	w := s.do(http.MethodGet, "/api/feeds", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	body := w.Body.String()
	if !strings.Contains(body, `"total":2`) {
		t.Errorf("Expected 2 feeds, got: %s", body)
	}
	if !strings.Contains(body, `"stale":true`) || !strings.Contains(body, `"stale":false`) {
		t.Errorf("Expected one stale and one fresh feed, got: %s", body)
	}
}

func TestCreateFeed(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		fail   bool
		status int
	}{
		{"subscribed", `{"url":"https://example.com/rss","name":"Example"}`, false, http.StatusCreated},
		{"offline registers", `{"url":"https://example.com/rss"}`, true, http.StatusAccepted},
		{"missing url", `{"name":"no url"}`, false, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, "")
			s.subscriber.fail = tt.fail

			w := s.do(http.MethodPost, "/api/feeds", tt.body)
			if w.Code != tt.status {
				t.Errorf("Expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
		})
	}
}

func TestDeleteFeedAndArticles(t *testing.T) {
	s := newTestServer(t, "")
	ctx := context.Background()

	id, err := s.store.UpsertFeed(ctx, &database.Feed{URL: "https://example.com/rss"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.store.UpsertArticles(ctx, id, []database.ArticleInput{{Link: "https://example.com/1"}}); err != nil {
		t.Fatal(err)
	}

	w := s.do(http.MethodGet, "/api/feeds/"+id+"/articles", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if w.Header().Get("X-Feed-Items") != "1" {
		t.Errorf("Expected X-Feed-Items 1, got %s", w.Header().Get("X-Feed-Items"))
	}

	w = s.do(http.MethodGet, "/api/feeds/"+id+"/rss", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for RSS, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<link>https://example.com/1</link>") {
		t.Errorf("Expected stored article in RSS, got: %s", w.Body.String())
	}
	if !strings.Contains(w.Header().Get("Content-Type"), "application/rss+xml") {
		t.Errorf("Expected RSS content type, got %s", w.Header().Get("Content-Type"))
	}

	if w := s.do(http.MethodDelete, "/api/feeds/"+id, ""); w.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", w.Code)
	}

	if w := s.do(http.MethodGet, "/api/feeds/"+id+"/articles", ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", w.Code)
	}
	if w := s.do(http.MethodGet, "/api/feeds/"+id+"/rss", ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 RSS after delete, got %d", w.Code)
	}
	if w := s.do(http.MethodGet, "/api/articles", ""); !strings.Contains(w.Body.String(), `"total":0`) {
		t.Errorf("Expected no articles after delete, got: %s", w.Body.String())
	}
}

func TestTriggerSync(t *testing.T) {
	s := newTestServer(t, "")

	if w := s.do(http.MethodPost, "/api/sync", `{"tag":"sync-news-feeds"}`); w.Code != http.StatusAccepted {
		t.Errorf("Expected 202, got %d", w.Code)
	}
	if w := s.do(http.MethodPost, "/api/sync", `{"tag":"other"}`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown tag, got %d", w.Code)
	}
}

func TestPostMessage(t *testing.T) {
	s := newTestServer(t, "")

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"cache feeds", `{"type":"CACHE_FEEDS","feeds":[{"name":"hn"}]}`, http.StatusAccepted},
		{"sync feeds", `{"type":"SYNC_FEEDS"}`, http.StatusAccepted},
		{"unknown type", `{"type":"PING"}`, http.StatusBadRequest},
		{"missing type", `{"feeds":[]}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := s.do(http.MethodPost, "/api/messages", tt.body); w.Code != tt.status {
				t.Errorf("Expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
		})
	}
}

func TestGetSnapshot(t *testing.T) {
	s := newTestServer(t, "")

	if w := s.do(http.MethodGet, "/api/snapshot", ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 before any snapshot, got %d", w.Code)
	}

	if err := s.bridge.PutSnapshot(context.Background(), []string{"hn"}); err != nil {
		t.Fatal(err)
	}

	w := s.do(http.MethodGet, "/api/snapshot", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if w.Body.String() != `["hn"]` {
		t.Errorf("Expected snapshot body, got: %s", w.Body.String())
	}
}

func TestBridgeFallback(t *testing.T) {
	s := newTestServer(t, "")
	s.fetcher.routes["http://localhost:3000/index.html"] = &network.Response{
		URL:        "http://localhost:3000/index.html",
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"text/html"}},
		Body:       []byte("<html></html>"),
	}

	w := s.do(http.MethodGet, "/index.html", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if w.Header().Get("X-Cache-Status") != "MISS" {
		t.Errorf("Expected MISS, got %s", w.Header().Get("X-Cache-Status"))
	}

	w = s.do(http.MethodGet, "/index.html", "")
	if w.Header().Get("X-Cache-Status") != "HIT" {
		t.Errorf("Expected HIT, got %s", w.Header().Get("X-Cache-Status"))
	}
	if w.Body.String() != "<html></html>" {
		t.Errorf("Expected cached body, got: %s", w.Body.String())
	}

	if w := s.do(http.MethodGet, "/news.php?url=offline", ""); w.Code != http.StatusBadGateway {
		t.Errorf("Expected 502 for uncached offline feed, got %d", w.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t, "secret")

	tests := []struct {
		name    string
		headers []string
		status  int
	}{
		{"no key", nil, http.StatusUnauthorized},
		{"wrong key", []string{"X-API-Key", "nope"}, http.StatusUnauthorized},
		{"header key", []string{"X-API-Key", "secret"}, http.StatusOK},
		{"bearer key", []string{"Authorization", "Bearer secret"}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := s.do(http.MethodGet, "/api/feeds", "", tt.headers...); w.Code != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, w.Code)
			}
		})
	}

	if w := s.do(http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Errorf("Expected health to stay public, got %d", w.Code)
	}
}

func TestStreamEvents(t *testing.T) {
	s := newTestServer(t, "")
	server := httptest.NewServer(s.engine)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/events", nil)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan string, 1)
	go func() {
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			done <- ""
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line := scanner.Text(); strings.HasPrefix(line, "data:") {
				done <- line
				return
			}
		}
		done <- ""
	}()

	deadline := time.Now().Add(5 * time.Second)
	for s.hub.Listeners() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for event listener")
		}
		time.Sleep(10 * time.Millisecond)
	}

	s.hub.Broadcast(notify.FeedsSynced(time.Now()))

	select {
	case line := <-done:
		if !strings.Contains(line, notify.EventFeedsSynced) {
			t.Errorf("Expected FEEDS_SYNCED event, got: %q", line)
		}
	case <-ctx.Done():
		t.Fatal("Timed out waiting for event")
	}
}
