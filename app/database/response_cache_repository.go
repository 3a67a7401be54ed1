package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type cachedResponseRow struct {
	CacheName string    `db:"cache_name"`
	Method    string    `db:"method"`
	URL       string    `db:"url"`
	Status    int       `db:"status"`
	Header    string    `db:"header"`
	Body      []byte    `db:"body"`
	StoredAt  time.Time `db:"stored_at"`
}

// ResponseCacheRepository persists named caches of HTTP responses keyed by
// request method and URL.
type ResponseCacheRepository struct {
	db *DB
}

func NewResponseCacheRepository(db *DB) *ResponseCacheRepository {
	return &ResponseCacheRepository{db: db}
}

// CacheNames lists every existing cache, oldest first
func (r *ResponseCacheRepository) CacheNames(ctx context.Context) ([]string, error) {
	names := []string{}
	if err := r.db.SelectContext(ctx, &names, `SELECT name FROM caches ORDER BY created_at, name`); err != nil {
		return nil, fmt.Errorf("failed to list caches: %w", err)
	}
	return names, nil
}

// OpenCache creates the named cache if it does not exist yet
func (r *ResponseCacheRepository) OpenCache(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO caches (name, created_at) VALUES (?, ?)
		ON CONFLICT (name) DO NOTHING
	`, name, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to open cache %s: %w", name, err)
	}
	return nil
}

// DeleteCache drops a cache with all of its entries and reports whether it existed
func (r *ResponseCacheRepository) DeleteCache(ctx context.Context, name string) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin cache delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cached_responses WHERE cache_name = ?`, name); err != nil {
		return false, fmt.Errorf("failed to delete cached responses: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM caches WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("failed to delete cache %s: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit cache delete: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return rows > 0, nil
}

// Match returns the stored response for method and url, or ErrCacheMiss
func (r *ResponseCacheRepository) Match(ctx context.Context, cacheName, method, url string) (*CachedResponse, error) {
	var row cachedResponseRow
	err := r.db.GetContext(ctx, &row, `
		SELECT cache_name, method, url, status, header, body, stored_at
		FROM cached_responses
		WHERE cache_name = ? AND method = ? AND url = ?
	`, cacheName, method, url)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to match cached response: %w", err)
	}

	header := http.Header{}
	if row.Header != "" {
		if err := json.UnmarshalFromString(row.Header, &header); err != nil {
			return nil, fmt.Errorf("failed to decode cached header: %w", err)
		}
	}

	return &CachedResponse{
		CacheName: row.CacheName,
		Method:    row.Method,
		URL:       row.URL,
		Status:    row.Status,
		Header:    header,
		Body:      row.Body,
		StoredAt:  row.StoredAt,
	}, nil
}

// Put stores resp in its cache, creating the cache if needed and replacing
// any previous response for the same request.
func (r *ResponseCacheRepository) Put(ctx context.Context, resp CachedResponse) error {
	if resp.Header == nil {
		resp.Header = http.Header{}
	}
	header, err := json.MarshalToString(resp.Header)
	if err != nil {
		return fmt.Errorf("failed to encode header: %w", err)
	}

	storedAt := resp.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cache put: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO caches (name, created_at) VALUES (?, ?)
		ON CONFLICT (name) DO NOTHING
	`, resp.CacheName, storedAt)
	if err != nil {
		return fmt.Errorf("failed to open cache %s: %w", resp.CacheName, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cached_responses (cache_name, method, url, status, header, body, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (cache_name, method, url) DO UPDATE SET
			status = excluded.status,
			header = excluded.header,
			body = excluded.body,
			stored_at = excluded.stored_at
	`, resp.CacheName, resp.Method, resp.URL, resp.Status, header, resp.Body, storedAt)
	if err != nil {
		return fmt.Errorf("failed to store cached response: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cache put: %w", err)
	}

	return nil
}
