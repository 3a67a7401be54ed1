package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const articleColumns = `id, feed_id, link, title, description, content, author, pub_date, created_at, updated_at`

// ArticleRepository handles database operations for articles
type ArticleRepository struct {
	db *DB
}

// NewArticleRepository creates a new article repository
func NewArticleRepository(db *DB) *ArticleRepository {
	return &ArticleRepository{db: db}
}

// UpsertArticles stores articles for an existing feed, deduplicated by link.
// Each article is written under its own savepoint: a failing item is
// recorded in the result and the rest of the batch proceeds. Only a failure
// of the surrounding transaction is returned as an error.
func (r *ArticleRepository) UpsertArticles(ctx context.Context, feedID string, articles []ArticleInput) (BatchResult, error) {
	result := BatchResult{Total: len(articles)}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin article batch: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.GetContext(ctx, &exists, `SELECT COUNT(*) FROM feeds WHERE id = ?`, feedID); err != nil {
		return result, fmt.Errorf("failed to check feed: %w", err)
	}
	if exists == 0 {
		return result, fmt.Errorf("failed to store articles for feed %s: %w", feedID, ErrNotFound)
	}

	now := time.Now().UTC()
	for i, article := range articles {
		if err := upsertArticle(ctx, tx, feedID, article, now); err != nil {
			slog.Warn("Failed to store article", "feed_id", feedID, "index", i, "link", article.Link, "error", err)
			result.Failed = append(result.Failed, BatchFailure{Index: i, Link: article.Link, Err: err})
			continue
		}
		result.Succeeded++
	}

	if err := tx.Commit(); err != nil {
		return BatchResult{Total: len(articles)}, fmt.Errorf("failed to commit article batch: %w", err)
	}

	return result, nil
}

func upsertArticle(ctx context.Context, tx *sqlx.Tx, feedID string, article ArticleInput, now time.Time) error {
	link := strings.TrimSpace(article.Link)
	if link == "" {
		return fmt.Errorf("link is required: %w", ErrInvalidArticle)
	}

	pubDate, err := NormalizePubDate(article)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `SAVEPOINT article`); err != nil {
		return fmt.Errorf("failed to open savepoint: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO articles (`+articleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (link) DO UPDATE SET
			feed_id = excluded.feed_id,
			title = excluded.title,
			description = excluded.description,
			content = excluded.content,
			author = excluded.author,
			pub_date = excluded.pub_date,
			updated_at = excluded.updated_at
	`, uuid.NewString(), feedID, link, article.Title, article.Description, article.Content,
		article.Author, pubDate, now, now)
	if err != nil {
		if _, rbErr := tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT article`); rbErr != nil {
			return fmt.Errorf("failed to upsert article: %w (rollback: %v)", err, rbErr)
		}
		if _, relErr := tx.ExecContext(ctx, `RELEASE SAVEPOINT article`); relErr != nil {
			return fmt.Errorf("failed to upsert article: %w (release: %v)", err, relErr)
		}
		return fmt.Errorf("failed to upsert article: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `RELEASE SAVEPOINT article`); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}

	return nil
}

// NormalizePubDate returns the UTC publication time of article, preferring
// Date over RawDate. It returns nil when neither is set.
func NormalizePubDate(article ArticleInput) (*time.Time, error) {
	if !article.Date.IsZero() {
		t := article.Date.UTC()
		return &t, nil
	}

	raw := strings.TrimSpace(article.RawDate)
	if raw == "" {
		return nil, nil
	}

	parsed, err := dateparse.ParseAny(raw)
	if err != nil {
		return nil, fmt.Errorf("unparseable pub date %q: %w", raw, ErrInvalidArticle)
	}

	t := parsed.UTC()
	return &t, nil
}

// ListArticlesByFeed returns every article of a feed, newest first
func (r *ArticleRepository) ListArticlesByFeed(ctx context.Context, feedID string) ([]Article, error) {
	articles := []Article{}
	err := r.db.SelectContext(ctx, &articles, `
		SELECT `+articleColumns+`
		FROM articles
		WHERE feed_id = ?
		ORDER BY COALESCE(pub_date, created_at) DESC
	`, feedID)
	if err != nil {
		return nil, fmt.Errorf("failed to get feed articles: %w", err)
	}
	return articles, nil
}

// ListAllArticles returns every stored article, newest first
func (r *ArticleRepository) ListAllArticles(ctx context.Context) ([]Article, error) {
	articles := []Article{}
	err := r.db.SelectContext(ctx, &articles, `
		SELECT `+articleColumns+`
		FROM articles
		ORDER BY COALESCE(pub_date, created_at) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all articles: %w", err)
	}
	return articles, nil
}

// CountArticles returns the total number of articles
func (r *ArticleRepository) CountArticles(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM articles`); err != nil {
		return 0, fmt.Errorf("failed to get article count: %w", err)
	}
	return count, nil
}
