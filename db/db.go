package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/docutag/linker/models"
	"github.com/docutag/linker/slug"
)

// Supported drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ErrNotFound is returned by writes that target a missing article
var ErrNotFound = errors.New("article not found")

// DB wraps the database connection and implements the article store
type DB struct {
	conn   *sql.DB
	driver string
	now    func() time.Time
}

// Config contains database configuration
type Config struct {
	Driver string // "postgres" or "sqlite"
	DSN    string // connection string or SQLite file path
}

// DefaultConfig returns a local SQLite configuration
func DefaultConfig() Config {
	return Config{
		Driver: DriverSQLite,
		DSN:    "linker.db",
	}
}

// New creates a new database connection and applies pending migrations
func New(config Config) (*DB, error) {
	if config.Driver == "" {
		config.Driver = DriverPostgres
	}
	if config.Driver != DriverPostgres && config.Driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver: %q", config.Driver)
	}

	conn, err := sql.Open(config.Driver, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if config.Driver == DriverSQLite {
		// SQLite allows a single writer
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(25)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := Migrate(conn, config.Driver); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DB{conn: conn, driver: config.Driver, now: time.Now}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// DB returns the underlying database connection for metrics collection
func (db *DB) DB() *sql.DB {
	return db.conn
}

// Driver returns the configured driver name
func (db *DB) Driver() string {
	return db.driver
}

// rebind rewrites ? placeholders into $n for PostgreSQL
func rebind(driver, query string) string {
	if driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

const articleColumns = "id, slug, title, body, status, published_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (*models.Article, error) {
	var (
		article     models.Article
		status      string
		publishedAt sql.NullTime
		updatedAt   sql.NullTime
	)

	if err := row.Scan(&article.ID, &article.Slug, &article.Title, &article.Body, &status, &publishedAt, &updatedAt); err != nil {
		return nil, err
	}

	article.Status = models.Status(status)
	if publishedAt.Valid {
		t := publishedAt.Time.UTC()
		article.PublishedAt = &t
	}
	if updatedAt.Valid {
		article.UpdatedAt = updatedAt.Time.UTC()
	}

	return &article, nil
}

func (db *DB) queryArticles(ctx context.Context, query string, args ...any) ([]models.Article, error) {
	rows, err := db.conn.QueryContext(ctx, rebind(db.driver, query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	results := []models.Article{}
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, *article)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return results, nil
}

// CreateArticle inserts an article, deriving a unique slug from the title when none is set.
// The generated ID and slug are written back into article.
func (db *DB) CreateArticle(ctx context.Context, article *models.Article) error {
	if article.Status == "" {
		article.Status = models.StatusDraft
	}

	base := article.Slug
	if base == "" {
		base = slug.GenerateWithFallback(article.Title, "article")
	}
	unique, err := slug.Unique(base, func(candidate string) (bool, error) {
		return db.slugExists(ctx, candidate)
	})
	if err != nil {
		return fmt.Errorf("failed to allocate slug: %w", err)
	}
	article.Slug = unique

	if article.Status == models.StatusPublished && article.PublishedAt == nil {
		now := db.now().UTC()
		article.PublishedAt = &now
	}
	article.UpdatedAt = db.now().UTC()

	var publishedAt any
	if article.PublishedAt != nil {
		publishedAt = article.PublishedAt.UTC()
	}

	query := `
		INSERT INTO articles (slug, title, body, status, published_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	err = db.conn.QueryRowContext(ctx, rebind(db.driver, query),
		article.Slug,
		article.Title,
		article.Body,
		string(article.Status),
		publishedAt,
		article.UpdatedAt,
	).Scan(&article.ID)
	if err != nil {
		return fmt.Errorf("failed to insert article: %w", err)
	}

	return nil
}

func (db *DB) slugExists(ctx context.Context, s string) (bool, error) {
	var exists bool
	query := "SELECT EXISTS(SELECT 1 FROM articles WHERE slug = ?)"
	if err := db.conn.QueryRowContext(ctx, rebind(db.driver, query), s).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check slug existence: %w", err)
	}
	return exists, nil
}

// GetArticleByID retrieves an article by ID; it returns nil, nil when absent
func (db *DB) GetArticleByID(ctx context.Context, id int64) (*models.Article, error) {
	query := "SELECT " + articleColumns + " FROM articles WHERE id = ?"
	article, err := scanArticle(db.conn.QueryRowContext(ctx, rebind(db.driver, query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query article: %w", err)
	}
	return article, nil
}

// GetArticleBySlug retrieves an article by slug; it returns nil, nil when absent
func (db *DB) GetArticleBySlug(ctx context.Context, s string) (*models.Article, error) {
	query := "SELECT " + articleColumns + " FROM articles WHERE slug = ?"
	article, err := scanArticle(db.conn.QueryRowContext(ctx, rebind(db.driver, query), s))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query article by slug: %w", err)
	}
	return article, nil
}

// ListPublishedArticles returns every published article, most recently published first
func (db *DB) ListPublishedArticles(ctx context.Context) ([]models.Article, error) {
	query := "SELECT " + articleColumns + " FROM articles WHERE status = ? ORDER BY published_at DESC NULLS LAST, id DESC"
	return db.queryArticles(ctx, query, string(models.StatusPublished))
}

// FindPublishedByTitleKeywords returns published articles whose title contains any keyword
// (case-insensitive substring), excluding excludeID, most recently published first.
// An excludeID of 0 excludes nothing.
func (db *DB) FindPublishedByTitleKeywords(ctx context.Context, excludeID int64, keywords []string, limit int) ([]models.Article, error) {
	var (
		clauses []string
		args    = []any{string(models.StatusPublished), excludeID}
	)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		clauses = append(clauses, "LOWER(title) LIKE ?")
		args = append(args, "%"+kw+"%")
	}
	if len(clauses) == 0 {
		return []models.Article{}, nil
	}

	query := "SELECT " + articleColumns + " FROM articles WHERE status = ? AND id <> ? AND (" +
		strings.Join(clauses, " OR ") + ") ORDER BY published_at DESC NULLS LAST, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	return db.queryArticles(ctx, query, args...)
}

// UpdateArticleBody persists a new body and update timestamp
func (db *DB) UpdateArticleBody(ctx context.Context, id int64, body string, updatedAt time.Time) (*models.Article, error) {
	result, err := db.conn.ExecContext(ctx,
		rebind(db.driver, "UPDATE articles SET body = ?, updated_at = ? WHERE id = ?"),
		body, updatedAt.UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update article body: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("article %d: %w", id, ErrNotFound)
	}

	article, err := db.GetArticleByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if article == nil {
		return nil, fmt.Errorf("article %d: %w", id, ErrNotFound)
	}
	return article, nil
}

// CountPublished returns the number of published articles
func (db *DB) CountPublished(ctx context.Context) (int, error) {
	var count int
	query := "SELECT COUNT(*) FROM articles WHERE status = ?"
	if err := db.conn.QueryRowContext(ctx, rebind(db.driver, query), string(models.StatusPublished)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count articles: %w", err)
	}
	return count, nil
}
