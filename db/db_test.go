package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/docutag/linker/models"
)

// setupTestDB opens a migrated SQLite database in a temp directory
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(Config{
		Driver: DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createArticle(t *testing.T, db *DB, title, body string, status models.Status, publishedAt time.Time) *models.Article {
	t.Helper()

	article := &models.Article{Title: title, Body: body, Status: status}
	if status == models.StatusPublished {
		at := publishedAt.UTC()
		article.PublishedAt = &at
	}
	if err := db.CreateArticle(context.Background(), article); err != nil {
		t.Fatalf("Failed to create article %q: %v", title, err)
	}
	return article
}

func TestRebind(t *testing.T) {
	tests := []struct {
		name   string
		driver string
		query  string
		want   string
	}{
		{"postgres", DriverPostgres, "SELECT * FROM a WHERE x = ? AND y = ?", "SELECT * FROM a WHERE x = $1 AND y = $2"},
		{"sqlite untouched", DriverSQLite, "SELECT * FROM a WHERE x = ?", "SELECT * FROM a WHERE x = ?"},
		{"no placeholders", DriverPostgres, "SELECT 1", "SELECT 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rebind(tt.driver, tt.query); got != tt.want {
				t.Errorf("rebind(%q) = %q, want %q", tt.query, got, tt.want)
			}
		})
	}
}

func TestNewUnsupportedDriver(t *testing.T) {
	if _, err := New(Config{Driver: "mysql", DSN: "x"}); err == nil {
		t.Fatal("Expected error for unsupported driver, got nil")
	}
}

func TestMigrationStatus(t *testing.T) {
	db := setupTestDB(t)

	status, err := GetMigrationStatus(db.DB(), DriverSQLite)
	if err != nil {
		t.Fatalf("Failed to get migration status: %v", err)
	}
	if len(status) != len(sqliteMigrations) {
		t.Fatalf("Expected %d migrations, got %d", len(sqliteMigrations), len(status))
	}
	for _, s := range status {
		if !s.Applied {
			t.Errorf("Migration %d (%s) should be applied", s.Version, s.Name)
		}
	}

	if err := Rollback(db.DB(), DriverSQLite); err != nil {
		t.Fatalf("Failed to roll back: %v", err)
	}
	status, err = GetMigrationStatus(db.DB(), DriverSQLite)
	if err != nil {
		t.Fatalf("Failed to get migration status: %v", err)
	}
	if status[len(status)-1].Applied {
		t.Error("Last migration should not be applied after rollback")
	}
}

func TestCreateArticleAssignsUniqueSlugs(t *testing.T) {
	db := setupTestDB(t)
	now := time.Now()

	first := createArticle(t, db, "Dragon Quest Review", "<p>one</p>", models.StatusPublished, now)
	second := createArticle(t, db, "Dragon Quest Review", "<p>two</p>", models.StatusPublished, now)

	if first.ID == 0 || second.ID == 0 {
		t.Fatal("Expected generated IDs")
	}
	if first.Slug != "dragon-quest-review" {
		t.Errorf("Expected slug dragon-quest-review, got %s", first.Slug)
	}
	if second.Slug != "dragon-quest-review-1" {
		t.Errorf("Expected slug dragon-quest-review-1, got %s", second.Slug)
	}

	got, err := db.GetArticleBySlug(context.Background(), second.Slug)
	if err != nil {
		t.Fatalf("Failed to get article by slug: %v", err)
	}
	if got == nil || got.ID != second.ID {
		t.Fatalf("Expected article %d, got %+v", second.ID, got)
	}
}

func TestGetArticleByID(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	created := createArticle(t, db, "Zelda Retrospective", "<p>body</p>", models.StatusPublished, time.Now())

	got, err := db.GetArticleByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("Failed to get article: %v", err)
	}
	if got == nil {
		t.Fatal("GetArticleByID returned nil")
	}
	if got.Title != created.Title || got.Body != created.Body || got.Status != models.StatusPublished {
		t.Errorf("Unexpected article: %+v", got)
	}
	if got.PublishedAt == nil {
		t.Error("Expected published_at to be set")
	}

	missing, err := db.GetArticleByID(ctx, 9999)
	if err != nil {
		t.Fatalf("Unexpected error for missing article: %v", err)
	}
	if missing != nil {
		t.Error("Expected nil for missing article")
	}
}

func TestListPublishedArticles(t *testing.T) {
	db := setupTestDB(t)
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	older := createArticle(t, db, "Older Post", "", models.StatusPublished, base)
	newer := createArticle(t, db, "Newer Post", "", models.StatusPublished, base.Add(48*time.Hour))
	createArticle(t, db, "Draft Post", "", models.StatusDraft, time.Time{})

	articles, err := db.ListPublishedArticles(context.Background())
	if err != nil {
		t.Fatalf("Failed to list articles: %v", err)
	}
	if len(articles) != 2 {
		t.Fatalf("Expected 2 published articles, got %d", len(articles))
	}
	if articles[0].ID != newer.ID || articles[1].ID != older.ID {
		t.Errorf("Expected newest first, got %d then %d", articles[0].ID, articles[1].ID)
	}

	count, err := db.CountPublished(context.Background())
	if err != nil {
		t.Fatalf("Failed to count articles: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected count 2, got %d", count)
	}
}

func TestFindPublishedByTitleKeywords(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	self := createArticle(t, db, "Dragon Quest Review", "", models.StatusPublished, base)
	tips := createArticle(t, db, "Dragon Quest Tips and Tricks", "", models.StatusPublished, base.Add(time.Hour))
	zelda := createArticle(t, db, "ZELDA Speedrun Notes", "", models.StatusPublished, base.Add(2*time.Hour))
	createArticle(t, db, "Dragon Draft", "", models.StatusDraft, time.Time{})
	createArticle(t, db, "Unrelated Racing", "mentions dragon in body only", models.StatusPublished, base.Add(3*time.Hour))

	t.Run("excludes self and drafts, title only", func(t *testing.T) {
		got, err := db.FindPublishedByTitleKeywords(ctx, self.ID, []string{"dragon", "zelda"}, 10)
		if err != nil {
			t.Fatalf("Failed to find candidates: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("Expected 2 candidates, got %d: %+v", len(got), got)
		}
		if got[0].ID != zelda.ID || got[1].ID != tips.ID {
			t.Errorf("Expected zelda then tips, got %d then %d", got[0].ID, got[1].ID)
		}
	})

	t.Run("limit caps results", func(t *testing.T) {
		got, err := db.FindPublishedByTitleKeywords(ctx, 0, []string{"dragon"}, 1)
		if err != nil {
			t.Fatalf("Failed to find candidates: %v", err)
		}
		if len(got) != 1 || got[0].ID != tips.ID {
			t.Errorf("Expected only the most recent match, got %+v", got)
		}
	})

	t.Run("no keywords means no query", func(t *testing.T) {
		got, err := db.FindPublishedByTitleKeywords(ctx, 0, nil, 10)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("Expected no candidates, got %d", len(got))
		}
	})
}

func TestUpdateArticleBody(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	created := createArticle(t, db, "Zelda Retrospective", "<p>old</p>", models.StatusPublished, time.Now())

	updatedAt := time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)
	updated, err := db.UpdateArticleBody(ctx, created.ID, "<p>new</p>", updatedAt)
	if err != nil {
		t.Fatalf("Failed to update body: %v", err)
	}
	if updated.Body != "<p>new</p>" {
		t.Errorf("Expected new body, got %q", updated.Body)
	}
	if !updated.UpdatedAt.Equal(updatedAt) {
		t.Errorf("Expected updated_at %v, got %v", updatedAt, updated.UpdatedAt)
	}

	_, err = db.UpdateArticleBody(ctx, 9999, "<p>x</p>", updatedAt)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
