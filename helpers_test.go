package linker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/docutag/linker/models"
)

var errPersist = errors.New("write rejected")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory ArticleStore
type memStore struct {
	mu       sync.Mutex
	articles map[int64]*models.Article
	failIDs  map[int64]bool
	listErr  error
	updates  []int64
	onUpdate func(id int64)
}

func newMemStore() *memStore {
	return &memStore{
		articles: map[int64]*models.Article{},
		failIDs:  map[int64]bool{},
	}
}

var baseTime = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

// add stores a published article; larger ids are published later
func (s *memStore) add(id int64, articleSlug, title, body string) *models.Article {
	published := baseTime.Add(time.Duration(id) * time.Hour)
	a := &models.Article{
		ID:          id,
		Slug:        articleSlug,
		Title:       title,
		Body:        body,
		Status:      models.StatusPublished,
		PublishedAt: &published,
		UpdatedAt:   published,
	}
	s.mu.Lock()
	s.articles[id] = a
	s.mu.Unlock()
	return a
}

func (s *memStore) addDraft(id int64, articleSlug, title, body string) *models.Article {
	a := &models.Article{ID: id, Slug: articleSlug, Title: title, Body: body, Status: models.StatusDraft}
	s.mu.Lock()
	s.articles[id] = a
	s.mu.Unlock()
	return a
}

func (s *memStore) ListPublishedArticles(ctx context.Context) ([]models.Article, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.Article{}
	for _, a := range s.articles {
		if a.Status == models.StatusPublished {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublishedAt.After(*out[j].PublishedAt) })
	return out, nil
}

func (s *memStore) GetArticleByID(ctx context.Context, id int64) (*models.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.articles[id]
	if !ok {
		return nil, nil
	}
	copied := *a
	return &copied, nil
}

func (s *memStore) UpdateArticleBody(ctx context.Context, id int64, body string, updatedAt time.Time) (*models.Article, error) {
	if s.onUpdate != nil {
		defer s.onUpdate(id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failIDs[id] {
		return nil, errPersist
	}
	a, ok := s.articles[id]
	if !ok {
		return nil, errors.New("missing")
	}
	a.Body = body
	a.UpdatedAt = updatedAt
	s.updates = append(s.updates, id)
	copied := *a
	return &copied, nil
}

func (s *memStore) body(id int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.articles[id].Body
}

// failingSource always fails candidate lookups
type failingSource struct{ calls int }

func (f *failingSource) FindPublishedByTitleKeywords(ctx context.Context, excludeID int64, keywords []string, limit int) ([]models.Article, error) {
	f.calls++
	return nil, errors.New("connection refused")
}

// panickingSource simulates a bug deep in a lookup
type panickingSource struct{}

func (panickingSource) FindPublishedByTitleKeywords(ctx context.Context, excludeID int64, keywords []string, limit int) ([]models.Article, error) {
	panic("unexpected nil map")
}

// fixedSource returns the same articles for every lookup
type fixedSource struct {
	articles []models.Article
	calls    int
}

func (f *fixedSource) FindPublishedByTitleKeywords(ctx context.Context, excludeID int64, keywords []string, limit int) ([]models.Article, error) {
	f.calls++
	return f.articles, nil
}

func newTestLinker(source CandidateSource, opts ...Option) *Linker {
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	return New(DefaultConfig(), source, opts...)
}

func published(id int64, articleSlug, title string) models.Article {
	at := baseTime.Add(time.Duration(id) * time.Hour)
	return models.Article{ID: id, Slug: articleSlug, Title: title, Status: models.StatusPublished, PublishedAt: &at}
}
