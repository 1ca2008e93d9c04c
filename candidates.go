package linker

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/docutag/linker/models"
)

// CandidateSource looks up published articles by title keywords.
// Matching is a case-insensitive substring test against the title only,
// results are ordered by publication time, newest first, and capped at limit.
// An excludeID of 0 excludes nothing.
type CandidateSource interface {
	FindPublishedByTitleKeywords(ctx context.Context, excludeID int64, keywords []string, limit int) ([]models.Article, error)
}

// PublishedLister is the listing half of ArticleStore
type PublishedLister interface {
	ListPublishedArticles(ctx context.Context) ([]models.Article, error)
}

// ListingSource implements CandidateSource in memory for stores that can
// only list published articles.
type ListingSource struct {
	Lister PublishedLister
}

// FindPublishedByTitleKeywords filters the full published listing
func (s ListingSource) FindPublishedByTitleKeywords(ctx context.Context, excludeID int64, keywords []string, limit int) ([]models.Article, error) {
	if len(keywords) == 0 {
		return []models.Article{}, nil
	}

	articles, err := s.Lister.ListPublishedArticles(ctx)
	if err != nil {
		return nil, err
	}

	matches := []models.Article{}
	for _, article := range articles {
		if !article.IsPublished() || (excludeID != 0 && article.ID == excludeID) {
			continue
		}
		title := strings.ToLower(article.Title)
		for _, kw := range keywords {
			if kw != "" && strings.Contains(title, strings.ToLower(kw)) {
				matches = append(matches, article)
				break
			}
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i].PublishedAt, matches[j].PublishedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// CandidateFinder retrieves link targets for an article. Lookup failures
// are logged and yield no candidates.
type CandidateFinder struct {
	source  CandidateSource
	limit   int
	logger  *slog.Logger
	metrics *Metrics
}

// NewCandidateFinder creates a finder over source
func NewCandidateFinder(source CandidateSource, limit int, logger *slog.Logger, metrics *Metrics) *CandidateFinder {
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CandidateFinder{
		source:  source,
		limit:   limit,
		logger:  logger,
		metrics: metrics,
	}
}

// FindCandidates returns published articles other than excludeID whose
// titles contain any keyword, newest first, at most the finder's limit.
func (f *CandidateFinder) FindCandidates(ctx context.Context, excludeID int64, keywords []string) []models.Article {
	if len(keywords) == 0 || f.source == nil {
		return []models.Article{}
	}

	ctx, span := tracer.Start(ctx, "linker.FindCandidates")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("article.id", excludeID),
		attribute.Int("keywords.count", len(keywords)),
	)

	found, err := f.source.FindPublishedByTitleKeywords(ctx, excludeID, keywords, f.limit)
	if err != nil {
		f.logger.WarnContext(ctx, "candidate lookup failed, linking nothing for this article",
			"article_id", excludeID,
			"error", err,
		)
		f.metrics.candidateLookupFailed()
		span.RecordError(err)
		span.SetStatus(codes.Error, "candidate lookup failed")
		return []models.Article{}
	}

	candidates := make([]models.Article, 0, len(found))
	for _, article := range found {
		if !article.IsPublished() || (excludeID != 0 && article.ID == excludeID) {
			continue
		}
		candidates = append(candidates, article)
		if len(candidates) == f.limit {
			break
		}
	}

	span.SetAttributes(attribute.Int("candidates.count", len(candidates)))
	return candidates
}
