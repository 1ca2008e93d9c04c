package linker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/docutag/linker/models"
)

// Defaults for Config
const (
	DefaultMaxLinks            = 5
	DefaultCandidateLimit      = 10
	DefaultContentKeywordLimit = 20
	DefaultLinkPathPrefix      = "/blog/"
)

var tracer = otel.Tracer("github.com/docutag/linker")

// Config contains linking configuration
type Config struct {
	MaxLinks            int    // Newly inserted anchors per body
	CandidateLimit      int    // Candidate articles fetched per body
	ContentKeywordLimit int    // Body keywords used for retrieval
	LinkPathPrefix      string // Prefix joined with the target slug to form href
}

// DefaultConfig returns default linking configuration
func DefaultConfig() Config {
	return Config{
		MaxLinks:            DefaultMaxLinks,
		CandidateLimit:      DefaultCandidateLimit,
		ContentKeywordLimit: DefaultContentKeywordLimit,
		LinkPathPrefix:      DefaultLinkPathPrefix,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxLinks <= 0 {
		c.MaxLinks = d.MaxLinks
	}
	if c.CandidateLimit <= 0 {
		c.CandidateLimit = d.CandidateLimit
	}
	if c.ContentKeywordLimit <= 0 {
		c.ContentKeywordLimit = d.ContentKeywordLimit
	}
	if c.LinkPathPrefix == "" {
		c.LinkPathPrefix = d.LinkPathPrefix
	}
	return c
}

// ArticleGetter fetches a single article; it returns nil, nil when absent
type ArticleGetter interface {
	GetArticleByID(ctx context.Context, id int64) (*models.Article, error)
}

// ErrArticleNotFound is returned by RewriteArticle for unknown or unpublished ids
var ErrArticleNotFound = errors.New("article not found")

// Linker rewrites article bodies with internal links
type Linker struct {
	config   Config
	finder   *CandidateFinder
	inserter *LinkInserter
	articles ArticleGetter
	logger   *slog.Logger
	metrics  *Metrics
}

// Option configures a Linker
type Option func(*Linker)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(l *Linker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(metrics *Metrics) Option {
	return func(l *Linker) {
		l.metrics = metrics
	}
}

// WithArticleGetter enables RewriteArticle
func WithArticleGetter(articles ArticleGetter) Option {
	return func(l *Linker) {
		l.articles = articles
	}
}

// New creates a Linker that looks up candidates in source
func New(config Config, source CandidateSource, opts ...Option) *Linker {
	l := &Linker{
		config: config.withDefaults(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.finder = NewCandidateFinder(source, l.config.CandidateLimit, l.logger, l.metrics)
	l.inserter = NewLinkInserter(l.config)
	return l
}

// Config returns the effective configuration
func (l *Linker) Config() Config {
	return l.config
}

// Logger returns the configured logger
func (l *Linker) Logger() *slog.Logger {
	return l.logger
}

// Metrics returns the configured metrics sink, which may be nil
func (l *Linker) Metrics() *Metrics {
	return l.metrics
}

// Rewrite returns body with internal links to related published articles.
// excludeID is the id of the article being rewritten, or 0. The original
// body is returned whenever nothing can be linked or rewriting fails.
func (l *Linker) Rewrite(ctx context.Context, body, title string, excludeID int64) string {
	return l.RewriteDetailed(ctx, body, title, excludeID).Body
}

// RewriteDetailed is Rewrite reporting the links that were inserted
func (l *Linker) RewriteDetailed(ctx context.Context, body, title string, excludeID int64) (result models.RewriteResult) {
	result = models.RewriteResult{Body: body, Links: []models.LinkCandidate{}}

	ctx, span := tracer.Start(ctx, "linker.Rewrite")
	defer span.End()
	span.SetAttributes(attribute.Int64("article.id", excludeID))

	defer func() {
		if r := recover(); r != nil {
			l.logger.ErrorContext(ctx, "rewrite failed, keeping original body",
				"article_id", excludeID,
				"panic", fmt.Sprint(r),
			)
			result = models.RewriteResult{Body: body, Links: []models.LinkCandidate{}}
		}
	}()

	if strings.TrimSpace(body) == "" {
		return result
	}

	keywords := CombinedKeywords(title, body, l.config.ContentKeywordLimit)
	candidates := l.finder.FindCandidates(ctx, excludeID, keywords)
	if len(candidates) == 0 {
		l.metrics.observeRewrite(0)
		return result
	}

	newBody, links := l.inserter.InsertLinks(body, candidates, excludeID)
	l.metrics.observeRewrite(len(links))
	span.SetAttributes(attribute.Int("links.inserted", len(links)))

	if len(links) == 0 || newBody == body {
		return result
	}

	return models.RewriteResult{Body: newBody, Links: links, Changed: true}
}

// RewriteArticle previews the rewrite of a stored, published article without persisting it
func (l *Linker) RewriteArticle(ctx context.Context, id int64) (*models.Article, models.RewriteResult, error) {
	if l.articles == nil {
		return nil, models.RewriteResult{}, errors.New("linker: no article getter configured")
	}

	article, err := l.articles.GetArticleByID(ctx, id)
	if err != nil {
		return nil, models.RewriteResult{}, fmt.Errorf("failed to get article %d: %w", id, err)
	}
	if !article.IsPublished() {
		return nil, models.RewriteResult{}, fmt.Errorf("article %d: %w", id, ErrArticleNotFound)
	}

	return article, l.RewriteDetailed(ctx, article.Body, article.Title, article.ID), nil
}
