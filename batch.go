package linker

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/docutag/linker/models"
	"github.com/docutag/linker/slug"
)

// ErrRunInProgress is returned when a batch run is started while another is running
var ErrRunInProgress = errors.New("batch linking run already in progress")

// ErrNoArchive is returned by Restore when the job has no archive
var ErrNoArchive = errors.New("no revision archive configured")

// ErrRevisionMismatch is returned by Restore for a key archived from another article
var ErrRevisionMismatch = errors.New("revision does not belong to article")

// ArticleStore is the article store the batch job sweeps
type ArticleStore interface {
	PublishedLister
	ArticleGetter
	UpdateArticleBody(ctx context.Context, id int64, body string, updatedAt time.Time) (*models.Article, error)
}

// Archive keeps a copy of a body before the batch job overwrites it.
// Keys end in "{slug}/{name}", as produced by SaveRevision.
type Archive interface {
	SaveRevision(ctx context.Context, article models.Article, runID string) (string, error)
	ReadRevision(ctx context.Context, key string) (string, error)
	DeleteRevision(ctx context.Context, key string) error
}

// RunState is the lifecycle state of a BatchJob
type RunState int

const (
	StateNotStarted RunState = iota
	StateRunning
	StateCompleted
)

func (s RunState) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("RunState(%d)", int(s))
	}
}

// RunOptions tune a single batch run
type RunOptions struct {
	DryRun bool // count would-be updates without persisting
}

// BatchJob sweeps every published article once, sequentially
type BatchJob struct {
	store   ArticleStore
	linker  *Linker
	archive Archive
	now     func() time.Time

	mu    sync.Mutex
	state RunState
	last  *models.RunStats
}

// JobOption configures a BatchJob
type JobOption func(*BatchJob)

// WithArchive stores each original body before it is replaced
func WithArchive(archive Archive) JobOption {
	return func(j *BatchJob) {
		j.archive = archive
	}
}

// WithClock overrides the time source used for updatedAt and run timestamps
func WithClock(clock func() time.Time) JobOption {
	return func(j *BatchJob) {
		if clock != nil {
			j.now = clock
		}
	}
}

// NewBatchJob creates a batch job over store
func NewBatchJob(store ArticleStore, linker *Linker, opts ...JobOption) *BatchJob {
	j := &BatchJob{
		store:  store,
		linker: linker,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// State returns the current lifecycle state
func (j *BatchJob) State() RunState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// LastRun returns the stats of the most recent finished run
func (j *BatchJob) LastRun() (models.RunStats, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.last == nil {
		return models.RunStats{}, false
	}
	return *j.last, true
}

// Run performs one full sweep and persists changed bodies
func (j *BatchJob) Run(ctx context.Context) (models.RunStats, error) {
	return j.RunWithOptions(ctx, RunOptions{})
}

// RunWithOptions performs one full sweep. A failure to list articles is
// returned as an error with empty stats. Per-article failures are counted in
// Errors and the sweep continues. When ctx is cancelled the sweep stops
// before the next article and returns the partial stats with ctx.Err();
// bodies already persisted stay persisted.
func (j *BatchJob) RunWithOptions(ctx context.Context, opts RunOptions) (stats models.RunStats, err error) {
	j.mu.Lock()
	if j.state == StateRunning {
		j.mu.Unlock()
		return models.RunStats{}, ErrRunInProgress
	}
	j.state = StateRunning
	j.mu.Unlock()

	startedAt := j.now().UTC()
	stats = models.RunStats{
		RunID:     uuid.NewString(),
		DryRun:    opts.DryRun,
		StartedAt: startedAt,
	}
	logger := j.linker.Logger().With("run_id", stats.RunID)
	metrics := j.linker.Metrics()

	ctx, span := tracer.Start(ctx, "linker.BatchRun")
	defer span.End()
	span.SetAttributes(
		attribute.String("run.id", stats.RunID),
		attribute.Bool("run.dry_run", opts.DryRun),
	)

	status := "completed"
	defer func() {
		finishedAt := j.now().UTC()
		metrics.observeRun(status, finishedAt.Sub(startedAt).Seconds())

		j.mu.Lock()
		defer j.mu.Unlock()
		j.state = StateCompleted
		if status == "failed" {
			return
		}
		stats.FinishedAt = finishedAt
		last := stats
		j.last = &last
	}()

	logger.InfoContext(ctx, "batch linking run started", "dry_run", opts.DryRun)

	articles, listErr := j.store.ListPublishedArticles(ctx)
	if listErr != nil {
		status = "failed"
		span.RecordError(listErr)
		span.SetStatus(codes.Error, "listing published articles failed")
		logger.ErrorContext(ctx, "batch linking run aborted", "error", listErr)
		return models.RunStats{}, fmt.Errorf("failed to list published articles: %w", listErr)
	}

	for _, article := range articles {
		if ctxErr := ctx.Err(); ctxErr != nil {
			status = "cancelled"
			logger.WarnContext(ctx, "batch linking run cancelled",
				"processed", stats.Total,
				"remaining", len(articles)-stats.Total,
			)
			span.SetStatus(codes.Error, "cancelled")
			return stats, ctxErr
		}

		stats.Total++
		outcome := j.processArticle(ctx, article, stats.RunID, opts)
		metrics.observeArticle(outcome)
		switch outcome {
		case OutcomeUpdated:
			stats.Updated++
		case OutcomeSkipped:
			stats.Skipped++
		default:
			stats.Errors++
		}
	}

	span.SetAttributes(
		attribute.Int("run.total", stats.Total),
		attribute.Int("run.updated", stats.Updated),
		attribute.Int("run.skipped", stats.Skipped),
		attribute.Int("run.errors", stats.Errors),
	)
	logger.InfoContext(ctx, "batch linking run completed",
		"total", stats.Total,
		"updated", stats.Updated,
		"skipped", stats.Skipped,
		"errors", stats.Errors,
	)

	return stats, nil
}

// processArticle rewrites one article and reports its outcome
func (j *BatchJob) processArticle(ctx context.Context, article models.Article, runID string, opts RunOptions) string {
	logger := j.linker.Logger().With("run_id", runID, "article_id", article.ID)

	if !article.IsPublished() || strings.TrimSpace(article.Body) == "" {
		return OutcomeSkipped
	}

	newBody := j.linker.Rewrite(ctx, article.Body, article.Title, article.ID)
	if newBody == article.Body {
		return OutcomeSkipped
	}

	if opts.DryRun {
		logger.DebugContext(ctx, "dry run, body not persisted")
		return OutcomeUpdated
	}

	var key string
	if j.archive != nil {
		var err error
		key, err = j.archive.SaveRevision(ctx, article, runID)
		if err != nil {
			logger.ErrorContext(ctx, "failed to archive original body, leaving article untouched", "error", err)
			return OutcomeError
		}
		logger.DebugContext(ctx, "original body archived", "key", key)
	}

	if _, err := j.store.UpdateArticleBody(ctx, article.ID, newBody, j.now().UTC()); err != nil {
		logger.ErrorContext(ctx, "failed to persist linked body", "error", err)
		if key != "" {
			// stored body is unchanged; its revision is dead weight
			if delErr := j.archive.DeleteRevision(ctx, key); delErr != nil {
				logger.WarnContext(ctx, "failed to remove unused revision", "key", key, "error", delErr)
			}
		}
		return OutcomeError
	}

	logger.InfoContext(ctx, "article body updated with internal links")
	return OutcomeUpdated
}

// Restore puts an archived body back on article id. The key must come from
// that article's own revisions.
func (j *BatchJob) Restore(ctx context.Context, id int64, key string) (*models.Article, error) {
	if j.archive == nil {
		return nil, ErrNoArchive
	}

	article, err := j.store.GetArticleByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get article %d: %w", id, err)
	}
	if article == nil {
		return nil, fmt.Errorf("article %d: %w", id, ErrArticleNotFound)
	}

	owner := slug.GenerateWithFallback(article.Slug, fmt.Sprintf("article-%d", article.ID))
	if path.Base(path.Dir(key)) != owner {
		return nil, fmt.Errorf("revision %q: %w", key, ErrRevisionMismatch)
	}

	body, err := j.archive.ReadRevision(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read revision: %w", err)
	}

	restored, err := j.store.UpdateArticleBody(ctx, id, body, j.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to restore article body: %w", err)
	}

	j.linker.Logger().InfoContext(ctx, "article body restored from revision", "article_id", id, "key", key)
	return restored, nil
}
