package models

import "time"

// Status is the publication state of an article
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// Article represents a blog post owned by the article store
type Article struct {
	ID          int64      `json:"id"`
	Slug        string     `json:"slug"`
	Title       string     `json:"title"`
	Body        string     `json:"body"` // HTML fragment
	Status      Status     `json:"status"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsPublished reports whether the article may be used as a link target
func (a *Article) IsPublished() bool {
	return a != nil && a.Status == StatusPublished
}

// Keyword is a normalized word with its frequency in the text it came from
type Keyword struct {
	Text      string `json:"text"`
	Frequency int    `json:"frequency"`
}

// LinkCandidate pairs a target article with the keyword that produced its link
type LinkCandidate struct {
	Target         Article `json:"target"`
	MatchedKeyword string  `json:"matched_keyword"`
}

// RewriteResult is the outcome of rewriting a single body
type RewriteResult struct {
	Body    string          `json:"body"`
	Links   []LinkCandidate `json:"links"`
	Changed bool            `json:"changed"`
}

// RunStats summarizes one batch linking sweep.
// Total always equals Updated + Skipped + Errors.
type RunStats struct {
	RunID      string    `json:"run_id"`
	Total      int       `json:"total"`
	Updated    int       `json:"updated"`
	Skipped    int       `json:"skipped"`
	Errors     int       `json:"errors"`
	DryRun     bool      `json:"dry_run"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Consistent reports whether the counters add up
func (s RunStats) Consistent() bool {
	return s.Total == s.Updated+s.Skipped+s.Errors
}
