package models

import (
	"encoding/json"
	"testing"
	"time"
)

// TestArticleJSONPublishedAt verifies that published_at is omitted for unpublished drafts
func TestArticleJSONPublishedAt(t *testing.T) {
	now := time.Now().UTC()

	published := &Article{
		ID:          1,
		Slug:        "dragon-quest-review",
		Title:       "Dragon Quest Review",
		Status:      StatusPublished,
		PublishedAt: &now,
	}

	jsonBytes, err := json.Marshal(published)
	if err != nil {
		t.Fatalf("Failed to marshal published article: %v", err)
	}

	var unmarshaled map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &unmarshaled); err != nil {
		t.Fatalf("Failed to unmarshal JSON: %v", err)
	}
	if _, exists := unmarshaled["published_at"]; !exists {
		t.Error("published_at field is missing from JSON")
	}
	if unmarshaled["status"] != "published" {
		t.Errorf("Expected status published, got %v", unmarshaled["status"])
	}

	draft := &Article{ID: 2, Slug: "draft", Title: "Draft", Status: StatusDraft}
	jsonBytes, err = json.Marshal(draft)
	if err != nil {
		t.Fatalf("Failed to marshal draft article: %v", err)
	}

	var unmarshaledDraft map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &unmarshaledDraft); err != nil {
		t.Fatalf("Failed to unmarshal JSON: %v", err)
	}
	if _, exists := unmarshaledDraft["published_at"]; exists {
		t.Error("published_at field should be omitted when nil")
	}
}

func TestArticleIsPublished(t *testing.T) {
	var nilArticle *Article
	if nilArticle.IsPublished() {
		t.Error("nil article should not be published")
	}
	if (&Article{Status: StatusDraft}).IsPublished() {
		t.Error("draft should not be published")
	}
	if !(&Article{Status: StatusPublished}).IsPublished() {
		t.Error("published article should be published")
	}
}

func TestRunStatsConsistent(t *testing.T) {
	tests := []struct {
		name  string
		stats RunStats
		want  bool
	}{
		{"empty", RunStats{}, true},
		{"balanced", RunStats{Total: 10, Updated: 6, Skipped: 3, Errors: 1}, true},
		{"missing error", RunStats{Total: 10, Updated: 6, Skipped: 3}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.stats.Consistent(); got != tt.want {
				t.Errorf("Consistent() = %v, want %v", got, tt.want)
			}
		})
	}
}
