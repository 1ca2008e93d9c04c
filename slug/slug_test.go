package slug

import (
	"errors"
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"basic title", "Dragon Quest Review", "dragon-quest-review"},
		{"with punctuation", "Dragon Quest: Tips & Tricks!", "dragon-quest-tips-tricks"},
		{"with multiple spaces", "Dragon   Quest   Tips", "dragon-quest-tips"},
		{"with diacritics", "Pokémon Café Guide", "pokemon-cafe-guide"},
		{"with leading/trailing spaces", "  Zelda Retrospective  ", "zelda-retrospective"},
		{"with underscores", "speed_run_notes", "speed-run-notes"},
		{"empty string", "", ""},
		{"only special characters", "@#$%^&*()", ""},
		{"cyrillic characters", "Привет Мир", ""},
		{"numbers kept", "Top 10 RPGs of 2024", "top-10-rpgs-of-2024"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Generate(tt.input)
			if result != tt.expected {
				t.Errorf("Generate(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestGenerateLength(t *testing.T) {
	longInput := strings.Repeat("final fantasy retrospective ", 10)

	result := Generate(longInput)
	if len(result) > MaxLength {
		t.Errorf("Slug length %d exceeds maximum of %d characters", len(result), MaxLength)
	}
	if strings.HasSuffix(result, "-") {
		t.Errorf("Slug %q should not end with a hyphen after truncation", result)
	}
}

func TestGenerateWithFallback(t *testing.T) {
	tests := []struct {
		name     string
		primary  string
		fallback string
		expected string
	}{
		{"use primary when valid", "Dragon Quest", "article-1", "dragon-quest"},
		{"use fallback when primary only special chars", "@#$%", "article-1", "article-1"},
		{"both empty returns empty", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GenerateWithFallback(tt.primary, tt.fallback)
			if result != tt.expected {
				t.Errorf("GenerateWithFallback(%q, %q) = %q, want %q", tt.primary, tt.fallback, result, tt.expected)
			}
		})
	}
}

func TestFold(t *testing.T) {
	if got := Fold("Pokémon Señor"); got != "Pokemon Senor" {
		t.Errorf("Fold() = %q, want %q", got, "Pokemon Senor")
	}
	if got := Fold("plain"); got != "plain" {
		t.Errorf("Fold() = %q, want %q", got, "plain")
	}
}

func TestMakeUnique(t *testing.T) {
	if got := MakeUnique("zelda", 0); got != "zelda" {
		t.Errorf("MakeUnique(zelda, 0) = %q", got)
	}
	if got := MakeUnique("zelda", 12); got != "zelda-12" {
		t.Errorf("MakeUnique(zelda, 12) = %q, want zelda-12", got)
	}
}

func TestUnique(t *testing.T) {
	used := map[string]bool{"zelda": true, "zelda-1": true}

	got, err := Unique("zelda", func(s string) (bool, error) { return used[s], nil })
	if err != nil {
		t.Fatalf("Unique() error = %v", err)
	}
	if got != "zelda-2" {
		t.Errorf("Unique() = %q, want zelda-2", got)
	}

	boom := errors.New("lookup failed")
	if _, err := Unique("zelda", func(string) (bool, error) { return false, boom }); !errors.Is(err, boom) {
		t.Errorf("Unique() error = %v, want %v", err, boom)
	}
}
