package llm

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestParseRanking(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		n       int
		want    []int
		wantErr bool
	}{
		{"plain", "[2, 0, 1]", 3, []int{2, 0, 1}, false},
		{"wrapped in prose", "Her er rangeringen: [1,0] takk", 2, []int{1, 0}, false},
		{"drops out of range", "[5, 1, -1, 0]", 3, []int{1, 0}, false},
		{"drops duplicates", "[1, 1, 0, 1]", 2, []int{1, 0}, false},
		{"drops fractions", "[0.5, 1]", 2, []int{1}, false},
		{"no array", "ingen liste", 3, nil, true},
		{"unterminated", "[1, 2", 3, nil, true},
		{"strings", `["a", "b"]`, 3, nil, true},
		{"nothing valid", "[7, 8]", 3, nil, true},
		{"empty array", "[]", 3, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRanking(tt.text, tt.n)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRanking() error = %v, wantErr %v", err, tt.wantErr)
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) && !tt.wantErr {
				t.Errorf("ParseRanking() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRankWith(t *testing.T) {
	var gotSystem, gotUser string
	var gotTier Tier
	complete := func(_ context.Context, tier Tier, system, user string) (string, error) {
		gotTier, gotSystem, gotUser = tier, system, user
		return "[1]", nil
	}

	got, err := rankWith(context.Background(), complete, TierFast, "Hvor mange forsøk?", []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("rankWith() error = %v", err)
	}
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("rankWith() = %v, want [1]", got)
	}
	if gotTier != TierFast || gotSystem != rankSystemPrompt {
		t.Errorf("tier=%q system=%q", gotTier, gotSystem)
	}
	if !strings.Contains(gotUser, "[0] alpha") || !strings.Contains(gotUser, "[1] beta") {
		t.Errorf("user prompt missing numbered candidates: %q", gotUser)
	}
}

func TestRankWith_NoCandidates(t *testing.T) {
	called := false
	complete := func(context.Context, Tier, string, string) (string, error) {
		called = true
		return "", nil
	}
	got, err := rankWith(context.Background(), complete, TierFast, "q", nil)
	if err != nil || got != nil || called {
		t.Errorf("rankWith(nil) = %v, %v, called=%v", got, err, called)
	}
}

func TestModelsFor(t *testing.T) {
	m := Models{Fast: "small", Rich: "big"}
	if m.For(TierFast) != "small" || m.For(TierRich) != "big" || m.For("other") != "small" {
		t.Errorf("Models.For mapping wrong: %+v", m)
	}
	if (Models{Fast: "small"}).For(TierRich) != "small" {
		t.Error("missing rich model should fall back to fast")
	}
}

func TestPreview_KeepsRunesWhole(t *testing.T) {
	text := strings.Repeat("æ", 79) + "øå rest"
	got := preview(text)
	if !utf8.ValidString(got) {
		t.Fatalf("preview produced invalid UTF-8: %q", got)
	}
	if want := strings.Repeat("æ", 79) + "ø..."; got != want {
		t.Errorf("preview = %q, want %q", got, want)
	}
	if got := preview("kort svar"); got != "kort svar" {
		t.Errorf("short preview = %q", got)
	}

	_, err := ParseRanking(strings.Repeat("å", 100), 3)
	if err == nil || !utf8.ValidString(err.Error()) {
		t.Errorf("ParseRanking error = %v, want valid UTF-8 message", err)
	}
}
