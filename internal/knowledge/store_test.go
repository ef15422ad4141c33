package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/hpungsan/veileder/internal/catalog"
	"github.com/hpungsan/veileder/internal/db"
	"github.com/hpungsan/veileder/internal/errors"
)

type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no vector for %q", text)
	}
	return v, nil
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func seedRules(t *testing.T, database *sql.DB) {
	t.Helper()
	chunks := []catalog.RuleChunk{
		{Source: "forskrift", Content: "a", Vector: []float32{1, 0}},
		{Source: "forskrift", Content: "b", Vector: []float32{0, 1}},
		{Source: "forskrift", Content: "c", Vector: []float32{1, 1}},
		{Source: "forskrift", Content: "d", Vector: []float32{1, 0}},
		{Source: "annet", Content: "wrong dims", Vector: []float32{1, 0, 0}},
	}
	for i := range chunks {
		if _, err := db.InsertRuleChunk(context.Background(), database, &chunks[i]); err != nil {
			t.Fatalf("InsertRuleChunk failed: %v", err)
		}
	}
}

func TestSQLiteStore_LookupCourse(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	if err := db.UpsertCourse(ctx, database, &catalog.CourseRecord{Code: "ØKO100", Name: "Mikroøkonomi"}); err != nil {
		t.Fatalf("UpsertCourse failed: %v", err)
	}

	store := NewSQLiteStore(database, nil, time.Second)

	c, err := store.LookupCourse(ctx, "øko100")
	if err != nil {
		t.Fatalf("LookupCourse lower-case failed: %v", err)
	}
	if c.Name != "Mikroøkonomi" {
		t.Errorf("Name = %q, want Mikroøkonomi", c.Name)
	}

	if _, err := store.LookupCourse(ctx, "DAT999"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("LookupCourse unknown: err = %v, want NOT_FOUND", err)
	}
}

func TestSQLiteStore_Programs(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	for _, name := range []string{"Bachelor i Datavitenskap", "Bachelor i Økonomi"} {
		p := &catalog.ProgramStructure{Name: name}
		if err := db.UpsertProgram(ctx, database, p); err != nil {
			t.Fatalf("UpsertProgram failed: %v", err)
		}
	}

	store := NewSQLiteStore(database, nil, 0)

	names, err := store.ListPrograms(ctx)
	if err != nil {
		t.Fatalf("ListPrograms failed: %v", err)
	}
	if len(names) != 2 || names[0] != "Bachelor i Datavitenskap" {
		t.Errorf("ListPrograms = %v", names)
	}

	p, err := store.LookupProgram(ctx, "bachelor i datavitenskap")
	if err != nil {
		t.Fatalf("LookupProgram failed: %v", err)
	}
	if p.Name != "Bachelor i Datavitenskap" {
		t.Errorf("Name = %q", p.Name)
	}
}

func TestSQLiteStore_Nearest(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	seedRules(t, database)

	store := NewSQLiteStore(database, nil, 0)

	got, err := store.Nearest(ctx, []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("Nearest failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Nearest returned %d chunks, want 3", len(got))
	}
	// a and d tie at 1.0; the lower id wins.
	want := []string{"a", "d", "c"}
	for i, w := range want {
		if got[i].Content != w {
			t.Errorf("got[%d] = %q, want %q", i, got[i].Content, w)
		}
	}
	if got[0].Score < got[2].Score {
		t.Errorf("scores not descending: %v", got)
	}

	if got, err := store.Nearest(ctx, []float32{1, 0}, 0); err != nil || got != nil {
		t.Errorf("Nearest k=0 = %v, %v; want nil, nil", got, err)
	}
	if _, err := store.Nearest(ctx, nil, 3); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("Nearest empty vector: err = %v, want INVALID_REQUEST", err)
	}
}

func TestSQLiteStore_Embed(t *testing.T) {
	ctx := context.Background()
	emb := &fakeEmbedder{vectors: map[string][]float32{"konte": {0.5, 0.5}}}
	store := NewSQLiteStore(openTestDB(t), emb, 0)

	v, err := store.Embed(ctx, "konte")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(v) != 2 || emb.calls != 1 {
		t.Errorf("Embed = %v after %d calls", v, emb.calls)
	}

	noEmbedder := NewSQLiteStore(openTestDB(t), nil, 0)
	if _, err := noEmbedder.Embed(ctx, "konte"); !errors.Is(err, errors.ErrServiceError) {
		t.Errorf("Embed without embedder: err = %v, want SERVICE_ERROR", err)
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2}, []float32{1, 2}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("CosineSimilarity = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTopK_KeepsBest(t *testing.T) {
	top := newTopK(2)
	for i, s := range []float64{0.1, 0.9, 0.5, 0.9, 0.2} {
		top.push(catalog.ScoredChunk{ID: int64(i + 1), Score: s})
	}
	got := top.sorted()
	if len(got) != 2 || got[0].ID != 2 || got[1].ID != 4 {
		t.Errorf("sorted = %+v, want ids 2 then 4", got)
	}
}
