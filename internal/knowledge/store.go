// Package knowledge implements the knowledge store: exact course and program
// lookups, the program list, question embedding and nearest-neighbour search
// over embedded rule chunks.
package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hpungsan/veileder/internal/catalog"
	"github.com/hpungsan/veileder/internal/db"
	"github.com/hpungsan/veileder/internal/errors"
)

// Store is the read side of the knowledge store.
//
// LookupCourse and LookupProgram return a NOT_FOUND AdvisorError when the key
// is unknown. Other failures are wrapped Go errors.
type Store interface {
	LookupCourse(ctx context.Context, code string) (*catalog.CourseRecord, error)
	LookupProgram(ctx context.Context, name string) (*catalog.ProgramStructure, error)
	ListPrograms(ctx context.Context) ([]string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
	Nearest(ctx context.Context, vector []float32, k int) ([]catalog.ScoredChunk, error)
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SQLiteStore serves lookups from the SQLite database and embeds questions
// through an Embedder.
type SQLiteStore struct {
	db       *sql.DB
	embedder Embedder
	timeout  time.Duration
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a store. A zero timeout means calls are bounded only
// by the caller's context.
func NewSQLiteStore(database *sql.DB, embedder Embedder, timeout time.Duration) *SQLiteStore {
	return &SQLiteStore{db: database, embedder: embedder, timeout: timeout}
}

func (s *SQLiteStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// LookupCourse fetches a course by code. The exact code is tried first,
// then its upper-cased form.
func (s *SQLiteStore) LookupCourse(ctx context.Context, code string) (*catalog.CourseRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	c, err := db.GetCourse(ctx, s.db, code)
	if err == nil {
		return c, nil
	}
	if upper := catalog.NormalizeCode(code); errors.Is(err, errors.ErrNotFound) && upper != code {
		return db.GetCourse(ctx, s.db, upper)
	}
	return nil, err
}

// LookupProgram fetches a program structure by name.
func (s *SQLiteStore) LookupProgram(ctx context.Context, name string) (*catalog.ProgramStructure, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return db.GetProgram(ctx, s.db, name)
}

// ListPrograms returns all known program names.
func (s *SQLiteStore) ListPrograms(ctx context.Context) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return db.ListProgramNames(ctx, s.db)
}

// Embed embeds text with the configured embedder.
func (s *SQLiteStore) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.embedder == nil {
		return nil, errors.NewServiceError("embed", fmt.Errorf("no embedder configured"))
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.embedder.Embed(ctx, text)
}

// Nearest returns the k rule chunks most similar to vector.
func (s *SQLiteStore) Nearest(ctx context.Context, vector []float32, k int) ([]catalog.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(vector) == 0 {
		return nil, errors.NewInvalidRequest("query vector is empty")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	top := newTopK(k)
	err := db.ScanRuleChunks(ctx, s.db, func(c catalog.RuleChunk) error {
		if len(c.Vector) != len(vector) {
			return nil
		}
		top.push(catalog.ScoredChunk{
			ID:      c.ID,
			Source:  c.Source,
			Content: c.Content,
			Score:   CosineSimilarity(vector, c.Vector),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("nearest: %w", err)
	}
	return top.sorted(), nil
}
