package knowledge

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/veileder/internal/catalog"
	"github.com/hpungsan/veileder/internal/db"
	"github.com/hpungsan/veileder/internal/errors"
)

// Record kinds in a snapshot file.
const (
	KindCourse  = "course"
	KindProgram = "program"
	KindRule    = "rule"
	KindGrades  = "grades"
)

// SnapshotRecord is one line of a JSONL snapshot. Exactly one payload matches Kind.
// A header line {"veileder_snapshot": true} is skipped; strict loads require it
// as the first non-empty line.
type SnapshotRecord struct {
	Header  bool                       `json:"veileder_snapshot,omitempty"`
	Kind    string                     `json:"kind"`
	Course  *catalog.CourseRecord      `json:"course,omitempty"`
	Program *catalog.ProgramStructure  `json:"program,omitempty"`
	Rule    *catalog.RuleChunk         `json:"rule,omitempty"`
	Grades  *catalog.GradeDistribution `json:"grades,omitempty"`
}

// LoadInput contains parameters for LoadSnapshot.
type LoadInput struct {
	Path string // required, .jsonl

	// Strict requires the header line, aborts before writing anything when
	// any line fails to parse, and applies the whole file in one transaction.
	Strict bool
}

// LoadOutput summarizes a snapshot load.
type LoadOutput struct {
	Courses  int         `json:"courses"`
	Programs int         `json:"programs"`
	Rules    int         `json:"rules"`
	Grades   int         `json:"grades"`
	Replaced int64       `json:"rules_replaced"`
	Errors   []LoadError `json:"errors"`
}

// LoadError describes a rejected snapshot line.
type LoadError struct {
	Line    int    `json:"line"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type parsedRecord struct {
	line int
	rec  SnapshotRecord
}

// LoadSnapshot upserts courses, programs and pre-embedded rule chunks from a
// JSONL snapshot. Rule chunks replace every stored chunk with the same source
// the first time that source appears in the file, so reloading is idempotent.
func LoadSnapshot(ctx context.Context, database *sql.DB, input LoadInput) (*LoadOutput, error) {
	if err := validateSnapshotPath(input.Path); err != nil {
		return nil, err
	}

	file, err := openFileNoFollowRead(input.Path)
	if err != nil {
		if _, ok := err.(*errors.AdvisorError); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open snapshot: %w", err))
	}
	defer file.Close()

	parsed := parseSnapshot(file)
	out := &LoadOutput{Errors: parsed.errors}
	if !input.Strict {
		clearedSources := make(map[string]bool)
		for _, r := range parsed.records {
			if err := ctx.Err(); err != nil {
				return out, err
			}
			if err := applyRecord(ctx, database, r.rec, clearedSources, out); err != nil {
				out.Errors = append(out.Errors, recordError(r.line, err))
			}
		}
		return out, nil
	}

	if !parsed.header {
		out.Errors = append(out.Errors, LoadError{
			Line:    1,
			Code:    "MISSING_HEADER",
			Message: `strict snapshot must start with {"veileder_snapshot": true}`,
		})
	}
	if len(out.Errors) > 0 {
		return out, nil
	}

	err = db.InTx(ctx, database, func(tx *sql.Tx) error {
		clearedSources := make(map[string]bool)
		for _, r := range parsed.records {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := applyRecord(ctx, tx, r.rec, clearedSources, out); err != nil {
				out.Errors = append(out.Errors, recordError(r.line, err))
				return err
			}
		}
		return nil
	})
	if err != nil {
		// Rolled back: nothing from this file was kept.
		out.Courses, out.Programs, out.Rules, out.Grades, out.Replaced = 0, 0, 0, 0, 0
		// A record failure is reported per line; begin, commit or cancel is not.
		if ctx.Err() != nil || len(out.Errors) == 0 {
			return out, err
		}
	}
	return out, nil
}

func recordError(line int, err error) LoadError {
	return LoadError{Line: line, Code: string(errors.CodeOf(err)), Message: err.Error()}
}

func applyRecord(ctx context.Context, q db.Querier, rec SnapshotRecord, cleared map[string]bool, out *LoadOutput) error {
	switch rec.Kind {
	case KindCourse:
		if err := db.UpsertCourse(ctx, q, rec.Course); err != nil {
			return err
		}
		out.Courses++
	case KindProgram:
		if err := db.UpsertProgram(ctx, q, rec.Program); err != nil {
			return err
		}
		out.Programs++
	case KindRule:
		if !cleared[rec.Rule.Source] {
			n, err := db.DeleteRuleChunksBySource(ctx, q, rec.Rule.Source)
			if err != nil {
				return err
			}
			cleared[rec.Rule.Source] = true
			out.Replaced += n
		}
		if _, err := db.InsertRuleChunk(ctx, q, rec.Rule); err != nil {
			return err
		}
		out.Rules++
	case KindGrades:
		if err := db.UpsertGrades(ctx, q, rec.Grades); err != nil {
			return err
		}
		out.Grades++
	}
	return nil
}

type parsedSnapshot struct {
	records []parsedRecord
	errors  []LoadError
	header  bool // first non-empty line was the header
}

func parseSnapshot(r io.Reader) parsedSnapshot {
	var out parsedSnapshot
	seen := false

	scanner := bufio.NewScanner(r)
	// Rule chunks carry full vectors; lines are long.
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		first := !seen
		seen = true

		var rec SnapshotRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			out.errors = append(out.errors, LoadError{
				Line:    lineNum,
				Code:    "PARSE_ERROR",
				Message: fmt.Sprintf("invalid JSON: %v", err),
			})
			continue
		}
		if rec.Header {
			out.header = out.header || first
			continue
		}
		if msg := checkRecord(rec); msg != "" {
			out.errors = append(out.errors, LoadError{Line: lineNum, Code: "INVALID_RECORD", Message: msg})
			continue
		}
		out.records = append(out.records, parsedRecord{line: lineNum, rec: rec})
	}

	if err := scanner.Err(); err != nil {
		out.errors = append(out.errors, LoadError{
			Line:    lineNum,
			Code:    "READ_ERROR",
			Message: fmt.Sprintf("failed to read file: %v", err),
		})
	}
	return out
}

func checkRecord(rec SnapshotRecord) string {
	switch rec.Kind {
	case KindCourse:
		if rec.Course == nil {
			return "course record without course payload"
		}
	case KindProgram:
		if rec.Program == nil {
			return "program record without program payload"
		}
	case KindRule:
		if rec.Rule == nil {
			return "rule record without rule payload"
		}
	case KindGrades:
		if rec.Grades == nil {
			return "grades record without grades payload"
		}
	case "":
		return "missing kind field"
	default:
		return fmt.Sprintf("unknown kind %q", rec.Kind)
	}
	return ""
}

// validateSnapshotPath rejects traversal, non-.jsonl files, missing files and symlinks.
func validateSnapshotPath(path string) error {
	if path == "" {
		return errors.NewInvalidRequest("path is required")
	}
	for _, part := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == filepath.Separator }) {
		if part == ".." {
			return errors.NewInvalidRequest("path must not contain directory traversal (..)")
		}
	}

	cleaned := filepath.Clean(path)
	if filepath.Ext(cleaned) != ".jsonl" {
		return errors.NewInvalidRequest("path must have .jsonl extension")
	}

	info, err := os.Lstat(cleaned)
	if os.IsNotExist(err) {
		return errors.NewNotFound("file", path)
	}
	if err != nil {
		return errors.NewInternal(err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("path must not be a symlink")
	}
	return nil
}
