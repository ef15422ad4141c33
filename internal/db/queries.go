package db

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/hpungsan/veileder/internal/catalog"
	"github.com/hpungsan/veileder/internal/errors"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const courseColumns = `
	code, name, credits, semester, faculty, coordinator, language, places,
	learning_outcomes, prerequisites, learning_activities, assessment,
	mandatory_activities, notes, priority_rules`

// UpsertCourse inserts or replaces a course keyed by its code.
func UpsertCourse(ctx context.Context, q Querier, c *catalog.CourseRecord) error {
	code := catalog.NormalizeCode(c.Code)
	if code == "" {
		return errors.NewInvalidRequest("course code is required")
	}
	if c.Name == "" {
		return errors.NewInvalidRequest(fmt.Sprintf("course %s: name is required", code))
	}

	query := `
		INSERT INTO courses (` + courseColumns + `, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			credits = excluded.credits,
			semester = excluded.semester,
			faculty = excluded.faculty,
			coordinator = excluded.coordinator,
			language = excluded.language,
			places = excluded.places,
			learning_outcomes = excluded.learning_outcomes,
			prerequisites = excluded.prerequisites,
			learning_activities = excluded.learning_activities,
			assessment = excluded.assessment,
			mandatory_activities = excluded.mandatory_activities,
			notes = excluded.notes,
			priority_rules = excluded.priority_rules,
			updated_at = excluded.updated_at
	`

	var credits sql.NullFloat64
	if c.Credits != nil {
		credits = sql.NullFloat64{Float64: *c.Credits, Valid: true}
	}
	var places sql.NullInt64
	if c.Places != nil {
		places = sql.NullInt64{Int64: int64(*c.Places), Valid: true}
	}

	_, err := q.ExecContext(ctx, query,
		code, c.Name, credits,
		toNullString(c.Semester), toNullString(c.Faculty), toNullString(c.Coordinator),
		toNullString(c.Language), places,
		toNullString(c.LearningOutcomes), toNullString(c.Prerequisites),
		toNullString(c.LearningActivities), toNullString(c.Assessment),
		toNullString(c.MandatoryActivities), toNullString(c.Notes),
		toNullString(c.PriorityRules),
		time.Now().Unix(),
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetCourse retrieves a course by exact code.
// Returns a NOT_FOUND error when the code is unknown.
func GetCourse(ctx context.Context, q Querier, code string) (*catalog.CourseRecord, error) {
	row := q.QueryRowContext(ctx, `SELECT `+courseColumns+` FROM courses WHERE code = ?`, code)
	c, err := scanCourse(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("course", code)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if c.Grades, err = ListGrades(ctx, q, c.Code); err != nil {
		return nil, err
	}
	return c, nil
}

func scanCourse(row *sql.Row) (*catalog.CourseRecord, error) {
	var (
		c                                    catalog.CourseRecord
		credits                              sql.NullFloat64
		places                               sql.NullInt64
		semester, faculty, coordinator, lang sql.NullString
		outcomes, prereq, activities, assess sql.NullString
		mandatory, notes, priority           sql.NullString
	)

	err := row.Scan(
		&c.Code, &c.Name, &credits, &semester, &faculty, &coordinator, &lang, &places,
		&outcomes, &prereq, &activities, &assess, &mandatory, &notes, &priority,
	)
	if err != nil {
		return nil, err
	}

	if credits.Valid {
		v := credits.Float64
		c.Credits = &v
	}
	if places.Valid {
		v := int(places.Int64)
		c.Places = &v
	}
	c.Semester = semester.String
	c.Faculty = faculty.String
	c.Coordinator = coordinator.String
	c.Language = lang.String
	c.LearningOutcomes = outcomes.String
	c.Prerequisites = prereq.String
	c.LearningActivities = activities.String
	c.Assessment = assess.String
	c.MandatoryActivities = mandatory.String
	c.Notes = notes.String
	c.PriorityRules = priority.String

	return &c, nil
}

// CountCourses returns the number of stored courses.
func CountCourses(ctx context.Context, q Querier) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM courses`).Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// ListProgramNames returns all program display names ordered by name.
func ListProgramNames(ctx context.Context, q Querier) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT name FROM programs ORDER BY name_norm`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.NewInternal(err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return names, nil
}

// UpsertProgram replaces a program, its specializations, and its curriculum.
// The program is matched by normalized name. Given a *sql.DB it runs in its
// own transaction; given a *sql.Tx it joins the caller's.
func UpsertProgram(ctx context.Context, q Querier, p *catalog.ProgramStructure) error {
	if catalog.Normalize(p.Name) == "" {
		return errors.NewInvalidRequest("program name is required")
	}
	if database, ok := q.(*sql.DB); ok {
		return InTx(ctx, database, func(tx *sql.Tx) error {
			return replaceProgram(ctx, tx, p)
		})
	}
	return replaceProgram(ctx, q, p)
}

// InTx runs fn in a transaction, committing only when fn returns nil.
func InTx(ctx context.Context, database *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

func replaceProgram(ctx context.Context, q Querier, p *catalog.ProgramStructure) error {
	nameNorm := catalog.Normalize(p.Name)

	var existingID int64
	switch scanErr := q.QueryRowContext(ctx, `SELECT id FROM programs WHERE name_norm = ?`, nameNorm).Scan(&existingID); scanErr {
	case nil:
		for _, stmt := range []string{
			`DELETE FROM curriculum_entries WHERE program_id = ?`,
			`DELETE FROM specializations WHERE program_id = ?`,
			`DELETE FROM programs WHERE id = ?`,
		} {
			if _, err := q.ExecContext(ctx, stmt, existingID); err != nil {
				return errors.NewInternal(err)
			}
		}
	case sql.ErrNoRows:
	default:
		return errors.NewInternal(scanErr)
	}

	var cohort sql.NullInt64
	if p.Cohort != nil {
		cohort = sql.NullInt64{Int64: int64(*p.Cohort), Valid: true}
	}

	res, err := q.ExecContext(ctx,
		`INSERT INTO programs (name, name_norm, degree_type, cohort, updated_at) VALUES (?, ?, ?, ?, ?)`,
		p.Name, nameNorm, toNullString(p.DegreeType), cohort, time.Now().Unix(),
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	programID, err := res.LastInsertId()
	if err != nil {
		return errors.NewInternal(err)
	}

	position := 0
	if err := insertEntries(ctx, q, programID, sql.NullInt64{}, p.Common, &position); err != nil {
		return err
	}

	for i, sp := range p.Specializations {
		res, err := q.ExecContext(ctx,
			`INSERT INTO specializations (program_id, name, position) VALUES (?, ?, ?)`,
			programID, sp.Name, i,
		)
		if err != nil {
			return errors.NewInternal(err)
		}
		specID, err := res.LastInsertId()
		if err != nil {
			return errors.NewInternal(err)
		}
		if err := insertEntries(ctx, q, programID, sql.NullInt64{Int64: specID, Valid: true}, sp.Entries, &position); err != nil {
			return err
		}
	}
	return nil
}

func insertEntries(ctx context.Context, q Querier, programID int64, specID sql.NullInt64, entries []catalog.CurriculumEntry, position *int) error {
	for _, e := range entries {
		code := catalog.NormalizeCode(e.CourseCode)
		if code == "" {
			return errors.NewInvalidRequest("curriculum entry without course code")
		}
		_, err := q.ExecContext(ctx, `
			INSERT INTO curriculum_entries
				(program_id, specialization_id, study_year, semester, course_code, mandatory, comment, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			programID, specID, e.StudyYear, toNullString(e.Semester), code, boolToInt(e.Mandatory),
			toNullString(e.Comment), *position,
		)
		if err != nil {
			return errors.NewInternal(err)
		}
		*position++
	}
	return nil
}

// GetProgram retrieves a program by name (matched on its normalized form),
// with specializations and curriculum in stored order. Course names are
// joined in from the course table when known.
func GetProgram(ctx context.Context, q Querier, name string) (*catalog.ProgramStructure, error) {
	nameNorm := catalog.Normalize(name)

	var (
		p          catalog.ProgramStructure
		programID  int64
		degreeType sql.NullString
		cohort     sql.NullInt64
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, name, degree_type, cohort FROM programs WHERE name_norm = ?`, nameNorm,
	).Scan(&programID, &p.Name, &degreeType, &cohort)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("program", name)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	p.DegreeType = degreeType.String
	if cohort.Valid {
		v := int(cohort.Int64)
		p.Cohort = &v
	}

	specRows, err := q.QueryContext(ctx,
		`SELECT id, name FROM specializations WHERE program_id = ? ORDER BY position`, programID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	specIndex := make(map[int64]int)
	for specRows.Next() {
		var id int64
		var specName string
		if err := specRows.Scan(&id, &specName); err != nil {
			specRows.Close()
			return nil, errors.NewInternal(err)
		}
		specIndex[id] = len(p.Specializations)
		p.Specializations = append(p.Specializations, catalog.Specialization{Name: specName})
	}
	specRows.Close()
	if err := specRows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT e.specialization_id, e.study_year, e.semester, e.course_code, c.name, e.mandatory, e.comment
		FROM curriculum_entries e
		LEFT JOIN courses c ON c.code = e.course_code
		WHERE e.program_id = ?
		ORDER BY e.position`, programID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e                         catalog.CurriculumEntry
			specID                    sql.NullInt64
			semester, course, comment sql.NullString
			mandatory                 int
		)
		if err := rows.Scan(&specID, &e.StudyYear, &semester, &e.CourseCode, &course, &mandatory, &comment); err != nil {
			return nil, errors.NewInternal(err)
		}
		e.Semester = semester.String
		e.CourseName = course.String
		e.Comment = comment.String
		e.Mandatory = mandatory != 0

		idx, ok := specIndex[specID.Int64]
		if !specID.Valid || !ok {
			p.Common = append(p.Common, e)
			continue
		}
		p.Specializations[idx].Entries = append(p.Specializations[idx].Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}

	return &p, nil
}

// InsertRuleChunk stores an embedded rule chunk and returns its id.
func InsertRuleChunk(ctx context.Context, q Querier, c *catalog.RuleChunk) (int64, error) {
	if c.Content == "" {
		return 0, errors.NewInvalidRequest("rule chunk content is required")
	}
	if len(c.Vector) == 0 {
		return 0, errors.NewInvalidRequest("rule chunk vector is required")
	}
	res, err := q.ExecContext(ctx,
		`INSERT INTO rule_chunks (source, content, dims, embedding, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.Source, c.Content, len(c.Vector), EncodeVector(c.Vector), time.Now().Unix(),
	)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return id, nil
}

// DeleteRuleChunksBySource removes every chunk with the given provenance label.
func DeleteRuleChunksBySource(ctx context.Context, q Querier, source string) (int64, error) {
	res, err := q.ExecContext(ctx, `DELETE FROM rule_chunks WHERE source = ?`, source)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// ScanRuleChunks streams all rule chunks in id order to fn.
// Iteration stops at the first error returned by fn.
func ScanRuleChunks(ctx context.Context, q Querier, fn func(catalog.RuleChunk) error) error {
	rows, err := q.QueryContext(ctx, `SELECT id, source, content, embedding FROM rule_chunks ORDER BY id`)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer rows.Close()

	for rows.Next() {
		var c catalog.RuleChunk
		var blob []byte
		if err := rows.Scan(&c.ID, &c.Source, &c.Content, &blob); err != nil {
			return errors.NewInternal(err)
		}
		c.Vector = DecodeVector(blob)
		if err := fn(c); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// UpsertGrades stores one year of exam results for a course, replacing any
// earlier result for the same course and year.
func UpsertGrades(ctx context.Context, q Querier, g *catalog.GradeDistribution) error {
	code := catalog.NormalizeCode(g.CourseCode)
	if code == "" {
		return errors.NewInvalidRequest("grade result without course code")
	}
	if g.Year <= 0 {
		return errors.NewInvalidRequest("grade result year must be positive")
	}
	for _, n := range []int{g.A, g.B, g.C, g.D, g.E, g.F, g.Passed, g.Failed} {
		if n < 0 {
			return errors.NewInvalidRequest("grade counts must be >= 0")
		}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO grade_results (course_code, year, a, b, c, d, e, f, passed, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(course_code, year) DO UPDATE SET
			a = excluded.a, b = excluded.b, c = excluded.c, d = excluded.d,
			e = excluded.e, f = excluded.f, passed = excluded.passed, failed = excluded.failed`,
		code, g.Year, g.A, g.B, g.C, g.D, g.E, g.F, g.Passed, g.Failed,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// ListGrades returns a course's exam results, newest year first.
func ListGrades(ctx context.Context, q Querier, code string) ([]catalog.GradeDistribution, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT course_code, year, a, b, c, d, e, f, passed, failed
		FROM grade_results WHERE course_code = ? ORDER BY year DESC`,
		catalog.NormalizeCode(code),
	)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []catalog.GradeDistribution
	for rows.Next() {
		var g catalog.GradeDistribution
		if err := rows.Scan(&g.CourseCode, &g.Year, &g.A, &g.B, &g.C, &g.D, &g.E, &g.F, &g.Passed, &g.Failed); err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// EncodeVector packs a vector as little-endian float32 values.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector is the inverse of EncodeVector. Trailing partial values are ignored.
func DecodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
