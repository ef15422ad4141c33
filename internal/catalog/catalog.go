// Package catalog holds the read-only records owned by the knowledge store:
// courses, study programs with their curriculum, and embedded rule chunks.
package catalog

// CourseRecord is a course keyed by its course code.
type CourseRecord struct {
	// Code is the upper-cased course code, e.g. "DAT110"
	Code string `json:"code"`

	// Name is the course title
	Name string `json:"name"`

	// Credits is the ECTS value (nullable)
	Credits *float64 `json:"credits,omitempty"`

	// Semester is the teaching period pattern: Høst, Vår, Hele året, August, Juni, Januar
	Semester string `json:"semester,omitempty"`

	// Faculty is the responsible faculty
	Faculty string `json:"faculty,omitempty"`

	// Coordinator is the course coordinator
	Coordinator string `json:"coordinator,omitempty"`

	// Language is the teaching language
	Language string `json:"language,omitempty"`

	// Places is the number of available places (nullable)
	Places *int `json:"places,omitempty"`

	LearningOutcomes    string `json:"learning_outcomes,omitempty"`
	Prerequisites       string `json:"prerequisites,omitempty"`
	LearningActivities  string `json:"learning_activities,omitempty"`
	Assessment          string `json:"assessment,omitempty"`
	MandatoryActivities string `json:"mandatory_activities,omitempty"`
	Notes               string `json:"notes,omitempty"`
	PriorityRules       string `json:"priority_rules,omitempty"`

	// Grades holds exam results per year, newest first (optional)
	Grades []GradeDistribution `json:"grades,omitempty"`
}

// GradeDistribution is the exam result count for one course in one year.
// Letter-graded courses use A-F; pass/fail courses use Passed and Failed.
type GradeDistribution struct {
	CourseCode string `json:"course_code"`
	Year       int    `json:"year"`

	A int `json:"a,omitempty"`
	B int `json:"b,omitempty"`
	C int `json:"c,omitempty"`
	D int `json:"d,omitempty"`
	E int `json:"e,omitempty"`
	F int `json:"f,omitempty"`

	Passed int `json:"passed,omitempty"`
	Failed int `json:"failed,omitempty"`
}

// Total is the number of graded candidates.
func (g GradeDistribution) Total() int {
	return g.A + g.B + g.C + g.D + g.E + g.F + g.Passed + g.Failed
}

// FailRate is the share of candidates who failed, in percent.
func (g GradeDistribution) FailRate() float64 {
	total := g.Total()
	if total == 0 {
		return 0
	}
	return float64(g.F+g.Failed) / float64(total) * 100
}

// Average is the mean passing letter grade on the scale A=5 .. E=1.
// F is left out. Returns 0 when no letter grade was passed.
func (g GradeDistribution) Average() float64 {
	passed := g.A + g.B + g.C + g.D + g.E
	if passed == 0 {
		return 0
	}
	points := 5*g.A + 4*g.B + 3*g.C + 2*g.D + g.E
	return float64(points) / float64(passed)
}

// AverageLetter rounds Average to the nearest letter, or "" when there is none.
func (g GradeDistribution) AverageLetter() string {
	avg := g.Average()
	if avg == 0 {
		return ""
	}
	letters := []string{"E", "D", "C", "B", "A"}
	i := int(avg+0.5) - 1
	if i < 0 {
		i = 0
	}
	if i > 4 {
		i = 4
	}
	return letters[i]
}

// ProgramStructure is a study program with its specializations.
type ProgramStructure struct {
	Name string `json:"name"`

	// DegreeType is e.g. "Bachelor" or "Master" (optional)
	DegreeType string `json:"degree_type,omitempty"`

	// Cohort is the intake year the curriculum applies to (nullable)
	Cohort *int `json:"cohort,omitempty"`

	Specializations []Specialization `json:"specializations"`

	// Common holds curriculum entries not attached to any specialization.
	Common []CurriculumEntry `json:"common,omitempty"`
}

// Specialization is a named track inside a program.
type Specialization struct {
	Name    string            `json:"name"`
	Entries []CurriculumEntry `json:"entries"`
}

// CurriculumEntry places one course in a program's study plan.
type CurriculumEntry struct {
	StudyYear  int    `json:"study_year"`
	Semester   string `json:"semester,omitempty"`
	CourseCode string `json:"course_code"`

	// CourseName is filled from the course table when the code is known
	CourseName string `json:"course_name,omitempty"`

	Mandatory bool   `json:"mandatory"`
	Comment   string `json:"comment,omitempty"`
}

// AllEntries returns every curriculum entry of the program in stored order:
// common entries first, then each specialization's entries.
func (p *ProgramStructure) AllEntries() []CurriculumEntry {
	var out []CurriculumEntry
	out = append(out, p.Common...)
	for _, s := range p.Specializations {
		out = append(out, s.Entries...)
	}
	return out
}

// RuleChunk is an embedded fragment of regulation or guidance text.
type RuleChunk struct {
	ID      int64     `json:"id"`
	Source  string    `json:"source"`
	Content string    `json:"content"`
	Vector  []float32 `json:"vector,omitempty"`
}

// ScoredChunk is a nearest-neighbour hit.
type ScoredChunk struct {
	ID      int64   `json:"id"`
	Source  string  `json:"source"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}
