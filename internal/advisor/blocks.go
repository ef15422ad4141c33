package advisor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hpungsan/veileder/internal/catalog"
)

// Kind tags a context block by origin.
type Kind string

const (
	KindCourse  Kind = "COURSE"
	KindProgram Kind = "PROGRAM"
	KindRule    Kind = "RULE"
)

// Block is one formatted unit of context.
type Block struct {
	Kind Kind   `json:"kind"`
	Ref  string `json:"ref"`
	Text string `json:"text"`
}

// commonCoursesLabel names the pseudo-specialization of a program that has none.
const commonCoursesLabel = "Felles emner"

func courseBlock(c *catalog.CourseRecord) Block {
	var b strings.Builder
	b.WriteString("[EMNE]\n")
	line := func(label, value string) {
		if value = strings.TrimSpace(value); value != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, value)
		}
	}
	line("Emnekode", c.Code)
	line("Navn", c.Name)
	if c.Credits != nil {
		line("Studiepoeng", strconv.FormatFloat(*c.Credits, 'f', -1, 64))
	}
	line("Semester", c.Semester)
	line("Fakultet", c.Faculty)
	line("Emneansvarlig", c.Coordinator)
	line("Undervisningsspråk", c.Language)
	if c.Places != nil {
		line("Antall plasser", strconv.Itoa(*c.Places))
	}
	line("Forkunnskaper", c.Prerequisites)
	line("Dette lærer du", c.LearningOutcomes)
	line("Læringsaktiviteter", c.LearningActivities)
	line("Vurderingsordning", c.Assessment)
	line("Obligatoriske aktiviteter", c.MandatoryActivities)
	line("Merknader", c.Notes)
	line("Fortrinnsrett", c.PriorityRules)
	shown := 0
	for _, g := range c.Grades {
		if shown == maxGradeYears {
			break
		}
		if text := gradeLine(g); text != "" {
			line(fmt.Sprintf("Karakterstatistikk %d", g.Year), text)
			shown++
		}
	}

	return Block{Kind: KindCourse, Ref: c.Code, Text: strings.TrimRight(b.String(), "\n")}
}

// maxGradeYears caps how many years of exam results a course block lists.
const maxGradeYears = 3

// gradeLine summarizes one year of exam results, or "" when nobody was graded.
func gradeLine(g catalog.GradeDistribution) string {
	total := g.Total()
	if total == 0 {
		return ""
	}
	var parts []string
	if g.A+g.B+g.C+g.D+g.E+g.F > 0 {
		parts = append(parts, fmt.Sprintf("A %d, B %d, C %d, D %d, E %d, F %d", g.A, g.B, g.C, g.D, g.E, g.F))
	}
	if g.Passed+g.Failed > 0 {
		parts = append(parts, fmt.Sprintf("bestått %d, ikke bestått %d", g.Passed, g.Failed))
	}
	summary := fmt.Sprintf("%d kandidater, strykprosent %s %%", total, strconv.FormatFloat(g.FailRate(), 'f', 1, 64))
	if letter := g.AverageLetter(); letter != "" {
		summary += ", snitt " + letter
	}
	return strings.Join(parts, "; ") + " (" + summary + ")"
}

// programBlocks emits one block per specialization. Common entries are listed
// in every block. A program without specializations gets one block labelled
// commonCoursesLabel covering all entries.
func programBlocks(p *catalog.ProgramStructure) []Block {
	specs := p.Specializations
	common := p.Common
	if len(specs) == 0 {
		specs = []catalog.Specialization{{Name: commonCoursesLabel, Entries: p.Common}}
		common = nil
	}

	header := p.Name
	var meta []string
	if p.DegreeType != "" {
		meta = append(meta, p.DegreeType)
	}
	if p.Cohort != nil {
		meta = append(meta, fmt.Sprintf("kull %d", *p.Cohort))
	}
	if len(meta) > 0 {
		header += " (" + strings.Join(meta, ", ") + ")"
	}

	blocks := make([]Block, 0, len(specs))
	for _, s := range specs {
		var b strings.Builder
		b.WriteString("[STUDIEPROGRAM]\n")
		fmt.Fprintf(&b, "Studieprogram: %s\n", header)
		fmt.Fprintf(&b, "Retning: %s\n", s.Name)
		for _, e := range common {
			writeEntry(&b, e)
		}
		for _, e := range s.Entries {
			writeEntry(&b, e)
		}
		blocks = append(blocks, Block{
			Kind: KindProgram,
			Ref:  p.Name + " / " + s.Name,
			Text: strings.TrimRight(b.String(), "\n"),
		})
	}
	return blocks
}

func writeEntry(b *strings.Builder, e catalog.CurriculumEntry) {
	fmt.Fprintf(b, "- År %d", e.StudyYear)
	if e.Semester != "" {
		fmt.Fprintf(b, ", %s", e.Semester)
	}
	fmt.Fprintf(b, ": %s", e.CourseCode)
	if e.CourseName != "" {
		fmt.Fprintf(b, " %s", e.CourseName)
	}
	if e.Mandatory {
		b.WriteString(" (obligatorisk)")
	} else {
		b.WriteString(" (valgfritt)")
	}
	if e.Comment != "" {
		fmt.Fprintf(b, ", %s", e.Comment)
	}
	b.WriteString("\n")
}

func ruleBlock(c catalog.ScoredChunk) Block {
	text := "[KILDE]"
	if c.Source != "" {
		text += " " + c.Source
	}
	return Block{
		Kind: KindRule,
		Ref:  strconv.FormatInt(c.ID, 10),
		Text: text + "\n" + strings.TrimSpace(c.Content),
	}
}
