package intent

// Cue vocabularies, Norwegian. Word boundaries matter: "vær" would also hit
// "være", and "kan jeg" / "hva skjer om" are deliberately absent so that exam
// questions reach the exam rules.
var (
	offTopicCues = Cues(
		"været", "værmelding*", "værvarsel*", "regn", "mat", "middag", "lunsj", "oppskrift*",
		"politikk", "politisk*", "stortingsvalg*", "jobb", "jobbe", "deltidsjobb*", "jobbsøknad*",
		"lønn*", "stilling", "stillingsannonse*", "fotball*",
	)
	deadlineCues = Cues(
		"frist*", "søknadsfrist*", "klagefrist*", "meldefrist*", "deadline*", "dato", "datoen",
		"innen", "senest",
	)
	adminCues = Cues(
		"permisjon*", "timeplan*", "timeedit", "studentweb", "semesterregistrering*",
		"semesteravgift*", "studierett*",
	)
	conditionalCues = Cues(
		"må jeg", "kreves det", "er det krav", "er det påkrevd", "påkrevd", "forutsetter",
		"forutsetning*",
	)
	consequenceCues = Cues(
		"hva skjer hvis", "hva skjer dersom", "konsekvens*", "forsink*", "progresjon*",
	)
	comparisonCues = Cues(
		"forskjell*", "versus", "vs", "sammenlign*", "sammenlikn*",
	)
	examFailureCues = Cues(
		"stryk*", "strøk", "strøket", "konte*", "kontinuasjon*", "ny eksamen", "ikke bestått",
		"ikke består",
	)
	quantityCues = Cues(
		"hvor mange", "hvor ofte", "antall", "maks*", "grense*",
	)
	conceptCues = Cues(
		"hva er", "hva menes", "forklar*", "betyr", "betydning*", "konsept*", "teori*",
	)
)

// Question is the classifier input.
type Question struct {
	Text     string
	Tokens   []string
	Entities Entities
}

// NewQuestion tokenizes text.
func NewQuestion(text string, entities Entities) *Question {
	return &Question{Text: text, Tokens: Tokenize(text), Entities: entities}
}

// Rule is one entry of the decision list.
type Rule struct {
	Name  string
	Tag   Intent
	Match func(q *Question) bool
}

func cueRule(name string, tag Intent, cues CueSet) Rule {
	return Rule{Name: name, Tag: tag, Match: func(q *Question) bool { return cues.Match(q.Tokens) }}
}

// DefaultRules returns the decision list in precedence order. Time and
// administrative phrasing preempts entity-driven rules: a deadline question
// that names a course is still a deadline question.
func DefaultRules() []Rule {
	return []Rule{
		cueRule("off_topic_cue", OffTopic, offTopicCues),
		cueRule("deadline_cue", DeadlineTimebound, deadlineCues),
		cueRule("admin_cue", AdminRules, adminCues),
		cueRule("conditional_cue", ConditionalRule, conditionalCues),
		cueRule("consequence_cue", ProgressionConsequence, consequenceCues),
		cueRule("comparison_cue", Comparison, comparisonCues),
		{
			Name: "exam_failure_quantity",
			Tag:  ExamRulesSpecific,
			Match: func(q *Question) bool {
				return examFailureCues.Match(q.Tokens) && quantityCues.Match(q.Tokens)
			},
		},
		cueRule("exam_failure", ExamRulesGeneral, examFailureCues),
		{
			Name:  "program_entity",
			Tag:   StudyOverview,
			Match: func(q *Question) bool { return len(q.Entities.Programs) > 0 },
		},
		{
			Name:  "course_entity",
			Tag:   SpecificEmne,
			Match: func(q *Question) bool { return len(q.Entities.Courses) > 0 },
		},
		cueRule("concept_cue", ConceptExplanation, conceptCues),
	}
}

// Classification is the classifier's verdict.
type Classification struct {
	Intent Intent `json:"intent"`

	// Rule names the matching rule; empty when Fallback is set.
	Rule string `json:"rule,omitempty"`

	// Fallback is set when no rule matched and the default tag was used.
	Fallback bool `json:"fallback,omitempty"`
}

// Classifier is an ordered decision list; the first matching rule wins.
type Classifier struct {
	rules    []Rule
	fallback Intent
}

// NewClassifier creates a classifier with DefaultRules and an off_topic fallback.
func NewClassifier() *Classifier {
	return &Classifier{rules: DefaultRules(), fallback: OffTopic}
}

// Classify returns exactly one intent for text and its entities.
func (c *Classifier) Classify(text string, entities Entities) Classification {
	q := NewQuestion(text, entities)
	for _, r := range c.rules {
		if r.Match(q) {
			return Classification{Intent: r.Tag, Rule: r.Name}
		}
	}
	return Classification{Intent: c.fallback, Fallback: true}
}

// Rules returns a copy of the decision list.
func (c *Classifier) Rules() []Rule {
	return append([]Rule(nil), c.rules...)
}
