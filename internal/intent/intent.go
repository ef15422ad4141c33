// Package intent classifies advising questions into a closed set of intents
// and maps each intent to its answering policy.
package intent

// Intent is one tag from the closed taxonomy.
type Intent string

const (
	OffTopic               Intent = "off_topic"
	DeadlineTimebound      Intent = "deadline_timebound"
	AdminRules             Intent = "admin_rules"
	ConditionalRule        Intent = "conditional_rule"
	ProgressionConsequence Intent = "progression_consequence"
	Comparison             Intent = "comparison"
	ExamRulesSpecific      Intent = "exam_rules_specific"
	ExamRulesGeneral       Intent = "exam_rules_general"
	StudyOverview          Intent = "study_overview"
	StudyFollowup          Intent = "study_followup"
	SpecificEmne           Intent = "specific_emne"
	ConceptExplanation     Intent = "concept_explanation"
)

// All lists every intent in classifier precedence order, with study_followup
// (assigned only by session redirect) after study_overview.
func All() []Intent {
	return []Intent{
		OffTopic, DeadlineTimebound, AdminRules, ConditionalRule, ProgressionConsequence,
		Comparison, ExamRulesSpecific, ExamRulesGeneral, StudyOverview, StudyFollowup,
		SpecificEmne, ConceptExplanation,
	}
}

// Valid reports whether i belongs to the taxonomy.
func (i Intent) Valid() bool {
	for _, known := range All() {
		if i == known {
			return true
		}
	}
	return false
}

// IsRuleOriented reports whether answers come from regulation text.
func (i Intent) IsRuleOriented() bool {
	switch i {
	case AdminRules, DeadlineTimebound, ExamRulesSpecific, ExamRulesGeneral, ConditionalRule, ProgressionConsequence:
		return true
	}
	return false
}

// IsExam reports whether i belongs to the exam-failure family.
func (i Intent) IsExam() bool {
	return i == ExamRulesSpecific || i == ExamRulesGeneral
}

// Entities are the identifiers extracted from a question, in order of appearance.
type Entities struct {
	Courses  []string `json:"courses"`
	Programs []string `json:"programs"`
}

// Empty reports whether nothing was extracted.
func (e Entities) Empty() bool {
	return len(e.Courses) == 0 && len(e.Programs) == 0
}
