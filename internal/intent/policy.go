package intent

import "github.com/hpungsan/veileder/internal/llm"

// Policy is the answering configuration for one intent.
type Policy struct {
	Tier            llm.Tier `json:"tier"`
	MaxContextChars int      `json:"max_context_chars"`

	// NeedsRetrieval marks intents that must not be answered without context.
	NeedsRetrieval bool `json:"needs_retrieval"`

	// TopK is the number of rule chunks fetched by similarity; 0 skips rules.
	TopK int `json:"top_k"`

	// RerankK caps the chunks kept after reranking; 0 disables reranking.
	RerankK int `json:"rerank_k"`
}

// Table maps intents to policies.
type Table map[Intent]Policy

// DefaultTable returns the built-in policies.
func DefaultTable() Table {
	return Table{
		OffTopic:               {Tier: llm.TierFast},
		ConceptExplanation:     {Tier: llm.TierFast, MaxContextChars: 4000},
		SpecificEmne:           {Tier: llm.TierFast, MaxContextChars: 6000, NeedsRetrieval: true, TopK: 3},
		StudyOverview:          {Tier: llm.TierRich, MaxContextChars: 12000, NeedsRetrieval: true},
		StudyFollowup:          {Tier: llm.TierRich, MaxContextChars: 12000, NeedsRetrieval: true},
		Comparison:             {Tier: llm.TierRich, MaxContextChars: 16000, NeedsRetrieval: true},
		DeadlineTimebound:      {Tier: llm.TierFast, MaxContextChars: 6000, NeedsRetrieval: true, TopK: 8},
		AdminRules:             {Tier: llm.TierFast, MaxContextChars: 6000, NeedsRetrieval: true, TopK: 8},
		ExamRulesSpecific:      {Tier: llm.TierFast, MaxContextChars: 6000, NeedsRetrieval: true, TopK: 12, RerankK: 8},
		ExamRulesGeneral:       {Tier: llm.TierFast, MaxContextChars: 8000, NeedsRetrieval: true, TopK: 12, RerankK: 8},
		ConditionalRule:        {Tier: llm.TierRich, MaxContextChars: 10000, NeedsRetrieval: true, TopK: 20, RerankK: 8},
		ProgressionConsequence: {Tier: llm.TierRich, MaxContextChars: 10000, NeedsRetrieval: true, TopK: 20, RerankK: 8},
	}
}

// WithBudgets returns a copy with context budgets overridden by intent name.
// Unknown names and non-positive values are ignored.
func (t Table) WithBudgets(budgets map[string]int) Table {
	out := make(Table, len(t))
	for k, v := range t {
		out[k] = v
	}
	for name, chars := range budgets {
		i := Intent(name)
		p, ok := out[i]
		if !ok || chars <= 0 {
			continue
		}
		p.MaxContextChars = chars
		out[i] = p
	}
	return out
}

// Lookup returns the policy for i. Unknown intents get the off_topic policy.
func (t Table) Lookup(i Intent) Policy {
	if p, ok := t[i]; ok {
		return p
	}
	return t[OffTopic]
}
