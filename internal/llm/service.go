// Package llm talks to generative model backends. A Service completes a
// system+user prompt on a model tier and ranks candidate passages.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// Tier selects a model class. Narrow factual intents use the fast tier,
// overview and reasoning intents use the rich tier.
type Tier string

const (
	TierFast Tier = "fast"
	TierRich Tier = "rich"
)

// Service is a generative answering backend.
//
// Both methods fail with a SERVICE_ERROR AdvisorError on network, quota or
// timeout problems.
type Service interface {
	Complete(ctx context.Context, tier Tier, system, user string) (string, error)

	// Rank returns indices into candidates, most relevant first. The result
	// may be a selection; callers must validate it.
	Rank(ctx context.Context, tier Tier, query string, candidates []string) ([]int, error)
}

// Models maps tiers to backend model names.
type Models struct {
	Fast string
	Rich string
}

// For returns the model name for tier. Unknown tiers use the fast model.
func (m Models) For(tier Tier) string {
	if tier == TierRich && m.Rich != "" {
		return m.Rich
	}
	return m.Fast
}

const rankSystemPrompt = `Du rangerer tekstutdrag etter hvor relevante de er for et spørsmål.
Svar kun med en JSON-liste med indeksene til de relevante utdragene, mest relevant først, for eksempel [3, 0, 5].
Ikke skriv noe annet.`

// rankPrompt builds the system and user message for a ranking call.
func rankPrompt(query string, candidates []string) (string, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Spørsmål:\n%s\n\nUtdrag:\n", query)
	for i, c := range candidates {
		fmt.Fprintf(&b, "[%d] %s\n\n", i, c)
	}
	return rankSystemPrompt, b.String()
}

// completer is the single call both backends implement natively.
type completer func(ctx context.Context, tier Tier, system, user string) (string, error)

func rankWith(ctx context.Context, complete completer, tier Tier, query string, candidates []string) ([]int, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	system, user := rankPrompt(query, candidates)
	text, err := complete(ctx, tier, system, user)
	if err != nil {
		return nil, err
	}
	return ParseRanking(text, len(candidates))
}
