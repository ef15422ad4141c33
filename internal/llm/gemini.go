package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/hpungsan/veileder/internal/errors"
)

// contentGenerator is the subset of *genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini is a Service backed by the Gemini API.
type Gemini struct {
	models  contentGenerator
	names   Models
	timeout time.Duration
}

var _ Service = (*Gemini)(nil)

// NewGemini creates a Gemini-backed service.
func NewGemini(ctx context.Context, apiKey string, names Models, timeout time.Duration) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if client.Models == nil {
		return nil, fmt.Errorf("gemini client is missing the Models service")
	}
	return &Gemini{models: client.Models, names: names, timeout: timeout}, nil
}

// Complete generates a reply with system as the system instruction.
func (g *Gemini) Complete(ctx context.Context, tier Tier, system, user string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
	}
	contents := []*genai.Content{genai.NewContentFromText(user, genai.RoleUser)}

	model := g.names.For(tier)
	rsp, err := g.models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", errors.NewServiceError("complete", err)
	}
	if rsp == nil || len(rsp.Candidates) == 0 {
		return "", errors.NewServiceError("complete", fmt.Errorf("model %s returned no candidates", model))
	}
	return strings.TrimSpace(rsp.Text()), nil
}

// Rank asks the model to order candidates by relevance to query.
func (g *Gemini) Rank(ctx context.Context, tier Tier, query string, candidates []string) ([]int, error) {
	return rankWith(ctx, g.Complete, tier, query, candidates)
}
