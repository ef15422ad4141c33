package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/hpungsan/veileder/internal/errors"
)

// OpenAI is a Service backed by the chat completions API.
type OpenAI struct {
	client  openai.Client
	models  Models
	timeout time.Duration
}

var _ Service = (*OpenAI)(nil)

// OpenAIConfig configures an OpenAI service.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Models     Models
	Timeout    time.Duration
	MaxRetries int

	// RequestOptions are appended to the client options.
	RequestOptions []option.RequestOption
}

// NewOpenAI creates an OpenAI-backed service.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	opts = append(opts, cfg.RequestOptions...)

	return &OpenAI{
		client:  openai.NewClient(opts...),
		models:  cfg.Models,
		timeout: cfg.Timeout,
	}
}

// Complete sends one system and one user message and returns the reply text.
func (o *OpenAI) Complete(ctx context.Context, tier Tier, system, user string) (string, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(o.models.For(tier)),
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{OfString: openai.String(system)},
				},
			},
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{OfString: openai.String(user)},
				},
			},
		},
	}

	rsp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", errors.NewServiceError("complete", err)
	}
	if len(rsp.Choices) == 0 {
		return "", errors.NewServiceError("complete", fmt.Errorf("model %s returned no choices", params.Model))
	}
	return strings.TrimSpace(rsp.Choices[0].Message.Content), nil
}

// Rank asks the model to order candidates by relevance to query.
func (o *OpenAI) Rank(ctx context.Context, tier Tier, query string, candidates []string) ([]int, error) {
	return rankWith(ctx, o.Complete, tier, query, candidates)
}
