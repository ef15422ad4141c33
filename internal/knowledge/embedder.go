package knowledge

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hpungsan/veileder/internal/errors"
	"github.com/hpungsan/veileder/internal/log"
)

const (
	// DefaultEmbeddingModel is the embedding model used when none is configured.
	DefaultEmbeddingModel = "text-embedding-3-small"
	// DefaultEmbeddingDimensions matches DefaultEmbeddingModel.
	DefaultEmbeddingDimensions = 1536

	defaultMaxRetries    = 2
	textEmbedding3Prefix = "text-embedding-3"
)

// OpenAIEmbedder embeds text through the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client         openai.Client
	model          string
	dimensions     int
	apiKey         string
	baseURL        string
	maxRetries     int
	requestOptions []option.RequestOption
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// EmbedderOption configures an OpenAIEmbedder.
type EmbedderOption func(*OpenAIEmbedder)

// WithEmbeddingModel sets the embedding model.
func WithEmbeddingModel(model string) EmbedderOption {
	return func(e *OpenAIEmbedder) {
		if model != "" {
			e.model = model
		}
	}
}

// WithEmbeddingDimensions sets the vector size for text-embedding-3 models.
func WithEmbeddingDimensions(dimensions int) EmbedderOption {
	return func(e *OpenAIEmbedder) {
		if dimensions > 0 {
			e.dimensions = dimensions
		}
	}
}

// WithEmbeddingAPIKey sets the API key. Without it the client reads OPENAI_API_KEY.
func WithEmbeddingAPIKey(apiKey string) EmbedderOption {
	return func(e *OpenAIEmbedder) { e.apiKey = apiKey }
}

// WithEmbeddingBaseURL points the client at an OpenAI-compatible endpoint.
func WithEmbeddingBaseURL(baseURL string) EmbedderOption {
	return func(e *OpenAIEmbedder) { e.baseURL = baseURL }
}

// WithEmbeddingMaxRetries sets the client retry count.
func WithEmbeddingMaxRetries(n int) EmbedderOption {
	return func(e *OpenAIEmbedder) {
		if n < 0 {
			n = 0
		}
		e.maxRetries = n
	}
}

// WithEmbeddingRequestOptions appends raw request options, e.g. for tests.
func WithEmbeddingRequestOptions(opts ...option.RequestOption) EmbedderOption {
	return func(e *OpenAIEmbedder) {
		e.requestOptions = append(e.requestOptions, opts...)
	}
}

// NewOpenAIEmbedder creates an embedder.
func NewOpenAIEmbedder(opts ...EmbedderOption) *OpenAIEmbedder {
	e := &OpenAIEmbedder{
		model:      DefaultEmbeddingModel,
		dimensions: DefaultEmbeddingDimensions,
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(e)
	}

	var clientOpts []option.RequestOption
	if e.apiKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(e.apiKey))
	}
	if e.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(e.baseURL))
	}
	clientOpts = append(clientOpts, option.WithMaxRetries(e.maxRetries))
	clientOpts = append(clientOpts, e.requestOptions...)

	e.client = openai.NewClient(clientOpts...)
	return e
}

// Embed returns the embedding of text as float32 values.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.NewInvalidRequest("text cannot be empty")
	}

	request := openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if strings.HasPrefix(e.model, textEmbedding3Prefix) {
		request.Dimensions = openai.Int(int64(e.dimensions))
	}

	rsp, err := e.client.Embeddings.New(ctx, request)
	if err != nil {
		return nil, errors.NewServiceError("embed", err)
	}
	if len(rsp.Data) == 0 || len(rsp.Data[0].Embedding) == 0 {
		log.Warnf("embedding response for model %s was empty", e.model)
		return nil, errors.NewServiceError("embed", fmt.Errorf("empty embedding response"))
	}

	raw := rsp.Data[0].Embedding
	out := make([]float32, len(raw))
	for i, v := range raw {
		out[i] = float32(v)
	}
	return out, nil
}
