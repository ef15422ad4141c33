package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Provider names for the generative answering service.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config holds application configuration.
type Config struct {
	// Provider selects the generative backend: "openai" or "gemini".
	Provider string `json:"provider,omitempty"`

	// FastModel is the model behind the cheap tier (narrow factual intents, reranking).
	FastModel string `json:"fast_model,omitempty"`

	// RichModel is the model behind the rich tier (comparison, overview, conditional intents).
	RichModel string `json:"rich_model,omitempty"`

	// EmbeddingModel must match the model that produced the stored rule-chunk vectors.
	EmbeddingModel string `json:"embedding_model,omitempty"`

	// EmbeddingDimensions is passed to text-embedding-3 models.
	EmbeddingDimensions int `json:"embedding_dimensions,omitempty"`

	// RerankEnabled toggles the model-based rerank step for rule intents.
	// Nil means "not set" so that an overlay can switch it off.
	RerankEnabled *bool `json:"rerank_enabled,omitempty"`

	// RerankPreviewChars truncates each rerank candidate before it is sent to the model.
	RerankPreviewChars int `json:"rerank_preview_chars,omitempty"`

	// StoreTimeoutMs bounds each knowledge store call (lookup, embed, nearest).
	StoreTimeoutMs int `json:"store_timeout_ms,omitempty"`

	// ModelTimeoutMs bounds each generative call (complete, rank).
	ModelTimeoutMs int `json:"model_timeout_ms,omitempty"`

	// RetrievalWorkers sizes the worker pool that runs retrieval branches.
	RetrievalWorkers int `json:"retrieval_workers,omitempty"`

	// SessionIdleMinutes resets a conversation's subject after this much inactivity.
	// 0 disables expiry. Nil means "not set".
	SessionIdleMinutes *int `json:"session_idle_minutes,omitempty"`

	// ProgramCacheSeconds caches the known-programs list in the entity extractor.
	// 0 reads the list from the store on every question. Nil means "not set".
	ProgramCacheSeconds *int `json:"program_cache_seconds,omitempty"`

	// MaxQuestionChars rejects longer questions as invalid requests.
	MaxQuestionChars int `json:"max_question_chars,omitempty"`

	// ContextBudgets overrides the per-intent context character budget.
	// Keys are intent tags (e.g. "study_overview"). Unknown keys are logged as warnings.
	ContextBudgets map[string]int `json:"context_budgets,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited). Only set if you experience contention.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	// 0 means use sql.DB default. Typically set equal to DBMaxOpenConns.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of type names to disable entirely.
	// Known types: "advisor", "course", "program".
	DisabledTypes []string `json:"disabled_types,omitempty"`

	// LogLevel is one of debug, info, warn, error, fatal.
	LogLevel string `json:"log_level,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	rerank := true
	idle, cache := 60, 300
	return &Config{
		Provider:            ProviderOpenAI,
		FastModel:           "gpt-4.1-mini",
		RichModel:           "gpt-5",
		EmbeddingModel:      "text-embedding-3-small",
		EmbeddingDimensions: 1536,
		RerankEnabled:       &rerank,
		RerankPreviewChars:  600,
		StoreTimeoutMs:      10000,
		ModelTimeoutMs:      60000,
		RetrievalWorkers:    4,
		SessionIdleMinutes:  &idle,
		ProgramCacheSeconds: &cache,
		MaxQuestionChars:    2000,
		LogLevel:            "info",
	}
}

// Rerank reports whether reranking is enabled.
func (c *Config) Rerank() bool {
	return c.RerankEnabled != nil && *c.RerankEnabled
}

// StoreTimeout returns the per-call knowledge store timeout.
func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutMs) * time.Millisecond
}

// ModelTimeout returns the per-call generative service timeout.
func (c *Config) ModelTimeout() time.Duration {
	return time.Duration(c.ModelTimeoutMs) * time.Millisecond
}

// SessionIdle returns the conversation idle expiry.
func (c *Config) SessionIdle() time.Duration {
	if c.SessionIdleMinutes == nil {
		return 0
	}
	return time.Duration(*c.SessionIdleMinutes) * time.Minute
}

// ProgramCacheTTL returns how long the extractor may reuse the program list.
func (c *Config) ProgramCacheTTL() time.Duration {
	if c.ProgramCacheSeconds == nil {
		return 0
	}
	return time.Duration(*c.ProgramCacheSeconds) * time.Second
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("provider must be %q or %q, got %q", ProviderOpenAI, ProviderGemini, c.Provider)
	}
	if c.FastModel == "" || c.RichModel == "" {
		return fmt.Errorf("fast_model and rich_model cannot be empty")
	}
	if c.SessionIdleMinutes != nil && *c.SessionIdleMinutes < 0 {
		return fmt.Errorf("session_idle_minutes must be >= 0")
	}
	if c.ProgramCacheSeconds != nil && *c.ProgramCacheSeconds < 0 {
		return fmt.Errorf("program_cache_seconds must be >= 0")
	}
	if c.RetrievalWorkers < 0 {
		return fmt.Errorf("retrieval_workers must be >= 0")
	}
	for intent, budget := range c.ContextBudgets {
		if budget < 0 {
			return fmt.Errorf("context_budgets[%s] must be >= 0", intent)
		}
	}
	return nil
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.veileder.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.veileder) and repo (.veileder) directories.
// Repo config is found by walking upward from startDir to find the nearest .veileder/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .veileder/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".veileder", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated;
// budget maps are merged key by key with overlay winning.
func Merge(base, overlay *Config) *Config {
	result := &Config{
		Provider:            pickString(overlay.Provider, base.Provider),
		FastModel:           pickString(overlay.FastModel, base.FastModel),
		RichModel:           pickString(overlay.RichModel, base.RichModel),
		EmbeddingModel:      pickString(overlay.EmbeddingModel, base.EmbeddingModel),
		LogLevel:            pickString(overlay.LogLevel, base.LogLevel),
		EmbeddingDimensions: pickInt(overlay.EmbeddingDimensions, base.EmbeddingDimensions),
		RerankPreviewChars:  pickInt(overlay.RerankPreviewChars, base.RerankPreviewChars),
		StoreTimeoutMs:      pickInt(overlay.StoreTimeoutMs, base.StoreTimeoutMs),
		ModelTimeoutMs:      pickInt(overlay.ModelTimeoutMs, base.ModelTimeoutMs),
		RetrievalWorkers:    pickInt(overlay.RetrievalWorkers, base.RetrievalWorkers),
		SessionIdleMinutes:  pickIntPtr(overlay.SessionIdleMinutes, base.SessionIdleMinutes),
		ProgramCacheSeconds: pickIntPtr(overlay.ProgramCacheSeconds, base.ProgramCacheSeconds),
		MaxQuestionChars:    pickInt(overlay.MaxQuestionChars, base.MaxQuestionChars),
		DBMaxOpenConns:      pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns),
		DBMaxIdleConns:      pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns),
	}

	result.RerankEnabled = base.RerankEnabled
	if overlay.RerankEnabled != nil {
		result.RerankEnabled = overlay.RerankEnabled
	}

	if len(base.ContextBudgets)+len(overlay.ContextBudgets) > 0 {
		result.ContextBudgets = make(map[string]int, len(base.ContextBudgets)+len(overlay.ContextBudgets))
		maps.Copy(result.ContextBudgets, base.ContextBudgets)
		maps.Copy(result.ContextBudgets, overlay.ContextBudgets)
	}

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func pickString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return strings.TrimSpace(overlay)
	}
	return base
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// pickIntPtr keeps an explicit zero from the overlay.
func pickIntPtr(overlay, base *int) *int {
	if overlay != nil {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

// Secrets holds credentials and endpoints that never live in config.json.
type Secrets struct {
	OpenAIAPIKey  string
	OpenAIBaseURL string
	GeminiAPIKey  string
	Provider      string
}

// LoadEnv loads .env files (missing files are skipped; existing environment
// variables are never overwritten) and reads the secrets from the environment.
func LoadEnv(envFiles ...string) (*Secrets, error) {
	for _, path := range envFiles {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	return &Secrets{
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		Provider:      strings.ToLower(strings.TrimSpace(os.Getenv("VEILEDER_PROVIDER"))),
	}, nil
}

// ApplySecrets lets the environment pick the provider over config.json.
func (c *Config) ApplySecrets(s *Secrets) {
	if s != nil && s.Provider != "" {
		c.Provider = s.Provider
	}
}
