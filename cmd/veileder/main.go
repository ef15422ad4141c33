package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/veileder/internal/advisor"
	"github.com/hpungsan/veileder/internal/config"
	"github.com/hpungsan/veileder/internal/db"
	"github.com/hpungsan/veileder/internal/intent"
	"github.com/hpungsan/veileder/internal/knowledge"
	"github.com/hpungsan/veileder/internal/llm"
	"github.com/hpungsan/veileder/internal/log"
	"github.com/hpungsan/veileder/internal/mcp"
	"github.com/hpungsan/veileder/internal/session"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"ask": true, "chat": true, "classify": true,
	"course": true, "programs": true, "program": true,
	"load": true, "status": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v"
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

func printBanner() {
	fmt.Println(`
  veileder - studieveileder

  Usage: veileder <command> [options]
         veileder --help

  MCP server mode requires piped input.`)
}

// runtime holds everything the commands and the MCP server share.
type runtime struct {
	baseDir  string
	db       *sql.DB
	cfg      *config.Config
	store    knowledge.Store
	sessions *session.Store
	advisor  *advisor.Advisor
}

func (rt *runtime) Close() {
	if rt.advisor != nil {
		rt.advisor.Close()
	}
	if rt.db != nil {
		rt.db.Close()
	}
}

// setup loads configuration and secrets, opens the database and wires the
// advisor. A missing model backend is not fatal: lookups still work and
// answers fall back to the failure message.
func setup(ctx context.Context, baseDir string) (*runtime, error) {
	cwd, _ := os.Getwd()
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	secrets, err := config.LoadEnv(filepath.Join(cwd, ".env"), filepath.Join(baseDir, ".env"))
	if err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}
	cfg.ApplySecrets(secrets)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.SetLevel(cfg.LogLevel)

	database, err := db.Init(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	db.ConfigurePool(database, cfg)

	embedderOpts := []knowledge.EmbedderOption{
		knowledge.WithEmbeddingModel(cfg.EmbeddingModel),
		knowledge.WithEmbeddingDimensions(cfg.EmbeddingDimensions),
		knowledge.WithEmbeddingMaxRetries(2),
	}
	if secrets.OpenAIAPIKey != "" {
		embedderOpts = append(embedderOpts, knowledge.WithEmbeddingAPIKey(secrets.OpenAIAPIKey))
	}
	if secrets.OpenAIBaseURL != "" {
		embedderOpts = append(embedderOpts, knowledge.WithEmbeddingBaseURL(secrets.OpenAIBaseURL))
	}
	store := knowledge.NewSQLiteStore(database, knowledge.NewOpenAIEmbedder(embedderOpts...), cfg.StoreTimeout())

	service, err := llm.New(ctx, cfg, secrets)
	if err != nil {
		log.Warnf("generative model unavailable: %v", err)
	}

	sessions := session.NewStore(cfg.SessionIdle())
	a, err := advisor.New(store, service, sessions, advisor.Options{
		Policies:         intent.DefaultTable().WithBudgets(cfg.ContextBudgets),
		Workers:          cfg.RetrievalWorkers,
		DisableRerank:    !cfg.Rerank(),
		PreviewChars:     cfg.RerankPreviewChars,
		ProgramCacheTTL:  cfg.ProgramCacheTTL(),
		MaxQuestionChars: cfg.MaxQuestionChars,
	})
	if err != nil {
		database.Close()
		return nil, err
	}

	return &runtime{
		baseDir:  baseDir,
		db:       database,
		cfg:      cfg,
		store:    store,
		sessions: sessions,
		advisor:  a,
	}, nil
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// No database needed for help or version
	if isHelpOrVersion() {
		if err := newCLIApp(nil).Run(os.Args); err != nil {
			fail("%v", err)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fail("could not determine home directory: %v", err)
	}
	baseDir := filepath.Join(homeDir, ".veileder")

	ctx := context.Background()
	rt, err := setup(ctx, baseDir)
	if err != nil {
		fail("%v", err)
	}
	defer rt.Close()

	if isCLIMode() {
		if err := newCLIApp(rt).RunContext(ctx, os.Args); err != nil {
			rt.Close()
			fail("%v", err)
		}
		return
	}

	if len(os.Args) >= 2 && isTerminal() {
		rt.Close()
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'veileder --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default)
	if unknown := mcp.ValidateDisabledTools(rt.cfg.DisabledTools); len(unknown) > 0 {
		log.Warnf("unknown disabled_tools ignored: %v", unknown)
	}
	if unknown := mcp.ValidateDisabledTypes(rt.cfg.DisabledTypes); len(unknown) > 0 {
		log.Warnf("unknown disabled_types ignored: %v", unknown)
	}
	deps := mcp.Deps{Advisor: rt.advisor, Store: rt.store, Sessions: rt.sessions}
	if err := mcp.Run(deps, rt.cfg, Version); err != nil {
		rt.Close()
		fail("%v", err)
	}
}
