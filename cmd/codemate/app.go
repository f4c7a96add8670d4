package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"time"

	"github.com/rahul/codemate/internal/agent"
	"github.com/rahul/codemate/internal/codegen"
	"github.com/rahul/codemate/internal/governance"
	"github.com/rahul/codemate/internal/llm"
	"github.com/rahul/codemate/internal/metrics"
	"github.com/rahul/codemate/internal/observability"
	"github.com/rahul/codemate/internal/prompts"
	"github.com/rahul/codemate/internal/store"
	"github.com/rahul/codemate/internal/tools"
	"github.com/rahul/codemate/pkg/config"
	"go.uber.org/zap"
)

type appOptions struct {
	// LogOutput defaults to the terminal-synchronized stderr writer.
	LogOutput io.Writer
}

// app holds the wired agent for one process.
type app struct {
	Config       *config.Config
	Logger       *observability.Logger
	Metrics      *metrics.Metrics
	History      *store.HistoryStore
	Memory       *agent.Memory
	Orchestrator *agent.Orchestrator
	Brain        *agent.TaskBrain

	closers []func()
}

func newApp(_ context.Context, opts appOptions) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger, err := observability.NewLogger(observability.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     opts.LogOutput,
		LLMLogPath: cfg.Log.LLMLogPath,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid log config: %w", err)
	}
	a := &app{Config: cfg, Logger: logger, Metrics: metrics.New()}
	a.closers = append(a.closers, logger.Sync)

	_, provider, err := cfg.GetDefaultProvider()
	if err != nil {
		return nil, err
	}
	model, err := llm.NewOpenAI(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create model client: %w", err)
	}

	profiles := modelProfiles(cfg)
	gw := llm.NewGateway(model, profiles, logger.Named("llm"))
	gw.Observer = func(task llm.TaskType, d time.Duration, err error) {
		a.Metrics.ObserveLLM(string(task), d, err)
	}

	pm := prompts.NewManager(cfg.App.PromptsDir)
	policy := newPolicy(cfg)

	researcher, err := a.newResearcher(gw, pm)
	if err != nil {
		return nil, err
	}

	sandbox := tools.NewSandbox(cfg.Sandbox.Python, cfg.Sandbox.BuildDir,
		cfg.Sandbox.ExecTimeout.Duration, cfg.Sandbox.CompileTimeout.Duration, cfg.Sandbox.InstallTimeout.Duration)

	gen := codegen.NewGenerator(gw, pm, policy, cfg.Codegen.OutputDir, cfg.Codegen.DefaultLanguage, logger.Named("codegen"))
	gen.Metrics = a.Metrics

	registry := agent.NewDefaultRegistry(agent.Toolbox{
		Researcher: researcher,
		Generator:  gen,
		Runner:     sandbox,
		Files:      tools.NewFilesystem(cfg.App.Workspace),
		Policy:     policy,
		Logger:     logger,
		Metrics:    a.Metrics,
	})

	var archive agent.Archive
	if cfg.Memory.Type == "sqlite" && cfg.Memory.Path != "" {
		a.History, err = store.NewHistoryStore(cfg.Memory.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		a.closers = append(a.closers, func() { _ = a.History.Close() })
		archive = agent.StoreArchive{Store: a.History, Keep: cfg.Memory.ArchiveLimit}
	}
	a.Memory = agent.NewMemory(cfg.Memory.Limit, archive)

	policyMode, err := agent.ParseAutoExecPolicy(cfg.Orchestrator.AutoExecPolicy)
	if err != nil {
		return nil, err
	}
	planner := agent.NewPlanner(gw, pm, registry, logger.Named("planner"))
	a.Orchestrator = agent.NewOrchestrator(planner, registry, a.Memory, policyMode, logger, a.Metrics)

	var conversation agent.ConversationLog
	if a.History != nil {
		conversation = a.History
	}
	a.Brain = agent.NewTaskBrain(a.Orchestrator, conversation)

	logger.Info("agent ready",
		zap.String("provider_model", provider.Model),
		zap.String("auto_exec_policy", string(policyMode)),
		zap.String("fetcher", cfg.Search.Fetcher),
		zap.Int("memory_limit", cfg.Memory.Limit))
	return a, nil
}

func (a *app) newResearcher(gw *llm.Gateway, pm *prompts.Manager) (*tools.Researcher, error) {
	cfg := a.Config.Search
	provider, err := tools.NewDuckDuckGo(cfg.MaxResults + 2)
	if err != nil {
		return nil, fmt.Errorf("failed to create search provider: %w", err)
	}

	var fetcher tools.Fetcher
	switch cfg.Fetcher {
	case "browser":
		bf := tools.NewBrowserFetcher(cfg.FetchTimeout.Duration)
		a.closers = append(a.closers, bf.Close)
		fetcher = bf
	default:
		fetcher = tools.NewHTTPFetcher(cfg.FetchTimeout.Duration)
	}

	return &tools.Researcher{
		Provider:          provider,
		Fetcher:           fetcher,
		Summarizer:        llm.Summarizer{Completer: gw, Prompts: pm},
		MaxResults:        cfg.MaxResults,
		ContextTokenLimit: cfg.ContextTokenLimit,
		Language:          cfg.Language,
		Logger:            a.Logger.Named("research"),
	}, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// modelProfiles copies the configured profiles with the summary token budget applied.
func modelProfiles(cfg *config.Config) map[string]config.ModelProfile {
	profiles := maps.Clone(cfg.Models)
	if profiles == nil {
		profiles = map[string]config.ModelProfile{}
	}
	if n := cfg.Search.SummaryMaxTokens; n > 0 {
		p := cfg.Profile(string(llm.TaskSummarization))
		p.MaxTokens = n
		profiles[string(llm.TaskSummarization)] = p
	}
	return profiles
}

func newPolicy(cfg *config.Config) *governance.DefaultPolicyEngine {
	policy := governance.NewCodeSafetyPolicy()
	for _, kind := range cfg.Sandbox.DeniedKinds {
		policy.DenyKind(kind)
	}
	return policy
}
