package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"

	"surveyor/aitools"
	"surveyor/config"
	"surveyor/llm"
	"surveyor/plan"
	"surveyor/research"
)

const plannerMaxTokens = 4000

// newLogger builds the process logger. SURVEYOR_LOG_LEVEL overrides the
// level (debug, info, warn, error).
func newLogger() hclog.Logger {
	level := hclog.Warn
	if env := os.Getenv("SURVEYOR_LOG_LEVEL"); env != "" {
		level = hclog.LevelFromString(env)
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   "surveyor",
		Output: os.Stderr,
		Level:  level,
	})
}

// buildOrchestrator wires providers, tools, planner, sub-agents and
// synthesizer from the loaded config.
func buildOrchestrator(ctx context.Context, cfg *config.Config, logger hclog.Logger) (*research.Orchestrator, error) {
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("no model blocks configured")
	}

	router := llm.NewRouter()
	for i := range cfg.Models {
		m := &cfg.Models[i]
		provider, err := newProvider(ctx, m)
		if err != nil {
			return nil, fmt.Errorf("model '%s': %w", m.Name, err)
		}
		for _, ref := range m.AllowedModels {
			if id, ok := config.SupportedModels[m.Provider][ref]; ok {
				router.Register(id, provider)
			}
		}
	}

	rc := cfg.Research

	// Model refs fall back to the first configured model when unset.
	defaultRef := cfg.Models[0].AllowedModels[0]
	resolve := func(ref string, fallbacks ...string) (string, error) {
		for _, fb := range fallbacks {
			if ref != "" {
				break
			}
			ref = fb
		}
		_, id, err := config.ResolveModelRef(ref, cfg.Models)
		return id, err
	}

	plannerModel, err := resolve(rc.PlannerModel, defaultRef)
	if err != nil {
		return nil, fmt.Errorf("planner_model: %w", err)
	}
	synthesisModel, err := resolve(rc.SynthesisModel, rc.PlannerModel, defaultRef)
	if err != nil {
		return nil, fmt.Errorf("synthesis_model: %w", err)
	}

	var tierCfg config.TierConfig
	if rc.Tiers != nil {
		tierCfg = *rc.Tiers
	}
	heavy, err := resolve(tierCfg.Heavy, rc.PlannerModel, defaultRef)
	if err != nil {
		return nil, fmt.Errorf("tiers.heavy: %w", err)
	}
	medium, err := resolve(tierCfg.Medium, tierCfg.Heavy, rc.PlannerModel, defaultRef)
	if err != nil {
		return nil, fmt.Errorf("tiers.medium: %w", err)
	}
	light, err := resolve(tierCfg.Light, tierCfg.Medium, tierCfg.Heavy, rc.PlannerModel, defaultRef)
	if err != nil {
		return nil, fmt.Errorf("tiers.light: %w", err)
	}

	budgets := research.Budgets{
		MaxSubagents:        rc.MaxSubagents,
		MaxSearchesPerAgent: rc.MaxSearchesPerAgent,
		MaxRounds:           rc.MaxRounds,
		CallTimeout:         time.Duration(rc.CallTimeoutSecs) * time.Second,
		ConversationTimeout: time.Duration(rc.ConversationTimeoutSecs) * time.Second,
		SynthesisTimeout:    time.Duration(rc.SynthesisTimeoutSecs) * time.Second,
		SynthesisMaxTokens:  rc.SynthesisMaxTokens,
		MaxToolResultChars:  rc.MaxToolResultChars,
	}

	planner := plan.NewPlanner(router, plannerModel, plannerMaxTokens, plan.Limits{
		MaxSubagents:        budgets.MaxSubagents,
		MaxSearchesPerAgent: budgets.MaxSearchesPerAgent,
	}, logger.Named("planner"))

	tiers := research.ModelTiers{Light: light, Medium: medium, Heavy: heavy}
	subagents := research.NewSubagentRunner(router, tiers, budgets, newToolsetBuilder(cfg.Search), logger.Named("subagent"))
	if dir := os.Getenv("SURVEYOR_TURN_LOG_DIR"); dir != "" {
		subagents.SetTurnLogDir(dir)
	}

	synth := research.NewSynthesizer(router, synthesisModel, budgets.SynthesisMaxTokens, logger.Named("synthesis"))

	return research.NewOrchestrator(planner, subagents, synth, budgets, logger.Named("research")), nil
}

func newProvider(ctx context.Context, m *config.Model) (llm.Provider, error) {
	switch m.Provider {
	case config.ProviderAnthropic:
		return llm.NewAnthropicProvider(m.APIKey), nil
	case config.ProviderOpenAI:
		return llm.NewOpenAIProvider(m.APIKey), nil
	case config.ProviderGemini:
		return llm.NewGeminiProvider(ctx, m.APIKey)
	default:
		return nil, fmt.Errorf("unsupported provider '%s'", m.Provider)
	}
}

// newToolsetBuilder returns the per-subagent toolset factory. Each subagent
// run gets fresh tool instances.
func newToolsetBuilder(search *config.SearchConfig) research.ToolsetBuilder {
	return func() (*aitools.Registry, *aitools.CompleteTaskTool) {
		complete := aitools.NewCompleteTaskTool()

		var tools []aitools.Tool
		if key := search.BraveKey(); key != "" {
			tools = append(tools, aitools.NewWebSearchTool(key, 5))
		}
		if search.WikipediaEnabled() {
			tools = append(tools, aitools.NewWikipediaSearchTool())
		}
		if search.FetchEnabled() {
			tools = append(tools, aitools.NewWebFetchTool())
		}
		if search.BrowserEnabled() {
			tools = append(tools, aitools.NewBrowserFetchTool())
		}
		tools = append(tools, complete)

		return aitools.NewRegistry(tools...), complete
	}
}
