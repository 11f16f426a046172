// Command flowcoredemo builds and runs a small workflow end to end,
// exercising the template engine, token accounting, budget enforcement,
// and the execution engine's observer hooks. It replaces mbflow's
// cmd/server (a full REST+websocket API, out of scope per spec.md's
// "out of scope" list) with a programmatic demonstration of the core.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/flowcore/flowcore/internal/breaker"
	"github.com/flowcore/flowcore/internal/budget"
	"github.com/flowcore/flowcore/internal/clock"
	"github.com/flowcore/flowcore/internal/config"
	"github.com/flowcore/flowcore/internal/engine"
	"github.com/flowcore/flowcore/internal/flowcorelog"
	"github.com/flowcore/flowcore/internal/kvstore"
	"github.com/flowcore/flowcore/internal/node"
	"github.com/flowcore/flowcore/internal/pricingchain"
	"github.com/flowcore/flowcore/internal/taskctx"
	"github.com/flowcore/flowcore/internal/template"
	"github.com/flowcore/flowcore/internal/tokens"
	"github.com/flowcore/flowcore/pkg/workflow"

	"github.com/rs/zerolog"
)

type greetingInput struct {
	Name string `json:"name"`
}

const greetingSource = `Hello, {{upper name}}! Today is {{format_date now "YYYY-MM-DD"}}.`

func main() {
	cfg := config.Load()
	logger := flowcorelog.Setup(cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("demo run failed")
		os.Exit(1)
	}
}

func run(cfg config.Config, logger zerolog.Logger) error {
	ctx := context.Background()

	store := kvstore.NewMemoryStore()
	templates := template.NewEngine(256)
	compiled, err := templates.Parse(greetingSource)
	if err != nil {
		return fmt.Errorf("parsing greeting template: %w", err)
	}
	if err := store.Set(ctx, "templates", "greeting", greetingSource); err != nil {
		return fmt.Errorf("persisting template: %w", err)
	}

	counters := tokens.NewRegistry()
	pricing := tokens.NewPricingCache()
	seedPricing(pricing)
	accountant := tokens.NewAccountant(counters, pricing, time.Now)

	// A Live source is always constructed: with no OPENAI_API_KEY set,
	// ListModels simply fails auth and the chain degrades to cache/fallback,
	// which is the same graceful path a real outage takes.
	live := pricingchain.NewOpenAIPricingSource(os.Getenv("OPENAI_API_KEY"), pricingchain.DefaultOpenAIRates())
	chain, err := pricingchain.New(pricingchain.Config{
		Live:            live,
		Cache:           pricing,
		CacheTTL:        cfg.PricingCacheDuration,
		RefreshInterval: cfg.PricingUpdateInterval,
	})
	if err != nil {
		return fmt.Errorf("building pricing chain: %w", err)
	}
	defer chain.Close()

	dailyLimit, err := decimal.NewFromString(cfg.TokenDefaultDailyLimitUSD)
	if err != nil {
		return fmt.Errorf("parsing default daily limit: %w", err)
	}
	budgetManager := budget.NewManager(budget.Limits{
		PerRequestTokens: 4000,
		PerSessionTokens: 50000,
		PerDayCost:       dailyLimit,
	}, clock.System{}, time.UTC)

	registry := node.NewRegistry()
	greetID := node.NewNodeId[*greetingNode]("greet")
	logID := node.NewNodeId[*usageLogNode]("log-usage")

	greet := &greetingNode{templates: templates, compiled: compiled, accountant: accountant, budget: budgetManager}
	usageLog := &usageLogNode{accountant: accountant}

	if err := registry.Register(node.NewSync(greetID.Name(), "renders a greeting and records token usage", greet)); err != nil {
		return fmt.Errorf("registering greet node: %w", err)
	}
	if err := registry.Register(node.NewSync(logID.Name(), "logs the accumulated token usage", usageLog)); err != nil {
		return fmt.Errorf("registering log node: %w", err)
	}

	b := workflow.New("greeting-demo")
	b = workflow.StartWith(b, greetID)
	b = workflow.Then(b, logID)
	wf, err := b.Build()
	if err != nil {
		return fmt.Errorf("building workflow: %w", err)
	}

	eng := engine.New(engine.Options{
		Registry:  registry,
		Breakers:  breaker.NewRegistry(breaker.Config{}),
		Observers: []engine.Observer{engine.LogObserver{Logger: logger}},
	})

	tc, err := eng.Run(ctx, wf, greetingInput{Name: "flowcore"}, engine.RunOptions{
		WorkflowID: "greeting-demo",
		SessionID:  "demo-session",
		BudgetCheck: func(nodeName string) error {
			return budgetManager.Check("demo-session", 50, 50, decimal.Zero)
		},
	})
	if err != nil {
		return fmt.Errorf("running workflow: %w", err)
	}

	output, _ := tc.GetNodeRaw(greetID.Name())
	logger.Info().Interface("output", output).Str("status", tc.Status().String()).Msg("demo workflow finished")
	return nil
}

func seedPricing(cache *tokens.PricingCache) {
	cache.Set(tokens.PricingEntry{
		Provider:    "openai",
		Model:       "gpt-4o-mini",
		InputPer1K:  decimal.RequireFromString("0.0006"),
		OutputPer1K: decimal.RequireFromString("0.0024"),
		Currency:    tokens.DefaultCurrency,
		Source:      tokens.SourceFallback,
	})
}

// greetingNode renders the persisted greeting template and records the
// rendered text's approximate token cost against the session budget.
type greetingNode struct {
	templates  *template.Engine
	compiled   *template.Compiled
	accountant *tokens.Accountant
	budget     *budget.Manager
}

func (g *greetingNode) Process(tc *taskctx.TaskContext) (*taskctx.TaskContext, error) {
	in, err := taskctx.GetInput[greetingInput](tc)
	if err != nil {
		return nil, err
	}

	rendered, err := g.templates.Render(g.compiled, map[string]any{"name": in.Name, "now": time.Now().Format(time.RFC3339)})
	if err != nil {
		return nil, err
	}

	inTok, err := g.accountant.Count("openai", "gpt-4o-mini", rendered)
	if err != nil {
		return nil, err
	}
	entry, err := g.accountant.Record("openai", "gpt-4o-mini", inTok, 0)
	if err != nil {
		return nil, err
	}
	g.budget.Record("demo-session", "openai", "gpt-4o-mini", int(entry.InputTokens), int(entry.OutputTokens), entry.Cost)

	if err := tc.SetNode("greet", rendered); err != nil {
		return nil, err
	}
	return tc, nil
}

// usageLogNode reports the running token rollup for the session.
type usageLogNode struct {
	accountant *tokens.Accountant
}

func (l *usageLogNode) Process(tc *taskctx.TaskContext) (*taskctx.TaskContext, error) {
	rollup := l.accountant.Rollup("openai", "gpt-4o-mini")
	if err := tc.SetNode("log-usage", rollup); err != nil {
		return nil, err
	}
	return tc, nil
}
