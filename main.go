package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/tiendahogar/agent-core/internal/agent/capability"
	"github.com/tiendahogar/agent-core/internal/agent/graph"
	"github.com/tiendahogar/agent-core/internal/agent/model"
	"github.com/tiendahogar/agent-core/internal/agent/repo"
	"github.com/tiendahogar/agent-core/internal/catalog"
	"github.com/tiendahogar/agent-core/internal/core"
	"github.com/tiendahogar/agent-core/internal/stock"
	logx "github.com/tiendahogar/agent-core/pkg/logger"
	pkgredis "github.com/tiendahogar/agent-core/pkg/redis"
)

// AppConfig defines all configurable parameters for the agent example,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" default:"development"`

	// Infrastructure
	Redis           pkgredis.Config
	UseMemoryStores bool `envconfig:"USE_MEMORY_STORES" default:"false"`

	// LLM provider. Without an API key the deterministic heuristic
	// capabilities are used instead, which is enough for a local demo.
	APIKey  string `envconfig:"GEMINI_API_KEY"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	Classifier   model.ClassifierModelConfig
	Generator    model.GeneratorModelConfig
	Persona      model.PersonaConfig
	Conversation model.ConversationConfig
	Reservation  model.ReservationConfig
}

func main() {
	fmt.Println("Tienda Hogar conversation engine demo")
	ctx := context.Background()
	// Load .env file
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	// Load structured config from env
	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(envCfg.Environment)})

	deps, cleanup, err := buildDeps(ctx, envCfg)
	if err != nil {
		log.Fatalf("Failed to build dependencies: %v", err)
	}
	defer cleanup()

	sweepInterval, err := envCfg.Reservation.ParseSweepInterval()
	if err != nil {
		log.Fatalf("Invalid RESERVATION_SWEEP_INTERVAL '%s': %v", envCfg.Reservation.SweepInterval, err)
	}
	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go deps.Ledger.RunSweeper(sweepCtx, sweepInterval)

	engine := graph.NewEngine(deps, graph.Config{
		Conversation: envCfg.Conversation,
		Persona:      envCfg.Persona,
	})

	started, err := engine.StartConversation(ctx, "demo-user-1")
	if err != nil {
		log.Fatalf("Failed to start conversation: %v", err)
	}
	fmt.Printf("\n🤖 %s\n", started.Reply)

	testQueries := []struct {
		description string
		query       string
	}{
		{
			description: "Product discovery",
			query:       "Hola, busco un sofá para mi sala",
		},
		{
			description: "Cart building",
			query:       "Me gusta, agrega el sofá al carrito",
		},
		{
			description: "Order confirmation",
			query:       "Perfecto, quiero confirmar orden y pagar",
		},
	}

	for i, test := range testQueries {
		fmt.Printf("\n🚀 Turn %d: %s\n", i+1, test.description)
		fmt.Printf("Customer: %q\n", test.query)

		result, err := engine.ProcessMessage(ctx, started.ConversationID, "demo-user-1", test.query)
		if err != nil {
			log.Fatalf("Failed to process turn %d: %v", i+1, err)
		}

		fmt.Printf("🤖 %s\n", result.Reply)
		if len(result.Cart) > 0 {
			fmt.Printf("🛒 Cart: %d item(s), stage %s\n", len(result.Cart), result.Stage)
		}
		if result.RequiresHuman {
			fmt.Printf("⚠️  Waiting for supervisor (escalation %s)\n", result.Escalation.ID)
		}
		fmt.Println("─────────────────────────────────────────────")

		// add slight delay between turns for readability
		time.Sleep(500 * time.Millisecond)
	}

	fmt.Println("\n🎉 Demo conversation completed!")
}

// buildDeps assembles stores and capabilities according to the environment:
// Redis-backed stores unless USE_MEMORY_STORES is set, Gemini capabilities
// when an API key is present, heuristic ones otherwise.
func buildDeps(ctx context.Context, envCfg AppConfig) (graph.Deps, func(), error) {
	cat := catalog.NewStore(catalog.SeedProducts)

	ttl, err := envCfg.Reservation.ParseTTL()
	if err != nil {
		return graph.Deps{}, nil, fmt.Errorf("invalid RESERVATION_TTL %q: %w", envCfg.Reservation.TTL, err)
	}

	deps := graph.Deps{
		Catalog: cat,
		Ledger:  stock.NewLedger(cat, ttl),
	}
	cleanup := func() {}

	if envCfg.UseMemoryStores {
		deps.Checkpoints = repo.NewMemoryCheckpointStore()
		deps.Escalations = repo.NewMemoryEscalationStore()
		deps.Profiles = repo.NewMemoryProfileStore()
	} else {
		checkpointTTL, err := time.ParseDuration(envCfg.Conversation.CheckpointTTL)
		if err != nil {
			return graph.Deps{}, nil, fmt.Errorf("invalid CONVERSATION_CHECKPOINT_TTL %q: %w", envCfg.Conversation.CheckpointTTL, err)
		}
		rdb, err := envCfg.Redis.New()
		if err != nil {
			return graph.Deps{}, nil, fmt.Errorf("initialise Redis client: %w", err)
		}
		cleanup = func() { rdb.Close() }
		fmt.Println("Connected to Redis successfully")

		deps.Checkpoints = repo.NewRedisCheckpointStore(rdb, checkpointTTL)
		deps.Escalations = repo.NewRedisEscalationStore(rdb)
		deps.Profiles = repo.NewRedisProfileStore(rdb)
	}

	if envCfg.APIKey != "" {
		g, err := capability.NewGemini(ctx, capability.GeminiConfig{
			APIKey:     envCfg.APIKey,
			BaseURL:    envCfg.BaseURL,
			Classifier: envCfg.Classifier,
			Generator:  envCfg.Generator,
			Persona:    envCfg.Persona,
		})
		if err != nil {
			cleanup()
			return graph.Deps{}, nil, fmt.Errorf("initialise Gemini capabilities: %w", err)
		}
		deps.Classifier = g
		deps.Generator = g
		deps.Summarizer = g
		deps.Extractor = g
	} else {
		fmt.Println("GEMINI_API_KEY not set, using heuristic capabilities")
		h := capability.NewHeuristic(envCfg.Persona)
		deps.Generator = h
		deps.Summarizer = h
		deps.Extractor = h
	}

	return deps, cleanup, nil
}
