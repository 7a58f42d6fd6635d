package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/kataras/golog"

	"github.com/smallnest/newsense-analyst/adapter"
	"github.com/smallnest/newsense-analyst/analysis"
	"github.com/smallnest/newsense-analyst/config"
	"github.com/smallnest/newsense-analyst/kg"
	"github.com/smallnest/newsense-analyst/log"
	"github.com/smallnest/newsense-analyst/newsense"
	"github.com/smallnest/newsense-analyst/pipeline"
	"github.com/smallnest/newsense-analyst/resolver"
	"github.com/smallnest/newsense-analyst/server"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	gl := golog.New()
	logger := log.NewGologLogger(gl)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("loading config: %v", err)
		os.Exit(1)
	}
	switch cfg.LogLevel {
	case "debug":
		logger.SetLevel(log.LogLevelDebug)
	case "warn":
		logger.SetLevel(log.LogLevelWarn)
	case "error":
		logger.SetLevel(log.LogLevelError)
	default:
		logger.SetLevel(log.LogLevelInfo)
	}

	store, err := kg.LoadFile(cfg.KnowledgeGraphPath)
	if err != nil {
		logger.Error("loading knowledge graph: %v", err)
		os.Exit(1)
	}
	logger.Info("knowledge graph loaded: %d entries", store.Snapshot().Len())

	client, err := newsense.NewClient(
		newsense.WithBaseURL(cfg.Newsense.BaseURL),
		newsense.WithCredentials(cfg.Newsense.Username, cfg.Newsense.Password),
		newsense.WithHTTPClient(&http.Client{Timeout: cfg.Newsense.Timeout}),
	)
	if err != nil {
		logger.Error("creating newsense client: %v", err)
		os.Exit(1)
	}

	units := newsense.DefaultUnitTable()
	for unit, rule := range cfg.Units {
		units[unit] = newsense.Conversion{To: rule.To, Factor: rule.Factor}
	}
	fetcher := newsense.NewFetcher(client, newsense.FetcherConfig{
		ChunkSpan:      time.Duration(cfg.Newsense.ChunkSpanDays) * 24 * time.Hour,
		MaxInFlight:    cfg.Newsense.MaxInFlight,
		MaxRetries:     cfg.Newsense.MaxRetries,
		InitialBackoff: cfg.Newsense.InitialBackoff,
		Units:          units,
	}, logger)

	model := adapter.NewOpenAIChat(cfg.AI.APIKey, cfg.AI.BaseURL, cfg.AI.Model)
	generator := analysis.NewGenerator(model, analysis.Config{
		Temperature:    cfg.AI.Temperature,
		MaxTokens:      cfg.AI.MaxTokens,
		MaxRetries:     cfg.AI.MaxRetries,
		InitialBackoff: 500 * time.Millisecond,
		Timeout:        cfg.AI.Timeout,
	}, logger)

	res := resolver.New(store, resolver.Config{
		RecencyWindow: time.Duration(cfg.Resolver.RecencyWindowDays) * 24 * time.Hour,
	})

	orch := pipeline.NewOrchestrator(res, fetcher, generator, logger)

	verifyCanonicalIDs(store, client, logger)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	srv := server.New(orch, store, cfg.KnowledgeGraphPath, logger)
	srv.RegisterRoutes(r)

	logger.Info("listening on %s", cfg.Server.Addr)
	if err := http.ListenAndServe(cfg.Server.Addr, r); err != nil {
		logger.Error("server stopped: %v", err)
		os.Exit(1)
	}
}

// verifyCanonicalIDs checks that every metric canonical id in the knowledge
// graph exists in the provider catalog. Unresolvable ids are logged as
// warnings; the server still starts.
func verifyCanonicalIDs(store *kg.Store, client *newsense.Client, logger log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	items, err := client.Catalog(ctx)
	if err != nil {
		logger.Warn("skipping canonical id verification: %v", err)
		return
	}
	known := make(map[string]bool, len(items))
	for _, item := range items {
		known[item.ID] = true
	}
	for _, e := range store.Snapshot().Entries() {
		if e.Category == kg.CategoryMetric && !known[e.CanonicalID] {
			logger.Warn("metric %q references canonical id %q not present in the provider catalog",
				e.Name, e.CanonicalID)
		}
	}
}
