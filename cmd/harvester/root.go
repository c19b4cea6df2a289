package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/jobpulse/harvester/internal/ai"
	"github.com/jobpulse/harvester/internal/catalog"
	"github.com/jobpulse/harvester/internal/classify"
	"github.com/jobpulse/harvester/internal/config"
	"github.com/jobpulse/harvester/internal/ingest"
	"github.com/jobpulse/harvester/internal/model"
	"github.com/jobpulse/harvester/internal/orchestrate"
	"github.com/jobpulse/harvester/internal/queue"
	"github.com/jobpulse/harvester/internal/strategy"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "harvester",
	Short: "Harvest job postings from employer career pages",
	Long:  "Harvester discovers employer career pages, classifies their listing systems, extracts structured job records, and ingests them without duplication.",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: HARVESTER_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > HARVESTER_CONFIG env var > "./config.yaml"
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if env := os.Getenv("HARVESTER_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

// harvestEnv holds everything a command needs to run the pipeline, plus a
// close func that tears the connections down in order.
type harvestEnv struct {
	cfg          *config.Config
	catalog      *catalog.Catalog
	ingestor     *ingest.Ingestor
	queue        *queue.Queue
	orchestrator *orchestrate.Orchestrator
	logger       *slog.Logger
	close        func()
}

// buildEnv opens every backend and wires the orchestrator. Connectivity
// failures here are fatal for the run: no useful partial progress is
// possible without the queue or the store.
func buildEnv(ctx context.Context, logger *slog.Logger) (*harvestEnv, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	cat, err := catalog.Open(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		cat.Close()
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		cat.Close()
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		cat.Close()
		pool.Close()
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", cfg.RedisURL, err)
	}
	rdb := redis.NewClient(redisOpts)

	q, err := queue.New(ctx, rdb, queue.Options{
		Name:        cfg.Queue.Name,
		Concurrency: cfg.Queue.Concurrency,
		RatePerSec:  cfg.Queue.RatePerSec,
		MaxAttempts: cfg.Queue.MaxAttempts,
		BaseDelay:   cfg.Queue.BaseDelay,
	}, logger)
	if err != nil {
		cat.Close()
		pool.Close()
		rdb.Close()
		return nil, err
	}

	ingestor := ingest.New(pool, logger)
	if err := ingestor.Migrate(ctx); err != nil {
		cat.Close()
		pool.Close()
		rdb.Close()
		return nil, err
	}

	fetchClient := &http.Client{Timeout: cfg.HTTP.FetchTimeout}
	apiClient := &http.Client{Timeout: cfg.HTTP.FetchTimeout}
	aiClient := &http.Client{Timeout: cfg.AI.Timeout}

	classifier := classify.New(fetchClient, cfg.HTTP.UserAgent, logger)

	registry := strategy.NewRegistry(strategy.NewHTMLStrategy(fetchClient, cfg.HTTP.UserAgent, logger))
	registry.Register(model.SystemGreenhouse, strategy.NewGreenhouseStrategy(apiClient, logger))
	registry.Register(model.SystemLever, strategy.NewLeverStrategy(apiClient, logger))
	registry.Register(model.SystemAshby, strategy.NewAshbyStrategy(apiClient, logger))
	registry.Register(model.SystemSmartRecruiters, strategy.NewSmartRecruitersStrategy(apiClient, logger))

	provider := ai.NewOpenAIProvider(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model, aiClient)
	extractor := ai.NewExtractor(provider, cfg.AI.BatchSize, logger)

	orchestrator := orchestrate.New(cat, classifier, registry, extractor, ingestor, q, rdb, cfg.Run.Cooldown, logger)

	return &harvestEnv{
		cfg:          cfg,
		catalog:      cat,
		ingestor:     ingestor,
		queue:        q,
		orchestrator: orchestrator,
		logger:       logger,
		close: func() {
			q.Close()
			rdb.Close()
			pool.Close()
			cat.Close()
		},
	}, nil
}
