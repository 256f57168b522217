package cli

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dialoggen/pkg/completion"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/config"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/database"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/dataset"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/dialog"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/llm"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/logging"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/prompts"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/repositories"
	"github.com/ekaya-inc/ekaya-dialoggen/pkg/scenarios"
)

// newService builds the completion service. Tests replace it.
var newService = llm.NewService

// app holds the components shared by generate and chat.
type app struct {
	cfg          *config.Config
	logger       *zap.Logger
	rng          *rand.Rand
	catalog      *scenarios.Catalog
	client       *completion.Client
	orchestrator *dialog.Orchestrator

	db    *database.DB
	redis *redis.Client
}

// loadConfig reads the config file named by --config and applies flag
// overrides through fn.
func loadConfig(path, version string, fn func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load(path, version)
	if err != nil {
		return nil, err
	}
	if fn != nil {
		fn(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, levelOverride string) (*zap.Logger, error) {
	level := cfg.Log.Level
	if levelOverride != "" {
		level = levelOverride
	}
	return logging.NewLogger(level, cfg.Log.Development)
}

// newApp wires configuration into the generation pipeline. observer may be
// nil. Databases are only opened when withStore is set.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, observer dialog.TurnObserver, withStore bool) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	a.rng = scenarios.NewRand(cfg.Generation.Seed)

	var err error
	if cfg.Generation.ScenarioFile != "" {
		a.catalog, err = scenarios.LoadCatalogFile(cfg.Generation.ScenarioFile, a.rng)
	} else {
		a.catalog, err = scenarios.DefaultCatalog(a.rng)
	}
	if err != nil {
		return nil, fmt.Errorf("load scenarios: %w", err)
	}

	var recorder llm.CallRecorder
	if cfg.Output.CallLogDir != "" {
		fileRecorder, err := llm.NewFileCallRecorder(cfg.Output.CallLogDir, logger)
		if err != nil {
			return nil, err
		}
		recorder = fileRecorder
	}

	service, err := newService(ctx, &llm.Config{
		Provider: cfg.Provider.Name,
		Endpoint: cfg.Provider.BaseURL,
		Model:    cfg.Provider.Model,
		APIKey:   cfg.Provider.APIKey,
		Timeout:  cfg.Provider.Timeout,
	}, recorder, logger)
	if err != nil {
		return nil, err
	}

	var cacheOpts []completion.CacheOption
	a.redis, err = database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return nil, err
	}
	if a.redis != nil {
		cacheOpts = append(cacheOpts, completion.WithRemoteStore(completion.NewRedisStore(a.redis, cfg.Redis.TTL)))
		logger.Info("Shared completion cache enabled", zap.String("addr", cfg.Redis.Addr()))
	}

	breaker := llm.NewCircuitBreaker(llm.CircuitBreakerConfig{
		Threshold:  cfg.Generation.BreakerThreshold,
		ResetAfter: cfg.Generation.BreakerReset,
	})

	a.client = completion.NewClient(service, completion.NewCache(cacheOpts...), completion.Config{
		MaxRetries:     cfg.Generation.MaxRetries,
		BackoffUnit:    cfg.Generation.BackoffUnit,
		ShortMaxTokens: cfg.Generation.ShortMaxTokens,
		LongMaxTokens:  cfg.Generation.LongMaxTokens,
		Fallback:       completion.FallbackMode(cfg.Generation.Fallback),
	}, logger,
		completion.WithCircuitBreaker(breaker),
		completion.WithRand(a.rng))

	var orchOpts []dialog.Option
	if observer != nil {
		orchOpts = append(orchOpts, dialog.WithObserver(observer))
	}
	a.orchestrator = dialog.NewOrchestrator(a.client, prompts.NewComposer(), dialog.Config{
		Turns:         cfg.Generation.Turns,
		Temperature:   cfg.Generation.Temperature,
		RecordPrompts: cfg.Generation.RecordPrompts,
	}, logger, orchOpts...)

	if withStore && cfg.Database.Enabled {
		a.db, err = database.Open(ctx, &cfg.Database, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open example store: %w", err)
		}
	}

	return a, nil
}

// sinks opens every configured output. The caller closes the result.
func (a *app) sinks() (dataset.MultiSink, error) {
	out := a.cfg.Output
	var sinks dataset.MultiSink

	jsonl, err := dataset.NewJSONLSink(filepath.Join(out.Dir, out.JSONLFile))
	if err != nil {
		return nil, err
	}
	sinks = append(sinks, jsonl)

	add := func(s dataset.Sink, err error) error {
		if err != nil {
			return errors.Join(err, sinks.Close())
		}
		sinks = append(sinks, s)
		return nil
	}

	if out.ConversationFiles {
		if err := add(dataset.NewConversationFileSink(filepath.Join(out.Dir, "conversas"))); err != nil {
			return nil, err
		}
	}
	if out.ShareGPTFile != "" {
		if err := add(dataset.NewShareGPTSink(filepath.Join(out.Dir, out.ShareGPTFile), prompts.SellerRules())); err != nil {
			return nil, err
		}
	}
	if out.ReadableDir != "" {
		if err := add(dataset.NewReadableSink(filepath.Join(out.Dir, out.ReadableDir))); err != nil {
			return nil, err
		}
	}
	if a.db != nil {
		sinks = append(sinks, dataset.NewPostgresSink(repositories.NewDatasetExampleRepository(a.db)))
	}
	return sinks, nil
}

// Close releases database connections.
func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("Failed to close Redis client", zap.Error(err))
		}
	}
}
