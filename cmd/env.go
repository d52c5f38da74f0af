package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mountee32/legalcopilot-sub009/internal/config"
	"github.com/mountee32/legalcopilot-sub009/internal/dlq"
	"github.com/mountee32/legalcopilot-sub009/internal/extraction"
	"github.com/mountee32/legalcopilot-sub009/internal/model"
	"github.com/mountee32/legalcopilot-sub009/internal/ocr"
	"github.com/mountee32/legalcopilot-sub009/internal/pipeline"
	"github.com/mountee32/legalcopilot-sub009/internal/queue"
	"github.com/mountee32/legalcopilot-sub009/internal/store"
	"github.com/mountee32/legalcopilot-sub009/internal/taxonomy"
)

// pipelineEnv holds the initialized store, queue, and orchestrator
// needed by the serve and ingest commands.
type pipelineEnv struct {
	Store        store.Store
	Queue        *queue.Queue
	Monitor      *dlq.Monitor
	Orchestrator *pipeline.Orchestrator
}

// Close drains the queue and releases the store.
func (pe *pipelineEnv) Close() {
	if pe.Queue != nil {
		pe.Queue.Stop()
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "legalcopilot.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv sets up the store, taxonomy, extraction client, queue, and
// orchestrator. Callers should defer env.Close().
func initEnv(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	registry, err := taxonomy.LoadFile(cfg.Taxonomy.Path)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	zap.L().Info("taxonomy loaded",
		zap.Int("fields", len(registry.Fields)),
		zap.Int("rules", len(registry.Rules)),
	)

	extractor := extraction.NewAnthropicExtractor(cfg.Anthropic.Key, extraction.Options{
		Model:             cfg.Anthropic.Model,
		MaxTokens:         cfg.Anthropic.MaxTokens,
		RequestsPerSecond: cfg.Anthropic.RPS,
	})

	provider := ocr.NewProvider(cfg.OCR.Provider, cfg.OCR.PdfToTextPath)
	monitor := dlq.NewMonitor(cfg.DLQ.MaxEntries)

	stageConfigs := map[model.Stage]queue.StageConfig{
		model.StageIntake:    stageConfig(cfg.Queue.Intake),
		model.StageOCR:       stageConfig(cfg.Queue.OCR),
		model.StageClassify:  stageConfig(cfg.Queue.Classify),
		model.StageExtract:   stageConfig(cfg.Queue.Extract),
		model.StageReconcile: stageConfig(cfg.Queue.Reconcile),
		model.StageActions:   stageConfig(cfg.Queue.Actions),
	}

	env := &pipelineEnv{Store: st, Monitor: monitor}
	env.Queue = queue.New(stageConfigs, func(job queue.Job, attempt, maxAttempts int, err error) {
		env.Orchestrator.OnFailure(job, attempt, maxAttempts, err)
	})
	env.Orchestrator = pipeline.New(st, env.Queue, monitor, registry, extractor, provider, pipeline.Options{
		ChunkWindow:        cfg.Chunker.Window,
		ChunkOverlap:       cfg.Chunker.Overlap,
		ExtractConcurrency: cfg.Pipeline.ExtractConcurrency,
		AutoApplyThreshold: cfg.Pipeline.AutoApplyThreshold,
	})

	return env, nil
}

func stageConfig(c config.StageQueueConfig) queue.StageConfig {
	return queue.StageConfig{
		Concurrency: c.Concurrency,
		MaxAttempts: c.MaxAttempts,
		BaseBackoff: c.Backoff(),
		JobTimeout:  c.Timeout(),
		Depth:       c.Depth,
	}
}
