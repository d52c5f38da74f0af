// Package pipeline orchestrates the six-stage document processing
// pipeline: intake, ocr, classify, extract, reconcile, actions. Stages
// run as queue jobs; the orchestrator advances a run stage by stage and
// dead-letters jobs whose retry budget is exhausted.
package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mountee32/legalcopilot-sub009/internal/dlq"
	"github.com/mountee32/legalcopilot-sub009/internal/extraction"
	"github.com/mountee32/legalcopilot-sub009/internal/model"
	"github.com/mountee32/legalcopilot-sub009/internal/ocr"
	"github.com/mountee32/legalcopilot-sub009/internal/queue"
	"github.com/mountee32/legalcopilot-sub009/internal/store"
	"github.com/mountee32/legalcopilot-sub009/internal/taxonomy"
)

// Options tunes orchestrator behavior beyond its wired dependencies.
type Options struct {
	// ChunkWindow and ChunkOverlap configure extraction chunking.
	ChunkWindow  int
	ChunkOverlap int
	// ExtractConcurrency bounds parallel model calls per document.
	ExtractConcurrency int
	// AutoApplyThreshold overrides the default reconciliation
	// confidence floor when > 0.
	AutoApplyThreshold float64
}

// Orchestrator wires the stage handlers to the queue and moves runs
// through the stage sequence.
type Orchestrator struct {
	store     store.Store
	queue     *queue.Queue
	monitor   *dlq.Monitor
	registry  *taxonomy.Registry
	extractor extraction.Extractor
	ocr       ocr.Provider
	opts      Options
}

// New creates an Orchestrator and registers its stage handlers on q.
func New(st store.Store, q *queue.Queue, monitor *dlq.Monitor, registry *taxonomy.Registry,
	extractor extraction.Extractor, provider ocr.Provider, opts Options) *Orchestrator {
	o := &Orchestrator{
		store:     st,
		queue:     q,
		monitor:   monitor,
		registry:  registry,
		extractor: extractor,
		ocr:       provider,
		opts:      opts,
	}
	q.Register(model.StageIntake, o.stageHandler(model.StageIntake, o.handleIntake))
	q.Register(model.StageOCR, o.stageHandler(model.StageOCR, o.handleOCR))
	q.Register(model.StageClassify, o.stageHandler(model.StageClassify, o.handleClassify))
	q.Register(model.StageExtract, o.stageHandler(model.StageExtract, o.handleExtract))
	q.Register(model.StageReconcile, o.stageHandler(model.StageReconcile, o.handleReconcile))
	q.Register(model.StageActions, o.stageHandler(model.StageActions, o.handleActions))
	return o
}

// NextStage returns the stage after s, or false at the end of the
// sequence.
func NextStage(s model.Stage) (model.Stage, bool) {
	for i, known := range model.Stages {
		if s == known && i+1 < len(model.Stages) {
			return model.Stages[i+1], true
		}
	}
	return "", false
}

// StartPipeline creates a run for the payload's document and enqueues
// the intake stage.
func (o *Orchestrator) StartPipeline(ctx context.Context, payload model.StagePayload) (*model.PipelineRun, error) {
	if payload.DocumentID == "" {
		return nil, eris.New("pipeline: document id required")
	}
	if payload.MatterID == "" {
		return nil, eris.New("pipeline: matter id required")
	}

	run, err := o.store.CreateRun(ctx, payload)
	if err != nil {
		return nil, err
	}
	payload.PipelineRunID = run.ID

	if _, err := o.queue.Enqueue(model.StageIntake, payload); err != nil {
		return nil, eris.Wrap(err, "pipeline: enqueue intake")
	}

	zap.L().Info("pipeline: run started",
		zap.String("run_id", run.ID),
		zap.String("matter_id", run.MatterID),
		zap.String("document_id", run.DocumentID),
	)
	return run, nil
}

// RetryFromStage re-enqueues a failed run at the given stage. The
// stages are idempotent, so replaying a completed stage is safe.
func (o *Orchestrator) RetryFromStage(ctx context.Context, runID string, stage model.Stage) error {
	if !stage.Valid() {
		return eris.New("pipeline: unknown stage " + string(stage))
	}

	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}

	if err := o.store.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning); err != nil {
		return err
	}

	payload := model.StagePayload{
		PipelineRunID: run.ID,
		FirmID:        run.FirmID,
		MatterID:      run.MatterID,
		DocumentID:    run.DocumentID,
		TriggeredBy:   run.TriggeredBy,
	}
	if _, err := o.queue.Enqueue(stage, payload); err != nil {
		return eris.Wrap(err, "pipeline: enqueue retry")
	}

	zap.L().Info("pipeline: run retried",
		zap.String("run_id", run.ID),
		zap.String("stage", string(stage)),
	)
	return nil
}

// OnFailure is the queue failure callback. Attempts with retry budget
// remaining are left to the queue; an exhausted job fails the run and
// dead-letters the job.
func (o *Orchestrator) OnFailure(job queue.Job, attempt, maxAttempts int, err error) {
	if attempt < maxAttempts {
		return
	}

	ctx := context.Background()
	runID := job.Payload.PipelineRunID

	if markErr := o.store.MarkStage(ctx, runID, job.Stage, model.StageStateFailed, err.Error()); markErr != nil {
		zap.L().Warn("pipeline: mark stage failed", zap.String("run_id", runID), zap.Error(markErr))
	}
	if statusErr := o.store.UpdateRunStatus(ctx, runID, model.RunStatusFailed); statusErr != nil {
		zap.L().Warn("pipeline: update run status", zap.String("run_id", runID), zap.Error(statusErr))
	}

	o.monitor.Record(dlq.Entry{
		Stage:         job.Stage,
		PipelineRunID: runID,
		FirmID:        job.Payload.FirmID,
		MatterID:      job.Payload.MatterID,
		DocumentID:    job.Payload.DocumentID,
		JobID:         job.ID,
		AttemptsMade:  attempt,
		Error:         err.Error(),
	}, maxAttempts)
}

// stageHandler wraps a stage function with the shared bookkeeping:
// mark the stage running, run it, mark it completed, then advance the
// run to the next stage or complete it.
func (o *Orchestrator) stageHandler(stage model.Stage, fn queue.Handler) queue.Handler {
	return func(ctx context.Context, job queue.Job) error {
		runID := job.Payload.PipelineRunID

		if err := o.store.SetCurrentStage(ctx, runID, stage); err != nil {
			return err
		}
		if err := o.store.MarkStage(ctx, runID, stage, model.StageStateRunning, ""); err != nil {
			return err
		}

		if err := fn(ctx, job); err != nil {
			return err
		}

		if err := o.store.MarkStage(ctx, runID, stage, model.StageStateCompleted, ""); err != nil {
			return err
		}
		return o.advance(ctx, stage, job.Payload)
	}
}

// advance enqueues the next stage, or completes the run after the last.
func (o *Orchestrator) advance(ctx context.Context, stage model.Stage, payload model.StagePayload) error {
	next, ok := NextStage(stage)
	if !ok {
		if err := o.store.UpdateRunStatus(ctx, payload.PipelineRunID, model.RunStatusCompleted); err != nil {
			return err
		}
		zap.L().Info("pipeline: run completed", zap.String("run_id", payload.PipelineRunID))
		return nil
	}

	if _, err := o.queue.Enqueue(next, payload); err != nil {
		return eris.Wrap(err, "pipeline: enqueue "+string(next))
	}
	return nil
}
