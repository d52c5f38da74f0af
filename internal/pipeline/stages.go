package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mountee32/legalcopilot-sub009/internal/chunker"
	"github.com/mountee32/legalcopilot-sub009/internal/extraction"
	"github.com/mountee32/legalcopilot-sub009/internal/findings"
	"github.com/mountee32/legalcopilot-sub009/internal/model"
	"github.com/mountee32/legalcopilot-sub009/internal/ocr"
	"github.com/mountee32/legalcopilot-sub009/internal/queue"
	"github.com/mountee32/legalcopilot-sub009/internal/reconcile"
	"github.com/mountee32/legalcopilot-sub009/internal/risk"
)

// handleIntake validates that the run's document exists and moves the
// run to running.
func (o *Orchestrator) handleIntake(ctx context.Context, job queue.Job) error {
	doc, err := o.store.GetDocument(ctx, job.Payload.DocumentID)
	if err != nil {
		return err
	}
	if doc.MatterID != job.Payload.MatterID {
		return eris.New("pipeline: document belongs to a different matter")
	}
	return o.store.UpdateRunStatus(ctx, job.Payload.PipelineRunID, model.RunStatusRunning)
}

// handleOCR extracts the document's text and stores it on the document
// record. Rerunning overwrites with the same text.
func (o *Orchestrator) handleOCR(ctx context.Context, job queue.Job) error {
	doc, err := o.store.GetDocument(ctx, job.Payload.DocumentID)
	if err != nil {
		return err
	}

	text, err := ocr.ForDocument(ctx, o.ocr, doc.Path)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return eris.New("pipeline: document produced no text")
	}
	return o.store.SetDocumentText(ctx, doc.ID, text)
}

// handleClassify labels the document type from its extracted text.
func (o *Orchestrator) handleClassify(ctx context.Context, job queue.Job) error {
	doc, err := o.store.GetDocument(ctx, job.Payload.DocumentID)
	if err != nil {
		return err
	}
	if doc.Text == "" {
		return eris.New("pipeline: document has no extracted text")
	}

	docType, err := o.extractor.ClassifyDocument(ctx, doc.Text)
	if err != nil {
		return err
	}
	return o.store.SetRunDocumentType(ctx, job.Payload.PipelineRunID, docType)
}

// handleExtract chunks the document text, extracts findings from each
// chunk in parallel, deduplicates and classifies them, and stages the
// result for reconciliation. Staging overwrites wholesale, so a retry
// converges rather than duplicating.
func (o *Orchestrator) handleExtract(ctx context.Context, job queue.Job) error {
	doc, err := o.store.GetDocument(ctx, job.Payload.DocumentID)
	if err != nil {
		return err
	}
	if doc.Text == "" {
		return eris.New("pipeline: document has no extracted text")
	}

	chunks := chunker.ChunkTextOverlapping(doc.Text, o.opts.ChunkWindow, o.opts.ChunkOverlap)

	tax := extraction.TaxonomyContext{Fields: o.registry.Fields}
	perChunk := make([][]model.RawFinding, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	concurrency := o.opts.ExtractConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	g.SetLimit(concurrency)

	for i, c := range chunks {
		g.Go(func() error {
			found, err := o.extractor.Extract(gctx, c.Text, tax)
			if err != nil {
				return eris.Wrapf(err, "pipeline: extract chunk %d", c.Index)
			}
			perChunk[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Chunk order keeps dedup deterministic across retries.
	var raw []model.RawFinding
	for _, found := range perChunk {
		raw = append(raw, found...)
	}

	processed := findings.Process(raw, o.registry.Field)

	zap.L().Info("pipeline: extraction done",
		zap.String("run_id", job.Payload.PipelineRunID),
		zap.Int("chunks", len(chunks)),
		zap.Int("findings", len(processed)),
	)
	return o.store.StageFindings(ctx, job.Payload.PipelineRunID, processed)
}

// handleReconcile persists staged findings against the matter's
// recorded case data and recomputes the matter risk score. Persistence
// is keyed on (matter, category, field, normalized value), so a retry
// never double-inserts.
func (o *Orchestrator) handleReconcile(ctx context.Context, job queue.Job) error {
	staged, err := o.store.StagedFindings(ctx, job.Payload.PipelineRunID)
	if err != nil {
		return err
	}

	inserted := 0
	persisted := 0
	for _, pf := range staged {
		if pf.IsDuplicate {
			continue
		}

		rule := o.registry.RuleFor(pf.CategoryKey, pf.FieldKey)
		if rule != nil && o.opts.AutoApplyThreshold > 0 && rule.AutoApplyThreshold <= 0 {
			copied := *rule
			copied.AutoApplyThreshold = o.opts.AutoApplyThreshold
			rule = &copied
		}

		var existing *string
		if rule != nil && rule.CaseFieldMapping != "" {
			existing, err = o.store.GetMatterValue(ctx, job.Payload.MatterID, rule.CaseFieldMapping)
			if err != nil {
				return err
			}
		}

		status := reconcile.Decide(pf.Value, existing, pf.Confidence, rule)

		wasInserted, err := o.store.UpsertFinding(ctx, &model.PersistedFinding{
			FirmID:          job.Payload.FirmID,
			MatterID:        job.Payload.MatterID,
			CategoryKey:     pf.CategoryKey,
			FieldKey:        pf.FieldKey,
			Value:           pf.Value,
			NormalizedValue: findings.NormalizeValue(pf.Value),
			Confidence:      pf.Confidence,
			Impact:          pf.Impact,
			Status:          status,
			SourceQuote:     pf.SourceQuote,
		})
		if err != nil {
			return err
		}
		// A replay upserts into existing rows, so the run's count covers
		// every non-duplicate staged finding, not just fresh inserts.
		persisted++
		if wasInserted {
			inserted++
		}

		// Auto-apply fills an empty case field; it never overwrites.
		noExisting := existing == nil || strings.TrimSpace(*existing) == ""
		if wasInserted && status == model.FindingAutoApplied && noExisting &&
			rule != nil && rule.CaseFieldMapping != "" {
			if err := o.store.SetMatterValue(ctx, job.Payload.MatterID, rule.CaseFieldMapping, pf.Value); err != nil {
				return err
			}
		}
	}

	all, err := o.store.ListFindings(ctx, job.Payload.FirmID, job.Payload.MatterID)
	if err != nil {
		return err
	}
	result := risk.Calculate(all)
	if err := o.store.SaveRiskScore(ctx, job.Payload.MatterID, result); err != nil {
		return err
	}

	zap.L().Info("pipeline: reconciled",
		zap.String("run_id", job.Payload.PipelineRunID),
		zap.Int("staged", len(staged)),
		zap.Int("persisted", persisted),
		zap.Int("inserted", inserted),
		zap.Int("risk_score", result.Score),
	)
	return o.store.SetRunCounts(ctx, job.Payload.PipelineRunID, persisted, 0)
}

// handleActions counts the findings needing human attention and records
// the tally on the run.
func (o *Orchestrator) handleActions(ctx context.Context, job queue.Job) error {
	run, err := o.store.GetRun(ctx, job.Payload.PipelineRunID)
	if err != nil {
		return err
	}

	all, err := o.store.ListFindings(ctx, job.Payload.FirmID, job.Payload.MatterID)
	if err != nil {
		return err
	}

	actions := 0
	for _, f := range all {
		if f.Status == model.FindingPending || f.Status == model.FindingConflict {
			actions++
		}
	}

	zap.L().Info("pipeline: actions tallied",
		zap.String("run_id", run.ID),
		zap.Int("actions", actions),
	)
	return o.store.SetRunCounts(ctx, run.ID, run.FindingsCount, actions)
}
