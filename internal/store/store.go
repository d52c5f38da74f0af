// Package store persists pipeline runs, documents, findings, matter case
// data, and risk scores behind a backend-neutral interface.
package store

import (
	"context"

	"github.com/mountee32/legalcopilot-sub009/internal/model"
)

// RunFilter specifies criteria for listing pipeline runs.
type RunFilter struct {
	Status   model.RunStatus `json:"status,omitempty"`
	MatterID string          `json:"matter_id,omitempty"`
	Limit    int             `json:"limit,omitempty"`
	Offset   int             `json:"offset,omitempty"`
}

// Store is the persistence interface consumed by the pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, payload model.StagePayload) (*model.PipelineRun, error)
	GetRun(ctx context.Context, runID string) (*model.PipelineRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	// MarkStage records a stage transition. running stamps StartedAt;
	// completed and failed stamp CompletedAt (failed also records the
	// error). Stage records are append-only: marking one stage never
	// reverts another stage's progress.
	MarkStage(ctx context.Context, runID string, stage model.Stage, state model.StageState, errMsg string) error
	SetCurrentStage(ctx context.Context, runID string, stage model.Stage) error
	SetRunDocumentType(ctx context.Context, runID, docType string) error
	SetRunCounts(ctx context.Context, runID string, findings, actions int) error

	// Staged findings bridge the extract and reconcile stages. Staging
	// overwrites wholesale, so a retried extract stage converges.
	StageFindings(ctx context.Context, runID string, findings []model.ProcessedFinding) error
	StagedFindings(ctx context.Context, runID string) ([]model.ProcessedFinding, error)

	// Findings. UpsertFinding is keyed on (matterID, categoryKey,
	// fieldKey, normalizedValue) so a retried reconcile stage never
	// double-inserts; it reports whether a row was inserted.
	UpsertFinding(ctx context.Context, f *model.PersistedFinding) (bool, error)
	ListFindings(ctx context.Context, firmID, matterID string) ([]model.PersistedFinding, error)

	// Matter case data read for reconciliation and written on auto-apply.
	GetMatterValue(ctx context.Context, matterID, caseField string) (*string, error)
	SetMatterValue(ctx context.Context, matterID, caseField, value string) error

	// Risk
	SaveRiskScore(ctx context.Context, matterID string, result model.RiskResult) error

	// Documents
	CreateDocument(ctx context.Context, doc *model.Document) error
	GetDocument(ctx context.Context, documentID string) (*model.Document, error)
	SetDocumentText(ctx context.Context, documentID, text string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
