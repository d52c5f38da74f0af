package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/mountee32/legalcopilot-sub009/internal/model"
	"github.com/mountee32/legalcopilot-sub009/internal/store"
)

// fakeStore is an in-memory store.Store for orchestrator tests.
type fakeStore struct {
	mu        sync.Mutex
	runs      map[string]*model.PipelineRun
	staged    map[string][]model.ProcessedFinding
	findings  []model.PersistedFinding
	matter    map[string]string // matterID|caseField -> value
	risks     map[string]model.RiskResult
	documents map[string]*model.Document

	failUpsert error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		runs:      make(map[string]*model.PipelineRun),
		staged:    make(map[string][]model.ProcessedFinding),
		matter:    make(map[string]string),
		risks:     make(map[string]model.RiskResult),
		documents: make(map[string]*model.Document),
	}
}

func (f *fakeStore) CreateRun(_ context.Context, payload model.StagePayload) (*model.PipelineRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run := &model.PipelineRun{
		ID:           uuid.New().String(),
		FirmID:       payload.FirmID,
		MatterID:     payload.MatterID,
		DocumentID:   payload.DocumentID,
		TriggeredBy:  payload.TriggeredBy,
		Status:       model.RunStatusQueued,
		CurrentStage: model.StageIntake,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	f.runs[run.ID] = run
	return copyRun(run), nil
}

func copyRun(run *model.PipelineRun) *model.PipelineRun {
	c := *run
	return &c
}

func (f *fakeStore) GetRun(_ context.Context, runID string) (*model.PipelineRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return nil, eris.New("store: run not found: " + runID)
	}
	return copyRun(run), nil
}

func (f *fakeStore) ListRuns(_ context.Context, filter store.RunFilter) ([]model.PipelineRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.PipelineRun
	for _, run := range f.runs {
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		if filter.MatterID != "" && run.MatterID != filter.MatterID {
			continue
		}
		out = append(out, *run)
	}
	return out, nil
}

func (f *fakeStore) UpdateRunStatus(_ context.Context, runID string, status model.RunStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return eris.New("store: run not found: " + runID)
	}
	run.Status = status
	return nil
}

func (f *fakeStore) MarkStage(_ context.Context, runID string, stage model.Stage, state model.StageState, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return eris.New("store: run not found: " + runID)
	}
	now := time.Now().UTC()
	status := run.StageStatuses.Get(stage)
	status.Status = state
	switch state {
	case model.StageStateRunning:
		if status.StartedAt == nil {
			status.StartedAt = &now
		}
	case model.StageStateCompleted:
		status.CompletedAt = &now
	case model.StageStateFailed:
		status.CompletedAt = &now
		status.Error = errMsg
	}
	run.StageStatuses.Set(stage, status)
	return nil
}

func (f *fakeStore) SetCurrentStage(_ context.Context, runID string, stage model.Stage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return eris.New("store: run not found: " + runID)
	}
	run.CurrentStage = stage
	return nil
}

func (f *fakeStore) SetRunDocumentType(_ context.Context, runID, docType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return eris.New("store: run not found: " + runID)
	}
	run.DocumentType = docType
	return nil
}

func (f *fakeStore) SetRunCounts(_ context.Context, runID string, findings, actions int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return eris.New("store: run not found: " + runID)
	}
	run.FindingsCount = findings
	run.ActionsCount = actions
	return nil
}

func (f *fakeStore) StageFindings(_ context.Context, runID string, findings []model.ProcessedFinding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staged[runID] = append([]model.ProcessedFinding(nil), findings...)
	return nil
}

func (f *fakeStore) StagedFindings(_ context.Context, runID string) ([]model.ProcessedFinding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ProcessedFinding(nil), f.staged[runID]...), nil
}

func (f *fakeStore) UpsertFinding(_ context.Context, finding *model.PersistedFinding) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpsert != nil {
		return false, f.failUpsert
	}
	for _, existing := range f.findings {
		if existing.MatterID == finding.MatterID &&
			existing.CategoryKey == finding.CategoryKey &&
			existing.FieldKey == finding.FieldKey &&
			existing.NormalizedValue == finding.NormalizedValue {
			return false, nil
		}
	}
	if finding.ID == "" {
		finding.ID = uuid.New().String()
	}
	finding.CreatedAt = time.Now().UTC()
	f.findings = append(f.findings, *finding)
	return true, nil
}

func (f *fakeStore) ListFindings(_ context.Context, firmID, matterID string) ([]model.PersistedFinding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.PersistedFinding
	for _, finding := range f.findings {
		if finding.FirmID == firmID && finding.MatterID == matterID {
			out = append(out, finding)
		}
	}
	return out, nil
}

func (f *fakeStore) GetMatterValue(_ context.Context, matterID, caseField string) (*string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.matter[matterID+"|"+caseField]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (f *fakeStore) SetMatterValue(_ context.Context, matterID, caseField, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matter[matterID+"|"+caseField] = value
	return nil
}

func (f *fakeStore) SaveRiskScore(_ context.Context, matterID string, result model.RiskResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.risks[matterID] = result
	return nil
}

func (f *fakeStore) CreateDocument(_ context.Context, doc *model.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	doc.UploadedAt = time.Now().UTC()
	f.documents[doc.ID] = doc
	return nil
}

func (f *fakeStore) GetDocument(_ context.Context, documentID string) (*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.documents[documentID]
	if !ok {
		return nil, eris.New("store: document not found: " + documentID)
	}
	c := *doc
	return &c, nil
}

func (f *fakeStore) SetDocumentText(_ context.Context, documentID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.documents[documentID]
	if !ok {
		return eris.New("store: document not found: " + documentID)
	}
	doc.Text = text
	return nil
}

func (f *fakeStore) Migrate(context.Context) error { return nil }
func (f *fakeStore) Close() error                  { return nil }

// matterValue reads the fake's case data without the Store interface.
func (f *fakeStore) matterValue(matterID, caseField string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.matter[matterID+"|"+caseField]
}

// findingByField returns the persisted finding for a field key, or nil.
func (f *fakeStore) findingByField(fieldKey string) *model.PersistedFinding {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.findings {
		if f.findings[i].FieldKey == fieldKey ||
			strings.HasSuffix(f.findings[i].FieldKey, fieldKey) {
			c := f.findings[i]
			return &c
		}
	}
	return nil
}
