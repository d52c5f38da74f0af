package model

import "time"

// Stage identifies one of the six fixed pipeline stages.
type Stage string

const (
	StageIntake    Stage = "intake"
	StageOCR       Stage = "ocr"
	StageClassify  Stage = "classify"
	StageExtract   Stage = "extract"
	StageReconcile Stage = "reconcile"
	StageActions   Stage = "actions"
)

// Stages lists the pipeline stages in execution order.
var Stages = []Stage{
	StageIntake,
	StageOCR,
	StageClassify,
	StageExtract,
	StageReconcile,
	StageActions,
}

// Valid reports whether s is one of the six known stages.
func (s Stage) Valid() bool {
	for _, known := range Stages {
		if s == known {
			return true
		}
	}
	return false
}

// RunStatus is the lifecycle status of a pipeline run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// StageState is the status of a single stage within a run.
type StageState string

const (
	StageStatePending   StageState = "pending"
	StageStateRunning   StageState = "running"
	StageStateCompleted StageState = "completed"
	StageStateFailed    StageState = "failed"
)

// StageStatus records the outcome of one stage of a run.
type StageStatus struct {
	Status      StageState `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// StageStatuses is a fixed record over the six stage names. The stage list
// is closed, so this is a struct rather than a map.
type StageStatuses struct {
	Intake    StageStatus `json:"intake"`
	OCR       StageStatus `json:"ocr"`
	Classify  StageStatus `json:"classify"`
	Extract   StageStatus `json:"extract"`
	Reconcile StageStatus `json:"reconcile"`
	Actions   StageStatus `json:"actions"`
}

// Get returns the status record for the given stage.
func (ss *StageStatuses) Get(stage Stage) StageStatus {
	if p := ss.ref(stage); p != nil {
		return *p
	}
	return StageStatus{}
}

// Set replaces the status record for the given stage.
func (ss *StageStatuses) Set(stage Stage, status StageStatus) {
	if p := ss.ref(stage); p != nil {
		*p = status
	}
}

func (ss *StageStatuses) ref(stage Stage) *StageStatus {
	switch stage {
	case StageIntake:
		return &ss.Intake
	case StageOCR:
		return &ss.OCR
	case StageClassify:
		return &ss.Classify
	case StageExtract:
		return &ss.Extract
	case StageReconcile:
		return &ss.Reconcile
	case StageActions:
		return &ss.Actions
	}
	return nil
}

// PipelineRun is one execution of the six-stage pipeline for a single
// uploaded document.
type PipelineRun struct {
	ID            string        `json:"id"`
	FirmID        string        `json:"firm_id"`
	MatterID      string        `json:"matter_id"`
	DocumentID    string        `json:"document_id"`
	TriggeredBy   string        `json:"triggered_by,omitempty"`
	Status        RunStatus     `json:"status"`
	CurrentStage  Stage         `json:"current_stage"`
	StageStatuses StageStatuses `json:"stage_statuses"`
	DocumentType  string        `json:"document_type,omitempty"`
	FindingsCount int           `json:"findings_count"`
	ActionsCount  int           `json:"actions_count"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// StagePayload is the job payload carried through every stage queue.
type StagePayload struct {
	PipelineRunID string `json:"pipeline_run_id"`
	FirmID        string `json:"firm_id"`
	MatterID      string `json:"matter_id"`
	DocumentID    string `json:"document_id"`
	TriggeredBy   string `json:"triggered_by,omitempty"`
}

// Document is an uploaded case document tracked by the pipeline.
type Document struct {
	ID         string    `json:"id"`
	FirmID     string    `json:"firm_id"`
	MatterID   string    `json:"matter_id"`
	Path       string    `json:"path"`
	MimeType   string    `json:"mime_type,omitempty"`
	Text       string    `json:"text,omitempty"`
	UploadedAt time.Time `json:"uploaded_at"`
}
