package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/mountee32/legalcopilot-sub009/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given DSN in WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id             TEXT PRIMARY KEY,
	firm_id        TEXT NOT NULL,
	matter_id      TEXT NOT NULL,
	document_id    TEXT NOT NULL,
	triggered_by   TEXT,
	status         TEXT NOT NULL DEFAULT 'queued',
	current_stage  TEXT NOT NULL DEFAULT 'intake',
	stage_statuses TEXT NOT NULL DEFAULT '{}',
	document_type  TEXT,
	findings_count INTEGER NOT NULL DEFAULT 0,
	actions_count  INTEGER NOT NULL DEFAULT 0,
	staged         TEXT,
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS findings (
	id               TEXT PRIMARY KEY,
	firm_id          TEXT NOT NULL,
	matter_id        TEXT NOT NULL,
	category_key     TEXT NOT NULL,
	field_key        TEXT NOT NULL,
	value            TEXT NOT NULL,
	normalized_value TEXT NOT NULL,
	confidence       REAL NOT NULL,
	impact           TEXT NOT NULL,
	status           TEXT NOT NULL,
	source_quote     TEXT,
	resolved_by      TEXT,
	resolved_at      DATETIME,
	created_at       DATETIME NOT NULL,
	UNIQUE (matter_id, category_key, field_key, normalized_value)
);

CREATE TABLE IF NOT EXISTS matter_fields (
	matter_id  TEXT NOT NULL,
	case_field TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (matter_id, case_field)
);

CREATE TABLE IF NOT EXISTS risk_scores (
	matter_id   TEXT PRIMARY KEY,
	score       INTEGER NOT NULL,
	factors     TEXT,
	computed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	firm_id     TEXT NOT NULL,
	matter_id   TEXT NOT NULL,
	path        TEXT NOT NULL,
	mime_type   TEXT,
	text        TEXT,
	uploaded_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON pipeline_runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_matter ON pipeline_runs(matter_id);
CREATE INDEX IF NOT EXISTS idx_findings_matter ON findings(matter_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, payload model.StagePayload) (*model.PipelineRun, error) {
	now := time.Now().UTC()
	run := &model.PipelineRun{
		ID:           uuid.New().String(),
		FirmID:       payload.FirmID,
		MatterID:     payload.MatterID,
		DocumentID:   payload.DocumentID,
		TriggeredBy:  payload.TriggeredBy,
		Status:       model.RunStatusQueued,
		CurrentStage: model.StageIntake,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	statusesJSON, err := json.Marshal(run.StageStatuses)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal stage statuses")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs
		 (id, firm_id, matter_id, document_id, triggered_by, status, current_stage, stage_statuses, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.FirmID, run.MatterID, run.DocumentID, run.TriggeredBy,
		string(run.Status), string(run.CurrentStage), string(statusesJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return run, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.PipelineRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, firm_id, matter_id, document_id, triggered_by, status, current_stage,
		        stage_statuses, document_type, findings_count, actions_count, created_at, updated_at
		 FROM pipeline_runs WHERE id = ?`, runID)
	return scanRun(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.PipelineRun, error) {
	var run model.PipelineRun
	var triggeredBy, docType sql.NullString
	var statusesJSON string

	err := row.Scan(&run.ID, &run.FirmID, &run.MatterID, &run.DocumentID, &triggeredBy,
		&run.Status, &run.CurrentStage, &statusesJSON, &docType,
		&run.FindingsCount, &run.ActionsCount, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "store: get run")
	}

	run.TriggeredBy = triggeredBy.String
	run.DocumentType = docType.String
	if statusesJSON != "" {
		if err := json.Unmarshal([]byte(statusesJSON), &run.StageStatuses); err != nil {
			return nil, eris.Wrap(err, "store: decode stage statuses")
		}
	}
	return &run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error) {
	query := `SELECT id, firm_id, matter_id, document_id, triggered_by, status, current_stage,
	                 stage_statuses, document_type, findings_count, actions_count, created_at, updated_at
	          FROM pipeline_runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.MatterID != "" {
		query += ` AND matter_id = ?`
		args = append(args, filter.MatterID)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.PipelineRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) MarkStage(ctx context.Context, runID string, stage model.Stage, state model.StageState, errMsg string) error {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}

	statusesJSON, err := json.Marshal(applyStageMark(&run.StageStatuses, stage, state, errMsg))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stage statuses")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET stage_statuses = ?, updated_at = ? WHERE id = ?`,
		string(statusesJSON), time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark stage %s/%s", runID, stage)
	}
	return checkRowsAffected(res, "run", runID)
}

// applyStageMark updates one stage's record in place and returns the full
// set for persistence. Timestamps accumulate append-only.
func applyStageMark(ss *model.StageStatuses, stage model.Stage, state model.StageState, errMsg string) *model.StageStatuses {
	now := time.Now().UTC()
	status := ss.Get(stage)
	status.Status = state
	switch state {
	case model.StageStateRunning:
		if status.StartedAt == nil {
			status.StartedAt = &now
		}
		status.Error = ""
	case model.StageStateCompleted:
		status.CompletedAt = &now
		status.Error = ""
	case model.StageStateFailed:
		status.CompletedAt = &now
		status.Error = errMsg
	}
	ss.Set(stage, status)
	return ss
}

func (s *SQLiteStore) SetCurrentStage(ctx context.Context, runID string, stage model.Stage) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET current_stage = ?, updated_at = ? WHERE id = ?`,
		string(stage), time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set current stage %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) SetRunDocumentType(ctx context.Context, runID, docType string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET document_type = ?, updated_at = ? WHERE id = ?`,
		docType, time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set document type %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) SetRunCounts(ctx context.Context, runID string, findings, actions int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET findings_count = ?, actions_count = ?, updated_at = ? WHERE id = ?`,
		findings, actions, time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set run counts %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) StageFindings(ctx context.Context, runID string, findings []model.ProcessedFinding) error {
	data, err := json.Marshal(findings)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal staged findings")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET staged = ?, updated_at = ? WHERE id = ?`,
		string(data), time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: stage findings %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) StagedFindings(ctx context.Context, runID string) ([]model.ProcessedFinding, error) {
	var data sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT staged FROM pipeline_runs WHERE id = ?`, runID).Scan(&data)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: staged findings %s", runID)
	}
	if !data.Valid || data.String == "" {
		return nil, nil
	}

	var findings []model.ProcessedFinding
	if err := json.Unmarshal([]byte(data.String), &findings); err != nil {
		return nil, eris.Wrap(err, "sqlite: decode staged findings")
	}
	return findings, nil
}

func (s *SQLiteStore) UpsertFinding(ctx context.Context, f *model.PersistedFinding) (bool, error) {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO findings
		 (id, firm_id, matter_id, category_key, field_key, value, normalized_value,
		  confidence, impact, status, source_quote, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (matter_id, category_key, field_key, normalized_value) DO NOTHING`,
		f.ID, f.FirmID, f.MatterID, f.CategoryKey, f.FieldKey, f.Value, f.NormalizedValue,
		f.Confidence, string(f.Impact), string(f.Status), f.SourceQuote, f.CreatedAt)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: upsert finding")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: upsert finding rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListFindings(ctx context.Context, firmID, matterID string) ([]model.PersistedFinding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, firm_id, matter_id, category_key, field_key, value, normalized_value,
		        confidence, impact, status, source_quote, resolved_by, resolved_at, created_at
		 FROM findings WHERE firm_id = ? AND matter_id = ? ORDER BY created_at, id`,
		firmID, matterID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list findings")
	}
	defer rows.Close()

	var findings []model.PersistedFinding
	for rows.Next() {
		var f model.PersistedFinding
		var sourceQuote, resolvedBy sql.NullString
		var resolvedAt sql.NullTime
		if err := rows.Scan(&f.ID, &f.FirmID, &f.MatterID, &f.CategoryKey, &f.FieldKey,
			&f.Value, &f.NormalizedValue, &f.Confidence, &f.Impact, &f.Status,
			&sourceQuote, &resolvedBy, &resolvedAt, &f.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan finding")
		}
		f.SourceQuote = sourceQuote.String
		f.ResolvedBy = resolvedBy.String
		if resolvedAt.Valid {
			t := resolvedAt.Time
			f.ResolvedAt = &t
		}
		findings = append(findings, f)
	}
	return findings, eris.Wrap(rows.Err(), "sqlite: list findings iterate")
}

func (s *SQLiteStore) GetMatterValue(ctx context.Context, matterID, caseField string) (*string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM matter_fields WHERE matter_id = ? AND case_field = ?`,
		matterID, caseField).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get matter value %s/%s", matterID, caseField)
	}
	return &value, nil
}

func (s *SQLiteStore) SetMatterValue(ctx context.Context, matterID, caseField, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO matter_fields (matter_id, case_field, value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (matter_id, case_field) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		matterID, caseField, value, time.Now().UTC())
	return eris.Wrapf(err, "sqlite: set matter value %s/%s", matterID, caseField)
}

func (s *SQLiteStore) SaveRiskScore(ctx context.Context, matterID string, result model.RiskResult) error {
	factorsJSON, err := json.Marshal(result.Factors)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal risk factors")
	}
	computedAt := result.ComputedAt
	if computedAt.IsZero() {
		computedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO risk_scores (matter_id, score, factors, computed_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (matter_id) DO UPDATE SET
		   score = excluded.score, factors = excluded.factors, computed_at = excluded.computed_at`,
		matterID, result.Score, string(factorsJSON), computedAt)
	return eris.Wrapf(err, "sqlite: save risk score %s", matterID)
}

func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *model.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, firm_id, matter_id, path, mime_type, text, uploaded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.FirmID, doc.MatterID, doc.Path, doc.MimeType, doc.Text, doc.UploadedAt)
	return eris.Wrap(err, "sqlite: insert document")
}

func (s *SQLiteStore) GetDocument(ctx context.Context, documentID string) (*model.Document, error) {
	var doc model.Document
	var mimeType, text sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, firm_id, matter_id, path, mime_type, text, uploaded_at
		 FROM documents WHERE id = ?`, documentID).
		Scan(&doc.ID, &doc.FirmID, &doc.MatterID, &doc.Path, &mimeType, &text, &doc.UploadedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get document %s", documentID)
	}
	doc.MimeType = mimeType.String
	doc.Text = text.String
	return &doc, nil
}

func (s *SQLiteStore) SetDocumentText(ctx context.Context, documentID, text string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET text = ? WHERE id = ?`, text, documentID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set document text %s", documentID)
	}
	return checkRowsAffected(res, "document", documentID)
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "store: rows affected")
	}
	if n == 0 {
		return eris.New("store: " + kind + " not found: " + id)
	}
	return nil
}
