package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/mountee32/legalcopilot-sub009/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies
// it too, so tests can inject a mock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id             TEXT PRIMARY KEY,
	firm_id        TEXT NOT NULL,
	matter_id      TEXT NOT NULL,
	document_id    TEXT NOT NULL,
	triggered_by   TEXT,
	status         TEXT NOT NULL DEFAULT 'queued',
	current_stage  TEXT NOT NULL DEFAULT 'intake',
	stage_statuses JSONB NOT NULL DEFAULT '{}',
	document_type  TEXT,
	findings_count INTEGER NOT NULL DEFAULT 0,
	actions_count  INTEGER NOT NULL DEFAULT 0,
	staged         JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS findings (
	id               TEXT PRIMARY KEY,
	firm_id          TEXT NOT NULL,
	matter_id        TEXT NOT NULL,
	category_key     TEXT NOT NULL,
	field_key        TEXT NOT NULL,
	value            TEXT NOT NULL,
	normalized_value TEXT NOT NULL,
	confidence       DOUBLE PRECISION NOT NULL,
	impact           TEXT NOT NULL,
	status           TEXT NOT NULL,
	source_quote     TEXT,
	resolved_by      TEXT,
	resolved_at      TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (matter_id, category_key, field_key, normalized_value)
);

CREATE TABLE IF NOT EXISTS matter_fields (
	matter_id  TEXT NOT NULL,
	case_field TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (matter_id, case_field)
);

CREATE TABLE IF NOT EXISTS risk_scores (
	matter_id   TEXT PRIMARY KEY,
	score       INTEGER NOT NULL,
	factors     JSONB,
	computed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	firm_id     TEXT NOT NULL,
	matter_id   TEXT NOT NULL,
	path        TEXT NOT NULL,
	mime_type   TEXT,
	text        TEXT,
	uploaded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON pipeline_runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_matter ON pipeline_runs(matter_id);
CREATE INDEX IF NOT EXISTS idx_findings_matter ON findings(matter_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, payload model.StagePayload) (*model.PipelineRun, error) {
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
		return nil, eris.Wrap(err, "postgres: marshal stage statuses")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO pipeline_runs
		 (id, firm_id, matter_id, document_id, triggered_by, status, current_stage, stage_statuses, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.ID, run.FirmID, run.MatterID, run.DocumentID, run.TriggeredBy,
		string(run.Status), string(run.CurrentStage), statusesJSON, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return run, nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.PipelineRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, firm_id, matter_id, document_id, triggered_by, status, current_stage,
		        stage_statuses, document_type, findings_count, actions_count, created_at, updated_at
		 FROM pipeline_runs WHERE id = $1`, runID)
	return scanPgRun(row)
}

func scanPgRun(row pgx.Row) (*model.PipelineRun, error) {
	var run model.PipelineRun
	var triggeredBy, docType *string
	var statusesJSON []byte

	err := row.Scan(&run.ID, &run.FirmID, &run.MatterID, &run.DocumentID, &triggeredBy,
		&run.Status, &run.CurrentStage, &statusesJSON, &docType,
		&run.FindingsCount, &run.ActionsCount, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "store: get run")
	}

	if triggeredBy != nil {
		run.TriggeredBy = *triggeredBy
	}
	if docType != nil {
		run.DocumentType = *docType
	}
	if len(statusesJSON) > 0 {
		if err := json.Unmarshal(statusesJSON, &run.StageStatuses); err != nil {
			return nil, eris.Wrap(err, "store: decode stage statuses")
		}
	}
	return &run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error) {
	query := `SELECT id, firm_id, matter_id, document_id, triggered_by, status, current_stage,
	                 stage_statuses, document_type, findings_count, actions_count, created_at, updated_at
	          FROM pipeline_runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	if filter.MatterID != "" {
		args = append(args, filter.MatterID)
		query += ` AND matter_id = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.PipelineRun
	for rows.Next() {
		run, err := scanPgRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	return checkTag(tag, "run", runID)
}

func (s *PostgresStore) MarkStage(ctx context.Context, runID string, stage model.Stage, state model.StageState, errMsg string) error {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}

	statusesJSON, err := json.Marshal(applyStageMark(&run.StageStatuses, stage, state, errMsg))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stage statuses")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs SET stage_statuses = $1, updated_at = $2 WHERE id = $3`,
		statusesJSON, time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark stage %s/%s", runID, stage)
	}
	return checkTag(tag, "run", runID)
}

func (s *PostgresStore) SetCurrentStage(ctx context.Context, runID string, stage model.Stage) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs SET current_stage = $1, updated_at = $2 WHERE id = $3`,
		string(stage), time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: set current stage %s", runID)
	}
	return checkTag(tag, "run", runID)
}

func (s *PostgresStore) SetRunDocumentType(ctx context.Context, runID, docType string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs SET document_type = $1, updated_at = $2 WHERE id = $3`,
		docType, time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: set document type %s", runID)
	}
	return checkTag(tag, "run", runID)
}

func (s *PostgresStore) SetRunCounts(ctx context.Context, runID string, findings, actions int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs SET findings_count = $1, actions_count = $2, updated_at = $3 WHERE id = $4`,
		findings, actions, time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: set run counts %s", runID)
	}
	return checkTag(tag, "run", runID)
}

func (s *PostgresStore) StageFindings(ctx context.Context, runID string, findings []model.ProcessedFinding) error {
	data, err := json.Marshal(findings)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal staged findings")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs SET staged = $1, updated_at = $2 WHERE id = $3`,
		data, time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: stage findings %s", runID)
	}
	return checkTag(tag, "run", runID)
}

func (s *PostgresStore) StagedFindings(ctx context.Context, runID string) ([]model.ProcessedFinding, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT staged FROM pipeline_runs WHERE id = $1`, runID).Scan(&data)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: staged findings %s", runID)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var findings []model.ProcessedFinding
	if err := json.Unmarshal(data, &findings); err != nil {
		return nil, eris.Wrap(err, "postgres: decode staged findings")
	}
	return findings, nil
}

func (s *PostgresStore) UpsertFinding(ctx context.Context, f *model.PersistedFinding) (bool, error) {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO findings
		 (id, firm_id, matter_id, category_key, field_key, value, normalized_value,
		  confidence, impact, status, source_quote, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (matter_id, category_key, field_key, normalized_value) DO NOTHING`,
		f.ID, f.FirmID, f.MatterID, f.CategoryKey, f.FieldKey, f.Value, f.NormalizedValue,
		f.Confidence, string(f.Impact), string(f.Status), f.SourceQuote, f.CreatedAt)
	if err != nil {
		return false, eris.Wrap(err, "postgres: upsert finding")
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ListFindings(ctx context.Context, firmID, matterID string) ([]model.PersistedFinding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, firm_id, matter_id, category_key, field_key, value, normalized_value,
		        confidence, impact, status, source_quote, resolved_by, resolved_at, created_at
		 FROM findings WHERE firm_id = $1 AND matter_id = $2 ORDER BY created_at, id`,
		firmID, matterID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list findings")
	}
	defer rows.Close()

	var findings []model.PersistedFinding
	for rows.Next() {
		var f model.PersistedFinding
		var sourceQuote, resolvedBy *string
		var resolvedAt *time.Time
		if err := rows.Scan(&f.ID, &f.FirmID, &f.MatterID, &f.CategoryKey, &f.FieldKey,
			&f.Value, &f.NormalizedValue, &f.Confidence, &f.Impact, &f.Status,
			&sourceQuote, &resolvedBy, &resolvedAt, &f.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan finding")
		}
		if sourceQuote != nil {
			f.SourceQuote = *sourceQuote
		}
		if resolvedBy != nil {
			f.ResolvedBy = *resolvedBy
		}
		f.ResolvedAt = resolvedAt
		findings = append(findings, f)
	}
	return findings, eris.Wrap(rows.Err(), "postgres: list findings iterate")
}

func (s *PostgresStore) GetMatterValue(ctx context.Context, matterID, caseField string) (*string, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM matter_fields WHERE matter_id = $1 AND case_field = $2`,
		matterID, caseField).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get matter value %s/%s", matterID, caseField)
	}
	return &value, nil
}

func (s *PostgresStore) SetMatterValue(ctx context.Context, matterID, caseField, value string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO matter_fields (matter_id, case_field, value, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (matter_id, case_field) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		matterID, caseField, value, time.Now().UTC())
	return eris.Wrapf(err, "postgres: set matter value %s/%s", matterID, caseField)
}

func (s *PostgresStore) SaveRiskScore(ctx context.Context, matterID string, result model.RiskResult) error {
	factorsJSON, err := json.Marshal(result.Factors)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal risk factors")
	}
	computedAt := result.ComputedAt
	if computedAt.IsZero() {
		computedAt = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO risk_scores (matter_id, score, factors, computed_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (matter_id) DO UPDATE SET
		   score = excluded.score, factors = excluded.factors, computed_at = excluded.computed_at`,
		matterID, result.Score, factorsJSON, computedAt)
	return eris.Wrapf(err, "postgres: save risk score %s", matterID)
}

func (s *PostgresStore) CreateDocument(ctx context.Context, doc *model.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, firm_id, matter_id, path, mime_type, text, uploaded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		doc.ID, doc.FirmID, doc.MatterID, doc.Path, doc.MimeType, doc.Text, doc.UploadedAt)
	return eris.Wrap(err, "postgres: insert document")
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (*model.Document, error) {
	var doc model.Document
	var mimeType, text *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, firm_id, matter_id, path, mime_type, text, uploaded_at
		 FROM documents WHERE id = $1`, documentID).
		Scan(&doc.ID, &doc.FirmID, &doc.MatterID, &doc.Path, &mimeType, &text, &doc.UploadedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get document %s", documentID)
	}
	if mimeType != nil {
		doc.MimeType = *mimeType
	}
	if text != nil {
		doc.Text = *text
	}
	return &doc, nil
}

func (s *PostgresStore) SetDocumentText(ctx context.Context, documentID, text string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET text = $1 WHERE id = $2`, text, documentID)
	if err != nil {
		return eris.Wrapf(err, "postgres: set document text %s", documentID)
	}
	return checkTag(tag, "document", documentID)
}

func checkTag(tag pgconn.CommandTag, kind, id string) error {
	if tag.RowsAffected() == 0 {
		return eris.New("store: " + kind + " not found: " + id)
	}
	return nil
}
