package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mountee32/legalcopilot-sub009/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO pipeline_runs`).
		WithArgs(pgxmock.AnyArg(), "firm-1", "matter-1", "doc-1", "tester",
			"queued", "intake", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), model.StagePayload{
		FirmID:      "firm-1",
		MatterID:    "matter-1",
		DocumentID:  "doc-1",
		TriggeredBy: "tester",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	rows := pgxmock.NewRows([]string{
		"id", "firm_id", "matter_id", "document_id", "triggered_by", "status",
		"current_stage", "stage_statuses", "document_type", "findings_count",
		"actions_count", "created_at", "updated_at",
	}).AddRow("run-1", "firm-1", "matter-1", "doc-1", (*string)(nil), model.RunStatusRunning,
		model.StageExtract, []byte(`{"extract":{"status":"running"}}`), (*string)(nil), 0, 0, now, now)

	mock.ExpectQuery(`FROM pipeline_runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(rows)

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.Equal(t, model.StageExtract, run.CurrentStage)
	assert.Equal(t, model.StageStateRunning, run.StageStatuses.Get(model.StageExtract).Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM pipeline_runs WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRunStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE pipeline_runs SET status`).
		WithArgs("failed", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateRunStatus(context.Background(), "missing", model.RunStatusFailed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertFinding_Inserted(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO findings`).
		WithArgs(pgxmock.AnyArg(), "firm-1", "matter-1", "parties", "claimant_name",
			"John Smith", "john smith", 0.9, "high", "auto_applied", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	inserted, err := s.UpsertFinding(context.Background(), &model.PersistedFinding{
		FirmID:          "firm-1",
		MatterID:        "matter-1",
		CategoryKey:     "parties",
		FieldKey:        "claimant_name",
		Value:           "John Smith",
		NormalizedValue: "john smith",
		Confidence:      0.9,
		Impact:          model.ImpactHigh,
		Status:          model.FindingAutoApplied,
	})
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertFinding_DuplicateIsNoop(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO findings`).
		WithArgs(pgxmock.AnyArg(), "firm-1", "matter-1", "parties", "claimant_name",
			"JOHN SMITH", "john smith", 0.5, "high", "pending", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err := s.UpsertFinding(context.Background(), &model.PersistedFinding{
		FirmID:          "firm-1",
		MatterID:        "matter-1",
		CategoryKey:     "parties",
		FieldKey:        "claimant_name",
		Value:           "JOHN SMITH",
		NormalizedValue: "john smith",
		Confidence:      0.5,
		Impact:          model.ImpactHigh,
		Status:          model.FindingPending,
	})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetMatterValue_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT value FROM matter_fields`).
		WithArgs("matter-1", "claimant.full_name").
		WillReturnError(pgx.ErrNoRows)

	value, err := s.GetMatterValue(context.Background(), "matter-1", "claimant.full_name")
	require.NoError(t, err)
	assert.Nil(t, value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetMatterValue_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO matter_fields`).
		WithArgs("matter-1", "claimant.full_name", "John Smith", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SetMatterValue(context.Background(), "matter-1", "claimant.full_name", "John Smith")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_StagedFindings_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT staged FROM pipeline_runs`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"staged"}).AddRow([]byte(nil)))

	staged, err := s.StagedFindings(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Nil(t, staged)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_StagedFindings_Decodes(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	payload := []byte(`[{"category_key":"parties","field_key":"claimant_name","value":"John Smith","confidence":0.9,"label":"Claimant","impact":"high","is_duplicate":false}]`)
	mock.ExpectQuery(`SELECT staged FROM pipeline_runs`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"staged"}).AddRow(payload))

	staged, err := s.StagedFindings(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, staged, 1)
	assert.Equal(t, "Claimant", staged[0].Label)
	assert.Equal(t, model.ImpactHigh, staged[0].Impact)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRiskScore_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO risk_scores`).
		WithArgs("matter-1", 42, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveRiskScore(context.Background(), "matter-1", model.RiskResult{Score: 42})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetDocumentText_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE documents SET text`).
		WithArgs("text", "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.SetDocumentText(context.Background(), "missing", "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}
