// Package api exposes the pipeline's operational HTTP surface: starting
// and retrying runs, inspecting runs, and managing the dead-letter
// queue.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/mountee32/legalcopilot-sub009/internal/dlq"
	"github.com/mountee32/legalcopilot-sub009/internal/model"
	"github.com/mountee32/legalcopilot-sub009/internal/pipeline"
	"github.com/mountee32/legalcopilot-sub009/internal/queue"
	"github.com/mountee32/legalcopilot-sub009/internal/store"
)

// Deps are the subsystems the API serves.
type Deps struct {
	Store        store.Store
	Orchestrator *pipeline.Orchestrator
	Queue        *queue.Queue
	Monitor      *dlq.Monitor
}

// NewHandler builds the ops router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", handleHealth(deps))
	r.Post("/api/pipeline/start", handleStart(deps))
	r.Post("/api/pipeline/retry", handleRetry(deps))
	r.Get("/api/runs", handleListRuns(deps))
	r.Get("/api/runs/{id}", handleGetRun(deps))
	r.Get("/api/dlq", handleListDLQ(deps))
	r.Get("/api/dlq/summary", handleDLQSummary(deps))
	r.Delete("/api/dlq", handleClearDLQ(deps))

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		depths := make(map[string]int, len(model.Stages))
		for _, stage := range model.Stages {
			depths[string(stage)] = deps.Queue.Depth(stage)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":       "ok",
			"queue_depths": depths,
		})
	}
}

// StartRequest asks for a new pipeline run over an uploaded document.
type StartRequest struct {
	FirmID      string `json:"firm_id"`
	MatterID    string `json:"matter_id"`
	DocumentID  string `json:"document_id"`
	TriggeredBy string `json:"triggered_by"`
}

func handleStart(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.MatterID == "" || req.DocumentID == "" {
			httpError(w, http.StatusBadRequest, "matter_id and document_id are required")
			return
		}

		run, err := deps.Orchestrator.StartPipeline(r.Context(), model.StagePayload{
			FirmID:      req.FirmID,
			MatterID:    req.MatterID,
			DocumentID:  req.DocumentID,
			TriggeredBy: req.TriggeredBy,
		})
		if err != nil {
			zap.L().Error("api: start pipeline", zap.Error(err))
			httpError(w, http.StatusInternalServerError, "failed to start pipeline")
			return
		}
		writeJSON(w, http.StatusAccepted, run)
	}
}

// RetryRequest re-enqueues a failed run from a given stage.
type RetryRequest struct {
	RunID string `json:"run_id"`
	Stage string `json:"stage"`
}

func handleRetry(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RetryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.RunID == "" {
			httpError(w, http.StatusBadRequest, "run_id is required")
			return
		}
		stage := model.Stage(req.Stage)
		if req.Stage == "" {
			stage = model.StageIntake
		}
		if !stage.Valid() {
			httpError(w, http.StatusBadRequest, "unknown stage "+req.Stage)
			return
		}

		if err := deps.Orchestrator.RetryFromStage(r.Context(), req.RunID, stage); err != nil {
			zap.L().Error("api: retry pipeline", zap.String("run_id", req.RunID), zap.Error(err))
			httpError(w, http.StatusInternalServerError, "failed to retry run")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"run_id": req.RunID,
			"stage":  string(stage),
		})
	}
}

func handleListRuns(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := store.RunFilter{
			Status:   model.RunStatus(r.URL.Query().Get("status")),
			MatterID: r.URL.Query().Get("matter_id"),
		}
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Limit = n
			}
		}
		if v := r.URL.Query().Get("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Offset = n
			}
		}

		runs, err := deps.Store.ListRuns(r.Context(), filter)
		if err != nil {
			zap.L().Error("api: list runs", zap.Error(err))
			httpError(w, http.StatusInternalServerError, "failed to list runs")
			return
		}
		if runs == nil {
			runs = []model.PipelineRun{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
	}
}

func handleGetRun(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := deps.Store.GetRun(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			httpError(w, http.StatusNotFound, "run not found")
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

func handleListDLQ(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stage := model.Stage(r.URL.Query().Get("stage"))
		if stage != "" && !stage.Valid() {
			httpError(w, http.StatusBadRequest, "unknown stage "+string(stage))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"entries": deps.Monitor.Entries(stage),
		})
	}
}

func handleDLQSummary(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary := deps.Monitor.Summary()
		out := make(map[string]int, len(summary))
		for stage, n := range summary {
			out[string(stage)] = n
		}
		writeJSON(w, http.StatusOK, map[string]any{"by_stage": out})
	}
}

func handleClearDLQ(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stage := model.Stage(r.URL.Query().Get("stage"))
		if stage != "" && !stage.Valid() {
			httpError(w, http.StatusBadRequest, "unknown stage "+string(stage))
			return
		}
		removed := deps.Monitor.Clear(stage)
		writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
