package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mountee32/legalcopilot-sub009/internal/model"
)

var (
	ingestFirmID      string
	ingestMatterID    string
	ingestTriggeredBy string
	ingestWaitSecs    int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <document-path>",
	Short: "Register a document and run it through the pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("ingest"); err != nil {
			return err
		}

		path, err := filepath.Abs(args[0])
		if err != nil {
			return eris.Wrap(err, "resolve document path")
		}
		if _, err := os.Stat(path); err != nil {
			return eris.Wrapf(err, "document %s", path)
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		env.Queue.Start(ctx)

		doc := &model.Document{
			FirmID:   ingestFirmID,
			MatterID: ingestMatterID,
			Path:     path,
			MimeType: mime.TypeByExtension(filepath.Ext(path)),
		}
		if err := env.Store.CreateDocument(ctx, doc); err != nil {
			return err
		}

		run, err := env.Orchestrator.StartPipeline(ctx, model.StagePayload{
			FirmID:      ingestFirmID,
			MatterID:    ingestMatterID,
			DocumentID:  doc.ID,
			TriggeredBy: ingestTriggeredBy,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Run %s started for document %s\n", run.ID, doc.ID)
		return waitForRun(ctx, env, run.ID, time.Duration(ingestWaitSecs)*time.Second)
	},
}

// waitForRun polls the run until it reaches a terminal status or the
// deadline passes.
func waitForRun(ctx context.Context, env *pipelineEnv, runID string, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		run, err := env.Store.GetRun(ctx, runID)
		if err != nil {
			return err
		}

		switch run.Status {
		case model.RunStatusCompleted:
			fmt.Printf("Run completed: type=%s findings=%d actions=%d\n",
				run.DocumentType, run.FindingsCount, run.ActionsCount)
			return nil
		case model.RunStatusFailed:
			failed := run.StageStatuses.Get(run.CurrentStage)
			return eris.Errorf("run failed at stage %s: %s", run.CurrentStage, failed.Error)
		}

		if time.Now().After(deadline) {
			zap.L().Warn("run still in progress at deadline",
				zap.String("run_id", runID),
				zap.String("stage", string(run.CurrentStage)),
			)
			fmt.Printf("Run %s still %s at stage %s\n", runID, run.Status, run.CurrentStage)
			return nil
		}
	}
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFirmID, "firm", "default", "firm ID")
	ingestCmd.Flags().StringVar(&ingestMatterID, "matter", "", "matter ID (required)")
	ingestCmd.Flags().StringVar(&ingestTriggeredBy, "by", "cli", "who triggered the run")
	ingestCmd.Flags().IntVar(&ingestWaitSecs, "wait", 600, "seconds to wait for completion")
	_ = ingestCmd.MarkFlagRequired("matter")
	rootCmd.AddCommand(ingestCmd)
}
