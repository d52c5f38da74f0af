package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/mountee32/legalcopilot-sub009/internal/model"
	"github.com/mountee32/legalcopilot-sub009/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect pipeline run history",
	Long:  "Commands for listing and viewing document pipeline runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pipeline runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		status, _ := cmd.Flags().GetString("status")
		matter, _ := cmd.Flags().GetString("matter")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status:   model.RunStatus(status),
			MatterID: matter,
			Limit:    limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(run)
		}

		formatRunDetail(os.Stdout, run)
		return nil
	},
}

func formatRunsList(w io.Writer, runs []model.PipelineRun) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMATTER\tSTATUS\tSTAGE\tTYPE\tFINDINGS\tACTIONS\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ID, r.MatterID, r.Status, r.CurrentStage, r.DocumentType,
			r.FindingsCount, r.ActionsCount,
			r.CreatedAt.Local().Format(time.DateTime),
		)
	}
	tw.Flush()
}

func formatRunDetail(w io.Writer, run *model.PipelineRun) {
	fmt.Fprintf(w, "Run:      %s\n", run.ID)
	fmt.Fprintf(w, "Matter:   %s (firm %s)\n", run.MatterID, run.FirmID)
	fmt.Fprintf(w, "Document: %s", run.DocumentID)
	if run.DocumentType != "" {
		fmt.Fprintf(w, " (%s)", run.DocumentType)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Status:   %s (stage %s)\n", run.Status, run.CurrentStage)
	fmt.Fprintf(w, "Findings: %d  Actions: %d\n", run.FindingsCount, run.ActionsCount)
	fmt.Fprintln(w, "Stages:")

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, stage := range model.Stages {
		s := run.StageStatuses.Get(stage)
		status := string(s.Status)
		if status == "" {
			status = string(model.StageStatePending)
		}
		detail := ""
		if s.StartedAt != nil && s.CompletedAt != nil {
			detail = s.CompletedAt.Sub(*s.StartedAt).Round(time.Millisecond).String()
		}
		if s.Error != "" {
			detail = s.Error
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", stage, status, detail)
	}
	tw.Flush()
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by status (queued|running|completed|failed)")
	runsListCmd.Flags().String("matter", "", "filter by matter ID")
	runsListCmd.Flags().Int("limit", 20, "max runs to list")
	runsShowCmd.Flags().Bool("json", false, "output raw JSON")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}
