package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/mountee32/legalcopilot-sub009/internal/dlq"
)

// The dead-letter queue lives in the serve process, so these commands
// talk to its ops API rather than the store.
var dlqAddr string

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect the running server's dead-letter queue",
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		stage, _ := cmd.Flags().GetString("stage")

		url := dlqAddr + "/api/dlq"
		if stage != "" {
			url += "?stage=" + stage
		}

		var resp struct {
			Entries []dlq.Entry `json:"entries"`
		}
		if err := getJSON(url, &resp); err != nil {
			return err
		}

		if len(resp.Entries) == 0 {
			fmt.Fprintln(os.Stderr, "Dead-letter queue is empty.")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "STAGE\tRUN\tMATTER\tATTEMPTS\tFAILED\tERROR")
		for _, e := range resp.Entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
				e.Stage, e.PipelineRunID, e.MatterID, e.AttemptsMade,
				e.FailedAt.Local().Format(time.DateTime), e.Error,
			)
		}
		tw.Flush()
		return nil
	},
}

var dlqSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show dead-letter counts per stage",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var resp struct {
			ByStage map[string]int `json:"by_stage"`
		}
		if err := getJSON(dlqAddr+"/api/dlq/summary", &resp); err != nil {
			return err
		}

		if len(resp.ByStage) == 0 {
			fmt.Fprintln(os.Stderr, "Dead-letter queue is empty.")
			return nil
		}
		for stage, n := range resp.ByStage {
			fmt.Printf("%-12s %d\n", stage, n)
		}
		return nil
	},
}

var dlqClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear dead-lettered jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		stage, _ := cmd.Flags().GetString("stage")

		url := dlqAddr + "/api/dlq"
		if stage != "" {
			url += "?stage=" + stage
		}

		req, err := http.NewRequest(http.MethodDelete, url, nil)
		if err != nil {
			return eris.Wrap(err, "dlq clear")
		}
		httpResp, err := http.DefaultClient.Do(req)
		if err != nil {
			return eris.Wrap(err, "dlq clear")
		}
		defer httpResp.Body.Close()
		if httpResp.StatusCode != http.StatusOK {
			return eris.Errorf("dlq clear: server returned %s", httpResp.Status)
		}

		var resp struct {
			Removed int `json:"removed"`
		}
		if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
			return eris.Wrap(err, "dlq clear: decode response")
		}
		fmt.Printf("Removed %d entries\n", resp.Removed)
		return nil
	},
}

func getJSON(url string, out any) error {
	resp, err := http.Get(url)
	if err != nil {
		return eris.Wrapf(err, "GET %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("GET %s: server returned %s", url, resp.Status)
	}
	return eris.Wrap(json.NewDecoder(resp.Body).Decode(out), "decode response")
}

func init() {
	dlqCmd.PersistentFlags().StringVar(&dlqAddr, "addr", "http://localhost:8080", "ops API address")
	dlqListCmd.Flags().String("stage", "", "filter by stage")
	dlqClearCmd.Flags().String("stage", "", "clear only one stage")

	dlqCmd.AddCommand(dlqListCmd)
	dlqCmd.AddCommand(dlqSummaryCmd)
	dlqCmd.AddCommand(dlqClearCmd)
	rootCmd.AddCommand(dlqCmd)
}
