package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/congress-cli/internal/model"
	"github.com/sells-group/congress-cli/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ingestion runs and failed artifacts",
	Long:  "Displays recent ingestion runs and the artifacts whose latest attempt failed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("status"); err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")
		congress, _ := cmd.Flags().GetInt("congress")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rd := store.NewReader(st)
		runs, err := rd.Runs(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "status: runs")
		}
		failed, err := rd.Artifacts(ctx, store.ArtifactFilter{Congress: congress, Status: model.ArtifactFailed, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "status: artifacts")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No ingestion runs found, run 'ingest' first.")
			return nil
		}
		formatRuns(os.Stdout, runs)
		if len(failed) > 0 {
			fmt.Fprintln(os.Stdout)
			formatFailures(os.Stdout, failed)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().Int("limit", 20, "maximum rows per table")
	statusCmd.Flags().Int("congress", 0, "restrict failed artifacts to one congress")
	rootCmd.AddCommand(statusCmd)
}

// formatRuns writes a tabular representation of runs to out.
func formatRuns(out io.Writer, runs []model.IngestRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RUN\tSTATUS\tSTARTED\tDURATION\tRESUME\tERROR")
	_, _ = fmt.Fprintln(w, "---\t------\t-------\t--------\t------\t-----")

	for _, r := range runs {
		dur := "-"
		if r.CompletedAt != nil {
			dur = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n",
			shortID(r.ID),
			r.Status,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
			r.Resume,
			truncate(r.Error, 60),
		)
	}
	_ = w.Flush()
}

// formatFailures writes failed artifacts with their error kind to out.
func formatFailures(out io.Writer, recs []model.ArtifactRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ARTIFACT\tERROR KIND\tATTEMPTS\tLAST ATTEMPT\tDETAIL")
	_, _ = fmt.Fprintln(w, "--------\t----------\t--------\t------------\t------")

	for _, r := range recs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			r.ArtifactKey,
			r.ErrorKind,
			r.Attempts,
			r.LastAttemptAt.Format("2006-01-02 15:04"),
			truncate(r.ErrorDetail, 60),
		)
	}
	_ = w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
