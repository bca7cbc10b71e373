package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/delinquency-bot/internal/delinquency"
	"github.com/sells-group/delinquency-bot/internal/export"
)

var (
	exportDir  string
	exportKeep bool
)

type runner interface {
	Run(ctx context.Context) (*delinquency.Report, error)
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Run the pipeline once and write the delinquent spreadsheets locally",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := initService(cfg, exportDir)
		if err != nil {
			return err
		}
		return runExport(cmd.Context(), svc, cmd.OutOrStdout(), exportKeep)
	},
}

// runExport runs the pipeline and prints each artifact with its row count.
// Artifacts are removed afterwards unless keep is set.
func runExport(ctx context.Context, r runner, w io.Writer, keep bool) error {
	report, err := r.Run(ctx)
	if err != nil {
		return eris.Wrap(err, "export")
	}
	if !keep {
		defer report.Cleanup()
	}

	for _, a := range report.Artifacts {
		rows, err := export.ReadRows(a.Path)
		if err != nil {
			return eris.Wrapf(err, "export: verify %s", a.Path)
		}
		// Header row excluded.
		fmt.Fprintf(w, "%s\t%d rows\t%s\n", a.Bucket, len(rows)-1, a.Path)
	}

	s := report.Stats
	fmt.Fprintf(w, "run %s: %d lookups, %d enriched, %d empty, %d failed, %d rows enriched\n",
		report.RunID, s.Lookups, s.Enriched, s.Empty, s.Failed, s.RowsEnriched)

	zap.L().Info("export complete", zap.String("run_id", report.RunID), zap.Bool("kept", keep))
	return nil
}

func init() {
	exportCmd.Flags().StringVar(&exportDir, "dir", "", "output directory (default from config, then system temp dir)")
	exportCmd.Flags().BoolVar(&exportKeep, "keep", false, "keep the spreadsheets after the run")
	rootCmd.AddCommand(exportCmd)
}
