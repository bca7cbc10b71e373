package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/delinquency-bot/internal/delinquency"
	"github.com/sells-group/delinquency-bot/internal/model"
)

type counter interface {
	Counts(ctx context.Context) delinquency.Counts
}

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of delinquent accounts per bucket",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := initService(cfg, "")
		if err != nil {
			return err
		}
		return runCount(cmd.Context(), svc, cmd.OutOrStdout())
	},
}

func runCount(ctx context.Context, c counter, w io.Writer) error {
	counts := c.Counts(ctx)
	for _, b := range model.Buckets {
		bc, ok := counts.Get(b)
		if !ok || bc.Err != nil {
			fmt.Fprintf(w, "%d days: unavailable\n", b.Days())
			continue
		}
		fmt.Fprintf(w, "%d days: %d\n", b.Days(), bc.Count)
	}
	if counts.Failed() {
		return eris.Wrap(delinquency.ErrDataUnavailable, "count")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(countCmd)
}
