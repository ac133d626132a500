package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/example/recsched/internal/db"
	"github.com/example/recsched/internal/store"
)

func (a *app) newHistoryCmd() *cobra.Command {
	var (
		limit int
		runID string
	)

	c := &cobra.Command{
		Use:   "history",
		Short: "Show stored results, or the attempts of one run",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := a.loadLogger()
			if err != nil {
				return err
			}
			url := a.v.GetString("database.url")
			if url == "" {
				return errors.New("database.url is not configured")
			}

			ctx := cmd.Context()
			d, err := db.Open(ctx, url)
			if err != nil {
				return err
			}
			defer d.Close()
			s := store.New(d, logger)

			if runID != "" {
				id, err := uuid.Parse(runID)
				if err != nil {
					return fmt.Errorf("--run: %w", err)
				}
				return printAttempts(ctx, s, id, cmd.OutOrStdout())
			}
			return printResults(ctx, s, limit, cmd.OutOrStdout())
		},
	}
	c.Flags().IntVar(&limit, "limit", 20, "number of results to show")
	c.Flags().StringVar(&runID, "run", "", "show the attempts of this run")
	return c
}

type resultLister interface {
	Results(ctx context.Context, limit int) ([]store.ResultRecord, error)
}

func printResults(ctx context.Context, s resultLister, limit int, out io.Writer) error {
	results, err := s.Results(ctx, limit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FINISHED\tRUN\tLOCATION\tSTATUS\tITERATIONS\tBOOKED\tREASON")
	for _, r := range results {
		booked := ""
		if r.Unit != "" {
			booked = r.Unit + " " + r.Dates
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			r.FinishedAt.Local().Format("2006-01-02 15:04:05"), shortID(r.RunID), r.Location, r.Status, r.Iterations, booked, r.Reason)
	}
	return w.Flush()
}

func printAttempts(ctx context.Context, s *store.Store, id uuid.UUID, out io.Writer) error {
	attempts, err := s.Attempts(ctx, id)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "AT\tLOCATION\tITERATION\tOUTCOME\tDETAIL")
	for _, at := range attempts {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", at.At.Local().Format("15:04:05"), at.Location, at.Iteration, at.Outcome, at.Detail)
	}
	return w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
