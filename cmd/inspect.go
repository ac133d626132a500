package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/recsched/internal/browser"
	"github.com/example/recsched/internal/flow"
	"github.com/example/recsched/internal/reservation"
)

type inspectOptions struct {
	kind     string
	location string
	guests   int
	start    string
	end      string
}

// newInspectCmd runs one scan over a saved availability page. It shows what
// the poller would pick without touching the live site.
func (a *app) newInspectCmd() *cobra.Command {
	var opts inspectOptions

	c := &cobra.Command{
		Use:   "inspect PAGE.html",
		Short: "Scan a saved availability page and print the candidate the poller would book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := a.loadLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			html, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return inspect(cmd.Context(), string(html), opts, logger, cmd.OutOrStdout())
		},
	}
	c.Flags().StringVar(&opts.kind, "kind", string(reservation.KindCamping), "camping or permit")
	c.Flags().StringVar(&opts.location, "location", "", "location in config form, e.g. Yosemite:Upper Pines:A12,A13")
	c.Flags().IntVar(&opts.guests, "guests", 2, "group size")
	c.Flags().StringVar(&opts.start, "start", "", "start date mm/dd/yyyy")
	c.Flags().StringVar(&opts.end, "end", "", "end date mm/dd/yyyy (camping)")
	_ = c.MarkFlagRequired("location")
	_ = c.MarkFlagRequired("start")
	return c
}

func inspect(ctx context.Context, html string, opts inspectOptions, logger *zap.Logger, out io.Writer) error {
	kind := reservation.Kind(opts.kind)
	loc, err := reservation.ParseLocation(kind, opts.location)
	if err != nil {
		return err
	}
	crit := reservation.Criteria{Guests: opts.guests}
	if crit.Start, err = reservation.ParseNumericDate(opts.start); err != nil {
		return err
	}
	if opts.end != "" {
		if crit.End, err = reservation.ParseNumericDate(opts.end); err != nil {
			return err
		}
	}
	if err := crit.Validate(kind); err != nil {
		return err
	}

	h, err := browser.StaticHTML(html)
	if err != nil {
		return err
	}
	defer h.Close()

	site := &flow.Site{Handle: h, Logger: logger.Named("inspect")}
	var scanner interface {
		Scan(context.Context, reservation.Criteria) (reservation.Candidate, bool, error)
	}
	if kind == reservation.KindPermit {
		scanner = flow.NewPermit(site, loc)
	} else {
		scanner = flow.NewCamping(site, loc)
	}

	cand, ok, err := scanner.Scan(ctx, crit)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	if !ok {
		fmt.Fprintf(out, "%s: nothing available for %d guests from %s\n", loc.Name(), crit.Guests, reservation.NumericDate(crit.Start))
		return nil
	}
	fmt.Fprintf(out, "%s: %s for %s (row %d, column %d)\n", loc.Name(), cand.Unit, cand.Dates(), cand.Row, cand.Column)
	return nil
}
