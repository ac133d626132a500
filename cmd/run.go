package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"
	"unicode"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/recsched/internal/browser"
	"github.com/example/recsched/internal/config"
	"github.com/example/recsched/internal/db"
	"github.com/example/recsched/internal/flow"
	"github.com/example/recsched/internal/migrate"
	"github.com/example/recsched/internal/notify"
	"github.com/example/recsched/internal/orchestrator"
	"github.com/example/recsched/internal/poller"
	"github.com/example/recsched/internal/reservation"
	"github.com/example/recsched/internal/secrets"
	"github.com/example/recsched/internal/status"
	"github.com/example/recsched/internal/store"
	"github.com/example/recsched/internal/web"
)

const envPassphrase = "RECSCHED_SEAL_PASSPHRASE"

func (a *app) newRunCmd() *cobra.Command {
	var statusAddr string

	c := &cobra.Command{
		Use:   "run",
		Short: "Poll every configured location until one reaches checkout or the exit policy runs out",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := a.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if statusAddr != "" {
				cfg.Status.Addr = statusAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, logger, cmd.OutOrStdout())
		},
	}
	c.Flags().StringVar(&statusAddr, "status-addr", "", "serve live run status on this address, e.g. :8080")
	return c
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, out io.Writer) error {
	policy, err := cfg.Policy(time.Now())
	if err != nil {
		return err
	}
	targets, err := buildTargets(cfg, logger)
	if err != nil {
		return err
	}
	creds, err := cfg.Credentials(os.Getenv(envPassphrase))
	if err != nil {
		return err
	}
	locs := make([]reservation.LocationSpec, len(targets))
	for i, t := range targets {
		locs[i] = t.Location
	}

	var notifier notify.Notifier = notify.Log{Logger: logger.Named("notify")}
	if cfg.Notify.Email.Enabled {
		notifier = notify.Multi{notifier, notify.NewEmail(cfg.SMTP())}
	}

	var (
		history  *store.Store
		runRec   *store.Run
		recorder poller.Recorder
	)
	if cfg.Database.URL != "" {
		d, err := db.Open(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		defer d.Close()
		if cfg.Database.Migrate {
			if _, err := migrate.Up(ctx, d, logger.Named("migrate")); err != nil {
				return err
			}
		}
		history = store.New(d, logger)
		if runRec, err = history.StartRun(ctx, policy.String(), locs); err != nil {
			return err
		}
		recorder = runRec
	}

	board := status.NewBoard(locs)
	serverDone := make(chan struct{})
	serverCtx, stopServer := context.WithCancel(context.Background())
	if cfg.Status.Addr != "" {
		srv := &web.Server{Board: board, Logger: logger.Named("web")}
		if history != nil {
			srv.History = history
		}
		go func() {
			defer close(serverDone)
			if err := web.Start(serverCtx, cfg.Status.Addr, srv.Routes(), logger); err != nil {
				logger.Error("status server", zap.Error(err))
			}
		}()
	} else {
		close(serverDone)
	}
	defer func() {
		stopServer()
		<-serverDone
	}()

	o := &orchestrator.Orchestrator{
		NewHandle:   chromeFactory(cfg.Browser, logger),
		NewFlow:     flowFactory(cfg, creds, logger),
		Policy:      policy,
		Handoff:     cfg.Handoff(),
		Notifier:    notifier,
		Recorder:    recorder,
		Board:       board,
		Logger:      logger.Named("orchestrator"),
		Concurrency: cfg.Preferences.Concurrency,
		MinInterval: cfg.Preferences.MinInterval,
	}
	logger.Info("starting", zap.Int("locations", len(targets)), zap.Stringer("policy", policy), zap.String("version", Version))
	report := o.Run(ctx, targets)

	for _, res := range report.Results {
		fmt.Fprintln(out, res.String())
		if runRec != nil {
			if err := runRec.RecordResult(context.Background(), res); err != nil {
				logger.Warn("store result", zap.Error(err))
			}
		}
	}
	if runRec != nil {
		if err := runRec.Finish(context.Background()); err != nil {
			logger.Warn("finish run", zap.Error(err))
		}
	}

	if o.Held() > 0 {
		if report.AwaitingHuman() {
			fmt.Fprintln(out, "Finish the checkout in the open browser window, then press Ctrl-C to close it.")
		} else {
			fmt.Fprintln(out, "The cart is held by your account. Finish the checkout on recreation.gov, then press Ctrl-C to close the browser.")
		}
		waitCtx, stopWait := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		<-waitCtx.Done()
		stopWait()
		if err := o.Release(); err != nil {
			logger.Warn("close held browsers", zap.Error(err))
		}
	}

	if !report.Success() {
		return errNothingBooked
	}
	return nil
}

func buildTargets(cfg *config.Config, logger *zap.Logger) ([]orchestrator.Target, error) {
	locs, err := cfg.Locations()
	if err != nil {
		return nil, err
	}
	criteria := map[reservation.Kind]reservation.Criteria{}
	targets := make([]orchestrator.Target, 0, len(locs))
	for _, loc := range locs {
		crit, ok := criteria[loc.Kind]
		if !ok {
			if crit, err = cfg.Criteria(loc.Kind, logger); err != nil {
				return nil, err
			}
			criteria[loc.Kind] = crit
		}
		targets = append(targets, orchestrator.Target{Location: loc, Criteria: crit})
	}
	return targets, nil
}

func chromeFactory(bc config.BrowserConfig, logger *zap.Logger) orchestrator.HandleFactory {
	return func(ctx context.Context, loc reservation.LocationSpec) (browser.Handle, error) {
		opts := browser.ChromeOptions{
			Headless: bc.Headless,
			ExecPath: bc.ExecPath,
			Timeout:  bc.Timeout,
			Args:     bc.Args,
		}
		if bc.ProfileRoot != "" {
			opts.UserDataDir = filepath.Join(bc.ProfileRoot, profileName(loc))
		}
		c, err := browser.NewChrome(ctx, opts, logger.Named("browser").With(zap.String("location", loc.Name())))
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

func flowFactory(cfg *config.Config, creds secrets.Credentials, logger *zap.Logger) orchestrator.FlowFactory {
	return func(h browser.Handle, loc reservation.LocationSpec) poller.Flow {
		site := &flow.Site{
			Handle:      h,
			BaseURL:     cfg.Preferences.URL,
			Login:       cfg.Preferences.Login,
			Credentials: creds,
			Timing:      flow.Timing{Wait: cfg.Preferences.Wait, LongDelay: cfg.Preferences.LongDelay},
			Logger:      logger.Named("flow"),
		}
		if loc.Kind == reservation.KindPermit {
			return flow.NewPermit(site, loc)
		}
		return flow.NewCamping(site, loc)
	}
}

// profileName turns a location into a directory name.
func profileName(loc reservation.LocationSpec) string {
	name := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return '-'
	}, string(loc.Kind)+"-"+loc.String())
	return strings.Trim(name, "-")
}
