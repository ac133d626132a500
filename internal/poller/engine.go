// Package poller runs the polling state machine for one location: set up the
// session once, then configure, scan and book until a terminal outcome or
// until the exit policy runs out.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/example/recsched/internal/notify"
	"github.com/example/recsched/internal/reservation"
)

// Flow is the site-specific strategy the engine drives. Implementations
// return ordinary errors; the engine turns them into outcomes.
type Flow interface {
	Open(ctx context.Context) error
	LogIn(ctx context.Context) error
	Locate(ctx context.Context) error

	// Configure applies the scheduling details. For a next-available
	// search it returns the criteria with the date the site picked.
	Configure(ctx context.Context, c reservation.Criteria) (reservation.Criteria, error)
	Scan(ctx context.Context, c reservation.Criteria) (reservation.Candidate, bool, error)
	// Book selects the candidate and proceeds to checkout. A nil error
	// means the checkout boundary was reached.
	Book(ctx context.Context, cand reservation.Candidate) error

	Authenticated(ctx context.Context) (bool, error)
	DismissLogin(ctx context.Context) error
}

type Attempt struct {
	Location  string
	Iteration int
	Outcome   reservation.OutcomeKind
	Detail    string
	At        time.Time
}

type Recorder interface {
	RecordAttempt(ctx context.Context, a Attempt) error
}

type Engine struct {
	Flow   Flow
	Policy ExitPolicy
	// Handoff reports an authenticated checkout as AwaitingHuman, for an
	// operator watching the browser. Without it the checkout is Booked.
	// The session is left open either way.
	Handoff bool

	Notifier notify.Notifier
	Recorder Recorder
	Logger   *zap.Logger
	// Pace spaces iterations apart when set.
	Pace *rate.Limiter
	// Observe is told about every state change.
	Observe func(s State, iteration int)

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

func (e *Engine) defaults() {
	if e.Logger == nil {
		e.Logger = zap.NewNop()
	}
	if e.Now == nil {
		e.Now = time.Now
	}
	if e.Sleep == nil {
		e.Sleep = sleep
	}
	if e.Notifier == nil {
		e.Notifier = notify.Log{Logger: e.Logger}
	}
}

// Run polls one location until a terminal outcome. It never returns an
// error; every failure is reported through the result.
func (e *Engine) Run(ctx context.Context, loc reservation.LocationSpec, crit reservation.Criteria) reservation.Result {
	e.defaults()
	log := e.Logger.With(zap.String("location", loc.Name()))
	res := reservation.Result{Location: loc, WindowEnd: e.Policy.Bound()}

	e.enter(StateStart, 0)
	setup := []struct {
		name  string
		step  func(context.Context) error
		state State
	}{
		{"navigate", e.Flow.Open, StateNavigated},
		{"log in", e.Flow.LogIn, StateAuthenticated},
		{"locate", e.Flow.Locate, StateResourceLocated},
	}
	for _, s := range setup {
		if err := s.step(ctx); err != nil {
			return e.fatal(log, res, fmt.Sprintf("%s: %v", s.name, err))
		}
		e.enter(s.state, 0)
	}

	if d := e.Policy.Delay(e.Now()); d > 0 {
		log.Info("waiting for polling window", zap.Duration("delay", d), zap.Stringer("policy", e.Policy))
		if err := e.Sleep(ctx, d); err != nil {
			return e.fatal(log, res, "shutdown before polling window")
		}
	}

	for e.Policy.Continue(res.Iterations, e.Now()) {
		if ctx.Err() != nil {
			return e.fatal(log, res, "shutdown")
		}
		if e.Pace != nil {
			if err := e.Pace.Wait(ctx); err != nil {
				return e.fatal(log, res, "shutdown")
			}
		}
		res.Iterations++
		iter := res.Iterations

		out, next := e.iterate(ctx, log, crit, iter)
		crit = next
		e.record(ctx, log, loc, iter, out)

		switch out.Kind {
		case reservation.OutcomeAbort:
			res.Status = reservation.StatusAborted
			res.Reason = out.Reason
			log.Warn("aborting", zap.String("reason", out.Reason))
			e.enter(StateTerminal, iter)
			return res

		case reservation.OutcomeBooked:
			cand := out.Candidate
			authed, err := e.Flow.Authenticated(ctx)
			if err != nil {
				log.Warn("checkout reached but login state unknown", zap.Int("iteration", iter), zap.Error(err))
				continue
			}
			if authed {
				res.Candidate = &cand
				res.Status = reservation.StatusBooked
				if e.Handoff {
					res.Status = reservation.StatusAwaitingHuman
				}
				e.notify(ctx, log, notify.Message{
					Location: loc.Name(),
					Subject:  "Checkout reached: " + loc.Name(),
					Body:     fmt.Sprintf("%s: %s for %s is in the cart. You are now in control, please finish the booking process", loc.Name(), unitLabel(loc.Kind, cand.Unit), cand.Dates()),
				})
				e.enter(StateTerminal, iter)
				return res
			}
			e.notify(ctx, log, notify.Message{
				Location: loc.Name(),
				Subject:  "Available: " + loc.Name(),
				Body:     fmt.Sprintf("#%d: %s: Able to book: %s for: %s, you must log in to proceed", iter, loc.Name(), unitLabel(loc.Kind, cand.Unit), cand.Dates()),
			})
			if err := e.Flow.DismissLogin(ctx); err != nil {
				log.Warn("dismiss login prompt", zap.Int("iteration", iter), zap.Error(err))
			}

		case reservation.OutcomeTransient:
			log.Warn("iteration failed", zap.Int("iteration", iter), zap.String("reason", out.Reason))

		case reservation.OutcomeNoMatch:
			log.Debug("nothing available", zap.Int("iteration", iter))
		}
	}

	res.Status = reservation.StatusExhausted
	fields := []zap.Field{zap.Int("iterations", res.Iterations)}
	if !res.WindowEnd.IsZero() {
		fields = append(fields, zap.Time("window_end", res.WindowEnd))
	}
	log.Info("driver stopping", fields...)
	e.enter(StateTerminal, res.Iterations)
	return res
}

// iterate runs one configure, scan and book pass. It returns the criteria to
// use from now on; a next-available date is adopted once and then fixed.
func (e *Engine) iterate(ctx context.Context, log *zap.Logger, crit reservation.Criteria, iter int) (reservation.Outcome, reservation.Criteria) {
	configured, err := e.Flow.Configure(ctx, crit)
	if err != nil {
		return outcomeOf("configure", err), crit
	}
	if crit.NextAvailable && !configured.NextAvailable {
		crit = configured
		log.Info("next available date resolved", zap.String("start", reservation.NumericDate(crit.Start)))
	}
	e.enter(StateConfigured, iter)

	cand, ok, err := e.Flow.Scan(ctx, crit)
	if err != nil {
		return outcomeOf("scan", err), crit
	}
	e.enter(StateScanned, iter)
	if !ok {
		return reservation.NoMatch(), crit
	}
	e.enter(StateSelected, iter)
	log.Info("candidate found", zap.Int("iteration", iter), zap.String("unit", cand.Unit), zap.String("dates", cand.Dates()))

	e.enter(StateBooking, iter)
	if err := e.Flow.Book(ctx, cand); err != nil {
		return outcomeOf("book", err), crit
	}
	return reservation.Booked(cand), crit
}

func outcomeOf(step string, err error) reservation.Outcome {
	reason := fmt.Sprintf("%s: %v", step, err)
	if errors.Is(err, reservation.ErrPolicyAbort) {
		return reservation.Abort(reason)
	}
	return reservation.Transient(reason)
}

func (e *Engine) fatal(log *zap.Logger, res reservation.Result, reason string) reservation.Result {
	res.Status = reservation.StatusFatal
	res.Reason = reason
	log.Error("worker stopped", zap.String("reason", reason), zap.Int("iterations", res.Iterations))
	e.enter(StateTerminal, res.Iterations)
	return res
}

func (e *Engine) enter(s State, iter int) {
	if e.Observe != nil {
		e.Observe(s, iter)
	}
}

func (e *Engine) record(ctx context.Context, log *zap.Logger, loc reservation.LocationSpec, iter int, out reservation.Outcome) {
	if e.Recorder == nil {
		return
	}
	detail := out.Reason
	if out.Kind == reservation.OutcomeBooked {
		detail = out.Candidate.Unit + " " + out.Candidate.Dates()
	}
	err := e.Recorder.RecordAttempt(ctx, Attempt{
		Location:  loc.String(),
		Iteration: iter,
		Outcome:   out.Kind,
		Detail:    detail,
		At:        e.Now(),
	})
	if err != nil {
		log.Warn("record attempt", zap.Error(err))
	}
}

func (e *Engine) notify(ctx context.Context, log *zap.Logger, m notify.Message) {
	if err := e.Notifier.Notify(ctx, m); err != nil {
		log.Warn("notify", zap.Error(err))
	}
}

func unitLabel(kind reservation.Kind, unit string) string {
	if kind == reservation.KindCamping {
		return "Site #" + unit
	}
	return unit
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
