// Package orchestrator runs one polling worker per location, each on its own
// browser session, and collects their results.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/example/recsched/internal/browser"
	"github.com/example/recsched/internal/notify"
	"github.com/example/recsched/internal/poller"
	"github.com/example/recsched/internal/reservation"
	"github.com/example/recsched/internal/status"
)

// Target is one location to poll with the criteria for its kind.
type Target struct {
	Location reservation.LocationSpec
	Criteria reservation.Criteria
}

// HandleFactory opens a fresh browser session for one location.
type HandleFactory func(ctx context.Context, loc reservation.LocationSpec) (browser.Handle, error)

// FlowFactory builds the page flow for a location on top of its session.
type FlowFactory func(h browser.Handle, loc reservation.LocationSpec) poller.Flow

type Orchestrator struct {
	NewHandle HandleFactory
	NewFlow   FlowFactory
	Policy    poller.ExitPolicy
	Handoff   bool

	Notifier notify.Notifier
	Recorder poller.Recorder
	Board    *status.Board
	Logger   *zap.Logger

	// Concurrency caps the number of live workers. Zero runs all at once.
	Concurrency int
	// MinInterval spaces the iterations of each worker.
	MinInterval time.Duration

	mu   sync.Mutex
	held []browser.Handle
}

type Report struct {
	Results []reservation.Result
}

// Success reports whether any location reached an authenticated checkout.
func (r Report) Success() bool {
	for _, res := range r.Results {
		if res.Success() {
			return true
		}
	}
	return false
}

// AwaitingHuman reports whether any session was left open for the operator.
func (r Report) AwaitingHuman() bool {
	for _, res := range r.Results {
		if res.Status == reservation.StatusAwaitingHuman {
			return true
		}
	}
	return false
}

// Run polls every target concurrently and returns their results in target
// order. Workers do not affect each other: a failing or panicking worker
// only ends its own location.
func (o *Orchestrator) Run(ctx context.Context, targets []Target) Report {
	results := make([]reservation.Result, len(targets))
	var g errgroup.Group
	if o.Concurrency > 0 {
		g.SetLimit(o.Concurrency)
	}
	for i, t := range targets {
		g.Go(func() error {
			results[i] = o.work(ctx, i, t)
			return nil
		})
	}
	_ = g.Wait()
	return Report{Results: results}
}

func (o *Orchestrator) work(ctx context.Context, i int, t Target) (res reservation.Result) {
	loc := t.Location.Clone()
	log := o.logger().With(zap.String("location", loc.Name()), zap.Int("worker", i))
	res = reservation.Result{Location: loc}

	var h browser.Handle
	defer func() {
		if r := recover(); r != nil {
			log.Error("worker panicked", zap.Any("panic", r), zap.Stack("stack"))
			res.Status = reservation.StatusFatal
			res.Reason = fmt.Sprintf("panic: %v", r)
		}
		o.release(log, h, res)
		o.Board.Finish(i, res)
		log.Info("worker finished", zap.Stringer("result", res))
	}()
	res.WindowEnd = o.Policy.Bound()

	h, err := o.NewHandle(ctx, loc)
	if err != nil {
		h = nil
		res.Status = reservation.StatusFatal
		res.Reason = fmt.Sprintf("browser: %v", err)
		return res
	}

	e := &poller.Engine{
		Flow:     o.NewFlow(h, loc),
		Policy:   o.Policy,
		Handoff:  o.Handoff,
		Notifier: o.Notifier,
		Recorder: o.Recorder,
		Logger:   log.Named("engine"),
		Observe:  o.Board.Observe(i),
	}
	if o.MinInterval > 0 {
		e.Pace = rate.NewLimiter(rate.Every(o.MinInterval), 1)
	}
	return e.Run(ctx, loc, t.Criteria)
}

// release closes the session unless it holds a checkout. Booked and
// AwaitingHuman sessions stay open until Release.
func (o *Orchestrator) release(log *zap.Logger, h browser.Handle, res reservation.Result) {
	if h == nil {
		return
	}
	if res.Success() {
		o.mu.Lock()
		o.held = append(o.held, h)
		o.mu.Unlock()
		log.Info("session left open for the operator")
		return
	}
	if err := h.Close(); err != nil {
		log.Warn("close browser", zap.Error(err))
	}
}

// Held returns the number of sessions holding a checkout.
func (o *Orchestrator) Held() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.held)
}

// Release closes the sessions kept open at checkout.
func (o *Orchestrator) Release() error {
	o.mu.Lock()
	held := o.held
	o.held = nil
	o.mu.Unlock()

	var errs []error
	for _, h := range held {
		if err := h.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}
