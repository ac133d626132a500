// Package store keeps the history of runs: every iteration attempt and the
// final result of each location.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/recsched/internal/db"
	"github.com/example/recsched/internal/poller"
	"github.com/example/recsched/internal/reservation"
)

type Store struct {
	db  *db.DB
	log *zap.Logger
	now func() time.Time
}

func New(d *db.DB, logger *zap.Logger) *Store {
	return &Store{db: d, log: logger.Named("store"), now: time.Now}
}

// Run records one invocation of the poller. It is safe for concurrent use by
// all workers of the run.
type Run struct {
	ID    uuid.UUID
	store *Store
}

// ResultRecord is a stored location result.
type ResultRecord struct {
	RunID      string             `json:"run_id"`
	Location   string             `json:"location"`
	Kind       reservation.Kind   `json:"kind"`
	Status     reservation.Status `json:"status"`
	Iterations int                `json:"iterations"`
	Unit       string             `json:"unit,omitempty"`
	Dates      string             `json:"dates,omitempty"`
	Reason     string             `json:"reason,omitempty"`
	FinishedAt time.Time          `json:"finished_at"`
}

type AttemptRecord struct {
	Location  string    `json:"location"`
	Iteration int       `json:"iteration"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

func (s *Store) StartRun(ctx context.Context, policy string, locs []reservation.LocationSpec) (*Run, error) {
	names := make([]string, len(locs))
	for i, l := range locs {
		names[i] = l.String()
	}
	r := &Run{ID: uuid.New(), store: s}
	err := s.db.Exec(ctx,
		`INSERT INTO runs (id, started_at, policy, locations) VALUES ($1, $2, $3, $4)`,
		r.ID.String(), s.now(), policy, names)
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	s.log.Info("run started", zap.Stringer("run_id", r.ID), zap.Int("locations", len(locs)))
	return r, nil
}

func (r *Run) RecordAttempt(ctx context.Context, a poller.Attempt) error {
	err := r.store.db.Exec(ctx,
		`INSERT INTO attempts (run_id, location, iteration, outcome, detail, at) VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID.String(), a.Location, a.Iteration, a.Outcome.String(), a.Detail, a.At)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

func (r *Run) RecordResult(ctx context.Context, res reservation.Result) error {
	var unit, dates string
	if res.Candidate != nil {
		unit, dates = res.Candidate.Unit, res.Candidate.Dates()
	}
	err := r.store.db.Exec(ctx,
		`INSERT INTO results (run_id, location, kind, status, iterations, unit, dates, reason, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID.String(), res.Location.String(), string(res.Location.Kind), string(res.Status),
		res.Iterations, unit, dates, res.Reason, r.store.now())
	if err != nil {
		return fmt.Errorf("record result: %w", err)
	}
	return nil
}

func (r *Run) Finish(ctx context.Context) error {
	if err := r.store.db.Exec(ctx, `UPDATE runs SET finished_at = $2 WHERE id = $1`, r.ID.String(), r.store.now()); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// Results returns the most recent location results, newest first.
func (s *Store) Results(ctx context.Context, limit int) ([]ResultRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT run_id::text, location, kind, status, iterations, unit, dates, reason, finished_at
		 FROM results ORDER BY finished_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, db.WrapNotFound(err)
	}
	defer rows.Close()

	var out []ResultRecord
	for rows.Next() {
		var (
			rec          ResultRecord
			kind, status string
		)
		if err := rows.Scan(&rec.RunID, &rec.Location, &kind, &status, &rec.Iterations,
			&rec.Unit, &rec.Dates, &rec.Reason, &rec.FinishedAt); err != nil {
			return nil, err
		}
		rec.Kind, rec.Status = reservation.Kind(kind), reservation.Status(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Attempts returns the attempts of one run in iteration order.
func (s *Store) Attempts(ctx context.Context, runID uuid.UUID) ([]AttemptRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT location, iteration, outcome, detail, at
		 FROM attempts WHERE run_id = $1 ORDER BY location, iteration`, runID.String())
	if err != nil {
		return nil, db.WrapNotFound(err)
	}
	defer rows.Close()

	var out []AttemptRecord
	for rows.Next() {
		var a AttemptRecord
		if err := rows.Scan(&a.Location, &a.Iteration, &a.Outcome, &a.Detail, &a.At); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("run %s: %w", runID, db.ErrNotFound)
	}
	return out, nil
}
