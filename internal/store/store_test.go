package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/example/recsched/internal/db"
	"github.com/example/recsched/internal/poller"
	"github.com/example/recsched/internal/reservation"
)

// flexibleSQL matches sql regardless of whitespace.
func flexibleSQL(sql string) string {
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(strings.TrimSpace(sql)), `\s+`)
}

var (
	fixedNow = time.Date(2025, time.June, 1, 7, 0, 0, 0, time.UTC)
	pines    = reservation.LocationSpec{Kind: reservation.KindCamping, Park: "Yosemite", Campground: "Upper Pines", Sites: []string{"A13"}}
)

func newStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	s := New(db.New(mock), zaptest.NewLogger(t))
	s.now = func() time.Time { return fixedNow }
	return s, mock
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	s, mock := newStore(t)

	// -- Setup --
	mock.ExpectExec(flexibleSQL(`INSERT INTO runs (id, started_at, policy, locations) VALUES ($1, $2, $3, $4)`)).
		WithArgs(pgxmock.AnyArg(), fixedNow, "3 iterations", []string{"Yosemite:Upper Pines:A13"}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(flexibleSQL(`INSERT INTO attempts (run_id, location, iteration, outcome, detail, at) VALUES ($1, $2, $3, $4, $5, $6)`)).
		WithArgs(pgxmock.AnyArg(), "Yosemite:Upper Pines:A13", 1, "no_match", "", fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(flexibleSQL(`INSERT INTO results`)).
		WithArgs(pgxmock.AnyArg(), "Yosemite:Upper Pines:A13", "camping", "awaiting_human", 2,
			"A13", "06/12/2025-06/14/2025", "", fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(flexibleSQL(`UPDATE runs SET finished_at = $2 WHERE id = $1`)).
		WithArgs(pgxmock.AnyArg(), fixedNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	// -- Execution --
	run, err := s.StartRun(ctx, "3 iterations", []reservation.LocationSpec{pines})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, run.ID)

	var rec poller.Recorder = run
	require.NoError(t, rec.RecordAttempt(ctx, poller.Attempt{
		Location:  pines.String(),
		Iteration: 1,
		Outcome:   reservation.OutcomeNoMatch,
		At:        fixedNow,
	}))
	require.NoError(t, run.RecordResult(ctx, reservation.Result{
		Location:   pines,
		Status:     reservation.StatusAwaitingHuman,
		Iterations: 2,
		Candidate: &reservation.Candidate{
			Unit:  "A13",
			Start: reservation.Date(2025, time.June, 12),
			End:   reservation.Date(2025, time.June, 14),
		},
	}))
	require.NoError(t, run.Finish(ctx))

	// -- Verification --
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStartRunError(t *testing.T) {
	s, mock := newStore(t)
	boom := errors.New("relation runs does not exist")
	mock.ExpectExec("INSERT INTO runs").WillReturnError(boom)

	_, err := s.StartRun(context.Background(), "1 iterations", nil)
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResults(t *testing.T) {
	s, mock := newStore(t)
	rows := pgxmock.NewRows([]string{"run_id", "location", "kind", "status", "iterations", "unit", "dates", "reason", "finished_at"}).
		AddRow("8c1b", "Yosemite:Upper Pines:A13", "camping", "exhausted", 40, "", "", "", fixedNow).
		AddRow("8c1b", "Enchantments:Core Enchantment Zone", "permit", "aborted", 1, "", "", "commercial", fixedNow)
	mock.ExpectQuery("SELECT run_id::text, location").WithArgs(20).WillReturnRows(rows)

	got, err := s.Results(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, reservation.StatusExhausted, got[0].Status)
	assert.Equal(t, 40, got[0].Iterations)
	assert.Equal(t, reservation.KindPermit, got[1].Kind)
	assert.Equal(t, "commercial", got[1].Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttemptsUnknownRun(t *testing.T) {
	s, mock := newStore(t)
	id := uuid.New()
	mock.ExpectQuery("FROM attempts WHERE run_id").WithArgs(id.String()).
		WillReturnRows(pgxmock.NewRows([]string{"location", "iteration", "outcome", "detail", "at"}))

	_, err := s.Attempts(context.Background(), id)
	assert.ErrorIs(t, err, db.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
