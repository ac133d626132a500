package web

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/example/recsched/internal/poller"
	"github.com/example/recsched/internal/reservation"
	"github.com/example/recsched/internal/status"
	"github.com/example/recsched/internal/store"
)

type fakeHistory struct {
	limit   int
	results []store.ResultRecord
	err     error
}

func (f *fakeHistory) Results(_ context.Context, limit int) ([]store.ResultRecord, error) {
	f.limit = limit
	return f.results, f.err
}

func newServer(t *testing.T, h History) (*httptest.Server, *status.Board) {
	t.Helper()
	board := status.NewBoard([]reservation.LocationSpec{
		{Kind: reservation.KindCamping, Park: "Yosemite", Campground: "Upper Pines"},
	})
	s := &Server{Board: board, History: h, Logger: zaptest.NewLogger(t)}
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)
	return ts, board
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	ts, _ := newServer(t, nil)
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatus(t *testing.T) {
	ts, board := newServer(t, nil)
	board.Observe(0)(poller.StateScanned, 4)

	var got statusResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/status", &got))
	assert.False(t, got.Done)
	require.Len(t, got.Workers, 1)
	assert.Equal(t, "Yosemite - Upper Pines", got.Workers[0].Location)
	assert.Equal(t, "scanned", got.Workers[0].State)
	assert.Equal(t, 4, got.Workers[0].Iteration)

	board.Finish(0, reservation.Result{Status: reservation.StatusExhausted, Iterations: 5})
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/status", &got))
	assert.True(t, got.Done)
	assert.Equal(t, reservation.StatusExhausted, got.Workers[0].Status)
}

func TestRuns(t *testing.T) {
	h := &fakeHistory{results: []store.ResultRecord{{
		RunID:      "8c1b",
		Location:   "Yosemite:Upper Pines:A13",
		Kind:       reservation.KindCamping,
		Status:     reservation.StatusBooked,
		Iterations: 7,
		FinishedAt: time.Date(2025, time.June, 1, 7, 0, 0, 0, time.UTC),
	}}}
	ts, _ := newServer(t, h)

	var got []store.ResultRecord
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/runs?limit=5", &got))
	assert.Equal(t, 5, h.limit)
	assert.Equal(t, h.results, got)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/runs?limit=zero", nil))

	h.err = errors.New("connection refused")
	assert.Equal(t, http.StatusInternalServerError, getJSON(t, ts.URL+"/runs", nil))
	assert.Equal(t, 50, h.limit)
}

func TestRunsWithoutDatabase(t *testing.T) {
	ts, _ := newServer(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, ts.URL+"/runs", nil))
}

func TestStartShutsDownWithContext(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Start(ctx, addr, http.NotFoundHandler(), zaptest.NewLogger(t)) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusNotFound
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
