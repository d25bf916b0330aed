package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/firescore/internal/application"
	"github.com/sawpanic/firescore/internal/leaderboard"
	"github.com/sawpanic/firescore/internal/metric"
	"github.com/sawpanic/firescore/internal/persistence"
	"github.com/sawpanic/firescore/internal/telemetry"
)

type fakeBoard struct {
	entries []leaderboard.Entry
	err     error
	state   string
	asked   int
}

func (f *fakeBoard) Top(_ context.Context, n int) ([]leaderboard.Entry, error) {
	f.asked = n
	return f.entries, f.err
}

func (f *fakeBoard) State() string { return f.state }

type fakeHealth struct{ healthy bool }

func (f fakeHealth) Health(context.Context) persistence.HealthCheck {
	check := persistence.HealthCheck{Healthy: f.healthy}
	if !f.healthy {
		check.Errors = []string{"ping failed"}
	}
	return check
}

func (f fakeHealth) Ping(context.Context) error { return nil }

func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	if deps.Evaluator == nil {
		deps.Evaluator = application.NewEvaluator(metric.DefaultConfig(), deps.Metrics)
	}
	return NewServer(DefaultServerConfig(), deps)
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func TestScoreEndpoint(t *testing.T) {
	s := newTestServer(t, Deps{})

	body := `{
		"team": "hotshots",
		"solution": [
			{"ID": "1", "STATE": "CA", "month": 1, "total_fire_size": 100},
			{"ID": "2", "STATE": "TX", "month": "2", "total_fire_size": 20}
		],
		"submission": [
			{"ID": "1", "STATE": "CA", "month": 1, "total_fire_size": 271.8281828459045}
		]
	}`
	rr := do(t, s, http.MethodPost, "/score", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	var resp ScoreResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RunID)
	assert.InDelta(t, 5.5, resp.Score, 1e-9)
	assert.Equal(t, 2, resp.Rows)
	assert.Equal(t, 1, resp.Valid)
	assert.Equal(t, 1, resp.Missing)
	assert.False(t, resp.Recorded)
}

func TestScoreEndpoint_BadRequests(t *testing.T) {
	s := newTestServer(t, Deps{})

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"solution": [`},
		{"unknown field", `{"solutions": []}`},
		{"bad filter", `{"where": "row.state ==", "solution": [{"STATE": "CA", "month": 1, "total_fire_size": 1}]}`},
		{"duplicate solution key", `{"solution": [
			{"STATE": "CA", "month": 1, "total_fire_size": 1},
			{"STATE": "CA", "month": "01", "total_fire_size": 2}]}`},
		{"solution row without state", `{
			"solution": [{"month": 1, "total_fire_size": null}],
			"submission": [{"STATE": "", "month": 1, "total_fire_size": 5}]}`},
		{"solution row with null value", `{"solution": [{"STATE": "CA", "month": 1, "total_fire_size": null}]}`},
		{"solution row without value", `{"solution": [{"STATE": "CA", "month": 1}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, s, http.MethodPost, "/score", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestScoreEndpoint_EmptySolutionScoresPenalty(t *testing.T) {
	s := newTestServer(t, Deps{})

	rr := do(t, s, http.MethodPost, "/score", `{"solution": []}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp ScoreResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 10.0, resp.Score)
	assert.Equal(t, 0, resp.Rows)
}

func TestScoreEndpoint_RateLimited(t *testing.T) {
	config := DefaultServerConfig()
	config.RateLimit = RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 1}
	s := NewServer(config, Deps{Evaluator: application.NewEvaluator(metric.DefaultConfig(), nil)})

	body := `{"solution": [{"STATE": "CA", "month": 1, "total_fire_size": 1}]}`
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/score", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, s, http.MethodPost, "/score", body).Code)
}

func TestScoreEndpoint_MethodNotAllowed(t *testing.T) {
	s := newTestServer(t, Deps{})
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s, http.MethodGet, "/score", "").Code)
}

func TestLeaderboardEndpoint(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		s := newTestServer(t, Deps{})
		assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/leaderboard", "").Code)
	})

	t.Run("top entries", func(t *testing.T) {
		board := &fakeBoard{
			state:   "closed",
			entries: []leaderboard.Entry{{Rank: 1, Team: "hotshots", Score: 0.4}},
		}
		s := newTestServer(t, Deps{Leaderboard: board})

		rr := do(t, s, http.MethodGet, "/leaderboard?top=5", "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, 5, board.asked)

		var resp LeaderboardResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, board.entries, resp.Entries)
		assert.Equal(t, "closed", resp.Breaker)
	})

	t.Run("default top", func(t *testing.T) {
		board := &fakeBoard{state: "closed"}
		s := newTestServer(t, Deps{Leaderboard: board})

		rr := do(t, s, http.MethodGet, "/leaderboard", "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, defaultTop, board.asked)
		assert.Contains(t, rr.Body.String(), `"entries":[]`)
	})

	t.Run("bad top", func(t *testing.T) {
		s := newTestServer(t, Deps{Leaderboard: &fakeBoard{}})
		for _, q := range []string{"0", "-1", "abc", "101"} {
			assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/leaderboard?top="+q, "").Code, q)
		}
	})

	t.Run("breaker open", func(t *testing.T) {
		board := &fakeBoard{state: "open", err: leaderboard.ErrUnavailable}
		s := newTestServer(t, Deps{Leaderboard: board})
		assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/leaderboard", "").Code)
	})

	t.Run("redis error", func(t *testing.T) {
		board := &fakeBoard{state: "closed", err: errors.New("boom")}
		s := newTestServer(t, Deps{Leaderboard: board})
		assert.Equal(t, http.StatusInternalServerError, do(t, s, http.MethodGet, "/leaderboard", "").Code)
	})
}

func TestHealthEndpoint(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		s := newTestServer(t, Deps{Version: "v1.2.3", Health: fakeHealth{healthy: true}})

		rr := do(t, s, http.MethodGet, "/health", "")
		require.Equal(t, http.StatusOK, rr.Code)

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, "v1.2.3", resp.Version)
		assert.Equal(t, "pass", resp.Checks["ledger"].Status)
		assert.NotEmpty(t, resp.System.GoVersion)
	})

	t.Run("degraded", func(t *testing.T) {
		s := newTestServer(t, Deps{
			Health:      fakeHealth{healthy: false},
			Leaderboard: &fakeBoard{state: "open"},
		})

		rr := do(t, s, http.MethodGet, "/health", "")
		require.Equal(t, http.StatusOK, rr.Code)

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "degraded", resp.Status)
		assert.Equal(t, "ping failed", resp.Checks["ledger"].Message)
		assert.Equal(t, "warn", resp.Checks["leaderboard"].Status)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	metrics := telemetry.NewMetrics()
	s := newTestServer(t, Deps{Metrics: metrics})

	body := `{"solution": [{"STATE": "CA", "month": 1, "total_fire_size": 1}]}`
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/score", body).Code)

	rr := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `firescore_runs_total{status="ok"} 1`)
}

func TestNotFound(t *testing.T) {
	s := newTestServer(t, Deps{})
	rr := do(t, s, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "not found")
}
