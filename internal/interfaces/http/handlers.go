package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/firescore/internal/application"
	"github.com/sawpanic/firescore/internal/leaderboard"
	"github.com/sawpanic/firescore/internal/metric"
)

const (
	defaultTop = 10
	maxTop     = 100
)

// ScoreRequest is the body of POST /score
type ScoreRequest struct {
	Team       string          `json:"team"`
	Where      string          `json:"where"`
	Solution   []metric.Record `json:"solution"`
	Submission []metric.Record `json:"submission"`
}

// ScoreResponse is the body of a successful POST /score
type ScoreResponse struct {
	RunID      string   `json:"run_id"`
	Score      float64  `json:"score"`
	Rows       int      `json:"rows"`
	Valid      int      `json:"valid"`
	Missing    int      `json:"missing"`
	Invalid    int      `json:"invalid"`
	Clamped    int      `json:"clamped"`
	Duplicates int      `json:"duplicates"`
	Filtered   int      `json:"filtered"`
	Recorded   bool     `json:"recorded"`
	Improved   bool     `json:"improved"`
	Warnings   []string `json:"warnings,omitempty"`
}

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)

	var req ScoreRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	outcome, err := s.deps.Evaluator.Evaluate(r.Context(), application.Request{
		Team:           req.Team,
		Filter:         req.Where,
		SolutionName:   "request",
		SubmissionName: "request",
		Solution:       req.Solution,
		Submission:     req.Submission,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := outcome.Result
	writeJSON(w, http.StatusOK, ScoreResponse{
		RunID:      outcome.RunID,
		Score:      result.Score,
		Rows:       result.Rows,
		Valid:      result.Valid,
		Missing:    result.Missing,
		Invalid:    result.Invalid,
		Clamped:    result.Clamped,
		Duplicates: result.Duplicates,
		Filtered:   result.Filtered,
		Recorded:   outcome.Recorded,
		Improved:   outcome.Improved,
		Warnings:   outcome.Warnings,
	})
}

// LeaderboardResponse is the body of GET /leaderboard
type LeaderboardResponse struct {
	Entries []leaderboard.Entry `json:"entries"`
	Breaker string              `json:"breaker"`
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.deps.Leaderboard == nil {
		writeError(w, http.StatusServiceUnavailable, "leaderboard disabled")
		return
	}

	top := defaultTop
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxTop {
			writeError(w, http.StatusBadRequest, "top must be an integer between 1 and 100")
			return
		}
		top = n
	}

	entries, err := s.deps.Leaderboard.Top(r.Context(), top)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, leaderboard.ErrUnavailable) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}
	if entries == nil {
		entries = []leaderboard.Entry{}
	}

	writeJSON(w, http.StatusOK, LeaderboardResponse{
		Entries: entries,
		Breaker: s.deps.Leaderboard.State(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
