package http

import (
	"net/http"
	"runtime"
	"time"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string                 `json:"status"` // "ok", "degraded", "unhealthy"
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	Version   string                 `json:"version"`
	System    SystemInfo             `json:"system"`
	Checks    map[string]CheckResult `json:"checks"`
}

// SystemInfo provides system-level information
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	MemAlloc      uint64 `json:"mem_alloc_bytes"`
	NumGC         uint32 `json:"num_gc"`
}

// CheckResult represents individual health check results
type CheckResult struct {
	Status   string        `json:"status"` // "pass", "warn", "fail"
	Message  string        `json:"message"`
	Duration time.Duration `json:"duration"`
}

// handleHealth reports process info plus ledger and leaderboard state.
// A failing ledger or an open breaker degrades the service; scoring still works.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Version:   s.deps.Version,
		System: SystemInfo{
			GoVersion:     runtime.Version(),
			NumGoroutines: runtime.NumGoroutine(),
			MemAlloc:      mem.Alloc,
			NumGC:         mem.NumGC,
		},
		Checks: map[string]CheckResult{},
	}

	if s.deps.Evaluator == nil {
		resp.Checks["scorer"] = CheckResult{Status: "fail", Message: "no evaluator configured"}
	} else {
		resp.Checks["scorer"] = CheckResult{Status: "pass", Message: "ready"}
	}

	if s.deps.Health != nil {
		start := time.Now()
		check := s.deps.Health.Health(r.Context())
		result := CheckResult{Status: "pass", Message: "connected", Duration: time.Since(start)}
		if !check.Healthy {
			result.Status = "warn"
			result.Message = "ledger unhealthy"
			if len(check.Errors) > 0 {
				result.Message = check.Errors[0]
			}
		}
		resp.Checks["ledger"] = result
	}

	if s.deps.Leaderboard != nil {
		state := s.deps.Leaderboard.State()
		result := CheckResult{Status: "pass", Message: "breaker " + state}
		if state != "closed" {
			result.Status = "warn"
		}
		resp.Checks["leaderboard"] = result
	}

	for _, check := range resp.Checks {
		switch check.Status {
		case "fail":
			resp.Status = "unhealthy"
		case "warn":
			if resp.Status == "ok" {
				resp.Status = "degraded"
			}
		}
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	status := http.StatusOK
	if resp.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
