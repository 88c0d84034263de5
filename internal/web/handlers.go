package web

import (
	"encoding/json"
	"net/http"
	"time"

	"weather-etl/internal/etl"
	"weather-etl/internal/logging"
)

// statusResponse is the JSON shape of GET /status.
type statusResponse struct {
	RowCount       int64           `json:"row_count"`
	LastLoadedAt   *time.Time      `json:"last_loaded_at,omitempty"`
	DistinctCities int64           `json:"distinct_cities"`
	LastRun        *lastRunSummary `json:"last_run,omitempty"`
}

type lastRunSummary struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Extracted int       `json:"extracted"`
	Rejected  int       `json:"rejected"`
	Inserted  int       `json:"inserted"`
	Updated   int       `json:"updated"`
	Failed    int       `json:"failed"`
	Error     string    `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.loader.Status(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("status query failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "store unavailable"})
		return
	}

	resp := statusResponse{
		RowCount:       status.RowCount,
		LastLoadedAt:   status.LastLoadedAt,
		DistinctCities: status.DistinctCities,
	}
	if s.lastRun != nil {
		if summary, runErr := s.lastRun.LastRun(); summary != nil || runErr != nil {
			resp.LastRun = toLastRunSummary(summary, runErr)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func toLastRunSummary(summary *etl.RunSummary, err error) *lastRunSummary {
	out := &lastRunSummary{}
	if summary != nil {
		out.RunID = summary.RunID
		out.StartedAt = summary.StartedAt
		out.Extracted = summary.Extracted
		out.Rejected = summary.Rejected
		out.Inserted = summary.Load.Inserted
		out.Updated = summary.Load.Updated
		out.Failed = summary.Load.Failed
	}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
