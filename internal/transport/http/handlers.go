package http

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"st-telemetry/gateway/internal/domain"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "healthy",
		"session_id": s.sessionID,
		"timestamp":  time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	sessions, err := s.store.ListSessions(r.Context(), limit)
	if err != nil {
		s.serverError(w, "list sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

func (s *Server) handleSessionData(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	start, err := queryTime(r, "start_time")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := queryTime(r, "end_time")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := s.store.QueryRange(r.Context(), sessionID, start, end)
	if err != nil {
		s.serverError(w, "query range", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"data":       readingsOut(data),
	})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	if s.sessionID == "" {
		writeError(w, http.StatusNotFound, "no active session")
		return
	}
	seconds := queryInt(r, "seconds", 60)
	data, err := s.store.QueryRecent(r.Context(), s.sessionID, time.Duration(seconds)*time.Second)
	if err != nil {
		s.serverError(w, "query recent", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": s.sessionID,
		"data":       readingsOut(data),
	})
}

// handleCurrentState serves the latest value per PID from the redis cache.
// Unlike /recent it answers from memory, not the store, so it stays cheap
// at dashboard refresh rates.
func (s *Server) handleCurrentState(w http.ResponseWriter, r *http.Request) {
	if s.redis == nil {
		writeError(w, http.StatusNotFound, "state cache not configured")
		return
	}
	if s.sessionID == "" {
		writeError(w, http.StatusNotFound, "no active session")
		return
	}

	raw, err := s.redis.GetState(r.Context(), s.sessionID)
	if err != nil {
		s.serverError(w, "get state", err)
		return
	}

	state := make(map[string]json.RawMessage, len(raw))
	for pid, v := range raw {
		state[pid] = json.RawMessage(v)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": s.sessionID,
		"state":      state,
	})
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	enabledOnly := r.URL.Query().Get("enabled_only") == "true"
	rules, err := s.store.ListRules(r.Context(), enabledOnly)
	if err != nil {
		s.serverError(w, "list rules", err)
		return
	}
	if rules == nil {
		rules = []domain.AlertRule{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": rules})
}

type createRuleRequest struct {
	Name      string  `json:"name"`
	PID       string  `json:"pid"`
	Condition string  `json:"condition"`
	Threshold float64 `json:"threshold"`
	Notify    bool    `json:"notify"`
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req createRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" || req.PID == "" {
		writeError(w, http.StatusBadRequest, "name and pid are required")
		return
	}
	cond, err := domain.ParseCondition(req.Condition)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.store.CreateRule(r.Context(), domain.AlertRule{
		Name:      req.Name,
		PID:       req.PID,
		Condition: cond,
		Threshold: req.Threshold,
		Enabled:   true,
		Notify:    req.Notify,
	})
	if err != nil {
		s.serverError(w, "create rule", err)
		return
	}

	if err := s.reloadEngine(r.Context()); err != nil {
		s.logger.Error("rule reload after create failed", "error", err)
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"id": id, "name": req.Name})
}

func (s *Server) handleReloadRules(w http.ResponseWriter, r *http.Request) {
	if err := s.reloadEngine(r.Context()); err != nil {
		s.serverError(w, "reload rules", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "reloaded",
		"rules":  len(s.engine.Rules()),
	})
}

func (s *Server) handleSetRuleEnabled(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid rule id")
		return
	}
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.store.SetRuleEnabled(r.Context(), id, req.Enabled); err != nil {
		s.serverError(w, "set rule enabled", err)
		return
	}
	// the engine keeps its current snapshot until /api/alerts/reload
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "enabled": req.Enabled})
}

func (s *Server) handleAlertHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	limit := queryInt(r, "limit", 100)
	events, err := s.store.ListAlertHistory(r.Context(), sessionID, limit)
	if err != nil {
		s.serverError(w, "list alert history", err)
		return
	}
	if events == nil {
		events = []domain.AlertEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

type exportRequest struct {
	SessionID string `json:"session_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Format    string `json:"format"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	var start, end *time.Time
	if req.StartTime != "" {
		t, err := time.Parse(time.RFC3339, req.StartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start_time")
			return
		}
		start = &t
	}
	if req.EndTime != "" {
		t, err := time.Parse(time.RFC3339, req.EndTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end_time")
			return
		}
		end = &t
	}

	data, err := s.store.QueryRange(r.Context(), req.SessionID, start, end)
	if err != nil {
		s.serverError(w, "export query", err)
		return
	}

	if req.Format == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%s.csv", req.SessionID))
		cw := csv.NewWriter(w)
		cw.Write([]string{"timestamp", "pid", "value", "unit"})
		for _, rd := range data {
			cw.Write([]string{
				rd.Timestamp.Format(time.RFC3339Nano),
				rd.PID,
				strconv.FormatFloat(rd.Value, 'f', -1, 64),
				rd.Unit,
			})
		}
		cw.Flush()
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": req.SessionID,
		"data":       readingsOut(data),
	})
}

func (s *Server) reloadEngine(ctx context.Context) error {
	rules, err := s.store.ListRules(ctx, true)
	if err != nil {
		return err
	}
	if err := s.engine.Load(rules); err != nil {
		s.logger.Warn("some rules rejected at load", "error", err)
	}
	return nil
}

// readingOut is the wire shape of a reading in query responses, matching
// the store's query interface: timestamp, pid, value, unit.
type readingOut struct {
	Timestamp time.Time `json:"timestamp"`
	PID       string    `json:"pid"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
}

func readingsOut(rs []domain.Reading) []readingOut {
	out := make([]readingOut, len(rs))
	for i, r := range rs {
		out[i] = readingOut{
			Timestamp: r.Timestamp,
			PID:       r.PID,
			Value:     r.Value,
			Unit:      r.Unit,
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) serverError(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op+" failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func queryTime(r *http.Request, key string) (*time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: expected RFC3339", key)
	}
	return &t, nil
}
