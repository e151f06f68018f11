package backend

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/maniack/logpurge/internal/purge"
)

type purgeStatus struct {
	State            string            `json:"state"`
	Dir              string            `json:"dir"`
	Prefix           string            `json:"prefix"`
	Suffix           string            `json:"suffix"`
	Variant          string            `json:"variant"`
	Interval         string            `json:"interval"`
	MaxHistory       string            `json:"max_history"`
	ExecuteOnStartup bool              `json:"execute_on_startup"`
	NextRun          *time.Time        `json:"next_run,omitempty"`
	LastPass         *purge.PassResult `json:"last_pass,omitempty"`
	LastError        string            `json:"last_error,omitempty"`
}

type passResponse struct {
	purge.PassResult
	Error string `json:"error,omitempty"`
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":         s.cfg.Version,
		"purge_enabled":   s.purge != nil,
		"history_enabled": s.store != nil,
		"access_log":      s.cfg.AccessLog != nil,
	})
}

func (s *Server) handlePurgeStatus(w http.ResponseWriter, r *http.Request) {
	if s.purge == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "purge is not enabled"})
		return
	}
	cfg := s.purge.Config()
	dc := s.purge.Directory()
	st := purgeStatus{
		State:            s.purge.State().String(),
		Dir:              dc.Dir,
		Prefix:           dc.Convention.Prefix,
		Suffix:           dc.Convention.Suffix,
		Variant:          dc.Convention.Variant.String(),
		Interval:         cfg.ExecutionInterval.String(),
		MaxHistory:       cfg.MaxHistory.String(),
		ExecuteOnStartup: cfg.ExecuteOnStartup,
		NextRun:          s.purge.NextRun(),
	}
	if last, ok := s.purge.LastResult(); ok {
		st.LastPass = &last
		if last.Err != nil {
			st.LastError = last.Err.Error()
		}
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handlePurgeRun(w http.ResponseWriter, r *http.Request) {
	if s.purge == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "purge is not enabled"})
		return
	}
	res, err := s.purge.RunOnce(r.Context(), purge.TriggerManual)
	switch {
	case errors.Is(err, purge.ErrPassInProgress), errors.Is(err, purge.ErrLockHeld):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	case errors.Is(err, purge.ErrStopped):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	case err != nil && res.ID == "":
		// lock backend failure, the pass never started
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	out := passResponse{PassResult: res}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePurgeRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "purge history is not enabled"})
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}
	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		s.log.WithContext(r.Context()).WithError(err).Error("history: list runs failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load history"})
		return
	}
	writeJSON(w, http.StatusOK, runs)
}
