package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/MimeLyc/dynamic-splash/internal/config"
	"github.com/MimeLyc/dynamic-splash/internal/kvstore"
	"github.com/MimeLyc/dynamic-splash/internal/manager"
	"github.com/MimeLyc/dynamic-splash/internal/service"
	"github.com/MimeLyc/dynamic-splash/internal/splash"
	"github.com/MimeLyc/dynamic-splash/pkg/file"
)

type statusResponse struct {
	Instance         string            `json:"instance"`
	StorageKey       string            `json:"storage_key"`
	StorageState     string            `json:"storage_state"`
	OverlayAvailable bool              `json:"overlay_available"`
	Meta             splash.StoredMeta `json:"meta"`
	LastRun          *kvstore.Run      `json:"last_run,omitempty"`
	NextRefresh      *time.Time        `json:"next_refresh,omitempty"`
}

type syncResponse struct {
	Run   kvstore.Run `json:"run"`
	Error string      `json:"error,omitempty"`
}

type persistResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// instance resolves the manager named by the "instance" query parameter.
// It writes the error response itself and returns nil on failure.
func (s *Server) instance(w http.ResponseWriter, r *http.Request) (string, *manager.Manager) {
	name := r.URL.Query().Get("instance")
	if name == "" {
		name = DefaultInstance
	}
	if s.registry == nil {
		writeError(w, http.StatusNotFound, "no instances registered")
		return name, nil
	}
	m, err := s.registry.Get(name)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return name, nil
	}
	return name, m
}

func (s *Server) handleInstances(w http.ResponseWriter, r *http.Request) {
	names := []string{}
	if s.registry != nil {
		names = s.registry.Names()
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	name, m := s.instance(w, r)
	if m == nil {
		return
	}

	resp := statusResponse{
		Instance:         name,
		StorageKey:       m.StorageKey(),
		StorageState:     m.StorageState(),
		OverlayAvailable: m.OverlayAvailable(),
		Meta:             m.Meta(),
	}
	if s.runner != nil {
		if run, ok := s.runner.LastRun(); ok {
			resp.LastRun = &run
		}
		if info := s.runner.NextRefresh(s.now()); info != nil {
			next := info.Next
			resp.NextRefresh = &next
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	_, m := s.instance(w, r)
	if m == nil {
		return
	}
	writeJSON(w, http.StatusOK, m.Plan(r.Context(), s.now()))
}

func (s *Server) handleVisible(w http.ResponseWriter, r *http.Request) {
	_, m := s.instance(w, r)
	if m == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"visible": m.IsVisible(r.Context()),
	})
}

func (s *Server) handleHide(w http.ResponseWriter, r *http.Request) {
	_, m := s.instance(w, r)
	if m == nil {
		return
	}
	m.Hide(r.Context())
	writeJSON(w, http.StatusAccepted, map[string]any{
		"ok": true,
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	_, m := s.instance(w, r)
	if m == nil {
		return
	}
	res := m.Clear(r.Context())
	if !res.OK {
		msg := "clear failed"
		if res.Err != nil {
			msg = res.Err.Error()
		}
		writeJSON(w, http.StatusInternalServerError, persistResponse{OK: false, Error: msg})
		return
	}
	writeJSON(w, http.StatusOK, persistResponse{OK: true})
}

// handleSync runs a refresh and waits for it. A failed refresh is still a
// completed run and is reported with status 200.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusNotImplemented, "runner is not configured")
		return
	}
	run, err := s.runner.Trigger(r.Context(), service.SourceManual)
	resp := syncResponse{Run: run}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusNotImplemented, "runner is not configured")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	runs, err := s.runner.RecentRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}
	settings, err := s.settings.GetRuntimeSettings()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}
	var req config.RuntimeSettings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	saved, err := s.settings.UpdateRuntimeSettings(req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.apply != nil {
		if err := s.apply(saved); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if s.feedDir == "" {
		writeError(w, http.StatusNotFound, "feed is not configured")
		return
	}
	name, err := file.CleanName(mux.Vars(r)["file"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p := filepath.Join(s.feedDir, name)
	info, err := os.Stat(p)
	if errors.Is(err, os.ErrNotExist) || (err == nil && info.IsDir()) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	http.ServeFile(w, r, p)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
