// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package api serves the local status API consumed by UI surfaces.
// It binds to loopback only; the supervision backend never calls in.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"grimm.is/hearth/internal/blocklist"
	"grimm.is/hearth/internal/broadcast"
	"grimm.is/hearth/internal/logging"
	"grimm.is/hearth/internal/metrics"
	"grimm.is/hearth/internal/restrictions"
	"grimm.is/hearth/internal/session"
)

// Server exposes agent state to local UI surfaces.
type Server struct {
	tracker      *session.Tracker
	blocklist    *blocklist.Service
	restrictions *restrictions.Controller
	hub          *broadcast.Hub
	logger       *logging.Logger

	// OnConnectivityRestored is invoked when a surface reports the
	// network came back; the agent re-drives offline delivery and sync.
	OnConnectivityRestored func()

	httpServer *http.Server
}

// NewServer wires the status server. Any collaborator may be nil; its
// endpoints then report empty state.
func NewServer(listen string, tracker *session.Tracker, bl *blocklist.Service,
	rc *restrictions.Controller, hub *broadcast.Hub, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	s := &Server{
		tracker:      tracker,
		blocklist:    bl,
		restrictions: rc,
		hub:          hub,
		logger:       logger.WithComponent("api"),
	}
	s.httpServer = &http.Server{
		Addr:         listen,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/status", s.handleStatus).Methods("GET")
	r.HandleFunc("/api/v1/activity", s.handleActivity).Methods("GET")
	r.HandleFunc("/api/v1/stats", s.handleStats).Methods("GET")
	r.HandleFunc("/api/v1/blocklist", s.handleBlocklist).Methods("GET")
	r.HandleFunc("/api/v1/restrictions", s.handleRestrictions).Methods("GET")
	r.HandleFunc("/api/v1/check", s.handleCheck).Methods("GET")
	r.HandleFunc("/api/v1/blocked", s.handleBlockedReport).Methods("POST")
	r.HandleFunc("/api/v1/connectivity/restored", s.handleConnectivityRestored).Methods("POST")
	if s.hub != nil {
		r.Handle("/api/v1/ws", s.hub)
	}
	r.Handle("/metrics", metrics.Handler()).Methods("GET")
	return r
}

// Start begins serving. Errors other than a clean shutdown are logged.
func (s *Server) Start() {
	go func() {
		s.logger.Info("Status API listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("Status API failed")
		}
	}()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"connectedSurfaces": 0,
	}
	if s.hub != nil {
		status["connectedSurfaces"] = s.hub.Count()
	}
	if s.tracker != nil {
		status["pendingRecords"] = s.tracker.PendingCount()
		status["offlineRecords"] = s.tracker.OfflineCount()
		if start := s.tracker.SessionStart(); start != nil {
			status["sessionStart"] = start.Format(time.RFC3339)
		}
	}
	if s.blocklist != nil {
		status["blocklistVersion"] = s.blocklist.Version()
		status["installedRules"] = s.blocklist.InstalledCount()
	}
	if s.restrictions != nil {
		res := s.restrictions.Status()
		status["browsingAllowed"] = res.Allowed
		if !res.Allowed {
			status["restrictionReason"] = res.Reason
		}
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	history := []session.FlushRecord{}
	if s.tracker != nil {
		history = s.tracker.History()
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": history,
		"count":   len(history),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.tracker == nil {
		s.writeJSON(w, http.StatusOK, session.DailyStats{})
		return
	}
	s.writeJSON(w, http.StatusOK, s.tracker.StatsToday())
}

func (s *Server) handleBlocklist(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"version":        "",
		"installedRules": 0,
	}
	if s.blocklist != nil {
		resp["version"] = s.blocklist.Version()
		resp["installedRules"] = s.blocklist.InstalledCount()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRestrictions(w http.ResponseWriter, r *http.Request) {
	if s.restrictions == nil {
		s.writeJSON(w, http.StatusOK, restrictions.Result{Allowed: true})
		return
	}
	s.writeJSON(w, http.StatusOK, s.restrictions.Status())
}

// handleCheck answers "would this URL be blocked right now". Surfaces
// use it to decide whether to show the blocked page.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		s.writeError(w, http.StatusBadRequest, "url parameter required", nil)
		return
	}

	decision := blocklist.Decision{}
	if s.blocklist != nil {
		decision = s.blocklist.IsURLBlocked(url)
	}
	resp := map[string]interface{}{
		"url":     url,
		"blocked": decision.Blocked,
	}
	if decision.Blocked {
		resp["category"] = decision.Category
	}
	if s.restrictions != nil {
		res := s.restrictions.Status()
		if !res.Allowed {
			resp["blocked"] = true
			resp["restrictionReason"] = res.Reason
			resp["message"] = res.Message
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleBlockedReport records a block enforced at the surface and tells
// every other surface about it.
func (s *Server) handleBlockedReport(w http.ResponseWriter, r *http.Request) {
	var report struct {
		URL      string `json:"url"`
		Reason   string `json:"reason"`
		Category string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if report.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url is required", nil)
		return
	}

	if s.tracker != nil {
		s.tracker.LogBlockedRequest(report.URL, report.Reason, report.Category)
	}
	if s.hub != nil {
		s.hub.Broadcast(map[string]interface{}{
			"type":     "blocked",
			"blocked":  true,
			"url":      report.URL,
			"category": report.Category,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (s *Server) handleConnectivityRestored(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("Connectivity restored reported by surface")
	if s.OnConnectivityRestored != nil {
		go s.OnConnectivityRestored()
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]interface{}{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	s.writeJSON(w, status, response)
}
