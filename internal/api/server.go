// Package api exposes the HTTP surface: session creation, reconnection
// snapshots, the websocket endpoint, health and metrics.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/revealtogether/server/internal/cache"
	"github.com/revealtogether/server/internal/realtime"
	"github.com/revealtogether/server/internal/reveal"
)

// Server wires the engines into HTTP handlers.
type Server struct {
	sessions *reveal.SessionService
	archiver reveal.Archiver
	hub      *realtime.Hub
	store    cache.Store

	baseURL        string
	allowedOrigins string
	logger         *log.Logger
}

func NewServer(sessions *reveal.SessionService, archiver reveal.Archiver, hub *realtime.Hub, store cache.Store, baseURL, allowedOrigins string) *Server {
	return &Server{
		sessions:       sessions,
		archiver:       archiver,
		hub:            hub,
		store:          store,
		baseURL:        strings.TrimRight(baseURL, "/"),
		allowedOrigins: allowedOrigins,
		logger:         log.New(log.Writer(), "[API] ", log.LstdFlags),
	}
}

// Router builds the full route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.corsMiddleware)

	r.HandleFunc("/api/reveals", s.handleCreateReveal).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/reveals/{sessionId}", s.handleGetReveal).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/session/{sessionId}/state", s.handleSessionState).Methods("GET", "OPTIONS")

	r.HandleFunc("/ws/{sessionId}", s.handleWebSocket).Methods("GET")

	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return r
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	allowAll := s.allowedOrigins == "" || strings.Contains(s.allowedOrigins, "*")
	allowed := make(map[string]bool)
	for _, origin := range strings.Split(s.allowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowed[origin] = true
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case allowAll:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case allowed[origin]:
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// createRevealRequest is the POST /api/reveals body.
type createRevealRequest struct {
	OwnerID    string `json:"ownerId"`
	Gender     string `json:"gender"`
	RevealTime string `json:"revealTime"`
}

// sessionResponse is the public session summary. Gender stays null until
// the session has ended.
type sessionResponse struct {
	SessionID     string         `json:"sessionId"`
	Status        reveal.Status  `json:"status"`
	RevealTime    time.Time      `json:"revealTime"`
	CreatedAt     time.Time      `json:"createdAt"`
	ShareableLink string         `json:"shareableLink"`
	Gender        *reveal.Option `json:"gender"`
}

func (s *Server) sessionResponseFrom(session *reveal.Session) sessionResponse {
	resp := sessionResponse{
		SessionID:     session.SessionID,
		Status:        session.Status,
		RevealTime:    session.RevealTime,
		CreatedAt:     session.CreatedAt,
		ShareableLink: s.baseURL + "/r/" + session.SessionID,
	}
	if session.Status == reveal.StatusEnded {
		gender := session.Gender
		resp.Gender = &gender
	}
	return resp
}

func (s *Server) handleCreateReveal(w http.ResponseWriter, r *http.Request) {
	var req createRevealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.OwnerID) == "" {
		writeError(w, http.StatusBadRequest, "ownerId is required")
		return
	}
	gender, err := reveal.ParseOption(req.Gender)
	if err != nil {
		writeError(w, http.StatusBadRequest, "gender must be 'boy' or 'girl'")
		return
	}
	revealTime, err := time.Parse(time.RFC3339, req.RevealTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "revealTime must be an ISO-8601 UTC instant")
		return
	}
	if !revealTime.After(time.Now()) {
		writeError(w, http.StatusBadRequest, "revealTime must be in the future")
		return
	}

	s.logger.Printf("Creating reveal session for owner: %s", req.OwnerID)
	session, err := s.sessions.Create(r.Context(), req.OwnerID, gender, revealTime)
	if err != nil {
		s.logger.Printf("Session creation failed: %v", err)
		writeError(w, http.StatusServiceUnavailable, "Temporary error, please try again")
		return
	}

	writeJSON(w, http.StatusCreated, s.sessionResponseFrom(session))
}

func (s *Server) handleGetReveal(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]

	session, err := s.sessions.Get(r.Context(), sessionID)
	if err != nil {
		s.logger.Printf("Session lookup failed for %s: %v", sessionID, err)
		writeError(w, http.StatusServiceUnavailable, "Temporary error, please try again")
		return
	}
	if session != nil {
		writeJSON(w, http.StatusOK, s.sessionResponseFrom(session))
		return
	}

	// Ended sessions age out of the cache but live on in the archive.
	doc, err := s.archiver.GetReveal(r.Context(), sessionID)
	if err != nil {
		s.logger.Printf("Archive lookup failed for %s: %v", sessionID, err)
	}
	if doc != nil {
		writeJSON(w, http.StatusOK, doc)
		return
	}

	writeError(w, http.StatusNotFound, "Session not found")
}

func (s *Server) handleSessionState(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]
	visitorID := r.URL.Query().Get("visitorId")

	state, err := s.sessions.State(r.Context(), sessionID, visitorID)
	if err != nil {
		s.logger.Printf("State lookup failed for %s: %v", sessionID, err)
		writeError(w, http.StatusServiceUnavailable, "Temporary error, please try again")
		return
	}
	if state == nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.hub.HandleWebSocket(w, r, mux.Vars(r)["sessionId"])
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cacheStatus := "connected"
	if _, err := s.store.Exists(r.Context(), "health"); err != nil {
		cacheStatus = "error"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "reveal-server",
		"cache":   cacheStatus,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
