package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/joescharf/igwatch/internal/models"
)

// FleetSource produces a fresh fleet result on demand.
type FleetSource interface {
	Fleet(ctx context.Context) (models.FleetResult, error)
}

// Server provides the REST API handlers.
type Server struct {
	fleet FleetSource
	proxy http.Handler
	log   zerolog.Logger
}

// NewServer creates a new API server.
// The proxy handler may be nil, in which case /proxy/ routes are not mounted.
func NewServer(fleet FleetSource, proxy http.Handler, log zerolog.Logger) *Server {
	return &Server{
		fleet: fleet,
		proxy: proxy,
		log:   log,
	}
}

// Router returns an http.Handler for the API and proxy routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", s.health)
	mux.HandleFunc("GET /api/v1/fleet", s.getFleet)
	mux.HandleFunc("GET /api/v1/fleet/{key...}", s.getProject)

	if s.proxy != nil {
		mux.Handle("/proxy/", s.proxy)
	}

	return s.logRequests(corsMiddleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// queryBool reads a boolean query parameter; absent or malformed values are false.
func queryBool(r *http.Request, key string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(key))
	return err == nil && v
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Fleet ---

func (s *Server) getFleet(w http.ResponseWriter, r *http.Request) {
	fleet, err := s.fleet.Fleet(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("fleet refresh failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	filter := models.Filter{
		Stale:       queryBool(r, "stale"),
		Unpublished: queryBool(r, "unpublished"),
	}
	if filter != (models.Filter{}) {
		fleet.Projects = fleet.Select(filter)
	}
	writeJSON(w, http.StatusOK, fleet)
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	fleet, err := s.fleet.Fleet(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("fleet refresh failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	p, ok := fleet.Find(key)
	if !ok {
		writeError(w, http.StatusNotFound, "project not found: "+key)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
