// Package server wires the query engine, label index, storage, ingest,
// and retention job into an HTTP surface (gorilla/mux router, CORS
// middleware, /v1 API prefix). It stays a deliberately small routing and
// request-decoding layer over internal/lang, internal/eval, and
// internal/result.
package server

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/nicktill/tinyquery/internal/diskusage"
	"github.com/nicktill/tinyquery/internal/index"
	"github.com/nicktill/tinyquery/internal/ingest"
	"github.com/nicktill/tinyquery/internal/retention"
	"github.com/nicktill/tinyquery/internal/storage"
)

// Server composes every long-lived collaborator the HTTP routes need.
type Server struct {
	Router    *mux.Router
	Storage   storage.Storage
	Index     *index.Index
	Ingest    *ingest.Handler
	Hub       *ingest.Hub
	Retention *retention.Job
	Disk      *diskusage.Monitor
	startTime time.Time
}

// New builds a Server and registers every route under /v1, including
// /v1/health.
func New(store storage.Storage, idx *index.Index, ingestHandler *ingest.Handler, hub *ingest.Hub, job *retention.Job, disk *diskusage.Monitor) *Server {
	s := &Server{
		Router:    mux.NewRouter(),
		Storage:   store,
		Index:     idx,
		Ingest:    ingestHandler,
		Hub:       hub,
		Retention: job,
		Disk:      disk,
		startTime: time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.Use(corsMiddleware)

	api := s.Router.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/query/execute", s.handleQueryExecute).Methods("POST")
	api.HandleFunc("/query/instant", s.handleQueryInstant).Methods("GET", "POST")
	api.HandleFunc("/query_range", s.handleQueryRange).Methods("GET", "POST")
	api.HandleFunc("/ingest", s.Ingest.HandleIngest).Methods("POST")
	api.HandleFunc("/label_values", s.Ingest.HandleLabelValues).Methods("GET")
	api.HandleFunc("/cardinality", s.Ingest.HandleCardinality).Methods("GET")
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	if s.Disk != nil {
		api.HandleFunc("/storage", s.handleStorageUsage).Methods("GET")
	}
	if s.Hub != nil {
		api.HandleFunc("/ws", s.Hub.ServeWS).Methods("GET")
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	healthy := s.Retention == nil || s.Retention.Healthy()
	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	body := map[string]interface{}{
		"status": status,
		"uptime": time.Since(s.startTime).String(),
	}
	if s.Retention != nil {
		body["retention"] = s.Retention.Status()
	}
	if s.Disk != nil {
		if used, err := s.Disk.Usage(); err == nil {
			body["storage_bytes"] = used
			body["storage_limit_bytes"] = s.Disk.Limit()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("❌ server: failed to encode health response: %v", err)
	}
}

// handleStorageUsage implements GET /v1/storage: actual on-disk bytes
// used by the data directory against the configured limit.
func (s *Server) handleStorageUsage(w http.ResponseWriter, r *http.Request) {
	used, err := s.Disk.Usage()
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	limit := s.Disk.Limit()
	body := map[string]interface{}{
		"used_bytes":  used,
		"limit_bytes": limit,
	}
	if limit > 0 {
		body["utilization_pct"] = float64(used) / float64(limit) * 100
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}
