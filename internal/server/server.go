// Package server exposes the inventory and transcription services over a
// JSON HTTP API.
package server

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ktsuji/homestock/internal/inventory"
	"github.com/ktsuji/homestock/internal/transcription"
)

// BasicAuth holds optional basic authentication credentials. Empty
// credentials disable the check.
type BasicAuth struct {
	Username string
	Password string
}

// Server handles HTTP requests.
type Server struct {
	inventory   *inventory.Service
	transcriber *transcription.Service
	basicAuth   BasicAuth
	mux         *http.ServeMux
}

// New creates a Server with a default mux.
func New(inv *inventory.Service, transcriber *transcription.Service, basicAuth BasicAuth) *Server {
	return NewWithMux(inv, transcriber, basicAuth, http.NewServeMux())
}

// NewWithMux creates a Server on a caller-provided mux for testing.
func NewWithMux(inv *inventory.Service, transcriber *transcription.Service, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		inventory:   inv,
		transcriber: transcriber,
		basicAuth:   basicAuth,
		mux:         mux,
	}
	s.registerRoutes()
	return s
}

func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	return credentials[0] == s.basicAuth.Username && credentials[1] == s.basicAuth.Password
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			setCORSHeaders(w)
			w.Header().Set("WWW-Authenticate", `Basic realm="homestock"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all API routes, most specific first.
func (s *Server) registerRoutes() {
	// Image intake and transcription
	s.mux.HandleFunc("POST /parse-image", s.requireAuth(s.handleParseImage))
	s.mux.HandleFunc("POST /transcribe-image", s.requireAuth(s.handleTranscribeImage))
	s.mux.HandleFunc("GET /uploads/{filename}", s.requireAuth(s.handleGetUpload))
	s.mux.HandleFunc("GET /artifacts/{id}", s.requireAuth(s.handleGetArtifact))

	// Items and lending operations
	s.mux.HandleFunc("POST /api/items/{id}/stock", s.requireAuth(s.handleAdjustStock))
	s.mux.HandleFunc("POST /api/items/{id}/borrow", s.requireAuth(s.handleBorrow))
	s.mux.HandleFunc("POST /api/items/{id}/reserve", s.requireAuth(s.handleReserve))
	s.mux.HandleFunc("GET /api/items/{id}/logs", s.requireAuth(s.handleListLogs))
	s.mux.HandleFunc("GET /api/items/{id}", s.requireAuth(s.handleGetItem))
	s.mux.HandleFunc("PUT /api/items/{id}", s.requireAuth(s.handleUpdateItem))
	s.mux.HandleFunc("DELETE /api/items/{id}", s.requireAuth(s.handleDeleteItem))
	s.mux.HandleFunc("GET /api/items", s.requireAuth(s.handleListItems))
	s.mux.HandleFunc("POST /api/items", s.requireAuth(s.handleCreateItem))

	// Lending logs
	s.mux.HandleFunc("POST /api/logs/{id}/return", s.requireAuth(s.handleReturn))
	s.mux.HandleFunc("POST /api/logs/{id}/convert", s.requireAuth(s.handleConvert))
	s.mux.HandleFunc("DELETE /api/logs/{id}", s.requireAuth(s.handleCancelReservation))

	// Tags
	s.mux.HandleFunc("GET /api/tags", s.requireAuth(s.handleListTags))
	s.mux.HandleFunc("POST /api/tags", s.requireAuth(s.handleCreateTag))
	s.mux.HandleFunc("DELETE /api/tags/{id}", s.requireAuth(s.handleDeleteTag))

	// Chat
	s.mux.HandleFunc("GET /api/chat", s.requireAuth(s.handleListChat))
	s.mux.HandleFunc("POST /api/chat", s.requireAuth(s.handlePostChat))
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.corsMiddleware(s.mux.ServeHTTP)(w, r)
	}))
}

// ServeHTTP implements http.Handler for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
