// Package api exposes the governance kernel over HTTP: dual search,
// governed memory writes, session issuance, and metrics. Every /v1 route
// except the exempt set passes the capability-token middleware.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Ashish-dwi99/Engram-sub002/internal/auth"
	"github.com/Ashish-dwi99/Engram-sub002/internal/config"
	"github.com/Ashish-dwi99/Engram-sub002/internal/logging"
	"github.com/Ashish-dwi99/Engram-sub002/internal/observability"
	"github.com/Ashish-dwi99/Engram-sub002/internal/retrieval"
	"github.com/Ashish-dwi99/Engram-sub002/internal/store"
)

// tokenExemptPaths lists routes reachable without a capability token even
// for untrusted callers.
var tokenExemptPaths = map[string]bool{
	"/health":      true,
	"/v1/version":  true,
	"/v1/sessions": true,
	"/metrics":     true,
}

// Server wires the trust gate, session manager, store, and dual search
// engine behind an HTTP mux.
type Server struct {
	cfg      *config.Config
	store    *store.Store
	engine   *retrieval.Engine
	gate     *auth.Gate
	sessions *auth.SessionManager
}

// NewServer assembles the HTTP surface.
func NewServer(cfg *config.Config, st *store.Store, engine *retrieval.Engine,
	gate *auth.Gate, sessions *auth.SessionManager) *Server {
	return &Server{cfg: cfg, store: st, engine: engine, gate: gate, sessions: sessions}
}

// Handler returns the routed handler with the token middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.Handle("GET /metrics", observability.Handler())
	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("POST /v1/search", s.handleSearch)
	mux.HandleFunc("POST /v1/memories", s.handleAddMemory)
	mux.HandleFunc("POST /v1/scenes", s.handleAddScene)
	return s.tokenMiddleware(mux)
}

// ListenAndServe runs the server until ctx is cancelled, then shuts down
// gracefully within the configured timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.API.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logging.L(logging.CategoryAPI).Infow("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// tokenMiddleware enforces the capability-token requirement for untrusted
// callers on /v1 routes, and rejects tokens that do not resolve to a live
// session. Trust classification never inspects the body.
func (s *Server) tokenMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if len(path) > 1 && path[len(path)-1] == '/' {
			path = path[:len(path)-1]
		}
		if path == "" {
			path = "/"
		}

		if r.Method != http.MethodOptions && strings.HasPrefix(path, "/v1") && !tokenExemptPaths[path] {
			token := auth.TokenFromRequest(r)
			if err := s.gate.RequireTokenForUntrusted(r, token); err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			if token != "" {
				if _, err := s.sessions.Resolve(token); err != nil {
					writeError(w, http.StatusUnauthorized, "invalid or expired capability token")
					return
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.L(logging.CategoryAPI).Warnw("failed to encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
