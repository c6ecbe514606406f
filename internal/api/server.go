// Package api exposes developer-panel operations over local HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/netutil"

	"ledgerdev/internal/devtools"
	"ledgerdev/internal/logging"
	"ledgerdev/internal/store"
)

const (
	// maxBodyBytes bounds a request body; arguments are capped far below this anyway.
	maxBodyBytes = 1 << 20

	// maxConns bounds concurrent connections; each one may hold a running tool.
	maxConns = 32
)

// Dispatcher runs one operation.
type Dispatcher interface {
	Do(ctx context.Context, req devtools.Request) devtools.Response
	Health(ctx context.Context) devtools.HealthReport
}

// AuditReader lists recent audit records.
type AuditReader interface {
	RecentExecutions(ctx context.Context, limit int) ([]store.ExecutionRecord, error)
	RecentLifecycle(ctx context.Context, limit int) ([]store.LifecycleRecord, error)
}

// Server serves the HTTP surface.
type Server struct {
	svc   Dispatcher
	audit AuditReader
	mux   *http.ServeMux
}

// NewServer creates a server. audit may be nil when the store is disabled.
func NewServer(svc Dispatcher, audit AuditReader) *Server {
	s := &Server{svc: svc, audit: audit, mux: http.NewServeMux()}
	s.mux.HandleFunc("POST /v1/devtools/{operation}", s.handleOperation)
	s.mux.HandleFunc("GET /v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /v1/audit", s.handleAudit)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get("X-Request-ID")
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", id)
	start := time.Now()
	s.mux.ServeHTTP(w, r)
	logging.Get(logging.CategoryAPI).With("request_id", id).
		Debug("%s %s took=%v", r.Method, r.URL.Path, time.Since(start))
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	ln = netutil.LimitListener(ln, maxConns)

	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.API("listening on %s", ln.Addr())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func (s *Server) handleOperation(w http.ResponseWriter, r *http.Request) {
	op := devtools.Operation(r.PathValue("operation"))
	logging.APIDebug("dispatching %s", op)

	var req devtools.Request
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, devtools.Response{
			Error:   "invalid request body: " + err.Error(),
			Details: &devtools.ErrorDetails{Kind: devtools.KindInvalidRequest},
		})
		return
	}
	req.Operation = op

	resp := s.svc.Do(r.Context(), req)
	writeJSON(w, statusFor(resp), resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.svc.Health(r.Context())
	status := http.StatusOK
	if !report.OK() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

type auditResponse struct {
	Executions []store.ExecutionRecord `json:"executions"`
	Lifecycle  []store.LifecycleRecord `json:"lifecycle"`
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		http.Error(w, "audit store disabled", http.StatusNotFound)
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			http.Error(w, "limit must be between 1 and 1000", http.StatusBadRequest)
			return
		}
		limit = n
	}

	execs, err := s.audit.RecentExecutions(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	life, err := s.audit.RecentLifecycle(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, auditResponse{Executions: execs, Lifecycle: life})
}

// statusFor maps a failure kind to an HTTP status. A tool exiting non-zero is 200.
func statusFor(resp devtools.Response) int {
	if resp.Success {
		return http.StatusOK
	}
	if resp.Details == nil {
		return http.StatusInternalServerError
	}
	switch resp.Details.Kind {
	case devtools.KindCommandRejected, devtools.KindSanitization:
		return http.StatusForbidden
	case devtools.KindInvalidRequest:
		return http.StatusBadRequest
	case devtools.KindBinaryNotFound, devtools.KindKillFailure, devtools.KindStartFailure:
		return http.StatusServiceUnavailable
	case devtools.KindTimeout:
		return http.StatusGatewayTimeout
	case devtools.KindInternal:
		return http.StatusInternalServerError
	}
	return http.StatusOK
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Get(logging.CategoryAPI).Warn("encode response: %v", err)
	}
}
