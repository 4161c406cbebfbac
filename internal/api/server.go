// Package api exposes the verifier over HTTP. One endpoint does the
// work; health and metrics ride alongside for operators.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/optimode/mailprobe"
	"github.com/optimode/mailprobe/types"
)

// Verifier is the slice of the root API the server needs.
type Verifier interface {
	Verify(ctx context.Context, email string) (types.Result, error)
}

// Store persists finished verifications. Persistence is best-effort:
// a failed write is logged, never surfaced to the caller.
type Store interface {
	Save(ctx context.Context, res types.Result) error
}

// Config configures the HTTP server.
type Config struct {
	Verifier Verifier
	// Store is optional; nil disables persistence.
	Store Store
	// GrayRetryAfter is sent as Retry-After on 429 responses. Default: 1h
	GrayRetryAfter time.Duration
	Logger         hclog.Logger
}

// Server handles verification requests over HTTP.
type Server struct {
	cfg Config
	mux *http.ServeMux
	log hclog.Logger
}

// New builds the server and its routes.
func New(cfg Config) *Server {
	if cfg.GrayRetryAfter <= 0 {
		cfg.GrayRetryAfter = time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	s := &Server{cfg: cfg, mux: http.NewServeMux(), log: cfg.Logger.Named("api")}
	s.mux.HandleFunc("POST /v1/verify", s.handleVerify)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type verifyRequest struct {
	Email string `json:"email"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Email == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "email is required"})
		return
	}

	res, err := s.cfg.Verifier.Verify(r.Context(), req.Email)
	switch {
	case err == nil:
	case errors.Is(err, mailprobe.ErrMissingEmail):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "email is required"})
		return
	case errors.Is(err, mailprobe.ErrTooManyConcurrent):
		w.Header().Set("Retry-After", strconv.Itoa(int(s.cfg.GrayRetryAfter.Seconds())))
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: err.Error()})
		return
	default:
		s.log.Error("verification failed", "email", req.Email, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	if s.cfg.Store != nil {
		if err := s.cfg.Store.Save(r.Context(), res); err != nil {
			s.log.Warn("persisting result failed", "email", res.Email, "error", err)
		}
	}

	status := http.StatusOK
	if res.Status == types.StatusTimeout {
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, res)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
