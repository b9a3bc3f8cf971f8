package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// DefaultMaxWait bounds how long one GET /jobs/{handle} may block.
const DefaultMaxWait = 30 * time.Second

type submitResponse struct {
	Handle Handle `json:"handle"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type handler struct {
	gw      Gateway
	maxWait time.Duration
	logger  *log.Logger
}

// NewHandler serves gw over HTTP for Remote clients.
//
//	POST /jobs              submit a Job, 202 {"handle": ...}
//	GET  /jobs/{handle}     await, ?timeout=<ms>; 200 Result, 504 on timeout
//	GET  /health            readiness
func NewHandler(gw Gateway, maxWait time.Duration, logger *log.Logger) http.Handler {
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	if logger == nil {
		logger = log.New(os.Stdout, "[GATEWAY] ", log.LstdFlags)
	}
	h := &handler{gw: gw, maxWait: maxWait, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Post("/jobs", h.submit)
	r.Get("/jobs/{handle}", h.await)
	r.Get("/health", h.health)
	return r
}

func (h *handler) submit(w http.ResponseWriter, r *http.Request) {
	var job Job
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid job body: " + err.Error()})
		return
	}
	handle, err := h.gw.Submit(r.Context(), job)
	if err != nil {
		h.logger.Printf("submit_failed job_id=%s kind=%s error=%q", job.ID, job.Kind, err)
		writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{Handle: handle})
}

func (h *handler) await(w http.ResponseWriter, r *http.Request) {
	timeout := h.maxWait
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "timeout must be a positive number of milliseconds"})
			return
		}
		if d := time.Duration(ms) * time.Millisecond; d < timeout {
			timeout = d
		}
	}

	res, err := h.gw.Await(r.Context(), Handle(chi.URLParam(r, "handle")), timeout)
	if err != nil {
		writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if c, ok := h.gw.(Checker); ok {
		if err := c.Check(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrInvalidJob):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnknownHandle):
		return http.StatusNotFound
	case errors.Is(err, ErrTimedOut), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
