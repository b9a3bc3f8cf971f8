package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/buried-treasure-go/internal/game"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Options configures a Server. Zero values are usable.
type Options struct {
	// RequestTimeout bounds every route except the state stream.
	// Defaults to 60s.
	RequestTimeout time.Duration

	// AllowOrigin is sent as Access-Control-Allow-Origin. Defaults to "*".
	AllowOrigin string

	// Database is checked by the health routes when set.
	Database Pinger

	Logger         *log.Logger
	SecurityLogger *log.Logger
}

// Server exposes a game.Processor over HTTP.
type Server struct {
	engine         *game.Processor
	db             Pinger
	errorHandler   *ErrorHandler
	logger         *log.Logger
	securityLogger *SecurityLogger
	timeout        time.Duration
	allowOrigin    string
	startTime      time.Time
}

// NewServer creates a new API server
func NewServer(engine *game.Processor, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[API] ", log.LstdFlags|log.LUTC)
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if opts.AllowOrigin == "" {
		opts.AllowOrigin = "*"
	}
	securityLogger := NewSecurityLogger(opts.SecurityLogger)

	return &Server{
		engine:         engine,
		db:             opts.Database,
		errorHandler:   NewErrorHandler(logger, securityLogger),
		logger:         logger,
		securityLogger: securityLogger,
		timeout:        opts.RequestTimeout,
		allowOrigin:    opts.AllowOrigin,
		startTime:      time.Now(),
	}
}

// SecurityLog exposes the audit logger for startup and shutdown lines.
func (s *Server) SecurityLog() *SecurityLogger {
	return s.securityLogger
}

// Routes sets up the HTTP routes with proper middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.SecurityLoggingMiddleware)
	r.Use(s.errorHandler.RecoveryHandler)
	r.Use(s.CORSMiddleware)

	// The stream is long-lived and must not sit behind the request timeout.
	r.Get("/api/v1/game/stream", s.handleStream)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.timeout))

		r.Get("/health", s.handleHealthCheck)
		r.Get("/health/ready", s.handleReadiness)
		r.Get("/health/live", s.handleLiveness)

		r.Route("/api/v1", func(r chi.Router) {
			r.Route("/game", func(r chi.Router) {
				r.Post("/register", s.handleRegister)
				r.Get("/state", s.handleState)
				r.Post("/move", s.handleMove)
				r.Post("/explore", s.handleExplore)
				r.Post("/dig", s.handleDig)
				r.Post("/bury", s.handleBury)
			})
			r.Get("/leaderboard", s.handleLeaderboard)
			r.Get("/events", s.handleEvents)
			r.Get("/facts", s.handleFacts)
			r.Get("/version", s.handleVersion)
		})
	})

	return r
}

// writeJSON writes a JSON response with proper headers
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Printf("response_encode_failed err=%v", err)
	}
}
