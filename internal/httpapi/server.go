// Package httpapi implements the approval HTTP surface (§6): wallet-signed
// document joins, the approval-decision entry point, and read-only
// activity/status/metrics endpoints.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	gwmiddleware "treasuryagent/gateway/middleware"
	"treasuryagent/internal/approval"
	"treasuryagent/internal/backend/statechannel"
	"treasuryagent/internal/metrics"
	"treasuryagent/internal/store"
)

// Server wires the approval endpoints to the Store and Approval
// Coordinator. It holds no mutable state of its own beyond the session
// signing key and the join challenge store.
type Server struct {
	store       *store.Store
	coordinator *approval.Coordinator
	channel     statechannel.Backend
	metrics     *metrics.Agent
	challenges  *ChallengeStore
	jwtSecret   []byte

	now           func() time.Time
	log           *slog.Logger
	limiter       *gwmiddleware.RateLimiter
	secureCookies bool
	observability *gwmiddleware.Observability
	metricsAuth   *gwmiddleware.Authenticator
	cors          gwmiddleware.CORSConfig
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithClock overrides the wall-clock now() used for challenge expiry and
// session issuance.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) { s.now = clock }
}

// WithLogger installs a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithChannel installs a state-channel backend, enabling mode=yellow joins.
func WithChannel(ch statechannel.Backend) Option {
	return func(s *Server) { s.channel = ch }
}

// WithRateLimiter installs request rate limiting across the join and
// decision endpoints.
func WithRateLimiter(rl *gwmiddleware.RateLimiter) Option {
	return func(s *Server) { s.limiter = rl }
}

// WithSecureCookies marks the session cookie Secure; disabled by default
// so local/dev deployments without TLS termination still work.
func WithSecureCookies(secure bool) Option {
	return func(s *Server) { s.secureCookies = secure }
}

// WithObservability installs per-route request counters, latency
// histograms, and trace spans across every endpoint.
func WithObservability(o *gwmiddleware.Observability) Option {
	return func(s *Server) { s.observability = o }
}

// WithMetricsAuth gates the Prometheus /metrics scrape endpoint behind a
// bearer-token JWT, separate from the browser session cookie every other
// endpoint uses.
func WithMetricsAuth(a *gwmiddleware.Authenticator) Option {
	return func(s *Server) { s.metricsAuth = a }
}

// WithCORS configures cross-origin access for the join/decision endpoints
// a browser-based signer UI calls directly.
func WithCORS(cfg gwmiddleware.CORSConfig) Option {
	return func(s *Server) { s.cors = cfg }
}

// New constructs a Server.
func New(st *store.Store, coordinator *approval.Coordinator, challenges *ChallengeStore, jwtSecret []byte, opts ...Option) *Server {
	s := &Server{
		store:       st,
		coordinator: coordinator,
		challenges:  challenges,
		jwtSecret:   jwtSecret,
		metrics:     metrics.Registry(),
		now:         time.Now,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the chi mux exposing every endpoint in §6.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(gwmiddleware.CORS(s.cors))
	r.Post("/api/join/start", s.wrap("join_start", s.withLimit("join", s.handleJoinStart)))
	r.Post("/api/join/finish", s.wrap("join_finish", s.withLimit("join", s.handleJoinFinish)))
	r.Post("/api/cmd/decision", s.wrap("cmd_decision", s.withLimit("decision", s.requireSession(s.handleDecision))))
	r.Get("/api/activity/{docId}", s.wrap("activity", s.handleActivity))
	r.Get("/api/cmd/{docId}/{cmdId}", s.wrap("cmd_status", s.handleCommandStatus))
	r.Get("/api/metrics/{docId}", s.wrap("doc_metrics", s.handleMetrics))
	if s.observability != nil {
		r.Get("/metrics", s.withMetricsAuth(s.observability.MetricsHandler().ServeHTTP))
	}
	return r
}

func (s *Server) withMetricsAuth(next http.HandlerFunc) http.HandlerFunc {
	if s.metricsAuth == nil {
		return next
	}
	return s.metricsAuth.Middleware()(next).ServeHTTP
}

func (s *Server) withLimit(key string, next http.HandlerFunc) http.HandlerFunc {
	if s.limiter == nil {
		return next
	}
	return s.limiter.Middleware(key)(next).ServeHTTP
}

func (s *Server) wrap(route string, next http.HandlerFunc) http.HandlerFunc {
	if s.observability == nil {
		return next
	}
	return s.observability.Middleware(route)(next).ServeHTTP
}
