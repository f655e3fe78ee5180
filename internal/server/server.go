package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/recoverypulse/internal/access"
	"github.com/dukerupert/recoverypulse/internal/handler"
	"github.com/dukerupert/recoverypulse/internal/metrics"
	"github.com/dukerupert/recoverypulse/internal/middleware"
	"github.com/dukerupert/recoverypulse/internal/recovery"
	ws "github.com/dukerupert/recoverypulse/internal/websocket"
)

// Deps are the collaborators the HTTP layer is built from.
type Deps struct {
	Recovery   *recovery.Service
	Access     *access.Controller
	Onboarding *access.Onboarding
	Settings   middleware.PINSettings
	Snapshots  handler.SnapshotLister
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Now        handler.Clock

	// AdminRateLimit is requests per minute per client IP on admin routes.
	AdminRateLimit int
	// WSOrigins lists extra origins allowed to open /ws.
	WSOrigins []string
}

type Server struct {
	hub         *ws.Hub
	checkInH    *handler.CheckInHandler
	accessH     *handler.AccessHandler
	adminH      *handler.AdminHandler
	settings    middleware.PINSettings
	metrics     *metrics.Metrics
	rateLimiter *middleware.RateLimiter
	adminLimit  int
	wsOrigins   []string
	logger      *slog.Logger
}

func New(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}

	hub := ws.NewHub(logger.With("component", "websocket"))
	if d.Metrics != nil {
		hub.WithObserver(d.Metrics)
	}

	return &Server{
		hub:         hub,
		checkInH:    handler.NewCheckInHandler(d.Recovery, hub, d.Metrics, logger.With("component", "checkin"), now),
		accessH:     handler.NewAccessHandler(d.Access, d.Onboarding, hub, d.Metrics, logger.With("component", "access"), now),
		adminH:      handler.NewAdminHandler(d.Recovery, d.Access, d.Snapshots, hub, logger.With("component", "admin"), now),
		settings:    d.Settings,
		metrics:     d.Metrics,
		rateLimiter: middleware.NewRateLimiter(),
		adminLimit:  d.AdminRateLimit,
		wsOrigins:   d.WSOrigins,
		logger:      logger,
	}
}

// Hub returns the live-update hub so callers can shut it down.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// RateLimiter returns the admin rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handler.Health)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.HandleFunc("GET /api/dashboard", s.checkInH.Dashboard)
	mux.HandleFunc("POST /api/checkins", s.checkInH.Submit)
	mux.HandleFunc("GET /api/checkins", s.checkInH.List)
	mux.HandleFunc("GET /api/checkins/today", s.checkInH.Today)
	mux.HandleFunc("PATCH /api/checkins/{id}", s.checkInH.Edit)
	mux.HandleFunc("GET /api/trends", s.checkInH.Trends)
	mux.HandleFunc("GET /api/score", s.checkInH.Score)

	mux.HandleFunc("GET /api/access", s.accessH.Get)
	mux.HandleFunc("POST /api/access/refresh", s.accessH.Refresh)
	mux.HandleFunc("POST /api/access/purchase", s.accessH.Purchase)
	mux.HandleFunc("POST /api/access/restore", s.accessH.Restore)

	mux.HandleFunc("GET /api/onboarding", s.accessH.GetOnboarding)
	mux.HandleFunc("POST /api/onboarding", s.accessH.CompleteOnboarding)
	mux.HandleFunc("DELETE /api/onboarding", s.accessH.ResetOnboarding)

	mux.Handle("POST /api/admin/grace/expire", s.admin(s.adminH.ExpireGrace))
	mux.Handle("POST /api/admin/reset", s.admin(s.adminH.Reset))
	mux.Handle("GET /api/admin/snapshots", s.admin(s.adminH.Snapshots))

	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket"), s.wsOrigins))

	var h http.Handler = mux
	if s.metrics != nil {
		h = s.metrics.Instrument(h)
	}
	return middleware.RequestLogger(s.logger.With("component", "http"))(h)
}

// admin wraps h with rate limiting and the PIN check.
func (s *Server) admin(h http.HandlerFunc) http.Handler {
	limited := middleware.RateLimit(s.rateLimiter, middleware.RealIP, s.adminLimit, time.Minute)
	guarded := middleware.RequireAdminPIN(s.settings, s.logger.With("component", "admin"))
	return limited(guarded(h))
}
