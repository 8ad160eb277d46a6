package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/catherinevee/reghook/internal/api/stream"
	"github.com/catherinevee/reghook/internal/auth"
	"github.com/catherinevee/reghook/internal/logger"
	"github.com/catherinevee/reghook/internal/registry"
	"github.com/catherinevee/reghook/internal/webhook"
)

// Config configures the admin API server.
type Config struct {
	Addr        string
	CORSOrigins []string

	AuthEnabled bool
	JWTSecret   string
	TokenTTL    time.Duration

	RateLimitEnabled  bool
	RequestsPerSecond float64
	Burst             int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server exposes webhook administration and dispatcher operations over HTTP.
type Server struct {
	cfg        Config
	router     *mux.Router
	handler    http.Handler
	httpServer *http.Server

	store      registry.AdminStore
	dispatcher *webhook.Dispatcher
	hub        *stream.Hub

	validate *validator.Validate
	tokens   *auth.Service
	limiter  *rateLimiter
	log      logger.Logger

	startTime time.Time
}

// NewServer wires routes and middleware around the given dependencies. The
// hub may be nil to disable the delivery stream endpoint.
func NewServer(cfg Config, store registry.AdminStore, dispatcher *webhook.Dispatcher, hub *stream.Hub) *Server {
	s := &Server{
		cfg:        cfg,
		router:     mux.NewRouter(),
		store:      store,
		dispatcher: dispatcher,
		hub:        hub,
		validate:   validator.New(),
		log:        logger.New("rest-api"),
		startTime:  time.Now(),
	}

	if cfg.AuthEnabled && cfg.JWTSecret != "" {
		s.tokens = auth.NewService(cfg.JWTSecret, cfg.TokenTTL)
	}
	if cfg.RateLimitEnabled {
		s.limiter = newRateLimiter(cfg.RequestsPerSecond, cfg.Burst)
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.handler = http.Handler(s.router)
	if len(cfg.CORSOrigins) > 0 {
		c := cors.New(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		})
		s.handler = c.Handler(s.handler)
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(s.recovery)
	s.router.Use(s.requestLogger)
	if s.limiter != nil {
		s.router.Use(s.rateLimit)
	}
	s.router.Use(s.authenticate)
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	if s.hub != nil {
		s.router.HandleFunc("/ws/deliveries", s.hub.HandleDeliveries)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/webhooks", s.handleCreateWebhook).Methods("POST")
	api.HandleFunc("/webhooks", s.handleListWebhooks).Methods("GET")
	api.HandleFunc("/webhooks/{id}", s.handleGetWebhook).Methods("GET")
	api.HandleFunc("/webhooks/{id}", s.handleUpdateWebhook).Methods("PATCH")
	api.HandleFunc("/webhooks/{id}", s.handleDeleteWebhook).Methods("DELETE")
	api.HandleFunc("/webhooks/{id}/test", s.handleTestWebhook).Methods("POST")

	api.HandleFunc("/dispatcher/stats", s.handleDispatcherStats).Methods("GET")
	api.HandleFunc("/dispatcher/refresh", s.handleCacheRefresh).Methods("POST")

	api.HandleFunc("/events", s.handleListEventTypes).Methods("GET")
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info("Starting admin API server", logger.String("addr", s.cfg.Addr))

	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and closes the stream hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down admin API server")

	if s.hub != nil {
		s.hub.Close()
	}
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
