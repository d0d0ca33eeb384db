package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/mrops-br/products-kv-api/internal/infrastructure/config"
	"github.com/mrops-br/products-kv-api/internal/infrastructure/http/handler"
	"github.com/mrops-br/products-kv-api/internal/infrastructure/http/middleware"
	"github.com/mrops-br/products-kv-api/internal/infrastructure/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

// APIPrefix is the mount point of the product routes
const APIPrefix = "/api/v1"

// Server represents the HTTP server
type Server struct {
	router    *chi.Mux
	config    *config.ServerConfig
	handler   *handler.ProductHandler
	limiter   *middleware.RateLimiter
	logger    *slog.Logger
	telemetry *telemetry.Telemetry
	srv       *http.Server
}

// NewServer creates a new HTTP server. limiter may be nil to disable rate limiting.
func NewServer(
	cfg *config.ServerConfig,
	handler *handler.ProductHandler,
	limiter *middleware.RateLimiter,
	logger *slog.Logger,
	telem *telemetry.Telemetry,
) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		config:    cfg,
		handler:   handler,
		limiter:   limiter,
		logger:    logger,
		telemetry: telem,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.srv = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:           s.Handler(),
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	return s
}

// setupMiddleware configures the middleware chain
func (s *Server) setupMiddleware() {
	// Request ID first so every later log line carries it
	s.router.Use(middleware.RequestID)
	// Structured JSON logging middleware (replaces chimiddleware.Logger)
	s.router.Use(middleware.StructuredLogger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	meter := s.telemetry.MeterProvider.Meter("products-api")
	routeAware := []func(http.Handler) http.Handler{
		middleware.HTTPRouteContext(),
		middleware.ActiveRequestsMiddleware(meter),
		middleware.DurationMillisecondsMiddleware(meter),
	}

	// Route-aware middleware is attached inline on the innermost router so it
	// runs after the full pattern has been matched
	s.router.Route(APIPrefix, func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.Middleware)
		}

		r.Route("/products", func(r chi.Router) {
			r = r.With(routeAware...)
			r.Get("/list", s.handler.ListProducts)
			r.Get("/{id}/{barcode}", s.handler.GetProduct)
			r.Post("/", s.handler.CreateProduct)
			r.Put("/", s.handler.UpdateProduct)
			r.Delete("/{id}/{barcode}", s.handler.DeleteProduct)
		})

		r.Route("/Products", func(r chi.Router) {
			r = r.With(routeAware...)
			r.Get("/List", s.handler.ListProducts)
			r.Get("/GetById/{id}/{barcode}", s.handler.GetProduct)
			r.Post("/Create", s.handler.CreateProduct)
			r.Put("/Update", s.handler.UpdateProduct)
			r.Delete("/Delete/{id}/{barcode}", s.handler.DeleteProduct)
		})
	})

	s.router.With(routeAware...).Get("/health", s.handler.Health)

	// Prometheus metrics endpoint - exposes OpenTelemetry metrics
	s.router.Get("/metrics", promhttp.HandlerFor(s.telemetry.Registry, promhttp.HandlerOpts{}).ServeHTTP)
}

// Handler returns the router wrapped with otelhttp for automatic HTTP metrics and tracing
// This provides: http.server.request.duration, http.server.request.body.size, etc.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "http-server",
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return fmt.Sprintf("%s %s", r.Method, r.URL.Path)
		}),
		otelhttp.WithTracerProvider(s.telemetry.TracerProvider),
		otelhttp.WithMeterProvider(s.telemetry.MeterProvider),
		// Add route pattern to metrics attributes
		otelhttp.WithMetricAttributesFn(func(r *http.Request) []attribute.KeyValue {
			return []attribute.KeyValue{
				attribute.String("http.route", middleware.RoutePattern(r)),
			}
		}),
	)
}

// Start serves until Shutdown is called. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server",
		slog.String("address", s.srv.Addr),
	)

	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.srv.Shutdown(ctx)
}
