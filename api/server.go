// Package api exposes a small status server for a running benchmark:
// health, Prometheus metrics, and a live run snapshot.
package api

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/Uyyuu/VectorDBBench/metrics"
)

// Server serves benchmark status over HTTP while a run is in progress.
type Server struct {
	app       *fiber.App
	collector *metrics.Collector
	log       *zap.Logger
}

// NewServer creates the status server around a metrics collector.
func NewServer(collector *metrics.Collector, log *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	})

	app.Use(recover.New())
	app.Use(cors.New())

	s := &Server{
		app:       app,
		collector: collector,
		log:       log,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	s.app.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(s.collector.GetSnapshot())
	})

	s.app.Get("/metrics", s.metricsHandler())
}

// metricsHandler adapts the Prometheus exposition handler to Fiber.
func (s *Server) metricsHandler() fiber.Handler {
	handler := fasthttpadaptor.NewFastHTTPHandler(
		promhttp.HandlerFor(s.collector.GetRegistry(), promhttp.HandlerOpts{
			ErrorHandling: promhttp.ContinueOnError,
		}),
	)
	return func(c *fiber.Ctx) error {
		handler(c.Context())
		return nil
	}
}

// Test performs a request against the in-process app without a listener;
// used by tests.
func (s *Server) Test(req *http.Request) (*http.Response, error) {
	return s.app.Test(req)
}

// Start starts the status server on the given port.
func (s *Server) Start(port string) error {
	s.log.Info("status server listening", zap.String("port", port))
	return s.app.Listen(":" + port)
}

// Shutdown gracefully shuts down the status server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
