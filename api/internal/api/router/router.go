package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/irgordon/karidc/api/internal/api/handlers"
	karimw "github.com/irgordon/karidc/api/internal/api/middleware"
	deliveryhttp "github.com/irgordon/karidc/api/internal/delivery/http"
)

// RouterConfig defines the strict dependencies required to build the API routing tree.
type RouterConfig struct {
	AllowedOrigins []string
	ModelHandler   *handlers.ModelHandler
	ServerHandler  *handlers.ServerHandler
	BatchHandler   *handlers.BatchHandler
	WSHandler      *handlers.WebSocketHandler
	HealthHandler  *deliveryhttp.HealthHandler
	RateLimiter    *karimw.RateLimiter
	Gatherer       prometheus.Gatherer // nil serves the default registry
	Logger         *slog.Logger
}

// NewRouter constructs the Chi multiplexer, attaches global middleware, and wires all endpoints.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// =========================================================================
	// 1. Global Gateway Middleware Pipeline
	// =========================================================================

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(karimw.StructuredLogger(cfg.Logger))
	r.Use(middleware.Recoverer)

	// 🛡️ Documents are small; cap every body at 4 Megabytes (OOM Protection)
	r.Use(karimw.MaxBytes(4 << 20))

	// 🛡️ In-memory token bucket rate limiting
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Handler)
	}

	// Strict CORS Configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"ETag", "X-Model-Source"},
		MaxAge:         300,
	}))

	// =========================================================================
	// 2. API v1 Routing Tree
	// =========================================================================

	r.Route("/api/v1", func(r chi.Router) {
		// Streams outlive any request timeout
		r.Get("/ws/batches", cfg.WSHandler.StreamBatches)

		r.Group(func(r chi.Router) {
			// Boot and stop wait on the runtime; leave them room
			r.Use(middleware.Timeout(2 * time.Minute))

			r.Route("/domain", func(r chi.Router) {
				r.Get("/", cfg.ModelHandler.GetDomain)
				r.Put("/", cfg.ModelHandler.PutDomain)
				r.Post("/plan", cfg.ModelHandler.PlanDomain)
				r.Get("/fingerprint", cfg.ModelHandler.Fingerprint)
			})

			r.Route("/hosts", func(r chi.Router) {
				r.Get("/", cfg.ModelHandler.ListHosts)
				r.Get("/{host}", cfg.ModelHandler.GetHost)
				r.Put("/{host}", cfg.ModelHandler.PutHost)

				r.Route("/{host}/servers", func(r chi.Router) {
					r.Get("/", cfg.ServerHandler.List)
					r.Get("/{server}/model", cfg.ServerHandler.Model)
					r.Post("/{server}/boot", cfg.ServerHandler.Boot)
					r.Post("/{server}/stop", cfg.ServerHandler.Stop)
				})
			})

			r.Get("/batches", cfg.BatchHandler.List)
		})
	})

	// =========================================================================
	// 3. Operations
	// =========================================================================

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	if cfg.HealthHandler != nil {
		r.Get("/health", cfg.HealthHandler.Check)
	}

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})

	return r
}
