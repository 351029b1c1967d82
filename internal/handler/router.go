package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"secops-dashboard/internal/config"
	"secops-dashboard/internal/metrics"
)

// HealthChecker reports the health of every configured backend.
type HealthChecker interface {
	HealthCheck(ctx context.Context) map[string]error
}

// RouterOptions carries everything NewRouter mounts. Nil handlers are
// skipped.
type RouterOptions struct {
	Config    *config.Config
	Dashboard *DashboardHandler
	Intel     *IntelHandler
	Realtime  *RealtimeHandler
	Health    HealthChecker
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Logger    *zap.Logger
}

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(opts RouterOptions) chi.Router {
	logger := opts.Logger
	router := chi.NewRouter()

	if opts.Config.Server.EnableTLS {
		router.Use(requireHTTPS)
	}

	// Middleware stack
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggerMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(MetricsMiddleware(opts.Metrics))

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Used"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/health", healthHandler(opts.Health, logger))
	if opts.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	// the upgrade must not run under the request timeout
	if opts.Realtime != nil {
		router.Get("/ws", opts.Realtime.ServeWS)
	}

	// API routes
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		if opts.Dashboard != nil {
			opts.Dashboard.RegisterRoutes(r)
		}
		if opts.Intel != nil {
			opts.Intel.RegisterRoutes(r)
		}
	})

	// 404 handler
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	// Method not allowed handler
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		w.Write([]byte(`{"error":"method not allowed"}`))
	})

	return router
}

type healthReport struct {
	Status     string            `json:"status"`
	Service    string            `json:"service"`
	Components map[string]string `json:"components,omitempty"`
}

func healthHandler(checker HealthChecker, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := healthReport{Status: "healthy", Service: "secops-dashboard"}
		status := http.StatusOK
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			report.Components = make(map[string]string)
			for name, err := range checker.HealthCheck(ctx) {
				if err != nil {
					report.Components[name] = err.Error()
					report.Status = "degraded"
					status = http.StatusServiceUnavailable
					continue
				}
				report.Components[name] = "ok"
			}
		}
		respondWithJSON(logger, w, status, report)
	}
}
