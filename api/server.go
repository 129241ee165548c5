/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     zap access log (observability/logger.Middleware)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the admin frontend

ROUTE GROUPS:
  /api/schemes/*        Scheme definitions and lifecycle
  /api/advisors/*       Advisors, quotas, sales, incidents, commissions
  /api/incidents/*      Incident registration and condonation
  /api/equivalences     Transfer equivalences
  /api/evaluate         Authoritative evaluation
  /api/simulate         What-if simulation
  /api/payroll/*        Payroll runs
  /api/scenarios/*      Demo scenarios
  /health               Liveness
  /metrics              Prometheus

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/warp/commission-engine/observability/logger"
	"github.com/warp/commission-engine/observability/metrics"
)

// RouterOptions configures the cross-cutting parts of the router.
type RouterOptions struct {
	AllowedOrigins []string
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(logger.Middleware(log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/schemes", func(r chi.Router) {
			r.Get("/", h.ListSchemes)
			r.Post("/", h.CreateScheme)
			r.Get("/{id}", h.GetScheme)
			r.Put("/{id}", h.UpdateScheme)
			r.Delete("/{id}", h.DeleteScheme)
			r.Post("/{id}/approve", h.ApproveScheme)
			r.Post("/{id}/archive", h.ArchiveScheme)
			r.Get("/{id}/weights", h.GetSchemeWeights)
		})

		r.Route("/advisors", func(r chi.Router) {
			r.Get("/", h.ListAdvisors)
			r.Post("/", h.SaveAdvisor)
			r.Get("/{id}", h.GetAdvisor)
			r.Post("/{id}/quotas", h.DistributeQuota)
			r.Get("/{id}/quotas/{period}", h.GetQuota)
			r.Post("/{id}/sales", h.RecordSales)
			r.Get("/{id}/sales", h.ListSales)
			r.Get("/{id}/incidents", h.ListIncidents)
			r.Get("/{id}/penalties", h.GetPenalties)
			r.Get("/{id}/commission", h.GetCommission)
		})

		r.Route("/incidents", func(r chi.Router) {
			r.Post("/", h.RecordIncident)
			r.Post("/{id}/condone", h.CondoneIncident)
		})

		r.Get("/equivalences", h.ListEquivalences)
		r.Put("/equivalences", h.SaveEquivalence)

		r.Post("/evaluate", h.Evaluate)
		r.Post("/simulate", h.Simulate)

		r.Route("/payroll/runs", func(r chi.Router) {
			r.Get("/", h.ListPayrollRuns)
			r.Post("/", h.TriggerPayrollRun)
			r.Get("/{id}", h.GetPayrollRun)
			r.Get("/{id}/results", h.ListPayrollResults)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
