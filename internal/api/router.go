package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/peoplehub/hr-notify/internal/api/handler"
	apimw "github.com/peoplehub/hr-notify/internal/api/middleware"
	"github.com/peoplehub/hr-notify/internal/dispatcher"
	"github.com/peoplehub/hr-notify/internal/guard"
	"github.com/peoplehub/hr-notify/internal/inapp"
	"github.com/peoplehub/hr-notify/internal/repository"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(
	g *guard.Guard,
	repo repository.QueueRepository,
	disp *dispatcher.Dispatcher,
	writer *inapp.Writer,
	pool *pgxpool.Pool,
	reg prometheus.Gatherer,
	observeEvent func(module, result string),
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)          // recover panics, return 500
	r.Use(chimw.RealIP)             // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1<<20)) // 1 MB max request body
	r.Use(apimw.CorrelationID)      // X-Correlation-ID inject / echo
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	eh := handler.NewEventHandler(g, observeEvent, logger)
	qh := handler.NewQueueHandler(repo, disp, logger)
	ih := handler.NewInboxHandler(writer)
	hh := handler.NewHealthHandler(pool)

	// --- routes ---
	r.Get("/health", hh.Health)
	r.Get("/ready", hh.Ready)

	// Raw Prometheus scrape endpoint (for Prometheus server / Grafana)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		// Producer surface
		r.Post("/events", eh.Submit)
		r.Delete("/events/{module}/{referenceID}", eh.Cancel)

		// Operator surface — note: /stats must be registered before /{id}
		// so chi does not treat the literal string "stats" as an ID.
		r.Get("/queue/stats", qh.Stats)
		r.Get("/queue", qh.List)
		r.Get("/queue/{id}", qh.GetByID)
		r.Post("/queue/{id}/requeue", qh.Requeue)
		r.Post("/dispatch", qh.Dispatch)

		// Inbox surface
		r.Get("/inbox/{recipientID}", ih.List)
		r.Post("/inbox/{recipientID}/read/{id}", ih.MarkRead)
	})

	return r
}
