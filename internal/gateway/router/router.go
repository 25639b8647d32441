// Package router wires up all gateway routes and applies the middleware
// chain (RequestID → Metrics).
package router

import (
	"net/http"

	gwhandler "github.com/mecaparts/knowledge-gateway/internal/gateway/handler"
	"github.com/mecaparts/knowledge-gateway/pkg/health"
	"github.com/mecaparts/knowledge-gateway/pkg/metrics"
	pkgmw "github.com/mecaparts/knowledge-gateway/pkg/middleware"
)

// New builds the full gateway HTTP handler with all routes and middleware.
//
// Route table:
//
//	POST /api/v1/documents              → admission pipeline
//	POST /api/v1/ingest/pdf             → start PDF ingestion job
//	POST /api/v1/ingest/web             → start web extraction job
//	GET  /api/v1/jobs                   → list live jobs
//	GET  /api/v1/jobs/{id}              → job snapshot
//	POST /api/v1/webhooks/ingestion     → completion webhook
//	POST /api/v1/query                  → classified, filtered answer
//	GET  /api/v1/query/stream           → answer as SSE frames
//	GET  /api/v1/intents/stats          → per-intent aggregates
//	POST /api/v1/maintenance/dedup      → batch dedup sweep (?mode=dry|commit)
//	POST /api/v1/maintenance/intake-scan → on-demand intake validation
//	GET  /health                        → liveness
//	GET  /ready                         → readiness (runs dependency checks)
func New(h *gwhandler.Handler, checker *health.Checker, m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()

	// Probes (unauthenticated, unmetered paths still pass the chain).
	mux.HandleFunc("GET /health", checker.LiveHandler())
	mux.HandleFunc("GET /ready", checker.ReadyHandler())

	// Document API
	mux.HandleFunc("POST /api/v1/documents", h.IngestDocument)

	// Job API
	mux.HandleFunc("POST /api/v1/ingest/pdf", h.SubmitPDF)
	mux.HandleFunc("POST /api/v1/ingest/web", h.SubmitWeb)
	mux.HandleFunc("GET /api/v1/jobs", h.ListJobs)
	mux.HandleFunc("GET /api/v1/jobs/{id}", h.GetJob)

	// Webhooks
	mux.HandleFunc("POST /api/v1/webhooks/ingestion", h.IngestionWebhook)

	// Query API
	mux.HandleFunc("POST /api/v1/query", h.Query)
	mux.HandleFunc("GET /api/v1/query/stream", h.QueryStream)
	mux.HandleFunc("GET /api/v1/intents/stats", h.IntentStats)

	// Maintenance API
	mux.HandleFunc("POST /api/v1/maintenance/dedup", h.DedupCleanup)
	mux.HandleFunc("POST /api/v1/maintenance/intake-scan", h.IntakeScan)

	// Middleware chain, applied inside-out:
	// request, RequestID, Metrics, mux
	var chain http.Handler = mux
	if m != nil {
		chain = pkgmw.Metrics(m)(chain)
	}
	chain = pkgmw.RequestID(chain)

	return chain
}
