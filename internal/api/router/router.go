// Package router wires the document API routes and applies the middleware
// chain (RequestID → CORS → Metrics → RateLimit → Timeout).
package router

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/api/handler"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/middleware"
)

// Options tunes the middleware chain. Zero values disable the timeout and
// the rate limit.
type Options struct {
	Timeout   time.Duration
	RateLimit float64
	RateBurst int
}

// New builds the HTTP handler for the document API.
//
// Route table:
//
//	POST   /document                      → upload (multipart field "file")
//	GET    /document/{filename}           → retrieve stored bytes
//	DELETE /document/{filename}           → delete
//	GET    /document/{filename}/status    → indexing status
//	GET    /search                        → full-text search (?q=&limit=)
//	POST   /admin/reconcile               → resync index with store
//	GET    /cache/stats                   → result cache counters
//	GET    /health/live, /health/ready    → health reports
//
// m may be nil, in which case request metrics are not recorded.
func New(h *handler.Handler, checker *health.Checker, m *metrics.Metrics, opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mux.HandleFunc("POST /document", h.Upload)
	mux.HandleFunc("GET /document/{filename}", h.Retrieve)
	mux.HandleFunc("DELETE /document/{filename}", h.Delete)
	mux.HandleFunc("GET /document/{filename}/status", h.Status)

	mux.HandleFunc("GET /search", h.Search)

	mux.HandleFunc("POST /admin/reconcile", h.Reconcile)
	mux.HandleFunc("GET /cache/stats", h.CacheStats)

	// applied inside-out: request → RequestID → CORS → Metrics → RateLimit → Timeout → mux
	var chain http.Handler = mux
	chain = middleware.Timeout(opts.Timeout)(chain)
	chain = middleware.RateLimit(opts.RateLimit, opts.RateBurst)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
	chain = middleware.RequestID(chain)

	return chain
}
