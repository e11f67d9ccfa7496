package distributionhttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// MountRoutes registers the distribution endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(10, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Get("/rules", h.handleRules)
	r.Get("/reports/{period}", h.handleReport)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Get("/reports/{period}/export.csv", h.handleCSV)
		gr.Get("/reports/{period}/export.xlsx", h.handleXLSX)
		gr.Get("/reports/{period}/export.pdf", h.handlePDF)
		gr.Get("/reports/{period}/print", h.handlePrint)
	})
	r.Post("/reports/{period}/warmup", h.handleWarmup)
	r.Post("/cache/bump", h.handleBump)
}
