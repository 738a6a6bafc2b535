package newbizhttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// MountRoutes registers new-business dashboard endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(10, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Route("/sales/new-business", func(gr chi.Router) {
		gr.Get("/", h.handleDashboard)
		gr.Get("/summary", h.handleSummary)
		gr.Get("/customers", h.handleCustomers)
		gr.Get("/products", h.handleProducts)
		gr.Get("/combos", h.handleCombos)
		gr.Get("/revenue", h.handleRevenue)
		gr.Get("/revenue/detail", h.handleRevenueDetail)
		gr.With(limiter).Get("/export.csv", h.handleCSV)
	})
}
