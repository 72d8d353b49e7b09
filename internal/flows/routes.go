package flows

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hexflows/tripflow-backend/internal/utils"
)

// SetupRoutes mounts under /functions. Only POST is routed; every other
// method gets a JSON 405 (OPTIONS is answered earlier by the CORS middleware).
func SetupRoutes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Post("/v1/trip-counts", h.TripCounts)
	r.Post("/v2/sum-monthly", h.SumMonthly)
	r.Post("/v2/monthly-series", h.MonthlySeries)
	r.Post("/v2/transition", h.Transition)

	return r
}
