package share

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func SetupRoutes(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Post("/encode", h.EncodeHandler)
	r.Get("/decode", h.DecodeHandler)
	r.Post("/links", h.CreateLinkHandler)
	r.Get("/links/{link_id}", h.GetLinkHandler)

	return r
}
