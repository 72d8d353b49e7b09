package share

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hexflows/tripflow-backend/internal/utils"
)

type Handler struct {
	Store   LinkStore
	BaseURL string
}

type encodeResponse struct {
	Config string `json:"config"`
	URL    string `json:"url"`
}

type linkResponse struct {
	ID     uuid.UUID `json:"id"`
	Config string    `json:"config"`
	URL    string    `json:"url"`
	View   Config    `json:"view"`
}

func (h *Handler) respondEncoded(w http.ResponseWriter, status int, cfg Config) {
	enc, err := Encode(cfg)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	link, err := BuildURL(h.BaseURL, cfg)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.WriteJSON(w, status, encodeResponse{Config: enc, URL: link})
}

// EncodeHandler turns a posted Config into its query value and full URL.
func (h *Handler) EncodeHandler(w http.ResponseWriter, r *http.Request) {
	var cfg Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if err := cfg.Validate(); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respondEncoded(w, http.StatusOK, cfg)
}

// DecodeHandler parses ?config= back into a Config.
func (h *Handler) DecodeHandler(w http.ResponseWriter, r *http.Request) {
	cfg, err := Decode(r.URL.Query().Get(QueryParam))
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusOK, cfg)
}

// CreateLinkHandler stores a Config and returns its short link id.
func (h *Handler) CreateLinkHandler(w http.ResponseWriter, r *http.Request) {
	var cfg Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if err := cfg.Validate(); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(cfg.OriginCells) == 0 && len(cfg.DestinationCells) == 0 {
		utils.WriteError(w, http.StatusBadRequest, "originCells or destinationCells is required")
		return
	}

	enc, err := Encode(cfg)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	link, err := h.Store.CreateLink(r.Context(), enc)
	if err != nil {
		log.Printf("[share] create link: %v", err)
		utils.WriteError(w, http.StatusInternalServerError, "Failed to create share link")
		return
	}

	h.writeLink(w, http.StatusCreated, link, cfg)
}

// GetLinkHandler resolves a short link id.
func (h *Handler) GetLinkHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "link_id"))
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid link id")
		return
	}

	link, err := h.Store.FindLink(r.Context(), id)
	if errors.Is(err, ErrLinkNotFound) {
		utils.WriteError(w, http.StatusNotFound, "Share link not found")
		return
	}
	if err != nil {
		log.Printf("[share] find link %s: %v", id, err)
		utils.WriteError(w, http.StatusInternalServerError, "Failed to load share link")
		return
	}

	cfg, err := Decode(link.Config)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeLink(w, http.StatusOK, link, cfg)
}

func (h *Handler) writeLink(w http.ResponseWriter, status int, link Link, cfg Config) {
	u, err := BuildURL(h.BaseURL, cfg)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.WriteJSON(w, status, linkResponse{ID: link.ID, Config: link.Config, URL: u, View: cfg})
}
