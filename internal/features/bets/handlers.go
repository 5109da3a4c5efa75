// Package bets — handlers.go обрабатывает маршруты /bets и /admin/bets.
package bets

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"serotonyl.ru/betdesk/internal/common"
	"serotonyl.ru/betdesk/internal/security"
)

// Handler обрабатывает запросы к журналу ставок.
type Handler struct {
	service *Service
}

// NewHandler создаёт обработчик ставок.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes — маршруты владельца (/bets).
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list(false))
	r.Post("/", h.place(false))
	r.Get("/stats", h.stats)
	r.Get("/{id}", h.get)
	r.Patch("/{id}", h.update)
}

// AdminRoutes — маршруты администратора (/admin/bets).
func (h *Handler) AdminRoutes(r chi.Router) {
	r.Get("/", h.list(true))
	r.Post("/", h.place(true))
	r.Get("/stats", h.stats)
	r.Patch("/{id}", h.update)
}

func (h *Handler) list(all bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := security.PrincipalFrom(r.Context())
		list, err := h.service.List(r.Context(), actor, all)
		if err != nil {
			common.WriteError(w, r, err)
			return
		}
		common.WriteJSON(w, http.StatusOK, list)
	}
}

func (h *Handler) place(admin bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := security.PrincipalFrom(r.Context())
		var in NewBet
		if err := common.DecodeJSON(r, &in); err != nil {
			common.WriteError(w, r, err)
			return
		}
		if !admin {
			in.UserID = actor.UserID
		}
		b, err := h.service.Place(r.Context(), actor, in)
		if err != nil {
			common.WriteError(w, r, err)
			return
		}
		common.WriteMessage(w, http.StatusCreated, "Ставка записана", "bet", b)
	}
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, _ := security.PrincipalFrom(r.Context())
	id, err := common.URLParamUUID(r, "id")
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	b, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, b)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, _ := security.PrincipalFrom(r.Context())
	id, err := common.URLParamUUID(r, "id")
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	var patch BetPatch
	if err := common.DecodeJSON(r, &patch); err != nil {
		common.WriteError(w, r, err)
		return
	}
	b, err := h.service.Update(r.Context(), actor, id, patch)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteMessage(w, http.StatusOK, "Ставка обновлена", "bet", b)
}

// stats: ?userId= — сводка по другому пользователю (admin).
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	actor, _ := security.PrincipalFrom(r.Context())
	userID := actor.UserID
	other, err := common.QueryUUID(r, "userId")
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	if other != nil {
		userID = *other
	}
	st, err := h.service.Stats(r.Context(), actor, userID)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, st)
}
