// Package tasks — handlers.go обрабатывает маршруты /tasks и /admin/tasks.
package tasks

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"serotonyl.ru/betdesk/internal/common"
	"serotonyl.ru/betdesk/internal/security"
)

// Handler обрабатывает запросы к задачам.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes — задачи текущего пользователя (/tasks).
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list(false))
	r.Get("/{id}", h.get)
	r.Patch("/{id}", h.update)
}

// AdminRoutes — управление задачами (/admin/tasks).
func (h *Handler) AdminRoutes(r chi.Router) {
	r.Get("/", h.list(true))
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
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

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, _ := security.PrincipalFrom(r.Context())
	var in NewTask
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, r, err)
		return
	}
	t, err := h.service.Create(r.Context(), actor, in)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteMessage(w, http.StatusCreated, "Задача создана", "task", t)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, _ := security.PrincipalFrom(r.Context())
	id, err := common.URLParamUUID(r, "id")
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	t, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, _ := security.PrincipalFrom(r.Context())
	id, err := common.URLParamUUID(r, "id")
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	var patch TaskPatch
	if err := common.DecodeJSON(r, &patch); err != nil {
		common.WriteError(w, r, err)
		return
	}
	t, err := h.service.Update(r.Context(), actor, id, patch)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteMessage(w, http.StatusOK, "Задача обновлена", "task", t)
}
