// Package promotions — handlers.go обрабатывает маршруты /promotions и /admin/promotions.
package promotions

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"serotonyl.ru/betdesk/internal/common"
	"serotonyl.ru/betdesk/internal/security"
)

// Handler обрабатывает запросы к промо-акциям.
type Handler struct {
	service *Service
}

// NewHandler создаёт новый обработчик промо-акций.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes — маршруты пользователя (/promotions).
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/assign", h.assignBody)
	r.Get("/{id}", h.get)
	r.Get("/{id}/progress", h.getProgress)
	r.Post("/{id}/progress", h.recordProgress)
}

// AdminRoutes — маршруты администратора (/admin/promotions).
func (h *Handler) AdminRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Patch("/{id}", h.update)
	r.Get("/{id}/assignments", h.listAssignments)
	r.Post("/{id}/assignments", h.assign)
	r.Delete("/{id}/assignments/{userId}", h.unassign)
	r.Get("/{id}/progress", h.listProgress)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, _ := security.PrincipalFrom(r.Context())
	list, err := h.service.List(r.Context(), actor)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, _ := security.PrincipalFrom(r.Context())
	id, err := common.URLParamUUID(r, "id")
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	p, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, _ := security.PrincipalFrom(r.Context())
	var in NewPromotion
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, r, err)
		return
	}
	p, err := h.service.Create(r.Context(), actor, in)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteMessage(w, http.StatusCreated, "Промо-акция создана", "promotion", p)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, _ := security.PrincipalFrom(r.Context())
	id, err := common.URLParamUUID(r, "id")
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	var patch PromotionPatch
	if err := common.DecodeJSON(r, &patch); err != nil {
		common.WriteError(w, r, err)
		return
	}
	p, err := h.service.Update(r.Context(), actor, id, patch)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteMessage(w, http.StatusOK, "Промо-акция обновлена", "promotion", p)
}

type assignRequest struct {
	PromotionID uuid.UUID   `json:"promotionId"`
	UserIDs     []uuid.UUID `json:"userIds"`
}

// assignBody — POST /promotions/assign {promotionId, userIds}.
func (h *Handler) assignBody(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, r, err)
		return
	}
	if req.PromotionID == uuid.Nil {
		common.WriteError(w, r, common.Validation("promotionId обязателен"))
		return
	}
	h.doAssign(w, r, req.PromotionID, req.UserIDs)
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	id, err := common.URLParamUUID(r, "id")
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	var req assignRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, r, err)
		return
	}
	h.doAssign(w, r, id, req.UserIDs)
}

func (h *Handler) doAssign(w http.ResponseWriter, r *http.Request, promotionID uuid.UUID, userIDs []uuid.UUID) {
	actor, _ := security.PrincipalFrom(r.Context())
	list, err := h.service.Assign(r.Context(), actor, promotionID, userIDs)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteMessage(w, http.StatusOK, "Промо-акция назначена", "assignments", list)
}

func (h *Handler) unassign(w http.ResponseWriter, r *http.Request) {
	actor, _ := security.PrincipalFrom(r.Context())
	id, err := common.URLParamUUID(r, "id")
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	userID, err := common.URLParamUUID(r, "userId")
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	if err := h.service.Unassign(r.Context(), actor, id, userID); err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteMessage(w, http.StatusOK, "Назначение снято", "", nil)
}

func (h *Handler) listAssignments(w http.ResponseWriter, r *http.Request) {
	actor, _ := security.PrincipalFrom(r.Context())
	id, err := common.URLParamUUID(r, "id")
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	list, err := h.service.ListAssignments(r.Context(), actor, id)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, list)
}

type progressRequest struct {
	UserID         uuid.UUID `json:"userId"`
	CompletedSteps []int     `json:"completedSteps"`
}

// recordProgress: userId из тела учитывается только для администратора,
// для остальных прогресс пишется за себя.
func (h *Handler) recordProgress(w http.ResponseWriter, r *http.Request) {
	actor, _ := security.PrincipalFrom(r.Context())
	id, err := common.URLParamUUID(r, "id")
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	var req progressRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, r, err)
		return
	}
	if req.UserID == uuid.Nil || !actor.IsAdmin() {
		req.UserID = actor.UserID
	}

	p, err := h.service.RecordProgress(r.Context(), actor, req.UserID, id, req.CompletedSteps)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteMessage(w, http.StatusOK, "Прогресс сохранён", "progress", p)
}

// getProgress: ?userId= позволяет администратору смотреть чужой прогресс.
func (h *Handler) getProgress(w http.ResponseWriter, r *http.Request) {
	actor, _ := security.PrincipalFrom(r.Context())
	id, err := common.URLParamUUID(r, "id")
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	userID := actor.UserID
	other, err := common.QueryUUID(r, "userId")
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	if other != nil {
		userID = *other
	}

	p, err := h.service.GetProgress(r.Context(), actor, userID, id)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) listProgress(w http.ResponseWriter, r *http.Request) {
	actor, _ := security.PrincipalFrom(r.Context())
	id, err := common.URLParamUUID(r, "id")
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	list, err := h.service.ListProgress(r.Context(), actor, id)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, list)
}
