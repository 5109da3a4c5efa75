// Package users — handlers.go обрабатывает маршруты /auth и /admin/users.
package users

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"serotonyl.ru/betdesk/internal/common"
	"serotonyl.ru/betdesk/internal/security"
)

// Handler обрабатывает запросы аутентификации и управления пользователями.
type Handler struct {
	service *Service
}

// NewHandler создаёт новый обработчик пользователей.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// PublicRoutes — маршруты без токена (/auth).
func (h *Handler) PublicRoutes(r chi.Router) {
	r.Post("/register", h.register)
	r.Get("/verify/{token}", h.verify)
	r.Post("/login", h.login)
	r.Post("/forgot", h.forgot)
	r.Post("/reset", h.reset)
}

// MeRoute — профиль текущего пользователя (/auth/me, нужен токен).
func (h *Handler) MeRoute(r chi.Router) {
	r.Get("/me", h.me)
}

// AdminRoutes — маршруты администратора (/admin/users).
func (h *Handler) AdminRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Patch("/{id}", h.update)
}

// SuperadminRoutes — смена роли и отключение (/admin/users, только superadmin).
func (h *Handler) SuperadminRoutes(r chi.Router) {
	r.Put("/{id}/role", h.changeRole)
	r.Post("/{id}/deactivate", h.deactivate)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var in RegisterInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, r, err)
		return
	}

	u, err := h.service.Register(r.Context(), in)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteMessage(w, http.StatusOK, "Регистрация успешна, проверьте почту", "user", u)
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.Verify(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteMessage(w, http.StatusOK, "Email подтверждён", "user", u)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, r, err)
		return
	}

	res, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, res)
}

type forgotRequest struct {
	Email string `json:"email"`
}

func (h *Handler) forgot(w http.ResponseWriter, r *http.Request) {
	var req forgotRequest
	// Даже битое тело даёт 200: ответ не должен отличаться
	_ = common.DecodeJSON(r, &req)
	_ = h.service.Forgot(r.Context(), req.Email)
	common.WriteMessage(w, http.StatusOK, "Если email зарегистрирован, письмо отправлено", "", nil)
}

type resetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, r, err)
		return
	}
	if err := h.service.Reset(r.Context(), req.Token, req.NewPassword); err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteMessage(w, http.StatusOK, "Пароль изменён", "", nil)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	actor, _ := security.PrincipalFrom(r.Context())
	u, err := h.service.Get(r.Context(), actor, actor.UserID)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, u)
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
	u, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor, _ := security.PrincipalFrom(r.Context())
	id, err := common.URLParamUUID(r, "id")
	if err != nil {
		common.WriteError(w, r, err)
		return
	}

	var patch UserPatch
	if err := common.DecodeJSON(r, &patch); err != nil {
		common.WriteError(w, r, err)
		return
	}

	u, err := h.service.Update(r.Context(), actor, id, patch)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteMessage(w, http.StatusOK, "Пользователь обновлён", "user", u)
}

type roleRequest struct {
	Role security.Role `json:"role"`
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request) {
	actor, _ := security.PrincipalFrom(r.Context())
	id, err := common.URLParamUUID(r, "id")
	if err != nil {
		common.WriteError(w, r, err)
		return
	}

	var req roleRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, r, err)
		return
	}

	u, err := h.service.ChangeRole(r.Context(), actor, id, req.Role)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteMessage(w, http.StatusOK, "Роль изменена", "user", u)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	actor, _ := security.PrincipalFrom(r.Context())
	id, err := common.URLParamUUID(r, "id")
	if err != nil {
		common.WriteError(w, r, err)
		return
	}

	u, err := h.service.Deactivate(r.Context(), actor, id)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteMessage(w, http.StatusOK, "Учётная запись отключена", "user", u)
}
