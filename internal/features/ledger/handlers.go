// Package ledger — handlers.go обрабатывает HTTP-маршруты /finances и /admin/finances.
package ledger

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"serotonyl.ru/betdesk/internal/common"
	"serotonyl.ru/betdesk/internal/security"
)

// Handler обрабатывает запросы к счетам и транзакциям.
type Handler struct {
	service *Service
}

// NewHandler создаёт новый обработчик леджера.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes — маршруты владельца (/finances).
func (h *Handler) Routes(r chi.Router) {
	r.Get("/accounts", h.listAccounts(false))
	r.Post("/accounts", h.createAccount)
	r.Get("/accounts/{id}", h.getAccount)
	r.Get("/transactions", h.listTransactions(false))
	r.Post("/transactions", h.createTransaction(false))
	r.Get("/transactions/{id}", h.getTransaction)
}

// AdminRoutes — маршруты администратора (/admin/finances).
func (h *Handler) AdminRoutes(r chi.Router) {
	r.Get("/accounts", h.listAccounts(true))
	r.Get("/transactions", h.listTransactions(true))
	r.Post("/transactions", h.createTransaction(true))
	r.Patch("/transactions/{id}", h.updateTransaction)
}

type createAccountRequest struct {
	Name string `json:"name"`
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	actor, _ := security.PrincipalFrom(r.Context())

	var req createAccountRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, r, err)
		return
	}

	account, err := h.service.CreateAccount(r.Context(), actor.UserID, req.Name)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteMessage(w, http.StatusCreated, "Счёт создан", "account", account)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	actor, _ := security.PrincipalFrom(r.Context())
	id, err := common.URLParamUUID(r, "id")
	if err != nil {
		common.WriteError(w, r, err)
		return
	}

	account, err := h.service.GetAccount(r.Context(), actor, id)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, account)
}

func (h *Handler) listAccounts(all bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := security.PrincipalFrom(r.Context())
		accounts, err := h.service.ListAccounts(r.Context(), actor, all)
		if err != nil {
			common.WriteError(w, r, err)
			return
		}
		common.WriteJSON(w, http.StatusOK, accounts)
	}
}

func (h *Handler) listTransactions(all bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := security.PrincipalFrom(r.Context())
		txs, err := h.service.ListTransactions(r.Context(), actor, all)
		if err != nil {
			common.WriteError(w, r, err)
			return
		}
		common.WriteJSON(w, http.StatusOK, txs)
	}
}

func (h *Handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	actor, _ := security.PrincipalFrom(r.Context())
	id, err := common.URLParamUUID(r, "id")
	if err != nil {
		common.WriteError(w, r, err)
		return
	}

	t, err := h.service.GetTransaction(r.Context(), actor, id)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, t)
}

// createTransaction: на маршруте владельца userId из тела игнорируется,
// администратор может записать транзакцию за другого пользователя.
func (h *Handler) createTransaction(admin bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := security.PrincipalFrom(r.Context())

		var req NewTransaction
		if err := common.DecodeJSON(r, &req); err != nil {
			common.WriteError(w, r, err)
			return
		}
		if !admin {
			req.UserID = actor.UserID
		}

		t, err := h.service.CreateTransaction(r.Context(), actor, req)
		if err != nil {
			common.WriteError(w, r, err)
			return
		}
		common.WriteMessage(w, http.StatusCreated, "Транзакция создана", "transaction", t)
	}
}

func (h *Handler) updateTransaction(w http.ResponseWriter, r *http.Request) {
	actor, _ := security.PrincipalFrom(r.Context())
	id, err := common.URLParamUUID(r, "id")
	if err != nil {
		common.WriteError(w, r, err)
		return
	}

	var patch TransactionPatch
	if err := common.DecodeJSON(r, &patch); err != nil {
		common.WriteError(w, r, err)
		return
	}

	t, err := h.service.UpdateTransaction(r.Context(), actor, id, patch)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteMessage(w, http.StatusOK, "Транзакция обновлена", "transaction", t)
}
