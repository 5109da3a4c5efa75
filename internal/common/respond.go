// Package common — respond.go содержит общие утилиты HTTP-ответов:
// чтение JSON-тела, запись JSON и отображение ошибок на статусы.
package common

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// maxBodyBytes — ограничение размера тела запроса.
const maxBodyBytes = 1 << 20

// StatusOf возвращает HTTP-статус для ошибки.
func StatusOf(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON пишет тело ответа в JSON с указанным статусом.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Error("Ошибка записи JSON-ответа")
	}
}

// WriteError отображает ошибку на статус и пишет {"error": "..."}.
// Причина внутренних ошибок уходит только в лог.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	entry := log.WithFields(log.Fields{
		"method":     r.Method,
		"path":       r.URL.Path,
		"status":     status,
		"request_id": middleware.GetReqID(r.Context()),
	}).WithError(err)
	if status == http.StatusInternalServerError {
		entry.Error("Ошибка обработки запроса")
	} else {
		entry.Debug("Запрос отклонён")
	}
	WriteJSON(w, status, map[string]string{"error": PublicMessage(err)})
}

// WriteMessage пишет ответ вида {"message": "...", "<key>": value}.
func WriteMessage(w http.ResponseWriter, status int, message, key string, value any) {
	body := map[string]any{"message": message}
	if key != "" {
		body[key] = value
	}
	WriteJSON(w, status, body)
}

// DecodeJSON читает JSON-тело запроса в dst.
// Пустое или битое тело — ошибка валидации.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return Validation("пустое тело запроса")
		}
		return Validation("некорректный JSON: %v", err)
	}
	return nil
}

// URLParamUUID достаёт UUID из параметра маршрута chi.
func URLParamUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, Validation("некорректный идентификатор %s", name)
	}
	return id, nil
}

// QueryUUID достаёт необязательный UUID из query-параметра.
func QueryUUID(r *http.Request, name string) (*uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, Validation("некорректный параметр %s", name)
	}
	return &id, nil
}
