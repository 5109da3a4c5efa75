package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	chimw "github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/betdesk/internal/common"
)

// Recover перехватывает панику обработчика и отвечает 500.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			log.WithFields(log.Fields{
				"component":  "panic_recovery",
				"panic":      fmt.Sprintf("%v", rec),
				"stack":      string(debug.Stack()),
				"request_id": chimw.GetReqID(r.Context()),
			}).Error("ПАНИКА в обработчике, восстановлено")
			common.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "внутренняя ошибка сервера"})
		}()
		next.ServeHTTP(w, r)
	})
}
