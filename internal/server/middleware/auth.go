package middleware

import (
	"net/http"
	"strings"

	"serotonyl.ru/betdesk/internal/common"
	"serotonyl.ru/betdesk/internal/security"
)

// Authenticate проверяет Bearer-токен и кладёт Principal в контекст.
// Без токена или с недействительным токеном запрос до обработчика не доходит (401).
func Authenticate(tokens *security.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				common.WriteError(w, r, common.ErrMissingToken)
				return
			}
			claims, err := tokens.Verify(raw)
			if err != nil {
				common.WriteError(w, r, err)
				return
			}
			ctx := security.WithPrincipal(r.Context(), claims.Principal())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole пропускает запрос, только если роль из токена не ниже required (иначе 403).
// Ставится после Authenticate.
func RequireRole(required security.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := security.PrincipalFrom(r.Context())
			if !ok {
				common.WriteError(w, r, common.ErrMissingToken)
				return
			}
			if err := security.Authorize(p.Role, required); err != nil {
				common.WriteError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
