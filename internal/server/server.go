// Package server собирает HTTP-роутер и управляет жизненным циклом http.Server.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/betdesk/internal/common"
	"serotonyl.ru/betdesk/internal/config"
	"serotonyl.ru/betdesk/internal/features/bets"
	"serotonyl.ru/betdesk/internal/features/ledger"
	"serotonyl.ru/betdesk/internal/features/promotions"
	"serotonyl.ru/betdesk/internal/features/tasks"
	"serotonyl.ru/betdesk/internal/features/users"
	"serotonyl.ru/betdesk/internal/metrics"
	"serotonyl.ru/betdesk/internal/security"
	"serotonyl.ru/betdesk/internal/server/middleware"
)

// Deps — всё, что нужно роутеру. Bets и Tasks равны nil, если фича выключена.
type Deps struct {
	Config     *config.Config
	Tokens     *security.TokenService
	Users      *users.Handler
	Ledger     *ledger.Handler
	Promotions *promotions.Handler
	Bets       *bets.Handler
	Tasks      *tasks.Handler
	// Ping проверяет хранилище для /healthz; nil — всегда здоров.
	Ping func(ctx context.Context) error
}

// Server — HTTP-сервер приложения.
type Server struct {
	http    *http.Server
	limiter *middleware.RateLimiter
}

// New создаёт сервер с готовым роутером.
func New(d Deps) *Server {
	limiter := middleware.NewRateLimiter(d.Config.RateLimitRequests, d.Config.RateLimitWindow)
	return &Server{
		http: &http.Server{
			Addr:              d.Config.HTTPAddr,
			Handler:           newRouter(d, limiter),
			ReadTimeout:       d.Config.HTTPReadTimeout,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      d.Config.HTTPWriteTimeout,
			IdleTimeout:       60 * time.Second,
		},
		limiter: limiter,
	}
}

// Handler возвращает корневой обработчик (для тестов).
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start слушает адрес до вызова Shutdown.
func (s *Server) Start() error {
	log.WithField("addr", s.http.Addr).Info("HTTP-сервер запущен")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown дожидается завершения активных запросов и освобождает ресурсы.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.limiter.Close()
	return s.http.Shutdown(ctx)
}

func newRouter(d Deps, limiter *middleware.RateLimiter) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.Config.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		common.WriteError(w, r, common.NotFound("маршрут не найден"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		common.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "метод не поддерживается"})
	})

	r.Get("/healthz", healthz(d.Ping))
	if d.Config.MetricsEnabled {
		r.Handle("/metrics", metrics.Handler())
	}

	authenticate := middleware.Authenticate(d.Tokens)

	r.Route("/auth", func(r chi.Router) {
		r.Use(limiter.Handler)
		d.Users.PublicRoutes(r)
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			d.Users.MeRoute(r)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(authenticate)

		r.Route("/finances", d.Ledger.Routes)
		r.Route("/promotions", d.Promotions.Routes)
		if d.Bets != nil {
			r.Route("/bets", d.Bets.Routes)
		}
		if d.Tasks != nil {
			r.Route("/tasks", d.Tasks.Routes)
		}

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(security.RoleAdmin))

			r.Route("/users", func(r chi.Router) {
				d.Users.AdminRoutes(r)
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireRole(security.RoleSuperadmin))
					d.Users.SuperadminRoutes(r)
				})
			})
			r.Route("/finances", d.Ledger.AdminRoutes)
			r.Route("/promotions", d.Promotions.AdminRoutes)
			if d.Bets != nil {
				r.Route("/bets", d.Bets.AdminRoutes)
			}
			if d.Tasks != nil {
				r.Route("/tasks", d.Tasks.AdminRoutes)
			}
		})
	})

	return r
}

func healthz(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				common.WriteError(w, r, common.Internal("хранилище недоступно", err))
				return
			}
		}
		common.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
