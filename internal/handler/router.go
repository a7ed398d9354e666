package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/joysparks/internal/metrics"
	"github.com/hitoshi/joysparks/internal/middleware"
)

// healthCheckTimeout はヘルスチェック1回あたりの上限時間。
const healthCheckTimeout = 3 * time.Second

// HealthChecker は依存先（DB等）への疎通を確認する。
type HealthChecker func(ctx context.Context) error

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter

	// 監視
	Metrics         metrics.MetricsCollector
	MetricsGatherer prometheus.Gatherer
	HealthCheck     HealthChecker

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 日記
	EntryService EntryServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Logging → Metrics → Recovery → SecurityHeaders → CORS
//	/api 配下の状態変更リクエスト: CSRF
//	認証エンドポイント: OptionalSession → RateLimit(Auth)
//	日記エンドポイント: Session → RateLimit(General)
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = (*metrics.Collector)(nil)
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(collector))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	entryHandler := NewEntryHandler(deps.EntryService)

	r.Get("/health", healthHandler(deps.HealthCheck))
	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// 認可コードフロー（ブラウザのリダイレクトで到達する）
	r.Route("/auth/google", func(r chi.Router) {
		r.Use(deps.RateLimiter.AuthMiddleware())
		r.Get("/login", authHandler.OAuthLogin)
		r.Get("/callback", authHandler.OAuthCallback)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

			// 認証（IP単位のレート制限）
			r.Group(func(r chi.Router) {
				r.Use(middleware.NewOptionalSessionMiddleware(deps.SessionFinder))
				r.Use(deps.RateLimiter.AuthMiddleware())
				r.Post("/register", authHandler.Register)
				r.Post("/login", authHandler.Login)
				r.Post("/auth/google/callback", authHandler.SignInWithIDToken)
			})

			r.Post("/logout", authHandler.Logout)
			r.Post("/logout/all", authHandler.LogoutAll)
			r.Get("/user", authHandler.CurrentUser)

			// 日記（要ログイン）
			r.Group(func(r chi.Router) {
				r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
				r.Use(deps.RateLimiter.GeneralMiddleware())

				r.Route("/entries", func(r chi.Router) {
					r.Post("/", entryHandler.Create)
					r.Get("/", entryHandler.List)

					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", entryHandler.Get)
						r.Put("/", entryHandler.Update)
						r.Delete("/", entryHandler.Delete)
					})
				})
			})
		})
	})

	return r
}

// healthHandler は依存先への疎通を確認し、結果をJSONで返す。
// GET /health
func healthHandler(check HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := check(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
