package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/nutrilog/internal/middleware"
)

// DefaultMaxUploadSize はリクエストボディの既定の上限（10MB）。
const DefaultMaxUploadSize int64 = 10 << 20

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	FoodService   FoodServiceInterface
	HealthChecker HealthChecker
	Pages         *Pages
	Logger        *slog.Logger

	// ミドルウェア依存
	Session           middleware.SessionConfig
	CSRF              middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	CORSAllowedOrigin string
	MaxUploadSize     int64

	// MetricsHandler はnilの場合 /metrics を公開しない。
	MetricsHandler http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → SecurityHeaders → Logging → RequestSize → Session → CSRF → RateLimit(General)
//
// 栄養推定を伴うルート（POST /add, POST /recognize）にはRateLimit(Oracle)を追加する。
// CORSAllowedOriginが設定されている場合、/recognize のみ別オリジンからの呼び出しを許可する。
// /health と /metrics はセッションを発行しないようチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	maxUpload := deps.MaxUploadSize
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadSize
	}

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(chimiddleware.RequestSize(maxUpload))

	r.Get("/health", NewHealthHandler(deps.HealthChecker, deps.Logger))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	foodHandler := NewFoodHandler(deps.FoodService, deps.Pages, deps.Logger)
	oracleLimit := deps.RateLimiter.OracleMiddleware()

	recognize := []func(http.Handler) http.Handler{oracleLimit}

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.Session))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/", foodHandler.Index)
		r.Get("/add", foodHandler.AddForm)
		r.With(oracleLimit).Post("/add", foodHandler.AddFood)
		if deps.CORSAllowedOrigin != "" {
			cors := middleware.NewCORSMiddleware(deps.CORSAllowedOrigin)
			r.With(cors).Options("/recognize", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})
			recognize = append([]func(http.Handler) http.Handler{cors}, recognize...)
		}
		r.With(recognize...).Post("/recognize", foodHandler.Recognize)
		r.Post("/delete/{id}", foodHandler.DeleteFood)
		r.Get("/settings", foodHandler.Settings)
		r.Post("/settings", foodHandler.UpdateSettings)
	})

	return r
}
