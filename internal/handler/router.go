package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/vipgate/internal/metrics"
	"github.com/hitoshi/vipgate/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	Metrics           *metrics.Collector
	Gatherer          prometheus.Gatherer

	// 認証
	AuthService AuthServiceInterface

	// VIP
	VIPService VIPServiceInterface
	VIPConfig  VIPHandlerConfig

	// 稼働状態
	StatsProvider StatsProvider
	DBPinger      DBPinger
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Recovery → Logging → Metrics
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}

	authHandler := NewAuthHandler(deps.AuthService)
	vipHandler := NewVIPHandler(deps.VIPService, deps.VIPConfig)
	statusHandler := NewStatusHandler(deps.StatsProvider, deps.DBPinger)

	// 認証
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
	})

	// カードキーと会員権
	r.Route("/api/vip", func(r chi.Router) {
		r.Post("/generate", vipHandler.Generate)
		r.Post("/activate", vipHandler.Activate)
		r.Post("/check", vipHandler.Check)
		r.Post("/record", vipHandler.Record)
	})

	// 稼働状態
	r.Get("/api/status", statusHandler.Status)
	r.Get("/api/test", statusHandler.Test)
	r.Get("/health", statusHandler.Health)

	// Prometheusスクレイプ
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// 未定義ルートもエンベロープで返す
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{
			"success": false,
			"message": "エンドポイントが存在しません。",
			"code":    "NOT_FOUND",
		})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{
			"success": false,
			"message": "許可されていないHTTPメソッドです。",
			"code":    "METHOD_NOT_ALLOWED",
		})
	})

	return r
}
