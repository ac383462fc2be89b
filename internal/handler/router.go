package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/noxshop/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	TokenVerifier     middleware.TokenVerifier
	AccountFinder     middleware.AccountFinder
	RateLimiter       *middleware.RateLimiter
	CORSEnabled       bool
	CORSAllowedOrigin string

	// メトリクス（nilの場合は記録しない）
	HTTPMetrics    middleware.HTTPRecorder
	TokenMetrics   middleware.VerificationRecorder
	MetricsHandler http.Handler

	// 運用
	HealthChecker HealthChecker

	// アップロード画像の配信
	UploadDir       string
	UploadURLPrefix string

	// ドメイン
	Products       ProductLister
	Purchases      PurchaseServiceInterface
	Accounts       AccountServiceInterface
	Catalog        CatalogServiceInterface
	Reports        SpendReporter
	Images         ImageStore
	MaxUploadBytes int64
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → SecurityHeaders → CORS（有効時）→ Auth
//
// Authはトークンがなければ匿名のまま通すため、公開ルートも同じスタックに載せる。
// 認証が必要なルートは RequireAuth → RateLimit(General)、管理ルートはさらにAdminを通す。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.HTTPMetrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.HTTPMetrics))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.UploadURLPrefix))
	if deps.CORSEnabled {
		r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	}
	r.Use(middleware.NewAuthMiddleware(deps.TokenVerifier, deps.TokenMetrics))

	shop := NewShopHandler(deps.Products, deps.Purchases)
	authHandler := NewAuthHandler(deps.Accounts)
	admin := NewAdminHandler(deps.Catalog, deps.Reports, deps.Images, deps.MaxUploadBytes)

	// --- 認証不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	if deps.UploadURLPrefix != "" {
		r.Method(http.MethodGet, deps.UploadURLPrefix+"/*", NewUploadsHandler(deps.UploadDir, deps.UploadURLPrefix))
	}
	r.Get("/api/products", shop.ListProducts)

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth())
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Post("/api/auth/login", authHandler.Login)
		r.With(deps.RateLimiter.PurchaseMiddleware()).Post("/api/buy", shop.Buy)
		r.Get("/api/purchases", shop.ListPurchases)

		// 管理者専用
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.NewAdminMiddleware(deps.AccountFinder))

			r.Post("/products", admin.CreateProduct)
			r.Put("/products/{id}", admin.UpdateProduct)
			r.Delete("/products/{id}", admin.DeleteProduct)
			r.Get("/user-spend", admin.UserSpend)
			r.Post("/upload-image", admin.UploadImage)
			r.Post("/import-image", admin.ImportImage)
		})
	})

	return r
}
