package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/rentals/internal/metrics"
	"github.com/hitoshi/rentals/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionResumer     middleware.SessionResumer
	CORSAllowedOrigins []string
	CSRFConfig         middleware.CSRFConfig
	RateLimiter        *middleware.RateLimiter
	HSTS               bool
	TrustProxy         bool // trueの場合のみRealIPでRemoteAddrを書き換える
	Logger             *slog.Logger

	// 監視
	Metrics         metrics.MetricsCollector
	MetricsGatherer prometheus.Gatherer
	HealthChecker   HealthChecker

	// 認証
	AuthService    AuthServiceInterface
	AccountService AccountServiceInterface
	AuthConfig     AuthHandlerConfig

	// ユーザー管理
	UserService UserServiceInterface

	// 物件
	PropertyService PropertyServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP（TrustProxy時のみ） → Recovery → SecurityHeaders → CORS → Metrics → Session → Logging
//
// /api/* にはさらに RateLimit(General) → CSRF を適用し、
// サインインとメールアドレスの確認には RateLimit(SignIn) を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	if deps.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins...))
	r.Use(metrics.Middleware(deps.Metrics))
	r.Use(middleware.NewSessionMiddleware(deps.SessionResumer, deps.AuthConfig.Cookie))
	r.Use(middleware.NewLoggingMiddleware(logger))

	authHandler := NewAuthHandler(deps.AuthService, deps.AccountService, deps.AuthConfig)
	userHandler := NewUserHandler(deps.UserService)
	propertyHandler := NewPropertyHandler(deps.PropertyService)

	// --- 監視 ---
	r.Method(http.MethodGet, "/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// --- 外部IdPの認可フロー（ブラウザ遷移のためCSRF検証の対象外） ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/auth/{provider}/login", authHandler.ProviderLogin)
		r.Get("/auth/{provider}/callback", authHandler.ProviderCallback)
	})

	// --- API ---
	// ミドルウェアスタック: RateLimit(General) → CSRF
	r.Route("/api", func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))
		r.Get("/clear-cookies", ClearCookies)

		// 認証
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", authHandler.SignUp)
			r.With(deps.RateLimiter.SignInMiddleware()).Post("/signin", authHandler.SignIn)
			r.Post("/signout", authHandler.SignOut)
			r.Get("/me", authHandler.Me)
			r.With(deps.RateLimiter.SignInMiddleware()).Get("/email-available", authHandler.EmailAvailable)
			r.Get("/providers", authHandler.Providers)
		})

		// 物件
		r.Route("/properties", func(r chi.Router) {
			r.Get("/", propertyHandler.List)
			r.Get("/featured", propertyHandler.Featured)
			r.Get("/search", propertyHandler.Search)
			r.Get("/{id}", propertyHandler.Get)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireSignIn)
				r.Post("/", propertyHandler.Create)
				r.Post("/images", propertyHandler.ImageUploadURL)
				r.Delete("/{id}", propertyHandler.Delete)
			})

			r.With(middleware.RequireAdmin).Patch("/{id}/featured", propertyHandler.ToggleFeatured)
		})

		r.Get("/users/{id}/properties", propertyHandler.ByOwner)

		// ユーザー管理（管理者のみ）
		r.Route("/admin/users", func(r chi.Router) {
			r.Use(middleware.RequireAdmin)

			r.Get("/", userHandler.ListUsers)
			r.Post("/", userHandler.CreateUser)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", userHandler.GetUser)
				r.Put("/", userHandler.UpdateUser)
				r.Patch("/status", userHandler.SetUserActive)
				r.Delete("/", userHandler.DeleteUser)
			})
		})
	})

	return r
}
