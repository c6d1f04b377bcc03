// Package app はサブコマンドごとの依存関係の組み立てと起動を行う。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/hitoshi/rentals/internal/auth"
	"github.com/hitoshi/rentals/internal/config"
	"github.com/hitoshi/rentals/internal/database"
	"github.com/hitoshi/rentals/internal/handler"
	"github.com/hitoshi/rentals/internal/imagestore"
	"github.com/hitoshi/rentals/internal/logger"
	"github.com/hitoshi/rentals/internal/metrics"
	"github.com/hitoshi/rentals/internal/middleware"
	"github.com/hitoshi/rentals/internal/property"
	"github.com/hitoshi/rentals/internal/repository"
	"github.com/hitoshi/rentals/internal/revalidate"
	"github.com/hitoshi/rentals/internal/security"
	"github.com/hitoshi/rentals/internal/user"
	"github.com/hitoshi/rentals/internal/worker/cleanup"
)

// startupTimeout は起動時の接続確認に使う上限時間。
const startupTimeout = 10 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetLevel(cfg.LogLevel)
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("store", cfg.StoreDriver),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// ストアに接続し、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	// 1. ストア接続
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	// 2. 再検証通知
	publisher, err := revalidate.New(revalidate.Config{
		Driver:       cfg.RevalidateDriver,
		Channel:      cfg.RevalidateChannel,
		RedisClient:  st.redis,
		KafkaBrokers: cfg.KafkaBrokers,
	})
	if err != nil {
		return fmt.Errorf("failed to create revalidate publisher: %w", err)
	}
	defer publisher.Close()

	// 3. 画像ストレージ
	images, err := newImageSigner(ctx, cfg)
	if err != nil {
		return err
	}

	// 4. メトリクス
	reg := newRegistry()

	// 5. ルーターの構築
	deps := buildRouterDeps(cfg, st, publisher, images, reg)
	defer deps.RateLimiter.Stop()

	router := handler.NewRouter(deps)

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serveUntilSignal(server, "API server")
}

// buildRouterDeps はストアと外部接続からサービス層とルーターの依存関係を組み立てる。
func buildRouterDeps(
	cfg *config.Config,
	st *stores,
	publisher revalidate.Publisher,
	images property.ImageSigner,
	reg *prometheus.Registry,
) *handler.RouterDeps {
	collector := metrics.NewCollector(reg)
	hasher := security.NewPasswordHasher(cfg.BcryptCost)

	authService := auth.NewService(auth.ServiceDeps{
		Users:       st.users,
		Identities:  st.identities,
		Revocations: st.revocations,
		Hasher:      hasher,
		Tokens:      auth.NewTokenManager(cfg.AuthSecret, cfg.SessionMaxAge),
		Providers:   newProviderRegistry(cfg),
		Metrics:     collector,
		Revalidate:  publisher,
	}, auth.ServiceConfig{RefreshAfter: cfg.SessionRefreshAfter})

	userService := user.NewService(st.users, st.properties, hasher, collector, publisher)
	propertyService := property.NewService(st.properties, images, collector, publisher)

	return &handler.RouterDeps{
		SessionResumer:     authService,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter:     middleware.NewRateLimiter(rateLimiterConfig(cfg)),
		HSTS:            cfg.CookieSecure,
		TrustProxy:      cfg.TrustProxy,
		Logger:          slog.Default(),
		Metrics:         collector,
		MetricsGatherer: reg,
		HealthChecker:   st.health,

		AuthService:    authService,
		AccountService: userService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL: cfg.BaseURL,
			Cookie: middleware.CookieConfig{
				Secure: cfg.CookieSecure,
				Domain: cfg.CookieDomain,
				MaxAge: cfg.SessionMaxAge,
			},
		},

		UserService:     userService,
		PropertyService: propertyService,
	}
}

// newProviderRegistry は認証情報が設定されたIdPのみを登録する。
func newProviderRegistry(cfg *config.Config) *auth.ProviderRegistry {
	var providers []auth.OAuthProvider
	if cfg.GoogleEnabled() {
		providers = append(providers, auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		}))
	}
	if cfg.GitHubEnabled() {
		providers = append(providers, auth.NewGitHubOAuthProvider(auth.GitHubOAuthConfig{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  cfg.GitHubRedirectURL,
		}))
	}
	return auth.NewProviderRegistry(providers...)
}

// newImageSigner は画像ストレージが設定されていればStoreを返す。
// 未設定の場合はnilインターフェースを返し、アップロードURLの発行を無効にする。
func newImageSigner(ctx context.Context, cfg *config.Config) (property.ImageSigner, error) {
	if !cfg.ImagesEnabled() {
		slog.Info("image storage is not configured; image uploads disabled")
		return nil, nil
	}

	store, err := imagestore.New(ctx, imagestore.Config{
		Region:        cfg.S3Region,
		Endpoint:      cfg.S3Endpoint,
		Bucket:        cfg.S3Bucket,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		PublicBaseURL: cfg.S3PublicBaseURL,
		UsePathStyle:  cfg.S3UsePathStyle,
		Expires:       cfg.S3UploadExpires,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure image storage: %w", err)
	}
	return store, nil
}

// rateLimiterConfig はreq/min単位の設定値をトークンバケットの設定に変換する。
// 0以下の値はデフォルト値のままとする。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rc := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rc.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rc.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitSignIn > 0 {
		rc.SignInRate = rate.Limit(float64(cfg.RateLimitSignIn) / 60.0)
		rc.SignInBurst = cfg.RateLimitSignIn
	}
	return rc
}

// newRegistry はプロセス・ランタイムのメトリクスを含むレジストリを生成する。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// serveUntilSignal はサーバーを起動し、SIGINT/SIGTERMを受信したらシャットダウンする。
func serveUntilSignal(server *http.Server, name string) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("%s listen error: %w", name, err)
	case <-stop:
	}
	slog.Info("shutting down " + name + "...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 失効記録の定期削除ジョブを実行し、/health と /metrics を公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	startCtx, startCancel := context.WithTimeout(context.Background(), startupTimeout)
	defer startCancel()

	st, err := openStores(startCtx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	reg := newRegistry()
	job := cleanup.NewPurgeJob(st.revocations, metrics.NewCollector(reg), slog.Default())
	job.Interval = cfg.RevocationPurgeInterval

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slog.Info("worker starting",
		slog.Duration("purge_interval", job.Interval),
		slog.String("revocation_driver", cfg.RevocationDriver),
	)

	go job.Start(ctx)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      workerRouter(st.health, reg),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return serveUntilSignal(server, "worker")
}

// workerRouter はワーカーのコンテナ監視用エンドポイントを返す。
func workerRouter(health handler.HealthChecker, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/health", handler.NewHealthHandler(health))
	r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))
	return r
}

// runMigrate はスキーマを最新化する。
// PostgreSQLでは未適用のマイグレーションを順番に適用し、MongoDBではインデックスを作成する。
func runMigrate(cfg *config.Config) error {
	if cfg.StoreDriver == config.StoreMongo {
		return migrateMongo(cfg)
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed", slog.Uint64("schema_version", uint64(version)))
	return nil
}

func migrateMongo(cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	slog.Info("ensuring mongodb indexes",
		slog.String("mongo_uri", maskDatabaseURL(cfg.MongoURI)),
		slog.String("database", cfg.MongoDatabase),
	)

	client, err := database.OpenMongo(ctx, cfg.MongoURI)
	if err != nil {
		return err
	}
	defer client.Disconnect(context.Background())

	if err := repository.EnsureMongoIndexes(ctx, client.Database(cfg.MongoDatabase)); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("mongodb indexes ensured")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL は接続URLの認証情報とクエリを取り除いてログ出力用に整形する。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if u.User != nil {
		return u.Scheme + "://***@" + u.Host + u.Path
	}
	return u.Scheme + "://" + u.Host + u.Path
}
