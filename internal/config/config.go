// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ストア種別
const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// 失効記録の保存先
const (
	RevocationStore = "store"
	RevocationRedis = "redis"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Store
	StoreDriver   string
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string

	// 接続プール（0以下は既定値）
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// Auth
	AuthSecret          string
	BcryptCost          int
	SessionMaxAge       time.Duration
	SessionRefreshAfter time.Duration

	// OAuth（クライアントIDが空のIdPは無効）
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	GitHubClientID     string
	GitHubClientSecret string
	GitHubRedirectURL  string

	// Revocation
	RevocationDriver        string
	RevocationPurgeInterval time.Duration

	// Redis / Kafka
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KafkaBrokers  []string

	// Revalidate
	RevalidateDriver  string
	RevalidateChannel string

	// Image storage（バケットが空の場合は画像アップロードURLを発行しない）
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3UploadExpires time.Duration

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral int
	RateLimitSignIn  int

	// Server
	ServerPort string
	BaseURL    string
	LogLevel   string
	// 信頼できるリバースプロキシ配下でのみX-Forwarded-For/X-Real-IPを採用する
	TrustProxy bool

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigins []string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合は、未設定のものをまとめてエラーで返す。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.AuthSecret = os.Getenv("AUTH_SECRET")
	if cfg.AuthSecret == "" {
		missing = append(missing, "AUTH_SECRET")
	}

	cfg.BaseURL = strings.TrimRight(os.Getenv("BASE_URL"), "/")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	cfg.StoreDriver = getEnvString("STORE_DRIVER", StorePostgres)
	switch cfg.StoreDriver {
	case StorePostgres:
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case StoreMongo:
		cfg.MongoURI = os.Getenv("MONGO_URI")
		if cfg.MongoURI == "" {
			missing = append(missing, "MONGO_URI")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q (want %s or %s)", cfg.StoreDriver, StorePostgres, StoreMongo)
	}
	cfg.MongoDatabase = getEnvString("MONGO_DATABASE", "rentals")
	cfg.DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute)

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.KafkaBrokers = getEnvList("KAFKA_BROKERS")

	cfg.RevocationDriver = getEnvString("REVOCATION_DRIVER", RevocationStore)
	switch cfg.RevocationDriver {
	case RevocationStore, RevocationRedis:
	default:
		return nil, fmt.Errorf("unknown REVOCATION_DRIVER %q (want %s or %s)", cfg.RevocationDriver, RevocationStore, RevocationRedis)
	}
	cfg.RevalidateDriver = getEnvString("REVALIDATE_DRIVER", "log")
	if (cfg.RevocationDriver == RevocationRedis || cfg.RevalidateDriver == "redis") && cfg.RedisAddr == "" {
		missing = append(missing, "REDIS_ADDR")
	}
	if cfg.RevalidateDriver == "kafka" && len(cfg.KafkaBrokers) == 0 {
		missing = append(missing, "KAFKA_BROKERS")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.BcryptCost = getEnvInt("BCRYPT_COST", 12)
	cfg.SessionMaxAge = getEnvDuration("SESSION_MAX_AGE", 30*24*time.Hour)
	cfg.SessionRefreshAfter = getEnvDuration("SESSION_REFRESH_AFTER", 24*time.Hour)

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	cfg.GoogleRedirectURL = getEnvString("GOOGLE_REDIRECT_URL", cfg.BaseURL+"/auth/google/callback")
	cfg.GitHubClientID = os.Getenv("GITHUB_CLIENT_ID")
	cfg.GitHubClientSecret = os.Getenv("GITHUB_CLIENT_SECRET")
	cfg.GitHubRedirectURL = getEnvString("GITHUB_REDIRECT_URL", cfg.BaseURL+"/auth/github/callback")

	cfg.RevocationPurgeInterval = getEnvDuration("REVOCATION_PURGE_INTERVAL", time.Hour)

	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = getEnvInt("REDIS_DB", 0)
	cfg.RevalidateChannel = getEnvString("REVALIDATE_CHANNEL", "rentals.revalidate")

	cfg.S3Bucket = os.Getenv("S3_BUCKET")
	cfg.S3Region = getEnvString("S3_REGION", "us-east-1")
	cfg.S3Endpoint = os.Getenv("S3_ENDPOINT")
	cfg.S3AccessKey = os.Getenv("S3_ACCESS_KEY")
	cfg.S3SecretKey = os.Getenv("S3_SECRET_KEY")
	cfg.S3PublicBaseURL = os.Getenv("S3_PUBLIC_BASE_URL")
	cfg.S3UsePathStyle = getEnvBool("S3_USE_PATH_STYLE", false)
	cfg.S3UploadExpires = getEnvDuration("S3_UPLOAD_EXPIRES", 15*time.Minute)

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitSignIn = getEnvInt("RATE_LIMIT_SIGNIN", 10)

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.TrustProxy = getEnvBool("TRUST_PROXY", false)
	cfg.CookieSecure = getEnvBool("COOKIE_SECURE", strings.HasPrefix(cfg.BaseURL, "https://"))
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS")
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"http://localhost:3000"}
	}

	return cfg, nil
}

// GoogleEnabled はGoogleサインインが設定されているかを返す。
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// GitHubEnabled はGitHubサインインが設定されているかを返す。
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// ImagesEnabled は画像ストレージが設定されているかを返す。
func (c *Config) ImagesEnabled() bool {
	return c.S3Bucket != ""
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvList はカンマ区切りの値を空要素を除いて返す。
func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
