package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const healthCheckTimeout = 3 * time.Second

// HealthChecker はストレージの疎通確認インターフェース。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// HealthCheckFunc は関数をHealthCheckerとして扱うためのアダプタ。
type HealthCheckFunc func(ctx context.Context) error

// PingContext はfを呼び出す。
func (f HealthCheckFunc) PingContext(ctx context.Context) error {
	return f(ctx)
}

// NewHealthHandler はヘルスチェックのハンドラーを返す。
// GET /health
func NewHealthHandler(checker HealthChecker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// ClearCookies はリクエストに含まれるすべてのCookieを失効させる。
// GET /api/clear-cookies
func ClearCookies(w http.ResponseWriter, r *http.Request) {
	cleared := []string{}
	for _, c := range r.Cookies() {
		http.SetCookie(w, &http.Cookie{
			Name:    c.Name,
			Value:   "",
			Path:    "/",
			MaxAge:  -1,
			Expires: time.Unix(0, 0),
		})
		cleared = append(cleared, c.Name)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "All cookies cleared",
		"cleared": cleared,
	})
}
