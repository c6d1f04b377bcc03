// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/rentals/internal/auth"
	"github.com/hitoshi/rentals/internal/model"
)

// SessionCookieName はセッショントークンを保持するCookieの名前。
const SessionCookieName = "rentals_session"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストに認証済みユーザーを格納するためのキー。
var identityContextKey = contextKey("identity")

// SessionResumer はセッショントークンの検証に必要なインターフェース。
// 再発行されたトークンがある場合は2番目の戻り値で返す。
type SessionResumer interface {
	ResumeSession(ctx context.Context, token string) (*model.Session, string, error)
}

// CookieConfig はセッションCookieの設定。
type CookieConfig struct {
	Secure bool
	Domain string
	MaxAge time.Duration
}

// SetSessionCookie はセッショントークンをHTTP Only Cookieに設定する。
func SetSessionCookie(w http.ResponseWriter, config CookieConfig, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   int(config.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie はセッションCookieを削除する。
func ClearSessionCookie(w http.ResponseWriter, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionToken はリクエストのセッショントークンを返す。
func SessionToken(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// NewSessionMiddleware はCookieのセッショントークンを検証し、
// 認証済みユーザーをリクエストコンテキストに注入するミドルウェアを返す。
// セッションがない、または無効な場合は未認証のまま次に渡す。
// トークンが再発行された場合はCookieを更新し、終了したセッションのCookieは削除する。
func NewSessionMiddleware(resumer SessionResumer, config CookieConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := SessionToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			session, refreshed, err := resumer.ResumeSession(r.Context(), token)
			if err != nil {
				if errors.Is(err, auth.ErrSessionEnded) {
					ClearSessionCookie(w, config)
				} else {
					slog.Error("failed to resume session",
						slog.String("error", err.Error()),
					)
				}
				next.ServeHTTP(w, r)
				return
			}

			if refreshed != "" {
				SetSessionCookie(w, config, refreshed)
			}

			ctx := ContextWithIdentity(r.Context(), session.Identity())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSignIn は未認証のリクエストに401を返すミドルウェア。
func RequireSignIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); !ok {
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin は管理者以外のリクエストを拒否するミドルウェア。
// 未認証は401、一般ユーザーは403を返す。
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
			return
		}
		if !identity.IsAdmin {
			slog.Warn("admin route denied",
				slog.String("user_id", identity.UserID),
				slog.String("path", r.URL.Path),
			)
			WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IdentityFromContext はリクエストコンテキストから認証済みユーザーを取得する。
func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(model.Identity)
	if !ok || identity.UserID == "" {
		return model.Identity{}, false
	}
	return identity, true
}

// ContextWithIdentity はコンテキストに認証済みユーザーを注入する。
func ContextWithIdentity(ctx context.Context, identity model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return "", fmt.Errorf("user ID not found in context")
	}
	return identity.UserID, nil
}
