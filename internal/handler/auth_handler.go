// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/rentals/internal/auth"
	"github.com/hitoshi/rentals/internal/form"
	"github.com/hitoshi/rentals/internal/middleware"
	"github.com/hitoshi/rentals/internal/model"
	"github.com/hitoshi/rentals/internal/user"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateMaxAge = 600 // 10分
)

// 呼び出し元に返すメッセージ
const (
	MsgSignedIn  = "Signed in successfully"
	MsgSignedOut = "Signed out successfully"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SignIn(ctx context.Context, in form.SignIn) (*auth.SignInResult, error)
	SignOut(ctx context.Context, token string) error
	ProviderNames() []string
	LoginURL(provider, state string) (string, error)
	SocialSignIn(ctx context.Context, provider, code string) (*auth.SignInResult, error)
}

// AccountServiceInterface はサインアップとメールアドレス確認に必要なサービスインターフェース。
type AccountServiceInterface interface {
	SignUp(ctx context.Context, in form.SignUp) (*model.User, error)
	CheckEmailAvailable(ctx context.Context, email, excludeID string) (*user.Availability, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL string
	Cookie  middleware.CookieConfig
}

// AuthHandler はサインアップ・サインイン・外部IdP連携のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	accounts AccountServiceInterface
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, accounts AccountServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		accounts: accounts,
		config:   config,
	}
}

// SignUp はアカウントを作成する。セッションは発行しない。
// POST /api/auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var in form.SignUp
	if err := form.Bind(r, &in); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	u, err := h.accounts.SignUp(r.Context(), in)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, actionResult{
		Success: true,
		Message: user.MsgAccountCreated,
		Data:    sessionUserResponse{ID: u.ID, Email: u.Email, Name: u.Name},
	})
}

// SignIn はメールアドレスとパスワードでサインインし、セッションCookieを設定する。
// POST /api/auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var in form.SignIn
	if err := form.Bind(r, &in); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	result, err := h.service.SignIn(r.Context(), in)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	middleware.SetSessionCookie(w, h.config.Cookie, result.Token)
	writeJSON(w, http.StatusOK, actionResult{
		Success: true,
		Message: MsgSignedIn,
		Data: sessionUserResponse{
			ID:      result.User.ID,
			Email:   result.User.Email,
			Name:    result.User.Name,
			IsAdmin: result.User.IsAdmin,
		},
	})
}

// SignOut はセッションを失効させ、Cookieを削除する。
// POST /api/auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if token := middleware.SessionToken(r); token != "" {
		if err := h.service.SignOut(r.Context(), token); err != nil {
			slog.Error("failed to sign out", slog.String("error", err.Error()))
			// 失効に失敗してもCookieはクリアする
		}
	}

	middleware.ClearSessionCookie(w, h.config.Cookie)
	writeJSON(w, http.StatusOK, actionResult{Success: true, Message: MsgSignedOut})
}

// Me は現在のセッションのユーザーを返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	writeJSON(w, http.StatusOK, actionResult{
		Success: true,
		Data: sessionUserResponse{
			ID:      identity.UserID,
			Name:    identity.Name,
			IsAdmin: identity.IsAdmin,
		},
	})
}

// EmailAvailable はメールアドレスが利用可能かを返す。
// GET /api/auth/email-available?email=xxx&exclude=yyy
// excludeは管理者か本人のみ指定できる。
func (h *AuthHandler) EmailAvailable(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if exclude := q.Get("exclude"); exclude != "" {
		identity, ok := middleware.IdentityFromContext(r.Context())
		if !ok {
			middleware.WriteError(w, r, model.NewUnauthenticatedError())
			return
		}
		if !identity.IsAdmin && identity.UserID != exclude {
			middleware.WriteError(w, r, model.NewForbiddenError())
			return
		}
	}
	availability, err := h.accounts.CheckEmailAvailable(r.Context(), q.Get("email"), q.Get("exclude"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"available": availability.Available,
		"message":   availability.Message,
	})
}

// Providers は利用可能な外部IdPの一覧を返す。
// GET /api/auth/providers
func (h *AuthHandler) Providers(w http.ResponseWriter, r *http.Request) {
	names := h.service.ProviderNames()
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"providers": names})
}

// ProviderLogin は外部IdPの認可フローを開始する。
// GET /auth/{provider}/login
func (h *AuthHandler) ProviderLogin(w http.ResponseWriter, r *http.Request) {
	state, err := auth.NewState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	loginURL, err := h.service.LoginURL(chi.URLParam(r, "provider"), state)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   oauthStateMaxAge,
		HttpOnly: true,
		Secure:   h.config.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, loginURL, http.StatusTemporaryRedirect)
}

// ProviderCallback は外部IdPのコールバックを処理し、セッションCookieを設定して
// フロントエンドにリダイレクトする。
// GET /auth/{provider}/callback?code=xxx&state=yyy
func (h *AuthHandler) ProviderCallback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" ||
		subtle.ConstantTimeCompare([]byte(stateCookie.Value), []byte(state)) != 1 {
		slog.Warn("oauth state mismatch", slog.String("provider", provider))
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError(map[string][]string{
			"state": {"invalid state parameter"},
		}))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	code := r.URL.Query().Get("code")
	if code == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError(map[string][]string{
			"code": {"missing authorization code"},
		}))
		return
	}

	result, err := h.service.SocialSignIn(r.Context(), provider, code)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	middleware.SetSessionCookie(w, h.config.Cookie, result.Token)
	http.Redirect(w, r, h.config.BaseURL, http.StatusTemporaryRedirect)
}
