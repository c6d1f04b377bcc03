package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/rentals/internal/form"
	"github.com/hitoshi/rentals/internal/middleware"
	"github.com/hitoshi/rentals/internal/model"
	"github.com/hitoshi/rentals/internal/revalidate"
	"github.com/hitoshi/rentals/internal/user"
)

// UserServiceInterface は管理者向けユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	GetUser(ctx context.Context, actor model.Identity, id string) (*model.User, error)
	ListUsers(ctx context.Context, actor model.Identity, q model.UserListQuery) (*model.UserPage, error)
	CreateUser(ctx context.Context, actor model.Identity, in form.CreateUser) (*model.User, error)
	UpdateUser(ctx context.Context, actor model.Identity, in form.UpdateUser) (*model.User, error)
	SetUserActive(ctx context.Context, actor model.Identity, id string, active bool) (*model.User, string, error)
	DeleteUser(ctx context.Context, actor model.Identity, id string) error
}

// UserHandler は管理者によるユーザー管理のHTTPハンドラー。
// 権限の確認はサービス層で行うため、呼び出し元のIdentityをそのまま渡す。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

func actorOf(r *http.Request) model.Identity {
	identity, _ := middleware.IdentityFromContext(r.Context())
	return identity
}

// ListUsers はユーザー一覧を返す。
// GET /api/admin/users?page=1&limit=10&query=xxx
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := model.UserListQuery{
		Filter: r.URL.Query().Get("query"),
		PageRequest: model.PageRequest{
			Page:     queryInt(r, "page"),
			PageSize: queryInt(r, "limit"),
		},
	}

	page, err := h.service.ListUsers(r.Context(), actorOf(r), q)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserPageResponse(page))
}

// GetUser はユーザーを返す。
// GET /api/admin/users/{id}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.GetUser(r.Context(), actorOf(r), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, actionResult{Success: true, Data: toUserResponse(u)})
}

// CreateUser はユーザーを作成する。
// POST /api/admin/users
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var in form.CreateUser
	if err := form.Bind(r, &in); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	u, err := h.service.CreateUser(r.Context(), actorOf(r), in)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, actionResult{
		Success: true,
		Message: user.MsgUserCreated,
		Data:    toUserResponse(u),
	})
}

// UpdateUser はユーザーを更新する。パスのIDがボディのIDより優先される。
// PUT /api/admin/users/{id}
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var in form.UpdateUser
	if err := form.Bind(r, &in); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if id := chi.URLParam(r, "id"); id != "" {
		in.ID = id
	}

	u, err := h.service.UpdateUser(r.Context(), actorOf(r), in)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, actionResult{
		Success: true,
		Message: user.MsgUserUpdated,
		Data:    toUserResponse(u),
	})
}

// SetUserActive はユーザーの有効状態を切り替える。
// PATCH /api/admin/users/{id}/status
func (h *UserHandler) SetUserActive(w http.ResponseWriter, r *http.Request) {
	var in form.UserStatus
	if err := form.Bind(r, &in); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if err := form.Check(in); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	u, msg, err := h.service.SetUserActive(r.Context(), actorOf(r), chi.URLParam(r, "id"), *in.IsActive)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, actionResult{
		Success: true,
		Message: msg,
		Data:    toUserResponse(u),
	})
}

// DeleteUser はユーザーを削除し、一覧画面へのリダイレクト先を返す。
// DELETE /api/admin/users/{id}
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteUser(r.Context(), actorOf(r), chi.URLParam(r, "id")); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, actionResult{
		Success:  true,
		Message:  user.MsgUserDeleted,
		Redirect: revalidate.PathAdminUsers,
	})
}
