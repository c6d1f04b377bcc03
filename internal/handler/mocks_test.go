package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/rentals/internal/auth"
	"github.com/hitoshi/rentals/internal/form"
	"github.com/hitoshi/rentals/internal/imagestore"
	"github.com/hitoshi/rentals/internal/middleware"
	"github.com/hitoshi/rentals/internal/model"
	"github.com/hitoshi/rentals/internal/user"
)

// --- モック定義 ---

type mockAuthService struct {
	signInFn        func(ctx context.Context, in form.SignIn) (*auth.SignInResult, error)
	signOutFn       func(ctx context.Context, token string) error
	providerNamesFn func() []string
	loginURLFn      func(provider, state string) (string, error)
	socialSignInFn  func(ctx context.Context, provider, code string) (*auth.SignInResult, error)
}

func (m *mockAuthService) SignIn(ctx context.Context, in form.SignIn) (*auth.SignInResult, error) {
	if m.signInFn != nil {
		return m.signInFn(ctx, in)
	}
	return nil, nil
}

func (m *mockAuthService) SignOut(ctx context.Context, token string) error {
	if m.signOutFn != nil {
		return m.signOutFn(ctx, token)
	}
	return nil
}

func (m *mockAuthService) ProviderNames() []string {
	if m.providerNamesFn != nil {
		return m.providerNamesFn()
	}
	return nil
}

func (m *mockAuthService) LoginURL(provider, state string) (string, error) {
	if m.loginURLFn != nil {
		return m.loginURLFn(provider, state)
	}
	return "", nil
}

func (m *mockAuthService) SocialSignIn(ctx context.Context, provider, code string) (*auth.SignInResult, error) {
	if m.socialSignInFn != nil {
		return m.socialSignInFn(ctx, provider, code)
	}
	return nil, nil
}

type mockAccountService struct {
	signUpFn     func(ctx context.Context, in form.SignUp) (*model.User, error)
	checkEmailFn func(ctx context.Context, email, excludeID string) (*user.Availability, error)
}

func (m *mockAccountService) SignUp(ctx context.Context, in form.SignUp) (*model.User, error) {
	if m.signUpFn != nil {
		return m.signUpFn(ctx, in)
	}
	return nil, nil
}

func (m *mockAccountService) CheckEmailAvailable(ctx context.Context, email, excludeID string) (*user.Availability, error) {
	if m.checkEmailFn != nil {
		return m.checkEmailFn(ctx, email, excludeID)
	}
	return &user.Availability{Available: true, Message: user.MsgEmailAvailable}, nil
}

type mockUserService struct {
	getUserFn       func(ctx context.Context, actor model.Identity, id string) (*model.User, error)
	listUsersFn     func(ctx context.Context, actor model.Identity, q model.UserListQuery) (*model.UserPage, error)
	createUserFn    func(ctx context.Context, actor model.Identity, in form.CreateUser) (*model.User, error)
	updateUserFn    func(ctx context.Context, actor model.Identity, in form.UpdateUser) (*model.User, error)
	setUserActiveFn func(ctx context.Context, actor model.Identity, id string, active bool) (*model.User, string, error)
	deleteUserFn    func(ctx context.Context, actor model.Identity, id string) error
}

func (m *mockUserService) GetUser(ctx context.Context, actor model.Identity, id string) (*model.User, error) {
	if m.getUserFn != nil {
		return m.getUserFn(ctx, actor, id)
	}
	return nil, model.NewUserNotFoundError()
}

func (m *mockUserService) ListUsers(ctx context.Context, actor model.Identity, q model.UserListQuery) (*model.UserPage, error) {
	if m.listUsersFn != nil {
		return m.listUsersFn(ctx, actor, q)
	}
	return &model.UserPage{}, nil
}

func (m *mockUserService) CreateUser(ctx context.Context, actor model.Identity, in form.CreateUser) (*model.User, error) {
	if m.createUserFn != nil {
		return m.createUserFn(ctx, actor, in)
	}
	return nil, nil
}

func (m *mockUserService) UpdateUser(ctx context.Context, actor model.Identity, in form.UpdateUser) (*model.User, error) {
	if m.updateUserFn != nil {
		return m.updateUserFn(ctx, actor, in)
	}
	return nil, nil
}

func (m *mockUserService) SetUserActive(ctx context.Context, actor model.Identity, id string, active bool) (*model.User, string, error) {
	if m.setUserActiveFn != nil {
		return m.setUserActiveFn(ctx, actor, id, active)
	}
	return nil, "", nil
}

func (m *mockUserService) DeleteUser(ctx context.Context, actor model.Identity, id string) error {
	if m.deleteUserFn != nil {
		return m.deleteUserFn(ctx, actor, id)
	}
	return nil
}

type mockPropertyService struct {
	listFn           func(ctx context.Context, page model.PageRequest) (*model.PropertyPage, error)
	getFn            func(ctx context.Context, id string) (*model.Property, error)
	featuredFn       func(ctx context.Context) ([]*model.Property, error)
	byOwnerFn        func(ctx context.Context, ownerID string) ([]*model.Property, error)
	searchFn         func(ctx context.Context, q model.PropertySearch) ([]*model.Property, error)
	createFn         func(ctx context.Context, actor model.Identity, in form.Property) (*model.Property, error)
	deleteFn         func(ctx context.Context, actor model.Identity, id string) error
	toggleFeaturedFn func(ctx context.Context, actor model.Identity, id string) (*model.Property, string, error)
	imageUploadFn    func(ctx context.Context, actor model.Identity, contentType string) (*imagestore.Upload, error)
}

func (m *mockPropertyService) List(ctx context.Context, page model.PageRequest) (*model.PropertyPage, error) {
	if m.listFn != nil {
		return m.listFn(ctx, page)
	}
	return &model.PropertyPage{}, nil
}

func (m *mockPropertyService) Get(ctx context.Context, id string) (*model.Property, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, model.NewPropertyNotFoundError()
}

func (m *mockPropertyService) Featured(ctx context.Context) ([]*model.Property, error) {
	if m.featuredFn != nil {
		return m.featuredFn(ctx)
	}
	return nil, nil
}

func (m *mockPropertyService) ByOwner(ctx context.Context, ownerID string) ([]*model.Property, error) {
	if m.byOwnerFn != nil {
		return m.byOwnerFn(ctx, ownerID)
	}
	return nil, nil
}

func (m *mockPropertyService) Search(ctx context.Context, q model.PropertySearch) ([]*model.Property, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, q)
	}
	return nil, nil
}

func (m *mockPropertyService) Create(ctx context.Context, actor model.Identity, in form.Property) (*model.Property, error) {
	if m.createFn != nil {
		return m.createFn(ctx, actor, in)
	}
	return nil, nil
}

func (m *mockPropertyService) Delete(ctx context.Context, actor model.Identity, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, actor, id)
	}
	return nil
}

func (m *mockPropertyService) ToggleFeatured(ctx context.Context, actor model.Identity, id string) (*model.Property, string, error) {
	if m.toggleFeaturedFn != nil {
		return m.toggleFeaturedFn(ctx, actor, id)
	}
	return nil, "", nil
}

func (m *mockPropertyService) ImageUploadURL(ctx context.Context, actor model.Identity, contentType string) (*imagestore.Upload, error) {
	if m.imageUploadFn != nil {
		return m.imageUploadFn(ctx, actor, contentType)
	}
	return nil, nil
}

// --- テストヘルパー ---

// withIdentity はテスト用にリクエストコンテキストに認証済みユーザーを注入するヘルパー。
func withIdentity(r *http.Request, identity model.Identity) *http.Request {
	return r.WithContext(middleware.ContextWithIdentity(r.Context(), identity))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// decodeBody はレスポンスボディをmapにパースするヘルパー。
func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return result
}

// findCookie はレスポンスから指定名のCookieを探すヘルパー。
func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

var (
	adminIdentity  = model.Identity{UserID: "admin-1", Name: "Admin User", IsAdmin: true}
	memberIdentity = model.Identity{UserID: "user-1", Name: "Ada Lovelace"}
)
