package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/rentals/internal/auth"
	"github.com/hitoshi/rentals/internal/form"
	"github.com/hitoshi/rentals/internal/middleware"
	"github.com/hitoshi/rentals/internal/model"
	"github.com/hitoshi/rentals/internal/user"
)

var testAuthConfig = AuthHandlerConfig{
	BaseURL: "http://localhost:3000",
	Cookie:  middleware.CookieConfig{MaxAge: 30 * 24 * time.Hour},
}

func newTestAuthHandler(svc *mockAuthService, accounts *mockAccountService) *AuthHandler {
	if svc == nil {
		svc = &mockAuthService{}
	}
	if accounts == nil {
		accounts = &mockAccountService{}
	}
	return NewAuthHandler(svc, accounts, testAuthConfig)
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestAuthHandler_SignUp_CreatesAccountWithoutSession(t *testing.T) {
	var got form.SignUp
	accounts := &mockAccountService{
		signUpFn: func(ctx context.Context, in form.SignUp) (*model.User, error) {
			got = in
			return &model.User{ID: "u1", Email: in.Email, Name: "Ada Lovelace"}, nil
		},
	}
	h := newTestAuthHandler(nil, accounts)

	req := jsonRequest(http.MethodPost, "/api/auth/signup",
		`{"first_name":"Ada","last_name":"Lovelace","email":" ADA@example.com ","password":"secret1"}`)
	w := httptest.NewRecorder()
	h.SignUp(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if got.Email != "ada@example.com" {
		t.Errorf("email passed to service = %q, want normalized", got.Email)
	}
	body := decodeBody(t, w)
	if body["success"] != true || body["message"] != user.MsgAccountCreated {
		t.Errorf("unexpected body: %v", body)
	}
	if c := findCookie(w.Result(), middleware.SessionCookieName); c != nil {
		t.Errorf("sign-up must not issue a session cookie, got %+v", c)
	}
}

func TestAuthHandler_SignUp_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "validation",
			err:        model.NewValidationError(map[string][]string{"email": {"must be a valid email address"}}),
			wantStatus: http.StatusBadRequest,
			wantCode:   model.ErrCodeValidationFailed,
		},
		{
			name:       "conflict",
			err:        model.NewAccountExistsError("ada@example.com"),
			wantStatus: http.StatusConflict,
			wantCode:   model.ErrCodeEmailConflict,
		},
		{
			name:       "storage failure",
			err:        errors.New("connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   model.ErrCodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accounts := &mockAccountService{
				signUpFn: func(ctx context.Context, in form.SignUp) (*model.User, error) {
					return nil, tt.err
				},
			}
			h := newTestAuthHandler(nil, accounts)

			w := httptest.NewRecorder()
			h.SignUp(w, jsonRequest(http.MethodPost, "/api/auth/signup", `{}`))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			body := decodeBody(t, w)
			if body["code"] != tt.wantCode {
				t.Errorf("code = %v, want %s", body["code"], tt.wantCode)
			}
			if strings.Contains(w.Body.String(), "connection refused") {
				t.Error("internal error detail must not leak")
			}
		})
	}
}

func TestAuthHandler_SignUp_ValidationBodyShape(t *testing.T) {
	accounts := &mockAccountService{
		signUpFn: func(ctx context.Context, in form.SignUp) (*model.User, error) {
			return nil, model.NewValidationError(map[string][]string{"password": {"the length must be between 6 and 128"}})
		},
	}
	h := newTestAuthHandler(nil, accounts)

	w := httptest.NewRecorder()
	h.SignUp(w, jsonRequest(http.MethodPost, "/api/auth/signup", `{}`))

	body := decodeBody(t, w)
	if body["error"] != "validation" {
		t.Errorf("error = %v, want validation", body["error"])
	}
	if body["message"] != model.ValidationMessage {
		t.Errorf("message = %v", body["message"])
	}
	fields, ok := body["fields"].(map[string]any)
	if !ok || fields["password"] == nil {
		t.Errorf("fields = %v, want password entry", body["fields"])
	}
}

func TestAuthHandler_SignIn_SetsSessionCookie(t *testing.T) {
	var got form.SignIn
	svc := &mockAuthService{
		signInFn: func(ctx context.Context, in form.SignIn) (*auth.SignInResult, error) {
			got = in
			return &auth.SignInResult{
				Token:   "signed-token",
				Session: &model.Session{ID: "jti-1", UserID: "u1"},
				User:    &model.User{ID: "u1", Email: in.Email, Name: "Ada Lovelace"},
			}, nil
		},
	}
	h := newTestAuthHandler(svc, nil)

	values := url.Values{"email": {"Ada@Example.com"}, "password": {"secret1"}}
	req := httptest.NewRequest(http.MethodPost, "/api/auth/signin", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.SignIn(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got.Email != "ada@example.com" || got.Password != "secret1" {
		t.Errorf("service input = %+v", got)
	}

	c := findCookie(w.Result(), middleware.SessionCookieName)
	if c == nil {
		t.Fatal("session cookie should be set")
	}
	if c.Value != "signed-token" || !c.HttpOnly || c.SameSite != http.SameSiteLaxMode {
		t.Errorf("unexpected cookie: %+v", c)
	}
	if c.MaxAge != int((30 * 24 * time.Hour).Seconds()) {
		t.Errorf("MaxAge = %d", c.MaxAge)
	}

	body := decodeBody(t, w)
	data, _ := body["data"].(map[string]any)
	if data["id"] != "u1" || data["email"] != "ada@example.com" || data["name"] != "Ada Lovelace" {
		t.Errorf("data = %v", data)
	}
}

func TestAuthHandler_SignIn_InvalidCredentials(t *testing.T) {
	svc := &mockAuthService{
		signInFn: func(ctx context.Context, in form.SignIn) (*auth.SignInResult, error) {
			return nil, model.NewInvalidCredentialsError()
		},
	}
	h := newTestAuthHandler(svc, nil)

	w := httptest.NewRecorder()
	h.SignIn(w, jsonRequest(http.MethodPost, "/api/auth/signin", `{"email":"a@b.com","password":"nope"}`))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	body := decodeBody(t, w)
	if body["message"] != "Invalid email or password" {
		t.Errorf("message = %v", body["message"])
	}
	if c := findCookie(w.Result(), middleware.SessionCookieName); c != nil {
		t.Errorf("no cookie expected on failure, got %+v", c)
	}
}

func TestAuthHandler_SignOut_RevokesAndClearsCookie(t *testing.T) {
	tests := []struct {
		name       string
		cookie     string
		signOutErr error
		wantCalls  int
	}{
		{name: "with session", cookie: "signed-token", wantCalls: 1},
		{name: "revocation failure still clears", cookie: "signed-token", signOutErr: errors.New("db down"), wantCalls: 1},
		{name: "no session", wantCalls: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			svc := &mockAuthService{
				signOutFn: func(ctx context.Context, token string) error {
					calls++
					if token != tt.cookie {
						t.Errorf("token = %q, want %q", token, tt.cookie)
					}
					return tt.signOutErr
				},
			}
			h := newTestAuthHandler(svc, nil)

			req := httptest.NewRequest(http.MethodPost, "/api/auth/signout", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			h.SignOut(w, req)

			if w.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
			}
			if calls != tt.wantCalls {
				t.Errorf("SignOut calls = %d, want %d", calls, tt.wantCalls)
			}
			c := findCookie(w.Result(), middleware.SessionCookieName)
			if c == nil || c.MaxAge >= 0 {
				t.Errorf("session cookie should be cleared, got %+v", c)
			}
		})
	}
}

func TestAuthHandler_Me(t *testing.T) {
	h := newTestAuthHandler(nil, nil)

	w := httptest.NewRecorder()
	h.Me(w, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	w = httptest.NewRecorder()
	h.Me(w, withIdentity(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), adminIdentity))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	data, _ := decodeBody(t, w)["data"].(map[string]any)
	if data["id"] != "admin-1" || data["isadmin"] != true {
		t.Errorf("data = %v", data)
	}
}

func TestAuthHandler_EmailAvailable(t *testing.T) {
	var gotEmail, gotExclude string
	accounts := &mockAccountService{
		checkEmailFn: func(ctx context.Context, email, excludeID string) (*user.Availability, error) {
			gotEmail, gotExclude = email, excludeID
			return &user.Availability{Available: false, Message: user.MsgEmailTaken}, nil
		},
	}
	h := newTestAuthHandler(nil, accounts)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/auth/email-available?email=ada%40example.com&exclude=u1", nil)
	h.EmailAvailable(w, withIdentity(req, adminIdentity))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotEmail != "ada@example.com" || gotExclude != "u1" {
		t.Errorf("service got (%q, %q)", gotEmail, gotExclude)
	}
	body := decodeBody(t, w)
	if body["available"] != false || body["message"] != user.MsgEmailTaken {
		t.Errorf("body = %v", body)
	}
}

func TestAuthHandler_EmailAvailable_ExcludeRestricted(t *testing.T) {
	tests := []struct {
		name       string
		identity   *model.Identity
		exclude    string
		wantStatus int
	}{
		{name: "anonymous without exclude", wantStatus: http.StatusOK},
		{name: "anonymous with exclude", exclude: "user-1", wantStatus: http.StatusUnauthorized},
		{name: "member excluding another user", identity: &memberIdentity, exclude: "admin-1", wantStatus: http.StatusForbidden},
		{name: "member excluding self", identity: &memberIdentity, exclude: "user-1", wantStatus: http.StatusOK},
		{name: "admin excluding anyone", identity: &adminIdentity, exclude: "user-1", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			accounts := &mockAccountService{
				checkEmailFn: func(ctx context.Context, email, excludeID string) (*user.Availability, error) {
					called = true
					return &user.Availability{Available: true, Message: user.MsgEmailAvailable}, nil
				},
			}
			h := newTestAuthHandler(nil, accounts)

			target := "/api/auth/email-available?email=ada%40example.com"
			if tt.exclude != "" {
				target += "&exclude=" + tt.exclude
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.identity != nil {
				req = withIdentity(req, *tt.identity)
			}
			w := httptest.NewRecorder()
			h.EmailAvailable(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if called != (tt.wantStatus == http.StatusOK) {
				t.Errorf("service called = %v", called)
			}
		})
	}
}

func TestAuthHandler_Providers(t *testing.T) {
	svc := &mockAuthService{providerNamesFn: func() []string { return []string{"github", "google"} }}
	h := newTestAuthHandler(svc, nil)

	w := httptest.NewRecorder()
	h.Providers(w, httptest.NewRequest(http.MethodGet, "/api/auth/providers", nil))

	providers, _ := decodeBody(t, w)["providers"].([]any)
	if len(providers) != 2 || providers[0] != "github" {
		t.Errorf("providers = %v", providers)
	}
}

func TestAuthHandler_ProviderLogin_RedirectsWithState(t *testing.T) {
	var gotProvider, gotState string
	svc := &mockAuthService{
		loginURLFn: func(provider, state string) (string, error) {
			gotProvider, gotState = provider, state
			return "https://accounts.google.com/o/oauth2/auth?state=" + state, nil
		},
	}
	h := newTestAuthHandler(svc, nil)

	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/auth/google/login", nil), "provider", "google")
	w := httptest.NewRecorder()
	h.ProviderLogin(w, req)

	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTemporaryRedirect)
	}
	if gotProvider != "google" || gotState == "" {
		t.Errorf("LoginURL got (%q, %q)", gotProvider, gotState)
	}
	if loc := w.Header().Get("Location"); !strings.HasSuffix(loc, "state="+gotState) {
		t.Errorf("Location = %q", loc)
	}
	c := findCookie(w.Result(), oauthStateCookie)
	if c == nil || c.Value != gotState || !c.HttpOnly {
		t.Errorf("state cookie = %+v", c)
	}
}

func TestAuthHandler_ProviderLogin_UnknownProvider(t *testing.T) {
	svc := &mockAuthService{
		loginURLFn: func(provider, state string) (string, error) {
			return "", model.NewUnknownProviderError(provider)
		},
	}
	h := newTestAuthHandler(svc, nil)

	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/auth/myspace/login", nil), "provider", "myspace")
	w := httptest.NewRecorder()
	h.ProviderLogin(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if c := findCookie(w.Result(), oauthStateCookie); c != nil {
		t.Errorf("state cookie should not be set, got %+v", c)
	}
}

func callbackRequest(query, stateCookie string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?"+query, nil)
	if stateCookie != "" {
		req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: stateCookie})
	}
	return withChiURLParam(req, "provider", "google")
}

func TestAuthHandler_ProviderCallback_Success(t *testing.T) {
	var gotCode string
	svc := &mockAuthService{
		socialSignInFn: func(ctx context.Context, provider, code string) (*auth.SignInResult, error) {
			gotCode = code
			return &auth.SignInResult{
				Token:   "provider-token",
				Session: &model.Session{ID: "jti", UserID: "u1"},
				User:    &model.User{ID: "u1"},
			}, nil
		},
	}
	h := newTestAuthHandler(svc, nil)

	w := httptest.NewRecorder()
	h.ProviderCallback(w, callbackRequest("code=abc&state=s1", "s1"))

	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTemporaryRedirect)
	}
	if w.Header().Get("Location") != testAuthConfig.BaseURL {
		t.Errorf("Location = %q", w.Header().Get("Location"))
	}
	if gotCode != "abc" {
		t.Errorf("code = %q", gotCode)
	}
	c := findCookie(w.Result(), middleware.SessionCookieName)
	if c == nil || c.Value != "provider-token" {
		t.Errorf("session cookie = %+v", c)
	}
	if sc := findCookie(w.Result(), oauthStateCookie); sc == nil || sc.MaxAge >= 0 {
		t.Errorf("state cookie should be cleared, got %+v", sc)
	}
}

func TestAuthHandler_ProviderCallback_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		stateCookie string
		serviceErr  error
		wantStatus  int
		wantCalled  bool
	}{
		{name: "state mismatch", query: "code=abc&state=s1", stateCookie: "other", wantStatus: http.StatusBadRequest},
		{name: "missing state cookie", query: "code=abc&state=s1", wantStatus: http.StatusBadRequest},
		{name: "missing code", query: "state=s1", stateCookie: "s1", wantStatus: http.StatusBadRequest},
		{
			name:        "provider failure",
			query:       "code=abc&state=s1",
			stateCookie: "s1",
			serviceErr:  model.NewProviderFailedError(),
			wantStatus:  http.StatusBadGateway,
			wantCalled:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			svc := &mockAuthService{
				socialSignInFn: func(ctx context.Context, provider, code string) (*auth.SignInResult, error) {
					called = true
					return nil, tt.serviceErr
				},
			}
			h := newTestAuthHandler(svc, nil)

			w := httptest.NewRecorder()
			h.ProviderCallback(w, callbackRequest(tt.query, tt.stateCookie))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if called != tt.wantCalled {
				t.Errorf("SocialSignIn called = %v, want %v", called, tt.wantCalled)
			}
			if c := findCookie(w.Result(), middleware.SessionCookieName); c != nil {
				t.Errorf("no session cookie expected, got %+v", c)
			}
		})
	}
}
