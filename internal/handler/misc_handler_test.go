package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
)

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		checker    HealthChecker
		wantStatus int
		wantBody   string
	}{
		{name: "no checker", wantStatus: http.StatusOK, wantBody: "ok"},
		{
			name:       "store reachable",
			checker:    HealthCheckFunc(func(ctx context.Context) error { return nil }),
			wantStatus: http.StatusOK,
			wantBody:   "ok",
		},
		{
			name:       "store unreachable",
			checker:    HealthCheckFunc(func(ctx context.Context) error { return errors.New("dial tcp: refused") }),
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			NewHealthHandler(tt.checker).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := decodeBody(t, w)["status"]; got != tt.wantBody {
				t.Errorf("status body = %v, want %s", got, tt.wantBody)
			}
		})
	}
}

func TestHealthHandler_PingHasDeadline(t *testing.T) {
	checker := HealthCheckFunc(func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("ping context should carry a deadline")
		}
		return nil
	})

	w := httptest.NewRecorder()
	NewHealthHandler(checker).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
}

func TestClearCookies_ExpiresEveryCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/clear-cookies", nil)
	req.AddCookie(&http.Cookie{Name: "rentals_session", Value: "x"})
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "y"})
	w := httptest.NewRecorder()

	ClearCookies(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var names []string
	for _, c := range w.Result().Cookies() {
		if c.MaxAge >= 0 {
			t.Errorf("cookie %s not expired: %+v", c.Name, c)
		}
		names = append(names, c.Name)
	}
	sort.Strings(names)
	if len(names) != 2 || names[0] != "csrf_token" || names[1] != "rentals_session" {
		t.Errorf("expired cookies = %v", names)
	}

	body := decodeBody(t, w)
	if body["message"] != "All cookies cleared" {
		t.Errorf("message = %v", body["message"])
	}
	if cleared, _ := body["cleared"].([]any); len(cleared) != 2 {
		t.Errorf("cleared = %v", body["cleared"])
	}
}

func TestClearCookies_NoCookies(t *testing.T) {
	w := httptest.NewRecorder()
	ClearCookies(w, httptest.NewRequest(http.MethodGet, "/api/clear-cookies", nil))

	if cleared, ok := decodeBody(t, w)["cleared"].([]any); !ok || len(cleared) != 0 {
		t.Errorf("cleared should be an empty list")
	}
}
