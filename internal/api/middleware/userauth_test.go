package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/teleglass/gateway/internal/auth"
)

func TestUserAuth_BearerJWT(t *testing.T) {
	secret := "test-secret"
	token, _ := auth.GenerateToken(secret, "visitor@example.com", "session", time.Hour)

	handler := UserAuth(secret, "admin-key")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if email := EmailFromContext(r.Context()); email != "visitor@example.com" {
			t.Errorf("email = %s, want visitor@example.com", email)
		}
		if IsAdminContext(r.Context()) {
			t.Error("should not be admin")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestUserAuth_Cookie(t *testing.T) {
	secret := "test-secret"
	token, _ := auth.GenerateToken(secret, "visitor@example.com", "session", time.Hour)

	handler := UserAuth(secret, "admin-key")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if email := EmailFromContext(r.Context()); email != "visitor@example.com" {
			t.Errorf("email = %s, want visitor@example.com", email)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestUserAuth_APIKey(t *testing.T) {
	handler := UserAuth("secret", "admin-key")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsAdminContext(r.Context()) {
			t.Error("expected admin context")
		}
		if EmailFromContext(r.Context()) != "" {
			t.Error("expected no email for admin")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-API-Key", "admin-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestUserAuth_WrongAPIKey(t *testing.T) {
	handler := UserAuth("secret", "admin-key")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached with wrong API key")
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestUserAuth_NoCredentials(t *testing.T) {
	handler := UserAuth("secret", "admin-key")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached without credentials")
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestUserAuth_WrongPurpose(t *testing.T) {
	secret := "test-secret"
	token, _ := auth.GenerateToken(secret, "visitor@example.com", "refresh", time.Hour)

	handler := UserAuth(secret, "admin-key")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached with wrong token purpose")
	}))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
