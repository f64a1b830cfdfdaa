package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dehublabs/predictiond/internal/crypto"
	"github.com/dehublabs/predictiond/internal/server/middleware"
)

func signedRequest(auth *crypto.RequestAuth, method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range auth.Headers(method, path, body) {
		req.Header.Set(k, v)
	}
	return req
}

func TestAdminAuthAcceptsSignedRequest(t *testing.T) {
	auth := &crypto.RequestAuth{Key: "ops", Secret: "hunter2"}
	called := false
	h := middleware.AdminAuth(auth, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(auth, http.MethodPost, "/api/admin/pause", `{}`))

	if rec.Code != http.StatusOK || !called {
		t.Errorf("status = %d, called = %v, want 200 and handler invoked", rec.Code, called)
	}
}

func TestAdminAuthRejectsTamperedBody(t *testing.T) {
	auth := &crypto.RequestAuth{Key: "ops", Secret: "hunter2"}
	h := middleware.AdminAuth(auth, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler invoked for tampered request")
	}))

	signed := signedRequest(auth, http.MethodPut, "/api/admin/config", `{"treasury_fee_bps":300}`)
	tampered := httptest.NewRequest(http.MethodPut, "/api/admin/config", strings.NewReader(`{"treasury_fee_bps":900}`))
	tampered.Header = signed.Header

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, tampered)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAdminAuthRejectsMissingHeaders(t *testing.T) {
	auth := &crypto.RequestAuth{Key: "ops", Secret: "hunter2"}
	h := middleware.AdminAuth(auth, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler invoked without credentials")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/admin/pause", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAdminAuthRejectsWrongKey(t *testing.T) {
	auth := &crypto.RequestAuth{Key: "ops", Secret: "hunter2"}
	other := &crypto.RequestAuth{Key: "ops", Secret: "wrong"}
	h := middleware.AdminAuth(auth, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler invoked with a foreign signature")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(other, http.MethodPost, "/api/admin/pause", `{}`))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAdminAuthDisabledPassesThrough(t *testing.T) {
	called := false
	h := middleware.AdminAuth(nil, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/admin/pause", nil))
	if !called {
		t.Error("disabled auth must pass requests through")
	}
}
