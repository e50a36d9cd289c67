package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"

	"github.com/droverhq/drover/internal/app"
	"github.com/droverhq/drover/internal/common"
)

func newAuthServer(token string) *Server {
	cfg := common.DefaultConfig()
	cfg.Auth.BearerToken = token
	return &Server{app: &app.App{Config: cfg, Logger: arbor.NewLogger()}}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	s := newAuthServer("secret")
	handler := s.authMiddleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddlewareRejectsWrongToken(t *testing.T) {
	s := newAuthServer("secret")
	handler := s.authMiddleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddlewareAcceptsValidToken(t *testing.T) {
	s := newAuthServer("secret")
	handler := s.authMiddleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddlewareSkipsOpenPaths(t *testing.T) {
	s := newAuthServer("secret")
	handler := s.authMiddleware(okHandler())

	for _, path := range []string{"/health", "/metrics", "/ws"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, "path %s must stay open", path)
	}
}

func TestAuthMiddlewareDisabledWithoutToken(t *testing.T) {
	s := newAuthServer("")
	handler := s.authMiddleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
