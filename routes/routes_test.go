package routes

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopswift/storefront/controllers"
	"github.com/shopswift/storefront/middleware"
	"github.com/shopswift/storefront/models"
	"github.com/shopswift/storefront/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T, health HealthCheck) (*gin.Engine, *services.TokenService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tokens := services.NewTokenService("routes-secret", time.Minute, time.Hour)

	// Handlers are never reached by the requests below, so nil services suffice.
	h := Handlers{
		Auth:     controllers.NewAuthController(nil, controllers.CookieConfig{}),
		Cart:     controllers.NewCartController(nil),
		Products: controllers.NewProductController(nil),
		Orders:   controllers.NewOrderController(nil),
		Users:    controllers.NewUserController(nil),
	}
	r := gin.New()
	Register(r, h, middleware.Auth(tokens), health)
	return r, tokens
}

func serve(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	r, _ := newRouter(t, nil)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/cart"},
		{http.MethodGet, "/api/cart/"},
		{http.MethodPost, "/api/cart/sync"},
		{http.MethodPost, "/api/orders"},
		{http.MethodGet, "/api/users/me"},
		{http.MethodPost, "/api/products"},
		{http.MethodGet, "/api/admin/orders"},
	} {
		w := serve(r, tc.method, tc.path, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", tc.method, tc.path)
	}
}

func TestAdminRoutesRejectCustomers(t *testing.T) {
	r, tokens := newRouter(t, nil)
	token, err := tokens.GenerateAccessToken(uuid.NewString(), "ada@example.com", models.RoleUser)
	require.NoError(t, err)

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/products"},
		{http.MethodDelete, "/api/products/1"},
		{http.MethodPost, "/api/products/1/image-upload-url"},
		{http.MethodGet, "/api/admin/orders"},
		{http.MethodPut, "/api/admin/orders/" + uuid.NewString() + "/status"},
		{http.MethodGet, "/api/admin/users"},
	} {
		w := serve(r, tc.method, tc.path, token)
		assert.Equal(t, http.StatusForbidden, w.Code, "%s %s", tc.method, tc.path)
		assert.JSONEq(t, `{"error":"access denied"}`, w.Body.String())
	}
}

func TestHealth(t *testing.T) {
	r, _ := newRouter(t, func(context.Context) error { return nil })
	w := serve(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"OK"}`, w.Body.String())

	r, _ = newRouter(t, func(context.Context) error { return errors.New("db down") })
	w = serve(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "DEGRADED")
}

func TestRegisterMountsAPI(t *testing.T) {
	r, _ := newRouter(t, nil)
	mounted := map[string]bool{}
	for _, route := range r.Routes() {
		mounted[route.Method+" "+route.Path] = true
	}
	for _, want := range []string{
		"POST /api/auth/register",
		"POST /api/auth/login",
		"POST /api/auth/refresh-token",
		"POST /api/auth/logout",
		"GET /api/products",
		"GET /api/products/:id",
		"PUT /api/cart/:product_id",
		"DELETE /api/cart/:product_id",
		"GET /api/orders/:id",
		"PUT /api/users/me",
	} {
		assert.True(t, mounted[want], want)
	}
}
