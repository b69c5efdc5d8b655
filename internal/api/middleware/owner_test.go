package middleware_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aaravmahajanofficial/storefront-cart/internal/api/middleware"
	"github.com/aaravmahajanofficial/storefront-cart/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOwner(got *models.OwnerKey) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = middleware.OwnerFromContext(r.Context())
	})
}

func TestOwnerResolver(t *testing.T) {
	resolver := middleware.NewOwnerResolver("cart_session", 24*time.Hour, true)

	t.Run("Header takes precedence over cookie", func(t *testing.T) {
		var got models.OwnerKey
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(middleware.SessionHeader, "from-header")
		req.AddCookie(&http.Cookie{Name: "cart_session", Value: "from-cookie"})

		resolver.Resolve(captureOwner(&got)).ServeHTTP(httptest.NewRecorder(), req)

		assert.Equal(t, models.SessionOwner("from-header"), got)
	})

	t.Run("Cookie fallback", func(t *testing.T) {
		var got models.OwnerKey
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "cart_session", Value: "from-cookie"})

		resolver.Resolve(captureOwner(&got)).ServeHTTP(httptest.NewRecorder(), req)

		assert.Equal(t, models.SessionOwner("from-cookie"), got)
	})

	t.Run("Authenticated user wins", func(t *testing.T) {
		var got models.OwnerKey
		userID := uuid.New()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(middleware.SessionHeader, "from-header")
		req = req.WithContext(context.WithValue(req.Context(), middleware.UserContextKey, &models.Claims{UserID: userID}))

		resolver.Resolve(captureOwner(&got)).ServeHTTP(httptest.NewRecorder(), req)

		assert.Equal(t, models.UserOwner(userID), got)
	})

	t.Run("No identity leaves a zero key", func(t *testing.T) {
		got := models.SessionOwner("sentinel")
		rec := httptest.NewRecorder()

		resolver.Resolve(captureOwner(&got)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.True(t, got.IsZero())
		assert.Empty(t, rec.Result().Cookies())
	})

	t.Run("Mint issues a session cookie", func(t *testing.T) {
		var got models.OwnerKey
		rec := httptest.NewRecorder()

		resolver.ResolveOrMint(captureOwner(&got)).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

		require.True(t, got.HasSession())
		assert.Equal(t, got.SessionID, rec.Header().Get(middleware.SessionHeader))

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, got.SessionID, cookies[0].Value)
		assert.True(t, cookies[0].Secure)
		assert.Equal(t, int((24 * time.Hour).Seconds()), cookies[0].MaxAge)
	})

	t.Run("Mint keeps an existing session", func(t *testing.T) {
		var got models.OwnerKey
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set(middleware.SessionHeader, "known")

		resolver.ResolveOrMint(captureOwner(&got)).ServeHTTP(rec, req)

		assert.Equal(t, models.SessionOwner("known"), got)
		assert.Empty(t, rec.Header().Get(middleware.SessionHeader))
	})
}

func TestLogging(t *testing.T) {
	var sawLogger bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawLogger = r.Context().Value(middleware.LoggerKey).(*slog.Logger)
		w.WriteHeader(http.StatusTeapot)
	})

	t.Run("Generates a correlation id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		middleware.Logging(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.True(t, sawLogger)
		assert.Equal(t, http.StatusTeapot, rec.Code)
		_, err := uuid.Parse(rec.Header().Get("X-Request-ID"))
		assert.NoError(t, err)
	})

	t.Run("Echoes the caller's correlation id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "req-42")

		middleware.Logging(next).ServeHTTP(rec, req)

		assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
	})
}
