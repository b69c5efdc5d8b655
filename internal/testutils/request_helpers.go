package testutils

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	"github.com/aaravmahajanofficial/storefront-cart/internal/api/middleware"
	"github.com/aaravmahajanofficial/storefront-cart/internal/models"
	"github.com/google/uuid"
)

// CreateUserRequest builds a request as it looks after the auth and owner
// middleware ran for userID.
func CreateUserRequest(method, target string, body io.Reader, userID uuid.UUID, pathParams map[string]string) *http.Request {
	req := CreateOwnerRequest(method, target, body, models.UserOwner(userID), pathParams)

	claims := &models.Claims{UserID: userID, Email: "shopper@example.com"}
	ctx := context.WithValue(req.Context(), middleware.UserContextKey, claims)

	return req.WithContext(ctx)
}

// CreateOwnerRequest carries owner and a discarding logger but no claims, like
// a guest request.
func CreateOwnerRequest(method, target string, body io.Reader, owner models.OwnerKey, pathParams map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for key, value := range pathParams {
		req.SetPathValue(key, value)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := middleware.WithLogger(req.Context(), logger)
	if !owner.IsZero() {
		ctx = middleware.ContextWithOwner(ctx, owner)
	}

	return req.WithContext(ctx)
}
