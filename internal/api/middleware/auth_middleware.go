package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aaravmahajanofficial/storefront-cart/internal/errors"
	"github.com/aaravmahajanofficial/storefront-cart/internal/models"
	"github.com/aaravmahajanofficial/storefront-cart/internal/utils/response"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey uuid.UUID

var UserContextKey = contextKey(uuid.New())

type AuthMiddleware struct {
	jwtKey []byte
	parser *jwt.Parser
}

func NewAuthMiddleware(jwtKey []byte) *AuthMiddleware {
	return &AuthMiddleware{
		jwtKey: jwtKey,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()),
	}
}

// Authenticate rejects requests without a valid bearer token.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			LoggerFromContext(r.Context()).Warn("Missing authorization header")
			response.Error(w, errors.UnauthorizedError("Authorization header is required"))
			return
		}

		m.serveWithClaims(w, r, authHeader, next)
	}
}

// OptionalAuthenticate lets anonymous requests through untouched so guest
// carts keep working. A token that is present must still be valid.
func (m *AuthMiddleware) OptionalAuthenticate(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			next.ServeHTTP(w, r)
			return
		}

		m.serveWithClaims(w, r, authHeader, next)
	}
}

func (m *AuthMiddleware) serveWithClaims(w http.ResponseWriter, r *http.Request, authHeader string, next http.Handler) {

	logger := LoggerFromContext(r.Context())

	// "Bearer <token>"
	tokenParts := strings.Split(authHeader, " ")
	if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
		logger.Warn("Invalid authorization header format")
		response.Error(w, errors.UnauthorizedError("Invalid authorization format"))
		return
	}

	claims := &models.Claims{}

	token, err := m.parser.ParseWithClaims(tokenParts[1], claims, func(*jwt.Token) (any, error) {
		return m.jwtKey, nil
	})
	if err != nil || !token.Valid {
		logger.Warn("JWT validation failed", slog.Any("error", err))
		response.Error(w, errors.UnauthorizedError("Invalid or expired token"))
		return
	}

	if claims.UserID == uuid.Nil {
		logger.Warn("Token carries no user id")
		response.Error(w, errors.UnauthorizedError("Invalid token"))
		return
	}

	ctx := context.WithValue(r.Context(), UserContextKey, claims)

	requestScopedLogger := logger.With(slog.String("userId", claims.UserID.String()))
	ctx = WithLogger(ctx, requestScopedLogger)

	requestScopedLogger.Debug("User authenticated")

	next.ServeHTTP(w, r.WithContext(ctx))
}

func ClaimsFromContext(ctx context.Context) (*models.Claims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*models.Claims)
	return claims, ok && claims != nil
}
