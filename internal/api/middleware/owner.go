package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aaravmahajanofficial/storefront-cart/internal/models"
	"github.com/google/uuid"
)

const SessionHeader = "X-Session-ID"

type ownerContextKey struct{}

type OwnerResolver struct {
	cookieName string
	cookieTTL  time.Duration
	secure     bool
}

// NewOwnerResolver decides whose cart a request targets. An authenticated
// user always wins over a session id sent alongside it.
func NewOwnerResolver(cookieName string, cookieTTL time.Duration, secure bool) *OwnerResolver {
	return &OwnerResolver{cookieName: cookieName, cookieTTL: cookieTTL, secure: secure}
}

// Resolve stores the owner key in the request context. Requests with no
// identity pass through with a zero key; the service reports it.
func (o *OwnerResolver) Resolve(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := o.ownerFromRequest(r)
		next.ServeHTTP(w, o.withOwner(r, owner))
	}
}

// ResolveOrMint behaves like Resolve but issues a fresh guest session when the
// request has no identity at all.
func (o *OwnerResolver) ResolveOrMint(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		owner := o.ownerFromRequest(r)
		if owner.IsZero() {
			owner = models.SessionOwner(uuid.NewString())
			o.issueSession(w, owner.SessionID)
			LoggerFromContext(r.Context()).Info("Issued guest session", slog.String("sessionId", owner.SessionID))
		}

		next.ServeHTTP(w, o.withOwner(r, owner))
	}
}

// GuestSession returns the session id the caller presented, ignoring any
// bearer token.
func (o *OwnerResolver) GuestSession(r *http.Request) string {
	if sessionID := strings.TrimSpace(r.Header.Get(SessionHeader)); sessionID != "" {
		return sessionID
	}

	if cookie, err := r.Cookie(o.cookieName); err == nil {
		return strings.TrimSpace(cookie.Value)
	}

	return ""
}

// ExpireSession drops the guest cookie once its cart has been merged.
func (o *OwnerResolver) ExpireSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     o.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   o.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (o *OwnerResolver) ownerFromRequest(r *http.Request) models.OwnerKey {
	if claims, ok := ClaimsFromContext(r.Context()); ok {
		return models.UserOwner(claims.UserID)
	}

	if sessionID := o.GuestSession(r); sessionID != "" {
		return models.SessionOwner(sessionID)
	}

	return models.OwnerKey{}
}

func (o *OwnerResolver) issueSession(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     o.cookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(o.cookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   o.secure,
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set(SessionHeader, sessionID)
}

func (o *OwnerResolver) withOwner(r *http.Request, owner models.OwnerKey) *http.Request {
	ctx := context.WithValue(r.Context(), ownerContextKey{}, owner)

	if !owner.IsZero() {
		ctx = WithLogger(ctx, LoggerFromContext(ctx).With(slog.String("owner", owner.String())))
	}

	return r.WithContext(ctx)
}

func OwnerFromContext(ctx context.Context) models.OwnerKey {
	owner, _ := ctx.Value(ownerContextKey{}).(models.OwnerKey)
	return owner
}

// ContextWithOwner is used by callers that resolve the owner themselves.
func ContextWithOwner(ctx context.Context, owner models.OwnerKey) context.Context {
	return context.WithValue(ctx, ownerContextKey{}, owner)
}
