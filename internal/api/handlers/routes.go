package handlers

import (
	"net/http"

	"github.com/aaravmahajanofficial/storefront-cart/internal/api/middleware"
	"github.com/aaravmahajanofficial/storefront-cart/internal/metrics"
)

// RegisterRoutes mounts the cart API. Every route accepts an optional bearer
// token; merge requires one. Mutations are rate limited per owner.
func (h *CartHandler) RegisterRoutes(mux *http.ServeMux, auth *middleware.AuthMiddleware, limiter *middleware.RateLimiter) {

	read := func(next http.Handler) http.Handler {
		return auth.OptionalAuthenticate(h.owners.Resolve(next))
	}
	mutate := func(next http.Handler) http.Handler {
		return auth.OptionalAuthenticate(h.owners.Resolve(limiter.LimitMutations(next)))
	}

	routes := []struct {
		pattern string
		handler http.Handler
	}{
		{"GET /api/v1/cart", read(h.GetCart())},
		{"GET /api/v1/cart/validation", read(h.ValidateCart())},
		{"POST /api/v1/cart/items", auth.OptionalAuthenticate(h.owners.ResolveOrMint(limiter.LimitMutations(h.AddItem())))},
		{"PATCH /api/v1/cart/items/{id}", mutate(h.UpdateItem())},
		{"DELETE /api/v1/cart/items/{id}", mutate(h.RemoveItem())},
		{"DELETE /api/v1/cart", mutate(h.ClearCart())},
		{"POST /api/v1/cart/merge", auth.Authenticate(h.owners.Resolve(limiter.LimitMutations(h.MergeGuestCart())))},
	}

	for _, route := range routes {
		mux.Handle(route.pattern, metrics.Instrument(route.pattern, route.handler))
	}
}
