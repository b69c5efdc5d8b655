package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aaravmahajanofficial/storefront-cart/internal/api/middleware"
	appErrors "github.com/aaravmahajanofficial/storefront-cart/internal/errors"
	"github.com/aaravmahajanofficial/storefront-cart/internal/models"
	service "github.com/aaravmahajanofficial/storefront-cart/internal/services"
	"github.com/aaravmahajanofficial/storefront-cart/internal/utils"
	"github.com/aaravmahajanofficial/storefront-cart/internal/utils/response"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type CartHandler struct {
	carts      service.CartService
	validation service.ValidationService
	merges     service.MergeService
	owners     *middleware.OwnerResolver
	validator  *validator.Validate
}

func NewCartHandler(carts service.CartService, validation service.ValidationService, merges service.MergeService, owners *middleware.OwnerResolver) *CartHandler {
	return &CartHandler{
		carts:      carts,
		validation: validation,
		merges:     merges,
		owners:     owners,
		validator:  validator.New(),
	}
}

// GET /api/v1/cart[?validate=true]
func (h *CartHandler) GetCart() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		owner := middleware.OwnerFromContext(r.Context())

		withValidation := false
		if raw := r.URL.Query().Get("validate"); raw != "" {
			parsed, err := strconv.ParseBool(raw)
			if err != nil {
				response.Error(w, appErrors.ValidationError("validate must be a boolean"))
				return
			}
			withValidation = parsed
		}

		result, err := h.carts.GetCart(r.Context(), owner)
		if err != nil {
			response.Error(w, err)
			return
		}

		if withValidation {
			validation, err := h.validation.Validate(r.Context(), result.Cart)
			if err != nil {
				response.Error(w, err)
				return
			}
			result.Validation = validation
		}

		response.Success(w, http.StatusOK, result)
	}
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		owner := middleware.OwnerFromContext(r.Context())

		var req models.AddToCartRequest
		if !utils.ParseAndValidate(r, w, &req, h.validator) {
			return
		}

		if req.Quantity == 0 {
			req.Quantity = 1
		}

		result, err := h.carts.AddItem(r.Context(), owner, req.ProductID, req.Quantity)
		if err != nil {
			response.Error(w, err)
			return
		}

		response.Success(w, http.StatusOK, result)
	}
}

// PATCH /api/v1/cart/items/{id}
func (h *CartHandler) UpdateItem() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		owner := middleware.OwnerFromContext(r.Context())

		itemID, ok := cartItemID(w, r)
		if !ok {
			return
		}

		var req models.UpdateCartItemRequest
		if !utils.ParseAndValidate(r, w, &req, h.validator) {
			return
		}

		result, err := h.carts.UpdateItemQuantity(r.Context(), owner, itemID, *req.Quantity)
		if err != nil {
			response.Error(w, err)
			return
		}

		response.Success(w, http.StatusOK, result)
	}
}

// DELETE /api/v1/cart/items/{id}
func (h *CartHandler) RemoveItem() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		owner := middleware.OwnerFromContext(r.Context())

		itemID, ok := cartItemID(w, r)
		if !ok {
			return
		}

		result, err := h.carts.RemoveItem(r.Context(), owner, itemID)
		if err != nil {
			response.Error(w, err)
			return
		}

		response.Success(w, http.StatusOK, result)
	}
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		result, err := h.carts.Clear(r.Context(), middleware.OwnerFromContext(r.Context()))
		if err != nil {
			response.Error(w, err)
			return
		}

		response.Success(w, http.StatusOK, result)
	}
}

// GET /api/v1/cart/validation
func (h *CartHandler) ValidateCart() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		result, err := h.validation.ValidateCart(r.Context(), middleware.OwnerFromContext(r.Context()))
		if err != nil {
			response.Error(w, err)
			return
		}

		response.Success(w, http.StatusOK, result)
	}
}

// POST /api/v1/cart/merge, authenticated callers only.
func (h *CartHandler) MergeGuestCart() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		logger := middleware.LoggerFromContext(r.Context())

		claims, ok := middleware.ClaimsFromContext(r.Context())
		if !ok {
			logger.Warn("Unauthorized merge attempt")
			response.Error(w, appErrors.UnauthorizedError("Authentication required"))
			return
		}

		var req models.MergeCartRequest
		if !utils.ParseAndValidate(r, w, &req, h.validator) {
			return
		}

		// Only the guest session the caller itself presents can be merged.
		if h.owners.GuestSession(r) != req.GuestSessionID {
			logger.Warn("Merge of a guest session the caller did not present", slog.String("userId", claims.UserID.String()))
			response.Error(w, appErrors.GuestSessionMismatchError())
			return
		}

		result, err := h.merges.SyncGuestCartToUser(r.Context(), req.GuestSessionID, claims.UserID, req.Strategy)
		if err != nil {
			response.Error(w, err)
			return
		}

		h.owners.ExpireSession(w)

		logger.Info("Guest cart merge completed", slog.Int("mergedItems", result.MergedItems), slog.Int("failedItems", result.FailedItems))
		response.Success(w, http.StatusOK, result)
	}
}

func cartItemID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {

	itemID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		response.Error(w, appErrors.ValidationError("Invalid cart item id").WithDetail(r.PathValue("id")))
		return uuid.Nil, false
	}

	return itemID, true
}
