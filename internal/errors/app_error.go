package errors

import (
	"errors"
	"fmt"
	"net/http"
)

type AppError struct {
	Code       string
	Message    string
	Detail     string
	StatusCode int
	Err        error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

func (e *AppError) WithDetail(detail string) *AppError {
	e.Detail = detail

	return e
}

func (e *AppError) WithError(err error) *AppError {
	e.Err = err

	return e
}

// IsRetryable reports whether the failure came from infrastructure rather than
// from a business rule. Callers may retry these at their own discretion.
func (e *AppError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeDatabaseError, ErrCodeInternal, ErrCodeThirdPartyError:
		return true
	}

	return false
}

const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeBadRequest        = "BAD_REQUEST"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeInternal          = "INTERNAL_ERROR"
	ErrCodeDatabaseError     = "DATABASE_ERROR"
	ErrCodeDuplicateEntry    = "DUPLICATE_ENTRY"
	ErrCodeThirdPartyError   = "THIRD_PARTY_ERROR"
	ErrCodeTooManyRequests   = "TOO_MANY_REQUESTS"
	ErrCodeResourceExhausted = "RESOURCE_EXHAUSTED"
)

// Cart error codes.
const (
	ErrCodeOwnerKeyMissing     = "OWNER_KEY_MISSING"
	ErrCodeOwnerKeyAmbiguous   = "OWNER_KEY_AMBIGUOUS"
	ErrCodeOwnershipMismatch   = "OWNERSHIP_MISMATCH"
	ErrCodeCartExpired         = "CART_EXPIRED"
	ErrCodeCartItemNotFound    = "CART_ITEM_NOT_FOUND"
	ErrCodeProductNotFound     = "PRODUCT_NOT_FOUND"
	ErrCodeProductInactive     = "PRODUCT_INACTIVE"
	ErrCodeOutOfStock          = "OUT_OF_STOCK"
	ErrCodeInsufficientStock   = "INSUFFICIENT_STOCK"
	ErrCodeMergeAlreadyApplied = "MERGE_ALREADY_APPLIED"
)

func ValidationError(message string) *AppError {
	return NewAppError(ErrCodeValidation, message, http.StatusBadRequest)
}

func BadRequestError(message string) *AppError {
	return NewAppError(ErrCodeBadRequest, message, http.StatusBadRequest)
}

func NotFoundError(message string) *AppError {
	return NewAppError(ErrCodeNotFound, message, http.StatusNotFound)
}

func UnauthorizedError(message string) *AppError {
	return NewAppError(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func ForbiddenError(message string) *AppError {
	return NewAppError(ErrCodeForbidden, message, http.StatusForbidden)
}

func InternalError(message string) *AppError {
	return NewAppError(ErrCodeInternal, message, http.StatusInternalServerError)
}

func DatabaseError(message string) *AppError {
	return NewAppError(ErrCodeDatabaseError, message, http.StatusInternalServerError)
}

func DuplicateEntryError(message string) *AppError {
	return NewAppError(ErrCodeDuplicateEntry, message, http.StatusConflict)
}

func ThirdPartyError(message string) *AppError {
	return NewAppError(ErrCodeThirdPartyError, message, http.StatusInternalServerError)
}

func TooManyRequestsError(message string) *AppError {
	return NewAppError(ErrCodeTooManyRequests, message, http.StatusTooManyRequests)
}

func ResourceExhaustedError(message string) *AppError {
	return NewAppError(ErrCodeResourceExhausted, message, http.StatusTooManyRequests)
}

func OwnerKeyMissingError() *AppError {
	return NewAppError(ErrCodeOwnerKeyMissing, "Either a user id or a session id is required", http.StatusBadRequest)
}

func OwnerKeyAmbiguousError() *AppError {
	return NewAppError(ErrCodeOwnerKeyAmbiguous, "Only one of user id or session id may be supplied", http.StatusBadRequest)
}

func OwnershipMismatchError() *AppError {
	return NewAppError(ErrCodeOwnershipMismatch, "Cart item does not belong to this cart", http.StatusForbidden)
}

func GuestSessionMismatchError() *AppError {
	return NewAppError(ErrCodeOwnershipMismatch, "Guest session does not belong to this caller", http.StatusForbidden)
}

func CartExpiredError() *AppError {
	return NewAppError(ErrCodeCartExpired, "Cart has expired", http.StatusGone)
}

func CartItemNotFoundError() *AppError {
	return NewAppError(ErrCodeCartItemNotFound, "Cart item not found", http.StatusNotFound)
}

func ProductNotFoundError(productID string) *AppError {
	return NewAppError(ErrCodeProductNotFound, "Product not found", http.StatusNotFound).WithDetail(productID)
}

func ProductInactiveError(name string) *AppError {
	return NewAppError(ErrCodeProductInactive, fmt.Sprintf("%s is no longer available", name), http.StatusConflict)
}

func OutOfStockError(name string) *AppError {
	return NewAppError(ErrCodeOutOfStock, fmt.Sprintf("%s is out of stock", name), http.StatusConflict)
}

func InsufficientStockError(name string, requested, available int) *AppError {
	return NewAppError(ErrCodeInsufficientStock,
		fmt.Sprintf("Only %d of %s available, requested %d", available, name, requested),
		http.StatusConflict)
}

func MergeAlreadyAppliedError() *AppError {
	return NewAppError(ErrCodeMergeAlreadyApplied, "Guest cart has already been merged", http.StatusConflict)
}

func IsAppError(err error) (*AppError, bool) {
	var appError *AppError

	if errors.As(err, &appError) {
		return appError, true
	}

	return nil, false
}

// HasCode reports whether err is an AppError carrying code.
func HasCode(err error, code string) bool {
	appErr, ok := IsAppError(err)

	return ok && appErr.Code == code
}

// field validation error.
func AddValidationError(field, reason string) *AppError {
	return ValidationError(fmt.Sprintf("Invalid field '%s': %s", field, reason))
}
