package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type IssueKind string

const (
	IssueProductNotFound   IssueKind = "PRODUCT_NOT_FOUND"
	IssueProductInactive   IssueKind = "PRODUCT_INACTIVE"
	IssueOutOfStock        IssueKind = "OUT_OF_STOCK"
	IssueInsufficientStock IssueKind = "INSUFFICIENT_STOCK"
	IssueLowStock          IssueKind = "LOW_STOCK"
	IssuePriceChanged      IssueKind = "PRICE_CHANGED"
	IssueLargeCart         IssueKind = "LARGE_CART"
	IssueNegativeTotal     IssueKind = "NEGATIVE_TOTAL"
	IssueCartExpired       IssueKind = "CART_EXPIRED"
)

type SuggestedAction string

const (
	ActionRemoveFromCart SuggestedAction = "remove_from_cart"
	ActionReduceToStock  SuggestedAction = "reduce_to_available_stock"
	ActionReviewPrice    SuggestedAction = "review_price"
	ActionStartNewCart   SuggestedAction = "start_new_cart"
	ActionNone           SuggestedAction = ""
)

type ValidationIssue struct {
	Kind            IssueKind        `json:"kind"`
	ProductID       *uuid.UUID       `json:"product_id,omitempty"`
	CartItemID      *uuid.UUID       `json:"cart_item_id,omitempty"`
	Message         string           `json:"message"`
	SuggestedAction SuggestedAction  `json:"suggested_action,omitempty"`
	OldPrice        *decimal.Decimal `json:"old_price,omitempty"`
	NewPrice        *decimal.Decimal `json:"new_price,omitempty"`
	AvailableStock  *int             `json:"available_stock,omitempty"`
}

// ValidationResult is read-only advice about a cart. Errors block checkout
// readiness, warnings do not.
type ValidationResult struct {
	IsValid   bool              `json:"is_valid"`
	Errors    []ValidationIssue `json:"errors"`
	Warnings  []ValidationIssue `json:"warnings"`
	CheckedAt time.Time         `json:"checked_at"`
}

func (r *ValidationResult) HasError(kind IssueKind) bool {
	return hasKind(r.Errors, kind)
}

func (r *ValidationResult) HasWarning(kind IssueKind) bool {
	return hasKind(r.Warnings, kind)
}

func hasKind(issues []ValidationIssue, kind IssueKind) bool {
	for _, issue := range issues {
		if issue.Kind == kind {
			return true
		}
	}

	return false
}
