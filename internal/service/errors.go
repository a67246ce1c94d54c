package service

import "errors"

// Validation errors surfaced as 400s by handlers.
var (
	ErrEmptyItems           = errors.New("items are required")
	ErrInvalidQuantity      = errors.New("quantity must be > 0")
	ErrInvalidMenuItemID    = errors.New("invalid menu_item_id")
	ErrMenuItemNotFound     = errors.New("menu item not found")
	ErrMenuItemUnavailable  = errors.New("menu item is not available")
	ErrInvalidTableID       = errors.New("invalid table_id")
	ErrInvalidOrderType     = errors.New("order type must be DELIVERY or PICKUP")
	ErrDeliveryInfoRequired = errors.New("delivery address and phone are required for delivery orders")
	ErrInvalidDeliveryFee   = errors.New("invalid delivery_fee")
	ErrInvalidPaymentMethod = errors.New("invalid payment_method")
	ErrInvalidStatus        = errors.New("invalid status")
)

// Not-found errors surfaced as 404s.
var (
	ErrOrderNotFound = errors.New("order not found")
	ErrTableNotFound = errors.New("table not found")
)

// Conflict errors surfaced as 409s.
var (
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrStatusConflict    = errors.New("order status changed concurrently, please retry")
	ErrOrderNotActive    = errors.New("order is not in an active status")
	ErrPaymentResolved   = errors.New("payment already resolved")
	ErrOrderNotPayable   = errors.New("cancelled orders cannot be paid")
)

// Gateway / config errors.
var (
	ErrConfigUnavailable = errors.New("payment method not available")
)

// ErrMissingTable is an invariant violation: a dine-in order without a table
// reference cannot be reconciled. Treated as a bug, not a user error.
var ErrMissingTable = errors.New("dine-in order has no table reference")
