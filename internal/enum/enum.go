package enum

// ── State machines (CHECK constrained in DB) ──

const (
	OrderStatusPending   = "PENDING"
	OrderStatusConfirmed = "CONFIRMED"
	OrderStatusPreparing = "PREPARING"
	OrderStatusReady     = "READY"
	OrderStatusCompleted = "COMPLETED"
	OrderStatusCancelled = "CANCELLED"
)

const (
	PaymentStatusPending  = "PENDING"
	PaymentStatusPaid     = "PAID"
	PaymentStatusFailed   = "FAILED"
	PaymentStatusRefunded = "REFUNDED"
)

const (
	TableStatusAvailable = "AVAILABLE"
	TableStatusOccupied  = "OCCUPIED"
	TableStatusPaid      = "PAID"
)

// ── Categorical labels ──

const (
	OrderTypeDineIn   = "DINE_IN"
	OrderTypeDelivery = "DELIVERY"
	OrderTypePickup   = "PICKUP"
)

const (
	PaymentMethodCash   = "CASH"
	PaymentMethodOnline = "ONLINE"
	PaymentMethodCard   = "CARD"
)

const (
	UserRoleAdmin    = "ADMIN"
	UserRoleCustomer = "CUSTOMER"
)

const (
	GatewayQRCode       = "QR_CODE"
	GatewayVNPay        = "VNPAY"
	GatewayMoMo         = "MOMO"
	GatewayZaloPay      = "ZALOPAY"
	GatewayBankTransfer = "BANK_TRANSFER"
)

// ActiveOrderStatuses are the order statuses that keep a dine-in table occupied.
var ActiveOrderStatuses = []string{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusReady,
}

// IsActiveOrderStatus reports whether the status still claims the table.
func IsActiveOrderStatus(s string) bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusPreparing, OrderStatusReady:
		return true
	}
	return false
}

// IsTerminalOrderStatus reports whether no further order transition is permitted.
func IsTerminalOrderStatus(s string) bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// IsTerminalPaymentStatus reports whether the payment is resolved.
func IsTerminalPaymentStatus(s string) bool {
	switch s {
	case PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}
