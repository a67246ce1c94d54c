package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/quancafe/api/internal/database"
	"github.com/quancafe/api/internal/enum"
	"github.com/quancafe/api/internal/gateway"
	"github.com/quancafe/api/internal/qr"
)

// PaymentStore defines the DB methods the payment funnel needs inside a
// transaction.
type PaymentStore interface {
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	UpdateOrderPayment(ctx context.Context, arg database.UpdateOrderPaymentParams) (database.Order, error)
}

// NewPaymentStore creates a PaymentStore bound to a DBTX.
type NewPaymentStore func(db database.DBTX) PaymentStore

// PaymentReadStore serves the read-only lookups done outside the funnel.
type PaymentReadStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetPaymentConfig(ctx context.Context, id uuid.UUID) (database.PaymentConfig, error)
	GetActivePaymentConfigByType(ctx context.Context, gatewayType string) (database.PaymentConfig, error)
}

// PaymentService resolves order payments. Every confirmation channel, gateway
// callback, webhook, manual confirmation, and the dev simulator, funnels
// through Resolve, which serializes on the order row and writes the terminal
// payment status at most once.
type PaymentService struct {
	pool       TxBeginner
	newStore   NewPaymentStore
	reads      PaymentReadStore
	registry   *gateway.Registry
	sim        *Simulator
	backendURL string
	notify     Notifier
}

// NewPaymentService creates a new PaymentService. sim may be nil when the
// payment simulator is disabled.
func NewPaymentService(pool TxBeginner, newStore NewPaymentStore, reads PaymentReadStore, registry *gateway.Registry, sim *Simulator, backendURL string) *PaymentService {
	return &PaymentService{
		pool:       pool,
		newStore:   newStore,
		reads:      reads,
		registry:   registry,
		sim:        sim,
		backendURL: strings.TrimSuffix(backendURL, "/"),
	}
}

// OnChange registers a post-commit notification hook.
func (s *PaymentService) OnChange(fn Notifier) {
	s.notify = fn
}

// Resolve moves the order's payment to a terminal status. Reports whether the
// write happened: a repeat of an already-applied resolution is a no-op, not
// an error. A different terminal status than the stored one is rejected.
func (s *PaymentService) Resolve(ctx context.Context, orderID uuid.UUID, target, method string) (database.Order, bool, error) {
	if !enum.IsTerminalPaymentStatus(target) {
		return database.Order{}, false, ErrInvalidStatus
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Order{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, false, ErrOrderNotFound
		}
		return database.Order{}, false, fmt.Errorf("get order: %w", err)
	}

	if order.PaymentStatus == target {
		return order, false, nil
	}
	if enum.IsTerminalPaymentStatus(order.PaymentStatus) {
		return database.Order{}, false, ErrPaymentResolved
	}
	if target == enum.PaymentStatusPaid && order.Status == enum.OrderStatusCancelled {
		return database.Order{}, false, ErrOrderNotPayable
	}

	if method == "" {
		method = order.PaymentMethod
	}

	updated, err := store.UpdateOrderPayment(ctx, database.UpdateOrderPaymentParams{
		ID:            orderID,
		PaymentStatus: target,
		PaymentMethod: method,
		FromStatus:    enum.PaymentStatusPending,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, false, ErrPaymentResolved
		}
		return database.Order{}, false, fmt.Errorf("update order payment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Order{}, false, fmt.Errorf("commit tx: %w", err)
	}

	if s.sim != nil {
		s.sim.Cancel(orderID)
	}
	if s.notify != nil {
		s.notify("order.payment_updated", updated)
	}
	return updated, true, nil
}

// DirectPay marks the order paid on behalf of staff or a customer-side
// confirmation without a gateway calling back.
func (s *PaymentService) DirectPay(ctx context.Context, orderID uuid.UUID, method string) (database.Order, error) {
	if method == "" {
		method = enum.PaymentMethodOnline
	}
	if !isValidPaymentMethod(method) {
		return database.Order{}, ErrInvalidPaymentMethod
	}
	order, _, err := s.Resolve(ctx, orderID, enum.PaymentStatusPaid, method)
	return order, err
}

// InitiateResult is the outcome of starting an online payment.
type InitiateResult struct {
	// PayURL is where to send the payer. Empty for manual methods.
	PayURL string
	// Manual means the method has no redirect flow (static QR, bank
	// transfer); the client should show the QR payload instead.
	Manual bool
}

// InitiateGateway starts an online payment via the selected payment config.
func (s *PaymentService) InitiateGateway(ctx context.Context, orderID, configID uuid.UUID, clientIP string) (InitiateResult, error) {
	order, err := s.reads.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return InitiateResult{}, ErrOrderNotFound
		}
		return InitiateResult{}, fmt.Errorf("get order: %w", err)
	}
	if enum.IsTerminalPaymentStatus(order.PaymentStatus) {
		return InitiateResult{}, ErrPaymentResolved
	}
	if order.Status == enum.OrderStatusCancelled {
		return InitiateResult{}, ErrOrderNotPayable
	}

	cfg, err := s.reads.GetPaymentConfig(ctx, configID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return InitiateResult{}, ErrConfigUnavailable
		}
		return InitiateResult{}, fmt.Errorf("get payment config: %w", err)
	}
	if !cfg.Active {
		return InitiateResult{}, ErrConfigUnavailable
	}

	if cfg.Type == enum.GatewayQRCode || cfg.Type == enum.GatewayBankTransfer {
		return InitiateResult{Manual: true}, nil
	}

	signer, ok := s.registry.Get(cfg.Type)
	if !ok {
		return InitiateResult{}, ErrConfigUnavailable
	}

	total := database.NumericToDecimal(order.Subtotal).Add(database.NumericToDecimal(order.DeliveryFee))
	code := qr.OrderCode(orderID)

	payURL, err := signer.CreatePayment(ctx, s.gatewayConfig(cfg, orderID), gateway.PaymentRequest{
		OrderRef:  code,
		OrderID:   orderID.String(),
		Amount:    total,
		OrderInfo: fmt.Sprintf("Thanh toan don hang %s", code),
		ClientIP:  clientIP,
		Now:       time.Now(),
	})
	if err != nil {
		return InitiateResult{}, err
	}
	return InitiateResult{PayURL: payURL}, nil
}

// CallbackOutcome tells the handler how to redirect the returning browser.
type CallbackOutcome struct {
	Success bool
	Reason  string
}

// HandleCallback processes a gateway return redirect. The signature is always
// verified before the result code is trusted; an unverifiable callback never
// touches the payment.
func (s *PaymentService) HandleCallback(ctx context.Context, orderID uuid.UUID, params url.Values) CallbackOutcome {
	var (
		gatewayType string
		successCode bool
	)
	switch {
	case params.Get("vnp_ResponseCode") != "":
		gatewayType = enum.GatewayVNPay
		successCode = params.Get("vnp_ResponseCode") == "00"
	case params.Get("resultCode") != "":
		gatewayType = enum.GatewayMoMo
		successCode = params.Get("resultCode") == "0"
	default:
		return CallbackOutcome{Reason: "unknown_gateway"}
	}

	cfg, err := s.reads.GetActivePaymentConfigByType(ctx, gatewayType)
	if err != nil {
		log.Printf("ERROR: payment callback for order %s: no active %s config: %v", orderID, gatewayType, err)
		return CallbackOutcome{Reason: "payment_failed"}
	}

	signer, ok := s.registry.Get(gatewayType)
	if !ok {
		return CallbackOutcome{Reason: "payment_failed"}
	}
	if err := signer.VerifyCallback(s.gatewayConfig(cfg, orderID), params); err != nil {
		log.Printf("ERROR: payment callback for order %s: %v", orderID, err)
		return CallbackOutcome{Reason: "payment_failed"}
	}

	if !successCode {
		return CallbackOutcome{Reason: "payment_failed"}
	}

	// The signature proves the gateway issued the redirect, not that it
	// targets this order. The reference and amount must also match, or a
	// signed redirect for one order could pay off another.
	order, err := s.reads.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CallbackOutcome{Reason: "order_not_found"}
		}
		log.Printf("ERROR: payment callback for order %s: get order: %v", orderID, err)
		return CallbackOutcome{Reason: "payment_failed"}
	}
	total := database.NumericToDecimal(order.Subtotal).Add(database.NumericToDecimal(order.DeliveryFee))
	switch gatewayType {
	case enum.GatewayVNPay:
		if params.Get("vnp_TxnRef") != qr.OrderCode(orderID) ||
			params.Get("vnp_Amount") != fmt.Sprintf("%d", total.Shift(2).IntPart()) {
			log.Printf("ERROR: payment callback for order %s: reference or amount mismatch", orderID)
			return CallbackOutcome{Reason: "payment_failed"}
		}
	case enum.GatewayMoMo:
		if params.Get("orderId") != orderID.String() ||
			params.Get("amount") != fmt.Sprintf("%d", total.IntPart()) {
			log.Printf("ERROR: payment callback for order %s: reference or amount mismatch", orderID)
			return CallbackOutcome{Reason: "payment_failed"}
		}
	}

	_, _, err = s.Resolve(ctx, orderID, enum.PaymentStatusPaid, enum.PaymentMethodOnline)
	switch {
	case err == nil:
		return CallbackOutcome{Success: true}
	case errors.Is(err, ErrOrderNotFound):
		return CallbackOutcome{Reason: "order_not_found"}
	default:
		log.Printf("ERROR: payment callback for order %s: resolve: %v", orderID, err)
		return CallbackOutcome{Reason: "payment_failed"}
	}
}

// WebhookRequest is the server-to-server confirmation body.
type WebhookRequest struct {
	TransactionID   string
	Amount          string
	Status          string
	Signature       string
	PaymentConfigID string
}

// WebhookResult is returned to the calling gateway.
type WebhookResult struct {
	Success bool
	Message string
}

// HandleWebhook processes a server-to-server payment notification. The caller
// must reference a payment config and sign the canonical fields with its API
// secret; unsigned or unverifiable webhooks are rejected without touching the
// order.
func (s *PaymentService) HandleWebhook(ctx context.Context, orderID uuid.UUID, req WebhookRequest) WebhookResult {
	if req.PaymentConfigID == "" || req.Signature == "" {
		return WebhookResult{Message: "signature required"}
	}
	configID, err := uuid.Parse(req.PaymentConfigID)
	if err != nil {
		return WebhookResult{Message: "invalid payment_config_id"}
	}
	cfg, err := s.reads.GetPaymentConfig(ctx, configID)
	if err != nil {
		return WebhookResult{Message: "unknown payment config"}
	}
	if !cfg.APISecret.Valid || cfg.APISecret.String == "" {
		return WebhookResult{Message: "payment config cannot verify webhooks"}
	}

	canonical := fmt.Sprintf("amount=%s&orderId=%s&status=%s&transactionId=%s",
		req.Amount, orderID, req.Status, req.TransactionID)
	mac := hmac.New(sha256.New, []byte(cfg.APISecret.String))
	mac.Write([]byte(canonical))
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(req.Signature)
	if err != nil || !hmac.Equal(expected, got) {
		log.Printf("ERROR: payment webhook for order %s: invalid signature", orderID)
		return WebhookResult{Message: "invalid signature"}
	}

	switch strings.ToUpper(req.Status) {
	case "SUCCESS", "PAID":
	default:
		return WebhookResult{Message: "unsupported status"}
	}

	_, changed, err := s.Resolve(ctx, orderID, enum.PaymentStatusPaid, enum.PaymentMethodOnline)
	switch {
	case err == nil && changed:
		return WebhookResult{Success: true, Message: "payment confirmed"}
	case err == nil:
		return WebhookResult{Success: true, Message: "payment already confirmed"}
	case errors.Is(err, ErrOrderNotFound):
		return WebhookResult{Message: "order not found"}
	case errors.Is(err, ErrOrderNotPayable), errors.Is(err, ErrPaymentResolved):
		return WebhookResult{Message: err.Error()}
	default:
		log.Printf("ERROR: payment webhook for order %s: resolve: %v", orderID, err)
		return WebhookResult{Message: "internal error"}
	}
}

// Simulate schedules a fake payment confirmation for development. The timer
// goes through Resolve like every other channel, so a real confirmation
// landing first makes the simulated one a no-op even if cancellation races.
func (s *PaymentService) Simulate(ctx context.Context, orderID uuid.UUID) error {
	if s.sim == nil {
		return ErrConfigUnavailable
	}

	order, err := s.reads.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("get order: %w", err)
	}
	if enum.IsTerminalPaymentStatus(order.PaymentStatus) {
		return ErrPaymentResolved
	}

	s.sim.Schedule(orderID, func() {
		if _, _, err := s.Resolve(context.Background(), orderID, enum.PaymentStatusPaid, enum.PaymentMethodOnline); err != nil {
			log.Printf("ERROR: simulated payment for order %s: %v", orderID, err)
		}
	})
	return nil
}

// gatewayConfig maps a stored payment config to signer credentials, with the
// per-order return and notify URLs pointed at this backend.
func (s *PaymentService) gatewayConfig(cfg database.PaymentConfig, orderID uuid.UUID) gateway.Config {
	returnURL := cfg.ReturnURL.String
	if returnURL == "" {
		returnURL = fmt.Sprintf("%s/orders/%s/payment-callback", s.backendURL, orderID)
	}
	callbackURL := cfg.CallbackURL.String
	if callbackURL == "" {
		callbackURL = fmt.Sprintf("%s/orders/%s/payment-webhook", s.backendURL, orderID)
	}
	return gateway.Config{
		MerchantID:  cfg.MerchantID.String,
		AccessKey:   cfg.APIKey.String,
		SecretKey:   cfg.APISecret.String,
		APIURL:      cfg.APIURL.String,
		ReturnURL:   returnURL,
		CallbackURL: callbackURL,
	}
}
