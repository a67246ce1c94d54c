package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/quancafe/api/internal/database"
	"github.com/quancafe/api/internal/enum"
	"github.com/quancafe/api/internal/gateway"
	"github.com/quancafe/api/internal/middleware"
	"github.com/quancafe/api/internal/qr"
	"github.com/quancafe/api/internal/service"
)

// PaymentServicer defines the service methods needed by payment handlers.
// Satisfied by *service.PaymentService.
type PaymentServicer interface {
	DirectPay(ctx context.Context, orderID uuid.UUID, method string) (database.Order, error)
	InitiateGateway(ctx context.Context, orderID, configID uuid.UUID, clientIP string) (service.InitiateResult, error)
	HandleCallback(ctx context.Context, orderID uuid.UUID, params url.Values) service.CallbackOutcome
	HandleWebhook(ctx context.Context, orderID uuid.UUID, req service.WebhookRequest) service.WebhookResult
	Simulate(ctx context.Context, orderID uuid.UUID) error
}

// PaymentStore defines the database reads payment handlers need directly.
type PaymentStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetActiveQRConfig(ctx context.Context) (database.PaymentConfig, error)
}

// PaymentHandler handles payment endpoints.
type PaymentHandler struct {
	svc        PaymentServicer
	store      PaymentStore
	frontend   string
	simEnabled bool
}

// NewPaymentHandler creates a new PaymentHandler. frontendURL is where the
// payment callback redirects the returning browser.
func NewPaymentHandler(svc PaymentServicer, store PaymentStore, frontendURL string, simEnabled bool) *PaymentHandler {
	return &PaymentHandler{
		svc:        svc,
		store:      store,
		frontend:   strings.TrimSuffix(frontendURL, "/"),
		simEnabled: simEnabled,
	}
}

// RegisterRoutes registers authenticated payment endpoints. Mounted at
// /orders inside the authenticated group.
func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Get("/{id}/qr-payment", h.QRPayment)
	r.Get("/{id}/payment-status", h.Status)
	r.Post("/{id}/process-payment", h.Process)
	r.Post("/{id}/payment", h.Pay)
}

// RegisterPublicRoutes registers the endpoints gateways call back without a
// bearer token. Authenticity comes from signature verification instead.
func (h *PaymentHandler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/{id}/payment-callback", h.Callback)
	r.Post("/{id}/payment-webhook", h.Webhook)
	if h.simEnabled {
		r.Post("/{id}/simulate-qr-payment", h.Simulate)
	}
}

// --- Request / Response types ---

type processPaymentRequest struct {
	PaymentConfigID string `json:"payment_config_id"`
}

type payRequest struct {
	PaymentMethod string `json:"payment_method"`
}

type webhookRequest struct {
	TransactionID   string `json:"transaction_id"`
	Amount          string `json:"amount"`
	Status          string `json:"status"`
	Signature       string `json:"signature"`
	PaymentConfigID string `json:"payment_config_id"`
}

type qrPaymentResponse struct {
	OrderCode  string     `json:"order_code"`
	Amount     string     `json:"amount"`
	EMV        string     `json:"emv"`
	Payload    qr.Payload `json:"payload"`
	BankName   string     `json:"bank_name"`
	QRImageURL *string    `json:"qr_image_url"`
}

// --- Handlers ---

// QRPayment handles GET /orders/{id}/qr-payment. Returns the bank-transfer
// QR payload for the order total.
func (h *PaymentHandler) QRPayment(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		errorJSON(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			errorJSON(w, http.StatusNotFound, "order not found")
			return
		}
		log.Printf("ERROR: get order: %v", err)
		errorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if claims.Role != enum.UserRoleAdmin && order.UserID != claims.UserID {
		errorJSON(w, http.StatusForbidden, "insufficient permissions")
		return
	}

	transfer := qr.Transfer{}
	var qrImage *string
	cfg, err := h.store.GetActiveQRConfig(r.Context())
	if err == nil {
		transfer = qr.Transfer{
			BankCode:      cfg.BankCode.String,
			AccountNumber: cfg.AccountNumber.String,
			AccountName:   cfg.AccountName.String,
			BankName:      cfg.BankName.String,
		}
		if cfg.QRImageURL.Valid {
			qrImage = &cfg.QRImageURL.String
		}
	} else if !errors.Is(err, pgx.ErrNoRows) {
		log.Printf("ERROR: get active QR config: %v", err)
		errorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}
	transfer = transfer.WithDefaults()

	total := database.NumericToDecimal(order.Subtotal).Add(database.NumericToDecimal(order.DeliveryFee))
	code := qr.OrderCode(orderID)

	writeJSON(w, http.StatusOK, qrPaymentResponse{
		OrderCode:  code,
		Amount:     total.String(),
		EMV:        qr.BuildEMV(total, code),
		Payload:    qr.BuildPayload(transfer, total, code, orderID),
		BankName:   transfer.BankName,
		QRImageURL: qrImage,
	})
}

// Status handles GET /orders/{id}/payment-status. Polled by the client while
// it waits for a confirmation channel to land.
func (h *PaymentHandler) Status(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		errorJSON(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			errorJSON(w, http.StatusNotFound, "order not found")
			return
		}
		log.Printf("ERROR: get order: %v", err)
		errorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if claims.Role != enum.UserRoleAdmin && order.UserID != claims.UserID {
		errorJSON(w, http.StatusForbidden, "insufficient permissions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"payment_status": order.PaymentStatus,
		"order_status":   order.Status,
	})
}

// Process handles POST /orders/{id}/process-payment. Starts an online payment
// through the selected payment config.
func (h *PaymentHandler) Process(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		errorJSON(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	var req processPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}
	configID, err := uuid.Parse(req.PaymentConfigID)
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid payment_config_id")
		return
	}

	result, err := h.svc.InitiateGateway(r.Context(), orderID, configID, clientIP(r))
	if err != nil {
		respondPaymentError(w, "process payment", err)
		return
	}

	if result.Manual {
		writeJSON(w, http.StatusOK, map[string]interface{}{"manual": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"manual": false, "pay_url": result.PayURL})
}

// Pay handles POST /orders/{id}/payment. Marks the order paid directly,
// used by staff for counter payments.
func (h *PaymentHandler) Pay(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		errorJSON(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	if claims.Role != enum.UserRoleAdmin {
		errorJSON(w, http.StatusForbidden, "insufficient permissions")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	var req payRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.svc.DirectPay(r.Context(), orderID, req.PaymentMethod)
	if err != nil {
		respondPaymentError(w, "direct payment", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// Callback handles GET /orders/{id}/payment-callback, the browser return leg
// from a gateway. Always redirects to the frontend payment page; the outcome
// rides in the query string.
func (h *PaymentHandler) Callback(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Redirect(w, r, h.frontend+"/payment/invalid?error=order_not_found", http.StatusFound)
		return
	}

	outcome := h.svc.HandleCallback(r.Context(), orderID, r.URL.Query())

	dest := h.frontend + "/payment/" + orderID.String()
	if outcome.Success {
		dest += "?success=true"
	} else {
		dest += "?error=" + outcome.Reason
	}
	http.Redirect(w, r, dest, http.StatusFound)
}

// Webhook handles POST /orders/{id}/payment-webhook, the server-to-server
// confirmation leg.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "message": "invalid order ID"})
		return
	}

	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "message": "invalid request body"})
		return
	}

	result := h.svc.HandleWebhook(r.Context(), orderID, service.WebhookRequest{
		TransactionID:   req.TransactionID,
		Amount:          req.Amount,
		Status:          req.Status,
		Signature:       req.Signature,
		PaymentConfigID: req.PaymentConfigID,
	})

	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]interface{}{"success": result.Success, "message": result.Message})
}

// Simulate handles POST /orders/{id}/simulate-qr-payment. Registered only
// when the payment simulator is enabled.
func (h *PaymentHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	if err := h.svc.Simulate(r.Context(), orderID); err != nil {
		respondPaymentError(w, "simulate payment", err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"message": "payment simulation scheduled"})
}

// --- Helpers ---

func respondPaymentError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrOrderNotFound):
		errorJSON(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrPaymentResolved), errors.Is(err, service.ErrOrderNotPayable):
		errorJSON(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrConfigUnavailable), errors.Is(err, service.ErrInvalidPaymentMethod), errors.Is(err, service.ErrInvalidStatus):
		errorJSON(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, gateway.ErrMissingField):
		log.Printf("ERROR: %s: %v", op, err)
		errorJSON(w, http.StatusBadGateway, "payment gateway misconfigured")
	case errors.Is(err, gateway.ErrGateway):
		log.Printf("ERROR: %s: %v", op, err)
		errorJSON(w, http.StatusBadGateway, "payment gateway unavailable")
	default:
		log.Printf("ERROR: %s: %v", op, err)
		errorJSON(w, http.StatusInternalServerError, "internal server error")
	}
}

// clientIP extracts the caller's IP, honoring X-Forwarded-For behind a proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
