package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/quancafe/api/internal/database"
	"github.com/quancafe/api/internal/enum"
	"github.com/quancafe/api/internal/middleware"
	"github.com/quancafe/api/internal/service"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	CreateDineIn(ctx context.Context, req service.CreateDineInRequest) (*service.OrderResult, error)
	CreateOnline(ctx context.Context, req service.CreateOnlineRequest) (*service.OrderResult, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, newStatus string) (database.Order, error)
	TransferTable(ctx context.Context, orderID uuid.UUID, newTableID string) (database.Order, error)
}

// OrderStore defines the database methods needed by order read handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type OrderStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrders(ctx context.Context) ([]database.Order, error)
	ListOrdersByUser(ctx context.Context, userID uuid.UUID) ([]database.Order, error)
	ListOrdersByTable(ctx context.Context, tableID uuid.UUID) ([]database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc   OrderServicer
	store OrderStore
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer, store OrderStore) *OrderHandler {
	return &OrderHandler{svc: svc, store: store}
}

// RegisterRoutes registers customer-facing order endpoints. Mounted inside
// the authenticated group at /orders.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.CreateDineIn)
	r.Post("/online", h.CreateOnline)
	r.Get("/my-orders", h.ListMine)
	r.Get("/{id}", h.Get)
}

// RegisterAdminRoutes registers staff order endpoints. Mounted inside the
// ADMIN group at /admin/orders.
func (h *OrderHandler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/table/{tableID}", h.ListByTable)
	r.Patch("/{id}/status", h.UpdateStatus)
	r.Patch("/{id}/transfer-table", h.TransferTable)
}

// --- Request / Response types ---

type orderItemRequest struct {
	MenuItemID string `json:"menu_item_id"`
	Quantity   int32  `json:"quantity"`
}

type createDineInRequest struct {
	TableID string             `json:"table_id"`
	Items   []orderItemRequest `json:"items"`
}

type createOnlineRequest struct {
	OrderType       string             `json:"order_type"`
	Items           []orderItemRequest `json:"items"`
	DeliveryAddress string             `json:"delivery_address"`
	DeliveryPhone   string             `json:"delivery_phone"`
	DeliveryFee     string             `json:"delivery_fee"`
	PaymentMethod   string             `json:"payment_method"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type transferTableRequest struct {
	TableID string `json:"table_id"`
}

type orderResponse struct {
	ID              uuid.UUID           `json:"id"`
	UserID          uuid.UUID           `json:"user_id"`
	TableID         *string             `json:"table_id"`
	OrderType       string              `json:"order_type"`
	Subtotal        string              `json:"subtotal"`
	DeliveryFee     string              `json:"delivery_fee"`
	DeliveryAddress *string             `json:"delivery_address"`
	DeliveryPhone   *string             `json:"delivery_phone"`
	PaymentMethod   string              `json:"payment_method"`
	PaymentStatus   string              `json:"payment_status"`
	Status          string              `json:"status"`
	OrderTime       time.Time           `json:"order_time"`
	CompletedTime   *time.Time          `json:"completed_time"`
	Items           []orderItemResponse `json:"items,omitempty"`
}

type orderItemResponse struct {
	ID         uuid.UUID `json:"id"`
	MenuItemID uuid.UUID `json:"menu_item_id"`
	Name       string    `json:"name"`
	Quantity   int32     `json:"quantity"`
	UnitPrice  string    `json:"unit_price"`
}

func toOrderResponse(o database.Order) orderResponse {
	resp := orderResponse{
		ID:            o.ID,
		UserID:        o.UserID,
		OrderType:     o.OrderType,
		Subtotal:      database.NumericToString(o.Subtotal),
		DeliveryFee:   database.NumericToString(o.DeliveryFee),
		PaymentMethod: o.PaymentMethod,
		PaymentStatus: o.PaymentStatus,
		Status:        o.Status,
		OrderTime:     o.OrderTime,
	}
	if o.TableID.Valid {
		s := uuid.UUID(o.TableID.Bytes).String()
		resp.TableID = &s
	}
	if o.DeliveryAddress.Valid {
		resp.DeliveryAddress = &o.DeliveryAddress.String
	}
	if o.DeliveryPhone.Valid {
		resp.DeliveryPhone = &o.DeliveryPhone.String
	}
	if o.CompletedTime.Valid {
		resp.CompletedTime = &o.CompletedTime.Time
	}
	return resp
}

func toOrderResponseWithItems(o database.Order, items []database.OrderItem) orderResponse {
	resp := toOrderResponse(o)
	resp.Items = make([]orderItemResponse, len(items))
	for i, it := range items {
		resp.Items[i] = orderItemResponse{
			ID:         it.ID,
			MenuItemID: it.MenuItemID,
			Name:       it.Name,
			Quantity:   it.Quantity,
			UnitPrice:  database.NumericToString(it.UnitPrice),
		}
	}
	return resp
}

// --- Handlers ---

// CreateDineIn handles POST /orders.
func (h *OrderHandler) CreateDineIn(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		errorJSON(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req createDineInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TableID == "" {
		errorJSON(w, http.StatusBadRequest, "table_id is required")
		return
	}

	result, err := h.svc.CreateDineIn(r.Context(), service.CreateDineInRequest{
		UserID:  claims.UserID,
		TableID: req.TableID,
		Items:   toServiceItems(req.Items),
	})
	if err != nil {
		respondOrderError(w, "create dine-in order", err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponseWithItems(result.Order, result.Items))
}

// CreateOnline handles POST /orders/online.
func (h *OrderHandler) CreateOnline(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		errorJSON(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req createOnlineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.CreateOnline(r.Context(), service.CreateOnlineRequest{
		UserID:          claims.UserID,
		OrderType:       req.OrderType,
		Items:           toServiceItems(req.Items),
		DeliveryAddress: req.DeliveryAddress,
		DeliveryPhone:   req.DeliveryPhone,
		DeliveryFee:     req.DeliveryFee,
		PaymentMethod:   req.PaymentMethod,
	})
	if err != nil {
		respondOrderError(w, "create online order", err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponseWithItems(result.Order, result.Items))
}

// Get handles GET /orders/{id}. Customers can only read their own orders.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	items, err := h.store.ListOrderItemsByOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list order items: %v", err)
		errorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponseWithItems(order, items))
}

// ListMine handles GET /orders/my-orders.
func (h *OrderHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		errorJSON(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	orders, err := h.store.ListOrdersByUser(r.Context(), claims.UserID)
	if err != nil {
		log.Printf("ERROR: list my orders: %v", err)
		errorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toOrderListResponse(orders))
}

// List handles GET /admin/orders.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	orders, err := h.store.ListOrders(r.Context())
	if err != nil {
		log.Printf("ERROR: list orders: %v", err)
		errorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toOrderListResponse(orders))
}

// ListByTable handles GET /admin/orders/table/{tableID}.
func (h *OrderHandler) ListByTable(w http.ResponseWriter, r *http.Request) {
	tableID, err := uuid.Parse(chi.URLParam(r, "tableID"))
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid table ID")
		return
	}

	orders, err := h.store.ListOrdersByTable(r.Context(), tableID)
	if err != nil {
		log.Printf("ERROR: list orders by table: %v", err)
		errorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toOrderListResponse(orders))
}

// UpdateStatus handles PATCH /admin/orders/{id}/status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status == "" {
		errorJSON(w, http.StatusBadRequest, "status is required")
		return
	}

	order, err := h.svc.UpdateStatus(r.Context(), orderID, req.Status)
	if err != nil {
		respondOrderError(w, "update order status", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// TransferTable handles PATCH /admin/orders/{id}/transfer-table.
func (h *OrderHandler) TransferTable(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	var req transferTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TableID == "" {
		errorJSON(w, http.StatusBadRequest, "table_id is required")
		return
	}

	order, err := h.svc.TransferTable(r.Context(), orderID, req.TableID)
	if err != nil {
		respondOrderError(w, "transfer table", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// --- Helpers ---

func toServiceItems(items []orderItemRequest) []service.OrderItemRequest {
	out := make([]service.OrderItemRequest, len(items))
	for i, it := range items {
		out[i] = service.OrderItemRequest{MenuItemID: it.MenuItemID, Quantity: it.Quantity}
	}
	return out
}

func toOrderListResponse(orders []database.Order) map[string]interface{} {
	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toOrderResponse(o)
	}
	return map[string]interface{}{"orders": resp}
}

// respondOrderError maps known service errors to HTTP status codes.
func respondOrderError(w http.ResponseWriter, op string, err error) {
	switch {
	case isValidationError(err):
		errorJSON(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrOrderNotFound), errors.Is(err, service.ErrTableNotFound):
		errorJSON(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrStatusConflict),
		errors.Is(err, service.ErrOrderNotActive),
		errors.Is(err, service.ErrPaymentResolved),
		errors.Is(err, service.ErrOrderNotPayable):
		errorJSON(w, http.StatusConflict, err.Error())
	default:
		log.Printf("ERROR: %s: %v", op, err)
		errorJSON(w, http.StatusInternalServerError, "internal server error")
	}
}

func isValidationError(err error) bool {
	for _, target := range []error{
		service.ErrEmptyItems,
		service.ErrInvalidQuantity,
		service.ErrInvalidMenuItemID,
		service.ErrMenuItemNotFound,
		service.ErrMenuItemUnavailable,
		service.ErrInvalidTableID,
		service.ErrInvalidOrderType,
		service.ErrDeliveryInfoRequired,
		service.ErrInvalidDeliveryFee,
		service.ErrInvalidPaymentMethod,
		service.ErrInvalidStatus,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
