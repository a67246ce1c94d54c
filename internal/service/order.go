package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/quancafe/api/internal/database"
	"github.com/quancafe/api/internal/enum"
	"github.com/shopspring/decimal"
)

const maxTransitionRetries = 3

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods needed by the order engine.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	GetMenuItem(ctx context.Context, id uuid.UUID) (database.MenuItem, error)
	GetTable(ctx context.Context, id uuid.UUID) (database.CafeTable, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetTableForUpdate(ctx context.Context, id uuid.UUID) (database.CafeTable, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	UpdateOrderTable(ctx context.Context, arg database.UpdateOrderTableParams) (database.Order, error)
	CountActiveOrdersForTable(ctx context.Context, arg database.CountActiveOrdersForTableParams) (int64, error)
	SetTableStatus(ctx context.Context, arg database.SetTableStatusParams) (bool, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx), letting the
// service bind stores to transactions it opens.
type NewOrderStore func(db database.DBTX) OrderStore

// Notifier receives entity-change events after a successful commit.
type Notifier func(eventType string, order database.Order)

// OrderItemRequest is a single line item in an order request.
type OrderItemRequest struct {
	MenuItemID string
	Quantity   int32
}

// CreateDineInRequest is the validated input for a dine-in order.
type CreateDineInRequest struct {
	UserID  uuid.UUID
	TableID string
	Items   []OrderItemRequest
}

// CreateOnlineRequest is the validated input for a delivery or pickup order.
type CreateOnlineRequest struct {
	UserID          uuid.UUID
	OrderType       string
	Items           []OrderItemRequest
	DeliveryAddress string
	DeliveryPhone   string
	DeliveryFee     string
	PaymentMethod   string
}

// OrderResult is a created order with its item snapshots.
type OrderResult struct {
	Order database.Order
	Items []database.OrderItem
}

// OrderService drives the order lifecycle and keeps table occupancy
// consistent with the set of active orders.
type OrderService struct {
	pool     TxBeginner
	newStore NewOrderStore
	notify   Notifier
}

// NewOrderService creates a new OrderService.
func NewOrderService(pool TxBeginner, newStore NewOrderStore) *OrderService {
	return &OrderService{pool: pool, newStore: newStore}
}

// OnChange registers a post-commit notification hook.
func (s *OrderService) OnChange(fn Notifier) {
	s.notify = fn
}

// allowedTransitions defines valid order status transitions.
// Key is current status, value is the set of statuses it can transition to.
// Terminal statuses have no entry: nothing leaves COMPLETED or CANCELLED.
var allowedTransitions = map[string][]string{
	enum.OrderStatusPending:   {enum.OrderStatusConfirmed, enum.OrderStatusCancelled},
	enum.OrderStatusConfirmed: {enum.OrderStatusPreparing, enum.OrderStatusCancelled},
	enum.OrderStatusPreparing: {enum.OrderStatusReady, enum.OrderStatusCancelled},
	enum.OrderStatusReady:     {enum.OrderStatusCompleted, enum.OrderStatusCancelled},
}

// ValidateTransition checks if the transition from current to next is allowed.
func ValidateTransition(current, next string) error {
	allowed, ok := allowedTransitions[current]
	if !ok {
		return fmt.Errorf("%w: cannot transition from %s", ErrInvalidTransition, current)
	}
	for _, s := range allowed {
		if s == next {
			return nil
		}
	}
	return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, current, next)
}

// CreateDineIn validates the table and items, snapshots menu prices, creates
// the order, and marks the table occupied, all in one transaction.
func (s *OrderService) CreateDineIn(ctx context.Context, req CreateDineInRequest) (*OrderResult, error) {
	tableID, err := uuid.Parse(req.TableID)
	if err != nil {
		return nil, ErrInvalidTableID
	}
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	if _, err := store.GetTable(ctx, tableID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTableNotFound
		}
		return nil, fmt.Errorf("get table: %w", err)
	}

	result, err := s.insertOrder(ctx, store, insertOrderParams{
		UserID:        req.UserID,
		TableID:       pgtype.UUID{Bytes: tableID, Valid: true},
		OrderType:     enum.OrderTypeDineIn,
		PaymentMethod: enum.PaymentMethodCash,
		Items:         req.Items,
	})
	if err != nil {
		return nil, err
	}

	// The new order is active, so the table must read OCCUPIED before commit.
	if err := s.reconcile(ctx, store, tableID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	if s.notify != nil {
		s.notify("order.created", result.Order)
	}
	return result, nil
}

// CreateOnline creates a delivery or pickup order. No table is involved.
func (s *OrderService) CreateOnline(ctx context.Context, req CreateOnlineRequest) (*OrderResult, error) {
	if req.OrderType != enum.OrderTypeDelivery && req.OrderType != enum.OrderTypePickup {
		return nil, ErrInvalidOrderType
	}
	if req.OrderType == enum.OrderTypeDelivery && (req.DeliveryAddress == "" || req.DeliveryPhone == "") {
		return nil, ErrDeliveryInfoRequired
	}
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	paymentMethod := req.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = enum.PaymentMethodCash
	}
	if !isValidPaymentMethod(paymentMethod) {
		return nil, ErrInvalidPaymentMethod
	}

	deliveryFee := decimal.Zero
	if req.DeliveryFee != "" {
		fee, err := decimal.NewFromString(req.DeliveryFee)
		if err != nil || fee.IsNegative() {
			return nil, ErrInvalidDeliveryFee
		}
		deliveryFee = fee
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	params := insertOrderParams{
		UserID:        req.UserID,
		OrderType:     req.OrderType,
		PaymentMethod: paymentMethod,
		DeliveryFee:   deliveryFee,
		Items:         req.Items,
	}
	if req.OrderType == enum.OrderTypeDelivery {
		params.DeliveryAddress = pgtype.Text{String: req.DeliveryAddress, Valid: true}
		params.DeliveryPhone = pgtype.Text{String: req.DeliveryPhone, Valid: true}
	}

	result, err := s.insertOrder(ctx, store, params)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	if s.notify != nil {
		s.notify("order.created", result.Order)
	}
	return result, nil
}

type insertOrderParams struct {
	UserID          uuid.UUID
	TableID         pgtype.UUID
	OrderType       string
	PaymentMethod   string
	DeliveryFee     decimal.Decimal
	DeliveryAddress pgtype.Text
	DeliveryPhone   pgtype.Text
	Items           []OrderItemRequest
}

// insertOrder resolves every line item against the menu, snapshots name and
// price, computes the subtotal, and persists the order and its items.
func (s *OrderService) insertOrder(ctx context.Context, store OrderStore, params insertOrderParams) (*OrderResult, error) {
	type snapshot struct {
		menuItemID uuid.UUID
		name       string
		unitPrice  decimal.Decimal
		quantity   int32
	}

	subtotal := decimal.Zero
	snapshots := make([]snapshot, 0, len(params.Items))

	for i, item := range params.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("items[%d]: %w", i, ErrInvalidQuantity)
		}
		menuItemID, err := uuid.Parse(item.MenuItemID)
		if err != nil {
			return nil, fmt.Errorf("items[%d]: %w", i, ErrInvalidMenuItemID)
		}

		menuItem, err := store.GetMenuItem(ctx, menuItemID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("items[%d]: %w", i, ErrMenuItemNotFound)
			}
			return nil, fmt.Errorf("items[%d]: get menu item: %w", i, err)
		}
		if !menuItem.Available {
			return nil, fmt.Errorf("items[%d]: %w", i, ErrMenuItemUnavailable)
		}

		price := database.NumericToDecimal(menuItem.Price)
		subtotal = subtotal.Add(price.Mul(decimal.NewFromInt32(item.Quantity)))
		snapshots = append(snapshots, snapshot{
			menuItemID: menuItemID,
			name:       menuItem.Name,
			unitPrice:  price,
			quantity:   item.Quantity,
		})
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		UserID:          params.UserID,
		TableID:         params.TableID,
		OrderType:       params.OrderType,
		Subtotal:        database.DecimalToNumeric(subtotal),
		DeliveryFee:     database.DecimalToNumeric(params.DeliveryFee),
		DeliveryAddress: params.DeliveryAddress,
		DeliveryPhone:   params.DeliveryPhone,
		PaymentMethod:   params.PaymentMethod,
		PaymentStatus:   enum.PaymentStatusPending,
		Status:          enum.OrderStatusPending,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	items := make([]database.OrderItem, 0, len(snapshots))
	for _, snap := range snapshots {
		item, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
			OrderID:    order.ID,
			MenuItemID: snap.menuItemID,
			Name:       snap.name,
			Quantity:   snap.quantity,
			UnitPrice:  database.DecimalToNumeric(snap.unitPrice),
		})
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		items = append(items, item)
	}

	return &OrderResult{Order: order, Items: items}, nil
}

// UpdateStatus applies an order status transition and reconciles the table
// within the same transaction. The conditional write plus row lock serializes
// concurrent transitions; a lost race retries up to maxTransitionRetries.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, newStatus string) (database.Order, error) {
	if !isValidOrderStatus(newStatus) {
		return database.Order{}, ErrInvalidStatus
	}

	var lastErr error
	for attempt := 0; attempt < maxTransitionRetries; attempt++ {
		order, err := s.updateStatusTx(ctx, orderID, newStatus)
		if err == nil {
			if s.notify != nil {
				s.notify("order.status_updated", order)
			}
			return order, nil
		}
		if errors.Is(err, ErrStatusConflict) {
			lastErr = err
			continue
		}
		return database.Order{}, err
	}
	return database.Order{}, lastErr
}

func (s *OrderService) updateStatusTx(ctx context.Context, orderID uuid.UUID, newStatus string) (database.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}

	if err := ValidateTransition(order.Status, newStatus); err != nil {
		return database.Order{}, err
	}

	var completed pgtype.Timestamptz
	if newStatus == enum.OrderStatusCompleted {
		completed = pgtype.Timestamptz{Time: time.Now(), Valid: true}
	}

	updated, err := store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
		ID:            orderID,
		Status:        newStatus,
		FromStatus:    order.Status,
		CompletedTime: completed,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrStatusConflict
		}
		return database.Order{}, fmt.Errorf("update order status: %w", err)
	}

	if updated.OrderType == enum.OrderTypeDineIn {
		if !updated.TableID.Valid {
			log.Printf("ERROR: invariant violation: dine-in order %s has no table", orderID)
			return database.Order{}, ErrMissingTable
		}
		if err := s.reconcile(ctx, store, updated.TableID.Bytes); err != nil {
			return database.Order{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Order{}, fmt.Errorf("commit tx: %w", err)
	}
	return updated, nil
}

// TransferTable moves an active dine-in order to another table and reconciles
// both tables in the same transaction.
func (s *OrderService) TransferTable(ctx context.Context, orderID uuid.UUID, newTableID string) (database.Order, error) {
	tableID, err := uuid.Parse(newTableID)
	if err != nil {
		return database.Order{}, ErrInvalidTableID
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}

	if !enum.IsActiveOrderStatus(order.Status) {
		return database.Order{}, ErrOrderNotActive
	}
	if order.OrderType != enum.OrderTypeDineIn || !order.TableID.Valid {
		return database.Order{}, ErrMissingTable
	}

	if _, err := store.GetTable(ctx, tableID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrTableNotFound
		}
		return database.Order{}, fmt.Errorf("get table: %w", err)
	}

	oldTableID := uuid.UUID(order.TableID.Bytes)

	updated, err := store.UpdateOrderTable(ctx, database.UpdateOrderTableParams{
		ID:      orderID,
		TableID: pgtype.UUID{Bytes: tableID, Valid: true},
	})
	if err != nil {
		return database.Order{}, fmt.Errorf("update order table: %w", err)
	}

	// Free (or keep) the old table, occupy the new one.
	if err := s.reconcile(ctx, store, oldTableID); err != nil {
		return database.Order{}, err
	}
	if err := s.reconcile(ctx, store, tableID); err != nil {
		return database.Order{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Order{}, fmt.Errorf("commit tx: %w", err)
	}

	if s.notify != nil {
		s.notify("order.table_transferred", updated)
	}
	return updated, nil
}

// ReconcileTable re-derives a table's occupancy in its own transaction. Used
// by explicit admin table-status actions, which must never bypass the
// derivation while orders reference the table.
func (s *OrderService) ReconcileTable(ctx context.Context, tableID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)
	if _, err := store.GetTable(ctx, tableID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTableNotFound
		}
		return fmt.Errorf("get table: %w", err)
	}
	if err := s.reconcile(ctx, store, tableID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// reconcile derives the table status from the set of active orders referencing
// it and writes it only on change. Idempotent. The table row lock serializes
// concurrent reconciliations of the same table: without it, transactions on
// different orders sharing the table count under snapshots that miss each
// other's writes.
func (s *OrderService) reconcile(ctx context.Context, store OrderStore, tableID uuid.UUID) error {
	if _, err := store.GetTableForUpdate(ctx, tableID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTableNotFound
		}
		return fmt.Errorf("lock table: %w", err)
	}

	n, err := store.CountActiveOrdersForTable(ctx, database.CountActiveOrdersForTableParams{TableID: tableID})
	if err != nil {
		return fmt.Errorf("count active orders: %w", err)
	}

	status := enum.TableStatusAvailable
	if n > 0 {
		status = enum.TableStatusOccupied
	}

	if _, err := store.SetTableStatus(ctx, database.SetTableStatusParams{ID: tableID, Status: status}); err != nil {
		return fmt.Errorf("set table status: %w", err)
	}
	return nil
}

// --- Helpers ---

func isValidOrderStatus(s string) bool {
	switch s {
	case enum.OrderStatusPending, enum.OrderStatusConfirmed, enum.OrderStatusPreparing,
		enum.OrderStatusReady, enum.OrderStatusCompleted, enum.OrderStatusCancelled:
		return true
	}
	return false
}

func isValidPaymentMethod(s string) bool {
	switch s {
	case enum.PaymentMethodCash, enum.PaymentMethodOnline, enum.PaymentMethodCard:
		return true
	}
	return false
}
