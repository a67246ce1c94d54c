package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, user_id, table_id, order_type, subtotal, delivery_fee,
	delivery_address, delivery_phone, payment_method, payment_status, status,
	order_time, completed_time`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.UserID, &o.TableID, &o.OrderType, &o.Subtotal, &o.DeliveryFee,
		&o.DeliveryAddress, &o.DeliveryPhone, &o.PaymentMethod, &o.PaymentStatus,
		&o.Status, &o.OrderTime, &o.CompletedTime,
	)
	return o, err
}

func collectOrders(rows pgx.Rows) ([]Order, error) {
	defer rows.Close()
	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

type CreateOrderParams struct {
	UserID          uuid.UUID
	TableID         pgtype.UUID
	OrderType       string
	Subtotal        pgtype.Numeric
	DeliveryFee     pgtype.Numeric
	DeliveryAddress pgtype.Text
	DeliveryPhone   pgtype.Text
	PaymentMethod   string
	PaymentStatus   string
	Status          string
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO orders (user_id, table_id, order_type, subtotal, delivery_fee,
			delivery_address, delivery_phone, payment_method, payment_status, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+orderColumns,
		arg.UserID, arg.TableID, arg.OrderType, arg.Subtotal, arg.DeliveryFee,
		arg.DeliveryAddress, arg.DeliveryPhone, arg.PaymentMethod, arg.PaymentStatus,
		arg.Status,
	)
	return scanOrder(row)
}

type CreateOrderItemParams struct {
	OrderID    uuid.UUID
	MenuItemID uuid.UUID
	Name       string
	Quantity   int32
	UnitPrice  pgtype.Numeric
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO order_items (order_id, menu_item_id, name, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, order_id, menu_item_id, name, quantity, unit_price`,
		arg.OrderID, arg.MenuItemID, arg.Name, arg.Quantity, arg.UnitPrice,
	)
	var it OrderItem
	err := row.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.Name, &it.Quantity, &it.UnitPrice)
	return it, err
}

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	row := q.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

// GetOrderForUpdate locks the order row for the duration of the enclosing
// transaction, serializing concurrent payment and status mutations.
func (q *Queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	row := q.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR NO KEY UPDATE`, id)
	return scanOrder(row)
}

func (q *Queries) ListOrders(ctx context.Context) ([]Order, error) {
	rows, err := q.db.Query(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY order_time DESC`)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (q *Queries) ListOrdersByUser(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	rows, err := q.db.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY order_time DESC`, userID)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (q *Queries) ListOrdersByTable(ctx context.Context, tableID uuid.UUID) ([]Order, error) {
	rows, err := q.db.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE table_id = $1 ORDER BY order_time DESC`, tableID)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, order_id, menu_item_id, name, quantity, unit_price
		FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.Name, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// CountActiveOrdersForTable counts orders still claiming the table, optionally
// excluding one order (the one being transitioned or transferred away).
type CountActiveOrdersForTableParams struct {
	TableID   uuid.UUID
	ExcludeID pgtype.UUID
}

func (q *Queries) CountActiveOrdersForTable(ctx context.Context, arg CountActiveOrdersForTableParams) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, `
		SELECT count(*) FROM orders
		WHERE table_id = $1
		  AND status IN ('PENDING', 'CONFIRMED', 'PREPARING', 'READY')
		  AND ($2::uuid IS NULL OR id <> $2)`,
		arg.TableID, arg.ExcludeID,
	).Scan(&n)
	return n, err
}

// UpdateOrderStatus applies a status transition only if the stored status
// still matches FromStatus. pgx.ErrNoRows on the RETURNING scan means a
// concurrent transition won the race.
type UpdateOrderStatusParams struct {
	ID            uuid.UUID
	Status        string
	FromStatus    string
	CompletedTime pgtype.Timestamptz
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders
		SET status = $2, completed_time = COALESCE($4, completed_time)
		WHERE id = $1 AND status = $3
		RETURNING `+orderColumns,
		arg.ID, arg.Status, arg.FromStatus, arg.CompletedTime,
	)
	return scanOrder(row)
}

type UpdateOrderTableParams struct {
	ID      uuid.UUID
	TableID pgtype.UUID
}

func (q *Queries) UpdateOrderTable(ctx context.Context, arg UpdateOrderTableParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders SET table_id = $2 WHERE id = $1
		RETURNING `+orderColumns,
		arg.ID, arg.TableID,
	)
	return scanOrder(row)
}

// UpdateOrderPayment resolves the payment dimension only if it is still at
// FromStatus. A miss (pgx.ErrNoRows) means another channel resolved it first.
type UpdateOrderPaymentParams struct {
	ID            uuid.UUID
	PaymentStatus string
	PaymentMethod string
	FromStatus    string
}

func (q *Queries) UpdateOrderPayment(ctx context.Context, arg UpdateOrderPaymentParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders SET payment_status = $2, payment_method = $3
		WHERE id = $1 AND payment_status = $4
		RETURNING `+orderColumns,
		arg.ID, arg.PaymentStatus, arg.PaymentMethod, arg.FromStatus,
	)
	return scanOrder(row)
}
