package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Order struct {
	ID              uuid.UUID
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
	OrderTime       time.Time
	CompletedTime   pgtype.Timestamptz
}

type OrderItem struct {
	ID         uuid.UUID
	OrderID    uuid.UUID
	MenuItemID uuid.UUID
	Name       string
	Quantity   int32
	UnitPrice  pgtype.Numeric
}

type CafeTable struct {
	ID          uuid.UUID
	TableNumber string
	Capacity    int32
	Status      string
	Location    pgtype.Text
}

type MenuItem struct {
	ID        uuid.UUID
	Name      string
	Price     pgtype.Numeric
	Available bool
}

type PaymentConfig struct {
	ID            uuid.UUID
	Name          string
	Type          string
	QRImageURL    pgtype.Text
	AccountNumber pgtype.Text
	AccountName   pgtype.Text
	BankCode      pgtype.Text
	BankName      pgtype.Text
	APIKey        pgtype.Text
	APISecret     pgtype.Text
	MerchantID    pgtype.Text
	APIURL        pgtype.Text
	CallbackURL   pgtype.Text
	ReturnURL     pgtype.Text
	Active        bool
	CreatedAt     time.Time
}

type User struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
	FullName     string
	Role         string
	CreatedAt    time.Time
}
