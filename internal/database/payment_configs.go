package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const paymentConfigColumns = `id, name, type, qr_image_url, account_number,
	account_name, bank_code, bank_name, api_key, api_secret, merchant_id,
	api_url, callback_url, return_url, active, created_at`

func scanPaymentConfig(row pgx.Row) (PaymentConfig, error) {
	var c PaymentConfig
	err := row.Scan(
		&c.ID, &c.Name, &c.Type, &c.QRImageURL, &c.AccountNumber, &c.AccountName,
		&c.BankCode, &c.BankName, &c.APIKey, &c.APISecret, &c.MerchantID,
		&c.APIURL, &c.CallbackURL, &c.ReturnURL, &c.Active, &c.CreatedAt,
	)
	return c, err
}

func (q *Queries) GetPaymentConfig(ctx context.Context, id uuid.UUID) (PaymentConfig, error) {
	row := q.db.QueryRow(ctx, `SELECT `+paymentConfigColumns+` FROM payment_configs WHERE id = $1`, id)
	return scanPaymentConfig(row)
}

// GetActivePaymentConfigByType returns the newest active config for a gateway.
func (q *Queries) GetActivePaymentConfigByType(ctx context.Context, gatewayType string) (PaymentConfig, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+paymentConfigColumns+` FROM payment_configs
		WHERE type = $1 AND active
		ORDER BY created_at DESC LIMIT 1`, gatewayType)
	return scanPaymentConfig(row)
}

// GetActiveQRConfig returns the newest active static-QR or bank-transfer config.
func (q *Queries) GetActiveQRConfig(ctx context.Context) (PaymentConfig, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+paymentConfigColumns+` FROM payment_configs
		WHERE active AND type IN ('QR_CODE', 'BANK_TRANSFER')
		ORDER BY created_at DESC LIMIT 1`)
	return scanPaymentConfig(row)
}

func (q *Queries) ListPaymentConfigs(ctx context.Context) ([]PaymentConfig, error) {
	rows, err := q.db.Query(ctx, `SELECT `+paymentConfigColumns+` FROM payment_configs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var configs []PaymentConfig
	for rows.Next() {
		c, err := scanPaymentConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

type CreatePaymentConfigParams struct {
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
}

func (q *Queries) CreatePaymentConfig(ctx context.Context, arg CreatePaymentConfigParams) (PaymentConfig, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO payment_configs (name, type, qr_image_url, account_number,
			account_name, bank_code, bank_name, api_key, api_secret, merchant_id,
			api_url, callback_url, return_url, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING `+paymentConfigColumns,
		arg.Name, arg.Type, arg.QRImageURL, arg.AccountNumber, arg.AccountName,
		arg.BankCode, arg.BankName, arg.APIKey, arg.APISecret, arg.MerchantID,
		arg.APIURL, arg.CallbackURL, arg.ReturnURL, arg.Active,
	)
	return scanPaymentConfig(row)
}

type SetPaymentConfigActiveParams struct {
	ID     uuid.UUID
	Active bool
}

func (q *Queries) SetPaymentConfigActive(ctx context.Context, arg SetPaymentConfigActiveParams) (PaymentConfig, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE payment_configs SET active = $2 WHERE id = $1
		RETURNING `+paymentConfigColumns,
		arg.ID, arg.Active,
	)
	return scanPaymentConfig(row)
}

func (q *Queries) DeletePaymentConfig(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM payment_configs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
