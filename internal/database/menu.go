package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

func (q *Queries) GetMenuItem(ctx context.Context, id uuid.UUID) (MenuItem, error) {
	var m MenuItem
	err := q.db.QueryRow(ctx, `
		SELECT id, name, price, available FROM menu_items WHERE id = $1`, id,
	).Scan(&m.ID, &m.Name, &m.Price, &m.Available)
	return m, err
}

func (q *Queries) ListMenuItems(ctx context.Context) ([]MenuItem, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, name, price, available FROM menu_items ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MenuItem
	for rows.Next() {
		var m MenuItem
		if err := rows.Scan(&m.ID, &m.Name, &m.Price, &m.Available); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

type CreateMenuItemParams struct {
	Name      string
	Price     pgtype.Numeric
	Available bool
}

func (q *Queries) CreateMenuItem(ctx context.Context, arg CreateMenuItemParams) (MenuItem, error) {
	var m MenuItem
	err := q.db.QueryRow(ctx, `
		INSERT INTO menu_items (name, price, available)
		VALUES ($1, $2, $3)
		RETURNING id, name, price, available`,
		arg.Name, arg.Price, arg.Available,
	).Scan(&m.ID, &m.Name, &m.Price, &m.Available)
	return m, err
}
