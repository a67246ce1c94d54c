package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const tableColumns = `id, table_number, capacity, status, location`

func scanTable(row pgx.Row) (CafeTable, error) {
	var t CafeTable
	err := row.Scan(&t.ID, &t.TableNumber, &t.Capacity, &t.Status, &t.Location)
	return t, err
}

func collectTables(rows pgx.Rows) ([]CafeTable, error) {
	defer rows.Close()
	var tables []CafeTable
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (q *Queries) GetTable(ctx context.Context, id uuid.UUID) (CafeTable, error) {
	row := q.db.QueryRow(ctx, `SELECT `+tableColumns+` FROM cafe_tables WHERE id = $1`, id)
	return scanTable(row)
}

// GetTableForUpdate locks the table row until the transaction ends.
// Reconciliation takes this lock before counting so concurrent recounts of
// the same table serialize.
func (q *Queries) GetTableForUpdate(ctx context.Context, id uuid.UUID) (CafeTable, error) {
	row := q.db.QueryRow(ctx, `SELECT `+tableColumns+` FROM cafe_tables WHERE id = $1 FOR UPDATE`, id)
	return scanTable(row)
}

func (q *Queries) ListTables(ctx context.Context) ([]CafeTable, error) {
	rows, err := q.db.Query(ctx, `SELECT `+tableColumns+` FROM cafe_tables ORDER BY table_number`)
	if err != nil {
		return nil, err
	}
	return collectTables(rows)
}

func (q *Queries) ListAvailableTables(ctx context.Context) ([]CafeTable, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+tableColumns+` FROM cafe_tables
		WHERE status = 'AVAILABLE' ORDER BY table_number`)
	if err != nil {
		return nil, err
	}
	return collectTables(rows)
}

type CreateTableParams struct {
	TableNumber string
	Capacity    int32
	Location    pgtype.Text
}

func (q *Queries) CreateTable(ctx context.Context, arg CreateTableParams) (CafeTable, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO cafe_tables (table_number, capacity, location)
		VALUES ($1, $2, $3)
		RETURNING `+tableColumns,
		arg.TableNumber, arg.Capacity, arg.Location,
	)
	return scanTable(row)
}

type UpdateTableParams struct {
	ID          uuid.UUID
	TableNumber string
	Capacity    int32
	Location    pgtype.Text
}

func (q *Queries) UpdateTable(ctx context.Context, arg UpdateTableParams) (CafeTable, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE cafe_tables SET table_number = $2, capacity = $3, location = $4
		WHERE id = $1
		RETURNING `+tableColumns,
		arg.ID, arg.TableNumber, arg.Capacity, arg.Location,
	)
	return scanTable(row)
}

func (q *Queries) DeleteTable(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM cafe_tables WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// SetTableStatus writes the derived occupancy state. The guard makes repeated
// reconciliation a no-op write.
type SetTableStatusParams struct {
	ID     uuid.UUID
	Status string
}

func (q *Queries) SetTableStatus(ctx context.Context, arg SetTableStatusParams) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE cafe_tables SET status = $2
		WHERE id = $1 AND status <> $2`,
		arg.ID, arg.Status,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
