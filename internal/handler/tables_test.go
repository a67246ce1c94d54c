package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/quancafe/api/internal/database"
	"github.com/quancafe/api/internal/enum"
)

type mockTableStore struct {
	getTableFn       func(ctx context.Context, id uuid.UUID) (database.CafeTable, error)
	listTablesFn     func(ctx context.Context) ([]database.CafeTable, error)
	listAvailableFn  func(ctx context.Context) ([]database.CafeTable, error)
	createTableFn    func(ctx context.Context, arg database.CreateTableParams) (database.CafeTable, error)
	updateTableFn    func(ctx context.Context, arg database.UpdateTableParams) (database.CafeTable, error)
	deleteTableFn    func(ctx context.Context, id uuid.UUID) error
	countActiveFn    func(ctx context.Context, arg database.CountActiveOrdersForTableParams) (int64, error)
	setTableStatusFn func(ctx context.Context, arg database.SetTableStatusParams) (bool, error)
}

func (m *mockTableStore) GetTable(ctx context.Context, id uuid.UUID) (database.CafeTable, error) {
	return m.getTableFn(ctx, id)
}

func (m *mockTableStore) ListTables(ctx context.Context) ([]database.CafeTable, error) {
	return m.listTablesFn(ctx)
}

func (m *mockTableStore) ListAvailableTables(ctx context.Context) ([]database.CafeTable, error) {
	return m.listAvailableFn(ctx)
}

func (m *mockTableStore) CreateTable(ctx context.Context, arg database.CreateTableParams) (database.CafeTable, error) {
	return m.createTableFn(ctx, arg)
}

func (m *mockTableStore) UpdateTable(ctx context.Context, arg database.UpdateTableParams) (database.CafeTable, error) {
	return m.updateTableFn(ctx, arg)
}

func (m *mockTableStore) DeleteTable(ctx context.Context, id uuid.UUID) error {
	return m.deleteTableFn(ctx, id)
}

func (m *mockTableStore) CountActiveOrdersForTable(ctx context.Context, arg database.CountActiveOrdersForTableParams) (int64, error) {
	return m.countActiveFn(ctx, arg)
}

func (m *mockTableStore) SetTableStatus(ctx context.Context, arg database.SetTableStatusParams) (bool, error) {
	return m.setTableStatusFn(ctx, arg)
}

type mockReconciler struct {
	reconcileFn func(ctx context.Context, tableID uuid.UUID) error
}

func (m *mockReconciler) ReconcileTable(ctx context.Context, tableID uuid.UUID) error {
	return m.reconcileFn(ctx, tableID)
}

func tableTestRouter(store TableStore, reconciler TableReconciler) http.Handler {
	h := NewTableHandler(store, reconciler)
	r := chi.NewRouter()
	r.Route("/tables", h.RegisterPublicRoutes)
	r.Route("/admin/tables", h.RegisterAdminRoutes)
	return r
}

func sampleTable(status string) database.CafeTable {
	return database.CafeTable{
		ID:          uuid.New(),
		TableNumber: "T1",
		Capacity:    4,
		Status:      status,
	}
}

func TestListTables(t *testing.T) {
	store := &mockTableStore{
		listTablesFn: func(context.Context) ([]database.CafeTable, error) {
			return []database.CafeTable{sampleTable(enum.TableStatusAvailable), sampleTable(enum.TableStatusOccupied)}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/tables/", nil)
	rec := httptest.NewRecorder()
	tableTestRouter(store, &mockReconciler{}).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Tables []tableResponse `json:"tables"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Tables) != 2 {
		t.Errorf("tables = %d, want 2", len(resp.Tables))
	}
}

func TestCreateTableValidatesInput(t *testing.T) {
	cases := map[string]string{
		"missing number": `{"capacity":4}`,
		"zero capacity":  `{"table_number":"T9","capacity":0}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin/tables/", bytes.NewReader([]byte(body)))
			rec := httptest.NewRecorder()
			tableTestRouter(&mockTableStore{}, &mockReconciler{}).ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestSetStatusManualWriteWhenIdle(t *testing.T) {
	table := sampleTable(enum.TableStatusPaid)
	var wroteStatus string
	store := &mockTableStore{
		countActiveFn: func(context.Context, database.CountActiveOrdersForTableParams) (int64, error) {
			return 0, nil
		},
		setTableStatusFn: func(_ context.Context, arg database.SetTableStatusParams) (bool, error) {
			wroteStatus = arg.Status
			return true, nil
		},
		getTableFn: func(context.Context, uuid.UUID) (database.CafeTable, error) {
			return table, nil
		},
	}

	body := []byte(`{"status":"PAID"}`)
	req := httptest.NewRequest(http.MethodPatch, "/admin/tables/"+table.ID.String()+"/status", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	tableTestRouter(store, &mockReconciler{}).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if wroteStatus != enum.TableStatusPaid {
		t.Errorf("wrote status %q, want PAID", wroteStatus)
	}
}

func TestSetStatusDerivedWhileOrdersActive(t *testing.T) {
	table := sampleTable(enum.TableStatusOccupied)
	reconciled := false
	store := &mockTableStore{
		countActiveFn: func(context.Context, database.CountActiveOrdersForTableParams) (int64, error) {
			return 2, nil
		},
		setTableStatusFn: func(context.Context, database.SetTableStatusParams) (bool, error) {
			t.Fatal("manual write must not happen while orders are active")
			return false, nil
		},
		getTableFn: func(context.Context, uuid.UUID) (database.CafeTable, error) {
			return table, nil
		},
	}
	reconciler := &mockReconciler{
		reconcileFn: func(_ context.Context, tableID uuid.UUID) error {
			if tableID != table.ID {
				t.Errorf("tableID = %s", tableID)
			}
			reconciled = true
			return nil
		},
	}

	// Staff tries to force AVAILABLE under two open orders; occupancy wins.
	body := []byte(`{"status":"AVAILABLE"}`)
	req := httptest.NewRequest(http.MethodPatch, "/admin/tables/"+table.ID.String()+"/status", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	tableTestRouter(store, reconciler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !reconciled {
		t.Error("reconciliation did not run")
	}
	var resp tableResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != enum.TableStatusOccupied {
		t.Errorf("status = %q, want OCCUPIED", resp.Status)
	}
}

func TestSetStatusRejectsUnknownStatus(t *testing.T) {
	body := []byte(`{"status":"BROKEN"}`)
	req := httptest.NewRequest(http.MethodPatch, "/admin/tables/"+uuid.NewString()+"/status", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	tableTestRouter(&mockTableStore{}, &mockReconciler{}).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDeleteTable(t *testing.T) {
	deleted := false
	store := &mockTableStore{
		deleteTableFn: func(context.Context, uuid.UUID) error {
			deleted = true
			return nil
		},
	}

	req := httptest.NewRequest(http.MethodDelete, "/admin/tables/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	tableTestRouter(store, &mockReconciler{}).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if !deleted {
		t.Error("DeleteTable was not invoked")
	}
}
