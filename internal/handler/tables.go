package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/quancafe/api/internal/database"
	"github.com/quancafe/api/internal/enum"
	"github.com/quancafe/api/internal/service"
)

// TableStore defines the database methods needed by table handlers.
type TableStore interface {
	GetTable(ctx context.Context, id uuid.UUID) (database.CafeTable, error)
	ListTables(ctx context.Context) ([]database.CafeTable, error)
	ListAvailableTables(ctx context.Context) ([]database.CafeTable, error)
	CreateTable(ctx context.Context, arg database.CreateTableParams) (database.CafeTable, error)
	UpdateTable(ctx context.Context, arg database.UpdateTableParams) (database.CafeTable, error)
	DeleteTable(ctx context.Context, id uuid.UUID) error
	CountActiveOrdersForTable(ctx context.Context, arg database.CountActiveOrdersForTableParams) (int64, error)
	SetTableStatus(ctx context.Context, arg database.SetTableStatusParams) (bool, error)
}

// TableReconciler re-derives a table's occupancy from its active orders.
// Satisfied by *service.OrderService.
type TableReconciler interface {
	ReconcileTable(ctx context.Context, tableID uuid.UUID) error
}

// TableHandler handles cafe table endpoints.
type TableHandler struct {
	store      TableStore
	reconciler TableReconciler
}

// NewTableHandler creates a new TableHandler.
func NewTableHandler(store TableStore, reconciler TableReconciler) *TableHandler {
	return &TableHandler{store: store, reconciler: reconciler}
}

// RegisterPublicRoutes registers unauthenticated table reads. Customers pick
// a table before logging in.
func (h *TableHandler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/available", h.ListAvailable)
	r.Get("/{id}", h.Get)
}

// RegisterAdminRoutes registers staff table management endpoints.
func (h *TableHandler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Patch("/{id}/status", h.SetStatus)
}

// --- Request / Response types ---

type tableRequest struct {
	TableNumber string `json:"table_number"`
	Capacity    int32  `json:"capacity"`
	Location    string `json:"location"`
}

type tableStatusRequest struct {
	Status string `json:"status"`
}

type tableResponse struct {
	ID          uuid.UUID `json:"id"`
	TableNumber string    `json:"table_number"`
	Capacity    int32     `json:"capacity"`
	Status      string    `json:"status"`
	Location    *string   `json:"location"`
}

func toTableResponse(t database.CafeTable) tableResponse {
	resp := tableResponse{
		ID:          t.ID,
		TableNumber: t.TableNumber,
		Capacity:    t.Capacity,
		Status:      t.Status,
	}
	if t.Location.Valid {
		resp.Location = &t.Location.String
	}
	return resp
}

// --- Handlers ---

// List handles GET /tables.
func (h *TableHandler) List(w http.ResponseWriter, r *http.Request) {
	tables, err := h.store.ListTables(r.Context())
	if err != nil {
		log.Printf("ERROR: list tables: %v", err)
		errorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, toTableListResponse(tables))
}

// ListAvailable handles GET /tables/available.
func (h *TableHandler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	tables, err := h.store.ListAvailableTables(r.Context())
	if err != nil {
		log.Printf("ERROR: list available tables: %v", err)
		errorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, toTableListResponse(tables))
}

// Get handles GET /admin/tables/{id}.
func (h *TableHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid table ID")
		return
	}

	table, err := h.store.GetTable(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			errorJSON(w, http.StatusNotFound, "table not found")
			return
		}
		log.Printf("ERROR: get table: %v", err)
		errorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, toTableResponse(table))
}

// Create handles POST /admin/tables.
func (h *TableHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req tableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TableNumber == "" {
		errorJSON(w, http.StatusBadRequest, "table_number is required")
		return
	}
	if req.Capacity <= 0 {
		errorJSON(w, http.StatusBadRequest, "capacity must be > 0")
		return
	}

	table, err := h.store.CreateTable(r.Context(), database.CreateTableParams{
		TableNumber: req.TableNumber,
		Capacity:    req.Capacity,
		Location:    textOrNull(req.Location),
	})
	if err != nil {
		log.Printf("ERROR: create table: %v", err)
		errorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, toTableResponse(table))
}

// Update handles PUT /admin/tables/{id}.
func (h *TableHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid table ID")
		return
	}

	var req tableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TableNumber == "" {
		errorJSON(w, http.StatusBadRequest, "table_number is required")
		return
	}
	if req.Capacity <= 0 {
		errorJSON(w, http.StatusBadRequest, "capacity must be > 0")
		return
	}

	table, err := h.store.UpdateTable(r.Context(), database.UpdateTableParams{
		ID:          id,
		TableNumber: req.TableNumber,
		Capacity:    req.Capacity,
		Location:    textOrNull(req.Location),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			errorJSON(w, http.StatusNotFound, "table not found")
			return
		}
		log.Printf("ERROR: update table: %v", err)
		errorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, toTableResponse(table))
}

// Delete handles DELETE /admin/tables/{id}.
func (h *TableHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid table ID")
		return
	}

	if err := h.store.DeleteTable(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			errorJSON(w, http.StatusNotFound, "table not found")
			return
		}
		log.Printf("ERROR: delete table: %v", err)
		errorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetStatus handles PATCH /admin/tables/{id}/status. While active orders
// reference the table its status is derived, so a manual request re-runs the
// derivation instead of writing the requested value.
func (h *TableHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid table ID")
		return
	}

	var req tableStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !isValidTableStatus(req.Status) {
		errorJSON(w, http.StatusBadRequest, "invalid status")
		return
	}

	n, err := h.store.CountActiveOrdersForTable(r.Context(), database.CountActiveOrdersForTableParams{TableID: id})
	if err != nil {
		log.Printf("ERROR: count active orders: %v", err)
		errorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if n > 0 {
		if err := h.reconciler.ReconcileTable(r.Context(), id); err != nil {
			if errors.Is(err, service.ErrTableNotFound) {
				errorJSON(w, http.StatusNotFound, "table not found")
				return
			}
			log.Printf("ERROR: reconcile table: %v", err)
			errorJSON(w, http.StatusInternalServerError, "internal server error")
			return
		}
	} else {
		if _, err := h.store.SetTableStatus(r.Context(), database.SetTableStatusParams{ID: id, Status: req.Status}); err != nil {
			log.Printf("ERROR: set table status: %v", err)
			errorJSON(w, http.StatusInternalServerError, "internal server error")
			return
		}
	}

	table, err := h.store.GetTable(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			errorJSON(w, http.StatusNotFound, "table not found")
			return
		}
		log.Printf("ERROR: get table: %v", err)
		errorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, toTableResponse(table))
}

// --- Helpers ---

func toTableListResponse(tables []database.CafeTable) map[string]interface{} {
	resp := make([]tableResponse, len(tables))
	for i, t := range tables {
		resp[i] = toTableResponse(t)
	}
	return map[string]interface{}{"tables": resp}
}

func isValidTableStatus(s string) bool {
	switch s {
	case enum.TableStatusAvailable, enum.TableStatusOccupied, enum.TableStatusPaid:
		return true
	}
	return false
}

func textOrNull(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}
