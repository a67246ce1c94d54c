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
)

// PaymentConfigStore defines the database methods for payment config admin.
type PaymentConfigStore interface {
	GetPaymentConfig(ctx context.Context, id uuid.UUID) (database.PaymentConfig, error)
	ListPaymentConfigs(ctx context.Context) ([]database.PaymentConfig, error)
	CreatePaymentConfig(ctx context.Context, arg database.CreatePaymentConfigParams) (database.PaymentConfig, error)
	SetPaymentConfigActive(ctx context.Context, arg database.SetPaymentConfigActiveParams) (database.PaymentConfig, error)
	DeletePaymentConfig(ctx context.Context, id uuid.UUID) error
}

// PaymentConfigHandler handles payment config admin endpoints.
type PaymentConfigHandler struct {
	store PaymentConfigStore
}

func NewPaymentConfigHandler(store PaymentConfigStore) *PaymentConfigHandler {
	return &PaymentConfigHandler{store: store}
}

// RegisterAdminRoutes registers payment config endpoints at /admin/payment-configs.
func (h *PaymentConfigHandler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}/active", h.SetActive)
	r.Delete("/{id}", h.Delete)
}

type createPaymentConfigRequest struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	QRImageURL    string `json:"qr_image_url"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	BankCode      string `json:"bank_code"`
	BankName      string `json:"bank_name"`
	APIKey        string `json:"api_key"`
	APISecret     string `json:"api_secret"`
	MerchantID    string `json:"merchant_id"`
	APIURL        string `json:"api_url"`
	CallbackURL   string `json:"callback_url"`
	ReturnURL     string `json:"return_url"`
	Active        bool   `json:"active"`
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

// paymentConfigResponse never carries credentials. Secrets stay in the
// database and in memory only.
type paymentConfigResponse struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Type          string    `json:"type"`
	QRImageURL    *string   `json:"qr_image_url"`
	AccountNumber *string   `json:"account_number"`
	AccountName   *string   `json:"account_name"`
	BankCode      *string   `json:"bank_code"`
	BankName      *string   `json:"bank_name"`
	MerchantID    *string   `json:"merchant_id"`
	APIURL        *string   `json:"api_url"`
	CallbackURL   *string   `json:"callback_url"`
	ReturnURL     *string   `json:"return_url"`
	HasAPIKey     bool      `json:"has_api_key"`
	HasAPISecret  bool      `json:"has_api_secret"`
	Active        bool      `json:"active"`
}

func toPaymentConfigResponse(c database.PaymentConfig) paymentConfigResponse {
	resp := paymentConfigResponse{
		ID:           c.ID,
		Name:         c.Name,
		Type:         c.Type,
		HasAPIKey:    c.APIKey.Valid && c.APIKey.String != "",
		HasAPISecret: c.APISecret.Valid && c.APISecret.String != "",
		Active:       c.Active,
	}
	resp.QRImageURL = textPtr(c.QRImageURL)
	resp.AccountNumber = textPtr(c.AccountNumber)
	resp.AccountName = textPtr(c.AccountName)
	resp.BankCode = textPtr(c.BankCode)
	resp.BankName = textPtr(c.BankName)
	resp.MerchantID = textPtr(c.MerchantID)
	resp.APIURL = textPtr(c.APIURL)
	resp.CallbackURL = textPtr(c.CallbackURL)
	resp.ReturnURL = textPtr(c.ReturnURL)
	return resp
}

// List handles GET /admin/payment-configs.
func (h *PaymentConfigHandler) List(w http.ResponseWriter, r *http.Request) {
	configs, err := h.store.ListPaymentConfigs(r.Context())
	if err != nil {
		log.Printf("ERROR: list payment configs: %v", err)
		errorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]paymentConfigResponse, len(configs))
	for i, c := range configs {
		resp[i] = toPaymentConfigResponse(c)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"configs": resp})
}

// Get handles GET /admin/payment-configs/{id}.
func (h *PaymentConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid payment config ID")
		return
	}

	cfg, err := h.store.GetPaymentConfig(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			errorJSON(w, http.StatusNotFound, "payment config not found")
			return
		}
		log.Printf("ERROR: get payment config: %v", err)
		errorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, toPaymentConfigResponse(cfg))
}

// Create handles POST /admin/payment-configs.
func (h *PaymentConfigHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPaymentConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		errorJSON(w, http.StatusBadRequest, "name is required")
		return
	}
	if !isValidGatewayType(req.Type) {
		errorJSON(w, http.StatusBadRequest, "invalid type")
		return
	}

	cfg, err := h.store.CreatePaymentConfig(r.Context(), database.CreatePaymentConfigParams{
		Name:          req.Name,
		Type:          req.Type,
		QRImageURL:    textOrNull(req.QRImageURL),
		AccountNumber: textOrNull(req.AccountNumber),
		AccountName:   textOrNull(req.AccountName),
		BankCode:      textOrNull(req.BankCode),
		BankName:      textOrNull(req.BankName),
		APIKey:        textOrNull(req.APIKey),
		APISecret:     textOrNull(req.APISecret),
		MerchantID:    textOrNull(req.MerchantID),
		APIURL:        textOrNull(req.APIURL),
		CallbackURL:   textOrNull(req.CallbackURL),
		ReturnURL:     textOrNull(req.ReturnURL),
		Active:        req.Active,
	})
	if err != nil {
		log.Printf("ERROR: create payment config: %v", err)
		errorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentConfigResponse(cfg))
}

// SetActive handles PATCH /admin/payment-configs/{id}/active.
func (h *PaymentConfigHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid payment config ID")
		return
	}

	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg, err := h.store.SetPaymentConfigActive(r.Context(), database.SetPaymentConfigActiveParams{ID: id, Active: req.Active})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			errorJSON(w, http.StatusNotFound, "payment config not found")
			return
		}
		log.Printf("ERROR: set payment config active: %v", err)
		errorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, toPaymentConfigResponse(cfg))
}

// Delete handles DELETE /admin/payment-configs/{id}.
func (h *PaymentConfigHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid payment config ID")
		return
	}

	if err := h.store.DeletePaymentConfig(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			errorJSON(w, http.StatusNotFound, "payment config not found")
			return
		}
		log.Printf("ERROR: delete payment config: %v", err)
		errorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func isValidGatewayType(s string) bool {
	switch s {
	case enum.GatewayQRCode, enum.GatewayVNPay, enum.GatewayMoMo, enum.GatewayZaloPay, enum.GatewayBankTransfer:
		return true
	}
	return false
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}
