//go:build integration

package handler_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/quancafe/api/internal/config"
	"github.com/quancafe/api/internal/database"
	"github.com/quancafe/api/internal/router"
	"github.com/quancafe/api/internal/ws"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"
)

// TestIntegrationFlow exercises the full order and payment lifecycle against a
// real PostgreSQL database: table occupancy tracking, the status state
// machine, direct payment, and the signed webhook leg.
func TestIntegrationFlow(t *testing.T) {
	ctx := context.Background()

	pgContainer, connStr, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	runMigrations(t, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	cfg := &config.Config{
		Port:           "8081",
		DatabaseURL:    connStr,
		JWTSecret:      "integration-test-secret",
		FrontendURL:    "http://localhost:3000",
		BackendURL:     "http://localhost:8081",
		GatewayTimeout: 5 * time.Second,
	}
	queries := database.New(pool)
	hub := ws.NewHub()
	// NOTE: hub.Run() goroutine leaks on test exit; Hub has no shutdown
	// mechanism. Acceptable for tests.
	go hub.Run()

	server := httptest.NewServer(router.New(cfg, queries, pool, hub))
	defer server.Close()

	// --- 1. Seed staff account (direct DB insert to bootstrap) ---
	createAdminUser(t, ctx, pool)

	// --- 2. Register a customer through the API ---
	registerResp := httpPostJSON(t, server, "/auth/register", map[string]interface{}{
		"username":  "linh",
		"password":  "customer-pass",
		"full_name": "Linh Tran",
	}, "")
	customerToken := registerResp["token"].(string)
	if customerToken == "" {
		t.Fatal("register returned empty token")
	}

	// --- 3. Log in as staff ---
	adminToken := login(t, server, "admin", "password123")

	// --- 4. Staff creates a table and a menu item ---
	tableResp := httpPostJSON(t, server, "/admin/tables", map[string]interface{}{
		"table_number": "T1",
		"capacity":     4,
		"location":     "window",
	}, adminToken)
	tableID := tableResp["id"].(string)
	if tableResp["status"].(string) != "AVAILABLE" {
		t.Fatalf("new table status: got %s, want AVAILABLE", tableResp["status"])
	}

	menuResp := httpPostJSON(t, server, "/admin/menu", map[string]interface{}{
		"name":  "Ca phe sua da",
		"price": "25000",
	}, adminToken)
	menuItemID := menuResp["id"].(string)

	// --- 5. Customer places a dine-in order ---
	orderResp := httpPostJSON(t, server, "/api/orders", map[string]interface{}{
		"table_id": tableID,
		"items": []map[string]interface{}{
			{"menu_item_id": menuItemID, "quantity": 2},
		},
	}, customerToken)
	orderID := orderResp["id"].(string)

	// Price snapshot: 2 * 25000 = 50000.
	if got := orderResp["subtotal"].(string); got != "50000.00" {
		t.Fatalf("order subtotal: got %s, want 50000.00", got)
	}
	if got := orderResp["status"].(string); got != "PENDING" {
		t.Fatalf("order status: got %s, want PENDING", got)
	}

	// --- 6. The table is now occupied ---
	if got := getTableStatus(t, server, tableID, adminToken); got != "OCCUPIED" {
		t.Fatalf("table status after order: got %s, want OCCUPIED", got)
	}

	// --- 7. Staff walks the order through the kitchen ---
	for _, status := range []string{"CONFIRMED", "PREPARING", "READY"} {
		resp := httpPatchJSON(t, server, fmt.Sprintf("/admin/orders/%s/status", orderID),
			map[string]interface{}{"status": status}, adminToken)
		if resp["status"].(string) != status {
			t.Fatalf("order status: got %s, want %s", resp["status"], status)
		}
	}
	if got := getTableStatus(t, server, tableID, adminToken); got != "OCCUPIED" {
		t.Fatalf("table status mid-service: got %s, want OCCUPIED", got)
	}

	// An out-of-order jump must be rejected.
	status, _ := httpDoJSON(t, server, http.MethodPatch, fmt.Sprintf("/admin/orders/%s/status", orderID),
		map[string]interface{}{"status": "PENDING"}, adminToken)
	if status != http.StatusConflict {
		t.Fatalf("backwards transition: got status %d, want 409", status)
	}

	// --- 8. Staff takes a counter payment; repeating it is a no-op ---
	payResp := httpPostJSON(t, server, fmt.Sprintf("/api/orders/%s/payment", orderID),
		map[string]interface{}{"payment_method": "CASH"}, adminToken)
	if payResp["payment_status"].(string) != "PAID" {
		t.Fatalf("payment_status: got %s, want PAID", payResp["payment_status"])
	}
	payAgain := httpPostJSON(t, server, fmt.Sprintf("/api/orders/%s/payment", orderID),
		map[string]interface{}{"payment_method": "CASH"}, adminToken)
	if payAgain["payment_status"].(string) != "PAID" {
		t.Fatalf("repeated payment: got %s, want PAID", payAgain["payment_status"])
	}

	// --- 9. Completing the order frees the table ---
	doneResp := httpPatchJSON(t, server, fmt.Sprintf("/admin/orders/%s/status", orderID),
		map[string]interface{}{"status": "COMPLETED"}, adminToken)
	if doneResp["completed_time"] == nil {
		t.Fatal("completed order missing completed_time")
	}
	if got := getTableStatus(t, server, tableID, adminToken); got != "AVAILABLE" {
		t.Fatalf("table status after completion: got %s, want AVAILABLE", got)
	}

	// --- 10. Webhook leg: a signed confirmation pays a pickup order ---
	configResp := httpPostJSON(t, server, "/admin/payment-configs", map[string]interface{}{
		"name":       "Bank webhook",
		"type":       "BANK_TRANSFER",
		"api_secret": "webhook-secret",
		"active":     true,
	}, adminToken)
	configID := configResp["id"].(string)

	pickupResp := httpPostJSON(t, server, "/api/orders/online", map[string]interface{}{
		"order_type": "PICKUP",
		"items": []map[string]interface{}{
			{"menu_item_id": menuItemID, "quantity": 1},
		},
	}, customerToken)
	pickupID := pickupResp["id"].(string)

	// Tampered signature must be rejected without touching the order.
	badStatus, _ := httpDoJSON(t, server, http.MethodPost, fmt.Sprintf("/orders/%s/payment-webhook", pickupID),
		map[string]interface{}{
			"transaction_id":    "TX-1001",
			"amount":            "25000",
			"status":            "SUCCESS",
			"signature":         "deadbeef",
			"payment_config_id": configID,
		}, "")
	if badStatus != http.StatusBadRequest {
		t.Fatalf("tampered webhook: got status %d, want 400", badStatus)
	}

	webhookResp := httpPostJSON(t, server, fmt.Sprintf("/orders/%s/payment-webhook", pickupID),
		map[string]interface{}{
			"transaction_id":    "TX-1001",
			"amount":            "25000",
			"status":            "SUCCESS",
			"signature":         signWebhook("webhook-secret", "25000", pickupID, "SUCCESS", "TX-1001"),
			"payment_config_id": configID,
		}, "")
	if webhookResp["success"] != true {
		t.Fatalf("webhook response: %+v", webhookResp)
	}

	statusResp := httpGetJSON(t, server, fmt.Sprintf("/api/orders/%s/payment-status", pickupID), customerToken)
	if statusResp["payment_status"].(string) != "PAID" {
		t.Fatalf("pickup payment_status: got %s, want PAID", statusResp["payment_status"])
	}

	t.Logf("integration flow passed: container=%s, table=%s, order=%s, pickup=%s",
		pgContainer.GetContainerID(), tableID, orderID, pickupID)
}

// --- Setup helpers ---

func setupPostgresContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string, func()) {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("cafe_test"),
		tcpostgres.WithUsername("cafe"),
		tcpostgres.WithPassword("cafe"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	cleanup := func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}

	return pgContainer, connStr, cleanup
}

func runMigrations(t *testing.T, connStr string) {
	t.Helper()

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("open db for migrations: %v", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		t.Fatalf("create migrate driver: %v", err)
	}

	// Path relative to this test file's package directory (internal/handler/).
	m, err := migrate.NewWithDatabaseInstance("file://../../migrations", "postgres", driver)
	if err != nil {
		t.Fatalf("create migrate instance: %v", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("run migrations: %v", err)
	}
}

func createAdminUser(t *testing.T, ctx context.Context, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	var id uuid.UUID
	err = pool.QueryRow(ctx,
		`INSERT INTO users (username, password_hash, full_name, role)
		 VALUES ($1, $2, $3, 'ADMIN')
		 RETURNING id`,
		"admin", string(hash), "Test Admin",
	).Scan(&id)
	if err != nil {
		t.Fatalf("create admin user: %v", err)
	}
	return id
}

// --- API call helpers ---

func login(t *testing.T, server *httptest.Server, username, password string) string {
	t.Helper()
	resp := httpPostJSON(t, server, "/auth/login", map[string]interface{}{
		"username": username,
		"password": password,
	}, "")
	token, ok := resp["token"].(string)
	if !ok || token == "" {
		t.Fatalf("login failed: no token in response: %+v", resp)
	}
	return token
}

func getTableStatus(t *testing.T, server *httptest.Server, tableID, token string) string {
	t.Helper()
	resp := httpGetJSON(t, server, "/admin/tables/"+tableID, token)
	status, ok := resp["status"].(string)
	if !ok {
		t.Fatalf("table response missing status: %+v", resp)
	}
	return status
}

func signWebhook(secret, amount, orderID, status, transactionID string) string {
	canonical := fmt.Sprintf("amount=%s&orderId=%s&status=%s&transactionId=%s",
		amount, orderID, status, transactionID)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// --- HTTP helpers ---

func httpDoJSON(t *testing.T, server *httptest.Server, method, path string, body map[string]interface{}, token string) (int, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, server.URL+path, reader)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&result)
	return resp.StatusCode, result
}

func httpPostJSON(t *testing.T, server *httptest.Server, path string, body map[string]interface{}, token string) map[string]interface{} {
	t.Helper()
	status, result := httpDoJSON(t, server, http.MethodPost, path, body, token)
	if status < 200 || status >= 300 {
		t.Fatalf("POST %s: status %d, body: %v", path, status, result)
	}
	return result
}

func httpPatchJSON(t *testing.T, server *httptest.Server, path string, body map[string]interface{}, token string) map[string]interface{} {
	t.Helper()
	status, result := httpDoJSON(t, server, http.MethodPatch, path, body, token)
	if status < 200 || status >= 300 {
		t.Fatalf("PATCH %s: status %d, body: %v", path, status, result)
	}
	return result
}

func httpGetJSON(t *testing.T, server *httptest.Server, path string, token string) map[string]interface{} {
	t.Helper()
	status, result := httpDoJSON(t, server, http.MethodGet, path, nil, token)
	if status < 200 || status >= 300 {
		t.Fatalf("GET %s: status %d, body: %v", path, status, result)
	}
	return result
}
