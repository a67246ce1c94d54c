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
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/quancafe/api/internal/auth"
	"github.com/quancafe/api/internal/database"
	"github.com/quancafe/api/internal/enum"
	"golang.org/x/crypto/bcrypt"
)

type mockUserStore struct {
	getUserFn    func(ctx context.Context, username string) (database.User, error)
	createUserFn func(ctx context.Context, arg database.CreateUserParams) (database.User, error)
}

func (m *mockUserStore) GetUserByUsername(ctx context.Context, username string) (database.User, error) {
	return m.getUserFn(ctx, username)
}

func (m *mockUserStore) CreateUser(ctx context.Context, arg database.CreateUserParams) (database.User, error) {
	return m.createUserFn(ctx, arg)
}

func authTestRouter(store UserStore) http.Handler {
	r := chi.NewRouter()
	r.Route("/auth", NewAuthHandler(store, testSecret).RegisterRoutes)
	return r
}

func TestRegisterCreatesCustomer(t *testing.T) {
	store := &mockUserStore{
		createUserFn: func(_ context.Context, arg database.CreateUserParams) (database.User, error) {
			if arg.Role != enum.UserRoleCustomer {
				t.Errorf("role = %q, want CUSTOMER", arg.Role)
			}
			if arg.PasswordHash == "secret-password" {
				t.Error("password stored unhashed")
			}
			return database.User{
				ID:       uuid.New(),
				Username: arg.Username,
				FullName: arg.FullName,
				Role:     arg.Role,
			}, nil
		},
	}

	body := []byte(`{"username":"linh","password":"secret-password","full_name":"Linh Tran"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	authTestRouter(store).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp authResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Token == "" {
		t.Error("missing token")
	}
	claims, err := auth.ValidateToken(testSecret, resp.Token)
	if err != nil {
		t.Fatalf("token does not validate: %v", err)
	}
	if claims.Role != enum.UserRoleCustomer {
		t.Errorf("token role = %q", claims.Role)
	}
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	body := []byte(`{"username":"linh","password":"short"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	authTestRouter(&mockUserStore{}).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRegisterDuplicateUsernameConflicts(t *testing.T) {
	store := &mockUserStore{
		createUserFn: func(context.Context, database.CreateUserParams) (database.User, error) {
			return database.User{}, &pgconn.PgError{Code: "23505"}
		},
	}

	body := []byte(`{"username":"linh","password":"secret-password"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	authTestRouter(store).ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestLoginReturnsToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret-password"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	user := database.User{
		ID:           uuid.New(),
		Username:     "linh",
		PasswordHash: string(hash),
		FullName:     "Linh Tran",
		Role:         enum.UserRoleCustomer,
	}
	store := &mockUserStore{
		getUserFn: func(_ context.Context, username string) (database.User, error) {
			if username != "linh" {
				return database.User{}, pgx.ErrNoRows
			}
			return user, nil
		},
	}

	body := []byte(`{"username":"linh","password":"secret-password"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	authTestRouter(store).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp authResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	claims, err := auth.ValidateToken(testSecret, resp.Token)
	if err != nil {
		t.Fatalf("token does not validate: %v", err)
	}
	if claims.UserID != user.ID {
		t.Errorf("token user = %s", claims.UserID)
	}
}

func TestLoginWrongPasswordUnauthorized(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("secret-password"), bcrypt.MinCost)
	store := &mockUserStore{
		getUserFn: func(context.Context, string) (database.User, error) {
			return database.User{PasswordHash: string(hash)}, nil
		},
	}

	body := []byte(`{"username":"linh","password":"wrong-password"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	authTestRouter(store).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestLoginUnknownUserUnauthorized(t *testing.T) {
	store := &mockUserStore{
		getUserFn: func(context.Context, string) (database.User, error) {
			return database.User{}, pgx.ErrNoRows
		},
	}

	body := []byte(`{"username":"ghost","password":"secret-password"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	authTestRouter(store).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
