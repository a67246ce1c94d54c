package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quancafe/api/internal/config"
	"github.com/quancafe/api/internal/database"
	"github.com/quancafe/api/internal/enum"
	"github.com/quancafe/api/internal/gateway"
	"github.com/quancafe/api/internal/handler"
	mw "github.com/quancafe/api/internal/middleware"
	"github.com/quancafe/api/internal/service"
	"github.com/quancafe/api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.FrontendURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Services
	newOrderStore := func(db database.DBTX) service.OrderStore {
		return database.New(db)
	}
	orderService := service.NewOrderService(pool, newOrderStore)

	registry := gateway.NewRegistry(
		gateway.VNPay{},
		gateway.MoMo{Client: &http.Client{Timeout: cfg.GatewayTimeout}},
	)
	var sim *service.Simulator
	if cfg.EnablePaymentSim {
		sim = service.NewSimulator(cfg.PaymentSimDelay)
	}
	newPaymentStore := func(db database.DBTX) service.PaymentStore {
		return database.New(db)
	}
	paymentService := service.NewPaymentService(pool, newPaymentStore, queries, registry, sim, cfg.BackendURL)

	// Order and payment changes feed the staff dashboard.
	notify := func(eventType string, order database.Order) {
		payload, err := json.Marshal(map[string]string{
			"order_id":       order.ID.String(),
			"status":         order.Status,
			"payment_status": order.PaymentStatus,
		})
		if err != nil {
			return
		}
		hub.Publish(ws.TopicOrders, ws.Event{Type: eventType, Payload: payload})
	}
	orderService.OnChange(notify)
	paymentService.OnChange(notify)

	// Handlers
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	orderHandler := handler.NewOrderHandler(orderService, queries)
	paymentHandler := handler.NewPaymentHandler(paymentService, queries, cfg.FrontendURL, cfg.EnablePaymentSim)
	tableHandler := handler.NewTableHandler(queries, orderService)
	menuHandler := handler.NewMenuHandler(queries)
	configHandler := handler.NewPaymentConfigHandler(queries)

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", authHandler.RegisterRoutes)
	r.Route("/tables", tableHandler.RegisterPublicRoutes)
	r.Route("/menu", menuHandler.RegisterPublicRoutes)

	// Gateway callback legs; authenticated by signature, not bearer token.
	r.Route("/orders", paymentHandler.RegisterPublicRoutes)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		r.Route("/api/orders", func(r chi.Router) {
			orderHandler.RegisterRoutes(r)
			paymentHandler.RegisterRoutes(r)
		})

		// Staff routes
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleAdmin))

			r.Route("/admin/orders", orderHandler.RegisterAdminRoutes)
			r.Route("/admin/tables", tableHandler.RegisterAdminRoutes)
			r.Route("/admin/menu", menuHandler.RegisterAdminRoutes)
			r.Route("/admin/payment-configs", configHandler.RegisterAdminRoutes)
		})
	})

	return r
}
