/**
 * @description
 * This file sets up the HTTP router for the store-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for browser clients.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// StoreRoutes creates and returns a new router for the store service.
func StoreRoutes(h *StoreHandlers, jwtSecret, internalAPIKey string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Internal-API-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Storefront routes require a user token.
	r.Route("/store", func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))

		r.Get("/catalog", h.ListCatalogHandler)
		r.Get("/catalog/{itemID}", h.GetCatalogItemHandler)

		r.Get("/cart", h.GetCartHandler)
		r.Post("/cart/items", h.AddToCartHandler)
		r.Put("/cart/items/{lineID}", h.UpdateCartLineHandler)
		r.Delete("/cart/items/{lineID}", h.RemoveCartLineHandler)
		r.Delete("/cart", h.ClearCartHandler)

		r.Post("/checkout", h.CheckoutHandler)
		r.Get("/orders", h.ListOrdersHandler)
		r.Post("/orders/{orderID}/renew", h.RenewOrderHandler)
		r.Get("/balance", h.GetBalanceHandler)
	})

	// Admin routes are server-to-server only.
	r.Route("/admin", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalAPIKey))

		r.Post("/catalog", h.CreateItemHandler)
		r.Put("/catalog/{itemID}", h.UpdateItemHandler)
		r.Post("/catalog/{itemID}/stock", h.AddStockHandler)
		r.Get("/catalog/{itemID}/stock", h.ListStockHandler)
		r.Post("/catalog/{itemID}/grants/{userID}", h.GrantAccessHandler)
		r.Delete("/catalog/{itemID}/grants/{userID}", h.RevokeAccessHandler)

		r.Post("/users/{userID}/recharge", h.RechargeHandler)
		r.Post("/users/{userID}/warn", h.WarnUserHandler)
		r.Post("/users/{userID}/block", h.BlockUserHandler)
		r.Delete("/users/{userID}/block", h.UnblockUserHandler)

		r.Post("/orders/{orderID}/cancel", h.CancelOrderHandler)
		r.Post("/orders/{orderID}/rehabilitate", h.RehabilitateOrderHandler)

		r.Post("/broadcasts", h.BroadcastHandler)
		r.Post("/expenses", h.RecordExpenseHandler)
		r.Get("/report", h.ReportHandler)
	})

	return r
}
