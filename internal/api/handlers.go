/**
 * @description
 * This file contains the HTTP handlers for the storefront API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/streamhub/store-service/internal/app"
	"github.com/streamhub/store-service/internal/domain"
	"github.com/streamhub/store-service/internal/store"
)

// StoreHandlers holds the application service that handlers will use.
type StoreHandlers struct {
	service *app.Service
}

// NewStoreHandlers creates a new instance of StoreHandlers.
func NewStoreHandlers(service *app.Service) *StoreHandlers {
	return &StoreHandlers{service: service}
}

type catalogItemResponse struct {
	domain.CatalogItem
	Available int `json:"available"`
}

type cartResponse struct {
	Cart  *domain.Cart      `json:"cart"`
	Lines []domain.CartLine `json:"lines"`
}

type checkoutRequest struct {
	Lines []domain.CheckoutLine `json:"lines,omitempty"`
}

type checkoutResponse struct {
	Orders  []domain.Order `json:"orders"`
	Message string         `json:"message"`
}

type balanceResponse struct {
	UserID     uuid.UUID `json:"user_id"`
	Credits    int64     `json:"credits"`
	TotalSpent int64     `json:"total_spent"`
}

// ListCatalogHandler returns the active catalog visible to the caller.
func (h *StoreHandlers) ListCatalogHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	items, err := h.service.ListCatalog(r.Context(), userID)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_catalog err=%v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, items)
}

// GetCatalogItemHandler returns one item plus its availability for the caller.
func (h *StoreHandlers) GetCatalogItemHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		http.Error(w, "Invalid item ID", http.StatusBadRequest)
		return
	}

	item, available, err := h.service.GetCatalogItem(r.Context(), userID, itemID)
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) || errors.Is(err, store.ErrAccessDenied) {
			// Exclusive items look absent to users without a grant.
			http.Error(w, "Item not found", http.StatusNotFound)
			return
		}
		log.Printf("level=error component=api endpoint=get_catalog_item item_id=%s err=%v", itemID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, catalogItemResponse{CatalogItem: *item, Available: available})
}

// GetCartHandler returns the caller's cart with its lines.
func (h *StoreHandlers) GetCartHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	cart, lines, err := h.service.GetCart(r.Context(), userID)
	if err != nil {
		log.Printf("level=error component=api endpoint=get_cart user_id=%s err=%v", userID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, cartResponse{Cart: cart, Lines: lines})
}

// AddToCartHandler stages an item into the caller's cart.
func (h *StoreHandlers) AddToCartHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	var req struct {
		ItemID   uuid.UUID       `json:"item_id"`
		SaleType domain.SaleType `json:"sale_type"`
		Quantity int             `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	cart, err := h.service.AddToCart(r.Context(), userID, req.ItemID, req.SaleType, req.Quantity)
	if err != nil {
		log.Printf("level=warn component=api endpoint=add_to_cart outcome=failed user_id=%s item_id=%s err=%v", userID, req.ItemID, err)
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, cart)
}

// UpdateCartLineHandler changes the quantity of a staged line.
func (h *StoreHandlers) UpdateCartLineHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}
	lineID, err := uuid.Parse(chi.URLParam(r, "lineID"))
	if err != nil {
		http.Error(w, "Invalid line ID", http.StatusBadRequest)
		return
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	cart, err := h.service.UpdateCartQuantity(r.Context(), userID, lineID, req.Quantity)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cart)
}

// RemoveCartLineHandler drops a staged line.
func (h *StoreHandlers) RemoveCartLineHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}
	lineID, err := uuid.Parse(chi.URLParam(r, "lineID"))
	if err != nil {
		http.Error(w, "Invalid line ID", http.StatusBadRequest)
		return
	}

	cart, err := h.service.RemoveFromCart(r.Context(), userID, lineID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cart)
}

// ClearCartHandler empties the caller's cart.
func (h *StoreHandlers) ClearCartHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	if err := h.service.ClearCart(r.Context(), userID); err != nil {
		log.Printf("level=error component=api endpoint=clear_cart user_id=%s err=%v", userID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CheckoutHandler purchases the request body's lines, or the caller's whole
// cart when the body is empty. Lines in the body only name items; prices are
// resolved from the catalog server-side.
func (h *StoreHandlers) CheckoutHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	var req checkoutRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
			return
		}
	}

	log.Printf("level=info component=api endpoint=checkout outcome=accepted user_id=%s lines=%d", userID, len(req.Lines))

	orders, err := h.service.Checkout(r.Context(), userID, req.Lines)
	if err != nil {
		log.Printf("level=warn component=api endpoint=checkout outcome=failed user_id=%s err=%v", userID, err)
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, checkoutResponse{Orders: orders, Message: "Checkout completed"})
}

// ListOrdersHandler returns the caller's orders, newest first.
func (h *StoreHandlers) ListOrdersHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	orders, err := h.service.GetOrders(r.Context(), userID)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_orders user_id=%s err=%v", userID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, orders)
}

// RenewOrderHandler extends one of the caller's orders for another period.
func (h *StoreHandlers) RenewOrderHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		http.Error(w, "Invalid order ID", http.StatusBadRequest)
		return
	}

	order, err := h.service.Renew(r.Context(), userID, orderID)
	if err != nil {
		log.Printf("level=warn component=api endpoint=renew_order outcome=failed user_id=%s order_id=%s err=%v", userID, orderID, err)
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, order)
}

// GetBalanceHandler returns the caller's credit balance.
func (h *StoreHandlers) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	user, err := h.service.GetBalance(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		log.Printf("level=error component=api endpoint=get_balance user_id=%s err=%v", userID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, balanceResponse{UserID: user.ID, Credits: user.Credits, TotalSpent: user.TotalSpent})
}

// writeStoreError maps service and repository errors onto HTTP statuses.
func (h *StoreHandlers) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrInsufficientCredit):
		h.writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, store.ErrUserBlocked),
		errors.Is(err, store.ErrAccessDenied):
		h.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, store.ErrItemNotFound),
		errors.Is(err, store.ErrOrderNotFound),
		errors.Is(err, store.ErrCartLineNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, store.ErrUnitReserved),
		errors.Is(err, store.ErrOrderNotRenewable),
		errors.Is(err, store.ErrOrderNotCancelled),
		errors.Is(err, store.ErrOrderNotCancellable),
		errors.Is(err, store.ErrConflict):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrCheckoutRateLimit):
		h.writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, app.ErrEmptyCheckout),
		errors.Is(err, app.ErrInvalidQuantity),
		errors.Is(err, app.ErrInvalidSaleType),
		errors.Is(err, app.ErrSaleTypeMismatch),
		errors.Is(err, app.ErrInvalidAmount),
		errors.Is(err, app.ErrTooManyProfiles),
		errors.Is(err, app.ErrInvalidStockUnit),
		errors.Is(err, app.ErrInvalidCatalogItem),
		errors.Is(err, store.ErrItemInactive):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *StoreHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *StoreHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
