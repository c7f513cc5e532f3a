/**
 * @description
 * HTTP handlers for the internal admin API: catalog management, stock loading,
 * exclusive grants, recharges, user discipline, order cancellation and
 * rehabilitation, broadcasts, expenses, and the financial report. All routes
 * here sit behind the internal API key middleware.
 *
 * @dependencies
 * - encoding/json, log, net/http, time: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/streamhub/store-service/internal/domain"
)

type addStockRequest struct {
	Units []domain.StockUnit `json:"units"`
}

type rechargeRequest struct {
	Amount int64  `json:"amount"`
	Note   string `json:"note"`
}

type blockRequest struct {
	Until *time.Time `json:"until,omitempty"`
}

type broadcastRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type expenseRequest struct {
	Label   string    `json:"label"`
	Amount  int64     `json:"amount"`
	SpentAt time.Time `json:"spent_at,omitempty"`
}

// CreateItemHandler adds a catalog listing.
func (h *StoreHandlers) CreateItemHandler(w http.ResponseWriter, r *http.Request) {
	var item domain.CatalogItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	if err := h.service.CreateItem(r.Context(), &item); err != nil {
		h.writeStoreError(w, err)
		return
	}
	log.Printf("level=info component=api endpoint=create_item item_id=%s name=%q", item.ID, item.Name)
	h.writeJSON(w, http.StatusCreated, item)
}

// UpdateItemHandler edits a catalog listing.
func (h *StoreHandlers) UpdateItemHandler(w http.ResponseWriter, r *http.Request) {
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		http.Error(w, "Invalid item ID", http.StatusBadRequest)
		return
	}

	var item domain.CatalogItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	item.ID = itemID

	if err := h.service.UpdateItem(r.Context(), &item); err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, item)
}

// AddStockHandler bulk-loads credential units into an item's pool.
func (h *StoreHandlers) AddStockHandler(w http.ResponseWriter, r *http.Request) {
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		http.Error(w, "Invalid item ID", http.StatusBadRequest)
		return
	}

	var req addStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	loaded, err := h.service.AddStock(r.Context(), itemID, req.Units)
	if err != nil {
		log.Printf("level=warn component=api endpoint=add_stock outcome=failed item_id=%s err=%v", itemID, err)
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]int{"loaded": loaded})
}

// ListStockHandler returns an item's whole pool, credentials included.
func (h *StoreHandlers) ListStockHandler(w http.ResponseWriter, r *http.Request) {
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		http.Error(w, "Invalid item ID", http.StatusBadRequest)
		return
	}

	units, err := h.service.ListStock(r.Context(), itemID)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_stock item_id=%s err=%v", itemID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, units)
}

// GrantAccessHandler allows a user to buy an exclusive item.
func (h *StoreHandlers) GrantAccessHandler(w http.ResponseWriter, r *http.Request) {
	itemID, userID, ok := h.parseItemUserParams(w, r)
	if !ok {
		return
	}

	if err := h.service.GrantAccess(r.Context(), itemID, userID); err != nil {
		h.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RevokeAccessHandler removes a user's exclusive grant.
func (h *StoreHandlers) RevokeAccessHandler(w http.ResponseWriter, r *http.Request) {
	itemID, userID, ok := h.parseItemUserParams(w, r)
	if !ok {
		return
	}

	if err := h.service.RevokeAccess(r.Context(), itemID, userID); err != nil {
		h.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RechargeHandler credits a user's ledger.
func (h *StoreHandlers) RechargeHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	var req rechargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	balance, err := h.service.Recharge(r.Context(), userID, req.Amount, req.Note)
	if err != nil {
		log.Printf("level=warn component=api endpoint=recharge outcome=failed user_id=%s err=%v", userID, err)
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int64{"credits": balance})
}

// WarnUserHandler records a disciplinary note against a user.
func (h *StoreHandlers) WarnUserHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	if err := h.service.WarnUser(r.Context(), userID, req.Message); err != nil {
		h.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// BlockUserHandler blocks a user from checkout, until a deadline or permanently.
func (h *StoreHandlers) BlockUserHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	var req blockRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
			return
		}
	}

	if err := h.service.BlockUser(r.Context(), userID, req.Until); err != nil {
		h.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UnblockUserHandler lifts a block.
func (h *StoreHandlers) UnblockUserHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	if err := h.service.UnblockUser(r.Context(), userID); err != nil {
		h.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CancelOrderHandler marks an order CANCELLED.
func (h *StoreHandlers) CancelOrderHandler(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		http.Error(w, "Invalid order ID", http.StatusBadRequest)
		return
	}

	if err := h.service.CancelOrder(r.Context(), orderID); err != nil {
		log.Printf("level=warn component=api endpoint=cancel_order outcome=failed order_id=%s err=%v", orderID, err)
		h.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RehabilitateOrderHandler returns a cancelled order's credentials to stock.
func (h *StoreHandlers) RehabilitateOrderHandler(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		http.Error(w, "Invalid order ID", http.StatusBadRequest)
		return
	}

	order, err := h.service.Rehabilitate(r.Context(), orderID)
	if err != nil {
		log.Printf("level=warn component=api endpoint=rehabilitate_order outcome=failed order_id=%s err=%v", orderID, err)
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, order)
}

// BroadcastHandler stores and publishes an announcement.
func (h *StoreHandlers) BroadcastHandler(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	broadcast, err := h.service.Broadcast(r.Context(), req.Title, req.Body)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, broadcast)
}

// RecordExpenseHandler stores an outgoing cost for the financial report.
func (h *StoreHandlers) RecordExpenseHandler(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	if err := h.service.RecordExpense(r.Context(), req.Label, req.Amount, req.SpentAt); err != nil {
		h.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// ReportHandler aggregates recharges against expenses for a period. Query
// params `from` and `to` are RFC 3339; they default to the last 30 days.
func (h *StoreHandlers) ReportHandler(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	from := now.AddDate(0, 0, -30)
	to := now

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "Invalid 'from' timestamp", http.StatusBadRequest)
			return
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "Invalid 'to' timestamp", http.StatusBadRequest)
			return
		}
		to = parsed
	}

	report, err := h.service.Report(r.Context(), from, to)
	if err != nil {
		log.Printf("level=error component=api endpoint=report err=%v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *StoreHandlers) parseItemUserParams(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		http.Error(w, "Invalid item ID", http.StatusBadRequest)
		return uuid.Nil, uuid.Nil, false
	}
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return uuid.Nil, uuid.Nil, false
	}
	return itemID, userID, true
}
