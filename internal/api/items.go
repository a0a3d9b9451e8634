package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/popis/internal/model"
	"github.com/erazemk/popis/internal/store"
)

// ItemsHandler handles item CRUD endpoints.
type ItemsHandler struct {
	DB *sql.DB
}

type createItemRequest struct {
	Name            string `json:"name" validate:"required,max=200"`
	Description     string `json:"description" validate:"max=2000"`
	InventoryNumber string `json:"inventory_number" validate:"max=64"`
}

type updateItemRequest struct {
	Name            string `json:"name" validate:"required,max=200"`
	Description     string `json:"description" validate:"max=2000"`
	InventoryNumber string `json:"inventory_number" validate:"max=64"`
	Status          string `json:"status" validate:"omitempty,oneof=active damaged lost retired"`
}

// List handles GET /api/items. Supports ?status= and ?q= (name or inventory number).
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := store.ItemFilter{
		Status: r.URL.Query().Get("status"),
		Search: r.URL.Query().Get("q"),
	}
	if filter.Status != "" && !model.ValidItemStatus(filter.Status) {
		jsonError(w, http.StatusBadRequest, "invalid status")
		return
	}

	items, err := store.ListItems(r.Context(), h.DB, filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	jsonResponse(w, http.StatusOK, items)
}

// Create handles POST /api/items.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := decodeValid(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	item, err := store.CreateItem(r.Context(), h.DB, req.Name, req.Description, req.InventoryNumber)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusCreated, item)
}

// Get handles GET /api/items/{id}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "item")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	item, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if item == nil {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}

	jsonResponse(w, http.StatusOK, item)
}

// Update handles PUT /api/items/{id}.
func (h *ItemsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "item")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var req updateItemRequest
	if err := decodeValid(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if req.Status == "" {
		req.Status = model.ItemStatusActive
	}

	if err := store.UpdateItem(r.Context(), h.DB, id, req.Name, req.Description, req.InventoryNumber, req.Status); err != nil {
		writeServiceError(w, r, err)
		return
	}

	item, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Delete handles DELETE /api/items/{id}. Items are soft-deleted, so existing
// stocktakes keep their snapshot.
func (h *ItemsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "item")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := store.DeleteItem(r.Context(), h.DB, id); err != nil {
		writeServiceError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"message": "item deleted"})
}
