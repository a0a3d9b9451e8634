package api

import (
	"net/http"
	"time"

	"github.com/erazemk/popis/internal/model"
	"github.com/erazemk/popis/internal/stocktake"
)

// StocktakesHandler exposes stocktake campaigns over HTTP.
type StocktakesHandler struct {
	Engine *stocktake.Engine
	Query  *stocktake.Query
}

type createStocktakeRequest struct {
	Name        string     `json:"name" validate:"max=200"`
	Description string     `json:"description" validate:"max=2000"`
	Items       []int64    `json:"items" validate:"required,min=1,dive,gt=0"`
	Accounts    []int64    `json:"accounts" validate:"required,min=1,dive,gt=0"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     time.Time  `json:"end_date"`
}

type updateStocktakeRequest struct {
	Name        *string    `json:"name" validate:"omitempty,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=2000"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
	Status      *string    `json:"status" validate:"omitempty,oneof=planned in_progress completed cancelled"`
}

type transitionRequest struct {
	Status string `json:"status" validate:"required"`
}

type accountsRequest struct {
	Accounts []int64 `json:"accounts" validate:"required,min=1,dive,gt=0"`
}

type checkRequest struct {
	ItemID int64 `json:"item_id" validate:"required,gt=0"`
}

// List handles GET /api/stocktakes. Supports ?status= and ?mine=1 (only
// campaigns the caller is authorized for).
func (h *StocktakesHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := model.StocktakeFilter{Status: r.URL.Query().Get("status")}
	if mine := r.URL.Query().Get("mine"); mine == "1" || mine == "true" {
		filter.AccountID = GetClaims(r.Context()).UserID
	}

	list, err := h.Engine.ListCampaigns(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []model.Stocktake{}
	}
	jsonResponse(w, http.StatusOK, list)
}

// Create handles POST /api/stocktakes.
func (h *StocktakesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createStocktakeRequest
	if err := decodeValid(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	in := stocktake.NewCampaign{
		Name:        req.Name,
		Description: req.Description,
		Items:       req.Items,
		Accounts:    req.Accounts,
		EndDate:     req.EndDate,
	}
	if req.StartDate != nil {
		in.StartDate = *req.StartDate
	}

	st, err := h.Engine.CreateCampaign(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, st)
}

// Get handles GET /api/stocktakes/{id}.
func (h *StocktakesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "stocktake")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	st, err := h.Engine.GetCampaign(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, st)
}

// Update handles PUT /api/stocktakes/{id}.
func (h *StocktakesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "stocktake")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var req updateStocktakeRequest
	if err := decodeValid(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	st, err := h.Engine.UpdateCampaign(r.Context(), id, stocktake.CampaignUpdate{
		Name:        req.Name,
		Description: req.Description,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Status:      req.Status,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, st)
}

// Transition handles PUT /api/stocktakes/{id}/status.
func (h *StocktakesHandler) Transition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "stocktake")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var req transitionRequest
	if err := decodeValid(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	st, err := h.Engine.TransitionStatus(r.Context(), id, req.Status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, st)
}

// SetAccounts handles PUT /api/stocktakes/{id}/accounts.
func (h *StocktakesHandler) SetAccounts(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "stocktake")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var req accountsRequest
	if err := decodeValid(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	st, err := h.Engine.SetAuthorizedAccounts(r.Context(), id, req.Accounts)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, st)
}

// Delete handles DELETE /api/stocktakes/{id}.
func (h *StocktakesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "stocktake")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := h.Engine.DeleteCampaign(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "stocktake deleted"})
}

// Check handles POST /api/stocktakes/{id}/checks on behalf of the caller.
// A new record answers 201, an item that was already checked answers 200.
func (h *StocktakesHandler) Check(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "stocktake")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var req checkRequest
	if err := decodeValid(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	caller := GetClaims(r.Context()).UserID
	res, err := h.Engine.MarkItemChecked(r.Context(), id, req.ItemID, &caller)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.AlreadyChecked {
		status = http.StatusOK
	}
	jsonResponse(w, status, res)
}

// ListChecks handles GET /api/stocktakes/{id}/checks.
func (h *StocktakesHandler) ListChecks(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "stocktake")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	checks, err := h.Engine.ListCheckedItems(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if checks == nil {
		checks = []model.CheckedItem{}
	}
	jsonResponse(w, http.StatusOK, checks)
}

// Statistics handles GET /api/stocktakes/{id}/statistics.
func (h *StocktakesHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "stocktake")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	stats, err := h.Query.Statistics(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, stats)
}

// MyItems handles GET /api/me/stocktake-items.
func (h *StocktakesHandler) MyItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Query.MyOpenItems(r.Context(), GetClaims(r.Context()).UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, items)
}
