package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"crofflepos/internal/domain"
)

func (a *API) registerInventoryRoutes(r chi.Router) {
	r.Route("/inventory", func(r chi.Router) {
		r.Get("/", a.handleListInventory)
		r.Post("/", a.handleCreateInventoryItem)
		r.Patch("/{id}", a.handleUpdateInventoryItem)
		r.Post("/adjust", a.handleAdjustStock)
		r.Post("/count", a.handleCountStock)
		r.Get("/movements", a.handleMovements)
		r.Post("/validate", a.handleValidateStock)
		r.Get("/health", a.handleInventoryHealth)
		r.Post("/reconcile", a.handleReconcile)
		r.Get("/retry-jobs", a.handleRetryJobs)
		r.Post("/retry/{transactionID}", a.handleRetryDeduction)
	})

	r.Get("/availability", a.handleAvailability)
	r.Get("/availability/{productID}", a.handleProductAvailability)
	r.Post("/availability/sync", a.handleAvailabilitySync)

	r.Route("/commissary", func(r chi.Router) {
		r.Get("/", a.handleListCommissary)
		r.Post("/", a.handleCreateCommissaryItem)
		r.Post("/{id}/restock", a.handleRestockCommissary)
		r.Post("/convert", a.handleConvertCommissary)
		r.Get("/conversions", a.handleCommissaryConversions)
	})
}

func (a *API) handleListInventory(w http.ResponseWriter, r *http.Request) {
	items, err := a.service.ListInventoryItems(r.Context(), r.URL.Query().Get("store_id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleCreateInventoryItem(w http.ResponseWriter, r *http.Request) {
	var req domain.InventoryItemCreateRequest
	if !a.decodeOrFail(w, r, &req) {
		return
	}
	item, err := a.service.CreateInventoryItem(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"item": item})
}

func (a *API) handleUpdateInventoryItem(w http.ResponseWriter, r *http.Request) {
	var req domain.InventoryItemUpdateRequest
	if !a.decodeOrFail(w, r, &req) {
		return
	}
	item, err := a.service.UpdateInventoryItem(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": item})
}

func (a *API) handleAdjustStock(w http.ResponseWriter, r *http.Request) {
	var req domain.StockAdjustRequest
	if !a.decodeOrFail(w, r, &req) {
		return
	}
	movements, err := a.service.AdjustStock(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"movements": movements})
}

func (a *API) handleCountStock(w http.ResponseWriter, r *http.Request) {
	var req domain.StockCountRequest
	if !a.decodeOrFail(w, r, &req) {
		return
	}
	resp, err := a.service.CountStock(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.MovementFilter{
		StoreID:         q.Get("store_id"),
		InventoryItemID: q.Get("inventory_item_id"),
		MovementType:    q.Get("movement_type"),
		ReferenceType:   q.Get("reference_type"),
		ReferenceID:     q.Get("reference_id"),
		Limit:           parsePositiveLimit(q.Get("limit"), 200, 1000),
	}
	var err error
	if filter.From, err = parseTimeParam(q.Get("from")); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if filter.To, err = parseTimeParam(q.Get("to")); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	movements, err := a.service.ListMovements(r.Context(), filter)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"movements": movements})
}

func (a *API) handleValidateStock(w http.ResponseWriter, r *http.Request) {
	var req domain.StockValidationRequest
	if !a.decodeOrFail(w, r, &req) {
		return
	}
	result, err := a.service.ValidateStock(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleInventoryHealth(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.CheckInventoryHealth(r.Context(), r.URL.Query().Get("store_id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StoreID string `json:"store_id"`
		Date    string `json:"date"`
	}
	if !a.decodeOrFail(w, r, &req) {
		return
	}
	report, err := a.service.ReconcileDay(r.Context(), req.StoreID, req.Date)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleRetryJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	jobs, err := a.service.ListRetryJobs(r.Context(), q.Get("status"), parsePositiveLimit(q.Get("limit"), 50, 500))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (a *API) handleRetryDeduction(w http.ResponseWriter, r *http.Request) {
	job, err := a.service.RetryDeduction(r.Context(), chi.URLParam(r, "transactionID"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (a *API) handleAvailability(w http.ResponseWriter, r *http.Request) {
	snapshot, err := a.service.Availability(r.Context(), r.URL.Query().Get("store_id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (a *API) handleProductAvailability(w http.ResponseWriter, r *http.Request) {
	availability, err := a.service.ProductAvailability(r.Context(), r.URL.Query().Get("store_id"), chi.URLParam(r, "productID"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, availability)
}

// handleAvailabilitySync recomputes one store, or every store when
// store_id=all.
func (a *API) handleAvailabilitySync(w http.ResponseWriter, r *http.Request) {
	storeID := r.URL.Query().Get("store_id")
	if storeID == "all" {
		results, err := a.service.SyncAllAvailability(r.Context())
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": results})
		return
	}
	result, err := a.service.SyncAvailability(r.Context(), storeID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleListCommissary(w http.ResponseWriter, r *http.Request) {
	items, err := a.service.ListCommissaryItems(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleCreateCommissaryItem(w http.ResponseWriter, r *http.Request) {
	var req domain.CommissaryItemCreateRequest
	if !a.decodeOrFail(w, r, &req) {
		return
	}
	item, err := a.service.CreateCommissaryItem(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"item": item})
}

func (a *API) handleRestockCommissary(w http.ResponseWriter, r *http.Request) {
	var req domain.CommissaryRestockRequest
	if !a.decodeOrFail(w, r, &req) {
		return
	}
	item, err := a.service.RestockCommissary(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": item})
}

func (a *API) handleConvertCommissary(w http.ResponseWriter, r *http.Request) {
	var req domain.CommissaryConversionRequest
	if !a.decodeOrFail(w, r, &req) {
		return
	}
	conversion, err := a.service.ConvertCommissary(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"conversion": conversion})
}

func (a *API) handleCommissaryConversions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	conversions, err := a.service.ListCommissaryConversions(r.Context(), q.Get("store_id"), parsePositiveLimit(q.Get("limit"), 50, 500))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversions": conversions})
}
