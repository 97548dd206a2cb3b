package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"crofflepos/internal/domain"
)

func (a *API) registerPurchasingRoutes(r chi.Router) {
	r.Get("/suppliers", a.handleListSuppliers)
	r.Post("/suppliers", a.handleCreateSupplier)

	r.Route("/purchase-orders", func(r chi.Router) {
		r.Get("/", a.handleListPurchaseOrders)
		r.Post("/", a.handleCreatePurchaseOrder)
		r.Get("/{id}", a.handleGetPurchaseOrder)
		r.Post("/{id}/decision", a.handleDecidePurchaseOrder)
		r.Post("/{id}/cancel", a.handleCancelPurchaseOrder)
		r.Post("/{id}/receive", a.handleReceivePurchaseOrder)
	})
	r.Get("/reorder-suggestions", a.handleReorderSuggestions)

	r.Get("/expenses", a.handleListExpenses)
	r.Post("/expenses", a.handleCreateExpense)
}

func (a *API) handleListSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := a.service.ListSuppliers(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suppliers": suppliers})
}

func (a *API) handleCreateSupplier(w http.ResponseWriter, r *http.Request) {
	var req domain.SupplierCreateRequest
	if !a.decodeOrFail(w, r, &req) {
		return
	}
	supplier, err := a.service.CreateSupplier(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"supplier": supplier})
}

func (a *API) handleListPurchaseOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := a.service.ListPurchaseOrders(r.Context(), q.Get("store_id"), q.Get("status"), parsePositiveLimit(q.Get("limit"), 50, 500))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCreatePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.PurchaseOrderCreateRequest
	if !a.decodeOrFail(w, r, &req) {
		return
	}
	resp, err := a.service.CreatePurchaseOrder(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleGetPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.GetPurchaseOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleDecidePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.PurchaseOrderDecisionRequest
	if !a.decodeOrFail(w, r, &req) {
		return
	}
	resp, err := a.service.DecidePurchaseOrder(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCancelPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.CancelPurchaseOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleReceivePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.ReceivePurchaseOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleReorderSuggestions(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.ReorderSuggestions(r.Context(), r.URL.Query().Get("store_id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	expenses, err := a.service.ListExpenses(r.Context(), q.Get("store_id"), q.Get("from"), q.Get("to"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expenses": expenses})
}

func (a *API) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req domain.ExpenseCreateRequest
	if !a.decodeOrFail(w, r, &req) {
		return
	}
	expense, err := a.service.CreateExpense(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"expense": expense})
}
