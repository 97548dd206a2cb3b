package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"crofflepos/internal/domain"
)

func (a *API) registerCatalogRoutes(r chi.Router) {
	r.Get("/stores", a.handleListStores)
	r.Post("/stores", a.handleCreateStore)
	r.Patch("/stores/{id}", a.handleUpdateStore)

	r.Get("/categories", a.handleListCategories)
	r.Post("/categories", a.handleCreateCategory)

	r.Get("/products", a.handleListProducts)
	r.Post("/products", a.handleCreateProduct)
	r.Get("/products/{id}", a.handleGetProduct)
	r.Patch("/products/{id}", a.handleUpdateProduct)
}

func (a *API) registerAdminRoutes(r chi.Router) {
	r.Get("/users", a.handleListUsers)
	r.Post("/users", a.handleCreateUser)
	r.Post("/users/{username}/password", a.handleChangePassword)
	r.Get("/audit-logs", a.handleAuditLogs)
}

func (a *API) handleListStores(w http.ResponseWriter, r *http.Request) {
	stores, err := a.service.ListStores(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stores": stores})
}

func (a *API) handleCreateStore(w http.ResponseWriter, r *http.Request) {
	var req domain.StoreCreateRequest
	if !a.decodeOrFail(w, r, &req) {
		return
	}
	created, err := a.service.CreateStore(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"store": created})
}

func (a *API) handleUpdateStore(w http.ResponseWriter, r *http.Request) {
	var req domain.StoreUpdateRequest
	if !a.decodeOrFail(w, r, &req) {
		return
	}
	updated, err := a.service.UpdateStore(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"store": updated})
}

func (a *API) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := a.service.ListCategories(r.Context(), r.URL.Query().Get("store_id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (a *API) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req domain.CategoryCreateRequest
	if !a.decodeOrFail(w, r, &req) {
		return
	}
	created, err := a.service.CreateCategory(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"category": created})
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	products, err := a.service.ListProducts(r.Context(), q.Get("store_id"), parseBool(q.Get("active"), false))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if !a.decodeOrFail(w, r, &req) {
		return
	}
	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"product": product})
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductUpdateRequest
	if !a.decodeOrFail(w, r, &req) {
		return
	}
	product, err := a.service.UpdateProduct(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.service.ListUsers(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.UserCreateRequest
	if !a.decodeOrFail(w, r, &req) {
		return
	}
	user, err := a.service.CreateUser(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if !a.decodeOrFail(w, r, &req) {
		return
	}
	if err := a.service.ChangePassword(r.Context(), chi.URLParam(r, "username"), req.Password); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	logs, err := a.service.ListAuditLogs(r.Context(), q.Get("store_id"), q.Get("date"), parsePositiveLimit(q.Get("limit"), 200, 1000))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit_logs": logs})
}
