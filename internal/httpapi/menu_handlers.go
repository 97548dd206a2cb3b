package httpapi

import (
	"bytes"
	"net/http"

	"github.com/go-chi/chi/v5"

	"crofflepos/internal/domain"
)

func (a *API) registerMenuRoutes(r chi.Router) {
	r.Route("/recipe-templates", func(r chi.Router) {
		r.Get("/", a.handleListTemplates)
		r.Post("/", a.handleCreateTemplate)
		r.Patch("/{id}", a.handleUpdateTemplate)
		r.Post("/deploy", a.handleDeployTemplate)
		r.Get("/export", a.handleExportTemplates)
		r.Post("/import", a.handleImportTemplates)
	})
	r.Get("/recipes", a.handleListRecipes)
	r.Post("/recipes", a.handleCreateRecipe)
}

func (a *API) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := a.service.ListRecipeTemplates(r.Context(), parseBool(r.URL.Query().Get("active"), false))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": templates})
}

func (a *API) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req domain.RecipeTemplateRequest
	if !a.decodeOrFail(w, r, &req) {
		return
	}
	tpl, err := a.service.CreateRecipeTemplate(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"template": tpl})
}

func (a *API) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var req domain.RecipeTemplateRequest
	if !a.decodeOrFail(w, r, &req) {
		return
	}
	tpl, err := a.service.UpdateRecipeTemplate(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"template": tpl})
}

func (a *API) handleDeployTemplate(w http.ResponseWriter, r *http.Request) {
	var req domain.DeployRequest
	if !a.decodeOrFail(w, r, &req) {
		return
	}
	resp, err := a.service.DeployTemplate(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleExportTemplates buffers the YAML so a failure can still produce a
// JSON error.
func (a *API) handleExportTemplates(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if _, err := a.service.ExportRecipeTemplates(r.Context(), &buf); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set("Content-Disposition", `attachment; filename="recipe-templates.yaml"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (a *API) handleImportTemplates(w http.ResponseWriter, r *http.Request) {
	result, err := a.service.ImportRecipeTemplates(r.Context(), r.Body)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleListRecipes(w http.ResponseWriter, r *http.Request) {
	recipes, err := a.service.ListRecipes(r.Context(), r.URL.Query().Get("store_id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recipes": recipes})
}

func (a *API) handleCreateRecipe(w http.ResponseWriter, r *http.Request) {
	var req domain.RecipeCreateRequest
	if !a.decodeOrFail(w, r, &req) {
		return
	}
	recipe, err := a.service.CreateRecipe(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"recipe": recipe})
}
