package recipes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"crofflepos/internal/domain"
	"crofflepos/internal/store"
)

// templateFile is the YAML exchange format:
//
//	templates:
//	  - name: Classic Nutella Croffle
//	    category: Classic
//	    suggested_price_cents: 12500
//	    ingredients:
//	      - ingredient_name: Nutella
//	        quantity: "30"
//	        unit: g
//	        cost_per_unit_cents: "1.2"
type templateFile struct {
	Templates []templateEntry `yaml:"templates"`
}

type templateEntry struct {
	Name                string                      `yaml:"name"`
	Description         string                      `yaml:"description,omitempty"`
	Category            string                      `yaml:"category,omitempty"`
	SuggestedPriceCents int64                       `yaml:"suggested_price_cents,omitempty"`
	Active              *bool                       `yaml:"active,omitempty"`
	Ingredients         []domain.TemplateIngredient `yaml:"ingredients"`
}

type ImportResult struct {
	Created []string `json:"created"`
	Updated []string `json:"updated"`
	Errors  []string `json:"errors"`
}

// Export writes every template as YAML.
func (m *Manager) Export(ctx context.Context, w io.Writer) (int, error) {
	templates, err := m.repo.ListRecipeTemplates(ctx, false)
	if err != nil {
		return 0, err
	}
	file := templateFile{Templates: make([]templateEntry, 0, len(templates))}
	for _, tpl := range templates {
		active := tpl.Active
		file.Templates = append(file.Templates, templateEntry{
			Name:                tpl.Name,
			Description:         tpl.Description,
			Category:            tpl.Category,
			SuggestedPriceCents: tpl.SuggestedPriceCents,
			Active:              &active,
			Ingredients:         tpl.Ingredients,
		})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(file); err != nil {
		return 0, err
	}
	return len(file.Templates), enc.Close()
}

// Import creates templates from YAML, updating existing ones matched by
// name. Invalid entries are reported and skipped.
func (m *Manager) Import(ctx context.Context, r io.Reader, actor string) (ImportResult, error) {
	var file templateFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return ImportResult{}, fmt.Errorf("template file is empty: %w", store.ErrInvalidTransaction)
		}
		return ImportResult{}, fmt.Errorf("parse template file: %v: %w", err, store.ErrInvalidTransaction)
	}

	existing, err := m.repo.ListRecipeTemplates(ctx, false)
	if err != nil {
		return ImportResult{}, err
	}
	byName := make(map[string]string, len(existing))
	for _, tpl := range existing {
		byName[strings.ToLower(tpl.Name)] = tpl.ID
	}

	result := ImportResult{Created: []string{}, Updated: []string{}, Errors: []string{}}
	for i, entry := range file.Templates {
		req := domain.RecipeTemplateRequest{
			Name:                entry.Name,
			Description:         entry.Description,
			Category:            entry.Category,
			SuggestedPriceCents: entry.SuggestedPriceCents,
			Ingredients:         entry.Ingredients,
			Active:              entry.Active,
		}
		if err := ValidateTemplate(&req); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("template %d: %v", i+1, err))
			continue
		}

		if id, ok := byName[strings.ToLower(req.Name)]; ok {
			if _, err := m.UpdateTemplate(ctx, id, req); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", req.Name, err))
				continue
			}
			result.Updated = append(result.Updated, req.Name)
			continue
		}
		created, err := m.CreateTemplate(ctx, req, actor)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", req.Name, err))
			continue
		}
		byName[strings.ToLower(created.Name)] = created.ID
		result.Created = append(result.Created, created.Name)
	}
	return result, nil
}
