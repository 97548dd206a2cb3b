package service

import (
	"context"
	"fmt"
	"strings"

	"crofflepos/internal/domain"
	"crofflepos/internal/store"
)

var managerRoles = []string{domain.RoleManager, domain.RoleOwner}

func (s *Service) CreateStore(ctx context.Context, req domain.StoreCreateRequest) (domain.Store, error) {
	if _, err := s.authorize(ctx, "", domain.RoleOwner); err != nil {
		return domain.Store{}, err
	}
	created, err := s.repo.CreateStore(ctx, domain.Store{
		Code:          req.Code,
		Name:          req.Name,
		Address:       strings.TrimSpace(req.Address),
		TIN:           strings.TrimSpace(req.TIN),
		MachineSerial: strings.TrimSpace(req.MachineSerial),
		PermitNumber:  strings.TrimSpace(req.PermitNumber),
		VATRegistered: req.VATRegistered,
		CreatedAt:     s.now(),
	})
	if err != nil {
		return domain.Store{}, err
	}
	s.logAudit(ctx, created.ID, "store_create", "store", created.ID, "code="+created.Code)
	return *created, nil
}

func (s *Service) UpdateStore(ctx context.Context, id string, req domain.StoreUpdateRequest) (domain.Store, error) {
	if _, err := s.authorize(ctx, id, domain.RoleOwner); err != nil {
		return domain.Store{}, err
	}
	st, err := s.repo.GetStore(ctx, id)
	if err != nil {
		return domain.Store{}, err
	}
	if req.Name != nil {
		st.Name = strings.TrimSpace(*req.Name)
	}
	if req.Address != nil {
		st.Address = strings.TrimSpace(*req.Address)
	}
	if req.TIN != nil {
		st.TIN = strings.TrimSpace(*req.TIN)
	}
	if req.MachineSerial != nil {
		st.MachineSerial = strings.TrimSpace(*req.MachineSerial)
	}
	if req.PermitNumber != nil {
		st.PermitNumber = strings.TrimSpace(*req.PermitNumber)
	}
	if req.VATRegistered != nil {
		st.VATRegistered = *req.VATRegistered
	}
	if req.Active != nil {
		st.Active = *req.Active
	}

	updated, err := s.repo.UpdateStore(ctx, *st)
	if err != nil {
		return domain.Store{}, err
	}
	s.logAudit(ctx, updated.ID, "store_update", "store", updated.ID, fmt.Sprintf("active=%t,vat=%t", updated.Active, updated.VATRegistered))
	return *updated, nil
}

// ListStores returns the stores the caller may see.
func (s *Service) ListStores(ctx context.Context) ([]domain.Store, error) {
	actor, err := s.authorize(ctx, "")
	if err != nil {
		return nil, err
	}
	stores, err := s.repo.ListStores(ctx, false)
	if err != nil {
		return nil, err
	}
	if actor.AllStores() {
		return stores, nil
	}
	visible := make([]domain.Store, 0, len(actor.StoreIDs))
	for _, st := range stores {
		if actor.CanAccessStore(st.ID) && st.Active {
			visible = append(visible, st)
		}
	}
	return visible, nil
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryCreateRequest) (domain.Category, error) {
	req.StoreID = s.storeOrDefault(req.StoreID)
	if _, err := s.authorize(ctx, req.StoreID, managerRoles...); err != nil {
		return domain.Category{}, err
	}
	created, err := s.repo.CreateCategory(ctx, domain.Category{
		StoreID:   req.StoreID,
		Name:      req.Name,
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.Category{}, err
	}
	s.logAudit(ctx, created.StoreID, "category_create", "category", created.ID, created.Name)
	return *created, nil
}

func (s *Service) ListCategories(ctx context.Context, storeID string) ([]domain.Category, error) {
	storeID = s.storeOrDefault(storeID)
	if _, err := s.authorize(ctx, storeID); err != nil {
		return nil, err
	}
	return s.repo.ListCategories(ctx, storeID)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.StoreID = s.storeOrDefault(req.StoreID)
	if _, err := s.authorize(ctx, req.StoreID, managerRoles...); err != nil {
		return domain.Product{}, err
	}
	if req.PriceCents < 1 {
		return domain.Product{}, fmt.Errorf("%w: price must be positive", store.ErrInvalidTransaction)
	}
	if err := s.checkProductRefs(ctx, req.StoreID, req.CategoryID, req.RecipeID); err != nil {
		return domain.Product{}, err
	}

	now := s.now()
	created, err := s.repo.CreateProduct(ctx, domain.Product{
		StoreID:    req.StoreID,
		SKU:        req.SKU,
		Name:       req.Name,
		CategoryID: strings.TrimSpace(req.CategoryID),
		PriceCents: req.PriceCents,
		RecipeID:   strings.TrimSpace(req.RecipeID),
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return domain.Product{}, err
	}
	s.stockChanged(ctx, created.StoreID)
	s.logAudit(ctx, created.StoreID, "product_create", "product", created.ID, fmt.Sprintf("name=%s,price=%d", created.Name, created.PriceCents))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	if _, err := s.authorize(ctx, product.StoreID, managerRoles...); err != nil {
		return domain.Product{}, err
	}

	if req.Name != nil {
		product.Name = strings.TrimSpace(*req.Name)
	}
	if req.CategoryID != nil {
		product.CategoryID = strings.TrimSpace(*req.CategoryID)
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 1 {
			return domain.Product{}, fmt.Errorf("%w: price must be positive", store.ErrInvalidTransaction)
		}
		product.PriceCents = *req.PriceCents
	}
	if req.RecipeID != nil {
		product.RecipeID = strings.TrimSpace(*req.RecipeID)
	}
	if req.Active != nil {
		product.Active = *req.Active
	}
	if err := s.checkProductRefs(ctx, product.StoreID, product.CategoryID, product.RecipeID); err != nil {
		return domain.Product{}, err
	}
	product.UpdatedAt = s.now()

	updated, err := s.repo.UpdateProduct(ctx, *product)
	if err != nil {
		return domain.Product{}, err
	}
	s.stockChanged(ctx, updated.StoreID)
	s.logAudit(ctx, updated.StoreID, "product_update", "product", updated.ID, fmt.Sprintf("price=%d,active=%t", updated.PriceCents, updated.Active))
	return *updated, nil
}

// checkProductRefs verifies the category and recipe belong to the product's store.
func (s *Service) checkProductRefs(ctx context.Context, storeID string, categoryID string, recipeID string) error {
	if categoryID = strings.TrimSpace(categoryID); categoryID != "" {
		categories, err := s.repo.ListCategories(ctx, storeID)
		if err != nil {
			return err
		}
		found := false
		for _, c := range categories {
			if c.ID == categoryID {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: category %s is not in store %s", store.ErrInvalidTransaction, categoryID, storeID)
		}
	}
	if recipeID = strings.TrimSpace(recipeID); recipeID != "" {
		recipe, err := s.repo.GetRecipe(ctx, recipeID)
		if err != nil {
			return err
		}
		if recipe.StoreID != storeID {
			return fmt.Errorf("%w: recipe %s is not in store %s", store.ErrInvalidTransaction, recipeID, storeID)
		}
	}
	return nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	if _, err := s.authorize(ctx, product.StoreID); err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) ListProducts(ctx context.Context, storeID string, activeOnly bool) ([]domain.Product, error) {
	storeID = s.storeOrDefault(storeID)
	if _, err := s.authorize(ctx, storeID); err != nil {
		return nil, err
	}
	return s.repo.ListProducts(ctx, storeID, activeOnly)
}
