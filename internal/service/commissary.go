package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"crofflepos/internal/domain"
	"crofflepos/internal/store"
	"crofflepos/internal/units"
)

func (s *Service) CreateCommissaryItem(ctx context.Context, req domain.CommissaryItemCreateRequest) (domain.CommissaryItem, error) {
	if _, err := s.authorize(ctx, "", domain.RoleOwner); err != nil {
		return domain.CommissaryItem{}, err
	}
	created, err := s.repo.CreateCommissaryItem(ctx, domain.CommissaryItem{
		Name:             req.Name,
		Unit:             req.Unit,
		Stock:            req.InitialStock,
		CostPerUnitCents: req.CostPerUnitCents,
	})
	if err != nil {
		return domain.CommissaryItem{}, err
	}
	s.logAudit(ctx, "", "commissary_item_create", "commissary_item", created.ID, fmt.Sprintf("name=%s,stock=%s", created.Name, created.Stock))
	return *created, nil
}

func (s *Service) ListCommissaryItems(ctx context.Context) ([]domain.CommissaryItem, error) {
	if _, err := s.authorize(ctx, "", managerRoles...); err != nil {
		return nil, err
	}
	return s.repo.ListCommissaryItems(ctx)
}

// RestockCommissary records central kitchen production.
func (s *Service) RestockCommissary(ctx context.Context, id string, req domain.CommissaryRestockRequest) (domain.CommissaryItem, error) {
	if _, err := s.authorize(ctx, "", domain.RoleOwner); err != nil {
		return domain.CommissaryItem{}, err
	}
	if !req.Quantity.IsPositive() {
		return domain.CommissaryItem{}, fmt.Errorf("%w: restock quantity must be positive", store.ErrInvalidTransaction)
	}
	updated, err := s.repo.AdjustCommissaryStock(ctx, id, domain.StockChange{
		InventoryItemID: id,
		Quantity:        req.Quantity,
		Notes:           strings.TrimSpace(req.Notes),
	})
	if err != nil {
		return domain.CommissaryItem{}, err
	}
	s.logAudit(ctx, "", "commissary_restock", "commissary_item", updated.ID, fmt.Sprintf("qty=%s,stock=%s", req.Quantity, updated.Stock))
	return *updated, nil
}

// ConvertCommissary ships commissary stock to a store, turning each source
// unit into ConversionRatio store units. Without a ratio the pack size in the
// commissary item's name is used, so a "pack of 24" becomes 24 pieces.
func (s *Service) ConvertCommissary(ctx context.Context, req domain.CommissaryConversionRequest) (domain.CommissaryConversion, error) {
	req.StoreID = s.storeOrDefault(req.StoreID)
	actor, err := s.authorize(ctx, req.StoreID, domain.RoleOwner)
	if err != nil {
		return domain.CommissaryConversion{}, err
	}
	if !req.Quantity.IsPositive() {
		return domain.CommissaryConversion{}, fmt.Errorf("%w: conversion quantity must be positive", store.ErrInvalidTransaction)
	}

	source, err := s.repo.GetCommissaryItem(ctx, req.CommissaryItemID)
	if err != nil {
		return domain.CommissaryConversion{}, err
	}
	ratio := req.ConversionRatio
	if ratio.IsZero() {
		if n, ok := units.ExtractPackQuantity(source.Name); ok {
			ratio = decimal.NewFromInt(int64(n))
		} else {
			ratio = decimal.NewFromInt(1)
		}
	}
	if !ratio.IsPositive() {
		return domain.CommissaryConversion{}, fmt.Errorf("%w: conversion ratio must be positive", store.ErrInvalidTransaction)
	}

	targetUnit := strings.TrimSpace(req.TargetUnit)
	if targetUnit == "" && strings.TrimSpace(req.InventoryItemID) == "" {
		targetUnit = "pcs"
	}

	conv, err := s.repo.ConvertCommissaryStock(ctx, domain.CommissaryConversion{
		CommissaryItemID: source.ID,
		StoreID:          req.StoreID,
		InventoryItemID:  strings.TrimSpace(req.InventoryItemID),
		TargetName:       defaultString(strings.TrimSpace(req.TargetName), source.Name),
		TargetUnit:       targetUnit,
		Quantity:         req.Quantity,
		ConversionRatio:  ratio,
		Notes:            strings.TrimSpace(req.Notes),
		ConvertedBy:      actor.Username,
		CreatedAt:        s.now(),
	})
	if err != nil {
		return domain.CommissaryConversion{}, err
	}

	s.stockChanged(ctx, req.StoreID)
	s.logAudit(ctx, req.StoreID, "commissary_convert", "commissary_conversion", conv.ID, fmt.Sprintf(
		"source=%s,qty=%s,ratio=%s,produced=%s %s", source.ID, conv.Quantity, conv.ConversionRatio, conv.ProducedQuantity, conv.TargetUnit,
	))
	return *conv, nil
}

func (s *Service) ListCommissaryConversions(ctx context.Context, storeID string, limit int) ([]domain.CommissaryConversion, error) {
	storeID = strings.TrimSpace(storeID)
	actor, err := s.authorize(ctx, storeID, managerRoles...)
	if err != nil {
		return nil, err
	}
	if storeID == "" && !actor.AllStores() {
		return nil, fmt.Errorf("%w: store required", ErrForbidden)
	}
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListCommissaryConversions(ctx, storeID, limit)
}
