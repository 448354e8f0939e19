package services

import (
	"context"
	"fmt"

	"flowforge/internal/models"

	"gorm.io/gorm"
)

// CatalogService serves the seeded trigger/action type tables the editor UI
// builds zaps from.
type CatalogService struct {
	db *gorm.DB
}

func NewCatalogService(db *gorm.DB) *CatalogService {
	return &CatalogService{db: db}
}

func (s *CatalogService) AvailableTriggers(ctx context.Context) ([]models.AvailableTrigger, error) {
	var triggers []models.AvailableTrigger
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&triggers).Error; err != nil {
		return nil, fmt.Errorf("failed to list available triggers: %w", err)
	}
	return triggers, nil
}

func (s *CatalogService) AvailableActions(ctx context.Context) ([]models.AvailableAction, error) {
	var actions []models.AvailableAction
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&actions).Error; err != nil {
		return nil, fmt.Errorf("failed to list available actions: %w", err)
	}
	return actions, nil
}
