package services

import (
	"context"
	"fmt"
	"time"

	"flowforge/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ZapService owns the zap CRUD surface. Creation is atomic across the zap,
// its trigger and its actions; deletion cascades over runs, actions and
// trigger and cancels any live external schedule.
type ZapService struct {
	db        *gorm.DB
	lifecycle *LifecycleService
	logger    *logrus.Logger
}

func NewZapService(db *gorm.DB, lifecycle *LifecycleService, logger *logrus.Logger) *ZapService {
	if logger == nil {
		logger = logrus.New()
	}
	return &ZapService{db: db, lifecycle: lifecycle, logger: logger}
}

// ZapActionRequest is one step of the chain at creation time. Position is
// fixed by slice order.
type ZapActionRequest struct {
	TypeID   uint                   `json:"available_action_id" binding:"required"`
	Metadata map[string]interface{} `json:"action_metadata"`
}

// ZapCreateRequest creates a zap with its trigger and ordered actions in one
// atomic operation.
type ZapCreateRequest struct {
	Name           string                 `json:"name"`
	Description    string                 `json:"description"`
	MaxRuns        *int                   `json:"max_runs"`
	TriggerTypeID  uint                   `json:"available_trigger_id" binding:"required"`
	TriggerPayload map[string]interface{} `json:"trigger_metadata"`
	Actions        []ZapActionRequest     `json:"actions" binding:"required"`
}

// ZapUpdateRequest mutates a zap. Nil fields are left untouched. Cron goes
// through the lifecycle manager so the external schedule stays in sync;
// IsActive goes through Toggle for the same reason.
type ZapUpdateRequest struct {
	Name           string                          `json:"name"`
	Description    *string                         `json:"description"`
	MaxRuns        *int                            `json:"max_runs"`
	IsActive       *bool                           `json:"is_active"`
	Cron           *string                         `json:"cron"`
	ActionMetadata map[uint]map[string]interface{} `json:"action_metadata"`
}

// Create persists a new zap, trigger and action chain transactionally.
func (s *ZapService) Create(ctx context.Context, userID uint, req *ZapCreateRequest) (*models.Zap, error) {
	if req == nil {
		return nil, fmt.Errorf("request required")
	}
	maxRuns := models.MaxRunsUnlimited
	if req.MaxRuns != nil {
		maxRuns = *req.MaxRuns
	}

	zap := &models.Zap{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        req.Name,
		Description: req.Description,
		MaxRuns:     maxRuns,
		IsActive:    true,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(zap).Error; err != nil {
			return fmt.Errorf("failed to create zap: %w", err)
		}
		trigger := &models.Trigger{
			ZapID:   zap.ID,
			TypeID:  req.TriggerTypeID,
			Payload: encodeJSON(req.TriggerPayload),
		}
		if err := tx.Create(trigger).Error; err != nil {
			return fmt.Errorf("failed to create trigger: %w", err)
		}
		for i, a := range req.Actions {
			action := &models.Action{
				ZapID:        zap.ID,
				TypeID:       a.TypeID,
				Metadata:     encodeJSON(a.Metadata),
				SortingOrder: i,
			}
			if err := tx.Create(action).Error; err != nil {
				return fmt.Errorf("failed to create action: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infof("zap %s created for user %d with %d action(s)", zap.ID, userID, len(req.Actions))
	return s.Get(ctx, userID, zap.ID)
}

// List returns the user's zaps with trigger and ordered actions preloaded.
func (s *ZapService) List(ctx context.Context, userID uint) ([]models.Zap, error) {
	var zaps []models.Zap
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Preload("Trigger").
		Preload("Trigger.Type").
		Preload("Actions", actionOrder).
		Preload("Actions.Type").
		Order("created_at DESC").
		Find(&zaps).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list zaps: %w", err)
	}
	return zaps, nil
}

// Get returns one owned zap or ErrZapNotFound.
func (s *ZapService) Get(ctx context.Context, userID uint, zapID string) (*models.Zap, error) {
	var zap models.Zap
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", zapID, userID).
		Preload("Trigger").
		Preload("Trigger.Type").
		Preload("Actions", actionOrder).
		Preload("Actions.Type").
		First(&zap).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrZapNotFound
		}
		return nil, fmt.Errorf("failed to load zap: %w", err)
	}
	return &zap, nil
}

// Update applies a partial update. Schedule-affecting fields are routed
// through the lifecycle manager.
func (s *ZapService) Update(ctx context.Context, userID uint, zapID string, req *ZapUpdateRequest) (*models.Zap, error) {
	if req == nil {
		return nil, fmt.Errorf("request required")
	}
	zap, err := s.Get(ctx, userID, zapID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.MaxRuns != nil {
		updates["max_runs"] = *req.MaxRuns
	}
	if len(updates) > 0 {
		updates["updated_at"] = time.Now()
		if err := s.db.WithContext(ctx).Model(&models.Zap{}).Where("id = ?", zapID).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update zap: %w", err)
		}
	}

	for actionID, metadata := range req.ActionMetadata {
		result := s.db.WithContext(ctx).
			Model(&models.Action{}).
			Where("id = ? AND zap_id = ?", actionID, zapID).
			Update("metadata", encodeJSON(metadata))
		if result.Error != nil {
			return nil, fmt.Errorf("failed to update action %d: %w", actionID, result.Error)
		}
	}

	if req.Cron != nil {
		if err := s.lifecycle.Reschedule(ctx, zapID, *req.Cron); err != nil {
			return nil, err
		}
	}
	if req.IsActive != nil && *req.IsActive != zap.IsActive {
		if err := s.lifecycle.Toggle(ctx, zapID, *req.IsActive); err != nil {
			return nil, err
		}
	}

	return s.Get(ctx, userID, zapID)
}

// Delete removes an owned zap, cascading over its runs, actions and trigger.
// Any live external schedule is cancelled best-effort first; a stale
// schedule would only hit a closed gate.
func (s *ZapService) Delete(ctx context.Context, userID uint, zapID string) error {
	zap, err := s.Get(ctx, userID, zapID)
	if err != nil {
		return err
	}

	s.lifecycle.CancelScheduleBestEffort(ctx, zapID)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("zap_id = ?", zapID).Delete(&models.ZapRun{}).Error; err != nil {
			return fmt.Errorf("failed to delete runs: %w", err)
		}
		if err := tx.Where("zap_id = ?", zapID).Delete(&models.Action{}).Error; err != nil {
			return fmt.Errorf("failed to delete actions: %w", err)
		}
		if err := tx.Where("zap_id = ?", zapID).Delete(&models.Trigger{}).Error; err != nil {
			return fmt.Errorf("failed to delete trigger: %w", err)
		}
		if err := tx.Delete(zap).Error; err != nil {
			return fmt.Errorf("failed to delete zap: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Infof("zap %s deleted for user %d", zapID, userID)
	return nil
}

// ListRuns returns the run history for an owned zap, newest first.
func (s *ZapService) ListRuns(ctx context.Context, userID uint, zapID string) ([]models.ZapRun, error) {
	if _, err := s.Get(ctx, userID, zapID); err != nil {
		return nil, err
	}
	var runs []models.ZapRun
	if err := s.db.WithContext(ctx).
		Where("zap_id = ?", zapID).
		Order("created_at DESC").
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

func actionOrder(db *gorm.DB) *gorm.DB {
	return db.Order("sorting_order ASC, id ASC")
}
