package services

import (
	"context"
	"fmt"
	"time"

	"flowforge/internal/models"
	"flowforge/pkg/qstash"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Trigger payload keys managed by the lifecycle service.
const (
	payloadKeySchedule = "scheduleId"
	payloadKeyCron     = "cron"
)

// LifecycleService enforces the maxRuns quota and keeps the external
// schedule in sync with a zap's active flag and quota state. The trigger
// payload's scheduleId is the single source of truth for the live schedule.
type LifecycleService struct {
	db        *gorm.DB
	scheduler qstash.SchedulerInterface
	appURL    string
	logger    *logrus.Logger
}

func NewLifecycleService(db *gorm.DB, scheduler qstash.SchedulerInterface, appURL string, logger *logrus.Logger) *LifecycleService {
	if logger == nil {
		logger = logrus.New()
	}
	return &LifecycleService{db: db, scheduler: scheduler, appURL: appURL, logger: logger}
}

// ScheduleInfo is the live schedule state reported to callers.
type ScheduleInfo struct {
	HasSchedule bool   `json:"hasSchedule"`
	ScheduleID  string `json:"scheduleId,omitempty"`
	Cron        string `json:"cron,omitempty"`
	IsPaused    bool   `json:"isPaused,omitempty"`
}

// CheckQuota reports whether the zap may accept another run. It runs against
// the given tx so dispatch can hold its row lock across check and insert.
func CheckQuota(tx *gorm.DB, zap *models.Zap) (allowed bool, runCount int64, err error) {
	if zap.MaxRuns == models.MaxRunsUnlimited {
		return true, 0, nil
	}
	if err := tx.Model(&models.ZapRun{}).Where("zap_id = ?", zap.ID).Count(&runCount).Error; err != nil {
		return false, 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return runCount < int64(zap.MaxRuns), runCount, nil
}

// CheckQuota is the standalone variant for callers outside a dispatch
// transaction.
func (s *LifecycleService) CheckQuota(ctx context.Context, zapID string) (bool, int64, error) {
	var zap models.Zap
	if err := s.db.WithContext(ctx).First(&zap, "id = ?", zapID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, 0, ErrZapNotFound
		}
		return false, 0, fmt.Errorf("failed to load zap: %w", err)
	}
	return CheckQuota(s.db.WithContext(ctx), &zap)
}

// OnQuotaExceeded is the quota-exhaustion reaction: cancel any live external
// schedule so a dead-end zap stops getting callbacks. Best-effort; the
// dispatch gate rejects stale callbacks anyway.
func (s *LifecycleService) OnQuotaExceeded(ctx context.Context, zapID string) {
	s.CancelScheduleBestEffort(ctx, zapID)
}

// CancelScheduleBestEffort tears down the live external schedule, if any,
// and clears the persisted scheduleId. Failures are logged, never
// propagated.
func (s *LifecycleService) CancelScheduleBestEffort(ctx context.Context, zapID string) {
	trigger, err := s.loadTrigger(ctx, zapID)
	if err != nil {
		s.logger.Warnf("schedule cancel: load trigger for zap %s: %v", zapID, err)
		return
	}
	payload := decodeObject(trigger.Payload)
	scheduleID, _ := payload[payloadKeySchedule].(string)
	if scheduleID == "" {
		return
	}
	if err := s.scheduler.DeleteSchedule(ctx, scheduleID); err != nil {
		s.logger.Warnf("schedule cancel: delete schedule %s: %v", scheduleID, err)
		return
	}
	delete(payload, payloadKeySchedule)
	if err := s.savePayload(ctx, trigger, payload); err != nil {
		s.logger.Warnf("schedule cancel: clear scheduleId for zap %s: %v", zapID, err)
		return
	}
	s.logger.Infof("schedule %s cancelled for zap %s", scheduleID, zapID)
}

// Toggle flips the zap's active flag and syncs the external schedule for
// schedule-type triggers. Idempotent in both directions: toggling to the
// current state neither errors nor creates a duplicate schedule.
func (s *LifecycleService) Toggle(ctx context.Context, zapID string, active bool) error {
	var zap models.Zap
	if err := s.db.WithContext(ctx).First(&zap, "id = ?", zapID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return ErrZapNotFound
		}
		return fmt.Errorf("failed to load zap: %w", err)
	}

	if zap.IsActive != active {
		if err := s.db.WithContext(ctx).Model(&zap).Update("is_active", active).Error; err != nil {
			return fmt.Errorf("failed to update zap: %w", err)
		}
	}

	trigger, err := s.loadTrigger(ctx, zapID)
	if err != nil {
		// Zaps without triggers have nothing external to sync.
		return nil
	}
	if !isScheduleTrigger(trigger) {
		return nil
	}

	payload := decodeObject(trigger.Payload)
	scheduleID, _ := payload[payloadKeySchedule].(string)

	if !active {
		if scheduleID == "" {
			return nil
		}
		if err := s.scheduler.DeleteSchedule(ctx, scheduleID); err != nil {
			// Best-effort cleanup on deactivation; a stale schedule hits a
			// closed gate.
			s.logger.Warnf("toggle: cancel schedule %s: %v", scheduleID, err)
		}
		delete(payload, payloadKeySchedule)
		return s.savePayload(ctx, trigger, payload)
	}

	if scheduleID != "" {
		return nil // already live
	}
	cron, _ := payload[payloadKeyCron].(string)
	if cron == "" {
		return nil // nothing to schedule until a cron expression is configured
	}
	schedule, err := s.createSchedule(ctx, &zap, cron)
	if err != nil {
		return err
	}
	payload[payloadKeySchedule] = schedule.ScheduleID
	return s.savePayload(ctx, trigger, payload)
}

// Reschedule stores a new cron expression and, when the zap is active,
// replaces the live schedule. Inactive zaps only get the stored expression
// updated; activation picks it up.
func (s *LifecycleService) Reschedule(ctx context.Context, zapID, cron string) error {
	var zap models.Zap
	if err := s.db.WithContext(ctx).First(&zap, "id = ?", zapID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return ErrZapNotFound
		}
		return fmt.Errorf("failed to load zap: %w", err)
	}
	trigger, err := s.loadTrigger(ctx, zapID)
	if err != nil {
		return err
	}

	payload := decodeObject(trigger.Payload)
	payload[payloadKeyCron] = cron

	if !zap.IsActive {
		return s.savePayload(ctx, trigger, payload)
	}

	if old, _ := payload[payloadKeySchedule].(string); old != "" {
		if err := s.scheduler.DeleteSchedule(ctx, old); err != nil {
			s.logger.Warnf("reschedule: cancel schedule %s: %v", old, err)
		}
		delete(payload, payloadKeySchedule)
	}
	schedule, err := s.createSchedule(ctx, &zap, cron)
	if err != nil {
		// Persist the cron even if schedule creation failed, so a retry or
		// re-activation can recover.
		if saveErr := s.savePayload(ctx, trigger, payload); saveErr != nil {
			s.logger.Warnf("reschedule: persist cron for zap %s: %v", zapID, saveErr)
		}
		return err
	}
	payload[payloadKeySchedule] = schedule.ScheduleID
	return s.savePayload(ctx, trigger, payload)
}

// CreateSchedule registers a schedule for an owned zap and persists its id.
// Used by the user-facing schedule endpoint, so scheduler failures surface.
func (s *LifecycleService) CreateSchedule(ctx context.Context, userID uint, zapID, cron string) (*qstash.Schedule, error) {
	var zap models.Zap
	if err := s.db.WithContext(ctx).First(&zap, "id = ? AND user_id = ?", zapID, userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrZapNotFound
		}
		return nil, fmt.Errorf("failed to load zap: %w", err)
	}
	trigger, err := s.loadTrigger(ctx, zapID)
	if err != nil {
		return nil, err
	}

	schedule, err := s.createSchedule(ctx, &zap, cron)
	if err != nil {
		return nil, err
	}

	payload := decodeObject(trigger.Payload)
	payload[payloadKeySchedule] = schedule.ScheduleID
	payload[payloadKeyCron] = cron
	payload["createdAt"] = time.Now().UTC().Format(time.RFC3339)
	if err := s.savePayload(ctx, trigger, payload); err != nil {
		return nil, err
	}
	return schedule, nil
}

// DeleteSchedule cancels the live schedule of an owned zap. Returns
// ErrZapNotFound when the zap is not owned; the bool reports whether a
// schedule actually existed.
func (s *LifecycleService) DeleteSchedule(ctx context.Context, userID uint, zapID string) (bool, error) {
	var zap models.Zap
	if err := s.db.WithContext(ctx).First(&zap, "id = ? AND user_id = ?", zapID, userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, ErrZapNotFound
		}
		return false, fmt.Errorf("failed to load zap: %w", err)
	}
	trigger, err := s.loadTrigger(ctx, zapID)
	if err != nil {
		return false, err
	}
	payload := decodeObject(trigger.Payload)
	scheduleID, _ := payload[payloadKeySchedule].(string)
	if scheduleID == "" {
		return false, nil
	}
	if err := s.scheduler.DeleteSchedule(ctx, scheduleID); err != nil {
		return false, fmt.Errorf("failed to delete schedule: %w", err)
	}
	delete(payload, payloadKeySchedule)
	if err := s.savePayload(ctx, trigger, payload); err != nil {
		return false, err
	}
	return true, nil
}

// GetScheduleInfo reports the live schedule state for an owned zap, querying
// the external scheduler. A lookup failure (schedule deleted out-of-band)
// reads as "no schedule".
func (s *LifecycleService) GetScheduleInfo(ctx context.Context, userID uint, zapID string) (*ScheduleInfo, error) {
	var zap models.Zap
	if err := s.db.WithContext(ctx).First(&zap, "id = ? AND user_id = ?", zapID, userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrZapNotFound
		}
		return nil, fmt.Errorf("failed to load zap: %w", err)
	}
	trigger, err := s.loadTrigger(ctx, zapID)
	if err != nil {
		return &ScheduleInfo{}, nil
	}
	payload := decodeObject(trigger.Payload)
	scheduleID, _ := payload[payloadKeySchedule].(string)
	if scheduleID == "" {
		return &ScheduleInfo{}, nil
	}
	schedule, err := s.scheduler.GetSchedule(ctx, scheduleID)
	if err != nil {
		s.logger.Debugf("schedule %s lookup failed, treating as absent: %v", scheduleID, err)
		return &ScheduleInfo{}, nil
	}
	return &ScheduleInfo{
		HasSchedule: true,
		ScheduleID:  scheduleID,
		Cron:        schedule.Cron,
		IsPaused:    schedule.IsPaused,
	}, nil
}

func (s *LifecycleService) createSchedule(ctx context.Context, zap *models.Zap, cron string) (*qstash.Schedule, error) {
	schedule, err := s.scheduler.CreateSchedule(ctx, &qstash.CreateScheduleRequest{
		Destination: fmt.Sprintf("%s/cron/%s", s.appURL, zap.ID),
		Cron:        cron,
		Body: map[string]string{
			"trigger":     "schedule",
			"scheduledAt": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create schedule: %w", err)
	}
	s.logger.Infof("created schedule %s for zap %s (cron %q)", schedule.ScheduleID, zap.ID, cron)
	return schedule, nil
}

func (s *LifecycleService) loadTrigger(ctx context.Context, zapID string) (*models.Trigger, error) {
	var trigger models.Trigger
	if err := s.db.WithContext(ctx).Preload("Type").First(&trigger, "zap_id = ?", zapID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("trigger not found for zap %s", zapID)
		}
		return nil, fmt.Errorf("failed to load trigger: %w", err)
	}
	return &trigger, nil
}

func (s *LifecycleService) savePayload(ctx context.Context, trigger *models.Trigger, payload map[string]interface{}) error {
	if err := s.db.WithContext(ctx).Model(trigger).Update("payload", encodeJSON(payload)).Error; err != nil {
		return fmt.Errorf("failed to persist trigger payload: %w", err)
	}
	return nil
}

func isScheduleTrigger(trigger *models.Trigger) bool {
	if trigger.Type.Name == models.TriggerSchedule {
		return true
	}
	// Catalog row may be unloaded for legacy rows; fall back to a configured
	// cron expression.
	_, hasCron := decodeObject(trigger.Payload)[payloadKeyCron]
	return trigger.Type.Name == "" && hasCron
}
