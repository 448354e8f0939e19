package services

import (
	"context"
	"fmt"

	"flowforge/internal/metrics"
	"flowforge/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DispatchService is the gate between inbound firing events (webhook posts,
// scheduler callbacks) and the execution pipeline. One accepted firing
// produces exactly one pending ZapRun plus one queued unit of work.
type DispatchService struct {
	db        *gorm.DB
	lifecycle *LifecycleService
	transport WorkTransport
	events    *RunEventsHub
	logger    *logrus.Logger
}

func NewDispatchService(db *gorm.DB, lifecycle *LifecycleService, transport WorkTransport, events *RunEventsHub, logger *logrus.Logger) *DispatchService {
	if logger == nil {
		logger = logrus.New()
	}
	return &DispatchService{
		db:        db,
		lifecycle: lifecycle,
		transport: transport,
		events:    events,
		logger:    logger,
	}
}

// Dispatch validates a firing event against ownership, the active flag and
// the run quota, then records a pending run and enqueues it. ownerHint, when
// non-nil, must match the zap's owner (guards spoofed callback URLs).
// payload may be nil; it is persisted as the run's metadata verbatim.
//
// The quota check and the run insert share one transaction holding the zap
// row, so two concurrent fires racing for the last slot serialize instead of
// double-admitting.
func (s *DispatchService) Dispatch(ctx context.Context, ownerHint *uint, zapID string, payload map[string]interface{}) (*models.ZapRun, error) {
	run := &models.ZapRun{
		ID:       uuid.NewString(),
		ZapID:    zapID,
		Status:   models.RunStatusPending,
		Metadata: encodeJSON(payload),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Where("id = ?", zapID)
		if tx.Dialector.Name() == "postgres" {
			// Serialization point for the quota race. sqlite (tests) has no
			// row locks; its single-writer model already serializes.
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var zap models.Zap
		if err := query.First(&zap).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrZapNotFound
			}
			return fmt.Errorf("failed to load zap: %w", err)
		}

		if ownerHint != nil && *ownerHint != zap.UserID {
			return ErrUnauthorized
		}
		if !zap.IsActive {
			return ErrZapInactive
		}

		allowed, runCount, err := CheckQuota(tx, &zap)
		if err != nil {
			return err
		}
		if !allowed {
			return &QuotaExceededError{RunCount: runCount, MaxRuns: zap.MaxRuns}
		}

		if err := tx.Create(run).Error; err != nil {
			return fmt.Errorf("failed to create run: %w", err)
		}
		return nil
	})
	if err != nil {
		if qe, ok := err.(*QuotaExceededError); ok {
			s.logger.Infof("dispatch rejected for zap %s: run limit reached (%d/%d)", zapID, qe.RunCount, qe.MaxRuns)
			metrics.IncDispatchRejected("quota")
			// Best-effort reaction: a quota-dead zap should stop receiving
			// scheduler callbacks.
			s.lifecycle.OnQuotaExceeded(ctx, zapID)
		} else {
			metrics.IncDispatchRejected(rejectReason(err))
		}
		return nil, err
	}

	metrics.IncDispatchAccepted()
	s.events.Publish(RunEvent{RunID: run.ID, ZapID: zapID, Status: run.Status})
	s.logger.Infof("dispatch accepted: run %s for zap %s", run.ID, zapID)

	if err := s.transport.Enqueue(ctx, run.ID); err != nil {
		// The record stays pending; no reconciliation sweep exists, so the
		// caller learns the hand-off failed.
		s.logger.Errorf("enqueue failed for run %s: %v", run.ID, err)
		return run, fmt.Errorf("failed to enqueue run: %w", err)
	}
	return run, nil
}

func rejectReason(err error) string {
	switch err {
	case ErrZapNotFound:
		return "not_found"
	case ErrUnauthorized:
		return "unauthorized"
	case ErrZapInactive:
		return "inactive"
	default:
		return "error"
	}
}
