package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"flowforge/internal/models"
)

func TestDispatch_AcceptedRunIsPendingAndEnqueued(t *testing.T) {
	db := newServicesTestDB(t)
	logger := testLogger()
	scheduler := newFakeScheduler()
	lifecycle := NewLifecycleService(db, scheduler, "http://app.test", logger)
	dispatch := NewDispatchService(db, lifecycle, NewQueueTransport(scheduler, "http://app.test", logger), nil, logger)

	userID := seedUser(t, db, "owner@test.dev")
	zap := seedZap(t, db, userID, models.MaxRunsUnlimited, true, models.ActionSendEmail)

	run, err := dispatch.Dispatch(context.Background(), &userID, zap.ID, map[string]interface{}{"key": "value"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	var stored models.ZapRun
	if err := db.First(&stored, "id = ?", run.ID).Error; err != nil {
		t.Fatalf("load run: %v", err)
	}
	if stored.Status != models.RunStatusPending {
		t.Fatalf("status = %q, want pending", stored.Status)
	}
	meta := decodeObject(stored.Metadata)
	if meta["key"] != "value" {
		t.Fatalf("metadata = %v, want key=value", meta)
	}
	if len(scheduler.published) != 1 || scheduler.published[0] != run.ID {
		t.Fatalf("published = %v, want [%s]", scheduler.published, run.ID)
	}
}

func TestDispatch_UnknownZap(t *testing.T) {
	db := newServicesTestDB(t)
	logger := testLogger()
	scheduler := newFakeScheduler()
	lifecycle := NewLifecycleService(db, scheduler, "http://app.test", logger)
	dispatch := NewDispatchService(db, lifecycle, NewQueueTransport(scheduler, "http://app.test", logger), nil, logger)

	_, err := dispatch.Dispatch(context.Background(), nil, "no-such-zap", nil)
	if !errors.Is(err, ErrZapNotFound) {
		t.Fatalf("err = %v, want ErrZapNotFound", err)
	}
}

func TestDispatch_OwnershipMismatch(t *testing.T) {
	db := newServicesTestDB(t)
	logger := testLogger()
	scheduler := newFakeScheduler()
	lifecycle := NewLifecycleService(db, scheduler, "http://app.test", logger)
	dispatch := NewDispatchService(db, lifecycle, NewQueueTransport(scheduler, "http://app.test", logger), nil, logger)

	owner := seedUser(t, db, "owner@test.dev")
	intruder := owner + 1
	zap := seedZap(t, db, owner, models.MaxRunsUnlimited, true, models.ActionSendEmail)

	_, err := dispatch.Dispatch(context.Background(), &intruder, zap.ID, nil)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}

	var count int64
	db.Model(&models.ZapRun{}).Where("zap_id = ?", zap.ID).Count(&count)
	if count != 0 {
		t.Fatalf("run count = %d, want 0", count)
	}
}

func TestDispatch_InactiveZap(t *testing.T) {
	db := newServicesTestDB(t)
	logger := testLogger()
	scheduler := newFakeScheduler()
	lifecycle := NewLifecycleService(db, scheduler, "http://app.test", logger)
	dispatch := NewDispatchService(db, lifecycle, NewQueueTransport(scheduler, "http://app.test", logger), nil, logger)

	userID := seedUser(t, db, "owner@test.dev")
	zap := seedZap(t, db, userID, models.MaxRunsUnlimited, false, models.ActionSendEmail)

	_, err := dispatch.Dispatch(context.Background(), &userID, zap.ID, nil)
	if !errors.Is(err, ErrZapInactive) {
		t.Fatalf("err = %v, want ErrZapInactive", err)
	}

	var count int64
	db.Model(&models.ZapRun{}).Where("zap_id = ?", zap.ID).Count(&count)
	if count != 0 {
		t.Fatalf("run count = %d, want 0", count)
	}
}

func TestDispatch_QuotaBoundary(t *testing.T) {
	db := newServicesTestDB(t)
	logger := testLogger()
	scheduler := newFakeScheduler()
	lifecycle := NewLifecycleService(db, scheduler, "http://app.test", logger)
	dispatch := NewDispatchService(db, lifecycle, NewQueueTransport(scheduler, "http://app.test", logger), nil, logger)

	userID := seedUser(t, db, "owner@test.dev")
	zap := seedZap(t, db, userID, 2, true, models.ActionSendEmail)

	for i := 0; i < 2; i++ {
		if _, err := dispatch.Dispatch(context.Background(), &userID, zap.ID, nil); err != nil {
			t.Fatalf("dispatch %d: %v", i+1, err)
		}
	}

	_, err := dispatch.Dispatch(context.Background(), &userID, zap.ID, nil)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}
	var quota *QuotaExceededError
	if !errors.As(err, &quota) {
		t.Fatalf("err = %T, want *QuotaExceededError", err)
	}
	if quota.RunCount != 2 || quota.MaxRuns != 2 {
		t.Fatalf("quota = %d/%d, want 2/2", quota.RunCount, quota.MaxRuns)
	}

	var count int64
	db.Model(&models.ZapRun{}).Where("zap_id = ?", zap.ID).Count(&count)
	if count != 2 {
		t.Fatalf("run count = %d, want exactly 2", count)
	}
}

func TestDispatch_ZeroQuotaRejectsImmediately(t *testing.T) {
	db := newServicesTestDB(t)
	logger := testLogger()
	scheduler := newFakeScheduler()
	lifecycle := NewLifecycleService(db, scheduler, "http://app.test", logger)
	dispatch := NewDispatchService(db, lifecycle, NewQueueTransport(scheduler, "http://app.test", logger), nil, logger)

	userID := seedUser(t, db, "owner@test.dev")
	zap := seedZap(t, db, userID, 0, true, models.ActionSendEmail)

	_, err := dispatch.Dispatch(context.Background(), &userID, zap.ID, nil)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}
}

func TestDispatch_UnlimitedQuota(t *testing.T) {
	db := newServicesTestDB(t)
	logger := testLogger()
	scheduler := newFakeScheduler()
	lifecycle := NewLifecycleService(db, scheduler, "http://app.test", logger)
	dispatch := NewDispatchService(db, lifecycle, NewQueueTransport(scheduler, "http://app.test", logger), nil, logger)

	userID := seedUser(t, db, "owner@test.dev")
	zap := seedZap(t, db, userID, models.MaxRunsUnlimited, true, models.ActionSendEmail)

	for i := 0; i < 10; i++ {
		if _, err := dispatch.Dispatch(context.Background(), &userID, zap.ID, nil); err != nil {
			t.Fatalf("dispatch %d: %v", i+1, err)
		}
	}
}

func TestDispatch_QuotaExhaustionCancelsSchedule(t *testing.T) {
	db := newServicesTestDB(t)
	logger := testLogger()
	scheduler := newFakeScheduler()
	lifecycle := NewLifecycleService(db, scheduler, "http://app.test", logger)
	dispatch := NewDispatchService(db, lifecycle, NewQueueTransport(scheduler, "http://app.test", logger), nil, logger)

	userID := seedUser(t, db, "owner@test.dev")
	zap := seedScheduleZap(t, db, userID, true, map[string]interface{}{
		"cron":       "*/5 * * * *",
		"scheduleId": "sched-123",
	})
	if err := db.Model(&models.Zap{}).Where("id = ?", zap.ID).Update("max_runs", 0).Error; err != nil {
		t.Fatalf("set quota: %v", err)
	}
	_, err := dispatch.Dispatch(context.Background(), nil, zap.ID, nil)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}

	if scheduler.deletedCount() != 1 || scheduler.deleted[0] != "sched-123" {
		t.Fatalf("deleted = %v, want [sched-123]", scheduler.deleted)
	}
	payload := triggerPayload(t, db, zap.ID)
	if _, ok := payload["scheduleId"]; ok {
		t.Fatalf("scheduleId still present after quota exhaustion: %v", payload)
	}
	if payload["cron"] != "*/5 * * * *" {
		t.Fatalf("cron lost during schedule cancel: %v", payload)
	}
}

func TestDispatch_EnqueueFailureLeavesRunPending(t *testing.T) {
	db := newServicesTestDB(t)
	logger := testLogger()
	scheduler := newFakeScheduler()
	scheduler.publishErr = fmt.Errorf("queue down")
	lifecycle := NewLifecycleService(db, scheduler, "http://app.test", logger)
	dispatch := NewDispatchService(db, lifecycle, NewQueueTransport(scheduler, "http://app.test", logger), nil, logger)

	userID := seedUser(t, db, "owner@test.dev")
	zap := seedZap(t, db, userID, models.MaxRunsUnlimited, true, models.ActionSendEmail)

	run, err := dispatch.Dispatch(context.Background(), &userID, zap.ID, nil)
	if err == nil {
		t.Fatal("expected enqueue error")
	}
	if run == nil {
		t.Fatal("run should be returned even when enqueue fails")
	}

	var stored models.ZapRun
	if err := db.First(&stored, "id = ?", run.ID).Error; err != nil {
		t.Fatalf("load run: %v", err)
	}
	if stored.Status != models.RunStatusPending {
		t.Fatalf("status = %q, want pending (record survives a failed hand-off)", stored.Status)
	}
}
