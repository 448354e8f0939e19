package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"flowforge/internal/models"
	"flowforge/pkg/qstash"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newServicesTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	// A second connection would get its own empty in-memory database.
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	if err := models.SeedCatalogs(db); err != nil {
		t.Fatalf("seed catalogs: %v", err)
	}
	return db
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

// fakeScheduler records scheduler traffic and serves canned schedules.
type fakeScheduler struct {
	mu sync.Mutex

	published []string // run ids extracted from publish bodies
	created   []*qstash.CreateScheduleRequest
	deleted   []string
	schedules map[string]*qstash.Schedule

	publishErr error
	createErr  error
	deleteErr  error
	getErr     error
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{schedules: make(map[string]*qstash.Schedule)}
}

func (f *fakeScheduler) PublishJSON(ctx context.Context, req *qstash.PublishRequest) (*qstash.PublishResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return nil, f.publishErr
	}
	if body, ok := req.Body.(map[string]string); ok {
		f.published = append(f.published, body["zapRunId"])
	}
	return &qstash.PublishResponse{MessageID: fmt.Sprintf("msg-%d", len(f.published))}, nil
}

func (f *fakeScheduler) CreateSchedule(ctx context.Context, req *qstash.CreateScheduleRequest) (*qstash.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, req)
	schedule := &qstash.Schedule{
		ScheduleID:  uuid.NewString(),
		Cron:        req.Cron,
		Destination: req.Destination,
	}
	f.schedules[schedule.ScheduleID] = schedule
	return schedule, nil
}

func (f *fakeScheduler) GetSchedule(ctx context.Context, scheduleID string) (*qstash.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	schedule, ok := f.schedules[scheduleID]
	if !ok {
		return nil, fmt.Errorf("schedule %s not found", scheduleID)
	}
	return schedule, nil
}

func (f *fakeScheduler) DeleteSchedule(ctx context.Context, scheduleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, scheduleID)
	delete(f.schedules, scheduleID)
	return nil
}

func (f *fakeScheduler) PauseSchedule(ctx context.Context, scheduleID string) error  { return nil }
func (f *fakeScheduler) ResumeSchedule(ctx context.Context, scheduleID string) error { return nil }

func (f *fakeScheduler) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *fakeScheduler) deletedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deleted)
}

// seedUser inserts a user and returns its id.
func seedUser(t *testing.T, db *gorm.DB, email string) uint {
	t.Helper()
	user := models.User{Email: email, Name: "Test User"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user.ID
}

// seedZap inserts a zap with a webhook trigger and the named catalog actions
// in the given order.
func seedZap(t *testing.T, db *gorm.DB, userID uint, maxRuns int, active bool, actionNames ...string) *models.Zap {
	t.Helper()
	zap := &models.Zap{
		ID:       uuid.NewString(),
		UserID:   userID,
		Name:     "test zap",
		MaxRuns:  maxRuns,
		IsActive: active,
	}
	if err := db.Create(zap).Error; err != nil {
		t.Fatalf("create zap: %v", err)
	}

	var triggerType models.AvailableTrigger
	if err := db.Where("name = ?", models.TriggerWebhook).First(&triggerType).Error; err != nil {
		t.Fatalf("load trigger type: %v", err)
	}
	trigger := &models.Trigger{ZapID: zap.ID, TypeID: triggerType.ID, Payload: "{}"}
	if err := db.Create(trigger).Error; err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	for i, name := range actionNames {
		var actionType models.AvailableAction
		if err := db.Where("name = ?", name).First(&actionType).Error; err != nil {
			t.Fatalf("load action type %q: %v", name, err)
		}
		action := &models.Action{
			ZapID:        zap.ID,
			TypeID:       actionType.ID,
			Metadata:     "{}",
			SortingOrder: i,
		}
		if err := db.Create(action).Error; err != nil {
			t.Fatalf("create action: %v", err)
		}
	}
	return zap
}

// seedScheduleZap inserts an active zap with a schedule trigger whose payload
// holds the given fields.
func seedScheduleZap(t *testing.T, db *gorm.DB, userID uint, active bool, payload map[string]interface{}) *models.Zap {
	t.Helper()
	zap := &models.Zap{
		ID:       uuid.NewString(),
		UserID:   userID,
		Name:     "scheduled zap",
		MaxRuns:  models.MaxRunsUnlimited,
		IsActive: active,
	}
	if err := db.Create(zap).Error; err != nil {
		t.Fatalf("create zap: %v", err)
	}

	var triggerType models.AvailableTrigger
	if err := db.Where("name = ?", models.TriggerSchedule).First(&triggerType).Error; err != nil {
		t.Fatalf("load schedule trigger type: %v", err)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	trigger := &models.Trigger{ZapID: zap.ID, TypeID: triggerType.ID, Payload: string(raw)}
	if err := db.Create(trigger).Error; err != nil {
		t.Fatalf("create trigger: %v", err)
	}
	return zap
}

func triggerPayload(t *testing.T, db *gorm.DB, zapID string) map[string]interface{} {
	t.Helper()
	var trigger models.Trigger
	if err := db.First(&trigger, "zap_id = ?", zapID).Error; err != nil {
		t.Fatalf("load trigger: %v", err)
	}
	return decodeObject(trigger.Payload)
}
