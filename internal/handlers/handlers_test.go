package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"

	"flowforge/internal/executors"
	"flowforge/internal/models"
	"flowforge/internal/services"
	"flowforge/pkg/qstash"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// stubScheduler records scheduler traffic so tests can assert on schedule
// teardown without a live queue service.
type stubScheduler struct {
	mu        sync.Mutex
	published []string
	created   []*qstash.CreateScheduleRequest
	deleted   []string
}

func (s *stubScheduler) PublishJSON(ctx context.Context, req *qstash.PublishRequest) (*qstash.PublishResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if body, ok := req.Body.(map[string]string); ok {
		s.published = append(s.published, body["zapRunId"])
	}
	return &qstash.PublishResponse{MessageID: fmt.Sprintf("msg-%d", len(s.published))}, nil
}

func (s *stubScheduler) CreateSchedule(ctx context.Context, req *qstash.CreateScheduleRequest) (*qstash.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, req)
	return &qstash.Schedule{ScheduleID: uuid.NewString(), Cron: req.Cron, Destination: req.Destination}, nil
}

func (s *stubScheduler) GetSchedule(ctx context.Context, scheduleID string) (*qstash.Schedule, error) {
	return &qstash.Schedule{ScheduleID: scheduleID}, nil
}

func (s *stubScheduler) DeleteSchedule(ctx context.Context, scheduleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, scheduleID)
	return nil
}

func (s *stubScheduler) PauseSchedule(ctx context.Context, scheduleID string) error  { return nil }
func (s *stubScheduler) ResumeSchedule(ctx context.Context, scheduleID string) error { return nil }

func (s *stubScheduler) deletedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deleted)
}

// fixture wires the full handler stack over sqlite with the in-process
// transport, so a hook or cron call executes the run synchronously.
type fixture struct {
	db        *gorm.DB
	scheduler *stubScheduler
	lifecycle *services.LifecycleService
	router    *gin.Engine
	userID    uint
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

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

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	scheduler := &stubScheduler{}
	events := services.NewRunEventsHub(logger)
	registry := executors.NewDefaultRegistry(nil, executors.EmailSettings{}, logger)
	connections := services.NewConnectionService(db, logger)
	runExecutor := services.NewRunExecutor(db, registry, connections, events, logger)
	lifecycle := services.NewLifecycleService(db, scheduler, "http://app.test", logger)
	transport := services.NewLocalTransport(runExecutor, logger)
	dispatch := services.NewDispatchService(db, lifecycle, transport, events, logger)
	zaps := services.NewZapService(db, lifecycle, logger)
	catalog := services.NewCatalogService(db)

	user := models.User{Email: "owner@test.dev", Name: "Owner"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}

	router := gin.New()
	public := router.Group("/")
	RegisterHookRoutes(public, NewHookHandler(dispatch, logger))
	RegisterCronRoutes(public, NewCronHandler(dispatch, lifecycle, logger))
	RegisterWorkerRoutes(public, NewWorkerHandler(runExecutor, logger))

	api := router.Group("/api")
	api.Use(func(c *gin.Context) { c.Set("user_id", user.ID) })
	RegisterZapRoutes(api, NewZapHandler(zaps, lifecycle, logger))
	RegisterRunRoutes(api, NewRunHandler(zaps, logger))
	RegisterScheduleRoutes(api, NewScheduleHandler(lifecycle, logger))
	RegisterConnectionRoutes(api, NewConnectionHandler(connections, logger))
	RegisterCatalogRoutes(api, NewCatalogHandler(catalog, logger))

	return &fixture{db: db, scheduler: scheduler, lifecycle: lifecycle, router: router, userID: user.ID}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if raw, ok := body.([]byte); ok {
		reader = bytes.NewReader(raw)
	} else if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	body := map[string]interface{}{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

type actionSpec struct {
	name     string
	metadata map[string]interface{}
}

// seedZap inserts a zap with a webhook trigger and the given actions in order.
func (f *fixture) seedZap(t *testing.T, userID uint, maxRuns int, active bool, actions ...actionSpec) *models.Zap {
	t.Helper()
	zap := &models.Zap{
		ID:       uuid.NewString(),
		UserID:   userID,
		Name:     "test zap",
		MaxRuns:  maxRuns,
		IsActive: active,
	}
	if err := f.db.Create(zap).Error; err != nil {
		t.Fatalf("create zap: %v", err)
	}

	var triggerType models.AvailableTrigger
	if err := f.db.Where("name = ?", models.TriggerWebhook).First(&triggerType).Error; err != nil {
		t.Fatalf("load trigger type: %v", err)
	}
	if err := f.db.Create(&models.Trigger{ZapID: zap.ID, TypeID: triggerType.ID, Payload: "{}"}).Error; err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	for i, spec := range actions {
		var actionType models.AvailableAction
		if err := f.db.Where("name = ?", spec.name).First(&actionType).Error; err != nil {
			t.Fatalf("load action type %q: %v", spec.name, err)
		}
		metadata := "{}"
		if spec.metadata != nil {
			raw, err := json.Marshal(spec.metadata)
			if err != nil {
				t.Fatalf("marshal action metadata: %v", err)
			}
			metadata = string(raw)
		}
		if err := f.db.Create(&models.Action{
			ZapID:        zap.ID,
			TypeID:       actionType.ID,
			Metadata:     metadata,
			SortingOrder: i,
		}).Error; err != nil {
			t.Fatalf("create action: %v", err)
		}
	}
	return zap
}

// seedScheduleZap inserts a zap with a cron trigger and a live schedule.
func (f *fixture) seedScheduleZap(t *testing.T, userID uint, maxRuns int, active bool) *models.Zap {
	t.Helper()
	zap := &models.Zap{
		ID:       uuid.NewString(),
		UserID:   userID,
		Name:     "scheduled zap",
		MaxRuns:  maxRuns,
		IsActive: active,
	}
	if err := f.db.Create(zap).Error; err != nil {
		t.Fatalf("create zap: %v", err)
	}

	var triggerType models.AvailableTrigger
	if err := f.db.Where("name = ?", models.TriggerSchedule).First(&triggerType).Error; err != nil {
		t.Fatalf("load schedule trigger type: %v", err)
	}
	if err := f.db.Create(&models.Trigger{ZapID: zap.ID, TypeID: triggerType.ID, Payload: "{}"}).Error; err != nil {
		t.Fatalf("create trigger: %v", err)
	}
	if _, err := f.lifecycle.CreateSchedule(context.Background(), userID, zap.ID, "0 9 * * *"); err != nil {
		t.Fatalf("create schedule: %v", err)
	}
	return zap
}

func (f *fixture) loadRun(t *testing.T, runID string) *models.ZapRun {
	t.Helper()
	var run models.ZapRun
	if err := f.db.First(&run, "id = ?", runID).Error; err != nil {
		t.Fatalf("load run %s: %v", runID, err)
	}
	return &run
}

func (f *fixture) runCount(t *testing.T, zapID string) int64 {
	t.Helper()
	var count int64
	if err := f.db.Model(&models.ZapRun{}).Where("zap_id = ?", zapID).Count(&count).Error; err != nil {
		t.Fatalf("count runs: %v", err)
	}
	return count
}

func (f *fixture) triggerPayload(t *testing.T, zapID string) map[string]interface{} {
	t.Helper()
	var trigger models.Trigger
	if err := f.db.First(&trigger, "zap_id = ?", zapID).Error; err != nil {
		t.Fatalf("load trigger: %v", err)
	}
	payload := map[string]interface{}{}
	json.Unmarshal([]byte(trigger.Payload), &payload)
	return payload
}

func (f *fixture) catalogTriggerID(t *testing.T, name string) uint {
	t.Helper()
	var trigger models.AvailableTrigger
	if err := f.db.Where("name = ?", name).First(&trigger).Error; err != nil {
		t.Fatalf("load trigger type %q: %v", name, err)
	}
	return trigger.ID
}

func (f *fixture) catalogActionID(t *testing.T, name string) uint {
	t.Helper()
	var action models.AvailableAction
	if err := f.db.Where("name = ?", name).First(&action).Error; err != nil {
		t.Fatalf("load action type %q: %v", name, err)
	}
	return action.ID
}
