package handlers

import (
	"net/http"
	"testing"

	"flowforge/internal/models"
)

func TestScheduleAPI_Lifecycle(t *testing.T) {
	f := newFixture(t)
	zap := f.seedScheduleZap(t, f.userID, models.MaxRunsUnlimited, true)

	got := f.do(t, http.MethodGet, "/api/schedule/"+zap.ID, nil)
	if got.Code != http.StatusOK {
		t.Fatalf("get status = %d", got.Code)
	}
	info := decodeBody(t, got)
	if info["hasSchedule"] != true || info["scheduleId"] == nil {
		t.Fatalf("info = %v", info)
	}

	deleted := f.do(t, http.MethodDelete, "/api/schedule/"+zap.ID, nil)
	if deleted.Code != http.StatusOK {
		t.Fatalf("delete status = %d", deleted.Code)
	}
	if body := decodeBody(t, deleted); body["message"] != "Schedule deleted" {
		t.Fatalf("body = %v", body)
	}

	// Idempotent: a second delete reports there was nothing to do.
	again := f.do(t, http.MethodDelete, "/api/schedule/"+zap.ID, nil)
	if again.Code != http.StatusOK {
		t.Fatalf("second delete status = %d", again.Code)
	}
	if body := decodeBody(t, again); body["message"] != "No schedule to delete" {
		t.Fatalf("body = %v", body)
	}

	absent := f.do(t, http.MethodGet, "/api/schedule/"+zap.ID, nil)
	if info := decodeBody(t, absent); info["hasSchedule"] != nil && info["hasSchedule"] != false {
		t.Fatalf("info after delete = %v", info)
	}

	created := f.do(t, http.MethodPost, "/api/schedule", map[string]string{
		"zapId": zap.ID,
		"cron":  "*/30 * * * *",
	})
	if created.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", created.Code, created.Body.String())
	}
	body := decodeBody(t, created)
	if body["scheduleId"] == nil || body["cron"] != "*/30 * * * *" {
		t.Fatalf("body = %v", body)
	}
}

func TestScheduleAPI_BodyAndQueryShapes(t *testing.T) {
	f := newFixture(t)
	zap := f.seedScheduleZap(t, f.userID, models.MaxRunsUnlimited, true)

	got := f.do(t, http.MethodGet, "/api/schedule?zapId="+zap.ID, nil)
	if got.Code != http.StatusOK {
		t.Fatalf("query get status = %d", got.Code)
	}
	if info := decodeBody(t, got); info["hasSchedule"] != true {
		t.Fatalf("info = %v", info)
	}

	deleted := f.do(t, http.MethodDelete, "/api/schedule", map[string]string{"zapId": zap.ID})
	if deleted.Code != http.StatusOK {
		t.Fatalf("body delete status = %d", deleted.Code)
	}
	if body := decodeBody(t, deleted); body["message"] != "Schedule deleted" {
		t.Fatalf("body = %v", body)
	}
	if f.scheduler.deletedCount() != 1 {
		t.Fatalf("schedule deletions = %d, want 1", f.scheduler.deletedCount())
	}

	if rec := f.do(t, http.MethodGet, "/api/schedule", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("get without zapId status = %d, want 400", rec.Code)
	}
	if rec := f.do(t, http.MethodDelete, "/api/schedule", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("delete without zapId status = %d, want 400", rec.Code)
	}
}

func TestScheduleAPI_UnknownZap(t *testing.T) {
	f := newFixture(t)

	if rec := f.do(t, http.MethodGet, "/api/schedule/no-such-zap", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("get status = %d, want 404", rec.Code)
	}
	if rec := f.do(t, http.MethodDelete, "/api/schedule/no-such-zap", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("delete status = %d, want 404", rec.Code)
	}
	rec := f.do(t, http.MethodPost, "/api/schedule", map[string]string{"zapId": "no-such-zap", "cron": "* * * * *"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("create status = %d, want 404", rec.Code)
	}
}

func TestScheduleAPI_CreateValidation(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/schedule", map[string]string{"cron": "* * * * *"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for missing zapId", rec.Code)
	}
}
