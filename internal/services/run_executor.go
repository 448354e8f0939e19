package services

import (
	"context"
	"fmt"
	"time"

	"flowforge/internal/executors"
	"flowforge/internal/metrics"
	"flowforge/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// googleProvider is the single provider whose credential is resolved per run
// today. Executors receive it through an explicit side channel.
const googleProvider = "google"

// ActionResult is the per-action outcome kept in the run metadata. The run's
// Error field still carries only the last failure; these preserve the rest.
type ActionResult struct {
	Action string `json:"action"`
	Status string `json:"status"` // success, failed, skipped
	Error  string `json:"error,omitempty"`
}

// RunExecutor consumes one queued unit of work: it claims the run, walks the
// zap's action chain in order with per-action failure isolation, and
// finalizes the run status.
type RunExecutor struct {
	db          *gorm.DB
	registry    *executors.Registry
	connections *ConnectionService
	events      *RunEventsHub
	logger      *logrus.Logger
}

func NewRunExecutor(db *gorm.DB, registry *executors.Registry, connections *ConnectionService, events *RunEventsHub, logger *logrus.Logger) *RunExecutor {
	if logger == nil {
		logger = logrus.New()
	}
	return &RunExecutor{
		db:          db,
		registry:    registry,
		connections: connections,
		events:      events,
		logger:      logger,
	}
}

// Execute processes one queue delivery for runID and returns the run's final
// status. Redeliveries of an already claimed or terminal run no-op and
// return the stored status. A missing run returns ErrRunNotFound; there is
// no retry target, the caller logs and drops.
func (e *RunExecutor) Execute(ctx context.Context, runID string) (string, error) {
	claimed, err := e.claim(ctx, runID)
	if err != nil {
		return "", err
	}
	if !claimed {
		var run models.ZapRun
		if err := e.db.WithContext(ctx).First(&run, "id = ?", runID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return "", ErrRunNotFound
			}
			return "", fmt.Errorf("failed to load run: %w", err)
		}
		e.logger.Infof("run %s already %s, skipping redelivery", runID, run.Status)
		return run.Status, nil
	}

	e.events.Publish(RunEvent{RunID: runID, Status: models.RunStatusRunning})
	e.logger.Infof("processing run %s", runID)

	status := e.process(ctx, runID)
	return status, nil
}

// claim performs the pending->running transition as a conditional update.
// Zero rows affected means the run is missing, already claimed, or terminal;
// this closes the redelivery window between creation and claim.
func (e *RunExecutor) claim(ctx context.Context, runID string) (bool, error) {
	result := e.db.WithContext(ctx).
		Model(&models.ZapRun{}).
		Where("id = ? AND status = ?", runID, models.RunStatusPending).
		Update("status", models.RunStatusRunning)
	if result.Error != nil {
		return false, fmt.Errorf("failed to claim run: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (e *RunExecutor) process(ctx context.Context, runID string) (status string) {
	var (
		failed  bool
		errMsg  string
		results []ActionResult
	)

	defer func() {
		// A panic or unexpected store failure must not leave the run without
		// a verdict. If even this write fails the run stays running; that
		// orphaned state needs external reconciliation.
		if r := recover(); r != nil {
			e.logger.Errorf("run %s: panic during execution: %v", runID, r)
			failed = true
			errMsg = "internal error"
		}
		status = models.RunStatusSuccess
		if failed {
			status = models.RunStatusFailed
		}
		e.finalize(ctx, runID, status, errMsg, results)
	}()

	var run models.ZapRun
	if err := e.db.WithContext(ctx).First(&run, "id = ?", runID).Error; err != nil {
		e.logger.Errorf("run %s: load failed: %v", runID, err)
		failed = true
		errMsg = "failed to load run"
		return
	}

	var zap models.Zap
	err := e.db.WithContext(ctx).
		Preload("Actions", func(db *gorm.DB) *gorm.DB {
			return db.Order("sorting_order ASC, id ASC")
		}).
		Preload("Actions.Type").
		First(&zap, "id = ?", run.ZapID).Error
	if err != nil {
		e.logger.Errorf("run %s: zap %s not found", runID, run.ZapID)
		failed = true
		errMsg = "Zap not found"
		return
	}

	creds := executors.Credentials{
		GoogleAccessToken: e.connections.AccessToken(ctx, zap.UserID, googleProvider),
	}

	e.logger.Infof("run %s: executing %d action(s) for zap %s", runID, len(zap.Actions), zap.ID)

	for i, action := range zap.Actions {
		name := action.Type.Name
		executor := e.registry.Lookup(name)
		if executor == nil {
			// Catalog drift: tolerate unknown types as a vacuous success.
			e.logger.Warnf("run %s: no executor for action type %q, skipping", runID, name)
			metrics.IncActionSkipped()
			results = append(results, ActionResult{Action: name, Status: "skipped"})
			continue
		}

		e.logger.Infof("run %s: action %d/%d: %s", runID, i+1, len(zap.Actions), name)
		if err := e.runAction(ctx, executor, action, creds); err != nil {
			// Record and continue: later actions are independent side
			// effects and still get their attempt.
			e.logger.Warnf("run %s: action %s failed: %v", runID, name, err)
			metrics.IncActionResult(true)
			failed = true
			errMsg = err.Error()
			results = append(results, ActionResult{Action: name, Status: "failed", Error: err.Error()})
			continue
		}
		metrics.IncActionResult(false)
		results = append(results, ActionResult{Action: name, Status: "success"})
	}
	return
}

// runAction isolates a single executor invocation, converting panics into
// attributable failures.
func (e *RunExecutor) runAction(ctx context.Context, executor executors.Executor, action models.Action, creds executors.Credentials) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action %s panicked: %v", action.Type.Name, r)
		}
	}()
	return executor.Execute(ctx, decodeObject(action.Metadata), creds)
}

func (e *RunExecutor) finalize(ctx context.Context, runID, status, errMsg string, results []ActionResult) {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":       status,
		"error":        errMsg,
		"completed_at": &now,
	}

	// Keep the per-action outcomes alongside the trigger payload so earlier
	// failures stay diagnosable even though Error holds only the last one.
	var run models.ZapRun
	if err := e.db.WithContext(ctx).First(&run, "id = ?", runID).Error; err == nil && len(results) > 0 {
		meta := decodeObject(run.Metadata)
		meta["actionResults"] = results
		updates["metadata"] = encodeJSON(meta)
	}

	if err := e.db.WithContext(ctx).
		Model(&models.ZapRun{}).
		Where("id = ?", runID).
		Updates(updates).Error; err != nil {
		e.logger.Errorf("run %s: finalization write failed, run left running: %v", runID, err)
		return
	}

	metrics.IncRunFinished(status == models.RunStatusFailed)
	e.events.Publish(RunEvent{RunID: runID, Status: status, Error: errMsg})
	e.logger.Infof("run %s completed with status %s", runID, status)
}
