package services

import (
	"context"
	"fmt"

	"flowforge/pkg/qstash"

	"github.com/sirupsen/logrus"
)

// WorkTransport hands an accepted run to the executor. The two
// implementations are a deployment-mode branch, not a semantic one: both
// leave the run pending before Enqueue returns and deliver exactly one
// initial execution attempt.
type WorkTransport interface {
	Enqueue(ctx context.Context, runID string) error
}

// QueueTransport publishes run ids to the external queue, which delivers
// them back to the /worker endpoint with at-least-once semantics.
type QueueTransport struct {
	scheduler qstash.SchedulerInterface
	workerURL string
	retries   int
	logger    *logrus.Logger
}

func NewQueueTransport(scheduler qstash.SchedulerInterface, appURL string, logger *logrus.Logger) *QueueTransport {
	if logger == nil {
		logger = logrus.New()
	}
	return &QueueTransport{
		scheduler: scheduler,
		workerURL: appURL + "/worker",
		retries:   3,
		logger:    logger,
	}
}

func (t *QueueTransport) Enqueue(ctx context.Context, runID string) error {
	resp, err := t.scheduler.PublishJSON(ctx, &qstash.PublishRequest{
		Destination: t.workerURL,
		Body:        map[string]string{"zapRunId": runID},
		Retries:     t.retries,
	})
	if err != nil {
		return fmt.Errorf("failed to publish run %s: %w", runID, err)
	}
	t.logger.Debugf("published run %s as message %s", runID, resp.MessageID)
	return nil
}

// LocalTransport invokes the executor in-process. Used when the external
// queue cannot reach this server's callback address (local/dev).
type LocalTransport struct {
	executor *RunExecutor
	logger   *logrus.Logger
}

func NewLocalTransport(executor *RunExecutor, logger *logrus.Logger) *LocalTransport {
	if logger == nil {
		logger = logrus.New()
	}
	return &LocalTransport{executor: executor, logger: logger}
}

func (t *LocalTransport) Enqueue(ctx context.Context, runID string) error {
	status, err := t.executor.Execute(ctx, runID)
	if err != nil {
		// The run record carries its own failure state; a local execution
		// error only means the hand-off itself worked.
		t.logger.Warnf("local execution of run %s: %v", runID, err)
		return nil
	}
	t.logger.Debugf("local execution of run %s finished with status %s", runID, status)
	return nil
}
