package engine

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/dripbase/executor/internal/tasks"
)

// Worker is the cron-like trigger: it enqueues one execution-cycle task per
// poll interval. The cycle itself runs in the asynq consumer, so a slow
// cycle never blocks the trigger cadence; overlap safety comes from the plan
// claim, not from here.
type Worker struct {
	logger *logrus.Logger

	client *asynq.Client
	queue  string

	pollInterval     time.Duration
	iterationTimeout time.Duration
}

func NewWorker(
	logger *logrus.Logger,
	client *asynq.Client,
	queue string,
	pollInterval time.Duration,
	iterationTimeout time.Duration,
) *Worker {
	return &Worker{
		logger:           logger.WithField("pkg", "engine.Worker").Logger,
		client:           client,
		queue:            queue,
		pollInterval:     pollInterval,
		iterationTimeout: iterationTimeout,
	}
}

func (w *Worker) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	err := w.start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	return nil
}

func (w *Worker) start(aliveCtx context.Context) error {
	err := w.enqueue()
	if err != nil {
		return fmt.Errorf("failed to enqueue: %w", err)
	}

	for {
		select {
		case <-aliveCtx.Done():
			w.logger.Info("got exit signal, stop worker")
			return nil
		case <-time.After(w.pollInterval):
			er := w.enqueue()
			if er != nil {
				w.logger.Errorf("enqueue error, continue loop: %v", er)
			}
		}
	}
}

func (w *Worker) enqueue() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	w.logger.Info("worker tick")

	_, err := w.client.EnqueueContext(
		ctx,
		asynq.NewTask(tasks.TypeExecutionCycle, nil),
		asynq.MaxRetry(0),
		asynq.Timeout(w.iterationTimeout),
		asynq.Retention(10*time.Minute),
		asynq.Queue(w.queue),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue cycle task: %w", err)
	}
	return nil
}
