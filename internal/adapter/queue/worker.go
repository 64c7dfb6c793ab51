package queue

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/aegisreview/aegis/internal/domain"
	platformerrors "github.com/aegisreview/aegis/internal/platform/errors"
	"github.com/aegisreview/aegis/internal/platform/logging"
	"github.com/aegisreview/aegis/internal/platform/metrics"
	"github.com/aegisreview/aegis/internal/platform/retry"
)

// Handler executes one dequeued task. The softTimeout key embedded in
// ctx can be inspected via SoftDeadlineExceeded so a long-running
// handler can check whether it should wrap up before the hard limit
// forces a redelivery.
type Handler func(ctx context.Context, task domain.ReviewTask) error

// Worker runs a single durable consumer's fetch loop: one task at a
// time (prefetch multiplier 1), explicit ack/nak, and a clean process
// exit after maxTasksPerChild tasks so a process supervisor restarts
// it and bounds memory growth. Grounded on
// C360Studio-semspec/processor/task-generator/component.go's
// consumeLoop/handleMessage pair.
type Worker struct {
	Queue            string
	Broker           *Broker
	Handler          Handler
	Logger           logging.Logger
	Metrics          *metrics.Registry
	MaxTasksPerChild int
	FetchMaxWait     time.Duration

	consumer  jetstream.Consumer
	processed atomic.Int64
}

const defaultMaxTasksPerChild = 100

// Start resolves the durable consumer for Worker.Queue. Must be called
// once before Run.
func (w *Worker) Start(ctx context.Context) error {
	consumer, err := w.Broker.Consumer(ctx, w.Queue)
	if err != nil {
		return err
	}
	w.consumer = consumer
	if w.MaxTasksPerChild <= 0 {
		w.MaxTasksPerChild = defaultMaxTasksPerChild
	}
	if w.FetchMaxWait <= 0 {
		w.FetchMaxWait = 5 * time.Second
	}
	return nil
}

// Run consumes until ctx is cancelled or the worker has processed
// MaxTasksPerChild tasks, at which point it returns nil so the caller
// can exit the process cleanly (no in-process exec() restart trick).
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := w.consumer.Fetch(1, jetstream.FetchMaxWait(w.FetchMaxWait))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.Logger.Debug("fetch timeout or error", logging.Fields{"queue": w.Queue, "error": err.Error()})
			continue
		}

		for msg := range msgs.Messages() {
			w.handleMessage(ctx, msg)
			if w.processed.Add(1) >= int64(w.MaxTasksPerChild) {
				w.Logger.Info("worker reached task limit, exiting for restart",
					logging.Fields{"queue": w.Queue, "processed": w.processed.Load()})
				return nil
			}
		}
	}
}

// handleMessage runs one task through Handler, translating the
// outcome into ack/nak per spec.md §4.2's retry policy: validation/
// permanent failures ack immediately (no retry budget consumed),
// transient/capacity failures nak for broker redelivery, and success acks.
func (w *Worker) handleMessage(ctx context.Context, msg jetstream.Msg) {
	start := time.Now()

	var task domain.ReviewTask
	if err := json.Unmarshal(msg.Data(), &task); err != nil {
		w.Logger.Error("malformed task payload, acking to avoid poison redelivery", err, logging.Fields{"queue": w.Queue})
		_ = msg.Ack()
		return
	}

	now := time.Now()
	task.Status = domain.ReviewStatusProcessing
	task.StartedAt = &now
	if w.Broker != nil {
		_ = w.Broker.Results().Put(ctx, task)
	}

	// Signal in-progress to extend the ack deadline while the handler
	// (typically an LLM round trip) runs.
	if err := msg.InProgress(); err != nil {
		w.Logger.Debug("failed to signal in-progress", logging.Fields{"task_id": task.TaskID, "error": err.Error()})
	}

	taskCtx, cancel := withHardDeadline(ctx, w.Broker.ackWait)
	defer cancel()

	err := w.Handler(taskCtx, task)
	elapsed := time.Since(start)

	if err == nil {
		task.Status = domain.ReviewStatusCompleted
		completedAt := time.Now()
		task.CompletedAt = &completedAt
		if w.Broker != nil {
			_ = w.Broker.Results().Put(ctx, task)
		}
		if w.Metrics != nil {
			w.Metrics.TasksProcessed.WithLabelValues("completed").Inc()
			w.Metrics.TaskDuration.WithLabelValues("completed").Observe(elapsed.Seconds())
		}
		_ = msg.Ack()
		return
	}

	if taskCtx.Err() != nil && err == taskCtx.Err() {
		// Hard timeout: treat like any other transient failure and let
		// MaxDeliver govern whether this exhausts the retry budget.
		err = platformerrors.Wrap(platformerrors.KindTransient, "queue", "task exceeded hard time limit", err)
	}

	// NumDelivered is JetStream's own count of this delivery (1 on the
	// first attempt), independent of the task payload unmarshaled above —
	// task.RetryCount on its own would reset to the value marshaled at
	// enqueue time on every redelivery, since the payload never changes.
	numDelivered := uint64(1)
	if meta, metaErr := msg.Metadata(); metaErr == nil {
		numDelivered = meta.NumDelivered
	}
	task.RetryCount = int(numDelivered) - 1

	retriesExhausted := w.Broker != nil && int(numDelivered) >= w.Broker.MaxDeliver()

	if shouldRetryTask(err) && !retriesExhausted {
		task.Error = err.Error()
		if w.Broker != nil {
			_ = w.Broker.Results().Put(ctx, task)
		}
		if w.Metrics != nil {
			w.Metrics.TaskRetries.WithLabelValues(w.Queue).Inc()
		}
		delay := retry.Backoff(task.RetryCount, retry.DefaultQueueConfig())
		w.Logger.Warn("task failed, nak for redelivery", logging.Fields{
			"task_id": task.TaskID, "queue": w.Queue, "retry_count": task.RetryCount,
			"delay": delay.String(), "error": err.Error(),
		})
		_ = msg.NakWithDelay(delay)
		return
	}

	task.Status = domain.ReviewStatusFailed
	task.Error = err.Error()
	completedAt := time.Now()
	task.CompletedAt = &completedAt
	if w.Broker != nil {
		_ = w.Broker.Results().Put(ctx, task)
	}
	if w.Metrics != nil {
		w.Metrics.TasksProcessed.WithLabelValues("failed").Inc()
		w.Metrics.TaskDuration.WithLabelValues("failed").Observe(elapsed.Seconds())
	}
	reason := "permanent failure"
	if retriesExhausted {
		reason = "retry budget exhausted"
	}
	w.Logger.Error("task failed, moving to dead letter ("+reason+")", err, logging.Fields{
		"task_id": task.TaskID, "queue": w.Queue, "num_delivered": numDelivered,
	})
	_ = msg.Ack()
}

// shouldRetryTask decides ack-vs-nak purely from the error's kind,
// mirroring spec.md §4.2's dead-letter policy: only transient/capacity
// failures consume retry budget, everything else acks immediately.
func shouldRetryTask(err error) bool {
	return platformerrors.ShouldRetry(err)
}

type softDeadlineKey struct{}

// withHardDeadline bounds the handler to T_hard (the consumer's
// AckWait) and stashes a soft-deadline marker at 0.8*T_hard that a
// long-running handler can poll via SoftDeadlineExceeded to wrap up
// before the hard limit forces a redelivery.
func withHardDeadline(parent context.Context, hard time.Duration) (context.Context, context.CancelFunc) {
	exceeded := new(atomic.Bool)
	ctx, cancel := context.WithTimeout(parent, hard)
	ctx = context.WithValue(ctx, softDeadlineKey{}, exceeded)

	soft := time.Duration(0.8 * float64(hard))
	timer := time.AfterFunc(soft, func() { exceeded.Store(true) })
	return ctx, func() {
		timer.Stop()
		cancel()
	}
}

// SoftDeadlineExceeded reports whether the task's soft time limit
// (T_soft = 0.8*T_hard) has elapsed. A handler may use this to start
// wrapping up work before the hard limit forces a redelivery.
func SoftDeadlineExceeded(ctx context.Context) bool {
	v, ok := ctx.Value(softDeadlineKey{}).(*atomic.Bool)
	if !ok {
		return false
	}
	return v.Load()
}
