package gojob

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-accounts/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDIndexSync      = "accounts.index.sync"
	JobIDOutboxDispatch = "accounts.outbox.dispatch"

	ParamUserID    = "user_id"
	ParamBatchSize = "batch_size"

	dedupMerge = "merge"
)

// RetryPolicy bounds queue retries so a poisoned job ends in the dead letter
// queue instead of looping.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NackOptions builds the nack for a failed attempt (1-based).
func (p RetryPolicy) NackOptions(cause error, attempt int) queue.NackOptions {
	out := queue.NackOptions{Requeue: true}
	if cause != nil {
		out.Reason = strings.TrimSpace(cause.Error())
	}
	if p.BaseDelay > 0 && attempt > 0 {
		delay := p.BaseDelay
		for i := 1; i < attempt; i++ {
			delay *= 2
			if p.MaxDelay > 0 && delay >= p.MaxDelay {
				break
			}
		}
		out.Delay = delay
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		out.Delay = 0
		out.DeadLetter = p.DeadLetterOnMax
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// ToExecutionMessage maps an accounts job message to go-job.
func ToExecutionMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

// FromExecutionMessage maps a go-job message into the accounts contract.
func FromExecutionMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

func NewIndexSyncMessage(userID string) *core.JobExecutionMessage {
	userID = strings.TrimSpace(userID)
	return &core.JobExecutionMessage{
		JobID:          JobIDIndexSync,
		ScriptPath:     JobIDIndexSync,
		Parameters:     map[string]any{ParamUserID: userID},
		IdempotencyKey: JobIDIndexSync + ":" + userID,
		DedupPolicy:    dedupMerge,
	}
}

func NewOutboxDispatchMessage(batchSize int) *core.JobExecutionMessage {
	return &core.JobExecutionMessage{
		JobID:      JobIDOutboxDispatch,
		ScriptPath: JobIDOutboxDispatch,
		Parameters: map[string]any{ParamBatchSize: batchSize},
	}
}

type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer}
}

func (a *EnqueuerAdapter) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	return a.enqueuer.Enqueue(ctx, ToExecutionMessage(msg))
}

// IndexSyncJobTrigger requests search index refreshes through a job queue
// instead of the lifecycle outbox.
type IndexSyncJobTrigger struct {
	enqueuer core.JobEnqueuer
}

func NewIndexSyncJobTrigger(enqueuer core.JobEnqueuer) *IndexSyncJobTrigger {
	return &IndexSyncJobTrigger{enqueuer: enqueuer}
}

func (t *IndexSyncJobTrigger) TriggerSync(ctx context.Context, userID string) error {
	if t == nil || t.enqueuer == nil {
		return fmt.Errorf("gojob: index sync enqueuer is not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("gojob: user id is required for index sync")
	}
	return t.enqueuer.Enqueue(ctx, NewIndexSyncMessage(userID))
}

type JobHandler func(ctx context.Context, msg *core.JobExecutionMessage) error

// Processor routes queue deliveries to handlers by job id and settles them.
type Processor struct {
	policy RetryPolicy

	mu       sync.RWMutex
	handlers map[string]JobHandler
}

func NewProcessor(policy RetryPolicy) *Processor {
	return &Processor{policy: policy, handlers: map[string]JobHandler{}}
}

func (p *Processor) Register(jobID string, handler JobHandler) {
	jobID = strings.TrimSpace(jobID)
	if p == nil || jobID == "" || handler == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[jobID] = handler
}

// Process runs one delivery. Unknown jobs are dead-lettered straight away.
func (p *Processor) Process(ctx context.Context, delivery queue.Delivery, attempt int) error {
	if p == nil || delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	msg := FromExecutionMessage(delivery.Message())
	if msg == nil {
		return delivery.Nack(ctx, queue.NackOptions{DeadLetter: true, Reason: "missing execution message"})
	}
	p.mu.RLock()
	handler, ok := p.handlers[msg.JobID]
	p.mu.RUnlock()
	if !ok {
		return delivery.Nack(ctx, queue.NackOptions{DeadLetter: true, Reason: "unknown job " + msg.JobID})
	}
	if err := handler(ctx, msg); err != nil {
		if nackErr := delivery.Nack(ctx, p.policy.NackOptions(err, attempt)); nackErr != nil {
			return fmt.Errorf("gojob: nack %s: %w", msg.JobID, nackErr)
		}
		return err
	}
	return delivery.Ack(ctx)
}

// ProcessNext pulls a single delivery from the dequeuer.
func (p *Processor) ProcessNext(ctx context.Context, dequeuer queue.Dequeuer, attempt int) error {
	if dequeuer == nil {
		return fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	return p.Process(ctx, delivery, attempt)
}

// IndexSyncHandler replays an index sync job through the index projector.
func IndexSyncHandler(projector core.LifecycleEventHandler) JobHandler {
	return func(ctx context.Context, msg *core.JobExecutionMessage) error {
		if projector == nil {
			return fmt.Errorf("gojob: index projector is not configured")
		}
		userID := strings.TrimSpace(fmt.Sprint(msg.Parameters[ParamUserID]))
		if userID == "" || userID == "<nil>" {
			return fmt.Errorf("gojob: index sync job is missing %s", ParamUserID)
		}
		return projector.Handle(ctx, core.LifecycleEvent{
			ID:         msg.IdempotencyKey,
			Name:       core.EventIndexSync,
			UserID:     userID,
			Action:     "sync",
			Source:     core.DefaultEventSource,
			OccurredAt: time.Now().UTC(),
		})
	}
}

func OutboxDispatchHandler(dispatcher core.LifecycleDispatcher) JobHandler {
	return func(ctx context.Context, msg *core.JobExecutionMessage) error {
		if dispatcher == nil {
			return fmt.Errorf("gojob: outbox dispatcher is not configured")
		}
		_, err := dispatcher.DispatchPending(ctx, intParam(msg.Parameters[ParamBatchSize]))
		return err
	}
}

// MetricsHook reports go-job worker activity as accounts.job.* metrics.
type MetricsHook struct {
	recorder core.MetricsRecorder
}

func NewMetricsHook(recorder core.MetricsRecorder) *MetricsHook {
	if recorder == nil {
		recorder = core.NopMetricsRecorder{}
	}
	return &MetricsHook{recorder: recorder}
}

func (h *MetricsHook) OnStart(ctx context.Context, event worker.Event) {
	h.count(ctx, "started", event)
}

func (h *MetricsHook) OnSuccess(ctx context.Context, event worker.Event) {
	h.count(ctx, "succeeded", event)
	h.observe(ctx, event)
}

func (h *MetricsHook) OnFailure(ctx context.Context, event worker.Event) {
	h.count(ctx, "failed", event)
	h.observe(ctx, event)
}

func (h *MetricsHook) OnRetry(ctx context.Context, event worker.Event) {
	h.count(ctx, "retried", event)
}

func (h *MetricsHook) count(ctx context.Context, stage string, event worker.Event) {
	if h == nil || h.recorder == nil {
		return
	}
	h.recorder.IncCounter(ctx, "accounts.job."+stage, 1, map[string]string{
		"operation": eventJobID(event),
		"status":    stage,
	})
}

func (h *MetricsHook) observe(ctx context.Context, event worker.Event) {
	if h == nil || h.recorder == nil {
		return
	}
	h.recorder.ObserveHistogram(ctx, "accounts.job.duration_ms", float64(event.Duration.Milliseconds()), map[string]string{
		"operation": eventJobID(event),
	})
}

func eventJobID(event worker.Event) string {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	if message == nil {
		return "unknown"
	}
	return strings.TrimSpace(message.JobID)
}

func intParam(value any) int {
	switch typed := value.(type) {
	case int:
		return typed
	case int64:
		return int(typed)
	case float64:
		return int(typed)
	default:
		return 0
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var (
	_ core.JobEnqueuer      = (*EnqueuerAdapter)(nil)
	_ core.IndexSyncTrigger = (*IndexSyncJobTrigger)(nil)
	_ worker.Hook           = (*MetricsHook)(nil)
)
