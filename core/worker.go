package core

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"time"
)

// CheckWorkerConfig controls the dequeue loop for delayed checks.
type CheckWorkerConfig struct {
	Concurrency    int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	IdleWait       time.Duration
}

func DefaultCheckWorkerConfig() CheckWorkerConfig {
	return CheckWorkerConfig{
		Concurrency:    50,
		MaxAttempts:    10,
		InitialBackoff: time.Second,
		MaxBackoff:     5 * time.Minute,
		IdleWait:       time.Second,
	}
}

// CheckWorker drains receipts.check tasks from the queue and runs the
// fire-time evaluation. The delay window is enforced here: a delivery
// dequeued before its fire_at is nacked back with the remaining delay,
// so no worker ever sleeps through the window.
type CheckWorker struct {
	service  *Service
	dequeuer JobDequeuer
	config   CheckWorkerConfig
	hooks    []JobWorkerHook
	now      func() time.Time

	// attemptsMu guards attempts, the per-check redelivery count for
	// queue runtimes whose deliveries do not report their own attempt.
	attemptsMu sync.Mutex
	attempts   map[string]int

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func NewCheckWorker(service *Service, dequeuer JobDequeuer, config CheckWorkerConfig, hooks ...JobWorkerHook) (*CheckWorker, error) {
	if service == nil {
		return nil, InternalError("core: check worker requires a service", nil)
	}
	if dequeuer == nil {
		return nil, InternalError("core: check worker requires a dequeuer", nil)
	}
	defaults := DefaultCheckWorkerConfig()
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.IdleWait <= 0 {
		config.IdleWait = defaults.IdleWait
	}
	return &CheckWorker{
		service:  service,
		dequeuer: dequeuer,
		config:   config,
		hooks:    hooks,
		attempts: map[string]int{},
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (w *CheckWorker) Start(ctx context.Context) error {
	if w == nil {
		return InternalError("core: check worker is nil", nil)
	}
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true
	w.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < w.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(runCtx)
		}()
	}
	go func() {
		wg.Wait()
		close(w.done)
	}()
	return nil
}

func (w *CheckWorker) Stop(ctx context.Context) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	cancel := w.cancel
	done := w.done
	w.running = false
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *CheckWorker) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		delivery, err := w.dequeuer.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			w.service.logError(ctx, "check dequeue failed", map[string]any{"error": err.Error()})
			if sleepErr := sleepContext(ctx, w.config.IdleWait); sleepErr != nil {
				return
			}
			continue
		}
		if delivery == nil {
			if sleepErr := sleepContext(ctx, w.config.IdleWait); sleepErr != nil {
				return
			}
			continue
		}
		w.handle(ctx, delivery)
	}
}

func (w *CheckWorker) handle(ctx context.Context, delivery JobDelivery) {
	msg := delivery.Message()
	if msg == nil {
		_ = delivery.Nack(ctx, JobNackOptions{DeadLetter: true, Reason: "empty delivery"})
		return
	}
	reported := 0
	if attempted, ok := delivery.(AttemptedDelivery); ok {
		reported = attempted.Attempt()
	}
	attempt := reported
	if attempt <= 0 {
		attempt = 1
	}
	event := JobWorkerEvent{Message: msg, Attempt: attempt, StartedAt: w.now()}
	w.notify(ctx, "start", event)

	hookName := stringParam(msg.Parameters, paramHookName)
	messageID := stringParam(msg.Parameters, paramMessageID)
	if hookName == "" || messageID == "" {
		event.Err = BadInputError("core: check task without hook name or message id", nil)
		w.notify(ctx, "failure", event)
		_ = delivery.Nack(ctx, JobNackOptions{DeadLetter: true, Reason: "malformed check task"})
		return
	}

	// Queue runtimes that redeliver without an attempt count would
	// otherwise reset the backoff to its floor on every nack and never
	// hit the retry ceiling. Track the count here, keyed by the check
	// identity, when the delivery cannot report its own.
	ledgerKey := checkIdempotencyKey(hookName, messageID)
	if reported <= 0 {
		attempt = w.nextAttempt(ledgerKey)
		event.Attempt = attempt
	}

	// Fire-time gate: honor the armed window when the queue runtime has
	// no native delay support.
	if fireAt, ok := timeParam(msg.Parameters, paramFireAt); ok {
		if remaining := fireAt.Sub(w.now()); remaining > 0 {
			event.Delay = remaining
			w.notify(ctx, "retry", event)
			_ = delivery.Nack(ctx, JobNackOptions{Delay: remaining, Requeue: true, Reason: "not due"})
			return
		}
	}

	hook, ok := w.service.Registry().Get(hookName)
	if !ok {
		// Registrations are process-local; a restart can orphan armed
		// checks. Dead-letter them rather than spinning forever.
		event.Err = InternalError("core: no registered hook for armed check", map[string]any{"hook_name": hookName})
		w.notify(ctx, "failure", event)
		w.clearAttempts(ledgerKey)
		_ = delivery.Nack(ctx, JobNackOptions{DeadLetter: true, Reason: "unknown hook"})
		return
	}

	err := w.service.RunCheck(ctx, hook, messageID)
	event.Duration = w.now().Sub(event.StartedAt)
	if err == nil {
		w.notify(ctx, "success", event)
		w.clearAttempts(ledgerKey)
		_ = delivery.Ack(ctx)
		return
	}

	event.Err = err
	if attempt >= w.config.MaxAttempts {
		w.notify(ctx, "failure", event)
		w.service.logError(ctx, "check dead-lettered after retry exhaustion", map[string]any{
			"hook_name":  hookName,
			"message_id": messageID,
			"attempt":    attempt,
			"error":      err.Error(),
		})
		w.clearAttempts(ledgerKey)
		_ = delivery.Nack(ctx, JobNackOptions{DeadLetter: true, Reason: "retry exhaustion"})
		return
	}

	backoff := w.backoff(attempt)
	event.Delay = backoff
	w.notify(ctx, "retry", event)
	w.recordAttempt(ledgerKey, attempt)
	opts := JobNackOptions{Delay: backoff, Requeue: true, Reason: "transient failure"}
	if counted, ok := delivery.(interface {
		NackForAttempt(context.Context, JobNackOptions, int) error
	}); ok {
		_ = counted.NackForAttempt(ctx, opts, attempt)
		return
	}
	_ = delivery.Nack(ctx, opts)
}

func (w *CheckWorker) nextAttempt(key string) int {
	w.attemptsMu.Lock()
	defer w.attemptsMu.Unlock()
	return w.attempts[key] + 1
}

func (w *CheckWorker) recordAttempt(key string, attempt int) {
	w.attemptsMu.Lock()
	defer w.attemptsMu.Unlock()
	w.attempts[key] = attempt
}

func (w *CheckWorker) clearAttempts(key string) {
	w.attemptsMu.Lock()
	defer w.attemptsMu.Unlock()
	delete(w.attempts, key)
}

func (w *CheckWorker) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Duration(float64(w.config.InitialBackoff) * math.Pow(2, float64(attempt-1)))
	if delay > w.config.MaxBackoff {
		delay = w.config.MaxBackoff
	}
	if delay < w.config.InitialBackoff {
		delay = w.config.InitialBackoff
	}
	return delay
}

func (w *CheckWorker) notify(ctx context.Context, stage string, event JobWorkerEvent) {
	for _, hook := range w.hooks {
		if hook == nil {
			continue
		}
		switch stage {
		case "start":
			hook.OnStart(ctx, event)
		case "success":
			hook.OnSuccess(ctx, event)
		case "failure":
			hook.OnFailure(ctx, event)
		case "retry":
			hook.OnRetry(ctx, event)
		}
	}
}

func stringParam(params map[string]any, key string) string {
	if len(params) == 0 {
		return ""
	}
	value, ok := params[key]
	if !ok {
		return ""
	}
	text, ok := value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(text)
}

func timeParam(params map[string]any, key string) (time.Time, bool) {
	raw := stringParam(params, key)
	if raw == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}
	return parsed.UTC(), true
}
