package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/catherinevee/reghook/internal/logger"
	"github.com/catherinevee/reghook/internal/registry"
	"github.com/catherinevee/reghook/internal/utils/errors"
)

const managerStopTimeout = 5 * time.Second

// Dispatcher turns registry events into outbound deliveries. Producers call
// Dispatch and never block; a bounded queue feeds a fixed worker pool that
// sends, retries with backoff, and auto-disables webhooks that keep failing.
type Dispatcher struct {
	opts     Options
	store    registry.Store
	cache    *Cache
	sender   *Sender
	failures *failureTracker
	log      logger.Logger

	mu          sync.RWMutex
	running     bool
	queue       chan *dispatchTask
	workCh      chan *dispatchTask
	shutdownCh  chan struct{}
	managerDone chan struct{}
	workerWg    sync.WaitGroup

	resultObservers  []func(DispatchResult)
	disableObservers []func(registry.Webhook, int)
}

// NewDispatcher builds a dispatcher bound to a store. The cache is refreshed
// synchronously here so deliveries can start right after Start.
func NewDispatcher(store registry.Store, opts Options) *Dispatcher {
	opts = opts.withDefaults()

	d := &Dispatcher{
		opts:     opts,
		store:    store,
		cache:    NewCache(opts.CacheRefreshInterval),
		sender:   NewSender(opts),
		failures: newFailureTracker(),
		log:      logger.New("webhook-dispatcher"),
	}
	d.cache.SetStore(store)
	return d
}

// Start brings up the cache refresher, the queue manager and the worker
// pool. Calling Start on a running dispatcher is a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}

	d.queue = make(chan *dispatchTask, d.opts.QueueSize)
	d.workCh = make(chan *dispatchTask)
	d.shutdownCh = make(chan struct{})
	d.managerDone = make(chan struct{})

	for i := 1; i <= d.opts.MaxWorkers; i++ {
		d.workerWg.Add(1)
		go d.worker(i, d.shutdownCh, d.workCh)
	}
	go d.manager(d.shutdownCh, d.queue, d.workCh, d.managerDone)

	d.cache.Start()
	d.running = true

	d.log.Info("Webhook dispatcher started",
		logger.Int("workers", d.opts.MaxWorkers),
		logger.Int("queue_size", d.opts.QueueSize))
}

// Stop drains the pipeline: signal shutdown, wake the manager, join it with
// a bounded wait, stop the cache, then wait for in-flight deliveries. The
// dispatcher can be started again afterwards. Queued but unprocessed tasks
// are dropped.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	queue, managerDone := d.queue, d.managerDone
	close(d.shutdownCh)
	select {
	case queue <- nil:
	default:
	}
	d.mu.Unlock()

	select {
	case <-managerDone:
	case <-time.After(managerStopTimeout):
		d.log.Warn("Dispatch manager did not stop within timeout")
	}

	d.cache.Stop()
	d.workerWg.Wait()

	d.mu.Lock()
	d.queue = nil
	d.workCh = nil
	d.mu.Unlock()

	queueDepth.Set(0)
	d.log.Info("Webhook dispatcher stopped")
}

// Dispatch fans an event out to every matching webhook. It never blocks and
// never returns an error; a full queue drops the delivery with a warning.
func (d *Dispatcher) Dispatch(eventType registry.EventType, data interface{}) {
	if !d.isRunning() {
		d.log.Debug("Dispatcher not running, dropping event",
			logger.String("event", string(eventType)))
		return
	}

	recipients := d.cache.GetActiveForEvent(eventType)
	if len(recipients) == 0 {
		d.log.Debug("No webhooks subscribed to event",
			logger.String("event", string(eventType)))
		return
	}

	raw, err := json.Marshal(data)
	if err != nil {
		d.log.Error("Failed to serialize event data",
			logger.String("event", string(eventType)),
			logger.Error(err))
		return
	}

	for _, wh := range recipients {
		deliveryID := uuid.New().String()
		payload, err := json.Marshal(Envelope{
			EventType:  eventType,
			Timestamp:  time.Now().UnixMilli(),
			DeliveryID: deliveryID,
			Data:       raw,
		})
		if err != nil {
			d.log.Error("Failed to build delivery envelope",
				logger.String("webhook_id", wh.ID),
				logger.Error(err))
			continue
		}

		task := &dispatchTask{
			webhook:    wh,
			eventType:  eventType,
			payload:    payload,
			deliveryID: deliveryID,
			createdAt:  time.Now(),
		}
		if err := d.enqueue(task); err != nil {
			queueDroppedTotal.Inc()
			d.log.Warn("Delivery queue full, dropping delivery",
				logger.String("webhook_id", wh.ID),
				logger.String("webhook_name", wh.Name),
				logger.String("delivery_id", deliveryID),
				logger.String("event", string(eventType)))
		}
	}
}

// TestDelivery sends one synchronous delivery outside the queue, without
// retries or failure accounting. Used by the admin API's test endpoint.
func (d *Dispatcher) TestDelivery(ctx context.Context, wh registry.Webhook, eventType registry.EventType, data interface{}) (DispatchResult, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return DispatchResult{}, errors.Wrap(err, errors.ErrorTypeValidation, "failed to serialize event data")
	}

	deliveryID := uuid.New().String()
	payload, err := json.Marshal(Envelope{
		EventType:  eventType,
		Timestamp:  time.Now().UnixMilli(),
		DeliveryID: deliveryID,
		Data:       raw,
	})
	if err != nil {
		return DispatchResult{}, errors.Wrap(err, errors.ErrorTypeInternal, "failed to build delivery envelope")
	}

	result := d.sender.Send(ctx, wh, eventType, deliveryID, payload)
	d.notifyResult(result)
	return result, nil
}

// QueueSize reports the number of queued deliveries.
func (d *Dispatcher) QueueSize() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.queue == nil {
		return 0
	}
	return len(d.queue)
}

// FailureCounts returns a copy of the consecutive-failure counters.
func (d *Dispatcher) FailureCounts() map[string]int {
	return d.failures.snapshot()
}

// CacheInfo reports the webhook cache state.
func (d *Dispatcher) CacheInfo() CacheInfo {
	return d.cache.Info()
}

// ForceCacheRefresh refreshes the webhook cache synchronously.
func (d *Dispatcher) ForceCacheRefresh() {
	d.cache.Refresh()
}

// OnResult registers an observer invoked after every delivery attempt.
func (d *Dispatcher) OnResult(fn func(DispatchResult)) {
	d.mu.Lock()
	d.resultObservers = append(d.resultObservers, fn)
	d.mu.Unlock()
}

// OnAutoDisable registers an observer invoked after a webhook is disabled.
func (d *Dispatcher) OnAutoDisable(fn func(registry.Webhook, int)) {
	d.mu.Lock()
	d.disableObservers = append(d.disableObservers, fn)
	d.mu.Unlock()
}

func (d *Dispatcher) isRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// enqueue adds a task without blocking. After shutdown tasks are silently
// discarded, matching the at-most-once promise across Stop.
func (d *Dispatcher) enqueue(task *dispatchTask) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.running || d.queue == nil {
		return nil
	}
	select {
	case d.queue <- task:
		queueDepth.Inc()
		return nil
	default:
		return errors.New(errors.ErrorTypeQueueFull, "delivery queue full")
	}
}

// manager pulls tasks off the bounded queue and hands them to the worker
// pool. A nil task is the shutdown sentinel.
func (d *Dispatcher) manager(shutdownCh chan struct{}, queue, workCh chan *dispatchTask, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-shutdownCh:
			return
		case task := <-queue:
			if task == nil {
				continue
			}
			queueDepth.Dec()
			select {
			case workCh <- task:
			case <-shutdownCh:
				return
			}
		}
	}
}

func (d *Dispatcher) worker(id int, shutdownCh chan struct{}, workCh chan *dispatchTask) {
	defer d.workerWg.Done()
	d.log.Debug("Delivery worker started", logger.Int("worker_id", id))

	for {
		select {
		case <-shutdownCh:
			return
		case task := <-workCh:
			d.process(task, shutdownCh)
		}
	}
}

// process runs one attempt and applies the retry/failure policy.
func (d *Dispatcher) process(task *dispatchTask, shutdownCh chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("Panic while processing delivery",
				logger.String("webhook_id", task.webhook.ID),
				logger.String("delivery_id", task.deliveryID),
				logger.Any("panic", r))
		}
	}()

	result := d.sender.Send(context.Background(), task.webhook, task.eventType, task.deliveryID, task.payload)
	result.Attempt = task.retryCount
	d.notifyResult(result)

	if result.Success {
		d.failures.recordSuccess(task.webhook.ID)
		d.log.Debug("Webhook delivered",
			logger.String("webhook_id", task.webhook.ID),
			logger.String("delivery_id", task.deliveryID),
			logger.Int("status", result.StatusCode),
			logger.Int64("response_time_ms", result.ResponseTimeMS))
		return
	}

	if task.retryCount < d.opts.MaxRetryCount && errors.IsRetryableType(result.ErrorKind) {
		d.scheduleRetry(task, result, shutdownCh)
		return
	}

	d.handleTerminalFailure(task, result)
}

// scheduleRetry sleeps the backoff delay and re-enqueues the task with the
// same delivery id. The sleep is interruptible by shutdown; a full queue
// turns the attempt into a terminal failure.
func (d *Dispatcher) scheduleRetry(task *dispatchTask, result DispatchResult, shutdownCh chan struct{}) {
	delay := d.retryDelay(task.retryCount)
	retriesTotal.Inc()
	d.log.Warn("Webhook delivery failed, scheduling retry",
		logger.String("webhook_id", task.webhook.ID),
		logger.String("delivery_id", task.deliveryID),
		logger.String("error_kind", string(result.ErrorKind)),
		logger.Int("attempt", task.retryCount+1),
		logger.Duration("delay", delay))

	select {
	case <-time.After(delay):
	case <-shutdownCh:
		d.log.Debug("Shutdown during retry backoff, abandoning delivery",
			logger.String("delivery_id", task.deliveryID))
		return
	}

	if err := d.enqueue(task.retry()); err != nil {
		queueDroppedTotal.Inc()
		d.log.Warn("Delivery queue full, dropping retry",
			logger.String("webhook_id", task.webhook.ID),
			logger.String("delivery_id", task.deliveryID))
		d.handleTerminalFailure(task, result)
	}
}

func (d *Dispatcher) retryDelay(retryCount int) time.Duration {
	delays := d.opts.RetryDelays
	if retryCount < len(delays) {
		return delays[retryCount]
	}
	return delays[len(delays)-1]
}

// handleTerminalFailure bumps the consecutive-failure counter and applies
// the auto-disable policy. The counter lock is held across the store update
// so concurrent failures for the same webhook cannot double-disable it.
func (d *Dispatcher) handleTerminalFailure(task *dispatchTask, result DispatchResult) {
	t := d.failures
	t.mu.Lock()
	defer t.mu.Unlock()

	t.counts[task.webhook.ID]++
	count := t.counts[task.webhook.ID]

	d.log.Warn("Webhook delivery failed",
		logger.String("webhook_id", task.webhook.ID),
		logger.String("webhook_name", task.webhook.Name),
		logger.String("delivery_id", task.deliveryID),
		logger.String("error_kind", string(result.ErrorKind)),
		logger.String("error", result.ErrorMessage),
		logger.Int("attempts", task.retryCount+1),
		logger.Int("consecutive_failures", count))

	if !d.opts.AutoDisableOnFailure || count < d.opts.MaxConsecutiveFailures {
		return
	}

	if _, err := d.store.UpdateWebhookStatus(context.Background(), task.webhook.ID, registry.WebhookStatusDisabled); err != nil {
		d.log.Error("Failed to auto-disable webhook",
			logger.String("webhook_id", task.webhook.ID),
			logger.String("error_kind", string(errors.ErrorTypeAutoDisableFailed)),
			logger.Error(err))
		return
	}

	t.counts[task.webhook.ID] = 0
	autoDisabledTotal.Inc()
	d.log.Warn("Webhook auto-disabled after consecutive failures",
		logger.String("webhook_id", task.webhook.ID),
		logger.String("webhook_name", task.webhook.Name),
		logger.Int("failures", count))
	d.cache.Refresh()

	for _, fn := range d.disableObserversSnapshot() {
		go fn(task.webhook, count)
	}
}

func (d *Dispatcher) notifyResult(result DispatchResult) {
	observeResult(result)

	d.mu.RLock()
	observers := make([]func(DispatchResult), len(d.resultObservers))
	copy(observers, d.resultObservers)
	d.mu.RUnlock()

	for _, fn := range observers {
		fn(result)
	}
}

func (d *Dispatcher) disableObserversSnapshot() []func(registry.Webhook, int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	observers := make([]func(registry.Webhook, int), len(d.disableObservers))
	copy(observers, d.disableObservers)
	return observers
}

// String implements fmt.Stringer for debug logging.
func (d *Dispatcher) String() string {
	return fmt.Sprintf("Dispatcher(workers=%d queue=%d)", d.opts.MaxWorkers, d.opts.QueueSize)
}
