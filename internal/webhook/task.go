package webhook

import (
	"encoding/json"
	"time"

	"github.com/catherinevee/reghook/internal/registry"
	"github.com/catherinevee/reghook/internal/utils/errors"
)

const (
	// DefaultTimeout bounds a single delivery attempt end to end.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxPayloadSize is the largest envelope the sender will put on
	// the wire, enforced before any socket is opened.
	DefaultMaxPayloadSize = 1024 * 1024

	// DefaultMaxRetryCount is the number of retries after the first failure.
	DefaultMaxRetryCount = 3

	// DefaultMaxConsecutiveFailures is the auto-disable threshold.
	DefaultMaxConsecutiveFailures = 5

	// DefaultQueueSize bounds the delivery queue.
	DefaultQueueSize = 1000

	// DefaultMaxWorkers is the delivery worker pool size.
	DefaultMaxWorkers = 5

	// DefaultCacheRefreshInterval drives the background cache refresher.
	DefaultCacheRefreshInterval = 60 * time.Second

	// DefaultResponseBodyCapture is how many response bytes are kept for
	// diagnostics.
	DefaultResponseBodyCapture = 1000
)

// DefaultRetryDelays returns the backoff schedule indexed by retry count.
func DefaultRetryDelays() []time.Duration {
	return []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}
}

// Options configures a dispatcher. Zero numeric and slice fields fall back
// to the defaults above; start from DefaultOptions to control the booleans.
type Options struct {
	AllowedSchemes         []string
	MaxWorkers             int
	QueueSize              int
	AutoDisableOnFailure   bool
	CacheRefreshInterval   time.Duration
	MaxRetryCount          int
	RetryDelays            []time.Duration
	MaxConsecutiveFailures int
	RequestTimeout         time.Duration
	MaxPayloadSize         int
	ResponseBodyCapture    int
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		AllowedSchemes:         []string{"https"},
		MaxWorkers:             DefaultMaxWorkers,
		QueueSize:              DefaultQueueSize,
		AutoDisableOnFailure:   true,
		CacheRefreshInterval:   DefaultCacheRefreshInterval,
		MaxRetryCount:          DefaultMaxRetryCount,
		RetryDelays:            DefaultRetryDelays(),
		MaxConsecutiveFailures: DefaultMaxConsecutiveFailures,
		RequestTimeout:         DefaultTimeout,
		MaxPayloadSize:         DefaultMaxPayloadSize,
		ResponseBodyCapture:    DefaultResponseBodyCapture,
	}
}

func (o Options) withDefaults() Options {
	defaults := DefaultOptions()
	if len(o.AllowedSchemes) == 0 {
		o.AllowedSchemes = defaults.AllowedSchemes
	}
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = defaults.MaxWorkers
	}
	if o.QueueSize <= 0 {
		o.QueueSize = defaults.QueueSize
	}
	if o.CacheRefreshInterval <= 0 {
		o.CacheRefreshInterval = defaults.CacheRefreshInterval
	}
	if o.MaxRetryCount <= 0 {
		o.MaxRetryCount = defaults.MaxRetryCount
	}
	if len(o.RetryDelays) == 0 {
		o.RetryDelays = defaults.RetryDelays
	}
	if o.MaxConsecutiveFailures <= 0 {
		o.MaxConsecutiveFailures = defaults.MaxConsecutiveFailures
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = defaults.RequestTimeout
	}
	if o.MaxPayloadSize <= 0 {
		o.MaxPayloadSize = defaults.MaxPayloadSize
	}
	if o.ResponseBodyCapture <= 0 {
		o.ResponseBodyCapture = defaults.ResponseBodyCapture
	}
	return o
}

// Envelope is the JSON object delivered to receivers. The marshaled bytes
// are signed and sent unmodified.
type Envelope struct {
	EventType  registry.EventType `json:"event_type"`
	Timestamp  int64              `json:"timestamp"`
	DeliveryID string             `json:"delivery_id"`
	Data       json.RawMessage    `json:"data"`
}

// dispatchTask is one in-flight delivery. The webhook is snapshotted by
// value at enqueue time; deliveryID, payload and createdAt stay fixed across
// retries of the same delivery.
type dispatchTask struct {
	webhook    registry.Webhook
	eventType  registry.EventType
	payload    []byte
	deliveryID string
	retryCount int
	createdAt  time.Time
}

// retry returns a copy of the task for the next attempt.
func (t *dispatchTask) retry() *dispatchTask {
	next := *t
	next.retryCount++
	return &next
}

// DispatchResult is the outcome of one delivery attempt.
type DispatchResult struct {
	WebhookID      string             `json:"webhook_id"`
	WebhookName    string             `json:"webhook_name,omitempty"`
	EventType      registry.EventType `json:"event_type"`
	DeliveryID     string             `json:"delivery_id"`
	Success        bool               `json:"success"`
	StatusCode     int                `json:"response_status,omitempty"`
	ResponseBody   string             `json:"response_body,omitempty"`
	ResponseTimeMS int64              `json:"response_time_ms"`
	ErrorKind      errors.ErrorType   `json:"error_kind,omitempty"`
	ErrorMessage   string             `json:"error_message,omitempty"`
	Attempt        int                `json:"attempt"`
}
