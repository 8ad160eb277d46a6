package webhook

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catherinevee/reghook/internal/registry"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.Equal(t, []string{"https"}, opts.AllowedSchemes)
	assert.Equal(t, 5, opts.MaxWorkers)
	assert.Equal(t, 1000, opts.QueueSize)
	assert.True(t, opts.AutoDisableOnFailure)
	assert.Equal(t, 60*time.Second, opts.CacheRefreshInterval)
	assert.Equal(t, 3, opts.MaxRetryCount)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, opts.RetryDelays)
	assert.Equal(t, 5, opts.MaxConsecutiveFailures)
	assert.Equal(t, 10*time.Second, opts.RequestTimeout)
	assert.Equal(t, 1024*1024, opts.MaxPayloadSize)
	assert.Equal(t, 1000, opts.ResponseBodyCapture)
}

func TestOptionsWithDefaults(t *testing.T) {
	normalized := Options{}.withDefaults()
	expected := DefaultOptions()
	expected.AutoDisableOnFailure = false
	assert.Equal(t, expected, normalized, "zero fields fall back to defaults")

	partial := Options{MaxWorkers: 2, QueueSize: 7}.withDefaults()
	assert.Equal(t, 2, partial.MaxWorkers)
	assert.Equal(t, 7, partial.QueueSize)
	assert.Equal(t, DefaultMaxRetryCount, partial.MaxRetryCount)
}

func TestEnvelopeJSONShape(t *testing.T) {
	payload, err := json.Marshal(Envelope{
		EventType:  registry.EventModelVersionCreated,
		Timestamp:  1700000000000,
		DeliveryID: "d-1",
		Data:       json.RawMessage(`{"name":"m"}`),
	})
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(payload, &fields))
	assert.Contains(t, fields, "event_type")
	assert.Contains(t, fields, "timestamp")
	assert.Contains(t, fields, "delivery_id")
	assert.Contains(t, fields, "data")
	assert.JSONEq(t, `{"name":"m"}`, string(fields["data"]))
}

func TestDispatchTaskRetryKeepsIdentity(t *testing.T) {
	task := &dispatchTask{
		webhook:    registry.Webhook{ID: "wh-1"},
		eventType:  registry.EventModelVersionCreated,
		payload:    []byte(`{"a":1}`),
		deliveryID: "d-1",
		createdAt:  time.Now(),
	}

	next := task.retry()
	assert.Equal(t, 1, next.retryCount)
	assert.Equal(t, 0, task.retryCount, "the original task is untouched")
	assert.Equal(t, task.deliveryID, next.deliveryID)
	assert.Equal(t, task.payload, next.payload)
	assert.Equal(t, task.createdAt, next.createdAt)
}

func TestFailureTracker(t *testing.T) {
	tracker := newFailureTracker()
	tracker.mu.Lock()
	tracker.counts["wh-1"] = 3
	tracker.counts["wh-2"] = 1
	tracker.mu.Unlock()

	snap := tracker.snapshot()
	assert.Equal(t, map[string]int{"wh-1": 3, "wh-2": 1}, snap)

	snap["wh-1"] = 99
	assert.Equal(t, 3, tracker.snapshot()["wh-1"], "snapshot is a copy")

	tracker.recordSuccess("wh-1")
	assert.NotContains(t, tracker.snapshot(), "wh-1")
}
