package webhook

import "sync"

// failureTracker counts consecutive terminal delivery failures per webhook.
// A successful delivery removes the entry; the auto-disable path resets it
// to zero after flipping the webhook's status.
type failureTracker struct {
	mu     sync.Mutex
	counts map[string]int
}

func newFailureTracker() *failureTracker {
	return &failureTracker{counts: make(map[string]int)}
}

func (t *failureTracker) recordSuccess(webhookID string) {
	t.mu.Lock()
	delete(t.counts, webhookID)
	t.mu.Unlock()
}

// snapshot copies the counters for observability callers.
func (t *failureTracker) snapshot() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]int, len(t.counts))
	for id, n := range t.counts {
		out[id] = n
	}
	return out
}
