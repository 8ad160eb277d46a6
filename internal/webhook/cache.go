package webhook

import (
	"context"
	"sync"
	"time"

	"github.com/catherinevee/reghook/internal/logger"
	"github.com/catherinevee/reghook/internal/registry"
)

const cacheStopTimeout = 5 * time.Second

// Cache holds the current snapshot of webhook configurations and refreshes
// it from the store in the background. Reads never touch the store.
type Cache struct {
	mu          sync.RWMutex
	store       registry.Store
	webhooks    []registry.Webhook
	lastRefresh time.Time
	interval    time.Duration

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	log logger.Logger
}

// CacheInfo describes the cache state for observability endpoints.
type CacheInfo struct {
	WebhookCount    int        `json:"webhook_count"`
	LastRefresh     *time.Time `json:"last_refresh,omitempty"`
	CacheAgeSeconds float64    `json:"cache_age_seconds"`
	RefreshInterval float64    `json:"refresh_interval"`
	IsRunning       bool       `json:"is_running"`
	HasStore        bool       `json:"has_store"`
}

// NewCache creates a cache refreshing every interval.
func NewCache(interval time.Duration) *Cache {
	if interval <= 0 {
		interval = DefaultCacheRefreshInterval
	}
	return &Cache{
		interval: interval,
		log:      logger.New("webhook-cache"),
	}
}

// SetStore binds the store capability. Binding a different store triggers an
// immediate synchronous refresh; rebinding the same store is a no-op.
func (c *Cache) SetStore(store registry.Store) {
	c.mu.Lock()
	changed := c.store != store
	if changed {
		c.store = store
	}
	c.mu.Unlock()

	if changed {
		c.Refresh()
	}
}

// GetActiveForEvent returns the webhooks that should fire for the event.
// It filters the current snapshot and never blocks on store I/O.
func (c *Cache) GetActiveForEvent(event registry.EventType) []registry.Webhook {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var matched []registry.Webhook
	for _, w := range c.webhooks {
		if w.ShouldTrigger(event) {
			matched = append(matched, w)
		}
	}
	return matched
}

// Refresh reloads the snapshot from the store. Store errors are logged and
// swallowed; the previous snapshot stays in place. With no store bound the
// cache stays empty.
func (c *Cache) Refresh() {
	c.mu.RLock()
	store := c.store
	c.mu.RUnlock()
	if store == nil {
		return
	}

	webhooks, err := listAllWebhooks(store)
	if err != nil {
		cacheRefreshErrorsTotal.Inc()
		c.log.Error("Failed to refresh webhook cache", logger.Error(err))
		return
	}

	c.mu.Lock()
	c.webhooks = webhooks
	c.lastRefresh = time.Now()
	c.mu.Unlock()

	cacheWebhooks.Set(float64(len(webhooks)))
	c.log.Debug("Webhook cache refreshed", logger.Int("count", len(webhooks)))
}

// listAllWebhooks walks the store's pagination to completion.
func listAllWebhooks(store registry.Store) ([]registry.Webhook, error) {
	ctx := context.Background()

	var all []registry.Webhook
	token := ""
	for {
		page, next, err := store.ListWebhooks(ctx, 0, token)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if next == "" {
			return all, nil
		}
		token = next
	}
}

// Info reports the cache state. CacheAgeSeconds is zero until the first
// successful refresh; LastRefresh disambiguates.
func (c *Cache) Info() CacheInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info := CacheInfo{
		WebhookCount:    len(c.webhooks),
		RefreshInterval: c.interval.Seconds(),
		IsRunning:       c.running,
		HasStore:        c.store != nil,
	}
	if !c.lastRefresh.IsZero() {
		last := c.lastRefresh
		info.LastRefresh = &last
		info.CacheAgeSeconds = time.Since(last).Seconds()
	}
	return info
}

// Start spawns the background refresher. Idempotent.
func (c *Cache) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	go c.refreshLoop(c.stopCh, c.doneCh)
}

// Stop signals the refresher and waits a bounded time for it to exit.
func (c *Cache) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	stopCh, doneCh := c.stopCh, c.doneCh
	close(stopCh)
	c.mu.Unlock()

	select {
	case <-doneCh:
	case <-time.After(cacheStopTimeout):
		c.log.Warn("Cache refresher did not stop within timeout")
	}
}

func (c *Cache) refreshLoop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			c.Refresh()
		}
	}
}
