package registry

// EventType tags a registry mutation. The dispatcher treats event types as
// opaque strings; the constants below are the events the registry emits.
type EventType string

const (
	EventRegisteredModelCreated EventType = "REGISTERED_MODEL_CREATED"
	EventModelVersionCreated    EventType = "MODEL_VERSION_CREATED"
	EventModelVersionTagSet     EventType = "MODEL_VERSION_TAG_SET"
	EventModelVersionTagDeleted EventType = "MODEL_VERSION_TAG_DELETED"
	EventModelAliasSet          EventType = "MODEL_ALIAS_SET"
	EventModelAliasDeleted      EventType = "MODEL_ALIAS_DELETED"
)

// KnownEventTypes lists the events the registry emits today.
func KnownEventTypes() []EventType {
	return []EventType{
		EventRegisteredModelCreated,
		EventModelVersionCreated,
		EventModelVersionTagSet,
		EventModelVersionTagDeleted,
		EventModelAliasSet,
		EventModelAliasDeleted,
	}
}

// WebhookStatus represents the lifecycle state of a webhook
type WebhookStatus string

const (
	WebhookStatusActive   WebhookStatus = "ACTIVE"
	WebhookStatusInactive WebhookStatus = "INACTIVE"
	WebhookStatusDisabled WebhookStatus = "DISABLED"
)

// IsValid reports whether the status is one of the known states.
func (s WebhookStatus) IsValid() bool {
	switch s {
	case WebhookStatusActive, WebhookStatusInactive, WebhookStatusDisabled:
		return true
	}
	return false
}

// Webhook is a registered delivery target. Secret is excluded from JSON
// representations; it only travels through the store and the signer.
type Webhook struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	URL         string        `json:"url"`
	Events      []EventType   `json:"events"`
	Description string        `json:"description,omitempty"`
	Secret      string        `json:"-"`
	Status      WebhookStatus `json:"status"`
	CreatedAt   int64         `json:"created_at"`
	UpdatedAt   int64         `json:"updated_at"`
}

// HasEvent reports whether the webhook subscribes to the event type.
func (w *Webhook) HasEvent(event EventType) bool {
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}

// ShouldTrigger reports whether a delivery should be attempted for the event.
// Only ACTIVE webhooks subscribed to the event qualify.
func (w *Webhook) ShouldTrigger(event EventType) bool {
	return w.Status == WebhookStatusActive && w.HasEvent(event)
}
