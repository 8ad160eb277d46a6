package registry

import "context"

// Store is the narrow capability the delivery pipeline consumes. The cache
// walks ListWebhooks to completion via page tokens; UpdateWebhookStatus is
// only called by the auto-disable path.
type Store interface {
	ListWebhooks(ctx context.Context, maxResults int, pageToken string) (webhooks []Webhook, nextPageToken string, err error)
	UpdateWebhookStatus(ctx context.Context, id string, status WebhookStatus) (Webhook, error)
}

// AdminStore adds the CRUD surface used by the admin API. The delivery
// pipeline never sees it.
type AdminStore interface {
	Store

	CreateWebhook(ctx context.Context, params CreateWebhookParams) (Webhook, error)
	GetWebhook(ctx context.Context, id string) (Webhook, error)
	UpdateWebhook(ctx context.Context, id string, params UpdateWebhookParams) (Webhook, error)
	DeleteWebhook(ctx context.Context, id string) error
}

// CreateWebhookParams carries the fields for a new webhook. Status defaults
// to ACTIVE when empty.
type CreateWebhookParams struct {
	Name        string
	URL         string
	Events      []EventType
	Description string
	Secret      string
	Status      WebhookStatus
}

// UpdateWebhookParams carries a partial update; nil fields are unchanged.
type UpdateWebhookParams struct {
	Name        *string
	URL         *string
	Events      []EventType
	Description *string
	Secret      *string
	Status      *WebhookStatus
}
