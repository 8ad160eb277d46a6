package sqlite

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/catherinevee/reghook/internal/registry"
	"github.com/catherinevee/reghook/internal/utils/errors"
)

const defaultPageSize = 100

// Store is a SQLite-backed webhook registry. It implements
// registry.AdminStore; writes are serialized through a mutex on top of the
// WAL journal.
type Store struct {
	conn *sql.DB
	mu   sync.RWMutex
}

// Config represents store configuration
type Config struct {
	Path string
}

// DefaultConfig returns the default store configuration
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Path: filepath.Join(homeDir, ".reghook", "reghook.db"),
	}
}

// New opens the database, configures the pool and creates the schema.
func New(config *Config) (*Store, error) {
	if config == nil {
		config = DefaultConfig()
	}

	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", config.Path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn}
	if err := s.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS webhooks (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		url TEXT NOT NULL,
		events TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		secret TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_webhooks_status ON webhooks(status);
	`

	_, err := s.conn.Exec(schema)
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.conn.Close()
}

// CreateWebhook inserts a new webhook. Names are unique; a duplicate yields
// an ALREADY_EXISTS error.
func (s *Store) CreateWebhook(ctx context.Context, params registry.CreateWebhookParams) (registry.Webhook, error) {
	if err := validateCreateParams(params); err != nil {
		return registry.Webhook{}, err
	}

	status := params.Status
	if status == "" {
		status = registry.WebhookStatusActive
	}

	eventsJSON, err := json.Marshal(params.Events)
	if err != nil {
		return registry.Webhook{}, errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode events")
	}

	now := time.Now().UnixMilli()
	webhook := registry.Webhook{
		ID:          uuid.New().String(),
		Name:        params.Name,
		URL:         params.URL,
		Events:      params.Events,
		Description: params.Description,
		Secret:      params.Secret,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO webhooks (id, name, url, events, description, secret, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, webhook.ID, webhook.Name, webhook.URL, string(eventsJSON),
		webhook.Description, webhook.Secret, string(webhook.Status),
		webhook.CreatedAt, webhook.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return registry.Webhook{}, errors.AlreadyExistsError(
				fmt.Sprintf("webhook with name %q", params.Name))
		}
		return registry.Webhook{}, errors.Wrap(err, errors.ErrorTypeDatabase, "failed to create webhook")
	}

	return webhook, nil
}

// GetWebhook retrieves a webhook by id.
func (s *Store) GetWebhook(ctx context.Context, id string) (registry.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getWebhook(ctx, id)
}

func (s *Store) getWebhook(ctx context.Context, id string) (registry.Webhook, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, name, url, events, description, secret, status, created_at, updated_at
		FROM webhooks WHERE id = ?
	`, id)

	webhook, err := scanWebhook(row)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return registry.Webhook{}, errors.NotFoundError(fmt.Sprintf("webhook %q", id))
		}
		return registry.Webhook{}, errors.Wrap(err, errors.ErrorTypeDatabase, "failed to read webhook")
	}
	return webhook, nil
}

// ListWebhooks returns a page of webhooks ordered by id. A non-empty
// nextPageToken means more pages follow; maxResults <= 0 uses the default
// page size.
func (s *Store) ListWebhooks(ctx context.Context, maxResults int, pageToken string) ([]registry.Webhook, string, error) {
	pageSize := maxResults
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	afterID := ""
	if pageToken != "" {
		decoded, err := base64.URLEncoding.DecodeString(pageToken)
		if err != nil {
			return nil, "", errors.ValidationError(fmt.Sprintf("invalid page token %q", pageToken))
		}
		afterID = string(decoded)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, name, url, events, description, secret, status, created_at, updated_at
		FROM webhooks WHERE id > ? ORDER BY id LIMIT ?
	`, afterID, pageSize+1)
	if err != nil {
		return nil, "", errors.Wrap(err, errors.ErrorTypeDatabase, "failed to list webhooks")
	}
	defer rows.Close()

	var webhooks []registry.Webhook
	for rows.Next() {
		webhook, err := scanWebhook(rows)
		if err != nil {
			return nil, "", errors.Wrap(err, errors.ErrorTypeDatabase, "failed to scan webhook")
		}
		webhooks = append(webhooks, webhook)
	}
	if err := rows.Err(); err != nil {
		return nil, "", errors.Wrap(err, errors.ErrorTypeDatabase, "failed to list webhooks")
	}

	nextToken := ""
	if len(webhooks) > pageSize {
		webhooks = webhooks[:pageSize]
		nextToken = base64.URLEncoding.EncodeToString([]byte(webhooks[pageSize-1].ID))
	}
	return webhooks, nextToken, nil
}

// UpdateWebhook applies a partial update inside a transaction.
func (s *Store) UpdateWebhook(ctx context.Context, id string, params registry.UpdateWebhookParams) (registry.Webhook, error) {
	if err := validateUpdateParams(params); err != nil {
		return registry.Webhook{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return registry.Webhook{}, errors.Wrap(err, errors.ErrorTypeDatabase, "failed to begin transaction")
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT id, name, url, events, description, secret, status, created_at, updated_at
		FROM webhooks WHERE id = ?
	`, id)
	webhook, err := scanWebhook(row)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return registry.Webhook{}, errors.NotFoundError(fmt.Sprintf("webhook %q", id))
		}
		return registry.Webhook{}, errors.Wrap(err, errors.ErrorTypeDatabase, "failed to read webhook")
	}

	if params.Name != nil {
		webhook.Name = *params.Name
	}
	if params.URL != nil {
		webhook.URL = *params.URL
	}
	if params.Events != nil {
		webhook.Events = params.Events
	}
	if params.Description != nil {
		webhook.Description = *params.Description
	}
	if params.Secret != nil {
		webhook.Secret = *params.Secret
	}
	if params.Status != nil {
		webhook.Status = *params.Status
	}
	webhook.UpdatedAt = time.Now().UnixMilli()

	eventsJSON, err := json.Marshal(webhook.Events)
	if err != nil {
		return registry.Webhook{}, errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode events")
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE webhooks
		SET name = ?, url = ?, events = ?, description = ?, secret = ?, status = ?, updated_at = ?
		WHERE id = ?
	`, webhook.Name, webhook.URL, string(eventsJSON), webhook.Description,
		webhook.Secret, string(webhook.Status), webhook.UpdatedAt, id)
	if err != nil {
		if isUniqueViolation(err) {
			return registry.Webhook{}, errors.AlreadyExistsError(
				fmt.Sprintf("webhook with name %q", webhook.Name))
		}
		return registry.Webhook{}, errors.Wrap(err, errors.ErrorTypeDatabase, "failed to update webhook")
	}

	if err := tx.Commit(); err != nil {
		return registry.Webhook{}, errors.Wrap(err, errors.ErrorTypeDatabase, "failed to commit update")
	}
	return webhook, nil
}

// UpdateWebhookStatus flips a webhook's status. Used by the auto-disable
// path and the admin API.
func (s *Store) UpdateWebhookStatus(ctx context.Context, id string, status registry.WebhookStatus) (registry.Webhook, error) {
	if !status.IsValid() {
		return registry.Webhook{}, errors.ValidationError(fmt.Sprintf("invalid webhook status %q", status))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.conn.ExecContext(ctx, `
		UPDATE webhooks SET status = ?, updated_at = ? WHERE id = ?
	`, string(status), time.Now().UnixMilli(), id)
	if err != nil {
		return registry.Webhook{}, errors.Wrap(err, errors.ErrorTypeDatabase, "failed to update webhook status")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return registry.Webhook{}, errors.Wrap(err, errors.ErrorTypeDatabase, "failed to update webhook status")
	}
	if affected == 0 {
		return registry.Webhook{}, errors.NotFoundError(fmt.Sprintf("webhook %q", id))
	}

	return s.getWebhook(ctx, id)
}

// DeleteWebhook removes a webhook.
func (s *Store) DeleteWebhook(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.conn.ExecContext(ctx, `DELETE FROM webhooks WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeDatabase, "failed to delete webhook")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeDatabase, "failed to delete webhook")
	}
	if affected == 0 {
		return errors.NotFoundError(fmt.Sprintf("webhook %q", id))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWebhook(row rowScanner) (registry.Webhook, error) {
	var webhook registry.Webhook
	var eventsJSON, status string

	err := row.Scan(&webhook.ID, &webhook.Name, &webhook.URL, &eventsJSON,
		&webhook.Description, &webhook.Secret, &status,
		&webhook.CreatedAt, &webhook.UpdatedAt)
	if err != nil {
		return registry.Webhook{}, err
	}

	if err := json.Unmarshal([]byte(eventsJSON), &webhook.Events); err != nil {
		return registry.Webhook{}, fmt.Errorf("corrupt events column for webhook %s: %w", webhook.ID, err)
	}
	webhook.Status = registry.WebhookStatus(status)
	return webhook, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return stderrors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func validateCreateParams(params registry.CreateWebhookParams) error {
	if params.Name == "" {
		return errors.ValidationError("webhook name is required")
	}
	if params.URL == "" {
		return errors.ValidationError("webhook url is required")
	}
	if len(params.Events) == 0 {
		return errors.ValidationError("at least one event type is required")
	}
	if err := validateEvents(params.Events); err != nil {
		return err
	}
	if params.Status != "" && !params.Status.IsValid() {
		return errors.ValidationError(fmt.Sprintf("invalid webhook status %q", params.Status))
	}
	return nil
}

func validateUpdateParams(params registry.UpdateWebhookParams) error {
	if params.Name != nil && *params.Name == "" {
		return errors.ValidationError("webhook name cannot be empty")
	}
	if params.URL != nil && *params.URL == "" {
		return errors.ValidationError("webhook url cannot be empty")
	}
	if params.Events != nil {
		if len(params.Events) == 0 {
			return errors.ValidationError("at least one event type is required")
		}
		if err := validateEvents(params.Events); err != nil {
			return err
		}
	}
	if params.Status != nil && !params.Status.IsValid() {
		return errors.ValidationError(fmt.Sprintf("invalid webhook status %q", *params.Status))
	}
	return nil
}

func validateEvents(events []registry.EventType) error {
	known := make(map[registry.EventType]bool)
	for _, e := range registry.KnownEventTypes() {
		known[e] = true
	}
	for _, e := range events {
		if !known[e] {
			return errors.ValidationError(fmt.Sprintf("unknown event type %q", e))
		}
	}
	return nil
}
