package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catherinevee/reghook/internal/registry"
	"github.com/catherinevee/reghook/internal/utils/errors"
	"github.com/catherinevee/reghook/internal/webhook"
)

// fakeStore is an in-memory AdminStore for handler tests.
type fakeStore struct {
	mu       sync.Mutex
	webhooks []registry.Webhook
}

func newFakeStore() *fakeStore {
	return &fakeStore{}
}

var _ registry.AdminStore = (*fakeStore)(nil)

func (s *fakeStore) CreateWebhook(ctx context.Context, params registry.CreateWebhookParams) (registry.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if params.Name == "" {
		return registry.Webhook{}, errors.ValidationError("webhook name is required")
	}
	for _, wh := range s.webhooks {
		if wh.Name == params.Name {
			return registry.Webhook{}, errors.AlreadyExistsError(fmt.Sprintf("webhook with name %q", params.Name))
		}
	}

	status := params.Status
	if status == "" {
		status = registry.WebhookStatusActive
	}

	now := time.Now().UnixMilli()
	wh := registry.Webhook{
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
	s.webhooks = append(s.webhooks, wh)
	return wh, nil
}

func (s *fakeStore) GetWebhook(ctx context.Context, id string) (registry.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, wh := range s.webhooks {
		if wh.ID == id {
			return wh, nil
		}
	}
	return registry.Webhook{}, errors.NotFoundError(fmt.Sprintf("webhook %q", id))
}

func (s *fakeStore) UpdateWebhook(ctx context.Context, id string, params registry.UpdateWebhookParams) (registry.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.webhooks {
		if s.webhooks[i].ID != id {
			continue
		}
		wh := &s.webhooks[i]
		if params.Name != nil {
			wh.Name = *params.Name
		}
		if params.URL != nil {
			wh.URL = *params.URL
		}
		if params.Events != nil {
			wh.Events = params.Events
		}
		if params.Description != nil {
			wh.Description = *params.Description
		}
		if params.Secret != nil {
			wh.Secret = *params.Secret
		}
		if params.Status != nil {
			wh.Status = *params.Status
		}
		wh.UpdatedAt = time.Now().UnixMilli()
		return *wh, nil
	}
	return registry.Webhook{}, errors.NotFoundError(fmt.Sprintf("webhook %q", id))
}

func (s *fakeStore) DeleteWebhook(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, wh := range s.webhooks {
		if wh.ID == id {
			s.webhooks = append(s.webhooks[:i], s.webhooks[i+1:]...)
			return nil
		}
	}
	return errors.NotFoundError(fmt.Sprintf("webhook %q", id))
}

func (s *fakeStore) ListWebhooks(ctx context.Context, maxResults int, pageToken string) ([]registry.Webhook, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	offset := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil {
			return nil, "", errors.ValidationError("invalid page token")
		}
		offset = n
	}

	if maxResults <= 0 {
		maxResults = len(s.webhooks)
	}

	if offset >= len(s.webhooks) {
		return nil, "", nil
	}

	end := offset + maxResults
	nextToken := ""
	if end < len(s.webhooks) {
		nextToken = strconv.Itoa(end)
	} else {
		end = len(s.webhooks)
	}

	page := make([]registry.Webhook, end-offset)
	copy(page, s.webhooks[offset:end])
	return page, nextToken, nil
}

func (s *fakeStore) UpdateWebhookStatus(ctx context.Context, id string, status registry.WebhookStatus) (registry.Webhook, error) {
	st := status
	return s.UpdateWebhook(ctx, id, registry.UpdateWebhookParams{Status: &st})
}

type serverFixture struct {
	store  *fakeStore
	server *Server
}

func newTestServer(t *testing.T, mutate func(*Config)) *serverFixture {
	t.Helper()

	store := newFakeStore()
	opts := webhook.DefaultOptions()
	opts.AllowedSchemes = []string{"http", "https"}
	opts.CacheRefreshInterval = time.Hour
	d := webhook.NewDispatcher(store, opts)
	t.Cleanup(d.Stop)

	cfg := Config{}
	if mutate != nil {
		mutate(&cfg)
	}

	srv := NewServer(cfg, store, d, nil)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &serverFixture{store: store, server: srv}
}

func (f *serverFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func (f *serverFixture) seed(t *testing.T, name string) registry.Webhook {
	t.Helper()
	wh, err := f.store.CreateWebhook(context.Background(), registry.CreateWebhookParams{
		Name:   name,
		URL:    "https://example.com/" + name,
		Events: []registry.EventType{registry.EventModelVersionCreated},
	})
	require.NoError(t, err)
	return wh
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestCreateWebhook(t *testing.T) {
	f := newTestServer(t, nil)

	w := f.do(t, "POST", "/api/v1/webhooks", map[string]interface{}{
		"name":   "ci-notify",
		"url":    "https://hooks.example.com/ci",
		"events": []string{"MODEL_VERSION_CREATED"},
		"secret": "top-secret",
	})

	require.Equal(t, http.StatusCreated, w.Code)
	body := decodeBody(t, w)
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, "ci-notify", body["name"])
	assert.Equal(t, "ACTIVE", body["status"])
	assert.NotContains(t, w.Body.String(), "top-secret")

	// Mutations refresh the dispatcher cache immediately.
	assert.Equal(t, 1, f.server.dispatcher.CacheInfo().WebhookCount)
}

func TestCreateWebhookValidation(t *testing.T) {
	f := newTestServer(t, nil)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{
			name: "missing name",
			body: map[string]interface{}{
				"url":    "https://example.com",
				"events": []string{"MODEL_VERSION_CREATED"},
			},
		},
		{
			name: "missing url",
			body: map[string]interface{}{
				"name":   "hook",
				"events": []string{"MODEL_VERSION_CREATED"},
			},
		},
		{
			name: "not a url",
			body: map[string]interface{}{
				"name":   "hook",
				"url":    "not a url",
				"events": []string{"MODEL_VERSION_CREATED"},
			},
		},
		{
			name: "empty events",
			body: map[string]interface{}{
				"name":   "hook",
				"url":    "https://example.com",
				"events": []string{},
			},
		},
		{
			name: "bad status",
			body: map[string]interface{}{
				"name":   "hook",
				"url":    "https://example.com",
				"events": []string{"MODEL_VERSION_CREATED"},
				"status": "SOMETIMES",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, "POST", "/api/v1/webhooks", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "VALIDATION", decodeBody(t, w)["error"])
		})
	}
}

func TestCreateWebhookMalformedJSON(t *testing.T) {
	f := newTestServer(t, nil)

	req := httptest.NewRequest("POST", "/api/v1/webhooks", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateWebhookDuplicateName(t *testing.T) {
	f := newTestServer(t, nil)
	f.seed(t, "taken")

	w := f.do(t, "POST", "/api/v1/webhooks", map[string]interface{}{
		"name":   "taken",
		"url":    "https://example.com/other",
		"events": []string{"MODEL_VERSION_CREATED"},
	})

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_EXISTS", decodeBody(t, w)["error"])
}

func TestListWebhooks(t *testing.T) {
	f := newTestServer(t, nil)
	f.seed(t, "first")
	f.seed(t, "second")
	f.seed(t, "third")

	w := f.do(t, "GET", "/api/v1/webhooks", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp listWebhooksResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Webhooks, 3)
	assert.Empty(t, resp.NextPageToken)
}

func TestListWebhooksPagination(t *testing.T) {
	f := newTestServer(t, nil)
	f.seed(t, "first")
	f.seed(t, "second")
	f.seed(t, "third")

	w := f.do(t, "GET", "/api/v1/webhooks?max_results=2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var page listWebhooksResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Webhooks, 2)
	require.NotEmpty(t, page.NextPageToken)

	w = f.do(t, "GET", "/api/v1/webhooks?max_results=2&page_token="+page.NextPageToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var rest listWebhooksResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rest))
	assert.Len(t, rest.Webhooks, 1)
	assert.Empty(t, rest.NextPageToken)
}

func TestListWebhooksBadMaxResults(t *testing.T) {
	f := newTestServer(t, nil)

	w := f.do(t, "GET", "/api/v1/webhooks?max_results=many", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListWebhooksEmpty(t *testing.T) {
	f := newTestServer(t, nil)

	w := f.do(t, "GET", "/api/v1/webhooks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"webhooks":[]`)
}

func TestGetWebhook(t *testing.T) {
	f := newTestServer(t, nil)
	wh := f.seed(t, "lookup")

	w := f.do(t, "GET", "/api/v1/webhooks/"+wh.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "lookup", decodeBody(t, w)["name"])

	w = f.do(t, "GET", "/api/v1/webhooks/missing", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decodeBody(t, w)["error"])
}

func TestUpdateWebhook(t *testing.T) {
	f := newTestServer(t, nil)
	wh := f.seed(t, "patchme")

	w := f.do(t, "PATCH", "/api/v1/webhooks/"+wh.ID, map[string]interface{}{
		"status":      "INACTIVE",
		"description": "paused for maintenance",
	})

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "INACTIVE", body["status"])
	assert.Equal(t, "paused for maintenance", body["description"])
	assert.Equal(t, "patchme", body["name"])
}

func TestUpdateWebhookNotFound(t *testing.T) {
	f := newTestServer(t, nil)

	w := f.do(t, "PATCH", "/api/v1/webhooks/missing", map[string]interface{}{
		"status": "ACTIVE",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateWebhookBadStatus(t *testing.T) {
	f := newTestServer(t, nil)
	wh := f.seed(t, "patchme")

	w := f.do(t, "PATCH", "/api/v1/webhooks/"+wh.ID, map[string]interface{}{
		"status": "BROKEN",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteWebhook(t *testing.T) {
	f := newTestServer(t, nil)
	wh := f.seed(t, "doomed")

	w := f.do(t, "DELETE", "/api/v1/webhooks/"+wh.ID, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, "DELETE", "/api/v1/webhooks/"+wh.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTestWebhookEndpoint(t *testing.T) {
	var gotEvent string
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEvent = r.Header.Get("X-MLflow-Event")
		w.WriteHeader(http.StatusOK)
	}))
	defer receiver.Close()

	f := newTestServer(t, nil)
	wh, err := f.store.CreateWebhook(context.Background(), registry.CreateWebhookParams{
		Name:   "probe",
		URL:    receiver.URL,
		Events: []registry.EventType{registry.EventModelVersionCreated},
	})
	require.NoError(t, err)

	w := f.do(t, "POST", "/api/v1/webhooks/"+wh.ID+"/test", map[string]interface{}{
		"event_type": "MODEL_VERSION_CREATED",
		"data":       map[string]interface{}{"name": "demo-model", "version": "3"},
	})

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(http.StatusOK), body["response_status"])
	assert.Equal(t, "MODEL_VERSION_CREATED", gotEvent)
}

func TestTestWebhookValidation(t *testing.T) {
	f := newTestServer(t, nil)
	wh := f.seed(t, "probe")

	w := f.do(t, "POST", "/api/v1/webhooks/"+wh.ID+"/test", map[string]interface{}{
		"data": map[string]interface{}{"x": 1},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, "POST", "/api/v1/webhooks/missing/test", map[string]interface{}{
		"event_type": "MODEL_VERSION_CREATED",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDispatcherStatsEndpoint(t *testing.T) {
	f := newTestServer(t, nil)
	f.seed(t, "hooked")
	f.server.dispatcher.ForceCacheRefresh()

	w := f.do(t, "GET", "/api/v1/dispatcher/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats dispatcherStatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 0, stats.QueueSize)
	assert.Equal(t, 1, stats.Cache.WebhookCount)
	assert.Equal(t, 0, stats.StreamClients)
	assert.GreaterOrEqual(t, stats.UptimeSeconds, 0.0)
}

func TestCacheRefreshEndpoint(t *testing.T) {
	f := newTestServer(t, nil)
	f.seed(t, "first")
	f.seed(t, "second")

	w := f.do(t, "POST", "/api/v1/dispatcher/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var info webhook.CacheInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, 2, info.WebhookCount)
	assert.True(t, info.HasStore)
}

func TestHealthEndpoint(t *testing.T) {
	f := newTestServer(t, nil)

	w := f.do(t, "GET", "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decodeBody(t, w)["status"])
}

func TestListEventTypesEndpoint(t *testing.T) {
	f := newTestServer(t, nil)

	w := f.do(t, "GET", "/api/v1/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "MODEL_VERSION_CREATED")
	assert.Contains(t, w.Body.String(), "REGISTERED_MODEL_CREATED")
}
