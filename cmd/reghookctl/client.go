package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/catherinevee/reghook/internal/registry"
)

// apiClient talks to the reghook admin API.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(baseURL, token string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// apiError is the error body the server returns for failed requests.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// deliveryResult mirrors the server's dispatch result payload.
type deliveryResult struct {
	WebhookID    string `json:"webhook_id"`
	WebhookName  string `json:"webhook_name"`
	EventType    string `json:"event_type"`
	DeliveryID   string `json:"delivery_id"`
	Success      bool   `json:"success"`
	StatusCode   int    `json:"response_status"`
	ResponseBody string `json:"response_body"`
	ResponseMS   int64  `json:"response_time_ms"`
	ErrorKind    string `json:"error_kind"`
	ErrorMessage string `json:"error_message"`
	Attempt      int    `json:"attempt"`
}

// cacheInfo mirrors the server's cache status payload.
type cacheInfo struct {
	WebhookCount    int     `json:"webhook_count"`
	LastRefresh     string  `json:"last_refresh"`
	CacheAgeSeconds float64 `json:"cache_age_seconds"`
	RefreshInterval float64 `json:"refresh_interval"`
	IsRunning       bool    `json:"is_running"`
	HasStore        bool    `json:"has_store"`
}

// dispatcherStats mirrors the server's dispatcher statistics payload.
type dispatcherStats struct {
	QueueSize     int            `json:"queue_size"`
	FailureCounts map[string]int `json:"failure_counts"`
	Cache         cacheInfo      `json:"cache"`
	StreamClients int            `json:"stream_clients"`
	UptimeSeconds float64        `json:"uptime_seconds"`
}

type webhookList struct {
	Webhooks      []registry.Webhook `json:"webhooks"`
	NextPageToken string             `json:"next_page_token"`
}

// do performs a request against the admin API and decodes the JSON response
// into out when out is non-nil.
func (c *apiClient) do(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%s (%s)", apiErr.Message, apiErr.Error)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *apiClient) listWebhooks() ([]registry.Webhook, error) {
	var all []registry.Webhook
	pageToken := ""
	for {
		path := "/api/v1/webhooks"
		if pageToken != "" {
			path += "?page_token=" + pageToken
		}
		var page webhookList
		if err := c.do(http.MethodGet, path, nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Webhooks...)
		if page.NextPageToken == "" {
			return all, nil
		}
		pageToken = page.NextPageToken
	}
}

func (c *apiClient) getWebhook(id string) (registry.Webhook, error) {
	var wh registry.Webhook
	err := c.do(http.MethodGet, "/api/v1/webhooks/"+id, nil, &wh)
	return wh, err
}

func (c *apiClient) createWebhook(req map[string]interface{}) (registry.Webhook, error) {
	var wh registry.Webhook
	err := c.do(http.MethodPost, "/api/v1/webhooks", req, &wh)
	return wh, err
}

func (c *apiClient) updateWebhook(id string, req map[string]interface{}) (registry.Webhook, error) {
	var wh registry.Webhook
	err := c.do(http.MethodPatch, "/api/v1/webhooks/"+id, req, &wh)
	return wh, err
}

func (c *apiClient) deleteWebhook(id string) error {
	return c.do(http.MethodDelete, "/api/v1/webhooks/"+id, nil, nil)
}

func (c *apiClient) testWebhook(id, eventType string, data map[string]interface{}) (deliveryResult, error) {
	req := map[string]interface{}{"event_type": eventType}
	if data != nil {
		req["data"] = data
	}
	var result deliveryResult
	err := c.do(http.MethodPost, "/api/v1/webhooks/"+id+"/test", req, &result)
	return result, err
}

func (c *apiClient) listEventTypes() ([]string, error) {
	var resp struct {
		EventTypes []string `json:"event_types"`
	}
	err := c.do(http.MethodGet, "/api/v1/events", nil, &resp)
	return resp.EventTypes, err
}

func (c *apiClient) stats() (dispatcherStats, error) {
	var stats dispatcherStats
	err := c.do(http.MethodGet, "/api/v1/dispatcher/stats", nil, &stats)
	return stats, err
}

func (c *apiClient) refreshCache() (cacheInfo, error) {
	var info cacheInfo
	err := c.do(http.MethodPost, "/api/v1/dispatcher/refresh", nil, &info)
	return info, err
}
