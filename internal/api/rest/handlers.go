package rest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/catherinevee/reghook/internal/registry"
	"github.com/catherinevee/reghook/internal/utils/errors"
	"github.com/catherinevee/reghook/internal/webhook"
)

type createWebhookRequest struct {
	Name        string   `json:"name" validate:"required,max=255"`
	URL         string   `json:"url" validate:"required,url,max=2048"`
	Events      []string `json:"events" validate:"required,min=1,dive,required"`
	Description string   `json:"description" validate:"max=1024"`
	Secret      string   `json:"secret" validate:"max=255"`
	Status      string   `json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE DISABLED"`
}

type updateWebhookRequest struct {
	Name        *string  `json:"name" validate:"omitempty,max=255"`
	URL         *string  `json:"url" validate:"omitempty,url,max=2048"`
	Events      []string `json:"events" validate:"omitempty,min=1,dive,required"`
	Description *string  `json:"description" validate:"omitempty,max=1024"`
	Secret      *string  `json:"secret" validate:"omitempty,max=255"`
	Status      *string  `json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE DISABLED"`
}

type testWebhookRequest struct {
	EventType string                 `json:"event_type" validate:"required"`
	Data      map[string]interface{} `json:"data"`
}

type listWebhooksResponse struct {
	Webhooks      []registry.Webhook `json:"webhooks"`
	NextPageToken string             `json:"next_page_token,omitempty"`
}

type dispatcherStatsResponse struct {
	QueueSize     int               `json:"queue_size"`
	FailureCounts map[string]int    `json:"failure_counts"`
	Cache         webhook.CacheInfo `json:"cache"`
	StreamClients int               `json:"stream_clients"`
	UptimeSeconds float64           `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"uptime": time.Since(s.startTime).Seconds(),
	})
}

func (s *Server) handleListEventTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"event_types": registry.KnownEventTypes(),
	})
}

func (s *Server) handleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	var req createWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(err, errors.ErrorTypeValidation, "invalid request body"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, errors.Wrap(err, errors.ErrorTypeValidation, "request validation failed"))
		return
	}

	wh, err := s.store.CreateWebhook(r.Context(), registry.CreateWebhookParams{
		Name:        req.Name,
		URL:         req.URL,
		Events:      toEventTypes(req.Events),
		Description: req.Description,
		Secret:      req.Secret,
		Status:      registry.WebhookStatus(req.Status),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	s.dispatcher.ForceCacheRefresh()
	writeJSON(w, http.StatusCreated, wh)
}

func (s *Server) handleListWebhooks(w http.ResponseWriter, r *http.Request) {
	maxResults := 0
	if raw := r.URL.Query().Get("max_results"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, errors.ValidationError("max_results must be a non-negative integer"))
			return
		}
		maxResults = n
	}

	webhooks, nextToken, err := s.store.ListWebhooks(r.Context(), maxResults, r.URL.Query().Get("page_token"))
	if err != nil {
		writeError(w, err)
		return
	}

	if webhooks == nil {
		webhooks = []registry.Webhook{}
	}
	writeJSON(w, http.StatusOK, listWebhooksResponse{
		Webhooks:      webhooks,
		NextPageToken: nextToken,
	})
}

func (s *Server) handleGetWebhook(w http.ResponseWriter, r *http.Request) {
	wh, err := s.store.GetWebhook(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wh)
}

func (s *Server) handleUpdateWebhook(w http.ResponseWriter, r *http.Request) {
	var req updateWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(err, errors.ErrorTypeValidation, "invalid request body"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, errors.Wrap(err, errors.ErrorTypeValidation, "request validation failed"))
		return
	}

	params := registry.UpdateWebhookParams{
		Name:        req.Name,
		URL:         req.URL,
		Description: req.Description,
		Secret:      req.Secret,
	}
	if req.Events != nil {
		params.Events = toEventTypes(req.Events)
	}
	if req.Status != nil {
		status := registry.WebhookStatus(*req.Status)
		params.Status = &status
	}

	wh, err := s.store.UpdateWebhook(r.Context(), mux.Vars(r)["id"], params)
	if err != nil {
		writeError(w, err)
		return
	}

	s.dispatcher.ForceCacheRefresh()
	writeJSON(w, http.StatusOK, wh)
}

func (s *Server) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteWebhook(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}

	s.dispatcher.ForceCacheRefresh()
	w.WriteHeader(http.StatusNoContent)
}

// handleTestWebhook sends a synthetic event to one webhook and returns the
// outcome. Failed deliveries are reported in the result, not as API errors.
func (s *Server) handleTestWebhook(w http.ResponseWriter, r *http.Request) {
	var req testWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(err, errors.ErrorTypeValidation, "invalid request body"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, errors.Wrap(err, errors.ErrorTypeValidation, "request validation failed"))
		return
	}

	wh, err := s.store.GetWebhook(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	data := req.Data
	if data == nil {
		data = map[string]interface{}{"test": true}
	}

	result, err := s.dispatcher.TestDelivery(r.Context(), wh, registry.EventType(req.EventType), data)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDispatcherStats(w http.ResponseWriter, r *http.Request) {
	stats := dispatcherStatsResponse{
		QueueSize:     s.dispatcher.QueueSize(),
		FailureCounts: s.dispatcher.FailureCounts(),
		Cache:         s.dispatcher.CacheInfo(),
		UptimeSeconds: time.Since(s.startTime).Seconds(),
	}
	if s.hub != nil {
		stats.StreamClients = s.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCacheRefresh(w http.ResponseWriter, r *http.Request) {
	s.dispatcher.ForceCacheRefresh()
	writeJSON(w, http.StatusOK, s.dispatcher.CacheInfo())
}

func toEventTypes(events []string) []registry.EventType {
	out := make([]registry.EventType, len(events))
	for i, e := range events {
		out[i] = registry.EventType(e)
	}
	return out
}
