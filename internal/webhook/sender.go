package webhook

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/catherinevee/reghook/internal/logger"
	"github.com/catherinevee/reghook/internal/registry"
	"github.com/catherinevee/reghook/internal/utils/errors"
)

// Outbound header names. Receivers key their verification on these.
const (
	headerContentType = "Content-Type"
	headerUserAgent   = "User-Agent"
	headerEvent       = "X-MLflow-Event"
	headerDelivery    = "X-MLflow-Delivery"
	headerSignature   = "X-MLflow-Signature"

	contentTypeJSON = "application/json"
	userAgent       = "MLflow-Webhook/1.0"
)

// Sender performs a single outbound POST attempt and maps the outcome to a
// DispatchResult. It never retries; that is the dispatcher's job.
type Sender struct {
	client         *http.Client
	allowedSchemes map[string]bool
	maxPayloadSize int
	bodyCapture    int
	log            logger.Logger
}

// NewSender builds a sender from dispatcher options.
func NewSender(opts Options) *Sender {
	opts = opts.withDefaults()

	allowed := make(map[string]bool, len(opts.AllowedSchemes))
	for _, scheme := range opts.AllowedSchemes {
		allowed[strings.ToLower(scheme)] = true
	}

	return &Sender{
		client:         &http.Client{Timeout: opts.RequestTimeout},
		allowedSchemes: allowed,
		maxPayloadSize: opts.MaxPayloadSize,
		bodyCapture:    opts.ResponseBodyCapture,
		log:            logger.New("webhook-sender"),
	}
}

// Send executes exactly one delivery attempt. Preflight failures return
// before any socket is opened.
func (s *Sender) Send(ctx context.Context, webhook registry.Webhook, eventType registry.EventType, deliveryID string, payload []byte) DispatchResult {
	result := DispatchResult{
		WebhookID:   webhook.ID,
		WebhookName: webhook.Name,
		EventType:   eventType,
		DeliveryID:  deliveryID,
	}

	start := time.Now()
	fail := func(kind errors.ErrorType, msg string) DispatchResult {
		result.Success = false
		result.ErrorKind = kind
		result.ErrorMessage = msg
		result.ResponseTimeMS = time.Since(start).Milliseconds()
		return result
	}

	scheme := urlScheme(webhook.URL)
	if !s.allowedSchemes[scheme] {
		return fail(errors.ErrorTypeDisallowedScheme,
			fmt.Sprintf("URL scheme %q is not allowed", scheme))
	}

	if len(payload) > s.maxPayloadSize {
		return fail(errors.ErrorTypePayloadTooLarge,
			fmt.Sprintf("payload size %d exceeds limit %d", len(payload), s.maxPayloadSize))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL, bytes.NewReader(payload))
	if err != nil {
		return fail(errors.ErrorTypeNetwork, fmt.Sprintf("invalid request: %v", err))
	}

	req.Header.Set(headerContentType, contentTypeJSON)
	req.Header.Set(headerUserAgent, userAgent)
	req.Header.Set(headerEvent, string(eventType))
	req.Header.Set(headerDelivery, deliveryID)
	if webhook.Secret != "" {
		req.Header.Set(headerSignature, SignaturePrefix+Sign(payload, []byte(webhook.Secret)))
	}

	resp, err := s.client.Do(req)
	result.ResponseTimeMS = time.Since(start).Milliseconds()
	if err != nil {
		if isTimeout(err) {
			return fail(errors.ErrorTypeTimeout,
				fmt.Sprintf("request timed out after %s", s.client.Timeout))
		}
		return fail(errors.ErrorTypeNetwork, fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, int64(s.bodyCapture)))
	if readErr != nil {
		s.log.Debug("Failed to read response body",
			logger.String("webhook_id", webhook.ID),
			logger.Error(readErr))
	}

	result.StatusCode = resp.StatusCode
	result.ResponseBody = string(body)
	result.ResponseTimeMS = time.Since(start).Milliseconds()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		result.Success = true
		return result
	}

	result.Success = false
	if resp.StatusCode >= 400 {
		result.ErrorKind = errors.ErrorTypeHTTP
		result.ErrorMessage = fmt.Sprintf("endpoint returned status %d", resp.StatusCode)
	} else {
		// Redirects are followed by the client; a 3xx surfacing here means
		// the endpoint answered with something we cannot treat as delivered.
		result.ErrorKind = errors.ErrorTypeUnexpected
		result.ErrorMessage = fmt.Sprintf("unexpected response status %d", resp.StatusCode)
	}
	return result
}

// urlScheme extracts the case-folded portion before "://". A URL without a
// separator yields the whole string, which then fails the allow-list check.
func urlScheme(url string) string {
	scheme := url
	if idx := strings.Index(url, "://"); idx >= 0 {
		scheme = url[:idx]
	}
	return strings.ToLower(scheme)
}

func isTimeout(err error) bool {
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return stderrors.Is(err, context.DeadlineExceeded)
}
