package alerts

import (
	"fmt"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/catherinevee/reghook/internal/logger"
	"github.com/catherinevee/reghook/internal/registry"
	"github.com/catherinevee/reghook/internal/utils/circuit"
)

// EmailConfig configures the SMTP alert channel.
type EmailConfig struct {
	Enabled  bool
	SMTPHost string
	SMTPPort int
	Username string
	Password string
	From     string
	To       []string
}

// Mailer emails operators about webhook lifecycle events. SMTP failures trip
// a circuit breaker so a dead mail server cannot stall the delivery path.
type Mailer struct {
	config  EmailConfig
	dialer  *gomail.Dialer
	breaker *resilience.CircuitBreaker
	send    func(*gomail.Message) error
	log     logger.Logger
}

// NewMailer creates a mailer. Without an SMTP host the mailer is inert and
// every notify call is a debug-logged no-op.
func NewMailer(config EmailConfig) *Mailer {
	m := &Mailer{
		config: config,
		log:    logger.New("alerts"),
	}

	if config.SMTPHost != "" {
		m.dialer = gomail.NewDialer(config.SMTPHost, config.SMTPPort, config.Username, config.Password)
		m.send = func(msg *gomail.Message) error { return m.dialer.DialAndSend(msg) }
	}

	m.breaker = resilience.NewCircuitBreaker(resilience.Config{
		Name:         "alerts-smtp",
		MaxFailures:  3,
		ResetTimeout: 5 * time.Minute,
		OnStateChange: func(from, to resilience.State) {
			m.log.Warn("Alert mail circuit state changed",
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		},
	})

	return m
}

// Enabled reports whether the mailer can actually send.
func (m *Mailer) Enabled() bool {
	return m.config.Enabled && m.send != nil && len(m.config.To) > 0
}

// NotifyAutoDisable emails operators that a webhook was turned off after
// repeated delivery failures. Matches the dispatcher's OnAutoDisable
// observer signature.
func (m *Mailer) NotifyAutoDisable(webhook registry.Webhook, failures int) {
	if !m.Enabled() {
		m.log.Debug("Email alerts disabled, skipping auto-disable notification",
			logger.String("webhook_id", webhook.ID))
		return
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.config.From)
	msg.SetHeader("To", m.config.To...)
	msg.SetHeader("Subject", fmt.Sprintf("Webhook %q was auto-disabled", webhook.Name))
	msg.SetBody("text/plain", autoDisableBody(webhook, failures))

	if err := m.breaker.Call(func() error { return m.send(msg) }); err != nil {
		m.log.Error("Failed to send auto-disable alert",
			logger.String("webhook_id", webhook.ID),
			logger.Error(err))
		return
	}

	m.log.Info("Auto-disable alert sent",
		logger.String("webhook_id", webhook.ID),
		logger.String("webhook_name", webhook.Name))
}

// BreakerStats exposes the SMTP circuit state for the stats endpoint.
func (m *Mailer) BreakerStats() resilience.Stats {
	return m.breaker.Stats()
}

func autoDisableBody(webhook registry.Webhook, failures int) string {
	return fmt.Sprintf(`The webhook %q (%s) was automatically disabled after %d consecutive delivery failures.

URL: %s

Re-enable it from the admin API once the endpoint is healthy:

  PATCH /api/v1/webhooks/%s
  {"status": "ACTIVE"}
`, webhook.Name, webhook.ID, failures, webhook.URL, webhook.ID)
}
