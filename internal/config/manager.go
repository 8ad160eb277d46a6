package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/catherinevee/reghook/internal/logger"
)

// Config is the complete reghook service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Auth     AuthConfig     `yaml:"auth"`
	Alerts   AlertConfig    `yaml:"alerts"`
	Logging  logger.Config  `yaml:"logging"`
}

// ServerConfig configures the admin HTTP server.
type ServerConfig struct {
	Host                   string          `yaml:"host"`
	Port                   int             `yaml:"port"`
	CORSAllowedOrigins     []string        `yaml:"cors_allowed_origins"`
	ReadTimeoutSeconds     int             `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds    int             `yaml:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int             `yaml:"shutdown_timeout_seconds"`
	RateLimit              RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig configures per-client request throttling.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// DatabaseConfig configures the webhook store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// DispatchConfig configures the webhook delivery pipeline. Interval fields
// are whole seconds.
type DispatchConfig struct {
	AllowedSchemes         []string `yaml:"allowed_schemes"`
	QueueSize              int      `yaml:"queue_size"`
	NumWorkers             int      `yaml:"num_workers"`
	AutoDisable            bool     `yaml:"auto_disable"`
	MaxConsecutiveFailures int      `yaml:"max_consecutive_failures"`
	MaxRetryCount          int      `yaml:"max_retry_count"`
	CacheRefreshSeconds    int      `yaml:"cache_refresh_seconds"`
	RequestTimeoutSeconds  int      `yaml:"request_timeout_seconds"`
	MaxPayloadBytes        int      `yaml:"max_payload_bytes"`
}

// AuthConfig configures admin API authentication.
type AuthConfig struct {
	Enabled         bool   `yaml:"enabled"`
	JWTSecret       string `yaml:"jwt_secret"`
	TokenTTLMinutes int    `yaml:"token_ttl_minutes"`
}

// AlertConfig configures operator notifications.
type AlertConfig struct {
	Email EmailConfig `yaml:"email"`
}

// EmailConfig configures the SMTP alert channel.
type EmailConfig struct {
	Enabled  bool     `yaml:"enabled"`
	SMTPHost string   `yaml:"smtp_host"`
	SMTPPort int      `yaml:"smtp_port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

// Address returns the host:port the admin server binds to.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Manager loads configuration and hot-reloads it when the file changes.
type Manager struct {
	config     *Config
	configPath string
	mu         sync.RWMutex
	watcher    *fsnotify.Watcher
	callbacks  []func(*Config)
	stopCh     chan struct{}
	log        logger.Logger
}

// NewManager loads the configuration at path and starts watching it. A
// missing file yields defaults; a watcher failure disables hot reload but
// is not fatal.
func NewManager(configPath string) (*Manager, error) {
	configPath = expandPath(configPath)

	m := &Manager{
		configPath: configPath,
		callbacks:  []func(*Config){},
		stopCh:     make(chan struct{}),
		log:        logger.New("config"),
	}

	if err := m.Load(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return m, nil
	}
	m.watcher = watcher

	if err := watcher.Add(configPath); err != nil {
		watcher.Close()
		m.watcher = nil
		return m, nil
	}

	go m.watchChanges()

	return m, nil
}

// Load loads or reloads the configuration from file.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := os.Stat(m.configPath); os.IsNotExist(err) {
		m.config = Default()
	} else {
		data, err := os.ReadFile(m.configPath)
		if err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}

		var config Config
		if err := yaml.Unmarshal(data, &config); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
		m.config = &config
	}

	applyDefaults(m.config)
	applyEnvironmentOverrides(m.config)

	if err := validate(m.config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// OnChange registers a callback invoked after each successful reload.
func (m *Manager) OnChange(callback func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

func (m *Manager) watchChanges() {
	if m.watcher == nil {
		return
	}
	defer m.watcher.Close()

	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write == fsnotify.Write {
				m.log.Info("Configuration file changed, reloading")

				if err := m.Load(); err != nil {
					m.log.Error("Failed to reload configuration", logger.Error(err))
					continue
				}

				m.mu.RLock()
				config := m.config
				callbacks := make([]func(*Config), len(m.callbacks))
				copy(callbacks, m.callbacks)
				m.mu.RUnlock()

				for _, callback := range callbacks {
					callback(config)
				}
			}

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.log.Error("Configuration watcher error", logger.Error(err))

		case <-m.stopCh:
			return
		}
	}
}

// Stop stops the configuration watcher.
func (m *Manager) Stop() {
	close(m.stopCh)
	if m.watcher != nil {
		m.watcher.Close()
	}
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                   "0.0.0.0",
			Port:                   8080,
			ReadTimeoutSeconds:     15,
			WriteTimeoutSeconds:    15,
			ShutdownTimeoutSeconds: 30,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerSecond: 50,
				Burst:             100,
			},
		},
		Database: DatabaseConfig{
			Path: "~/.reghook/reghook.db",
		},
		Dispatch: DispatchConfig{
			AllowedSchemes:         []string{"https"},
			QueueSize:              1000,
			NumWorkers:             5,
			AutoDisable:            true,
			MaxConsecutiveFailures: 5,
			MaxRetryCount:          3,
			CacheRefreshSeconds:    60,
			RequestTimeoutSeconds:  10,
			MaxPayloadBytes:        1024 * 1024,
		},
		Auth: AuthConfig{
			Enabled:         false,
			TokenTTLMinutes: 60,
		},
		Logging: logger.Config{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
	}
}

func applyDefaults(config *Config) {
	defaults := Default()

	if config.Server.Host == "" {
		config.Server.Host = defaults.Server.Host
	}
	if config.Server.Port == 0 {
		config.Server.Port = defaults.Server.Port
	}
	if config.Server.ReadTimeoutSeconds == 0 {
		config.Server.ReadTimeoutSeconds = defaults.Server.ReadTimeoutSeconds
	}
	if config.Server.WriteTimeoutSeconds == 0 {
		config.Server.WriteTimeoutSeconds = defaults.Server.WriteTimeoutSeconds
	}
	if config.Server.ShutdownTimeoutSeconds == 0 {
		config.Server.ShutdownTimeoutSeconds = defaults.Server.ShutdownTimeoutSeconds
	}
	if config.Server.RateLimit.RequestsPerSecond == 0 {
		config.Server.RateLimit.RequestsPerSecond = defaults.Server.RateLimit.RequestsPerSecond
	}
	if config.Server.RateLimit.Burst == 0 {
		config.Server.RateLimit.Burst = defaults.Server.RateLimit.Burst
	}
	if config.Database.Path == "" {
		config.Database.Path = defaults.Database.Path
	}
	if len(config.Dispatch.AllowedSchemes) == 0 {
		config.Dispatch.AllowedSchemes = defaults.Dispatch.AllowedSchemes
	}
	if config.Dispatch.QueueSize == 0 {
		config.Dispatch.QueueSize = defaults.Dispatch.QueueSize
	}
	if config.Dispatch.NumWorkers == 0 {
		config.Dispatch.NumWorkers = defaults.Dispatch.NumWorkers
	}
	if config.Dispatch.MaxConsecutiveFailures == 0 {
		config.Dispatch.MaxConsecutiveFailures = defaults.Dispatch.MaxConsecutiveFailures
	}
	if config.Dispatch.MaxRetryCount == 0 {
		config.Dispatch.MaxRetryCount = defaults.Dispatch.MaxRetryCount
	}
	if config.Dispatch.CacheRefreshSeconds == 0 {
		config.Dispatch.CacheRefreshSeconds = defaults.Dispatch.CacheRefreshSeconds
	}
	if config.Dispatch.RequestTimeoutSeconds == 0 {
		config.Dispatch.RequestTimeoutSeconds = defaults.Dispatch.RequestTimeoutSeconds
	}
	if config.Dispatch.MaxPayloadBytes == 0 {
		config.Dispatch.MaxPayloadBytes = defaults.Dispatch.MaxPayloadBytes
	}
	if config.Auth.TokenTTLMinutes == 0 {
		config.Auth.TokenTTLMinutes = defaults.Auth.TokenTTLMinutes
	}
	if config.Logging.Level == "" {
		config.Logging.Level = defaults.Logging.Level
	}
	if config.Logging.Format == "" {
		config.Logging.Format = defaults.Logging.Format
	}
	if config.Logging.Output == "" {
		config.Logging.Output = defaults.Logging.Output
	}
}

func validate(config *Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if config.Dispatch.QueueSize < 1 {
		return fmt.Errorf("dispatch.queue_size must be at least 1")
	}
	if config.Dispatch.NumWorkers < 1 || config.Dispatch.NumWorkers > 100 {
		return fmt.Errorf("dispatch.num_workers must be between 1 and 100")
	}
	if config.Dispatch.CacheRefreshSeconds < 1 {
		return fmt.Errorf("dispatch.cache_refresh_seconds must be at least 1")
	}
	if config.Dispatch.RequestTimeoutSeconds < 1 {
		return fmt.Errorf("dispatch.request_timeout_seconds must be at least 1")
	}
	if config.Dispatch.MaxConsecutiveFailures < 1 {
		return fmt.Errorf("dispatch.max_consecutive_failures must be at least 1")
	}
	if config.Auth.Enabled && config.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when auth is enabled")
	}
	if config.Alerts.Email.Enabled && config.Alerts.Email.SMTPHost == "" {
		return fmt.Errorf("alerts.email.smtp_host is required when email alerts are enabled")
	}
	return nil
}

func applyEnvironmentOverrides(config *Config) {
	if host := os.Getenv("REGHOOK_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("REGHOOK_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if dbPath := os.Getenv("REGHOOK_DATABASE_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}
	if schemes := os.Getenv("REGHOOK_ALLOWED_SCHEMES"); schemes != "" {
		config.Dispatch.AllowedSchemes = strings.Split(schemes, ",")
	}
	if queueSize := os.Getenv("REGHOOK_QUEUE_SIZE"); queueSize != "" {
		if n, err := strconv.Atoi(queueSize); err == nil {
			config.Dispatch.QueueSize = n
		}
	}
	if workers := os.Getenv("REGHOOK_NUM_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil {
			config.Dispatch.NumWorkers = n
		}
	}
	if autoDisable := os.Getenv("REGHOOK_AUTO_DISABLE"); autoDisable != "" {
		config.Dispatch.AutoDisable = autoDisable == "true" || autoDisable == "1"
	}
	if refresh := os.Getenv("REGHOOK_CACHE_REFRESH_SECONDS"); refresh != "" {
		if n, err := strconv.Atoi(refresh); err == nil {
			config.Dispatch.CacheRefreshSeconds = n
		}
	}
	if authEnabled := os.Getenv("REGHOOK_AUTH_ENABLED"); authEnabled != "" {
		config.Auth.Enabled = authEnabled == "true" || authEnabled == "1"
	}
	if secret := os.Getenv("REGHOOK_JWT_SECRET"); secret != "" {
		config.Auth.JWTSecret = secret
	}
	if logLevel := os.Getenv("REGHOOK_LOG_LEVEL"); logLevel != "" {
		config.Logging.Level = logLevel
	}
	if logFormat := os.Getenv("REGHOOK_LOG_FORMAT"); logFormat != "" {
		config.Logging.Format = logFormat
	}
	if smtpHost := os.Getenv("REGHOOK_SMTP_HOST"); smtpHost != "" {
		config.Alerts.Email.SMTPHost = smtpHost
		config.Alerts.Email.Enabled = true
	}
	if smtpPort := os.Getenv("REGHOOK_SMTP_PORT"); smtpPort != "" {
		if p, err := strconv.Atoi(smtpPort); err == nil {
			config.Alerts.Email.SMTPPort = p
		}
	}
	if smtpPassword := os.Getenv("REGHOOK_SMTP_PASSWORD"); smtpPassword != "" {
		config.Alerts.Email.Password = smtpPassword
	}
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
