package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// viperManager implements Manager using Viper.
type viperManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
	watchChan  chan Config
}

// Load loads configuration from all sources.
func (m *viperManager) Load(ctx context.Context) error {
	m.viper = viper.New()

	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	m.viper.SetEnvPrefix("BRANDINT")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// No config file — defaults + env vars only, which is fine.
		} else if os.IsNotExist(err) {
			// Same, surfaced through the os error path instead of viper's.
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	if errs := m.config.Validate(); len(errs) > 0 {
		var msgs []string
		for _, e := range errs {
			msgs = append(msgs, e.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
	}

	return nil
}

// Get returns the current configuration.
func (m *viperManager) Get(ctx context.Context) *Config {
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		var msgs []string
		for _, err := range errs {
			msgs = append(msgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
	}
	return nil
}

// Watch watches the config file and pushes reloaded copies to the channel.
func (m *viperManager) Watch(ctx context.Context) <-chan Config {
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		if err := m.unmarshalConfig(); err != nil {
			return
		}
		m.applyEnvOverrides()
		select {
		case m.watchChan <- *m.config:
		default:
			// Channel full — drop, the next change will supersede it anyway.
		}
	})

	return m.watchChan
}

// Reload re-reads configuration from sources.
func (m *viperManager) Reload(ctx context.Context) error {
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return nil
}

// setDefaults seeds viper with DefaultConfig() so unset keys resolve sanely.
func (m *viperManager) setDefaults() {
	d := DefaultConfig()

	m.viper.SetDefault("server.port", d.Server.Port)
	m.viper.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	m.viper.SetDefault("server.requests_per_minute", d.Server.RequestsPerMinute)

	m.viper.SetDefault("store.mongo_uri", d.Store.MongoURI)
	m.viper.SetDefault("store.database", d.Store.Database)
	m.viper.SetDefault("store.connect_timeout", d.Store.ConnectTimeout)

	m.viper.SetDefault("llm.api_key", d.LLM.APIKey)
	m.viper.SetDefault("llm.model", d.LLM.Model)

	m.viper.SetDefault("actor.base_url", d.Actor.BaseURL)
	m.viper.SetDefault("actor.token", d.Actor.Token)
	m.viper.SetDefault("actor.default_timeout", d.Actor.DefaultTimeout)

	m.viper.SetDefault("session.max_sessions", d.Session.MaxSessions)
	m.viper.SetDefault("session.idle_ttl_minutes", d.Session.IdleTTLMinutes)

	m.viper.SetDefault("scheduler.enabled", d.Scheduler.Enabled)
	m.viper.SetDefault("scheduler.throttle_ms", d.Scheduler.ThrottleMs)

	m.viper.SetDefault("cache.profile_ttl_minutes", d.Cache.ProfileTTLMinutes)
	m.viper.SetDefault("cache.posts_ttl_minutes", d.Cache.PostsTTLMinutes)
	m.viper.SetDefault("cache.hashtag_ttl_minutes", d.Cache.HashtagTTLMinutes)

	m.viper.SetDefault("logging.level", d.Logging.Level)
	m.viper.SetDefault("logging.audit_log_path", d.Logging.AuditLogPath)
	m.viper.SetDefault("logging.app_log_path", d.Logging.AppLogPath)
}

// unmarshalConfig unmarshals viper config into Config struct.
func (m *viperManager) unmarshalConfig() error {
	cfg := &Config{}

	cfg.Server.Port = m.viper.GetInt("server.port")
	cfg.Server.AllowedOrigins = m.viper.GetStringSlice("server.allowed_origins")
	cfg.Server.RequestsPerMinute = m.viper.GetInt("server.requests_per_minute")

	cfg.Store.MongoURI = m.viper.GetString("store.mongo_uri")
	cfg.Store.Database = m.viper.GetString("store.database")
	cfg.Store.ConnectTimeout = m.viper.GetInt("store.connect_timeout")

	cfg.LLM.APIKey = m.viper.GetString("llm.api_key")
	cfg.LLM.Model = m.viper.GetString("llm.model")

	cfg.Actor.BaseURL = m.viper.GetString("actor.base_url")
	cfg.Actor.Token = m.viper.GetString("actor.token")
	cfg.Actor.DefaultTimeout = m.viper.GetInt("actor.default_timeout")

	cfg.Session.MaxSessions = m.viper.GetInt("session.max_sessions")
	cfg.Session.IdleTTLMinutes = m.viper.GetInt("session.idle_ttl_minutes")

	cfg.Scheduler.Enabled = m.viper.GetBool("scheduler.enabled")
	cfg.Scheduler.ThrottleMs = m.viper.GetInt("scheduler.throttle_ms")

	cfg.Cache.ProfileTTLMinutes = m.viper.GetInt("cache.profile_ttl_minutes")
	cfg.Cache.PostsTTLMinutes = m.viper.GetInt("cache.posts_ttl_minutes")
	cfg.Cache.HashtagTTLMinutes = m.viper.GetInt("cache.hashtag_ttl_minutes")

	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.AuditLogPath = m.viper.GetString("logging.audit_log_path")
	cfg.Logging.AppLogPath = m.viper.GetString("logging.app_log_path")

	m.config = cfg
	return nil
}

// applyEnvOverrides applies environment variable overrides for secrets that
// intentionally live outside the BRANDINT_ namespace (so operators can share
// a Gemini API key across tools without a brandint-specific env var).
func (m *viperManager) applyEnvOverrides() {
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" && m.config.LLM.APIKey == "" {
		m.config.LLM.APIKey = apiKey
	}

	if token := os.Getenv("ACTOR_TOKEN"); token != "" && m.config.Actor.Token == "" {
		m.config.Actor.Token = token
	}
}
