// Package config provides configuration management for the brand
// intelligence conversational server.
//
// Responsibilities:
//   - Load configuration from a YAML file and environment variables
//   - Validate configuration on startup
//   - Provide runtime access to all configuration
//   - Support configuration reloading (for settings that are safe to change live)
//   - Manage sensitive data (API keys, tokens)
//   - Establish reasonable defaults
//
// Configuration Sources (priority order, high to low):
//  1. Environment variables (BRANDINT_* prefix)
//  2. YAML config file (default: /etc/brandint/config.yaml)
//  3. Built-in defaults (lowest priority)
//
// Main Configuration Sections:
//
//  1. Server
//     - port: Listen port (default 8081)
//     - allowed_origins: CORS origins permitted to call the SSE/REST endpoints
//
//  2. Store
//     - mongo_uri: MongoDB connection string
//     - database: database name
//     - connect_timeout: connection timeout, seconds
//
//  3. LLM
//     - api_key: Gemini API key (BRANDINT_LLM_API_KEY / GEMINI_API_KEY)
//     - model: model name (e.g. gemini-2.0-flash)
//
//  4. Actor
//     - base_url: scraping-actor platform base URL
//     - token: bearer token
//     - default_timeout: per-call timeout, seconds
//
//  5. Session
//     - max_sessions: LRU capacity
//     - idle_ttl_minutes: idle eviction threshold
//
//  6. Scheduler
//     - enabled: run background jobs at all
//     - throttle_ms: inter-call delay between actor calls within a job run
//
//  7. Cache
//     - profile_ttl_minutes, posts_ttl_minutes, hashtag_ttl_minutes
//
//  8. Logging
//     - level: "debug" | "info" | "warn" | "error"
//     - audit_log_path, app_log_path
package config

import "context"

// Config holds every setting the server reads at startup or on reload.
type Config struct {
	Server struct {
		Port              int
		AllowedOrigins    []string
		RequestsPerMinute int
	}

	Store struct {
		MongoURI       string
		Database       string
		ConnectTimeout int // seconds
	}

	LLM struct {
		APIKey string
		Model  string
	}

	Actor struct {
		BaseURL        string
		Token          string
		DefaultTimeout int // seconds
	}

	Session struct {
		MaxSessions    int
		IdleTTLMinutes int
	}

	Scheduler struct {
		Enabled    bool
		ThrottleMs int
	}

	Cache struct {
		ProfileTTLMinutes int
		PostsTTLMinutes   int
		HashtagTTLMinutes int
	}

	Logging struct {
		Level        string
		AuditLogPath string
		AppLogPath   string
	}
}

// Manager defines the interface for configuration access.
type Manager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration changes and reloads (if supported).
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources.
	Reload(ctx context.Context) error
}

// NewManager creates a new configuration manager reading configPath.
func NewManager(configPath string) (Manager, error) {
	mgr := &viperManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}

// NewManagerWithDefaults creates a config manager with the default config path.
func NewManagerWithDefaults() (Manager, error) {
	return NewManager("/etc/brandint/config.yaml")
}
