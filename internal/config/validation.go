package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
// A missing LLM API key is always included — it is fatal on Load, matching
// the server's "missing LLM key fails at startup, not first request" rule.
func (c *Config) Validate() []error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.Server.Port),
		})
	}

	if c.Store.MongoURI == "" {
		errs = append(errs, &ValidationError{
			Field:   "store.mongo_uri",
			Message: "mongo_uri is required",
		})
	}

	if c.Store.Database == "" {
		errs = append(errs, &ValidationError{
			Field:   "store.database",
			Message: "database is required",
		})
	}

	if c.Store.ConnectTimeout < 1 {
		errs = append(errs, &ValidationError{
			Field:   "store.connect_timeout",
			Message: fmt.Sprintf("connect_timeout must be at least 1 second, got %d", c.Store.ConnectTimeout),
		})
	}

	if c.LLM.APIKey == "" {
		errs = append(errs, &ValidationError{
			Field:   "llm.api_key",
			Message: "LLM API key is required (config llm.api_key, BRANDINT_LLM_API_KEY, or GEMINI_API_KEY)",
		})
	}

	if c.LLM.Model == "" {
		errs = append(errs, &ValidationError{
			Field:   "llm.model",
			Message: "LLM model is required",
		})
	}

	if c.Actor.DefaultTimeout < 1 {
		errs = append(errs, &ValidationError{
			Field:   "actor.default_timeout",
			Message: fmt.Sprintf("default_timeout must be at least 1 second, got %d", c.Actor.DefaultTimeout),
		})
	}

	if c.Session.MaxSessions < 1 {
		errs = append(errs, &ValidationError{
			Field:   "session.max_sessions",
			Message: fmt.Sprintf("max_sessions must be at least 1, got %d", c.Session.MaxSessions),
		})
	}

	if c.Session.IdleTTLMinutes < 1 {
		errs = append(errs, &ValidationError{
			Field:   "session.idle_ttl_minutes",
			Message: fmt.Sprintf("idle_ttl_minutes must be at least 1, got %d", c.Session.IdleTTLMinutes),
		})
	}

	if c.Scheduler.ThrottleMs < 0 {
		errs = append(errs, &ValidationError{
			Field:   "scheduler.throttle_ms",
			Message: fmt.Sprintf("throttle_ms cannot be negative, got %d", c.Scheduler.ThrottleMs),
		})
	}

	for _, ttl := range []struct {
		field string
		value int
	}{
		{"cache.profile_ttl_minutes", c.Cache.ProfileTTLMinutes},
		{"cache.posts_ttl_minutes", c.Cache.PostsTTLMinutes},
		{"cache.hashtag_ttl_minutes", c.Cache.HashtagTTLMinutes},
	} {
		if ttl.value < 0 {
			errs = append(errs, &ValidationError{
				Field:   ttl.field,
				Message: fmt.Sprintf("%s cannot be negative, got %d", ttl.field, ttl.value),
			})
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}

	return errs
}
