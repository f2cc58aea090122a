package config

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Port = 8081
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	cfg.Server.RequestsPerMinute = 60

	cfg.Store.MongoURI = "mongodb://localhost:27017"
	cfg.Store.Database = "brandint"
	cfg.Store.ConnectTimeout = 10

	cfg.LLM.Model = "gemini-2.0-flash"

	cfg.Actor.DefaultTimeout = 60

	cfg.Session.MaxSessions = 500
	cfg.Session.IdleTTLMinutes = 30

	cfg.Scheduler.Enabled = true
	cfg.Scheduler.ThrottleMs = 2000

	cfg.Cache.ProfileTTLMinutes = 60
	cfg.Cache.PostsTTLMinutes = 30
	cfg.Cache.HashtagTTLMinutes = 120

	cfg.Logging.Level = "info"
	cfg.Logging.AuditLogPath = "logs/audit.log"
	cfg.Logging.AppLogPath = "logs/app.log"

	return cfg
}
