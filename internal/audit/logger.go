package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger defines the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *Event) error

	// LogSession logs session lifecycle events
	LogSessionCreated(ctx context.Context, sessionID string) error
	LogSessionEvicted(ctx context.Context, sessionID, reason string) error

	// LogTool logs per-call tool dispatch outcomes
	LogToolInvoked(ctx context.Context, sessionID, tool string, duration time.Duration, cacheHit *bool) error
	LogToolFailed(ctx context.Context, sessionID, tool string, err error) error

	// LogTurnAllFailed logs a turn short-circuited because every tool call
	// failed; combined aggregates the per-call errors (see
	// internal/orchestrator, which builds combined via multierr.Combine).
	LogTurnAllFailed(ctx context.Context, sessionID string, turn int, combined error) error

	// LogLoopBreak logs a turn terminated by the repeat-signature breaker.
	LogLoopBreak(ctx context.Context, sessionID string, turn int) error

	// LogScheduler logs scheduler job executions
	LogSchedulerRun(ctx context.Context, job string, duration time.Duration, result Result) error
	LogSchedulerSkipped(ctx context.Context, job string) error

	// LogServerStarted / LogServerShutdown log process lifecycle
	LogServerStarted(ctx context.Context, addr string) error
	LogServerShutdown(ctx context.Context) error

	// Sync flushes buffered log entries
	Sync() error

	// Close closes the audit logger
	Close() error
}

// Config represents audit logger configuration
type Config struct {
	// AuditLogPath is the path to the audit log file
	AuditLogPath string

	// AppLogPath is the path to the application log file
	AppLogPath string

	// MaxSize is the maximum size in megabytes before rotation
	MaxSize int

	// MaxBackups is the maximum number of old log files to retain
	MaxBackups int

	// MaxAge is the maximum number of days to retain old log files
	MaxAge int

	// Compress determines if rotated files should be compressed
	Compress bool

	// LogLevel is the minimum log level (debug, info, warn, error)
	LogLevel string
}

// DefaultConfig returns default audit logger configuration
func DefaultConfig() *Config {
	return &Config{
		AuditLogPath: "logs/audit.log",
		AppLogPath:   "logs/app.log",
		MaxSize:      100, // megabytes
		MaxBackups:   10,
		MaxAge:       30, // days
		Compress:     true,
		LogLevel:     "info",
	}
}

// auditLogger implements the Logger interface
type auditLogger struct {
	appLogger   *zap.Logger
	auditLogger *zap.Logger
	config      *Config
	mu          sync.Mutex
	buffer      []*Event
	flushTicker *time.Ticker
	stopCh      chan struct{}
}

// NewLogger creates a new audit logger
func NewLogger(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	// Parse log level
	level, err := zapcore.ParseLevel(config.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", config.LogLevel, err)
	}

	// Create encoder config
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	// Create application logger with rotation
	appRotator := &lumberjack.Logger{
		Filename:   config.AppLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	appCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(appRotator),
		level,
	)

	appLogger := zap.New(appCore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	// Create audit logger with rotation (always INFO level, append-only)
	auditRotator := &lumberjack.Logger{
		Filename:   config.AuditLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	auditCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(auditRotator),
		zapcore.InfoLevel, // Audit logs are always INFO level
	)

	auditZapLogger := zap.New(auditCore)

	// Create the logger instance
	logger := &auditLogger{
		appLogger:   appLogger,
		auditLogger: auditZapLogger,
		config:      config,
		buffer:      make([]*Event, 0, 100),
		flushTicker: time.NewTicker(1 * time.Second),
		stopCh:      make(chan struct{}),
	}

	// Start auto-flush goroutine
	go logger.autoFlush()

	return logger, nil
}

// Log logs an audit event
func (l *auditLogger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Add to buffer
	l.buffer = append(l.buffer, event)

	// Flush if buffer is full
	if len(l.buffer) >= 100 {
		return l.flushLocked()
	}

	return nil
}

// flushLocked flushes the buffer (caller must hold lock)
func (l *auditLogger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}

	// Write all buffered events
	for _, event := range l.buffer {
		eventJSON, err := json.Marshal(event)
		if err != nil {
			l.appLogger.Error("failed to marshal audit event",
				zap.Error(err),
				zap.String("event_type", string(event.EventType)),
			)
			continue
		}

		l.auditLogger.Info(string(eventJSON),
			zap.String("correlation_id", event.CorrelationID),
			zap.String("event_type", string(event.EventType)),
			zap.String("result", string(event.Result)),
		)
	}

	// Clear buffer
	l.buffer = l.buffer[:0]

	return nil
}

// autoFlush periodically flushes the buffer
func (l *auditLogger) autoFlush() {
	for {
		select {
		case <-l.flushTicker.C:
			l.mu.Lock()
			_ = l.flushLocked()
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

// LogSessionCreated logs a new session being admitted to the store.
func (l *auditLogger) LogSessionCreated(ctx context.Context, sessionID string) error {
	event := NewEvent(EventSessionCreated).
		WithCorrelationID(sessionID).
		WithResult(ResultSuccess).
		WithDescription(fmt.Sprintf("session %s created", sessionID))

	return l.Log(ctx, event)
}

// LogSessionEvicted logs a session leaving the store, by reason
// ("idle_ttl" or "lru_pressure").
func (l *auditLogger) LogSessionEvicted(ctx context.Context, sessionID, reason string) error {
	event := NewEvent(EventSessionEvicted).
		WithCorrelationID(sessionID).
		WithResult(ResultSuccess).
		WithMetadata("reason", reason).
		WithDescription(fmt.Sprintf("session %s evicted (%s)", sessionID, reason))

	return l.Log(ctx, event)
}

// LogToolInvoked logs one successful tool dispatch.
func (l *auditLogger) LogToolInvoked(ctx context.Context, sessionID, tool string, duration time.Duration, cacheHit *bool) error {
	event := NewEvent(EventToolInvoked).
		WithCorrelationID(sessionID).
		WithResource(tool, "tool").
		WithResult(ResultSuccess).
		WithDuration(duration).
		WithDescription(fmt.Sprintf("tool %s invoked", tool))

	if cacheHit != nil {
		event.WithMetadata("cacheHit", *cacheHit)
	}

	return l.Log(ctx, event)
}

// LogToolFailed logs one failed tool dispatch.
func (l *auditLogger) LogToolFailed(ctx context.Context, sessionID, tool string, err error) error {
	event := NewEvent(EventToolFailed).
		WithCorrelationID(sessionID).
		WithResource(tool, "tool").
		WithError(err, "tool_error").
		WithDescription(fmt.Sprintf("tool %s failed", tool))

	return l.Log(ctx, event)
}

// LogTurnAllFailed logs a turn short-circuited because every call failed.
// combined is expected to be built with multierr.Combine over the turn's
// per-call errors (internal/orchestrator's dispatchTurn).
func (l *auditLogger) LogTurnAllFailed(ctx context.Context, sessionID string, turn int, combined error) error {
	event := NewEvent(EventTurnAllFailed).
		WithCorrelationID(sessionID).
		WithError(combined, "all_tools_failed").
		WithMetadata("turn", turn).
		WithDescription(fmt.Sprintf("turn %d: every tool call failed", turn))

	return l.Log(ctx, event)
}

// LogLoopBreak logs a turn terminated by the repeat-signature breaker.
func (l *auditLogger) LogLoopBreak(ctx context.Context, sessionID string, turn int) error {
	event := NewEvent(EventLoopBreak).
		WithCorrelationID(sessionID).
		WithResult(ResultFailure).
		WithMetadata("turn", turn).
		WithDescription(fmt.Sprintf("turn %d: repeated tool signature, loop broken", turn))

	return l.Log(ctx, event)
}

// LogSchedulerRun logs one scheduler job execution.
func (l *auditLogger) LogSchedulerRun(ctx context.Context, job string, duration time.Duration, result Result) error {
	event := NewEvent(EventSchedulerRun).
		WithResource(job, "job").
		WithResult(result).
		WithDuration(duration).
		WithDescription(fmt.Sprintf("scheduler job %s ran", job))

	return l.Log(ctx, event)
}

// LogSchedulerSkipped logs a tick skipped because the previous run of the
// same job had not yet completed.
func (l *auditLogger) LogSchedulerSkipped(ctx context.Context, job string) error {
	event := NewEvent(EventSchedulerSkipped).
		WithResource(job, "job").
		WithResult(ResultPending).
		WithDescription(fmt.Sprintf("scheduler job %s skipped: previous run still in flight", job))

	return l.Log(ctx, event)
}

// LogServerStarted logs process startup.
func (l *auditLogger) LogServerStarted(ctx context.Context, addr string) error {
	event := NewEvent(EventServerStarted).
		WithResult(ResultSuccess).
		WithDescription(fmt.Sprintf("server listening on %s", addr))

	return l.Log(ctx, event)
}

// LogServerShutdown logs graceful process shutdown.
func (l *auditLogger) LogServerShutdown(ctx context.Context) error {
	event := NewEvent(EventServerShutdown).
		WithResult(ResultSuccess).
		WithDescription("server shutting down")

	return l.Log(ctx, event)
}

// Sync flushes buffered log entries
func (l *auditLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.flushLocked(); err != nil {
		return err
	}

	if err := l.auditLogger.Sync(); err != nil {
		return err
	}

	return l.appLogger.Sync()
}

// Close closes the audit logger
func (l *auditLogger) Close() error {
	close(l.stopCh)
	l.flushTicker.Stop()

	if err := l.Sync(); err != nil {
		return err
	}

	return nil
}

// GetCorrelationID extracts correlation ID from context
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value("correlation_id").(string); ok {
		return id
	}
	return ""
}

// WithCorrelationID adds correlation ID to context
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, "correlation_id", id)
}

// GenerateCorrelationID generates a new correlation ID
func GenerateCorrelationID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), os.Getpid())
}
