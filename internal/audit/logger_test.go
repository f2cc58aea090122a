package audit

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewLogger(t *testing.T) {
	tmpDir := t.TempDir()

	config := &Config{
		AuditLogPath: filepath.Join(tmpDir, "audit.log"),
		AppLogPath:   filepath.Join(tmpDir, "app.log"),
		MaxSize:      10,
		MaxBackups:   3,
		MaxAge:       7,
		Compress:     false,
		LogLevel:     "info",
	}

	logger, err := NewLogger(config)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	if logger == nil {
		t.Fatal("Expected logger to be non-nil")
	}
}

func TestNewLoggerWithInvalidLevel(t *testing.T) {
	tmpDir := t.TempDir()

	config := &Config{
		AuditLogPath: filepath.Join(tmpDir, "audit.log"),
		AppLogPath:   filepath.Join(tmpDir, "app.log"),
		LogLevel:     "invalid",
	}

	_, err := NewLogger(config)
	if err == nil {
		t.Fatal("Expected error for invalid log level")
	}

	if !strings.Contains(err.Error(), "invalid log level") {
		t.Errorf("Expected 'invalid log level' error, got: %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.AuditLogPath != "logs/audit.log" {
		t.Errorf("Expected audit log path 'logs/audit.log', got %s", config.AuditLogPath)
	}

	if config.AppLogPath != "logs/app.log" {
		t.Errorf("Expected app log path 'logs/app.log', got %s", config.AppLogPath)
	}

	if config.MaxSize != 100 {
		t.Errorf("Expected max size 100, got %d", config.MaxSize)
	}

	if config.MaxBackups != 10 {
		t.Errorf("Expected max backups 10, got %d", config.MaxBackups)
	}

	if config.LogLevel != "info" {
		t.Errorf("Expected log level 'info', got %s", config.LogLevel)
	}
}

func newTestLogger(t *testing.T) (Logger, *Config) {
	t.Helper()
	tmpDir := t.TempDir()

	config := &Config{
		AuditLogPath: filepath.Join(tmpDir, "audit.log"),
		AppLogPath:   filepath.Join(tmpDir, "app.log"),
		MaxSize:      10,
		MaxBackups:   3,
		LogLevel:     "info",
	}

	logger, err := NewLogger(config)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	t.Cleanup(func() { _ = logger.Close() })
	return logger, config
}

func TestLogEvent(t *testing.T) {
	logger, config := newTestLogger(t)
	ctx := context.Background()

	event := NewEvent(EventSessionCreated).
		WithCorrelationID("test-123").
		WithUser("test-user").
		WithResource("test-session", "session").
		WithResult(ResultSuccess)

	if err := logger.Log(ctx, event); err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	content, err := os.ReadFile(config.AuditLogPath)
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}

	logContent := string(content)
	if !strings.Contains(logContent, "test-123") {
		t.Error("Log does not contain correlation ID")
	}
	if !strings.Contains(logContent, "session.created") {
		t.Error("Log does not contain event type")
	}
	if !strings.Contains(logContent, "test-user") {
		t.Error("Log does not contain user")
	}
}

func TestLogSessionLifecycle(t *testing.T) {
	logger, config := newTestLogger(t)
	ctx := context.Background()
	sessionID := "sess-456"

	if err := logger.LogSessionCreated(ctx, sessionID); err != nil {
		t.Fatalf("LogSessionCreated failed: %v", err)
	}
	if err := logger.LogSessionEvicted(ctx, sessionID, "idle_ttl"); err != nil {
		t.Fatalf("LogSessionEvicted failed: %v", err)
	}
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	content, err := os.ReadFile(config.AuditLogPath)
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}

	logContent := string(content)
	if !strings.Contains(logContent, sessionID) {
		t.Error("Log does not contain session ID")
	}
	if !strings.Contains(logContent, "session.created") {
		t.Error("Log does not contain created event")
	}
	if !strings.Contains(logContent, "session.evicted") {
		t.Error("Log does not contain evicted event")
	}
	if !strings.Contains(logContent, "idle_ttl") {
		t.Error("Log does not contain eviction reason")
	}
}

func TestLogToolLifecycle(t *testing.T) {
	logger, config := newTestLogger(t)
	ctx := context.Background()

	hit := true
	if err := logger.LogToolInvoked(ctx, "sess-1", "get_profile", 120*time.Millisecond, &hit); err != nil {
		t.Fatalf("LogToolInvoked failed: %v", err)
	}
	if err := logger.LogToolFailed(ctx, "sess-1", "get_reels", errors.New("upstream timeout")); err != nil {
		t.Fatalf("LogToolFailed failed: %v", err)
	}
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	content, err := os.ReadFile(config.AuditLogPath)
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}

	logContent := string(content)
	if !strings.Contains(logContent, "tool.invoked") {
		t.Error("Log does not contain invoked event")
	}
	if !strings.Contains(logContent, "tool.failed") {
		t.Error("Log does not contain failed event")
	}
	if !strings.Contains(logContent, "get_profile") {
		t.Error("Log does not contain tool name")
	}
	if !strings.Contains(logContent, "upstream timeout") {
		t.Error("Log does not contain failure reason")
	}
}

func TestLogTurnAllFailedAndLoopBreak(t *testing.T) {
	logger, config := newTestLogger(t)
	ctx := context.Background()

	combined := errors.New("get_posts: not found; get_reels: not found")
	if err := logger.LogTurnAllFailed(ctx, "sess-2", 3, combined); err != nil {
		t.Fatalf("LogTurnAllFailed failed: %v", err)
	}
	if err := logger.LogLoopBreak(ctx, "sess-2", 4); err != nil {
		t.Fatalf("LogLoopBreak failed: %v", err)
	}
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	content, err := os.ReadFile(config.AuditLogPath)
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}

	logContent := string(content)
	if !strings.Contains(logContent, "turn.all_failed") {
		t.Error("Log does not contain all_failed event")
	}
	if !strings.Contains(logContent, "turn.loop_break") {
		t.Error("Log does not contain loop_break event")
	}
}

func TestLogSchedulerLifecycle(t *testing.T) {
	logger, config := newTestLogger(t)
	ctx := context.Background()

	if err := logger.LogSchedulerRun(ctx, "monitor_active_posts", 2*time.Second, ResultSuccess); err != nil {
		t.Fatalf("LogSchedulerRun failed: %v", err)
	}
	if err := logger.LogSchedulerSkipped(ctx, "prefetch_hashtags"); err != nil {
		t.Fatalf("LogSchedulerSkipped failed: %v", err)
	}
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	content, err := os.ReadFile(config.AuditLogPath)
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}

	logContent := string(content)
	if !strings.Contains(logContent, "scheduler.run") {
		t.Error("Log does not contain scheduler run event")
	}
	if !strings.Contains(logContent, "scheduler.skipped") {
		t.Error("Log does not contain scheduler skipped event")
	}
	if !strings.Contains(logContent, "monitor_active_posts") {
		t.Error("Log does not contain job name")
	}
}

func TestBufferAutoFlush(t *testing.T) {
	logger, config := newTestLogger(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		event := NewEvent(EventHealthCheck).
			WithCorrelationID("test").
			WithResult(ResultSuccess)

		if err := logger.Log(ctx, event); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	time.Sleep(1500 * time.Millisecond)

	content, err := os.ReadFile(config.AuditLogPath)
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}
	if len(content) == 0 {
		t.Error("Audit log is empty after auto-flush")
	}
}

func TestBufferFullFlush(t *testing.T) {
	logger, config := newTestLogger(t)
	ctx := context.Background()

	for i := 0; i < 105; i++ {
		event := NewEvent(EventHealthCheck).
			WithCorrelationID("test").
			WithResult(ResultSuccess)

		if err := logger.Log(ctx, event); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	content, err := os.ReadFile(config.AuditLogPath)
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}

	lines := strings.Split(string(content), "\n")
	eventCount := 0
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			eventCount++
		}
	}
	if eventCount < 105 {
		t.Errorf("Expected at least 105 events, got %d", eventCount)
	}
}

func TestCorrelationID(t *testing.T) {
	id1 := GenerateCorrelationID()
	id2 := GenerateCorrelationID()
	if id1 == id2 {
		t.Error("Generated correlation IDs should be unique")
	}

	ctx := context.Background()
	if id := GetCorrelationID(ctx); id != "" {
		t.Errorf("Expected empty correlation ID, got %s", id)
	}

	ctx = WithCorrelationID(ctx, "test-correlation-id")
	if id := GetCorrelationID(ctx); id != "test-correlation-id" {
		t.Errorf("Expected 'test-correlation-id', got %s", id)
	}
}

func TestEventBuilderChain(t *testing.T) {
	event := NewEvent(EventToolInvoked).
		WithCorrelationID("corr-123").
		WithUser("scheduler").
		WithResource("monitor_post", "tool").
		WithAction("invoke").
		WithDescription("monitoring tracked post").
		WithResult(ResultSuccess).
		WithDuration(3 * time.Second).
		WithMetadata("reason", "hourly sweep")

	if event.CorrelationID != "corr-123" {
		t.Errorf("Expected correlation ID 'corr-123', got %s", event.CorrelationID)
	}
	if event.User != "scheduler" {
		t.Errorf("Expected user 'scheduler', got %s", event.User)
	}
	if event.Resource != "monitor_post" {
		t.Errorf("Expected resource 'monitor_post', got %s", event.Resource)
	}
	if event.ResourceType != "tool" {
		t.Errorf("Expected resource type 'tool', got %s", event.ResourceType)
	}
	if event.Action != "invoke" {
		t.Errorf("Expected action 'invoke', got %s", event.Action)
	}
	if event.Result != ResultSuccess {
		t.Errorf("Expected result 'success', got %s", event.Result)
	}
	if event.DurationMs != 3000 {
		t.Errorf("Expected duration 3000ms, got %d", event.DurationMs)
	}
	if reason, ok := event.Metadata["reason"].(string); !ok || reason != "hourly sweep" {
		t.Errorf("Expected metadata reason 'hourly sweep', got %v", event.Metadata["reason"])
	}
}

func TestEventJSONSerialization(t *testing.T) {
	event := NewEvent(EventSessionCreated).
		WithCorrelationID("sess-789").
		WithUser("system").
		WithResult(ResultSuccess)

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("Failed to marshal event: %v", err)
	}

	var decoded Event
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal event: %v", err)
	}

	if decoded.CorrelationID != "sess-789" {
		t.Errorf("Expected correlation ID 'sess-789', got %s", decoded.CorrelationID)
	}
	if decoded.User != "system" {
		t.Errorf("Expected user 'system', got %s", decoded.User)
	}
	if decoded.EventType != EventSessionCreated {
		t.Errorf("Expected event type 'session.created', got %s", decoded.EventType)
	}
	if decoded.Result != ResultSuccess {
		t.Errorf("Expected result 'success', got %s", decoded.Result)
	}
}
