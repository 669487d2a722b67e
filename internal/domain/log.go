package domain

import (
	"strings"
	"time"
)

// LogLevel is the severity of an execution log entry.
type LogLevel string

const (
	LogDebug   LogLevel = "debug"
	LogInfo    LogLevel = "info"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
)

const (
	NodeLogLimit      = 100
	RecentLogLimit    = 100
	MaxRecentLogLimit = 500
)

// ParseLogLevel maps user input to a level, defaulting to info.
func ParseLogLevel(s string) LogLevel {
	switch LogLevel(strings.ToLower(strings.TrimSpace(s))) {
	case LogDebug:
		return LogDebug
	case LogWarning, "warn":
		return LogWarning
	case LogError:
		return LogError
	default:
		return LogInfo
	}
}

// ExecutionLog is an append-only journal entry.
type ExecutionLog struct {
	ID        int64     `json:"log_id"`
	NodeID    *int64    `json:"node_id,omitempty"`
	BatchID   *int64    `json:"batch_id,omitempty"`
	ImageID   *int64    `json:"image_id,omitempty"`
	Level     LogLevel  `json:"log_level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// LogEntry is an entry to append. References that no longer resolve are stored as null.
type LogEntry struct {
	NodeID  *int64   `json:"node_id,omitempty"`
	BatchID *int64   `json:"batch_id,omitempty"`
	ImageID *int64   `json:"image_id,omitempty"`
	Level   LogLevel `json:"log_level"`
	Message string   `json:"message"`
}
