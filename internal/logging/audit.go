package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Auditor records every completed template operation.
type Auditor interface {
	Record(entry AuditLogEntry) error
	Close() error
}

// AuditLogEntry is a single template operation audit record.
type AuditLogEntry struct {
	Timestamp   string `json:"timestamp"`
	RequestID   string `json:"request_id,omitempty"`
	Operation   string `json:"operation"`
	Template    string `json:"template"`
	Environment string `json:"environment,omitempty"`
	Bucket      string `json:"bucket,omitempty"`
	Result      string `json:"result"`
	Error       string `json:"error,omitempty"`
	DurationMs  int64  `json:"duration_ms"`
}

// auditLogger appends JSON Lines entries to a single audit log file.
type auditLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewAuditLogger creates an Auditor that appends entries to the file at path.
// An empty path returns a no-op Auditor. The parent directory and file are
// created if they do not exist.
func NewAuditLogger(path string) (Auditor, error) {
	if path == "" {
		return NopAuditor{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create audit log dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	return &auditLogger{file: f}, nil
}

// Record appends entry as one JSON line. A missing timestamp is filled in.
func (a *auditLogger) Record(entry AuditLogEntry) error {
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	data = append(data, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.file.Write(data); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

// Close closes the underlying audit log file.
func (a *auditLogger) Close() error {
	return a.file.Close()
}

// NopAuditor discards every entry.
type NopAuditor struct{}

func (NopAuditor) Record(AuditLogEntry) error { return nil }
func (NopAuditor) Close() error               { return nil }
