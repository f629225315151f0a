package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAuditLoggerCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "audit.log")

	a, err := NewAuditLogger(path)
	require.NoError(t, err)
	defer a.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "audit log file not created in nested dir")
}

func TestNewAuditLoggerEmptyPathIsNop(t *testing.T) {
	a, err := NewAuditLogger("")
	require.NoError(t, err)
	require.IsType(t, NopAuditor{}, a)
	assert.NoError(t, a.Record(AuditLogEntry{Operation: "init"}))
}

func TestAuditLoggerWritesJSONLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	a, err := NewAuditLogger(path)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Record(AuditLogEntry{
		Operation:   "apply",
		Template:    "webapp",
		Environment: "dev",
		Bucket:      "terraform-state-webapp-dev-18f2f873",
		Result:      "success",
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry AuditLogEntry
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.NotEmpty(t, entry.Timestamp, "Timestamp was not filled in")
	assert.Equal(t, "apply", entry.Operation)
	assert.Equal(t, "webapp", entry.Template)
	assert.Empty(t, entry.Error)
}

func TestAuditLoggerAppendsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	for _, op := range []string{"init", "destroy"} {
		a, err := NewAuditLogger(path)
		require.NoError(t, err)
		require.NoError(t, a.Record(AuditLogEntry{Operation: op, Template: "webapp", Result: "success"}))
		require.NoError(t, a.Close())
	}

	assert.Equal(t, 2, countLines(t, path))
}

func TestAuditLoggerConcurrentRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	a, err := NewAuditLogger(path)
	require.NoError(t, err)
	defer a.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = a.Record(AuditLogEntry{Operation: "status", Template: "webapp", Result: "success"})
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, countLines(t, path))
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	n := 0
	for scanner.Scan() {
		n++
		var entry AuditLogEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry), "line %d", n)
	}
	require.NoError(t, scanner.Err())
	return n
}
