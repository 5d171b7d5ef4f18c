package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/4xmen/wasteless/internal/db"
	"github.com/4xmen/wasteless/internal/models"
	"github.com/4xmen/wasteless/internal/store"
	"github.com/4xmen/wasteless/pkg/config"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input int64
		want  string
	}{
		{input: 0, want: "0 B"},
		{input: 1023, want: "1023 B"},
		{input: 1024, want: "1.0 KiB"},
		{input: 1536, want: "1.5 KiB"},
		{input: 1048576, want: "1.0 MiB"},
	}

	for _, tt := range tests {
		got := formatBytes(tt.input)
		if got != tt.want {
			t.Fatalf("formatBytes(%d) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFormatTimestamp(t *testing.T) {
	if got := formatTimestamp(time.Time{}); got != "n/a" {
		t.Fatalf("formatTimestamp(zero) = %q, want %q", got, "n/a")
	}

	ts := time.Date(2026, 2, 18, 10, 0, 0, 0, time.UTC)
	if got := formatTimestamp(ts); got != "2026-02-18T10:00:00Z" {
		t.Fatalf("formatTimestamp(value) = %q", got)
	}
}

func TestDirUsage(t *testing.T) {
	root := t.TempDir()

	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir nested: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "file1.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("write file1: %v", err)
	}
	if err := os.WriteFile(filepath.Join(nested, "file2.txt"), []byte("go"), 0o644); err != nil {
		t.Fatalf("write file2: %v", err)
	}

	bytes, files, err := dirUsage(root)
	if err != nil {
		t.Fatalf("dirUsage returned error: %v", err)
	}
	if files != 2 {
		t.Fatalf("dirUsage files = %d, want 2", files)
	}
	if bytes != 7 {
		t.Fatalf("dirUsage bytes = %d, want 7", bytes)
	}
}

func TestParseStatusArgs(t *testing.T) {
	opts, err := parseStatusArgs([]string{"--json"})
	if err != nil {
		t.Fatalf("parseStatusArgs returned error: %v", err)
	}
	if !opts.JSON {
		t.Fatalf("parseStatusArgs JSON = false, want true")
	}

	if _, err := parseStatusArgs([]string{"--bad"}); err == nil {
		t.Fatalf("parseStatusArgs expected error for unknown flag")
	}
}

func TestPrintStatusJSON(t *testing.T) {
	status := appStatus{
		GeneratedAt:     time.Date(2026, 2, 18, 10, 0, 0, 0, time.UTC),
		Environment:     "development",
		Port:            "5000",
		Datastore:       "sqlite",
		DatabasePath:    "/tmp/wasteless.db",
		FileStoragePath: "/tmp/uploads",
		Stats:           store.Stats{Users: 3},
	}

	var out bytes.Buffer
	if err := printStatusJSON(&out, status); err != nil {
		t.Fatalf("printStatusJSON returned error: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(out.Bytes(), &payload); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}

	if payload["environment"] != "development" {
		t.Fatalf("unexpected environment: %#v", payload["environment"])
	}
	if users := payload["metrics"].(map[string]any)["users"]; users != float64(3) {
		t.Fatalf("unexpected users: %#v", users)
	}
}

func TestCollectStatusFromSQLite(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Environment:     "development",
		Port:            "5000",
		Datastore:       "sqlite",
		DatabasePath:    filepath.Join(dir, "wasteless.db"),
		MediaBackend:    "local",
		FileStoragePath: filepath.Join(dir, "uploads"),
	}

	status := collectStatus(context.Background(), cfg)
	if status.DBMetricsReady || !strings.Contains(status.DBWarning, "database unavailable") {
		t.Fatalf("missing database should be reported, got %+v", status)
	}

	database, err := db.New(cfg.DatabasePath)
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	u := &models.User{Username: "alice", Email: "alice@example.com", PasswordHash: "x"}
	if err := database.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	database.Close()

	status = collectStatus(context.Background(), cfg)
	if !status.DBMetricsReady {
		t.Fatalf("metrics not ready: %s", status.DBWarning)
	}
	if status.Stats.Users != 1 {
		t.Fatalf("Users = %d, want 1", status.Stats.Users)
	}
	if status.DBSize == 0 {
		t.Fatalf("DBSize = 0, want database file size")
	}

	var out bytes.Buffer
	printStatus(&out, status)
	if !strings.Contains(out.String(), "Users              : 1") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
}
