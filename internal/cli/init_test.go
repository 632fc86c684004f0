package cli

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"kakeibo/internal/config"
	"kakeibo/internal/log"
)

func TestSetupLoggerHonorsLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")
	logger := SetupLogger(log.ComponentWorker)
	if logger.Component() != log.ComponentWorker {
		t.Fatalf("component %q", logger.Component())
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug should be enabled")
	}
}

func TestNewSheetsClientErrors(t *testing.T) {
	ctx := context.Background()
	if _, err := NewSheetsClient(ctx, &config.Config{}); err == nil {
		t.Fatal("expected error when no spreadsheet is configured")
	}
	cfg := &config.Config{
		GoogleSpreadsheetID:      "sheet",
		GoogleServiceAccountFile: filepath.Join(t.TempDir(), "missing.json"),
	}
	if _, err := NewSheetsClient(ctx, cfg); err == nil {
		t.Fatal("expected error for missing credentials file")
	}
}
