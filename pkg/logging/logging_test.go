// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupDefaults(t *testing.T) {
	logger, closeFn, err := Setup(Config{})

	require.NoError(t, err)
	require.NotNil(t, logger)
	require.NotNil(t, closeFn)
	assert.NoError(t, closeFn())
	assert.True(t, logger.Enabled(t.Context(), slog.LevelInfo))
	assert.False(t, logger.Enabled(t.Context(), slog.LevelDebug))
}

func TestSetupLevels(t *testing.T) {
	tests := []struct {
		level   string
		enabled slog.Level
		muted   slog.Level
	}{
		{"debug", slog.LevelDebug, slog.LevelDebug - 4},
		{"info", slog.LevelInfo, slog.LevelDebug},
		{"warn", slog.LevelWarn, slog.LevelInfo},
		{"error", slog.LevelError, slog.LevelWarn},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, closeFn, err := Setup(Config{Level: tt.level, Format: "text"})
			require.NoError(t, err)
			defer closeFn()
			assert.True(t, logger.Enabled(t.Context(), tt.enabled))
			assert.False(t, logger.Enabled(t.Context(), tt.muted))
		})
	}
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	_, _, err := Setup(Config{Level: "loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown level")
}

func TestSetupRejectsUnknownFormat(t *testing.T) {
	_, _, err := Setup(Config{Format: "xml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}

func TestSetupTeesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "finsight.log")
	logger, closeFn, err := Setup(Config{FilePath: path, Service: "assistant"})
	require.NoError(t, err)

	logger.Info("startup complete", "addr", ":8090")
	require.NoError(t, closeFn())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "startup complete")
	assert.Contains(t, string(raw), `"service":"assistant"`)
}

func TestSetupUnwritableFile(t *testing.T) {
	_, _, err := Setup(Config{FilePath: filepath.Join(t.TempDir(), "missing", "finsight.log")})
	require.Error(t, err)
}

func TestSetupInstallsDefault(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	logger, closeFn, err := Setup(Config{Format: "text", Level: "warn"})
	require.NoError(t, err)
	defer closeFn()

	assert.Equal(t, logger, slog.Default())
}
