// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-ai/finsight/services/assistant/datatypes"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Validate(Default()))
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
weaviate:
  host: "weaviate:8080"
  scheme: https
llm:
  backend: ollama
turn:
  top_k: 25
  min_confidence: 0.35
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "weaviate:8080", cfg.Weaviate.Host)
	assert.Equal(t, "https", cfg.Weaviate.Scheme)
	assert.Equal(t, "ollama", cfg.LLM.Backend)
	// Untouched sections keep their defaults.
	assert.Equal(t, "/var/lib/finsight/facts", cfg.Badger.Path)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stat")
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a mapping")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad scheme", "weaviate:\n  scheme: ftp\n"},
		{"bad backend", "llm:\n  backend: bard\n"},
		{"empty addr", "server:\n  addr: \"\"\n"},
		{"negative top_k", "turn:\n  top_k: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "validation failed")
		})
	}
}

func TestLoadRejectsOversizedFile(t *testing.T) {
	big := make([]byte, MaxConfigFileSize+1)
	for i := range big {
		big[i] = '#'
	}
	path := writeConfig(t, string(big))

	_, err := Load(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestTurnOptionsMergesOntoDefaults(t *testing.T) {
	cfg := Default()
	cfg.Turn.TopK = 25
	cfg.Turn.MaxDeviation = 0.02

	opts := cfg.TurnOptions()
	defaults := datatypes.DefaultTurnOptions()

	assert.Equal(t, 25, opts.TopK)
	assert.InDelta(t, 0.02, opts.MaxDeviation, 1e-9)
	// Unset overrides keep built-in defaults.
	assert.Equal(t, defaults.MinConfidence, opts.MinConfidence)
	assert.Equal(t, defaults.ScoreThreshold, opts.ScoreThreshold)
	assert.Equal(t, defaults.MaxSteps, opts.MaxSteps)
	assert.True(t, opts.RerankEnabled)
	assert.True(t, opts.MultiHopEnabled)
}
