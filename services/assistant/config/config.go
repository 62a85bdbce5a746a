// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the assistant service configuration from YAML.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/finsight-ai/finsight/services/assistant/datatypes"
)

// MaxConfigFileSize caps the config file read (1MB).
const MaxConfigFileSize = 1024 * 1024

// =============================================================================
// Types
// =============================================================================

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Weaviate WeaviateConfig `yaml:"weaviate"`
	Badger   BadgerConfig   `yaml:"badger"`
	Embed    EmbedConfig    `yaml:"embed"`
	Rerank   RerankConfig   `yaml:"rerank"`
	LLM      LLMConfig      `yaml:"llm"`
	Turn     TurnConfig     `yaml:"turn"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

// WeaviateConfig locates the vector index.
type WeaviateConfig struct {
	Host   string `yaml:"host" validate:"required,hostname_port"`
	Scheme string `yaml:"scheme" validate:"oneof=http https"`
}

// BadgerConfig locates the fact store.
type BadgerConfig struct {
	Path     string `yaml:"path" validate:"required_unless=InMemory true"`
	InMemory bool   `yaml:"in_memory"`
}

// EmbedConfig configures the embedding backend.
type EmbedConfig struct {
	Model string `yaml:"model"`

	// RequestsPerSecond limits embedding calls; zero means unlimited.
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
}

// RerankConfig configures the cross-encoder scoring service.
type RerankConfig struct {
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`

	// RequestsPerSecond limits scoring calls; zero means unlimited.
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
}

// LLMConfig selects the generation backend.
type LLMConfig struct {
	Backend string `yaml:"backend" validate:"oneof=openai ollama"`
}

// TurnConfig overrides the per-turn defaults service-wide. Zero fields keep
// the built-in defaults.
type TurnConfig struct {
	TopK                   int     `yaml:"top_k" validate:"gte=0"`
	ScoreThreshold         float64 `yaml:"score_threshold" validate:"gte=0,lte=1"`
	MinConfidence          float64 `yaml:"min_confidence" validate:"gte=0,lte=1"`
	ContradictionTolerance float64 `yaml:"contradiction_tolerance" validate:"gte=0"`
	MaxDeviation           float64 `yaml:"max_deviation" validate:"gte=0"`
	DiscrepancyThreshold   float64 `yaml:"discrepancy_threshold" validate:"gte=0"`
}

// =============================================================================
// Loading
// =============================================================================

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server:   ServerConfig{Addr: ":8090"},
		Weaviate: WeaviateConfig{Host: "localhost:8080", Scheme: "http"},
		Badger:   BadgerConfig{Path: "/var/lib/finsight/facts"},
		LLM:      LLMConfig{Backend: "openai"},
	}
}

// Load reads, parses, and validates the YAML config at path.
func Load(path string) (Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
	}
	if info.Size() > MaxConfigFileSize {
		return Config{}, fmt.Errorf("config: %s exceeds %d bytes", path, MaxConfigFileSize)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	slog.Info("Loaded configuration", "path", path, "addr", cfg.Server.Addr, "backend", cfg.LLM.Backend)
	return cfg, nil
}

// Validate runs struct validation over a config.
func Validate(cfg Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("config: validation failed: %w", err)
	}
	return nil
}

// TurnOptions merges the service-wide turn overrides onto the built-in
// defaults.
func (c Config) TurnOptions() datatypes.TurnOptions {
	opts := datatypes.DefaultTurnOptions()
	if c.Turn.TopK > 0 {
		opts.TopK = c.Turn.TopK
	}
	if c.Turn.ScoreThreshold > 0 {
		opts.ScoreThreshold = c.Turn.ScoreThreshold
	}
	if c.Turn.MinConfidence > 0 {
		opts.MinConfidence = c.Turn.MinConfidence
	}
	if c.Turn.ContradictionTolerance > 0 {
		opts.ContradictionTolerance = c.Turn.ContradictionTolerance
	}
	if c.Turn.MaxDeviation > 0 {
		opts.MaxDeviation = c.Turn.MaxDeviation
	}
	if c.Turn.DiscrepancyThreshold > 0 {
		opts.DiscrepancyThreshold = c.Turn.DiscrepancyThreshold
	}
	return opts
}
