// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/finsight-ai/finsight/pkg/logging"
	"github.com/finsight-ai/finsight/services/assistant/config"
)

var (
	cfg        config.Config
	configPath string
	logLevel   string
	logFormat  string

	closeLogs = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "finsight",
	Short: "Finsight conversational financial-data assistant",
	Long: `Finsight answers financial questions from a verified evidence base:
structured facts, curated filings narrative, and per-conversation uploads.
Every numeric claim in an answer is checked against the fact store before
the answer leaves the service.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (defaults apply when unset)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format: json or text")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		_, closeFn, err := logging.Setup(logging.Config{
			Level:   logLevel,
			Format:  logFormat,
			Service: "finsight",
		})
		if err != nil {
			log.Fatalf("Error configuring logging: %v", err)
		}
		closeLogs = closeFn

		if configPath == "" {
			cfg = config.Default()
			return
		}
		loaded, err := config.Load(configPath)
		if err != nil {
			log.Fatalf("Error loading config: %v", err)
		}
		cfg = loaded
	}

	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if err := closeLogs(); err != nil {
			os.Stderr.WriteString("error closing log file: " + err.Error() + "\n")
		}
	}
}
