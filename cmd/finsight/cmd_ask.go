// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/finsight-ai/finsight/services/assistant"
	"github.com/finsight-ai/finsight/services/assistant/datatypes"
)

var (
	askEntities []string
	askMetrics  []string
	askTimeout  time.Duration
)

var askCmd = &cobra.Command{
	Use:   "ask [query]",
	Short: "Run one query through the pipeline from the command line",
	Long: `Runs one turn end to end and prints the answer with its confidence
report. Entity and metric hints stand in for the upstream intent parser,
which only runs in the service deployment.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringSliceVar(&askEntities, "entity", nil, "entity ticker hint (repeatable)")
	askCmd.Flags().StringSliceVar(&askMetrics, "metric", nil, "metric id hint (repeatable)")
	askCmd.Flags().DurationVar(&askTimeout, "timeout", 60*time.Second, "turn timeout")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, cleanup, err := buildAssistant(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(cmd.Context(), askTimeout)
	defer cancel()

	query := strings.Join(args, " ")
	result, err := a.HandleTurn(ctx, assistant.TurnRequest{
		Query: query,
		Intent: datatypes.ParsedIntent{
			Entities: askEntities,
			Metrics:  askMetrics,
		},
	})
	if err != nil {
		return err
	}

	fmt.Println(result.AnswerText)
	fmt.Println()
	if !result.Decision.ShouldAnswer {
		fmt.Printf("Refused: %s\n", result.Decision.Reason)
		return nil
	}
	fmt.Printf("Confidence: %.0f%% (%s)\n", result.Confidence.Score*100, result.Confidence.Tone)
	if len(result.Citations) > 0 {
		fmt.Print("Sources:")
		for _, ref := range result.Citations {
			fmt.Printf(" [%s]", ref.SourceID)
		}
		fmt.Println()
	}
	for _, anomaly := range result.Anomalies {
		fmt.Printf("note: %s\n", anomaly)
	}
	return nil
}
