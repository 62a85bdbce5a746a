// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Compile-time interface implementation check.
var _ RelevanceModel = (*CrossEncoderClient)(nil)

// Retry configuration for scoring calls. Retries use exponential backoff
// (1s, 2s, 4s); a retryable failure past the last attempt degrades the
// reranker to pass-through, it never fails the turn.
const (
	maxScoreRetries   = 2
	initialRetryDelay = 1 * time.Second
)

// ScoringError wraps HTTP failures from the cross-encoder service with
// enough structure to decide retryability.
type ScoringError struct {
	StatusCode int
	Message    string
	Retryable  bool
}

// Error implements the error interface.
func (e *ScoringError) Error() string {
	return fmt.Sprintf("cross-encoder error (status %d): %s", e.StatusCode, e.Message)
}

// CrossEncoderClient scores query-document pairs against a cross-encoder
// inference service over HTTP. The service contract is a single POST
// endpoint taking {"query": ..., "texts": [...]} and returning
// {"scores": [...]} with one probability per text.
//
// Thread Safety: Safe for concurrent use.
type CrossEncoderClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewCrossEncoderClient creates a scoring client. The timeout applies per
// attempt; a timed-out attempt is treated exactly like a failed call.
func NewCrossEncoderClient(baseURL string, timeout time.Duration, callsPerSecond float64) *CrossEncoderClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if callsPerSecond <= 0 {
		callsPerSecond = 20
	}
	return &CrossEncoderClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(callsPerSecond), int(callsPerSecond)+1),
	}
}

type scoreRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type scoreResponse struct {
	Scores []float64 `json:"scores"`
}

// ScorePairs implements RelevanceModel.
func (c *CrossEncoderClient) ScorePairs(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("cross-encoder rate limit wait: %w", err)
	}

	var lastErr error
	delay := initialRetryDelay
	for attempt := 0; attempt <= maxScoreRetries; attempt++ {
		if attempt > 0 {
			slog.Info("retrying cross-encoder scoring", "attempt", attempt, "lastError", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		scores, err := c.callOnce(ctx, query, texts)
		if err == nil {
			return scores, nil
		}
		lastErr = err
		if se, ok := err.(*ScoringError); ok && !se.Retryable {
			return nil, err
		}
	}
	return nil, fmt.Errorf("cross-encoder scoring failed after %d attempts: %w", maxScoreRetries+1, lastErr)
}

// callOnce performs a single scoring request.
func (c *CrossEncoderClient) callOnce(ctx context.Context, query string, texts []string) ([]float64, error) {
	payload, err := json.Marshal(scoreRequest{Query: query, Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scoring request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/score", bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create scoring request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("cross-encoder request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read scoring response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ScoringError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Retryable:  retryableStatus(resp.StatusCode),
		}
	}

	var parsed scoreResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse scoring response: %w", err)
	}
	if len(parsed.Scores) != len(texts) {
		return nil, fmt.Errorf("cross-encoder returned %d scores for %d texts", len(parsed.Scores), len(texts))
	}
	return parsed.Scores, nil
}

func retryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
