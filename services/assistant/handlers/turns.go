// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers exposes the assistant pipeline over HTTP.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/finsight-ai/finsight/services/assistant"
)

var turnsTracer = otel.Tracer("finsight.assistant.handlers")

// HandleTurn serves POST /v1/turns: one user turn through the pipeline.
//
// # Description
//
// The request body is an assistant.TurnRequest. Refusals (low confidence,
// contradiction, missing data) return 200 with the decision attached; the
// caller distinguishes them by decision.should_answer. Only malformed
// requests (400) and backend failures (502/500) are HTTP errors.
func HandleTurn(a *assistant.Assistant) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := turnsTracer.Start(c.Request.Context(), "HandleTurn")
		defer span.End()

		var req assistant.TurnRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "invalid request body")
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if req.Query == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "query must not be empty"})
			return
		}

		result, err := a.HandleTurn(ctx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			switch {
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				c.JSON(http.StatusGatewayTimeout, gin.H{"error": "turn cancelled"})
			default:
				slog.Error("turn failed", "error", err)
				c.JSON(http.StatusBadGateway, gin.H{"error": "turn processing failed"})
			}
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// HealthCheck serves GET /healthz.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
