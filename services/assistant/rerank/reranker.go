// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package rerank re-scores (query, candidate) pairs with a cross-attention
// relevance model to sharpen retrieval ordering before fusion.
package rerank

import (
	"context"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/finsight-ai/finsight/services/assistant/datatypes"
)

var rerankTracer = otel.Tracer("finsight.assistant.rerank")

// RelevanceModel scores query-text pairs with cross-attention over both
// inputs. Scores are in [0,1]. Implementations must be deterministic for
// fixed weights and inputs.
//
// Thread Safety: Implementations must be safe for concurrent use.
type RelevanceModel interface {
	// ScorePairs scores the query against each text, returning one score
	// per text in input order.
	ScorePairs(ctx context.Context, query string, texts []string) ([]float64, error)
}

// Reranker applies a relevance model to retrieval candidates.
//
// Thread Safety: Safe for concurrent use (stateless after construction).
type Reranker struct {
	model RelevanceModel
}

// NewReranker creates a Reranker. A nil model puts the reranker permanently
// in pass-through mode.
func NewReranker(model RelevanceModel) *Reranker {
	return &Reranker{model: model}
}

// Rerank re-scores, sorts, and filters candidates.
//
// # Description
//
// Each candidate's text is scored against the query by the relevance model;
// the final score is 0.3*raw + 0.7*rerank. The output is sorted by
// descending rerank-blended score, truncated to topK, and stripped of
// candidates below scoreThreshold.
//
// If the model is unavailable (nil, error, or timeout), candidates pass
// through with rerank_score = raw_score — same set size, reordered and
// filtered on raw score only. A model failure never aborts the turn.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []datatypes.Candidate, topK int, scoreThreshold float64) []datatypes.Candidate {
	ctx, span := rerankTracer.Start(ctx, "Reranker.Rerank")
	defer span.End()
	span.SetAttributes(attribute.Int("candidates", len(candidates)))

	if len(candidates) == 0 {
		return candidates
	}

	scores, degraded := r.scoreAll(ctx, query, candidates)
	span.SetAttributes(attribute.Bool("degraded", degraded))

	out := make([]datatypes.Candidate, len(candidates))
	copy(out, candidates)
	for i := range out {
		out[i].RerankScore = scores[i]
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].BlendedScore() > out[j].BlendedScore()
	})

	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	if scoreThreshold > 0 {
		kept := out[:0]
		for _, c := range out {
			if c.BlendedScore() >= scoreThreshold {
				kept = append(kept, c)
			}
		}
		out = out[:len(kept)]
	}

	span.SetAttributes(attribute.Int("kept", len(out)))
	return out
}

// scoreAll runs the relevance model, degrading to raw scores on any failure.
func (r *Reranker) scoreAll(ctx context.Context, query string, candidates []datatypes.Candidate) (scores []float64, degraded bool) {
	rawScores := make([]float64, len(candidates))
	for i, c := range candidates {
		rawScores[i] = c.RawScore
	}
	if r.model == nil {
		return rawScores, true
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text
	}

	modelScores, err := r.model.ScorePairs(ctx, query, texts)
	if err != nil || len(modelScores) != len(candidates) {
		slog.Warn("relevance model unavailable, passing candidates through",
			"error", err, "candidates", len(candidates))
		return rawScores, true
	}
	for i := range modelScores {
		modelScores[i] = clamp01(modelScores[i])
	}
	return modelScores, false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
