// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package fusion merges differently-scaled evidence scores from
// heterogeneous sources into one ranked, confidence-annotated list.
//
// Fusion is a pure function of its input: no I/O, no shared state, and the
// only per-source branching is the reliability-weight lookup on the
// candidate's SourceKind tag.
package fusion

import (
	"sort"

	"github.com/finsight-ai/finsight/services/assistant/datatypes"
)

// topNForConfidence bounds how many fused scores feed overall confidence.
const topNForConfidence = 5

// Fused is the fusion output: one ranked list plus the turn's overall
// retrieval confidence.
type Fused struct {
	// Candidates is ordered by non-increasing fused score.
	Candidates []datatypes.Candidate

	// OverallConfidence is the weighted average of the top-min(5, n)
	// fused scores, 0 for an empty list.
	OverallConfidence float64
}

// FuseAllSources normalizes, weights, and merges per-source candidate lists.
//
// # Description
//
// Each source's scores are min-max normalized to [0,1] independently before
// any cross-source comparison, then multiplied by the source kind's fixed
// reliability weight to produce the fused score. The merged list is sorted
// by descending fused score; ties break by reliability weight, then recency.
//
// Fact candidates carry raw score 1.0 by construction, so after
// normalization a fact's fused score is exactly its reliability weight.
func FuseAllSources(sources ...[]datatypes.Candidate) Fused {
	var merged []datatypes.Candidate
	for _, source := range sources {
		merged = append(merged, normalizeSource(source)...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.FusedScore != b.FusedScore {
			return a.FusedScore > b.FusedScore
		}
		if a.ReliabilityWeight != b.ReliabilityWeight {
			return a.ReliabilityWeight > b.ReliabilityWeight
		}
		return a.Recency.After(b.Recency)
	})

	return Fused{
		Candidates:        merged,
		OverallConfidence: overallConfidence(merged),
	}
}

// normalizeSource min-max normalizes one source's blended scores and applies
// the reliability weight. A single-candidate source normalizes to 1.0; an
// all-equal source likewise, since relative order within it carries no
// information.
func normalizeSource(source []datatypes.Candidate) []datatypes.Candidate {
	if len(source) == 0 {
		return nil
	}

	minScore, maxScore := source[0].BlendedScore(), source[0].BlendedScore()
	for _, c := range source[1:] {
		s := c.BlendedScore()
		if s < minScore {
			minScore = s
		}
		if s > maxScore {
			maxScore = s
		}
	}

	out := make([]datatypes.Candidate, len(source))
	copy(out, source)
	for i := range out {
		normalized := 1.0
		if maxScore > minScore {
			normalized = (out[i].BlendedScore() - minScore) / (maxScore - minScore)
		}
		weight := datatypes.ReliabilityWeight(out[i].SourceKind)
		out[i].ReliabilityWeight = weight
		out[i].FusedScore = normalized * weight
	}
	return out
}

// overallConfidence averages the top-min(5, n) fused scores weighted by
// reliability.
func overallConfidence(ranked []datatypes.Candidate) float64 {
	if len(ranked) == 0 {
		return 0
	}
	n := topNForConfidence
	if len(ranked) < n {
		n = len(ranked)
	}

	var weightedSum, weightTotal float64
	for _, c := range ranked[:n] {
		weightedSum += c.FusedScore * c.ReliabilityWeight
		weightTotal += c.ReliabilityWeight
	}
	if weightTotal == 0 {
		return 0
	}
	return weightedSum / weightTotal
}
