// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package gate decides whether retrieved evidence is strong enough to
// answer from, before any generation happens.
package gate

import (
	"fmt"
	"math"

	"github.com/finsight-ai/finsight/services/assistant/datatypes"
)

// Config carries the gate thresholds.
type Config struct {
	// MinConfidence is the fused-confidence floor below which the turn is
	// refused rather than answered.
	MinConfidence float64

	// ContradictionTolerance is the maximum relative disagreement allowed
	// between numeric candidates for the same metric and period.
	ContradictionTolerance float64
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		MinConfidence:          0.20,
		ContradictionTolerance: 0.12,
	}
}

// Evaluate decides whether the fused evidence supports answering.
//
// # Description
//
// Rules apply in a fixed order and the first match wins:
//
//  1. Fused confidence below MinConfidence with evidence present refuses
//     with low_confidence.
//  2. Two numeric candidates for the same metric and period that disagree
//     beyond ContradictionTolerance refuse with contradiction.
//  3. Entities were resolved but no evidence at all came back: missing_data.
//  4. Fused confidence still below MinConfidence (no evidence, nothing
//     resolved) refuses with low_confidence.
//  5. Otherwise the gate passes with ok.
//
// The gate never answers below the confidence floor: rule 1 defers empty
// evidence to the missing_data rule, and rule 4 catches whatever empty case
// remains. Refusals are ordinary outcomes, not errors; each carries a
// suggested response the caller can surface verbatim.
//
// # Assumptions
//
//   - Candidates carry FusedScore and, for fact-backed candidates, Value,
//     MetricID, and Period as set by retrieval and fusion.
func Evaluate(cfg Config, fused []datatypes.Candidate, overallConfidence float64, entitiesResolved bool) datatypes.Decision {
	if len(fused) > 0 && overallConfidence < cfg.MinConfidence {
		return lowConfidenceRefusal()
	}

	if detail, found := findContradiction(fused, cfg.ContradictionTolerance); found {
		return datatypes.Decision{
			ShouldAnswer: false,
			Reason:       datatypes.ReasonContradiction,
			SuggestedResponse: fmt.Sprintf("My sources disagree on %s, so I'd rather not guess. "+
				"You may want to check the primary filing directly.", detail),
		}
	}

	if entitiesResolved && len(fused) == 0 {
		return datatypes.Decision{
			ShouldAnswer: false,
			Reason:       datatypes.ReasonMissingData,
			SuggestedResponse: "I recognized what you're asking about, but I don't have data " +
				"covering it. It may be outside the periods or companies I track.",
		}
	}

	if overallConfidence < cfg.MinConfidence {
		return lowConfidenceRefusal()
	}

	return datatypes.Decision{ShouldAnswer: true, Reason: datatypes.ReasonOK}
}

func lowConfidenceRefusal() datatypes.Decision {
	return datatypes.Decision{
		ShouldAnswer: false,
		Reason:       datatypes.ReasonLowConfidence,
		SuggestedResponse: "I found some potentially relevant material, but not enough to " +
			"answer this reliably. Could you narrow the question to a specific company, " +
			"metric, or period?",
	}
}

// findContradiction scans numeric fact candidates grouped by metric and
// period for relative disagreement beyond tolerance.
func findContradiction(candidates []datatypes.Candidate, tolerance float64) (string, bool) {
	type group struct {
		metric string
		period datatypes.Period
	}
	byGroup := make(map[group][]datatypes.Candidate)
	for _, c := range candidates {
		if c.MetricID == "" || c.Period.IsZero() || c.Value == 0 {
			continue
		}
		k := group{metric: c.MetricID, period: c.Period}
		byGroup[k] = append(byGroup[k], c)
	}

	for k, members := range byGroup {
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				a, b := members[i], members[j]
				if a.EntityID != b.EntityID {
					continue
				}
				if relativeGap(a.Value, b.Value) > tolerance {
					return fmt.Sprintf("%s %s for %s (%s reports %s, %s reports %s)",
						a.EntityID, k.metric, k.period.String(),
						a.SourceID, a.Unit.Format(a.Value),
						b.SourceID, b.Unit.Format(b.Value)), true
				}
			}
		}
	}
	return "", false
}

func relativeGap(a, b float64) float64 {
	denom := math.Max(math.Abs(a), math.Abs(b))
	if denom == 0 {
		return 0
	}
	return math.Abs(a-b) / denom
}
