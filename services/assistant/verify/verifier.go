// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package verify

import (
	"context"
	"log/slog"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/finsight-ai/finsight/services/assistant/datatypes"
)

var tracer = otel.Tracer("finsight.assistant.verify")

// DefaultMaxDeviation is the relative tolerance within which a claimed value
// counts as matching its fact. Rounding in answer prose ("nearly $395
// billion") stays verified; anything beyond is a mismatch.
const DefaultMaxDeviation = 0.05

// AnswerVerifier checks every numeric claim in an answer against the facts
// retrieval produced for the turn.
type AnswerVerifier struct {
	logger *slog.Logger
}

// NewAnswerVerifier builds an AnswerVerifier.
func NewAnswerVerifier(logger *slog.Logger) *AnswerVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnswerVerifier{logger: logger}
}

// Verify extracts numeric claims from answerText and grades each one.
//
// # Description
//
// A claim whose (entity, metric, period) resolves to a fact is verified when
// its value deviates at most maxDeviation from the fact's, and a mismatch
// otherwise. A non-positive maxDeviation falls back to DefaultMaxDeviation.
// A claim that resolves to no fact, or whose sentence names no recognizable
// metric, is unverifiable. Unverifiable is not an error: the answer may
// legitimately discuss numbers the fact store does not cover.
//
// # Outputs
//
// One VerificationResult per extracted claim, in answer order. An answer
// with no numeric claims verifies vacuously with an empty slice.
func (v *AnswerVerifier) Verify(ctx context.Context, answerText string, facts []datatypes.Fact, intent datatypes.ParsedIntent, maxDeviation float64) []datatypes.VerificationResult {
	if maxDeviation <= 0 {
		maxDeviation = DefaultMaxDeviation
	}
	_, span := tracer.Start(ctx, "verify.Answer")
	defer span.End()

	knownEntities := entitySet(facts, intent)
	claims := ExtractClaims(answerText, intent, knownEntities)

	results := make([]datatypes.VerificationResult, 0, len(claims))
	for _, c := range claims {
		results = append(results, v.grade(c, answerText, facts, maxDeviation))
	}
	span.SetAttributes(
		attribute.Int("claims", len(claims)),
		attribute.Int("mismatches", countStatus(results, datatypes.StatusMismatch)),
	)
	return results
}

func (v *AnswerVerifier) grade(c Claim, answerText string, facts []datatypes.Fact, maxDeviation float64) datatypes.VerificationResult {
	result := datatypes.VerificationResult{
		ClaimText:      answerText[c.SpanStart:c.SpanEnd],
		SpanStart:      c.SpanStart,
		SpanEnd:        c.SpanEnd,
		ExtractedValue: c.Value,
		Status:         datatypes.StatusUnverifiable,
	}
	if c.MetricID == "" || c.EntityID == "" {
		return result
	}

	fact, ok := bestFact(c, facts)
	if !ok {
		return result
	}
	result.MatchedFact = &fact
	result.DeviationPct = relativeDeviation(c.Value, fact.Value)
	if result.DeviationPct <= maxDeviation {
		result.Status = datatypes.StatusVerified
	} else {
		result.Status = datatypes.StatusMismatch
		v.logger.Warn("numeric claim mismatch",
			"entity", c.EntityID,
			"metric", c.MetricID,
			"period", fact.Period.String(),
			"claimed", c.Value,
			"actual", fact.Value,
			"deviation", result.DeviationPct,
		)
	}
	return result
}

// bestFact picks the fact matching the claim's entity, metric, and period,
// preferring an exact period match and falling back to a period-agnostic
// match only when the claim resolved no period of its own.
func bestFact(c Claim, facts []datatypes.Fact) (datatypes.Fact, bool) {
	var fallback *datatypes.Fact
	for i := range facts {
		f := facts[i]
		if f.EntityID != c.EntityID || f.MetricID != c.MetricID || f.Unit != c.Unit {
			continue
		}
		if !c.Period.IsZero() && f.Period.Equal(c.Period) {
			return f, true
		}
		if c.Period.IsZero() && fallback == nil {
			fallback = &f
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return datatypes.Fact{}, false
}

func relativeDeviation(claimed, actual float64) float64 {
	if actual == 0 {
		if claimed == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return math.Abs(claimed-actual) / math.Abs(actual)
}

func entitySet(facts []datatypes.Fact, intent datatypes.ParsedIntent) []string {
	seen := make(map[string]bool)
	var entities []string
	for _, e := range intent.Entities {
		if !seen[e] {
			seen[e] = true
			entities = append(entities, e)
		}
	}
	for _, f := range facts {
		if !seen[f.EntityID] {
			seen[f.EntityID] = true
			entities = append(entities, f.EntityID)
		}
	}
	return entities
}

func countStatus(results []datatypes.VerificationResult, status datatypes.VerificationStatus) int {
	n := 0
	for _, r := range results {
		if r.Status == status {
			n++
		}
	}
	return n
}
