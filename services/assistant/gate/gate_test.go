// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-ai/finsight/services/assistant/datatypes"
)

func fy2024() datatypes.Period {
	return datatypes.Period{Basis: datatypes.BasisFiscal, Year: 2024}
}

func factCand(entity, metric, source string, value float64) datatypes.Candidate {
	return datatypes.Candidate{
		SourceKind: datatypes.SourceFact,
		SourceID:   source,
		EntityID:   entity,
		MetricID:   metric,
		Period:     fy2024(),
		Value:      value,
		Unit:       datatypes.UnitUSD,
		FusedScore: 1.0,
	}
}

func TestEvaluatePasses(t *testing.T) {
	d := Evaluate(DefaultConfig(), []datatypes.Candidate{factCand("AAPL", "revenue", "sec_10k", 394.3e9)}, 0.9, true)
	assert.True(t, d.ShouldAnswer)
	assert.Equal(t, datatypes.ReasonOK, d.Reason)
	assert.Empty(t, d.SuggestedResponse)
}

func TestEvaluateLowConfidence(t *testing.T) {
	d := Evaluate(DefaultConfig(), []datatypes.Candidate{factCand("AAPL", "revenue", "sec_10k", 394.3e9)}, 0.1, true)
	assert.False(t, d.ShouldAnswer)
	assert.Equal(t, datatypes.ReasonLowConfidence, d.Reason)
	assert.NotEmpty(t, d.SuggestedResponse)
}

func TestEvaluateContradiction(t *testing.T) {
	// Same entity, metric, period from two sources, 27% apart.
	candidates := []datatypes.Candidate{
		factCand("AAPL", "revenue", "sec_10k", 394.3e9),
		factCand("AAPL", "revenue", "vendor_feed", 288e9),
	}
	d := Evaluate(DefaultConfig(), candidates, 0.9, true)
	assert.False(t, d.ShouldAnswer)
	assert.Equal(t, datatypes.ReasonContradiction, d.Reason)
	assert.Contains(t, d.SuggestedResponse, "revenue")
}

func TestEvaluateWithinTolerance(t *testing.T) {
	// 2% apart: within the default 12% tolerance.
	candidates := []datatypes.Candidate{
		factCand("AAPL", "revenue", "sec_10k", 394.3e9),
		factCand("AAPL", "revenue", "vendor_feed", 387e9),
	}
	d := Evaluate(DefaultConfig(), candidates, 0.9, true)
	assert.True(t, d.ShouldAnswer)
}

func TestEvaluateDifferentEntitiesNoContradiction(t *testing.T) {
	// Different entities may disagree arbitrarily.
	candidates := []datatypes.Candidate{
		factCand("AAPL", "revenue", "sec_10k", 394.3e9),
		factCand("MSFT", "revenue", "sec_10k", 245e9),
	}
	d := Evaluate(DefaultConfig(), candidates, 0.9, true)
	assert.True(t, d.ShouldAnswer)
}

func TestEvaluateMissingData(t *testing.T) {
	d := Evaluate(DefaultConfig(), nil, 0, true)
	assert.False(t, d.ShouldAnswer)
	assert.Equal(t, datatypes.ReasonMissingData, d.Reason)
}

func TestEvaluateNoEntitiesNoEvidenceRefuses(t *testing.T) {
	// Nothing resolved upstream and nothing retrieved: not a missing-data
	// case, but confidence is zero and the gate must not answer below the
	// floor.
	d := Evaluate(DefaultConfig(), nil, 0, false)
	assert.False(t, d.ShouldAnswer)
	assert.Equal(t, datatypes.ReasonLowConfidence, d.Reason)
}

func TestEvaluateNeverAnswersBelowFloor(t *testing.T) {
	tests := []struct {
		name             string
		fused            []datatypes.Candidate
		confidence       float64
		entitiesResolved bool
	}{
		{"empty evidence, nothing resolved", nil, 0.0, false},
		{"empty evidence, entities resolved", nil, 0.0, true},
		{"weak evidence", []datatypes.Candidate{factCand("AAPL", "revenue", "s", 1e9)}, 0.19, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(DefaultConfig(), tt.fused, tt.confidence, tt.entitiesResolved)
			assert.False(t, d.ShouldAnswer)
			assert.NotEmpty(t, d.SuggestedResponse)
		})
	}
}

func TestEvaluateRuleOrder(t *testing.T) {
	// Low confidence and contradiction both present: low confidence wins
	// because it is checked first.
	candidates := []datatypes.Candidate{
		factCand("AAPL", "revenue", "sec_10k", 394.3e9),
		factCand("AAPL", "revenue", "vendor_feed", 288e9),
	}
	d := Evaluate(DefaultConfig(), candidates, 0.05, true)
	require.False(t, d.ShouldAnswer)
	assert.Equal(t, datatypes.ReasonLowConfidence, d.Reason)
}

func TestEvaluateDistinctRefusalMessages(t *testing.T) {
	low := Evaluate(DefaultConfig(), []datatypes.Candidate{factCand("AAPL", "revenue", "s", 1e9)}, 0.1, true)
	missing := Evaluate(DefaultConfig(), nil, 0, true)
	contra := Evaluate(DefaultConfig(), []datatypes.Candidate{
		factCand("AAPL", "revenue", "a", 394.3e9),
		factCand("AAPL", "revenue", "b", 288e9),
	}, 0.9, true)

	assert.NotEqual(t, low.SuggestedResponse, missing.SuggestedResponse)
	assert.NotEqual(t, low.SuggestedResponse, contra.SuggestedResponse)
	assert.NotEqual(t, missing.SuggestedResponse, contra.SuggestedResponse)
}
