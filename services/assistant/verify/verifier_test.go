// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package verify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-ai/finsight/services/assistant/datatypes"
)

func revenueFact(value float64) datatypes.Fact {
	return datatypes.Fact{
		EntityID: "AAPL",
		MetricID: "revenue",
		Period:   datatypes.Period{Basis: datatypes.BasisFiscal, Year: 2024},
		Value:    value,
		Unit:     datatypes.UnitUSD,
		SourceID: "sec_10k",
		AsOf:     time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC),
	}
}

func aaplIntent() datatypes.ParsedIntent {
	return datatypes.ParsedIntent{
		Entities: []string{"AAPL"},
		Metrics:  []string{"revenue"},
		Period:   datatypes.Period{Basis: datatypes.BasisFiscal, Year: 2024},
	}
}

func TestVerifyMatchingClaim(t *testing.T) {
	v := NewAnswerVerifier(nil)
	answer := "AAPL revenue was $394.3B in FY2024 [sec_10k]."

	results := v.Verify(context.Background(), answer, []datatypes.Fact{revenueFact(394.3e9)}, aaplIntent(), 0)

	require.Len(t, results, 1)
	assert.Equal(t, datatypes.StatusVerified, results[0].Status)
	require.NotNil(t, results[0].MatchedFact)
	assert.InDelta(t, 0.0, results[0].DeviationPct, 1e-6)
}

func TestVerifyMismatchedClaim(t *testing.T) {
	v := NewAnswerVerifier(nil)
	answer := "AAPL revenue was $250B in FY2024."

	results := v.Verify(context.Background(), answer, []datatypes.Fact{revenueFact(394.3e9)}, aaplIntent(), 0)

	require.Len(t, results, 1)
	assert.Equal(t, datatypes.StatusMismatch, results[0].Status)
	assert.Greater(t, results[0].DeviationPct, 0.3)
}

func TestVerifyRoundedClaimWithinTolerance(t *testing.T) {
	v := NewAnswerVerifier(nil)
	// "nearly $395 billion" deviates 0.18% from 394.3B.
	answer := "AAPL posted revenue of nearly $395 billion in FY2024."

	results := v.Verify(context.Background(), answer, []datatypes.Fact{revenueFact(394.3e9)}, aaplIntent(), 0)

	require.Len(t, results, 1)
	assert.Equal(t, datatypes.StatusVerified, results[0].Status)
}

func TestVerifyUnverifiableClaim(t *testing.T) {
	v := NewAnswerVerifier(nil)
	// The store has no margin facts, so the percent claim cannot resolve.
	answer := "AAPL gross margin was 46.2% in FY2024."

	results := v.Verify(context.Background(), answer, []datatypes.Fact{revenueFact(394.3e9)}, aaplIntent(), 0)

	require.Len(t, results, 1)
	assert.Equal(t, datatypes.StatusUnverifiable, results[0].Status)
	assert.Nil(t, results[0].MatchedFact)
}

func TestVerifyPeriodScoping(t *testing.T) {
	v := NewAnswerVerifier(nil)
	fy2023 := revenueFact(383e9)
	fy2023.Period = datatypes.Period{Basis: datatypes.BasisFiscal, Year: 2023}
	facts := []datatypes.Fact{revenueFact(394.3e9), fy2023}

	// A claim naming FY2023 must check against the FY2023 fact.
	answer := "AAPL revenue was $383B in FY2023."
	results := v.Verify(context.Background(), answer, facts, aaplIntent(), 0)

	require.Len(t, results, 1)
	assert.Equal(t, datatypes.StatusVerified, results[0].Status)
	assert.Equal(t, 2023, results[0].MatchedFact.Period.Year)
}

func TestVerifyCustomDeviation(t *testing.T) {
	v := NewAnswerVerifier(nil)
	// 2.5% off: verified under the default 5%, mismatched under 1%.
	answer := "AAPL revenue was $404.2B in FY2024."
	facts := []datatypes.Fact{revenueFact(394.3e9)}

	loose := v.Verify(context.Background(), answer, facts, aaplIntent(), 0.05)
	strict := v.Verify(context.Background(), answer, facts, aaplIntent(), 0.01)

	assert.Equal(t, datatypes.StatusVerified, loose[0].Status)
	assert.Equal(t, datatypes.StatusMismatch, strict[0].Status)
}

func TestVerifyNoClaims(t *testing.T) {
	v := NewAnswerVerifier(nil)
	results := v.Verify(context.Background(), "Growth was broad-based across segments.", []datatypes.Fact{revenueFact(394.3e9)}, aaplIntent(), 0)
	assert.Empty(t, results)
}
