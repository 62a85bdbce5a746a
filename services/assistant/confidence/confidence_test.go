// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package confidence

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/finsight-ai/finsight/services/assistant/datatypes"
)

func results(verified, mismatched, unverifiable int) []datatypes.VerificationResult {
	var out []datatypes.VerificationResult
	for i := 0; i < verified; i++ {
		out = append(out, datatypes.VerificationResult{Status: datatypes.StatusVerified})
	}
	for i := 0; i < mismatched; i++ {
		out = append(out, datatypes.VerificationResult{Status: datatypes.StatusMismatch})
	}
	for i := 0; i < unverifiable; i++ {
		out = append(out, datatypes.VerificationResult{Status: datatypes.StatusUnverifiable})
	}
	return out
}

func TestScoreCleanAnswer(t *testing.T) {
	report := Score(0.9, results(3, 0, 0), nil, nil, 3)

	assert.InDelta(t, 0.9, report.Score, 1e-9)
	assert.Equal(t, datatypes.ToneConfident, report.Tone)
	assert.Equal(t, 3, report.VerifiedCount)
	assert.Equal(t, 3, report.TotalCount)
	assert.InDelta(t, 1.0, report.CitationCoverage, 1e-9)
}

func TestScoreMismatchPenalty(t *testing.T) {
	// 1 of 2 checkable claims mismatched: 0.9 - 0.5*0.5 = 0.65.
	report := Score(0.9, results(1, 1, 0), nil, nil, 0)

	assert.InDelta(t, 0.65, report.Score, 1e-9)
	assert.Equal(t, datatypes.ToneHedged, report.Tone)
}

func TestScoreUnverifiableIsNeutral(t *testing.T) {
	withUnverifiable := Score(0.9, results(2, 0, 5), nil, nil, 0)
	without := Score(0.9, results(2, 0, 0), nil, nil, 0)

	assert.InDelta(t, without.Score, withUnverifiable.Score, 1e-9)
	assert.Equal(t, 7, withUnverifiable.TotalCount)
	assert.Equal(t, 2, withUnverifiable.VerifiedCount)
}

func TestScoreDiscrepancyCap(t *testing.T) {
	discrepancies := make([]datatypes.Discrepancy, 10)

	report := Score(1.0, nil, discrepancies, nil, 0)

	// 10 discrepancies would cost 1.5 uncapped; the cap holds it at 0.3.
	assert.InDelta(t, 0.7, report.Score, 1e-9)
	assert.Equal(t, 10, report.DiscrepancyCount)
}

func TestScoreCitationCoverage(t *testing.T) {
	issues := []datatypes.CitationIssue{{Kind: datatypes.CitationDangling}}

	report := Score(0.8, nil, nil, issues, 4)

	// Coverage 0.75: 0.8 - 0.2*0.25 = 0.75.
	assert.InDelta(t, 0.75, report.Score, 1e-9)
	assert.InDelta(t, 0.75, report.CitationCoverage, 1e-9)
}

func TestScoreClampsToZero(t *testing.T) {
	report := Score(0.1, results(0, 3, 0), make([]datatypes.Discrepancy, 5), nil, 0)

	assert.Equal(t, 0.0, report.Score)
	assert.Equal(t, datatypes.ToneCautious, report.Tone)
}

func TestToneBands(t *testing.T) {
	tests := []struct {
		name string
		base float64
		want datatypes.Tone
	}{
		{"confident at floor", 0.7, datatypes.ToneConfident},
		{"hedged below confident", 0.69, datatypes.ToneHedged},
		{"hedged at floor", 0.4, datatypes.ToneHedged},
		{"cautious below hedged", 0.39, datatypes.ToneCautious},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := Score(tt.base, nil, nil, nil, 0)
			assert.Equal(t, tt.want, report.Tone)
		})
	}
}
