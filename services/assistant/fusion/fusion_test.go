// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package fusion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-ai/finsight/services/assistant/datatypes"
)

func cand(ref string, kind datatypes.SourceKind, raw, rerank float64) datatypes.Candidate {
	return datatypes.Candidate{
		DocumentRef: ref,
		SourceKind:  kind,
		RawScore:    raw,
		RerankScore: rerank,
	}
}

func TestFuseFactOutranksNarrative(t *testing.T) {
	facts := []datatypes.Candidate{cand("fact1", datatypes.SourceFact, 1.0, 1.0)}
	curated := []datatypes.Candidate{
		cand("n1", datatypes.SourceCuratedNarrative, 0.95, 0.99),
		cand("n2", datatypes.SourceCuratedNarrative, 0.4, 0.3),
	}

	fused := FuseAllSources(facts, curated)

	require.Len(t, fused.Candidates, 3)
	// A single fact normalizes to 1.0 and fuses at its reliability weight,
	// above even the top curated chunk.
	assert.Equal(t, "fact1", fused.Candidates[0].DocumentRef)
	assert.InDelta(t, 1.0, fused.Candidates[0].FusedScore, 1e-9)
	assert.Equal(t, "n1", fused.Candidates[1].DocumentRef)
	assert.InDelta(t, 0.9, fused.Candidates[1].FusedScore, 1e-9)
}

func TestFusePerSourceNormalization(t *testing.T) {
	// Two sources with wildly different score scales: normalization must
	// put them on the same footing before weighting.
	curated := []datatypes.Candidate{
		cand("c_hi", datatypes.SourceCuratedNarrative, 0.09, 0.09),
		cand("c_lo", datatypes.SourceCuratedNarrative, 0.01, 0.01),
	}
	uploaded := []datatypes.Candidate{
		cand("u_hi", datatypes.SourceUploadedNarrative, 0.99, 0.99),
		cand("u_lo", datatypes.SourceUploadedNarrative, 0.91, 0.91),
	}

	fused := FuseAllSources(curated, uploaded)

	byRef := make(map[string]datatypes.Candidate)
	for _, c := range fused.Candidates {
		byRef[c.DocumentRef] = c
	}
	// Both source tops normalize to 1.0; only reliability separates them.
	assert.InDelta(t, 0.9, byRef["c_hi"].FusedScore, 1e-9)
	assert.InDelta(t, 0.7, byRef["u_hi"].FusedScore, 1e-9)
	assert.InDelta(t, 0.0, byRef["c_lo"].FusedScore, 1e-9)
	assert.Equal(t, "c_hi", fused.Candidates[0].DocumentRef)
}

func TestFuseAllEqualSourceNormalizesToOne(t *testing.T) {
	curated := []datatypes.Candidate{
		cand("a", datatypes.SourceCuratedNarrative, 0.5, 0.5),
		cand("b", datatypes.SourceCuratedNarrative, 0.5, 0.5),
	}
	fused := FuseAllSources(curated)
	for _, c := range fused.Candidates {
		assert.InDelta(t, 0.9, c.FusedScore, 1e-9)
	}
}

func TestFuseTieBreaks(t *testing.T) {
	older := cand("old", datatypes.SourceCuratedNarrative, 0.5, 0.5)
	older.Recency = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := cand("new", datatypes.SourceCuratedNarrative, 0.5, 0.5)
	newer.Recency = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	fused := FuseAllSources([]datatypes.Candidate{older, newer})

	require.Len(t, fused.Candidates, 2)
	assert.Equal(t, "new", fused.Candidates[0].DocumentRef)
}

func TestOverallConfidence(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.Zero(t, FuseAllSources().OverallConfidence)
	})

	t.Run("facts only", func(t *testing.T) {
		facts := []datatypes.Candidate{
			cand("f1", datatypes.SourceFact, 1.0, 1.0),
			cand("f2", datatypes.SourceFact, 1.0, 1.0),
		}
		fused := FuseAllSources(facts)
		assert.InDelta(t, 1.0, fused.OverallConfidence, 1e-9)
	})

	t.Run("weak evidence scores low", func(t *testing.T) {
		uploaded := []datatypes.Candidate{cand("u1", datatypes.SourceUploadedNarrative, 0.3, 0.3)}
		fused := FuseAllSources(uploaded)
		// Single candidate normalizes to 1.0, fuses at 0.7, confidence is
		// its weighted average with itself.
		assert.InDelta(t, 0.7, fused.OverallConfidence, 1e-9)
	})
}
