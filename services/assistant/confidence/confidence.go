// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package confidence turns verification signals into one advisory score
// and a phrasing tone. It never gates an answer.
package confidence

import (
	"math"

	"github.com/finsight-ai/finsight/services/assistant/datatypes"
)

// Penalty weights. Mismatched claims hurt most, unresolved citations least.
const (
	mismatchWeight    = 0.5
	discrepancyWeight = 0.15
	citationWeight    = 0.2

	// discrepancyCap bounds the total discrepancy penalty so a noisy fact
	// store cannot zero out an otherwise clean answer on its own.
	discrepancyCap = 0.3
)

// Tone band boundaries.
const (
	confidentFloor = 0.7
	hedgedFloor    = 0.4
)

// Score aggregates a turn's verification outcomes into a ConfidenceReport.
//
// # Description
//
// Starts from the retrieval-time fused confidence and subtracts penalties:
// the mismatch ratio over all verifiable claims, a capped per-discrepancy
// penalty, and the fraction of citations that failed to resolve. The result
// clamps to [0,1] and maps to a tone band: confident at 0.7 and above,
// hedged from 0.4, cautious below. Unverifiable claims are neutral; they
// neither raise nor lower the score.
func Score(baseConfidence float64, verifications []datatypes.VerificationResult, discrepancies []datatypes.Discrepancy, citationIssues []datatypes.CitationIssue, citationTotal int) datatypes.ConfidenceReport {
	verified, mismatched := 0, 0
	for _, v := range verifications {
		switch v.Status {
		case datatypes.StatusVerified:
			verified++
		case datatypes.StatusMismatch:
			mismatched++
		}
	}

	score := baseConfidence
	if checkable := verified + mismatched; checkable > 0 {
		score -= mismatchWeight * float64(mismatched) / float64(checkable)
	}
	score -= math.Min(discrepancyWeight*float64(len(discrepancies)), discrepancyCap)

	coverage := 1.0
	if citationTotal > 0 {
		coverage = 1 - float64(len(citationIssues))/float64(citationTotal)
		score -= citationWeight * (1 - coverage)
	}

	score = clamp01(score)
	return datatypes.ConfidenceReport{
		Score:            score,
		VerifiedCount:    verified,
		TotalCount:       len(verifications),
		DiscrepancyCount: len(discrepancies),
		CitationCoverage: coverage,
		Tone:             toneFor(score),
	}
}

func toneFor(score float64) datatypes.Tone {
	switch {
	case score >= confidentFloor:
		return datatypes.ToneConfident
	case score >= hedgedFloor:
		return datatypes.ToneHedged
	default:
		return datatypes.ToneCautious
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
