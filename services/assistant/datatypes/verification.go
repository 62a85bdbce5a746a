// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// =============================================================================
// Post-generation verification types
// =============================================================================

// VerificationStatus classifies the outcome of checking one numeric claim.
type VerificationStatus string

const (
	// StatusVerified means the claim matched a fact within tolerance.
	StatusVerified VerificationStatus = "verified"

	// StatusMismatch means the claim matched a fact but deviates beyond
	// tolerance.
	StatusMismatch VerificationStatus = "mismatch"

	// StatusUnverifiable means no fact could be matched to the claim.
	// Not necessarily wrong: derived or contextual figures land here.
	StatusUnverifiable VerificationStatus = "unverifiable"
)

// VerificationResult is the outcome of checking one numeric span in a
// drafted answer against the structured fact store.
type VerificationResult struct {
	// ClaimText is the exact numeric span as it appears in the answer.
	ClaimText string `json:"claim_text"`

	// SpanStart and SpanEnd are the byte offsets of ClaimText in the
	// answer; the corrector uses them to replace the span in place.
	SpanStart int `json:"span_start"`
	SpanEnd   int `json:"span_end"`

	// ExtractedValue is the claim normalized to base units.
	ExtractedValue float64 `json:"extracted_value"`

	// MatchedFact is the fact the claim was checked against, nil when
	// unverifiable.
	MatchedFact *Fact `json:"matched_fact,omitempty"`

	// DeviationPct is |claim - fact| / |fact|; zero when unverifiable.
	DeviationPct float64 `json:"deviation_pct"`

	Status VerificationStatus `json:"status"`
}

// Discrepancy records a cross-source disagreement on one metric+period.
// The pipeline flags disagreement; it never arbitrates which source wins.
type Discrepancy struct {
	EntityID     string  `json:"entity_id"`
	MetricID     string  `json:"metric_id"`
	Period       Period  `json:"period"`
	SourceA      string  `json:"source_a"`
	SourceB      string  `json:"source_b"`
	ValueA       float64 `json:"value_a"`
	ValueB       float64 `json:"value_b"`
	RelativeDiff float64 `json:"relative_diff"`
}

// CitationIssueKind classifies citation problems.
type CitationIssueKind string

const (
	// CitationDangling marks a citation whose source is not in the fused
	// evidence set.
	CitationDangling CitationIssueKind = "dangling"

	// CitationMismatchedPeriod marks a citation whose source covers a
	// different period than the sentence it supports.
	CitationMismatchedPeriod CitationIssueKind = "mismatched_period"

	// CitationMismatchedEntity marks a citation whose source covers a
	// different entity than the sentence it supports.
	CitationMismatchedEntity CitationIssueKind = "mismatched_entity"
)

// CitationIssue is one problem found with a citation marker in the answer.
type CitationIssue struct {
	Kind     CitationIssueKind `json:"kind"`
	Marker   string            `json:"marker"`
	SourceID string            `json:"source_id,omitempty"`
	Sentence string            `json:"sentence,omitempty"`
	Detail   string            `json:"detail,omitempty"`
}

// =============================================================================
// Decision and confidence
// =============================================================================

// DecisionReason explains a pre-generation gate outcome.
type DecisionReason string

const (
	// ReasonOK means the evidence supports answering.
	ReasonOK DecisionReason = "ok"

	// ReasonLowConfidence means fused confidence fell below threshold.
	ReasonLowConfidence DecisionReason = "low_confidence"

	// ReasonContradiction means the fused evidence disagrees with itself.
	ReasonContradiction DecisionReason = "contradiction"

	// ReasonMissingData means entities resolved but no evidence exists
	// for any of them.
	ReasonMissingData DecisionReason = "missing_data"
)

// Decision is the grounded pre-generation gate outcome. It is the only
// mechanism allowed to halt the pipeline before generation.
type Decision struct {
	ShouldAnswer bool           `json:"should_answer"`
	Reason       DecisionReason `json:"reason"`

	// SuggestedResponse is the user-facing message when ShouldAnswer is
	// false. Each reason produces a distinct message.
	SuggestedResponse string `json:"suggested_response,omitempty"`
}

// Tone is the advisory phrasing register attached to an answer.
type Tone string

const (
	ToneConfident Tone = "confident"
	ToneHedged    Tone = "hedged"
	ToneCautious  Tone = "cautious"
)

// ConfidenceReport aggregates verification signals into one advisory score.
// It never gates: the decision gate already ran before generation.
type ConfidenceReport struct {
	// Score is in [0,1].
	Score float64 `json:"score"`

	VerifiedCount    int `json:"verified_count"`
	TotalCount       int `json:"total_count"`
	DiscrepancyCount int `json:"discrepancy_count"`

	// CitationCoverage is the fraction of citation markers that resolved
	// cleanly, 1.0 when the answer carries no citations.
	CitationCoverage float64 `json:"citation_coverage"`

	Tone Tone `json:"tone"`
}
