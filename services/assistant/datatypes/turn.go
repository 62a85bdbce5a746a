// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"fmt"
	"time"
)

// =============================================================================
// Upstream intent
// =============================================================================

// ParsedIntent is the structured interpretation of a user query, produced by
// the upstream NLU service. This core consumes it as an opaque product; it
// never parses tickers, metrics or periods itself.
type ParsedIntent struct {
	// Entities are resolved entity identifiers (tickers).
	Entities []string `json:"entities"`

	// Metrics are resolved metric identifiers (e.g. "revenue").
	Metrics []string `json:"metrics"`

	// Period is the resolved reporting period, zero when the query names
	// none.
	Period Period `json:"period,omitempty"`

	// Intent is the upstream intent label (e.g. "lookup", "compare",
	// "explain").
	Intent string `json:"intent,omitempty"`
}

// =============================================================================
// Query planning
// =============================================================================

// Complexity buckets a query by how much retrieval work it needs.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// SubQueryRole names what a decomposed retrieval step is for.
type SubQueryRole string

const (
	// RoleMetricLookup fetches the structured numbers the query needs.
	RoleMetricLookup SubQueryRole = "metric_lookup"

	// RoleCausalNarrative fetches narrative explaining why a number moved.
	RoleCausalNarrative SubQueryRole = "causal_narrative"

	// RoleSectorContext fetches sector/macro background.
	RoleSectorContext SubQueryRole = "sector_context"
)

// SubQuery is one ordered retrieval step in a multi-hop plan. Transient,
// produced by the planner and consumed by the retriever within a turn.
type SubQuery struct {
	Text  string       `json:"text"`
	Role  SubQueryRole `json:"role"`
	Order int          `json:"order"`

	// Independent marks a step whose filters do not depend on entities
	// resolved by earlier steps; independent steps may run concurrently.
	Independent bool `json:"independent"`
}

// PlanState is the terminal state of a multi-hop plan.
type PlanState string

const (
	// PlanCompleted means the merged result was returned.
	PlanCompleted PlanState = "completed"

	// PlanAborted means a step failed with no fallback. Rare, since
	// retrieval degrades instead of raising.
	PlanAborted PlanState = "aborted"
)

// =============================================================================
// Per-turn configuration
// =============================================================================

// TurnOptions carries every tunable the pipeline consults during one turn.
// Options are explicit per-call configuration: concurrent turns may use
// different settings without interfering.
type TurnOptions struct {
	// TopK bounds each vector search and the reranked list.
	TopK int `json:"top_k"`

	// ScoreThreshold drops reranked candidates scoring below it.
	ScoreThreshold float64 `json:"score_threshold"`

	// RerankEnabled toggles the cross-attention rerank pass.
	RerankEnabled bool `json:"rerank_enabled"`

	// MultiHopEnabled toggles query decomposition.
	MultiHopEnabled bool `json:"multi_hop_enabled"`

	// MaxSteps bounds the number of sub-queries in a plan.
	MaxSteps int `json:"max_steps"`

	// MinConfidence is the gate's answer/abstain threshold. Setting it to
	// zero yields the lenient always-answer-with-footer behavior.
	MinConfidence float64 `json:"min_confidence"`

	// ContradictionTolerance is the relative disagreement the gate allows
	// between fused items answering the same metric+period.
	ContradictionTolerance float64 `json:"contradiction_tolerance"`

	// MaxDeviation is the verifier's allowed relative deviation between a
	// numeric claim and its matched fact.
	MaxDeviation float64 `json:"max_deviation"`

	// DiscrepancyThreshold is the cross-validator's pairwise relative
	// difference threshold.
	DiscrepancyThreshold float64 `json:"discrepancy_threshold"`

	// AutoCorrect rewrites verified-wrong numeric spans in place.
	AutoCorrect bool `json:"auto_correct"`
}

// DefaultTurnOptions returns the tuned production defaults. The gate
// threshold default sits mid-band at 0.20 pending empirical tuning.
func DefaultTurnOptions() TurnOptions {
	return TurnOptions{
		TopK:                   10,
		ScoreThreshold:         0.05,
		RerankEnabled:          true,
		MultiHopEnabled:        true,
		MaxSteps:               5,
		MinConfidence:          0.20,
		ContradictionTolerance: 0.12,
		MaxDeviation:           0.05,
		DiscrepancyThreshold:   0.05,
		AutoCorrect:            true,
	}
}

// Validate checks option ranges, reporting every violation at once.
func (o TurnOptions) Validate() error {
	var problems []string
	if o.TopK <= 0 {
		problems = append(problems, "top_k must be > 0")
	}
	if o.ScoreThreshold < 0 || o.ScoreThreshold > 1 {
		problems = append(problems, "score_threshold must be in [0,1]")
	}
	if o.MaxSteps <= 0 {
		problems = append(problems, "max_steps must be > 0")
	}
	if o.MinConfidence < 0 || o.MinConfidence > 1 {
		problems = append(problems, "min_confidence must be in [0,1]")
	}
	if o.ContradictionTolerance <= 0 {
		problems = append(problems, "contradiction_tolerance must be > 0")
	}
	if o.MaxDeviation <= 0 {
		problems = append(problems, "max_deviation must be > 0")
	}
	if o.DiscrepancyThreshold <= 0 {
		problems = append(problems, "discrepancy_threshold must be > 0")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid turn options: %v", problems)
	}
	return nil
}

// =============================================================================
// Turn result
// =============================================================================

// SourceRef is one cited source attached to the final answer.
type SourceRef struct {
	SourceID string     `json:"source_id"`
	Kind     SourceKind `json:"kind"`
	Score    float64    `json:"score,omitempty"`
}

// TurnResult is everything HandleTurn returns for one user turn.
type TurnResult struct {
	TurnID     string `json:"turn_id"`
	AnswerText string `json:"answer_text"`

	Decision   Decision         `json:"decision"`
	Confidence ConfidenceReport `json:"confidence_report"`
	Citations  []SourceRef      `json:"citations,omitempty"`

	Verifications  []VerificationResult `json:"verifications,omitempty"`
	Discrepancies  []Discrepancy        `json:"discrepancies,omitempty"`
	CitationIssues []CitationIssue      `json:"citation_issues,omitempty"`

	// StageTimings records per-stage wall time for observability.
	StageTimings map[string]time.Duration `json:"-"`

	// Anomalies lists degraded-path notes accumulated during the turn
	// (e.g. "vector index unavailable, lexical fallback used").
	Anomalies []string `json:"anomalies,omitempty"`
}
