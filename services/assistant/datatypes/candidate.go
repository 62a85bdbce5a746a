// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// =============================================================================
// Source kinds and reliability weights
// =============================================================================

// SourceKind tags a candidate with the source class it came from. Fusion and
// gating branch on this tag alone; nothing else in the pipeline inspects
// where a candidate originated.
type SourceKind string

const (
	// SourceFact is a structured numeric fact from the fact store.
	SourceFact SourceKind = "fact"

	// SourceCuratedNarrative is a chunk from the curated narrative corpus.
	SourceCuratedNarrative SourceKind = "curated_narrative"

	// SourceUploadedNarrative is a chunk from a user-uploaded document.
	SourceUploadedNarrative SourceKind = "uploaded_narrative"

	// SourceMacroContext is macro/sector background material.
	SourceMacroContext SourceKind = "macro_context"

	// SourceModelForecast is a model-derived forecast, the least trusted
	// source class.
	SourceModelForecast SourceKind = "model_forecast"
)

// reliabilityWeights is the single lookup table for per-source trust
// multipliers. Fusion is a pure function of the SourceKind tag and this table.
var reliabilityWeights = map[SourceKind]float64{
	SourceFact:              1.0,
	SourceCuratedNarrative:  0.9,
	SourceUploadedNarrative: 0.7,
	SourceMacroContext:      0.6,
	SourceModelForecast:     0.5,
}

// ReliabilityWeight returns the fixed trust multiplier for a source kind.
// Unknown kinds get the forecast weight, the most conservative entry.
func ReliabilityWeight(kind SourceKind) float64 {
	if w, ok := reliabilityWeights[kind]; ok {
		return w
	}
	return reliabilityWeights[SourceModelForecast]
}

// =============================================================================
// Candidates
// =============================================================================

// Candidate is one transient scored evidence item produced during retrieval.
// Candidates belong to the turn that created them and are never persisted.
//
// Score lifecycle: RawScore is set by the retriever, RerankScore by the
// reranker, FusedScore by fusion. Each stage reads only the scores set by
// stages before it.
type Candidate struct {
	// DocumentRef identifies the underlying evidence: a fact key or a
	// narrative chunk ID.
	DocumentRef string `json:"document_ref"`

	// Text is the evidence content a relevance model can score.
	Text string `json:"text"`

	// SourceKind tags which source class produced this candidate.
	SourceKind SourceKind `json:"source_kind"`

	// SourceID names the concrete source (e.g. "sec_10k", an upload ID).
	SourceID string `json:"source_id,omitempty"`

	// EntityID, MetricID and Period are set when the evidence is bound to
	// a specific structured coordinate; narrative hits may leave them empty.
	EntityID string  `json:"entity_id,omitempty"`
	MetricID string  `json:"metric_id,omitempty"`
	Period   Period  `json:"period,omitempty"`
	Value    float64 `json:"value,omitempty"`
	Unit     Unit    `json:"unit,omitempty"`

	RawScore          float64 `json:"raw_score"`
	RerankScore       float64 `json:"rerank_score"`
	FusedScore        float64 `json:"fused_score"`
	ReliabilityWeight float64 `json:"reliability_weight"`

	// Recency is the as-of time of the evidence; fusion uses it as the
	// final tie-breaker.
	Recency time.Time `json:"recency,omitempty"`
}

// Blend constants for combining retrieval and rerank signals. Fixed, tuned
// values shared by the reranker (ordering, thresholding) and fusion (input
// score).
const (
	RawScoreWeight    = 0.3
	RerankScoreWeight = 0.7
)

// BlendedScore is the candidate's pre-fusion relevance: the fixed mix of the
// retriever's raw score and the rerank score. When reranking was skipped the
// reranker sets RerankScore = RawScore, so the blend degrades to the raw
// score alone.
func (c Candidate) BlendedScore() float64 {
	return RawScoreWeight*c.RawScore + RerankScoreWeight*c.RerankScore
}

// FactCandidate converts a structured fact into a candidate. Exact structured
// lookups are maximally relevant by construction, so the raw score is 1.
func FactCandidate(f Fact) Candidate {
	return Candidate{
		DocumentRef:       f.Key(),
		Text:              f.Describe(),
		SourceKind:        SourceFact,
		SourceID:          f.SourceID,
		EntityID:          f.EntityID,
		MetricID:          f.MetricID,
		Period:            f.Period,
		Value:             f.Value,
		Unit:              f.Unit,
		RawScore:          1.0,
		ReliabilityWeight: ReliabilityWeight(SourceFact),
		Recency:           f.AsOf,
	}
}

// ChunkCandidate converts a narrative chunk plus its similarity score into a
// candidate tagged with the collection's source kind.
func ChunkCandidate(chunk NarrativeChunk, score float64) Candidate {
	kind := SourceCuratedNarrative
	if chunk.Collection == CollectionUploaded {
		kind = SourceUploadedNarrative
	}
	return Candidate{
		DocumentRef:       chunk.ChunkID,
		Text:              chunk.Text,
		SourceKind:        kind,
		SourceID:          chunk.Metadata["source_id"],
		EntityID:          chunk.EntityID,
		RawScore:          score,
		ReliabilityWeight: ReliabilityWeight(kind),
		Recency:           chunk.CreatedAt,
	}
}
