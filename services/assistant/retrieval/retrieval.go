// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package retrieval gathers evidence for a query from the structured fact
// store and the narrative vector index.
//
// Retrieval is read-only and degrade-don't-fail: every external source is
// called behind its own failure boundary, and a failed or unavailable source
// contributes an empty list plus a logged anomaly rather than an error. The
// retrieve call as a whole never aborts a turn.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/finsight-ai/finsight/services/assistant/datatypes"
)

// retrievalTracer is the OpenTelemetry tracer for retrieval operations.
var retrievalTracer = otel.Tracer("finsight.assistant.retrieval")

// =============================================================================
// Source interfaces
// =============================================================================

// FactStore is the read API over the structured numeric store.
//
// Thread Safety: Implementations must be safe for concurrent use.
type FactStore interface {
	// Lookup returns every fact for one (entity, metric, period) triple,
	// one per source. Missing data yields an empty slice, never an error;
	// errors mean the store itself is unreachable.
	Lookup(ctx context.Context, entityID, metricID string, period datatypes.Period) ([]datatypes.Fact, error)

	// EntityFacts returns every fact recorded for an entity. Used by the
	// gate's missing-data rule and by broad metric queries.
	EntityFacts(ctx context.Context, entityID string) ([]datatypes.Fact, error)
}

// VectorIndex is the read API over the narrative embedding index.
//
// Thread Safety: Implementations must be safe for concurrent use.
type VectorIndex interface {
	// Search runs nearest-neighbor search over one collection. The
	// conversationID scopes the uploaded collection; implementations must
	// never return uploaded chunks from a different conversation.
	Search(ctx context.Context, collection datatypes.Collection, vector []float32, topK int, conversationID string) ([]ScoredChunk, error)
}

// Embedder turns query text into a vector for index search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ScoredChunk pairs a narrative chunk with its similarity score in [0,1].
type ScoredChunk struct {
	Chunk datatypes.NarrativeChunk
	Score float64
}

// =============================================================================
// Observer hook
// =============================================================================

// Event is one observability datapoint emitted during retrieval.
type Event struct {
	// Kind is the event name, e.g. "structured_lookup", "vector_search",
	// "lexical_fallback", "source_anomaly".
	Kind string

	// Source labels which source the event concerns.
	Source string

	// Count is the number of items the call produced.
	Count int

	// Duration is the call's wall time.
	Duration time.Duration

	// Err carries the anomaly for "source_anomaly" events.
	Err error
}

// Observer receives retrieval events. The default is a no-op; the
// observability package provides the Prometheus-backed implementation.
type Observer interface {
	OnRetrievalEvent(event Event)
}

// NopObserver discards all events.
type NopObserver struct{}

// OnRetrievalEvent implements Observer.
func (NopObserver) OnRetrievalEvent(Event) {}

// =============================================================================
// Retriever
// =============================================================================

// Filters narrows a retrieval call.
type Filters struct {
	// Metrics restricts the structured path to these metric IDs.
	Metrics []string

	// Period restricts the structured path to one reporting period.
	Period datatypes.Period

	// ConversationID scopes the uploaded-document search. Empty means the
	// uploaded collection is not searched at all.
	ConversationID string
}

// Result is the three-way output of one retrieval call. All candidates are
// transient and owned by the calling turn.
type Result struct {
	Facts               []datatypes.Fact
	NarrativeCandidates []datatypes.Candidate
	UploadedCandidates  []datatypes.Candidate
}

// Merge appends another result's items, preserving source separation.
func (r *Result) Merge(other Result) {
	r.Facts = append(r.Facts, other.Facts...)
	r.NarrativeCandidates = append(r.NarrativeCandidates, other.NarrativeCandidates...)
	r.UploadedCandidates = append(r.UploadedCandidates, other.UploadedCandidates...)
}

// Empty reports whether the result carries no evidence at all.
func (r *Result) Empty() bool {
	return len(r.Facts) == 0 && len(r.NarrativeCandidates) == 0 && len(r.UploadedCandidates) == 0
}

// Retriever issues structured lookups and vector searches and returns scored
// candidates. It owns no state beyond its injected sources and is safe for
// concurrent use.
type Retriever struct {
	facts    FactStore
	index    VectorIndex
	embedder Embedder
	lexical  *LexicalScorer
	observer Observer
	topK     int
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithObserver installs a retrieval event observer.
func WithObserver(obs Observer) Option {
	return func(r *Retriever) {
		if obs != nil {
			r.observer = obs
		}
	}
}

// WithTopK overrides the default vector search depth.
func WithTopK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.topK = k
		}
	}
}

// NewRetriever creates a Retriever over the given sources. The lexical
// scorer is constructed internally as the vector-path fallback; facts and
// index may be nil in degraded deployments, in which case their paths
// contribute empty results.
func NewRetriever(facts FactStore, index VectorIndex, embedder Embedder, opts ...Option) *Retriever {
	r := &Retriever{
		facts:    facts,
		index:    index,
		embedder: embedder,
		lexical:  NewLexicalScorer(),
		observer: NopObserver{},
		topK:     10,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddFallbackChunks seeds the lexical fallback corpus. The fallback serves
// vector-shaped results when the index is unreachable, so it holds the same
// curated chunks the index would have returned.
func (r *Retriever) AddFallbackChunks(chunks []datatypes.NarrativeChunk) {
	r.lexical.Add(chunks)
}

// Retrieve gathers evidence for one query.
//
// # Description
//
// Runs the structured path (exact lookups per entity x metric implied by the
// filters) and the vector path (embed once, then nearest-neighbor search over
// the curated collection and, when a conversation ID is present, the uploaded
// collection scoped to that conversation). Per-source failures are caught
// individually: the failed source contributes an empty list and an anomaly
// event, and retrieval continues.
//
// # Outputs
//
//   - Result: facts plus curated and uploaded candidates. Never nil.
//   - []string: anomaly notes for the turn log, empty on a clean run.
//
// Retrieve itself never returns an error.
func (r *Retriever) Retrieve(ctx context.Context, queryText string, entityIDs []string, filters Filters) (Result, []string) {
	ctx, span := retrievalTracer.Start(ctx, "Retriever.Retrieve")
	defer span.End()
	span.SetAttributes(
		attribute.Int("entities", len(entityIDs)),
		attribute.Int("metrics", len(filters.Metrics)),
		attribute.Bool("uploads_scoped", filters.ConversationID != ""),
	)

	var result Result
	var anomalies []string

	facts, anomaly := r.structuredLookup(ctx, entityIDs, filters)
	result.Facts = facts
	if anomaly != "" {
		anomalies = append(anomalies, anomaly)
	}

	narrative, uploaded, vectorAnomalies := r.vectorSearch(ctx, queryText, filters)
	result.NarrativeCandidates = narrative
	result.UploadedCandidates = uploaded
	anomalies = append(anomalies, vectorAnomalies...)

	span.SetAttributes(
		attribute.Int("facts", len(result.Facts)),
		attribute.Int("narrative", len(result.NarrativeCandidates)),
		attribute.Int("uploaded", len(result.UploadedCandidates)),
		attribute.Int("anomalies", len(anomalies)),
	)
	return result, anomalies
}

// structuredLookup runs the exact fact lookups implied by the filters.
// Missing data is an empty list; only store unreachability is an anomaly.
func (r *Retriever) structuredLookup(ctx context.Context, entityIDs []string, filters Filters) ([]datatypes.Fact, string) {
	if r.facts == nil || len(entityIDs) == 0 {
		return nil, ""
	}

	start := time.Now()
	var out []datatypes.Fact
	var lastErr error

	for _, entity := range entityIDs {
		if len(filters.Metrics) == 0 {
			facts, err := r.facts.EntityFacts(ctx, entity)
			if err != nil {
				lastErr = err
				continue
			}
			out = append(out, facts...)
			continue
		}
		for _, metric := range filters.Metrics {
			facts, err := r.facts.Lookup(ctx, entity, metric, filters.Period)
			if err != nil {
				lastErr = err
				continue
			}
			out = append(out, facts...)
		}
	}

	r.observer.OnRetrievalEvent(Event{
		Kind:     "structured_lookup",
		Source:   "fact_store",
		Count:    len(out),
		Duration: time.Since(start),
		Err:      lastErr,
	})

	if lastErr != nil {
		slog.Warn("fact store lookup degraded", "error", lastErr)
		r.observer.OnRetrievalEvent(Event{Kind: "source_anomaly", Source: "fact_store", Err: lastErr})
		return out, fmt.Sprintf("fact store degraded: %v", lastErr)
	}
	return out, ""
}

// vectorSearch embeds the query once and searches the curated collection
// and, when scoped, the uploaded collection. Any failure on the embedding or
// index path falls back to lexical token-overlap scoring with the same
// output shape.
func (r *Retriever) vectorSearch(ctx context.Context, queryText string, filters Filters) (narrative, uploaded []datatypes.Candidate, anomalies []string) {
	start := time.Now()

	vector, err := r.embedQuery(ctx, queryText)
	if err == nil && r.index != nil {
		curatedChunks, curatedErr := r.index.Search(ctx, datatypes.CollectionCurated, vector, r.topK, "")
		if curatedErr == nil {
			for _, sc := range curatedChunks {
				narrative = append(narrative, datatypes.ChunkCandidate(sc.Chunk, sc.Score))
			}
		} else {
			err = curatedErr
		}

		if filters.ConversationID != "" {
			uploadedChunks, upErr := r.index.Search(ctx, datatypes.CollectionUploaded, vector, r.topK, filters.ConversationID)
			if upErr == nil {
				for _, sc := range uploadedChunks {
					uploaded = append(uploaded, datatypes.ChunkCandidate(sc.Chunk, sc.Score))
				}
			} else {
				slog.Warn("uploaded collection search degraded", "error", upErr)
				r.observer.OnRetrievalEvent(Event{Kind: "source_anomaly", Source: "uploaded_index", Err: upErr})
				anomalies = append(anomalies, fmt.Sprintf("uploaded search degraded: %v", upErr))
			}
		}
	}

	if err != nil || r.index == nil {
		// Vector path unavailable: lexical fallback keeps the output shape,
		// raw_score becomes the token overlap ratio.
		if err != nil {
			slog.Warn("vector path unavailable, using lexical fallback", "error", err)
			r.observer.OnRetrievalEvent(Event{Kind: "source_anomaly", Source: "vector_index", Err: err})
			anomalies = append(anomalies, fmt.Sprintf("vector index unavailable, lexical fallback used: %v", err))
		}
		for _, sc := range r.lexical.Search(queryText, r.topK) {
			narrative = append(narrative, datatypes.ChunkCandidate(sc.Chunk, sc.Score))
		}
		r.observer.OnRetrievalEvent(Event{
			Kind:     "lexical_fallback",
			Source:   "lexical",
			Count:    len(narrative),
			Duration: time.Since(start),
		})
		return narrative, uploaded, anomalies
	}

	r.observer.OnRetrievalEvent(Event{
		Kind:     "vector_search",
		Source:   "vector_index",
		Count:    len(narrative) + len(uploaded),
		Duration: time.Since(start),
	})
	return narrative, uploaded, anomalies
}

// embedQuery embeds the query text, treating a nil embedder as unavailable.
func (r *Retriever) embedQuery(ctx context.Context, text string) ([]float32, error) {
	if r.embedder == nil {
		return nil, fmt.Errorf("no embedder configured")
	}
	return r.embedder.Embed(ctx, text)
}
