// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/finsight-ai/finsight/services/assistant/datatypes"
)

// Compile-time interface implementation check.
var _ VectorIndex = (*WeaviateIndex)(nil)

// Weaviate class names for the two narrative collections.
const (
	curatedClass  = "CuratedChunk"
	uploadedClass = "UploadedChunk"
)

// WeaviateIndex is a VectorIndex over a Weaviate instance holding the two
// narrative collections. Uploaded searches always carry a conversation_id
// where-filter; there is no code path that queries the uploaded class
// unscoped, which is what keeps conversation isolation structural rather
// than behavioral.
//
// Thread Safety: Safe for concurrent use; the Weaviate client pools
// connections internally.
type WeaviateIndex struct {
	client *weaviate.Client
}

// NewWeaviateIndex creates a VectorIndex backed by Weaviate. Panics on a nil
// client (fail-fast for programming errors).
func NewWeaviateIndex(client *weaviate.Client) *WeaviateIndex {
	if client == nil {
		panic("NewWeaviateIndex: client must not be nil")
	}
	return &WeaviateIndex{client: client}
}

// chunkResult is the per-object shape returned by the GraphQL query.
type chunkResult struct {
	ChunkID        string `json:"chunk_id"`
	EntityID       string `json:"entity_id"`
	Text           string `json:"text"`
	SourceID       string `json:"source_id"`
	ConversationID string `json:"conversation_id"`
	CreatedAt      int64  `json:"created_at"`
	Additional     struct {
		Certainty float64 `json:"certainty"`
	} `json:"_additional"`
}

// chunkQueryResponse is the envelope shape: {"Get": {"<Class>": [...]}}.
type chunkQueryResponse struct {
	Get map[string][]chunkResult `json:"Get"`
}

// Search implements VectorIndex.
//
// # Description
//
// Runs a near-vector query against the collection's class. For the uploaded
// collection an empty conversationID is rejected outright rather than
// silently searching everything: upload scoping is an invariant, not an
// optimization.
//
// # Outputs
//
//   - []ScoredChunk: matches with certainty as the raw score.
//   - error: *SourceUnavailableError when Weaviate is unreachable or the
//     response cannot be parsed.
func (w *WeaviateIndex) Search(ctx context.Context, collection datatypes.Collection, vector []float32, topK int, conversationID string) ([]ScoredChunk, error) {
	className := curatedClass
	if collection == datatypes.CollectionUploaded {
		if conversationID == "" {
			return nil, fmt.Errorf("uploaded collection search requires a conversation ID")
		}
		className = uploadedClass
	}

	fields := []graphql.Field{
		{Name: "chunk_id"},
		{Name: "entity_id"},
		{Name: "text"},
		{Name: "source_id"},
		{Name: "conversation_id"},
		{Name: "created_at"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
	}

	nearVector := w.client.GraphQL().NearVectorArgBuilder().WithVector(vector)

	query := w.client.GraphQL().Get().
		WithClassName(className).
		WithNearVector(nearVector).
		WithLimit(topK).
		WithFields(fields...)

	if className == uploadedClass {
		query = query.WithWhere(filters.Where().
			WithPath([]string{"conversation_id"}).
			WithOperator(filters.Equal).
			WithValueString(conversationID))
	}

	result, err := query.Do(ctx)
	if err != nil {
		return nil, &SourceUnavailableError{Source: "vector_index", Err: err}
	}

	parsed, err := parseChunkResponse(result)
	if err != nil {
		return nil, &SourceUnavailableError{Source: "vector_index", Err: err}
	}

	var out []ScoredChunk
	for _, cr := range parsed.Get[className] {
		out = append(out, ScoredChunk{
			Chunk: datatypes.NarrativeChunk{
				ChunkID:    cr.ChunkID,
				Collection: collection,
				EntityID:   cr.EntityID,
				Text:       cr.Text,
				Metadata:   map[string]string{"source_id": cr.SourceID},
				CreatedAt:  time.UnixMilli(cr.CreatedAt),
			},
			Score: cr.Additional.Certainty,
		})
	}
	return out, nil
}

// parseChunkResponse converts Weaviate's dynamic GraphQL response into the
// typed envelope via the marshal/unmarshal pattern.
func parseChunkResponse(resp *models.GraphQLResponse) (*chunkQueryResponse, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("GraphQL error: %s", resp.Errors[0].Message)
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}
	var parsed chunkQueryResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal chunk response: %w", err)
	}
	return &parsed, nil
}
