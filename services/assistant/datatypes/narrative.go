// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// Collection distinguishes the two narrative corpora.
type Collection string

const (
	// CollectionCurated is the curated narrative corpus (filings excerpts,
	// analyst commentary). Curated chunks are never deleted by this core.
	CollectionCurated Collection = "curated"

	// CollectionUploaded holds user-uploaded document chunks. Uploaded
	// chunks live and die with their source document and are only ever
	// visible to the conversation that uploaded them.
	CollectionUploaded Collection = "uploaded"
)

// NarrativeChunk is one immutable unit of narrative text with its embedding.
// Owned by ingestion; read-only here.
type NarrativeChunk struct {
	ChunkID    string            `json:"chunk_id"`
	Collection Collection        `json:"collection"`
	EntityID   string            `json:"entity_id,omitempty"`
	Text       string            `json:"text"`
	Embedding  []float32         `json:"-"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}
