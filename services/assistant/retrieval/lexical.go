// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"sort"
	"strings"
	"sync"

	"github.com/finsight-ai/finsight/services/assistant/datatypes"
)

// stopwords are dropped before overlap scoring. Short, financial-domain
// neutral list; anything longer belongs upstream in the NLU service.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "how": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"or": true, "that": true, "the": true, "to": true, "was": true, "what": true,
	"when": true, "which": true, "why": true, "with": true, "did": true,
}

// LexicalScorer is the degraded-mode substitute for the vector index. It
// scores chunks by token overlap ratio with the query, producing the same
// ScoredChunk shape the index produces so downstream stages cannot tell the
// difference.
//
// Thread Safety: Safe for concurrent use; the corpus is guarded by a mutex
// and only appended to.
type LexicalScorer struct {
	mu     sync.RWMutex
	corpus []indexedChunk
}

type indexedChunk struct {
	chunk  datatypes.NarrativeChunk
	tokens map[string]bool
}

// NewLexicalScorer creates an empty lexical scorer.
func NewLexicalScorer() *LexicalScorer {
	return &LexicalScorer{}
}

// Add indexes chunks for fallback scoring.
func (s *LexicalScorer) Add(chunks []datatypes.NarrativeChunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, chunk := range chunks {
		s.corpus = append(s.corpus, indexedChunk{
			chunk:  chunk,
			tokens: tokenize(chunk.Text),
		})
	}
}

// Search returns the topK chunks by query-token overlap ratio. The score is
// |query tokens found in chunk| / |query tokens|, in [0,1]. Chunks with zero
// overlap are dropped.
func (s *LexicalScorer) Search(query string, topK int) []ScoredChunk {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var scored []ScoredChunk
	for _, ic := range s.corpus {
		overlap := 0
		for tok := range queryTokens {
			if ic.tokens[tok] {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		scored = append(scored, ScoredChunk{
			Chunk: ic.chunk,
			Score: float64(overlap) / float64(len(queryTokens)),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

// tokenize lowercases, strips punctuation, and drops stopwords.
func tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, field := range strings.Fields(strings.ToLower(text)) {
		tok := strings.Trim(field, ".,;:!?()[]{}\"'$%")
		if len(tok) < 2 || stopwords[tok] {
			continue
		}
		tokens[tok] = true
	}
	return tokens
}
