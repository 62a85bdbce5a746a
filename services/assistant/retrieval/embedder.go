// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// Compile-time interface implementation check.
var _ Embedder = (*OpenAIEmbedder)(nil)

// OpenAIEmbedder embeds query text via an OpenAI-compatible embeddings
// endpoint. A token-bucket limiter caps call rate so a burst of turns cannot
// exhaust the provider quota; a limiter wait that outlives the context
// surfaces as a normal error and the caller degrades to lexical scoring.
//
// Thread Safety: Safe for concurrent use.
type OpenAIEmbedder struct {
	client  *openai.Client
	model   openai.EmbeddingModel
	limiter *rate.Limiter
}

// NewOpenAIEmbedder creates an embedder over the given client. An empty
// model selects text-embedding-3-small.
func NewOpenAIEmbedder(client *openai.Client, model string, callsPerSecond float64) *OpenAIEmbedder {
	if client == nil {
		panic("NewOpenAIEmbedder: client must not be nil")
	}
	m := openai.SmallEmbedding3
	if model != "" {
		m = openai.EmbeddingModel(model)
	}
	if callsPerSecond <= 0 {
		callsPerSecond = 10
	}
	return &OpenAIEmbedder{
		client:  client,
		model:   m,
		limiter: rate.NewLimiter(rate.Limit(callsPerSecond), int(callsPerSecond)+1),
	}
}

// Embed implements Embedder.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedding rate limit wait: %w", err)
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, &SourceUnavailableError{Source: "embedder", Err: err}
	}
	if len(resp.Data) == 0 {
		return nil, &SourceUnavailableError{Source: "embedder", Err: fmt.Errorf("empty embedding response")}
	}
	return resp.Data[0].Embedding, nil
}
