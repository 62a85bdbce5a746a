// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/finsight-ai/finsight/services/assistant"
	"github.com/finsight-ai/finsight/services/assistant/config"
	"github.com/finsight-ai/finsight/services/assistant/observability"
	"github.com/finsight-ai/finsight/services/assistant/planner"
	"github.com/finsight-ai/finsight/services/assistant/rerank"
	"github.com/finsight-ai/finsight/services/assistant/retrieval"
	"github.com/finsight-ai/finsight/services/llm"
)

// buildAssistant wires the full pipeline from config. The returned cleanup
// closes the fact store and must run on shutdown.
func buildAssistant(cfg config.Config) (*assistant.Assistant, func(), error) {
	storeCfg := retrieval.DefaultStoreConfig(cfg.Badger.Path)
	if cfg.Badger.InMemory {
		storeCfg = retrieval.InMemoryStoreConfig()
	}
	facts, err := retrieval.OpenBadgerFactStore(storeCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening fact store: %w", err)
	}
	cleanup := func() {
		if err := facts.Close(); err != nil {
			slog.Error("closing fact store", "error", err)
		}
	}

	weaviateClient, err := weaviate.NewClient(weaviate.Config{
		Host:   cfg.Weaviate.Host,
		Scheme: cfg.Weaviate.Scheme,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("creating weaviate client: %w", err)
	}
	index := retrieval.NewWeaviateIndex(weaviateClient)

	embedClient := openai.NewClient(os.Getenv("OPENAI_API_KEY"))
	embedder := retrieval.NewOpenAIEmbedder(embedClient, cfg.Embed.Model, cfg.Embed.RequestsPerSecond)

	retriever := retrieval.NewRetriever(facts, index, embedder,
		retrieval.WithObserver(observability.PrometheusObserver{}),
		retrieval.WithTopK(cfg.TurnOptions().TopK),
	)
	plnr := planner.NewPlanner(retriever, slog.Default())

	var reranker *rerank.Reranker
	if cfg.Rerank.BaseURL != "" {
		encoder := rerank.NewCrossEncoderClient(cfg.Rerank.BaseURL, 10*time.Second, cfg.Rerank.RequestsPerSecond)
		reranker = rerank.NewReranker(encoder)
	} else {
		slog.Warn("No cross-encoder configured, reranking degrades to raw scores")
		reranker = rerank.NewReranker(nil)
	}

	generator, err := buildGenerator(cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	return assistant.NewAssistant(plnr, reranker, generator, slog.Default()), cleanup, nil
}

func buildGenerator(cfg config.Config) (llm.LLMClient, error) {
	switch cfg.LLM.Backend {
	case "ollama":
		return llm.NewOllamaClient()
	default:
		return llm.NewOpenAIClient()
	}
}
