// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package assistant wires the retrieval-and-verification pipeline for one
// conversational turn: plan, retrieve, rerank, fuse, gate, generate, verify,
// and correct.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/finsight-ai/finsight/services/assistant/confidence"
	"github.com/finsight-ai/finsight/services/assistant/correct"
	"github.com/finsight-ai/finsight/services/assistant/datatypes"
	"github.com/finsight-ai/finsight/services/assistant/fusion"
	"github.com/finsight-ai/finsight/services/assistant/gate"
	"github.com/finsight-ai/finsight/services/assistant/observability"
	"github.com/finsight-ai/finsight/services/assistant/planner"
	"github.com/finsight-ai/finsight/services/assistant/rerank"
	"github.com/finsight-ai/finsight/services/assistant/retrieval"
	"github.com/finsight-ai/finsight/services/assistant/verify"
	"github.com/finsight-ai/finsight/services/llm"
)

var tracer = otel.Tracer("finsight.assistant")

// =============================================================================
// Assistant
// =============================================================================

// TurnRequest is one user turn as the transport layer hands it to the core.
type TurnRequest struct {
	// Query is the raw user text.
	Query string `json:"query"`

	// Intent is the upstream NLU interpretation of Query.
	Intent datatypes.ParsedIntent `json:"intent"`

	// ConversationID scopes uploaded-document retrieval. Empty means the
	// turn sees no uploaded content at all.
	ConversationID string `json:"conversation_id,omitempty"`

	// Options override the defaults for this turn only; nil uses defaults.
	Options *datatypes.TurnOptions `json:"options,omitempty"`
}

// Assistant owns the per-turn pipeline. Stateless across turns: everything
// a turn needs travels through HandleTurn's arguments and locals, so
// concurrent turns never share mutable state.
type Assistant struct {
	planner   *planner.Planner
	reranker  *rerank.Reranker
	generator llm.LLMClient
	verifier  *verify.AnswerVerifier
	corrector *correct.Corrector
	defaults  datatypes.TurnOptions
	logger    *slog.Logger
}

// NewAssistant builds the pipeline. Panics when planner or generator is
// nil; a nil reranker degrades every turn to raw-score ordering.
func NewAssistant(p *planner.Planner, r *rerank.Reranker, generator llm.LLMClient, logger *slog.Logger) *Assistant {
	if p == nil {
		panic("assistant: planner must not be nil")
	}
	if generator == nil {
		panic("assistant: generator must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if r == nil {
		r = rerank.NewReranker(nil)
	}
	return &Assistant{
		planner:   p,
		reranker:  r,
		generator: generator,
		verifier:  verify.NewAnswerVerifier(logger),
		corrector: correct.NewCorrector(logger),
		defaults:  datatypes.DefaultTurnOptions(),
		logger:    logger,
	}
}

// =============================================================================
// HandleTurn
// =============================================================================

// HandleTurn runs one user turn through the full pipeline.
//
// # Description
//
// Stages run in a fixed order: plan+retrieve, rerank, fuse, gate, generate,
// verify, cross-validate, check citations, score confidence, correct.
// Source failures degrade inside retrieval and surface as anomalies, never
// as errors. A gate refusal is an ordinary result carrying the suggested
// response. The only error paths are invalid options, a cancelled context,
// and a generation backend failure.
//
// # Inputs
//
//   - ctx: cancellation covers every stage; a cancelled context aborts the
//     turn with ctx.Err().
//   - req: the turn. Entity resolution happened upstream; an empty
//     req.Intent means retrieval has nothing structured to look up.
//
// # Outputs
//
//   - TurnResult with the final answer text, decision, confidence report,
//     citations, and the full verification detail.
func (a *Assistant) HandleTurn(ctx context.Context, req TurnRequest) (datatypes.TurnResult, error) {
	ctx, span := tracer.Start(ctx, "assistant.HandleTurn")
	defer span.End()

	opts := a.defaults
	if req.Options != nil {
		opts = *req.Options
	}
	if err := opts.Validate(); err != nil {
		return datatypes.TurnResult{}, err
	}

	result := datatypes.TurnResult{
		TurnID:       uuid.NewString(),
		StageTimings: make(map[string]time.Duration),
	}
	span.SetAttributes(attribute.String("turn_id", result.TurnID))
	log := a.logger.With("turn_id", result.TurnID)

	// Plan and retrieve.
	stageStart := time.Now()
	filters := retrieval.Filters{
		Metrics:        req.Intent.Metrics,
		Period:         req.Intent.Period,
		ConversationID: req.ConversationID,
	}
	plan := a.planner.Execute(ctx, req.Query, req.Intent, filters, opts.MultiHopEnabled, opts.MaxSteps)
	result.Anomalies = append(result.Anomalies, plan.Anomalies...)
	a.recordStage(&result, "retrieve", stageStart)
	if plan.State == datatypes.PlanAborted {
		if err := ctx.Err(); err != nil {
			return datatypes.TurnResult{}, err
		}
	}

	// Rerank narrative candidates; facts carry their scores as-is.
	stageStart = time.Now()
	factCands := make([]datatypes.Candidate, 0, len(plan.Result.Facts))
	for _, f := range plan.Result.Facts {
		factCands = append(factCands, datatypes.FactCandidate(f))
	}
	curated, uploaded := a.rerankChunks(ctx, req.Query, plan.Result, opts)
	a.recordStage(&result, "rerank", stageStart)

	// Fuse.
	stageStart = time.Now()
	fused := fusion.FuseAllSources(factCands, curated, uploaded)
	a.recordStage(&result, "fuse", stageStart)

	// Gate.
	stageStart = time.Now()
	gateCfg := gate.Config{
		MinConfidence:          opts.MinConfidence,
		ContradictionTolerance: opts.ContradictionTolerance,
	}
	entitiesResolved := len(req.Intent.Entities) > 0
	result.Decision = gate.Evaluate(gateCfg, fused.Candidates, fused.OverallConfidence, entitiesResolved)
	a.recordStage(&result, "gate", stageStart)
	if !result.Decision.ShouldAnswer {
		result.AnswerText = result.Decision.SuggestedResponse
		// No claims were verified; report the retrieval-time confidence
		// with a cautious tone rather than a zero-value report.
		result.Confidence = datatypes.ConfidenceReport{
			Score:            fused.OverallConfidence,
			CitationCoverage: 1,
			Tone:             datatypes.ToneCautious,
		}
		log.Info("turn refused", "reason", result.Decision.Reason)
		observability.RecordTurn(result.Decision, result.Confidence)
		return result, nil
	}

	// Generate.
	stageStart = time.Now()
	answer, err := a.generate(ctx, req.Query, fused.Candidates)
	a.recordStage(&result, "generate", stageStart)
	if err != nil {
		return datatypes.TurnResult{}, fmt.Errorf("generation failed: %w", err)
	}

	// Verify against facts, across sources, and per citation.
	stageStart = time.Now()
	result.Verifications = a.verifier.Verify(ctx, answer, plan.Result.Facts, req.Intent, opts.MaxDeviation)
	result.Discrepancies = verify.CrossValidate(plan.Result.Facts, opts.DiscrepancyThreshold)
	result.CitationIssues = verify.VerifyCitations(answer, fused.Candidates, req.Intent)
	a.recordStage(&result, "verify", stageStart)
	observability.RecordVerifications(result.Verifications)

	// Score and correct.
	stageStart = time.Now()
	result.Confidence = confidence.Score(
		fused.OverallConfidence,
		result.Verifications,
		result.Discrepancies,
		result.CitationIssues,
		verify.CountCitations(answer),
	)
	if opts.AutoCorrect {
		corrected := a.corrector.Apply(answer, result.Verifications, result.Confidence)
		if corrected.Applied > 0 {
			answer = corrected.Text
			observability.RecordCorrections(corrected.Applied)
			log.Info("corrections applied", "count", corrected.Applied, "skipped", len(corrected.Skipped))
		}
	}
	a.recordStage(&result, "correct", stageStart)

	result.AnswerText = answer
	result.Citations = citationRefs(answer, fused.Candidates)
	observability.RecordTurn(result.Decision, result.Confidence)
	log.Info("turn answered",
		"confidence", result.Confidence.Score,
		"tone", result.Confidence.Tone,
		"claims", result.Confidence.TotalCount,
		"discrepancies", len(result.Discrepancies),
	)
	return result, nil
}

// rerankChunks reranks curated and uploaded candidates in one model call
// and splits them back per source for fusion's per-source normalization.
func (a *Assistant) rerankChunks(ctx context.Context, query string, res retrieval.Result, opts datatypes.TurnOptions) (curated, uploaded []datatypes.Candidate) {
	chunks := make([]datatypes.Candidate, 0, len(res.NarrativeCandidates)+len(res.UploadedCandidates))
	chunks = append(chunks, res.NarrativeCandidates...)
	chunks = append(chunks, res.UploadedCandidates...)

	if opts.RerankEnabled {
		chunks = a.reranker.Rerank(ctx, query, chunks, opts.TopK, opts.ScoreThreshold)
	} else {
		out := make([]datatypes.Candidate, len(chunks))
		copy(out, chunks)
		for i := range out {
			out[i].RerankScore = out[i].RawScore
		}
		chunks = out
	}

	for _, c := range chunks {
		if c.SourceKind == datatypes.SourceUploadedNarrative {
			uploaded = append(uploaded, c)
		} else {
			curated = append(curated, c)
		}
	}
	return curated, uploaded
}

// =============================================================================
// Generation
// =============================================================================

// maxEvidenceLines bounds the prompt's evidence block.
const maxEvidenceLines = 20

var lowTemperature = float32(0.1)

// generate builds the grounded prompt and calls the backend.
func (a *Assistant) generate(ctx context.Context, query string, evidence []datatypes.Candidate) (string, error) {
	ctx, span := tracer.Start(ctx, "assistant.generate")
	defer span.End()

	prompt := buildPrompt(query, evidence)
	params := llm.GenerationParams{Temperature: &lowTemperature}
	return a.generator.Generate(ctx, prompt, params)
}

// buildPrompt renders the fused evidence into a numbered block the model
// must answer from, each line tagged with its [source_id] marker so the
// model can cite it.
func buildPrompt(query string, evidence []datatypes.Candidate) string {
	var b []byte
	b = append(b, "Answer the question using only the evidence below. "...)
	b = append(b, "Cite evidence with its [source_id] marker. If the evidence "...)
	b = append(b, "does not cover the question, say so.\n\nEvidence:\n"...)
	n := len(evidence)
	if n > maxEvidenceLines {
		n = maxEvidenceLines
	}
	for i := 0; i < n; i++ {
		c := evidence[i]
		b = append(b, fmt.Sprintf("%d. [%s] %s\n", i+1, c.SourceID, c.Text)...)
	}
	b = append(b, "\nQuestion: "...)
	b = append(b, query...)
	return string(b)
}

// citationRefs resolves the answer's citation markers to SourceRefs, scored
// by the best fused score among the cited source's candidates.
func citationRefs(answer string, evidence []datatypes.Candidate) []datatypes.SourceRef {
	type sourceInfo struct {
		kind  datatypes.SourceKind
		score float64
	}
	bySource := make(map[string]sourceInfo)
	for _, c := range evidence {
		info, ok := bySource[c.SourceID]
		if !ok || c.FusedScore > info.score {
			bySource[c.SourceID] = sourceInfo{kind: c.SourceKind, score: c.FusedScore}
		}
	}

	var refs []datatypes.SourceRef
	for _, id := range verify.CitationMarkers(answer) {
		info, ok := bySource[id]
		if !ok {
			continue
		}
		refs = append(refs, datatypes.SourceRef{SourceID: id, Kind: info.kind, Score: info.score})
	}
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Score > refs[j].Score })
	return refs
}

func (a *Assistant) recordStage(result *datatypes.TurnResult, stage string, start time.Time) {
	d := time.Since(start)
	result.StageTimings[stage] = d
	observability.RecordStage(stage, d)
}
