// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package planner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/finsight-ai/finsight/services/assistant/datatypes"
	"github.com/finsight-ai/finsight/services/assistant/retrieval"
)

var tracer = otel.Tracer("finsight.assistant.planner")

// MaxSteps bounds the number of sub-queries a single plan may execute.
const MaxSteps = 5

// =============================================================================
// Interfaces
// =============================================================================

// Executor runs one retrieval pass. Satisfied by *retrieval.Retriever.
type Executor interface {
	Retrieve(ctx context.Context, queryText string, entityIDs []string, filters retrieval.Filters) (retrieval.Result, []string)
}

var _ Executor = (*retrieval.Retriever)(nil)

// =============================================================================
// Types
// =============================================================================

// Plan is the outcome of planning and executing one turn's retrieval.
type Plan struct {
	Complexity datatypes.Complexity
	SubQueries []datatypes.SubQuery
	Result     retrieval.Result
	Anomalies  []string
	State      datatypes.PlanState
}

// Planner decomposes complex queries into ordered sub-queries and executes
// them against a single retriever.
type Planner struct {
	executor Executor
	logger   *slog.Logger
}

// NewPlanner builds a Planner. Panics if executor is nil.
func NewPlanner(executor Executor, logger *slog.Logger) *Planner {
	if executor == nil {
		panic("planner: executor must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{executor: executor, logger: logger}
}

// =============================================================================
// Planning
// =============================================================================

// Decompose splits a query into ordered sub-queries.
//
// # Description
//
// Simple queries produce a single sub-query carrying the original text.
// Moderate and complex queries produce up to maxSteps ordered sub-queries
// (capped at MaxSteps): one metric lookup per entity (independent of each
// other), then a causal narrative step when the query has causal phrasing,
// then a sector context step when it has sector framing. A moderate query
// carries exactly one of those signals, so its plan is the lookup(s) plus
// at most one supporting step. Later steps depend on the metric lookups
// and run sequentially after them.
func Decompose(queryText string, intent datatypes.ParsedIntent, complexity datatypes.Complexity, maxSteps int) []datatypes.SubQuery {
	if maxSteps <= 0 || maxSteps > MaxSteps {
		maxSteps = MaxSteps
	}
	if complexity == datatypes.ComplexitySimple {
		return []datatypes.SubQuery{{
			Text:        queryText,
			Role:        datatypes.RoleMetricLookup,
			Order:       0,
			Independent: true,
		}}
	}

	subs := make([]datatypes.SubQuery, 0, maxSteps)
	entities := intent.Entities
	if len(entities) == 0 {
		entities = []string{""}
	}
	for _, entity := range entities {
		if len(subs) == maxSteps {
			return subs
		}
		text := queryText
		if entity != "" {
			text = fmt.Sprintf("%s %s", entity, metricPhrase(intent.Metrics))
		}
		subs = append(subs, datatypes.SubQuery{
			Text:        text,
			Role:        datatypes.RoleMetricLookup,
			Order:       len(subs),
			Independent: true,
		})
	}
	if matchesAny(queryText, causalPatterns) && len(subs) < maxSteps {
		subs = append(subs, datatypes.SubQuery{
			Text:  queryText,
			Role:  datatypes.RoleCausalNarrative,
			Order: len(subs),
		})
	}
	if matchesAny(queryText, contextPatterns) && len(subs) < maxSteps {
		subs = append(subs, datatypes.SubQuery{
			Text:  fmt.Sprintf("sector and peer context: %s", queryText),
			Role:  datatypes.RoleSectorContext,
			Order: len(subs),
		})
	}
	return subs
}

func metricPhrase(metrics []string) string {
	if len(metrics) == 0 {
		return "key financial metrics"
	}
	return strings.Join(metrics, " ")
}

// =============================================================================
// Execution
// =============================================================================

// Execute classifies, decomposes, and runs retrieval for one turn.
//
// # Description
//
// Independent sub-queries (the metric lookups) run concurrently; dependent
// steps run sequentially afterwards in plan order. All sub-query results
// merge into one Result so downstream fusion sees a single candidate pool.
// Retrieval never fails a step; per-source anomalies accumulate on the plan.
// A cancelled context aborts the plan with whatever results completed.
func (p *Planner) Execute(ctx context.Context, queryText string, intent datatypes.ParsedIntent, filters retrieval.Filters, multiHop bool, maxSteps int) Plan {
	ctx, span := tracer.Start(ctx, "planner.Execute")
	defer span.End()

	complexity := Classify(queryText, intent)
	effective := complexity
	if !multiHop {
		effective = datatypes.ComplexitySimple
	}
	subs := Decompose(queryText, intent, effective, maxSteps)
	span.SetAttributes(
		attribute.String("complexity", string(complexity)),
		attribute.Int("sub_queries", len(subs)),
	)

	plan := Plan{
		Complexity: complexity,
		SubQueries: subs,
		State:      datatypes.PlanCompleted,
	}

	var independent, dependent []datatypes.SubQuery
	for _, sq := range subs {
		if sq.Independent {
			independent = append(independent, sq)
		} else {
			dependent = append(dependent, sq)
		}
	}

	results := make([]retrieval.Result, len(independent))
	anomalies := make([][]string, len(independent))
	g, gctx := errgroup.WithContext(ctx)
	for i, sq := range independent {
		g.Go(func() error {
			results[i], anomalies[i] = p.executor.Retrieve(gctx, sq.Text, p.entitiesFor(sq, intent), filters)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		plan.State = datatypes.PlanAborted
		plan.Anomalies = append(plan.Anomalies, fmt.Sprintf("plan aborted: %v", err))
	}
	for i := range results {
		plan.Result.Merge(results[i])
		plan.Anomalies = append(plan.Anomalies, anomalies[i]...)
	}
	if plan.State == datatypes.PlanAborted {
		return plan
	}

	for _, sq := range dependent {
		if ctx.Err() != nil {
			plan.State = datatypes.PlanAborted
			plan.Anomalies = append(plan.Anomalies, fmt.Sprintf("plan aborted: %v", ctx.Err()))
			return plan
		}
		res, notes := p.executor.Retrieve(ctx, sq.Text, intent.Entities, filters)
		plan.Result.Merge(res)
		plan.Anomalies = append(plan.Anomalies, notes...)
	}

	p.logger.Debug("plan executed",
		"complexity", complexity,
		"sub_queries", len(subs),
		"facts", len(plan.Result.Facts),
		"anomalies", len(plan.Anomalies),
	)
	return plan
}

// entitiesFor narrows a metric lookup to its own entity when the sub-query
// text names exactly one; otherwise the full entity set applies.
func (p *Planner) entitiesFor(sq datatypes.SubQuery, intent datatypes.ParsedIntent) []string {
	if sq.Role != datatypes.RoleMetricLookup {
		return intent.Entities
	}
	for _, e := range intent.Entities {
		if strings.HasPrefix(sq.Text, e+" ") {
			return []string{e}
		}
	}
	return intent.Entities
}
