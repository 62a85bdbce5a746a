// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package planner

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-ai/finsight/services/assistant/datatypes"
	"github.com/finsight-ai/finsight/services/assistant/retrieval"
)

// mockExecutor records every Retrieve call and serves canned results.
type mockExecutor struct {
	mu        sync.Mutex
	calls     []executorCall
	results   map[string]retrieval.Result
	anomalies []string
}

type executorCall struct {
	queryText string
	entityIDs []string
}

func (m *mockExecutor) Retrieve(_ context.Context, queryText string, entityIDs []string, _ retrieval.Filters) (retrieval.Result, []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, executorCall{queryText: queryText, entityIDs: entityIDs})
	return m.results[queryText], m.anomalies
}

func (m *mockExecutor) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func appleFact(metric string) datatypes.Fact {
	return datatypes.Fact{
		EntityID: "AAPL",
		MetricID: metric,
		Period:   datatypes.Period{Basis: datatypes.BasisFiscal, Year: 2024},
		Value:    394.3e9,
		Unit:     datatypes.UnitUSD,
		SourceID: "sec_10k",
	}
}

func TestDecomposeSimpleQuery(t *testing.T) {
	intent := datatypes.ParsedIntent{Entities: []string{"AAPL"}, Metrics: []string{"revenue"}}

	subs := Decompose("What was AAPL revenue?", intent, datatypes.ComplexitySimple, MaxSteps)

	require.Len(t, subs, 1)
	assert.Equal(t, "What was AAPL revenue?", subs[0].Text)
	assert.Equal(t, datatypes.RoleMetricLookup, subs[0].Role)
	assert.True(t, subs[0].Independent)
}

func TestDecomposeComplexQuery(t *testing.T) {
	query := "Why did AAPL outperform MSFT on revenue against the sector?"
	intent := datatypes.ParsedIntent{Entities: []string{"AAPL", "MSFT"}, Metrics: []string{"revenue"}}

	subs := Decompose(query, intent, datatypes.ComplexityComplex, MaxSteps)

	require.Len(t, subs, 4)
	assert.Equal(t, "AAPL revenue", subs[0].Text)
	assert.Equal(t, "MSFT revenue", subs[1].Text)
	assert.True(t, subs[0].Independent)
	assert.True(t, subs[1].Independent)
	assert.Equal(t, datatypes.RoleCausalNarrative, subs[2].Role)
	assert.False(t, subs[2].Independent)
	assert.Equal(t, datatypes.RoleSectorContext, subs[3].Role)
	for i, sq := range subs {
		assert.Equal(t, i, sq.Order)
	}
}

func TestDecomposeModerateQuery(t *testing.T) {
	t.Run("causal moderate adds a narrative step", func(t *testing.T) {
		intent := datatypes.ParsedIntent{Entities: []string{"AAPL"}, Metrics: []string{"revenue"}}

		subs := Decompose("Why did AAPL revenue grow in FY2024?", intent, datatypes.ComplexityModerate, MaxSteps)

		require.Len(t, subs, 2)
		assert.Equal(t, "AAPL revenue", subs[0].Text)
		assert.Equal(t, datatypes.RoleMetricLookup, subs[0].Role)
		assert.True(t, subs[0].Independent)
		assert.Equal(t, datatypes.RoleCausalNarrative, subs[1].Role)
		assert.False(t, subs[1].Independent)
	})

	t.Run("multi-entity moderate splits per entity", func(t *testing.T) {
		intent := datatypes.ParsedIntent{Entities: []string{"AAPL", "MSFT"}, Metrics: []string{"revenue"}}

		subs := Decompose("Show AAPL and MSFT revenue for FY2024", intent, datatypes.ComplexityModerate, MaxSteps)

		require.Len(t, subs, 2)
		assert.Equal(t, "AAPL revenue", subs[0].Text)
		assert.Equal(t, "MSFT revenue", subs[1].Text)
		for i, sq := range subs {
			assert.Equal(t, i, sq.Order)
			assert.Equal(t, datatypes.RoleMetricLookup, sq.Role)
			assert.True(t, sq.Independent)
		}
	})
}

func TestDecomposeCapsAtMaxSteps(t *testing.T) {
	query := "Why did these names diverge versus the sector?"
	intent := datatypes.ParsedIntent{
		Entities: []string{"AAPL", "MSFT", "GOOG", "AMZN", "META", "NVDA"},
		Metrics:  []string{"revenue"},
	}

	subs := Decompose(query, intent, datatypes.ComplexityComplex, MaxSteps)

	assert.Len(t, subs, MaxSteps)
	for _, sq := range subs {
		assert.Equal(t, datatypes.RoleMetricLookup, sq.Role)
	}
}

func TestDecomposeHonorsSmallerMaxSteps(t *testing.T) {
	query := "Why did AAPL outperform MSFT against the sector?"
	intent := datatypes.ParsedIntent{Entities: []string{"AAPL", "MSFT"}, Metrics: []string{"revenue"}}

	subs := Decompose(query, intent, datatypes.ComplexityComplex, 3)

	require.Len(t, subs, 3)
	assert.Equal(t, datatypes.RoleCausalNarrative, subs[2].Role)
}

func TestExecuteSimpleQuerySingleCall(t *testing.T) {
	exec := &mockExecutor{results: map[string]retrieval.Result{
		"What was AAPL revenue?": {Facts: []datatypes.Fact{appleFact("revenue")}},
	}}
	p := NewPlanner(exec, nil)
	intent := datatypes.ParsedIntent{Entities: []string{"AAPL"}, Metrics: []string{"revenue"}}

	plan := p.Execute(context.Background(), "What was AAPL revenue?", intent, retrieval.Filters{}, true, MaxSteps)

	assert.Equal(t, datatypes.PlanCompleted, plan.State)
	assert.Equal(t, datatypes.ComplexitySimple, plan.Complexity)
	assert.Equal(t, 1, exec.callCount())
	require.Len(t, plan.Result.Facts, 1)
	assert.Equal(t, "revenue", plan.Result.Facts[0].MetricID)
}

func TestExecuteComplexQueryMergesAllSteps(t *testing.T) {
	msft := appleFact("revenue")
	msft.EntityID = "MSFT"
	exec := &mockExecutor{results: map[string]retrieval.Result{
		"AAPL revenue": {Facts: []datatypes.Fact{appleFact("revenue")}},
		"MSFT revenue": {Facts: []datatypes.Fact{msft}},
		"Why did AAPL outperform MSFT on revenue against the sector?": {
			NarrativeCandidates: []datatypes.Candidate{{SourceID: "earnings_call", Text: "services growth"}},
		},
	}}
	p := NewPlanner(exec, nil)
	query := "Why did AAPL outperform MSFT on revenue against the sector?"
	intent := datatypes.ParsedIntent{Entities: []string{"AAPL", "MSFT"}, Metrics: []string{"revenue"}}

	plan := p.Execute(context.Background(), query, intent, retrieval.Filters{}, true, MaxSteps)

	assert.Equal(t, datatypes.PlanCompleted, plan.State)
	assert.Equal(t, datatypes.ComplexityComplex, plan.Complexity)
	assert.Equal(t, 4, exec.callCount())
	assert.Len(t, plan.Result.Facts, 2)
	assert.Len(t, plan.Result.NarrativeCandidates, 1)
}

func TestExecuteMetricLookupNarrowsEntities(t *testing.T) {
	exec := &mockExecutor{results: map[string]retrieval.Result{}}
	p := NewPlanner(exec, nil)
	query := "Why did AAPL outperform MSFT on revenue?"
	intent := datatypes.ParsedIntent{Entities: []string{"AAPL", "MSFT"}, Metrics: []string{"revenue"}}

	p.Execute(context.Background(), query, intent, retrieval.Filters{}, true, MaxSteps)

	narrowed := make(map[string][]string)
	exec.mu.Lock()
	for _, call := range exec.calls {
		narrowed[call.queryText] = call.entityIDs
	}
	exec.mu.Unlock()
	assert.Equal(t, []string{"AAPL"}, narrowed["AAPL revenue"])
	assert.Equal(t, []string{"MSFT"}, narrowed["MSFT revenue"])
	// The causal step keeps the full entity set.
	assert.Equal(t, []string{"AAPL", "MSFT"}, narrowed[query])
}

func TestExecuteMultiHopDisabledForcesSingleStep(t *testing.T) {
	query := "Why did AAPL outperform MSFT against the sector?"
	exec := &mockExecutor{results: map[string]retrieval.Result{}}
	p := NewPlanner(exec, nil)
	intent := datatypes.ParsedIntent{Entities: []string{"AAPL", "MSFT"}}

	plan := p.Execute(context.Background(), query, intent, retrieval.Filters{}, false, MaxSteps)

	// Classification still reports the true complexity.
	assert.Equal(t, datatypes.ComplexityComplex, plan.Complexity)
	assert.Equal(t, 1, exec.callCount())
	require.Len(t, plan.SubQueries, 1)
	assert.Equal(t, query, plan.SubQueries[0].Text)
}

func TestExecuteCancelledContextAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	exec := &mockExecutor{results: map[string]retrieval.Result{}}
	p := NewPlanner(exec, nil)

	plan := p.Execute(ctx, "What was AAPL revenue?", datatypes.ParsedIntent{Entities: []string{"AAPL"}}, retrieval.Filters{}, true, MaxSteps)

	assert.Equal(t, datatypes.PlanAborted, plan.State)
	require.NotEmpty(t, plan.Anomalies)
	assert.Contains(t, plan.Anomalies[len(plan.Anomalies)-1], "plan aborted")
}

func TestExecuteCollectsAnomalies(t *testing.T) {
	exec := &mockExecutor{
		results:   map[string]retrieval.Result{},
		anomalies: []string{"vector index unavailable, lexical fallback"},
	}
	p := NewPlanner(exec, nil)

	plan := p.Execute(context.Background(), "AAPL revenue", datatypes.ParsedIntent{Entities: []string{"AAPL"}}, retrieval.Filters{}, true, MaxSteps)

	assert.Equal(t, datatypes.PlanCompleted, plan.State)
	require.Len(t, plan.Anomalies, 1)
	assert.Contains(t, plan.Anomalies[0], "lexical fallback")
}

func TestNewPlannerPanicsOnNilExecutor(t *testing.T) {
	assert.Panics(t, func() { NewPlanner(nil, nil) })
}
