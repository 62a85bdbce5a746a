// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/finsight-ai/finsight/services/assistant/datatypes"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		intent datatypes.ParsedIntent
		want   datatypes.Complexity
	}{
		{
			name:   "single metric lookup is simple",
			query:  "What was AAPL revenue in FY2024?",
			intent: datatypes.ParsedIntent{Entities: []string{"AAPL"}, Metrics: []string{"revenue"}},
			want:   datatypes.ComplexitySimple,
		},
		{
			name:   "causal phrasing alone is moderate",
			query:  "Why did AAPL revenue grow in FY2024?",
			intent: datatypes.ParsedIntent{Entities: []string{"AAPL"}, Metrics: []string{"revenue"}},
			want:   datatypes.ComplexityModerate,
		},
		{
			name:   "two entities alone is moderate",
			query:  "Show AAPL and MSFT revenue for FY2024",
			intent: datatypes.ParsedIntent{Entities: []string{"AAPL", "MSFT"}, Metrics: []string{"revenue"}},
			want:   datatypes.ComplexityModerate,
		},
		{
			name:   "causal comparison across entities is complex",
			query:  "Why did AAPL outperform MSFT on margins?",
			intent: datatypes.ParsedIntent{Entities: []string{"AAPL", "MSFT"}, Metrics: []string{"gross_margin"}},
			want:   datatypes.ComplexityComplex,
		},
		{
			name:   "cross-family metrics with sector framing is complex",
			query:  "How do AAPL revenue and free cash flow stack up against the sector?",
			intent: datatypes.ParsedIntent{Entities: []string{"AAPL"}, Metrics: []string{"revenue", "free_cash_flow"}},
			want:   datatypes.ComplexityComplex,
		},
		{
			name:   "same-family metrics count once",
			query:  "AAPL revenue and net income for FY2024",
			intent: datatypes.ParsedIntent{Entities: []string{"AAPL"}, Metrics: []string{"revenue", "net_income"}},
			want:   datatypes.ComplexitySimple,
		},
		{
			name:  "no intent and no signal words is simple",
			query: "latest quarterly numbers",
			want:  datatypes.ComplexitySimple,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.query, tt.intent))
		})
	}
}

func TestClassifyDeterministic(t *testing.T) {
	intent := datatypes.ParsedIntent{Entities: []string{"AAPL", "MSFT"}}
	query := "Why did AAPL outperform MSFT despite sector headwinds?"
	first := Classify(query, intent)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Classify(query, intent))
	}
}

func TestMetricFamilyCountUnknownMetricIsOwnFamily(t *testing.T) {
	// Unknown metric IDs each stand alone rather than collapsing together.
	assert.Equal(t, 2, metricFamilyCount([]string{"churn_rate", "arpu"}))
	assert.Equal(t, 1, metricFamilyCount([]string{"revenue", "EPS"}))
}
