// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package planner classifies query complexity and decomposes complex
// queries into ordered retrieval steps.
package planner

import (
	"regexp"
	"strings"

	"github.com/finsight-ai/finsight/services/assistant/datatypes"
)

// causalPatterns match causal or explanatory phrasing. A query that asks
// "why" needs narrative evidence on top of the numbers, which pushes it out
// of the simple bucket.
var causalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bwhy\b`),
	regexp.MustCompile(`(?i)\bwhat (drove|caused|explains|led to)\b`),
	regexp.MustCompile(`(?i)\bexplain\b`),
	regexp.MustCompile(`(?i)\breason(s)? (for|behind)\b`),
	regexp.MustCompile(`(?i)\bhow did .+ (affect|impact|influence)\b`),
	regexp.MustCompile(`(?i)\bdriver(s)?\b`),
	regexp.MustCompile(`(?i)\bdespite\b`),
}

// comparativePatterns match multi-entity or trend comparisons.
var comparativePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bcompare(d)?\b`),
	regexp.MustCompile(`(?i)\bversus\b|\bvs\.?\b`),
	regexp.MustCompile(`(?i)\bbetter than\b|\bworse than\b`),
	regexp.MustCompile(`(?i)\boutperform`),
	regexp.MustCompile(`(?i)\brelative to\b`),
}

// contextPatterns match requests for sector or macro framing.
var contextPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bsector\b`),
	regexp.MustCompile(`(?i)\bindustry\b`),
	regexp.MustCompile(`(?i)\bmacro\b`),
	regexp.MustCompile(`(?i)\bpeers?\b`),
	regexp.MustCompile(`(?i)\bmarket[- ]wide\b`),
}

// metricFamilies groups metric IDs into families; queries spanning several
// families need more retrieval work than queries inside one.
var metricFamilies = map[string]string{
	"revenue":          "income",
	"net_income":       "income",
	"gross_profit":     "income",
	"operating_income": "income",
	"eps":              "income",
	"ebitda":           "income",
	"ebitda_margin":    "margin",
	"gross_margin":     "margin",
	"operating_margin": "margin",
	"net_margin":       "margin",
	"free_cash_flow":   "cashflow",
	"operating_cash":   "cashflow",
	"capex":            "cashflow",
	"total_debt":       "balance",
	"cash":             "balance",
	"total_assets":     "balance",
	"pe_ratio":         "valuation",
	"ev_ebitda":        "valuation",
	"market_cap":       "valuation",
}

// Classify buckets a query by surface heuristics.
//
// # Description
//
// Signals counted: causal/explanatory phrasing, comparative phrasing,
// multiple entities, metrics spanning more than one family, and explicit
// sector/macro framing. Zero signals is simple, one is moderate, two or
// more is complex. Deterministic: same query and intent always classify the
// same way.
func Classify(queryText string, intent datatypes.ParsedIntent) datatypes.Complexity {
	signals := 0
	if matchesAny(queryText, causalPatterns) {
		signals++
	}
	if matchesAny(queryText, comparativePatterns) || len(intent.Entities) > 1 {
		signals++
	}
	if metricFamilyCount(intent.Metrics) > 1 {
		signals++
	}
	if matchesAny(queryText, contextPatterns) {
		signals++
	}

	switch {
	case signals == 0:
		return datatypes.ComplexitySimple
	case signals == 1:
		return datatypes.ComplexityModerate
	default:
		return datatypes.ComplexityComplex
	}
}

func matchesAny(text string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

func metricFamilyCount(metrics []string) int {
	seen := make(map[string]bool)
	for _, m := range metrics {
		family, ok := metricFamilies[strings.ToLower(m)]
		if !ok {
			family = strings.ToLower(m)
		}
		seen[family] = true
	}
	return len(seen)
}
