// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package verify checks generated answers against the evidence they were
// generated from: numeric claims against facts, facts against each other,
// and citations against the sources they name.
package verify

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/finsight-ai/finsight/services/assistant/datatypes"
)

// =============================================================================
// Numeric claim extraction
// =============================================================================

// Claim is one numeric assertion pulled out of an answer, normalized to the
// base unit of its kind and tied back to its span in the original text.
type Claim struct {
	// Text is the sentence the number appeared in.
	Text string

	// SpanStart and SpanEnd bound the numeric token itself within the
	// answer, so a correction can replace just the number.
	SpanStart int
	SpanEnd   int

	// Value is normalized to the fact base unit: currency in absolute
	// dollars, percent as a fraction (17% -> 0.17), multiples as the bare
	// ratio.
	Value float64
	Unit  datatypes.Unit

	// EntityID, MetricID, and Period are resolved from the surrounding
	// sentence; empty when the sentence names none.
	EntityID string
	MetricID string
	Period   datatypes.Period
}

// currencyPattern matches dollar amounts with an optional magnitude suffix:
// $394.3B, $394.3 billion, $1,250 million, $42.
var currencyPattern = regexp.MustCompile(
	`\$\s?([\d,]+(?:\.\d+)?)\s?(trillion|billion|million|thousand|[TtBbMmKk])?\b`)

// percentPattern matches 17%, 17.5%, and "17 percent".
var percentPattern = regexp.MustCompile(
	`\b(\d+(?:\.\d+)?)\s?(?:%|percent)`)

// multiplePattern matches valuation multiples: 2.5x, 12x.
var multiplePattern = regexp.MustCompile(
	`\b(\d+(?:\.\d+)?)x\b`)

var magnitudes = map[string]float64{
	"trillion": 1e12, "t": 1e12,
	"billion": 1e9, "b": 1e9,
	"million": 1e6, "m": 1e6,
	"thousand": 1e3, "k": 1e3,
}

// ExtractClaims finds every numeric claim in answerText and associates each
// with an entity, metric, and period from its containing sentence.
//
// # Description
//
// Three claim shapes are recognized: currency, percent, and multiple.
// Currency magnitudes normalize to absolute dollars. Association works on
// the sentence window around the number; when a sentence is silent on
// entity or period, the turn's parsed intent fills the blank so that "its
// revenue was $250B" still resolves against the entity under discussion.
// Extraction never fails: text with no recognizable numbers yields an
// empty slice.
func ExtractClaims(answerText string, intent datatypes.ParsedIntent, knownEntities []string) []Claim {
	var claims []Claim
	for _, s := range sentenceSpans(answerText) {
		sentence := answerText[s.start:s.end]
		entity := resolveEntity(sentence, knownEntities, intent)
		period := resolvePeriod(sentence, intent)

		for _, m := range currencyPattern.FindAllStringSubmatchIndex(sentence, -1) {
			value, ok := parseCurrency(sentence, m)
			if !ok {
				continue
			}
			claims = append(claims, Claim{
				Text:      sentence,
				SpanStart: s.start + m[0],
				SpanEnd:   s.start + m[1],
				Value:     value,
				Unit:      datatypes.UnitUSD,
				EntityID:  entity,
				MetricID:  resolveMetric(sentence, datatypes.UnitUSD),
				Period:    period,
			})
		}
		for _, m := range percentPattern.FindAllStringSubmatchIndex(sentence, -1) {
			raw := sentence[m[2]:m[3]]
			value, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				continue
			}
			claims = append(claims, Claim{
				Text:      sentence,
				SpanStart: s.start + m[0],
				SpanEnd:   s.start + m[1],
				Value:     value / 100,
				Unit:      datatypes.UnitPercent,
				EntityID:  entity,
				MetricID:  resolveMetric(sentence, datatypes.UnitPercent),
				Period:    period,
			})
		}
		for _, m := range multiplePattern.FindAllStringSubmatchIndex(sentence, -1) {
			raw := sentence[m[2]:m[3]]
			value, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				continue
			}
			claims = append(claims, Claim{
				Text:      sentence,
				SpanStart: s.start + m[0],
				SpanEnd:   s.start + m[1],
				Value:     value,
				Unit:      datatypes.UnitRatio,
				EntityID:  entity,
				MetricID:  resolveMetric(sentence, datatypes.UnitRatio),
				Period:    period,
			})
		}
	}
	return claims
}

func parseCurrency(sentence string, m []int) (float64, bool) {
	raw := strings.ReplaceAll(sentence[m[2]:m[3]], ",", "")
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	if m[4] >= 0 {
		suffix := strings.ToLower(sentence[m[4]:m[5]])
		if mag, ok := magnitudes[suffix]; ok {
			value *= mag
		}
	}
	return value, true
}

// =============================================================================
// Sentence windows and association
// =============================================================================

type span struct{ start, end int }

// sentenceSpans splits text on sentence terminators, keeping byte offsets
// into the original so claim spans stay addressable.
func sentenceSpans(text string) []span {
	var spans []span
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?', '\n':
			// A period inside a number ($394.3B) is not a terminator.
			if text[i] == '.' && i+1 < len(text) && text[i+1] >= '0' && text[i+1] <= '9' {
				continue
			}
			if i > start {
				spans = append(spans, span{start: start, end: i + 1})
			}
			start = i + 1
		}
	}
	if start < len(text) {
		spans = append(spans, span{start: start, end: len(text)})
	}
	return spans
}

func resolveEntity(sentence string, knownEntities []string, intent datatypes.ParsedIntent) string {
	upper := strings.ToUpper(sentence)
	for _, e := range knownEntities {
		if strings.Contains(upper, strings.ToUpper(e)) {
			return e
		}
	}
	if len(intent.Entities) == 1 {
		return intent.Entities[0]
	}
	return ""
}

// metricAliases maps surface terms to canonical metric IDs, most specific
// first so "gross margin" never resolves to the bare "margin" family.
var metricAliases = []struct {
	term   string
	metric string
	unit   datatypes.Unit
}{
	{"free cash flow", "free_cash_flow", datatypes.UnitUSD},
	{"operating income", "operating_income", datatypes.UnitUSD},
	{"operating margin", "operating_margin", datatypes.UnitPercent},
	{"gross margin", "gross_margin", datatypes.UnitPercent},
	{"ebitda margin", "ebitda_margin", datatypes.UnitPercent},
	{"net margin", "net_margin", datatypes.UnitPercent},
	{"net income", "net_income", datatypes.UnitUSD},
	{"gross profit", "gross_profit", datatypes.UnitUSD},
	{"earnings per share", "eps", datatypes.UnitUSD},
	{"market cap", "market_cap", datatypes.UnitUSD},
	{"total debt", "total_debt", datatypes.UnitUSD},
	{"ev/ebitda", "ev_ebitda", datatypes.UnitRatio},
	{"p/e", "pe_ratio", datatypes.UnitRatio},
	{"ebitda", "ebitda", datatypes.UnitUSD},
	{"revenue", "revenue", datatypes.UnitUSD},
	{"sales", "revenue", datatypes.UnitUSD},
	{"eps", "eps", datatypes.UnitUSD},
	{"capex", "capex", datatypes.UnitUSD},
	{"margin", "net_margin", datatypes.UnitPercent},
	{"grew", "revenue_growth", datatypes.UnitPercent},
	{"growth", "revenue_growth", datatypes.UnitPercent},
}

// resolveMetric picks the first alias present in the sentence whose unit is
// compatible with the claim's unit. A USD claim never resolves to a margin.
func resolveMetric(sentence string, unit datatypes.Unit) string {
	lower := strings.ToLower(sentence)
	for _, a := range metricAliases {
		if a.unit != unit {
			continue
		}
		if strings.Contains(lower, a.term) {
			return a.metric
		}
	}
	return ""
}

var (
	quarterPeriodPattern = regexp.MustCompile(`(?i)\bQ([1-4])\s*(?:FY\s*)?(\d{4})\b`)
	fiscalYearPattern    = regexp.MustCompile(`(?i)\b(?:FY\s*|fiscal\s+(?:year\s+)?)(\d{4})\b`)
	bareYearPattern      = regexp.MustCompile(`\b(20\d{2})\b`)
)

func resolvePeriod(sentence string, intent datatypes.ParsedIntent) datatypes.Period {
	if m := quarterPeriodPattern.FindStringSubmatch(sentence); m != nil {
		q, _ := strconv.Atoi(m[1])
		y, _ := strconv.Atoi(m[2])
		return datatypes.Period{Basis: datatypes.BasisFiscal, Year: y, Quarter: q}
	}
	if m := fiscalYearPattern.FindStringSubmatch(sentence); m != nil {
		y, _ := strconv.Atoi(m[1])
		return datatypes.Period{Basis: datatypes.BasisFiscal, Year: y}
	}
	if m := bareYearPattern.FindStringSubmatch(sentence); m != nil {
		y, _ := strconv.Atoi(m[1])
		return datatypes.Period{Basis: datatypes.BasisFiscal, Year: y}
	}
	return intent.Period
}
