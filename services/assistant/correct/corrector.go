// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package correct rewrites mismatched numeric spans in a drafted answer to
// the values the fact store actually holds.
package correct

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/finsight-ai/finsight/services/assistant/datatypes"
)

// Corrector applies span-level corrections to answer text.
type Corrector struct {
	logger *slog.Logger
}

// NewCorrector builds a Corrector.
func NewCorrector(logger *slog.Logger) *Corrector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Corrector{logger: logger}
}

// Result is the outcome of a correction pass.
type Result struct {
	// Text is the corrected answer, including the correction note and
	// confidence footer when any span changed.
	Text string

	// Applied counts spans actually rewritten.
	Applied int

	// Skipped lists mismatches that could not be applied: overlaps with an
	// already-applied span, stale offsets, or spans whose claim text is no
	// longer present at its offsets.
	Skipped []datatypes.VerificationResult
}

// Apply rewrites every mismatched span to its matched fact's formatted value.
//
// # Description
//
// Spans apply left to right. When two mismatches overlap, the first wins
// and the rest are skipped and logged; a span is never rewritten twice.
// A span only applies when the answer still holds the original claim text
// at its offsets, so re-applying the same results to an already-corrected
// answer is a no-op: correct(correct(a, v), v) == correct(a, v). Verified
// and unverifiable results pass through untouched.
//
// When at least one span changed, the answer gains a correction note and a
// confidence footer rendered from the report.
func (c *Corrector) Apply(answerText string, verifications []datatypes.VerificationResult, report datatypes.ConfidenceReport) Result {
	mismatches := make([]datatypes.VerificationResult, 0, len(verifications))
	for _, v := range verifications {
		if v.Status == datatypes.StatusMismatch && v.MatchedFact != nil {
			mismatches = append(mismatches, v)
		}
	}
	if len(mismatches) == 0 {
		return Result{Text: answerText}
	}
	sort.Slice(mismatches, func(i, j int) bool {
		return mismatches[i].SpanStart < mismatches[j].SpanStart
	})

	var b strings.Builder
	result := Result{}
	cursor := 0
	lastEnd := -1
	for _, m := range mismatches {
		if m.SpanStart < lastEnd {
			result.Skipped = append(result.Skipped, m)
			c.logger.Warn("skipping overlapping correction",
				"span_start", m.SpanStart,
				"span_end", m.SpanEnd,
				"claim", m.ClaimText,
			)
			continue
		}
		if m.SpanStart < cursor || m.SpanEnd > len(answerText) {
			result.Skipped = append(result.Skipped, m)
			c.logger.Warn("skipping correction with stale span",
				"span_start", m.SpanStart,
				"span_end", m.SpanEnd,
			)
			continue
		}
		if m.ClaimText != "" && answerText[m.SpanStart:m.SpanEnd] != m.ClaimText {
			// The answer no longer carries the claim at these offsets:
			// it was already corrected, or the text changed since
			// verification.
			result.Skipped = append(result.Skipped, m)
			c.logger.Warn("skipping correction for shifted claim",
				"span_start", m.SpanStart,
				"span_end", m.SpanEnd,
				"claim", m.ClaimText,
			)
			continue
		}
		b.WriteString(answerText[cursor:m.SpanStart])
		b.WriteString(m.MatchedFact.Unit.Format(m.MatchedFact.Value))
		cursor = m.SpanEnd
		lastEnd = m.SpanEnd
		result.Applied++
	}
	b.WriteString(answerText[cursor:])

	if result.Applied == 0 {
		return Result{Text: answerText, Skipped: result.Skipped}
	}

	b.WriteString(fmt.Sprintf("\n\n(Note: %s corrected against the underlying data.)",
		countPhrase(result.Applied)))
	b.WriteString(fmt.Sprintf("\nConfidence: %.0f%% (%s)", report.Score*100, report.Tone))
	result.Text = b.String()
	return result
}

func countPhrase(n int) string {
	if n == 1 {
		return "1 figure was"
	}
	return fmt.Sprintf("%d figures were", n)
}
