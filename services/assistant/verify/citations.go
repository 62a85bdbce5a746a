// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package verify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/finsight-ai/finsight/services/assistant/datatypes"
)

// citationPattern matches inline citation markers of the form [sec_10k].
// Marker names are source IDs: lowercase, digits, and underscores.
var citationPattern = regexp.MustCompile(`\[([a-z][a-z0-9_]*)\]`)

// CitationMarkers returns the source IDs cited in answerText, in order of
// first appearance, without duplicates.
func CitationMarkers(answerText string) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, m := range citationPattern.FindAllStringSubmatch(answerText, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			ids = append(ids, m[1])
		}
	}
	return ids
}

// CountCitations returns the total number of citation markers in answerText,
// duplicates included.
func CountCitations(answerText string) int {
	return len(citationPattern.FindAllString(answerText, -1))
}

// VerifyCitations checks every citation marker in an answer against the
// evidence candidates the answer was generated from.
//
// # Description
//
// Three failure kinds, checked in order per marker:
//
//   - dangling: the cited source ID appears in no evidence candidate.
//   - mismatched_entity: the citing sentence names an entity the cited
//     source's candidates never cover.
//   - mismatched_period: the citing sentence names a period the cited
//     source's candidates never cover.
//
// A marker can raise at most one issue. Sentences that name no entity or
// period cannot mismatch; only what the sentence asserts is checked.
func VerifyCitations(answerText string, candidates []datatypes.Candidate, intent datatypes.ParsedIntent) []datatypes.CitationIssue {
	bySource := make(map[string][]datatypes.Candidate)
	for _, c := range candidates {
		bySource[c.SourceID] = append(bySource[c.SourceID], c)
	}

	var issues []datatypes.CitationIssue
	for _, s := range sentenceSpans(answerText) {
		sentence := answerText[s.start:s.end]
		for _, m := range citationPattern.FindAllStringSubmatch(sentence, -1) {
			marker, sourceID := m[0], m[1]
			cited, ok := bySource[sourceID]
			if !ok {
				issues = append(issues, datatypes.CitationIssue{
					Kind:     datatypes.CitationDangling,
					Marker:   marker,
					SourceID: sourceID,
					Sentence: sentence,
					Detail:   fmt.Sprintf("source %q is not in the evidence set", sourceID),
				})
				continue
			}
			if issue, bad := checkCoverage(marker, sentence, sourceID, cited, intent); bad {
				issues = append(issues, issue)
			}
		}
	}
	return issues
}

func checkCoverage(marker, sentence, sourceID string, cited []datatypes.Candidate, intent datatypes.ParsedIntent) (datatypes.CitationIssue, bool) {
	entity := sentenceEntity(sentence, cited, intent)
	if entity != "" && !sourceCoversEntity(cited, entity) {
		return datatypes.CitationIssue{
			Kind:     datatypes.CitationMismatchedEntity,
			Marker:   marker,
			SourceID: sourceID,
			Sentence: sentence,
			Detail:   fmt.Sprintf("source %q has no evidence for %s", sourceID, entity),
		}, true
	}

	period := resolvePeriod(sentence, datatypes.ParsedIntent{})
	if !period.IsZero() && !sourceCoversPeriod(cited, period) {
		return datatypes.CitationIssue{
			Kind:     datatypes.CitationMismatchedPeriod,
			Marker:   marker,
			SourceID: sourceID,
			Sentence: sentence,
			Detail:   fmt.Sprintf("source %q has no evidence for %s", sourceID, period.String()),
		}, true
	}
	return datatypes.CitationIssue{}, false
}

// sentenceEntity finds an entity the sentence explicitly names, drawing the
// candidate vocabulary from the full evidence pool plus the parsed intent.
func sentenceEntity(sentence string, cited []datatypes.Candidate, intent datatypes.ParsedIntent) string {
	upper := strings.ToUpper(sentence)
	seen := make(map[string]bool)
	vocab := make([]string, 0, len(cited)+len(intent.Entities))
	for _, c := range cited {
		if c.EntityID != "" && !seen[c.EntityID] {
			seen[c.EntityID] = true
			vocab = append(vocab, c.EntityID)
		}
	}
	for _, e := range intent.Entities {
		if !seen[e] {
			seen[e] = true
			vocab = append(vocab, e)
		}
	}
	for _, e := range vocab {
		if strings.Contains(upper, strings.ToUpper(e)) {
			return e
		}
	}
	return ""
}

func sourceCoversEntity(cited []datatypes.Candidate, entity string) bool {
	for _, c := range cited {
		if c.EntityID == "" || strings.EqualFold(c.EntityID, entity) {
			return true
		}
	}
	return false
}

func sourceCoversPeriod(cited []datatypes.Candidate, period datatypes.Period) bool {
	for _, c := range cited {
		if c.Period.IsZero() || c.Period.Equal(period) {
			return true
		}
	}
	return false
}
