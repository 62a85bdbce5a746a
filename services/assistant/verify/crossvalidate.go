// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package verify

import (
	"math"
	"sort"

	"github.com/finsight-ai/finsight/services/assistant/datatypes"
)

// DefaultDiscrepancyThreshold is the relative disagreement at which two
// sources' values for the same metric and period count as a discrepancy.
const DefaultDiscrepancyThreshold = 0.05

// CrossValidate compares facts for the same (entity, metric, period) across
// sources and flags pairwise disagreements beyond threshold. A non-positive
// threshold falls back to DefaultDiscrepancyThreshold.
//
// # Description
//
// Groups with a single source produce nothing: cross-validation needs at
// least two independent reports of the same figure. The pipeline only
// flags; it never decides which source is right. Output order is
// deterministic (sorted by group key, then source pair).
func CrossValidate(facts []datatypes.Fact, threshold float64) []datatypes.Discrepancy {
	if threshold <= 0 {
		threshold = DefaultDiscrepancyThreshold
	}
	groups := make(map[string][]datatypes.Fact)
	for _, f := range facts {
		k := f.GroupKey()
		groups[k] = append(groups[k], f)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var discrepancies []datatypes.Discrepancy
	for _, k := range keys {
		members := groups[k]
		if len(members) < 2 {
			continue
		}
		sort.Slice(members, func(i, j int) bool {
			return members[i].SourceID < members[j].SourceID
		})
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				a, b := members[i], members[j]
				diff := relativeDiff(a.Value, b.Value)
				if diff <= threshold {
					continue
				}
				discrepancies = append(discrepancies, datatypes.Discrepancy{
					EntityID:     a.EntityID,
					MetricID:     a.MetricID,
					Period:       a.Period,
					SourceA:      a.SourceID,
					SourceB:      b.SourceID,
					ValueA:       a.Value,
					ValueB:       b.Value,
					RelativeDiff: diff,
				})
			}
		}
	}
	return discrepancies
}

func relativeDiff(a, b float64) float64 {
	denom := math.Max(math.Abs(a), math.Abs(b))
	if denom == 0 {
		return 0
	}
	return math.Abs(a-b) / denom
}
