// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the shared data model for the assistant core.
//
// The types here fall into two ownership classes:
//   - Durable, externally owned: Fact and NarrativeChunk are written by the
//     ingestion pipeline and are strictly read-only inside this module.
//   - Transient, turn-owned: Candidate, SubQuery, VerificationResult and the
//     other per-turn types are created during a single HandleTurn call and
//     never shared across turns.
package datatypes

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// =============================================================================
// Periods
// =============================================================================

// PeriodBasis distinguishes fiscal from calendar reporting periods.
type PeriodBasis string

const (
	// BasisFiscal is a company fiscal period (FY/FQ).
	BasisFiscal PeriodBasis = "fiscal"

	// BasisCalendar is a calendar period (CY/CQ).
	BasisCalendar PeriodBasis = "calendar"
)

// Period identifies one reporting period. Quarter 0 means the full year.
type Period struct {
	Basis   PeriodBasis `json:"basis"`
	Year    int         `json:"year"`
	Quarter int         `json:"quarter,omitempty"`
}

// String renders the period in the conventional short form,
// e.g. "FY2024", "Q3 FY2024", "CY2023".
func (p Period) String() string {
	prefix := "FY"
	if p.Basis == BasisCalendar {
		prefix = "CY"
	}
	if p.Quarter > 0 {
		return fmt.Sprintf("Q%d %s%d", p.Quarter, prefix, p.Year)
	}
	return fmt.Sprintf("%s%d", prefix, p.Year)
}

// Key renders the period as a compact, sortable key component.
func (p Period) Key() string {
	basis := "f"
	if p.Basis == BasisCalendar {
		basis = "c"
	}
	return fmt.Sprintf("%s%04dq%d", basis, p.Year, p.Quarter)
}

// IsZero reports whether the period is unset.
func (p Period) IsZero() bool {
	return p.Year == 0
}

// Equal reports whether two periods identify the same span of time
// on the same basis.
func (p Period) Equal(other Period) bool {
	return p.Basis == other.Basis && p.Year == other.Year && p.Quarter == other.Quarter
}

// =============================================================================
// Facts
// =============================================================================

// Fact is one immutable structured numeric datum: a single metric value for
// one entity and period, attributed to one source. Values are stored in base
// units (e.g. USD, not billions of USD; fractions, not percentage points).
//
// Facts are unique per (EntityID, MetricID, Period, SourceID). Re-ingestion
// replaces a fact in place; this core never writes facts.
type Fact struct {
	EntityID string    `json:"entity_id"`
	MetricID string    `json:"metric_id"`
	Period   Period    `json:"period"`
	Value    float64   `json:"value"`
	Unit     Unit      `json:"unit"`
	SourceID string    `json:"source_id"`
	AsOf     time.Time `json:"as_of"`
}

// Key returns the unique storage key for this fact.
func (f Fact) Key() string {
	return FactKey(f.EntityID, f.MetricID, f.Period, f.SourceID)
}

// GroupKey returns the key identifying the (entity, metric, period) group,
// ignoring the source. Cross-validation compares facts within one group.
func (f Fact) GroupKey() string {
	return fmt.Sprintf("%s/%s/%s", strings.ToUpper(f.EntityID), strings.ToLower(f.MetricID), f.Period.Key())
}

// FactKey builds the storage key for a fact without constructing one.
func FactKey(entityID, metricID string, period Period, sourceID string) string {
	return fmt.Sprintf("fact/%s/%s/%s/%s",
		strings.ToUpper(entityID), strings.ToLower(metricID), period.Key(), sourceID)
}

// FactGroupPrefix builds the key prefix covering every source's fact for one
// (entity, metric, period) triple.
func FactGroupPrefix(entityID, metricID string, period Period) string {
	return fmt.Sprintf("fact/%s/%s/%s/",
		strings.ToUpper(entityID), strings.ToLower(metricID), period.Key())
}

// Describe renders the fact as a short evidence line suitable for prompt
// context, e.g. "AAPL revenue FY2024: $394.3B (source: sec_10k)".
func (f Fact) Describe() string {
	return fmt.Sprintf("%s %s %s: %s (source: %s)",
		f.EntityID, f.MetricID, f.Period, f.Unit.Format(f.Value), f.SourceID)
}

// =============================================================================
// Units
// =============================================================================

// Unit is the measurement unit a fact's value is expressed in. Base units
// only: currency values in whole currency units, percentages as fractions,
// multiples as plain ratios.
type Unit string

const (
	// UnitUSD is whole US dollars.
	UnitUSD Unit = "USD"

	// UnitPercent is a fraction in [0,1] rendered as a percentage.
	UnitPercent Unit = "percent"

	// UnitRatio is a dimensionless multiple (e.g. a P/E of 28.5).
	UnitRatio Unit = "ratio"

	// UnitCount is a plain count (shares outstanding, employees).
	UnitCount Unit = "count"
)

// Format renders a base-unit value in the scaled human-readable form the
// assistant uses in answers. The corrector substitutes these strings for
// mismatched spans, so formatting must round-trip through the verifier's
// span parser.
func (u Unit) Format(value float64) string {
	switch u {
	case UnitUSD:
		return formatCurrency(value)
	case UnitPercent:
		return fmt.Sprintf("%s%%", trimFloat(value*100, 1))
	case UnitRatio:
		return fmt.Sprintf("%sx", trimFloat(value, 1))
	default:
		return trimFloat(value, 0)
	}
}

// formatCurrency scales a USD value to the nearest conventional suffix.
func formatCurrency(value float64) string {
	abs := math.Abs(value)
	sign := ""
	if value < 0 {
		sign = "-"
	}
	switch {
	case abs >= 1e12:
		return fmt.Sprintf("%s$%sT", sign, trimFloat(abs/1e12, 2))
	case abs >= 1e9:
		return fmt.Sprintf("%s$%sB", sign, trimFloat(abs/1e9, 1))
	case abs >= 1e6:
		return fmt.Sprintf("%s$%sM", sign, trimFloat(abs/1e6, 1))
	case abs >= 1e3:
		return fmt.Sprintf("%s$%sK", sign, trimFloat(abs/1e3, 1))
	default:
		return fmt.Sprintf("%s$%s", sign, trimFloat(abs, 2))
	}
}

// trimFloat formats a float with up to prec decimals, dropping trailing zeros.
func trimFloat(v float64, prec int) string {
	s := fmt.Sprintf("%.*f", prec, v)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return s
}
