package domain

import "time"

// Severity classifies how much a discrepancy matters. The order is
// NONE < LOW < MEDIUM < HIGH; compare with Rank or AtLeast, never the
// string values.
type Severity string

const (
	SeverityNone   Severity = "NONE"
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

var severityRank = map[Severity]int{
	SeverityNone:   0,
	SeverityLow:    1,
	SeverityMedium: 2,
	SeverityHigh:   3,
}

// Rank returns the position of s in the severity order. Unknown values
// rank below NONE.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

// AtLeast reports whether s is at or above min in the severity order.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

// Valid reports whether s is one of the four severity levels.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// DeltaKind distinguishes a value mismatch from a field that one side
// never reported.
type DeltaKind string

const (
	DeltaValueMismatch DeltaKind = "VALUE_MISMATCH"
	DeltaMissingField  DeltaKind = "MISSING_FIELD"
)

// FieldDelta is the structured diff of one field between the two sides
// of a pair. Expected carries the origin value, Actual the counterparty
// value. Magnitude is the absolute numeric difference and is only set
// for amount fields.
type FieldDelta struct {
	Field     string    `json:"field"`
	Kind      FieldKind `json:"kind"`
	DeltaKind DeltaKind `json:"delta_kind"`
	Expected  Value     `json:"expected"`
	Actual    Value     `json:"actual"`
	Magnitude float64   `json:"magnitude,omitempty"`
}

// DiscrepancyPair pairs the origin and counterparty records sharing one
// record key. Either side may be nil: a record present in only one
// dataset is itself a discrepancy (outer join semantics). Severity is
// assigned once by the diagnoser and immutable thereafter.
type DiscrepancyPair struct {
	RecordID     string                `json:"record_id"`
	Origin       *Record               `json:"origin,omitempty"`
	Counterparty *Record               `json:"counterparty,omitempty"`
	Deltas       map[string]FieldDelta `json:"field_deltas"`
	Severity     Severity              `json:"severity"`
	DiagnosedAt  time.Time             `json:"diagnosed_at"`
}

// MissingSide reports whether exactly one side of the pair is absent.
func (p *DiscrepancyPair) MissingSide() bool {
	return (p.Origin == nil) != (p.Counterparty == nil)
}
