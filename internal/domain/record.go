package domain

import (
	"regexp"
	"strconv"
	"strings"
)

// Source identifies which dataset a record came from. The reconciled
// dataset holds records derived by applying approved remediations.
type Source string

const (
	SourceOrigin       Source = "ORIGIN"
	SourceCounterparty Source = "COUNTERPARTY"
	SourceReconciled   Source = "RECONCILED"
)

// FieldKind is the normalized type of a field value.
type FieldKind string

const (
	FieldAmount     FieldKind = "amount"
	FieldDate       FieldKind = "date"
	FieldIdentifier FieldKind = "identifier"
	FieldText       FieldKind = "text"
)

// Value is one typed field value on a normalized record. Exactly one of
// Number, Date or Text is meaningful, selected by Kind. Dates are stored
// as ISO strings (2006-01-02) so records serialize stably.
type Value struct {
	Kind   FieldKind `json:"kind"`
	Number float64   `json:"number,omitempty"`
	Date   string    `json:"date,omitempty"`
	Text   string    `json:"text,omitempty"`
}

func AmountValue(n float64) Value    { return Value{Kind: FieldAmount, Number: n} }
func DateValue(iso string) Value     { return Value{Kind: FieldDate, Date: iso} }
func IdentifierValue(s string) Value { return Value{Kind: FieldIdentifier, Text: s} }
func TextValue(s string) Value       { return Value{Kind: FieldText, Text: s} }

// Equal reports exact equality. Tolerance-aware comparison for amounts is
// the diagnoser's job, not the value's.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case FieldAmount:
		return v.Number == o.Number
	case FieldDate:
		return v.Date == o.Date
	default:
		return v.Text == o.Text
	}
}

// String renders the carried value for descriptions and signatures.
func (v Value) String() string {
	switch v.Kind {
	case FieldAmount:
		return trimFloat(v.Number)
	case FieldDate:
		return v.Date
	default:
		return v.Text
	}
}

// Record is one row from a source dataset after normalization. Fields
// holds exactly the normalized field set declared by the field map.
type Record struct {
	RecordID string           `json:"record_id"`
	Source   Source           `json:"source"`
	Fields   map[string]Value `json:"fields"`
}

var keySpace = regexp.MustCompile(`\s+`)

// BuildKey derives the stable record key from the given key fields,
// whitespace-stripped and lowercased so the two sources pair up despite
// formatting differences. Fields absent from the record contribute an
// empty segment.
func BuildKey(fields map[string]Value, keyFields []string) string {
	parts := make([]string, 0, len(keyFields))
	for _, kf := range keyFields {
		v := fields[kf].String()
		parts = append(parts, strings.ToLower(keySpace.ReplaceAllString(v, "")))
	}
	return strings.Join(parts, "|")
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
