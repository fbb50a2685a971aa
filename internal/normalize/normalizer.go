// Package normalize aligns the two raw datasets onto the common field
// set declared by the field map. Normalization is a pure function of its
// inputs: fields unmapped on either side are dropped from both outputs,
// and a row missing a required field is reported per-row rather than
// aborting the batch.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sondrmsk/divrec/internal/config"
	"github.com/sondrmsk/divrec/internal/domain"
)

// RawRow is one ingested row before normalization: raw column name to
// raw cell text.
type RawRow map[string]string

// RowError pairs a failed row with the schema error that killed it.
type RowError struct {
	Source domain.Source `json:"source"`
	Row    int           `json:"row"`
	Err    error         `json:"-"`
	Detail string        `json:"detail"`
}

// dateLayouts are tried in order when parsing date fields. Whatever
// matches is re-rendered as ISO so both sources compare byte-equal.
var dateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	"02/01/2006",
	"2006/01/02",
	time.RFC3339,
}

// Normalize maps both raw datasets onto the normalized field set and
// derives each record's key from keyFields. Row failures are collected,
// never fatal for the batch.
func Normalize(
	rawOrigin, rawCounterparty []RawRow,
	fieldMap []config.FieldSpec,
	keyFields []string,
) (origin, counterparty []domain.Record, rowErrs []RowError) {
	origin, errsO := normalizeSide(rawOrigin, fieldMap, keyFields, domain.SourceOrigin)
	counterparty, errsC := normalizeSide(rawCounterparty, fieldMap, keyFields, domain.SourceCounterparty)
	rowErrs = append(errsO, errsC...)
	return origin, counterparty, rowErrs
}

func normalizeSide(
	rows []RawRow,
	fieldMap []config.FieldSpec,
	keyFields []string,
	source domain.Source,
) ([]domain.Record, []RowError) {
	var records []domain.Record
	var rowErrs []RowError

	for i, row := range rows {
		fields, err := normalizeRow(row, fieldMap, source, i+1)
		if err != nil {
			rowErrs = append(rowErrs, RowError{
				Source: source,
				Row:    i + 1,
				Err:    err,
				Detail: err.Error(),
			})
			continue
		}

		records = append(records, domain.Record{
			RecordID: domain.BuildKey(fields, keyFields),
			Source:   source,
			Fields:   fields,
		})
	}

	return records, rowErrs
}

func normalizeRow(row RawRow, fieldMap []config.FieldSpec, source domain.Source, rowNum int) (map[string]domain.Value, error) {
	fields := make(map[string]domain.Value, len(fieldMap))

	for _, spec := range fieldMap {
		sources := spec.Origin
		if source == domain.SourceCounterparty {
			sources = spec.Counterparty
		}

		raw, found := firstNonEmpty(row, sources)
		if !found {
			if spec.Required {
				return nil, &domain.SchemaMismatchError{
					Source: source,
					Row:    rowNum,
					Field:  spec.Name,
					Reason: "required field absent",
				}
			}
			continue
		}

		val, err := parseValue(raw, spec.Kind)
		if err != nil {
			if spec.Required {
				return nil, &domain.SchemaMismatchError{
					Source: source,
					Row:    rowNum,
					Field:  spec.Name,
					Reason: err.Error(),
				}
			}
			// Optional fields that fail to parse are dropped, not
			// carried through as junk.
			continue
		}
		fields[spec.Name] = val
	}

	return fields, nil
}

// firstNonEmpty returns the first non-empty cell across the candidate
// columns, the way the two feeds alias the same field under different
// headers.
func firstNonEmpty(row RawRow, cols []string) (string, bool) {
	for _, c := range cols {
		if v, ok := row[c]; ok {
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				return trimmed, true
			}
		}
	}
	return "", false
}

func parseValue(raw string, kind domain.FieldKind) (domain.Value, error) {
	switch kind {
	case domain.FieldAmount:
		cleaned := strings.ReplaceAll(strings.ReplaceAll(raw, ",", ""), " ", "")
		n, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return domain.Value{}, fmt.Errorf("not a number: %q", raw)
		}
		return domain.AmountValue(n), nil

	case domain.FieldDate:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return domain.DateValue(t.Format("2006-01-02")), nil
			}
		}
		return domain.Value{}, fmt.Errorf("not a date: %q", raw)

	case domain.FieldIdentifier:
		return domain.IdentifierValue(strings.ToUpper(raw)), nil

	default:
		return domain.TextValue(raw), nil
	}
}
