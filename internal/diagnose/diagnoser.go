// Package diagnose merges the two normalized datasets into discrepancy
// pairs and classifies each pair's severity. The diagnoser is the only
// component that creates pairs or assigns severity.
package diagnose

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/sondrmsk/divrec/internal/config"
	"github.com/sondrmsk/divrec/internal/domain"
	"github.com/sondrmsk/divrec/internal/logging"
)

// Diagnoser performs the outer join and delta computation for one
// reconciliation cycle.
type Diagnoser struct {
	keyFields  []string
	tolerances map[string]config.Tolerance
	policy     config.SeverityPolicy

	history           HistoryProvider
	escalateAfter     int
	escalationTimeout time.Duration

	log zerolog.Logger
	now func() time.Time
}

// Option configures a Diagnoser.
type Option func(*Diagnoser)

// WithHistory wires the optional escalation source consulted before a
// borderline severity is finalized.
func WithHistory(h HistoryProvider, escalateAfter int, timeout time.Duration) Option {
	return func(d *Diagnoser) {
		d.history = h
		d.escalateAfter = escalateAfter
		d.escalationTimeout = timeout
	}
}

// WithClock overrides the timestamp source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Diagnoser) { d.now = now }
}

// New creates a Diagnoser from the cycle configuration.
func New(keyFields []string, tolerances map[string]config.Tolerance, policy config.SeverityPolicy, opts ...Option) *Diagnoser {
	d := &Diagnoser{
		keyFields:  keyFields,
		tolerances: tolerances,
		policy:     policy,
		log:        logging.New("diagnose"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Diagnose groups both record sets by the composite key and emits exactly
// one DiscrepancyPair per distinct key present in either set. Pairs come
// back sorted by record ID so repeated runs produce identical output.
func (d *Diagnoser) Diagnose(ctx context.Context, origin, counterparty []domain.Record) ([]domain.DiscrepancyPair, error) {
	originByKey := groupByKey(origin, d.keyFields)
	counterByKey := groupByKey(counterparty, d.keyFields)

	keys := make(map[string]struct{}, len(originByKey)+len(counterByKey))
	for k := range originByKey {
		keys[k] = struct{}{}
	}
	for k := range counterByKey {
		keys[k] = struct{}{}
	}

	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	pairs := make([]domain.DiscrepancyPair, 0, len(sorted))
	for _, key := range sorted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		o := originByKey[key]
		c := counterByKey[key]

		pair := domain.DiscrepancyPair{
			RecordID:     key,
			Origin:       o,
			Counterparty: c,
			Deltas:       d.computeDeltas(o, c),
			DiagnosedAt:  d.now(),
		}
		pair.Severity = d.finalizeSeverity(ctx, &pair)
		pairs = append(pairs, pair)
	}

	d.log.Info().
		Int("pairs", len(pairs)).
		Int("origin_records", len(origin)).
		Int("counterparty_records", len(counterparty)).
		Msg("diagnosis complete")

	return pairs, nil
}

func groupByKey(records []domain.Record, keyFields []string) map[string]*domain.Record {
	byKey := make(map[string]*domain.Record, len(records))
	for i := range records {
		rec := &records[i]
		key := rec.RecordID
		if key == "" {
			key = domain.BuildKey(rec.Fields, keyFields)
		}
		// First occurrence wins; duplicate keys within one source keep
		// the earliest row, matching the source feed's ordering.
		if _, exists := byKey[key]; !exists {
			byKey[key] = rec
		}
	}
	return byKey
}

// computeDeltas diffs the two sides field by field. A pair with a
// missing side has no field deltas; the presence discrepancy itself
// drives severity.
func (d *Diagnoser) computeDeltas(o, c *domain.Record) map[string]domain.FieldDelta {
	deltas := make(map[string]domain.FieldDelta)
	if o == nil || c == nil {
		return deltas
	}

	for _, field := range unionFields(o.Fields, c.Fields) {
		ov, oOK := o.Fields[field]
		cv, cOK := c.Fields[field]

		switch {
		case oOK && !cOK:
			deltas[field] = domain.FieldDelta{
				Field: field, Kind: ov.Kind, DeltaKind: domain.DeltaMissingField,
				Expected: ov,
			}
		case !oOK && cOK:
			deltas[field] = domain.FieldDelta{
				Field: field, Kind: cv.Kind, DeltaKind: domain.DeltaMissingField,
				Actual: cv,
			}
		case ov.Kind == domain.FieldAmount && cv.Kind == domain.FieldAmount:
			if diff := math.Abs(ov.Number - cv.Number); d.beyondTolerance(field, ov.Number, diff) {
				deltas[field] = domain.FieldDelta{
					Field: field, Kind: domain.FieldAmount, DeltaKind: domain.DeltaValueMismatch,
					Expected: ov, Actual: cv, Magnitude: diff,
				}
			}
		default:
			// Dates, identifiers and text require exact match.
			if !ov.Equal(cv) {
				deltas[field] = domain.FieldDelta{
					Field: field, Kind: ov.Kind, DeltaKind: domain.DeltaValueMismatch,
					Expected: ov, Actual: cv,
				}
			}
		}
	}

	return deltas
}

func (d *Diagnoser) beyondTolerance(field string, expected, absDiff float64) bool {
	tol, ok := d.tolerances[field]
	if !ok {
		return absDiff != 0
	}
	if absDiff <= tol.Absolute {
		return false
	}
	if tol.Relative > 0 && absDiff <= tol.Relative*math.Abs(expected) {
		return false
	}
	return true
}

func unionFields(a, b map[string]domain.Value) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for f := range a {
		seen[f] = struct{}{}
	}
	for f := range b {
		seen[f] = struct{}{}
	}
	fields := make([]string, 0, len(seen))
	for f := range seen {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}
