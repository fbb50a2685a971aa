// Package remediate proposes candidate fixes for discrepancies at or
// above the severity threshold, using past knowledge base resolutions
// as precedent. The remediator reads everything and mutates nothing.
package remediate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sondrmsk/divrec/internal/diagnose"
	"github.com/sondrmsk/divrec/internal/domain"
	"github.com/sondrmsk/divrec/internal/knowledge"
	"github.com/sondrmsk/divrec/internal/logging"
)

// Remediator synthesizes remediation candidates for one pair at a time.
type Remediator struct {
	kb            *knowledge.Base
	topK          int
	minSimilarity float64

	log   zerolog.Logger
	now   func() time.Time
	newID func() string
}

// Option configures a Remediator.
type Option func(*Remediator)

// WithClock overrides the timestamp source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Remediator) { r.now = now }
}

// WithIDSource overrides candidate ID generation. Intended for tests.
func WithIDSource(newID func() string) Option {
	return func(r *Remediator) { r.newID = newID }
}

// New creates a Remediator over the given knowledge base.
func New(kb *knowledge.Base, topK int, minSimilarity float64, opts ...Option) *Remediator {
	r := &Remediator{
		kb:            kb,
		topK:          topK,
		minSimilarity: minSimilarity,
		log:           logging.New("remediate"),
		now:           time.Now,
		newID:         func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Remediate proposes candidate fixes for a pair with severity MEDIUM or
// above; calling it on a lower severity is a contract violation. When
// no precedent clears the similarity floor, it returns a single
// zero-confidence candidate with no supporting entries — absence of
// precedent is a valid, low-confidence outcome, not an error.
func (r *Remediator) Remediate(ctx context.Context, pair *domain.DiscrepancyPair) ([]domain.RemediationCandidate, error) {
	if !pair.Severity.AtLeast(domain.SeverityMedium) {
		return nil, &domain.PreconditionError{
			Op:     "remediate",
			Reason: fmt.Sprintf("pair %s has severity %s, below MEDIUM", pair.RecordID, pair.Severity),
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sig := diagnose.SignatureOf(pair)

	var supporting []string
	confidence := 0.0
	for _, s := range r.kb.Query(sig, r.topK) {
		if s.Score < r.minSimilarity {
			continue
		}
		supporting = append(supporting, s.Entry.EntryID)
		if s.Score > confidence {
			confidence = s.Score
		}
	}

	cands := r.synthesize(pair, supporting, confidence)

	r.log.Debug().
		Str("record_id", pair.RecordID).
		Str("signature", sig.String()).
		Int("candidates", len(cands)).
		Int("supporting", len(supporting)).
		Float64("confidence", confidence).
		Msg("remediation proposed")

	return cands, nil
}

// synthesize builds the concrete proposals. A presence discrepancy
// yields one candidate adopting the surviving side into the reconciled
// dataset. A field-level discrepancy yields two: align the origin
// ledger to the counterparty values, or the reverse. The counterparty
// (custodian) is treated as the likelier authority, so that candidate
// leads and keeps the full retrieval confidence.
func (r *Remediator) synthesize(pair *domain.DiscrepancyPair, supporting []string, confidence float64) []domain.RemediationCandidate {
	createdAt := r.now()

	if pair.MissingSide() {
		side, sideName := pair.Origin, "origin ledger"
		if side == nil {
			side, sideName = pair.Counterparty, "counterparty records"
		}
		changes := make(map[string]domain.Value, len(side.Fields))
		for f, v := range side.Fields {
			changes[f] = v
		}
		return []domain.RemediationCandidate{{
			CandidateID:    r.newID(),
			DiscrepancyRef: pair.RecordID,
			Scope:          domain.ScopeReconciled,
			Changes:        changes,
			Supporting:     supporting,
			Confidence:     confidence,
			Description:    fmt.Sprintf("record only present in %s; adopt it into the reconciled dataset", sideName),
			CreatedAt:      createdAt,
		}}
	}

	originChanges := make(map[string]domain.Value)
	counterChanges := make(map[string]domain.Value)
	for _, field := range sortedDeltaFields(pair.Deltas) {
		delta := pair.Deltas[field]
		switch delta.DeltaKind {
		case domain.DeltaMissingField:
			// Fill the gap from whichever side has the value.
			if delta.Expected != (domain.Value{}) {
				counterChanges[field] = delta.Expected
			} else {
				originChanges[field] = delta.Actual
			}
		default:
			originChanges[field] = delta.Actual
			counterChanges[field] = delta.Expected
		}
	}

	var cands []domain.RemediationCandidate
	if len(originChanges) > 0 {
		cands = append(cands, domain.RemediationCandidate{
			CandidateID:    r.newID(),
			DiscrepancyRef: pair.RecordID,
			Scope:          domain.ScopeOrigin,
			Changes:        originChanges,
			Supporting:     supporting,
			Confidence:     confidence,
			Description:    describeChanges("align ledger to custodian", originChanges),
			CreatedAt:      createdAt,
		})
	}
	if len(counterChanges) > 0 {
		cands = append(cands, domain.RemediationCandidate{
			CandidateID:    r.newID(),
			DiscrepancyRef: pair.RecordID,
			Scope:          domain.ScopeCounterparty,
			Changes:        counterChanges,
			Supporting:     supporting,
			Confidence:     confidence * 0.75,
			Description:    describeChanges("align custodian to ledger", counterChanges),
			CreatedAt:      createdAt,
		})
	}
	return cands
}

func sortedDeltaFields(deltas map[string]domain.FieldDelta) []string {
	fields := make([]string, 0, len(deltas))
	for f := range deltas {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

func describeChanges(prefix string, changes map[string]domain.Value) string {
	fields := make([]string, 0, len(changes))
	for f := range changes {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	desc := prefix + ":"
	for _, f := range fields {
		desc += fmt.Sprintf(" set %s to %s;", f, changes[f].String())
	}
	return desc
}
