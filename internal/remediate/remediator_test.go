package remediate

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sondrmsk/divrec/internal/domain"
	"github.com/sondrmsk/divrec/internal/knowledge"
	"github.com/sondrmsk/divrec/internal/repository"
)

func newRemediator(t *testing.T, entries ...domain.KnowledgeEntry) *Remediator {
	t.Helper()
	db, err := repository.InitDB(filepath.Join(t.TempDir(), "kb.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	kb, err := knowledge.Load(repository.NewKnowledgeRepo(db))
	require.NoError(t, err)
	for _, e := range entries {
		require.NoError(t, kb.Append(e))
	}

	n := 0
	return New(kb, 3, 0.35,
		WithClock(func() time.Time { return time.Date(2024, 4, 15, 12, 0, 0, 0, time.UTC) }),
		WithIDSource(func() string { n++; return fmt.Sprintf("cand-%d", n) }),
	)
}

func mismatchPair(severity domain.Severity) *domain.DiscrepancyPair {
	return &domain.DiscrepancyPair{
		RecordID: "coac-1|us1|acc-5001",
		Origin: &domain.Record{Source: domain.SourceOrigin, Fields: map[string]domain.Value{
			"net_amount_settlement": domain.AmountValue(1000),
		}},
		Counterparty: &domain.Record{Source: domain.SourceCounterparty, Fields: map[string]domain.Value{
			"net_amount_settlement": domain.AmountValue(1050),
		}},
		Deltas: map[string]domain.FieldDelta{
			"net_amount_settlement": {
				Field: "net_amount_settlement", Kind: domain.FieldAmount,
				DeltaKind: domain.DeltaValueMismatch,
				Expected:  domain.AmountValue(1000), Actual: domain.AmountValue(1050),
				Magnitude: 50,
			},
		},
		Severity: severity,
	}
}

func TestRemediate_BelowMediumIsPreconditionError(t *testing.T) {
	r := newRemediator(t)

	for _, sev := range []domain.Severity{domain.SeverityNone, domain.SeverityLow} {
		_, err := r.Remediate(context.Background(), mismatchPair(sev))
		var pre *domain.PreconditionError
		require.ErrorAs(t, err, &pre, "severity %s", sev)
		assert.Equal(t, "remediate", pre.Op)
	}
}

func TestRemediate_MismatchProposesBothDirections(t *testing.T) {
	r := newRemediator(t)

	cands, err := r.Remediate(context.Background(), mismatchPair(domain.SeverityMedium))
	require.NoError(t, err)
	require.Len(t, cands, 2)

	origin, counter := cands[0], cands[1]
	assert.Equal(t, domain.ScopeOrigin, origin.Scope)
	assert.Equal(t, domain.AmountValue(1050), origin.Changes["net_amount_settlement"])
	assert.Contains(t, origin.Description, "align ledger to custodian")

	assert.Equal(t, domain.ScopeCounterparty, counter.Scope)
	assert.Equal(t, domain.AmountValue(1000), counter.Changes["net_amount_settlement"])

	for _, c := range cands {
		assert.Equal(t, "coac-1|us1|acc-5001", c.DiscrepancyRef)
	}
}

func TestRemediate_NoPrecedentIsZeroConfidence(t *testing.T) {
	r := newRemediator(t)

	cands, err := r.Remediate(context.Background(), mismatchPair(domain.SeverityMedium))
	require.NoError(t, err)
	require.NotEmpty(t, cands)

	for _, c := range cands {
		assert.Zero(t, c.Confidence)
		assert.Empty(t, c.Supporting)
	}
}

func TestRemediate_PrecedentDrivesConfidence(t *testing.T) {
	sig := domain.Signature{Buckets: map[string]domain.MagnitudeBucket{
		"net_amount_settlement": domain.BucketModerate,
	}}
	r := newRemediator(t, domain.KnowledgeEntry{
		EntryID:    "kb-1",
		Signature:  sig,
		Resolution: "custodian figure accepted after income desk review",
		Outcome:    domain.OutcomeAccepted,
		CreatedAt:  time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})

	cands, err := r.Remediate(context.Background(), mismatchPair(domain.SeverityMedium))
	require.NoError(t, err)
	require.Len(t, cands, 2)

	// Exact signature match: full confidence on the leading candidate,
	// discounted on the reverse direction.
	assert.Equal(t, 1.0, cands[0].Confidence)
	assert.Equal(t, []string{"kb-1"}, cands[0].Supporting)
	assert.Equal(t, 0.75, cands[1].Confidence)
	assert.Equal(t, []string{"kb-1"}, cands[1].Supporting)
}

func TestRemediate_DissimilarPrecedentFilteredOut(t *testing.T) {
	r := newRemediator(t, domain.KnowledgeEntry{
		EntryID: "kb-far",
		Signature: domain.Signature{Buckets: map[string]domain.MagnitudeBucket{
			"custodian": domain.BucketMismatch,
		}},
		Resolution: "custodian rename, cosmetic",
		Outcome:    domain.OutcomeRejected,
		CreatedAt:  time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})

	cands, err := r.Remediate(context.Background(), mismatchPair(domain.SeverityHigh))
	require.NoError(t, err)
	for _, c := range cands {
		assert.Empty(t, c.Supporting)
		assert.Zero(t, c.Confidence)
	}
}

func TestRemediate_MissingSideAdoptsSurvivor(t *testing.T) {
	r := newRemediator(t)

	pair := &domain.DiscrepancyPair{
		RecordID: "coac-9|us9|acc-5002",
		Counterparty: &domain.Record{Source: domain.SourceCounterparty, Fields: map[string]domain.Value{
			"event_key":             domain.IdentifierValue("COAC-9"),
			"net_amount_settlement": domain.AmountValue(2500),
		}},
		Deltas:   map[string]domain.FieldDelta{},
		Severity: domain.SeverityHigh,
	}

	cands, err := r.Remediate(context.Background(), pair)
	require.NoError(t, err)
	require.Len(t, cands, 1)

	c := cands[0]
	assert.Equal(t, domain.ScopeReconciled, c.Scope)
	assert.Equal(t, domain.AmountValue(2500), c.Changes["net_amount_settlement"])
	assert.Contains(t, c.Description, "counterparty records")
}

func TestRemediate_MissingFieldFilledFromPresentSide(t *testing.T) {
	r := newRemediator(t)

	pair := &domain.DiscrepancyPair{
		RecordID: "coac-2|us2|acc-5003",
		Origin: &domain.Record{Source: domain.SourceOrigin, Fields: map[string]domain.Value{
			"custodian": domain.TextValue("HSBC_SECURITIES"),
		}},
		Counterparty: &domain.Record{Source: domain.SourceCounterparty, Fields: map[string]domain.Value{}},
		Deltas: map[string]domain.FieldDelta{
			"custodian": {
				Field: "custodian", Kind: domain.FieldText,
				DeltaKind: domain.DeltaMissingField,
				Expected:  domain.TextValue("HSBC_SECURITIES"),
			},
		},
		Severity: domain.SeverityMedium,
	}

	cands, err := r.Remediate(context.Background(), pair)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, domain.ScopeCounterparty, cands[0].Scope)
	assert.Equal(t, domain.TextValue("HSBC_SECURITIES"), cands[0].Changes["custodian"])
}

func TestRemediate_ReadOnly(t *testing.T) {
	r := newRemediator(t)
	before := r.kb.Len()

	_, err := r.Remediate(context.Background(), mismatchPair(domain.SeverityMedium))
	require.NoError(t, err)

	// Proposing never writes to the knowledge base.
	assert.Equal(t, before, r.kb.Len())
}
