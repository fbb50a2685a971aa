package approve

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sondrmsk/divrec/internal/domain"
	"github.com/sondrmsk/divrec/internal/knowledge"
	"github.com/sondrmsk/divrec/internal/repository"
)

const testCycle = "cycle-test-1"

type fixture struct {
	db       *sql.DB
	recRepo  *repository.RecordRepo
	pairRepo *repository.PairRepo
	remRepo  *repository.RemediationRepo
	kb       *knowledge.Base
	approver *Approver
	cand     domain.RemediationCandidate
}

// newFixture stands up a database holding one diagnosed cycle: a single
// amount-mismatch pair with one stored remediation candidate.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := repository.InitDB(filepath.Join(t.TempDir(), "divrec.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		db:       db,
		recRepo:  repository.NewRecordRepo(db),
		pairRepo: repository.NewPairRepo(db),
		remRepo:  repository.NewRemediationRepo(db),
	}
	f.kb, err = knowledge.Load(repository.NewKnowledgeRepo(db))
	require.NoError(t, err)

	now := time.Date(2024, 4, 15, 12, 0, 0, 0, time.UTC)
	require.NoError(t, f.recRepo.InsertCycle(testCycle, now, 1, 1, 0))

	recordID := "coac-1|us1|acc-5001"
	originFields := map[string]domain.Value{
		"event_key":             domain.IdentifierValue("COAC-1"),
		"net_amount_settlement": domain.AmountValue(1000),
	}
	counterFields := map[string]domain.Value{
		"event_key":             domain.IdentifierValue("COAC-1"),
		"net_amount_settlement": domain.AmountValue(1050),
	}
	_, err = f.recRepo.BulkInsert(testCycle, []domain.Record{
		{RecordID: recordID, Source: domain.SourceOrigin, Fields: originFields},
		{RecordID: recordID, Source: domain.SourceCounterparty, Fields: counterFields},
	})
	require.NoError(t, err)

	pair := domain.DiscrepancyPair{
		RecordID:     recordID,
		Origin:       &domain.Record{RecordID: recordID, Source: domain.SourceOrigin, Fields: originFields},
		Counterparty: &domain.Record{RecordID: recordID, Source: domain.SourceCounterparty, Fields: counterFields},
		Deltas: map[string]domain.FieldDelta{
			"net_amount_settlement": {
				Field: "net_amount_settlement", Kind: domain.FieldAmount,
				DeltaKind: domain.DeltaValueMismatch,
				Expected:  domain.AmountValue(1000), Actual: domain.AmountValue(1050),
				Magnitude: 50,
			},
		},
		Severity:    domain.SeverityMedium,
		DiagnosedAt: now,
	}
	_, err = f.pairRepo.BulkInsert(testCycle, []domain.DiscrepancyPair{pair},
		[]string{"net_amount_settlement:moderate"})
	require.NoError(t, err)

	f.cand = domain.RemediationCandidate{
		CandidateID:    "cand-1",
		DiscrepancyRef: recordID,
		Scope:          domain.ScopeOrigin,
		Changes: map[string]domain.Value{
			"net_amount_settlement": domain.AmountValue(1050),
		},
		Confidence:  0.8,
		Description: "align ledger to custodian: set net_amount_settlement to 1050;",
		CreatedAt:   now,
	}
	_, err = f.remRepo.InsertCandidates(testCycle, []domain.RemediationCandidate{f.cand})
	require.NoError(t, err)

	f.approver = New(db, f.remRepo, f.recRepo, f.pairRepo, f.kb,
		WithClock(func() time.Time { return now }))
	return f
}

func TestDecide_AcceptAppliesAndRecords(t *testing.T) {
	f := newFixture(t)

	approval, err := f.approver.Decide(context.Background(), f.cand, domain.DecisionAccept, "ops@example.com")
	require.NoError(t, err)
	require.NotNil(t, approval)

	assert.Equal(t, f.cand.DiscrepancyRef, approval.DiscrepancyRef)
	assert.Equal(t, domain.ScopeOrigin, approval.Scope)
	assert.Equal(t, "ops@example.com", approval.Approver)

	// The origin record now carries the approved figure.
	rec, err := f.recRepo.Get(testCycle, f.cand.DiscrepancyRef, domain.SourceOrigin)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.AmountValue(1050), rec.Fields["net_amount_settlement"])

	// The decision yields an ACCEPTED knowledge entry built from the
	// pair's stored deltas.
	require.Equal(t, 1, f.kb.Len())
	scored := f.kb.Query(domain.Signature{Buckets: map[string]domain.MagnitudeBucket{
		"net_amount_settlement": domain.BucketModerate,
	}}, 1)
	require.Len(t, scored, 1)
	assert.Equal(t, domain.OutcomeAccepted, scored[0].Entry.Outcome)
	assert.Equal(t, 1.0, scored[0].Score)

	approvals, err := f.remRepo.ListApprovals()
	require.NoError(t, err)
	require.Len(t, approvals, 1)
	assert.Equal(t, domain.AmountValue(1050), approvals[0].AppliedChanges["net_amount_settlement"])
}

func TestDecide_RejectRecordsKnowledgeOnly(t *testing.T) {
	f := newFixture(t)

	approval, err := f.approver.Decide(context.Background(), f.cand, domain.DecisionReject, "ops@example.com")
	require.NoError(t, err)
	assert.Nil(t, approval)

	// No approval, no data change.
	approvals, err := f.remRepo.ListApprovals()
	require.NoError(t, err)
	assert.Empty(t, approvals)

	rec, err := f.recRepo.Get(testCycle, f.cand.DiscrepancyRef, domain.SourceOrigin)
	require.NoError(t, err)
	assert.Equal(t, domain.AmountValue(1000), rec.Fields["net_amount_settlement"])

	// The rejection itself still becomes retrieval context.
	require.Equal(t, 1, f.kb.Len())
	got := f.kb.Query(domain.Signature{Buckets: map[string]domain.MagnitudeBucket{
		"net_amount_settlement": domain.BucketModerate,
	}}, 1)
	assert.Equal(t, domain.OutcomeRejected, got[0].Entry.Outcome)
}

func TestDecide_SecondDecisionFails(t *testing.T) {
	f := newFixture(t)

	_, err := f.approver.Decide(context.Background(), f.cand, domain.DecisionAccept, "ops@example.com")
	require.NoError(t, err)

	// Accept again, reject, either way: at most one decision stands.
	for _, d := range []domain.Decision{domain.DecisionAccept, domain.DecisionReject} {
		_, err := f.approver.Decide(context.Background(), f.cand, d, "second@example.com")
		var already *domain.AlreadyDecidedError
		require.ErrorAs(t, err, &already)
		assert.Equal(t, f.cand.DiscrepancyRef, already.DiscrepancyRef)
	}

	// State reflects the first decision only.
	approvals, err := f.remRepo.ListApprovals()
	require.NoError(t, err)
	require.Len(t, approvals, 1)
	assert.Equal(t, "ops@example.com", approvals[0].Approver)
	assert.Equal(t, 1, f.kb.Len())
}

func TestDecide_InvalidDecision(t *testing.T) {
	f := newFixture(t)

	_, err := f.approver.Decide(context.Background(), f.cand, domain.Decision("MAYBE"), "ops@example.com")
	require.ErrorIs(t, err, domain.ErrInvalidDecision)

	// An invalid verdict leaves the discrepancy open.
	decided, err := f.remRepo.HasDecision(f.cand.DiscrepancyRef)
	require.NoError(t, err)
	assert.False(t, decided)
}

func TestDecide_AcceptRollsBackAsAWhole(t *testing.T) {
	f := newFixture(t)

	// A candidate whose changes target a record that does not exist: the
	// apply step fails, so neither the decision nor the approval may land.
	ghost := f.cand
	ghost.CandidateID = "cand-ghost"
	ghost.DiscrepancyRef = "coac-9|us9|acc-9999"

	_, err := f.approver.Decide(context.Background(), ghost, domain.DecisionAccept, "ops@example.com")
	var persist *domain.PersistenceError
	require.ErrorAs(t, err, &persist)

	decided, err := f.remRepo.HasDecision(ghost.DiscrepancyRef)
	require.NoError(t, err)
	assert.False(t, decided)

	approvals, err := f.remRepo.ListApprovals()
	require.NoError(t, err)
	assert.Empty(t, approvals)
}

func TestDecide_ReconciledScopeUpsertsDerivedRecord(t *testing.T) {
	f := newFixture(t)

	cand := f.cand
	cand.CandidateID = "cand-rec"
	cand.Scope = domain.ScopeReconciled
	cand.Changes = map[string]domain.Value{
		"net_amount_settlement": domain.AmountValue(1050),
	}

	_, err := f.approver.Decide(context.Background(), cand, domain.DecisionAccept, "ops@example.com")
	require.NoError(t, err)

	// The reconciled row is seeded from the origin side with the approved
	// changes overlaid; the source rows stay untouched.
	rec, err := f.recRepo.Get(testCycle, cand.DiscrepancyRef, domain.SourceReconciled)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, domain.AmountValue(1050), rec.Fields["net_amount_settlement"])
	assert.Equal(t, domain.IdentifierValue("COAC-1"), rec.Fields["event_key"])

	origin, err := f.recRepo.Get(testCycle, cand.DiscrepancyRef, domain.SourceOrigin)
	require.NoError(t, err)
	assert.Equal(t, domain.AmountValue(1000), origin.Fields["net_amount_settlement"])
}

func TestDecide_ConcurrentDecisionsOneWins(t *testing.T) {
	f := newFixture(t)

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := f.approver.Decide(context.Background(), f.cand, domain.DecisionAccept, "racer@example.com")
			results <- err
		}()
	}

	var errs []error
	for i := 0; i < 2; i++ {
		errs = append(errs, <-results)
	}

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			var already *domain.AlreadyDecidedError
			require.ErrorAs(t, err, &already)
		}
	}
	assert.Equal(t, 1, wins)

	approvals, err := f.remRepo.ListApprovals()
	require.NoError(t, err)
	assert.Len(t, approvals, 1)
}
