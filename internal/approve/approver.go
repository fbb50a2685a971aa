// Package approve applies human (or policy) decisions to remediation
// candidates. The approver is the single writer for the approvals store
// and the knowledge base: every accepted fix is persisted atomically
// and every decision, either way, becomes retrieval context.
package approve

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sondrmsk/divrec/internal/diagnose"
	"github.com/sondrmsk/divrec/internal/domain"
	"github.com/sondrmsk/divrec/internal/knowledge"
	"github.com/sondrmsk/divrec/internal/logging"
	"github.com/sondrmsk/divrec/internal/repository"
)

// Approver decides remediation candidates. Safe for concurrent use; the
// decisions table's primary key makes concurrent double-decisions lose
// cleanly with AlreadyDecidedError.
type Approver struct {
	db       *sql.DB
	remRepo  *repository.RemediationRepo
	recRepo  *repository.RecordRepo
	pairRepo *repository.PairRepo
	kb       *knowledge.Base

	log   zerolog.Logger
	now   func() time.Time
	newID func() string
}

// Option configures an Approver.
type Option func(*Approver)

// WithClock overrides the timestamp source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Approver) { a.now = now }
}

// New creates an Approver over the shared database.
func New(db *sql.DB, remRepo *repository.RemediationRepo, recRepo *repository.RecordRepo, pairRepo *repository.PairRepo, kb *knowledge.Base, opts ...Option) *Approver {
	a := &Approver{
		db:       db,
		remRepo:  remRepo,
		recRepo:  recRepo,
		pairRepo: pairRepo,
		kb:       kb,
		log:      logging.New("approve"),
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Decide applies a verdict to one candidate.
//
// ACCEPT persists the ApprovedRemediation, applies the proposed changes
// to the target dataset and records the decision, all in one
// transaction — either every declared field change lands or none do —
// then appends an ACCEPTED knowledge entry. REJECT records the decision
// and appends a REJECTED knowledge entry only. A discrepancy is decided
// at most once: a second call fails with AlreadyDecidedError and leaves
// state unchanged.
func (a *Approver) Decide(ctx context.Context, cand domain.RemediationCandidate, decision domain.Decision, approverIdentity string) (*domain.ApprovedRemediation, error) {
	if decision != domain.DecisionAccept && decision != domain.DecisionReject {
		return nil, fmt.Errorf("decision %q: %w", decision, domain.ErrInvalidDecision)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	decided, err := a.remRepo.HasDecision(cand.DiscrepancyRef)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "check decision", Err: err}
	}
	if decided {
		return nil, &domain.AlreadyDecidedError{DiscrepancyRef: cand.DiscrepancyRef}
	}

	// The candidate's cycle locates the dataset rows the changes apply
	// to. Candidates not in the store (policy-constructed) fall back to
	// the latest cycle.
	var cycleID string
	if _, storedCycle, err := a.remRepo.GetCandidate(cand.CandidateID); err == nil {
		cycleID = storedCycle
	} else if cycleID, err = a.recRepo.LatestCycleID(); err != nil {
		return nil, &domain.PersistenceError{Op: "resolve cycle", Err: err}
	}

	decidedAt := a.now()

	if decision == domain.DecisionReject {
		if err := a.persistRejection(cand, approverIdentity, decidedAt); err != nil {
			return nil, err
		}
		a.appendKnowledge(cycleID, cand, domain.OutcomeRejected)
		a.log.Info().
			Str("discrepancy_ref", cand.DiscrepancyRef).
			Str("approver", approverIdentity).
			Msg("remediation rejected")
		return nil, nil
	}

	approval := &domain.ApprovedRemediation{
		DiscrepancyRef: cand.DiscrepancyRef,
		Scope:          cand.Scope,
		AppliedChanges: cand.Changes,
		ApprovedAt:     decidedAt,
		Approver:       approverIdentity,
	}

	if err := a.persistAcceptance(cand, approval, cycleID); err != nil {
		return nil, err
	}
	a.appendKnowledge(cycleID, cand, domain.OutcomeAccepted)

	a.log.Info().
		Str("discrepancy_ref", cand.DiscrepancyRef).
		Str("scope", string(cand.Scope)).
		Str("approver", approverIdentity).
		Int("changes", len(cand.Changes)).
		Msg("remediation approved and applied")

	return approval, nil
}

func (a *Approver) persistRejection(cand domain.RemediationCandidate, approver string, decidedAt time.Time) error {
	tx, err := a.db.Begin()
	if err != nil {
		return &domain.PersistenceError{Op: "begin reject", Err: err}
	}
	defer tx.Rollback()

	if err := a.remRepo.InsertDecisionTx(tx, cand.DiscrepancyRef, domain.DecisionReject, approver, decidedAt); err != nil {
		var already *domain.AlreadyDecidedError
		if errors.As(err, &already) {
			return err
		}
		return &domain.PersistenceError{Op: "record rejection", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &domain.PersistenceError{Op: "commit rejection", Err: err}
	}
	return nil
}

func (a *Approver) persistAcceptance(cand domain.RemediationCandidate, approval *domain.ApprovedRemediation, cycleID string) error {
	tx, err := a.db.Begin()
	if err != nil {
		return &domain.PersistenceError{Op: "begin accept", Err: err}
	}
	defer tx.Rollback()

	if err := a.remRepo.InsertDecisionTx(tx, cand.DiscrepancyRef, domain.DecisionAccept, approval.Approver, approval.ApprovedAt); err != nil {
		var already *domain.AlreadyDecidedError
		if errors.As(err, &already) {
			return err
		}
		return &domain.PersistenceError{Op: "record decision", Err: err}
	}
	if err := a.remRepo.InsertApprovalTx(tx, approval); err != nil {
		var already *domain.AlreadyDecidedError
		if errors.As(err, &already) {
			return err
		}
		return &domain.PersistenceError{Op: "persist approval", Err: err}
	}
	if err := a.recRepo.ApplyChangesTx(tx, cycleID, cand.DiscrepancyRef, cand.Scope, cand.Changes); err != nil {
		return &domain.PersistenceError{Op: "apply changes", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &domain.PersistenceError{Op: "commit acceptance", Err: err}
	}
	return nil
}

// appendKnowledge converts the decided candidate into a knowledge entry
// for future retrieval. A duplicate entry ID is regenerated once, per
// the knowledge base's append contract; further failures are logged and
// dropped — the decision itself already stands.
func (a *Approver) appendKnowledge(cycleID string, cand domain.RemediationCandidate, outcome domain.Outcome) {
	entry := domain.KnowledgeEntry{
		EntryID:    a.newID(),
		Signature:  a.signatureFor(cycleID, cand.DiscrepancyRef),
		Resolution: cand.Description,
		Outcome:    outcome,
		CreatedAt:  a.now(),
	}

	err := a.kb.Append(entry)
	var dup *domain.DuplicateEntryError
	if errors.As(err, &dup) {
		entry.EntryID = a.newID()
		err = a.kb.Append(entry)
	}
	if err != nil {
		a.log.Error().Err(err).Str("discrepancy_ref", cand.DiscrepancyRef).Msg("knowledge append failed")
	}
}

// signatureFor rebuilds the discrepancy signature from the persisted
// pair. A pair no longer on file yields an empty signature rather than
// blocking the decision.
func (a *Approver) signatureFor(cycleID, recordID string) domain.Signature {
	sigStr, err := a.pairRepo.GetSignature(cycleID, recordID)
	if err == nil && sigStr == "presence" {
		return domain.Signature{Presence: true, Buckets: map[string]domain.MagnitudeBucket{}}
	}

	deltas, err := a.pairRepo.GetDeltas(cycleID, recordID)
	if err != nil {
		return domain.Signature{Buckets: map[string]domain.MagnitudeBucket{}}
	}
	return diagnose.SignatureOf(&domain.DiscrepancyPair{RecordID: recordID, Deltas: deltas})
}
