package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sondrmsk/divrec/internal/domain"
)

type RemediationRepo struct {
	db *sql.DB
}

func NewRemediationRepo(db *sql.DB) *RemediationRepo {
	return &RemediationRepo{db: db}
}

func (r *RemediationRepo) InsertCandidates(cycleID string, cands []domain.RemediationCandidate) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT OR IGNORE INTO candidates
		 (candidate_id, cycle_id, discrepancy_ref, scope, changes, supporting, confidence, description, created_at)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range cands {
		c := &cands[i]
		changes, err := json.Marshal(c.Changes)
		if err != nil {
			return inserted, fmt.Errorf("marshal changes %s: %w", c.CandidateID, err)
		}
		supporting, err := json.Marshal(c.Supporting)
		if err != nil {
			return inserted, fmt.Errorf("marshal supporting %s: %w", c.CandidateID, err)
		}
		res, err := stmt.Exec(
			c.CandidateID, cycleID, c.DiscrepancyRef, string(c.Scope),
			string(changes), string(supporting), c.Confidence, c.Description,
			c.CreatedAt.Format(time.RFC3339),
		)
		if err != nil {
			return inserted, fmt.Errorf("insert %s: %w", c.CandidateID, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// GetCandidate returns one candidate plus the cycle it belongs to.
func (r *RemediationRepo) GetCandidate(candidateID string) (*domain.RemediationCandidate, string, error) {
	row := r.db.QueryRow(
		`SELECT candidate_id, cycle_id, discrepancy_ref, scope, changes, supporting, confidence, description, created_at
		 FROM candidates WHERE candidate_id = ?`, candidateID,
	)
	c, cycleID, err := scanCandidate(row)
	if err == sql.ErrNoRows {
		return nil, "", fmt.Errorf("candidate %s: %w", candidateID, domain.ErrNotFound)
	}
	return c, cycleID, err
}

// ListCandidates returns every candidate proposed for a discrepancy,
// newest cycle first, confidence descending within a cycle.
func (r *RemediationRepo) ListCandidates(discrepancyRef string) ([]domain.RemediationCandidate, error) {
	rows, err := r.db.Query(
		`SELECT candidate_id, cycle_id, discrepancy_ref, scope, changes, supporting, confidence, description, created_at
		 FROM candidates WHERE discrepancy_ref = ?
		 ORDER BY created_at DESC, confidence DESC, candidate_id`, discrepancyRef,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cands []domain.RemediationCandidate
	for rows.Next() {
		c, _, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		cands = append(cands, *c)
	}
	return cands, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanCandidate(row scannable) (*domain.RemediationCandidate, string, error) {
	var c domain.RemediationCandidate
	var cycleID, scope, changes, supporting, createdAt string

	err := row.Scan(&c.CandidateID, &cycleID, &c.DiscrepancyRef, &scope,
		&changes, &supporting, &c.Confidence, &c.Description, &createdAt)
	if err != nil {
		return nil, "", err
	}

	c.Scope = domain.ChangeScope(scope)
	if err := json.Unmarshal([]byte(changes), &c.Changes); err != nil {
		return nil, "", fmt.Errorf("unmarshal changes %s: %w", c.CandidateID, err)
	}
	if err := json.Unmarshal([]byte(supporting), &c.Supporting); err != nil {
		return nil, "", fmt.Errorf("unmarshal supporting %s: %w", c.CandidateID, err)
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &c, cycleID, nil
}

// InsertDecisionTx records the verdict for a discrepancy. The primary
// key on discrepancy_ref makes a second decision fail with
// AlreadyDecidedError, leaving state unchanged.
func (r *RemediationRepo) InsertDecisionTx(tx *sql.Tx, discrepancyRef string, decision domain.Decision, approver string, decidedAt time.Time) error {
	_, err := tx.Exec(
		`INSERT INTO decisions (discrepancy_ref, decision, approver, decided_at) VALUES (?,?,?,?)`,
		discrepancyRef, string(decision), approver, decidedAt.Format(time.RFC3339),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint") {
		return &domain.AlreadyDecidedError{DiscrepancyRef: discrepancyRef}
	}
	return err
}

// HasDecision reports whether a discrepancy has already been decided.
func (r *RemediationRepo) HasDecision(discrepancyRef string) (bool, error) {
	var one int
	err := r.db.QueryRow(`SELECT 1 FROM decisions WHERE discrepancy_ref = ?`, discrepancyRef).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r *RemediationRepo) InsertApprovalTx(tx *sql.Tx, a *domain.ApprovedRemediation) error {
	changes, err := json.Marshal(a.AppliedChanges)
	if err != nil {
		return fmt.Errorf("marshal changes: %w", err)
	}
	var supersedes any
	if a.Supersedes != "" {
		supersedes = a.Supersedes
	}
	_, err = tx.Exec(
		`INSERT INTO approvals (discrepancy_ref, scope, changes, approver, approved_at, supersedes)
		 VALUES (?,?,?,?,?,?)`,
		a.DiscrepancyRef, string(a.Scope), string(changes), a.Approver,
		a.ApprovedAt.Format(time.RFC3339), supersedes,
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint") {
		return &domain.AlreadyDecidedError{DiscrepancyRef: a.DiscrepancyRef}
	}
	return err
}

// ListApprovals returns all approved remediations ordered by ref.
func (r *RemediationRepo) ListApprovals() ([]domain.ApprovedRemediation, error) {
	rows, err := r.db.Query(
		`SELECT discrepancy_ref, scope, changes, approver, approved_at, supersedes
		 FROM approvals ORDER BY discrepancy_ref`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var approvals []domain.ApprovedRemediation
	for rows.Next() {
		var a domain.ApprovedRemediation
		var scope, changes, approvedAt string
		var supersedes sql.NullString
		if err := rows.Scan(&a.DiscrepancyRef, &scope, &changes, &a.Approver, &approvedAt, &supersedes); err != nil {
			return nil, err
		}
		a.Scope = domain.ChangeScope(scope)
		if err := json.Unmarshal([]byte(changes), &a.AppliedChanges); err != nil {
			return nil, fmt.Errorf("unmarshal changes %s: %w", a.DiscrepancyRef, err)
		}
		a.ApprovedAt, _ = time.Parse(time.RFC3339, approvedAt)
		if supersedes.Valid {
			a.Supersedes = supersedes.String
		}
		approvals = append(approvals, a)
	}
	return approvals, rows.Err()
}
