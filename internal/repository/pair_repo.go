package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sondrmsk/divrec/internal/domain"
)

type PairRepo struct {
	db *sql.DB
}

func NewPairRepo(db *sql.DB) *PairRepo {
	return &PairRepo{db: db}
}

// storedPair is the persisted shape of a pair; records are stored
// separately and rehydrated on read.
type storedPair struct {
	Severity  domain.Severity
	Signature string
	Deltas    string
}

func (r *PairRepo) BulkInsert(cycleID string, pairs []domain.DiscrepancyPair, signatures []string) (int, error) {
	if len(signatures) != len(pairs) {
		return 0, fmt.Errorf("signature count %d does not match pair count %d", len(signatures), len(pairs))
	}

	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT OR IGNORE INTO pairs
		 (cycle_id, record_id, severity, signature, deltas, has_origin, has_counterparty, diagnosed_at)
		 VALUES (?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range pairs {
		p := &pairs[i]
		deltas, err := json.Marshal(p.Deltas)
		if err != nil {
			return inserted, fmt.Errorf("marshal deltas %s: %w", p.RecordID, err)
		}
		res, err := stmt.Exec(
			cycleID, p.RecordID, string(p.Severity), signatures[i], string(deltas),
			boolInt(p.Origin != nil), boolInt(p.Counterparty != nil),
			p.DiagnosedAt.Format(time.RFC3339),
		)
		if err != nil {
			return inserted, fmt.Errorf("insert %s: %w", p.RecordID, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// PairFilter narrows List results.
type PairFilter struct {
	CycleID     string
	MinSeverity domain.Severity
	Severity    domain.Severity
}

// List returns pairs for a cycle, rehydrating each side's record from
// the records table. Ordered by record ID for stable output.
func (r *PairRepo) List(recRepo *RecordRepo, f PairFilter) ([]domain.DiscrepancyPair, error) {
	var clauses []string
	var args []any

	if f.CycleID != "" {
		clauses = append(clauses, "cycle_id = ?")
		args = append(args, f.CycleID)
	}
	if f.Severity != "" {
		clauses = append(clauses, "severity = ?")
		args = append(args, string(f.Severity))
	}

	q := `SELECT cycle_id, record_id, severity, deltas, has_origin, has_counterparty, diagnosed_at FROM pairs`
	if len(clauses) > 0 {
		q += " WHERE " + strings.Join(clauses, " AND ")
	}
	q += " ORDER BY record_id"

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []domain.DiscrepancyPair
	for rows.Next() {
		var cycleID, recordID, severity, deltasJSON, diagnosedAt string
		var hasOrigin, hasCounterparty int
		if err := rows.Scan(&cycleID, &recordID, &severity, &deltasJSON, &hasOrigin, &hasCounterparty, &diagnosedAt); err != nil {
			return nil, err
		}

		p := domain.DiscrepancyPair{
			RecordID: recordID,
			Severity: domain.Severity(severity),
		}
		if err := json.Unmarshal([]byte(deltasJSON), &p.Deltas); err != nil {
			return nil, fmt.Errorf("unmarshal deltas %s: %w", recordID, err)
		}
		p.DiagnosedAt, _ = time.Parse(time.RFC3339, diagnosedAt)

		if hasOrigin == 1 {
			if p.Origin, err = recRepo.Get(cycleID, recordID, domain.SourceOrigin); err != nil {
				return nil, err
			}
		}
		if hasCounterparty == 1 {
			if p.Counterparty, err = recRepo.Get(cycleID, recordID, domain.SourceCounterparty); err != nil {
				return nil, err
			}
		}

		if f.MinSeverity != "" && !p.Severity.AtLeast(f.MinSeverity) {
			continue
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// GetSignature returns the stored signature string for one pair.
func (r *PairRepo) GetSignature(cycleID, recordID string) (string, error) {
	var sig string
	err := r.db.QueryRow(
		`SELECT signature FROM pairs WHERE cycle_id = ? AND record_id = ?`, cycleID, recordID,
	).Scan(&sig)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("pair %s: %w", recordID, domain.ErrNotFound)
	}
	return sig, err
}

// GetDeltas returns the stored deltas for one pair.
func (r *PairRepo) GetDeltas(cycleID, recordID string) (map[string]domain.FieldDelta, error) {
	var deltasJSON string
	err := r.db.QueryRow(
		`SELECT deltas FROM pairs WHERE cycle_id = ? AND record_id = ?`, cycleID, recordID,
	).Scan(&deltasJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("pair %s: %w", recordID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var deltas map[string]domain.FieldDelta
	if err := json.Unmarshal([]byte(deltasJSON), &deltas); err != nil {
		return nil, fmt.Errorf("unmarshal deltas %s: %w", recordID, err)
	}
	return deltas, nil
}

// CountRecurrences counts how many past cycles recorded the same
// discrepancy shape for the same key. Backs the diagnoser's escalation.
func (r *PairRepo) CountRecurrences(recordID, signature string) (int, error) {
	var n int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM pairs WHERE record_id = ? AND signature = ? AND severity != ?`,
		recordID, signature, string(domain.SeverityNone),
	).Scan(&n)
	return n, err
}

// SeveritySummary counts pairs per severity for one cycle.
func (r *PairRepo) SeveritySummary(cycleID string) (map[domain.Severity]int, error) {
	rows, err := r.db.Query(
		`SELECT severity, COUNT(*) FROM pairs WHERE cycle_id = ? GROUP BY severity`, cycleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[domain.Severity]int)
	for rows.Next() {
		var sev string
		var n int
		if err := rows.Scan(&sev, &n); err != nil {
			return nil, err
		}
		out[domain.Severity(sev)] = n
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
