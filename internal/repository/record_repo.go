package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sondrmsk/divrec/internal/domain"
)

type RecordRepo struct {
	db *sql.DB
}

func NewRecordRepo(db *sql.DB) *RecordRepo {
	return &RecordRepo{db: db}
}

// InsertCycle registers a reconciliation cycle before its records land.
func (r *RecordRepo) InsertCycle(cycleID string, startedAt time.Time, originRows, counterpartyRows, rowErrors int) error {
	_, err := r.db.Exec(
		`INSERT INTO cycles (id, started_at, origin_rows, counterparty_rows, row_errors)
		 VALUES (?,?,?,?,?)`,
		cycleID, startedAt.Format(time.RFC3339), originRows, counterpartyRows, rowErrors,
	)
	return err
}

func (r *RecordRepo) BulkInsert(cycleID string, records []domain.Record) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT OR IGNORE INTO records (cycle_id, record_id, source, fields) VALUES (?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range records {
		rec := &records[i]
		fields, err := json.Marshal(rec.Fields)
		if err != nil {
			return inserted, fmt.Errorf("marshal fields %s: %w", rec.RecordID, err)
		}
		res, err := stmt.Exec(cycleID, rec.RecordID, string(rec.Source), string(fields))
		if err != nil {
			return inserted, fmt.Errorf("insert %s: %w", rec.RecordID, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// Get returns one record, or nil when the dataset has no row for the key.
func (r *RecordRepo) Get(cycleID, recordID string, source domain.Source) (*domain.Record, error) {
	var fieldsJSON string
	err := r.db.QueryRow(
		`SELECT fields FROM records WHERE cycle_id = ? AND record_id = ? AND source = ?`,
		cycleID, recordID, string(source),
	).Scan(&fieldsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rec := &domain.Record{RecordID: recordID, Source: source}
	if err := json.Unmarshal([]byte(fieldsJSON), &rec.Fields); err != nil {
		return nil, fmt.Errorf("unmarshal fields %s: %w", recordID, err)
	}
	return rec, nil
}

// ApplyChangesTx writes an approved remediation's field changes inside
// the caller's transaction. ORIGIN and COUNTERPARTY scopes update the
// existing row; the RECONCILED scope upserts a derived row seeded from
// the origin side (counterparty when origin is absent) with the changes
// overlaid. All changes land or the transaction rolls back.
func (r *RecordRepo) ApplyChangesTx(tx *sql.Tx, cycleID, recordID string, scope domain.ChangeScope, changes map[string]domain.Value) error {
	switch scope {
	case domain.ScopeOrigin, domain.ScopeCounterparty:
		return applyToExisting(tx, cycleID, recordID, domain.Source(scope), changes)
	case domain.ScopeReconciled:
		return upsertReconciled(tx, cycleID, recordID, changes)
	default:
		return fmt.Errorf("unknown change scope %q", scope)
	}
}

func applyToExisting(tx *sql.Tx, cycleID, recordID string, source domain.Source, changes map[string]domain.Value) error {
	var fieldsJSON string
	err := tx.QueryRow(
		`SELECT fields FROM records WHERE cycle_id = ? AND record_id = ? AND source = ?`,
		cycleID, recordID, string(source),
	).Scan(&fieldsJSON)
	if err == sql.ErrNoRows {
		return fmt.Errorf("record %s/%s: %w", recordID, source, domain.ErrNotFound)
	}
	if err != nil {
		return err
	}

	var fields map[string]domain.Value
	if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
		return fmt.Errorf("unmarshal fields %s: %w", recordID, err)
	}
	for f, v := range changes {
		fields[f] = v
	}

	updated, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal fields %s: %w", recordID, err)
	}
	_, err = tx.Exec(
		`UPDATE records SET fields = ? WHERE cycle_id = ? AND record_id = ? AND source = ?`,
		string(updated), cycleID, recordID, string(source),
	)
	return err
}

func upsertReconciled(tx *sql.Tx, cycleID, recordID string, changes map[string]domain.Value) error {
	fields := make(map[string]domain.Value)

	// Seed from whichever side exists, origin preferred.
	for _, src := range []domain.Source{domain.SourceOrigin, domain.SourceCounterparty} {
		var fieldsJSON string
		err := tx.QueryRow(
			`SELECT fields FROM records WHERE cycle_id = ? AND record_id = ? AND source = ?`,
			cycleID, recordID, string(src),
		).Scan(&fieldsJSON)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
			return fmt.Errorf("unmarshal fields %s: %w", recordID, err)
		}
		break
	}

	for f, v := range changes {
		fields[f] = v
	}

	updated, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal fields %s: %w", recordID, err)
	}
	_, err = tx.Exec(
		`INSERT INTO records (cycle_id, record_id, source, fields) VALUES (?,?,?,?)
		 ON CONFLICT (cycle_id, record_id, source) DO UPDATE SET fields = excluded.fields`,
		cycleID, recordID, string(domain.SourceReconciled), string(updated),
	)
	return err
}

// LatestCycleID returns the most recently started cycle, or empty when
// none exist yet.
func (r *RecordRepo) LatestCycleID() (string, error) {
	var id string
	err := r.db.QueryRow(`SELECT id FROM cycles ORDER BY started_at DESC, id DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return id, err
}
