package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sondrmsk/divrec/internal/domain"
)

type KnowledgeRepo struct {
	db *sql.DB
}

func NewKnowledgeRepo(db *sql.DB) *KnowledgeRepo {
	return &KnowledgeRepo{db: db}
}

// Insert appends one entry. A duplicate entry ID fails with
// DuplicateEntryError and never overwrites.
func (r *KnowledgeRepo) Insert(entry *domain.KnowledgeEntry) error {
	return insertEntry(r.db, entry)
}

// InsertTx is Insert inside the caller's transaction.
func (r *KnowledgeRepo) InsertTx(tx *sql.Tx, entry *domain.KnowledgeEntry) error {
	return insertEntry(tx, entry)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertEntry(db execer, entry *domain.KnowledgeEntry) error {
	buckets, err := json.Marshal(entry.Signature.Buckets)
	if err != nil {
		return fmt.Errorf("marshal buckets: %w", err)
	}

	_, err = db.Exec(
		`INSERT INTO knowledge_entries
		 (entry_id, signature, presence, buckets, resolution, outcome, created_at)
		 VALUES (?,?,?,?,?,?,?)`,
		entry.EntryID, entry.Signature.String(), boolInt(entry.Signature.Presence),
		string(buckets), entry.Resolution, string(entry.Outcome),
		entry.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return &domain.DuplicateEntryError{EntryID: entry.EntryID}
		}
		return err
	}
	return nil
}

// LoadAll returns every entry ordered by entry ID. The knowledge base
// keeps them in memory for similarity ranking.
func (r *KnowledgeRepo) LoadAll() ([]domain.KnowledgeEntry, error) {
	rows, err := r.db.Query(
		`SELECT entry_id, presence, buckets, resolution, outcome, created_at
		 FROM knowledge_entries ORDER BY entry_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.KnowledgeEntry
	for rows.Next() {
		var e domain.KnowledgeEntry
		var presence int
		var buckets, outcome, createdAt string
		if err := rows.Scan(&e.EntryID, &presence, &buckets, &e.Resolution, &outcome, &createdAt); err != nil {
			return nil, err
		}
		e.Signature.Presence = presence == 1
		if err := json.Unmarshal([]byte(buckets), &e.Signature.Buckets); err != nil {
			return nil, fmt.Errorf("unmarshal buckets %s: %w", e.EntryID, err)
		}
		e.Outcome = domain.Outcome(outcome)
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Exists reports whether an entry ID is already taken.
func (r *KnowledgeRepo) Exists(entryID string) (bool, error) {
	var one int
	err := r.db.QueryRow(`SELECT 1 FROM knowledge_entries WHERE entry_id = ?`, entryID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}
