// Package knowledge is the append-only store of past discrepancy/fix
// pairs, queryable by signature similarity. Entries are durable in
// SQLite and mirrored in memory for ranking; queries run concurrently
// while appends serialize, so a query never observes a partial entry.
package knowledge

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sondrmsk/divrec/internal/domain"
	"github.com/sondrmsk/divrec/internal/logging"
	"github.com/sondrmsk/divrec/internal/repository"
)

// Base is the knowledge base handle. Construct with Load; safe for
// concurrent use.
type Base struct {
	mu      sync.RWMutex
	entries []domain.KnowledgeEntry
	repo    *repository.KnowledgeRepo
	log     zerolog.Logger
}

// Load opens the knowledge base over its durable store.
func Load(repo *repository.KnowledgeRepo) (*Base, error) {
	entries, err := repo.LoadAll()
	if err != nil {
		return nil, err
	}
	b := &Base{
		entries: entries,
		repo:    repo,
		log:     logging.New("knowledge"),
	}
	b.log.Info().Int("entries", len(entries)).Msg("knowledge base loaded")
	return b, nil
}

// Scored pairs an entry with its similarity to the query signature.
type Scored struct {
	Entry domain.KnowledgeEntry
	Score float64
}

// Query returns up to k entries ranked by similarity to the signature.
// Ranking is deterministic: equal scores break ties on entry ID.
func (b *Base) Query(sig domain.Signature, k int) []Scored {
	b.mu.RLock()
	defer b.mu.RUnlock()

	scored := make([]Scored, 0, len(b.entries))
	for _, e := range b.entries {
		scored = append(scored, Scored{Entry: e, Score: Similarity(sig, e.Signature)})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Entry.EntryID < scored[j].Entry.EntryID
	})

	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k]
}

// Append adds one entry, durably and then to the in-memory index. An
// existing entry ID fails with DuplicateEntryError; nothing is
// overwritten. Appends are serialized relative to each other and to
// in-flight queries.
func (b *Base) Append(entry domain.KnowledgeEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.repo.Insert(&entry); err != nil {
		return err
	}
	b.entries = append(b.entries, entry)

	b.log.Debug().
		Str("entry_id", entry.EntryID).
		Str("signature", entry.Signature.String()).
		Str("outcome", string(entry.Outcome)).
		Msg("knowledge entry appended")
	return nil
}

// Len returns the number of entries.
func (b *Base) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
