package domain

import (
	"sort"
	"strings"
	"time"
)

// MagnitudeBucket coarsens a numeric delta into a band so signatures of
// similar discrepancies compare equal regardless of the exact figures.
type MagnitudeBucket string

const (
	BucketMinor    MagnitudeBucket = "minor"
	BucketModerate MagnitudeBucket = "moderate"
	BucketMajor    MagnitudeBucket = "major"
	// BucketMismatch marks non-numeric fields that simply differ.
	BucketMismatch MagnitudeBucket = "mismatch"
	// BucketAbsent marks fields one side never reported.
	BucketAbsent MagnitudeBucket = "absent"
)

// Signature is the normalized shape of a discrepancy: which fields
// differed and in what kind of magnitude. It is the retrieval key for
// the knowledge base.
type Signature struct {
	// Presence is set when one whole side of the pair was missing.
	Presence bool                       `json:"presence"`
	Buckets  map[string]MagnitudeBucket `json:"buckets"`
}

// Fields returns the differing field names in sorted order.
func (s Signature) Fields() []string {
	out := make([]string, 0, len(s.Buckets))
	for f := range s.Buckets {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// String renders the canonical form, e.g.
// "net_amount_settlement:moderate|custodian:mismatch". A presence
// discrepancy renders as "presence". Equal signatures always render
// identically.
func (s Signature) String() string {
	if s.Presence {
		return "presence"
	}
	fields := s.Fields()
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+":"+string(s.Buckets[f]))
	}
	return strings.Join(parts, "|")
}

// Outcome records how a proposed remediation was decided.
type Outcome string

const (
	OutcomeAccepted Outcome = "ACCEPTED"
	OutcomeRejected Outcome = "REJECTED"
)

// KnowledgeEntry is one past discrepancy and its resolution, kept as
// retrieval context for future remediation. Entries are append-only and
// never mutated.
type KnowledgeEntry struct {
	EntryID    string    `json:"entry_id"`
	Signature  Signature `json:"discrepancy_signature"`
	Resolution string    `json:"resolution_description"`
	Outcome    Outcome   `json:"outcome"`
	CreatedAt  time.Time `json:"created_at"`
}
