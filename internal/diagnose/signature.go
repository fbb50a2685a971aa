package diagnose

import (
	"math"

	"github.com/sondrmsk/divrec/internal/domain"
)

// SignatureOf normalizes a pair's deltas into the retrieval signature.
// Monetary deltas are bucketed by their size relative to the origin
// value, which keeps signatures comparable across positions of very
// different notional size:
//
//	minor    < 1% of the expected value
//	moderate < 10%
//	major    everything above, and any delta with no expected value
func SignatureOf(pair *domain.DiscrepancyPair) domain.Signature {
	sig := domain.Signature{Buckets: make(map[string]domain.MagnitudeBucket)}

	if pair.MissingSide() {
		sig.Presence = true
		return sig
	}

	for field, delta := range pair.Deltas {
		sig.Buckets[field] = bucketOf(delta)
	}
	return sig
}

func bucketOf(delta domain.FieldDelta) domain.MagnitudeBucket {
	if delta.DeltaKind == domain.DeltaMissingField {
		return domain.BucketAbsent
	}
	if delta.Kind != domain.FieldAmount {
		return domain.BucketMismatch
	}

	expected := math.Abs(delta.Expected.Number)
	if expected == 0 {
		return domain.BucketMajor
	}
	switch pct := delta.Magnitude / expected; {
	case pct < 0.01:
		return domain.BucketMinor
	case pct < 0.10:
		return domain.BucketModerate
	default:
		return domain.BucketMajor
	}
}
