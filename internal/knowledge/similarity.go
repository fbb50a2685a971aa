package knowledge

import "github.com/sondrmsk/divrec/internal/domain"

// Weighting of the two similarity components. Field overlap dominates;
// matching magnitude bands refine the ranking among entries touching
// the same fields.
const (
	fieldWeight  = 0.7
	bucketWeight = 0.3
)

// Similarity scores two signatures in [0,1]. The metric is Jaccard
// overlap of the differing field sets plus the fraction of shared
// fields whose magnitude buckets agree. Presence discrepancies only
// fully match other presence discrepancies. Deterministic for
// identical inputs.
func Similarity(a, b domain.Signature) float64 {
	if a.Presence || b.Presence {
		if a.Presence && b.Presence {
			return 1
		}
		return 0
	}
	if len(a.Buckets) == 0 && len(b.Buckets) == 0 {
		return 1
	}
	if len(a.Buckets) == 0 || len(b.Buckets) == 0 {
		return 0
	}

	shared := 0
	bucketMatch := 0
	for f, ab := range a.Buckets {
		bb, ok := b.Buckets[f]
		if !ok {
			continue
		}
		shared++
		if ab == bb {
			bucketMatch++
		}
	}

	union := len(a.Buckets) + len(b.Buckets) - shared
	jaccard := float64(shared) / float64(union)

	if shared == 0 {
		return 0
	}
	return fieldWeight*jaccard + bucketWeight*float64(bucketMatch)/float64(shared)
}
