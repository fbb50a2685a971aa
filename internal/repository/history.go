package repository

import (
	"context"

	"github.com/sondrmsk/divrec/internal/domain"
)

// History serves the diagnoser's escalation requests from the pairs
// table: how often has this key shown this discrepancy shape before.
type History struct {
	pairs *PairRepo
}

func NewHistory(pairs *PairRepo) *History {
	return &History{pairs: pairs}
}

func (h *History) Recurrences(ctx context.Context, recordID string, sig domain.Signature) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return h.pairs.CountRecurrences(recordID, sig.String())
}
