package diagnose

import (
	"context"

	"github.com/sondrmsk/divrec/internal/domain"
)

// HistoryProvider supplies historical context for a record key: how many
// times the same discrepancy shape has been seen before. Implementations
// may hit external storage; the diagnoser bounds the call with a
// deadline and proceeds without the answer when it is unavailable.
type HistoryProvider interface {
	Recurrences(ctx context.Context, recordID string, sig domain.Signature) (int, error)
}

// finalizeSeverity classifies the pair and, for borderline MEDIUM cases,
// consults the history provider once. A discrepancy shape that keeps
// recurring for the same key is escalated to HIGH. No provider, a
// timeout or an error all leave the computed classification untouched.
func (d *Diagnoser) finalizeSeverity(ctx context.Context, pair *domain.DiscrepancyPair) domain.Severity {
	sev := Classify(pair, d.policy)

	if d.history == nil || sev != domain.SeverityMedium {
		return sev
	}

	reqCtx := ctx
	if d.escalationTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, d.escalationTimeout)
		defer cancel()
	}

	n, err := d.history.Recurrences(reqCtx, pair.RecordID, SignatureOf(pair))
	if err != nil {
		d.log.Debug().Err(err).Str("record_id", pair.RecordID).Msg("history unavailable, keeping computed severity")
		return sev
	}
	if d.escalateAfter > 0 && n >= d.escalateAfter {
		d.log.Info().Str("record_id", pair.RecordID).Int("recurrences", n).Msg("recurring discrepancy escalated")
		return domain.SeverityHigh
	}
	return sev
}
