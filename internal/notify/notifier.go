// Package notify is the boundary to the external delivery collaborator.
// The core hands over a Report and learns nothing beyond success or
// failure; transport (email or otherwise) lives outside this module.
package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/sondrmsk/divrec/internal/domain"
	"github.com/sondrmsk/divrec/internal/logging"
)

// Notifier delivers a reconciliation report to the responsible party.
type Notifier interface {
	Deliver(ctx context.Context, report *domain.Report) error
}

// LogNotifier writes the report summary to the log. The default when no
// real delivery channel is wired.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: logging.New("notify")}
}

func (n *LogNotifier) Deliver(ctx context.Context, r *domain.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	evt := n.log.Info().
		Time("generated_at", r.GeneratedAt).
		Int("pairs", r.Summary.TotalPairs).
		Int("actionable", r.Summary.Actionable).
		Int("open", r.Summary.Open).
		Int("decided", r.Summary.Decided).
		Float64("total_impact", r.Summary.TotalImpact)
	for sev, n := range r.Summary.BySeverity {
		evt = evt.Int("severity_"+string(sev), n)
	}
	evt.Msg("reconciliation report")
	return nil
}
