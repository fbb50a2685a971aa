// Package report assembles the payload handed to the external notifier.
// Pure aggregation, no side effects.
package report

import (
	"time"

	"github.com/sondrmsk/divrec/internal/domain"
)

// Build aggregates diagnosed pairs and applied remediations into the
// notifier payload. Approvals for record keys outside the pair set are
// carried through untouched; supersession chains are the store's
// concern, not the report's.
func Build(pairs []domain.DiscrepancyPair, approvals []domain.ApprovedRemediation) *domain.Report {
	return BuildAt(pairs, approvals, time.Now())
}

// BuildAt is Build with an explicit timestamp for deterministic output.
func BuildAt(pairs []domain.DiscrepancyPair, approvals []domain.ApprovedRemediation, generatedAt time.Time) *domain.Report {
	summary := domain.ReportSummary{
		TotalPairs: len(pairs),
		BySeverity: make(map[domain.Severity]int),
	}

	decided := make(map[string]bool, len(approvals))
	for _, a := range approvals {
		decided[a.DiscrepancyRef] = true
	}

	for i := range pairs {
		p := &pairs[i]
		summary.BySeverity[p.Severity]++

		if p.Severity.AtLeast(domain.SeverityMedium) {
			summary.Actionable++
			if decided[p.RecordID] {
				summary.Decided++
			} else {
				summary.Open++
			}
		}

		for _, delta := range p.Deltas {
			if delta.Kind == domain.FieldAmount {
				summary.TotalImpact += delta.Magnitude
			}
		}
	}

	return &domain.Report{
		GeneratedAt: generatedAt,
		Pairs:       pairs,
		Approvals:   approvals,
		Summary:     summary,
	}
}
