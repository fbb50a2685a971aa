package domain

import "time"

// ReportSummary aggregates counts for the notifier payload and the
// dashboard.
type ReportSummary struct {
	TotalPairs int              `json:"total_pairs"`
	BySeverity map[Severity]int `json:"by_severity"`
	Actionable int              `json:"actionable"`
	Decided    int              `json:"decided"`
	Open       int              `json:"open"`
	// TotalImpact sums monetary delta magnitudes in source currency.
	TotalImpact float64 `json:"total_impact"`
}

// Report is the sole object handed to the external notifier. It carries
// every diagnosed pair plus the remediations applied so far.
type Report struct {
	GeneratedAt time.Time             `json:"generated_at"`
	Pairs       []DiscrepancyPair     `json:"pairs"`
	Approvals   []ApprovedRemediation `json:"approvals"`
	Summary     ReportSummary         `json:"summary"`
}
