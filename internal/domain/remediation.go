package domain

import "time"

// ChangeScope names the dataset a remediation writes to.
type ChangeScope string

const (
	ScopeOrigin       ChangeScope = "ORIGIN"
	ScopeCounterparty ChangeScope = "COUNTERPARTY"
	ScopeReconciled   ChangeScope = "RECONCILED"
)

// Decision is the human (or policy) verdict on a candidate.
type Decision string

const (
	DecisionAccept Decision = "ACCEPT"
	DecisionReject Decision = "REJECT"
)

// RemediationCandidate is a proposed fix for a discrepancy with severity
// MEDIUM or above. Candidates are immutable once created; approval
// produces a separate ApprovedRemediation.
type RemediationCandidate struct {
	CandidateID    string           `json:"candidate_id"`
	DiscrepancyRef string           `json:"discrepancy_ref"`
	Scope          ChangeScope      `json:"scope"`
	Changes        map[string]Value `json:"proposed_changes"`
	// Supporting lists the knowledge entry IDs actually used as
	// justification, in retrieval order.
	Supporting  []string  `json:"supporting_entries"`
	Confidence  float64   `json:"confidence"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// ApprovedRemediation is the durable record of an accepted candidate.
// Created exactly once per accepted candidate and never deleted;
// supersession is a new entry referencing the prior one.
type ApprovedRemediation struct {
	DiscrepancyRef string           `json:"discrepancy_ref"`
	Scope          ChangeScope      `json:"scope"`
	AppliedChanges map[string]Value `json:"applied_changes"`
	ApprovedAt     time.Time        `json:"approved_at"`
	Approver       string           `json:"approver_identity"`
	Supersedes     string           `json:"supersedes,omitempty"`
}
