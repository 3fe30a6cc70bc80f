package workflow

import (
	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// Verdict is the result of evaluating a parallel vote
type Verdict int

const (
	// VerdictUndecided leaves the expense as it is
	VerdictUndecided Verdict = iota
	VerdictApproved
	VerdictRejected
)

func (v Verdict) String() string {
	switch v {
	case VerdictApproved:
		return "approved"
	case VerdictRejected:
		return "rejected"
	default:
		return "undecided"
	}
}

// Evaluate applies a conditional rule to the approval records of one expense.
//
// The threshold is measured against every record, pending ones included.
// A single approval from a specific approver is sufficient. The vote is rejected
// once at least one record is decided and none of the decided records approve.
func Evaluate(records []*entity.ApprovalRecord, rule *domainwf.ConditionalRule) Verdict {
	if rule == nil || len(records) == 0 {
		return VerdictUndecided
	}

	var approved, decided int
	specificMet := false
	for _, r := range records {
		if r.IsPending() {
			continue
		}
		decided++
		if r.Action == entity.ActionApproved {
			approved++
			if rule.IsSpecific(r.ApproverID) {
				specificMet = true
			}
		}
	}

	thresholdMet := rule.HasThreshold() &&
		float64(approved)/float64(len(records))*100 >= *rule.Threshold

	switch {
	case thresholdMet || specificMet:
		return VerdictApproved
	case decided > 0 && approved == 0:
		return VerdictRejected
	default:
		return VerdictUndecided
	}
}

// pendingCount returns the number of undecided records
func pendingCount(records []*entity.ApprovalRecord) int {
	n := 0
	for _, r := range records {
		if r.IsPending() {
			n++
		}
	}
	return n
}
