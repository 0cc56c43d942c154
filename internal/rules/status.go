package rules

import "crediflow/internal/application"

// statusReviewThreshold splits rejected verdicts: scores at or above it mean
// ambiguous risk needing human judgment, below it a hard reject. The same
// cutoff applies to both countries.
const statusReviewThreshold = 600

// StatusFromVerdict infers the target application status from a verdict.
// Both the queued evaluation worker and the webhook reconciliation path go
// through this single function so the two entry points cannot drift.
func StatusFromVerdict(v Verdict) application.Status {
	if v.Approved {
		return application.StatusApproved
	}
	if v.Score >= statusReviewThreshold {
		return application.StatusUnderReview
	}
	return application.StatusRejected
}
