package rules

import (
	"fmt"
	"math"
	"strings"

	"crediflow/internal/application"
)

// Mexico caps automatic approvals; anything above goes to manual review even
// when every hard criterion passes.
const mexicoAutoApprovalLimit = 100000

// MexicoRule evaluates Buró de Crédito bank data. Hard criteria accumulate
// and reject together; the auto-approval ceiling is a separate manual-review
// gate applied only when the hard criteria are clean. The asymmetry with
// Brazil is deliberate domain policy.
type MexicoRule struct{}

func (MexicoRule) ValidateDocument(documentID string) bool {
	return ValidateCURP(documentID)
}

func (MexicoRule) EvaluateRisk(app *application.Application, data *application.BankSnapshot) Verdict {
	bank := data.Mexico
	var reasons []string

	if bank.BureauScore < 650 {
		reasons = append(reasons,
			fmt.Sprintf("Bureau score %d is below minimum threshold of 650", bank.BureauScore))
	}

	debtToIncome := math.Inf(1)
	if app.MonthlyIncome > 0 {
		debtToIncome = bank.TotalDebt / app.MonthlyIncome
	}
	if debtToIncome >= 0.40 {
		reasons = append(reasons,
			fmt.Sprintf("Debt-to-income ratio %.1f%% exceeds maximum of 40%%", debtToIncome*100))
	}

	if bank.PaymentHistory == application.PaymentHistoryBad {
		reasons = append(reasons, "Applicant has bad payment history")
	}

	if bank.ActiveLoans > 3 {
		reasons = append(reasons,
			fmt.Sprintf("Active loans count %d exceeds maximum of 3", bank.ActiveLoans))
	}

	if len(reasons) > 0 {
		return Verdict{Approved: false, Reason: strings.Join(reasons, "; "), Score: bank.BureauScore}
	}

	if app.RequestedAmount > mexicoAutoApprovalLimit {
		return Verdict{
			Approved: false,
			Reason: fmt.Sprintf("Requested amount %.0f MXN exceeds auto-approval limit of 100,000 MXN; requires manual review",
				app.RequestedAmount),
			Score: bank.BureauScore,
		}
	}

	return Verdict{Approved: true, Reason: "All Mexico credit criteria met", Score: bank.BureauScore}
}
