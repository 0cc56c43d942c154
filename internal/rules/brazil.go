package rules

import (
	"fmt"
	"math"
	"strings"

	"crediflow/internal/application"
)

// BrazilRule evaluates Serasa bank data. All four criteria are independent
// risk factors, so rejection reasons accumulate without short-circuiting.
type BrazilRule struct{}

func (BrazilRule) ValidateDocument(documentID string) bool {
	return ValidateCPF(documentID)
}

func (BrazilRule) EvaluateRisk(app *application.Application, data *application.BankSnapshot) Verdict {
	bank := data.Brazil
	var reasons []string

	if bank.CreditScore < 600 {
		reasons = append(reasons,
			fmt.Sprintf("Serasa score %d is below minimum threshold of 600", bank.CreditScore))
	}

	// Income must cover 3x the monthly installment, assuming a 12-month term.
	monthlyInstallment := app.RequestedAmount / 12
	requiredIncome := monthlyInstallment * 3
	if app.MonthlyIncome < requiredIncome {
		reasons = append(reasons,
			fmt.Sprintf("Monthly income %.2f is below required %.2f (3x monthly installment)",
				app.MonthlyIncome, requiredIncome))
	}

	if bank.NegativeHistory {
		reasons = append(reasons, "Applicant has negative credit history")
	}

	annualIncome := app.MonthlyIncome * 12
	debtRatio := math.Inf(1)
	if annualIncome > 0 {
		debtRatio = (bank.TotalDebt + app.RequestedAmount) / annualIncome
	}
	if debtRatio >= 0.50 {
		reasons = append(reasons,
			fmt.Sprintf("Debt-to-income ratio %.1f%% exceeds maximum of 50%%", debtRatio*100))
	}

	if len(reasons) > 0 {
		return Verdict{Approved: false, Reason: strings.Join(reasons, "; "), Score: bank.CreditScore}
	}
	return Verdict{Approved: true, Reason: "All Brazil credit criteria met", Score: bank.CreditScore}
}
