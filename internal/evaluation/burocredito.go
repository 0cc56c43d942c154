package evaluation

import (
	"context"
	"time"

	"crediflow/internal/application"
)

// ProviderBuroCredito tags Mexican bureau payloads on the wire.
const ProviderBuroCredito = "BURO_CREDITO"

var paymentHistories = []string{
	application.PaymentHistoryGood,
	application.PaymentHistoryRegular,
	application.PaymentHistoryBad,
}

// BuroCredito simulates the Mexican bureau.
type BuroCredito struct {
	delay func(context.Context) error
}

func NewBuroCredito() *BuroCredito {
	return &BuroCredito{delay: bureauDelay}
}

func (b *BuroCredito) Name() string { return ProviderBuroCredito }

func (b *BuroCredito) Fetch(ctx context.Context, app *application.Application) (*application.BankSnapshot, error) {
	if b.delay != nil {
		if err := b.delay(ctx); err != nil {
			return nil, err
		}
	}

	hash := documentHash(app.DocumentID)
	data := &application.MexicoBankData{
		BureauScore:    int(500 + hash%351),
		TotalDebt:      float64(hash%200000 + 1000),
		ActiveLoans:    int(hash % 8),
		PaymentHistory: paymentHistories[hash%3],
		EvaluatedAt:    time.Now().UTC().Format(evaluatedAtLayout),
		Provider:       ProviderBuroCredito,
	}
	return &application.BankSnapshot{Mexico: data}, nil
}
