package evaluation

import (
	"context"
	"time"

	"crediflow/internal/application"
)

// ProviderSerasa tags Brazilian bureau payloads on the wire.
const ProviderSerasa = "SERASA"

// Serasa simulates the Brazilian bureau.
type Serasa struct {
	delay func(context.Context) error
}

func NewSerasa() *Serasa {
	return &Serasa{delay: bureauDelay}
}

func (s *Serasa) Name() string { return ProviderSerasa }

func (s *Serasa) Fetch(ctx context.Context, app *application.Application) (*application.BankSnapshot, error) {
	if s.delay != nil {
		if err := s.delay(ctx); err != nil {
			return nil, err
		}
	}

	hash := documentHash(app.DocumentID)
	data := &application.BrazilBankData{
		CreditScore:     int(300 + hash%701),
		TotalDebt:       float64(hash%100000 + 500),
		OpenAccounts:    int(hash%10 + 1),
		NegativeHistory: hash%3 == 0,
		EvaluatedAt:     time.Now().UTC().Format(evaluatedAtLayout),
		Provider:        ProviderSerasa,
	}
	return &application.BankSnapshot{Brazil: data}, nil
}
