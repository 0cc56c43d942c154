package evaluation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crediflow/internal/application"
)

func testApplication(t *testing.T, country application.CountryCode, documentID string) *application.Application {
	t.Helper()
	app, err := application.New(application.CreateParams{
		CountryCode:     country,
		FullName:        "Ana Souza",
		DocumentID:      documentID,
		RequestedAmount: 10000,
		MonthlyIncome:   5000,
	}, time.Now())
	require.NoError(t, err)
	return app
}

func TestDocumentHash(t *testing.T) {
	t.Run("is stable", func(t *testing.T) {
		assert.Equal(t, documentHash("52998224725"), documentHash("52998224725"))
	})

	t.Run("is non-negative", func(t *testing.T) {
		for _, input := range []string{"", "a", "52998224725", "GARC850101HDFRRL09"} {
			assert.GreaterOrEqual(t, documentHash(input), int64(0), "input %q", input)
		}
	})

	t.Run("distinguishes documents", func(t *testing.T) {
		assert.NotEqual(t, documentHash("52998224725"), documentHash("11144477735"))
	})
}

func TestSerasa(t *testing.T) {
	provider := &Serasa{}
	app := testApplication(t, application.CountryBR, "52998224725")

	t.Run("same document yields the same profile", func(t *testing.T) {
		first, err := provider.Fetch(context.Background(), app)
		require.NoError(t, err)
		second, err := provider.Fetch(context.Background(), app)
		require.NoError(t, err)

		require.NotNil(t, first.Brazil)
		assert.Equal(t, first.Brazil.CreditScore, second.Brazil.CreditScore)
		assert.Equal(t, first.Brazil.TotalDebt, second.Brazil.TotalDebt)
		assert.Equal(t, first.Brazil.OpenAccounts, second.Brazil.OpenAccounts)
		assert.Equal(t, first.Brazil.NegativeHistory, second.Brazil.NegativeHistory)
	})

	t.Run("profile stays within bureau ranges", func(t *testing.T) {
		snapshot, err := provider.Fetch(context.Background(), app)
		require.NoError(t, err)

		data := snapshot.Brazil
		assert.GreaterOrEqual(t, data.CreditScore, 300)
		assert.LessOrEqual(t, data.CreditScore, 1000)
		assert.GreaterOrEqual(t, data.TotalDebt, 500.0)
		assert.GreaterOrEqual(t, data.OpenAccounts, 1)
		assert.LessOrEqual(t, data.OpenAccounts, 10)
		assert.Equal(t, "SERASA", data.Provider)
		assert.NotEmpty(t, data.EvaluatedAt)
		assert.Equal(t, application.CountryBR, snapshot.Country())
	})

	t.Run("cancelled context aborts the fetch", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := NewSerasa().Fetch(ctx, app)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestBuroCredito(t *testing.T) {
	provider := &BuroCredito{}
	app := testApplication(t, application.CountryMX, "GARC850101HDFRRL09")

	t.Run("profile stays within bureau ranges", func(t *testing.T) {
		snapshot, err := provider.Fetch(context.Background(), app)
		require.NoError(t, err)

		data := snapshot.Mexico
		require.NotNil(t, data)
		assert.GreaterOrEqual(t, data.BureauScore, 500)
		assert.LessOrEqual(t, data.BureauScore, 850)
		assert.GreaterOrEqual(t, data.TotalDebt, 1000.0)
		assert.GreaterOrEqual(t, data.ActiveLoans, 0)
		assert.LessOrEqual(t, data.ActiveLoans, 7)
		assert.Contains(t, []string{
			application.PaymentHistoryGood,
			application.PaymentHistoryRegular,
			application.PaymentHistoryBad,
		}, data.PaymentHistory)
		assert.Equal(t, "BURO_CREDITO", data.Provider)
		assert.Equal(t, application.CountryMX, snapshot.Country())
	})

	t.Run("registry resolves both bureaus", func(t *testing.T) {
		providers := DefaultProviders()

		br, err := providers.ForCountry(application.CountryBR)
		require.NoError(t, err)
		assert.Equal(t, "SERASA", br.Name())

		mx, err := providers.ForCountry(application.CountryMX)
		require.NoError(t, err)
		assert.Equal(t, "BURO_CREDITO", mx.Name())

		_, err = providers.ForCountry(application.CountryCode("AR"))
		assert.Error(t, err)
	})
}
