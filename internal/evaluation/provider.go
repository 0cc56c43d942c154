package evaluation

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"crediflow/internal/application"
)

// evaluatedAtLayout matches the providers' wire timestamps: UTC with
// millisecond precision and a literal Z.
const evaluatedAtLayout = "2006-01-02T15:04:05.000Z"

// Provider simulates a credit bureau. Fetch takes 2-4 seconds to mirror
// real bureau latency; tests inject a zero delay.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, app *application.Application) (*application.BankSnapshot, error)
}

// ProviderSet maps each jurisdiction to its bureau.
type ProviderSet map[application.CountryCode]Provider

// DefaultProviders wires the production bureau set.
func DefaultProviders() ProviderSet {
	return ProviderSet{
		application.CountryBR: NewSerasa(),
		application.CountryMX: NewBuroCredito(),
	}
}

// ForCountry returns the bureau for a country code.
func (ps ProviderSet) ForCountry(country application.CountryCode) (Provider, error) {
	provider, ok := ps[country]
	if !ok {
		return nil, fmt.Errorf("no bank provider registered for %q", country)
	}
	return provider, nil
}

// documentHash derives a stable profile from a document id so the same
// applicant always gets the same simulated bureau response. The arithmetic
// wraps at 32 bits to stay compatible with historical payloads.
func documentHash(input string) int64 {
	var hash int32
	for i := 0; i < len(input); i++ {
		hash = (hash << 5) - hash + int32(input[i])
	}
	value := int64(hash)
	if value < 0 {
		value = -value
	}
	return value
}

// bureauDelay sleeps 2-4 seconds or returns early when ctx is cancelled.
func bureauDelay(ctx context.Context) error {
	d := 2*time.Second + time.Duration(rand.Int63n(int64(2*time.Second)))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
