// Package rules holds the per-country credit policy: document validation,
// risk evaluation, and the verdict-to-status inference shared by the queued
// evaluation worker and the webhook reconciliation path.
package rules

import (
	"fmt"

	"crediflow/internal/application"
)

// Verdict is the outcome of a single risk evaluation. It is consumed
// immediately by the orchestrator and never persisted as-is.
type Verdict struct {
	Approved bool
	// Reason concatenates every failed criterion, not just the first, so a
	// rejection explains itself completely.
	Reason string
	// Score is the country-specific numeric score used for status inference.
	Score int
}

// CountryRule is the policy capability each jurisdiction implements.
// Implementations are pure: no I/O, no clock, deterministic.
type CountryRule interface {
	ValidateDocument(documentID string) bool
	EvaluateRisk(app *application.Application, data *application.BankSnapshot) Verdict
}

// registry is the closed set of supported jurisdictions. A missing entry is
// a configuration bug, not a runtime condition.
var registry = map[application.CountryCode]CountryRule{
	application.CountryBR: BrazilRule{},
	application.CountryMX: MexicoRule{},
}

// ForCountry returns the rule set for a country code.
func ForCountry(country application.CountryCode) (CountryRule, error) {
	rule, ok := registry[country]
	if !ok {
		return nil, fmt.Errorf("no country rule registered for %q", country)
	}
	return rule, nil
}

// documentNames maps each jurisdiction to its national document.
var documentNames = map[application.CountryCode]string{
	application.CountryBR: "CPF",
	application.CountryMX: "CURP",
}

// Validator adapts the registry to the application intake's document check.
type Validator struct{}

func (Validator) Validate(country application.CountryCode, documentID string) error {
	rule, err := ForCountry(country)
	if err != nil {
		return err
	}
	if !rule.ValidateDocument(documentID) {
		return fmt.Errorf("invalid %s format", documentNames[country])
	}
	return nil
}
