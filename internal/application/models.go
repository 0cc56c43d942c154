package application

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "crediflow/pkg/domain-errors"
)

// CountryCode identifies the jurisdiction an application belongs to. The set
// is closed: every country needs its own document validation, risk rules, and
// bank-data shape before it can be added here.
type CountryCode string

const (
	CountryBR CountryCode = "BR"
	CountryMX CountryCode = "MX"
)

// ParseCountryCode validates a wire-level country code.
func ParseCountryCode(raw string) (CountryCode, error) {
	switch c := CountryCode(strings.ToUpper(raw)); c {
	case CountryBR, CountryMX:
		return c, nil
	default:
		return "", dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unsupported country code %q", raw))
	}
}

// Status is the lifecycle state of an application.
type Status string

const (
	StatusPending     Status = "pending"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
)

// validTransitions is the single source of truth for legal status changes.
// approved and rejected are terminal.
var validTransitions = map[Status][]Status{
	StatusPending:     {StatusUnderReview, StatusApproved, StatusRejected},
	StatusUnderReview: {StatusApproved, StatusRejected},
	StatusApproved:    {},
	StatusRejected:    {},
}

// ParseStatus validates a wire-level status value.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(raw); s {
	case StatusPending, StatusUnderReview, StatusApproved, StatusRejected:
		return s, nil
	default:
		return "", dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown status %q", raw))
	}
}

// CanTransitionTo reports whether the status machine permits current -> target.
func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status has no outgoing transitions.
func (s Status) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

// InvalidTransitionError carries the attempted illegal transition. Direct
// status-update requests surface it to the caller; the evaluation pipelines
// absorb it (an already-terminal application is an expected race outcome
// there, not a caller mistake).
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from '%s' to '%s'", e.From, e.To)
}

// BrazilBankData is the Serasa evaluation shape.
type BrazilBankData struct {
	CreditScore     int     `json:"creditScore"`
	TotalDebt       float64 `json:"totalDebt"`
	OpenAccounts    int     `json:"openAccounts"`
	NegativeHistory bool    `json:"negativeHistory"`
	EvaluatedAt     string  `json:"evaluatedAt"`
	Provider        string  `json:"provider"`
}

// MexicoBankData is the Buró de Crédito evaluation shape.
type MexicoBankData struct {
	BureauScore    int     `json:"bureauScore"`
	TotalDebt      float64 `json:"totalDebt"`
	ActiveLoans    int     `json:"activeLoans"`
	PaymentHistory string  `json:"paymentHistory"`
	EvaluatedAt    string  `json:"evaluatedAt"`
	Provider       string  `json:"provider"`
}

// Payment history categories for Mexico bank data.
const (
	PaymentHistoryGood    = "good"
	PaymentHistoryRegular = "regular"
	PaymentHistoryBad     = "bad"
)

// BankSnapshot is the country-tagged bank evaluation attached to an
// application. Exactly one variant is set; a new evaluation replaces the
// whole snapshot, never merges into it.
type BankSnapshot struct {
	Brazil *BrazilBankData
	Mexico *MexicoBankData
}

// Country returns the jurisdiction the snapshot belongs to.
func (s *BankSnapshot) Country() CountryCode {
	if s.Brazil != nil {
		return CountryBR
	}
	return CountryMX
}

// EvaluatedAt returns the provider's evaluation timestamp. It is the
// idempotency key for webhook reconciliation and is compared by exact string
// equality.
func (s *BankSnapshot) EvaluatedAt() string {
	if s.Brazil != nil {
		return s.Brazil.EvaluatedAt
	}
	if s.Mexico != nil {
		return s.Mexico.EvaluatedAt
	}
	return ""
}

// ProviderTag returns the provider identifier carried by the snapshot.
func (s *BankSnapshot) ProviderTag() string {
	if s.Brazil != nil {
		return s.Brazil.Provider
	}
	if s.Mexico != nil {
		return s.Mexico.Provider
	}
	return ""
}

// MarshalJSON emits the inner variant directly, so persisted snapshots look
// identical to the provider payloads.
func (s *BankSnapshot) MarshalJSON() ([]byte, error) {
	if s.Brazil != nil {
		return json.Marshal(s.Brazil)
	}
	if s.Mexico != nil {
		return json.Marshal(s.Mexico)
	}
	return nil, fmt.Errorf("bank snapshot has no variant set")
}

// DecodeBankSnapshot parses raw bank data for the given country. The country
// decides the variant; a payload missing evaluatedAt is rejected because the
// reconciliation idempotency guard depends on it.
func DecodeBankSnapshot(country CountryCode, raw []byte) (*BankSnapshot, error) {
	switch country {
	case CountryBR:
		var data BrazilBankData
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, dErrors.New(dErrors.CodeBadRequest, "malformed Brazil bank data payload")
		}
		if data.EvaluatedAt == "" {
			return nil, dErrors.New(dErrors.CodeBadRequest, "bank data payload is missing evaluatedAt")
		}
		return &BankSnapshot{Brazil: &data}, nil
	case CountryMX:
		var data MexicoBankData
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, dErrors.New(dErrors.CodeBadRequest, "malformed Mexico bank data payload")
		}
		if data.EvaluatedAt == "" {
			return nil, dErrors.New(dErrors.CodeBadRequest, "bank data payload is missing evaluatedAt")
		}
		return &BankSnapshot{Mexico: &data}, nil
	default:
		return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unsupported country code %q", country))
	}
}

// CreateParams are the immutable facts captured at application intake.
type CreateParams struct {
	CountryCode     CountryCode
	FullName        string
	DocumentID      string
	RequestedAmount float64
	MonthlyIncome   float64
}

// Application is the aggregate root. Identity and intake facts are immutable;
// status and the bank snapshot mutate only through TransitionTo and
// ReplaceBankData so the transition table and shape invariants hold
// everywhere.
type Application struct {
	ID              uuid.UUID
	CountryCode     CountryCode
	FullName        string
	DocumentID      string
	RequestedAmount float64
	MonthlyIncome   float64
	Status          Status
	BankData        *BankSnapshot
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// New creates an application in the pending state with no bank data.
func New(params CreateParams, now time.Time) (*Application, error) {
	if strings.TrimSpace(params.FullName) == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "full name is required")
	}
	if params.RequestedAmount <= 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "requested amount must be positive")
	}
	if params.MonthlyIncome <= 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "monthly income must be positive")
	}
	return &Application{
		ID:              uuid.New(),
		CountryCode:     params.CountryCode,
		FullName:        params.FullName,
		DocumentID:      params.DocumentID,
		RequestedAmount: params.RequestedAmount,
		MonthlyIncome:   params.MonthlyIncome,
		Status:          StatusPending,
		BankData:        nil,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Reconstitute rebuilds an aggregate from persisted state. Only stores call
// this; business logic goes through New.
func Reconstitute(id uuid.UUID, country CountryCode, fullName, documentID string,
	requestedAmount, monthlyIncome float64, status Status, bankData *BankSnapshot,
	createdAt, updatedAt time.Time) *Application {
	return &Application{
		ID:              id,
		CountryCode:     country,
		FullName:        fullName,
		DocumentID:      documentID,
		RequestedAmount: requestedAmount,
		MonthlyIncome:   monthlyIncome,
		Status:          status,
		BankData:        bankData,
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
	}
}

// CanTransitionTo reports whether the aggregate may move to target.
func (a *Application) CanTransitionTo(target Status) bool {
	return a.Status.CanTransitionTo(target)
}

// TransitionTo applies a status change, bumping UpdatedAt. Illegal
// transitions fail with InvalidTransitionError.
func (a *Application) TransitionTo(target Status, now time.Time) error {
	if !a.CanTransitionTo(target) {
		return &InvalidTransitionError{From: a.Status, To: target}
	}
	a.Status = target
	a.UpdatedAt = now
	return nil
}

// ReplaceBankData swaps the whole bank snapshot atomically. The snapshot
// country must match the application's.
func (a *Application) ReplaceBankData(snapshot *BankSnapshot, now time.Time) error {
	if snapshot == nil {
		return dErrors.New(dErrors.CodeBadRequest, "bank snapshot is required")
	}
	if snapshot.Country() != a.CountryCode {
		return dErrors.New(dErrors.CodeBadRequest,
			fmt.Sprintf("bank snapshot country %s does not match application country %s", snapshot.Country(), a.CountryCode))
	}
	a.BankData = snapshot
	a.UpdatedAt = now
	return nil
}

// Clone returns a deep copy. Stores hand out clones so no two concurrent
// operations share a mutable aggregate.
func (a *Application) Clone() *Application {
	dup := *a
	if a.BankData != nil {
		snapshot := BankSnapshot{}
		if a.BankData.Brazil != nil {
			data := *a.BankData.Brazil
			snapshot.Brazil = &data
		}
		if a.BankData.Mexico != nil {
			data := *a.BankData.Mexico
			snapshot.Mexico = &data
		}
		dup.BankData = &snapshot
	}
	return &dup
}

// MaskedDocumentID reveals only the last four characters of the document
// identifier for API responses.
func (a *Application) MaskedDocumentID() string {
	doc := a.DocumentID
	if len(doc) <= 4 {
		return strings.Repeat("*", len(doc))
	}
	return strings.Repeat("*", len(doc)-4) + doc[len(doc)-4:]
}
