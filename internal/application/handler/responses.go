package handler

import (
	"time"

	"crediflow/internal/application"
)

// ApplicationResponse is the API shape of an application. The document id is
// masked; raw identifiers never leave the service.
type ApplicationResponse struct {
	ID              string                    `json:"id"`
	CountryCode     string                    `json:"countryCode"`
	FullName        string                    `json:"fullName"`
	DocumentID      string                    `json:"documentId"`
	RequestedAmount float64                   `json:"requestedAmount"`
	MonthlyIncome   float64                   `json:"monthlyIncome"`
	Status          string                    `json:"status"`
	BankData        *application.BankSnapshot `json:"bankData,omitempty"`
	CreatedAt       time.Time                 `json:"createdAt"`
	UpdatedAt       time.Time                 `json:"updatedAt"`
}

// ListResponse is the paged envelope for GET /api/applications.
type ListResponse struct {
	Items      []*ApplicationResponse `json:"items"`
	Total      int                    `json:"total"`
	Page       int                    `json:"page"`
	Limit      int                    `json:"limit"`
	TotalPages int                    `json:"totalPages"`
}

// FromApplication converts an aggregate to its API shape.
func FromApplication(app *application.Application) *ApplicationResponse {
	return &ApplicationResponse{
		ID:              app.ID.String(),
		CountryCode:     string(app.CountryCode),
		FullName:        app.FullName,
		DocumentID:      app.MaskedDocumentID(),
		RequestedAmount: app.RequestedAmount,
		MonthlyIncome:   app.MonthlyIncome,
		Status:          string(app.Status),
		BankData:        app.BankData,
		CreatedAt:       app.CreatedAt,
		UpdatedAt:       app.UpdatedAt,
	}
}
