package handler

import (
	"net/http"
	"strconv"
	"strings"

	"crediflow/internal/application"
	dErrors "crediflow/pkg/domain-errors"
)

// CreateRequest is the HTTP request body for POST /api/applications.
type CreateRequest struct {
	CountryCode     string  `json:"countryCode"`
	FullName        string  `json:"fullName"`
	DocumentID      string  `json:"documentId"`
	RequestedAmount float64 `json:"requestedAmount"`
	MonthlyIncome   float64 `json:"monthlyIncome"`

	parsedCountry application.CountryCode
}

// Validate checks and parses the intake payload. Amount bounds and document
// format checks belong to the domain; only wire-level shape lives here.
func (r *CreateRequest) Validate() error {
	country, err := application.ParseCountryCode(strings.TrimSpace(r.CountryCode))
	if err != nil {
		return err
	}
	r.parsedCountry = country

	r.FullName = strings.TrimSpace(r.FullName)
	if r.FullName == "" {
		return dErrors.New(dErrors.CodeBadRequest, "fullName is required")
	}
	r.DocumentID = strings.TrimSpace(r.DocumentID)
	if r.DocumentID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "documentId is required")
	}
	return nil
}

// ToParams converts the validated request into intake parameters.
func (r *CreateRequest) ToParams() application.CreateParams {
	return application.CreateParams{
		CountryCode:     r.parsedCountry,
		FullName:        r.FullName,
		DocumentID:      r.DocumentID,
		RequestedAmount: r.RequestedAmount,
		MonthlyIncome:   r.MonthlyIncome,
	}
}

// UpdateStatusRequest is the HTTP request body for PATCH /api/applications/{id}/status.
type UpdateStatusRequest struct {
	Status string `json:"status"`

	parsedStatus application.Status
}

func (r *UpdateStatusRequest) Validate() error {
	status, err := application.ParseStatus(strings.TrimSpace(r.Status))
	if err != nil {
		return err
	}
	r.parsedStatus = status
	return nil
}

// filtersFromQuery parses list query parameters. Unknown country or status
// values fail rather than silently matching nothing.
func filtersFromQuery(r *http.Request) (application.Filters, error) {
	var filters application.Filters

	if raw := r.URL.Query().Get("country"); raw != "" {
		country, err := application.ParseCountryCode(raw)
		if err != nil {
			return filters, err
		}
		filters.Country = &country
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := application.ParseStatus(raw)
		if err != nil {
			return filters, err
		}
		filters.Status = &status
	}
	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return filters, dErrors.New(dErrors.CodeBadRequest, "page must be a positive integer")
		}
		filters.Page = page
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return filters, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer")
		}
		filters.Limit = limit
	}
	return filters.Normalize(), nil
}
