package api

import (
	"time"

	"github.com/lueurxax/insights-engine/internal/core/domain"
)

// GenerateRequest is the optional body of a generation request.
type GenerateRequest struct {
	InvestorKey string `json:"investorKey"`
	Model       string `json:"model"`
	Provider    string `json:"provider"`
	Async       bool   `json:"async"`
}

// GenerateResponse acknowledges a generation request.
type GenerateResponse struct {
	Success      bool   `json:"success"`
	InvocationID string `json:"invocationId"`
	Status       string `json:"status"`
}

// ErrorResponse is the envelope of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// InvocationResponse is the public form of an invocation record.
type InvocationResponse struct {
	ID           string     `json:"invocationId"`
	Subject      string     `json:"subject"`
	Category     string     `json:"category"`
	InvestorKey  string     `json:"investorKey,omitempty"`
	Provider     string     `json:"provider,omitempty"`
	Model        string     `json:"model,omitempty"`
	Status       string     `json:"status"`
	Attempts     int        `json:"attempts"`
	ErrorCode    string     `json:"errorCode,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
}

func toInvocationResponse(inv domain.Invocation) InvocationResponse {
	return InvocationResponse{
		ID:           inv.ID,
		Subject:      inv.SubjectKey,
		Category:     string(inv.Category),
		InvestorKey:  inv.InvestorKey,
		Provider:     inv.Provider,
		Model:        inv.Model,
		Status:       string(inv.Status),
		Attempts:     inv.Attempts,
		ErrorCode:    inv.ErrorKind,
		ErrorMessage: inv.ErrorMessage,
		CreatedAt:    inv.CreatedAt,
		FinishedAt:   inv.FinishedAt,
	}
}
