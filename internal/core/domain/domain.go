package domain

import (
	"encoding/json"
	"time"
)

// SubjectKind distinguishes the families of subjects reports are generated for.
type SubjectKind string

// Subject kinds.
const (
	SubjectKindTicker    SubjectKind = "ticker"
	SubjectKindProject   SubjectKind = "project"
	SubjectKindCaseStudy SubjectKind = "case_study"
)

// Valid reports whether k is a known subject kind.
func (k SubjectKind) Valid() bool {
	switch k {
	case SubjectKindTicker, SubjectKindProject, SubjectKindCaseStudy:
		return true
	default:
		return false
	}
}

// Subject is the primary record a report is generated about.
type Subject struct {
	ID                     string
	Key                    string
	Kind                   SubjectKind
	Name                   string
	Exchange               string
	IndustryKey            string
	FinancialData          json.RawMessage
	FinancialDataUpdatedAt *time.Time
	CachedScore            *float64
	CacheInvalidatedAt     *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// HasFreshFinancialData reports whether statement data has been collected for the subject.
func (s *Subject) HasFreshFinancialData() bool {
	return len(s.FinancialData) > 0 && string(s.FinancialData) != "null"
}

// Industry is reference data attached to a subject.
type Industry struct {
	Key     string
	Name    string
	Summary string
}

// InvocationStatus tracks the lifecycle of a single call to a generation service.
type InvocationStatus string

// Invocation statuses.
const (
	InvocationPending   InvocationStatus = "pending"
	InvocationRunning   InvocationStatus = "running"
	InvocationSucceeded InvocationStatus = "succeeded"
	InvocationFailed    InvocationStatus = "failed"
)

// Invocation is the tracking record behind a correlation id.
type Invocation struct {
	ID           string
	SubjectID    string
	SubjectKey   string
	Category     Category
	InvestorKey  string
	Provider     string
	Model        string
	Status       InvocationStatus
	Attempts     int
	ErrorKind    string
	ErrorMessage string
	CreatedAt    time.Time
	FinishedAt   *time.Time
}
