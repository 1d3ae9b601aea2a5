package domain

import "time"

// CaseStatus enumerates lifecycle states for cases.
type CaseStatus string

const (
	CaseStatusNew             CaseStatus = "NEW"
	CaseStatusInvestigating   CaseStatus = "INVESTIGATING"
	CaseStatusWaitingCustomer CaseStatus = "WAITING_CUSTOMER"
	CaseStatusWaitingProvider CaseStatus = "WAITING_PROVIDER"
	CaseStatusFixing          CaseStatus = "FIXING"
	CaseStatusResolved        CaseStatus = "RESOLVED"
	CaseStatusClosed          CaseStatus = "CLOSED"
)

// CaseStatuses lists every status in lifecycle order.
var CaseStatuses = []CaseStatus{
	CaseStatusNew,
	CaseStatusInvestigating,
	CaseStatusWaitingCustomer,
	CaseStatusWaitingProvider,
	CaseStatusFixing,
	CaseStatusResolved,
	CaseStatusClosed,
}

// Valid reports whether s is a known status.
func (s CaseStatus) Valid() bool {
	for _, known := range CaseStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsOpen is true for every status that still counts against the SLA.
func (s CaseStatus) IsOpen() bool {
	return s != CaseStatusResolved && s != CaseStatusClosed
}

// OpenCaseStatuses returns the statuses considered open.
func OpenCaseStatuses() []CaseStatus {
	open := make([]CaseStatus, 0, len(CaseStatuses))
	for _, s := range CaseStatuses {
		if s.IsOpen() {
			open = append(open, s)
		}
	}
	return open
}

// Severity enumerates case urgency, CRITICAL being the highest.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityNormal   Severity = "NORMAL"
	SeverityLow      Severity = "LOW"
)

var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityNormal:   2,
	SeverityLow:      3,
}

// Rank orders severities; lower is more urgent.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return len(severityRank)
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// Case is the aggregate for a customer-support issue.
type Case struct {
	ID              string
	CaseNumber      string
	Title           string
	Description     string
	CustomerName    string
	CustomerID      *string
	ProviderID      *string
	CaseTypeID      string
	CaseTypeName    string
	Category        string
	Status          CaseStatus
	Severity        Severity
	OwnerID         *string
	SLADeadline     *time.Time
	SLAMissed       bool
	FirstResponseAt *time.Time
	ResolvedAt      *time.Time
	ClosedAt        *time.Time
	RootCause       string
	Resolution      string
	Version         int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
