package dto

import (
	"time"

	"github.com/spec-kit/case-service/internal/domain"
)

// CreateCaseRequest payload.
type CreateCaseRequest struct {
	Title        string   `json:"title" validate:"required,max=300"`
	Description  string   `json:"description" validate:"max=10000"`
	CustomerName string   `json:"customerName" validate:"max=200"`
	CustomerID   *string  `json:"customerId"`
	ProviderID   *string  `json:"providerId"`
	CaseTypeID   string   `json:"caseTypeId" validate:"required,uuid"`
	Severity     string   `json:"severity" validate:"omitempty,severity"`
	OwnerID      *string  `json:"ownerId" validate:"omitempty,uuid"`
	AutoAssign   *bool    `json:"autoAssign"`
	OrderIDs     []string `json:"orderIds" validate:"omitempty,dive,uuid"`
}

// UpdateCaseRequest payload. Absent fields stay unchanged; an empty ownerId unassigns.
type UpdateCaseRequest struct {
	Title           *string    `json:"title" validate:"omitempty,max=300"`
	Description     *string    `json:"description" validate:"omitempty,max=10000"`
	CustomerName    *string    `json:"customerName" validate:"omitempty,max=200"`
	Severity        *string    `json:"severity" validate:"omitempty,severity"`
	OwnerID         *string    `json:"ownerId" validate:"omitempty,uuid_or_empty"`
	RootCause       *string    `json:"rootCause" validate:"omitempty,max=5000"`
	Resolution      *string    `json:"resolution" validate:"omitempty,max=5000"`
	Status          *string    `json:"status" validate:"omitempty,case_status"`
	SLADeadline     *time.Time `json:"slaDeadline"`
	ExpectedVersion *int       `json:"version" validate:"omitempty,min=1"`
}

// AddNoteRequest payload.
type AddNoteRequest struct {
	Text string `json:"text" validate:"required,max=5000"`
}

// CaseResponse is the external view of a case.
type CaseResponse struct {
	ID              string            `json:"id"`
	CaseNumber      string            `json:"caseNumber"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	CustomerName    string            `json:"customerName"`
	CustomerID      *string           `json:"customerId"`
	ProviderID      *string           `json:"providerId"`
	CaseTypeID      string            `json:"caseTypeId"`
	CaseTypeName    string            `json:"caseTypeName"`
	Category        string            `json:"category"`
	Status          domain.CaseStatus `json:"status"`
	Severity        domain.Severity   `json:"severity"`
	OwnerID         *string           `json:"ownerId"`
	SLADeadline     *time.Time        `json:"slaDeadline"`
	SLAMissed       bool              `json:"slaMissed"`
	FirstResponseAt *time.Time        `json:"firstResponseAt"`
	ResolvedAt      *time.Time        `json:"resolvedAt"`
	ClosedAt        *time.Time        `json:"closedAt"`
	RootCause       string            `json:"rootCause"`
	Resolution      string            `json:"resolution"`
	Version         int               `json:"version"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// ActorResponse names who made a change.
type ActorResponse struct {
	Type   domain.ActorKind `json:"type"`
	UserID *string          `json:"userId,omitempty"`
}

// ActivityResponse is one timeline entry.
type ActivityResponse struct {
	ID          string              `json:"id"`
	CaseID      string              `json:"caseId"`
	Type        domain.ActivityType `json:"type"`
	Title       string              `json:"title"`
	Description *string             `json:"description,omitempty"`
	OldValue    *string             `json:"oldValue,omitempty"`
	NewValue    *string             `json:"newValue,omitempty"`
	Tag         *string             `json:"tag,omitempty"`
	Actor       ActorResponse       `json:"actor"`
	CreatedAt   time.Time           `json:"createdAt"`
}

// NewCaseResponse maps a case.
func NewCaseResponse(c *domain.Case) CaseResponse {
	return CaseResponse{
		ID:              c.ID,
		CaseNumber:      c.CaseNumber,
		Title:           c.Title,
		Description:     c.Description,
		CustomerName:    c.CustomerName,
		CustomerID:      c.CustomerID,
		ProviderID:      c.ProviderID,
		CaseTypeID:      c.CaseTypeID,
		CaseTypeName:    c.CaseTypeName,
		Category:        c.Category,
		Status:          c.Status,
		Severity:        c.Severity,
		OwnerID:         c.OwnerID,
		SLADeadline:     c.SLADeadline,
		SLAMissed:       c.SLAMissed,
		FirstResponseAt: c.FirstResponseAt,
		ResolvedAt:      c.ResolvedAt,
		ClosedAt:        c.ClosedAt,
		RootCause:       c.RootCause,
		Resolution:      c.Resolution,
		Version:         c.Version,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

// NewCaseResponses maps a page of cases.
func NewCaseResponses(cases []domain.Case) []CaseResponse {
	resp := make([]CaseResponse, 0, len(cases))
	for i := range cases {
		resp = append(resp, NewCaseResponse(&cases[i]))
	}
	return resp
}

// NewActivityResponse maps a timeline entry.
func NewActivityResponse(a *domain.CaseActivity) ActivityResponse {
	return ActivityResponse{
		ID:          a.ID,
		CaseID:      a.CaseID,
		Type:        a.Type,
		Title:       a.Title,
		Description: a.Description,
		OldValue:    a.OldValue,
		NewValue:    a.NewValue,
		Tag:         a.Tag,
		Actor:       ActorResponse{Type: a.Actor.Kind, UserID: a.Actor.UserRef()},
		CreatedAt:   a.CreatedAt,
	}
}

// NewActivityResponses maps a timeline page.
func NewActivityResponses(items []domain.CaseActivity) []ActivityResponse {
	resp := make([]ActivityResponse, 0, len(items))
	for i := range items {
		resp = append(resp, NewActivityResponse(&items[i]))
	}
	return resp
}
