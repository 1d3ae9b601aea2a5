package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spec-kit/case-service/internal/api/dto"
	"github.com/spec-kit/case-service/internal/api/validate"
	"github.com/spec-kit/case-service/internal/auth"
	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/service"
	apperrors "github.com/spec-kit/case-service/pkg/util/errorutil"
)

// CaseService is the case workflow used by the handler.
type CaseService interface {
	CreateCase(ctx context.Context, input service.CreateCaseInput, actor domain.Actor) (*domain.Case, error)
	UpdateCase(ctx context.Context, id string, patch service.CasePatch, actor domain.Actor) (*domain.Case, error)
	GetCase(ctx context.Context, id string) (*domain.Case, error)
	ListCases(ctx context.Context, input service.ListCasesInput) (*service.CaseList, error)
	ListActivities(ctx context.Context, caseID string, page, limit int) ([]domain.CaseActivity, error)
	AddNote(ctx context.Context, caseID, text string, actor domain.Actor) (*domain.CaseActivity, error)
}

// CasesHandler manages case endpoints.
type CasesHandler struct {
	service CaseService
}

// NewCasesHandler constructs handler.
func NewCasesHandler(caseService CaseService) *CasesHandler {
	return &CasesHandler{service: caseService}
}

// CreateCase POST /cases.
func (h *CasesHandler) CreateCase(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.CreateCaseRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := validate.Struct(req); err != nil {
		return err
	}

	input := service.CreateCaseInput{
		Title:        req.Title,
		Description:  req.Description,
		CustomerName: req.CustomerName,
		CustomerID:   req.CustomerID,
		ProviderID:   req.ProviderID,
		CaseTypeID:   req.CaseTypeID,
		Severity:     domain.Severity(req.Severity),
		OwnerID:      req.OwnerID,
		AutoAssign:   req.AutoAssign,
		OrderIDs:     req.OrderIDs,
	}
	created, err := h.service.CreateCase(c.UserContext(), input, actor)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewCaseResponse(created)})
}

// ListCases GET /cases.
func (h *CasesHandler) ListCases(c *fiber.Ctx) error {
	input := service.ListCasesInput{
		Category: c.Query("category"),
		OwnerID:  c.Query("ownerId"),
		Search:   c.Query("search"),
		Sort:     c.Query("sort"),
		Order:    c.Query("order"),
		Page:     parseInt(c.Query("page"), 1),
		Limit:    parseInt(c.Query("limit"), 0),
	}
	for _, part := range splitList(c.Query("status")) {
		input.Statuses = append(input.Statuses, domain.CaseStatus(strings.ToUpper(part)))
	}
	for _, part := range splitList(c.Query("severity")) {
		input.Severities = append(input.Severities, domain.Severity(strings.ToUpper(part)))
	}

	list, err := h.service.ListCases(c.UserContext(), input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data":       dto.NewCaseResponses(list.Cases),
		"pagination": list.Pagination,
	})
}

// GetCase GET /cases/:id.
func (h *CasesHandler) GetCase(c *fiber.Ctx) error {
	id, err := caseID(c)
	if err != nil {
		return err
	}
	found, err := h.service.GetCase(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewCaseResponse(found)})
}

// UpdateCase PATCH /cases/:id.
func (h *CasesHandler) UpdateCase(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := caseID(c)
	if err != nil {
		return err
	}
	var req dto.UpdateCaseRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := validate.Struct(req); err != nil {
		return err
	}

	patch := service.CasePatch{
		Title:           req.Title,
		Description:     req.Description,
		CustomerName:    req.CustomerName,
		OwnerID:         req.OwnerID,
		RootCause:       req.RootCause,
		Resolution:      req.Resolution,
		SLADeadline:     req.SLADeadline,
		ExpectedVersion: req.ExpectedVersion,
	}
	if req.Severity != nil {
		severity := domain.Severity(*req.Severity)
		patch.Severity = &severity
	}
	if req.Status != nil {
		status := domain.CaseStatus(*req.Status)
		patch.Status = &status
	}

	updated, err := h.service.UpdateCase(c.UserContext(), id, patch, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewCaseResponse(updated)})
}

// ListActivities GET /cases/:id/activities.
func (h *CasesHandler) ListActivities(c *fiber.Ctx) error {
	id, err := caseID(c)
	if err != nil {
		return err
	}
	items, err := h.service.ListActivities(c.UserContext(), id,
		parseInt(c.Query("page"), 1), parseInt(c.Query("limit"), 0))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewActivityResponses(items)})
}

// AddNote POST /cases/:id/notes.
func (h *CasesHandler) AddNote(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := caseID(c)
	if err != nil {
		return err
	}
	var req dto.AddNoteRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := validate.Struct(req); err != nil {
		return err
	}
	note, err := h.service.AddNote(c.UserContext(), id, req.Text, actor)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewActivityResponse(note)})
}

func actorFrom(c *fiber.Ctx) (domain.Actor, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return domain.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
	return principal.Actor(), nil
}

// caseID returns the :id path parameter. Ids are UUIDs, so anything else
// cannot name a stored case.
func caseID(c *fiber.Ctx) (string, error) {
	return pathUUID(c, "case")
}

func pathUUID(c *fiber.Ctx, resource string) (string, error) {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", apperrors.NewNotFound(resource, map[string]any{"id": id})
	}
	return id, nil
}

func splitList(val string) []string {
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
