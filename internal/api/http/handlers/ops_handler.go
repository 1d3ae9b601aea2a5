package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/case-service/internal/api/dto"
	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/service"
	apperrors "github.com/spec-kit/case-service/pkg/util/errorutil"
)

// Sweeper runs the SLA sweep.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (service.SweepResult, error)
}

// OutboxAdmin exposes exhausted outbox entries.
type OutboxAdmin interface {
	ListExhausted(ctx context.Context, page, limit int) ([]domain.OutboxEntry, error)
	Requeue(ctx context.Context, id string) error
}

// OpsHandler serves the SLA trigger and outbox operator endpoints.
type OpsHandler struct {
	sweeper Sweeper
	outbox  OutboxAdmin
	now     func() time.Time
}

// NewOpsHandler constructs handler.
func NewOpsHandler(sweeper Sweeper, outbox OutboxAdmin) *OpsHandler {
	return &OpsHandler{sweeper: sweeper, outbox: outbox, now: time.Now}
}

// Sweep POST /sla/sweep.
func (h *OpsHandler) Sweep(c *fiber.Ctx) error {
	now := h.now()
	if len(c.Body()) > 0 {
		var req dto.SweepRequest
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
		if req.Now != nil {
			now = *req.Now
		}
	}

	result, err := h.sweeper.Sweep(c.UserContext(), now)
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": dto.SweepResponse{
		Now:           now.UTC(),
		UrgentTotal:   result.UrgentTotal,
		UrgentAlerted: result.UrgentAlerted,
		UrgentSkipped: result.UrgentSkipped,
		MissedTotal:   result.MissedTotal,
		MissedAlerted: result.MissedAlerted,
		MissedSkipped: result.MissedSkipped,
		Urgent:        dto.NewSweepCases(result.Urgent),
		Missed:        dto.NewSweepCases(result.Missed),
	}})
}

// ListExhausted GET /outbox/exhausted.
func (h *OpsHandler) ListExhausted(c *fiber.Ctx) error {
	entries, err := h.outbox.ListExhausted(c.UserContext(),
		parseInt(c.Query("page"), 1), parseInt(c.Query("limit"), 0))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewOutboxEntryResponses(entries)})
}

// Requeue POST /outbox/:id/requeue.
func (h *OpsHandler) Requeue(c *fiber.Ctx) error {
	id, err := pathUUID(c, "exhausted_outbox_entry")
	if err != nil {
		return err
	}
	if err := h.outbox.Requeue(c.UserContext(), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id, "status": domain.OutboxStatusPending}})
}
