package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/events"
	"github.com/spec-kit/case-service/internal/lifecycle"
	"github.com/spec-kit/case-service/internal/lock"
	"github.com/spec-kit/case-service/internal/repository"
	"github.com/spec-kit/case-service/internal/sla"
	apperrors "github.com/spec-kit/case-service/pkg/util/errorutil"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// CaseService coordinates case workflows.
type CaseService struct {
	tx            Transactor
	cases         repository.CaseRepository
	activities    repository.ActivityRepository
	caseTypes     repository.CaseTypeRepository
	sequences     repository.SequenceRepository
	orders        repository.OrderRepository
	assignment    *AssignmentService
	notifications *NotificationService
	dispatcher    events.Dispatcher
	locker        lock.Locker
	lockTTL       time.Duration
	autoAssign    bool
	location      *time.Location
	logger        *zap.Logger
	now           Clock
}

// CaseDependencies bundles repositories and collaborators for the case service.
type CaseDependencies struct {
	Tx            Transactor
	CaseRepo      repository.CaseRepository
	ActivityRepo  repository.ActivityRepository
	CaseTypeRepo  repository.CaseTypeRepository
	SequenceRepo  repository.SequenceRepository
	OrderRepo     repository.OrderRepository
	Assignment    *AssignmentService
	Notifications *NotificationService
	Dispatcher    events.Dispatcher
	Locker        lock.Locker
	LockTTL       time.Duration
	AutoAssign    bool
	Location      *time.Location
	Logger        *zap.Logger
	Clock         Clock
}

// CreateCaseInput describes case creation payload.
type CreateCaseInput struct {
	Title        string
	Description  string
	CustomerName string
	CustomerID   *string
	ProviderID   *string
	CaseTypeID   string
	// Severity falls back to the case type default when empty.
	Severity domain.Severity
	OwnerID  *string
	// AutoAssign overrides the configured default when set.
	AutoAssign *bool
	OrderIDs   []string
}

// CasePatch lists the fields an update may change. Nil means unchanged.
type CasePatch struct {
	Title        *string
	Description  *string
	CustomerName *string
	Severity     *domain.Severity
	// OwnerID set to "" unassigns the case.
	OwnerID    *string
	RootCause  *string
	Resolution *string
	Status     *domain.CaseStatus
	// SLADeadline is accepted together with a reopen only.
	SLADeadline *time.Time
	// ExpectedVersion rejects the update when the case moved on.
	ExpectedVersion *int
}

// ListCasesInput describes list filters, sorting and paging.
type ListCasesInput struct {
	Statuses   []domain.CaseStatus
	Severities []domain.Severity
	Category   string
	OwnerID    string
	Search     string
	Sort       string
	Order      string
	Page       int
	Limit      int
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// CaseList is a page of cases.
type CaseList struct {
	Cases      []domain.Case
	Pagination Pagination
}

// NewCaseService constructs the service.
func NewCaseService(deps CaseDependencies) *CaseService {
	locker := deps.Locker
	if locker == nil {
		locker = lock.Noop{}
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CaseService{
		tx:            deps.Tx,
		cases:         deps.CaseRepo,
		activities:    deps.ActivityRepo,
		caseTypes:     deps.CaseTypeRepo,
		sequences:     deps.SequenceRepo,
		orders:        deps.OrderRepo,
		assignment:    deps.Assignment,
		notifications: deps.Notifications,
		dispatcher:    deps.Dispatcher,
		locker:        locker,
		lockTTL:       deps.LockTTL,
		autoAssign:    deps.AutoAssign,
		location:      loc,
		logger:        logger,
		now:           clockOrDefault(deps.Clock),
	}
}

// CreateCase opens a new case from its case type policy. The case, its
// activities and its notifications commit together.
func (s *CaseService) CreateCase(ctx context.Context, input CreateCaseInput, actor domain.Actor) (*domain.Case, error) {
	policy, err := s.caseTypes.GetByID(ctx, input.CaseTypeID)
	if err != nil {
		return nil, notFound(err, "case_type", map[string]any{"caseTypeId": input.CaseTypeID})
	}
	if err := validateCreate(input, policy); err != nil {
		return nil, err
	}

	severity := input.Severity
	if severity == "" {
		severity = policy.DefaultSeverity
	}

	var owner *domain.SupportUser
	if input.OwnerID != nil && *input.OwnerID != "" {
		if owner, err = s.assignment.ResolveOwner(ctx, *input.OwnerID); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	c := &domain.Case{
		Title:        strings.TrimSpace(input.Title),
		Description:  strings.TrimSpace(input.Description),
		CustomerName: strings.TrimSpace(input.CustomerName),
		CustomerID:   input.CustomerID,
		ProviderID:   input.ProviderID,
		CaseTypeID:   policy.ID,
		CaseTypeName: policy.Name,
		Category:     policy.Category,
		Status:       lifecycle.InitialStatus(),
		Severity:     severity,
		SLADeadline:  sla.ComputeDeadline(*policy, now),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	autoAssign := s.autoAssign
	if input.AutoAssign != nil {
		autoAssign = *input.AutoAssign
	}

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		autoAssigned := false
		if owner == nil && autoAssign && s.assignment != nil {
			picked, err := s.assignment.PickOwner(ctx)
			if err != nil {
				return err
			}
			owner = picked
			autoAssigned = picked != nil
		}
		if owner != nil {
			c.OwnerID = &owner.ID
		}

		year := now.In(s.location).Year()
		seq, err := s.sequences.Next(ctx, year)
		if err != nil {
			return fmt.Errorf("next case number: %w", err)
		}
		c.CaseNumber = fmt.Sprintf("CASE-%d-%04d", year, seq)

		if err := s.cases.Create(ctx, c); err != nil {
			return fmt.Errorf("insert case: %w", err)
		}
		if len(input.OrderIDs) > 0 {
			if err := s.orders.LinkToCase(ctx, c.ID, input.OrderIDs); err != nil {
				return notFound(err, "order", map[string]any{"orderIds": input.OrderIDs})
			}
		}

		created := domain.CaseActivity{
			CaseID:      c.ID,
			Type:        domain.ActivityCreated,
			Title:       "Case " + c.CaseNumber + " created",
			Description: domain.StringPtr(c.Title),
			NewValue:    domain.StringPtr(string(c.Status)),
			Actor:       actor,
			CreatedAt:   now,
		}
		if err := s.activities.Create(ctx, &created); err != nil {
			return fmt.Errorf("record created activity: %w", err)
		}
		if owner != nil {
			assigned := assignmentActivity(c.ID, nil, owner, actor, now)
			if autoAssigned {
				assigned.Description = domain.StringPtr("Assigned automatically to the least loaded agent")
			}
			if err := s.activities.Create(ctx, &assigned); err != nil {
				return fmt.Errorf("record assignment activity: %w", err)
			}
		}

		if policy.NotifyOnCreate || autoAssigned {
			vars := s.notifications.CaseVars(ctx, *c, now)
			if _, err := s.notifications.Notify(ctx, domain.NotificationCaseCreated, vars); err != nil {
				return err
			}
		}

		return publishEvent(ctx, s.dispatcher, caseEvent(events.EventCaseCreated, *c, actor, events.CaseCreatedPayload{
			Title:       c.Title,
			CaseTypeID:  c.CaseTypeID,
			OwnerID:     c.OwnerID,
			SLADeadline: c.SLADeadline,
		}), now)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	s.logger.Info("case created",
		zap.String("case_id", c.ID),
		zap.String("case_number", c.CaseNumber),
		zap.String("case_type_id", c.CaseTypeID),
		zap.Bool("assigned", c.OwnerID != nil))
	return c, nil
}

func validateCreate(input CreateCaseInput, policy *domain.CaseTypePolicy) error {
	details := map[string]any{}
	if !policy.IsActive {
		details["caseTypeId"] = "case type is inactive"
	}
	if strings.TrimSpace(input.Title) == "" {
		details["title"] = "is required"
	}
	if input.Severity != "" && !input.Severity.Valid() {
		details["severity"] = "must be one of CRITICAL, HIGH, NORMAL, LOW"
	}
	if policy.RequireProvider && (input.ProviderID == nil || strings.TrimSpace(*input.ProviderID) == "") {
		details["providerId"] = "is required for this case type"
	}
	if policy.RequireOrderID && len(input.OrderIDs) == 0 {
		details["orderIds"] = "at least one order is required for this case type"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("case input is invalid", details)
	}
	return nil
}

// UpdateCase applies patch to the case. Nothing is written when the patch
// changes nothing. A concurrent update yields Conflict.
func (s *CaseService) UpdateCase(ctx context.Context, id string, patch CasePatch, actor domain.Actor) (*domain.Case, error) {
	release, err := s.locker.Acquire(ctx, "case:"+id, s.lockTTL)
	switch {
	case errors.Is(err, lock.ErrLocked):
		return nil, apperrors.NewConflict("case is being updated by another request", map[string]any{"caseId": id})
	case err != nil:
		// the version check below still rejects stale writes
		s.logger.Warn("case lock unavailable", zap.String("case_id", id), zap.Error(err))
	default:
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release case lock", zap.String("case_id", id), zap.Error(err))
			}
		}()
	}

	current, err := s.cases.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "case", map[string]any{"caseId": id})
	}
	if patch.ExpectedVersion != nil && *patch.ExpectedVersion != current.Version {
		return nil, apperrors.NewConflict("case version does not match", map[string]any{
			"caseId": id, "expectedVersion": *patch.ExpectedVersion, "currentVersion": current.Version,
		})
	}

	now := s.now().UTC()
	next := *current
	changes, err := s.applyFieldChanges(ctx, &next, patch, actor, now)
	if err != nil {
		return nil, err
	}

	var statusChange *lifecycle.Result
	if patch.Status != nil && *patch.Status != current.Status {
		in := lifecycle.Input{NewSLADeadline: patch.SLADeadline}
		if patch.Resolution != nil {
			in.Resolution = *patch.Resolution
		}
		result, err := lifecycle.Transition(next, *patch.Status, in, actor, now)
		if err != nil {
			return nil, err
		}
		next = result.Case
		statusChange = &result
		changes = append(changes, result.Activity)
		if result.SLAReset {
			changes = append(changes, slaResetActivity(current, next, actor, now))
		}
	} else if patch.SLADeadline != nil {
		return nil, apperrors.NewFieldError("slaDeadline", "can only be replaced when reopening a case")
	}

	if len(changes) == 0 {
		return current, nil
	}
	next.UpdatedAt = now

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.cases.Update(ctx, &next); err != nil {
			return err
		}
		for i := range changes {
			if err := s.activities.Create(ctx, &changes[i]); err != nil {
				return fmt.Errorf("record %s activity: %w", changes[i].Type, err)
			}
		}
		if statusChange != nil {
			if err := s.settleOrders(ctx, next); err != nil {
				return err
			}
			if err := publishEvent(ctx, s.dispatcher, caseEvent(events.EventCaseStatusChanged, next, actor, events.CaseStatusChangedPayload{
				OldStatus:  current.Status,
				NewStatus:  next.Status,
				Resolution: resolutionIfResolved(next),
			}), now); err != nil {
				return err
			}
		}
		if !sameOwner(current.OwnerID, next.OwnerID) {
			return publishEvent(ctx, s.dispatcher, caseEvent(events.EventCaseAssigned, next, actor, events.CaseAssignedPayload{
				OldOwnerID: current.OwnerID,
				NewOwnerID: next.OwnerID,
			}), now)
		}
		return nil
	})
	if errors.Is(err, repository.ErrStaleCase) {
		return nil, apperrors.NewConflict("case was modified concurrently, reload and retry", map[string]any{"caseId": id})
	}
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	s.logger.Info("case updated",
		zap.String("case_id", next.ID),
		zap.Int("changes", len(changes)),
		zap.String("status", string(next.Status)),
		zap.Int("version", next.Version))
	return &next, nil
}

// applyFieldChanges diffs the non-status fields onto next and returns one
// activity per field that actually changed.
func (s *CaseService) applyFieldChanges(ctx context.Context, next *domain.Case, patch CasePatch, actor domain.Actor, now time.Time) ([]domain.CaseActivity, error) {
	var changes []domain.CaseActivity
	field := func(label, old, updated string) {
		changes = append(changes, domain.CaseActivity{
			CaseID:    next.ID,
			Type:      domain.ActivityFieldUpdated,
			Title:     label + " updated",
			OldValue:  domain.StringPtr(old),
			NewValue:  domain.StringPtr(updated),
			Actor:     actor,
			CreatedAt: now,
		})
	}

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, apperrors.NewFieldError("title", "must not be empty")
		}
		if title != next.Title {
			field("Title", next.Title, title)
			next.Title = title
		}
	}
	if patch.Description != nil {
		if d := strings.TrimSpace(*patch.Description); d != next.Description {
			field("Description", next.Description, d)
			next.Description = d
		}
	}
	if patch.CustomerName != nil {
		if n := strings.TrimSpace(*patch.CustomerName); n != next.CustomerName {
			field("Customer name", next.CustomerName, n)
			next.CustomerName = n
		}
	}
	if patch.Severity != nil && *patch.Severity != next.Severity {
		if !patch.Severity.Valid() {
			return nil, apperrors.NewFieldError("severity", "must be one of CRITICAL, HIGH, NORMAL, LOW")
		}
		field("Severity", string(next.Severity), string(*patch.Severity))
		next.Severity = *patch.Severity
	}
	if patch.RootCause != nil {
		if rc := strings.TrimSpace(*patch.RootCause); rc != next.RootCause {
			field("Root cause", next.RootCause, rc)
			next.RootCause = rc
		}
	}
	// a resolution sent with a status change belongs to the transition
	changingStatus := patch.Status != nil && *patch.Status != next.Status
	if patch.Resolution != nil && !changingStatus {
		if r := strings.TrimSpace(*patch.Resolution); r != next.Resolution {
			field("Resolution", next.Resolution, r)
			next.Resolution = r
		}
	}

	if patch.OwnerID != nil {
		newOwner := strings.TrimSpace(*patch.OwnerID)
		oldOwner := ""
		if next.OwnerID != nil {
			oldOwner = *next.OwnerID
		}
		if newOwner != oldOwner {
			var owner *domain.SupportUser
			if newOwner != "" {
				var err error
				if owner, err = s.assignment.ResolveOwner(ctx, newOwner); err != nil {
					return nil, err
				}
			}
			changes = append(changes, assignmentActivity(next.ID, next.OwnerID, owner, actor, now))
			if owner == nil {
				next.OwnerID = nil
			} else {
				next.OwnerID = &owner.ID
			}
		}
	}
	return changes, nil
}

func (s *CaseService) settleOrders(ctx context.Context, c domain.Case) error {
	var target domain.OrderStatus
	switch c.Status {
	case domain.CaseStatusResolved:
		target = domain.OrderStatusCompleted
	case domain.CaseStatusClosed:
		target = domain.OrderStatusCancelled
	default:
		return nil
	}
	n, err := s.orders.SettlePending(ctx, c.ID, target)
	if err != nil {
		return fmt.Errorf("settle pending orders: %w", err)
	}
	if n > 0 {
		s.logger.Info("settled pending orders",
			zap.String("case_id", c.ID), zap.String("order_status", string(target)), zap.Int64("orders", n))
	}
	return nil
}

// GetCase returns a case by id.
func (s *CaseService) GetCase(ctx context.Context, id string) (*domain.Case, error) {
	c, err := s.cases.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "case", map[string]any{"caseId": id})
	}
	return c, nil
}

// ListCases returns a filtered, sorted page of cases.
func (s *CaseService) ListCases(ctx context.Context, input ListCasesInput) (*CaseList, error) {
	details := map[string]any{}
	for _, st := range input.Statuses {
		if !st.Valid() {
			details["status"] = fmt.Sprintf("unknown status %q", st)
		}
	}
	for _, sev := range input.Severities {
		if !sev.Valid() {
			details["severity"] = fmt.Sprintf("unknown severity %q", sev)
		}
	}

	sortField := repository.SortByCreatedAt
	if input.Sort != "" {
		sortField = repository.CaseSortField(input.Sort)
		if !repository.ValidSortField(sortField) {
			details["sort"] = "must be one of createdAt, severity, slaDeadline"
		}
	}
	sortDesc := true
	switch strings.ToLower(input.Order) {
	case "", "desc":
	case "asc":
		sortDesc = false
	default:
		details["order"] = "must be asc or desc"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid list parameters", details)
	}

	page, limit := normalizePage(input.Page, input.Limit)
	filter := repository.CaseFilter{
		Statuses:   input.Statuses,
		Severities: input.Severities,
		SortField:  sortField,
		SortDesc:   sortDesc,
		Limit:      limit,
		Offset:     (page - 1) * limit,
	}
	if v := strings.TrimSpace(input.Category); v != "" {
		filter.Category = &v
	}
	if v := strings.TrimSpace(input.OwnerID); v != "" {
		filter.OwnerID = &v
	}
	if v := strings.TrimSpace(input.Search); v != "" {
		filter.SearchTerm = &v
	}

	cases, total, err := s.cases.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if cases == nil {
		cases = []domain.Case{}
	}
	return &CaseList{
		Cases: cases,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: int(math.Ceil(float64(total) / float64(limit))),
		},
	}, nil
}

// ListActivities returns a case timeline, newest first.
func (s *CaseService) ListActivities(ctx context.Context, caseID string, page, limit int) ([]domain.CaseActivity, error) {
	if _, err := s.GetCase(ctx, caseID); err != nil {
		return nil, err
	}
	page, limit = normalizePage(page, limit)
	activities, err := s.activities.ListByCase(ctx, caseID, limit, (page-1)*limit)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if activities == nil {
		activities = []domain.CaseActivity{}
	}
	return activities, nil
}

// AddNote appends a free-text note to the timeline.
func (s *CaseService) AddNote(ctx context.Context, caseID, text string, actor domain.Actor) (*domain.CaseActivity, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewFieldError("text", "must not be empty")
	}
	if _, err := s.GetCase(ctx, caseID); err != nil {
		return nil, err
	}
	note := &domain.CaseActivity{
		CaseID:      caseID,
		Type:        domain.ActivityNoteAdded,
		Title:       "Note added",
		Description: &text,
		Actor:       actor,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.activities.Create(ctx, note); err != nil {
		return nil, apperrors.MapError(err)
	}
	return note, nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}

func assignmentActivity(caseID string, oldOwner *string, owner *domain.SupportUser, actor domain.Actor, now time.Time) domain.CaseActivity {
	a := domain.CaseActivity{
		CaseID:    caseID,
		Type:      domain.ActivityAssigned,
		Title:     "Unassigned",
		Actor:     actor,
		CreatedAt: now,
	}
	if oldOwner != nil {
		a.OldValue = domain.StringPtr(*oldOwner)
	}
	if owner != nil {
		a.Title = "Assigned to " + owner.Name
		a.NewValue = domain.StringPtr(owner.ID)
	}
	return a
}

func slaResetActivity(before *domain.Case, after domain.Case, actor domain.Actor, now time.Time) domain.CaseActivity {
	a := domain.CaseActivity{
		CaseID:    after.ID,
		Type:      domain.ActivitySLAUpdated,
		Title:     "SLA deadline reset on reopen",
		Actor:     actor,
		CreatedAt: now,
	}
	if before.SLADeadline != nil {
		a.OldValue = domain.StringPtr(before.SLADeadline.UTC().Format(time.RFC3339))
	}
	if after.SLADeadline != nil {
		a.NewValue = domain.StringPtr(after.SLADeadline.UTC().Format(time.RFC3339))
	}
	return a
}

func caseEvent(eventType events.EventType, c domain.Case, actor domain.Actor, payload any) events.Event {
	return events.Event{
		Type:       eventType,
		CaseID:     c.ID,
		CaseNumber: c.CaseNumber,
		Status:     c.Status,
		Severity:   c.Severity,
		Actor:      events.ActorOf(actor),
		Payload:    payload,
	}
}

func resolutionIfResolved(c domain.Case) string {
	if c.Status == domain.CaseStatusResolved {
		return c.Resolution
	}
	return ""
}

func sameOwner(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
