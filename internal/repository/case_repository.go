package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/persistence"
)

// ErrStaleCase is returned when an update raced with another writer.
var ErrStaleCase = errors.New("case was modified concurrently")

// CaseSortField names a whitelisted sort column.
type CaseSortField string

const (
	SortByCreatedAt   CaseSortField = "createdAt"
	SortBySeverity    CaseSortField = "severity"
	SortBySLADeadline CaseSortField = "slaDeadline"
)

var caseSortExpressions = map[CaseSortField]string{
	SortByCreatedAt: "c.created_at",
	SortBySeverity: `CASE c.severity
            WHEN 'CRITICAL' THEN 0 WHEN 'HIGH' THEN 1 WHEN 'NORMAL' THEN 2 WHEN 'LOW' THEN 3 ELSE 4 END`,
	SortBySLADeadline: "c.sla_deadline",
}

// ValidSortField reports whether field can be used for ordering.
func ValidSortField(field CaseSortField) bool {
	_, ok := caseSortExpressions[field]
	return ok
}

// CaseFilter captures list parameters.
type CaseFilter struct {
	Statuses   []domain.CaseStatus
	Severities []domain.Severity
	Category   *string
	OwnerID    *string
	SearchTerm *string
	SortField  CaseSortField
	SortDesc   bool
	Limit      int
	Offset     int
}

// CaseRepository encapsulates case persistence.
type CaseRepository interface {
	Create(ctx context.Context, c *domain.Case) error
	Update(ctx context.Context, c *domain.Case) error
	GetByID(ctx context.Context, id string) (*domain.Case, error)
	List(ctx context.Context, filter CaseFilter) ([]domain.Case, int, error)
	ListSLACandidates(ctx context.Context, horizon time.Time) ([]domain.Case, error)
	MarkSLAMissed(ctx context.Context, id string) error
}

const caseColumns = `c.id, c.case_number, c.title, c.description, c.customer_name, c.customer_id, c.provider_id,
               c.case_type_id, c.case_type_name, c.category, c.status, c.severity, c.owner_id, c.sla_deadline, c.sla_missed,
               c.first_response_at, c.resolved_at, c.closed_at, c.root_cause, c.resolution, c.version,
               c.created_at, c.updated_at`

const caseFrom = `FROM cases c JOIN case_types ct ON ct.id = c.case_type_id`

type caseRepository struct {
	db persistence.DB
}

// NewCaseRepository instantiates repository.
func NewCaseRepository(db persistence.DB) CaseRepository {
	return &caseRepository{db: db}
}

func (r *caseRepository) Create(ctx context.Context, c *domain.Case) error {
	const query = `
        INSERT INTO cases (case_number, title, description, customer_name, customer_id, provider_id, case_type_id,
            case_type_name, category, status, severity, owner_id, sla_deadline, sla_missed, root_cause, resolution,
            version, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,1,$17,$18)
        RETURNING id, version`
	return r.db.QueryRow(ctx, query,
		c.CaseNumber,
		c.Title,
		c.Description,
		c.CustomerName,
		c.CustomerID,
		c.ProviderID,
		c.CaseTypeID,
		c.CaseTypeName,
		c.Category,
		c.Status,
		c.Severity,
		c.OwnerID,
		c.SLADeadline,
		c.SLAMissed,
		c.RootCause,
		c.Resolution,
		c.CreatedAt,
		c.UpdatedAt,
	).Scan(&c.ID, &c.Version)
}

// Update writes c only if its version still matches the stored row and bumps
// the version on success.
func (r *caseRepository) Update(ctx context.Context, c *domain.Case) error {
	const query = `
        UPDATE cases SET title=$1, description=$2, customer_name=$3, severity=$4, owner_id=$5, status=$6,
            sla_deadline=$7, sla_missed=$8, first_response_at=$9, resolved_at=$10, closed_at=$11,
            root_cause=$12, resolution=$13, updated_at=$14, version=version+1
        WHERE id=$15 AND version=$16
        RETURNING version`
	err := r.db.QueryRow(ctx, query,
		c.Title,
		c.Description,
		c.CustomerName,
		c.Severity,
		c.OwnerID,
		c.Status,
		c.SLADeadline,
		c.SLAMissed,
		c.FirstResponseAt,
		c.ResolvedAt,
		c.ClosedAt,
		c.RootCause,
		c.Resolution,
		c.UpdatedAt,
		c.ID,
		c.Version,
	).Scan(&c.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrStaleCase
	}
	return err
}

func (r *caseRepository) GetByID(ctx context.Context, id string) (*domain.Case, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE c.id=$1`, caseColumns, caseFrom)
	row := r.db.QueryRow(ctx, query, id)
	c, err := scanCase(row)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *caseRepository) List(ctx context.Context, filter CaseFilter) ([]domain.Case, int, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("c.status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Severities) > 0 {
		placeholders := make([]string, len(filter.Severities))
		for i, severity := range filter.Severities {
			args = append(args, severity)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("c.severity IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Category != nil {
		args = append(args, *filter.Category)
		clauses = append(clauses, fmt.Sprintf("ct.category=$%d", len(args)))
	}
	if filter.OwnerID != nil {
		args = append(args, *filter.OwnerID)
		clauses = append(clauses, fmt.Sprintf("c.owner_id=$%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		args = append(args, "%"+escapeLike(strings.ToLower(strings.TrimSpace(*filter.SearchTerm)))+"%")
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf(
			"(LOWER(c.case_number) LIKE %[1]s OR LOWER(c.title) LIKE %[1]s OR LOWER(c.customer_name) LIKE %[1]s)",
			placeholder))
	}

	sortExpr, ok := caseSortExpressions[filter.SortField]
	if !ok {
		sortExpr = caseSortExpressions[SortByCreatedAt]
	}
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s, COUNT(*) OVER() AS total %s WHERE %s
             ORDER BY %s %s NULLS LAST, c.created_at DESC, c.id ASC LIMIT %d OFFSET %d`,
		caseColumns, caseFrom, strings.Join(clauses, " AND "), sortExpr, direction, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		result []domain.Case
		total  int
	)
	for rows.Next() {
		var c domain.Case
		if err := rows.Scan(append(caseScanTargets(&c), &total)...); err != nil {
			return nil, 0, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(result) == 0 && offset > 0 {
		total, err = r.count(ctx, clauses, args)
		if err != nil {
			return nil, 0, err
		}
	}
	return result, total, nil
}

// count is used when the requested page is past the end and the window
// function had no row to report the total on.
func (r *caseRepository) count(ctx context.Context, clauses []string, args []any) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) %s WHERE %s`, caseFrom, strings.Join(clauses, " AND "))
	var total int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// ListSLACandidates returns open cases whose deadline is at or before horizon.
func (r *caseRepository) ListSLACandidates(ctx context.Context, horizon time.Time) ([]domain.Case, error) {
	query := fmt.Sprintf(`SELECT %s %s
             WHERE c.status NOT IN ('RESOLVED','CLOSED') AND c.sla_deadline IS NOT NULL AND c.sla_deadline <= $1
             ORDER BY c.sla_deadline ASC`, caseColumns, caseFrom)
	rows, err := r.db.Query(ctx, query, horizon)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Case
	for rows.Next() {
		var c domain.Case
		if err := rows.Scan(caseScanTargets(&c)...); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// MarkSLAMissed sets the monotonic missed flag and bumps the version so a
// concurrent stale update cannot clear it.
func (r *caseRepository) MarkSLAMissed(ctx context.Context, id string) error {
	const query = `
        UPDATE cases SET sla_missed=TRUE, version=version+1, updated_at=NOW()
        WHERE id=$1 AND sla_missed=FALSE`
	_, err := r.db.Exec(ctx, query, id)
	return err
}

func scanCase(row pgx.Row) (*domain.Case, error) {
	var c domain.Case
	if err := row.Scan(caseScanTargets(&c)...); err != nil {
		return nil, err
	}
	return &c, nil
}

func caseScanTargets(c *domain.Case) []any {
	return []any{
		&c.ID,
		&c.CaseNumber,
		&c.Title,
		&c.Description,
		&c.CustomerName,
		&c.CustomerID,
		&c.ProviderID,
		&c.CaseTypeID,
		&c.CaseTypeName,
		&c.Category,
		&c.Status,
		&c.Severity,
		&c.OwnerID,
		&c.SLADeadline,
		&c.SLAMissed,
		&c.FirstResponseAt,
		&c.ResolvedAt,
		&c.ClosedAt,
		&c.RootCause,
		&c.Resolution,
		&c.Version,
		&c.CreatedAt,
		&c.UpdatedAt,
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
