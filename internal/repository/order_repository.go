package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/persistence"
)

// OrderRepository manages orders linked to cases.
type OrderRepository interface {
	// LinkToCase attaches orders to a case; pgx.ErrNoRows if any id is unknown.
	LinkToCase(ctx context.Context, caseID string, orderIDs []string) error
	ListByCase(ctx context.Context, caseID string) ([]domain.Order, error)
	// SettlePending moves the case's PENDING orders to status and reports how many changed.
	SettlePending(ctx context.Context, caseID string, status domain.OrderStatus) (int64, error)
}

type orderRepository struct {
	db persistence.DB
}

// NewOrderRepository builds repository.
func NewOrderRepository(db persistence.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) LinkToCase(ctx context.Context, caseID string, orderIDs []string) error {
	if len(orderIDs) == 0 {
		return nil
	}
	const query = `UPDATE orders SET case_id=$1, updated_at=NOW() WHERE id = ANY($2::uuid[])`
	cmd, err := r.db.Exec(ctx, query, caseID, orderIDs)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() != int64(len(uniqueStrings(orderIDs))) {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *orderRepository) ListByCase(ctx context.Context, caseID string) ([]domain.Order, error) {
	const query = `
        SELECT id, case_id, order_number, status, updated_at
        FROM orders WHERE case_id=$1 ORDER BY order_number`
	rows, err := r.db.Query(ctx, query, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Order
	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.CaseID, &order.OrderNumber, &order.Status, &order.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, order)
	}
	return result, rows.Err()
}

func (r *orderRepository) SettlePending(ctx context.Context, caseID string, status domain.OrderStatus) (int64, error) {
	const query = `UPDATE orders SET status=$2, updated_at=NOW() WHERE case_id=$1 AND status=$3`
	cmd, err := r.db.Exec(ctx, query, caseID, status, domain.OrderStatusPending)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
