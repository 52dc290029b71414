package repository

import (
	"context"

	"github.com/spec-kit/install-dispatch/internal/domain"
)

// OrderHistoryRepository reads audit entries. Entries are written by the
// order and request repositories inside the transaction that changes the order.
type OrderHistoryRepository interface {
	ListByOrder(ctx context.Context, orderID string) ([]domain.OrderHistory, error)
}

type orderHistoryRepository struct {
	pool DB
}

// NewOrderHistoryRepository builds repository.
func NewOrderHistoryRepository(pool DB) OrderHistoryRepository {
	return &orderHistoryRepository{pool: pool}
}

func insertHistory(ctx context.Context, q querier, orderID string, history *domain.OrderHistory) error {
	if history == nil {
		return nil
	}
	history.OrderID = orderID
	const query = `
        INSERT INTO order_history (order_id, changed_by, changed_by_team, change_type, old_value, new_value)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return q.QueryRow(ctx, query,
		history.OrderID,
		history.ChangedBy,
		history.ChangedByTeam,
		history.ChangeType,
		history.OldValue,
		history.NewValue,
	).Scan(&history.ID, &history.CreatedAt)
}

func (r *orderHistoryRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.OrderHistory, error) {
	const query = `
        SELECT id, order_id, changed_by, changed_by_team, change_type, old_value, new_value, created_at
        FROM order_history WHERE order_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.OrderHistory
	for rows.Next() {
		var history domain.OrderHistory
		if err := rows.Scan(
			&history.ID,
			&history.OrderID,
			&history.ChangedBy,
			&history.ChangedByTeam,
			&history.ChangeType,
			&history.OldValue,
			&history.NewValue,
			&history.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, history)
	}
	return result, rows.Err()
}
