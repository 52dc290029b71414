package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/install-dispatch/internal/domain"
	"github.com/spec-kit/install-dispatch/internal/scheduling"
)

var (
	// ErrVersionConflict means the order changed since it was loaded.
	ErrVersionConflict = errors.New("order was modified concurrently")
	// ErrSlotTaken means a slot is reserved by another order.
	ErrSlotTaken = errors.New("slot reserved by another order")
)

// OrderFilter narrows order listings.
type OrderFilter struct {
	OwnerTeam string
	Statuses  []domain.OrderStatus
	InBuffer  *bool
	Limit     int
	Offset    int
}

// ScheduleChange lists slot reservations to take and to give back when an
// order's schedule is saved.
type ScheduleChange struct {
	Reserve []scheduling.SlotKey
	Release []scheduling.SlotKey
	Team    string
}

// OrderRepository encapsulates order persistence. Writes take the audit
// entry describing the change; it is stored in the same transaction as the
// order row. A nil entry writes no history.
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order, schedule ScheduleChange, entry *domain.OrderHistory) error
	Update(ctx context.Context, order *domain.Order, entry *domain.OrderHistory) error
	UpdateSchedule(ctx context.Context, order *domain.Order, schedule ScheduleChange, entry *domain.OrderHistory) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	List(ctx context.Context, filter OrderFilter) ([]domain.Order, error)
	ListBuffered(ctx context.Context, team string) ([]domain.Order, error)
}

type orderRepository struct {
	pool DB
}

// NewOrderRepository instantiates repository.
func NewOrderRepository(pool DB) OrderRepository {
	return &orderRepository{pool: pool}
}

const orderColumns = `id, external_key, request_id, owner_team, created_by, transfer_status, transferred_to_team,
               transferred_from, text_status, invalid_reason, client_id, city, address, comment,
               date_slots, start_time, version, created_at, updated_at`

func (r *orderRepository) Create(ctx context.Context, order *domain.Order, schedule ScheduleChange, entry *domain.OrderHistory) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := insertOrder(ctx, tx, order); err != nil {
			return err
		}
		if err := applySchedule(ctx, tx, order.ID, schedule); err != nil {
			return err
		}
		return insertHistory(ctx, tx, order.ID, entry)
	})
}

func insertOrder(ctx context.Context, q querier, order *domain.Order) error {
	const query = `
        INSERT INTO orders (id, external_key, request_id, owner_team, created_by, transfer_status, transferred_to_team,
            transferred_from, text_status, invalid_reason, client_id, city, address, comment, date_slots, start_time)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
        RETURNING version, created_at, updated_at`
	return q.QueryRow(ctx, query,
		order.ID,
		order.ExternalKey,
		order.RequestID,
		order.OwnerTeam,
		order.CreatedBy,
		order.TransferStatus,
		order.TransferredToTeam,
		order.TransferredFrom,
		order.TextStatus,
		order.InvalidReason,
		order.ClientID,
		order.City,
		order.Address,
		order.Comment,
		order.DateSlots,
		order.StartTime,
	).Scan(&order.Version, &order.CreatedAt, &order.UpdatedAt)
}

func (r *orderRepository) Update(ctx context.Context, order *domain.Order, entry *domain.OrderHistory) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := updateOrder(ctx, tx, order); err != nil {
			return err
		}
		return insertHistory(ctx, tx, order.ID, entry)
	})
}

// updateOrder writes every mutable column when the stored version still
// matches order.Version, then bumps the version.
func updateOrder(ctx context.Context, q querier, order *domain.Order) error {
	const query = `
        UPDATE orders SET owner_team=$1, transfer_status=$2, transferred_to_team=$3, transferred_from=$4,
            text_status=$5, invalid_reason=$6, client_id=$7, city=$8, address=$9, comment=$10,
            date_slots=$11, start_time=$12, version=version+1, updated_at=NOW()
        WHERE id=$13 AND version=$14
        RETURNING version, updated_at`
	err := q.QueryRow(ctx, query,
		order.OwnerTeam,
		order.TransferStatus,
		order.TransferredToTeam,
		order.TransferredFrom,
		order.TextStatus,
		order.InvalidReason,
		order.ClientID,
		order.City,
		order.Address,
		order.Comment,
		order.DateSlots,
		order.StartTime,
		order.ID,
		order.Version,
	).Scan(&order.Version, &order.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if existsErr := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id=$1)`, order.ID).Scan(&exists); existsErr != nil {
			return existsErr
		}
		if exists {
			return ErrVersionConflict
		}
		return pgx.ErrNoRows
	}
	return err
}

func (r *orderRepository) UpdateSchedule(ctx context.Context, order *domain.Order, schedule ScheduleChange, entry *domain.OrderHistory) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := updateOrder(ctx, tx, order); err != nil {
			return err
		}
		if err := applySchedule(ctx, tx, order.ID, schedule); err != nil {
			return err
		}
		return insertHistory(ctx, tx, order.ID, entry)
	})
}

// applySchedule releases slots first so a technician swap inside one save
// never collides with itself.
func applySchedule(ctx context.Context, q querier, orderID string, schedule ScheduleChange) error {
	const release = `
        UPDATE technician_slots SET busy=FALSE, reserving_order_id=NULL, updated_at=NOW()
        WHERE technician_name=$1 AND slot_date=$2 AND hour=$3 AND meridiem=$4 AND reserving_order_id=$5`
	for _, key := range schedule.Release {
		if _, err := q.Exec(ctx, release, key.Technician, key.Date, key.Hour, key.Meridiem, orderID); err != nil {
			return fmt.Errorf("release %s: %w", key, err)
		}
	}

	const reserve = `
        INSERT INTO technician_slots (technician_name, team, slot_date, hour, meridiem, busy, reserving_order_id)
        VALUES ($1,$2,$3,$4,$5,TRUE,$6)
        ON CONFLICT (technician_name, slot_date, hour, meridiem) DO UPDATE
            SET busy=TRUE, reserving_order_id=EXCLUDED.reserving_order_id, updated_at=NOW()
            WHERE technician_slots.busy=FALSE OR technician_slots.reserving_order_id=EXCLUDED.reserving_order_id`
	for _, key := range schedule.Reserve {
		cmd, err := q.Exec(ctx, reserve, key.Technician, schedule.Team, key.Date, key.Hour, key.Meridiem, orderID)
		if err != nil {
			return fmt.Errorf("reserve %s: %w", key, err)
		}
		if cmd.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", ErrSlotTaken, key)
		}
	}
	return nil
}

func (r *orderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id=$1`
	order, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) List(ctx context.Context, filter OrderFilter) ([]domain.Order, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.OwnerTeam != "" {
		args = append(args, filter.OwnerTeam)
		clauses = append(clauses, fmt.Sprintf("owner_team=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("text_status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.InBuffer != nil {
		args = append(args, domain.TransferStatusInBuffer)
		op := "="
		if !*filter.InBuffer {
			op = "<>"
		}
		clauses = append(clauses, fmt.Sprintf("transfer_status%s$%d", op, len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM orders WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		orderColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (r *orderRepository) ListBuffered(ctx context.Context, team string) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
             WHERE transfer_status=$1 AND transferred_to_team=$2
             ORDER BY updated_at DESC`
	rows, err := r.pool.Query(ctx, query, domain.TransferStatusInBuffer, team)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var order domain.Order
	err := row.Scan(
		&order.ID,
		&order.ExternalKey,
		&order.RequestID,
		&order.OwnerTeam,
		&order.CreatedBy,
		&order.TransferStatus,
		&order.TransferredToTeam,
		&order.TransferredFrom,
		&order.TextStatus,
		&order.InvalidReason,
		&order.ClientID,
		&order.City,
		&order.Address,
		&order.Comment,
		&order.DateSlots,
		&order.StartTime,
		&order.Version,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	return order, err
}

func scanOrders(rows pgx.Rows) ([]domain.Order, error) {
	var result []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, order)
	}
	return result, rows.Err()
}
