package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/install-dispatch/internal/domain"
)

// TechnicianSlotRepository reads and publishes technician availability.
type TechnicianSlotRepository interface {
	Snapshot(ctx context.Context, from, to string) ([]domain.TechnicianSchedule, error)
	PublishDay(ctx context.Context, technician, team, date string, free []domain.TimeComponent) error
}

type technicianSlotRepository struct {
	pool DB
}

// NewTechnicianSlotRepository constructs repository.
func NewTechnicianSlotRepository(pool DB) TechnicianSlotRepository {
	return &technicianSlotRepository{pool: pool}
}

// Snapshot loads every slot between from and to inclusive, grouped by technician.
func (r *technicianSlotRepository) Snapshot(ctx context.Context, from, to string) ([]domain.TechnicianSchedule, error) {
	const query = `
        SELECT technician_name, team, slot_date, hour, meridiem, busy, reserving_order_id::text
        FROM technician_slots
        WHERE slot_date BETWEEN $1 AND $2
        ORDER BY technician_name, slot_date, meridiem, hour % 12`
	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TechnicianSchedule
	index := make(map[string]int)
	for rows.Next() {
		var (
			name, team string
			date       time.Time
			slot       domain.TimeSlot
		)
		if err := rows.Scan(&name, &team, &date, &slot.Hour, &slot.Meridiem, &slot.Busy, &slot.ReservingOrderID); err != nil {
			return nil, err
		}
		i, ok := index[name]
		if !ok {
			i = len(result)
			index[name] = i
			result = append(result, domain.TechnicianSchedule{
				TechnicianName: name,
				Team:           team,
				Schedule:       make(map[string][]domain.TimeSlot),
			})
		}
		day := date.Format("2006-01-02")
		result[i].Schedule[day] = append(result[i].Schedule[day], slot)
	}
	return result, rows.Err()
}

// PublishDay replaces the free hours of a technician's day. Reserved hours
// are left untouched.
func (r *technicianSlotRepository) PublishDay(ctx context.Context, technician, team, date string, free []domain.TimeComponent) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const deleteFree = `DELETE FROM technician_slots WHERE technician_name=$1 AND slot_date=$2 AND busy=FALSE`
		if _, err := tx.Exec(ctx, deleteFree, technician, date); err != nil {
			return err
		}
		const insert = `
            INSERT INTO technician_slots (technician_name, team, slot_date, hour, meridiem, busy)
            VALUES ($1,$2,$3,$4,$5,FALSE)
            ON CONFLICT (technician_name, slot_date, hour, meridiem) DO NOTHING`
		for _, tc := range free {
			if _, err := tx.Exec(ctx, insert, technician, team, date, tc.Hour, tc.Meridiem); err != nil {
				return err
			}
		}
		return nil
	})
}
