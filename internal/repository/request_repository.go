package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/install-dispatch/internal/domain"
)

// ErrRequestClaimed means another team won the claim.
var ErrRequestClaimed = errors.New("request already claimed")

// RequestRepository stores intake requests awaiting a team.
type RequestRepository interface {
	Create(ctx context.Context, req *domain.UnclaimedRequest) error
	GetByID(ctx context.Context, id string) (*domain.UnclaimedRequest, error)
	ListUnclaimed(ctx context.Context, city string, limit, offset int) ([]domain.UnclaimedRequest, error)
	Claim(ctx context.Context, requestID string, order *domain.Order, entry *domain.OrderHistory) error
}

type requestRepository struct {
	pool DB
}

// NewRequestRepository constructs repository.
func NewRequestRepository(pool DB) RequestRepository {
	return &requestRepository{pool: pool}
}

const requestColumns = `id, client_id, city, address, comment, claimed_by_team, claimed_at, order_id, created_at`

func (r *requestRepository) Create(ctx context.Context, req *domain.UnclaimedRequest) error {
	const query = `
        INSERT INTO unclaimed_requests (client_id, city, address, comment)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query, req.ClientID, req.City, req.Address, req.Comment).
		Scan(&req.ID, &req.CreatedAt)
}

func (r *requestRepository) GetByID(ctx context.Context, id string) (*domain.UnclaimedRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM unclaimed_requests WHERE id=$1`
	req, err := scanRequest(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) ListUnclaimed(ctx context.Context, city string, limit, offset int) ([]domain.UnclaimedRequest, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + requestColumns + ` FROM unclaimed_requests
             WHERE claimed_by_team IS NULL AND ($1='' OR city=$1)
             ORDER BY created_at ASC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, city, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.UnclaimedRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, req)
	}
	return result, rows.Err()
}

// Claim marks the request as owned by order.OwnerTeam and inserts the order
// with its history entry in one transaction. Only the first of two concurrent
// claims succeeds.
func (r *requestRepository) Claim(ctx context.Context, requestID string, order *domain.Order, entry *domain.OrderHistory) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := insertOrder(ctx, tx, order); err != nil {
			return err
		}
		const claim = `
            UPDATE unclaimed_requests SET claimed_by_team=$1, claimed_at=NOW(), order_id=$2
            WHERE id=$3 AND claimed_by_team IS NULL`
		cmd, err := tx.Exec(ctx, claim, order.OwnerTeam, order.ID, requestID)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 1 {
			return insertHistory(ctx, tx, order.ID, entry)
		}
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM unclaimed_requests WHERE id=$1)`, requestID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrRequestClaimed
		}
		return pgx.ErrNoRows
	})
}

func scanRequest(row pgx.Row) (domain.UnclaimedRequest, error) {
	var req domain.UnclaimedRequest
	err := row.Scan(
		&req.ID,
		&req.ClientID,
		&req.City,
		&req.Address,
		&req.Comment,
		&req.ClaimedByTeam,
		&req.ClaimedAt,
		&req.OrderID,
		&req.CreatedAt,
	)
	return req, err
}
