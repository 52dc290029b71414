package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/install-dispatch/internal/domain"
)

// TeamRepository manages persistence for regional teams and the cities they serve.
type TeamRepository interface {
	Create(ctx context.Context, team *domain.Team) error
	GetByName(ctx context.Context, name string) (*domain.Team, error)
	ListActive(ctx context.Context) ([]domain.Team, error)
	ListCities(ctx context.Context, teamName string) ([]domain.City, error)
}

type teamRepository struct {
	pool DB
}

// NewTeamRepository constructs repository.
func NewTeamRepository(pool DB) TeamRepository {
	return &teamRepository{pool: pool}
}

func (r *teamRepository) Create(ctx context.Context, team *domain.Team) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const query = `
            INSERT INTO teams (name, is_active)
            VALUES ($1,$2)
            RETURNING id, created_at, updated_at`
		if err := tx.QueryRow(ctx, query, team.Name, team.IsActive).
			Scan(&team.ID, &team.CreatedAt, &team.UpdatedAt); err != nil {
			return err
		}
		for _, city := range team.Cities {
			if _, err := tx.Exec(ctx, `INSERT INTO team_cities (team_id, city) VALUES ($1,$2) ON CONFLICT DO NOTHING`, team.ID, city); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *teamRepository) GetByName(ctx context.Context, name string) (*domain.Team, error) {
	const query = `
        SELECT t.id, t.name, t.is_active, t.created_at, t.updated_at,
               COALESCE(ARRAY_AGG(c.city ORDER BY c.city) FILTER (WHERE c.city IS NOT NULL), '{}')
        FROM teams t LEFT JOIN team_cities c ON c.team_id = t.id
        WHERE t.name=$1
        GROUP BY t.id`
	var team domain.Team
	if err := r.pool.QueryRow(ctx, query, name).Scan(
		&team.ID,
		&team.Name,
		&team.IsActive,
		&team.CreatedAt,
		&team.UpdatedAt,
		&team.Cities,
	); err != nil {
		return nil, err
	}
	return &team, nil
}

func (r *teamRepository) ListActive(ctx context.Context) ([]domain.Team, error) {
	const query = `
        SELECT t.id, t.name, t.is_active, t.created_at, t.updated_at,
               COALESCE(ARRAY_AGG(c.city ORDER BY c.city) FILTER (WHERE c.city IS NOT NULL), '{}')
        FROM teams t LEFT JOIN team_cities c ON c.team_id = t.id
        WHERE t.is_active=TRUE
        GROUP BY t.id
        ORDER BY t.name`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Team
	for rows.Next() {
		var team domain.Team
		if err := rows.Scan(&team.ID, &team.Name, &team.IsActive, &team.CreatedAt, &team.UpdatedAt, &team.Cities); err != nil {
			return nil, err
		}
		result = append(result, team)
	}
	return result, rows.Err()
}

// ListCities returns the cities served by teamName. A team without cities
// yields an empty list; an unknown team yields pgx.ErrNoRows.
func (r *teamRepository) ListCities(ctx context.Context, teamName string) ([]domain.City, error) {
	team, err := r.GetByName(ctx, teamName)
	if err != nil {
		return nil, err
	}
	cities := make([]domain.City, 0, len(team.Cities))
	for _, name := range team.Cities {
		cities = append(cities, domain.City{Name: name})
	}
	return cities, nil
}
