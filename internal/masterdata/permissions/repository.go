package permissions

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockflow/internal/masterdata/shared"
	"github.com/odyssey-erp/stockflow/internal/platform/db"
)

type Repository interface {
	Upsert(ctx context.Context, p Permission) (Permission, error)
	Level(ctx context.Context, userID, warehouseID int64) (Level, error)
	ListByUser(ctx context.Context, userID int64) ([]Permission, error)
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Upsert(ctx context.Context, p Permission) (Permission, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO warehouse_permissions (user_id, warehouse_id, level)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, warehouse_id) DO UPDATE SET level = EXCLUDED.level, granted_at = NOW()
RETURNING granted_at`, p.UserID, p.WarehouseID, string(p.Level)).Scan(&p.GrantedAt)
	if db.IsForeignKeyViolation(err) {
		return Permission{}, shared.ErrNotFound
	}
	return p, err
}

// Level returns LevelNone when no grant exists.
func (r *repository) Level(ctx context.Context, userID, warehouseID int64) (Level, error) {
	var level string
	err := r.pool.QueryRow(ctx, `SELECT level FROM warehouse_permissions WHERE user_id = $1 AND warehouse_id = $2`,
		userID, warehouseID).Scan(&level)
	if errors.Is(err, pgx.ErrNoRows) {
		return LevelNone, nil
	}
	if err != nil {
		return LevelNone, err
	}
	return Level(level), nil
}

func (r *repository) ListByUser(ctx context.Context, userID int64) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id, warehouse_id, level, granted_at
FROM warehouse_permissions WHERE user_id = $1 ORDER BY warehouse_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Permission
	for rows.Next() {
		var p Permission
		var level string
		if err := rows.Scan(&p.UserID, &p.WarehouseID, &level, &p.GrantedAt); err != nil {
			return nil, err
		}
		p.Level = Level(level)
		out = append(out, p)
	}
	return out, rows.Err()
}
