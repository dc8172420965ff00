package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRepository reads audit_logs through pgx.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx backed timeline repository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const windowSQL = `
SELECT id, occurred_at, actor_id, action, entity, entity_id, meta
FROM audit_logs
WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR occurred_at < $2)
  AND ($3::bigint IS NULL OR actor_id = $3)
  AND ($4::text IS NULL OR entity = $4)
  AND ($5::text IS NULL OR entity_id = $5)
  AND ($6::text IS NULL OR action LIKE $6 || '%')
ORDER BY occurred_at DESC, id DESC
OFFSET $7 LIMIT $8`

// Window returns one page of audit rows, newest first.
func (r *PgRepository) Window(ctx context.Context, params WindowParams) ([]TimelineRow, error) {
	f := params.Filters
	rows, err := r.pool.Query(ctx, windowSQL,
		toPgTime(f.From),
		toPgTime(endOfDay(f.To)),
		optionalInt8(f.ActorID),
		optionalText(f.Entity),
		optionalText(f.EntityID),
		optionalText(f.Action),
		params.Offset,
		params.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("audit: query timeline: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (TimelineRow, error) {
		var (
			item  TimelineRow
			at    pgtype.Timestamptz
			actor pgtype.Int8
			meta  []byte
		)
		if err := row.Scan(&item.ID, &at, &actor, &item.Action, &item.Entity, &item.EntityID, &meta); err != nil {
			return TimelineRow{}, err
		}
		if at.Valid {
			item.At = at.Time
		}
		if actor.Valid && actor.Int64 > 0 {
			id := actor.Int64
			item.ActorID = &id
		}
		if len(meta) > 0 && string(meta) != "null" {
			if err := json.Unmarshal(meta, &item.Meta); err != nil {
				return TimelineRow{}, fmt.Errorf("decode meta of audit row %d: %w", item.ID, err)
			}
		}
		return item, nil
	})
	if err != nil {
		return nil, fmt.Errorf("audit: scan timeline: %w", err)
	}
	return out, nil
}

func endOfDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.Truncate(24 * time.Hour).Add(24 * time.Hour)
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	if value == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: value, Valid: true}
}

func optionalInt8(value *int64) pgtype.Int8 {
	if value == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: *value, Valid: true}
}
