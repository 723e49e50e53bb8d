package audit

import (
	"context"
	"database/sql"
	"time"
)

// PostgresRepo appends to the call_events table. The table carries an
// INSERT-only policy; this type deliberately has no update or delete path.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO call_events
  (id, type, routing_id, owner_id, slug_id, mode, provider_leg_id, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		string(e.Type),
		e.RoutingID,
		e.OwnerID,
		e.SlugID,
		e.Mode,
		e.ProviderLegID,
		e.Message,
		e.Metadata,
		e.CreatedAt,
	)
	return err
}

// ListEvents returns events with created_at in [from, to), oldest first.
func (r *PostgresRepo) ListEvents(ctx context.Context, from, to time.Time) ([]Event, error) {
	const q = `
SELECT id, type, routing_id, owner_id, slug_id, mode, provider_leg_id, message, metadata, created_at
FROM call_events
WHERE created_at >= $1 AND created_at < $2
ORDER BY created_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var typ string
		if err := rows.Scan(
			&e.ID,
			&typ,
			&e.RoutingID,
			&e.OwnerID,
			&e.SlugID,
			&e.Mode,
			&e.ProviderLegID,
			&e.Message,
			&e.Metadata,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		e.Type = EventType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}
