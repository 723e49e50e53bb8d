package identity

import (
	"context"
	"database/sql"
	"errors"
)

var ErrNotFound = errors.New("identity: not found")

// Directory is the read-only lookup surface the resolver needs. Contact
// CRUD, claiming and OTP verification live upstream; this core only reads.
type Directory interface {
	SlugBySlug(ctx context.Context, slug string) (QRSlug, error)
	OwnerByID(ctx context.Context, ownerID string) (Owner, error)
	ContactByID(ctx context.Context, contactID string) (Contact, error)
	VerifiedContacts(ctx context.Context, ownerID string) ([]Contact, error)
}

// PostgresDirectory reads the registration tables owned by the upstream
// signup/dashboard service.
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) SlugBySlug(ctx context.Context, slug string) (QRSlug, error) {
	const q = `
SELECT id, slug, claimed, COALESCE(claimed_by::text, '')
FROM qr_slugs
WHERE slug = $1
`
	var s QRSlug
	if err := d.db.QueryRowContext(ctx, q, slug).Scan(
		&s.ID,
		&s.Slug,
		&s.Claimed,
		&s.ClaimedBy,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return QRSlug{}, ErrNotFound
		}
		return QRSlug{}, err
	}
	return s, nil
}

func (d *PostgresDirectory) OwnerByID(ctx context.Context, ownerID string) (Owner, error) {
	const q = `
SELECT id, name, phone
FROM users
WHERE id = $1
`
	var o Owner
	if err := d.db.QueryRowContext(ctx, q, ownerID).Scan(
		&o.ID,
		&o.Name,
		&o.Phone,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Owner{}, ErrNotFound
		}
		return Owner{}, err
	}
	return o, nil
}

func (d *PostgresDirectory) ContactByID(ctx context.Context, contactID string) (Contact, error) {
	const q = `
SELECT id, user_id, name, COALESCE(relationship, ''), phone, verified, display_order
FROM emergency_contacts
WHERE id = $1
`
	var c Contact
	if err := d.db.QueryRowContext(ctx, q, contactID).Scan(
		&c.ID,
		&c.OwnerID,
		&c.Name,
		&c.Relationship,
		&c.Phone,
		&c.Verified,
		&c.DisplayOrder,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Contact{}, ErrNotFound
		}
		return Contact{}, err
	}
	return c, nil
}

func (d *PostgresDirectory) VerifiedContacts(ctx context.Context, ownerID string) ([]Contact, error) {
	const q = `
SELECT id, user_id, name, COALESCE(relationship, ''), phone, verified, display_order
FROM emergency_contacts
WHERE user_id = $1 AND verified = TRUE
ORDER BY display_order ASC
`
	rows, err := d.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(
			&c.ID,
			&c.OwnerID,
			&c.Name,
			&c.Relationship,
			&c.Phone,
			&c.Verified,
			&c.DisplayOrder,
		); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
