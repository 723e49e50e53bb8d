package identity

import (
	"context"
	"errors"
	"time"

	"safescan-platform/internal/calls"

	"github.com/google/uuid"
)

// DefaultIdentityTTL bounds how long a minted routing identity stays
// resolvable. Long enough for a full call attempt plus the late-message
// grace period.
const DefaultIdentityTTL = 15 * time.Minute

// Presence answers whether a registered user currently holds a live
// signaling connection. The relay hub implements it.
type Presence interface {
	IsOnline(userID string) bool
}

// Resolver maps a public (slug, contact reference) pair to a fresh routing
// identity. The phone number stays inside the returned struct's
// non-serialized fields; handlers pass the routing id onward and nothing
// else.
type Resolver struct {
	dir Directory
	reg Registry
	ttl time.Duration
}

func NewResolver(dir Directory, reg Registry) *Resolver {
	return &Resolver{dir: dir, reg: reg, ttl: DefaultIdentityTTL}
}

// Resolve mints a routing identity for the given contact of the given
// sticker. An empty contactRef targets the sticker's owner directly.
//
// Failure mapping:
//   - unknown slug        -> invalid_session (ErrNotFound wrapped)
//   - unclaimed slug      -> invalid_session
//   - foreign contact ref -> invalid_session
func (r *Resolver) Resolve(ctx context.Context, publicSlug, contactRef string) (RoutingIdentity, error) {
	slug, err := r.dir.SlugBySlug(ctx, publicSlug)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return RoutingIdentity{}, calls.NewError(calls.KindInvalidSession, err)
		}
		return RoutingIdentity{}, err
	}
	if !slug.Claimed || slug.ClaimedBy == "" {
		return RoutingIdentity{}, calls.NewError(calls.KindInvalidSession, errors.New("slug unclaimed"))
	}

	owner, err := r.dir.OwnerByID(ctx, slug.ClaimedBy)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return RoutingIdentity{}, calls.NewError(calls.KindInvalidSession, err)
		}
		return RoutingIdentity{}, err
	}

	var rid RoutingIdentity
	if contactRef == "" {
		rid = RoutingIdentity{
			ID:          uuid.NewString(),
			Kind:        KindOwner,
			OwnerID:     owner.ID,
			TargetPhone: owner.Phone,
		}
	} else {
		contact, err := r.dir.ContactByID(ctx, contactRef)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return RoutingIdentity{}, calls.NewError(calls.KindInvalidSession, err)
			}
			return RoutingIdentity{}, err
		}
		if contact.OwnerID != owner.ID {
			return RoutingIdentity{}, calls.NewError(calls.KindInvalidSession, errors.New("contact does not belong to slug owner"))
		}
		rid = RoutingIdentity{
			ID:          uuid.NewString(),
			Kind:        KindContact,
			OwnerID:     owner.ID,
			TargetPhone: contact.Phone,
		}
	}

	rid.ExpiresAt = time.Now().Add(r.ttl)
	if err := r.reg.Put(ctx, rid, r.ttl); err != nil {
		return RoutingIdentity{}, err
	}
	return rid, nil
}

// ResolveTarget mints a routing identity straight from a directory
// reference. This is the initiation path where the scanner already holds
// ids from a prior scan. Exactly one of ownerID, contactID must be set;
// contactID wins when both are.
func (r *Resolver) ResolveTarget(ctx context.Context, ownerID, contactID string) (RoutingIdentity, error) {
	var rid RoutingIdentity
	switch {
	case contactID != "":
		contact, err := r.dir.ContactByID(ctx, contactID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return RoutingIdentity{}, calls.NewError(calls.KindInvalidSession, err)
			}
			return RoutingIdentity{}, err
		}
		rid = RoutingIdentity{
			ID:          uuid.NewString(),
			Kind:        KindContact,
			OwnerID:     contact.OwnerID,
			TargetPhone: contact.Phone,
		}
	case ownerID != "":
		owner, err := r.dir.OwnerByID(ctx, ownerID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return RoutingIdentity{}, calls.NewError(calls.KindInvalidSession, err)
			}
			return RoutingIdentity{}, err
		}
		rid = RoutingIdentity{
			ID:          uuid.NewString(),
			Kind:        KindOwner,
			OwnerID:     owner.ID,
			TargetPhone: owner.Phone,
		}
	default:
		return RoutingIdentity{}, calls.NewError(calls.KindInvalidSession, errors.New("no target reference"))
	}

	rid.ExpiresAt = time.Now().Add(r.ttl)
	if err := r.reg.Put(ctx, rid, r.ttl); err != nil {
		return RoutingIdentity{}, err
	}
	return rid, nil
}

// Target returns the live routing identity for routingID, or
// invalid_session if it was never minted or already expired.
func (r *Resolver) Target(ctx context.Context, routingID string) (RoutingIdentity, error) {
	rid, err := r.reg.Get(ctx, routingID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return RoutingIdentity{}, calls.NewError(calls.KindInvalidSession, err)
		}
		return RoutingIdentity{}, err
	}
	return rid, nil
}

// Retire drops a routing identity once its session is done.
func (r *Resolver) Retire(ctx context.Context, routingID string) error {
	return r.reg.Delete(ctx, routingID)
}

// Scan builds the scanner-visible view of a sticker. Contact phone numbers
// are dropped here, at the lowest layer that sees them, so no handler can
// leak one by accident.
func (r *Resolver) Scan(ctx context.Context, publicSlug string, presence Presence) (ScanResult, error) {
	slug, err := r.dir.SlugBySlug(ctx, publicSlug)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ScanResult{Status: ScanStatusInvalid}, nil
		}
		return ScanResult{}, err
	}
	if !slug.Claimed || slug.ClaimedBy == "" {
		return ScanResult{Status: ScanStatusUnclaimed}, nil
	}

	owner, err := r.dir.OwnerByID(ctx, slug.ClaimedBy)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ScanResult{Status: ScanStatusInvalid}, nil
		}
		return ScanResult{}, err
	}

	contacts, err := r.dir.VerifiedContacts(ctx, owner.ID)
	if err != nil {
		return ScanResult{}, err
	}

	views := make([]ContactView, 0, len(contacts))
	for _, c := range contacts {
		views = append(views, ContactView{
			ID:           c.ID,
			Name:         c.Name,
			Relationship: c.Relationship,
		})
	}

	online := false
	if presence != nil {
		online = presence.IsOnline(owner.ID)
	}

	return ScanResult{
		Status:      ScanStatusClaimed,
		SlugID:      slug.ID,
		OwnerID:     owner.ID,
		OwnerName:   owner.Name,
		OwnerOnline: online,
		Contacts:    views,
	}, nil
}
