package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for call events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records the call-event trail. Callers treat logging as
// best-effort: an audit failure is returned for the caller to log, never
// to abort the call flow on.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogScan records a sticker lookup.
func (s *Service) LogScan(ctx context.Context, slugID, ownerID, status string) error {
	return s.Append(ctx, Event{
		Type:    EventTypeQRScan,
		SlugID:  slugID,
		OwnerID: ownerID,
		Message: status,
	})
}

// LogInitiation records an accepted bridged-call request.
func (s *Service) LogInitiation(ctx context.Context, routingID, ownerID string) error {
	return s.Append(ctx, Event{
		Type:      EventTypeCallInitiated,
		RoutingID: routingID,
		OwnerID:   ownerID,
		Mode:      "bridged",
	})
}

// LogLegStatus records a raw provider callback. The payload is stored
// verbatim for dispute resolution; provider forms carry no subscriber
// numbers beyond what the provider already holds.
func (s *Service) LogLegStatus(ctx context.Context, providerLegID, status, raw string) error {
	return s.Append(ctx, Event{
		Type:          EventTypeLegStatus,
		ProviderLegID: providerLegID,
		Message:       status,
		Metadata:      raw,
	})
}
