package reporting

import (
	"context"
	"errors"
	"time"

	"safescan-platform/internal/audit"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting. Implementations query
// the immutable call-event trail only; reporting never touches live
// session state.

type Repository interface {
	ListEvents(ctx context.Context, from, to time.Time) ([]audit.Event, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) Summary(ctx context.Context, req SummaryRequest) (Summary, error) {
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return Summary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return Summary{}, errors.New("reporting: repository not configured")
	}

	events, err := s.repo.ListEvents(ctx, req.Range.From, req.Range.To)
	if err != nil {
		return Summary{}, err
	}

	var out Summary
	for _, e := range events {
		switch e.Type {
		case audit.EventTypeQRScan:
			out.Scans++
		case audit.EventTypeCallInitiated:
			out.CallsInitiated++
		case audit.EventTypeCallBridged:
			out.CallsBridged++
		case audit.EventTypeCallFailed:
			out.CallsFailed++
		case audit.EventTypeCallEnded:
			out.CallsEnded++
		case audit.EventTypeLegStatus:
			// provider chatter, not a business count
		}
	}
	if out.CallsInitiated > 0 {
		out.BridgeRate = float64(out.CallsBridged) / float64(out.CallsInitiated)
	}
	return out, nil
}
