package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/medfarma-backend/internal/analytics/query"
	"github.com/angelmondragon/medfarma-backend/internal/analytics/types"
	"github.com/angelmondragon/medfarma-backend/pkg/bigquery"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
)

const (
	DefaultDays = 30
	MaxDays     = 365
)

// Service provides reports over the back-office event stream.
type Service interface {
	// EventCounts returns per-type counts over the trailing window of days.
	EventCounts(ctx context.Context, days int) (*types.EventCountsResponse, error)
}

type service struct {
	events query.EventsService
	now    func() time.Time
}

// NewService builds an analytics service backed by BigQuery.
func NewService(client *bigquery.Client) (Service, error) {
	if client == nil {
		return nil, fmt.Errorf("bigquery client required")
	}

	events, err := query.NewEventsService(client)
	if err != nil {
		return nil, err
	}

	return &service{events: events, now: time.Now}, nil
}

func (s *service) EventCounts(ctx context.Context, days int) (*types.EventCountsResponse, error) {
	if days == 0 {
		days = DefaultDays
	}
	if days < 1 || days > MaxDays {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid days").
			WithDetails(map[string]string{"days": fmt.Sprintf("must be between 1 and %d", MaxDays)})
	}

	end := s.now().UTC()
	start := end.AddDate(0, 0, -days)
	counts, err := s.events.Counts(ctx, types.EventCountsRequest{Start: start, End: end})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load event counts")
	}

	var total int64
	for _, c := range counts {
		total += c.Count
	}
	return &types.EventCountsResponse{
		Days:   days,
		From:   start,
		To:     end,
		Counts: counts,
		Total:  total,
	}, nil
}
