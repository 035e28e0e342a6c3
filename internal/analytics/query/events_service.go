package query

import (
	"context"
	"fmt"

	cloudbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/angelmondragon/medfarma-backend/internal/analytics/types"
	"github.com/angelmondragon/medfarma-backend/pkg/bigquery"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
)

const eventCountsSQL = `
SELECT
  event_type,
  COUNT(1) AS count
FROM %s
WHERE occurred_at BETWEEN @start AND @end
GROUP BY event_type
ORDER BY count DESC, event_type ASC
`

// EventsService reads aggregates from the back-office events table.
type EventsService interface {
	Counts(ctx context.Context, req types.EventCountsRequest) ([]types.EventCount, error)
}

type eventsService struct {
	client   *bigquery.Client
	tableRef string
}

// NewEventsService builds a service over the client's events table.
func NewEventsService(client *bigquery.Client) (EventsService, error) {
	if client == nil {
		return nil, fmt.Errorf("bigquery client required")
	}
	ref := client.TableRef(client.EventsTable())
	if ref == "" {
		return nil, fmt.Errorf("bigquery events table is not configured")
	}
	return &eventsService{client: client, tableRef: ref}, nil
}

func (s *eventsService) Counts(ctx context.Context, req types.EventCountsRequest) ([]types.EventCount, error) {
	if req.Start.IsZero() || req.End.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "start and end are required")
	}
	if req.End.Before(req.Start) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "end must be after start")
	}

	params := []cloudbigquery.QueryParameter{
		{Name: "start", Value: req.Start},
		{Name: "end", Value: req.End},
	}
	iter, err := s.client.Query(ctx, fmt.Sprintf(eventCountsSQL, s.tableRef), params)
	if err != nil {
		return nil, fmt.Errorf("query event counts: %w", err)
	}

	counts := []types.EventCount{}
	for {
		var row struct {
			EventType string `bigquery:"event_type"`
			Count     int64  `bigquery:"count"`
		}
		if err := iter.Next(&row); err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("reading event count row: %w", err)
		}
		counts = append(counts, types.EventCount{EventType: row.EventType, Count: row.Count})
	}
	return counts, nil
}
