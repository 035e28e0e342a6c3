package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// BackofficeEventRow mirrors the backoffice_events BigQuery schema.
type BackofficeEventRow struct {
	EventID       string             `bigquery:"event_id"`
	EventType     string             `bigquery:"event_type"`
	AggregateType string             `bigquery:"aggregate_type"`
	AggregateID   string             `bigquery:"aggregate_id"`
	OccurredAt    time.Time          `bigquery:"occurred_at"`
	Payload       cbigquery.NullJSON `bigquery:"payload"`
}

// InsertID deduplicates streaming inserts of redelivered events.
func (r *BackofficeEventRow) InsertID() string {
	return r.EventID
}
