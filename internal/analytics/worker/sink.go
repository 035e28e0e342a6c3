package worker

import (
	"context"
	"fmt"

	"github.com/angelmondragon/medfarma-backend/internal/analytics/types"
	"github.com/angelmondragon/medfarma-backend/internal/analytics/writer"
)

type rowWriter interface {
	Insert(ctx context.Context, row types.BackofficeEventRow) error
}

// NewSink returns a handler writing one backoffice_events row per envelope.
func NewSink(w rowWriter) (Handler, error) {
	if w == nil {
		return nil, fmt.Errorf("row writer required")
	}
	return HandlerFunc(func(ctx context.Context, envelope types.Envelope) error {
		row, err := RowFromEnvelope(envelope)
		if err != nil {
			return err
		}
		return w.Insert(ctx, row)
	}), nil
}

// RowFromEnvelope maps an envelope onto the BigQuery schema.
func RowFromEnvelope(envelope types.Envelope) (types.BackofficeEventRow, error) {
	payload, err := writer.EncodeJSON(envelope.Payload)
	if err != nil {
		return types.BackofficeEventRow{}, fmt.Errorf("encode payload: %w", err)
	}
	return types.BackofficeEventRow{
		EventID:       envelope.EventID,
		EventType:     string(envelope.EventType),
		AggregateType: string(envelope.AggregateType),
		AggregateID:   envelope.AggregateID,
		OccurredAt:    envelope.OccurredAt,
		Payload:       payload,
	}, nil
}
