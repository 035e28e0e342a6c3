package writer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/medfarma-backend/internal/analytics/types"
	pkgbigquery "github.com/angelmondragon/medfarma-backend/pkg/bigquery"
)

func TestNewWriterValidation(t *testing.T) {
	if _, err := New(nil, Config{EventsTable: "backoffice_events"}); err == nil {
		t.Fatal("expected error when client missing")
	}
	if _, err := New(&pkgbigquery.Client{}, Config{EventsTable: " "}); err == nil {
		t.Fatal("expected error when events table missing")
	}
}

func TestEncodeJSON(t *testing.T) {
	nj, err := EncodeJSON(map[string]any{"foo": "bar"})
	if err != nil {
		t.Fatalf("unexpected error encoding json: %v", err)
	}
	if !nj.Valid {
		t.Fatal("expected json to be marked valid")
	}

	nj, err = EncodeJSON(nil)
	if err != nil {
		t.Fatalf("unexpected error for nil json: %v", err)
	}
	if nj.Valid {
		t.Fatal("expected nil json to be invalid")
	}

	rawMessage := json.RawMessage(`{"product_id":"p-1"}`)
	nj, err = EncodeJSON(rawMessage)
	if err != nil {
		t.Fatalf("unexpected error encoding raw json: %v", err)
	}
	if nj.JSONVal != string(rawMessage) {
		t.Fatalf("expected raw json passed through, got %s", nj.JSONVal)
	}
}

func TestWriterRetriesOnTransientError(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	fake.responses = []error{
		&googleapi.Error{Code: http.StatusServiceUnavailable},
		nil,
	}

	if err := writer.Insert(context.Background(), types.BackofficeEventRow{EventID: "1"}); err != nil {
		t.Fatalf("unexpected error writing row: %v", err)
	}
	if len(fake.calls) != 2 {
		t.Fatalf("expected two insert attempts, got %d", len(fake.calls))
	}
	if fake.calls[1].table != "backoffice_events" {
		t.Fatalf("expected events table on retry, got %s", fake.calls[1].table)
	}
	if len(writer.buffer) != 0 {
		t.Fatal("expected buffer to be empty after success")
	}
}

func TestWriterStopsOnPermanentError(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	fake.responses = []error{&googleapi.Error{Code: http.StatusBadRequest}}

	if err := writer.Insert(context.Background(), types.BackofficeEventRow{EventID: "1"}); err == nil {
		t.Fatal("expected error for bad request")
	}
	if len(fake.calls) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(fake.calls))
	}
}

func TestWriterGivesUpAfterMaxAttempts(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	transient := &googleapi.Error{Code: http.StatusInternalServerError}
	fake.responses = []error{transient, transient, transient, transient}

	err := writer.Insert(context.Background(), types.BackofficeEventRow{EventID: "1"})
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected wrapped api error, got %v", err)
	}
	if len(fake.calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(fake.calls))
	}
}

func TestWriterBatching(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	writer.batchSize = 2

	if err := writer.Insert(context.Background(), types.BackofficeEventRow{EventID: "1"}); err != nil {
		t.Fatalf("unexpected error on first insert: %v", err)
	}
	if len(fake.calls) != 0 {
		t.Fatalf("expected no insert before batch full, got %d", len(fake.calls))
	}

	if err := writer.Insert(context.Background(), types.BackofficeEventRow{EventID: "2"}); err != nil {
		t.Fatalf("unexpected error on second insert: %v", err)
	}
	if len(fake.calls) != 1 || fake.calls[0].rowCount != 2 {
		t.Fatalf("expected single insert of two rows, got %+v", fake.calls)
	}
}

func TestWriterFlush(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	writer.batchSize = 10
	if err := writer.Insert(context.Background(), types.BackofficeEventRow{EventID: "1"}); err != nil {
		t.Fatalf("unexpected insert error: %v", err)
	}
	if err := writer.Flush(context.Background()); err != nil {
		t.Fatalf("unexpected flush error: %v", err)
	}
	if len(fake.calls) != 1 {
		t.Fatalf("expected flush to insert once, got %d", len(fake.calls))
	}
	if len(writer.buffer) != 0 {
		t.Fatalf("expected buffer to be empty after flush, got %d", len(writer.buffer))
	}
}

type insertCall struct {
	table    string
	rowCount int
}

type fakeInserter struct {
	responses []error
	calls     []insertCall
	index     int
}

func (f *fakeInserter) InsertRows(_ context.Context, table string, rows []any) error {
	f.calls = append(f.calls, insertCall{table: table, rowCount: len(rows)})
	var err error
	if f.index < len(f.responses) {
		err = f.responses[f.index]
	}
	f.index++
	return err
}

func newWriterWithFakeInserter(t *testing.T) (*BigQueryWriter, *fakeInserter) {
	t.Helper()
	writer, err := New(&pkgbigquery.Client{}, Config{
		EventsTable: "backoffice_events",
		RetryPolicy: RetryPolicy{InitialBackoff: 1, MaximumBackoff: 1},
	})
	if err != nil {
		t.Fatalf("construct writer: %v", err)
	}

	fake := &fakeInserter{}
	writer.client = fake
	return writer, fake
}
