package bigquery

import (
	"context"
	"testing"

	"cloud.google.com/go/bigquery"

	"github.com/angelmondragon/medfarma-backend/pkg/config"
)

type eventRow struct {
	ID string
}

func (r *eventRow) InsertID() string { return r.ID }

func TestWithInsertIDsWrapsDeduplicatedRows(t *testing.T) {
	rows := withInsertIDs([]any{&eventRow{ID: "evt-1"}, &eventRow{}, "plain"})

	saver, ok := rows[0].(*bigquery.StructSaver)
	if !ok || saver.InsertID != "evt-1" {
		t.Fatalf("expected struct saver with insert id, got %#v", rows[0])
	}
	if _, ok := rows[1].(*eventRow); !ok {
		t.Fatalf("rows without an id should pass through, got %#v", rows[1])
	}
	if rows[2] != "plain" {
		t.Fatalf("unexpected row %#v", rows[2])
	}
}

func TestMissingColumns(t *testing.T) {
	schema := bigquery.Schema{
		{Name: "event_id"},
		{Name: "EVENT_TYPE"},
		{Name: "occurred_at"},
	}
	missing := missingColumns(schema, eventColumns)
	want := []string{"aggregate_type", "aggregate_id", "payload"}
	if len(missing) != len(want) {
		t.Fatalf("expected %v, got %v", want, missing)
	}
	for i := range want {
		if missing[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, missing)
		}
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	if c.EventsTable() != "" || c.TableRef("backoffice_events") != "" {
		t.Fatal("nil client should have no table")
	}
	if err := c.InsertRows(context.Background(), "backoffice_events", []any{1}); err != errClientNotInitialized {
		t.Fatalf("expected errClientNotInitialized, got %v", err)
	}
	if err := c.Ping(context.Background()); err != errClientNotInitialized {
		t.Fatalf("expected errClientNotInitialized, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close nil client: %v", err)
	}
}

func TestTableRef(t *testing.T) {
	c := &Client{projectID: "medfarma-prod", dataset: &bigquery.Dataset{DatasetID: "medfarma"}}
	if got := c.TableRef(" backoffice_events "); got != "`medfarma-prod.medfarma.backoffice_events`" {
		t.Fatalf("unexpected table ref %s", got)
	}
}

func TestClientOptions(t *testing.T) {
	cases := []struct {
		name string
		gcp  config.GCPConfig
		want int
	}{
		{"json wins", config.GCPConfig{CredentialsJSON: `{"dummy": "value"}`, ApplicationCredentials: "/tmp/creds"}, 1},
		{"file", config.GCPConfig{ApplicationCredentials: "/tmp/creds"}, 1},
		{"ambient", config.GCPConfig{}, 0},
	}
	for _, tc := range cases {
		if got := len(clientOptions(tc.gcp)); got != tc.want {
			t.Fatalf("%s: expected %d options, got %d", tc.name, tc.want, got)
		}
	}
}
