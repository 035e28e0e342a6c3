package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/angelmondragon/medfarma-backend/pkg/config"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
)

const metadataCheckTimeout = 10 * time.Second

// eventColumns must exist on the events table for the sink and the
// analytics queries to work.
var eventColumns = []string{"event_id", "event_type", "aggregate_type", "aggregate_id", "occurred_at", "payload"}

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery events table is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

// Deduplicated is implemented by rows carrying a streaming insert id, so a
// redelivered Pub/Sub message does not land twice.
type Deduplicated interface {
	InsertID() string
}

// Client is the back-office analytics handle on one dataset.
type Client struct {
	client         *bigquery.Client
	dataset        *bigquery.Dataset
	projectID      string
	eventsTable    string
	maxBytesBilled int64
}

// NewClient creates a BigQuery client and verifies the dataset and the
// events table schema.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	datasetID := strings.TrimSpace(cfg.Dataset)
	if datasetID == "" {
		return nil, errDatasetRequired
	}
	table := strings.TrimSpace(cfg.EventsTable)
	if table == "" {
		return nil, errTableNameRequired
	}

	bqClient, err := bigquery.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	client := &Client{
		client:         bqClient,
		dataset:        bqClient.Dataset(datasetID),
		projectID:      projectID,
		eventsTable:    table,
		maxBytesBilled: cfg.MaxBytesBilled,
	}
	if err := client.Ping(ctx); err != nil {
		_ = bqClient.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"dataset": datasetID, "table": table}), "bigquery client initialized")
	}
	return client, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	default:
		return nil
	}
}

// Ping checks the dataset exists and the events table has every column
// the sink writes.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataCheckTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("dataset %q does not exist", c.dataset.DatasetID)
		}
		return fmt.Errorf("checking dataset %q: %w", c.dataset.DatasetID, err)
	}
	meta, err := c.dataset.Table(c.eventsTable).Metadata(ctx)
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("table %q does not exist", c.eventsTable)
		}
		return fmt.Errorf("checking table %q: %w", c.eventsTable, err)
	}
	if missing := missingColumns(meta.Schema, eventColumns); len(missing) > 0 {
		return fmt.Errorf("table %q is missing columns %s", c.eventsTable, strings.Join(missing, ", "))
	}
	return nil
}

func missingColumns(schema bigquery.Schema, required []string) []string {
	have := make(map[string]bool, len(schema))
	for _, field := range schema {
		have[strings.ToLower(field.Name)] = true
	}
	var missing []string
	for _, name := range required {
		if !have[name] {
			missing = append(missing, name)
		}
	}
	return missing
}

// EventsTable is the configured back-office events table name.
func (c *Client) EventsTable() string {
	if c == nil {
		return ""
	}
	return c.eventsTable
}

// TableRef is the fully qualified `project.dataset.table` used in SQL.
func (c *Client) TableRef(table string) string {
	if c == nil || c.dataset == nil {
		return ""
	}
	return fmt.Sprintf("`%s.%s.%s`", c.projectID, c.dataset.DatasetID, strings.TrimSpace(table))
}

// InsertRows streams rows into table. Rows implementing Deduplicated are
// sent with their insert id.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.client == nil {
		return errClientNotInitialized
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errTableNameRequired
	}
	if len(rows) == 0 {
		return nil
	}
	if err := c.dataset.Table(table).Inserter().Put(ctx, withInsertIDs(rows)); err != nil {
		return fmt.Errorf("inserting %d rows into %s: %w", len(rows), table, err)
	}
	return nil
}

func withInsertIDs(rows []any) []any {
	out := make([]any, len(rows))
	for i, row := range rows {
		if d, ok := row.(Deduplicated); ok && d.InsertID() != "" {
			out[i] = &bigquery.StructSaver{Struct: row, InsertID: d.InsertID()}
			continue
		}
		out[i] = row
	}
	return out
}

// Query runs a parameterized read. Queries are labelled for billing and
// capped by the configured bytes budget.
func (c *Client) Query(ctx context.Context, sql string, params []bigquery.QueryParameter) (*bigquery.RowIterator, error) {
	if c == nil || c.client == nil {
		return nil, errClientNotInitialized
	}
	if strings.TrimSpace(sql) == "" {
		return nil, errors.New("sql query is required")
	}
	q := c.client.Query(sql)
	q.Parameters = params
	q.Labels = map[string]string{"app": "medfarma-backoffice"}
	if c.maxBytesBilled > 0 {
		q.MaxBytesBilled = c.maxBytesBilled
	}
	return q.Read(ctx)
}

// Close releases the BigQuery client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
