package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
)

type stubStore struct {
	created   []*models.AuditLog
	createErr error
	rows      []models.AuditLog
	listErr   error
	lastQuery Filter
}

func (s *stubStore) Create(_ context.Context, entry *models.AuditLog) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, entry)
	return nil
}

func (s *stubStore) List(_ context.Context, filter Filter) ([]models.AuditLog, error) {
	s.lastQuery = filter
	return s.rows, s.listErr
}

func TestLogPersistsDetails(t *testing.T) {
	store := &stubStore{}
	svc, err := NewService(store, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	actor := uuid.New()

	svc.Log(context.Background(), "cambio_rol", "usuarios", map[string]any{"role": "vendedor"}, &actor)

	if len(store.created) != 1 {
		t.Fatalf("expected one entry, got %d", len(store.created))
	}
	entry := store.created[0]
	if entry.Action != "cambio_rol" || entry.Module != "usuarios" || *entry.UserID != actor {
		t.Fatalf("unexpected entry %+v", entry)
	}
	var details map[string]any
	if err := json.Unmarshal(entry.Details, &details); err != nil || details["role"] != "vendedor" {
		t.Fatalf("unexpected details %s", entry.Details)
	}
}

func TestLogSwallowsStoreFailure(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Output: &buf})
	svc, _ := NewService(&stubStore{createErr: errors.New("disk full")}, logg)

	svc.Log(context.Background(), "login", "auth", nil, nil)

	if !strings.Contains(buf.String(), "audit.write_failed") {
		t.Fatalf("expected failure to be logged, got %s", buf.String())
	}
}

func TestListClampsLimit(t *testing.T) {
	store := &stubStore{}
	svc, _ := NewService(store, nil)

	if _, err := svc.List(context.Background(), Filter{}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if store.lastQuery.Limit != DefaultLimit {
		t.Fatalf("expected default limit, got %d", store.lastQuery.Limit)
	}
	if _, err := svc.List(context.Background(), Filter{Limit: 10000}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if store.lastQuery.Limit != MaxLimit {
		t.Fatalf("expected max limit, got %d", store.lastQuery.Limit)
	}
}

func TestListValidatesRangeAndMapsErrors(t *testing.T) {
	store := &stubStore{}
	svc, _ := NewService(store, nil)
	from := time.Now()
	to := from.Add(-time.Hour)

	_, err := svc.List(context.Background(), Filter{From: &from, To: &to})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	store.listErr = errors.New("timeout")
	_, err = svc.List(context.Background(), Filter{})
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestListDecodesDetails(t *testing.T) {
	store := &stubStore{rows: []models.AuditLog{{ID: uuid.New(), Action: "x", Module: "y", Details: []byte(`{"k":"v"}`)}}}
	svc, _ := NewService(store, nil)

	entries, err := svc.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || entries[0].Details["k"] != "v" {
		t.Fatalf("unexpected entries %+v", entries)
	}
}
