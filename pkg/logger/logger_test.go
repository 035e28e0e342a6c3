package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerErrorIncludesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})

	ctx := log.WithRequestID(context.Background(), "req-123")
	ctx = log.WithPortal(ctx, "staff")
	log.Error(ctx, "boom", errors.New("boom"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode entry: %v (%s)", err, buf.String())
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("expected request_id to be preserved; entry=%s", buf.String())
	}
	if entry["portal"] != "staff" {
		t.Fatalf("expected portal field; entry=%s", buf.String())
	}
	if entry["service"] != "test" {
		t.Fatalf("expected service field; entry=%s", buf.String())
	}
	if _, ok := entry["stack"]; !ok {
		t.Fatalf("expected stack on error entry")
	}
}

func TestLoggerWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})
	log.Warn(context.Background(), "quiet")
	if bytes.Contains(buf.Bytes(), []byte(`"stack"`)) {
		t.Fatalf("stack should be omitted when warn stack disabled")
	}

	buf.Reset()
	log = New(Options{ServiceName: "test", Output: buf, WarnStack: true})
	log.Warn(context.Background(), "loud")
	if !bytes.Contains(buf.Bytes(), []byte(`"stack"`)) {
		t.Fatalf("expected stack when warn stack enabled")
	}
}

func TestLoggerFieldsDoNotLeakBetweenContexts(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})

	base := context.Background()
	_ = log.WithUserID(base, "user-1")
	log.Info(base, "plain")

	if bytes.Contains(buf.Bytes(), []byte("user-1")) {
		t.Fatalf("fields attached to a derived context leaked into the parent: %s", buf.String())
	}
}

func TestParseLevelDefaults(t *testing.T) {
	if lvl := ParseLevel(""); lvl != zerolog.InfoLevel {
		t.Fatalf("expected info for empty level, got %v", lvl)
	}
	if lvl := ParseLevel("invalid"); lvl != zerolog.InfoLevel {
		t.Fatalf("invalid level should fall back to info, got %v", lvl)
	}
	if lvl := ParseLevel(" WARN "); lvl != zerolog.WarnLevel {
		t.Fatalf("expected warn, got %v", lvl)
	}
}
